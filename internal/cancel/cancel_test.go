package cancel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToken_ZeroValue(t *testing.T) {
	var tok Token

	assert.Equal(t, None, tok.Level())
	assert.False(t, tok.Stopped())
}

func TestToken_Escalation(t *testing.T) {
	var tok Token

	assert.Equal(t, Soft, tok.Request())
	assert.True(t, tok.Stopped())

	assert.Equal(t, Hard, tok.Request())
	assert.Equal(t, Hard, tok.Level())

	// Further requests never go past Hard.
	assert.Equal(t, Hard, tok.Request())
}

func TestToken_NilSafe(t *testing.T) {
	var tok *Token

	assert.Equal(t, None, tok.Level())
	assert.False(t, tok.Stopped())
}
