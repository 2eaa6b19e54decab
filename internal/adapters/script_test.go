package adapters

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moldock/moldockpipe/internal/stage"
)

type fakeRunner struct {
	calls   []Invocation
	handler func(inv Invocation) (ProcessResult, error)
}

func (f *fakeRunner) Run(_ context.Context, inv Invocation) (ProcessResult, error) {
	f.calls = append(f.calls, inv)
	if f.handler != nil {
		return f.handler(inv)
	}
	return ProcessResult{}, nil
}

func TestNewScriptAdapter_SplitsCommand(t *testing.T) {
	a, err := NewScriptAdapter(stage.Screening, "python3 screen.py --fast", &fakeRunner{})
	require.NoError(t, err)

	assert.Equal(t, stage.Screening, a.Stage())
	assert.Equal(t, "python3", a.executable)
	assert.Equal(t, []string{"screen.py", "--fast"}, a.args)
}

func TestNewScriptAdapter_EmptyCommand(t *testing.T) {
	_, err := NewScriptAdapter(stage.Screening, "  ", &fakeRunner{})
	assert.Error(t, err)
}

func TestScriptAdapter_Invoke(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{handler: func(Invocation) (ProcessResult, error) {
		return ProcessResult{ReturnCode: 0, Stdout: "screened 2\n", Stderr: ""}, nil
	}}
	a, err := NewScriptAdapter(stage.Screening, "screen-tool", runner)
	require.NoError(t, err)

	res, err := a.Invoke(context.Background(), Request{
		ProjectDir: dir,
		LogsDir:    dir + "/logs",
		OnlyIDs:    []string{"mol-001", "mol-002"},
	})
	require.NoError(t, err)

	assert.Equal(t, 0, res.ReturnCode)
	assert.True(t, res.OK())
	assert.Equal(t, []string{"screen-tool"}, res.Command)

	require.Len(t, runner.calls, 1)
	inv := runner.calls[0]
	assert.Equal(t, dir, inv.Dir)
	assert.Contains(t, inv.Env, OnlyIDsEnv+"=mol-001,mol-002")

	raw, err := os.ReadFile(res.StdoutLog)
	require.NoError(t, err)
	assert.Equal(t, "screened 2\n", string(raw))
}

func TestScriptAdapter_NonzeroReturnCode(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{handler: func(Invocation) (ProcessResult, error) {
		return ProcessResult{ReturnCode: 1, Stderr: "tool exploded\n"}, nil
	}}
	a, err := NewScriptAdapter(stage.Preparation, "prep-tool", runner)
	require.NoError(t, err)

	res, err := a.Invoke(context.Background(), Request{ProjectDir: dir, LogsDir: dir + "/logs"})
	require.NoError(t, err)

	// Nonzero rc is an outcome, not an error.
	assert.Equal(t, 1, res.ReturnCode)
	assert.False(t, res.OK())

	raw, err := os.ReadFile(res.StderrLog)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "tool exploded"))
}

func TestScriptAdapter_NoSubsetEnv(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{}
	a, err := NewScriptAdapter(stage.StructureBuild, "struct-tool", runner)
	require.NoError(t, err)

	_, err = a.Invoke(context.Background(), Request{ProjectDir: dir, LogsDir: dir + "/logs"})
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	assert.Empty(t, runner.calls[0].Env)
}
