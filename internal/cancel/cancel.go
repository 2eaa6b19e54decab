// Package cancel provides the two-level cooperative stop token threaded
// into batch loops. The first request asks the current unit of work to
// finish and the loop to stop before the next one; the second escalates
// to stopping as soon as the in-flight external call returns. Work is
// never force-killed.
package cancel

import "sync/atomic"

// Level is the escalation state of a stop request.
type Level int32

const (
	// None: no stop requested.
	None Level = iota
	// Soft: finish the current unit, then stop before starting the next.
	Soft
	// Hard: stop as soon as the in-flight external call returns.
	Hard
)

// Token carries the stop request across goroutines. The zero value is
// usable and never stopped.
type Token struct {
	level atomic.Int32
}

// Request raises the stop level by one step and returns the new level.
// Levels never decrease.
func (t *Token) Request() Level {
	for {
		cur := t.level.Load()
		if cur >= int32(Hard) {
			return Hard
		}
		if t.level.CompareAndSwap(cur, cur+1) {
			return Level(cur + 1)
		}
	}
}

// Level returns the current escalation state.
func (t *Token) Level() Level {
	if t == nil {
		return None
	}
	return Level(t.level.Load())
}

// Stopped reports whether any stop has been requested. Checked at
// per-unit-of-work boundaries.
func (t *Token) Stopped() bool {
	return t.Level() >= Soft
}
