// Package adapters is the external-process boundary: one adapter per
// pipeline stage, each invoking an opaque external tool and reporting
// back only a return code and log locations. Adapters mutate the
// manifest as a side effect; the engine never inspects their internals.
package adapters

import (
	"context"

	"github.com/moldock/moldockpipe/internal/cancel"
	"github.com/moldock/moldockpipe/internal/stage"
)

// Request is the engine's call into a stage adapter.
type Request struct {
	ProjectDir string
	LogsDir    string
	// OnlyIDs restricts the stage to a subset of entity ids. Nil means
	// the full input set.
	OnlyIDs []string
	// Stop is checked at unit-of-work boundaries inside batch-capable
	// adapters. May be nil.
	Stop *cancel.Token
}

// Result is everything the engine learns from a stage attempt.
type Result struct {
	Stage      stage.Stage
	ReturnCode int
	Command    []string
	StdoutLog  string
	StderrLog  string
	// Interrupted reports that a cooperative stop left entities
	// unprocessed. The stage must not count as completed.
	Interrupted bool
}

// OK reports plain success. The docking stage's partial-success code 2
// is judged by the engine, not here.
func (r Result) OK() bool {
	return r.ReturnCode == 0
}

// Adapter runs one stage's external computation to completion.
// Invoke returns an error only when the stage could not be attempted at
// all (missing executable, unwritable logs); a nonzero return code from
// an attempted stage is reported through Result.
type Adapter interface {
	Stage() stage.Stage
	Invoke(ctx context.Context, req Request) (Result, error)
}
