package engine

import (
	"fmt"
	"strings"

	"github.com/moldock/moldockpipe/internal/stage"
)

// Process exit codes. The docking stage's partial-success outcome gets
// its own code so schedulers can distinguish "rerun me" from "done,
// inspect the failures".
const (
	ExitOK               = 0
	ExitStageFailure     = 1
	ExitDockingPartial   = 2
	ExitValidationFailed = 3
)

// ValidationError aggregates every blocking preflight issue. The run
// never starts while one exists.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Issues, "; "))
}

// StageError reports a stage that was attempted and returned an
// unacceptable code.
type StageError struct {
	Stage      stage.Stage
	ReturnCode int
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed with return code %d", e.Stage, e.ReturnCode)
}
