package adapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/moldock/moldockpipe/internal/stage"
)

// OnlyIDsEnv carries a restricted entity-id subset to stage tools that
// honor it. Tools that don't simply process the full input set; the
// planner's idempotency checks make that safe, only slower.
const OnlyIDsEnv = "MOLDOCK_ONLY_IDS"

// ScriptAdapter runs one of the non-docking stages as a configured
// external command, working directory pinned to the project.
type ScriptAdapter struct {
	stage      stage.Stage
	executable string
	args       []string
	runner     ProcessRunner
}

// NewScriptAdapter builds an adapter for a stage tool command. The
// command string is split on whitespace: first token executable, rest
// fixed arguments.
func NewScriptAdapter(s stage.Stage, command string, runner ProcessRunner) (*ScriptAdapter, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("stage %s: empty tool command", s)
	}
	return &ScriptAdapter{
		stage:      s,
		executable: fields[0],
		args:       fields[1:],
		runner:     runner,
	}, nil
}

func (a *ScriptAdapter) Stage() stage.Stage {
	return a.stage
}

func (a *ScriptAdapter) Invoke(ctx context.Context, req Request) (Result, error) {
	inv := Invocation{
		Executable: a.executable,
		Args:       a.args,
		Dir:        req.ProjectDir,
	}
	if len(req.OnlyIDs) > 0 {
		inv.Env = []string{OnlyIDsEnv + "=" + strings.Join(req.OnlyIDs, ",")}
	}

	res, err := a.runner.Run(ctx, inv)
	if err != nil {
		return Result{}, fmt.Errorf("stage %s: %w", a.stage, err)
	}
	stdoutLog, stderrLog, err := writeLogs(req.LogsDir, string(a.stage), res)
	if err != nil {
		return Result{}, fmt.Errorf("stage %s: %w", a.stage, err)
	}
	logInvocation(string(a.stage), inv, res.ReturnCode)

	return Result{
		Stage:      a.stage,
		ReturnCode: res.ReturnCode,
		Command:    inv.Command(),
		StdoutLog:  stdoutLog,
		StderrLog:  stderrLog,
	}, nil
}
