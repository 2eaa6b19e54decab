package adapters

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Invocation is an explicit process-execution request: executable,
// arguments, working directory, and environment overrides. Keeping it a
// value keeps the adapter boundary narrow and testable with a fake.
type Invocation struct {
	Executable string
	Args       []string
	Dir        string
	// Env entries are appended to the parent environment, "KEY=value".
	Env []string
}

// Command returns the full command line for logging and history.
func (inv Invocation) Command() []string {
	return append([]string{inv.Executable}, inv.Args...)
}

// ProcessResult is the structured outcome of one invocation.
type ProcessResult struct {
	ReturnCode int
	Stdout     string
	Stderr     string
}

// ProcessRunner executes invocations synchronously: Run returns only
// once the external process has exited. Implemented by ExecRunner in
// production and by fakes in tests.
type ProcessRunner interface {
	Run(ctx context.Context, inv Invocation) (ProcessResult, error)
}

// ExecRunner runs invocations with os/exec, capturing output.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, inv Invocation) (ProcessResult, error) {
	cmd := exec.CommandContext(ctx, inv.Executable, inv.Args...)
	cmd.Dir = inv.Dir
	if len(inv.Env) > 0 {
		cmd.Env = append(os.Environ(), inv.Env...)
	}
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := ProcessResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ReturnCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("run %s: %w", inv.Executable, err)
	}
	return res, nil
}

// writeLogs captures a stage's stdout/stderr into the engine logs
// directory and returns the two paths.
func writeLogs(logsDir string, name string, res ProcessResult) (string, string, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return "", "", fmt.Errorf("create logs dir: %w", err)
	}
	stdoutLog := filepath.Join(logsDir, name+".stdout.log")
	stderrLog := filepath.Join(logsDir, name+".stderr.log")
	if err := os.WriteFile(stdoutLog, []byte(res.Stdout), 0o644); err != nil {
		return "", "", fmt.Errorf("write stage log: %w", err)
	}
	if err := os.WriteFile(stderrLog, []byte(res.Stderr), 0o644); err != nil {
		return "", "", fmt.Errorf("write stage log: %w", err)
	}
	return stdoutLog, stderrLog, nil
}

func logInvocation(stageName string, inv Invocation, rc int) {
	slog.Info("stage process finished",
		"stage", stageName,
		"executable", inv.Executable,
		"returncode", rc,
	)
}
