package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"pytestmaker/internal/logging"
)

// DirectExecutor runs commands on the host with os/exec, streaming their
// output.
type DirectExecutor struct {
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
}

// NewDirectExecutor creates an executor attached to the process's standard
// streams.
func NewDirectExecutor() *DirectExecutor {
	return &DirectExecutor{Stdout: os.Stdout, Stderr: os.Stderr, Stdin: os.Stdin}
}

// Execute runs cmd to completion. A non-zero exit status is reported in the
// result, not as an error; errors mean the process could not be run.
func (e *DirectExecutor) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	timer := logging.StartTimer(logging.CategoryRunner, "Execute")
	defer timer.Stop()

	if cmd.Binary == "" {
		return nil, fmt.Errorf("binary is required")
	}
	logging.Runner("Executing command: %s", cmd.CommandString())

	execCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	execCmd := exec.CommandContext(execCtx, cmd.Binary, cmd.Arguments...)
	execCmd.Dir = cmd.WorkingDirectory
	execCmd.Env = append(os.Environ(), cmd.Environment...)
	execCmd.Stdin = e.Stdin
	execCmd.Stdout = e.Stdout
	execCmd.Stderr = e.Stderr

	result := &ExecutionResult{ExitCode: -1, StartedAt: time.Now()}
	err := execCmd.Run()
	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(execCtx.Err(), context.DeadlineExceeded):
			result.Killed = true
			result.KillReason = fmt.Sprintf("timeout after %s", cmd.Timeout)
			logging.RunnerWarn("Command killed (timeout): %s after %s", cmd.Binary, cmd.Timeout)
		case errors.Is(execCtx.Err(), context.Canceled):
			result.Killed = true
			result.KillReason = "context canceled"
			logging.RunnerDebug("Command canceled: %s", cmd.Binary)
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
			logging.RunnerDebug("Command exited non-zero: %s -> %d", cmd.Binary, result.ExitCode)
		default:
			logging.RunnerError("Command failed: %s - %v", cmd.Binary, err)
			return nil, fmt.Errorf("failed to run %s: %w", cmd.Binary, err)
		}
	} else {
		result.ExitCode = 0
	}

	logging.Runner("Command completed: %s -> exit=%d, duration=%s", cmd.Binary, result.ExitCode, result.Duration)
	return result, nil
}
