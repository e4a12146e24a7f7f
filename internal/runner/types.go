// Package runner runs pytest on a freshly generated suite.
//
// The pipeline calls Runner.AfterGenerate once the output file is written.
// Whether anything runs is decided by a ChoiceSource: an interactive
// Prompter, or a FixedChoice when the answer was given up front.
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Command is a process to run.
type Command struct {
	// Binary is the executable to run, looked up in PATH.
	Binary string

	// Arguments are the command-line arguments.
	Arguments []string

	// WorkingDirectory is the directory to execute in; empty means the
	// current directory.
	WorkingDirectory string

	// Environment entries (KEY=VALUE) added to the inherited environment.
	Environment []string

	// Timeout kills the process after the given duration; zero disables it.
	Timeout time.Duration
}

// CommandString returns the full command as a string (for display/logging).
func (c Command) CommandString() string {
	if len(c.Arguments) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Arguments, " ")
}

// ExecutionResult describes a finished process.
type ExecutionResult struct {
	ExitCode   int
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration

	// Killed is set when the process was stopped by a timeout or by
	// cancellation; KillReason says which.
	Killed     bool
	KillReason string
}

// Executor runs commands.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (*ExecutionResult, error)
}

// ExitError reports a pytest run that did not succeed.
type ExitError struct {
	Command string
	Code    int
	Reason  string // set when the process was killed
}

func (e *ExitError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Command, e.Reason)
	}
	return fmt.Sprintf("%s exited with status %d", e.Command, e.Code)
}
