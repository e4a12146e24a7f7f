package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"pytestmaker/internal/logging"
)

// DefaultBinary is the test runner executable.
const DefaultBinary = "pytest"

// Runner is the post-generation step: it asks its ChoiceSource what to run
// and runs pytest through its Executor.
type Runner struct {
	Choices  ChoiceSource
	Executor Executor

	// Binary and Args form the pytest command line; the generated file is
	// appended for ChoiceFile.
	Binary string
	Args   []string

	WorkDir string
	Timeout time.Duration
}

// New creates a Runner for pytest in workDir.
func New(choices ChoiceSource, executor Executor, workDir string) *Runner {
	return &Runner{
		Choices:  choices,
		Executor: executor,
		Binary:   DefaultBinary,
		WorkDir:  workDir,
	}
}

// AfterGenerate runs pytest on outputPath, on the whole workspace or not at
// all. A failing pytest run is an *ExitError.
func (r *Runner) AfterGenerate(ctx context.Context, outputPath string) error {
	choice, err := r.Choices.Choose(ctx)
	if err != nil {
		return err
	}

	args := append([]string(nil), r.Args...)
	switch choice {
	case ChoiceNone:
		logging.Runner("not running pytest")
		return nil
	case ChoiceFile:
		args = append(args, r.relative(outputPath))
	case ChoiceAll:
	default:
		return fmt.Errorf("unknown run choice %q", choice)
	}

	binary := r.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	cmd := Command{
		Binary:           binary,
		Arguments:        args,
		WorkingDirectory: r.WorkDir,
		Timeout:          r.Timeout,
	}

	res, err := r.Executor.Execute(ctx, cmd)
	if err != nil {
		return err
	}
	if res.Killed {
		return &ExitError{Command: cmd.CommandString(), Code: res.ExitCode, Reason: res.KillReason}
	}
	if res.ExitCode != 0 {
		logging.RunnerWarn("%s exited with status %d", cmd.CommandString(), res.ExitCode)
		return &ExitError{Command: cmd.CommandString(), Code: res.ExitCode}
	}
	return nil
}

// relative shortens outputPath to be relative to the working directory when
// it lies inside it.
func (r *Runner) relative(outputPath string) string {
	if r.WorkDir == "" || !filepath.IsAbs(outputPath) {
		return outputPath
	}
	wd, err := filepath.Abs(r.WorkDir)
	if err != nil {
		return outputPath
	}
	rel, err := filepath.Rel(wd, outputPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return outputPath
	}
	return rel
}
