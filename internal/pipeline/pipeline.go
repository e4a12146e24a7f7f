// Package pipeline runs one generation: load the specification, parse the
// target module, resolve, emit, verify and write the suite, then hand the
// file to the post-generation hook.
//
// Every failure happens before the output file is replaced; the previous
// suite is left as it was.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"pytestmaker/internal/emit"
	"pytestmaker/internal/logging"
	"pytestmaker/internal/pysource"
	"pytestmaker/internal/resolve"
	"pytestmaker/internal/spec"

	"github.com/google/uuid"
)

// slowGeneration is the build time (load to verified source) above which a
// run is logged as slow.
const slowGeneration = 5 * time.Second

// Hook runs after the output file has been written.
type Hook func(ctx context.Context, outputPath string) error

// Options configure one generation.
type Options struct {
	// Module is the target module name; a trailing ".py" is tolerated.
	Module string

	// SpecPath is the specification file; relative paths are resolved
	// against WorkDir.
	SpecPath string

	// WorkDir holds the target module. Empty means the current directory.
	WorkDir string

	// OutputDir receives test_<module>.py; relative paths are resolved
	// against WorkDir, empty means WorkDir.
	OutputDir string

	// VerifySyntax parses the generated source before writing it.
	VerifySyntax bool

	// DryRun renders the source without writing it or running the hook.
	DryRun bool

	// SkipHook writes the file but does not run the hook.
	SkipHook bool
}

// Result describes a finished generation.
type Result struct {
	RunID      string
	ModulePath string
	OutputPath string
	Source     string
	Entries    []resolve.Entry
	Tests      int
	Fixtures   int
	Written    bool
}

// Generator runs generations.
type Generator struct {
	// AfterGenerate is the post-generation hook; nil disables it.
	AfterGenerate Hook
}

// New creates a Generator with the given post-generation hook.
func New(hook Hook) *Generator {
	return &Generator{AfterGenerate: hook}
}

// ModuleName strips a trailing ".py" and any directory from a module
// argument.
func ModuleName(arg string) string {
	return strings.TrimSuffix(filepath.Base(arg), ".py")
}

// Generate runs one generation.
func (g *Generator) Generate(ctx context.Context, opts Options) (*Result, error) {
	runID := uuid.NewString()
	log := logging.WithRequestID(logging.CategoryPipeline, runID).WithField("module", opts.Module)
	timer := logging.StartTimer(logging.CategoryPipeline, "Generate")
	defer timer.Stop()

	name := ModuleName(opts.Module)
	if name == "" {
		return nil, fmt.Errorf("module name is required")
	}
	workDir := opts.WorkDir
	if workDir == "" {
		workDir = "."
	}
	outDir := resolvePath(workDir, opts.OutputDir)

	log.Info("generating %s from %s", emit.OutputFile(name), opts.SpecPath)

	build := logging.StartTimer(logging.CategoryPipeline, "Build")
	doc, err := spec.Load(filepath.Join(workDir, name), resolvePath(workDir, opts.SpecPath))
	if err != nil {
		log.Error("load failed: %v", err)
		return nil, err
	}

	module, err := pysource.LoadModule(ctx, doc.ModulePath)
	if err != nil {
		log.Error("module parse failed: %v", err)
		return nil, err
	}

	entries, err := resolve.Resolve(doc.Entries, module)
	if err != nil {
		log.Error("resolve failed: %v", err)
		return nil, err
	}

	source := emit.Emit(entries, name, module)

	if opts.VerifySyntax {
		if err := pysource.CheckSyntax(ctx, []byte(source)); err != nil {
			log.Error("generated source does not parse: %v", err)
			return nil, fmt.Errorf("generated source for %s: %w", name, err)
		}
	}

	build.StopWithThreshold(slowGeneration)

	res := &Result{
		RunID:      runID,
		ModulePath: doc.ModulePath,
		OutputPath: filepath.Join(outDir, emit.OutputFile(name)),
		Source:     source,
		Entries:    entries,
	}
	for _, e := range entries {
		if e.IsFixture {
			res.Fixtures++
		} else {
			res.Tests++
		}
	}

	if opts.DryRun {
		log.Debug("dry run: %d bytes not written", len(source))
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := writeAtomic(res.OutputPath, []byte(source)); err != nil {
		log.Error("write failed: %v", err)
		return nil, err
	}
	res.Written = true
	log.Info("wrote %s: %d tests, %d fixtures", res.OutputPath, res.Tests, res.Fixtures)

	if g.AfterGenerate != nil && !opts.SkipHook {
		if err := g.AfterGenerate(ctx, res.OutputPath); err != nil {
			return res, err
		}
	}
	return res, nil
}

func resolvePath(base, path string) string {
	if path == "" {
		return base
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
