package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"pytestmaker/internal/config"
	"pytestmaker/internal/logging"
	"pytestmaker/internal/pipeline"
	"pytestmaker/internal/runner"
	"pytestmaker/internal/watch"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	specPath   string
	configPath string
	runChoice  string
	toStdout   bool
	watchMode  bool
	noVerify   bool

	// Logger
	logger *zap.Logger

	// stdinIsTerminal decides whether the run prompt can be shown.
	stdinIsTerminal = func() bool {
		fd := os.Stdin.Fd()
		return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	}
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pytestmaker <module>",
	Short: "Generate a pytest suite from a YAML test specification",
	Long: `pytestmaker reads a YAML specification of test cases for a Python module
and writes test_<module>.py next to it.

Each top-level key is <callable>$<discriminator>; its value holds directives:
  args                      $-joined call arguments ("$1$2" calls f(1, 2))
  equals less lessoe more moreoe
                            literal expected values
  eval_equals eval_less eval_lessoe eval_more eval_moreoe
                            expected values as Python expressions
  outtype                   expected result type
  skip fail timeout         control decorators (skip wins over fail over timeout)
  fixture                   true to declare a fixture explicitly

Keys whose callable part contains "fixture" declare fixtures; a test whose
args name a fixture receives it as a parameter, and a trailing * unpacks it.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws, err := workspaceDir()
		if err != nil {
			return err
		}
		if err := logging.Initialize(ws); err != nil {
			logger.Warn("file logging disabled", zap.Error(err))
		}
		if verbose {
			logging.SetLevel("debug")
		}
		logging.Boot("pytestmaker starting: workspace %s, args %v", ws, args)
		return nil
	},
	RunE: runGenerate,
}

func init() {
	rootCmd.Flags().StringVar(&specPath, "spec", "", "specification file (default from config, else "+config.DefaultSpecFile+")")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "directory holding the target module (default: current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: <workspace>/.pytestmaker/config.yaml)")
	rootCmd.Flags().StringVar(&runChoice, "run", "", "answer the run prompt up front: y (generated file), all (whole suite) or n")
	rootCmd.Flags().BoolVar(&toStdout, "stdout", false, "print the generated suite instead of writing it")
	rootCmd.Flags().BoolVar(&watchMode, "watch", false, "regenerate whenever the module or the specification changes")
	rootCmd.Flags().BoolVar(&noVerify, "no-verify", false, "skip parsing the generated suite before writing it")
}

func main() {
	os.Exit(execute(os.Args[1:]))
}

// execute runs the root command and returns the process exit status. Logs
// are flushed and closed on every path, failures included.
func execute(args []string) (code int) {
	defer func() {
		logging.Boot("exiting with status %d", code)
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	}()

	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	var exitErr *runner.ExitError
	if errors.As(err, &exitErr) {
		// pytest has already reported its failures.
		if exitErr.Code <= 0 {
			return 1
		}
		return exitErr.Code
	}
	errOut := rootCmd.ErrOrStderr()
	fmt.Fprintln(errOut, errorStyle(errOut).Render("error:"), err)
	return 1
}

func workspaceDir() (string, error) {
	if workspace != "" {
		return filepath.Abs(workspace)
	}
	return os.Getwd()
}

// runGenerate generates the suite for one module.
func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ws, err := workspaceDir()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(ws)
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		Module:       args[0],
		SpecPath:     cfg.Spec.Path,
		WorkDir:      ws,
		OutputDir:    cfg.Output.Directory,
		VerifySyntax: cfg.Output.VerifySyntax && !noVerify,
	}
	if specPath != "" {
		opts.SpecPath = specPath
	}
	logger.Debug("Generating suite",
		zap.String("module", opts.Module),
		zap.String("spec", opts.SpecPath),
		zap.String("workspace", ws))

	out := cmd.OutOrStdout()

	if toStdout {
		opts.DryRun = true
		res, err := pipeline.New(nil).Generate(ctx, opts)
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, res.Source)
		return err
	}

	if watchMode {
		return runWatch(ctx, cmd, cfg, opts)
	}

	choices, err := choiceSource(cmd)
	if err != nil {
		return err
	}
	r := runner.New(choices, &runner.DirectExecutor{
		Stdout: out,
		Stderr: cmd.ErrOrStderr(),
		Stdin:  os.Stdin,
	}, ws)
	r.Binary = cfg.Runner.Binary
	r.Args = cfg.Runner.Args
	r.Timeout = cfg.GetRunnerTimeout()

	hook := func(ctx context.Context, outputPath string) error {
		fmt.Fprintln(out, successStyle(out).Render("Generated "+displayPath(ws, outputPath)))
		return r.AfterGenerate(ctx, outputPath)
	}

	res, err := pipeline.New(hook).Generate(ctx, opts)
	if err != nil {
		return err
	}
	logger.Info("Suite generated",
		zap.String("output", res.OutputPath),
		zap.Int("tests", res.Tests),
		zap.Int("fixtures", res.Fixtures),
		zap.String("run_id", res.RunID))
	return nil
}

// runWatch generates once, then again on every change, never running pytest.
func runWatch(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts pipeline.Options) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	opts.SkipHook = true

	gen := pipeline.New(nil)
	regenerate := func(ctx context.Context) error {
		res, err := gen.Generate(ctx, opts)
		if err != nil {
			fmt.Fprintln(errOut, errorStyle(errOut).Render("error:"), err)
			return err
		}
		fmt.Fprintf(out, "%s (%d tests, %d fixtures)\n",
			successStyle(out).Render("Generated "+displayPath(opts.WorkDir, res.OutputPath)), res.Tests, res.Fixtures)
		return nil
	}
	_ = regenerate(ctx)

	moduleFile := filepath.Join(opts.WorkDir, pipeline.ModuleName(opts.Module)+".py")
	specFile := config.ResolvePath(opts.WorkDir, opts.SpecPath)
	w, err := watch.New([]string{moduleFile, specFile}, cfg.GetWatchDebounce())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Watching for changes, press Ctrl+C to stop.")
	return w.Run(ctx, regenerate)
}

func loadConfig(ws string) (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath(ws)
	} else if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		logging.BootWarn("config %s not found, using defaults", path)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	logging.BootDebug("config %s: spec=%s output=%s runner=%s %v",
		path, cfg.Spec.Path, cfg.Output.Directory, cfg.Runner.Binary, cfg.Runner.Args)
	return cfg, nil
}

// choiceSource picks how the run prompt is answered: the --run flag, else
// an interactive prompt, else (no terminal) not at all.
func choiceSource(cmd *cobra.Command) (runner.ChoiceSource, error) {
	if runChoice != "" {
		c, ok := runner.ParseChoice(runChoice)
		if !ok {
			return nil, fmt.Errorf("invalid --run value %q: want y, n or all", runChoice)
		}
		return runner.FixedChoice(c), nil
	}
	if !stdinIsTerminal() {
		logger.Debug("stdin is not a terminal, not prompting")
		return runner.FixedChoice(runner.ChoiceNone), nil
	}
	return runner.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout()), nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func displayPath(ws, path string) string {
	if rel, err := filepath.Rel(ws, path); err == nil && !filepath.IsAbs(rel) && rel != "" && rel[0] != '.' {
		return rel
	}
	return path
}

func successStyle(w io.Writer) lipgloss.Style {
	return lipgloss.NewRenderer(w).NewStyle().Foreground(lipgloss.Color("10"))
}

func errorStyle(w io.Writer) lipgloss.Style {
	return lipgloss.NewRenderer(w).NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
}
