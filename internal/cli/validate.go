package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/clapval/internal/config"
	"github.com/roach88/clapval/internal/engine"
	"github.com/roach88/clapval/internal/harness"
	"github.com/roach88/clapval/internal/registry"
	"github.com/roach88/clapval/internal/result"
	"github.com/roach88/clapval/internal/store"
	"github.com/roach88/clapval/internal/worker"
)

// DefaultTraceDir is where traces go when --trace is given without
// --trace-dir.
const DefaultTraceDir = "clapval-traces"

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	OnlyFailed bool
	InProcess  bool
	Filter     string
	Trace      bool
	TraceDir   string
	Timeout    time.Duration
	Jobs       int
	MaxWorkers int
	PluginID   string
	Database   string
	HideOutput bool
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <module.clap>...",
		Short: "Run the validator tests against plugin modules",
		Long: `Run the selected validator tests against one or more CLAP modules.

Library tests run once per module, plugin tests once per plugin the module
exposes. Tests are enabled or disabled through clapval.toml and narrowed with
--filter.

Exit codes:
  0  every selected test passed (warnings and skips included)
  1  at least one test failed, crashed or timed out
  2  a module or plugin could not be set up, or the command itself failed

Examples:
  clapval validate ./build/gain.clap
  clapval validate --filter '^param-' --only-failed ./build/*.clap
  clapval validate --trace --trace-dir ./traces --format json ./gain.clap`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.OnlyFailed, "only-failed", false, "only report failed, crashed, timed out and warning outcomes")
	cmd.Flags().BoolVar(&opts.InProcess, "in-process", false, "run tests in this process (a crashing plugin aborts the run)")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run tests whose id matches this regular expression")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "write a Chrome trace for every test")
	cmd.Flags().StringVar(&opts.TraceDir, "trace-dir", "", "directory for trace files (implies --trace)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", worker.DefaultTimeout, "time limit for each worker process")
	cmd.Flags().IntVar(&opts.Jobs, "jobs", engine.DefaultJobs, "number of modules validated concurrently")
	cmd.Flags().IntVar(&opts.MaxWorkers, "max-workers", 0, "maximum number of live worker processes (default: number of CPUs)")
	cmd.Flags().StringVar(&opts.PluginID, "plugin-id", "", "only run plugin tests for the plugin with this id")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite database")
	cmd.Flags().BoolVar(&opts.HideOutput, "hide-output", false, "omit captured plugin output from the report")

	return cmd
}

func runValidate(cmd *cobra.Command, opts *ValidateOptions, paths []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)
	logger := opts.logger(cmd.ErrOrStderr())

	sel, cfgErrs, err := resolveSelection(opts.Filter, logger)
	if err != nil {
		_ = formatter.Error("CONFIG", err.Error(), nil)
		return WrapExitError(ExitCommandError, "load configuration", err)
	}
	formatter.VerboseLog("Selected %d test(s)", sel.Len())

	exec, jobs, err := opts.executor(logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "set up test executor", err)
	}

	traceDir := opts.TraceDir
	if opts.Trace && traceDir == "" {
		traceDir = DefaultTraceDir
	}
	eng := engine.New(exec,
		engine.WithSelection(sel),
		engine.WithJobs(jobs),
		engine.WithTraceDir(traceDir),
		engine.WithPluginID(opts.PluginID),
		engine.WithLogger(logger),
	)

	report, runErr := eng.Run(ctx, paths)
	if report == nil {
		var re *engine.RunError
		if errors.As(runErr, &re) {
			_ = formatter.Error(string(re.Code), re.Message, nil)
			return NewExitError(ExitCommandError, "")
		}
		return WrapExitError(ExitCommandError, "validation failed", runErr)
	}
	report.ConfigErrors = cfgErrs
	if runErr != nil {
		// Traces could not be written; the outcomes are still reported.
		logger.Error("run aborted", "error", runErr)
	}

	if opts.Database != "" {
		if err := saveReport(ctx, opts.Database, report); err != nil {
			return WrapExitError(ExitCommandError, "record run", err)
		}
		formatter.VerboseLog("Recorded run %s in %s", report.RunID, opts.Database)
	}

	view := report
	if opts.OnlyFailed {
		view = report.OnlyFailed()
	}
	if opts.HideOutput {
		view = withoutDiagnostics(view)
	}
	if formatter.Structured() {
		if err := formatter.Success(view); err != nil {
			return WrapExitError(ExitCommandError, "write report", err)
		}
	} else if err := renderReport(formatter, view, report.Tally()); err != nil {
		return WrapExitError(ExitCommandError, "write report", err)
	}

	if runErr != nil {
		return WrapExitError(ExitCommandError, "run aborted", runErr)
	}
	if class := report.ExitClass(); class != result.ExitPassed {
		return NewExitError(int(class), "")
	}
	return nil
}

// resolveSelection loads clapval.toml and combines it with the filter.
// Problems with individual entries come back as config errors; only an
// unreadable file is fatal.
func resolveSelection(filter string, logger *slog.Logger) (registry.Selection, []string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return registry.Selection{}, nil, err
	}
	path, err := config.Discover(wd)
	if err != nil {
		return registry.Selection{}, nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return registry.Selection{}, nil, err
	}
	if cfg.Path != "" {
		logger.Debug("loaded configuration", "path", cfg.Path, "overrides", len(cfg.Tests))
	}

	var cfgErrs []string
	for _, issue := range cfg.Issues {
		if issue.Severity == config.SeverityWarning {
			logger.Warn("configuration", "key", issue.Key, "message", issue.Message)
			continue
		}
		cfgErrs = append(cfgErrs, fmt.Sprintf("%s: %s", issue.Key, issue.Message))
	}

	re, err := registry.CompileFilter(filter)
	if err != nil {
		cfgErrs = append(cfgErrs, err.Error())
	}
	sel, errs := harness.Registry().Resolve(re, cfg.Overrides())
	for _, e := range errs {
		cfgErrs = append(cfgErrs, e.Error())
	}
	return sel, cfgErrs, nil
}

// executor builds the in-process or worker-backed executor and returns the
// module concurrency to use with it.
func (o *ValidateOptions) executor(logger *slog.Logger) (engine.Executor, int, error) {
	suiteOpts := []harness.Option{harness.WithLogger(logger)}
	if o.InProcess {
		// One module at a time: plugins in the same process share global
		// state and the host's main thread.
		return engine.InProcess(harness.NewSuite(o.env.Loader, suiteOpts...)), 1, nil
	}

	runnerOpts := []worker.RunnerOption{
		worker.WithEnv(o.env.WorkerEnv...),
		worker.WithTimeout(o.Timeout),
		worker.WithMaxWorkers(o.MaxWorkers),
		worker.WithLogger(logger),
	}
	if len(o.env.WorkerCommand) > 0 {
		runnerOpts = append(runnerOpts, worker.WithCommand(o.env.WorkerCommand...))
	}
	r, err := worker.NewRunner(runnerOpts...)
	if err != nil {
		return nil, 0, err
	}
	return r, o.Jobs, nil
}

func saveReport(ctx context.Context, path string, report *result.Report) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.SaveReport(ctx, report)
}

func withoutDiagnostics(r *result.Report) *result.Report {
	out := *r
	out.Modules = make([]result.ModuleReport, len(r.Modules))
	strip := func(outs []result.Outcome) []result.Outcome {
		cp := make([]result.Outcome, len(outs))
		for i, o := range outs {
			o.Diagnostic = ""
			cp[i] = o
		}
		return cp
	}
	for i, m := range r.Modules {
		m.LibraryOutcomes = strip(m.LibraryOutcomes)
		plugins := make([]result.PluginReport, len(m.Plugins))
		for j, p := range m.Plugins {
			p.Outcomes = strip(p.Outcomes)
			plugins[j] = p
		}
		m.Plugins = plugins
		out.Modules[i] = m
	}
	return &out
}
