package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/clapval/internal/abi"
	"github.com/roach88/clapval/internal/harness"
	"github.com/roach88/clapval/internal/registry"
	"github.com/roach88/clapval/internal/result"
)

// DefaultJobs is the number of modules validated concurrently.
const DefaultJobs = 4

// Engine runs a test selection against plugin modules.
//
// Thread-safety: Run may be called concurrently; an Engine holds no per-run
// state.
type Engine struct {
	exec      Executor
	selection registry.Selection
	jobs      int
	traceDir  string
	pluginID  string
	runIDs    RunIDGenerator
	now       func() time.Time
	logger    *slog.Logger
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithSelection sets the tests to run. The default is every test enabled
// by default.
func WithSelection(sel registry.Selection) EngineOption {
	return func(e *Engine) {
		e.selection = sel
	}
}

// WithJobs sets how many modules are validated concurrently.
//
// Default: 4 (DefaultJobs). In-process runs should use 1.
func WithJobs(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.jobs = n
		}
	}
}

// WithTraceDir enables tracing and writes one Chrome trace file per test
// below dir.
func WithTraceDir(dir string) EngineOption {
	return func(e *Engine) {
		e.traceDir = dir
	}
}

// WithPluginID restricts plugin tests to the plugin with this id.
func WithPluginID(id string) EngineOption {
	return func(e *Engine) {
		e.pluginID = id
	}
}

// WithRunIDs sets the run id generator.
//
// Default: UUIDv7Generator.
func WithRunIDs(g RunIDGenerator) EngineOption {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// WithClock sets the wall clock used for report timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine that executes tests through exec.
func New(exec Executor, opts ...EngineOption) *Engine {
	defaults, _ := harness.Registry().Resolve(nil, nil)
	e := &Engine{
		exec:      exec,
		selection: defaults,
		jobs:      DefaultJobs,
		runIDs:    UUIDv7Generator{},
		now:       time.Now,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type moduleScan struct {
	path string
	res  harness.ScanResult
	err  error
}

// Run validates every module in paths and returns the report. Modules
// appear in the report in the order given.
func (e *Engine) Run(ctx context.Context, paths []string) (*result.Report, error) {
	if len(paths) == 0 {
		return nil, &RunError{Code: ErrCodeNoModules, Message: "no plugin modules given"}
	}
	report := &result.Report{
		RunID:     e.runIDs.Generate(),
		StartedAt: e.now(),
		Selected:  e.selection.IDs(),
		Modules:   make([]result.ModuleReport, len(paths)),
	}
	logger := e.logger.With("run", report.RunID)
	logger.Info("run starting", "modules", len(paths), "tests", e.selection.Len())

	scans := e.scanAll(ctx, paths, logger)
	if e.pluginID != "" && !exposes(scans, e.pluginID) {
		return nil, &RunError{
			Code:    ErrCodePluginNotFound,
			Message: fmt.Sprintf("no module exposes a plugin with id %q", e.pluginID),
		}
	}
	dups := duplicateIDs(scans)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.jobs)
	for i := range scans {
		g.Go(func() error {
			m, err := e.runModule(gctx, scans[i], dups[i], logger)
			report.Modules[i] = m
			return err
		})
	}
	err := g.Wait()
	report.FinishedAt = e.now()

	t := report.Tally()
	logger.Info("run finished",
		"pass", t.Pass, "fail", t.Fail, "warning", t.Warning, "skipped", t.Skipped,
		"crashed", t.Crashed, "timed_out", t.TimedOut, "setup_error", t.SetupError)
	return report, err
}

func (e *Engine) scanAll(ctx context.Context, paths []string, logger *slog.Logger) []moduleScan {
	scans := make([]moduleScan, len(paths))
	var g errgroup.Group
	g.SetLimit(e.jobs)
	for i, path := range paths {
		g.Go(func() error {
			res, err := e.exec.Scan(ctx, path)
			scans[i] = moduleScan{path: path, res: res, err: err}
			if err != nil {
				logger.Warn("module scan failed", "module", path, "error", err)
			} else {
				logger.Debug("module scanned", "module", path, "plugins", len(res.Descriptors))
			}
			return nil
		})
	}
	_ = g.Wait()
	return scans
}

func exposes(scans []moduleScan, id string) bool {
	for _, s := range scans {
		for _, d := range s.res.Descriptors {
			if d.ID == id {
				return true
			}
		}
	}
	return false
}

// duplicateIDs maps, per module, each plugin id that an earlier module
// already exposes to that earlier module's path.
func duplicateIDs(scans []moduleScan) []map[string]string {
	first := make(map[string]string)
	dups := make([]map[string]string, len(scans))
	for i, s := range scans {
		for _, d := range s.res.Descriptors {
			if path, ok := first[d.ID]; ok {
				if dups[i] == nil {
					dups[i] = make(map[string]string)
				}
				dups[i][d.ID] = path
				continue
			}
			first[d.ID] = s.path
		}
	}
	return dups
}

func (e *Engine) runModule(ctx context.Context, scan moduleScan, dups map[string]string, logger *slog.Logger) (result.ModuleReport, error) {
	m := result.ModuleReport{Path: scan.path}
	logger = logger.With("module", scan.path)
	libCases := e.selection.OfKind(registry.KindLibrary)
	pluginCases := e.selection.OfKind(registry.KindPlugin)

	if scan.err != nil {
		var setup *abi.SetupError
		switch {
		case errors.As(scan.err, &setup) && setup.Kind == abi.SetupIncompatible:
			m.LibraryOutcomes = skipAll(libCases, "The module was not tested: %v", scan.err)
		case ctx.Err() != nil:
			m.LibraryOutcomes = skipAll(libCases, "The run was cancelled.")
		default:
			m.SetupError = scan.err.Error()
			m.LibraryOutcomes = skipAll(libCases, "The module could not be set up.")
		}
		return m, nil
	}
	m.Version = scan.res.Version.String()

	var err error
	m.LibraryOutcomes, err = e.runCases(ctx, libCases, harness.Request{ModulePath: scan.path}, logger)
	if err != nil {
		return m, err
	}

	for _, d := range scan.res.Descriptors {
		if e.pluginID != "" && d.ID != e.pluginID {
			continue
		}
		pr := result.NewPluginReport(&d)
		plogger := logger.With("plugin", d.ID)
		switch first, dup := dups[d.ID]; {
		case dup:
			pr.Outcomes = setupFailed(pluginCases, "%s: plugin id %q is also exposed by %s",
				abi.SetupDuplicatePlugin, d.ID, first)
			plogger.Warn("duplicate plugin id", "first_module", first)
		case !d.Version.Compatible():
			pr.Outcomes = skipAll(pluginCases, "The plugin uses CLAP %s, which this host does not support.", d.Version)
		default:
			pr.Outcomes, err = e.runCases(ctx, pluginCases, harness.Request{ModulePath: scan.path, PluginID: d.ID}, plogger)
		}
		m.Plugins = append(m.Plugins, pr)
		if err != nil {
			return m, err
		}
	}
	return m, nil
}

// runCases runs cases sequentially with the module and plugin of base.
// After a setup error the remaining cases are skipped.
func (e *Engine) runCases(ctx context.Context, cases []registry.TestCase, base harness.Request, logger *slog.Logger) ([]result.Outcome, error) {
	outcomes := make([]result.Outcome, 0, len(cases))
	for i, tc := range cases {
		if ctx.Err() != nil {
			return append(outcomes, skipAll(cases[i:], "The run was cancelled.")...), nil
		}
		req := base
		req.TestID = tc.ID
		req.Trace = e.traceDir != ""

		tlogger := logger.With("test", tc.ID)
		out := e.exec.Run(ctx, req, func(stage string) {
			tlogger.Debug("progress", "stage", stage)
		})
		if out.TestID == "" {
			out.TestID = tc.ID
		}
		if out.Description == "" {
			out.Description = tc.Description
		}
		if err := e.writeTrace(req, &out); err != nil {
			outcomes = append(outcomes, out)
			return append(outcomes, skipAll(cases[i+1:], "The run was aborted.")...), err
		}
		tlogger.Info("test finished", "status", out.Status, "duration", out.Duration)
		outcomes = append(outcomes, out)

		if out.Status == result.StatusSetupError {
			return append(outcomes, skipAll(cases[i+1:], "Skipped after a setup error in %s.", tc.ID)...), nil
		}
	}
	return outcomes, nil
}

func skipAll(cases []registry.TestCase, format string, args ...any) []result.Outcome {
	outcomes := make([]result.Outcome, 0, len(cases))
	for _, tc := range cases {
		o := result.Skip(format, args...)
		o.TestID = tc.ID
		o.Description = tc.Description
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// setupFailed records the setup error on the first case and skips the rest.
func setupFailed(cases []registry.TestCase, format string, args ...any) []result.Outcome {
	if len(cases) == 0 {
		return nil
	}
	first := result.Outcome{
		TestID:      cases[0].ID,
		Description: cases[0].Description,
		Status:      result.StatusSetupError,
		Reason:      fmt.Sprintf(format, args...),
	}
	return append([]result.Outcome{first}, skipAll(cases[1:], "Skipped after a setup error in %s.", cases[0].ID)...)
}
