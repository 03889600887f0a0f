package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/roach88/clapval/internal/abi"
	"github.com/roach88/clapval/internal/host"
	"github.com/roach88/clapval/internal/registry"
	"github.com/roach88/clapval/internal/result"
	"github.com/roach88/clapval/internal/trace"
)

// Request identifies a single test execution. PluginID is empty for library
// tests.
type Request struct {
	ModulePath string `msgpack:"module_path" json:"module_path"`
	PluginID   string `msgpack:"plugin_id" json:"plugin_id,omitempty"`
	TestID     string `msgpack:"test_id" json:"test_id"`
	Trace      bool   `msgpack:"trace" json:"trace,omitempty"`
}

// Label returns a short human readable name for the request.
func (r Request) Label() string {
	if r.PluginID == "" {
		return r.ModulePath + " " + r.TestID
	}
	return r.PluginID + " " + r.TestID
}

// ScanResult describes the plugins exposed by a module.
type ScanResult struct {
	Path        string           `msgpack:"path" json:"path"`
	Version     abi.Version      `msgpack:"version" json:"version"`
	Descriptors []abi.Descriptor `msgpack:"descriptors" json:"descriptors"`
}

// ProgressFunc receives a short description of the stage a test reached.
// Workers forward these to the parent so a crash can be attributed.
type ProgressFunc func(stage string)

// Option configures a Suite.
type Option func(*Suite)

// WithLogger sets the logger used for plugin log output and harness
// diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Suite) {
		s.logger = l
	}
}

// WithTraceOptions passes options to every trace recorder the suite
// creates.
func WithTraceOptions(opts ...trace.Option) Option {
	return func(s *Suite) {
		s.traceOpts = append(s.traceOpts, opts...)
	}
}

// WithSeed sets the seed of the pseudo-random generator used for noise,
// notes and parameter values.
func WithSeed(seed uint64) Option {
	return func(s *Suite) {
		s.seed = seed
	}
}

// Suite runs validator tests against modules opened through a loader.
type Suite struct {
	loader    abi.Loader
	logger    *slog.Logger
	traceOpts []trace.Option
	seed      uint64
}

// NewSuite creates a suite that opens modules with loader.
func NewSuite(loader abi.Loader, opts ...Option) *Suite {
	s := &Suite{
		loader: loader,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		seed:   defaultSeed,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the catalogue of tests the suite can run.
func (s *Suite) Registry() *registry.Registry {
	return Registry()
}

// Scan opens the module at path, verifies its ABI version, and lists the
// plugins its factory exposes. Duplicate plugin ids within the module are a
// setup error.
func (s *Suite) Scan(ctx context.Context, path string) (ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return ScanResult{}, err
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	lib, err := openLibrary(s.loader, path)
	if err != nil {
		return ScanResult{}, err
	}
	defer lib.Close()

	factory, err := host.PluginFactory(lib)
	if err != nil {
		return ScanResult{}, err
	}
	res := ScanResult{Path: path, Version: lib.Version()}
	seen := make(map[string]bool)
	for idx := uint32(0); idx < factory.Count(); idx++ {
		d := factory.Descriptor(idx)
		if d == nil {
			return ScanResult{}, abi.NewSetupError(abi.SetupLoadFailed, path,
				"clap_plugin_factory::get_plugin_descriptor(%d) returned null", idx)
		}
		if seen[d.ID] {
			return ScanResult{}, abi.NewSetupError(abi.SetupDuplicatePlugin, path, "plugin id %q is exposed twice", d.ID)
		}
		seen[d.ID] = true
		res.Descriptors = append(res.Descriptors, *d)
	}
	s.logger.Debug("scanned module", "path", path, "clap_version", res.Version.String(), "plugins", len(res.Descriptors))
	return res, nil
}

// Execute runs one test on the calling goroutine and returns its outcome.
// It never panics: panics from the test body are reported as crashed
// outcomes with the last traced call as context.
func (s *Suite) Execute(ctx context.Context, req Request, progress ProgressFunc) (out result.Outcome) {
	tc, ok := Registry().Lookup(req.TestID)
	if !ok {
		return result.Outcome{
			TestID: req.TestID,
			Status: result.StatusSetupError,
			Reason: fmt.Sprintf("unknown test %q", req.TestID),
		}
	}
	if tc.Kind == registry.KindPlugin && req.PluginID == "" {
		return result.Outcome{
			TestID: req.TestID,
			Status: result.StatusSetupError,
			Reason: "plugin test requested without a plugin id",
		}
	}
	if progress == nil {
		progress = func(string) {}
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var rec *trace.Recorder
	if req.Trace {
		rec = trace.NewRecorder(s.traceOpts...)
	}
	env := newEnv(ctx, s, req, rec, progress)
	start := time.Now()
	logger := s.logger.With("test_id", req.TestID, "module", req.ModulePath)

	defer func() {
		if r := recover(); r != nil {
			out = crashedOutcome(r, rec)
			logger.Error("test body panicked", "panic", fmt.Sprint(r))
		}
		env.close()
		out.TestID = tc.ID
		out.Description = tc.Description
		out.Duration = time.Since(start)
		if rec != nil {
			doc := rec.Document(req.Label(), os.Getpid())
			out.Trace = &doc
		}
		logger.Debug("test finished", "status", string(out.Status), "duration", out.Duration)
	}()

	if err := ctx.Err(); err != nil {
		return result.Skip("run cancelled: %v", err)
	}
	progress("start " + tc.ID)
	return bodies[tc.ID](env)
}

// crashedOutcome turns a recovered panic into a crashed outcome.
func crashedOutcome(r any, rec *trace.Recorder) result.Outcome {
	out := result.Outcome{Status: result.StatusCrashed}
	switch v := r.(type) {
	case *host.PanicError:
		out.Reason = fmt.Sprintf("the plugin panicked on the audio thread: %v", v.Value)
		out.Diagnostic = string(v.Stack)
	default:
		out.Reason = fmt.Sprintf("the plugin panicked: %v", v)
	}
	if last, ok := rec.Last(); ok {
		out.Reason += fmt.Sprintf(" (last call: %s %s)", last.Phase, last.Name)
	}
	return out
}

// openLibrary opens a module and rejects incompatible ABI versions.
func openLibrary(loader abi.Loader, path string) (abi.Library, error) {
	lib, err := loader.Open(path)
	if err != nil {
		return nil, err
	}
	if v := lib.Version(); !v.Compatible() {
		_ = lib.Close()
		return nil, abi.NewSetupError(abi.SetupIncompatible, path, "module uses CLAP %s", v)
	}
	return lib, nil
}
