package harness

import (
	"context"
	"errors"
	"math/rand/v2"

	"github.com/roach88/clapval/internal/abi"
	"github.com/roach88/clapval/internal/host"
	"github.com/roach88/clapval/internal/result"
	"github.com/roach88/clapval/internal/trace"
)

const defaultSeed = 0x636c6170

// Env is the execution context of one test body. It owns every library and
// plugin instance the body opens and releases them when the test ends.
type Env struct {
	ctx      context.Context
	suite    *Suite
	req      Request
	rec      *trace.Recorder
	progress ProgressFunc
	rng      *rand.Rand

	lib       abi.Library
	instances []*host.Instance
}

func newEnv(ctx context.Context, s *Suite, req Request, rec *trace.Recorder, progress ProgressFunc) *Env {
	return &Env{
		ctx:      ctx,
		suite:    s,
		req:      req,
		rec:      rec,
		progress: progress,
		rng:      newRand(s.seed),
	}
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// step reports progress to the parent.
func (e *Env) step(stage string) {
	e.progress(stage)
}

// library opens the module under test once per test.
func (e *Env) library() (abi.Library, error) {
	if e.lib != nil {
		return e.lib, nil
	}
	lib, err := openLibrary(e.suite.loader, e.req.ModulePath)
	if err != nil {
		return nil, err
	}
	e.lib = trace.WrapLibrary(lib, e.rec)
	return e.lib, nil
}

// factory returns the module's plugin factory.
func (e *Env) factory() (abi.PluginFactory, error) {
	lib, err := e.library()
	if err != nil {
		return nil, err
	}
	return host.PluginFactory(lib)
}

func (e *Env) hostOptions() []host.Option {
	return []host.Option{
		host.WithLogger(e.suite.logger),
		host.WithRecorder(e.rec),
	}
}

// descriptor looks up the factory descriptor of the plugin under test.
func (e *Env) descriptor(factory abi.PluginFactory) (*abi.Descriptor, error) {
	for idx := uint32(0); idx < factory.Count(); idx++ {
		if d := factory.Descriptor(idx); d != nil && d.ID == e.req.PluginID {
			return d, nil
		}
	}
	return nil, abi.NewSetupError(abi.SetupUnknownPlugin, e.req.ModulePath, "the module does not expose plugin %q", e.req.PluginID)
}

// newInstance creates a fresh instance of the plugin under test.
func (e *Env) newInstance() (*host.Instance, error) {
	factory, err := e.factory()
	if err != nil {
		return nil, err
	}
	if _, err := e.descriptor(factory); err != nil {
		return nil, err
	}
	e.step("create " + e.req.PluginID)
	inst, err := host.New(factory, e.req.PluginID, e.hostOptions()...)
	if inst != nil {
		e.instances = append(e.instances, inst)
	}
	return inst, err
}

// initInstance creates an instance and calls init() on it.
func (e *Env) initInstance() (*host.Instance, error) {
	inst, err := e.newInstance()
	if err != nil {
		return nil, err
	}
	e.step("init")
	if err := inst.Init(); err != nil {
		return nil, err
	}
	return inst, nil
}

// release destroys an instance before the test ends.
func (e *Env) release(inst *host.Instance) error {
	for idx, have := range e.instances {
		if have == inst {
			e.instances = append(e.instances[:idx], e.instances[idx+1:]...)
			break
		}
	}
	if inst.Status() == host.StatusActivated {
		if err := inst.Deactivate(); err != nil {
			inst.Close()
			return err
		}
	}
	if err := inst.Destroy(); err != nil {
		inst.Close()
		return err
	}
	return nil
}

// close tears down remaining instances, then the library. A panic during
// teardown is swallowed since the outcome was already decided.
func (e *Env) close() {
	defer func() { _ = recover() }()
	for idx := len(e.instances) - 1; idx >= 0; idx-- {
		e.instances[idx].Close()
	}
	e.instances = nil
	if e.lib != nil {
		_ = e.lib.Close()
		e.lib = nil
	}
}

// outcomeFor maps an error from the host shim or the test body to an
// outcome. Setup errors keep their class; everything else is a failure.
func outcomeFor(err error) result.Outcome {
	var setup *abi.SetupError
	if errors.As(err, &setup) {
		return result.Outcome{Status: result.StatusSetupError, Reason: setup.Error()}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return result.Skip("run cancelled: %v", err)
	}
	return result.Fail("%v", err)
}
