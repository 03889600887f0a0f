package host

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/clapval/internal/abi"
	"github.com/roach88/clapval/internal/osthread"
	"github.com/roach88/clapval/internal/trace"
)

// Info identifies this host to plugins.
var Info = abi.HostInfo{
	Name:    "clapval",
	Vendor:  "clapval",
	URL:     "https://github.com/roach88/clapval",
	Version: "0.1.0",
}

// Option configures an Instance.
type Option func(*Instance)

// WithLogger sets the logger used for plugin log messages and host
// diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(i *Instance) {
		i.logger = l
	}
}

// WithRecorder records the callbacks the plugin makes into the host and
// names the main and audio threads. Calls into the plugin are recorded by
// passing New a factory wrapped with trace.WrapFactory (or obtained from a
// library wrapped with trace.WrapLibrary).
func WithRecorder(r *trace.Recorder) Option {
	return func(i *Instance) {
		i.recorder = r
	}
}

// WithObserver installs a function that receives the name of every
// lifecycle call before it is forwarded. Consecutive duplicates are
// collapsed.
func WithObserver(fn func(call string)) Option {
	return func(i *Instance) {
		i.observer = fn
	}
}

// Instance is one plugin instance driven by the host.
type Instance struct {
	pluginID string
	plugin   abi.Plugin
	logger   *slog.Logger
	recorder *trace.Recorder

	observer     func(string)
	lastObserved string

	status   atomic.Int32
	mainTID  uint64
	audioTID atomic.Uint64

	callbackRequested atomic.Bool
	restartRequested  atomic.Bool
	processRequested  atomic.Bool
	flushRequested    atomic.Bool

	mu          sync.Mutex
	callbackErr error
	callbacks   map[string]int
}

// New creates a plugin instance from factory. The calling goroutine becomes
// the main thread. A factory returning null is reported as a
// *ViolationError.
func New(factory abi.PluginFactory, pluginID string, opts ...Option) (*Instance, error) {
	i, err := Create(factory, pluginID, opts...)
	if err == nil && i == nil {
		return nil, violation(RuleReturnValue, "clap_plugin_factory::create_plugin() returned null for %q", pluginID)
	}
	return i, err
}

// Create is New for callers that expect the factory may return null. It
// returns a nil instance and nil error in that case.
func Create(factory abi.PluginFactory, pluginID string, opts ...Option) (*Instance, error) {
	i := &Instance{
		pluginID:  pluginID,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		mainTID:   osthread.ID(),
		callbacks: make(map[string]int),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.With("plugin_id", pluginID)
	i.recorder.NameThread(i.mainTID, "main")

	var h abi.Host = i
	if i.recorder != nil {
		h = trace.WrapHost(i, i.recorder)
	}

	i.observe("clap_plugin_factory::create_plugin()")
	p, err := factory.Create(h, pluginID)
	if err != nil {
		return nil, fmt.Errorf("create plugin %q: %w", pluginID, err)
	}
	if p == nil {
		return nil, i.CallbackError()
	}
	i.plugin = p
	i.setStatus(StatusCreated)

	if err := i.CallbackError(); err != nil {
		return i, err
	}
	return i, nil
}

// PluginFactory fetches the plugin factory from lib.
func PluginFactory(lib abi.Library) (abi.PluginFactory, error) {
	f, ok := lib.Factory(abi.PluginFactoryID).(abi.PluginFactory)
	if !ok {
		return nil, abi.NewSetupError(abi.SetupMissingFactory, lib.Path(), "module does not provide %s", abi.PluginFactoryID)
	}
	return f, nil
}

// ID returns the plugin id the instance was created for.
func (i *Instance) ID() string { return i.pluginID }

// Plugin returns the underlying plugin. Calls made through it bypass the
// state machine.
func (i *Instance) Plugin() abi.Plugin { return i.plugin }

// Status returns the current lifecycle status.
func (i *Instance) Status() Status {
	return Status(i.status.Load())
}

func (i *Instance) setStatus(s Status) {
	i.status.Store(int32(s))
}

func (i *Instance) observe(call string) {
	if i.observer == nil || call == i.lastObserved {
		return
	}
	i.lastObserved = call
	i.observer(call)
}

// expect verifies that call is valid in the current status and on the
// expected thread.
func (i *Instance) expect(call string, audio bool) error {
	if err := i.CallbackError(); err != nil {
		return err
	}
	if audio && !i.IsAudioThread() {
		return violation(RuleThread, "clap_plugin::%s() must be called from the audio thread", call)
	}
	if !audio && !i.IsMainThread() {
		return violation(RuleThread, "clap_plugin::%s() must be called from the main thread", call)
	}
	if s := i.Status(); !callAllowed(call, s) {
		return violation(RuleLifecycle, "clap_plugin::%s() called while the plugin is %s", call, s)
	}
	i.observe("clap_plugin::" + call + "()")
	return nil
}

// Init calls clap_plugin::init().
func (i *Instance) Init() error {
	if err := i.expect("init", false); err != nil {
		return err
	}
	if !i.plugin.Init() {
		return violation(RuleReturnValue, "clap_plugin::init() returned false")
	}
	i.setStatus(StatusInitialized)
	return i.CallbackError()
}

// Activate calls clap_plugin::activate(). latency.changed() is only
// accepted while this call is in progress.
func (i *Instance) Activate(sampleRate float64, minFrames, maxFrames uint32) error {
	if minFrames < 1 || maxFrames < minFrames {
		return fmt.Errorf("invalid activation frame range [%d, %d]", minFrames, maxFrames)
	}
	if err := i.expect("activate", false); err != nil {
		return err
	}
	prev := i.Status()
	i.setStatus(StatusActivating)
	if !i.plugin.Activate(sampleRate, minFrames, maxFrames) {
		i.setStatus(prev)
		return violation(RuleReturnValue, "clap_plugin::activate(%g, %d, %d) returned false", sampleRate, minFrames, maxFrames)
	}
	i.setStatus(StatusActivated)
	return i.CallbackError()
}

// Deactivate calls clap_plugin::deactivate().
func (i *Instance) Deactivate() error {
	if err := i.expect("deactivate", false); err != nil {
		return err
	}
	i.plugin.Deactivate()
	i.setStatus(StatusDeactivated)
	return i.CallbackError()
}

// Destroy calls clap_plugin::destroy(). The instance is unusable afterwards.
func (i *Instance) Destroy() error {
	if err := i.expect("destroy", false); err != nil {
		return err
	}
	i.plugin.Destroy()
	i.setStatus(StatusDestroyed)
	return i.CallbackError()
}

// Close tears the instance down from whatever status it is in, walking the
// remaining lifecycle steps in order: stop_processing() on an audio thread,
// deactivate(), destroy(). Latched callback errors do not stop the
// teardown; callers that care check CallbackError first.
func (i *Instance) Close() {
	switch i.Status() {
	case StatusDestroyed, StatusUnloaded:
		return
	case StatusProcessing:
		i.stopOnAudioThread()
	}
	if i.Status() == StatusActivated {
		i.observe("clap_plugin::deactivate()")
		i.plugin.Deactivate()
		i.setStatus(StatusDeactivated)
	}
	i.observe("clap_plugin::destroy()")
	i.plugin.Destroy()
	i.setStatus(StatusDestroyed)
}

// PollMainThread runs clap_plugin::on_main_thread() if the plugin asked for
// a callback since the last poll.
func (i *Instance) PollMainThread() {
	if !i.callbackRequested.Swap(false) {
		return
	}
	switch i.Status() {
	case StatusUnloaded, StatusDestroyed:
		return
	}
	i.observe("clap_plugin::on_main_thread()")
	i.plugin.OnMainThread()
}

// CallbackError returns the first contract violation seen in a host
// callback, if any.
func (i *Instance) CallbackError() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.callbackErr
}

// CallbackCount returns how often the named host callback was invoked.
func (i *Instance) CallbackCount(name string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.callbacks[name]
}

// RestartRequested reports and clears a pending request_restart().
func (i *Instance) RestartRequested() bool {
	return i.restartRequested.Swap(false)
}

// ProcessRequested reports and clears a pending request_process().
func (i *Instance) ProcessRequested() bool {
	return i.processRequested.Swap(false)
}

// FlushRequested reports and clears a pending params.request_flush().
func (i *Instance) FlushRequested() bool {
	return i.flushRequested.Swap(false)
}
