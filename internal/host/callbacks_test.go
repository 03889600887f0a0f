package host

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clapval/internal/abi"
	"github.com/roach88/clapval/internal/abi/abitest"
)

type hookPlugin struct {
	abi.Plugin
	host      abi.Host
	onInit    func(h abi.Host)
	onProcess func(h abi.Host)
	onMain    func(h abi.Host)
}

func (p *hookPlugin) Init() bool {
	ok := p.Plugin.Init()
	if p.onInit != nil {
		p.onInit(p.host)
	}
	return ok
}

func (p *hookPlugin) Process(d *abi.ProcessData) abi.ProcessStatus {
	if p.onProcess != nil {
		p.onProcess(p.host)
	}
	return p.Plugin.Process(d)
}

func (p *hookPlugin) OnMainThread() {
	if p.onMain != nil {
		p.onMain(p.host)
	}
}

type hookFactory struct {
	abi.PluginFactory
	onCreate func(h abi.Host)
	plugin   *hookPlugin
}

func (f *hookFactory) Create(h abi.Host, id string) (abi.Plugin, error) {
	if f.onCreate != nil {
		f.onCreate(h)
	}
	inner, err := f.PluginFactory.Create(h, id)
	if err != nil || inner == nil {
		return inner, err
	}
	f.plugin.Plugin = inner
	f.plugin.host = h
	return f.plugin, nil
}

func hooked(t *testing.T, p *hookPlugin) *hookFactory {
	return &hookFactory{PluginFactory: openFactory(t, abitest.GainPath), plugin: p}
}

func activeInstance(t *testing.T, f abi.PluginFactory) *Instance {
	t.Helper()
	inst, err := New(f, abitest.GainID)
	require.NoError(t, err)
	t.Cleanup(inst.Close)
	require.NoError(t, inst.Init())
	require.NoError(t, inst.Activate(44100, 1, 64))
	return inst
}

func processOnce(inst *Instance) error {
	return inst.OnAudioThread(func(at *AudioThread) error {
		if err := at.StartProcessing(); err != nil {
			return err
		}
		_, err := at.Process(stereoData(64))
		return err
	})
}

func TestCallbacks_DuringCreateIsViolation(t *testing.T) {
	lockMain(t)
	f := hooked(t, &hookPlugin{})
	f.onCreate = func(h abi.Host) { h.RequestRestart() }

	inst, err := New(f, abitest.GainID)
	require.Error(t, err)
	var ve *ViolationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, RuleCallback, ve.Rule)
	require.NotNil(t, inst)
	inst.Close()
}

func TestCallbacks_NullPluginIsViolation(t *testing.T) {
	lockMain(t)
	_, err := New(openFactory(t, abitest.GainPath), "dev.clapval.nope")
	assert.True(t, IsViolation(err))
}

func TestCallbacks_RequestCallbackRunsOnMainThread(t *testing.T) {
	lockMain(t)
	var onMain atomic.Bool
	var wasMain atomic.Bool
	p := &hookPlugin{
		onProcess: func(h abi.Host) { h.RequestCallback() },
		onMain: func(h abi.Host) {
			onMain.Store(true)
			wasMain.Store(h.IsMainThread() && !h.IsAudioThread())
		},
	}
	inst := activeInstance(t, hooked(t, p))

	require.NoError(t, processOnce(inst))
	assert.True(t, onMain.Load(), "on_main_thread() must be delivered")
	assert.True(t, wasMain.Load())
	assert.Equal(t, 1, inst.CallbackCount("clap_host::request_callback"))
}

func TestCallbacks_RequestProcessIsLatched(t *testing.T) {
	lockMain(t)
	p := &hookPlugin{onProcess: func(h abi.Host) { h.RequestProcess() }}
	inst := activeInstance(t, hooked(t, p))

	assert.False(t, inst.ProcessRequested())
	require.NoError(t, processOnce(inst))
	assert.True(t, inst.ProcessRequested())
	assert.False(t, inst.ProcessRequested(), "reading the request clears it")
}

func TestCallbacks_ThreadChecksAnswerTruthfully(t *testing.T) {
	lockMain(t)
	var inInit, inProcess [2]bool
	p := &hookPlugin{
		onInit:    func(h abi.Host) { inInit = [2]bool{h.IsMainThread(), h.IsAudioThread()} },
		onProcess: func(h abi.Host) { inProcess = [2]bool{h.IsMainThread(), h.IsAudioThread()} },
	}
	inst := activeInstance(t, hooked(t, p))
	require.NoError(t, processOnce(inst))

	assert.Equal(t, [2]bool{true, false}, inInit)
	assert.Equal(t, [2]bool{false, true}, inProcess)
}

func TestCallbacks_StatusRules(t *testing.T) {
	tests := []struct {
		name      string
		onProcess func(h abi.Host)
		onInit    func(h abi.Host)
		rule      Rule
	}{
		{
			name:      "request_flush from audio thread",
			onProcess: func(h abi.Host) { h.ParamsRequestFlush() },
			rule:      RuleThread,
		},
		{
			name:      "state dirty from audio thread",
			onProcess: func(h abi.Host) { h.StateMarkDirty() },
			rule:      RuleThread,
		},
		{
			name:   "latency changed outside activate",
			onInit: func(h abi.Host) { h.LatencyChanged() },
			rule:   RuleCallback,
		},
		{
			name:      "plugin reports misbehaviour",
			onProcess: func(h abi.Host) { h.Log(abi.LogPluginMisbehaving, "oops") },
			rule:      RuleMisbehaving,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lockMain(t)
			f := hooked(t, &hookPlugin{onInit: tt.onInit, onProcess: tt.onProcess})
			inst, err := New(f, abitest.GainID)
			require.NoError(t, err)
			t.Cleanup(inst.Close)

			err = inst.Init()
			if err == nil {
				require.NoError(t, inst.Activate(44100, 1, 64))
				err = processOnce(inst)
			}
			var ve *ViolationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.rule, ve.Rule)
		})
	}
}

func TestCallbacks_RescanWhileActive(t *testing.T) {
	lockMain(t)
	inst := activeInstance(t, openFactory(t, abitest.GainPath))

	inst.AudioPortsRescan(abi.AudioPortsRescanNames)
	require.NoError(t, inst.CallbackError(), "renaming ports is allowed while active")

	inst.ParamsRescan(abi.ParamRescanAll)
	var ve *ViolationError
	require.ErrorAs(t, inst.CallbackError(), &ve)
	assert.Equal(t, RuleCallback, ve.Rule)
}

func TestCallbacks_FirstErrorWins(t *testing.T) {
	lockMain(t)
	inst := activeInstance(t, openFactory(t, abitest.GainPath))

	inst.NotePortsRescan(abi.NotePortsRescanAll)
	first := inst.CallbackError()
	require.Error(t, first)

	inst.ParamsRescan(abi.ParamRescanAll)
	assert.Same(t, first, inst.CallbackError())
}

func TestCallbacks_AfterDestroy(t *testing.T) {
	lockMain(t)
	inst, err := New(openFactory(t, abitest.GainPath), abitest.GainID)
	require.NoError(t, err)
	require.NoError(t, inst.Destroy())

	inst.RequestProcess()
	assert.True(t, IsViolation(inst.CallbackError()))
}
