package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clapval/internal/abi"
	"github.com/roach88/clapval/internal/abi/abitest"
)

type stubHost struct{}

func (stubHost) Info() abi.HostInfo { return abi.HostInfo{Name: "stub"} }
func (stubHost) SupportsExtension(string) bool { return true }
func (stubHost) RequestRestart() {}
func (stubHost) RequestProcess() {}
func (stubHost) RequestCallback() {}
func (stubHost) Log(abi.LogSeverity, string) {}
func (stubHost) IsMainThread() bool { return true }
func (stubHost) IsAudioThread() bool { return false }
func (stubHost) AudioPortsIsRescanFlagSupported(uint32) bool { return true }
func (stubHost) AudioPortsRescan(uint32) {}
func (stubHost) NotePortsSupportedDialects() uint32 { return abi.NoteDialectCLAP }
func (stubHost) NotePortsRescan(uint32) {}
func (stubHost) ParamsRescan(uint32) {}
func (stubHost) ParamsClear(uint32, uint32) {}
func (stubHost) ParamsRequestFlush() {}
func (stubHost) StateMarkDirty() {}
func (stubHost) LatencyChanged() {}
func (stubHost) TailChanged() {}

func TestWrap_RecordsEveryCrossing(t *testing.T) {
	r := NewRecorder()
	lib, err := abitest.Standard().Open(abitest.GainPath)
	require.NoError(t, err)
	defer lib.Close()

	traced := WrapLibrary(lib, r)
	factory, ok := traced.Factory(abi.PluginFactoryID).(abi.PluginFactory)
	require.True(t, ok)

	plugin, err := factory.Create(WrapHost(stubHost{}, r), abitest.GainID)
	require.NoError(t, err)
	require.NotNil(t, plugin)
	require.True(t, plugin.Init())

	params, ok := abi.QueryExtension[abi.Params](plugin, abi.ExtParams)
	require.True(t, ok)
	assert.Equal(t, uint32(3), params.Count())

	latency, ok := abi.QueryExtension[abi.Latency](plugin, abi.ExtLatency)
	require.True(t, ok)
	assert.Equal(t, uint32(0), latency.Get())

	plugin.Destroy()

	events := r.Events()
	require.NoError(t, Validate(events, false))

	var names []string
	for _, ev := range events {
		if ev.Phase == PhaseCall {
			names = append(names, ev.Name)
		}
	}
	assert.Equal(t, []string{
		"clap_plugin_entry::get_factory",
		"clap_plugin_factory::create_plugin",
		"clap_plugin::init",
		"clap_host_thread_check::is_main_thread",
		"clap_plugin::get_extension",
		"clap_plugin_params::count",
		"clap_plugin::get_extension",
		"clap_plugin_latency::get",
		"clap_plugin::destroy",
	}, names)
	assert.Equal(t, len(names), Pairs(events))
}

func TestWrap_NilRecorderReturnsOriginal(t *testing.T) {
	lib, err := abitest.Standard().Open(abitest.GainPath)
	require.NoError(t, err)
	defer lib.Close()

	assert.Same(t, lib, WrapLibrary(lib, nil))
}
