package trace

import "github.com/roach88/clapval/internal/abi"

// WrapHost records every callback a plugin makes into the host.
func WrapHost(h abi.Host, r *Recorder) abi.Host {
	if r == nil {
		return h
	}
	return &tracedHost{h: h, r: r}
}

type tracedHost struct {
	h abi.Host
	r *Recorder
}

func (t *tracedHost) Info() abi.HostInfo {
	return t.h.Info()
}

func (t *tracedHost) SupportsExtension(id string) bool {
	sp := t.r.Call(PluginToHost, "clap_host::get_extension", A("extension_id", id))
	ok := t.h.SupportsExtension(id)
	sp.Return(A("result", ok))
	return ok
}

func (t *tracedHost) call(name string, fn func(), args ...Arg) {
	sp := t.r.Call(PluginToHost, name, args...)
	fn()
	sp.Return()
}

func (t *tracedHost) RequestRestart() {
	t.call("clap_host::request_restart", t.h.RequestRestart)
}

func (t *tracedHost) RequestProcess() {
	t.call("clap_host::request_process", t.h.RequestProcess)
}

func (t *tracedHost) RequestCallback() {
	t.call("clap_host::request_callback", t.h.RequestCallback)
}

func (t *tracedHost) Log(severity abi.LogSeverity, msg string) {
	t.call("clap_host_log::log", func() { t.h.Log(severity, msg) }, A("severity", severity), A("message", msg))
}

func (t *tracedHost) IsMainThread() bool {
	sp := t.r.Call(PluginToHost, "clap_host_thread_check::is_main_thread")
	ok := t.h.IsMainThread()
	sp.Return(A("result", ok))
	return ok
}

func (t *tracedHost) IsAudioThread() bool {
	sp := t.r.Call(PluginToHost, "clap_host_thread_check::is_audio_thread")
	ok := t.h.IsAudioThread()
	sp.Return(A("result", ok))
	return ok
}

func (t *tracedHost) AudioPortsIsRescanFlagSupported(flag uint32) bool {
	sp := t.r.Call(PluginToHost, "clap_host_audio_ports::is_rescan_flag_supported", A("flag", flag))
	ok := t.h.AudioPortsIsRescanFlagSupported(flag)
	sp.Return(A("result", ok))
	return ok
}

func (t *tracedHost) AudioPortsRescan(flags uint32) {
	t.call("clap_host_audio_ports::rescan", func() { t.h.AudioPortsRescan(flags) }, A("flags", flags))
}

func (t *tracedHost) NotePortsSupportedDialects() uint32 {
	sp := t.r.Call(PluginToHost, "clap_host_note_ports::supported_dialects")
	d := t.h.NotePortsSupportedDialects()
	sp.Return(A("result", d))
	return d
}

func (t *tracedHost) NotePortsRescan(flags uint32) {
	t.call("clap_host_note_ports::rescan", func() { t.h.NotePortsRescan(flags) }, A("flags", flags))
}

func (t *tracedHost) ParamsRescan(flags uint32) {
	t.call("clap_host_params::rescan", func() { t.h.ParamsRescan(flags) }, A("flags", flags))
}

func (t *tracedHost) ParamsClear(paramID uint32, flags uint32) {
	t.call("clap_host_params::clear", func() { t.h.ParamsClear(paramID, flags) }, A("param_id", paramID), A("flags", flags))
}

func (t *tracedHost) ParamsRequestFlush() {
	t.call("clap_host_params::request_flush", t.h.ParamsRequestFlush)
}

func (t *tracedHost) StateMarkDirty() {
	t.call("clap_host_state::mark_dirty", t.h.StateMarkDirty)
}

func (t *tracedHost) LatencyChanged() {
	t.call("clap_host_latency::changed", t.h.LatencyChanged)
}

func (t *tracedHost) TailChanged() {
	t.call("clap_host_tail::changed", t.h.TailChanged)
}
