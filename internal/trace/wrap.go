package trace

import (
	"github.com/roach88/clapval/internal/abi"
)

// WrapLibrary records get_factory() calls and wraps the returned plugin
// factory.
func WrapLibrary(lib abi.Library, r *Recorder) abi.Library {
	if r == nil {
		return lib
	}
	return &tracedLibrary{Library: lib, r: r}
}

type tracedLibrary struct {
	abi.Library
	r *Recorder
}

func (l *tracedLibrary) Factory(id string) any {
	sp := l.r.Call(HostToPlugin, "clap_plugin_entry::get_factory", A("factory_id", id))
	f := l.Library.Factory(id)
	sp.Return(A("result", f != nil))
	if pf, ok := f.(abi.PluginFactory); ok {
		return WrapFactory(pf, l.r)
	}
	return f
}

// WrapFactory records plugin factory calls.
func WrapFactory(f abi.PluginFactory, r *Recorder) abi.PluginFactory {
	if r == nil {
		return f
	}
	return &tracedFactory{f: f, r: r}
}

type tracedFactory struct {
	f abi.PluginFactory
	r *Recorder
}

func (t *tracedFactory) Count() uint32 {
	sp := t.r.Call(HostToPlugin, "clap_plugin_factory::get_plugin_count")
	n := t.f.Count()
	sp.Return(A("result", n))
	return n
}

func (t *tracedFactory) Descriptor(index uint32) *abi.Descriptor {
	sp := t.r.Call(HostToPlugin, "clap_plugin_factory::get_plugin_descriptor", A("index", index))
	d := t.f.Descriptor(index)
	if d == nil {
		sp.Return(A("result", "null"))
	} else {
		sp.Return(A("result", d.ID))
	}
	return d
}

// Create passes the traced host through so callbacks made during creation
// are recorded too.
func (t *tracedFactory) Create(host abi.Host, pluginID string) (abi.Plugin, error) {
	sp := t.r.Call(HostToPlugin, "clap_plugin_factory::create_plugin", A("plugin_id", pluginID))
	p, err := t.f.Create(host, pluginID)
	sp.Return(A("result", p != nil))
	if p == nil || err != nil {
		return p, err
	}
	return WrapPlugin(p, t.r), nil
}

// WrapPlugin records every clap_plugin call and the calls into the
// extensions it returns.
func WrapPlugin(p abi.Plugin, r *Recorder) abi.Plugin {
	if r == nil {
		return p
	}
	return &tracedPlugin{p: p, r: r}
}

type tracedPlugin struct {
	p abi.Plugin
	r *Recorder
}

func (t *tracedPlugin) Descriptor() *abi.Descriptor {
	return t.p.Descriptor()
}

func (t *tracedPlugin) Init() bool {
	sp := t.r.Call(HostToPlugin, "clap_plugin::init")
	ok := t.p.Init()
	sp.Return(A("result", ok))
	return ok
}

func (t *tracedPlugin) Destroy() {
	sp := t.r.Call(HostToPlugin, "clap_plugin::destroy")
	t.p.Destroy()
	sp.Return()
}

func (t *tracedPlugin) Activate(sampleRate float64, minFrames, maxFrames uint32) bool {
	sp := t.r.Call(HostToPlugin, "clap_plugin::activate",
		A("sample_rate", sampleRate), A("min_frames", minFrames), A("max_frames", maxFrames))
	ok := t.p.Activate(sampleRate, minFrames, maxFrames)
	sp.Return(A("result", ok))
	return ok
}

func (t *tracedPlugin) Deactivate() {
	sp := t.r.Call(HostToPlugin, "clap_plugin::deactivate")
	t.p.Deactivate()
	sp.Return()
}

func (t *tracedPlugin) StartProcessing() bool {
	sp := t.r.Call(HostToPlugin, "clap_plugin::start_processing")
	ok := t.p.StartProcessing()
	sp.Return(A("result", ok))
	return ok
}

func (t *tracedPlugin) StopProcessing() {
	sp := t.r.Call(HostToPlugin, "clap_plugin::stop_processing")
	t.p.StopProcessing()
	sp.Return()
}

func (t *tracedPlugin) Reset() {
	sp := t.r.Call(HostToPlugin, "clap_plugin::reset")
	t.p.Reset()
	sp.Return()
}

func (t *tracedPlugin) Process(data *abi.ProcessData) abi.ProcessStatus {
	sp := t.r.Call(HostToPlugin, "clap_plugin::process",
		A("frames", data.FramesCount), A("in_events", data.InEvents.Len()), A("transport", data.Transport != nil))
	status := t.p.Process(data)
	sp.Return(A("result", status), A("out_events", data.OutEvents.Len()))
	return status
}

func (t *tracedPlugin) Extension(id string) any {
	sp := t.r.Call(HostToPlugin, "clap_plugin::get_extension", A("extension_id", id))
	ext := t.p.Extension(id)
	sp.Return(A("result", ext != nil))
	return wrapExtension(id, ext, t.r)
}

func (t *tracedPlugin) OnMainThread() {
	sp := t.r.Call(HostToPlugin, "clap_plugin::on_main_thread")
	t.p.OnMainThread()
	sp.Return()
}

// wrapExtension dispatches on the id as well as the type: latency and tail
// share a method set.
func wrapExtension(id string, ext any, r *Recorder) any {
	switch id {
	case abi.ExtAudioPorts:
		if e, ok := ext.(abi.AudioPorts); ok {
			return tracedAudioPorts{e, r}
		}
	case abi.ExtNotePorts:
		if e, ok := ext.(abi.NotePorts); ok {
			return tracedNotePorts{e, r}
		}
	case abi.ExtParams:
		if e, ok := ext.(abi.Params); ok {
			return tracedParams{e, r}
		}
	case abi.ExtState:
		if e, ok := ext.(abi.State); ok {
			return tracedState{e, r}
		}
	case abi.ExtLatency:
		if e, ok := ext.(abi.Latency); ok {
			return tracedLatency{e, r}
		}
	case abi.ExtTail:
		if e, ok := ext.(abi.Tail); ok {
			return tracedTail{e, r}
		}
	}
	return ext
}

type tracedAudioPorts struct {
	e abi.AudioPorts
	r *Recorder
}

func (t tracedAudioPorts) Count(isInput bool) uint32 {
	sp := t.r.Call(HostToPlugin, "clap_plugin_audio_ports::count", A("is_input", isInput))
	n := t.e.Count(isInput)
	sp.Return(A("result", n))
	return n
}

func (t tracedAudioPorts) Get(index uint32, isInput bool) (abi.AudioPortInfo, bool) {
	sp := t.r.Call(HostToPlugin, "clap_plugin_audio_ports::get", A("index", index), A("is_input", isInput))
	info, ok := t.e.Get(index, isInput)
	sp.Return(A("result", ok), A("channels", info.ChannelCount))
	return info, ok
}

type tracedNotePorts struct {
	e abi.NotePorts
	r *Recorder
}

func (t tracedNotePorts) Count(isInput bool) uint32 {
	sp := t.r.Call(HostToPlugin, "clap_plugin_note_ports::count", A("is_input", isInput))
	n := t.e.Count(isInput)
	sp.Return(A("result", n))
	return n
}

func (t tracedNotePorts) Get(index uint32, isInput bool) (abi.NotePortInfo, bool) {
	sp := t.r.Call(HostToPlugin, "clap_plugin_note_ports::get", A("index", index), A("is_input", isInput))
	info, ok := t.e.Get(index, isInput)
	sp.Return(A("result", ok))
	return info, ok
}

type tracedParams struct {
	e abi.Params
	r *Recorder
}

func (t tracedParams) Count() uint32 {
	sp := t.r.Call(HostToPlugin, "clap_plugin_params::count")
	n := t.e.Count()
	sp.Return(A("result", n))
	return n
}

func (t tracedParams) Info(index uint32) (abi.ParamInfo, bool) {
	sp := t.r.Call(HostToPlugin, "clap_plugin_params::get_info", A("index", index))
	info, ok := t.e.Info(index)
	sp.Return(A("result", ok), A("param_id", info.ID))
	return info, ok
}

func (t tracedParams) Value(paramID uint32) (float64, bool) {
	sp := t.r.Call(HostToPlugin, "clap_plugin_params::get_value", A("param_id", paramID))
	v, ok := t.e.Value(paramID)
	sp.Return(A("result", ok), A("value", v))
	return v, ok
}

func (t tracedParams) ValueToText(paramID uint32, value float64) (string, bool) {
	sp := t.r.Call(HostToPlugin, "clap_plugin_params::value_to_text", A("param_id", paramID), A("value", value))
	text, ok := t.e.ValueToText(paramID, value)
	sp.Return(A("result", ok), A("text", text))
	return text, ok
}

func (t tracedParams) TextToValue(paramID uint32, text string) (float64, bool) {
	sp := t.r.Call(HostToPlugin, "clap_plugin_params::text_to_value", A("param_id", paramID), A("text", text))
	v, ok := t.e.TextToValue(paramID, text)
	sp.Return(A("result", ok), A("value", v))
	return v, ok
}

func (t tracedParams) Flush(in *abi.EventList, out *abi.EventList) {
	sp := t.r.Call(HostToPlugin, "clap_plugin_params::flush", A("in_events", in.Len()))
	t.e.Flush(in, out)
	sp.Return(A("out_events", out.Len()))
}

type tracedState struct {
	e abi.State
	r *Recorder
}

func (t tracedState) Save(out abi.OutputStream) bool {
	sp := t.r.Call(HostToPlugin, "clap_plugin_state::save")
	ok := t.e.Save(tracedOutput{out, t.r})
	sp.Return(A("result", ok))
	return ok
}

func (t tracedState) Load(in abi.InputStream) bool {
	sp := t.r.Call(HostToPlugin, "clap_plugin_state::load")
	ok := t.e.Load(tracedInput{in, t.r})
	sp.Return(A("result", ok))
	return ok
}

type tracedOutput struct {
	s abi.OutputStream
	r *Recorder
}

func (t tracedOutput) Write(p []byte) int64 {
	sp := t.r.Call(PluginToHost, "clap_ostream::write", A("size", len(p)))
	n := t.s.Write(p)
	sp.Return(A("result", n))
	return n
}

type tracedInput struct {
	s abi.InputStream
	r *Recorder
}

func (t tracedInput) Read(p []byte) int64 {
	sp := t.r.Call(PluginToHost, "clap_istream::read", A("size", len(p)))
	n := t.s.Read(p)
	sp.Return(A("result", n))
	return n
}

type tracedLatency struct {
	e abi.Latency
	r *Recorder
}

func (t tracedLatency) Get() uint32 {
	sp := t.r.Call(HostToPlugin, "clap_plugin_latency::get")
	n := t.e.Get()
	sp.Return(A("result", n))
	return n
}

type tracedTail struct {
	e abi.Tail
	r *Recorder
}

func (t tracedTail) Get() uint32 {
	sp := t.r.Call(HostToPlugin, "clap_plugin_tail::get")
	n := t.e.Get()
	sp.Return(A("result", n))
	return n
}
