package abi

// Loader opens plugin modules. Open runs the entry point's init() and must
// be paired with Library.Close.
type Loader interface {
	Open(path string) (Library, error)
}

// Library is a loaded module with an initialized entry point.
type Library interface {
	// Path is the path the module was loaded from.
	Path() string
	// Version is the ABI version reported by the entry point.
	Version() Version
	// Factory calls clap_plugin_entry::get_factory(). It returns a
	// PluginFactory for PluginFactoryID, an opaque non-nil value for other
	// known factories and nil when the module does not provide one.
	Factory(id string) any
	// Close calls deinit() and unloads the module.
	Close() error
}

// PluginFactory is a clap_plugin_factory_t.
type PluginFactory interface {
	Count() uint32
	// Descriptor returns nil when the factory returns a null descriptor.
	Descriptor(index uint32) *Descriptor
	// Create returns a nil Plugin and a nil error when the factory returns
	// a null pointer.
	Create(host Host, pluginID string) (Plugin, error)
}

// Plugin is a clap_plugin_t. Method names follow the C function table.
// Callers are responsible for honouring the lifecycle and threading rules;
// internal/host enforces them.
type Plugin interface {
	Descriptor() *Descriptor
	Init() bool
	Destroy()
	Activate(sampleRate float64, minFrames, maxFrames uint32) bool
	Deactivate()
	StartProcessing() bool
	StopProcessing()
	Reset()
	Process(data *ProcessData) ProcessStatus
	// Extension returns nil when the plugin does not implement id. Known
	// extensions are returned as the matching interface from this package.
	Extension(id string) any
	OnMainThread()
}

// Host is the callback surface a plugin sees through clap_host_t and the host
// extensions. Implementations must be safe for concurrent use: plugins call
// these from any thread.
type Host interface {
	Info() HostInfo
	// SupportsExtension answers clap_host::get_extension().
	SupportsExtension(id string) bool
	RequestRestart()
	RequestProcess()
	RequestCallback()

	Log(severity LogSeverity, msg string)
	IsMainThread() bool
	IsAudioThread() bool

	AudioPortsIsRescanFlagSupported(flag uint32) bool
	AudioPortsRescan(flags uint32)
	NotePortsSupportedDialects() uint32
	NotePortsRescan(flags uint32)
	ParamsRescan(flags uint32)
	ParamsClear(paramID uint32, flags uint32)
	ParamsRequestFlush()
	StateMarkDirty()
	LatencyChanged()
	TailChanged()
}

// AudioPorts is clap_plugin_audio_ports_t.
type AudioPorts interface {
	Count(isInput bool) uint32
	Get(index uint32, isInput bool) (AudioPortInfo, bool)
}

// NotePorts is clap_plugin_note_ports_t.
type NotePorts interface {
	Count(isInput bool) uint32
	Get(index uint32, isInput bool) (NotePortInfo, bool)
}

// Params is clap_plugin_params_t.
type Params interface {
	Count() uint32
	Info(index uint32) (ParamInfo, bool)
	Value(paramID uint32) (float64, bool)
	ValueToText(paramID uint32, value float64) (string, bool)
	TextToValue(paramID uint32, text string) (float64, bool)
	Flush(in *EventList, out *EventList)
}

// InputStream is clap_istream_t. Read returns the number of bytes read, 0 at
// end of stream and a negative value on error.
type InputStream interface {
	Read(p []byte) int64
}

// OutputStream is clap_ostream_t. Write returns the number of bytes written
// or a negative value on error.
type OutputStream interface {
	Write(p []byte) int64
}

// State is clap_plugin_state_t.
type State interface {
	Save(out OutputStream) bool
	Load(in InputStream) bool
}

// Latency is clap_plugin_latency_t.
type Latency interface {
	Get() uint32
}

// Tail is clap_plugin_tail_t.
type Tail interface {
	Get() uint32
}

// QueryExtension looks up extension id on p and returns it as T. The second
// result is false when the plugin returns null or an unexpected type.
func QueryExtension[T any](p Plugin, id string) (T, bool) {
	var zero T
	ext := p.Extension(id)
	if ext == nil {
		return zero, false
	}
	typed, ok := ext.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
