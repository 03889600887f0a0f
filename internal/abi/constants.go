package abi

import "math"

// Version of the ABI the host implements.
var HostVersion = Version{Major: 1, Minor: 2, Revision: 2}

// Factory and extension identifiers.
const (
	PluginFactoryID  = "clap.plugin-factory"
	PresetFactoryID  = "clap.preset-discovery-factory/2"
	ExtAudioPorts    = "clap.audio-ports"
	ExtNotePorts     = "clap.note-ports"
	ExtParams        = "clap.params"
	ExtState         = "clap.state"
	ExtLatency       = "clap.latency"
	ExtTail          = "clap.tail"
	ExtThreadCheck   = "clap.thread-check"
	ExtLog           = "clap.log"
	AudioPortStereo  = "stereo"
	AudioPortMono    = "mono"
	CoreEventSpaceID = uint16(0)
)

// InvalidID is CLAP_INVALID_ID.
const InvalidID = math.MaxUint32

// Event types in the core event space.
const (
	EventNoteOn uint16 = iota
	EventNoteOff
	EventNoteChoke
	EventNoteEnd
	EventNoteExpression
	EventParamValue
	EventParamMod
	EventParamGestureBegin
	EventParamGestureEnd
	EventTransport
	EventMidi
	EventMidiSysex
	EventMidi2
)

// Event header flags.
const (
	EventIsLive     uint32 = 1 << 0
	EventDontRecord uint32 = 1 << 1
)

// ProcessStatus is the value returned from clap_plugin::process().
type ProcessStatus int32

const (
	ProcessError              ProcessStatus = 0
	ProcessContinue           ProcessStatus = 1
	ProcessContinueIfNotQuiet ProcessStatus = 2
	ProcessTail               ProcessStatus = 3
	ProcessSleep              ProcessStatus = 4
)

func (s ProcessStatus) String() string {
	switch s {
	case ProcessError:
		return "CLAP_PROCESS_ERROR"
	case ProcessContinue:
		return "CLAP_PROCESS_CONTINUE"
	case ProcessContinueIfNotQuiet:
		return "CLAP_PROCESS_CONTINUE_IF_NOT_QUIET"
	case ProcessTail:
		return "CLAP_PROCESS_TAIL"
	case ProcessSleep:
		return "CLAP_PROCESS_SLEEP"
	default:
		return "unknown process status"
	}
}

// Valid reports whether s is one of the defined status codes.
func (s ProcessStatus) Valid() bool {
	return s >= ProcessError && s <= ProcessSleep
}

// Audio port flags.
const (
	AudioPortIsMain                   uint32 = 1 << 0
	AudioPortSupports64Bits           uint32 = 1 << 1
	AudioPortPrefers64Bits            uint32 = 1 << 2
	AudioPortRequiresCommonSampleSize uint32 = 1 << 3
)

// Audio port rescan flags.
const (
	AudioPortsRescanNames        uint32 = 1 << 0
	AudioPortsRescanFlags        uint32 = 1 << 1
	AudioPortsRescanChannelCount uint32 = 1 << 2
	AudioPortsRescanPortType     uint32 = 1 << 3
	AudioPortsRescanInPlacePair  uint32 = 1 << 4
	AudioPortsRescanList         uint32 = 1 << 5
)

// Note dialects.
const (
	NoteDialectCLAP    uint32 = 1 << 0
	NoteDialectMIDI    uint32 = 1 << 1
	NoteDialectMIDIMPE uint32 = 1 << 2
	NoteDialectMIDI2   uint32 = 1 << 3
)

// Note port rescan flags.
const (
	NotePortsRescanAll   uint32 = 1 << 0
	NotePortsRescanNames uint32 = 1 << 1
)

// Parameter info flags.
const (
	ParamIsStepped               uint32 = 1 << 0
	ParamIsPeriodic              uint32 = 1 << 1
	ParamIsHidden                uint32 = 1 << 2
	ParamIsReadonly              uint32 = 1 << 3
	ParamIsBypass                uint32 = 1 << 4
	ParamIsAutomatable           uint32 = 1 << 5
	ParamIsAutomatablePerNoteID  uint32 = 1 << 6
	ParamIsAutomatablePerKey     uint32 = 1 << 7
	ParamIsAutomatablePerChannel uint32 = 1 << 8
	ParamIsAutomatablePerPort    uint32 = 1 << 9
	ParamIsModulatable           uint32 = 1 << 10
	ParamIsModulatablePerNoteID  uint32 = 1 << 11
	ParamIsModulatablePerKey     uint32 = 1 << 12
	ParamIsModulatablePerChannel uint32 = 1 << 13
	ParamIsModulatablePerPort    uint32 = 1 << 14
	ParamRequiresProcess         uint32 = 1 << 15
	ParamIsEnum                  uint32 = 1 << 16
)

// Parameter rescan flags.
const (
	ParamRescanValues uint32 = 1 << 0
	ParamRescanText   uint32 = 1 << 1
	ParamRescanInfo   uint32 = 1 << 2
	ParamRescanAll    uint32 = 1 << 3
)

// LogSeverity is the severity passed to clap_host_log::log().
type LogSeverity int32

const (
	LogDebug             LogSeverity = 0
	LogInfo              LogSeverity = 1
	LogWarning           LogSeverity = 2
	LogError             LogSeverity = 3
	LogFatal             LogSeverity = 4
	LogHostMisbehaving   LogSeverity = 5
	LogPluginMisbehaving LogSeverity = 6
)

// Transport flags.
const (
	TransportHasTempo           uint32 = 1 << 0
	TransportHasBeatsTimeline   uint32 = 1 << 1
	TransportHasSecondsTimeline uint32 = 1 << 2
	TransportHasTimeSignature   uint32 = 1 << 3
	TransportIsPlaying          uint32 = 1 << 4
	TransportIsRecording        uint32 = 1 << 5
	TransportIsLoopActive       uint32 = 1 << 6
	TransportIsWithinPreRoll    uint32 = 1 << 7
)

// Fixed point factors for beat and second time values.
const (
	BeatTimeFactor int64 = 1 << 31
	SecTimeFactor  int64 = 1 << 31
)

// Plugin feature strings used for category checks.
const (
	FeatureInstrument   = "instrument"
	FeatureAudioEffect  = "audio-effect"
	FeatureNoteEffect   = "note-effect"
	FeatureNoteDetector = "note-detector"
	FeatureAnalyzer     = "analyzer"
)

// MainCategories are the features of which a plugin must declare at least one.
var MainCategories = []string{
	FeatureInstrument,
	FeatureAudioEffect,
	FeatureNoteDetector,
	FeatureNoteEffect,
	FeatureAnalyzer,
}
