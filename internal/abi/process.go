package abi

// AudioBuffer is one port's worth of channel data for a single process call.
// Exactly one of Data32 and Data64 is populated. Input and output buffers of
// an in-place pair share the same backing slices.
type AudioBuffer struct {
	Data32       [][]float32
	Data64       [][]float64
	Latency      uint32
	ConstantMask uint64
}

// Channels returns the channel count of the buffer.
func (b *AudioBuffer) Channels() int {
	if b.Data64 != nil {
		return len(b.Data64)
	}
	return len(b.Data32)
}

// Is64 reports whether the buffer holds double precision samples.
func (b *AudioBuffer) Is64() bool {
	return b.Data64 != nil
}

// SharesWith reports whether b and other alias the same channel storage,
// which is how in-place processing is expressed.
func (b *AudioBuffer) SharesWith(other *AudioBuffer) bool {
	switch {
	case len(b.Data32) > 0 && len(other.Data32) > 0 && len(b.Data32[0]) > 0 && len(other.Data32[0]) > 0:
		return &b.Data32[0][0] == &other.Data32[0][0]
	case len(b.Data64) > 0 && len(other.Data64) > 0 && len(b.Data64[0]) > 0 && len(other.Data64[0]) > 0:
		return &b.Data64[0][0] == &other.Data64[0][0]
	}
	return false
}

// ProcessData is the argument of a single clap_plugin::process() call.
// SteadyTime is -1 when unavailable. Transport is nil when the host does not
// provide transport information.
type ProcessData struct {
	SteadyTime   int64
	FramesCount  uint32
	Transport    *TransportEvent
	AudioInputs  []AudioBuffer
	AudioOutputs []AudioBuffer
	InEvents     *EventList
	OutEvents    *EventList
}
