//go:build cgo && (linux || darwin)

package clap

/*
#include "bridge.h"
*/
import "C"

import (
	"errors"
	"runtime/cgo"
	"unsafe"

	"github.com/roach88/clapval/internal/abi"
)

// plugin wraps a clap_plugin_t together with the host structure and the
// event queues used for its calls.
type plugin struct {
	p      *C.clap_plugin_t
	host   *C.clap_host_t
	handle cgo.Handle
	in     *C.cv_events
	out    *C.cv_events
	exts   map[string]any
}

func newPlugin(p *C.clap_plugin_t, host *C.clap_host_t, handle cgo.Handle) (*plugin, error) {
	in, out := C.cv_events_new(), C.cv_events_new()
	if in == nil || out == nil {
		C.cv_events_free(in)
		C.cv_events_free(out)
		return nil, errors.New("clap: could not allocate event queues")
	}
	return &plugin{p: p, host: host, handle: handle, in: in, out: out, exts: make(map[string]any)}, nil
}

func nullFunc(name string) {
	panic("clap_plugin::" + name + " is null")
}

func (w *plugin) Descriptor() *abi.Descriptor {
	return descriptorFromC(w.p.desc)
}

func (w *plugin) Init() bool {
	if w.p.init == nil {
		nullFunc("init")
	}
	return bool(C.cv_plugin_init(w.p))
}

// Destroy calls destroy() and releases the host structure. The plugin must
// not be used afterwards.
func (w *plugin) Destroy() {
	if w.p.destroy == nil {
		nullFunc("destroy")
	}
	C.cv_plugin_destroy(w.p)
	C.cv_host_free(w.host)
	C.cv_events_free(w.in)
	C.cv_events_free(w.out)
	w.handle.Delete()
	w.host, w.in, w.out = nil, nil, nil
}

func (w *plugin) Activate(sampleRate float64, minFrames, maxFrames uint32) bool {
	if w.p.activate == nil {
		nullFunc("activate")
	}
	return bool(C.cv_plugin_activate(w.p, C.double(sampleRate), C.uint32_t(minFrames), C.uint32_t(maxFrames)))
}

func (w *plugin) Deactivate() {
	if w.p.deactivate == nil {
		nullFunc("deactivate")
	}
	C.cv_plugin_deactivate(w.p)
}

func (w *plugin) StartProcessing() bool {
	if w.p.start_processing == nil {
		nullFunc("start_processing")
	}
	return bool(C.cv_plugin_start_processing(w.p))
}

func (w *plugin) StopProcessing() {
	if w.p.stop_processing == nil {
		nullFunc("stop_processing")
	}
	C.cv_plugin_stop_processing(w.p)
}

func (w *plugin) Reset() {
	if w.p.reset == nil {
		nullFunc("reset")
	}
	C.cv_plugin_reset(w.p)
}

func (w *plugin) OnMainThread() {
	if w.p.on_main_thread == nil {
		nullFunc("on_main_thread")
	}
	C.cv_plugin_on_main_thread(w.p)
}

// Process copies the Go side buffers and events into C memory, calls
// process() and copies the outputs back.
func (w *plugin) Process(data *abi.ProcessData) abi.ProcessStatus {
	if w.p.process == nil {
		nullFunc("process")
	}
	var a arena
	defer a.free()

	var proc C.clap_process_t
	proc.steady_time = C.int64_t(data.SteadyTime)
	proc.frames_count = C.uint32_t(data.FramesCount)
	if data.Transport != nil {
		t := (*C.clap_event_transport_t)(a.alloc(1, C.sizeof_clap_event_transport_t))
		fillTransport(t, data.Transport)
		proc.transport = t
	}

	inputs, inPtrs := stageBuffers(&a, data.AudioInputs, nil, nil)
	outputs, _ := stageBuffers(&a, data.AudioOutputs, data.AudioInputs, inPtrs)
	if len(inputs) > 0 {
		proc.audio_inputs = &inputs[0]
	}
	if len(outputs) > 0 {
		proc.audio_outputs = &outputs[0]
	}
	proc.audio_inputs_count = C.uint32_t(len(inputs))
	proc.audio_outputs_count = C.uint32_t(len(outputs))

	pushEvents(w.in, data.InEvents)
	C.cv_events_clear(w.out)
	proc.in_events = &w.in.in
	proc.out_events = &w.out.out

	status := abi.ProcessStatus(C.cv_plugin_process(w.p, &proc))

	for i := range data.AudioOutputs {
		unstageBuffer(&data.AudioOutputs[i], &outputs[i])
	}
	if data.OutEvents != nil {
		pullEvents(w.out, data.OutEvents)
	}
	return status
}

func (w *plugin) Extension(id string) any {
	if ext, ok := w.exts[id]; ok {
		return ext
	}
	if w.p.get_extension == nil {
		nullFunc("get_extension")
	}
	cid := C.CString(id)
	defer C.free(unsafe.Pointer(cid))
	ptr := C.cv_plugin_get_extension(w.p, cid)
	if ptr == nil {
		return nil
	}

	var ext any
	switch id {
	case abi.ExtAudioPorts:
		ext = &audioPorts{w: w, ext: (*C.clap_plugin_audio_ports_t)(ptr)}
	case abi.ExtNotePorts:
		ext = &notePorts{w: w, ext: (*C.clap_plugin_note_ports_t)(ptr)}
	case abi.ExtParams:
		ext = &params{w: w, ext: (*C.clap_plugin_params_t)(ptr)}
	case abi.ExtState:
		ext = &state{w: w, ext: (*C.clap_plugin_state_t)(ptr)}
	case abi.ExtLatency:
		ext = &latency{w: w, ext: (*C.clap_plugin_latency_t)(ptr)}
	case abi.ExtTail:
		ext = &tail{w: w, ext: (*C.clap_plugin_tail_t)(ptr)}
	default:
		ext = opaqueExtension{id: id}
	}
	w.exts[id] = ext
	return ext
}

// opaqueExtension is returned for extensions clapval does not drive.
type opaqueExtension struct {
	id string
}

// arena frees every C allocation made during one call.
type arena struct {
	ptrs []unsafe.Pointer
}

func (a *arena) alloc(n int, size C.size_t) unsafe.Pointer {
	if n < 1 {
		n = 1
	}
	p := C.calloc(C.size_t(n), size)
	if p == nil {
		panic("clap: out of memory")
	}
	a.ptrs = append(a.ptrs, p)
	return p
}

func (a *arena) free() {
	for _, p := range a.ptrs {
		C.free(p)
	}
	a.ptrs = nil
}

// stageBuffers allocates C audio buffers mirroring bufs. When pairs is
// given, an output that shares storage with an input reuses that input's
// channel pointers.
func stageBuffers(a *arena, bufs, pairs []abi.AudioBuffer, pairPtrs []unsafe.Pointer) ([]C.clap_audio_buffer_t, []unsafe.Pointer) {
	if len(bufs) == 0 {
		return nil, nil
	}
	staged := unsafe.Slice((*C.clap_audio_buffer_t)(a.alloc(len(bufs), C.sizeof_clap_audio_buffer_t)), len(bufs))
	ptrs := make([]unsafe.Pointer, len(bufs))

	for i := range bufs {
		b := &bufs[i]
		cb := &staged[i]
		cb.channel_count = C.uint32_t(b.Channels())
		cb.latency = C.uint32_t(b.Latency)
		cb.constant_mask = C.uint64_t(b.ConstantMask)

		shared := -1
		for j := range pairs {
			if b.SharesWith(&pairs[j]) {
				shared = j
				break
			}
		}
		if shared >= 0 {
			ptrs[i] = pairPtrs[shared]
		} else {
			ptrs[i] = stageChannels(a, b)
		}
		if b.Is64() {
			cb.data64 = (**C.double)(ptrs[i])
		} else {
			cb.data32 = (**C.float)(ptrs[i])
		}
	}
	return staged, ptrs
}

func stageChannels(a *arena, b *abi.AudioBuffer) unsafe.Pointer {
	n := b.Channels()
	table := a.alloc(n, C.size_t(unsafe.Sizeof(uintptr(0))))
	if b.Is64() {
		chans := unsafe.Slice((**C.double)(table), n)
		for c, src := range b.Data64 {
			mem := a.alloc(len(src), C.sizeof_double)
			copy(unsafe.Slice((*float64)(mem), len(src)), src)
			chans[c] = (*C.double)(mem)
		}
	} else {
		chans := unsafe.Slice((**C.float)(table), n)
		for c, src := range b.Data32 {
			mem := a.alloc(len(src), C.sizeof_float)
			copy(unsafe.Slice((*float32)(mem), len(src)), src)
			chans[c] = (*C.float)(mem)
		}
	}
	return table
}

// unstageBuffer copies the plugin's output samples and constant mask back
// into b.
func unstageBuffer(b *abi.AudioBuffer, cb *C.clap_audio_buffer_t) {
	b.ConstantMask = uint64(cb.constant_mask)
	n := b.Channels()
	if b.Is64() {
		chans := unsafe.Slice(cb.data64, n)
		for c, dst := range b.Data64 {
			copy(dst, unsafe.Slice((*float64)(unsafe.Pointer(chans[c])), len(dst)))
		}
		return
	}
	chans := unsafe.Slice(cb.data32, n)
	for c, dst := range b.Data32 {
		copy(dst, unsafe.Slice((*float32)(unsafe.Pointer(chans[c])), len(dst)))
	}
}

func fillTransport(t *C.clap_event_transport_t, e *abi.TransportEvent) {
	t.header.size = C.uint32_t(C.sizeof_clap_event_transport_t)
	t.header.time = C.uint32_t(e.Head.Time)
	t.header.space_id = C.uint16_t(e.Head.SpaceID)
	t.header._type = C.uint16_t(abi.EventTransport)
	t.header.flags = C.uint32_t(e.Head.Flags)
	t.flags = C.uint32_t(e.Flags)
	t.song_pos_beats = C.clap_beattime(e.SongPosBeats)
	t.song_pos_seconds = C.clap_sectime(e.SongPosSeconds)
	t.tempo = C.double(e.Tempo)
	t.tempo_inc = C.double(e.TempoInc)
	t.loop_start_beats = C.clap_beattime(e.LoopStartBeats)
	t.loop_end_beats = C.clap_beattime(e.LoopEndBeats)
	t.loop_start_seconds = C.clap_sectime(e.LoopStartSeconds)
	t.loop_end_seconds = C.clap_sectime(e.LoopEndSeconds)
	t.bar_start = C.clap_beattime(e.BarStart)
	t.bar_number = C.int32_t(e.BarNumber)
	t.tsig_num = C.uint16_t(e.TimeSigNum)
	t.tsig_denom = C.uint16_t(e.TimeSigDenom)
}

func transportFromC(t *C.clap_event_transport_t) *abi.TransportEvent {
	return &abi.TransportEvent{
		Head:             headerFromC(&t.header),
		Flags:            uint32(t.flags),
		SongPosBeats:     int64(t.song_pos_beats),
		SongPosSeconds:   int64(t.song_pos_seconds),
		Tempo:            float64(t.tempo),
		TempoInc:         float64(t.tempo_inc),
		LoopStartBeats:   int64(t.loop_start_beats),
		LoopEndBeats:     int64(t.loop_end_beats),
		LoopStartSeconds: int64(t.loop_start_seconds),
		LoopEndSeconds:   int64(t.loop_end_seconds),
		BarStart:         int64(t.bar_start),
		BarNumber:        int32(t.bar_number),
		TimeSigNum:       uint16(t.tsig_num),
		TimeSigDenom:     uint16(t.tsig_denom),
	}
}
