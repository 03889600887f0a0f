//go:build cgo && (linux || darwin)

package clap

/*
#include "bridge.h"
*/
import "C"

import (
	"bytes"
	"runtime/cgo"
	"unsafe"

	"github.com/roach88/clapval/internal/abi"
)

// fixedString reads a NUL padded char array of n bytes. A missing
// terminator yields the full array.
func fixedString(p *C.char, n int) string {
	b := C.GoBytes(unsafe.Pointer(p), C.int(n))
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

type audioPorts struct {
	w   *plugin
	ext *C.clap_plugin_audio_ports_t
}

func (a *audioPorts) Count(isInput bool) uint32 {
	if a.ext.count == nil {
		panic("clap_plugin_audio_ports::count is null")
	}
	return uint32(C.cv_audio_ports_count(a.ext, a.w.p, C.bool(isInput)))
}

func (a *audioPorts) Get(index uint32, isInput bool) (abi.AudioPortInfo, bool) {
	if a.ext.get == nil {
		panic("clap_plugin_audio_ports::get is null")
	}
	var info C.clap_audio_port_info_t
	if !bool(C.cv_audio_ports_get(a.ext, a.w.p, C.uint32_t(index), C.bool(isInput), &info)) {
		return abi.AudioPortInfo{}, false
	}
	out := abi.AudioPortInfo{
		ID:           uint32(info.id),
		Name:         fixedString(&info.name[0], C.CLAP_NAME_SIZE),
		Flags:        uint32(info.flags),
		ChannelCount: uint32(info.channel_count),
		InPlacePair:  uint32(info.in_place_pair),
	}
	if info.port_type != nil {
		out.PortType = C.GoString(info.port_type)
	}
	return out, true
}

type notePorts struct {
	w   *plugin
	ext *C.clap_plugin_note_ports_t
}

func (n *notePorts) Count(isInput bool) uint32 {
	if n.ext.count == nil {
		panic("clap_plugin_note_ports::count is null")
	}
	return uint32(C.cv_note_ports_count(n.ext, n.w.p, C.bool(isInput)))
}

func (n *notePorts) Get(index uint32, isInput bool) (abi.NotePortInfo, bool) {
	if n.ext.get == nil {
		panic("clap_plugin_note_ports::get is null")
	}
	var info C.clap_note_port_info_t
	if !bool(C.cv_note_ports_get(n.ext, n.w.p, C.uint32_t(index), C.bool(isInput), &info)) {
		return abi.NotePortInfo{}, false
	}
	return abi.NotePortInfo{
		ID:                uint32(info.id),
		SupportedDialects: uint32(info.supported_dialects),
		PreferredDialect:  uint32(info.preferred_dialect),
		Name:              fixedString(&info.name[0], C.CLAP_NAME_SIZE),
	}, true
}

type params struct {
	w   *plugin
	ext *C.clap_plugin_params_t
}

// textBufferSize is the capacity handed to value_to_text().
const textBufferSize = 256

func (p *params) Count() uint32 {
	if p.ext.count == nil {
		panic("clap_plugin_params::count is null")
	}
	return uint32(C.cv_params_count(p.ext, p.w.p))
}

func (p *params) Info(index uint32) (abi.ParamInfo, bool) {
	if p.ext.get_info == nil {
		panic("clap_plugin_params::get_info is null")
	}
	var info C.clap_param_info_t
	if !bool(C.cv_params_get_info(p.ext, p.w.p, C.uint32_t(index), &info)) {
		return abi.ParamInfo{}, false
	}
	return abi.ParamInfo{
		ID:           uint32(info.id),
		Flags:        uint32(info.flags),
		Cookie:       abi.Cookie(uintptr(info.cookie)),
		Name:         fixedString(&info.name[0], C.CLAP_NAME_SIZE),
		Module:       fixedString(&info.module[0], C.CLAP_PATH_SIZE),
		MinValue:     float64(info.min_value),
		MaxValue:     float64(info.max_value),
		DefaultValue: float64(info.default_value),
	}, true
}

func (p *params) Value(paramID uint32) (float64, bool) {
	if p.ext.get_value == nil {
		panic("clap_plugin_params::get_value is null")
	}
	var v C.double
	ok := C.cv_params_get_value(p.ext, p.w.p, C.clap_id(paramID), &v)
	return float64(v), bool(ok)
}

func (p *params) ValueToText(paramID uint32, value float64) (string, bool) {
	if p.ext.value_to_text == nil {
		panic("clap_plugin_params::value_to_text is null")
	}
	buf := (*C.char)(C.calloc(textBufferSize, 1))
	defer C.free(unsafe.Pointer(buf))
	if !bool(C.cv_params_value_to_text(p.ext, p.w.p, C.clap_id(paramID), C.double(value), buf, textBufferSize)) {
		return "", false
	}
	return fixedString(buf, textBufferSize), true
}

func (p *params) TextToValue(paramID uint32, text string) (float64, bool) {
	if p.ext.text_to_value == nil {
		panic("clap_plugin_params::text_to_value is null")
	}
	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))
	var v C.double
	ok := C.cv_params_text_to_value(p.ext, p.w.p, C.clap_id(paramID), ctext, &v)
	return float64(v), bool(ok)
}

func (p *params) Flush(in *abi.EventList, out *abi.EventList) {
	if p.ext.flush == nil {
		panic("clap_plugin_params::flush is null")
	}
	pushEvents(p.w.in, in)
	C.cv_events_clear(p.w.out)
	C.cv_params_flush(p.ext, p.w.p, p.w.in, p.w.out)
	if out != nil {
		pullEvents(p.w.out, out)
	}
}

type state struct {
	w   *plugin
	ext *C.clap_plugin_state_t
}

func (s *state) Save(out abi.OutputStream) bool {
	if s.ext.save == nil {
		panic("clap_plugin_state::save is null")
	}
	h := cgo.NewHandle(out)
	defer h.Delete()
	stream := C.cv_ostream_new(C.uintptr_t(h))
	if stream == nil {
		panic("clap: out of memory")
	}
	defer C.free(unsafe.Pointer(stream))
	return bool(C.cv_state_save(s.ext, s.w.p, stream))
}

func (s *state) Load(in abi.InputStream) bool {
	if s.ext.load == nil {
		panic("clap_plugin_state::load is null")
	}
	h := cgo.NewHandle(in)
	defer h.Delete()
	stream := C.cv_istream_new(C.uintptr_t(h))
	if stream == nil {
		panic("clap: out of memory")
	}
	defer C.free(unsafe.Pointer(stream))
	return bool(C.cv_state_load(s.ext, s.w.p, stream))
}

type latency struct {
	w   *plugin
	ext *C.clap_plugin_latency_t
}

func (l *latency) Get() uint32 {
	if l.ext.get == nil {
		panic("clap_plugin_latency::get is null")
	}
	return uint32(C.cv_latency_get(l.ext, l.w.p))
}

type tail struct {
	w   *plugin
	ext *C.clap_plugin_tail_t
}

func (t *tail) Get() uint32 {
	if t.ext.get == nil {
		panic("clap_plugin_tail::get is null")
	}
	return uint32(C.cv_tail_get(t.ext, t.w.p))
}

var (
	_ abi.AudioPorts = (*audioPorts)(nil)
	_ abi.NotePorts  = (*notePorts)(nil)
	_ abi.Params     = (*params)(nil)
	_ abi.State      = (*state)(nil)
	_ abi.Latency    = (*latency)(nil)
	_ abi.Tail       = (*tail)(nil)
	_ abi.Plugin     = (*plugin)(nil)
)
