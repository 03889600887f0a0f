//go:build cgo && (linux || darwin)

package clap

/*
#include "bridge.h"
*/
import "C"

import (
	"unsafe"

	"github.com/roach88/clapval/internal/abi"
)

// pushEvents replaces the contents of q with list.
func pushEvents(q *C.cv_events, list *abi.EventList) {
	C.cv_events_clear(q)
	if list == nil {
		return
	}
	for _, ev := range list.Events {
		pushEvent(q, ev)
	}
}

func pushEvent(q *C.cv_events, ev abi.Event) bool {
	h := ev.Header()
	t, s, f := C.uint32_t(h.Time), C.uint16_t(h.SpaceID), C.uint32_t(h.Flags)
	var ok C.bool
	switch e := ev.(type) {
	case *abi.NoteEvent:
		ok = C.cv_push_note(q, t, s, C.uint16_t(h.Type), f, C.int32_t(e.NoteID),
			C.int16_t(e.PortIndex), C.int16_t(e.Channel), C.int16_t(e.Key), C.double(e.Velocity))
	case *abi.ParamValueEvent:
		ok = C.cv_push_param_value(q, t, s, f, C.clap_id(e.ParamID), C.uintptr_t(e.Cookie), C.int32_t(e.NoteID),
			C.int16_t(e.PortIndex), C.int16_t(e.Channel), C.int16_t(e.Key), C.double(e.Value))
	case *abi.ParamModEvent:
		ok = C.cv_push_param_mod(q, t, s, f, C.clap_id(e.ParamID), C.uintptr_t(e.Cookie), C.int32_t(e.NoteID),
			C.int16_t(e.PortIndex), C.int16_t(e.Channel), C.int16_t(e.Key), C.double(e.Amount))
	case *abi.ParamGestureEvent:
		ok = C.cv_push_param_gesture(q, t, s, C.uint16_t(h.Type), f, C.clap_id(e.ParamID))
	case *abi.MidiEvent:
		ok = C.cv_push_midi(q, t, s, f, C.uint16_t(e.PortIndex),
			C.uint8_t(e.Data[0]), C.uint8_t(e.Data[1]), C.uint8_t(e.Data[2]))
	case *abi.TransportEvent:
		var ct C.clap_event_transport_t
		fillTransport(&ct, e)
		ok = C.cv_events_push(q, &ct.header)
	case *abi.UnknownEvent:
		ok = C.cv_push_raw(q, t, s, C.uint16_t(h.Type), f, C.uint32_t(e.Size))
	}
	return bool(ok)
}

// pullEvents appends every event in q to list.
func pullEvents(q *C.cv_events, list *abi.EventList) {
	n := uint32(C.cv_events_count(q))
	for i := uint32(0); i < n; i++ {
		h := C.cv_events_get(q, C.uint32_t(i))
		if h == nil {
			continue
		}
		list.Push(eventFromC(h))
	}
}

func headerFromC(h *C.clap_event_header_t) abi.EventHeader {
	return abi.EventHeader{
		Time:    uint32(h.time),
		SpaceID: uint16(h.space_id),
		Type:    uint16(h._type),
		Flags:   uint32(h.flags),
	}
}

// eventFromC decodes core events whose size matches the expected struct.
// Anything else is returned as an UnknownEvent.
func eventFromC(h *C.clap_event_header_t) abi.Event {
	head := headerFromC(h)
	size := uintptr(h.size)
	ptr := unsafe.Pointer(h)
	if head.SpaceID != abi.CoreEventSpaceID {
		return &abi.UnknownEvent{Head: head, Size: uint32(size)}
	}

	switch head.Type {
	case abi.EventNoteOn, abi.EventNoteOff, abi.EventNoteChoke, abi.EventNoteEnd:
		if size >= C.sizeof_clap_event_note_t {
			e := (*C.clap_event_note_t)(ptr)
			return &abi.NoteEvent{
				Head:      head,
				NoteID:    int32(e.note_id),
				PortIndex: int16(e.port_index),
				Channel:   int16(e.channel),
				Key:       int16(e.key),
				Velocity:  float64(e.velocity),
			}
		}
	case abi.EventParamValue:
		if size >= C.sizeof_clap_event_param_value_t {
			e := (*C.clap_event_param_value_t)(ptr)
			return &abi.ParamValueEvent{
				Head:      head,
				ParamID:   uint32(e.param_id),
				Cookie:    abi.Cookie(C.cv_param_value_cookie(h)),
				NoteID:    int32(e.note_id),
				PortIndex: int16(e.port_index),
				Channel:   int16(e.channel),
				Key:       int16(e.key),
				Value:     float64(e.value),
			}
		}
	case abi.EventParamMod:
		if size >= C.sizeof_clap_event_param_mod_t {
			e := (*C.clap_event_param_mod_t)(ptr)
			return &abi.ParamModEvent{
				Head:      head,
				ParamID:   uint32(e.param_id),
				Cookie:    abi.Cookie(C.cv_param_mod_cookie(h)),
				NoteID:    int32(e.note_id),
				PortIndex: int16(e.port_index),
				Channel:   int16(e.channel),
				Key:       int16(e.key),
				Amount:    float64(e.amount),
			}
		}
	case abi.EventParamGestureBegin, abi.EventParamGestureEnd:
		if size >= C.sizeof_clap_event_param_gesture_t {
			e := (*C.clap_event_param_gesture_t)(ptr)
			return &abi.ParamGestureEvent{Head: head, ParamID: uint32(e.param_id)}
		}
	case abi.EventMidi:
		if size >= C.sizeof_clap_event_midi_t {
			e := (*C.clap_event_midi_t)(ptr)
			return &abi.MidiEvent{
				Head:      head,
				PortIndex: uint16(e.port_index),
				Data:      [3]byte{byte(e.data[0]), byte(e.data[1]), byte(e.data[2])},
			}
		}
	case abi.EventTransport:
		if size >= C.sizeof_clap_event_transport_t {
			return transportFromC((*C.clap_event_transport_t)(ptr))
		}
	}
	return &abi.UnknownEvent{Head: head, Size: uint32(size)}
}
