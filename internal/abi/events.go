package abi

import (
	"cmp"
	"slices"
)

// Event is any event that can travel through an input or output event
// queue. Header returns the common clap_event_header_t fields.
type Event interface {
	Header() EventHeader
}

// EventHeader is a clap_event_header_t without the size field. The size is
// derived from the concrete event type when marshalling.
type EventHeader struct {
	Time    uint32
	SpaceID uint16
	Type    uint16
	Flags   uint32
}

// ParamValueEvent is a clap_event_param_value_t.
type ParamValueEvent struct {
	Head      EventHeader
	ParamID   uint32
	Cookie    Cookie
	NoteID    int32
	PortIndex int16
	Channel   int16
	Key       int16
	Value     float64
}

func (e *ParamValueEvent) Header() EventHeader { return e.Head }

// ParamModEvent is a clap_event_param_mod_t.
type ParamModEvent struct {
	Head      EventHeader
	ParamID   uint32
	Cookie    Cookie
	NoteID    int32
	PortIndex int16
	Channel   int16
	Key       int16
	Amount    float64
}

func (e *ParamModEvent) Header() EventHeader { return e.Head }

// ParamGestureEvent is a clap_event_param_gesture_t.
type ParamGestureEvent struct {
	Head    EventHeader
	ParamID uint32
}

func (e *ParamGestureEvent) Header() EventHeader { return e.Head }

// NoteEvent is a clap_event_note_t. Head.Type selects on/off/choke/end.
type NoteEvent struct {
	Head      EventHeader
	NoteID    int32
	PortIndex int16
	Channel   int16
	Key       int16
	Velocity  float64
}

func (e *NoteEvent) Header() EventHeader { return e.Head }

// MidiEvent is a clap_event_midi_t.
type MidiEvent struct {
	Head      EventHeader
	PortIndex uint16
	Data      [3]byte
}

func (e *MidiEvent) Header() EventHeader { return e.Head }

// TransportEvent is a clap_event_transport_t, also used as the transport
// pointer of a process call.
type TransportEvent struct {
	Head             EventHeader
	Flags            uint32
	SongPosBeats     int64
	SongPosSeconds   int64
	Tempo            float64
	TempoInc         float64
	LoopStartBeats   int64
	LoopEndBeats     int64
	LoopStartSeconds int64
	LoopEndSeconds   int64
	BarStart         int64
	BarNumber        int32
	TimeSigNum       uint16
	TimeSigDenom     uint16
}

func (e *TransportEvent) Header() EventHeader { return e.Head }

// UnknownEvent carries an event whose type the host does not decode. Only
// the header survives the round trip.
type UnknownEvent struct {
	Head EventHeader
	Size uint32
}

func (e *UnknownEvent) Header() EventHeader { return e.Head }

// EventList is an ordered event queue. The zero value is empty and ready
// to use.
type EventList struct {
	Events []Event
}

// Len returns the number of events in the list.
func (l *EventList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Events)
}

// Push appends an event.
func (l *EventList) Push(e Event) {
	l.Events = append(l.Events, e)
}

// Clear empties the list, keeping its capacity.
func (l *EventList) Clear() {
	l.Events = l.Events[:0]
}

// Sorted reports whether event timestamps never decrease.
func (l *EventList) Sorted() bool {
	for i := 1; i < len(l.Events); i++ {
		if l.Events[i].Header().Time < l.Events[i-1].Header().Time {
			return false
		}
	}
	return true
}

// Sort orders events by time, keeping the relative order of events that
// share a timestamp.
func (l *EventList) Sort() {
	slices.SortStableFunc(l.Events, func(a, b Event) int {
		return cmp.Compare(a.Header().Time, b.Header().Time)
	})
}
