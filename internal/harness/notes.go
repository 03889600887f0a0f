package harness

import (
	"math/rand/v2"
	"slices"

	"github.com/roach88/clapval/internal/abi"
	"github.com/roach88/clapval/internal/host"
)

// maxNotesPerBlock bounds the number of note events generated per block.
const maxNotesPerBlock = 4

// noteGenerator produces note on/off sequences for the plugin's first note
// input port, using the CLAP or MIDI dialect as supported. Sequences are
// consistent unless inconsistent is set, in which case note offs and
// chokes may target notes that are not playing.
type noteGenerator struct {
	dialects     uint32
	inconsistent bool
	active       [128]bool
}

// newNoteGenerator returns nil when the plugin has no note input port that
// accepts CLAP or MIDI note events.
func newNoteGenerator(inst *host.Instance) *noteGenerator {
	ports, ok := inst.NotePorts()
	if !ok || ports.Count(true) == 0 {
		return nil
	}
	info, ok := ports.Get(0, true)
	if !ok {
		return nil
	}
	dialects := info.SupportedDialects & (abi.NoteDialectCLAP | abi.NoteDialectMIDI)
	if dialects == 0 {
		return nil
	}
	return &noteGenerator{dialects: dialects}
}

// generate appends up to maxNotesPerBlock note events with sorted
// timestamps within frames to in.
func (g *noteGenerator) generate(rng *rand.Rand, frames uint32, in *abi.EventList) {
	if g == nil {
		return
	}
	times := make([]uint32, rng.IntN(maxNotesPerBlock+1))
	for idx := range times {
		times[idx] = rng.Uint32N(frames)
	}
	slices.Sort(times)

	for _, t := range times {
		key := rng.IntN(128)
		on := !g.active[key]
		if g.inconsistent {
			on = rng.IntN(2) == 0
		}
		g.active[key] = on
		velocity := 0.0
		if on {
			velocity = 0.1 + rng.Float64()*0.9
		}

		useCLAP := g.dialects&abi.NoteDialectCLAP != 0 &&
			(g.dialects&abi.NoteDialectMIDI == 0 || rng.IntN(2) == 0)
		if useCLAP {
			typ := abi.EventNoteOff
			switch {
			case on:
				typ = abi.EventNoteOn
			case g.inconsistent && rng.IntN(4) == 0:
				typ = abi.EventNoteChoke
			}
			in.Push(&abi.NoteEvent{
				Head:      abi.EventHeader{Time: t, SpaceID: abi.CoreEventSpaceID, Type: typ},
				NoteID:    -1,
				PortIndex: 0,
				Channel:   int16(rng.IntN(16)),
				Key:       int16(key),
				Velocity:  velocity,
			})
			continue
		}
		in.Push(midiNote(t, on, key, velocity))
	}
}

// stopAll appends a note off at time t for every playing note.
func (g *noteGenerator) stopAll(t uint32, in *abi.EventList) {
	if g == nil {
		return
	}
	for key, on := range g.active {
		if !on {
			continue
		}
		g.active[key] = false
		if g.dialects&abi.NoteDialectCLAP != 0 {
			in.Push(&abi.NoteEvent{
				Head:      abi.EventHeader{Time: t, SpaceID: abi.CoreEventSpaceID, Type: abi.EventNoteOff},
				NoteID:    -1,
				PortIndex: 0,
				Channel:   -1,
				Key:       int16(key),
			})
			continue
		}
		in.Push(midiNote(t, false, key, 0))
	}
}

func midiNote(t uint32, on bool, key int, velocity float64) *abi.MidiEvent {
	status := byte(0x80)
	if on {
		status = 0x90
	}
	return &abi.MidiEvent{
		Head: abi.EventHeader{Time: t, SpaceID: abi.CoreEventSpaceID, Type: abi.EventMidi},
		Data: [3]byte{status, byte(key), byte(velocity * 127)},
	}
}
