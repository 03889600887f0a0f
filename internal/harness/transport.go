package harness

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/roach88/clapval/internal/abi"
	"github.com/roach88/clapval/internal/host"
	"github.com/roach88/clapval/internal/result"
)

const (
	// transportFuzzBlocks is how many blocks transport-fuzz processes.
	transportFuzzBlocks = 20
	// transportChangeChance is the probability of each transport mutation.
	transportChangeChance = 0.2

	minTempo = 40.0
	maxTempo = 480.0
)

// transportIntervals are the spacings, in samples, of the transport events
// sent by transport-fuzz-sample-accurate.
var transportIntervals = []uint32{1000, 100, 1}

// transportState is the host's transport. It starts as a playing 4/4
// transport at 110 BPM and advances with every processed block while
// playing. A zero tempo or time signature is reported as unknown.
type transportState struct {
	sampleRate float64
	playing    bool
	recording  bool
	tempo      float64
	tempoInc   float64
	sigNum     uint16
	sigDenom   uint16
	seconds    float64
	beats      float64
	noSeconds  bool
	noBeats    bool
}

func newTransport(sampleRate float64) *transportState {
	return &transportState{
		sampleRate: sampleRate,
		playing:    true,
		tempo:      110,
		sigNum:     4,
		sigDenom:   4,
	}
}

func (t *transportState) event() *abi.TransportEvent {
	return t.eventAt(0)
}

// eventAt describes the transport offset samples into the current block.
func (t *transportState) eventAt(offset uint32) *abi.TransportEvent {
	seconds, beats := t.seconds, t.beats
	if t.playing {
		dt := float64(offset) / t.sampleRate
		seconds += dt
		beats += dt * t.tempo / 60
	}

	ev := &abi.TransportEvent{
		Head: abi.EventHeader{Time: offset, SpaceID: abi.CoreEventSpaceID, Type: abi.EventTransport},
	}
	if t.playing {
		ev.Flags |= abi.TransportIsPlaying
	}
	if t.recording {
		ev.Flags |= abi.TransportIsRecording
	}
	if t.tempo > 0 {
		ev.Flags |= abi.TransportHasTempo
		ev.Tempo = t.tempo
		ev.TempoInc = t.tempoInc
	}
	if !t.noSeconds {
		ev.Flags |= abi.TransportHasSecondsTimeline
		ev.SongPosSeconds = int64(math.Round(seconds * float64(abi.SecTimeFactor)))
	}
	if t.sigNum > 0 {
		ev.Flags |= abi.TransportHasTimeSignature
		ev.TimeSigNum = t.sigNum
		ev.TimeSigDenom = t.sigDenom
	}
	if !t.noBeats {
		ev.Flags |= abi.TransportHasBeatsTimeline
		ev.SongPosBeats = int64(math.Round(beats * float64(abi.BeatTimeFactor)))
		if t.sigNum > 0 {
			beatsPerBar := float64(t.sigNum) * 4 / float64(t.sigDenom)
			bar := math.Floor(beats / beatsPerBar)
			ev.BarStart = int64(math.Round(bar * beatsPerBar * float64(abi.BeatTimeFactor)))
			ev.BarNumber = int32(bar)
		}
	}
	return ev
}

func (t *transportState) advance(frames uint32) {
	if !t.playing {
		return
	}
	dt := float64(frames) / t.sampleRate
	t.seconds += dt
	if t.tempo > 0 {
		t.beats += dt * t.tempo / 60
		t.tempo = math.Min(math.Max(t.tempo+t.tempoInc*float64(frames), minTempo), maxTempo)
	}
}

// mutate randomly toggles playback and recording, changes the tempo and
// time signature, and seeks. Every change happens with
// transportChangeChance.
func (t *transportState) mutate(rng *rand.Rand) {
	chance := func() bool { return rng.Float64() < transportChangeChance }
	coin := func() bool { return rng.IntN(2) == 0 }

	if chance() {
		t.playing = !t.playing
	}
	if chance() {
		t.recording = !t.recording
	}
	if chance() {
		if coin() {
			t.sigNum, t.sigDenom = 0, 0
		} else {
			t.sigNum = uint16(1 + rng.IntN(16))
			t.sigDenom = uint16(1) << (1 + rng.IntN(4))
		}
	}
	if chance() {
		t.tempoInc = 0
		if coin() {
			t.tempo = 0
		} else {
			t.tempo = minTempo + rng.Float64()*(maxTempo-minTempo)
		}
	}
	if t.tempo > 0 && chance() {
		t.tempoInc = rng.Float64()*0.02 - 0.01
	}
	if chance() {
		t.noSeconds = coin()
		if !t.noSeconds {
			t.seconds = rng.Float64() * 60
		}
		t.noBeats = coin()
		if !t.noBeats {
			t.beats = rng.Float64() * 240
		}
	}
}

func testTransportNull(env *Env) result.Outcome {
	inst, ports, out, ok := prepareAudio(env)
	if !ok {
		return out
	}
	p := newProcessor(env, inst, ports, processorConfig{noTransport: true, notes: true})
	if err := p.runActivated(processIterations, nil); err != nil {
		return outcomeFor(err)
	}
	return result.Pass()
}

func testTransportFuzz(env *Env) result.Outcome {
	inst, ports, out, ok := prepareAudio(env)
	if !ok {
		return out
	}
	p := newProcessor(env, inst, ports, processorConfig{notes: true})
	if err := p.activate(); err != nil {
		return outcomeFor(err)
	}
	err := inst.OnAudioThread(func(at *host.AudioThread) error {
		if err := at.StartProcessing(); err != nil {
			return err
		}
		for block := 0; block < transportFuzzBlocks; block++ {
			p.transport.mutate(p.rng)
			if err := p.processBlock(at, block, nil); err != nil {
				return fmt.Errorf("with transport %+v: %w", *p.transport.event(), err)
			}
		}
		return at.StopProcessing()
	})
	if err != nil {
		return outcomeFor(err)
	}
	if err := inst.Deactivate(); err != nil {
		return outcomeFor(err)
	}
	return result.Pass()
}

// testTransportFuzzSampleAccurate mutates the transport every interval
// samples within each block and sends the result as transport events. The
// block's transport pointer describes the state before the first change.
func testTransportFuzzSampleAccurate(env *Env) result.Outcome {
	inst, ports, out, ok := prepareAudio(env)
	if !ok {
		return out
	}
	for _, interval := range transportIntervals {
		p := newProcessor(env, inst, ports, processorConfig{notes: true})
		err := p.runActivated(processIterations, func(_ int, in *abi.EventList) {
			for at := uint32(0); at < p.frames; at += interval {
				p.transport.mutate(p.rng)
				in.Push(p.transport.eventAt(at))
			}
		})
		if err != nil {
			return outcomeFor(fmt.Errorf("with a transport event every %d samples: %w", interval, err))
		}
	}
	return result.Pass()
}
