package harness

import (
	"fmt"

	"github.com/roach88/clapval/internal/abi"
	"github.com/roach88/clapval/internal/host"
	"github.com/roach88/clapval/internal/result"
)

var (
	// testSampleRates includes fractional and very high rates.
	testSampleRates = []float64{
		8000, 22050, 44100, 48000, 88200, 96000, 192000, 384000, 768000,
		1234.5678, 12345.678, 45678.901, 123456.78,
	}
	// testBlockSizes includes sizes that are not powers of two.
	testBlockSizes = []uint32{1, 31, 32, 33, 64, 100, 128, 256, 500, 512, 1024, 2048, 4096, 8192, 32768}
)

const (
	maxRandomBlockSize    = 2048
	randomBlockIterations = 20

	// silentTailBlocks gives reverbs and delays time to decay.
	silentTailBlocks = 38
	sleepPhaseBlocks = 10
)

// processAudio returns the body of the basic audio processing tests.
func processAudio(mode bufferMode) body {
	return func(env *Env) result.Outcome {
		inst, ports, out, ok := prepareAudio(env)
		if !ok {
			return out
		}
		if mode.double && !ports.supports64() {
			return result.Skip("The plugin does not support 64-bit floating point audio.")
		}
		p := newProcessor(env, inst, ports, processorConfig{mode: mode})
		if err := p.runActivated(processIterations, nil); err != nil {
			return outcomeFor(err)
		}
		return result.Pass()
	}
}

// processNotes returns the body of the note processing tests.
func processNotes(inconsistent bool) body {
	return func(env *Env) result.Outcome {
		inst, ports, out, ok := prepareAudio(env)
		if !ok {
			return out
		}
		p := newProcessor(env, inst, ports, processorConfig{notes: true, inconsistentNotes: inconsistent})
		if p.notes == nil {
			return result.Skip("The plugin does not have any note input ports that accept CLAP or MIDI note events.")
		}
		if err := p.runActivated(processIterations, nil); err != nil {
			return outcomeFor(err)
		}
		return result.Pass()
	}
}

func testVaryingSampleRates(env *Env) result.Outcome {
	inst, ports, out, ok := prepareAudio(env)
	if !ok {
		return out
	}
	for _, rate := range testSampleRates {
		p := newProcessor(env, inst, ports, processorConfig{sampleRate: rate, notes: true})
		if err := p.runActivated(processIterations, nil); err != nil {
			return outcomeFor(fmt.Errorf("at a sample rate of %g Hz: %w", rate, err))
		}
	}
	return result.Pass()
}

func testVaryingBlockSizes(env *Env) result.Outcome {
	inst, ports, out, ok := prepareAudio(env)
	if !ok {
		return out
	}
	for _, size := range testBlockSizes {
		p := newProcessor(env, inst, ports, processorConfig{frames: size, notes: true})
		if err := p.runActivated(processIterations, nil); err != nil {
			return outcomeFor(fmt.Errorf("with a maximum block size of %d: %w", size, err))
		}
	}
	return result.Pass()
}

// testRandomBlockSizes activates with a maximum block size of
// maxRandomBlockSize and then varies the size of every block, using a
// single sample for roughly one block in five.
func testRandomBlockSizes(env *Env) result.Outcome {
	inst, ports, out, ok := prepareAudio(env)
	if !ok {
		return out
	}
	p := newProcessor(env, inst, ports, processorConfig{frames: maxRandomBlockSize, notes: true})
	if err := p.activate(); err != nil {
		return outcomeFor(err)
	}
	err := inst.OnAudioThread(func(at *host.AudioThread) error {
		if err := at.StartProcessing(); err != nil {
			return err
		}
		for block := 0; block < randomBlockIterations; block++ {
			frames := uint32(1)
			if p.rng.Float64() < 0.8 {
				frames = 2 + p.rng.Uint32N(maxRandomBlockSize-1)
			}
			_, err := p.process(at, frames, false, func(in *abi.EventList) {
				p.notes.generate(p.rng, frames, in)
			})
			if err != nil {
				return fmt.Errorf("with a block size of %d: %w", frames, err)
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

// testSleepConstantMask processes a silent block, a noisy block with
// notes, and then silence long enough for tails to decay. Every output
// channel flagged as constant must be quiet.
func testSleepConstantMask(env *Env) result.Outcome {
	inst, ports, out, ok := prepareAudio(env)
	if !ok {
		return out
	}
	p := newProcessor(env, inst, ports, processorConfig{notes: true})
	if err := p.activate(); err != nil {
		return outcomeFor(err)
	}

	var flagged, quiet bool
	check := func(stage string) error {
		if port, channel, level, loud := p.bufs.loudChannel(p.frames, false); loud {
			return fmt.Errorf("%s: the plugin has marked output port %d, channel %d as constant, but it contains "+
				"non-constant data (%.2f dBFS)", stage, port, channel, dBFS(level))
		}
		flagged = flagged || p.bufs.outputsFlagged()
		quiet = quiet || p.bufs.quietChannels(p.frames) > 0
		return nil
	}
	err := inst.OnAudioThread(func(at *host.AudioThread) error {
		if err := at.StartProcessing(); err != nil {
			return err
		}
		if _, err := p.process(at, p.frames, true, nil); err != nil {
			return err
		}
		if err := check("silent preroll"); err != nil {
			return err
		}
		if err := p.processBlock(at, 0, nil); err != nil {
			return err
		}
		if err := check("random input"); err != nil {
			return err
		}
		for block := 0; block < silentTailBlocks; block++ {
			_, err := p.process(at, p.frames, true, func(in *abi.EventList) {
				if block == 0 {
					p.notes.stopAll(0, in)
				}
			})
			if err != nil {
				return err
			}
			if err := check(fmt.Sprintf("silent block %d", block+1)); err != nil {
				return err
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
	if quiet && !flagged {
		return result.Warn("The plugin does not seem to set the constant mask during processing.")
	}
	return result.Pass()
}

// sleepPhases alternates quiet and active stretches of sleepPhaseBlocks
// blocks each. true marks a quiet stretch.
var sleepPhases = []bool{true, false, true, false, true, true}

// testSleepProcessStatus tracks whether the plugin may be put to sleep
// from its process status and checks that a sleeping plugin fed silence
// stays quiet. request_process() wakes it up.
func testSleepProcessStatus(env *Env) result.Outcome {
	inst, ports, out, ok := prepareAudio(env)
	if !ok {
		return out
	}
	p := newProcessor(env, inst, ports, processorConfig{notes: true})
	if err := p.activate(); err != nil {
		return outcomeFor(err)
	}
	tail, hasTail := inst.Tail()

	var sleeping, slept bool
	var quietFrames uint32
	err := inst.OnAudioThread(func(at *host.AudioThread) error {
		if err := at.StartProcessing(); err != nil {
			return err
		}
		for _, quiet := range sleepPhases {
			for range sleepPhaseBlocks {
				if inst.ProcessRequested() {
					sleeping = false
				}
				var status abi.ProcessStatus
				var err error
				if quiet {
					status, err = p.process(at, p.frames, true, func(in *abi.EventList) { p.notes.stopAll(0, in) })
				} else {
					status, err = p.process(at, p.frames, false, func(in *abi.EventList) {
						p.notes.generate(p.rng, p.frames, in)
					})
				}
				if err != nil {
					return err
				}
				if sleeping && quiet {
					if port, channel, level, loud := p.bufs.loudChannel(p.frames, true); loud {
						return fmt.Errorf("the plugin is sleeping but output port %d, channel %d contains "+
							"non-constant data (%.2f dBFS)", port, channel, dBFS(level))
					}
				}
				slept = slept || sleeping

				switch status {
				case abi.ProcessContinue:
					sleeping = false
				case abi.ProcessSleep:
					sleeping = true
				case abi.ProcessContinueIfNotQuiet:
					sleeping = p.bufs.outputsConstant()
				case abi.ProcessTail:
					if !hasTail {
						return fmt.Errorf("the plugin returned CLAP_PROCESS_TAIL but does not implement the 'tail' " +
							"extension")
					}
					sleeping = tail.Get() < quietFrames
					if quiet {
						quietFrames += p.frames
					} else {
						quietFrames = 0
					}
				}
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
	if !slept {
		return result.Warn("The plugin never went to sleep during the test.")
	}
	return result.Pass()
}

// testResetDeterminism processes the same seeded audio and notes three
// times: after activation, after reset(), and after reactivation. All three
// runs must produce identical output.
func testResetDeterminism(env *Env) result.Outcome {
	inst, ports, out, ok := prepareAudio(env)
	if !ok {
		return out
	}
	seed := env.rng.Uint64()
	fresh := func() *processor {
		p := newProcessor(env, inst, ports, processorConfig{notes: true})
		p.rng = newRand(seed)
		return p
	}

	if err := fresh().activate(); err != nil {
		return outcomeFor(err)
	}
	var first, afterReset []float64
	err := inst.OnAudioThread(func(at *host.AudioThread) error {
		var err error
		if first, err = fresh().collect(at, processIterations); err != nil {
			return err
		}
		if err := at.Reset(); err != nil {
			return err
		}
		afterReset, err = fresh().collect(at, processIterations)
		return err
	})
	if err != nil {
		return outcomeFor(err)
	}
	if diff := outputMismatch(first, afterReset); diff != "" {
		return result.Fail("The output after calling 'clap_plugin::reset()' differs from the output of the first "+
			"run: %s.", diff)
	}

	if err := inst.Deactivate(); err != nil {
		return outcomeFor(err)
	}
	p := fresh()
	if err := p.activate(); err != nil {
		return outcomeFor(err)
	}
	var afterReactivate []float64
	err = inst.OnAudioThread(func(at *host.AudioThread) error {
		var err error
		afterReactivate, err = p.collect(at, processIterations)
		return err
	})
	if err != nil {
		return outcomeFor(err)
	}
	if diff := outputMismatch(first, afterReactivate); diff != "" {
		return result.Fail("The output after reactivating the plugin differs from the output of the first run: %s.",
			diff)
	}
	if err := inst.Deactivate(); err != nil {
		return outcomeFor(err)
	}
	return result.Pass()
}

// outputMismatch describes the first difference between want and got, or
// returns "" when they are identical.
func outputMismatch(want, got []float64) string {
	if len(want) != len(got) {
		return fmt.Sprintf("%d samples instead of %d", len(got), len(want))
	}
	for idx := range want {
		if want[idx] != got[idx] {
			return fmt.Sprintf("sample %d is %v instead of %v", idx, got[idx], want[idx])
		}
	}
	return ""
}
