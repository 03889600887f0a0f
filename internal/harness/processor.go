package harness

import (
	"fmt"
	"math/rand/v2"

	"github.com/roach88/clapval/internal/abi"
	"github.com/roach88/clapval/internal/host"
)

// processor drives repeated process() calls with host-owned buffers.
type processor struct {
	env        *Env
	inst       *host.Instance
	bufs       *audioBuffers
	frames     uint32
	sampleRate float64
	transport  *transportState
	notes      *noteGenerator
	rng        *rand.Rand
	steadyTime int64

	in  abi.EventList
	out abi.EventList
}

// processorConfig collects the knobs the processing tests vary.
type processorConfig struct {
	mode        bufferMode
	sampleRate  float64
	frames      uint32
	noTransport bool
	notes       bool

	// inconsistentNotes lets the note generator send note offs and chokes
	// for notes that are not playing.
	inconsistentNotes bool
}

func (c processorConfig) withDefaults() processorConfig {
	if c.sampleRate == 0 {
		c.sampleRate = defaultSampleRate
	}
	if c.frames == 0 {
		c.frames = blockSize
	}
	return c
}

func newProcessor(env *Env, inst *host.Instance, ports portConfig, cfg processorConfig) *processor {
	cfg = cfg.withDefaults()
	p := &processor{
		env:        env,
		inst:       inst,
		bufs:       newAudioBuffers(ports, cfg.frames, cfg.mode),
		frames:     cfg.frames,
		sampleRate: cfg.sampleRate,
		rng:        env.rng,
	}
	if !cfg.noTransport {
		p.transport = newTransport(cfg.sampleRate)
	}
	if cfg.notes {
		p.notes = newNoteGenerator(inst)
		if p.notes != nil {
			p.notes.inconsistent = cfg.inconsistentNotes
		}
	}
	return p
}

// activate activates the instance with the processor's sample rate and
// block size.
func (p *processor) activate() error {
	p.env.step(fmt.Sprintf("activate %g Hz, %d frames", p.sampleRate, p.frames))
	return p.inst.Activate(p.sampleRate, 1, p.frames)
}

// run processes blocks blocks of white noise on the audio thread, starting
// and stopping processing around them. events, when set, adds input events
// for each block after generated notes.
func (p *processor) run(blocks int, events func(block int, in *abi.EventList)) error {
	return p.inst.OnAudioThread(func(at *host.AudioThread) error {
		if err := at.StartProcessing(); err != nil {
			return err
		}
		if err := p.processBlocks(at, blocks, events); err != nil {
			return err
		}
		return at.StopProcessing()
	})
}

func (p *processor) processBlocks(at *host.AudioThread, blocks int, events func(block int, in *abi.EventList)) error {
	for block := 0; block < blocks; block++ {
		if err := p.env.ctx.Err(); err != nil {
			return err
		}
		if err := p.processBlock(at, block, events); err != nil {
			return err
		}
	}
	return nil
}

func (p *processor) processBlock(at *host.AudioThread, block int, events func(block int, in *abi.EventList)) error {
	_, err := p.process(at, p.frames, false, func(in *abi.EventList) {
		p.notes.generate(p.rng, p.frames, in)
		if events != nil {
			events(block, in)
		}
	})
	return err
}

// process runs a single process() call over frames samples of white noise,
// or of silence when silent is set. The block's transport is captured before
// events runs, so events may change the transport for later blocks.
func (p *processor) process(at *host.AudioThread, frames uint32, silent bool, events func(in *abi.EventList)) (abi.ProcessStatus, error) {
	if silent {
		p.bufs.fillSilence()
	} else {
		p.bufs.fillNoise(p.rng)
	}
	p.in.Clear()
	p.out.Clear()

	data := &abi.ProcessData{
		SteadyTime:   p.steadyTime,
		FramesCount:  frames,
		AudioInputs:  p.bufs.inputs,
		AudioOutputs: p.bufs.outputs,
		InEvents:     &p.in,
		OutEvents:    &p.out,
	}
	if p.transport != nil {
		data.Transport = p.transport.event()
	}
	if events != nil {
		events(&p.in)
	}
	p.in.Sort()

	status, err := at.Process(data)
	if err != nil {
		return status, err
	}
	if err := p.bufs.checkOutputs(frames); err != nil {
		return status, err
	}

	p.steadyTime += int64(frames)
	if p.transport != nil {
		p.transport.advance(frames)
	}
	return status, nil
}

// collect processes blocks blocks between start_processing() and
// stop_processing() and returns all output samples in order.
func (p *processor) collect(at *host.AudioThread, blocks int) ([]float64, error) {
	if err := at.StartProcessing(); err != nil {
		return nil, err
	}
	var samples []float64
	for block := 0; block < blocks; block++ {
		if err := p.processBlock(at, block, nil); err != nil {
			return nil, err
		}
		for _, ch := range p.bufs.snapshot(p.frames) {
			samples = append(samples, ch...)
		}
	}
	return samples, at.StopProcessing()
}

// runActivated activates, processes blocks, and deactivates.
func (p *processor) runActivated(blocks int, events func(block int, in *abi.EventList)) error {
	if err := p.activate(); err != nil {
		return err
	}
	if err := p.run(blocks, events); err != nil {
		return err
	}
	p.env.step("deactivate")
	return p.inst.Deactivate()
}
