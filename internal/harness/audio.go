package harness

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/roach88/clapval/internal/abi"
	"github.com/roach88/clapval/internal/host"
)

const (
	// blockSize is the maximum block size used unless a test varies it.
	blockSize = 512
	// processIterations is how many blocks the basic processing tests run.
	processIterations = 5
	// defaultSampleRate is used unless a test varies the sample rate.
	defaultSampleRate = 44100.0

	minNormal32 = 0x1p-126
	minNormal64 = 0x1p-1022
)

// portConfig is the audio port layout a plugin reported.
type portConfig struct {
	inputs  []abi.AudioPortInfo
	outputs []abi.AudioPortInfo
}

// supports64 reports whether any port accepts double precision audio.
func (c portConfig) supports64() bool {
	for _, p := range c.inputs {
		if p.Supports64Bit() {
			return true
		}
	}
	for _, p := range c.outputs {
		if p.Supports64Bit() {
			return true
		}
	}
	return false
}

// audioPortConfig reads the plugin's audio ports. ok is false when the
// plugin does not implement the audio-ports extension.
func audioPortConfig(inst *host.Instance) (cfg portConfig, ok bool, err error) {
	ports, ok := inst.AudioPorts()
	if !ok {
		return portConfig{}, false, nil
	}
	read := func(isInput bool) ([]abi.AudioPortInfo, error) {
		n := ports.Count(isInput)
		infos := make([]abi.AudioPortInfo, 0, n)
		for idx := uint32(0); idx < n; idx++ {
			info, ok := ports.Get(idx, isInput)
			if !ok {
				return nil, fmt.Errorf("clap_plugin_audio_ports::get(%d, %t) returned false with %d ports", idx, isInput, n)
			}
			if info.ChannelCount == 0 {
				return nil, fmt.Errorf("audio port %d (%q) reports zero channels", idx, info.Name)
			}
			infos = append(infos, info)
		}
		return infos, nil
	}
	if cfg.inputs, err = read(true); err != nil {
		return portConfig{}, true, err
	}
	if cfg.outputs, err = read(false); err != nil {
		return portConfig{}, true, err
	}
	return cfg, true, nil
}

// bufferMode selects how buffers are laid out for a processing test.
type bufferMode struct {
	inPlace bool
	double  bool
}

// audioBuffers is host-owned audio storage for one port layout.
type audioBuffers struct {
	inputs  []abi.AudioBuffer
	outputs []abi.AudioBuffer
	// shared marks outputs that alias their in-place input.
	shared  []bool
}

func newAudioBuffers(cfg portConfig, frames uint32, mode bufferMode) *audioBuffers {
	b := &audioBuffers{
		inputs:  make([]abi.AudioBuffer, len(cfg.inputs)),
		outputs: make([]abi.AudioBuffer, len(cfg.outputs)),
		shared:  make([]bool, len(cfg.outputs)),
	}
	for idx, port := range cfg.inputs {
		b.inputs[idx] = allocBuffer(int(port.ChannelCount), frames, mode.double && port.Supports64Bit())
	}
	for idx, port := range cfg.outputs {
		is64 := mode.double && port.Supports64Bit()
		if mode.inPlace && port.InPlacePair != abi.InvalidID {
			if in := findPort(cfg.inputs, port.InPlacePair); in >= 0 &&
				cfg.inputs[in].ChannelCount == port.ChannelCount &&
				b.inputs[in].Is64() == is64 {
				b.outputs[idx] = b.inputs[in]
				b.shared[idx] = true
				continue
			}
		}
		b.outputs[idx] = allocBuffer(int(port.ChannelCount), frames, is64)
	}
	return b
}

func findPort(ports []abi.AudioPortInfo, id uint32) int {
	for idx, p := range ports {
		if p.ID == id {
			return idx
		}
	}
	return -1
}

func allocBuffer(channels int, frames uint32, is64 bool) abi.AudioBuffer {
	if is64 {
		data := make([][]float64, channels)
		for c := range data {
			data[c] = make([]float64, frames)
		}
		return abi.AudioBuffer{Data64: data}
	}
	data := make([][]float32, channels)
	for c := range data {
		data[c] = make([]float32, frames)
	}
	return abi.AudioBuffer{Data32: data}
}

// fillNoise writes white noise in [-1, 1] to every input and clears outputs
// that do not alias an input.
func (b *audioBuffers) fillNoise(rng *rand.Rand) {
	for idx := range b.inputs {
		buf := &b.inputs[idx]
		buf.ConstantMask = 0
		for _, ch := range buf.Data32 {
			for n := range ch {
				ch[n] = rng.Float32()*2 - 1
			}
		}
		for _, ch := range buf.Data64 {
			for n := range ch {
				ch[n] = rng.Float64()*2 - 1
			}
		}
	}
	b.clearOutputs()
}

// fillSilence zeroes every input and flags all of its channels as
// constant.
func (b *audioBuffers) fillSilence() {
	for idx := range b.inputs {
		buf := &b.inputs[idx]
		for _, ch := range buf.Data32 {
			clear(ch)
		}
		for _, ch := range buf.Data64 {
			clear(ch)
		}
		buf.ConstantMask = channelMask(buf.Channels())
	}
	b.clearOutputs()
}

func (b *audioBuffers) clearOutputs() {
	for idx := range b.outputs {
		b.outputs[idx].ConstantMask = 0
		if b.shared[idx] {
			continue
		}
		for _, ch := range b.outputs[idx].Data32 {
			clear(ch)
		}
		for _, ch := range b.outputs[idx].Data64 {
			clear(ch)
		}
	}
}

// channelMask has one bit set for each of the first channels channels.
func channelMask(channels int) uint64 {
	if channels >= 64 {
		return math.MaxUint64
	}
	return 1<<channels - 1
}

// quietThreshold is -60 dBFS.
const quietThreshold = 0.001

// channelLevel returns half the spread between the smallest and largest
// absolute sample, which ignores a DC offset.
func channelLevel(b *abi.AudioBuffer, channel int, frames uint32) float64 {
	if frames == 0 {
		return 0
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	visit := func(x float64) {
		x = math.Abs(x)
		lo, hi = math.Min(lo, x), math.Max(hi, x)
	}
	if b.Data64 != nil {
		for _, x := range b.Data64[channel][:frames] {
			visit(x)
		}
	} else {
		for _, x := range b.Data32[channel][:frames] {
			visit(float64(x))
		}
	}
	return (hi - lo) / 2
}

// loudChannel returns the first output channel flagged as constant that is
// not quiet. With all set, every output channel is checked regardless of
// its flag.
func (b *audioBuffers) loudChannel(frames uint32, all bool) (port, channel int, level float64, found bool) {
	for p := range b.outputs {
		buf := &b.outputs[p]
		for c := 0; c < buf.Channels(); c++ {
			if !all && (c >= 64 || buf.ConstantMask&(1<<c) == 0) {
				continue
			}
			if l := channelLevel(buf, c, frames); l >= quietThreshold {
				return p, c, l, true
			}
		}
	}
	return 0, 0, 0, false
}

// outputsFlagged reports whether any output channel is flagged constant.
func (b *audioBuffers) outputsFlagged() bool {
	for _, buf := range b.outputs {
		if buf.ConstantMask&channelMask(buf.Channels()) != 0 {
			return true
		}
	}
	return false
}

// quietChannels counts the output channels that are quiet.
func (b *audioBuffers) quietChannels(frames uint32) int {
	n := 0
	for p := range b.outputs {
		for c := 0; c < b.outputs[p].Channels(); c++ {
			if channelLevel(&b.outputs[p], c, frames) < quietThreshold {
				n++
			}
		}
	}
	return n
}

// outputsConstant reports whether every output channel is flagged constant.
func (b *audioBuffers) outputsConstant() bool {
	for _, buf := range b.outputs {
		want := channelMask(buf.Channels())
		if buf.ConstantMask&want != want {
			return false
		}
	}
	return true
}

func dBFS(level float64) float64 {
	return 20 * math.Log10(level)
}

// checkOutputs fails on the first non-finite or subnormal output sample
// within the first frames samples of each channel.
func (b *audioBuffers) checkOutputs(frames uint32) error {
	for port, buf := range b.outputs {
		for c, ch := range buf.Data32 {
			for n := uint32(0); n < frames; n++ {
				if err := checkSample(float64(ch[n]), minNormal32, port, c, n); err != nil {
					return err
				}
			}
		}
		for c, ch := range buf.Data64 {
			for n := uint32(0); n < frames; n++ {
				if err := checkSample(ch[n], minNormal64, port, c, n); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func checkSample(x, minNormal float64, port, channel int, index uint32) error {
	var kind string
	switch {
	case math.IsNaN(x):
		kind = "NaN"
	case math.IsInf(x, 0):
		kind = "infinite"
	case x != 0 && math.Abs(x) < minNormal:
		kind = "subnormal"
	default:
		return nil
	}
	return fmt.Errorf("the sample written to output port %d, channel %d, and sample index %d is %s (%v)",
		port, channel, index, kind, x)
}

// snapshot copies the first frames samples of every output channel as
// float64 values.
func (b *audioBuffers) snapshot(frames uint32) [][]float64 {
	var out [][]float64
	for _, buf := range b.outputs {
		for _, ch := range buf.Data32 {
			s := make([]float64, frames)
			for n := range s {
				s[n] = float64(ch[n])
			}
			out = append(out, s)
		}
		for _, ch := range buf.Data64 {
			out = append(out, append([]float64(nil), ch[:frames]...))
		}
	}
	return out
}
