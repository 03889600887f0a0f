package abitest

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/roach88/clapval/internal/abi"
)

// PluginSpec describes a fake plugin.
type PluginSpec struct {
	Descriptor   abi.Descriptor
	AudioInputs  []abi.AudioPortInfo
	AudioOutputs []abi.AudioPortInfo
	NoteInputs   []abi.NotePortInfo
	NoteOutputs  []abi.NotePortInfo
	Params       []abi.ParamInfo
	HasState     bool
	Faults       []Fault
}

// Has reports whether the plugin carries fault f.
func (s *PluginSpec) Has(f Fault) bool {
	for _, have := range s.Faults {
		if have == f {
			return true
		}
	}
	return false
}

const stateMagic = "CVG1"

// Plugin is a fake abi.Plugin. Audio is processed as output = input * gain,
// where gain is parameter 1 when present. Held notes add a constant offset.
// Constant output channels are flagged in the constant mask and process()
// returns CLAP_PROCESS_CONTINUE_IF_NOT_QUIET.
type Plugin struct {
	spec *PluginSpec
	host abi.Host

	mu      sync.Mutex
	calls   []string
	values  map[uint32]float64
	notes   map[int16]bool
	counter float64
	active  bool
}

func newPlugin(spec *PluginSpec, host abi.Host) *Plugin {
	p := &Plugin{
		spec:   spec,
		host:   host,
		values: make(map[uint32]float64, len(spec.Params)),
		notes:  make(map[int16]bool),
	}
	for _, info := range spec.Params {
		v := info.DefaultValue
		if spec.Has(FaultDefaultMismatch) {
			v += info.Range() / 4
		}
		p.values[info.ID] = v
	}
	return p
}

func (p *Plugin) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

// Calls returns the plugin functions invoked so far, in order.
func (p *Plugin) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *Plugin) Descriptor() *abi.Descriptor {
	d := p.spec.Descriptor
	d.Features = append([]string(nil), d.Features...)
	return &d
}

func (p *Plugin) Init() bool {
	p.record("init")
	if p.spec.Has(FaultExitOnInit) {
		os.Exit(3)
	}
	return p.host.IsMainThread()
}

func (p *Plugin) Destroy() {
	p.record("destroy")
}

func (p *Plugin) Activate(sampleRate float64, minFrames, maxFrames uint32) bool {
	p.record("activate")
	if p.spec.Has(FaultHangOnActivate) {
		time.Sleep(time.Hour)
	}
	if sampleRate <= 0 || minFrames < 1 || maxFrames < minFrames {
		return false
	}
	p.mu.Lock()
	clear(p.notes)
	p.mu.Unlock()
	p.active = true
	return true
}

func (p *Plugin) Deactivate() {
	p.record("deactivate")
	p.active = false
}

func (p *Plugin) StartProcessing() bool {
	p.record("start_processing")
	return p.host.IsAudioThread()
}

func (p *Plugin) StopProcessing() {
	p.record("stop_processing")
}

func (p *Plugin) Reset() {
	p.record("reset")
	p.mu.Lock()
	clear(p.notes)
	p.mu.Unlock()
}

func (p *Plugin) Process(data *abi.ProcessData) abi.ProcessStatus {
	p.record("process")
	if !p.host.IsAudioThread() {
		p.host.Log(abi.LogHostMisbehaving, "process() called outside the audio thread")
		return abi.ProcessError
	}
	switch {
	case p.spec.Has(FaultPanicOnProcess):
		panic("fixture panic inside process()")
	case p.spec.Has(FaultKillOnProcess):
		_ = unix.Kill(os.Getpid(), unix.SIGKILL)
		time.Sleep(time.Hour)
	case p.spec.Has(FaultLatencyFromAudioThread):
		p.host.LatencyChanged()
	}

	p.applyEvents(data.InEvents)

	p.mu.Lock()
	gain := 1.0
	if v, ok := p.values[1]; ok {
		gain = v
	}
	offset := 0.0
	for range p.notes {
		offset += 0.1
	}
	if p.spec.Has(FaultNondeterministic) {
		p.counter += 0.001
		offset += p.counter
	}
	p.mu.Unlock()

	if p.spec.Has(FaultNaNOutput) {
		gain = math.NaN()
	}
	for i := range data.AudioOutputs {
		out := &data.AudioOutputs[i]
		var in *abi.AudioBuffer
		if i < len(data.AudioInputs) {
			in = &data.AudioInputs[i]
		}
		process32(in, out, gain, offset, data.FramesCount)
		process64(in, out, gain, offset, data.FramesCount)
		switch {
		case p.spec.Has(FaultFalseConstantMask):
			out.ConstantMask = math.MaxUint64
		case p.spec.Has(FaultNeverSleeps):
			out.ConstantMask = 0
		default:
			out.ConstantMask = constantMask(out, data.FramesCount)
		}
	}

	switch {
	case p.spec.Has(FaultBadProcessStatus):
		return abi.ProcessStatus(7)
	case p.spec.Has(FaultNeverSleeps):
		return abi.ProcessContinue
	}
	return abi.ProcessContinueIfNotQuiet
}

// constantMask marks every channel whose first frames samples are equal.
func constantMask(b *abi.AudioBuffer, frames uint32) uint64 {
	var mask uint64
	for c, ch := range b.Data32 {
		if c < 64 && frames > 0 && !slices.ContainsFunc(ch[1:frames], func(x float32) bool { return x != ch[0] }) {
			mask |= 1 << c
		}
	}
	for c, ch := range b.Data64 {
		if c < 64 && frames > 0 && !slices.ContainsFunc(ch[1:frames], func(x float64) bool { return x != ch[0] }) {
			mask |= 1 << c
		}
	}
	return mask
}

func process32(in, out *abi.AudioBuffer, gain, offset float64, frames uint32) {
	for c, ch := range out.Data32 {
		for n := uint32(0); n < frames; n++ {
			x := 0.0
			if in != nil && c < len(in.Data32) {
				x = float64(in.Data32[c][n])
			}
			ch[n] = float32(x*gain + offset)
		}
	}
}

func process64(in, out *abi.AudioBuffer, gain, offset float64, frames uint32) {
	for c, ch := range out.Data64 {
		for n := uint32(0); n < frames; n++ {
			x := 0.0
			if in != nil && c < len(in.Data64) {
				x = in.Data64[c][n]
			}
			ch[n] = x*gain + offset
		}
	}
}

func (p *Plugin) applyEvents(events *abi.EventList) {
	if events == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ev := range events.Events {
		h := ev.Header()
		if h.SpaceID != abi.CoreEventSpaceID && !p.spec.Has(FaultHonoursForeignNamespace) {
			continue
		}
		switch e := ev.(type) {
		case *abi.ParamValueEvent:
			info, ok := p.paramInfo(e.ParamID)
			if !ok || info.ReadOnly() {
				continue
			}
			v := math.Min(math.Max(e.Value, info.MinValue), info.MaxValue)
			if info.Stepped() {
				v = math.Round(v)
			}
			p.values[e.ParamID] = v
		case *abi.NoteEvent:
			switch h.Type {
			case abi.EventNoteOn:
				p.notes[e.Key] = true
			case abi.EventNoteOff, abi.EventNoteChoke:
				delete(p.notes, e.Key)
			}
		case *abi.MidiEvent:
			switch e.Data[0] & 0xf0 {
			case 0x90:
				p.notes[int16(e.Data[1])] = true
			case 0x80:
				delete(p.notes, int16(e.Data[1]))
			}
		}
	}
}

func (p *Plugin) paramInfo(id uint32) (abi.ParamInfo, bool) {
	for _, info := range p.spec.Params {
		if info.ID == id {
			return info, true
		}
	}
	return abi.ParamInfo{}, false
}

func (p *Plugin) Extension(id string) any {
	p.record("get_extension(" + id + ")")
	switch id {
	case abi.ExtAudioPorts:
		if len(p.spec.AudioInputs)+len(p.spec.AudioOutputs) > 0 {
			return audioPorts{p}
		}
	case abi.ExtNotePorts:
		if len(p.spec.NoteInputs)+len(p.spec.NoteOutputs) > 0 {
			return notePorts{p}
		}
	case abi.ExtParams:
		if len(p.spec.Params) > 0 {
			return params{p}
		}
	case abi.ExtState:
		if p.spec.HasState {
			return state{p}
		}
	case abi.ExtLatency:
		return latency{}
	}
	return nil
}

func (p *Plugin) OnMainThread() {
	p.record("on_main_thread")
}

type audioPorts struct{ p *Plugin }

func (a audioPorts) Count(isInput bool) uint32 {
	if isInput {
		return uint32(len(a.p.spec.AudioInputs))
	}
	return uint32(len(a.p.spec.AudioOutputs))
}

func (a audioPorts) Get(index uint32, isInput bool) (abi.AudioPortInfo, bool) {
	ports := a.p.spec.AudioOutputs
	if isInput {
		ports = a.p.spec.AudioInputs
	}
	if int(index) >= len(ports) {
		return abi.AudioPortInfo{}, false
	}
	return ports[index], true
}

type notePorts struct{ p *Plugin }

func (n notePorts) Count(isInput bool) uint32 {
	if isInput {
		return uint32(len(n.p.spec.NoteInputs))
	}
	return uint32(len(n.p.spec.NoteOutputs))
}

func (n notePorts) Get(index uint32, isInput bool) (abi.NotePortInfo, bool) {
	ports := n.p.spec.NoteOutputs
	if isInput {
		ports = n.p.spec.NoteInputs
	}
	if int(index) >= len(ports) {
		return abi.NotePortInfo{}, false
	}
	return ports[index], true
}

type params struct{ p *Plugin }

func (x params) Count() uint32 {
	return uint32(len(x.p.spec.Params))
}

func (x params) Info(index uint32) (abi.ParamInfo, bool) {
	if int(index) >= len(x.p.spec.Params) {
		return abi.ParamInfo{}, false
	}
	return x.p.spec.Params[index], true
}

func (x params) Value(paramID uint32) (float64, bool) {
	x.p.mu.Lock()
	defer x.p.mu.Unlock()
	v, ok := x.p.values[paramID]
	return v, ok
}

func (x params) ValueToText(paramID uint32, value float64) (string, bool) {
	info, ok := x.p.paramInfo(paramID)
	if !ok {
		return "", false
	}
	if info.Stepped() {
		return strconv.FormatInt(int64(math.Round(value)), 10), true
	}
	return strconv.FormatFloat(value, 'f', 4, 64), true
}

func (x params) TextToValue(paramID uint32, text string) (float64, bool) {
	if _, ok := x.p.paramInfo(paramID); !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (x params) Flush(in *abi.EventList, _ *abi.EventList) {
	x.p.record("params.flush")
	if !x.p.spec.Has(FaultIgnoresFlush) {
		x.p.applyEvents(in)
	}
}

type state struct{ p *Plugin }

func (s state) Save(out abi.OutputStream) bool {
	s.p.mu.Lock()
	buf := []byte(stateMagic)
	for _, info := range s.p.spec.Params {
		buf = binary.LittleEndian.AppendUint32(buf, info.ID)
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(s.p.values[info.ID]))
	}
	s.p.mu.Unlock()

	for len(buf) > 0 {
		n := out.Write(buf)
		if n <= 0 {
			return false
		}
		buf = buf[n:]
	}
	return true
}

func (s state) Load(in abi.InputStream) bool {
	var data []byte
	chunk := make([]byte, 64)
	for {
		n := in.Read(chunk)
		if n < 0 {
			return false
		}
		if n == 0 {
			break
		}
		data = append(data, chunk[:n]...)
	}
	if len(data) == 0 && s.p.spec.Has(FaultLoadsEmptyState) {
		return true
	}
	values, err := decodeState(data)
	if err != nil {
		return s.p.spec.Has(FaultAcceptsAnyState)
	}
	s.p.mu.Lock()
	for id, v := range values {
		s.p.values[id] = v
	}
	s.p.mu.Unlock()
	return true
}

func decodeState(data []byte) (map[uint32]float64, error) {
	if len(data) < len(stateMagic) || string(data[:len(stateMagic)]) != stateMagic {
		return nil, fmt.Errorf("bad state header")
	}
	body := data[len(stateMagic):]
	if len(body)%12 != 0 {
		return nil, fmt.Errorf("truncated state body")
	}
	values := make(map[uint32]float64, len(body)/12)
	for len(body) > 0 {
		id := binary.LittleEndian.Uint32(body)
		values[id] = math.Float64frombits(binary.LittleEndian.Uint64(body[4:]))
		body = body[12:]
	}
	return values, nil
}

type latency struct{}

func (latency) Get() uint32 { return 0 }
