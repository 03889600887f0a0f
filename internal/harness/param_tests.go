package harness

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/roach88/clapval/internal/abi"
	"github.com/roach88/clapval/internal/host"
	"github.com/roach88/clapval/internal/result"
)

const (
	fuzzPermutations       = 50
	fuzzRunsPerPermutation = 5

	// modulationBlocks is how many blocks param-fuzz-modulation processes.
	modulationBlocks = 20
	// maxModulationEvents bounds the parameter events sent per block.
	maxModulationEvents = 1024

	// wrongNamespaceID is an event space id no plugin should recognize as
	// the core namespace.
	wrongNamespaceID = 0xb33f
)

// paramSetup creates and initializes an instance and lists its
// parameters. When ok is false, out is the outcome to report.
func paramSetup(inst *host.Instance) (params abi.Params, infos []abi.ParamInfo, out result.Outcome, ok bool) {
	params, ok = inst.Params()
	if !ok {
		return nil, nil, result.Skip("The plugin does not implement the 'params' extension."), false
	}
	infos, err := inst.ParamInfos()
	if err != nil {
		return nil, nil, outcomeFor(err), false
	}
	if len(infos) == 0 {
		return nil, nil, result.Skip("The plugin does not have any parameters."), false
	}
	return params, infos, result.Outcome{}, true
}

func writable(infos []abi.ParamInfo) []abi.ParamInfo {
	var out []abi.ParamInfo
	for _, info := range infos {
		if !info.ReadOnly() {
			out = append(out, info)
		}
	}
	return out
}

func isIntegral(v float64) bool {
	return v == math.Trunc(v)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func testParamInfoValidity(env *Env) result.Outcome {
	inst, err := env.initInstance()
	if err != nil {
		return outcomeFor(err)
	}
	_, infos, out, ok := paramSetup(inst)
	if !ok {
		return out
	}
	var problems []string
	for _, info := range infos {
		var p []string
		switch {
		case !isFinite(info.MinValue) || !isFinite(info.MaxValue) || !isFinite(info.DefaultValue):
			p = append(p, "has a non-finite range or default value")
		case info.MinValue > info.MaxValue:
			p = append(p, fmt.Sprintf("has a minimum value %v above its maximum value %v", info.MinValue, info.MaxValue))
		case info.DefaultValue < info.MinValue || info.DefaultValue > info.MaxValue:
			p = append(p, fmt.Sprintf("has a default value %v outside of [%v, %v]", info.DefaultValue, info.MinValue, info.MaxValue))
		}
		if info.Stepped() && !(isIntegral(info.MinValue) && isIntegral(info.MaxValue) && isIntegral(info.DefaultValue)) {
			p = append(p, "is stepped but has non-integer bounds or default value")
		}
		if info.Name == "" {
			p = append(p, "has an empty name")
		}
		for _, msg := range p {
			problems = append(problems, fmt.Sprintf("parameter %d (%q) %s", info.ID, info.Name, msg))
		}
	}
	if len(problems) > 0 {
		return result.Fail("Invalid parameter information: %s.", strings.Join(problems, "; "))
	}
	return result.Pass()
}

// conversionValues are the values param-conversions converts for a
// parameter.
func conversionValues(info abi.ParamInfo) []float64 {
	mid := info.MinValue + info.Range()/2
	if info.Stepped() {
		mid = math.Round(mid)
	}
	return []float64{info.MinValue, info.MaxValue, info.DefaultValue, mid}
}

func testParamConversions(env *Env) result.Outcome {
	inst, err := env.initInstance()
	if err != nil {
		return outcomeFor(err)
	}
	params, infos, out, ok := paramSetup(inst)
	if !ok {
		return out
	}

	supported := 0
	for _, info := range infos {
		converts := true
		for _, value := range conversionValues(info) {
			text, ok := params.ValueToText(info.ID, value)
			if !ok {
				converts = false
				break
			}
			back, ok := params.TextToValue(info.ID, text)
			if !ok {
				return result.Fail("Parameter %d (%q) converts the value %v to the text '%s', but could not convert "+
					"that text back to a value.", info.ID, info.Name, value, text)
			}
			again, ok := params.ValueToText(info.ID, back)
			if !ok || again != text {
				return result.Fail("Converting %v to a string for parameter %d (%q) results in '%s', converting "+
					"that back to a value results in %v, and converting that to a string again results in '%s' "+
					"instead of the original string.", value, info.ID, info.Name, text, back, again)
			}
		}
		if converts {
			supported++
		}
	}
	switch supported {
	case 0:
		return result.Skip("None of the plugin's parameters support value to text conversions.")
	case len(infos):
		return result.Pass()
	default:
		return result.Fail("'clap_plugin_params::value_to_text()' is only supported for %d out of %d parameters.",
			supported, len(infos))
	}
}

func testParamDefaultValues(env *Env) result.Outcome {
	inst, err := env.initInstance()
	if err != nil {
		return outcomeFor(err)
	}
	_, infos, out, ok := paramSetup(inst)
	if !ok {
		return out
	}
	values, err := inst.ParamValues(infos)
	if err != nil {
		return outcomeFor(err)
	}
	var wrong []string
	for _, info := range infos {
		if v := values[info.ID]; v != info.DefaultValue {
			wrong = append(wrong, fmt.Sprintf("parameter %d (%q) has a default value of %v but was initialized to %v",
				info.ID, info.Name, info.DefaultValue, v))
		}
	}
	if len(wrong) > 0 {
		return result.Fail("Parameter values do not match their defaults after initialization: %s.", strings.Join(wrong, "; "))
	}
	return result.Pass()
}

// randomParamValue picks a value within the parameter's range. With snap
// set it returns either bound.
func randomParamValue(rng *rand.Rand, info abi.ParamInfo, snap bool) float64 {
	if snap {
		if rng.IntN(2) == 0 {
			return info.MinValue
		}
		return info.MaxValue
	}
	v := info.MinValue + rng.Float64()*info.Range()
	if info.Stepped() {
		v = math.Round(v)
	}
	return v
}

// paramValueEvent builds a core namespace CLAP_EVENT_PARAM_VALUE event.
func paramValueEvent(info abi.ParamInfo, value float64) *abi.ParamValueEvent {
	return &abi.ParamValueEvent{
		Head:      abi.EventHeader{SpaceID: abi.CoreEventSpaceID, Type: abi.EventParamValue},
		ParamID:   info.ID,
		Cookie:    info.Cookie,
		NoteID:    -1,
		PortIndex: -1,
		Channel:   -1,
		Key:       -1,
		Value:     value,
	}
}

// randomValueEvents draws a value for every parameter in infos.
func randomValueEvents(rng *rand.Rand, infos []abi.ParamInfo, snap bool) map[uint32]float64 {
	values := make(map[uint32]float64, len(infos))
	for _, info := range infos {
		values[info.ID] = randomParamValue(rng, info, snap)
	}
	return values
}

// pushValues appends a value event at sample t for every parameter in
// infos that has a value in values.
func pushValues(in *abi.EventList, t uint32, infos []abi.ParamInfo, values map[uint32]float64) {
	for _, info := range infos {
		if v, ok := values[info.ID]; ok {
			ev := paramValueEvent(info, v)
			ev.Head.Time = t
			in.Push(ev)
		}
	}
}

func formatValues(values map[uint32]float64) string {
	ids := make([]uint32, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	parts := make([]string, len(ids))
	for idx, id := range ids {
		parts[idx] = fmt.Sprintf("%d=%v", id, values[id])
	}
	return strings.Join(parts, ", ")
}

// paramFuzz returns the body of the parameter fuzzing tests.
func paramFuzz(snap bool) body {
	return func(env *Env) result.Outcome {
		inst, ports, out, ok := prepareAudio(env)
		if !ok {
			return out
		}
		_, infos, out, ok := paramSetup(inst)
		if !ok {
			return out
		}
		targets := writable(infos)
		if len(targets) == 0 {
			return result.Skip("The plugin does not have any writable parameters.")
		}

		p := newProcessor(env, inst, ports, processorConfig{notes: true})
		if err := p.activate(); err != nil {
			return outcomeFor(err)
		}
		var failure string
		err := inst.OnAudioThread(func(at *host.AudioThread) error {
			if err := at.StartProcessing(); err != nil {
				return err
			}
			for perm := 1; perm <= fuzzPermutations; perm++ {
				values := randomValueEvents(p.rng, targets, snap)
				err := p.processBlocks(at, fuzzRunsPerPermutation, func(block int, in *abi.EventList) {
					if block == 0 {
						pushValues(in, 0, targets, values)
					}
				})
				if err != nil {
					failure = fmt.Sprintf("permutation %d of %d with parameter values %s", perm, fuzzPermutations,
						formatValues(values))
					return err
				}
			}
			return at.StopProcessing()
		})
		if err != nil {
			if failure != "" {
				err = fmt.Errorf("%s: %w", failure, err)
			}
			return outcomeFor(err)
		}
		if err := inst.Deactivate(); err != nil {
			return outcomeFor(err)
		}
		return result.Pass()
	}
}

// sampleAccurateIntervals are the spacings, in samples, at which
// param-fuzz-sample-accurate sets new values for every parameter.
var sampleAccurateIntervals = []uint32{1000, 100, 10}

func testParamFuzzSampleAccurate(env *Env) result.Outcome {
	inst, ports, out, ok := prepareAudio(env)
	if !ok {
		return out
	}
	_, infos, out, ok := paramSetup(inst)
	if !ok {
		return out
	}
	targets := writable(infos)
	if len(targets) == 0 {
		return result.Skip("The plugin does not have any writable parameters.")
	}

	for _, interval := range sampleAccurateIntervals {
		p := newProcessor(env, inst, ports, processorConfig{notes: true})
		blocks := int((interval*4 + p.frames - 1) / p.frames)
		next := uint32(0)
		err := p.runActivated(blocks, func(_ int, in *abi.EventList) {
			for ; next < p.frames; next += interval {
				pushValues(in, next, targets, randomValueEvents(p.rng, targets, false))
			}
			next -= p.frames
		})
		if err != nil {
			return outcomeFor(fmt.Errorf("with new parameter values every %d samples: %w", interval, err))
		}
	}
	return result.Pass()
}

// modulationEvent builds a random value or modulation event for info.
// Modulatable parameters get modulation half of the time. Parameters that
// accept per-key changes target a random key half of the time. Values for
// parameters that are not automatable are sent as live changes.
func modulationEvent(rng *rand.Rand, info abi.ParamInfo, t uint32) abi.Event {
	key, channel := int16(-1), int16(-1)
	if info.PerKey() && rng.IntN(2) == 0 {
		key, channel = int16(rng.IntN(128)), int16(rng.IntN(16))
	}
	if info.Modulatable() && rng.IntN(2) == 0 {
		return &abi.ParamModEvent{
			Head:      abi.EventHeader{Time: t, SpaceID: abi.CoreEventSpaceID, Type: abi.EventParamMod},
			ParamID:   info.ID,
			Cookie:    info.Cookie,
			NoteID:    -1,
			PortIndex: -1,
			Channel:   channel,
			Key:       key,
			Amount:    (rng.Float64()*2 - 1) * info.Range(),
		}
	}
	ev := paramValueEvent(info, randomParamValue(rng, info, false))
	ev.Head.Time = t
	ev.Channel, ev.Key = channel, key
	if !info.Automatable() {
		ev.Head.Flags = abi.EventIsLive
	}
	return ev
}

// testParamFuzzModulation sends value and modulation events for random
// parameters at irregular intervals while notes play.
func testParamFuzzModulation(env *Env) result.Outcome {
	inst, ports, out, ok := prepareAudio(env)
	if !ok {
		return out
	}
	_, infos, out, ok := paramSetup(inst)
	if !ok {
		return out
	}
	targets := writable(infos)
	if len(targets) == 0 {
		return result.Skip("The plugin does not have any writable parameters.")
	}

	p := newProcessor(env, inst, ports, processorConfig{notes: true})
	err := p.runActivated(modulationBlocks, func(_ int, in *abi.EventList) {
		t := uint32(p.rng.IntN(21))
		for n := 0; t < p.frames && n < maxModulationEvents; n++ {
			in.Push(modulationEvent(p.rng, targets[p.rng.IntN(len(targets))], t))
			t += uint32(max(p.rng.IntN(31)-10, 0))
		}
	})
	if err != nil {
		return outcomeFor(err)
	}
	return result.Pass()
}

func testParamSetWrongNamespace(env *Env) result.Outcome {
	inst, ports, out, ok := prepareAudio(env)
	if !ok {
		return out
	}
	_, infos, out, ok := paramSetup(inst)
	if !ok {
		return out
	}
	targets := writable(infos)
	if len(targets) == 0 {
		return result.Skip("The plugin does not have any writable parameters.")
	}
	before, err := inst.ParamValues(targets)
	if err != nil {
		return outcomeFor(err)
	}

	p := newProcessor(env, inst, ports, processorConfig{})
	err = p.runActivated(1, func(_ int, in *abi.EventList) {
		for _, info := range targets {
			v := info.MaxValue
			if before[info.ID] == info.MaxValue {
				v = info.MinValue
			}
			ev := paramValueEvent(info, v)
			ev.Head.SpaceID = wrongNamespaceID
			in.Push(ev)
		}
	})
	if err != nil {
		return outcomeFor(err)
	}

	after, err := inst.ParamValues(targets)
	if err != nil {
		return outcomeFor(err)
	}
	for _, info := range targets {
		if before[info.ID] != after[info.ID] {
			return result.Fail("Sending events with type ID %d (CLAP_EVENT_PARAM_VALUE) and a mismatching namespace "+
				"ID 0x%x to the plugin caused parameter %d (%q) to change from %v to %v. The plugin may not be "+
				"checking the event's namespace ID.", abi.EventParamValue, wrongNamespaceID, info.ID, info.Name,
				before[info.ID], after[info.ID])
		}
	}
	return result.Pass()
}
