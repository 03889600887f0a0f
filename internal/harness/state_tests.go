package harness

import (
	"bytes"
	"fmt"
	"maps"

	"github.com/roach88/clapval/internal/abi"
	"github.com/roach88/clapval/internal/result"
)

// bufferedStreamChunk is the prime number of bytes a stream accepts per
// call in state-buffered-streams.
const bufferedStreamChunk = 17

const (
	// randomStateSize is the size of each random state load.
	randomStateSize  = 1 << 20
	randomStateLoads = 3
)

func testStateInvalidRandom(env *Env) result.Outcome {
	inst, err := env.initInstance()
	if err != nil {
		return outcomeFor(err)
	}
	if _, ok := inst.State(); !ok {
		return result.Skip("The plugin does not implement the 'state' extension.")
	}
	data := make([]byte, randomStateSize)
	accepted := 0
	for n := 0; n < randomStateLoads; n++ {
		for idx := range data {
			data[idx] = byte(env.rng.Uint32())
		}
		env.step(fmt.Sprintf("load random state %d", n+1))
		loaded, err := inst.LoadState(data, 0)
		if err != nil {
			return outcomeFor(err)
		}
		if loaded {
			accepted++
		}
	}
	if accepted > 0 {
		return result.Warn("The plugin loaded %d out of %d random states successfully, which is unexpected, but "+
			"the plugin did not crash.", accepted, randomStateLoads)
	}
	return result.Pass()
}

func testStateInvalidEmpty(env *Env) result.Outcome {
	inst, err := env.initInstance()
	if err != nil {
		return outcomeFor(err)
	}
	if _, ok := inst.State(); !ok {
		return result.Skip("The plugin does not implement the 'state' extension.")
	}
	loaded, err := inst.LoadState(nil, 0)
	if err != nil {
		return outcomeFor(err)
	}
	if loaded {
		return result.Fail("The plugin returned true when 'clap_plugin_state::load()' was called with an empty " +
			"state, this is likely a bug.")
	}
	return result.Pass()
}

// stateReproducibility returns the body of the state roundtrip tests. A
// positive chunk limits how many bytes the streams move per call when the
// state is reloaded and saved again. With nullCookies the parameter events
// carry null cookies.
func stateReproducibility(chunk int, nullCookies bool) body {
	return func(env *Env) result.Outcome {
		inst, err := env.initInstance()
		if err != nil {
			return outcomeFor(err)
		}
		if _, ok := inst.State(); !ok {
			return result.Skip("The plugin does not implement the 'state' extension.")
		}
		infos, err := inst.ParamInfos()
		if err != nil {
			return outcomeFor(err)
		}
		ports, _, err := audioPortConfig(inst)
		if err != nil {
			return outcomeFor(err)
		}

		targets := writable(infos)
		if len(targets) > 0 {
			values := randomValueEvents(env.rng, targets, false)
			p := newProcessor(env, inst, ports, processorConfig{})
			err := p.runActivated(1, func(block int, in *abi.EventList) {
				if block == 0 {
					for _, info := range targets {
						ev := paramValueEvent(info, values[info.ID])
						if nullCookies {
							ev.Cookie = 0
						}
						in.Push(ev)
					}
				}
			})
			if err != nil {
				return outcomeFor(fmt.Errorf("setting parameter values %s: %w", formatValues(values), err))
			}
		}
		var expected map[uint32]float64
		if len(infos) > 0 {
			if expected, err = inst.ParamValues(infos); err != nil {
				return outcomeFor(err)
			}
		}
		env.step("save state")
		saved, err := inst.SaveState(0)
		if err != nil {
			return outcomeFor(err)
		}
		if err := env.release(inst); err != nil {
			return outcomeFor(err)
		}

		fresh, err := env.initInstance()
		if err != nil {
			return outcomeFor(err)
		}
		env.step("load state")
		loaded, err := fresh.LoadState(saved, chunk)
		if err != nil {
			return outcomeFor(err)
		}
		if !loaded {
			return result.Fail("The plugin returned false when 'clap_plugin_state::load()' was called with the %d "+
				"byte state it saved itself.", len(saved))
		}
		if len(infos) > 0 {
			actual, err := fresh.ParamValues(infos)
			if err != nil {
				return outcomeFor(err)
			}
			for _, info := range infos {
				if actual[info.ID] != expected[info.ID] {
					return result.Fail("After reloading the state, parameter %d (%q) has a value of %v instead of "+
						"the saved value %v.", info.ID, info.Name, actual[info.ID], expected[info.ID])
				}
			}
		}
		resaved, err := fresh.SaveState(chunk)
		if err != nil {
			return outcomeFor(err)
		}
		if !bytes.Equal(saved, resaved) {
			return result.Fail("Re-saving the loaded state resulted in a different state file (%d bytes, previously "+
				"%d bytes).", len(resaved), len(saved))
		}
		return result.Pass()
	}
}

// testStateReproducibilityFlush sets random values on one instance with
// clap_plugin_params::flush() and the same values on a second instance
// with process(), then compares parameter values and saved states.
func testStateReproducibilityFlush(env *Env) result.Outcome {
	inst, err := env.initInstance()
	if err != nil {
		return outcomeFor(err)
	}
	if _, ok := inst.Params(); !ok {
		return result.Skip("The plugin does not implement the 'params' extension.")
	}
	if _, ok := inst.State(); !ok {
		return result.Skip("The plugin does not implement the 'state' extension.")
	}
	infos, err := inst.ParamInfos()
	if err != nil {
		return outcomeFor(err)
	}
	initial, err := inst.ParamValues(infos)
	if err != nil {
		return outcomeFor(err)
	}
	targets := writable(infos)
	values := randomValueEvents(env.rng, targets, false)

	env.step("flush parameter values")
	var in abi.EventList
	pushValues(&in, 0, targets, values)
	if _, err := inst.FlushParams(&in); err != nil {
		return outcomeFor(err)
	}
	expected, err := inst.ParamValues(infos)
	if err != nil {
		return outcomeFor(err)
	}
	if len(targets) > 0 && maps.Equal(initial, expected) {
		return result.Fail("'clap_plugin_params::flush()' has been called with random parameter values, but the " +
			"plugin's reported parameter values have not changed.")
	}
	env.step("save state")
	flushed, err := inst.SaveState(0)
	if err != nil {
		return outcomeFor(err)
	}
	if err := env.release(inst); err != nil {
		return outcomeFor(err)
	}

	fresh, err := env.initInstance()
	if err != nil {
		return outcomeFor(err)
	}
	// Cookies belong to the instance that reported them.
	freshInfos, err := fresh.ParamInfos()
	if err != nil {
		return outcomeFor(err)
	}
	byID := make(map[uint32]abi.ParamInfo, len(freshInfos))
	for _, info := range freshInfos {
		byID[info.ID] = info
	}
	freshTargets := make([]abi.ParamInfo, 0, len(targets))
	for _, info := range targets {
		have, ok := byID[info.ID]
		if !ok {
			return result.Fail("Expected the second plugin instance to have a parameter with ID %d, but the "+
				"parameter is missing.", info.ID)
		}
		freshTargets = append(freshTargets, have)
	}
	ports, _, err := audioPortConfig(fresh)
	if err != nil {
		return outcomeFor(err)
	}
	p := newProcessor(env, fresh, ports, processorConfig{})
	err = p.runActivated(1, func(block int, in *abi.EventList) {
		if block == 0 {
			pushValues(in, 0, freshTargets, values)
		}
	})
	if err != nil {
		return outcomeFor(fmt.Errorf("setting parameter values %s: %w", formatValues(values), err))
	}

	actual, err := fresh.ParamValues(freshInfos)
	if err != nil {
		return outcomeFor(err)
	}
	for _, info := range infos {
		if actual[info.ID] != expected[info.ID] {
			return result.Fail("Setting the same parameter values through 'clap_plugin_params::flush()' and "+
				"through the process function results in different reported values: parameter %d (%q) is %v "+
				"instead of %v.", info.ID, info.Name, actual[info.ID], expected[info.ID])
		}
	}
	env.step("save state")
	processed, err := fresh.SaveState(0)
	if err != nil {
		return outcomeFor(err)
	}
	if !bytes.Equal(flushed, processed) {
		return result.Warn("Sending the same parameter values to two different instances of the plugin resulted "+
			"in different state files (%d bytes through flush, %d bytes through process).", len(flushed),
			len(processed))
	}
	return result.Pass()
}
