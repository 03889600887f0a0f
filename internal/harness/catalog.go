package harness

import (
	"fmt"
	"sync"

	"github.com/roach88/clapval/internal/registry"
	"github.com/roach88/clapval/internal/result"
)

// body implements one test case.
type body func(env *Env) result.Outcome

type entry struct {
	tc  registry.TestCase
	run body
}

func libraryTest(id, description string, run body) entry {
	return entry{
		tc:  registry.TestCase{ID: id, Description: description, Kind: registry.KindLibrary, DefaultEnabled: true},
		run: run,
	}
}

func pluginTest(id, description string, run body) entry {
	return entry{
		tc:  registry.TestCase{ID: id, Description: description, Kind: registry.KindPlugin, DefaultEnabled: true},
		run: run,
	}
}

func pedantic(e entry) entry {
	e.tc.Pedantic = true
	return e
}

const basicProcessing = "Processes random audio through the plugin with its default parameter values and tests " +
	"whether the output does not contain any non-finite or subnormal values."

// catalog lists every test in execution order. Library tests run before
// the plugin tests of the same module.
var catalog = []entry{
	libraryTest("scan-time",
		fmt.Sprintf("Checks whether the plugin can be scanned in under %d milliseconds.", scanTimeLimit.Milliseconds()),
		testScanTime),
	libraryTest("query-factory-nonexistent",
		"Tries to query a factory from the plugin's entry point with a non-existent ID. This should return a null pointer.",
		testQueryNonexistentFactory),
	libraryTest("create-id-with-trailing-garbage",
		"Attempts to create a plugin instance using an existing plugin ID with some extra text appended to the end. "+
			"This should return a null pointer.",
		testCreateIDWithTrailingGarbage),

	pluginTest("descriptor-consistency",
		"The plugin descriptor returned from the plugin factory and the plugin descriptor stored on the 'clap_plugin' "+
			"object should be equivalent.",
		testDescriptorConsistency),
	pluginTest("features-categories",
		"The plugin needs to have at least one of the main CLAP category features.",
		testFeaturesCategories),
	pedantic(pluginTest("features-duplicates",
		"The plugin's features array should not contain any duplicates.",
		testFeaturesDuplicates)),
	pluginTest("lifecycle-reactivation",
		"Activates, processes, and deactivates the plugin twice with different sample rates and block sizes. The "+
			"plugin must accept being reactivated after a deactivation.",
		testLifecycleReactivation),
	pluginTest("process-audio-basic-out-of-place",
		basicProcessing+" Uses out-of-place audio processing.",
		processAudio(bufferMode{})),
	pluginTest("process-audio-basic-in-place",
		basicProcessing+" Uses in-place audio processing for buses that support it.",
		processAudio(bufferMode{inPlace: true})),
	pluginTest("process-audio-double-out-of-place",
		"Same as 'process-audio-basic-out-of-place', but uses 64-bit floating point audio buffers instead of 32-bit "+
			"ones for ports that support it.",
		processAudio(bufferMode{double: true})),
	pluginTest("process-audio-double-in-place",
		"Same as 'process-audio-basic-in-place', but uses 64-bit floating point audio buffers instead of 32-bit ones "+
			"for ports that support it.",
		processAudio(bufferMode{inPlace: true, double: true})),
	pluginTest("process-sleep-constant-mask",
		"Processes random audio through the plugin with its default parameter values while setting the constant mask "+
			"on silent blocks, and tests whether the output does not contain any non-finite or subnormal values and "+
			"that the plugin sets the constant mask correctly.",
		testSleepConstantMask),
	pluginTest("process-sleep-process-status",
		"Processes random audio through the plugin with its default parameter values while checking if the output is "+
			"consistent with the returned process status, and tests whether the output does not contain any "+
			"non-finite or subnormal values and that the plugin sets the process status correctly.",
		testSleepProcessStatus),
	pluginTest("process-note-out-of-place-basic",
		"Sends audio and random note and MIDI events to the plugin with its default parameter values and tests the "+
			"output for consistency. Uses out-of-place audio processing.",
		processNotes(false)),
	pluginTest("process-note-inconsistent",
		"Sends intentionally inconsistent and mismatching note and MIDI events to the plugin with its default "+
			"parameter values and tests the output for consistency. Uses out-of-place audio processing.",
		processNotes(true)),
	pluginTest("process-varying-sample-rates",
		"Processes random audio and random note events through the plugin with its default parameter values while "+
			"trying different sample rates ranging from 8kHz to 768kHz, including fractional rates, and tests whether "+
			"the output does not contain any non-finite or subnormal values. Uses out-of-place audio processing.",
		testVaryingSampleRates),
	pluginTest("process-varying-block-sizes",
		"Processes random audio and random note events through the plugin with its default parameter values while "+
			"trying different maximum block sizes ranging from 1 to 32k, including non-power-of-two ones, and tests "+
			"whether the output does not contain any non-finite or subnormal values. Uses out-of-place audio processing.",
		testVaryingBlockSizes),
	pluginTest("process-random-block-sizes",
		fmt.Sprintf("Processes random audio and random note events through the plugin with a maximum block size of "+
			"%d while randomizing the block size of each process call, and tests whether the output does not contain "+
			"any non-finite or subnormal values. Uses out-of-place audio processing.", maxRandomBlockSize),
		testRandomBlockSizes),
	pluginTest("process-audio-reset-determinism",
		"Asserts that resetting the plugin via 'clap_plugin::reset()' and via re-activation results in deterministic "+
			"output when processing the same audio and events again.",
		testResetDeterminism),
	pluginTest("param-info-validity",
		"Checks that every parameter has a finite range containing its default value, that stepped parameters use "+
			"integral bounds, and that parameter IDs are unique.",
		testParamInfoValidity),
	pedantic(pluginTest("param-conversions",
		"Asserts that value to string and string to value conversions are supported for either all or none of the "+
			"plugin's parameters, and that conversions between values and strings roundtrip consistently.",
		testParamConversions)),
	pluginTest("param-default-values",
		"Asserts that the values for all parameters are set correctly to their default values when the plugin is "+
			"initialized.",
		testParamDefaultValues),
	pluginTest("param-fuzz-basic",
		fmt.Sprintf("Generates %d sets of random parameter values, sets those on the plugin, and has the plugin "+
			"process %d buffers of random audio and note events. The plugin passes the test if it doesn't produce any "+
			"infinite or NaN values, and doesn't crash.", fuzzPermutations, fuzzRunsPerPermutation),
		paramFuzz(false)),
	pluginTest("param-fuzz-bounds",
		"The exact same test as 'param-fuzz-basic', but this time the parameter values are snapped to the minimum "+
			"and maximum values.",
		paramFuzz(true)),
	pluginTest("param-fuzz-sample-accurate",
		"Sets parameter values in a sample-accurate fashion while processing audio, generating them at fixed "+
			"intervals (10, 100, 1000 samples). The plugin passes the test if it doesn't produce any infinite or NaN "+
			"values, and doesn't crash.",
		testParamFuzzSampleAccurate),
	pluginTest("param-fuzz-modulation",
		"Sends parameter change events, including monophonic modulation and polyphonic automation/modulation events "+
			"at random irregular unsynchronized intervals, and has the plugin process them. The plugin passes the test "+
			"if it doesn't produce any infinite or NaN values, and doesn't crash.",
		testParamFuzzModulation),
	pluginTest("param-set-wrong-namespace",
		"Sends events to the plugin with the 'CLAP_EVENT_PARAM_VALUE' event type but with a mismatching namespace "+
			"ID. Asserts that the plugin's parameter values don't change.",
		testParamSetWrongNamespace),
	pluginTest("state-invalid-empty",
		"The plugin should return false when 'clap_plugin_state::load()' is called with an empty state.",
		testStateInvalidEmpty),
	pluginTest("state-invalid-random",
		"Loads 3x1MB chunks of random bytes via 'clap_plugin_state::load()' and asserts that the plugin doesn't crash.",
		testStateInvalidRandom),
	pluginTest("state-reproducibility-basic",
		"Randomizes a plugin's parameters, saves its state, recreates the plugin instance, reloads the state, and "+
			"then checks whether the parameter values are the same and whether saving the state once more results in "+
			"the same state file as before. The parameter values are updated using the process function.",
		stateReproducibility(0, false)),
	pluginTest("state-reproducibility-null-cookies",
		"The exact same test as 'state-reproducibility-basic', but with all cookies in the parameter events set to "+
			"null pointers. The plugin should handle this in the same way as the other test case.",
		stateReproducibility(0, true)),
	pluginTest("state-reproducibility-flush",
		"Randomizes a plugin's parameters, saves its state, recreates the plugin instance, sets the same parameters "+
			"as before, saves the state again, and then asserts that the two states are identical. The parameter "+
			"values are updated using the flush function to create the first state, and using the process function "+
			"to create the second state.",
		testStateReproducibilityFlush),
	pluginTest("state-buffered-streams",
		fmt.Sprintf("Performs the same state and parameter reproducibility check as in 'state-reproducibility-basic', "+
			"but this time the plugin is only allowed to read and write %d bytes at a time when reloading and "+
			"resaving the state.", bufferedStreamChunk),
		stateReproducibility(bufferedStreamChunk, false)),
	pluginTest("transport-null",
		"Performs audio processing with a 'null' transport pointer, simulating a free-running transport state. The "+
			"plugin passes the test if it doesn't produce any infinite or NaN values, and doesn't crash.",
		testTransportNull),
	pluginTest("transport-fuzz",
		"Performs audio processing while randomly changing the transport state on every block. The plugin passes the "+
			"test if it doesn't produce any infinite or NaN values, and doesn't crash.",
		testTransportFuzz),
	pluginTest("transport-fuzz-sample-accurate",
		"Same as 'transport-fuzz', but this time the test sends 'clap_event_transport' events in sample-accurate "+
			"fashion while processing audio, generating them at fixed intervals (1, 100, 1000 samples). The plugin "+
			"passes the test if it doesn't produce any infinite or NaN values, and doesn't crash.",
		testTransportFuzzSampleAccurate),
}

var bodies = func() map[string]body {
	m := make(map[string]body, len(catalog))
	for _, e := range catalog {
		m[e.tc.ID] = e.run
	}
	return m
}()

var buildRegistry = sync.OnceValue(func() *registry.Registry {
	cases := make([]registry.TestCase, len(catalog))
	for idx, e := range catalog {
		cases[idx] = e.tc
	}
	return registry.Build(cases...)
})

// Registry returns the process-wide test registry.
func Registry() *registry.Registry {
	return buildRegistry()
}
