package harness

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clapval/internal/abi"
	"github.com/roach88/clapval/internal/abi/abitest"
	"github.com/roach88/clapval/internal/registry"
	"github.com/roach88/clapval/internal/result"
	"github.com/roach88/clapval/internal/trace"
)

func run(t *testing.T, s *Suite, path, pluginID, testID string) result.Outcome {
	t.Helper()
	tc, ok := Registry().Lookup(testID)
	require.True(t, ok, "unknown test %s", testID)
	if tc.Kind == registry.KindLibrary {
		pluginID = ""
	}
	return s.Execute(context.Background(), Request{ModulePath: path, PluginID: pluginID, TestID: testID}, nil)
}

func TestRegistry_EveryCaseHasABody(t *testing.T) {
	reg := Registry()
	require.Equal(t, len(catalog), reg.Len())
	for _, tc := range reg.List() {
		assert.NotNil(t, bodies[tc.ID], tc.ID)
		assert.NotEmpty(t, tc.Description, tc.ID)
		assert.True(t, tc.DefaultEnabled, tc.ID)
	}
}

func TestRegistry_LibraryTestsComeFirst(t *testing.T) {
	cases := Registry().List()
	seenPlugin := false
	for _, tc := range cases {
		if tc.Kind == registry.KindPlugin {
			seenPlugin = true
			continue
		}
		assert.False(t, seenPlugin, "library test %s listed after a plugin test", tc.ID)
	}
}

func TestRegistry_PedanticCases(t *testing.T) {
	var pedanticIDs []string
	for _, tc := range Registry().List() {
		if tc.Pedantic {
			pedanticIDs = append(pedanticIDs, tc.ID)
		}
	}
	assert.Equal(t, []string{"features-duplicates", "param-conversions"}, pedanticIDs)
}

func TestExecute_GainPassesEverything(t *testing.T) {
	s := NewSuite(abitest.Standard())
	skipped := map[string]bool{
		"process-note-out-of-place-basic": true,
		"process-note-inconsistent":       true,
	}
	for _, tc := range Registry().List() {
		t.Run(tc.ID, func(t *testing.T) {
			out := run(t, s, abitest.GainPath, abitest.GainID, tc.ID)
			assert.Equal(t, tc.ID, out.TestID)
			assert.Equal(t, tc.Description, out.Description)
			if skipped[tc.ID] {
				assert.Equal(t, result.StatusSkipped, out.Status, out.Reason)
				return
			}
			assert.Equal(t, result.StatusPass, out.Status, out.Reason)
		})
	}
}

func TestExecute_SynthSkipsWhatItLacks(t *testing.T) {
	s := NewSuite(abitest.Standard())
	tests := map[string]result.Status{
		"process-audio-basic-out-of-place":  result.StatusPass,
		"process-audio-double-out-of-place": result.StatusSkipped,
		"process-audio-double-in-place":     result.StatusSkipped,
		"process-note-out-of-place-basic":   result.StatusPass,
		"process-note-inconsistent":         result.StatusPass,
		"process-sleep-constant-mask":       result.StatusPass,
		"process-sleep-process-status":      result.StatusPass,
		"process-random-block-sizes":        result.StatusPass,
		"process-audio-reset-determinism":   result.StatusPass,
		"param-default-values":              result.StatusSkipped,
		"param-fuzz-basic":                  result.StatusSkipped,
		"param-fuzz-modulation":             result.StatusSkipped,
		"state-invalid-empty":               result.StatusSkipped,
		"state-invalid-random":              result.StatusSkipped,
		"state-reproducibility-basic":       result.StatusSkipped,
		"state-reproducibility-flush":       result.StatusSkipped,
		"transport-fuzz":                    result.StatusPass,
		"transport-fuzz-sample-accurate":    result.StatusPass,
		"features-categories":               result.StatusPass,
	}
	for id, want := range tests {
		t.Run(id, func(t *testing.T) {
			out := run(t, s, abitest.SynthPath, abitest.SynthID, id)
			assert.Equal(t, want, out.Status, out.Reason)
		})
	}
}

func TestExecute_RudePluginFails(t *testing.T) {
	s := NewSuite(abitest.Standard())
	tests := []struct {
		id     string
		reason string
	}{
		{"create-id-with-trailing-garbage", "should return a null pointer"},
		{"features-categories", "at least one of the following"},
		{"features-duplicates", "'stereo'"},
		{"process-audio-basic-out-of-place", "latency"},
		{"param-default-values", "do not match their defaults"},
		{"param-set-wrong-namespace", "latency"},
		{"state-invalid-empty", "empty state"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			out := run(t, s, abitest.RudePath, abitest.RudeID, tt.id)
			assert.Equal(t, result.StatusFail, out.Status, out.Reason)
			assert.Contains(t, out.Reason, tt.reason)
		})
	}
}

func TestExecute_PanicIsCrashed(t *testing.T) {
	s := NewSuite(abitest.Standard())
	out := s.Execute(context.Background(), Request{
		ModulePath: abitest.PanicPath,
		PluginID:   abitest.PanicID,
		TestID:     "process-audio-basic-out-of-place",
		Trace:      true,
	}, nil)

	assert.Equal(t, result.StatusCrashed, out.Status)
	assert.Contains(t, out.Reason, "fixture panic inside process()")
	assert.Contains(t, out.Reason, "clap_plugin::process")
	assert.NotEmpty(t, out.Diagnostic)
	require.NotNil(t, out.Trace)
}

func TestExecute_SetupErrors(t *testing.T) {
	s := NewSuite(abitest.Standard())
	tests := []struct {
		name   string
		path   string
		plugin string
		test   string
		reason string
	}{
		{"missing module", abitest.MissingPath, "", "scan-time", "LOAD_FAILED"},
		{"missing entry point", abitest.NoEntryPath, "", "scan-time", "MISSING_ENTRY_POINT"},
		{"unknown plugin", abitest.GainPath, "dev.clapval.nope", "descriptor-consistency", "UNKNOWN_PLUGIN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := run(t, s, tt.path, tt.plugin, tt.test)
			assert.Equal(t, result.StatusSetupError, out.Status)
			assert.Contains(t, out.Reason, tt.reason)
		})
	}
}

func TestExecute_UnknownTest(t *testing.T) {
	s := NewSuite(abitest.Standard())
	out := s.Execute(context.Background(), Request{ModulePath: abitest.GainPath, TestID: "no-such-test"}, nil)
	assert.Equal(t, result.StatusSetupError, out.Status)
	assert.Contains(t, out.Reason, "no-such-test")
}

func TestExecute_PluginTestWithoutPluginID(t *testing.T) {
	s := NewSuite(abitest.Standard())
	out := s.Execute(context.Background(), Request{ModulePath: abitest.GainPath, TestID: "transport-null"}, nil)
	assert.Equal(t, result.StatusSetupError, out.Status)
}

func TestExecute_CancelledContextSkips(t *testing.T) {
	s := NewSuite(abitest.Standard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := s.Execute(ctx, Request{ModulePath: abitest.GainPath, PluginID: abitest.GainID, TestID: "transport-null"}, nil)
	assert.Equal(t, result.StatusSkipped, out.Status)
}

func TestExecute_ReportsProgress(t *testing.T) {
	s := NewSuite(abitest.Standard())
	var stages []string
	out := s.Execute(context.Background(), Request{
		ModulePath: abitest.GainPath,
		PluginID:   abitest.GainID,
		TestID:     "lifecycle-reactivation",
	}, func(stage string) { stages = append(stages, stage) })

	require.Equal(t, result.StatusPass, out.Status, out.Reason)
	require.NotEmpty(t, stages)
	assert.Equal(t, "start lifecycle-reactivation", stages[0])
	assert.Contains(t, stages, "init")
	assert.Contains(t, stages, "activate 96000 Hz, 1024 frames")
}

func TestExecute_TraceIsWellFormed(t *testing.T) {
	s := NewSuite(abitest.Standard())
	out := s.Execute(context.Background(), Request{
		ModulePath: abitest.GainPath,
		PluginID:   abitest.GainID,
		TestID:     "lifecycle-reactivation",
		Trace:      true,
	}, nil)
	require.Equal(t, result.StatusPass, out.Status, out.Reason)
	require.NotNil(t, out.Trace)

	doc := out.Trace
	require.NoError(t, trace.Validate(doc.Events, false))
	assert.Equal(t, abitest.GainID+" lifecycle-reactivation", doc.Label)
	assert.Contains(t, threadNames(doc), "main")
	assert.Contains(t, threadNames(doc), "audio")

	var calls []string
	for _, ev := range doc.Events {
		if ev.Phase == trace.PhaseCall && ev.Direction == trace.HostToPlugin &&
			strings.HasPrefix(ev.Name, "clap_plugin::") && ev.Name != "clap_plugin::get_extension" &&
			ev.Name != "clap_plugin::process" {
			calls = append(calls, ev.Name)
		}
	}
	cycle := []string{
		"clap_plugin::activate",
		"clap_plugin::start_processing",
		"clap_plugin::stop_processing",
		"clap_plugin::deactivate",
	}
	want := []string{"clap_plugin::init"}
	for range reactivationSteps {
		want = append(want, cycle...)
	}
	want = append(want, "clap_plugin::destroy")
	assert.Equal(t, want, calls)
}

func threadNames(doc *trace.Document) []string {
	var names []string
	for _, name := range doc.Threads {
		names = append(names, name)
	}
	return names
}

func TestScan(t *testing.T) {
	s := NewSuite(abitest.Standard())
	res, err := s.Scan(context.Background(), abitest.GainPath)
	require.NoError(t, err)
	assert.Equal(t, abitest.GainPath, res.Path)
	require.Len(t, res.Descriptors, 1)
	assert.Equal(t, abitest.GainID, res.Descriptors[0].ID)

	_, err = s.Scan(context.Background(), abitest.NoEntryPath)
	require.Error(t, err)
	assert.True(t, abi.IsSetupError(err))
}

func TestScan_RejectsDuplicateIDsAndOldVersions(t *testing.T) {
	loader := abitest.NewLoader(
		&abitest.LibrarySpec{
			Path:    "dup.clap",
			Version: abi.HostVersion,
			Plugins: []abitest.PluginSpec{abitest.GainPlugin("dup"), abitest.GainPlugin("dup")},
		},
		&abitest.LibrarySpec{
			Path:    "old.clap",
			Version: abi.Version{Major: 0, Minor: 19},
			Plugins: []abitest.PluginSpec{abitest.GainPlugin("old")},
		},
	)
	s := NewSuite(loader)

	_, err := s.Scan(context.Background(), "dup.clap")
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(abi.SetupDuplicatePlugin))

	_, err = s.Scan(context.Background(), "old.clap")
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(abi.SetupIncompatible))
	assert.Zero(t, loader.OpenCount())
}

func TestExecute_ClosesEverything(t *testing.T) {
	loader := abitest.Standard()
	s := NewSuite(loader)
	for _, id := range []string{"state-reproducibility-basic", "process-audio-reset-determinism", "scan-time"} {
		run(t, s, abitest.GainPath, abitest.GainID, id)
	}
	run(t, s, abitest.PanicPath, abitest.PanicID, "transport-null")
	assert.Zero(t, loader.OpenCount())
}

func TestFaultDetection(t *testing.T) {
	const id = "dev.test.faulty"
	tests := []struct {
		name   string
		fault  abitest.Fault
		modify func(*abitest.LibrarySpec)
		test   string
		status result.Status
		reason string
	}{
		{name: "nan output", fault: abitest.FaultNaNOutput, test: "process-audio-basic-in-place",
			status: result.StatusFail, reason: "is NaN"},
		{name: "nondeterministic", fault: abitest.FaultNondeterministic, test: "process-audio-reset-determinism",
			status: result.StatusFail, reason: "clap_plugin::reset()"},
		{name: "foreign namespace", fault: abitest.FaultHonoursForeignNamespace, test: "param-set-wrong-namespace",
			status: result.StatusFail, reason: "namespace ID 0xb33f"},
		{name: "bad status", fault: abitest.FaultBadProcessStatus, test: "transport-null",
			status: result.StatusFail, reason: "unknown status code 7"},
		{name: "nan output under transport changes", fault: abitest.FaultNaNOutput, test: "transport-fuzz",
			status: result.StatusFail, reason: "is NaN"},
		{name: "false constant mask", fault: abitest.FaultFalseConstantMask, test: "process-sleep-constant-mask",
			status: result.StatusFail, reason: "as constant, but it contains non-constant data"},
		{name: "no constant mask", fault: abitest.FaultNeverSleeps, test: "process-sleep-constant-mask",
			status: result.StatusWarning, reason: "does not seem to set the constant mask"},
		{name: "never sleeps", fault: abitest.FaultNeverSleeps, test: "process-sleep-process-status",
			status: result.StatusWarning, reason: "never went to sleep"},
		{name: "accepts any state", fault: abitest.FaultAcceptsAnyState, test: "state-invalid-random",
			status: result.StatusWarning, reason: "3 out of 3 random states"},
		{name: "ignores flush", fault: abitest.FaultIgnoresFlush, test: "state-reproducibility-flush",
			status: result.StatusFail, reason: "have not changed"},
		{name: "slow scan", test: "scan-time", status: result.StatusWarning, reason: "milliseconds to scan",
			modify: func(l *abitest.LibrarySpec) { l.ScanDelay = scanTimeLimit + 50*time.Millisecond }},
		{name: "any factory", test: "query-factory-nonexistent", status: result.StatusFail, reason: "non-null",
			modify: func(l *abitest.LibrarySpec) { l.AnyFactory = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var faults []abitest.Fault
			if tt.fault != "" {
				faults = append(faults, tt.fault)
			}
			lib := &abitest.LibrarySpec{
				Path:    "faulty.clap",
				Version: abi.HostVersion,
				Plugins: []abitest.PluginSpec{abitest.GainPlugin(id, faults...)},
			}
			if tt.modify != nil {
				tt.modify(lib)
			}
			s := NewSuite(abitest.NewLoader(lib))
			out := run(t, s, lib.Path, id, tt.test)
			assert.Equal(t, tt.status, out.Status, out.Reason)
			assert.Contains(t, out.Reason, tt.reason)
		})
	}
}

func TestExecute_NotesAndParameterEventsShareABlock(t *testing.T) {
	synth := abitest.SynthPlugin()
	synth.Params = abitest.GainPlugin("unused").Params
	synth.HasState = true
	lib := &abitest.LibrarySpec{Path: "poly.clap", Version: abi.HostVersion, Plugins: []abitest.PluginSpec{synth}}
	s := NewSuite(abitest.NewLoader(lib))
	for _, id := range []string{
		"param-fuzz-basic",
		"param-fuzz-sample-accurate",
		"param-fuzz-modulation",
		"state-reproducibility-flush",
		"transport-fuzz-sample-accurate",
	} {
		t.Run(id, func(t *testing.T) {
			out := run(t, s, lib.Path, abitest.SynthID, id)
			assert.Equal(t, result.StatusPass, out.Status, out.Reason)
		})
	}
}
