package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/roach88/clapval/internal/abi"
	"github.com/roach88/clapval/internal/abi/abitest"
	"github.com/roach88/clapval/internal/harness"
	"github.com/roach88/clapval/internal/registry"
	"github.com/roach88/clapval/internal/result"
	"github.com/roach88/clapval/internal/testutil"
	"github.com/roach88/clapval/internal/trace"
)

func newInProcess(loader abi.Loader, opts ...EngineOption) *Engine {
	base := []EngineOption{
		WithJobs(1),
		WithRunIDs(testutil.NewSequentialRunIDs("")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return New(InProcess(harness.NewSuite(loader)), append(base, opts...)...)
}

func selectOnly(t *testing.T, pattern string) registry.Selection {
	t.Helper()
	sel, errs := harness.Registry().Resolve(regexp.MustCompile(pattern), nil)
	require.Empty(t, errs)
	return sel
}

func TestRun_ReportsEverySelectedTest(t *testing.T) {
	e := newInProcess(abitest.Standard())
	report, err := e.Run(context.Background(), []string{abitest.GainPath, abitest.SynthPath})
	require.NoError(t, err)

	sel, _ := harness.Registry().Resolve(nil, nil)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, sel.IDs(), report.Selected)
	require.Len(t, report.Modules, 2)
	for _, m := range report.Modules {
		assert.Empty(t, m.SetupError)
		assert.Equal(t, abi.HostVersion.String(), m.Version)
		assert.Len(t, m.LibraryOutcomes, len(sel.OfKind(registry.KindLibrary)))
		require.Len(t, m.Plugins, 1)
		pr := m.Plugins[0]
		require.Len(t, pr.Outcomes, len(sel.OfKind(registry.KindPlugin)))
		for i, tc := range sel.OfKind(registry.KindPlugin) {
			assert.Equal(t, tc.ID, pr.Outcomes[i].TestID, "registry order")
			assert.NotEmpty(t, pr.Outcomes[i].Description)
		}
	}
	assert.Equal(t, abitest.GainID, report.Modules[0].Plugins[0].ID)
	assert.Equal(t, abitest.SynthID, report.Modules[1].Plugins[0].ID)
	assert.Equal(t, result.ExitPassed, report.ExitClass())
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
}

func TestRun_UnloadableModuleIsSetupError(t *testing.T) {
	e := newInProcess(abitest.Standard())
	report, err := e.Run(context.Background(), []string{abitest.MissingPath, abitest.GainPath})
	require.NoError(t, err)

	missing := report.Modules[0]
	assert.Contains(t, missing.SetupError, string(abi.SetupLoadFailed))
	assert.Empty(t, missing.Plugins)
	for _, o := range missing.LibraryOutcomes {
		assert.Equal(t, result.StatusSkipped, o.Status)
		assert.NotEmpty(t, o.Reason)
	}
	require.Len(t, report.Modules[1].Plugins, 1, "other modules still run")
	assert.Equal(t, result.ExitSetupError, report.ExitClass())
}

func TestRun_IncompatibleModuleIsSkipped(t *testing.T) {
	loader := abitest.NewLoader(&abitest.LibrarySpec{
		Path:    "old.clap",
		Version: abi.Version{Major: 0, Minor: 9},
		Plugins: []abitest.PluginSpec{abitest.GainPlugin("old")},
	})
	report, err := newInProcess(loader).Run(context.Background(), []string{"old.clap"})
	require.NoError(t, err)

	m := report.Modules[0]
	assert.Empty(t, m.SetupError)
	require.NotEmpty(t, m.LibraryOutcomes)
	for _, o := range m.LibraryOutcomes {
		assert.Equal(t, result.StatusSkipped, o.Status)
		assert.Contains(t, o.Reason, string(abi.SetupIncompatible))
	}
	assert.Equal(t, result.ExitPassed, report.ExitClass())
}

func TestRun_DuplicateIDsAcrossModules(t *testing.T) {
	loader := abitest.NewLoader(
		&abitest.LibrarySpec{Path: "a.clap", Version: abi.HostVersion, Plugins: []abitest.PluginSpec{abitest.GainPlugin("dup")}},
		&abitest.LibrarySpec{Path: "b.clap", Version: abi.HostVersion, Plugins: []abitest.PluginSpec{abitest.GainPlugin("dup")}},
	)
	e := newInProcess(loader, WithSelection(selectOnly(t, "^(descriptor-consistency|transport-null)$")))
	report, err := e.Run(context.Background(), []string{"a.clap", "b.clap"})
	require.NoError(t, err)

	first := report.Modules[0].Plugins[0].Outcomes
	assert.Equal(t, result.StatusPass, first[0].Status)
	assert.Equal(t, result.StatusPass, first[1].Status)

	second := report.Modules[1].Plugins[0].Outcomes
	require.Len(t, second, 2)
	assert.Equal(t, result.StatusSetupError, second[0].Status)
	assert.Contains(t, second[0].Reason, "a.clap")
	assert.Equal(t, result.StatusSkipped, second[1].Status)
	assert.Equal(t, result.ExitSetupError, report.ExitClass())
}

func TestRun_FilterMatchingNothing(t *testing.T) {
	e := newInProcess(abitest.Standard(), WithSelection(selectOnly(t, "^no-such-test$")))
	report, err := e.Run(context.Background(), []string{abitest.GainPath})
	require.NoError(t, err)
	assert.Empty(t, report.Selected)
	assert.Empty(t, report.Modules[0].LibraryOutcomes)
	require.Len(t, report.Modules[0].Plugins, 1)
	assert.Empty(t, report.Modules[0].Plugins[0].Outcomes)
	assert.Zero(t, report.Tally().Total())
}

func TestRun_PluginIDFilter(t *testing.T) {
	sel := selectOnly(t, "^transport-null$")
	e := newInProcess(abitest.Standard(), WithSelection(sel), WithPluginID(abitest.SynthID))
	report, err := e.Run(context.Background(), []string{abitest.GainPath, abitest.SynthPath})
	require.NoError(t, err)
	assert.Empty(t, report.Modules[0].Plugins)
	require.Len(t, report.Modules[1].Plugins, 1)

	e = newInProcess(abitest.Standard(), WithSelection(sel), WithPluginID("dev.clapval.nope"))
	_, err = e.Run(context.Background(), []string{abitest.GainPath})
	require.Error(t, err)
	assert.True(t, IsPluginNotFound(err))
}

func TestRun_WritesTraces(t *testing.T) {
	dir := t.TempDir()
	e := newInProcess(abitest.Standard(),
		WithSelection(selectOnly(t, "^(scan-time|transport-null)$")),
		WithTraceDir(dir))
	report, err := e.Run(context.Background(), []string{abitest.GainPath})
	require.NoError(t, err)

	lib := report.Modules[0].LibraryOutcomes[0]
	assert.Equal(t, tracePath(dir, harness.Request{ModulePath: abitest.GainPath, TestID: "scan-time"}), lib.TracePath)

	out := report.Modules[0].Plugins[0].Outcomes[0]
	require.NotEmpty(t, out.TracePath)
	assert.Nil(t, out.Trace)
	raw, err := os.ReadFile(out.TracePath)
	require.NoError(t, err)
	var doc struct {
		TraceEvents []map[string]any `json:"traceEvents"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.NotEmpty(t, doc.TraceEvents)
}

func TestRun_NoModules(t *testing.T) {
	_, err := newInProcess(abitest.Standard()).Run(context.Background(), nil)
	var re *RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeNoModules, re.Code)
}

func TestRun_CrashedTestDoesNotStopThePlugin(t *testing.T) {
	e := newInProcess(abitest.Standard(),
		WithSelection(selectOnly(t, "^(process-audio-basic-out-of-place|descriptor-consistency)$")))
	report, err := e.Run(context.Background(), []string{abitest.PanicPath})
	require.NoError(t, err)

	outs := report.Modules[0].Plugins[0].Outcomes
	require.Len(t, outs, 2)
	assert.Equal(t, "descriptor-consistency", outs[0].TestID)
	assert.Equal(t, result.StatusPass, outs[0].Status)
	assert.Equal(t, result.StatusCrashed, outs[1].Status)
	assert.Equal(t, result.ExitTestsFailed, report.ExitClass())
}

func TestTracePath(t *testing.T) {
	spaced := harness.Request{ModulePath: "x.clap", PluginID: "com.vendor.my plugin", TestID: "param-fuzz-basic"}
	underscored := harness.Request{ModulePath: "x.clap", PluginID: "com.vendor.my_plugin", TestID: "param-fuzz-basic"}
	userGain := harness.Request{ModulePath: "/home/u/.clap/Gain.clap", TestID: "scan-time"}
	systemGain := harness.Request{ModulePath: "/usr/lib/clap/Gain.clap", TestID: "scan-time"}

	assert.Regexp(t, `^traces/com\.vendor\.my_plugin-[0-9a-f]{8}/param-fuzz-basic\.trace\.json$`, tracePath("traces", spaced))
	assert.Regexp(t, `^traces/Gain-[0-9a-f]{8}/scan-time\.trace\.json$`, tracePath("traces", systemGain))

	assert.NotEqual(t, tracePath("traces", spaced), tracePath("traces", underscored))
	assert.NotEqual(t, tracePath("traces", userGain), tracePath("traces", systemGain))
	assert.Equal(t, tracePath("traces", systemGain), tracePath("traces", systemGain))
}

func TestRun_SameNamedModulesGetSeparateTraces(t *testing.T) {
	scans := map[string]harness.ScanResult{
		"a/Gain.clap": {Path: "a/Gain.clap", Version: abi.HostVersion},
		"b/Gain.clap": {Path: "b/Gain.clap", Version: abi.HostVersion},
	}
	exec := &scriptedExecutor{
		scans:  scans,
		status: func(harness.Request) result.Status { return result.StatusPass },
		traced: true,
	}
	dir := t.TempDir()
	e := New(exec,
		WithSelection(selectOnly(t, "^scan-time$")),
		WithTraceDir(dir),
		WithJobs(2),
		WithRunIDs(testutil.NewSequentialRunIDs("")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	report, err := e.Run(context.Background(), []string{"a/Gain.clap", "b/Gain.clap"})
	require.NoError(t, err)

	require.Len(t, report.Modules, 2)
	first := report.Modules[0].LibraryOutcomes[0].TracePath
	second := report.Modules[1].LibraryOutcomes[0].TracePath
	require.NotEmpty(t, first)
	require.NotEmpty(t, second)
	assert.NotEqual(t, first, second)

	for i, path := range []string{first, second} {
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(raw), report.Modules[i].Path)
	}
}

// scriptedExecutor serves fixed scan results and decides outcomes with a
// callback.
type scriptedExecutor struct {
	scans  map[string]harness.ScanResult
	status func(req harness.Request) result.Status
	traced bool

	mu      sync.Mutex
	active  map[string]int
	overlap bool
}

func (s *scriptedExecutor) Scan(_ context.Context, path string) (harness.ScanResult, error) {
	res, ok := s.scans[path]
	if !ok {
		return harness.ScanResult{}, abi.NewSetupError(abi.SetupLoadFailed, path, "no such module")
	}
	return res, nil
}

func (s *scriptedExecutor) Run(_ context.Context, req harness.Request, _ harness.ProgressFunc) result.Outcome {
	s.mu.Lock()
	if s.active == nil {
		s.active = make(map[string]int)
	}
	s.active[req.ModulePath]++
	if s.active[req.ModulePath] > 1 {
		s.overlap = true
	}
	s.mu.Unlock()

	time.Sleep(time.Millisecond)
	out := result.Outcome{TestID: req.TestID, Status: s.status(req)}
	if s.traced {
		out.Trace = &trace.Document{Label: req.ModulePath + " " + req.TestID}
	}

	s.mu.Lock()
	s.active[req.ModulePath]--
	s.mu.Unlock()
	return out
}

func scriptedScans(modules, pluginsPerModule int) map[string]harness.ScanResult {
	scans := make(map[string]harness.ScanResult)
	for m := 0; m < modules; m++ {
		path := fmt.Sprintf("m%d.clap", m)
		res := harness.ScanResult{Path: path, Version: abi.HostVersion}
		for p := 0; p < pluginsPerModule; p++ {
			res.Descriptors = append(res.Descriptors, abi.Descriptor{
				Version: abi.HostVersion,
				ID:      fmt.Sprintf("m%d.p%d", m, p),
				Name:    "scripted",
			})
		}
		scans[path] = res
	}
	return scans
}

func TestRun_SetupErrorSkipsRemainingTests(t *testing.T) {
	exec := &scriptedExecutor{
		scans: scriptedScans(1, 2),
		status: func(req harness.Request) result.Status {
			if req.PluginID == "m0.p0" && req.TestID == "features-categories" {
				return result.StatusSetupError
			}
			return result.StatusPass
		},
	}
	e := New(exec, WithRunIDs(testutil.NewSequentialRunIDs("")))
	report, err := e.Run(context.Background(), []string{"m0.clap"})
	require.NoError(t, err)

	outs := report.Modules[0].Plugins[0].Outcomes
	sel := e.selection.OfKind(registry.KindPlugin)
	require.Len(t, outs, len(sel))
	seen := false
	for _, o := range outs {
		switch {
		case o.TestID == "features-categories":
			assert.Equal(t, result.StatusSetupError, o.Status)
			seen = true
		case seen:
			assert.Equal(t, result.StatusSkipped, o.Status, o.TestID)
			assert.Contains(t, o.Reason, "features-categories")
		default:
			assert.Equal(t, result.StatusPass, o.Status, o.TestID)
		}
	}
	for _, o := range report.Modules[0].Plugins[1].Outcomes {
		assert.Equal(t, result.StatusPass, o.Status, "other plugins are unaffected")
	}
}

func TestRun_OutcomeCountMatchesSelection(t *testing.T) {
	ids := harness.Registry().List()
	rapid.Check(t, func(t *rapid.T) {
		overrides := make(map[string]bool)
		for _, tc := range ids {
			if rapid.Bool().Draw(t, "override "+tc.ID) {
				overrides[tc.ID] = rapid.Bool().Draw(t, "enable "+tc.ID)
			}
		}
		sel, errs := harness.Registry().Resolve(nil, overrides)
		if len(errs) != 0 {
			t.Fatalf("unexpected config errors: %v", errs)
		}
		statuses := []result.Status{
			result.StatusPass, result.StatusFail, result.StatusCrashed,
			result.StatusTimedOut, result.StatusSkipped, result.StatusSetupError,
		}
		pick := rapid.SliceOfN(rapid.SampledFrom(statuses), 64, 64).Draw(t, "statuses")
		var mu sync.Mutex
		n := 0
		exec := &scriptedExecutor{
			scans: scriptedScans(3, 2),
			status: func(harness.Request) result.Status {
				mu.Lock()
				defer mu.Unlock()
				n++
				return pick[n%len(pick)]
			},
		}
		e := New(exec, WithSelection(sel), WithJobs(3))
		report, err := e.Run(context.Background(), []string{"m0.clap", "m1.clap", "m2.clap"})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		for _, m := range report.Modules {
			if got, want := len(m.LibraryOutcomes), len(sel.OfKind(registry.KindLibrary)); got != want {
				t.Fatalf("%s: %d library outcomes, want %d", m.Path, got, want)
			}
			for _, p := range m.Plugins {
				if got, want := len(p.Outcomes), len(sel.OfKind(registry.KindPlugin)); got != want {
					t.Fatalf("%s: %d outcomes, want %d", p.ID, got, want)
				}
			}
		}
		if exec.overlap {
			t.Fatalf("tests against one module overlapped")
		}
	})
}
