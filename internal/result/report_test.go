package result

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clapval/internal/abi"
)

func report(statuses ...Status) *Report {
	p := NewPluginReport(&abi.Descriptor{ID: "dev.test", Name: "Test", Features: []string{"audio-effect"}})
	for i, s := range statuses {
		p.Outcomes = append(p.Outcomes, Outcome{TestID: string(rune('a' + i)), Status: s})
	}
	return &Report{Modules: []ModuleReport{{Path: "test.clap", Plugins: []PluginReport{p}}}}
}

func TestExitClass(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     ExitClass
	}{
		{"empty", nil, ExitPassed},
		{"all pass", []Status{StatusPass, StatusPass}, ExitPassed},
		{"skips and warnings pass", []Status{StatusPass, StatusSkipped, StatusWarning}, ExitPassed},
		{"fail", []Status{StatusPass, StatusFail}, ExitTestsFailed},
		{"crash", []Status{StatusCrashed}, ExitTestsFailed},
		{"timeout", []Status{StatusTimedOut, StatusPass}, ExitTestsFailed},
		{"setup error wins", []Status{StatusFail, StatusSetupError, StatusSkipped}, ExitSetupError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, report(tt.statuses...).ExitClass())
		})
	}
}

func TestExitClass_ModuleSetupError(t *testing.T) {
	r := report(StatusPass)
	r.Modules = append(r.Modules, ModuleReport{Path: "broken.clap", SetupError: "LOAD_FAILED"})
	assert.Equal(t, ExitSetupError, r.ExitClass())
}

func TestTally(t *testing.T) {
	r := report(StatusPass, StatusPass, StatusFail, StatusSkipped, StatusCrashed, StatusTimedOut, StatusWarning)
	r.Modules[0].LibraryOutcomes = []Outcome{{TestID: "scan-time", Status: StatusPass}}

	tally := r.Tally()
	assert.Equal(t, Tally{Pass: 3, Fail: 1, Warning: 1, Skipped: 1, Crashed: 1, TimedOut: 1}, tally)
	assert.Equal(t, 8, tally.Total())
}

func TestOnlyFailed(t *testing.T) {
	r := report(StatusPass, StatusFail, StatusSkipped, StatusWarning)
	r.Modules = append(r.Modules, ModuleReport{
		Path:    "clean.clap",
		Plugins: []PluginReport{{ID: "dev.clean", Outcomes: []Outcome{{TestID: "x", Status: StatusPass}}}},
	})

	filtered := r.OnlyFailed()
	require.Len(t, filtered.Modules, 1)
	outcomes := filtered.Modules[0].Plugins[0].Outcomes
	require.Len(t, outcomes, 2)
	assert.Equal(t, StatusFail, outcomes[0].Status)
	assert.Equal(t, StatusWarning, outcomes[1].Status)

	assert.Len(t, r.Modules, 2, "the original report is untouched")
	assert.Len(t, r.Modules[0].Plugins[0].Outcomes, 4)
}

func TestConstructors(t *testing.T) {
	assert.Equal(t, Outcome{Status: StatusFail, Reason: "bad value 3"}, Fail("bad value %d", 3))
	assert.Equal(t, StatusSkipped, Skip("no params").Status)
	assert.Equal(t, StatusWarning, Warn("slow").Status)
	assert.True(t, StatusTimedOut.Failed())
	assert.False(t, StatusSetupError.Failed())
	assert.False(t, Status("bogus").Valid())
}
