package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clapval/internal/result"
)

func sampleReport(id string, started time.Time) *result.Report {
	return &result.Report{
		RunID:        id,
		StartedAt:    started,
		FinishedAt:   started.Add(3 * time.Second),
		Selected:     []string{"scan-time", "param-fuzz-basic"},
		ConfigErrors: []string{"unknown test id: nope"},
		Modules: []result.ModuleReport{
			{
				Path:    "/usr/lib/clap/a.clap",
				Version: "1.2.0",
				LibraryOutcomes: []result.Outcome{
					{TestID: "scan-time", Description: "Checks scan time.", Status: result.StatusWarning, Reason: "slow", Duration: 150 * time.Millisecond},
				},
				Plugins: []result.PluginReport{
					{
						ID:       "com.example.a",
						Name:     "A",
						Vendor:   "Example",
						Version:  "0.1",
						Features: []string{"audio-effect", "stereo"},
						Outcomes: []result.Outcome{
							{TestID: "param-fuzz-basic", Status: result.StatusCrashed, Reason: "SIGSEGV", Diagnostic: "stderr tail", TracePath: "traces/x.json"},
						},
					},
					{ID: "com.example.b", Name: "B", Outcomes: []result.Outcome{{TestID: "param-fuzz-basic", Status: result.StatusPass}}},
				},
			},
			{Path: "/missing.clap", SetupError: "LOAD_FAILED: no such file"},
		},
	}
}

func TestSaveReport_ReadRunRebuildsTheReport(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	want := sampleReport("run-1", time.Date(2026, 3, 1, 12, 0, 0, 5000, time.UTC))

	require.NoError(t, s.SaveReport(ctx, want))
	got, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, want, got)
	assert.Equal(t, result.ExitSetupError, got.ExitClass())
}

func TestSaveReport_DuplicateRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	r := sampleReport("run-1", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, s.SaveReport(ctx, r))

	err := s.SaveReport(ctx, r)
	assert.ErrorIs(t, err, ErrRunExists)

	got, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, got.Modules, 2, "the first save is untouched")
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRuns_NewestFirstWithTallies(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-1", "run-2", "run-3"} {
		require.NoError(t, s.SaveReport(ctx, sampleReport(id, base.Add(time.Duration(i)*time.Hour))))
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].RunID)
	assert.Equal(t, "run-2", runs[1].RunID)
	assert.Equal(t, 2, runs[0].Modules)
	assert.Equal(t, result.ExitSetupError, runs[0].ExitClass)
	assert.Equal(t, result.Tally{Pass: 1, Warning: 1, Crashed: 1}, runs[0].Tally)
	assert.True(t, runs[0].StartedAt.Equal(base.Add(2*time.Hour)))

	all, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDeleteRun_Cascades(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveReport(ctx, sampleReport("run-1", time.Now())))
	require.NoError(t, s.DeleteRun(ctx, "run-1"))

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM outcomes").Scan(&n))
	assert.Zero(t, n)
	_, err := s.ReadRun(ctx, "run-1")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
