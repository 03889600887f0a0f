package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clapval/internal/result"
	"github.com/roach88/clapval/internal/store"
)

func seedHistory(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "history.db")
	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reports := []*result.Report{
		{
			RunID:      "run-1",
			StartedAt:  start,
			FinishedAt: start.Add(2 * time.Second),
			Selected:   []string{"scan-time"},
			Modules: []result.ModuleReport{{
				Path:            "gain.clap",
				Version:         "1.2.2",
				LibraryOutcomes: []result.Outcome{{TestID: "scan-time", Status: result.StatusPass}},
				Plugins:         []result.PluginReport{},
			}},
		},
		{
			RunID:      "run-2",
			StartedAt:  start.Add(time.Hour),
			FinishedAt: start.Add(time.Hour + time.Second),
			Selected:   []string{"scan-time"},
			Modules: []result.ModuleReport{{
				Path:    "rude.clap",
				Version: "1.2.2",
				LibraryOutcomes: []result.Outcome{{
					TestID: "scan-time",
					Status: result.StatusFail,
					Reason: "scanning took 250ms",
				}},
				Plugins: []result.PluginReport{},
			}},
		},
	}
	for _, r := range reports {
		require.NoError(t, st.SaveReport(context.Background(), r))
	}
	return db
}

func TestHistory_ListNewestFirst(t *testing.T) {
	db := seedHistory(t)
	stdout, _, err := execute(t, Environment{}, "history", "--db", db)
	require.NoError(t, err)

	assert.Contains(t, stdout, "RUN ID")
	i1 := strings.Index(stdout, "run-1")
	i2 := strings.Index(stdout, "run-2")
	require.GreaterOrEqual(t, i1, 0)
	require.GreaterOrEqual(t, i2, 0)
	assert.Less(t, i2, i1)
	assert.Contains(t, stdout, "failed")
}

func TestHistory_ListJSONWithLimit(t *testing.T) {
	db := seedHistory(t)
	stdout, _, err := execute(t, Environment{}, "history", "--db", db, "--limit", "1", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string             `json:"status"`
		Data   []store.RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "run-2", resp.Data[0].RunID)
	assert.Equal(t, result.ExitTestsFailed, resp.Data[0].ExitClass)
	assert.Equal(t, 1, resp.Data[0].Tally.Fail)
}

func TestHistory_ShowRendersReport(t *testing.T) {
	db := seedHistory(t)
	stdout, _, err := execute(t, Environment{}, "history", "show", "--db", db, "run-2")
	require.NoError(t, err)

	assert.Contains(t, stdout, "rude.clap (CLAP 1.2.2)")
	assert.Contains(t, stdout, "scanning took 250ms")
	assert.Contains(t, stdout, "1 tests run: 0 passed, 1 failed")
}

func TestHistory_ShowUnknownRun(t *testing.T) {
	db := seedHistory(t)
	stdout, _, err := execute(t, Environment{}, "history", "show", "--db", db, "--format", "json", "run-9")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "RUN_NOT_FOUND", resp.Error.Code)
}

func TestHistory_Delete(t *testing.T) {
	db := seedHistory(t)
	_, _, err := execute(t, Environment{}, "history", "delete", "--db", db, "run-1")
	require.NoError(t, err)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	_, err = st.ReadRun(context.Background(), "run-1")
	assert.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestHistory_RequiresDatabase(t *testing.T) {
	_, _, err := execute(t, Environment{}, "history")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
