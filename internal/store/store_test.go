package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesDatabaseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	for range 3 {
		s, err := Open(path)
		require.NoError(t, err)
		require.NoError(t, s.Close())
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	for _, table := range []string{"runs", "modules", "plugins", "outcomes"} {
		var n int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}
}

func TestOpen_MissingDirectory(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "history.db"))
	assert.Error(t, err)
}

func TestOpen_RefusesNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestClose_Unopened(t *testing.T) {
	assert.NoError(t, (&Store{}).Close())
}

func TestConnectionPragmas(t *testing.T) {
	s := openTemp(t)
	want := map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"busy_timeout": "5000",
		"foreign_keys": "1",
		"user_version": "1",
	}
	for name, value := range want {
		got, err := s.pragma(name)
		require.NoError(t, err)
		assert.Equal(t, value, got, name)
	}
}

func TestSchema_RejectsUnknownStatus(t *testing.T) {
	s := openTemp(t)
	_, err := s.db.Exec(`INSERT INTO runs (id, started_at, finished_at, exit_class) VALUES ('r', 'x', 'x', 0)`)
	require.NoError(t, err)
	_, err = s.db.Exec(`INSERT INTO modules (run_id, idx, path) VALUES ('r', 0, 'a.clap')`)
	require.NoError(t, err)

	_, err = s.db.Exec(`
		INSERT INTO outcomes (run_id, module_idx, plugin_idx, seq, test_id, status)
		VALUES ('r', 0, -1, 0, 'scan-time', 'exploded')
	`)
	assert.Error(t, err)
}

func TestSchema_DeletingRunCascades(t *testing.T) {
	s := openTemp(t)
	for _, q := range []string{
		`INSERT INTO runs (id, started_at, finished_at, exit_class) VALUES ('r', 'x', 'x', 0)`,
		`INSERT INTO modules (run_id, idx, path) VALUES ('r', 0, 'a.clap')`,
		`INSERT INTO outcomes (run_id, module_idx, plugin_idx, seq, test_id, status)
		 VALUES ('r', 0, -1, 0, 'scan-time', 'pass')`,
	} {
		_, err := s.db.Exec(q)
		require.NoError(t, err)
	}

	_, err := s.db.Exec(`DELETE FROM runs WHERE id = 'r'`)
	require.NoError(t, err)

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM outcomes`).Scan(&n))
	assert.Zero(t, n)
}
