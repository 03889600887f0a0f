package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/clapval/internal/result"
)

// ErrRunExists is returned by SaveReport when a run with the same id is
// already stored.
var ErrRunExists = errors.New("run already stored")

const libraryPluginIdx = -1

// SaveReport writes a complete report in a single transaction. Saving the
// same run id twice fails with ErrRunExists and leaves the stored run
// untouched.
func (s *Store) SaveReport(ctx context.Context, r *result.Report) (err error) {
	selected, err := marshalStrings(r.Selected)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	configErrors, err := marshalStrings(r.ConfigErrors)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save report: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, selected, config_errors, exit_class)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		r.RunID,
		formatTime(r.StartedAt),
		formatTime(r.FinishedAt),
		selected,
		configErrors,
		int(r.ExitClass()),
	)
	if err != nil {
		return fmt.Errorf("save report: insert run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("save report %s: %w", r.RunID, ErrRunExists)
	}

	for mi, m := range r.Modules {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO modules (run_id, idx, path, clap_version, setup_error)
			VALUES (?, ?, ?, ?, ?)
		`, r.RunID, mi, m.Path, m.Version, m.SetupError); err != nil {
			return fmt.Errorf("save report: insert module %s: %w", m.Path, err)
		}
		if err = insertOutcomes(ctx, tx, r.RunID, mi, libraryPluginIdx, m.LibraryOutcomes); err != nil {
			return err
		}
		for pi, p := range m.Plugins {
			features, ferr := marshalStrings(p.Features)
			if ferr != nil {
				err = ferr
				return fmt.Errorf("save report: %w", err)
			}
			if _, err = tx.ExecContext(ctx, `
				INSERT INTO plugins (run_id, module_idx, idx, plugin_id, name, vendor, version, features)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, r.RunID, mi, pi, p.ID, p.Name, p.Vendor, p.Version, features); err != nil {
				return fmt.Errorf("save report: insert plugin %s: %w", p.ID, err)
			}
			if err = insertOutcomes(ctx, tx, r.RunID, mi, pi, p.Outcomes); err != nil {
				return err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("save report: commit: %w", err)
	}
	return nil
}

func insertOutcomes(ctx context.Context, tx *sql.Tx, runID string, moduleIdx, pluginIdx int, outcomes []result.Outcome) error {
	for seq, o := range outcomes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO outcomes
			(run_id, module_idx, plugin_idx, seq, test_id, description, status, reason, diagnostic, duration_ns, trace_path)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			runID,
			moduleIdx,
			pluginIdx,
			seq,
			o.TestID,
			o.Description,
			string(o.Status),
			o.Reason,
			o.Diagnostic,
			o.Duration.Nanoseconds(),
			o.TracePath,
		)
		if err != nil {
			return fmt.Errorf("save report: insert outcome %s: %w", o.TestID, err)
		}
	}
	return nil
}

// DeleteRun removes a run and everything recorded for it. Deleting an
// unknown run is not an error.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID); err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	return nil
}

func marshalStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalStrings(s string) ([]string, error) {
	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	if len(v) == 0 {
		return nil, nil
	}
	return v, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
