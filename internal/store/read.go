package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/clapval/internal/result"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// RunSummary is one line of run history.
type RunSummary struct {
	RunID      string           `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time        `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time        `json:"finished_at" yaml:"finished_at"`
	Modules    int              `json:"modules" yaml:"modules"`
	ExitClass  result.ExitClass `json:"exit_class" yaml:"exit_class"`
	Tally      result.Tally     `json:"tally" yaml:"tally"`
}

// ListRuns returns the most recent runs, newest first. A non-positive
// limit returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.started_at, r.finished_at, r.exit_class,
		       (SELECT COUNT(*) FROM modules m WHERE m.run_id = r.id)
		FROM runs r
		ORDER BY r.started_at DESC, r.id COLLATE BINARY DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	summaries := []RunSummary{}
	for rows.Next() {
		var (
			sum               RunSummary
			started, finished string
			exitClass         int
		)
		if err := rows.Scan(&sum.RunID, &started, &finished, &exitClass, &sum.Modules); err != nil {
			return nil, fmt.Errorf("list runs: scan: %w", err)
		}
		if sum.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("list runs: run %s: %w", sum.RunID, err)
		}
		if sum.FinishedAt, err = parseTime(finished); err != nil {
			return nil, fmt.Errorf("list runs: run %s: %w", sum.RunID, err)
		}
		sum.ExitClass = result.ExitClass(exitClass)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: iterate: %w", err)
	}
	rows.Close()

	for i := range summaries {
		if summaries[i].Tally, err = s.tally(ctx, summaries[i].RunID); err != nil {
			return nil, err
		}
	}
	return summaries, nil
}

func (s *Store) tally(ctx context.Context, runID string) (result.Tally, error) {
	var t result.Tally
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM outcomes WHERE run_id = ? GROUP BY status
	`, runID)
	if err != nil {
		return t, fmt.Errorf("tally run %s: %w", runID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return t, fmt.Errorf("tally run %s: scan: %w", runID, err)
		}
		for range n {
			t.Add(result.Status(status))
		}
	}
	return t, rows.Err()
}

// ReadRun rebuilds the report saved under runID.
func (s *Store) ReadRun(ctx context.Context, runID string) (*result.Report, error) {
	r := &result.Report{RunID: runID}
	var started, finished, selected, cfgErrs string
	err := s.db.QueryRowContext(ctx, `
		SELECT started_at, finished_at, selected, config_errors FROM runs WHERE id = ?
	`, runID).Scan(&started, &finished, &selected, &cfgErrs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read run %s: %w", runID, err)
	}
	if r.StartedAt, err = parseTime(started); err != nil {
		return nil, fmt.Errorf("read run %s: %w", runID, err)
	}
	if r.FinishedAt, err = parseTime(finished); err != nil {
		return nil, fmt.Errorf("read run %s: %w", runID, err)
	}
	if r.Selected, err = unmarshalStrings(selected); err != nil {
		return nil, fmt.Errorf("read run %s: selected: %w", runID, err)
	}
	if r.ConfigErrors, err = unmarshalStrings(cfgErrs); err != nil {
		return nil, fmt.Errorf("read run %s: config errors: %w", runID, err)
	}

	if err := s.readModules(ctx, r); err != nil {
		return nil, err
	}
	if err := s.readPlugins(ctx, r); err != nil {
		return nil, err
	}
	if err := s.readOutcomes(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) readModules(ctx context.Context, r *result.Report) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, clap_version, setup_error FROM modules WHERE run_id = ? ORDER BY idx ASC
	`, r.RunID)
	if err != nil {
		return fmt.Errorf("read modules: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m result.ModuleReport
		if err := rows.Scan(&m.Path, &m.Version, &m.SetupError); err != nil {
			return fmt.Errorf("read modules: scan: %w", err)
		}
		r.Modules = append(r.Modules, m)
	}
	return rows.Err()
}

func (s *Store) readPlugins(ctx context.Context, r *result.Report) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT module_idx, plugin_id, name, vendor, version, features
		FROM plugins WHERE run_id = ? ORDER BY module_idx ASC, idx ASC
	`, r.RunID)
	if err != nil {
		return fmt.Errorf("read plugins: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			mi       int
			p        result.PluginReport
			features string
		)
		if err := rows.Scan(&mi, &p.ID, &p.Name, &p.Vendor, &p.Version, &features); err != nil {
			return fmt.Errorf("read plugins: scan: %w", err)
		}
		if p.Features, err = unmarshalStrings(features); err != nil {
			return fmt.Errorf("read plugins: %s features: %w", p.ID, err)
		}
		if mi < 0 || mi >= len(r.Modules) {
			return fmt.Errorf("read plugins: %s refers to missing module %d", p.ID, mi)
		}
		r.Modules[mi].Plugins = append(r.Modules[mi].Plugins, p)
	}
	return rows.Err()
}

func (s *Store) readOutcomes(ctx context.Context, r *result.Report) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT module_idx, plugin_idx, test_id, description, status, reason, diagnostic, duration_ns, trace_path
		FROM outcomes WHERE run_id = ?
		ORDER BY module_idx ASC, plugin_idx ASC, seq ASC
	`, r.RunID)
	if err != nil {
		return fmt.Errorf("read outcomes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			mi, pi   int
			o        result.Outcome
			status   string
			duration int64
		)
		if err := rows.Scan(&mi, &pi, &o.TestID, &o.Description, &status, &o.Reason, &o.Diagnostic,
			&duration, &o.TracePath); err != nil {
			return fmt.Errorf("read outcomes: scan: %w", err)
		}
		o.Status = result.Status(status)
		o.Duration = time.Duration(duration)
		if mi < 0 || mi >= len(r.Modules) {
			return fmt.Errorf("read outcomes: %s refers to missing module %d", o.TestID, mi)
		}
		m := &r.Modules[mi]
		switch {
		case pi == libraryPluginIdx:
			m.LibraryOutcomes = append(m.LibraryOutcomes, o)
		case pi >= 0 && pi < len(m.Plugins):
			m.Plugins[pi].Outcomes = append(m.Plugins[pi].Outcomes, o)
		default:
			return fmt.Errorf("read outcomes: %s refers to missing plugin %d", o.TestID, pi)
		}
	}
	return rows.Err()
}
