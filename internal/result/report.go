package result

import (
	"time"

	"github.com/roach88/clapval/internal/abi"
)

// Report is the outcome of a whole run. The engine builds it incrementally
// and must not modify it after Run returns.
type Report struct {
	RunID        string         `json:"run_id" yaml:"run_id"`
	StartedAt    time.Time      `json:"started_at" yaml:"started_at"`
	FinishedAt   time.Time      `json:"finished_at" yaml:"finished_at"`
	Selected     []string       `json:"selected_tests" yaml:"selected_tests"`
	ConfigErrors []string       `json:"config_errors,omitempty" yaml:"config_errors,omitempty"`
	Modules      []ModuleReport `json:"modules" yaml:"modules"`
}

// ModuleReport groups the outcomes for one plugin module.
type ModuleReport struct {
	Path            string         `json:"path" yaml:"path"`
	Version         string         `json:"clap_version,omitempty" yaml:"clap_version,omitempty"`
	SetupError      string         `json:"setup_error,omitempty" yaml:"setup_error,omitempty"`
	LibraryOutcomes []Outcome      `json:"library_tests" yaml:"library_tests"`
	Plugins         []PluginReport `json:"plugins" yaml:"plugins"`
}

// PluginReport lists the outcomes for one plugin, in selection order.
type PluginReport struct {
	ID       string    `json:"id" yaml:"id"`
	Name     string    `json:"name" yaml:"name"`
	Vendor   string    `json:"vendor,omitempty" yaml:"vendor,omitempty"`
	Version  string    `json:"version,omitempty" yaml:"version,omitempty"`
	Features []string  `json:"features,omitempty" yaml:"features,omitempty"`
	Outcomes []Outcome `json:"tests" yaml:"tests"`
}

// NewPluginReport starts a plugin report from its descriptor.
func NewPluginReport(d *abi.Descriptor) PluginReport {
	return PluginReport{
		ID:       d.ID,
		Name:     d.Name,
		Vendor:   d.Vendor,
		Version:  d.PluginVer,
		Features: append([]string(nil), d.Features...),
	}
}

// Tally counts outcomes by status.
type Tally struct {
	Pass       int `json:"pass" yaml:"pass"`
	Fail       int `json:"fail" yaml:"fail"`
	Warning    int `json:"warning" yaml:"warning"`
	Skipped    int `json:"skipped" yaml:"skipped"`
	Crashed    int `json:"crashed" yaml:"crashed"`
	TimedOut   int `json:"timed_out" yaml:"timed_out"`
	SetupError int `json:"setup_error" yaml:"setup_error"`
}

// Add counts one outcome.
func (t *Tally) Add(s Status) {
	switch s {
	case StatusPass:
		t.Pass++
	case StatusFail:
		t.Fail++
	case StatusWarning:
		t.Warning++
	case StatusSkipped:
		t.Skipped++
	case StatusCrashed:
		t.Crashed++
	case StatusTimedOut:
		t.TimedOut++
	case StatusSetupError:
		t.SetupError++
	}
}

// Total returns the number of counted outcomes.
func (t Tally) Total() int {
	return t.Pass + t.Fail + t.Warning + t.Skipped + t.Crashed + t.TimedOut + t.SetupError
}

// Outcomes visits every outcome in report order.
func (r *Report) Outcomes(fn func(module *ModuleReport, plugin *PluginReport, o *Outcome)) {
	for mi := range r.Modules {
		m := &r.Modules[mi]
		for oi := range m.LibraryOutcomes {
			fn(m, nil, &m.LibraryOutcomes[oi])
		}
		for pi := range m.Plugins {
			p := &m.Plugins[pi]
			for oi := range p.Outcomes {
				fn(m, p, &p.Outcomes[oi])
			}
		}
	}
}

// Tally counts every outcome in the report.
func (r *Report) Tally() Tally {
	var t Tally
	r.Outcomes(func(_ *ModuleReport, _ *PluginReport, o *Outcome) {
		t.Add(o.Status)
	})
	return t
}

// ExitClass is the process-level classification of a run.
type ExitClass int

const (
	// ExitPassed means no test failed, crashed or timed out.
	ExitPassed ExitClass = 0
	// ExitTestsFailed means at least one test failed, crashed or timed out.
	ExitTestsFailed ExitClass = 1
	// ExitSetupError means a module or plugin could not be set up. It takes
	// precedence over test failures.
	ExitSetupError ExitClass = 2
)

// ExitClass classifies the run.
func (r *Report) ExitClass() ExitClass {
	class := ExitPassed
	for _, m := range r.Modules {
		if m.SetupError != "" {
			return ExitSetupError
		}
	}
	r.Outcomes(func(_ *ModuleReport, _ *PluginReport, o *Outcome) {
		switch {
		case o.Status == StatusSetupError:
			class = ExitSetupError
		case o.Status.Failed() && class == ExitPassed:
			class = ExitTestsFailed
		}
	})
	return class
}

// OnlyFailed returns a copy of the report keeping only failed, crashed,
// timed out, warning and setup error outcomes. Plugins left without
// outcomes are dropped.
func (r *Report) OnlyFailed() *Report {
	out := *r
	out.Modules = nil
	keep := func(os []Outcome) []Outcome {
		var kept []Outcome
		for _, o := range os {
			if o.Status.Failed() || o.Status == StatusWarning || o.Status == StatusSetupError {
				kept = append(kept, o)
			}
		}
		return kept
	}
	for _, m := range r.Modules {
		fm := m
		fm.LibraryOutcomes = keep(m.LibraryOutcomes)
		fm.Plugins = nil
		for _, p := range m.Plugins {
			fp := p
			fp.Outcomes = keep(p.Outcomes)
			if len(fp.Outcomes) > 0 {
				fm.Plugins = append(fm.Plugins, fp)
			}
		}
		if fm.SetupError != "" || len(fm.LibraryOutcomes) > 0 || len(fm.Plugins) > 0 {
			out.Modules = append(out.Modules, fm)
		}
	}
	return &out
}
