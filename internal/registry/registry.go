// Package registry holds the catalogue of validator tests and resolves which
// of them run.
//
// A Registry is built once at startup from a fixed list of TestCases and is
// immutable afterwards. Resolve turns defaults, configuration overrides and
// an optional filter into a Selection:
//
//	selection = (defaults, then overrides by id) ∩ filter matches
//
// The filter only ever narrows: it cannot re-enable a test that defaults or
// overrides disabled, and unknown override ids never add tests.
package registry

import (
	"fmt"
	"regexp"
	"sort"
)

// Kind tells whether a test runs once per module or once per plugin.
type Kind string

const (
	KindLibrary Kind = "library"
	KindPlugin  Kind = "plugin"
)

// TestCase describes one test. It carries no behaviour; the harness maps ids
// to test bodies.
type TestCase struct {
	ID             string `json:"id" yaml:"id"`
	Description    string `json:"description" yaml:"description"`
	Kind           Kind   `json:"kind" yaml:"kind"`
	Pedantic       bool   `json:"pedantic" yaml:"pedantic"`
	DefaultEnabled bool   `json:"default_enabled" yaml:"default_enabled"`
}

// Registry is the immutable, ordered set of known tests.
type Registry struct {
	cases []TestCase
	index map[string]int
}

// Build creates a registry. Registration order is the execution order.
// Duplicate or empty ids are programming errors and panic.
func Build(cases ...TestCase) *Registry {
	r := &Registry{
		cases: make([]TestCase, 0, len(cases)),
		index: make(map[string]int, len(cases)),
	}
	for _, tc := range cases {
		if tc.ID == "" {
			panic("registry: test case without id")
		}
		if _, dup := r.index[tc.ID]; dup {
			panic(fmt.Sprintf("registry: duplicate test id %q", tc.ID))
		}
		if tc.Kind != KindLibrary && tc.Kind != KindPlugin {
			panic(fmt.Sprintf("registry: test %q has unknown kind %q", tc.ID, tc.Kind))
		}
		r.index[tc.ID] = len(r.cases)
		r.cases = append(r.cases, tc)
	}
	return r
}

// List returns all test cases in registration order.
func (r *Registry) List() []TestCase {
	out := make([]TestCase, len(r.cases))
	copy(out, r.cases)
	return out
}

// Lookup returns the test case with the given id.
func (r *Registry) Lookup(id string) (TestCase, bool) {
	i, ok := r.index[id]
	if !ok {
		return TestCase{}, false
	}
	return r.cases[i], true
}

// Len returns the number of registered tests.
func (r *Registry) Len() int {
	return len(r.cases)
}

// ConfigError reports a problem with one override entry or the filter. It is
// never fatal: the offending entry is ignored.
type ConfigError struct {
	Key     string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Key, e.Message)
}

// Resolve computes the selection for a run. filter may be nil. overrides maps
// test ids to enabled flags. Unknown ids are returned as *ConfigError values
// in sorted order and otherwise ignored.
func (r *Registry) Resolve(filter *regexp.Regexp, overrides map[string]bool) (Selection, []error) {
	enabled := make(map[string]bool, len(r.cases))
	for _, tc := range r.cases {
		enabled[tc.ID] = tc.DefaultEnabled
	}

	var errs []error
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := r.index[k]; !ok {
			errs = append(errs, &ConfigError{Key: k, Message: "unknown test id"})
			continue
		}
		enabled[k] = overrides[k]
	}

	sel := Selection{index: make(map[string]bool)}
	for _, tc := range r.cases {
		if !enabled[tc.ID] {
			continue
		}
		if filter != nil && !filter.MatchString(tc.ID) {
			continue
		}
		sel.cases = append(sel.cases, tc)
		sel.index[tc.ID] = true
	}
	return sel, errs
}

// CompileFilter compiles a --filter pattern. An invalid pattern yields a nil
// filter and a *ConfigError so the run continues unfiltered.
func CompileFilter(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &ConfigError{Key: "--filter", Message: fmt.Sprintf("invalid regular expression %q: %v", pattern, err)}
	}
	return re, nil
}
