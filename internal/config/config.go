// Package config discovers and loads clapval.toml.
//
// The file enables or disables tests by id:
//
//	[test]
//	features-duplicates = false
//	param-conversions = true
//
// The accepted shape is the CUE schema in schema.cue. A missing file is not
// an error. Problems inside the file are reported as Issues and never stop
// a run: unknown sections are warnings, malformed ids and values that are
// not booleans are errors for that entry only.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"
)

const (
	// FileName is the configuration file looked up by Discover.
	FileName = "clapval.toml"

	// EnvVar names a configuration file explicitly, bypassing discovery.
	EnvVar = "CLAPVAL_CONFIG"

	testSection = "test"
)

// Severity classifies an Issue.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Issue is a problem found in a configuration file.
type Issue struct {
	Severity Severity
	Key      string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Key, i.Message)
}

// Config is a loaded configuration file.
type Config struct {
	// Path is the file the configuration came from. Empty for the zero
	// configuration.
	Path string

	// Tests maps test ids to their enabled state.
	Tests map[string]bool

	Issues []Issue
}

// Overrides returns a copy of the test overrides.
func (c *Config) Overrides() map[string]bool {
	out := make(map[string]bool, len(c.Tests))
	for k, v := range c.Tests {
		out[k] = v
	}
	return out
}

// Discover returns the configuration file to use: the file named by
// CLAPVAL_CONFIG if set, otherwise the first clapval.toml found walking up
// from startDir. It returns "" when there is none.
func Discover(startDir string) (string, error) {
	if p := os.Getenv(EnvVar); p != "" {
		return p, nil
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("discover config: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		info, err := os.Stat(candidate)
		switch {
		case err == nil && !info.IsDir():
			return candidate, nil
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			return "", fmt.Errorf("discover config: %w", err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Load reads and validates the file at path. An empty path yields the zero
// configuration. Errors are returned only when the file cannot be read or
// is not valid TOML.
func Load(path string) (*Config, error) {
	if path == "" {
		return &Config{Tests: map[string]bool{}}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return parse(path, data)
}

func parse(path string, data []byte) (*Config, error) {
	cfg := &Config{Path: path, Tests: map[string]bool{}}

	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("load config %s:%d:%d: %s", path, row, col, derr.Error())
		}
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	v := newValidator()
	for _, key := range sortedKeys(doc) {
		if !v.knownKey(key) {
			cfg.Issues = append(cfg.Issues, Issue{
				Severity: SeverityWarning,
				Key:      key,
				Message:  "unknown configuration key",
			})
		}
	}

	raw, ok := doc[testSection]
	if !ok {
		return cfg, nil
	}
	tests, ok := raw.(map[string]any)
	if !ok {
		cfg.Issues = append(cfg.Issues, Issue{
			Severity: SeverityError,
			Key:      testSection,
			Message:  fmt.Sprintf("expected a table of test ids, got %T", raw),
		})
		return cfg, nil
	}

	for _, id := range sortedKeys(tests) {
		err := v.id(id)
		var enabled bool
		if err == nil {
			enabled, err = v.override(tests[id])
		}
		if err != nil {
			cfg.Issues = append(cfg.Issues, Issue{
				Severity: SeverityError,
				Key:      testSection + "." + id,
				Message:  err.Error(),
			})
			continue
		}
		cfg.Tests[id] = enabled
	}
	return cfg, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
