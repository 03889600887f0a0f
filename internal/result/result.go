// Package result defines test outcomes and the run report built from them.
package result

import (
	"fmt"
	"time"

	"github.com/roach88/clapval/internal/trace"
)

// Status is the outcome class of one test execution.
type Status string

const (
	StatusPass       Status = "pass"
	StatusFail       Status = "fail"
	StatusWarning    Status = "warning"
	StatusSkipped    Status = "skipped"
	StatusCrashed    Status = "crashed"
	StatusTimedOut   Status = "timed_out"
	StatusSetupError Status = "setup_error"
)

// Failed reports whether the status makes the run fail.
func (s Status) Failed() bool {
	return s == StatusFail || s == StatusCrashed || s == StatusTimedOut
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPass, StatusFail, StatusWarning, StatusSkipped, StatusCrashed, StatusTimedOut, StatusSetupError:
		return true
	}
	return false
}

// Outcome is the result of one (plugin, test) or (module, test) pair.
type Outcome struct {
	TestID      string        `json:"test_id" yaml:"test_id" msgpack:"test_id"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty" msgpack:"description"`
	Status      Status        `json:"status" yaml:"status" msgpack:"status"`
	Reason      string        `json:"reason,omitempty" yaml:"reason,omitempty" msgpack:"reason"`
	Diagnostic  string        `json:"diagnostic,omitempty" yaml:"diagnostic,omitempty" msgpack:"diagnostic"`
	Duration    time.Duration `json:"duration_ns" yaml:"duration" msgpack:"duration"`
	TracePath   string        `json:"trace_path,omitempty" yaml:"trace_path,omitempty" msgpack:"trace_path"`

	// Trace is the raw trace captured for this execution. It is written to
	// TracePath by the engine and not serialized into reports.
	Trace *trace.Document `json:"-" yaml:"-" msgpack:"trace,omitempty"`
}

// Pass builds a passing outcome.
func Pass() Outcome {
	return Outcome{Status: StatusPass}
}

// Fail builds a failing outcome.
func Fail(format string, args ...any) Outcome {
	return Outcome{Status: StatusFail, Reason: fmt.Sprintf(format, args...)}
}

// Skip builds a skipped outcome.
func Skip(format string, args ...any) Outcome {
	return Outcome{Status: StatusSkipped, Reason: fmt.Sprintf(format, args...)}
}

// Warn builds a warning outcome.
func Warn(format string, args ...any) Outcome {
	return Outcome{Status: StatusWarning, Reason: fmt.Sprintf(format, args...)}
}
