package engine

import (
	"errors"
	"fmt"
)

// RunError is a harness-level failure that prevents a run from producing a
// complete report. Plugin misbehaviour never becomes a RunError; it is
// recorded as an outcome instead.
type RunError struct {
	// Code identifies the error category.
	Code RunErrorCode

	// Message is a human-readable description.
	Message string

	// Path is the module or file involved, if any.
	Path string
}

// RunErrorCode categorizes run errors.
type RunErrorCode string

const (
	// ErrCodeNoModules indicates Run was called without module paths.
	ErrCodeNoModules RunErrorCode = "NO_MODULES"

	// ErrCodePluginNotFound indicates the plugin id filter matched nothing.
	ErrCodePluginNotFound RunErrorCode = "PLUGIN_NOT_FOUND"

	// ErrCodeTraceWrite indicates a trace artifact could not be written.
	ErrCodeTraceWrite RunErrorCode = "TRACE_WRITE"
)

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsPluginNotFound returns true if the error reports an unmatched plugin id
// filter. Uses errors.As to handle wrapped errors.
func IsPluginNotFound(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodePluginNotFound
	}
	return false
}
