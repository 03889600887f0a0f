package abi

import (
	"errors"
	"fmt"
)

// SetupErrorKind classifies why a module or plugin could not be set up.
type SetupErrorKind string

const (
	SetupLoadFailed      SetupErrorKind = "LOAD_FAILED"
	SetupMissingEntry    SetupErrorKind = "MISSING_ENTRY_POINT"
	SetupInitFailed      SetupErrorKind = "ENTRY_INIT_FAILED"
	SetupIncompatible    SetupErrorKind = "INCOMPATIBLE_VERSION"
	SetupMissingFactory  SetupErrorKind = "MISSING_FACTORY"
	SetupUnknownPlugin   SetupErrorKind = "UNKNOWN_PLUGIN"
	SetupDuplicatePlugin SetupErrorKind = "DUPLICATE_PLUGIN_ID"
	SetupUnsupported     SetupErrorKind = "UNSUPPORTED_PLATFORM"
)

// SetupError reports a failure before any test body could run.
type SetupError struct {
	Kind    SetupErrorKind
	Path    string
	Message string
	Err     error
}

func (e *SetupError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Path != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// NewSetupError creates a SetupError.
func NewSetupError(kind SetupErrorKind, path, format string, args ...any) *SetupError {
	return &SetupError{Kind: kind, Path: path, Message: fmt.Sprintf(format, args...)}
}

// IsSetupError reports whether err wraps a *SetupError.
func IsSetupError(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}
