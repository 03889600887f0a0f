package host

import (
	"errors"
	"fmt"
)

// Rule names a contract checked by the host.
type Rule string

const (
	// RuleLifecycle covers calls made in the wrong lifecycle status.
	RuleLifecycle Rule = "lifecycle-order"
	// RuleThread covers calls made from the wrong thread.
	RuleThread Rule = "thread"
	// RuleReturnValue covers disallowed or failing return values.
	RuleReturnValue Rule = "return-value"
	// RuleCallback covers host callbacks made in a status that forbids them.
	RuleCallback Rule = "callback-state"
	// RuleMisbehaving covers misbehaviour reported through clap.log.
	RuleMisbehaving Rule = "reported-misbehaviour"
)

// ViolationError is a contract violation attributed to the plugin.
type ViolationError struct {
	Rule    Rule
	Message string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Message)
}

func violation(rule Rule, format string, args ...any) *ViolationError {
	return &ViolationError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// IsViolation reports whether err wraps a *ViolationError.
func IsViolation(err error) bool {
	var ve *ViolationError
	return errors.As(err, &ve)
}

// PanicError carries a panic raised on the audio thread over to the main
// thread.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic on audio thread: %v", e.Value)
}
