package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/roach88/clapval/internal/result"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Every selected test passed
	ExitFailure      = 1 // A test failed, crashed or timed out
	ExitCommandError = 2 // Setup error, bad arguments, unreadable config or database
)

// ExitError represents an error with a specific exit code.
// An empty Message means the outcome was already reported on stdout and
// nothing more should be printed.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Silent reports whether the error carries nothing to print.
func (e *ExitError) Silent() bool {
	return e.Message == "" && e.Err == nil
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitCommandError (2) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// OutputFormatter handles text, JSON and YAML output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; Writer when nil
	Verbose   bool
}

// CLIResponse is the envelope for structured output.
type CLIResponse struct {
	Status string    `json:"status" yaml:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty" yaml:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty" yaml:"error,omitempty"`
}

// CLIError describes a failed command in structured output.
type CLIError struct {
	Code    string `json:"code" yaml:"code"`
	Message string `json:"message" yaml:"message"`
	Details any    `json:"details,omitempty" yaml:"details,omitempty"`
}

// Structured reports whether output is machine readable.
func (f *OutputFormatter) Structured() bool {
	return f.Format == "json" || f.Format == "yaml"
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	switch f.Format {
	case "yaml":
		enc := yaml.NewEncoder(f.Writer)
		enc.SetIndent(2)
		if err := enc.Encode(resp); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
}

// Success writes data, wrapped in an "ok" envelope for structured formats.
func (f *OutputFormatter) Success(data any) error {
	if f.Structured() {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error reports a command failure. Structured formats get an error
// envelope; text output gets a one-line message.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Structured() {
		return f.encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog writes a diagnostic line when --verbose is set.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns where diagnostics go.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// Styles returns the text styles for the formatter's writer. Colors are
// dropped automatically when the writer is not a terminal.
func (f *OutputFormatter) Styles() Styles {
	return newStyles(lipgloss.NewRenderer(f.Writer))
}

// Styles holds the lipgloss styles used by text output.
type Styles struct {
	Heading lipgloss.Style
	Subtle  lipgloss.Style
	status  map[result.Status]lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) Styles {
	color := func(c string) lipgloss.Style {
		return r.NewStyle().Bold(true).Foreground(lipgloss.Color(c))
	}
	return Styles{
		Heading: r.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Subtle:  r.NewStyle().Foreground(lipgloss.Color("245")),
		status: map[result.Status]lipgloss.Style{
			result.StatusPass:       color("46"),
			result.StatusFail:       color("196"),
			result.StatusWarning:    color("214"),
			result.StatusSkipped:    color("245"),
			result.StatusCrashed:    color("201"),
			result.StatusTimedOut:   color("201"),
			result.StatusSetupError: color("160"),
		},
	}
}

// Status renders a status label padded to a fixed width.
func (s Styles) Status(st result.Status) string {
	label := fmt.Sprintf("%-11s", statusLabel(st))
	if style, ok := s.status[st]; ok {
		return style.Render(label)
	}
	return label
}

func statusLabel(st result.Status) string {
	switch st {
	case result.StatusPass:
		return "PASS"
	case result.StatusFail:
		return "FAIL"
	case result.StatusWarning:
		return "WARNING"
	case result.StatusSkipped:
		return "SKIPPED"
	case result.StatusCrashed:
		return "CRASHED"
	case result.StatusTimedOut:
		return "TIMED OUT"
	case result.StatusSetupError:
		return "SETUP ERROR"
	default:
		return string(st)
	}
}
