package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/clapval/internal/result"
)

func TestOutputFormatter_StructuredEnvelopes(t *testing.T) {
	decoders := map[string]func([]byte, any) error{
		"json": json.Unmarshal,
		"yaml": yaml.Unmarshal,
	}
	for format, decode := range decoders {
		t.Run(format, func(t *testing.T) {
			var ok, failed bytes.Buffer
			require.NoError(t, (&OutputFormatter{Format: format, Writer: &ok}).Success(map[string]int{"passed": 3}))
			require.NoError(t, (&OutputFormatter{Format: format, Writer: &failed}).Error(
				"PLUGIN_NOT_FOUND", "no plugin with id dev.example", map[string]string{"plugin_id": "dev.example"}))

			var okResp struct {
				Status string         `json:"status" yaml:"status"`
				Data   map[string]int `json:"data" yaml:"data"`
			}
			require.NoError(t, decode(ok.Bytes(), &okResp))
			assert.Equal(t, "ok", okResp.Status)
			assert.Equal(t, 3, okResp.Data["passed"])

			var errResp CLIResponse
			require.NoError(t, decode(failed.Bytes(), &errResp))
			assert.Equal(t, "error", errResp.Status)
			require.NotNil(t, errResp.Error)
			assert.Equal(t, "PLUGIN_NOT_FOUND", errResp.Error.Code)
			assert.Equal(t, "no plugin with id dev.example", errResp.Error.Message)
			assert.NotNil(t, errResp.Error.Details)
		})
	}
}

func TestOutputFormatter_TextError(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			require.NoError(t, formatter.Error("CONFIG", "invalid filter", map[string]string{"key": "tests.scan-time"}))
			assert.Contains(t, buf.String(), "Error [CONFIG]: invalid filter")
			if tt.wantDetails {
				assert.Contains(t, buf.String(), "Details:")
			} else {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func TestOutputFormatter_VerboseLogGoesToErrWriter(t *testing.T) {
	var out, diag bytes.Buffer
	formatter := &OutputFormatter{Format: "text", Writer: &out, ErrWriter: &diag, Verbose: true}
	formatter.VerboseLog("Selected %d test(s)", 24)
	assert.Empty(t, out.String())
	assert.Equal(t, "Selected 24 test(s)\n", diag.String())

	diag.Reset()
	formatter.Verbose = false
	formatter.VerboseLog("Selected %d test(s)", 24)
	assert.Empty(t, diag.String())
}

func TestOutputFormatter_ErrWriterFallsBackToWriter(t *testing.T) {
	var out bytes.Buffer
	formatter := &OutputFormatter{Format: "text", Writer: &out}
	assert.Same(t, &out, formatter.GetErrWriter())
}

func TestStyles_PlainWhenNotATerminal(t *testing.T) {
	formatter := &OutputFormatter{Format: "text", Writer: &bytes.Buffer{}}
	st := formatter.Styles()

	assert.Equal(t, "PASS       ", st.Status(result.StatusPass))
	assert.Equal(t, "TIMED OUT  ", st.Status(result.StatusTimedOut))
	assert.Equal(t, "SETUP ERROR", st.Status(result.StatusSetupError))
	assert.Equal(t, "heading", st.Heading.Render("heading"))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(NewExitError(ExitFailure, "")))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "open", errors.New("boom"))))
	assert.Equal(t, ExitCommandError, GetExitCode(errors.New("plain")))
}

func TestExitError_Silent(t *testing.T) {
	assert.True(t, NewExitError(ExitFailure, "").Silent())
	assert.False(t, NewExitError(ExitFailure, "tests failed").Silent())

	err := WrapExitError(ExitCommandError, "record run", errors.New("disk full"))
	assert.False(t, err.Silent())
	assert.Equal(t, "record run: disk full", err.Error())
}
