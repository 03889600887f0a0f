package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clapval/internal/abi/abitest"
	"github.com/roach88/clapval/internal/harness"
	"github.com/roach88/clapval/internal/registry"
)

// execute runs the root command with the fixture loader and returns stdout,
// stderr and the command error.
func execute(t *testing.T, env Environment, args ...string) (string, string, error) {
	t.Helper()
	if env.Loader == nil {
		env.Loader = abitest.Standard()
	}
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommandWith(env)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestListTests_Text(t *testing.T) {
	stdout, _, err := execute(t, Environment{}, "list", "tests")
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "list-tests", []byte(stdout))
}

func TestListTests_VerboseShowsDescriptions(t *testing.T) {
	stdout, _, err := execute(t, Environment{}, "list", "tests", "--verbose")
	require.NoError(t, err)

	assert.Contains(t, stdout, "DESCRIPTION")
	tc, ok := harness.Registry().Lookup("state-invalid-empty")
	require.True(t, ok)
	assert.Contains(t, stdout, tc.Description)
}

func TestListTests_JSON(t *testing.T) {
	stdout, _, err := execute(t, Environment{}, "list", "tests", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string              `json:"status"`
		Data   []registry.TestCase `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, harness.Registry().List(), resp.Data)
}

func TestTestFlags(t *testing.T) {
	assert.Equal(t, "", testFlags(registry.TestCase{DefaultEnabled: true}))
	assert.Equal(t, "pedantic", testFlags(registry.TestCase{Pedantic: true, DefaultEnabled: true}))
	assert.Equal(t, "pedantic,disabled", testFlags(registry.TestCase{Pedantic: true}))
}

func TestListPlugins_InProcess(t *testing.T) {
	stdout, _, err := execute(t, Environment{}, "list", "plugins", "--in-process", abitest.GainPath, abitest.SynthPath)
	require.NoError(t, err)

	assert.Contains(t, stdout, abitest.GainPath+" (CLAP 1.2.2)")
	assert.Contains(t, stdout, abitest.GainID)
	assert.Contains(t, stdout, abitest.SynthID)
}

func TestListPlugins_ScanFailureExitsWithSetupError(t *testing.T) {
	stdout, _, err := execute(t, Environment{}, "list", "plugins", "--in-process", "--format", "json",
		abitest.GainPath, abitest.NoEntryPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp struct {
		Data []ModuleListing `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data, 2)
	assert.Empty(t, resp.Data[0].Error)
	require.Len(t, resp.Data[0].Plugins, 1)
	assert.Equal(t, abitest.GainID, resp.Data[0].Plugins[0].ID)
	assert.NotEmpty(t, resp.Data[1].Error)
	assert.Empty(t, resp.Data[1].Plugins)
}

func TestRenderListings_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderListings(&OutputFormatter{Format: "text", Writer: &buf}, nil))
	assert.Equal(t, "No CLAP modules found.\n", buf.String())
}
