package trace

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clapval/internal/testutil"
)

func TestWriteChrome_Golden(t *testing.T) {
	r := NewRecorder(WithClock(testutil.NewDeterministicClock()), fixedThread(1))
	r.NameThread(1, "main")

	initSpan := r.Call(HostToPlugin, "clap_plugin::init")
	checkSpan := r.Call(PluginToHost, "clap_host_thread_check::is_main_thread")
	checkSpan.Return(A("result", true))
	initSpan.Return(A("result", true))

	var buf bytes.Buffer
	require.NoError(t, WriteChrome(&buf, r.Document("dev.clapval.gain/param-conversions", 42)))

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "chrome_nested_calls", buf.Bytes())
}

func TestMarshalCanonical_SortsAndKeepsHTML(t *testing.T) {
	data, err := marshalCanonical(map[string]any{
		"z":   int64(1),
		"a":   "<b>&",
		"mid": []any{true, uint64(7)},
	})
	require.NoError(t, err)
	require.Equal(t, `{"a":"<b>&","mid":[true,7],"z":1}`, string(data))

	_, err = marshalCanonical(map[string]any{"f": 1.5})
	require.Error(t, err)
}
