package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clapval/internal/abi"
	"github.com/roach88/clapval/internal/abi/abitest"
	"github.com/roach88/clapval/internal/harness"
	"github.com/roach88/clapval/internal/result"
)

const workerEnv = "CLAPVAL_TEST_WORKER"

// TestMain doubles as the worker entry point: the runner re-executes the
// test binary with workerEnv set.
func TestMain(m *testing.M) {
	if os.Getenv(workerEnv) == "1" {
		suite := harness.NewSuite(abitest.Standard())
		if err := ServeFDs(context.Background(), suite); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func newTestRunner(t *testing.T, opts ...RunnerOption) *Runner {
	t.Helper()
	base := []RunnerOption{WithCommand(os.Args[0]), WithEnv(workerEnv + "=1")}
	r, err := NewRunner(append(base, opts...)...)
	require.NoError(t, err)
	return r
}

func TestServe_RunInMemory(t *testing.T) {
	var in, out bytes.Buffer
	require.NoError(t, WriteFrame(&in, KindRun, harness.Request{
		ModulePath: abitest.GainPath,
		PluginID:   abitest.GainID,
		TestID:     "lifecycle-reactivation",
	}))
	require.NoError(t, Serve(context.Background(), &in, &out, harness.NewSuite(abitest.Standard())))

	var kinds []Kind
	var outcome result.Outcome
	for {
		f, err := ReadFrame(&out)
		if err != nil {
			break
		}
		kinds = append(kinds, f.Kind)
		if f.Kind == KindResult {
			require.NoError(t, f.Decode(&outcome))
		}
	}
	require.NotEmpty(t, kinds)
	assert.Equal(t, KindProgress, kinds[0])
	assert.Equal(t, KindResult, kinds[len(kinds)-1])
	assert.Equal(t, result.StatusPass, outcome.Status, outcome.Reason)
	assert.Equal(t, "lifecycle-reactivation", outcome.TestID)
}

func TestServe_RejectsUnexpectedRequest(t *testing.T) {
	var in, out bytes.Buffer
	require.NoError(t, WriteFrame(&in, KindProgress, Progress{Stage: "x"}))
	err := Serve(context.Background(), &in, &out, harness.NewSuite(abitest.Standard()))
	assert.ErrorContains(t, err, "unexpected progress frame")
}

func TestRunner_PassingTest(t *testing.T) {
	r := newTestRunner(t)
	var stages []string
	out := r.Run(context.Background(), harness.Request{
		ModulePath: abitest.GainPath,
		PluginID:   abitest.GainID,
		TestID:     "process-audio-basic-out-of-place",
		Trace:      true,
	}, func(stage string) { stages = append(stages, stage) })

	assert.Equal(t, result.StatusPass, out.Status, out.Reason)
	assert.Contains(t, stages, "start process-audio-basic-out-of-place")
	require.NotNil(t, out.Trace, "the trace travels back from the worker")
	assert.NotEmpty(t, out.Trace.Events)
}

func TestRunner_ClassifiesAbnormalEndings(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		plugin string
		test   string
		status result.Status
		reason string
	}{
		{"killed by signal", abitest.CrashPath, abitest.CrashID, "process-audio-basic-out-of-place", result.StatusCrashed, "SIGKILL"},
		{"exit inside init", abitest.ExitPath, abitest.ExitID, "lifecycle-reactivation", result.StatusCrashed, "exited with status 3"},
		{"panic is caught in the worker", abitest.PanicPath, abitest.PanicID, "process-audio-basic-in-place", result.StatusCrashed, "clap_plugin::process"},
		{"hang", abitest.HangPath, abitest.HangID, "lifecycle-reactivation", result.StatusTimedOut, "did not finish within 2s"},
	}
	r := newTestRunner(t, WithTimeout(2*time.Second))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			out := r.Run(context.Background(), harness.Request{ModulePath: tt.path, PluginID: tt.plugin, TestID: tt.test}, nil)
			assert.Equal(t, tt.status, out.Status)
			assert.Contains(t, out.Reason, tt.reason)
			assert.Equal(t, tt.test, out.TestID)
			assert.NotEmpty(t, out.Description)
			assert.Less(t, time.Since(start), 20*time.Second)
		})
	}
}

func TestRunner_CrashDoesNotAffectConcurrentTests(t *testing.T) {
	r := newTestRunner(t, WithMaxWorkers(4))
	reqs := []harness.Request{
		{ModulePath: abitest.CrashPath, PluginID: abitest.CrashID, TestID: "process-audio-basic-out-of-place"},
		{ModulePath: abitest.GainPath, PluginID: abitest.GainID, TestID: "process-audio-basic-out-of-place"},
		{ModulePath: abitest.GainPath, PluginID: abitest.GainID, TestID: "state-reproducibility-basic"},
		{ModulePath: abitest.SynthPath, PluginID: abitest.SynthID, TestID: "process-note-out-of-place-basic"},
	}
	outs := make([]result.Outcome, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outs[i] = r.Run(context.Background(), req, nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, result.StatusCrashed, outs[0].Status)
	for _, out := range outs[1:] {
		assert.Equal(t, result.StatusPass, out.Status, "%s: %s", out.TestID, out.Reason)
	}
}

func TestRunner_CancelledContext(t *testing.T) {
	r := newTestRunner(t, WithTimeout(time.Minute))
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	out := r.Run(ctx, harness.Request{ModulePath: abitest.HangPath, PluginID: abitest.HangID, TestID: "lifecycle-reactivation"}, nil)
	assert.Equal(t, result.StatusSkipped, out.Status)
}

func TestRunner_Scan(t *testing.T) {
	r := newTestRunner(t)

	res, err := r.Scan(context.Background(), abitest.GainPath)
	require.NoError(t, err)
	require.Len(t, res.Descriptors, 1)
	assert.Equal(t, abitest.GainID, res.Descriptors[0].ID)

	_, err = r.Scan(context.Background(), abitest.MissingPath)
	var setup *abi.SetupError
	require.True(t, errors.As(err, &setup), "got %v", err)
	assert.Equal(t, abi.SetupLoadFailed, setup.Kind)
	assert.Equal(t, abitest.MissingPath, setup.Path)
}

func TestRunner_StartFailure(t *testing.T) {
	r, err := NewRunner(WithCommand("/nonexistent/clapval-worker"))
	require.NoError(t, err)
	out := r.Run(context.Background(), harness.Request{ModulePath: abitest.GainPath, TestID: "scan-time"}, nil)
	assert.Equal(t, result.StatusSetupError, out.Status)
	assert.Contains(t, out.Reason, "start worker")
}

func TestTailBuffer_KeepsTheEnd(t *testing.T) {
	tb := newTailBuffer(8)
	_, _ = tb.Write([]byte("0123456789"))
	_, _ = tb.Write([]byte("ab"))
	assert.Equal(t, "...456789ab", tb.String())

	small := newTailBuffer(8)
	_, _ = small.Write([]byte("hi"))
	assert.Equal(t, "hi", small.String())
}
