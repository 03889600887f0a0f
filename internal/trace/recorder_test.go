package trace

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clapval/internal/testutil"
)

func fixedThread(id uint64) Option {
	return WithThreadID(func() uint64 { return id })
}

func TestRecorder_CallReturnPairs(t *testing.T) {
	r := NewRecorder(WithClock(testutil.NewDeterministicClock()), fixedThread(1))

	const n = 25
	for i := 0; i < n; i++ {
		sp := r.Call(HostToPlugin, "clap_plugin::process", A("frames", 512))
		sp.Return(A("result", "CLAP_PROCESS_CONTINUE"))
	}

	events := r.Events()
	require.Len(t, events, 2*n)
	assert.Equal(t, n, Pairs(events))
	require.NoError(t, Validate(events, false))

	for i := 0; i < len(events); i += 2 {
		assert.Equal(t, PhaseCall, events[i].Phase)
		assert.Equal(t, PhaseReturn, events[i+1].Phase)
		assert.Equal(t, events[i].CorrelationID, events[i+1].CorrelationID)
	}
}

type backwardsClock struct {
	values []int64
	i      int
}

func (c *backwardsClock) Now() int64 {
	v := c.values[c.i%len(c.values)]
	c.i++
	return v
}

func TestRecorder_TimestampsNeverDecrease(t *testing.T) {
	r := NewRecorder(WithClock(&backwardsClock{values: []int64{10, 5, 20, 3}}), fixedThread(1))

	r.Call(HostToPlugin, "a").Return()
	r.Call(HostToPlugin, "b").Return()

	events := r.Events()
	require.Len(t, events, 4)
	assert.Equal(t, []int64{10, 10, 20, 20}, []int64{
		events[0].Timestamp, events[1].Timestamp, events[2].Timestamp, events[3].Timestamp,
	})
	require.NoError(t, Validate(events, false))
}

func TestRecorder_ConcurrentSpans(t *testing.T) {
	r := NewRecorder()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				r.Call(PluginToHost, "clap_host::request_callback").Return()
			}
		}()
	}
	wg.Wait()

	events := r.Events()
	assert.Equal(t, 400, Pairs(events))
	require.NoError(t, Validate(events, false))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	r.Call(HostToPlugin, "x").Return()
	r.NameThread(1, "main")

	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.Events())
	_, ok := r.Last()
	assert.False(t, ok)
}

func TestValidate_Rejects(t *testing.T) {
	call := Event{Seq: 1, Timestamp: 1, Phase: PhaseCall, Name: "a", CorrelationID: 1}
	ret := Event{Seq: 2, Timestamp: 2, Phase: PhaseReturn, Name: "a", CorrelationID: 1}

	tests := []struct {
		name   string
		events []Event
	}{
		{"orphan return", []Event{ret}},
		{"unclosed call", []Event{call}},
		{"time goes back", []Event{call, {Seq: 2, Timestamp: 0, Phase: PhaseReturn, Name: "a", CorrelationID: 1}}},
		{"seq repeats", []Event{call, {Seq: 1, Timestamp: 2, Phase: PhaseReturn, Name: "a", CorrelationID: 1}}},
		{"name mismatch", []Event{call, {Seq: 2, Timestamp: 2, Phase: PhaseReturn, Name: "b", CorrelationID: 1}}},
		{"id reused", []Event{call, ret, {Seq: 3, Timestamp: 3, Phase: PhaseCall, Name: "a", CorrelationID: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, Validate(tt.events, false))
		})
	}

	assert.NoError(t, Validate([]Event{call}, true), "open calls are fine for a truncated trace")
}
