package host

import (
	"fmt"

	"github.com/roach88/clapval/internal/abi"
)

// outputStream collects state written by the plugin. A positive maxChunk
// caps how many bytes a single write accepts.
type outputStream struct {
	inst     *Instance
	buf      []byte
	maxChunk int
}

func (o *outputStream) Write(p []byte) int64 {
	if !o.inst.IsMainThread() {
		o.inst.fail(violation(RuleThread, "clap_ostream::write() may only be called from the main thread"))
		return -1
	}
	n := len(p)
	if o.maxChunk > 0 && n > o.maxChunk {
		n = o.maxChunk
	}
	o.buf = append(o.buf, p[:n]...)
	return int64(n)
}

// inputStream feeds saved state to the plugin, at most maxChunk bytes per
// read when maxChunk is positive.
type inputStream struct {
	inst     *Instance
	data     []byte
	pos      int
	maxChunk int
}

func (s *inputStream) Read(p []byte) int64 {
	if !s.inst.IsMainThread() {
		s.inst.fail(violation(RuleThread, "clap_istream::read() may only be called from the main thread"))
		return -1
	}
	n := len(p)
	if s.maxChunk > 0 && n > s.maxChunk {
		n = s.maxChunk
	}
	n = copy(p[:n], s.data[s.pos:])
	s.pos += n
	return int64(n)
}

// SaveState calls clap_plugin_state::save(). A positive maxChunk makes the
// stream accept at most that many bytes per write, as some hosts do.
func (i *Instance) SaveState(maxChunk int) ([]byte, error) {
	st, ok := i.State()
	if !ok {
		return nil, fmt.Errorf("plugin does not implement %s", abi.ExtState)
	}
	if err := i.stateCallAllowed("save"); err != nil {
		return nil, err
	}
	out := &outputStream{inst: i, maxChunk: maxChunk}
	if !st.Save(out) {
		return nil, violation(RuleReturnValue, "clap_plugin_state::save() returned false")
	}
	if err := i.CallbackError(); err != nil {
		return nil, err
	}
	return out.buf, nil
}

// LoadState calls clap_plugin_state::load(). It reports false without an
// error when the plugin rejected the state.
func (i *Instance) LoadState(data []byte, maxChunk int) (bool, error) {
	st, ok := i.State()
	if !ok {
		return false, fmt.Errorf("plugin does not implement %s", abi.ExtState)
	}
	if err := i.stateCallAllowed("load"); err != nil {
		return false, err
	}
	in := &inputStream{inst: i, data: data, maxChunk: maxChunk}
	loaded := st.Load(in)
	if err := i.CallbackError(); err != nil {
		return loaded, err
	}
	return loaded, nil
}

func (i *Instance) stateCallAllowed(call string) error {
	if !i.IsMainThread() {
		return violation(RuleThread, "clap_plugin_state::%s() must be called from the main thread", call)
	}
	switch s := i.Status(); s {
	case StatusUnloaded, StatusDestroyed, StatusProcessing:
		return violation(RuleLifecycle, "clap_plugin_state::%s() called while the plugin is %s", call, s)
	}
	i.observe("clap_plugin_state::" + call + "()")
	return nil
}
