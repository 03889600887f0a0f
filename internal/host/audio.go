package host

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/roach88/clapval/internal/abi"
	"github.com/roach88/clapval/internal/osthread"
)

var currentThread = osthread.ID

// mainThreadPollInterval is how often pending request_callback() calls are
// serviced while the audio thread runs.
const mainThreadPollInterval = time.Millisecond

// AudioThread exposes the calls that may only be made from the audio
// thread. It is only valid inside the closure passed to OnAudioThread.
type AudioThread struct {
	inst *Instance
}

type audioResult struct {
	err   error
	panic *PanicError
}

// OnAudioThread runs fn on a dedicated goroutine locked to its own OS thread
// and blocks until it returns. Meanwhile the calling (main) goroutine keeps
// servicing request_callback(). If fn leaves the plugin processing,
// stop_processing() is called before the audio thread exits, also after a
// callback violation or a panic. A panic on the audio thread is re-raised on
// the main thread.
func (i *Instance) OnAudioThread(fn func(at *AudioThread) error) error {
	done := make(chan audioResult, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		tid := currentThread()
		i.audioTID.Store(tid)
		i.recorder.NameThread(tid, "audio")

		var res audioResult
		defer func() {
			if r := recover(); r != nil {
				res.panic = &PanicError{Value: r, Stack: debug.Stack()}
				i.stopAfterPanic()
			}
			i.audioTID.Store(0)
			done <- res
		}()

		res.err = fn(&AudioThread{inst: i})
		i.forceStopProcessing()
	}()

	ticker := time.NewTicker(mainThreadPollInterval)
	defer ticker.Stop()
	for {
		select {
		case res := <-done:
			if res.panic != nil {
				panic(res.panic)
			}
			i.PollMainThread()
			if res.err != nil {
				return res.err
			}
			return i.CallbackError()
		case <-ticker.C:
			i.PollMainThread()
		}
	}
}

// forceStopProcessing calls stop_processing() if the plugin is processing.
// Unlike AudioThread.StopProcessing it ignores a latched callback error, so
// teardown keeps the lifecycle order after a violation. Audio thread only.
func (i *Instance) forceStopProcessing() {
	if i.Status() != StatusProcessing {
		return
	}
	i.observe("clap_plugin::stop_processing()")
	i.plugin.StopProcessing()
	i.setStatus(StatusActivated)
}

func (i *Instance) stopAfterPanic() {
	defer func() { _ = recover() }()
	i.forceStopProcessing()
}

// stopOnAudioThread runs forceStopProcessing on a short-lived audio thread.
// The plugin counts as activated afterwards even if stop_processing()
// panicked.
func (i *Instance) stopOnAudioThread() {
	done := make(chan struct{})
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(done)

		tid := currentThread()
		i.audioTID.Store(tid)
		i.recorder.NameThread(tid, "audio")
		defer i.audioTID.Store(0)
		i.stopAfterPanic()
	}()
	<-done
	if i.Status() == StatusProcessing {
		i.setStatus(StatusActivated)
	}
}

// Instance returns the instance this audio thread belongs to.
func (at *AudioThread) Instance() *Instance {
	return at.inst
}

// StartProcessing calls clap_plugin::start_processing().
func (at *AudioThread) StartProcessing() error {
	i := at.inst
	if err := i.expect("start_processing", true); err != nil {
		return err
	}
	if !i.plugin.StartProcessing() {
		return violation(RuleReturnValue, "clap_plugin::start_processing() returned false")
	}
	i.setStatus(StatusProcessing)
	return i.CallbackError()
}

// StopProcessing calls clap_plugin::stop_processing().
func (at *AudioThread) StopProcessing() error {
	i := at.inst
	if err := i.expect("stop_processing", true); err != nil {
		return err
	}
	i.plugin.StopProcessing()
	i.setStatus(StatusActivated)
	return i.CallbackError()
}

// Reset calls clap_plugin::reset().
func (at *AudioThread) Reset() error {
	i := at.inst
	if err := i.expect("reset", true); err != nil {
		return err
	}
	i.plugin.Reset()
	return i.CallbackError()
}

// Process calls clap_plugin::process(). CLAP_PROCESS_ERROR and undefined
// status codes are violations.
func (at *AudioThread) Process(data *abi.ProcessData) (abi.ProcessStatus, error) {
	i := at.inst
	if err := i.expect("process", true); err != nil {
		return abi.ProcessError, err
	}
	if data.InEvents != nil && !data.InEvents.Sorted() {
		return abi.ProcessError, fmt.Errorf("input events are not sorted by time")
	}
	status := i.plugin.Process(data)
	if err := i.CallbackError(); err != nil {
		return status, err
	}
	switch {
	case status == abi.ProcessError:
		return status, violation(RuleReturnValue, "clap_plugin::process() returned CLAP_PROCESS_ERROR")
	case !status.Valid():
		return status, violation(RuleReturnValue, "clap_plugin::process() returned unknown status code %d", int32(status))
	}
	if data.OutEvents != nil && !data.OutEvents.Sorted() {
		return status, violation(RuleReturnValue, "clap_plugin::process() produced output events out of order")
	}
	return status, nil
}
