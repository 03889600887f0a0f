package abitest

// Fault selects a deliberate misbehaviour of a fixture plugin.
type Fault string

const (
	// FaultPanicOnProcess panics inside process().
	FaultPanicOnProcess Fault = "panic-on-process"
	// FaultKillOnProcess terminates the whole process with SIGKILL inside
	// process(). Only usable from a worker process.
	FaultKillOnProcess Fault = "kill-on-process"
	// FaultExitOnInit calls os.Exit inside init().
	FaultExitOnInit Fault = "exit-on-init"
	// FaultHangOnActivate blocks inside activate() for an hour.
	FaultHangOnActivate Fault = "hang-on-activate"
	// FaultBadProcessStatus returns an undefined status code from process().
	FaultBadProcessStatus Fault = "bad-process-status"
	// FaultNaNOutput writes NaN into every output buffer.
	FaultNaNOutput Fault = "nan-output"
	// FaultLatencyFromAudioThread calls latency.changed() from process().
	FaultLatencyFromAudioThread Fault = "latency-changed-on-audio-thread"
	// FaultAcceptsTrailingGarbage lets the factory create the plugin for an
	// id with extra characters appended.
	FaultAcceptsTrailingGarbage Fault = "accepts-trailing-garbage"
	// FaultLoadsEmptyState makes state.load() succeed on an empty stream.
	FaultLoadsEmptyState Fault = "loads-empty-state"
	// FaultHonoursForeignNamespace applies parameter events from any event
	// space.
	FaultHonoursForeignNamespace Fault = "honours-foreign-namespace"
	// FaultDefaultMismatch reports initial values that differ from the
	// declared defaults.
	FaultDefaultMismatch Fault = "default-mismatch"
	// FaultFalseConstantMask flags every output channel as constant.
	FaultFalseConstantMask Fault = "false-constant-mask"
	// FaultNeverSleeps leaves the constant mask clear and always returns
	// CLAP_PROCESS_CONTINUE.
	FaultNeverSleeps Fault = "never-sleeps"
	// FaultAcceptsAnyState makes state.load() succeed on malformed data
	// without changing any value.
	FaultAcceptsAnyState Fault = "accepts-any-state"
	// FaultIgnoresFlush makes params.flush() drop its input events.
	FaultIgnoresFlush Fault = "ignores-flush"
	// FaultNondeterministic adds a running counter to the output so reset()
	// does not restore the initial state.
	FaultNondeterministic Fault = "nondeterministic"
)
