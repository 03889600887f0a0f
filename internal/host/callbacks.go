package host

import (
	"context"
	"log/slog"

	"github.com/roach88/clapval/internal/abi"
)

// fail latches the first callback violation. Later ones are only logged.
func (i *Instance) fail(err *ViolationError) {
	i.mu.Lock()
	first := i.callbackErr == nil
	if first {
		i.callbackErr = err
	}
	i.mu.Unlock()
	i.logger.Debug("host callback violation", "rule", err.Rule, "error", err.Message, "first", first)
}

// enter counts a callback and checks the rules shared by all of them:
// nothing may be called before the plugin is created or after it is
// destroyed.
func (i *Instance) enter(name string) bool {
	i.mu.Lock()
	i.callbacks[name]++
	i.mu.Unlock()

	switch i.Status() {
	case StatusUnloaded:
		i.fail(violation(RuleCallback, "%s() was called during clap_plugin_factory::create_plugin()", name))
		return false
	case StatusDestroyed:
		i.fail(violation(RuleCallback, "%s() was called after clap_plugin::destroy()", name))
		return false
	}
	return true
}

func (i *Instance) requireMainThread(name string) bool {
	if !i.IsMainThread() {
		i.fail(violation(RuleThread, "%s() may only be called from the main thread", name))
		return false
	}
	return true
}

// Info implements abi.Host.
func (i *Instance) Info() abi.HostInfo {
	return Info
}

// SupportsExtension implements abi.Host.
func (i *Instance) SupportsExtension(id string) bool {
	i.mu.Lock()
	i.callbacks["clap_host::get_extension"]++
	i.mu.Unlock()
	switch id {
	case abi.ExtAudioPorts, abi.ExtNotePorts, abi.ExtParams, abi.ExtState,
		abi.ExtLatency, abi.ExtTail, abi.ExtThreadCheck, abi.ExtLog:
		return true
	}
	return false
}

// RequestRestart implements abi.Host.
func (i *Instance) RequestRestart() {
	if i.enter("clap_host::request_restart") {
		i.restartRequested.Store(true)
	}
}

// RequestProcess implements abi.Host.
func (i *Instance) RequestProcess() {
	if i.enter("clap_host::request_process") {
		i.processRequested.Store(true)
	}
}

// RequestCallback implements abi.Host. The callback is delivered by
// PollMainThread, which OnAudioThread runs every millisecond.
func (i *Instance) RequestCallback() {
	if i.enter("clap_host::request_callback") {
		i.callbackRequested.Store(true)
	}
}

// Log implements abi.Host. Misbehaviour reports fail the test.
func (i *Instance) Log(severity abi.LogSeverity, msg string) {
	i.mu.Lock()
	i.callbacks["clap_host_log::log"]++
	i.mu.Unlock()

	switch severity {
	case abi.LogDebug:
		i.logger.Debug(msg, "source", "plugin")
	case abi.LogInfo:
		i.logger.Info(msg, "source", "plugin")
	case abi.LogWarning:
		i.logger.Warn(msg, "source", "plugin")
	case abi.LogError, abi.LogFatal:
		i.logger.Error(msg, "source", "plugin", "fatal", severity == abi.LogFatal)
	case abi.LogHostMisbehaving:
		i.logger.Error(msg, "source", "plugin", "severity", "host-misbehaving")
		i.fail(violation(RuleMisbehaving, "the plugin reported that the host misbehaved: %s", msg))
	case abi.LogPluginMisbehaving:
		i.logger.Error(msg, "source", "plugin", "severity", "plugin-misbehaving")
		i.fail(violation(RuleMisbehaving, "the plugin reported its own misbehaviour: %s", msg))
	default:
		i.logger.Log(context.Background(), slog.LevelWarn, msg, "source", "plugin", "severity", int32(severity))
	}
}

// IsMainThread implements abi.Host.
func (i *Instance) IsMainThread() bool {
	return currentThread() == i.mainTID
}

// IsAudioThread implements abi.Host.
func (i *Instance) IsAudioThread() bool {
	tid := i.audioTID.Load()
	return tid != 0 && currentThread() == tid
}

// AudioPortsIsRescanFlagSupported implements abi.Host.
func (i *Instance) AudioPortsIsRescanFlagSupported(flag uint32) bool {
	const name = "clap_host_audio_ports::is_rescan_flag_supported"
	if i.enter(name) {
		i.requireMainThread(name)
	}
	return true
}

// AudioPortsRescan implements abi.Host. Everything but a name change
// requires the plugin to be inactive.
func (i *Instance) AudioPortsRescan(flags uint32) {
	const name = "clap_host_audio_ports::rescan"
	if !i.enter(name) || !i.requireMainThread(name) {
		return
	}
	if flags&^abi.AudioPortsRescanNames != 0 && i.Status().Active() {
		i.fail(violation(RuleCallback, "%s(%#x) requires the plugin to be deactivated", name, flags))
	}
}

// NotePortsSupportedDialects implements abi.Host.
func (i *Instance) NotePortsSupportedDialects() uint32 {
	const name = "clap_host_note_ports::supported_dialects"
	if i.enter(name) {
		i.requireMainThread(name)
	}
	return abi.NoteDialectCLAP | abi.NoteDialectMIDI | abi.NoteDialectMIDIMPE | abi.NoteDialectMIDI2
}

// NotePortsRescan implements abi.Host.
func (i *Instance) NotePortsRescan(flags uint32) {
	const name = "clap_host_note_ports::rescan"
	if !i.enter(name) || !i.requireMainThread(name) {
		return
	}
	if flags&abi.NotePortsRescanAll != 0 && i.Status().Active() {
		i.fail(violation(RuleCallback, "%s(CLAP_NOTE_PORTS_RESCAN_ALL) requires the plugin to be deactivated", name))
	}
}

// ParamsRescan implements abi.Host.
func (i *Instance) ParamsRescan(flags uint32) {
	const name = "clap_host_params::rescan"
	if !i.enter(name) || !i.requireMainThread(name) {
		return
	}
	if flags&abi.ParamRescanAll != 0 && i.Status().Active() {
		i.fail(violation(RuleCallback, "%s(CLAP_PARAM_RESCAN_ALL) requires the plugin to be deactivated", name))
	}
}

// ParamsClear implements abi.Host.
func (i *Instance) ParamsClear(_ uint32, _ uint32) {
	const name = "clap_host_params::clear"
	if i.enter(name) {
		i.requireMainThread(name)
	}
}

// ParamsRequestFlush implements abi.Host. It may come from any thread but
// the audio thread.
func (i *Instance) ParamsRequestFlush() {
	const name = "clap_host_params::request_flush"
	if !i.enter(name) {
		return
	}
	if i.IsAudioThread() {
		i.fail(violation(RuleThread, "%s() may not be called from the audio thread", name))
		return
	}
	i.flushRequested.Store(true)
}

// StateMarkDirty implements abi.Host.
func (i *Instance) StateMarkDirty() {
	const name = "clap_host_state::mark_dirty"
	if i.enter(name) {
		i.requireMainThread(name)
	}
}

// LatencyChanged implements abi.Host. Latency may only change while
// activate() is running.
func (i *Instance) LatencyChanged() {
	const name = "clap_host_latency::changed"
	if !i.enter(name) || !i.requireMainThread(name) {
		return
	}
	if s := i.Status(); s != StatusActivating {
		i.fail(violation(RuleCallback, "%s() may only be called during clap_plugin::activate(), the plugin is %s", name, s))
	}
}

// TailChanged implements abi.Host.
func (i *Instance) TailChanged() {
	const name = "clap_host_tail::changed"
	if !i.enter(name) {
		return
	}
	if !i.IsAudioThread() {
		i.fail(violation(RuleThread, "%s() may only be called from the audio thread", name))
	}
}
