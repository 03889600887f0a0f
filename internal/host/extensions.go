package host

import (
	"fmt"

	"github.com/roach88/clapval/internal/abi"
)

// AudioPorts queries clap.audio-ports.
func (i *Instance) AudioPorts() (abi.AudioPorts, bool) {
	return abi.QueryExtension[abi.AudioPorts](i.plugin, abi.ExtAudioPorts)
}

// NotePorts queries clap.note-ports.
func (i *Instance) NotePorts() (abi.NotePorts, bool) {
	return abi.QueryExtension[abi.NotePorts](i.plugin, abi.ExtNotePorts)
}

// Params queries clap.params.
func (i *Instance) Params() (abi.Params, bool) {
	return abi.QueryExtension[abi.Params](i.plugin, abi.ExtParams)
}

// State queries clap.state.
func (i *Instance) State() (abi.State, bool) {
	return abi.QueryExtension[abi.State](i.plugin, abi.ExtState)
}

// Latency queries clap.latency.
func (i *Instance) Latency() (abi.Latency, bool) {
	return abi.QueryExtension[abi.Latency](i.plugin, abi.ExtLatency)
}

// Tail queries clap.tail.
func (i *Instance) Tail() (abi.Tail, bool) {
	return abi.QueryExtension[abi.Tail](i.plugin, abi.ExtTail)
}

// ParamInfos lists every parameter, checking that ids are unique.
func (i *Instance) ParamInfos() ([]abi.ParamInfo, error) {
	params, ok := i.Params()
	if !ok {
		return nil, nil
	}
	count := params.Count()
	infos := make([]abi.ParamInfo, 0, count)
	seen := make(map[uint32]uint32, count)
	for idx := uint32(0); idx < count; idx++ {
		info, ok := params.Info(idx)
		if !ok {
			return nil, violation(RuleReturnValue, "clap_plugin_params::get_info(%d) returned false with %d parameters", idx, count)
		}
		if prev, dup := seen[info.ID]; dup {
			return nil, violation(RuleReturnValue, "parameters %d and %d share id %d", prev, idx, info.ID)
		}
		seen[info.ID] = idx
		infos = append(infos, info)
	}
	return infos, nil
}

// ParamValues reads the current value of every parameter.
func (i *Instance) ParamValues(infos []abi.ParamInfo) (map[uint32]float64, error) {
	params, ok := i.Params()
	if !ok {
		return nil, fmt.Errorf("plugin does not implement %s", abi.ExtParams)
	}
	values := make(map[uint32]float64, len(infos))
	for _, info := range infos {
		v, ok := params.Value(info.ID)
		if !ok {
			return nil, violation(RuleReturnValue, "clap_plugin_params::get_value(%d) returned false", info.ID)
		}
		values[info.ID] = v
	}
	return values, nil
}

// FlushParams sends events through clap_plugin_params::flush(). The plugin
// must not be processing.
func (i *Instance) FlushParams(in *abi.EventList) (*abi.EventList, error) {
	params, ok := i.Params()
	if !ok {
		return nil, fmt.Errorf("plugin does not implement %s", abi.ExtParams)
	}
	if s := i.Status(); s == StatusProcessing || s == StatusUnloaded || s == StatusDestroyed {
		return nil, violation(RuleLifecycle, "clap_plugin_params::flush() called from the main thread while the plugin is %s", s)
	}
	i.observe("clap_plugin_params::flush()")
	out := &abi.EventList{}
	params.Flush(in, out)
	if err := i.CallbackError(); err != nil {
		return out, err
	}
	return out, nil
}
