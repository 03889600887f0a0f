package abi

import "fmt"

// Version is a clap_version_t.
type Version struct {
	Major    uint32 `json:"major" yaml:"major" msgpack:"major"`
	Minor    uint32 `json:"minor" yaml:"minor" msgpack:"minor"`
	Revision uint32 `json:"revision" yaml:"revision" msgpack:"revision"`
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Revision)
}

// Compatible mirrors clap_version_is_compatible(): any 1.x version is
// accepted.
func (v Version) Compatible() bool {
	return v.Major >= 1
}

// Descriptor is the static metadata a plugin factory exposes for each plugin.
type Descriptor struct {
	Version     Version  `json:"clap_version" yaml:"clap_version" msgpack:"clap_version"`
	ID          string   `json:"id" yaml:"id" msgpack:"id"`
	Name        string   `json:"name" yaml:"name" msgpack:"name"`
	Vendor      string   `json:"vendor,omitempty" yaml:"vendor,omitempty" msgpack:"vendor"`
	URL         string   `json:"url,omitempty" yaml:"url,omitempty" msgpack:"url"`
	ManualURL   string   `json:"manual_url,omitempty" yaml:"manual_url,omitempty" msgpack:"manual_url"`
	SupportURL  string   `json:"support_url,omitempty" yaml:"support_url,omitempty" msgpack:"support_url"`
	PluginVer   string   `json:"version,omitempty" yaml:"version,omitempty" msgpack:"version"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty" msgpack:"description"`
	Features    []string `json:"features" yaml:"features" msgpack:"features"`
}

// HasFeature reports whether the descriptor lists feature verbatim.
func (d *Descriptor) HasFeature(feature string) bool {
	for _, f := range d.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// AudioPortInfo is a clap_audio_port_info_t.
type AudioPortInfo struct {
	ID           uint32
	Name         string
	Flags        uint32
	ChannelCount uint32
	PortType     string
	InPlacePair  uint32
}

// Supports64Bit reports whether the port accepts double precision buffers.
func (p AudioPortInfo) Supports64Bit() bool {
	return p.Flags&AudioPortSupports64Bits != 0
}

// NotePortInfo is a clap_note_port_info_t.
type NotePortInfo struct {
	ID                uint32
	SupportedDialects uint32
	PreferredDialect  uint32
	Name              string
}

// Cookie is the opaque pointer a plugin attaches to a parameter.
type Cookie uintptr

// ParamInfo is a clap_param_info_t.
type ParamInfo struct {
	ID           uint32
	Flags        uint32
	Cookie       Cookie
	Name         string
	Module       string
	MinValue     float64
	MaxValue     float64
	DefaultValue float64
}

// Stepped reports whether the parameter only takes integer values.
func (p ParamInfo) Stepped() bool {
	return p.Flags&ParamIsStepped != 0
}

// ReadOnly reports whether the host may not change the parameter.
func (p ParamInfo) ReadOnly() bool {
	return p.Flags&ParamIsReadonly != 0
}

// Automatable reports whether the host may automate the parameter.
func (p ParamInfo) Automatable() bool {
	return p.Flags&ParamIsAutomatable != 0
}

// Modulatable reports whether the parameter accepts modulation events.
func (p ParamInfo) Modulatable() bool {
	return p.Flags&ParamIsModulatable != 0
}

// PerKey reports whether values or modulation may target a single key.
func (p ParamInfo) PerKey() bool {
	return p.Flags&(ParamIsAutomatablePerKey|ParamIsModulatablePerKey) != 0
}

// Range returns MaxValue - MinValue.
func (p ParamInfo) Range() float64 {
	return p.MaxValue - p.MinValue
}

// HostInfo is the clap_host_t identity block handed to plugins.
type HostInfo struct {
	Name    string
	Vendor  string
	URL     string
	Version string
}
