package abitest

import "github.com/roach88/clapval/internal/abi"

// Fixture module paths served by Standard.
const (
	GainPath    = "fixtures/gain.clap"
	SynthPath   = "fixtures/synth.clap"
	RudePath    = "fixtures/rude.clap"
	PanicPath   = "fixtures/panic.clap"
	CrashPath   = "fixtures/crash.clap"
	ExitPath    = "fixtures/exit.clap"
	HangPath    = "fixtures/hang.clap"
	NoEntryPath = "fixtures/no-entry.clap"
	MissingPath = "fixtures/missing.clap"
)

// Fixture plugin ids.
const (
	GainID  = "dev.clapval.gain"
	SynthID = "dev.clapval.synth"
	RudeID  = "dev.clapval.rude"
	PanicID = "dev.clapval.panic"
	CrashID = "dev.clapval.crash"
	ExitID  = "dev.clapval.exit"
	HangID  = "dev.clapval.hang"
)

// GainPlugin is a well-behaved stereo gain effect with parameters and state.
func GainPlugin(id string, faults ...Fault) PluginSpec {
	return PluginSpec{
		Descriptor: abi.Descriptor{
			Version:     abi.HostVersion,
			ID:          id,
			Name:        "Gain",
			Vendor:      "clapval",
			URL:         "https://example.invalid/gain",
			PluginVer:   "1.0.0",
			Description: "Stereo gain",
			Features:    []string{abi.FeatureAudioEffect, "stereo", "utility"},
		},
		AudioInputs: []abi.AudioPortInfo{{
			ID: 0, Name: "main in", Flags: abi.AudioPortIsMain | abi.AudioPortSupports64Bits,
			ChannelCount: 2, PortType: abi.AudioPortStereo, InPlacePair: 1,
		}},
		AudioOutputs: []abi.AudioPortInfo{{
			ID: 1, Name: "main out", Flags: abi.AudioPortIsMain | abi.AudioPortSupports64Bits,
			ChannelCount: 2, PortType: abi.AudioPortStereo, InPlacePair: 0,
		}},
		Params: []abi.ParamInfo{
			{
				ID: 1, Name: "Gain", Flags: abi.ParamIsAutomatable | abi.ParamIsModulatable | abi.ParamIsModulatablePerKey,
				MinValue: 0, MaxValue: 2, DefaultValue: 1,
			},
			{ID: 2, Name: "Mode", Flags: abi.ParamIsAutomatable | abi.ParamIsStepped, MinValue: 0, MaxValue: 3, DefaultValue: 0},
			{ID: 7, Name: "Meter", Flags: abi.ParamIsReadonly, MinValue: 0, MaxValue: 1, DefaultValue: 0},
		},
		HasState: true,
		Faults:   faults,
	}
}

// SynthPlugin is a note-driven instrument without parameters or state.
func SynthPlugin() PluginSpec {
	return PluginSpec{
		Descriptor: abi.Descriptor{
			Version:  abi.HostVersion,
			ID:       SynthID,
			Name:     "Synth",
			Vendor:   "clapval",
			Features: []string{abi.FeatureInstrument, "synthesizer"},
		},
		AudioOutputs: []abi.AudioPortInfo{{
			ID: 0, Name: "out", Flags: abi.AudioPortIsMain,
			ChannelCount: 2, PortType: abi.AudioPortStereo, InPlacePair: abi.InvalidID,
		}},
		NoteInputs: []abi.NotePortInfo{{
			ID: 0, Name: "notes",
			SupportedDialects: abi.NoteDialectCLAP | abi.NoteDialectMIDI,
			PreferredDialect:  abi.NoteDialectCLAP,
		}},
	}
}

// RudePlugin violates a handful of contracts without crashing.
func RudePlugin() PluginSpec {
	spec := GainPlugin(RudeID,
		FaultBadProcessStatus,
		FaultLatencyFromAudioThread,
		FaultAcceptsTrailingGarbage,
		FaultLoadsEmptyState,
		FaultHonoursForeignNamespace,
		FaultDefaultMismatch,
		FaultNondeterministic,
	)
	spec.Descriptor.Name = "Rude"
	spec.Descriptor.Features = []string{"stereo", "stereo"}
	return spec
}

// Standard returns a loader serving every fixture module.
func Standard() *Loader {
	return NewLoader(
		&LibrarySpec{Path: GainPath, Version: abi.HostVersion, Plugins: []PluginSpec{GainPlugin(GainID)}},
		&LibrarySpec{Path: SynthPath, Version: abi.HostVersion, Plugins: []PluginSpec{SynthPlugin()}},
		&LibrarySpec{Path: RudePath, Version: abi.HostVersion, Plugins: []PluginSpec{RudePlugin()}},
		&LibrarySpec{Path: PanicPath, Version: abi.HostVersion, Plugins: []PluginSpec{GainPlugin(PanicID, FaultPanicOnProcess)}},
		&LibrarySpec{Path: CrashPath, Version: abi.HostVersion, Plugins: []PluginSpec{GainPlugin(CrashID, FaultKillOnProcess)}},
		&LibrarySpec{Path: ExitPath, Version: abi.HostVersion, Plugins: []PluginSpec{GainPlugin(ExitID, FaultExitOnInit)}},
		&LibrarySpec{Path: HangPath, Version: abi.HostVersion, Plugins: []PluginSpec{GainPlugin(HangID, FaultHangOnActivate)}},
		&LibrarySpec{Path: NoEntryPath, MissingEntry: true},
	)
}
