package harness

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/clapval/internal/abi"
	"github.com/roach88/clapval/internal/host"
	"github.com/roach88/clapval/internal/result"
)

func factoryDescriptor(env *Env) (*abi.Descriptor, error) {
	factory, err := env.factory()
	if err != nil {
		return nil, err
	}
	return env.descriptor(factory)
}

func testDescriptorConsistency(env *Env) result.Outcome {
	want, err := factoryDescriptor(env)
	if err != nil {
		return outcomeFor(err)
	}
	inst, err := env.newInstance()
	if err != nil {
		return outcomeFor(err)
	}
	got := inst.Plugin().Descriptor()
	if got == nil {
		return result.Fail("The 'clap_plugin::desc' field is a null pointer.")
	}
	if diffs := descriptorDiff(want, got); len(diffs) > 0 {
		return result.Fail("The plugin descriptor returned from the plugin factory and the plugin descriptor stored "+
			"on the 'clap_plugin' object are not equivalent: %s.", strings.Join(diffs, "; "))
	}
	return result.Pass()
}

// descriptorDiff lists the fields in which two descriptors differ.
func descriptorDiff(a, b *abi.Descriptor) []string {
	var diffs []string
	field := func(name, x, y string) {
		if x != y {
			diffs = append(diffs, fmt.Sprintf("%s %q != %q", name, x, y))
		}
	}
	field("clap_version", a.Version.String(), b.Version.String())
	field("id", a.ID, b.ID)
	field("name", a.Name, b.Name)
	field("vendor", a.Vendor, b.Vendor)
	field("url", a.URL, b.URL)
	field("manual_url", a.ManualURL, b.ManualURL)
	field("support_url", a.SupportURL, b.SupportURL)
	field("version", a.PluginVer, b.PluginVer)
	field("description", a.Description, b.Description)
	if !slices.Equal(a.Features, b.Features) {
		diffs = append(diffs, fmt.Sprintf("features %q != %q", a.Features, b.Features))
	}
	return diffs
}

func testFeaturesCategories(env *Env) result.Outcome {
	d, err := factoryDescriptor(env)
	if err != nil {
		return outcomeFor(err)
	}
	for _, category := range abi.MainCategories {
		if d.HasFeature(category) {
			return result.Pass()
		}
	}
	quoted := make([]string, len(abi.MainCategories))
	for idx, c := range abi.MainCategories {
		quoted[idx] = "'" + c + "'"
	}
	return result.Fail("The plugin needs to have at least one of the following plugin category features: %s.",
		strings.Join(quoted, ", "))
}

func testFeaturesDuplicates(env *Env) result.Outcome {
	d, err := factoryDescriptor(env)
	if err != nil {
		return outcomeFor(err)
	}
	seen := make(map[string]bool, len(d.Features))
	var dups []string
	for _, f := range d.Features {
		key := norm.NFC.String(f)
		if seen[key] && !slices.Contains(dups, key) {
			dups = append(dups, key)
		}
		seen[key] = true
	}
	if len(dups) > 0 {
		return result.Fail("The plugin has duplicate features: '%s'.", strings.Join(dups, "', '"))
	}
	return result.Pass()
}

// reactivationSteps are the (sample rate, max block size) pairs the
// reactivation test cycles through.
var reactivationSteps = []struct {
	sampleRate float64
	frames     uint32
}{
	{44100, 512},
	{96000, 1024},
	{48000, 64},
}

func testLifecycleReactivation(env *Env) result.Outcome {
	inst, ports, out, ok := prepareAudio(env)
	if !ok {
		return out
	}
	for _, step := range reactivationSteps {
		p := newProcessor(env, inst, ports, processorConfig{sampleRate: step.sampleRate, frames: step.frames})
		if err := p.runActivated(1, nil); err != nil {
			return outcomeFor(fmt.Errorf("cycle at %g Hz with %d frames: %w", step.sampleRate, step.frames, err))
		}
	}
	if err := env.release(inst); err != nil {
		return outcomeFor(err)
	}
	return result.Pass()
}

// prepareAudio creates and initializes an instance and reads its audio
// ports. When ok is false, out is the outcome to report.
func prepareAudio(env *Env) (inst *host.Instance, ports portConfig, out result.Outcome, ok bool) {
	inst, err := env.initInstance()
	if err != nil {
		return nil, portConfig{}, outcomeFor(err), false
	}
	ports, ok, err = audioPortConfig(inst)
	if err != nil {
		return nil, portConfig{}, outcomeFor(err), false
	}
	if !ok {
		return nil, portConfig{}, result.Skip("The plugin does not implement the 'audio-ports' extension."), false
	}
	return inst, ports, result.Outcome{}, true
}
