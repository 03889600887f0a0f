package registry

import (
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func sampleRegistry() *Registry {
	return Build(
		TestCase{ID: "scan-time", Kind: KindLibrary, DefaultEnabled: true},
		TestCase{ID: "descriptor-consistency", Kind: KindPlugin, DefaultEnabled: true},
		TestCase{ID: "features-duplicates", Kind: KindPlugin, Pedantic: true, DefaultEnabled: true},
		TestCase{ID: "param-conversions", Kind: KindPlugin, Pedantic: true, DefaultEnabled: true},
		TestCase{ID: "param-fuzz-basic", Kind: KindPlugin, DefaultEnabled: true},
		TestCase{ID: "process-slow-soak", Kind: KindPlugin, DefaultEnabled: false},
	)
}

func TestResolve_DefaultsOnly(t *testing.T) {
	sel, errs := sampleRegistry().Resolve(nil, nil)
	assert.Empty(t, errs)
	assert.Equal(t, []string{
		"scan-time", "descriptor-consistency", "features-duplicates", "param-conversions", "param-fuzz-basic",
	}, sel.IDs())
	assert.False(t, sel.Contains("process-slow-soak"))
}

func TestResolve_FilterMatchingNothingIsEmpty(t *testing.T) {
	sel, errs := sampleRegistry().Resolve(regexp.MustCompile("^no-such-test$"), nil)
	assert.Empty(t, errs)
	assert.Equal(t, 0, sel.Len())
	assert.Empty(t, sel.IDs())
}

func TestResolve_OverrideDisablesPedanticWithoutFilter(t *testing.T) {
	sel, _ := sampleRegistry().Resolve(nil, map[string]bool{"param-conversions": false})
	assert.False(t, sel.Contains("param-conversions"))
	assert.True(t, sel.Contains("features-duplicates"))
}

func TestResolve_FilterCannotReEnable(t *testing.T) {
	overrides := map[string]bool{"param-conversions": false}
	sel, _ := sampleRegistry().Resolve(regexp.MustCompile("^param-"), overrides)
	assert.Equal(t, []string{"param-fuzz-basic"}, sel.IDs())

	sel, _ = sampleRegistry().Resolve(regexp.MustCompile("soak"), nil)
	assert.Equal(t, 0, sel.Len(), "a default-disabled test stays disabled under a matching filter")
}

func TestResolve_OverrideEnablesDefaultDisabled(t *testing.T) {
	sel, _ := sampleRegistry().Resolve(nil, map[string]bool{"process-slow-soak": true})
	assert.True(t, sel.Contains("process-slow-soak"))
	assert.Equal(t, "process-slow-soak", sel.IDs()[sel.Len()-1], "selection keeps registration order")
}

func TestResolve_UnknownOverridesAreReported(t *testing.T) {
	sel, errs := sampleRegistry().Resolve(nil, map[string]bool{"zzz": true, "aaa": false, "scan-time": false})
	require.Len(t, errs, 2)
	assert.EqualError(t, errs[0], "aaa: unknown test id")
	assert.EqualError(t, errs[1], "zzz: unknown test id")
	assert.False(t, sel.Contains("zzz"))
	assert.False(t, sel.Contains("scan-time"))
}

func TestSelection_OfKind(t *testing.T) {
	sel, _ := sampleRegistry().Resolve(nil, nil)
	lib := sel.OfKind(KindLibrary)
	require.Len(t, lib, 1)
	assert.Equal(t, "scan-time", lib[0].ID)
	assert.Len(t, sel.OfKind(KindPlugin), 4)
}

func TestBuild_PanicsOnDuplicates(t *testing.T) {
	assert.Panics(t, func() {
		Build(TestCase{ID: "a", Kind: KindPlugin}, TestCase{ID: "a", Kind: KindPlugin})
	})
	assert.Panics(t, func() { Build(TestCase{ID: "b", Kind: "module"}) })
}

func TestCompileFilter(t *testing.T) {
	re, err := CompileFilter("")
	assert.NoError(t, err)
	assert.Nil(t, re)

	re, err = CompileFilter("(")
	assert.Nil(t, re)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "--filter", ce.Key)
}

func TestList_ReturnsCopy(t *testing.T) {
	r := sampleRegistry()
	list := r.List()
	list[0].ID = "mutated"
	_, ok := r.Lookup("scan-time")
	assert.True(t, ok)
	assert.Equal(t, "scan-time", r.List()[0].ID)
}

// genRegistry draws a registry of 1..12 tests with random flags.
func genRegistry(t *rapid.T) *Registry {
	n := rapid.IntRange(1, 12).Draw(t, "n")
	cases := make([]TestCase, n)
	for i := range cases {
		kind := KindPlugin
		if rapid.Bool().Draw(t, fmt.Sprintf("library%d", i)) {
			kind = KindLibrary
		}
		cases[i] = TestCase{
			ID:             fmt.Sprintf("test-%02d", i),
			Kind:           kind,
			Pedantic:       rapid.Bool().Draw(t, fmt.Sprintf("pedantic%d", i)),
			DefaultEnabled: rapid.Bool().Draw(t, fmt.Sprintf("enabled%d", i)),
		}
	}
	return Build(cases...)
}

func genOverrides(t *rapid.T, r *Registry) map[string]bool {
	ids := []string{"unknown-a", "unknown-b", "test-99"}
	for _, tc := range r.List() {
		ids = append(ids, tc.ID)
	}
	keys := rapid.SliceOfDistinct(rapid.SampledFrom(ids), func(s string) string { return s }).Draw(t, "keys")
	overrides := make(map[string]bool, len(keys))
	for _, k := range keys {
		overrides[k] = rapid.Bool().Draw(t, "value-"+k)
	}
	return overrides
}

func genFilter(t *rapid.T) *regexp.Regexp {
	if rapid.Bool().Draw(t, "hasFilter") {
		pattern := rapid.SampledFrom([]string{"0", "1$", "^test-0", "test-1[0-1]", "nothing", ".*"}).Draw(t, "pattern")
		return regexp.MustCompile(pattern)
	}
	return nil
}

func TestResolve_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := genRegistry(t)
		overrides := genOverrides(t, r)
		filter := genFilter(t)

		sel, errs := r.Resolve(filter, overrides)

		unknown := 0
		for k := range overrides {
			if _, ok := r.Lookup(k); !ok {
				unknown++
			}
		}
		if len(errs) != unknown {
			t.Fatalf("expected %d config errors, got %d", unknown, len(errs))
		}

		unfiltered, _ := r.Resolve(nil, overrides)
		for _, id := range sel.IDs() {
			tc, ok := r.Lookup(id)
			if !ok {
				t.Fatalf("selected id %q is not registered", id)
			}
			if v, set := overrides[id]; set && !v {
				t.Fatalf("%q selected although the override disables it", id)
			}
			if _, set := overrides[id]; !set && !tc.DefaultEnabled {
				t.Fatalf("%q selected although disabled by default", id)
			}
			if filter != nil && !filter.MatchString(id) {
				t.Fatalf("%q selected although the filter does not match", id)
			}
			if !unfiltered.Contains(id) {
				t.Fatalf("filter re-enabled %q", id)
			}
		}
		for _, id := range unfiltered.IDs() {
			if (filter == nil || filter.MatchString(id)) && !sel.Contains(id) {
				t.Fatalf("%q dropped although enabled and matching", id)
			}
		}

		again, _ := r.Resolve(filter, overrides)
		if fmt.Sprint(again.IDs()) != fmt.Sprint(sel.IDs()) {
			t.Fatalf("resolution is not deterministic")
		}
	})
}
