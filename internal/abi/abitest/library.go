package abitest

import (
	"sync"
	"time"

	"github.com/roach88/clapval/internal/abi"
)

// LibrarySpec describes a fake module.
type LibrarySpec struct {
	Path    string
	Version abi.Version
	Plugins []PluginSpec

	// MissingEntry makes Open fail as if clap_entry was not exported.
	MissingEntry bool
	// InitFails makes the entry point's init() return false.
	InitFails bool
	// ScanDelay is slept inside Open to simulate a slow entry point.
	ScanDelay time.Duration
	// AnyFactory makes get_factory return a value for unknown ids.
	AnyFactory bool
}

// Loader is an abi.Loader backed by LibrarySpecs keyed by path.
type Loader struct {
	mu   sync.Mutex
	libs map[string]*LibrarySpec
	open int
}

// NewLoader creates a loader serving the given fake modules.
func NewLoader(libs ...*LibrarySpec) *Loader {
	l := &Loader{libs: make(map[string]*LibrarySpec, len(libs))}
	for _, lib := range libs {
		l.libs[lib.Path] = lib
	}
	return l
}

// Open implements abi.Loader.
func (l *Loader) Open(path string) (abi.Library, error) {
	l.mu.Lock()
	spec, ok := l.libs[path]
	l.mu.Unlock()
	if !ok {
		return nil, abi.NewSetupError(abi.SetupLoadFailed, path, "no such module")
	}
	if spec.ScanDelay > 0 {
		time.Sleep(spec.ScanDelay)
	}
	if spec.MissingEntry {
		return nil, abi.NewSetupError(abi.SetupMissingEntry, path, "module does not export clap_entry")
	}
	if spec.InitFails {
		return nil, abi.NewSetupError(abi.SetupInitFailed, path, "clap_plugin_entry::init() returned false")
	}

	l.mu.Lock()
	l.open++
	l.mu.Unlock()
	return &Library{loader: l, spec: spec}, nil
}

// OpenCount returns the number of libraries that are open right now.
func (l *Loader) OpenCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

// Library is a loaded fake module.
type Library struct {
	loader *Loader
	spec   *LibrarySpec
	closed bool
}

func (lib *Library) Path() string { return lib.spec.Path }

func (lib *Library) Version() abi.Version { return lib.spec.Version }

func (lib *Library) Factory(id string) any {
	if id == abi.PluginFactoryID {
		return &Factory{lib: lib}
	}
	if lib.spec.AnyFactory {
		return struct{}{}
	}
	return nil
}

func (lib *Library) Close() error {
	if lib.closed {
		return nil
	}
	lib.closed = true
	lib.loader.mu.Lock()
	lib.loader.open--
	lib.loader.mu.Unlock()
	return nil
}

// Factory is the fake clap_plugin_factory_t.
type Factory struct {
	lib *Library
}

func (f *Factory) Count() uint32 {
	return uint32(len(f.lib.spec.Plugins))
}

func (f *Factory) Descriptor(index uint32) *abi.Descriptor {
	if int(index) >= len(f.lib.spec.Plugins) {
		return nil
	}
	d := f.lib.spec.Plugins[index].Descriptor
	d.Features = append([]string(nil), d.Features...)
	return &d
}

func (f *Factory) Create(host abi.Host, pluginID string) (abi.Plugin, error) {
	for i := range f.lib.spec.Plugins {
		spec := &f.lib.spec.Plugins[i]
		match := spec.Descriptor.ID == pluginID
		if !match && spec.Has(FaultAcceptsTrailingGarbage) && len(pluginID) > len(spec.Descriptor.ID) &&
			pluginID[:len(spec.Descriptor.ID)] == spec.Descriptor.ID {
			match = true
		}
		if match {
			return newPlugin(spec, host), nil
		}
	}
	return nil, nil
}
