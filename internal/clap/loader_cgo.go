//go:build cgo && (linux || darwin)

package clap

/*
#cgo linux LDFLAGS: -ldl
#include "bridge.h"
*/
import "C"

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/cgo"
	"strings"
	"sync"
	"unsafe"

	"github.com/roach88/clapval/internal/abi"
)

// Open loads the module at path and calls its entry point's init(). A
// module reporting an incompatible CLAP version is returned without being
// initialized so the caller can report the version.
func (l *Loader) Open(path string) (abi.Library, error) {
	binary, err := moduleBinary(path)
	if err != nil {
		return nil, &abi.SetupError{Kind: abi.SetupLoadFailed, Path: path, Message: "could not locate the module binary", Err: err}
	}

	cbinary := C.CString(binary)
	defer C.free(unsafe.Pointer(cbinary))
	var cerr *C.char
	handle := C.cv_dlopen(cbinary, &cerr)
	if handle == nil {
		msg := C.GoString(cerr)
		C.free(unsafe.Pointer(cerr))
		return nil, &abi.SetupError{Kind: abi.SetupLoadFailed, Path: path, Message: "could not load the module", Err: errors.New(msg)}
	}

	entry := C.cv_entry(handle)
	if entry == nil {
		C.cv_dlclose(handle)
		return nil, abi.NewSetupError(abi.SetupMissingEntry, path, "the module does not export clap_entry")
	}

	lib := &library{
		path:    path,
		handle:  handle,
		entry:   entry,
		version: versionFromC(entry.clap_version),
	}
	if !lib.version.Compatible() {
		return lib, nil
	}

	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	if !bool(C.cv_entry_init(entry, cpath)) {
		C.cv_dlclose(handle)
		return nil, abi.NewSetupError(abi.SetupInitFailed, path, "clap_plugin_entry::init() returned false")
	}
	lib.initialized = true
	return lib, nil
}

// moduleBinary resolves the shared object to dlopen. On macOS a .clap
// module is a bundle directory.
func moduleBinary(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return path, nil
	}
	if runtime.GOOS != "darwin" {
		return "", fmt.Errorf("%s is a directory", path)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	binary := filepath.Join(path, "Contents", "MacOS", name)
	if _, err := os.Stat(binary); err != nil {
		return "", fmt.Errorf("bundle has no executable: %w", err)
	}
	return binary, nil
}

func versionFromC(v C.clap_version_t) abi.Version {
	return abi.Version{Major: uint32(v.major), Minor: uint32(v.minor), Revision: uint32(v.revision)}
}

type library struct {
	path        string
	handle      unsafe.Pointer
	entry       *C.clap_plugin_entry_t
	version     abi.Version
	initialized bool

	closeOnce sync.Once
	closeErr  error
}

func (lib *library) Path() string { return lib.path }

func (lib *library) Version() abi.Version { return lib.version }

func (lib *library) Factory(id string) any {
	cid := C.CString(id)
	defer C.free(unsafe.Pointer(cid))
	ptr := C.cv_entry_get_factory(lib.entry, cid)
	if ptr == nil {
		return nil
	}
	if id == abi.PluginFactoryID {
		return &factory{lib: lib, f: (*C.clap_plugin_factory_t)(ptr)}
	}
	return opaqueFactory{id: id}
}

func (lib *library) Close() error {
	lib.closeOnce.Do(func() {
		if lib.initialized {
			C.cv_entry_deinit(lib.entry)
		}
		if C.cv_dlclose(lib.handle) != 0 {
			lib.closeErr = fmt.Errorf("dlclose %s failed", lib.path)
		}
	})
	return lib.closeErr
}

// opaqueFactory stands in for factories clapval does not drive.
type opaqueFactory struct {
	id string
}

type factory struct {
	lib *library
	f   *C.clap_plugin_factory_t
}

func (f *factory) Count() uint32 {
	if f.f.get_plugin_count == nil {
		panic("clap_plugin_factory::get_plugin_count is null")
	}
	return uint32(C.cv_factory_count(f.f))
}

func (f *factory) Descriptor(index uint32) *abi.Descriptor {
	if f.f.get_plugin_descriptor == nil {
		panic("clap_plugin_factory::get_plugin_descriptor is null")
	}
	return descriptorFromC(C.cv_factory_descriptor(f.f, C.uint32_t(index)))
}

// Create instantiates pluginID. The returned plugin keeps h reachable from
// C until Destroy.
func (f *factory) Create(h abi.Host, pluginID string) (abi.Plugin, error) {
	if f.f.create_plugin == nil {
		panic("clap_plugin_factory::create_plugin is null")
	}
	handle := cgo.NewHandle(h)
	info := h.Info()
	cname, cvendor := C.CString(info.Name), C.CString(info.Vendor)
	curl, cversion := C.CString(info.URL), C.CString(info.Version)
	chost := C.cv_host_new(C.uintptr_t(handle), cname, cvendor, curl, cversion)
	C.free(unsafe.Pointer(cname))
	C.free(unsafe.Pointer(cvendor))
	C.free(unsafe.Pointer(curl))
	C.free(unsafe.Pointer(cversion))
	if chost == nil {
		handle.Delete()
		return nil, errors.New("clap: could not allocate the host structure")
	}

	cid := C.CString(pluginID)
	defer C.free(unsafe.Pointer(cid))
	p := C.cv_factory_create(f.f, chost, cid)
	if p == nil {
		C.cv_host_free(chost)
		handle.Delete()
		return nil, nil
	}
	w, err := newPlugin(p, chost, handle)
	if err != nil {
		C.cv_plugin_destroy(p)
		C.cv_host_free(chost)
		handle.Delete()
		return nil, err
	}
	return w, nil
}

// descriptorFromC copies a descriptor into Go memory. The feature list is
// read up to its terminating null pointer.
func descriptorFromC(d *C.clap_plugin_descriptor_t) *abi.Descriptor {
	if d == nil {
		return nil
	}
	out := &abi.Descriptor{
		Version:     versionFromC(d.clap_version),
		ID:          C.GoString(d.id),
		Name:        C.GoString(d.name),
		Vendor:      C.GoString(d.vendor),
		URL:         C.GoString(d.url),
		ManualURL:   C.GoString(d.manual_url),
		SupportURL:  C.GoString(d.support_url),
		PluginVer:   C.GoString(d.version),
		Description: C.GoString(d.description),
		Features:    []string{},
	}
	if d.features != nil {
		features := unsafe.Slice(d.features, maxFeatures)
		for _, f := range features {
			if f == nil {
				break
			}
			out.Features = append(out.Features, C.GoString(f))
		}
	}
	return out
}

const maxFeatures = 1024
