//go:build !cgo || !(linux || darwin)

package clap

import (
	"runtime"

	"github.com/roach88/clapval/internal/abi"
)

// Open always fails: this build cannot load native code.
func (l *Loader) Open(path string) (abi.Library, error) {
	return nil, abi.NewSetupError(abi.SetupUnsupported, path,
		"loading CLAP modules needs cgo on linux or darwin (this build: %s/%s)", runtime.GOOS, runtime.GOARCH)
}
