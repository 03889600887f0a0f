package clap

import (
	"github.com/roach88/clapval/internal/abi"
)

// Loader opens .clap modules. The zero value is ready to use.
type Loader struct{}

var _ abi.Loader = (*Loader)(nil)

// NewLoader returns a loader for native modules.
func NewLoader() *Loader {
	return &Loader{}
}
