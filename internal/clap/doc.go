// Package clap loads native CLAP modules and exposes them through the
// interfaces in internal/abi.
//
// Modules are opened with dlopen. Host callbacks live in a C function table
// whose host_data holds a runtime/cgo.Handle to the abi.Host the plugin was
// created with, so a plugin calling back from any thread reaches the host
// shim that enforces the lifecycle and threading rules.
//
// Audio and event data crosses the boundary by copy: process() sees C
// buffers filled from the Go slices in abi.ProcessData, and the outputs are
// copied back after the call. Buffers that share storage in Go share
// storage in C, so in-place processing is preserved.
//
// Builds without cgo, and platforms other than Linux and macOS, get a
// Loader whose Open always fails with abi.SetupUnsupported.
package clap
