// Package abi models the plugin C ABI (CLAP 1.x) as plain Go types and
// interfaces.
//
// Everything above this package talks to plugins through these interfaces
// only. The native implementation lives in internal/clap; tests use the
// pure-Go fake in internal/abi/abitest.
//
// The package mirrors the C layout closely: ids are uint32,
// cookies are opaque pointer-sized values, and extension lookups return nil
// when the plugin does not implement the extension.
package abi
