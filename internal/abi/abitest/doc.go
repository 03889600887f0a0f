// Package abitest provides an in-memory plugin module implementation of the
// abi interfaces. Fixture plugins can be configured with faults (crashes,
// hangs, contract violations) so the host shim, the harness and the worker
// runner can be tested without native binaries.
package abitest
