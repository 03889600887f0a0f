// Package host implements the host side of the plugin ABI.
//
// An Instance wraps one plugin created from a factory and drives it through
// its lifecycle:
//
//	Unloaded -> Created -> Initialized -> Activating -> Activated
//	Activated <-> Processing
//	Activated -> Deactivated -> (Activating again | Destroyed)
//
// The Instance tracks the current status itself and refuses to forward a
// call that is not valid in that status, returning a *ViolationError
// instead. It also implements abi.Host: every callback the plugin makes is
// checked against the status and thread rules of the ABI, and the first
// violation is latched and reported through CallbackError.
//
// Threading: the goroutine that calls New becomes the main thread and must
// be locked to its OS thread (runtime.LockOSThread) for the lifetime of the
// Instance. OnAudioThread runs a closure on a second locked goroutine that
// acts as the audio thread.
package host
