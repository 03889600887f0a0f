// Package osthread identifies operating system threads.
//
// Goroutines that care about their identity must call runtime.LockOSThread
// first; otherwise the returned id can change between calls.
package osthread
