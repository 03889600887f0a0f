//go:build !linux && cgo

package osthread

/*
#include <pthread.h>
#include <stdint.h>

static uint64_t clapval_thread_id(void) {
	return (uint64_t)(uintptr_t)pthread_self();
}
*/
import "C"

// ID returns an identifier for the calling thread.
func ID() uint64 {
	return uint64(C.clapval_thread_id())
}
