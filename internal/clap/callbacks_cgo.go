//go:build cgo && (linux || darwin)

package clap

/*
#include "bridge.h"
*/
import "C"

import (
	"runtime/cgo"
	"unsafe"

	"github.com/roach88/clapval/internal/abi"
)

// Functions in this file are called from the C host and stream vtables.
// The uintptr_t argument is the cgo.Handle stored in host_data or ctx.

func hostOf(h C.uintptr_t) abi.Host {
	return cgo.Handle(h).Value().(abi.Host)
}

//export clapvalHostLog
func clapvalHostLog(h C.uintptr_t, severity C.int32_t, msg *C.char) {
	text := ""
	if msg != nil {
		text = C.GoString(msg)
	}
	hostOf(h).Log(abi.LogSeverity(severity), text)
}

//export clapvalHostIsMainThread
func clapvalHostIsMainThread(h C.uintptr_t) C.bool {
	return C.bool(hostOf(h).IsMainThread())
}

//export clapvalHostIsAudioThread
func clapvalHostIsAudioThread(h C.uintptr_t) C.bool {
	return C.bool(hostOf(h).IsAudioThread())
}

//export clapvalHostAudioPortsIsRescanFlagSupported
func clapvalHostAudioPortsIsRescanFlagSupported(h C.uintptr_t, flag C.uint32_t) C.bool {
	return C.bool(hostOf(h).AudioPortsIsRescanFlagSupported(uint32(flag)))
}

//export clapvalHostAudioPortsRescan
func clapvalHostAudioPortsRescan(h C.uintptr_t, flags C.uint32_t) {
	hostOf(h).AudioPortsRescan(uint32(flags))
}

//export clapvalHostNotePortsSupportedDialects
func clapvalHostNotePortsSupportedDialects(h C.uintptr_t) C.uint32_t {
	return C.uint32_t(hostOf(h).NotePortsSupportedDialects())
}

//export clapvalHostNotePortsRescan
func clapvalHostNotePortsRescan(h C.uintptr_t, flags C.uint32_t) {
	hostOf(h).NotePortsRescan(uint32(flags))
}

//export clapvalHostParamsRescan
func clapvalHostParamsRescan(h C.uintptr_t, flags C.uint32_t) {
	hostOf(h).ParamsRescan(uint32(flags))
}

//export clapvalHostParamsClear
func clapvalHostParamsClear(h C.uintptr_t, paramID C.clap_id, flags C.uint32_t) {
	hostOf(h).ParamsClear(uint32(paramID), uint32(flags))
}

//export clapvalHostParamsRequestFlush
func clapvalHostParamsRequestFlush(h C.uintptr_t) {
	hostOf(h).ParamsRequestFlush()
}

//export clapvalHostStateMarkDirty
func clapvalHostStateMarkDirty(h C.uintptr_t) {
	hostOf(h).StateMarkDirty()
}

//export clapvalHostLatencyChanged
func clapvalHostLatencyChanged(h C.uintptr_t) {
	hostOf(h).LatencyChanged()
}

//export clapvalHostTailChanged
func clapvalHostTailChanged(h C.uintptr_t) {
	hostOf(h).TailChanged()
}

//export clapvalHostSupports
func clapvalHostSupports(h C.uintptr_t, id *C.char) C.bool {
	if id == nil {
		return false
	}
	return C.bool(hostOf(h).SupportsExtension(C.GoString(id)))
}

//export clapvalHostRequestRestart
func clapvalHostRequestRestart(h C.uintptr_t) {
	hostOf(h).RequestRestart()
}

//export clapvalHostRequestProcess
func clapvalHostRequestProcess(h C.uintptr_t) {
	hostOf(h).RequestProcess()
}

//export clapvalHostRequestCallback
func clapvalHostRequestCallback(h C.uintptr_t) {
	hostOf(h).RequestCallback()
}

//export clapvalStreamWrite
func clapvalStreamWrite(h C.uintptr_t, buf unsafe.Pointer, size C.uint64_t) C.int64_t {
	out := cgo.Handle(h).Value().(abi.OutputStream)
	if size == 0 {
		return C.int64_t(out.Write(nil))
	}
	return C.int64_t(out.Write(unsafe.Slice((*byte)(buf), int(size))))
}

//export clapvalStreamRead
func clapvalStreamRead(h C.uintptr_t, buf unsafe.Pointer, size C.uint64_t) C.int64_t {
	in := cgo.Handle(h).Value().(abi.InputStream)
	if size == 0 {
		return C.int64_t(in.Read(nil))
	}
	return C.int64_t(in.Read(unsafe.Slice((*byte)(buf), int(size))))
}
