// Package trace records the calls that cross the host/plugin boundary.
//
// A Recorder is an append-only log of call and return events. Every call
// gets a correlation id that its matching return carries, timestamps never
// decrease and sequence numbers strictly increase. WrapLibrary, WrapFactory,
// WrapPlugin and WrapHost decorate the abi interfaces so that every call
// through them is recorded.
//
// Recorded events are written as Chrome trace-event JSON (WriteChrome),
// which chrome://tracing, Perfetto and Speedscope can open. Each call/return
// pair becomes an async span keyed by its correlation id; the thread the
// call was made on becomes the track.
package trace
