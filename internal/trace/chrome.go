package trace

import (
	"bufio"
	"fmt"
	"io"
	"sort"
)

// Document is a complete trace of one test execution.
type Document struct {
	Label   string            `msgpack:"label"`
	PID     int               `msgpack:"pid"`
	Threads map[uint64]string `msgpack:"threads"`
	Events  []Event           `msgpack:"events"`
}

// WriteChrome writes doc in Chrome trace-event JSON. Calls and returns become
// async begin ("b") and end ("e") events keyed by correlation id, so spans
// that overlap across threads pair up correctly.
func WriteChrome(w io.Writer, doc Document) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("{\"displayTimeUnit\":\"ms\",\"traceEvents\":[\n"); err != nil {
		return err
	}

	var records []map[string]any
	records = append(records, map[string]any{
		"name": "process_name",
		"ph":   "M",
		"pid":  doc.PID,
		"tid":  int64(0),
		"args": map[string]any{"name": doc.Label},
	})
	tids := make([]uint64, 0, len(doc.Threads))
	for tid := range doc.Threads {
		tids = append(tids, tid)
	}
	sort.Slice(tids, func(i, j int) bool { return tids[i] < tids[j] })
	for _, tid := range tids {
		records = append(records, map[string]any{
			"name": "thread_name",
			"ph":   "M",
			"pid":  doc.PID,
			"tid":  tid,
			"args": map[string]any{"name": doc.Threads[tid]},
		})
	}
	for _, ev := range doc.Events {
		records = append(records, chromeEvent(doc.PID, ev))
	}

	for i, rec := range records {
		data, err := marshalCanonical(rec)
		if err != nil {
			return fmt.Errorf("encode trace event %d: %w", i, err)
		}
		if i > 0 {
			if _, err := bw.WriteString(",\n"); err != nil {
				return err
			}
		}
		if _, err := bw.Write(data); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("\n]}\n"); err != nil {
		return err
	}
	return bw.Flush()
}

func chromeEvent(pid int, ev Event) map[string]any {
	ph := "b"
	if ev.Phase == PhaseReturn {
		ph = "e"
	}
	args := map[string]any{"seq": ev.Seq}
	for _, a := range ev.Args {
		args[a.Key] = a.Value
	}
	return map[string]any{
		"name": ev.Name,
		"cat":  string(ev.Direction),
		"ph":   ph,
		"ts":   ev.Timestamp,
		"pid":  pid,
		"tid":  ev.Thread,
		"id":   fmt.Sprintf("0x%x", ev.CorrelationID),
		"args": args,
	}
}

// Validate checks the structural guarantees of a trace: strictly increasing
// sequence numbers, non-decreasing timestamps, and every call closed by
// exactly one later return with the same correlation id. Open calls are
// allowed only when allowOpen is set (a trace cut short by a crash).
func Validate(events []Event, allowOpen bool) error {
	open := make(map[uint64]Event)
	closed := make(map[uint64]bool)
	for i, ev := range events {
		if i > 0 {
			prev := events[i-1]
			if ev.Seq <= prev.Seq {
				return fmt.Errorf("event %d: sequence %d does not follow %d", i, ev.Seq, prev.Seq)
			}
			if ev.Timestamp < prev.Timestamp {
				return fmt.Errorf("event %d: timestamp %d is before %d", i, ev.Timestamp, prev.Timestamp)
			}
		}
		switch ev.Phase {
		case PhaseCall:
			if _, dup := open[ev.CorrelationID]; dup || closed[ev.CorrelationID] {
				return fmt.Errorf("event %d: correlation id %d reused", i, ev.CorrelationID)
			}
			open[ev.CorrelationID] = ev
		case PhaseReturn:
			call, ok := open[ev.CorrelationID]
			if !ok {
				return fmt.Errorf("event %d: return %q without a matching call", i, ev.Name)
			}
			if call.Name != ev.Name {
				return fmt.Errorf("event %d: return %q closes call %q", i, ev.Name, call.Name)
			}
			delete(open, ev.CorrelationID)
			closed[ev.CorrelationID] = true
		default:
			return fmt.Errorf("event %d: unknown phase %q", i, ev.Phase)
		}
	}
	if len(open) > 0 && !allowOpen {
		return fmt.Errorf("%d calls never returned", len(open))
	}
	return nil
}

// Pairs counts completed call/return pairs.
func Pairs(events []Event) int {
	n := 0
	for _, ev := range events {
		if ev.Phase == PhaseReturn {
			n++
		}
	}
	return n
}
