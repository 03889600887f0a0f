package trace

import "fmt"

// Direction tells which side initiated a call.
type Direction string

const (
	HostToPlugin Direction = "host->plugin"
	PluginToHost Direction = "plugin->host"
)

// Phase distinguishes the two halves of a call.
type Phase string

const (
	PhaseCall   Phase = "call"
	PhaseReturn Phase = "return"
)

// Arg is one key-value pair of an argument or result summary.
type Arg struct {
	Key   string `json:"key" msgpack:"k"`
	Value string `json:"value" msgpack:"v"`
}

// A builds an Arg, formatting v with fmt.Sprint.
func A(key string, v any) Arg {
	return Arg{Key: key, Value: fmt.Sprint(v)}
}

// Event is one recorded half of an ABI call.
type Event struct {
	Seq           uint64    `json:"seq" msgpack:"seq"`
	Timestamp     int64     `json:"ts" msgpack:"ts"`
	Phase         Phase     `json:"phase" msgpack:"phase"`
	Direction     Direction `json:"direction" msgpack:"dir"`
	Name          string    `json:"name" msgpack:"name"`
	Args          []Arg     `json:"args,omitempty" msgpack:"args"`
	CorrelationID uint64    `json:"id" msgpack:"id"`
	Thread        uint64    `json:"thread" msgpack:"thread"`
}
