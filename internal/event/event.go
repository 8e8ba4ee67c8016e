// Package event defines the multiplexed run stream the agent runtime produces
// and the inputs it accepts.
package event

import (
	"encoding/json"
)

// Mode is the stream channel an event arrived on.
type Mode string

const (
	ModeUpdates  Mode = "updates"
	ModeMessages Mode = "messages"
)

// Event is one item of a run stream.
type Event struct {
	// Namespace is empty for the top-level run and names the nested
	// sub-run otherwise.
	Namespace []string
	Payload   Payload
}

// IsRoot reports whether the event came from the top-level run.
func (e Event) IsRoot() bool {
	return len(e.Namespace) == 0
}

// Payload is implemented by Updates and MessageTuple only.
type Payload interface {
	Mode() Mode
	payload()
}

// Updates is a snapshot of graph node output keyed by node name.
type Updates struct {
	// Nodes holds node outputs other than interrupts.
	Nodes map[string]json.RawMessage
	// First is the name of the first node in the snapshot, if any.
	First      string
	Interrupts []RawInterrupt
}

func (Updates) Mode() Mode { return ModeUpdates }
func (Updates) payload()   {}

// RawInterrupt is an approval checkpoint before validation.
type RawInterrupt struct {
	ID    string          `json:"id"`
	Value json.RawMessage `json:"value"`
}

// Todo is one item of the agent's todo list.
type Todo struct {
	Content    string `json:"content"`
	Status     string `json:"status"`
	ActiveForm string `json:"activeForm,omitempty"`
}

// Todos returns the todo list carried by the first node of the snapshot.
// ok is false when that node carries no todos key.
func (u Updates) Todos() (todos []Todo, ok bool) {
	if u.First == "" {
		return nil, false
	}
	var node struct {
		Todos *[]Todo `json:"todos"`
	}
	if err := json.Unmarshal(u.Nodes[u.First], &node); err != nil || node.Todos == nil {
		return nil, false
	}
	return *node.Todos, true
}

// MessageTuple pairs a message with its run metadata.
type MessageTuple struct {
	Message  Message
	Metadata map[string]any
}

func (MessageTuple) Mode() Mode { return ModeMessages }
func (MessageTuple) payload()   {}

// Stream is an incremental run stream. Next blocks until an event is
// available or the stream ends; Err reports why it ended.
type Stream interface {
	Next() bool
	Event() Event
	Err() error
	Close() error
}
