package streaming

import (
	"encoding/json"
	"strings"

	"ptcagent/internal/event"
)

// ToolCall is a fully assembled tool invocation.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// ToolCallChunkBuffer reassembles tool calls streamed as fragments.
//
// Fragments are keyed by their index. A fragment without an index continues
// the call most recently added. A call is complete once it has an id, a name
// and arguments that form a complete JSON object. For a given id the buffer
// reports completion at most once.
type ToolCallChunkBuffer struct {
	pending   map[int]*pendingCall
	order     []int
	lastKey   int
	hasLast   bool
	nextKey   int
	completed map[string]bool
	displayed map[string]bool
}

// NewToolCallChunkBuffer creates an empty buffer.
func NewToolCallChunkBuffer() *ToolCallChunkBuffer {
	return &ToolCallChunkBuffer{
		pending:   make(map[int]*pendingCall),
		completed: make(map[string]bool),
		displayed: make(map[string]bool),
		nextKey:   -1,
	}
}

// Add feeds one tool call block into the buffer and returns the call it
// completes, if any.
func (b *ToolCallChunkBuffer) Add(block event.ContentBlock) (*ToolCall, bool) {
	switch blk := block.(type) {
	case event.ToolCallBlock:
		args := blk.Args
		if args == nil {
			args = map[string]any{}
		}
		return b.complete(&ToolCall{ID: blk.ID, Name: blk.Name, Args: args})
	case event.ToolCallChunkBlock:
		return b.addChunk(blk)
	default:
		return nil, false
	}
}

func (b *ToolCallChunkBuffer) addChunk(chunk event.ToolCallChunkBlock) (*ToolCall, bool) {
	key := b.keyFor(chunk)
	pc, ok := b.pending[key]
	if ok && chunk.ID != "" && pc.id != "" && pc.id != chunk.ID {
		// Index reused by a new call; the old fragments can never complete.
		b.drop(key)
		ok = false
	}
	if !ok {
		pc = &pendingCall{}
		b.pending[key] = pc
		b.order = append(b.order, key)
	}
	b.lastKey, b.hasLast = key, true

	if pc.id == "" {
		pc.id = chunk.ID
	}
	if pc.name == "" {
		pc.name = chunk.Name
	}
	pc.args.WriteString(chunk.Args)

	if pc.id == "" || pc.name == "" {
		return nil, false
	}
	args, ok := parseArgs(pc.args.String())
	if !ok {
		return nil, false
	}
	b.drop(key)
	return b.complete(&ToolCall{ID: pc.id, Name: pc.name, Args: args})
}

func (b *ToolCallChunkBuffer) keyFor(chunk event.ToolCallChunkBlock) int {
	if chunk.Index != nil {
		return *chunk.Index
	}
	if b.hasLast {
		if _, ok := b.pending[b.lastKey]; ok {
			return b.lastKey
		}
	}
	key := b.nextKey
	b.nextKey--
	return key
}

func (b *ToolCallChunkBuffer) complete(call *ToolCall) (*ToolCall, bool) {
	if call.ID != "" {
		if b.completed[call.ID] {
			return nil, false
		}
		b.completed[call.ID] = true
	}
	return call, true
}

func (b *ToolCallChunkBuffer) drop(key int) {
	delete(b.pending, key)
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	if b.hasLast && b.lastKey == key {
		b.hasLast = false
	}
}

// Flush completes pending calls that have an id and a name but whose
// arguments never arrived, treating empty arguments as {}. Calls whose
// arguments are present but malformed are discarded.
func (b *ToolCallChunkBuffer) Flush() []ToolCall {
	var out []ToolCall
	for _, key := range append([]int(nil), b.order...) {
		pc := b.pending[key]
		b.drop(key)
		if pc.id == "" || pc.name == "" {
			continue
		}
		raw := strings.TrimSpace(pc.args.String())
		args := map[string]any{}
		if raw != "" {
			var ok bool
			if args, ok = parseArgs(raw); !ok {
				continue
			}
		}
		if call, ok := b.complete(&ToolCall{ID: pc.id, Name: pc.name, Args: args}); ok {
			out = append(out, *call)
		}
	}
	return out
}

// WasDisplayed reports whether the call with id was already rendered.
func (b *ToolCallChunkBuffer) WasDisplayed(id string) bool {
	return b.displayed[id]
}

// MarkDisplayed records that the call with id was rendered.
func (b *ToolCallChunkBuffer) MarkDisplayed(id string) {
	b.displayed[id] = true
}

func parseArgs(raw string) (map[string]any, bool) {
	if !json.Valid([]byte(raw)) {
		return nil, false
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, false
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, true
}
