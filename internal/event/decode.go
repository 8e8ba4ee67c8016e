package event

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"ptcagent/internal/logging"
)

// UnknownTypeError is returned for a message whose type discriminator is
// not recognised.
type UnknownTypeError struct {
	Kind string
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown %s type %q", e.Kind, e.Type)
}

// Content block types that carry nothing this engine renders.
var ignoredBlockTypes = map[string]bool{
	"tool_use":          true,
	"server_tool_use":   true,
	"input_json_delta":  true,
	"thinking":          true,
	"redacted_thinking": true,
	"reasoning":         true,
	"image":             true,
	"image_url":         true,
}

// DecodeUpdates decodes the data of an updates event.
func DecodeUpdates(data []byte) (Updates, error) {
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return Updates{}, fmt.Errorf("updates payload is not an object")
	}

	u := Updates{Nodes: make(map[string]json.RawMessage)}
	var err error
	root.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if name == "__interrupt__" {
			u.Interrupts, err = decodeInterrupts(value)
			return err == nil
		}
		if u.First == "" {
			u.First = name
		}
		u.Nodes[name] = json.RawMessage(value.Raw)
		return true
	})
	if err != nil {
		return Updates{}, err
	}
	return u, nil
}

func decodeInterrupts(value gjson.Result) ([]RawInterrupt, error) {
	if value.Type == gjson.Null {
		return nil, nil
	}
	if !value.IsArray() {
		return nil, fmt.Errorf("__interrupt__ is not a list")
	}
	var out []RawInterrupt
	for _, item := range value.Array() {
		id := item.Get("id").String()
		if id == "" {
			id = item.Get("interrupt_id").String()
		}
		out = append(out, RawInterrupt{ID: id, Value: json.RawMessage(item.Get("value").Raw)})
	}
	return out, nil
}

// DecodeMessageTuple decodes the data of a messages event: a two element
// array of message and metadata.
func DecodeMessageTuple(data []byte) (MessageTuple, error) {
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return MessageTuple{}, fmt.Errorf("messages payload is not a tuple")
	}
	parts := root.Array()
	if len(parts) != 2 {
		return MessageTuple{}, fmt.Errorf("messages payload has %d elements, want 2", len(parts))
	}

	msg, err := DecodeMessage([]byte(parts[0].Raw))
	if err != nil {
		return MessageTuple{}, err
	}

	var meta map[string]any
	if parts[1].IsObject() {
		if err := json.Unmarshal([]byte(parts[1].Raw), &meta); err != nil {
			return MessageTuple{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return MessageTuple{Message: msg, Metadata: meta}, nil
}

// DecodeMessage decodes one serialized message.
func DecodeMessage(data []byte) (Message, error) {
	m := gjson.ParseBytes(data)
	if !m.IsObject() {
		return nil, fmt.Errorf("message is not an object")
	}

	switch t := m.Get("type").String(); t {
	case "human", "HumanMessageChunk", "user":
		return &HumanMessage{Content: FlattenContent(m.Get("content"))}, nil
	case "tool", "ToolMessageChunk":
		status := m.Get("status").String()
		if status == "" {
			status = "success"
		}
		return &ToolMessage{
			Name:       m.Get("name").String(),
			Status:     status,
			Content:    FlattenContent(m.Get("content")),
			ToolCallID: m.Get("tool_call_id").String(),
		}, nil
	case "ai", "AIMessageChunk", "assistant":
		return decodeAI(m)
	default:
		return nil, &UnknownTypeError{Kind: "message", Type: t}
	}
}

func decodeAI(m gjson.Result) (*AIMessage, error) {
	msg := &AIMessage{Last: m.Get("chunk_position").String() == "last"}

	// Some providers repeat tool calls as content blocks. The top-level
	// fields win when both are present.
	var blockChunks []ContentBlock
	var blockCalls []ContentBlock

	content := m.Get("content")
	switch {
	case content.Type == gjson.String:
		if s := content.String(); s != "" {
			msg.Blocks = append(msg.Blocks, TextBlock{Text: s})
		}
	case content.IsArray():
		for _, item := range content.Array() {
			if item.Type == gjson.String {
				if s := item.String(); s != "" {
					msg.Blocks = append(msg.Blocks, TextBlock{Text: s})
				}
				continue
			}
			switch bt := item.Get("type").String(); {
			case bt == "text":
				if s := item.Get("text").String(); s != "" {
					msg.Blocks = append(msg.Blocks, TextBlock{Text: s})
				}
			case bt == "tool_call_chunk":
				blockChunks = append(blockChunks, decodeToolCallChunk(item))
			case bt == "tool_call":
				call, err := decodeToolCall(item)
				if err != nil {
					return nil, err
				}
				blockCalls = append(blockCalls, call)
			case ignoredBlockTypes[bt]:
			default:
				logging.Debug("skipped_unknown_content_block", "type", bt)
			}
		}
	}

	// Chunked messages carry both; the chunks are authoritative.
	switch chunks, calls := m.Get("tool_call_chunks"), m.Get("tool_calls"); {
	case chunks.IsArray() && len(chunks.Array()) > 0:
		for _, c := range chunks.Array() {
			msg.Blocks = append(msg.Blocks, decodeToolCallChunk(c))
		}
	case len(blockChunks) > 0:
		msg.Blocks = append(msg.Blocks, blockChunks...)
	case calls.IsArray() && len(calls.Array()) > 0:
		for _, c := range calls.Array() {
			call, err := decodeToolCall(c)
			if err != nil {
				return nil, err
			}
			msg.Blocks = append(msg.Blocks, call)
		}
	default:
		msg.Blocks = append(msg.Blocks, blockCalls...)
	}

	if usage := m.Get("usage_metadata"); usage.IsObject() {
		msg.Usage = &Usage{
			InputTokens:  int(usage.Get("input_tokens").Int()),
			OutputTokens: int(usage.Get("output_tokens").Int()),
		}
	}
	return msg, nil
}

func decodeToolCallChunk(c gjson.Result) ToolCallChunkBlock {
	block := ToolCallChunkBlock{
		ID:   c.Get("id").String(),
		Name: c.Get("name").String(),
		Args: c.Get("args").String(),
	}
	if idx := c.Get("index"); idx.Type == gjson.Number {
		i := int(idx.Int())
		block.Index = &i
	}
	return block
}

func decodeToolCall(c gjson.Result) (ToolCallBlock, error) {
	block := ToolCallBlock{
		ID:   c.Get("id").String(),
		Name: c.Get("name").String(),
	}
	if args := c.Get("args"); args.IsObject() {
		if err := json.Unmarshal([]byte(args.Raw), &block.Args); err != nil {
			return ToolCallBlock{}, fmt.Errorf("decode tool call args: %w", err)
		}
	}
	if block.Args == nil {
		block.Args = map[string]any{}
	}
	return block, nil
}

// FlattenContent turns message content (a string or a list of blocks) into
// display text. Text blocks are joined by newlines; other blocks are kept as JSON.
func FlattenContent(content gjson.Result) string {
	switch {
	case content.Type == gjson.Null || !content.Exists():
		return ""
	case content.Type == gjson.String:
		return content.String()
	case content.IsArray():
		var parts []string
		for _, item := range content.Array() {
			switch {
			case item.Type == gjson.String:
				parts = append(parts, item.String())
			case item.IsObject() && item.Get("type").String() == "text":
				parts = append(parts, item.Get("text").String())
			default:
				parts = append(parts, item.Raw)
			}
		}
		return strings.Join(parts, "\n")
	default:
		return content.Raw
	}
}
