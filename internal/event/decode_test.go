package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestDecodeUpdatesInterruptsAndTodos(t *testing.T) {
	u, err := DecodeUpdates([]byte(`{
		"model": {"todos": [{"content": "write tests", "status": "in_progress", "activeForm": "Writing tests"}]},
		"tools": {"messages": []},
		"__interrupt__": [{"id": "int-1", "value": {"action_requests": [{"name": "submit_plan", "args": {}, "description": "plan"}]}}]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "model", u.First)
	assert.Len(t, u.Nodes, 2)
	require.Len(t, u.Interrupts, 1)
	assert.Equal(t, "int-1", u.Interrupts[0].ID)
	assert.Contains(t, string(u.Interrupts[0].Value), "submit_plan")

	todos, ok := u.Todos()
	require.True(t, ok)
	assert.Equal(t, []Todo{{Content: "write tests", Status: "in_progress", ActiveForm: "Writing tests"}}, todos)
}

func TestDecodeUpdatesWithoutTodos(t *testing.T) {
	u, err := DecodeUpdates([]byte(`{"tools": {"messages": []}}`))
	require.NoError(t, err)
	_, ok := u.Todos()
	assert.False(t, ok)

	u, err = DecodeUpdates([]byte(`{"__interrupt__": []}`))
	require.NoError(t, err)
	assert.Empty(t, u.Interrupts)
	_, ok = u.Todos()
	assert.False(t, ok)
}

func TestDecodeUpdatesRejectsNonObject(t *testing.T) {
	_, err := DecodeUpdates([]byte(`[1,2]`))
	assert.Error(t, err)

	_, err = DecodeUpdates([]byte(`{"__interrupt__": "nope"}`))
	assert.Error(t, err)
}

func TestDecodeToolMessage(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"type": "tool", "name": "Bash", "status": "error", "content": "exit 1", "tool_call_id": "c1"}`))
	require.NoError(t, err)

	tm, ok := msg.(*ToolMessage)
	require.True(t, ok)
	assert.Equal(t, RoleTool, tm.Role())
	assert.Equal(t, "Bash", tm.Name)
	assert.True(t, tm.Failed())
	assert.Equal(t, "exit 1", tm.Content)
	assert.Equal(t, "c1", tm.ToolCallID)
}

func TestDecodeToolMessageDefaultsToSuccess(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"type": "tool", "name": "ls", "content": [{"type": "text", "text": "a"}, {"type": "text", "text": "b"}]}`))
	require.NoError(t, err)
	tm := msg.(*ToolMessage)
	assert.False(t, tm.Failed())
	assert.Equal(t, "a\nb", tm.Content)
}

func TestDecodeAIChunk(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{
		"type": "AIMessageChunk",
		"content": [{"type": "text", "text": "Reading"}, {"type": "tool_use", "id": "t1"}],
		"tool_call_chunks": [{"index": 0, "id": "t1", "name": "read_file", "args": ""}],
		"tool_calls": [{"id": "t1", "name": "read_file", "args": {}}],
		"usage_metadata": {"input_tokens": 10, "output_tokens": 3},
		"chunk_position": "last"
	}`))
	require.NoError(t, err)

	ai, ok := msg.(*AIMessage)
	require.True(t, ok)
	assert.True(t, ai.Last)
	require.NotNil(t, ai.Usage)
	assert.Equal(t, 10, ai.Usage.InputTokens)
	require.Len(t, ai.Blocks, 2)
	assert.Equal(t, TextBlock{Text: "Reading"}, ai.Blocks[0])

	chunk, ok := ai.Blocks[1].(ToolCallChunkBlock)
	require.True(t, ok)
	require.NotNil(t, chunk.Index)
	assert.Equal(t, 0, *chunk.Index)
	assert.Equal(t, "read_file", chunk.Name)
}

func TestDecodeAICompleteToolCalls(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"type": "ai", "content": "", "tool_calls": [{"id": "t2", "name": "ls", "args": {"path": "/"}}]}`))
	require.NoError(t, err)

	ai := msg.(*AIMessage)
	require.Len(t, ai.Blocks, 1)
	assert.Equal(t, ToolCallBlock{ID: "t2", Name: "ls", Args: map[string]any{"path": "/"}}, ai.Blocks[0])
	assert.Nil(t, ai.Usage)
}

func TestDecodeChunkWithoutIndex(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"type": "AIMessageChunk", "content": "", "tool_call_chunks": [{"index": null, "args": "{}"}]}`))
	require.NoError(t, err)
	chunk := msg.(*AIMessage).Blocks[0].(ToolCallChunkBlock)
	assert.Nil(t, chunk.Index)
	assert.Equal(t, "{}", chunk.Args)
}

func TestDecodeUnknownTypes(t *testing.T) {
	_, err := DecodeMessage([]byte(`{"type": "system", "content": "x"}`))
	var ute *UnknownTypeError
	require.ErrorAs(t, err, &ute)
	assert.Equal(t, "message", ute.Kind)
	assert.Equal(t, "system", ute.Type)
}

func TestDecodeSkipsUnknownContentBlocks(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"type": "ai", "content": [
		{"type": "web_search_tool_result", "content": []},
		{"type": "text", "text": "See sources"},
		{"type": "hologram"}
	]}`))
	require.NoError(t, err)
	assert.Equal(t, []ContentBlock{TextBlock{Text: "See sources"}}, msg.(*AIMessage).Blocks)
}

func TestDecodeToolCallContentBlocks(t *testing.T) {
	// Top-level chunks win over the same chunk repeated in content.
	msg, err := DecodeMessage([]byte(`{"type": "AIMessageChunk",
		"content": [{"type": "text", "text": "hi"}, {"type": "tool_call_chunk", "id": "c1", "name": "ls", "args": "{}", "index": 0}],
		"tool_call_chunks": [{"id": "c1", "name": "ls", "args": "{}", "index": 0}]}`))
	require.NoError(t, err)
	zero := 0
	assert.Equal(t, []ContentBlock{
		TextBlock{Text: "hi"},
		ToolCallChunkBlock{Index: &zero, ID: "c1", Name: "ls", Args: "{}"},
	}, msg.(*AIMessage).Blocks)

	// Content blocks alone are enough.
	msg, err = DecodeMessage([]byte(`{"type": "AIMessageChunk",
		"content": [{"type": "tool_call_chunk", "id": "c2", "name": "glob", "args": "{\"pattern\"", "index": 1}]}`))
	require.NoError(t, err)
	one := 1
	assert.Equal(t, []ContentBlock{
		ToolCallChunkBlock{Index: &one, ID: "c2", Name: "glob", Args: `{"pattern"`},
	}, msg.(*AIMessage).Blocks)

	msg, err = DecodeMessage([]byte(`{"type": "ai",
		"content": [{"type": "tool_call", "id": "t9", "name": "read_file", "args": {"path": "a.py"}}],
		"tool_calls": []}`))
	require.NoError(t, err)
	assert.Equal(t, []ContentBlock{
		ToolCallBlock{ID: "t9", Name: "read_file", Args: map[string]any{"path": "a.py"}},
	}, msg.(*AIMessage).Blocks)

	msg, err = DecodeMessage([]byte(`{"type": "ai",
		"content": [{"type": "tool_call", "id": "t9", "name": "read_file", "args": {"path": "a.py"}}],
		"tool_calls": [{"id": "t9", "name": "read_file", "args": {"path": "a.py"}}]}`))
	require.NoError(t, err)
	assert.Len(t, msg.(*AIMessage).Blocks, 1)
}

func TestDecodeMessageTuple(t *testing.T) {
	tup, err := DecodeMessageTuple([]byte(`[{"type": "human", "content": "hi"}, {"langgraph_node": "model"}]`))
	require.NoError(t, err)
	assert.Equal(t, ModeMessages, tup.Mode())
	assert.Equal(t, &HumanMessage{Content: "hi"}, tup.Message)
	assert.Equal(t, "model", tup.Metadata["langgraph_node"])

	_, err = DecodeMessageTuple([]byte(`[{"type": "human", "content": "hi"}]`))
	assert.Error(t, err)
}

func TestFlattenContent(t *testing.T) {
	assert.Equal(t, "", FlattenContent(gjson.Parse(`null`)))
	assert.Equal(t, "plain", FlattenContent(gjson.Parse(`"plain"`)))
	assert.Equal(t, "a\n{\"type\":\"image\"}", FlattenContent(gjson.Parse(`[{"type":"text","text":"a"},{"type":"image"}]`)))
	assert.Equal(t, "42", FlattenContent(gjson.Parse(`42`)))
}

func TestEventIsRoot(t *testing.T) {
	assert.True(t, Event{}.IsRoot())
	assert.False(t, Event{Namespace: []string{"task:1"}}.IsRoot())
}
