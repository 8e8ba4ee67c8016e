package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ptcagent/internal/config"
	"ptcagent/internal/event"
)

func writeSSE(w http.ResponseWriter, events ...[2]string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, ev := range events {
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev[0], ev[1])
	}
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(config.ServerConfig{
		URL:             srv.URL + "/",
		APIKey:          "secret",
		AssistantID:     "ptc-agent",
		RunPollInterval: 10 * time.Millisecond,
	})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func collect(t *testing.T, s event.Stream) []event.Event {
	t.Helper()
	var out []event.Event
	for s.Next() {
		out = append(out, s.Event())
	}
	return out
}

func TestStreamSendsRunRequest(t *testing.T) {
	var got map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /threads/th-1/runs/stream", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		writeSSE(w, [2]string{"end", "null"})
	})
	mux.HandleFunc("GET /threads/th-1/runs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[]")
	})
	c := newTestClient(t, mux)

	s, err := c.Stream(context.Background(),
		event.MessagesInput{Messages: []event.InputMessage{event.UserMessage("hi")}},
		event.RunConfig{ThreadID: "th-1"})
	require.NoError(t, err)
	defer s.Close()
	assert.Empty(t, collect(t, s))
	require.NoError(t, s.Err())

	assert.Equal(t, "ptc-agent", got["assistant_id"])
	assert.Equal(t, []any{"messages-tuple", "updates"}, got["stream_mode"])
	assert.Equal(t, true, got["stream_subgraphs"])
	assert.Equal(t, "create", got["if_not_exists"])
	assert.Equal(t, "cancel", got["on_disconnect"])
	assert.Equal(t, map[string]any{"configurable": map[string]any{"thread_id": "th-1"}}, got["config"])
	assert.Equal(t, map[string]any{"messages": []any{map[string]any{"role": "user", "content": "hi"}}}, got["input"])
	assert.NotContains(t, got, "command")
}

func TestStreamResumeUsesCommand(t *testing.T) {
	var got map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /threads/th-1/runs/stream", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		writeSSE(w)
	})
	mux.HandleFunc("GET /threads/th-1/runs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[]")
	})
	c := newTestClient(t, mux)

	resume := event.ResumePayload{"int-1": {Decisions: []event.Decision{{Type: event.DecisionApprove}}}}
	s, err := c.Stream(context.Background(), event.ResumeInput{Resume: resume}, event.RunConfig{ThreadID: "th-1"})
	require.NoError(t, err)
	collect(t, s)

	assert.NotContains(t, got, "input")
	assert.Equal(t, map[string]any{"resume": map[string]any{
		"int-1": map[string]any{"decisions": []any{map[string]any{"type": "approve"}}},
	}}, got["command"])
}

func TestStreamDecodesEvents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /threads/th-1/runs/stream", func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w,
			[2]string{"metadata", `{"run_id":"r-1"}`},
			[2]string{"messages", `[{"type":"AIMessageChunk","content":"Hello"},{"langgraph_node":"model"}]`},
			[2]string{"messages", `[{"type":"mystery","content":"?"},{}]`},
			[2]string{"updates|tools:call_9", `{"__interrupt__":[{"id":"i-1","value":{"action_requests":[]}}]}`},
			[2]string{"updates", `{"model":{"todos":[{"content":"a","status":"pending"}]}}`},
			[2]string{"end", ""},
			[2]string{"messages", `[{"type":"ai","content":"after end"},{}]`},
		)
	})
	mux.HandleFunc("GET /threads/th-1/runs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[]")
	})
	c := newTestClient(t, mux)

	s, err := c.Stream(context.Background(), event.MessagesInput{}, event.RunConfig{ThreadID: "th-1"})
	require.NoError(t, err)
	events := collect(t, s)
	require.NoError(t, s.Err())
	require.Len(t, events, 3)

	mt, ok := events[0].Payload.(event.MessageTuple)
	require.True(t, ok)
	assert.True(t, events[0].IsRoot())
	ai, ok := mt.Message.(*event.AIMessage)
	require.True(t, ok)
	assert.Equal(t, []event.ContentBlock{event.TextBlock{Text: "Hello"}}, ai.Blocks)
	assert.Equal(t, "model", mt.Metadata["langgraph_node"])

	u, ok := events[1].Payload.(event.Updates)
	require.True(t, ok)
	assert.Equal(t, []string{"tools:call_9"}, events[1].Namespace)
	require.Len(t, u.Interrupts, 1)
	assert.Equal(t, "i-1", u.Interrupts[0].ID)

	u, ok = events[2].Payload.(event.Updates)
	require.True(t, ok)
	todos, ok := u.Todos()
	require.True(t, ok)
	assert.Equal(t, []event.Todo{{Content: "a", Status: "pending"}}, todos)
}

func TestStreamCloseCancelsUnfinishedRun(t *testing.T) {
	cancelled := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /threads/th-1/runs/stream", func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w,
			[2]string{"metadata", `{"run_id":"r-7"}`},
			[2]string{"messages", `[{"type":"AIMessageChunk","content":"work"},{}]`},
		)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	mux.HandleFunc("POST /threads/th-1/runs/{run}/cancel", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, "true", r.URL.Query().Get("wait"))
		assert.Equal(t, "interrupt", r.URL.Query().Get("action"))
		cancelled <- r.PathValue("run")
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, mux)

	s, err := c.Stream(context.Background(), event.MessagesInput{}, event.RunConfig{ThreadID: "th-1"})
	require.NoError(t, err)
	require.True(t, s.Next())
	require.NoError(t, s.Close())

	select {
	case id := <-cancelled:
		assert.Equal(t, "r-7", id)
	default:
		t.Fatal("run was not cancelled before Close returned")
	}
}

func TestStreamCloseAfterEndKeepsRun(t *testing.T) {
	var cancels atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /threads/th-1/runs/stream", func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, [2]string{"metadata", `{"run_id":"r-8"}`}, [2]string{"end", ""})
	})
	mux.HandleFunc("GET /threads/th-1/runs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[]")
	})
	mux.HandleFunc("POST /threads/th-1/runs/{run}/cancel", func(w http.ResponseWriter, r *http.Request) {
		cancels.Add(1)
	})
	c := newTestClient(t, mux)

	s, err := c.Stream(context.Background(), event.MessagesInput{}, event.RunConfig{ThreadID: "th-1"})
	require.NoError(t, err)
	collect(t, s)
	require.NoError(t, s.Close())
	assert.Zero(t, cancels.Load())
}

func TestStreamErrorEvent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /threads/th-1/runs/stream", func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, [2]string{"error", `{"error":"RateLimitError","message":"slow down"}`})
	})
	c := newTestClient(t, mux)

	s, err := c.Stream(context.Background(), event.MessagesInput{}, event.RunConfig{ThreadID: "th-1"})
	require.NoError(t, err)
	assert.Empty(t, collect(t, s))

	var apiErr *APIError
	require.True(t, errors.As(s.Err(), &apiErr))
	assert.Equal(t, "RateLimitError", apiErr.Kind)
	assert.True(t, apiErr.IsProvider())
	assert.Equal(t, "RateLimitError: slow down", apiErr.Error())
}

func TestStreamHTTPError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /threads/th-1/runs/stream", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"detail":"bad key"}`)
	})
	c := newTestClient(t, mux)

	_, err := c.Stream(context.Background(), event.MessagesInput{}, event.RunConfig{ThreadID: "th-1"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "bad key", apiErr.Message)
	assert.True(t, apiErr.IsProvider())
}

func TestStreamRequiresThread(t *testing.T) {
	c := New(config.ServerConfig{URL: "http://127.0.0.1:1"})
	defer c.Close()
	_, err := c.Stream(context.Background(), event.MessagesInput{}, event.RunConfig{})
	assert.Error(t, err)
}

func TestAPIErrorClassification(t *testing.T) {
	assert.True(t, (&APIError{StatusCode: 503}).IsProvider())
	assert.True(t, (&APIError{Kind: "APIConnectionError"}).IsProvider())
	assert.False(t, (&APIError{Kind: "ValueError", Message: "bad"}).IsProvider())
	assert.False(t, (&APIError{StatusCode: 404}).IsProvider())

	e := parseErrorBody(502, []byte("Bad Gateway"))
	assert.Equal(t, "Bad Gateway", e.Message)
	assert.Equal(t, "agent server error 502: Bad Gateway", e.Error())
}

func TestSplitEventName(t *testing.T) {
	mode, ns := splitEventName("updates")
	assert.Equal(t, "updates", mode)
	assert.Nil(t, ns)

	mode, ns = splitEventName("messages|task:abc|model")
	assert.Equal(t, "messages", mode)
	assert.Equal(t, []string{"task:abc", "model"}, ns)
}

func TestBackgroundRunsAreDiscoveredAndJoined(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /threads/th-1/runs/stream", func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, [2]string{"end", ""})
	})
	mux.HandleFunc("GET /threads/th-1/runs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"run_id":"r-main","status":"success","metadata":{}},
			{"run_id":"r-bg","status":"running","metadata":{"background":true,"tool_call_id":"call_1","display_id":"Task-1","description":"analyze"}},
			{"run_id":"r-failed","status":"error","metadata":{"background":true,"tool_call_id":"call_2"}}
		]`)
	})
	mux.HandleFunc("GET /threads/th-1/runs/r-bg", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 2 {
			fmt.Fprint(w, `{"status":"running"}`)
			return
		}
		fmt.Fprint(w, `{"status":"success"}`)
	})
	mux.HandleFunc("GET /threads/th-1/runs/r-bg/join", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"messages":[{"type":"human","content":"go"},{"type":"ai","content":[{"type":"text","text":"42 rows"}]}]}`)
	})
	c := newTestClient(t, mux)

	s, err := c.Stream(context.Background(), event.MessagesInput{}, event.RunConfig{ThreadID: "th-1"})
	require.NoError(t, err)
	collect(t, s)

	reg := c.Registry()
	assert.Equal(t, 2, reg.TaskCount())
	info, ok := reg.GetByCallID("call_1")
	require.True(t, ok)
	assert.Equal(t, "Task-1", info.DisplayID)
	assert.Equal(t, "analyze", info.Description)

	require.Eventually(t, func() bool { return reg.PendingCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	reg.Sync()

	info, _ = reg.GetByCallID("call_1")
	assert.Equal(t, "42 rows", info.Result)
	info, _ = reg.GetByCallID("call_2")
	assert.Contains(t, info.Error, "ended with status error")

	note := c.TakeNotification()
	assert.Contains(t, note, "**Task-1** (analyze): completed")
	assert.True(t, strings.HasSuffix(note, "Use task_output() to retrieve their results."))
	assert.Empty(t, c.TakeNotification())
}
