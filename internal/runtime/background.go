package runtime

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"ptcagent/internal/event"
	"ptcagent/internal/logging"
)

// Run statuses reported by the agent server.
const (
	runSuccess     = "success"
	runError       = "error"
	runTimeout     = "timeout"
	runInterrupted = "interrupted"
)

func terminalStatus(status string) bool {
	switch status {
	case runSuccess, runError, runTimeout, runInterrupted:
		return true
	}
	return false
}

// discoverBackground registers background runs the agent spawned on the
// thread. Runs are tagged with metadata {background, tool_call_id,
// display_id, description} by the server.
func (c *Client) discoverBackground(ctx context.Context, threadID string) {
	body, err := c.getJSON(ctx, fmt.Sprintf("/threads/%s/runs?limit=100", threadID))
	if err != nil {
		logging.Warn("background run discovery failed", "thread_id", threadID, "error", err)
		return
	}

	gjson.ParseBytes(body).ForEach(func(_, run gjson.Result) bool {
		meta := run.Get("metadata")
		if !meta.Get("background").Bool() {
			return true
		}
		callID := meta.Get("tool_call_id").String()
		runID := run.Get("run_id").String()
		if callID == "" || runID == "" || c.registry.Has(callID) {
			return true
		}

		h := newRunHandle(c, threadID, runID)
		info := c.registry.Register(callID, meta.Get("display_id").String(), meta.Get("description").String(), h)
		logging.Info("background run registered", "run_id", runID, "tool_call_id", callID, "display_id", info.DisplayID)

		if terminalStatus(run.Get("status").String()) {
			h.resolve(c.bg, run.Get("status").String())
		} else {
			go h.poll(c.bg, c.pollInterval)
		}
		return true
	})
}

// RunHandle tracks one background run. It implements tasks.Handle.
type RunHandle struct {
	client   *Client
	threadID string
	runID    string

	mu     sync.Mutex
	done   bool
	result any
	err    error
}

func newRunHandle(c *Client, threadID, runID string) *RunHandle {
	return &RunHandle{client: c, threadID: threadID, runID: runID}
}

// Done reports whether the run has reached a terminal status.
func (h *RunHandle) Done() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

// Result returns the run output or the reason it failed.
func (h *RunHandle) Result() (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

func (h *RunHandle) poll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		body, err := h.client.getJSON(ctx, fmt.Sprintf("/threads/%s/runs/%s", h.threadID, h.runID))
		if err != nil {
			logging.Debug("background run poll failed", "run_id", h.runID, "error", err)
			continue
		}
		status := gjson.GetBytes(body, "status").String()
		if terminalStatus(status) {
			h.resolve(ctx, status)
			return
		}
	}
}

// resolve records the final outcome of a run in a terminal status.
func (h *RunHandle) resolve(ctx context.Context, status string) {
	var (
		result any
		err    error
	)
	if status == runSuccess {
		result, err = h.join(ctx)
	} else {
		err = fmt.Errorf("background run %s ended with status %s", h.runID, status)
	}

	h.mu.Lock()
	h.done = true
	h.result, h.err = result, err
	h.mu.Unlock()
}

// join fetches the run output and reduces it to the final message text.
func (h *RunHandle) join(ctx context.Context) (any, error) {
	body, err := h.client.getJSON(ctx, fmt.Sprintf("/threads/%s/runs/%s/join", h.threadID, h.runID))
	if err != nil {
		return nil, fmt.Errorf("join background run %s: %w", h.runID, err)
	}
	root := gjson.ParseBytes(body)
	if n := root.Get("messages.#").Int(); n > 0 {
		return event.FlattenContent(root.Get("messages." + strconv.FormatInt(n-1, 10) + ".content")), nil
	}
	return root.Raw, nil
}
