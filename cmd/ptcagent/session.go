package main

import (
	"context"
	"fmt"
	"sync"

	"ptcagent/internal/logging"
	"ptcagent/internal/sandbox"
)

// tokenTracker accumulates token usage reported by turns.
type tokenTracker struct {
	mu     sync.Mutex
	input  int
	output int
	turns  int
}

func (t *tokenTracker) Add(inputTokens, outputTokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.input += inputTokens
	t.output += outputTokens
	t.turns++
}

func (t *tokenTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.input, t.output, t.turns = 0, 0, 0
}

func (t *tokenTracker) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.turns == 0 {
		return "No token usage recorded yet"
	}
	return fmt.Sprintf("Tokens: %d input, %d output, %d total over %d turn(s)",
		t.input, t.output, t.input+t.output, t.turns)
}

// fileCache holds the sandbox file listing offered for @mention completion.
type fileCache struct {
	mu    sync.RWMutex
	files []string
}

func (c *fileCache) SetFiles(files []string) {
	c.mu.Lock()
	c.files = files
	c.mu.Unlock()
}

// Files returns the cached listing.
func (c *fileCache) Files() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.files
}

// refresh loads the listing synchronously.
func (c *fileCache) refresh(ctx context.Context, sb sandbox.Sandbox, home string) {
	files, err := sb.GlobFiles(ctx, "**/*", ".")
	if err != nil {
		logging.Warn("file_cache_initial_load_failed", "error", err)
		return
	}
	c.SetFiles(sandbox.StripHome(files, home))
	logging.Debug("file_cache_loaded", "files", len(files))
}
