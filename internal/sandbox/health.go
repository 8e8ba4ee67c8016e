package sandbox

import (
	"context"
	"strings"
	"time"

	"ptcagent/internal/logging"
)

// DefaultSensitiveTools are the tools whose output comes straight from the
// sandbox, so an empty result may mean the sandbox is gone.
var DefaultSensitiveTools = []string{
	"execute_code", "Bash", "shell", "execute",
	"Read", "read_file", "Glob", "glob", "Grep", "grep", "ls",
}

// healthTimeout bounds a single health probe.
const healthTimeout = 10 * time.Second

// EmptyResultTracker counts consecutive empty results from sandbox-bound
// tools. Some sandbox failures show up as empty output rather than an error.
type EmptyResultTracker struct {
	threshold int
	sensitive map[string]bool
	count     int
}

// NewEmptyResultTracker creates a tracker that fires after threshold
// consecutive empty results. A nil tools list uses DefaultSensitiveTools.
func NewEmptyResultTracker(threshold int, tools []string) *EmptyResultTracker {
	if threshold < 1 {
		threshold = 1
	}
	if tools == nil {
		tools = DefaultSensitiveTools
	}
	sensitive := make(map[string]bool, len(tools))
	for _, t := range tools {
		sensitive[t] = true
	}
	return &EmptyResultTracker{threshold: threshold, sensitive: sensitive}
}

// Record notes one tool result and reports whether the run of consecutive
// empty results has reached the threshold.
func (t *EmptyResultTracker) Record(tool, content string) bool {
	if !t.sensitive[tool] || !isEmptyResult(content) {
		t.count = 0
		return false
	}
	t.count++
	return t.count >= t.threshold
}

// Count returns the current run length.
func (t *EmptyResultTracker) Count() int {
	return t.count
}

func isEmptyResult(content string) bool {
	switch strings.TrimSpace(content) {
	case "", "[]", "{}", "null":
		return true
	}
	return false
}

// CheckHealth probes the sandbox with a bounded timeout.
func CheckHealth(ctx context.Context, sb Sandbox) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	if err := sb.Health(ctx); err != nil {
		logging.Warn("sandbox_health_check_failed", "error", err)
		return false
	}
	return true
}
