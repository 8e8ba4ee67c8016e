package sandbox

import (
	"context"
	"strings"
	"time"

	"ptcagent/internal/logging"
)

// reconnectTimeout bounds one recovery attempt.
const reconnectTimeout = 60 * time.Second

// sandboxErrorPatterns are lowercase fragments of error text that mean the
// sandbox went away underneath a tool call.
var sandboxErrorPatterns = []string{
	"sandbox not found",
	"sandbox is not running",
	"sandbox has been stopped",
	"sandbox is stopped",
	"sandbox was stopped",
	"sandbox has been archived",
	"sandbox is not connected",
	"no active sandbox",
	"failed to connect to sandbox",
	"sandbox keepalive failed",
	"sandbox root unavailable",
	"ssh: handshake failed",
	"ssh: disconnect",
	"use of closed network connection",
	"connection reset by peer",
	"broken pipe",
}

// IsSandboxError reports whether an error message indicates a lost sandbox.
func IsSandboxError(msg string) bool {
	lower := strings.ToLower(msg)
	for _, p := range sandboxErrorPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Reporter receives user-facing recovery progress.
type Reporter interface {
	Warn(text string)
	Success(text string)
	Fail(text string)
}

// Recoverer reconnects a sandbox after it was lost.
type Recoverer struct {
	Sandbox  Sandbox
	Reporter Reporter
}

// NewRecoverer creates a recoverer for sb.
func NewRecoverer(sb Sandbox, r Reporter) *Recoverer {
	return &Recoverer{Sandbox: sb, Reporter: r}
}

// Recover makes one reconnect attempt and reports whether the sandbox is
// usable again. It never retries; retrying the turn is the caller's call.
func (r *Recoverer) Recover(ctx context.Context) bool {
	if r == nil || r.Sandbox == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, reconnectTimeout)
	defer cancel()

	r.Reporter.Warn("⟳ Reconnecting to sandbox...")
	logging.Info("sandbox_recovery_start")

	if err := r.Sandbox.Reconnect(ctx); err != nil {
		logging.Error("sandbox_recovery_failed", "error", err)
		r.Reporter.Fail("✗ Sandbox recovery failed: " + err.Error())
		return false
	}
	if err := r.Sandbox.Health(ctx); err != nil {
		logging.Error("sandbox_recovery_unhealthy", "error", err)
		r.Reporter.Fail("✗ Sandbox recovery failed: " + err.Error())
		return false
	}

	logging.Info("sandbox_recovery_succeeded")
	r.Reporter.Success("✓ Sandbox reconnected")
	return true
}
