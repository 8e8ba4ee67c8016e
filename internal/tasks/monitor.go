package tasks

import (
	"context"
	"time"
)

// View renders background task status.
type View interface {
	// ShowStatic prints a one-off status line.
	ShowStatic(Summary)
	// StartLive opens a live region showing s.
	StartLive(s Summary)
	// UpdateLive redraws the live region.
	UpdateLive(s Summary)
	// StopLive leaves the last status on screen and releases the region.
	StopLive()
}

// Monitor displays live status of background tasks until they settle.
type Monitor struct {
	View         View
	PollInterval time.Duration
	// IdleTimeout bounds how long the display waits without any task
	// changing state.
	IdleTimeout time.Duration

	now func() time.Time
}

// NewMonitor creates a monitor with the given timings.
func NewMonitor(view View, poll, idle time.Duration) *Monitor {
	return &Monitor{
		View:         view,
		PollInterval: poll,
		IdleTimeout:  idle,
		now:          time.Now,
	}
}

// Render shows task status until nothing is running, the idle timeout
// passes with no change in the running count, or ctx is done.
func (m *Monitor) Render(ctx context.Context, reg *Registry) error {
	now := m.now
	if now == nil {
		now = time.Now
	}

	s := reg.Summary()
	if len(s.Running) == 0 {
		if !s.Empty() {
			m.View.ShowStatic(s)
		}
		return nil
	}

	prevRunning := len(s.Running)
	lastChange := now()

	m.View.StartLive(s)
	defer m.View.StopLive()

	ticker := time.NewTicker(m.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		s = reg.Summary()
		m.View.UpdateLive(s)

		running := len(s.Running)
		if running != prevRunning {
			lastChange = now()
			prevRunning = running
		}

		if running == 0 {
			// Leave the final status up briefly.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.PollInterval):
			}
			return nil
		}

		if now().Sub(lastChange) > m.IdleTimeout {
			return nil
		}
	}
}
