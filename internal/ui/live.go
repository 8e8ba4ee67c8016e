package ui

import (
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"

	"ptcagent/internal/tasks"
)

// LiveRegion is a block of lines redrawn in place. Without a terminal only
// the final content is printed, on Stop.
type LiveRegion struct {
	console *Console

	mu     sync.Mutex
	lines  int
	last   string
	active bool
}

// NewLiveRegion creates a live region on c.
func NewLiveRegion(c *Console) *LiveRegion {
	return &LiveRegion{console: c}
}

// Start draws text and begins tracking it.
func (l *LiveRegion) Start(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active = true
	l.last = text
	if l.console.IsTerminal() {
		l.console.Print(text + "\n")
		l.lines = strings.Count(text, "\n") + 1
	}
}

// Update replaces the drawn text.
func (l *LiveRegion) Update(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active || text == l.last {
		return
	}
	l.last = text
	if !l.console.IsTerminal() {
		return
	}
	l.console.Print("\r" + ansi.CursorUp(l.lines) + ansi.EraseScreenBelow + text + "\n")
	l.lines = strings.Count(text, "\n") + 1
}

// Stop ends tracking, leaving the last content on screen.
func (l *LiveRegion) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active {
		return
	}
	l.active = false
	if !l.console.IsTerminal() && l.last != "" {
		l.console.Print(l.last + "\n")
	}
	l.lines = 0
}

// TaskStatusView renders background task summaries. It implements
// tasks.View.
type TaskStatusView struct {
	console *Console
	live    *LiveRegion
}

// NewTaskStatusView creates a view on c.
func NewTaskStatusView(c *Console) *TaskStatusView {
	return &TaskStatusView{console: c, live: NewLiveRegion(c)}
}

// ShowStatic prints s once.
func (v *TaskStatusView) ShowStatic(s tasks.Summary) {
	v.console.Println(v.Format(s))
}

// StartLive begins a live display of s.
func (v *TaskStatusView) StartLive(s tasks.Summary) { v.live.Start(v.Format(s)) }

// UpdateLive redraws the live display.
func (v *TaskStatusView) UpdateLive(s tasks.Summary) { v.live.Update(v.Format(s)) }

// StopLive ends the live display.
func (v *TaskStatusView) StopLive() { v.live.Stop() }

// Format renders the summary as a status line plus hint.
func (v *TaskStatusView) Format(s tasks.Summary) string {
	st := v.console.styles
	var parts []string
	if len(s.Running) > 0 {
		parts = append(parts, st.Dim.Render("Running: ")+st.Accent.Render(strings.Join(s.Running, ", ")))
	}
	if len(s.Completed) > 0 {
		parts = append(parts, st.Dim.Render("Completed: ")+st.Success.Render(strings.Join(s.Completed, ", ")))
	}
	line := strings.Join(parts, st.Dim.Render("  |  "))
	return line + "\n" + st.Dim.Render("Use task_output() to check progress or results")
}
