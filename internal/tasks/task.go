package tasks

import (
	"fmt"
	"time"
)

// Handle is the underlying run of a background task.
type Handle interface {
	// Done reports whether the run has finished.
	Done() bool
	// Result returns the run's outcome. Only meaningful once Done is true.
	Result() (any, error)
}

// Status represents the status of a background task.
type Status int

const (
	StatusRunning Status = iota
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Task is a detached subtask spawned by the agent.
type Task struct {
	// ID is the tool call id that spawned the task.
	ID          string
	DisplayID   string
	Description string
	Handle      Handle
	StartTime   time.Time

	Completed  bool
	ResultSeen bool
	Result     any
	Error      string
}

// Status derives the task status from its completion state.
func (t *Task) Status() Status {
	switch {
	case !t.Completed:
		return StatusRunning
	case t.Error != "":
		return StatusFailed
	default:
		return StatusCompleted
	}
}

// sync captures the handle's outcome the first time it is seen done.
// It reports whether the task transitioned to completed.
func (t *Task) sync() bool {
	if t.Completed || t.Handle == nil || !t.Handle.Done() {
		return false
	}
	t.Completed = true
	result, err := t.Handle.Result()
	if err != nil {
		t.Error = err.Error()
		t.Result = map[string]any{"success": false, "error": t.Error}
	} else {
		t.Result = result
	}
	return true
}

// Info contains read-only information about a task.
type Info struct {
	ID          string
	DisplayID   string
	Description string
	Status      Status
	Completed   bool
	ResultSeen  bool
	Result      any
	Error       string
	Duration    time.Duration
}

// info returns a snapshot of the task.
func (t *Task) info(now time.Time) Info {
	return Info{
		ID:          t.ID,
		DisplayID:   t.DisplayID,
		Description: t.Description,
		Status:      t.Status(),
		Completed:   t.Completed,
		ResultSeen:  t.ResultSeen,
		Result:      t.Result,
		Error:       t.Error,
		Duration:    now.Sub(t.StartTime),
	}
}

func defaultDisplayID(n int) string {
	return fmt.Sprintf("Task-%d", n)
}
