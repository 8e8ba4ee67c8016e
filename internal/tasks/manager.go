package tasks

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Registry tracks background tasks spawned during a session. It is filled by
// the agent runtime adapter and read by the turn engine.
type Registry struct {
	tasks   map[string]*Task
	order   []string
	counter int

	mu sync.Mutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tasks: make(map[string]*Task),
	}
}

// Register adds a task keyed by the tool call id that spawned it. When
// displayID is empty a sequential "Task-N" id is assigned. Registering an
// existing id returns the existing task.
func (r *Registry) Register(id, displayID, description string, h Handle) Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tasks[id]; ok {
		return t.info(time.Now())
	}

	r.counter++
	if displayID == "" {
		displayID = defaultDisplayID(r.counter)
	}
	t := &Task{
		ID:          id,
		DisplayID:   displayID,
		Description: description,
		Handle:      h,
		StartTime:   time.Now(),
	}
	r.tasks[id] = t
	r.order = append(r.order, id)
	return t.info(t.StartTime)
}

// Has reports whether a task with the given call id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[id]
	return ok
}

// GetByCallID returns a task by the tool call id that spawned it.
func (r *Registry) GetByCallID(id string) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return Info{}, false
	}
	return t.info(time.Now()), true
}

// TaskCount returns the number of registered tasks.
func (r *Registry) TaskCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// PendingCount returns the number of tasks whose run has not finished.
func (r *Registry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, t := range r.tasks {
		if !t.Completed && (t.Handle == nil || !t.Handle.Done()) {
			n++
		}
	}
	return n
}

// Sync marks tasks whose run finished as completed and captures their
// result or error. It returns the number of tasks that completed.
func (r *Registry) Sync() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, id := range r.order {
		if r.tasks[id].sync() {
			n++
		}
	}
	return n
}

// List returns all tasks in registration order.
func (r *Registry) List() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	result := make([]Info, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.tasks[id].info(now))
	}
	return result
}

// Summary groups display ids into running and completed-but-unseen tasks.
type Summary struct {
	Running   []string
	Completed []string
}

// Empty reports whether there is nothing to show.
func (s Summary) Empty() bool {
	return len(s.Running) == 0 && len(s.Completed) == 0
}

// Summary syncs completion state and summarizes the registry.
func (r *Registry) Summary() Summary {
	r.Sync()

	r.mu.Lock()
	defer r.mu.Unlock()

	var s Summary
	for _, id := range r.order {
		t := r.tasks[id]
		switch {
		case !t.Completed:
			s.Running = append(s.Running, t.DisplayID)
		case !t.ResultSeen:
			s.Completed = append(s.Completed, t.DisplayID)
		}
	}
	return s
}

// TakeNotification builds a markdown notice for tasks that completed since
// the agent last looked, marks them seen, and returns "" when there are none.
func (r *Registry) TakeNotification() string {
	r.Sync()

	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	for _, id := range r.order {
		t := r.tasks[id]
		if !t.Completed || t.ResultSeen {
			continue
		}
		if b.Len() == 0 {
			b.WriteString("The following background tasks have completed:\n\n")
		}
		outcome := "completed"
		if t.Error != "" {
			outcome = "failed: " + t.Error
		}
		if t.Description != "" {
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", t.DisplayID, t.Description, outcome)
		} else {
			fmt.Fprintf(&b, "- **%s**: %s\n", t.DisplayID, outcome)
		}
		t.ResultSeen = true
	}
	if b.Len() == 0 {
		return ""
	}
	b.WriteString("\nUse task_output() to retrieve their results.")
	return b.String()
}

// Cleanup removes completed tasks older than maxAge.
func (r *Registry) Cleanup(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	kept := r.order[:0]
	removed := 0
	for _, id := range r.order {
		t := r.tasks[id]
		if t.Completed && t.ResultSeen && now.Sub(t.StartTime) > maxAge {
			delete(r.tasks, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return removed
}
