package ui

import (
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/x/ansi"
)

const eraseLine = ansi.EraseEntireLine

// Spinner labels used while a turn streams.
const (
	LabelThinking      = "Agent is thinking..."
	LabelRevisingPlan  = "Revising plan..."
	LabelExecutingPlan = "Executing plan..."
)

// Spinner animates a status label on the console's current line. On a
// non-terminal console it only tracks state.
type Spinner struct {
	console *Console
	frames  []string
	fps     time.Duration

	mu     sync.Mutex
	label  string
	active bool
	stop   chan struct{}
	done   chan struct{}
}

// NewSpinner creates a spinner drawing to c.
func NewSpinner(c *Console) *Spinner {
	s := spinner.Dot
	return &Spinner{
		console: c,
		frames:  s.Frames,
		fps:     s.FPS,
		label:   LabelThinking,
	}
}

// SetLabel changes the text shown next to the spinner.
func (s *Spinner) SetLabel(label string) {
	s.mu.Lock()
	s.label = label
	s.mu.Unlock()
}

// Label returns the current label.
func (s *Spinner) Label() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.label
}

// Active reports whether the spinner is running.
func (s *Spinner) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Start begins animating. Calling Start on a running spinner is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return
	}
	s.active = true
	if !s.console.IsTerminal() {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stop, s.done)
}

// Stop halts the animation and erases the spinner line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	s.console.clearTransient()
}

func (s *Spinner) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.fps)
	defer ticker.Stop()

	frame := 0
	for {
		label := s.Label()
		s.console.writeTransient(s.console.styles.Thinking.Render(s.frames[frame%len(s.frames)]) + " " + label)
		frame++
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}
