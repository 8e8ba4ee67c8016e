package streaming

import (
	"strings"

	"ptcagent/internal/ui"
)

// responsePrefix marks the start of the agent's first response in a turn.
const responsePrefix = "● "

// State is the render state of one turn: buffered assistant text, the
// spinner, and whether the agent has produced any visible output yet.
type State struct {
	console *ui.Console
	spinner *ui.Spinner

	text         strings.Builder
	hasResponded bool
}

// NewState creates render state drawing to c.
func NewState(c *ui.Console) *State {
	return &State{console: c, spinner: ui.NewSpinner(c)}
}

// HasResponded reports whether the agent produced visible output.
func (s *State) HasResponded() bool { return s.hasResponded }

// MarkResponded records that visible output was produced.
func (s *State) MarkResponded() { s.hasResponded = true }

// AppendText buffers assistant text until the next flush.
func (s *State) AppendText(text string) {
	s.text.WriteString(text)
}

// FlushText renders buffered text as markdown. Whitespace-only text is
// kept unless final is set, in which case it is dropped.
func (s *State) FlushText(final bool) {
	text := s.text.String()
	if strings.TrimSpace(text) == "" {
		if final {
			s.text.Reset()
		}
		return
	}
	s.text.Reset()

	s.StopSpinner()
	if !s.hasResponded {
		s.console.Print(responsePrefix)
		s.hasResponded = true
	}
	s.console.Markdown(strings.TrimSpace(text))
}

// SpinnerActive reports whether the spinner is running.
func (s *State) SpinnerActive() bool { return s.spinner.Active() }

// StartSpinner starts the spinner.
func (s *State) StartSpinner() { s.spinner.Start() }

// StopSpinner stops the spinner if it is running.
func (s *State) StopSpinner() {
	if s.spinner.Active() {
		s.spinner.Stop()
	}
}

// SetSpinnerLabel changes the spinner label.
func (s *State) SetSpinnerLabel(label string) { s.spinner.SetLabel(label) }

// SpinnerLabel returns the spinner label.
func (s *State) SpinnerLabel() string { return s.spinner.Label() }
