package ui

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"ptcagent/internal/hitl"
)

var planOptions = []string{"Accept", "Reject with feedback"}

const (
	planReviewTitle = "📋 Plan Review"
	menuHint        = "  (↑/↓ to navigate, Enter to select)"
)

// planMenuModel is the two-option accept/reject menu.
type planMenuModel struct {
	styles    Styles
	cursor    int
	chosen    bool
	cancelled bool
}

func (m planMenuModel) Init() tea.Cmd { return nil }

func (m planMenuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j", "tab":
		if m.cursor < len(planOptions)-1 {
			m.cursor++
		}
	case "enter":
		m.chosen = true
		return m, tea.Quit
	case "ctrl+c", "esc":
		m.cancelled = true
		return m, tea.Quit
	}
	return m, nil
}

func (m planMenuModel) View() string {
	if m.chosen || m.cancelled {
		return ""
	}
	var b strings.Builder
	for i, opt := range planOptions {
		if i == m.cursor {
			b.WriteString(m.styles.Accent.Render("  → ") + m.styles.Bold.Render(opt))
		} else {
			b.WriteString("    " + opt)
		}
		b.WriteString("\n")
	}
	b.WriteString(m.styles.Dim.Render(menuHint))
	b.WriteString("\n")
	return b.String()
}

// feedbackModel collects free-text rejection feedback.
type feedbackModel struct {
	input     textinput.Model
	done      bool
	cancelled bool
}

func newFeedbackModel() feedbackModel {
	ti := textinput.New()
	ti.Prompt = "  Feedback: "
	ti.Focus()
	return feedbackModel{input: ti}
}

func (m feedbackModel) Init() tea.Cmd { return textinput.Blink }

func (m feedbackModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			m.done = true
			return m, tea.Quit
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancelled = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m feedbackModel) View() string {
	if m.done || m.cancelled {
		return ""
	}
	return m.input.View() + "\n"
}

// PlanPrompter asks the user to accept or reject a submitted plan. It
// implements hitl.Prompter.
type PlanPrompter struct {
	console *Console
	in      io.Reader
	out     io.Writer

	// run executes a bubbletea model to completion.
	run func(ctx context.Context, m tea.Model) (tea.Model, error)
}

// NewPlanPrompter creates a prompter reading keys from in and drawing to out.
func NewPlanPrompter(c *Console, in io.Reader, out io.Writer) *PlanPrompter {
	p := &PlanPrompter{console: c, in: in, out: out}
	p.run = p.runProgram
	return p
}

func (p *PlanPrompter) runProgram(ctx context.Context, m tea.Model) (tea.Model, error) {
	prog := tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithInput(p.in),
		tea.WithOutput(p.out),
	)
	final, err := prog.Run()
	if err != nil {
		if ctx.Err() != nil {
			return final, ctx.Err()
		}
		if errors.Is(err, tea.ErrInterrupted) {
			return final, hitl.ErrCancelled
		}
		return final, err
	}
	return final, nil
}

// Review shows the plan and returns the user's decision.
func (p *PlanPrompter) Review(ctx context.Context, req hitl.ActionRequest) (hitl.Review, error) {
	p.console.Println("")
	p.console.Panel(planReviewTitle, p.console.RenderMarkdown(req.Description), ColorSecondary)
	p.console.Println("")

	final, err := p.run(ctx, planMenuModel{styles: p.console.styles})
	if err != nil {
		return hitl.Review{}, err
	}
	menu, _ := final.(planMenuModel)
	if menu.cancelled {
		return hitl.Review{}, hitl.ErrCancelled
	}
	if menu.cursor == 0 {
		return hitl.Review{Approved: true}, nil
	}

	final, err = p.run(ctx, newFeedbackModel())
	if err != nil {
		return hitl.Review{}, err
	}
	fb, _ := final.(feedbackModel)
	if fb.cancelled {
		return hitl.Review{}, hitl.ErrCancelled
	}
	return hitl.Review{Feedback: strings.TrimSpace(fb.input.Value())}, nil
}
