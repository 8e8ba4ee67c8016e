package hitl

import (
	"context"
	"errors"
	"fmt"

	"ptcagent/internal/event"
	"ptcagent/internal/logging"
)

// ErrCancelled is returned by a Prompter when the user backs out of the prompt.
var ErrCancelled = errors.New("approval cancelled")

const (
	cancelledFeedback = "User cancelled"
	emptyFeedback     = "No feedback provided"
	noDescription     = "No description available"
)

// Review is the user's answer to one action request.
type Review struct {
	Approved bool
	Feedback string
}

// Prompter asks the user to review one action request.
type Prompter interface {
	Review(ctx context.Context, req ActionRequest) (Review, error)
}

// Presenter prints short status lines.
type Presenter interface {
	Dim(text string)
	Success(text string)
}

// Pauser is the cancel key watcher, which must release the terminal while
// the user answers a prompt.
type Pauser interface {
	Start()
	Stop()
}

// Outcome summarizes a resolved batch of interrupts.
type Outcome struct {
	AnyRejected bool
}

// Coordinator turns pending interrupts into a resume payload.
type Coordinator struct {
	Prompter Prompter
	Out      Presenter
	Watcher  Pauser
}

// RejectionMessage is the decision message that tells the agent to revise.
func RejectionMessage(feedback string) string {
	return fmt.Sprintf("<system-reminder>Your plan was rejected. User feedback: %s. "+
		"You MUST submit the revised plan for review using submit_plan before proceeding.</system-reminder>", feedback)
}

// Resolve produces a decision for every action request of every pending
// interrupt. With autoApprove set no prompt is shown. An error is returned
// only when ctx ends while prompting.
func (c *Coordinator) Resolve(ctx context.Context, pending *Pending, autoApprove bool) (event.ResumePayload, Outcome, error) {
	payload := make(event.ResumePayload, pending.Len())
	var outcome Outcome

	if !autoApprove && c.Watcher != nil {
		c.Watcher.Stop()
		defer c.Watcher.Start()
	}

	err := pending.Each(func(id string, req Request) error {
		decisions := make([]event.Decision, 0, len(req.ActionRequests))

		if autoApprove {
			for range req.ActionRequests {
				decisions = append(decisions, event.Decision{Type: event.DecisionApprove})
			}
			c.Out.Dim("⚡ Auto-approved plan")
			payload[id] = event.Decisions{Decisions: decisions}
			return nil
		}

		for _, action := range req.ActionRequests {
			d, err := c.review(ctx, action)
			if err != nil {
				return err
			}
			if d.Type == event.DecisionReject {
				outcome.AnyRejected = true
			}
			decisions = append(decisions, d)
		}
		payload[id] = event.Decisions{Decisions: decisions}
		return nil
	})
	if err != nil {
		return nil, Outcome{}, err
	}
	return payload, outcome, nil
}

func (c *Coordinator) review(ctx context.Context, action ActionRequest) (event.Decision, error) {
	if action.Description == "" {
		action.Description = noDescription
	}

	r, err := c.Prompter.Review(ctx, action)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return event.Decision{}, ctxErr
		}
		if !errors.Is(err, ErrCancelled) {
			logging.Warn("plan_review_prompt_failed", "error", err)
		}
		// Never approve silently.
		return event.Decision{Type: event.DecisionReject, Message: RejectionMessage(cancelledFeedback)}, nil
	}

	if r.Approved {
		c.Out.Success("✓ Plan approved. Starting execution...")
		return event.Decision{Type: event.DecisionApprove}, nil
	}

	feedback := r.Feedback
	if feedback == "" {
		feedback = emptyFeedback
	}
	return event.Decision{Type: event.DecisionReject, Message: RejectionMessage(feedback)}, nil
}
