package event

// Input is implemented by MessagesInput and ResumeInput.
type Input interface {
	input()
}

// InputMessage is a message sent to start a run.
type InputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserMessage returns a user-role input message.
func UserMessage(content string) InputMessage {
	return InputMessage{Role: "user", Content: content}
}

// MessagesInput starts a run from new messages.
type MessagesInput struct {
	Messages []InputMessage
}

// ResumeInput resumes a suspended run with approval decisions.
type ResumeInput struct {
	Resume ResumePayload
}

func (MessagesInput) input() {}
func (ResumeInput) input()   {}

// DecisionType is the kind of a human decision.
type DecisionType string

const (
	DecisionApprove DecisionType = "approve"
	DecisionReject  DecisionType = "reject"
)

// Decision answers one action request.
type Decision struct {
	Type    DecisionType `json:"type"`
	Message string       `json:"message,omitempty"`
}

// Decisions answers every action request of one interrupt, in order.
type Decisions struct {
	Decisions []Decision `json:"decisions"`
}

// ResumePayload maps interrupt ids to their decisions.
type ResumePayload map[string]Decisions

// RunConfig identifies the conversation a run belongs to.
type RunConfig struct {
	ThreadID    string
	AssistantID string
}
