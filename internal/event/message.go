package event

// Role identifies who authored a message.
type Role string

const (
	RoleHuman Role = "human"
	RoleTool  Role = "tool"
	RoleAI    Role = "ai"
)

// Message is implemented by *HumanMessage, *ToolMessage and *AIMessage.
type Message interface {
	Role() Role
}

// HumanMessage is a user-role message, usually echoed back after a resume.
type HumanMessage struct {
	Content string
}

func (*HumanMessage) Role() Role { return RoleHuman }

// ToolMessage is the result of one tool call.
type ToolMessage struct {
	Name       string
	Status     string
	Content    string
	ToolCallID string
}

func (*ToolMessage) Role() Role { return RoleTool }

// Failed reports whether the tool reported a non-success status.
func (m *ToolMessage) Failed() bool {
	return m.Status != "" && m.Status != "success"
}

// AIMessage is an assistant message (or chunk of one).
type AIMessage struct {
	Blocks []ContentBlock
	Usage  *Usage
	// Last is set on the final chunk of a streamed message.
	Last bool
}

func (*AIMessage) Role() Role { return RoleAI }

// Usage is token usage reported on an assistant message.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ContentBlock is implemented by TextBlock, ToolCallChunkBlock and ToolCallBlock.
type ContentBlock interface {
	block()
}

// TextBlock is a fragment of assistant text.
type TextBlock struct {
	Text string
}

// ToolCallChunkBlock is a partial tool invocation. Continuation fragments
// usually carry only Index and Args.
type ToolCallChunkBlock struct {
	Index *int
	ID    string
	Name  string
	Args  string
}

// ToolCallBlock is an already complete tool invocation.
type ToolCallBlock struct {
	ID   string
	Name string
	Args map[string]any
}

func (TextBlock) block()          {}
func (ToolCallChunkBlock) block() {}
func (ToolCallBlock) block()      {}
