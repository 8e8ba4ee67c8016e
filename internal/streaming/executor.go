// Package streaming executes one agent turn: it consumes the run stream,
// renders output as it arrives, resolves approval checkpoints and recovers
// from a lost sandbox.
package streaming

import (
	"context"
	"errors"
	"time"

	"ptcagent/internal/event"
	"ptcagent/internal/hitl"
	"ptcagent/internal/logging"
	"ptcagent/internal/mentions"
	"ptcagent/internal/sandbox"
	"ptcagent/internal/tasks"
	"ptcagent/internal/ui"
)

// maxTurnRetries is the number of times a turn is re-issued after the
// sandbox was recovered.
const maxTurnRetries = 1

const fileCacheTimeout = 30 * time.Second

const planModeReminder = "<system-reminder>You are in Plan Mode. Before executing any write operations " +
	"(Write, Edit, Bash, execute_code), you MUST first call submit_plan(description=\"...\") " +
	"with a detailed description of your plan for user review.</system-reminder>"

var (
	errRetryTurn = errors.New("retry turn")
	errStopTurn  = errors.New("stop turn")
)

// Agent starts runs on the agent runtime.
type Agent interface {
	Stream(ctx context.Context, input event.Input, rc event.RunConfig) (event.Stream, error)
}

// BackgroundSource is implemented by agents that track background runs.
type BackgroundSource interface {
	Registry() *tasks.Registry
}

// Notifier is implemented by agents that report background runs which
// finished since the previous turn.
type Notifier interface {
	TakeNotification() string
}

// UsageRecorder accumulates token usage across turns.
type UsageRecorder interface {
	Add(inputTokens, outputTokens int)
}

// FileCache receives the sandbox file listing used for completion.
type FileCache interface {
	SetFiles(files []string)
}

// Watcher is the cancel key watcher.
type Watcher interface {
	Start()
	Stop()
}

// Turn is one user input.
type Turn struct {
	Input       string
	ThreadID    string
	AssistantID string
	PlanMode    bool
	AutoApprove bool
}

// Executor runs turns against an agent.
type Executor struct {
	agent   Agent
	console *ui.Console

	sandbox     sandbox.Sandbox
	sandboxHome string
	recoverer   *sandbox.Recoverer

	prompter       hitl.Prompter
	newWatcher     func(onKey func()) Watcher
	monitor        *tasks.Monitor
	usage          UsageRecorder
	files          FileCache
	threshold      int
	sensitive      []string
	maxMentionSize int
}

// Option configures an Executor.
type Option func(*Executor)

// WithSandbox enables mentions, file cache refresh and sandbox recovery.
// home is stripped from listed paths.
func WithSandbox(sb sandbox.Sandbox, home string) Option {
	return func(e *Executor) {
		e.sandbox = sb
		e.sandboxHome = home
	}
}

// WithPrompter sets how plans are reviewed interactively.
func WithPrompter(p hitl.Prompter) Option {
	return func(e *Executor) { e.prompter = p }
}

// WithWatcher sets the factory for the per-turn cancel key watcher.
func WithWatcher(newWatcher func(onKey func()) Watcher) Option {
	return func(e *Executor) { e.newWatcher = newWatcher }
}

// WithMonitor shows background task status after each turn.
func WithMonitor(m *tasks.Monitor) Option {
	return func(e *Executor) { e.monitor = m }
}

// WithUsage reports token usage of each turn to u.
func WithUsage(u UsageRecorder) Option {
	return func(e *Executor) { e.usage = u }
}

// WithFileCache refreshes fc from the sandbox after each turn.
func WithFileCache(fc FileCache) Option {
	return func(e *Executor) { e.files = fc }
}

// WithEmptyResultThreshold sets how many consecutive empty results from
// the given tools trigger a sandbox health probe. A nil tools list keeps
// the default set.
func WithEmptyResultThreshold(n int, tools []string) Option {
	return func(e *Executor) {
		e.threshold = n
		e.sensitive = tools
	}
}

// WithMaxMentionFileSize caps the size of files attached via @mentions.
func WithMaxMentionFileSize(n int) Option {
	return func(e *Executor) { e.maxMentionSize = n }
}

// New creates an executor rendering to console.
func New(agent Agent, console *ui.Console, opts ...Option) *Executor {
	e := &Executor{
		agent:          agent,
		console:        console,
		threshold:      3,
		maxMentionSize: mentions.DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sandbox != nil {
		e.recoverer = sandbox.NewRecoverer(e.sandbox, console)
	}
	if e.prompter == nil {
		e.prompter = cancelPrompter{}
	}
	return e
}

// Execute runs one turn to completion, including every approval round.
//
// Provider failures, a recovery that did not succeed and Esc all end the
// turn cleanly with a nil error. Cancelling ctx and unclassified failures
// are returned. A sandbox loss is recovered from once per turn; a second
// loss is returned as an *EnvironmentError.
func (e *Executor) Execute(ctx context.Context, turn Turn) error {
	logging.Info("cli_execute_task_start", "thread_id", turn.ThreadID, "plan_mode", turn.PlanMode)

	messages := e.buildMessages(ctx, turn)
	for attempt := 0; attempt <= maxTurnRetries; attempt++ {
		r := e.newRun(turn, attempt)
		err := r.execute(ctx, messages)
		if !errors.Is(err, errRetryTurn) {
			return err
		}
		logging.Info("cli_execute_task_retry", "thread_id", turn.ThreadID, "attempt", attempt+1)
	}
	return &EnvironmentError{Reason: "sandbox lost again after recovery"}
}

func (e *Executor) buildMessages(ctx context.Context, turn Turn) []event.InputMessage {
	var msgs []event.InputMessage
	if turn.PlanMode {
		msgs = append(msgs, event.UserMessage(planModeReminder))
	}

	if n, ok := e.agent.(Notifier); ok {
		if note := n.TakeNotification(); note != "" {
			e.console.Panel("Background Tasks Completed", e.console.RenderMarkdown(note), ui.ColorSecondary)
			msgs = append(msgs, event.UserMessage("[SYSTEM NOTIFICATION]\n"+note))
		}
	}

	var files mentions.FileReader
	if e.sandbox != nil {
		files = e.sandbox
	}
	text := mentions.Expand(ctx, turn.Input, files, e.console, e.maxMentionSize)
	return append(msgs, event.UserMessage(text))
}

func (e *Executor) registry() *tasks.Registry {
	if src, ok := e.agent.(BackgroundSource); ok {
		return src.Registry()
	}
	return nil
}

// refreshFiles updates the file cache without blocking the prompt.
func (e *Executor) refreshFiles() {
	if e.sandbox == nil || e.files == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), fileCacheTimeout)
		defer cancel()

		files, err := e.sandbox.GlobFiles(ctx, "**/*", ".")
		if err != nil {
			logging.Debug("file_cache_refresh_failed", "error", err)
			return
		}
		e.files.SetFiles(sandbox.StripHome(files, e.sandboxHome))
	}()
}

// cancelPrompter is used when no interactive prompter is configured, so a
// plan is never approved silently.
type cancelPrompter struct{}

func (cancelPrompter) Review(context.Context, hitl.ActionRequest) (hitl.Review, error) {
	return hitl.Review{}, hitl.ErrCancelled
}
