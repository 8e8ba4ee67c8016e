package streaming

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"ptcagent/internal/event"
	"ptcagent/internal/hitl"
	"ptcagent/internal/logging"
	"ptcagent/internal/sandbox"
	"ptcagent/internal/tasks"
	"ptcagent/internal/ui"
)

// backgroundToolTitles are the panel titles for results of the background
// task control tools.
var backgroundToolTitles = map[string]string{
	"task":        "Subagent result",
	"wait":        "Subagent results",
	"task_output": "Task output",
}

// run is one attempt at a turn.
type run struct {
	e       *Executor
	turn    Turn
	attempt int

	console  *ui.Console
	state    *State
	tools    *ToolCallChunkBuffer
	empty    *sandbox.EmptyResultTracker
	registry *tasks.Registry
	watcher  Watcher

	todos        []event.Todo
	inputTokens  int
	outputTokens int
}

func (e *Executor) newRun(turn Turn, attempt int) *run {
	return &run{
		e:        e,
		turn:     turn,
		attempt:  attempt,
		console:  e.console,
		state:    NewState(e.console),
		tools:    NewToolCallChunkBuffer(),
		empty:    sandbox.NewEmptyResultTracker(e.threshold, e.sensitive),
		registry: e.registry(),
	}
}

func (r *run) execute(ctx context.Context, messages []event.InputMessage) error {
	turnCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if r.e.newWatcher != nil {
		r.watcher = r.e.newWatcher(func() { cancel(ErrInterrupted) })
		r.watcher.Start()
		defer r.watcher.Stop()
	}

	r.state.SetSpinnerLabel(ui.LabelThinking)
	r.state.StartSpinner()

	err := r.loop(turnCtx, event.MessagesInput{Messages: messages})
	if err == nil {
		r.finish()
		return nil
	}

	r.state.StopSpinner()
	r.state.FlushText(true)

	switch {
	case errors.Is(err, errRetryTurn):
		return err
	case errors.Is(err, errStopTurn):
		return nil
	case ctx.Err() != nil:
		return err
	case errors.Is(context.Cause(turnCtx), ErrInterrupted):
		logging.Info("cli_execute_task_interrupted", "thread_id", r.turn.ThreadID)
		r.console.Println("")
		r.console.Warn("Interrupted (Esc)")
		return nil
	}
	return r.handleError(turnCtx, err)
}

func (r *run) handleError(ctx context.Context, err error) error {
	switch Classify(err) {
	case ClassProvider:
		logging.Warn("cli_execute_task_api_error", "error", err)
		r.console.Println("")
		r.console.Println(r.console.FormatErrorWithGuidance(APIErrorMessage(err)))
		r.console.Println("")
		return nil
	case ClassEnvironment:
		var envErr *EnvironmentError
		if errors.As(err, &envErr) {
			return err
		}
		return r.recoverOrFail(ctx, "⟳ Sandbox disconnected", err.Error(), err)
	}
	logging.Error("cli_execute_task_failed", "thread_id", r.turn.ThreadID, "error", err)
	return err
}

// recoverOrFail handles a lost sandbox. On the first attempt it reconnects
// and asks for the turn to be retried; later it gives up.
func (r *run) recoverOrFail(ctx context.Context, notice, reason string, cause error) error {
	r.state.FlushText(true)
	r.state.StopSpinner()

	if r.attempt > 0 || r.e.recoverer == nil {
		logging.Error("sandbox_lost", "attempt", r.attempt, "reason", reason)
		return &EnvironmentError{Reason: reason, Err: cause}
	}

	r.console.Println("")
	r.console.Warn(notice)
	if !r.e.recoverer.Recover(ctx) {
		return errStopTurn
	}
	r.console.Println("")
	return errRetryTurn
}

// loop streams until the run settles with no pending approvals.
func (r *run) loop(ctx context.Context, input event.Input) error {
	rc := event.RunConfig{ThreadID: r.turn.ThreadID, AssistantID: r.turn.AssistantID}

	for {
		if err := context.Cause(ctx); err != nil {
			return err
		}
		pending, err := r.consume(ctx, input, rc)
		if err != nil {
			return err
		}
		r.state.FlushText(true)
		if pending.Len() == 0 {
			break
		}

		r.state.StopSpinner()
		coord := hitl.Coordinator{Prompter: r.e.prompter, Out: r.console}
		if r.watcher != nil {
			coord.Watcher = r.watcher
		}
		payload, outcome, err := coord.Resolve(ctx, pending, r.turn.AutoApprove)
		if err != nil {
			return err
		}
		if outcome.AnyRejected {
			r.console.Println("")
			r.console.Warn("Plan rejected. Agent will revise based on your feedback.")
			r.state.SetSpinnerLabel(ui.LabelRevisingPlan)
		} else {
			r.state.SetSpinnerLabel(ui.LabelExecutingPlan)
		}
		input = event.ResumeInput{Resume: payload}
		r.state.StartSpinner()
	}

	if r.registry != nil && r.registry.TaskCount() > 0 && r.e.monitor != nil {
		r.state.StopSpinner()
		r.console.Println("")
		if err := r.e.monitor.Render(ctx, r.registry); err != nil {
			return err
		}
	}
	return nil
}

// consume reads one run stream to the end and returns the approvals it
// asked for.
func (r *run) consume(ctx context.Context, input event.Input, rc event.RunConfig) (*hitl.Pending, error) {
	stream, err := r.e.agent.Stream(ctx, input, rc)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	pending := &hitl.Pending{}
	for stream.Next() {
		ev := stream.Event()
		switch p := ev.Payload.(type) {
		case event.Updates:
			r.collectInterrupts(pending, p.Interrupts)
			if !ev.IsRoot() {
				r.showSubagents()
				continue
			}
			r.handleTodos(p)
		case event.MessageTuple:
			if !ev.IsRoot() {
				r.showSubagents()
				continue
			}
			if err := r.handleMessage(ctx, p.Message); err != nil {
				return nil, err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return pending, nil
}

func (r *run) collectInterrupts(pending *hitl.Pending, interrupts []event.RawInterrupt) {
	for _, in := range interrupts {
		req, err := hitl.Validate(in.ID, in.Value)
		if err != nil {
			logging.Warn("invalid_hitl_request", "interrupt_id", in.ID, "error", err)
			continue
		}
		pending.Add(in.ID, req)
	}
}

func (r *run) showSubagents() {
	if r.registry == nil {
		return
	}
	n := r.registry.PendingCount()
	if n == 0 {
		return
	}
	noun := "subagents"
	if n == 1 {
		noun = "subagent"
	}
	r.state.SetSpinnerLabel(fmt.Sprintf("%d %s running...", n, noun))
}

func (r *run) handleTodos(u event.Updates) {
	todos, ok := u.Todos()
	if !ok || (r.todos != nil && slices.Equal(todos, r.todos)) {
		return
	}
	if todos == nil {
		todos = []event.Todo{}
	}
	r.todos = todos

	r.state.FlushText(true)
	r.state.StopSpinner()
	r.console.Println("")
	r.console.Print(r.console.RenderTodoList(todos))
	r.console.Println("")
	r.state.StartSpinner()
}

func (r *run) handleMessage(ctx context.Context, msg event.Message) error {
	switch m := msg.(type) {
	case *event.HumanMessage:
		r.handleHuman(m)
	case *event.ToolMessage:
		return r.handleTool(ctx, m)
	case *event.AIMessage:
		r.handleAI(m)
	default:
		logging.Warn("skipped_unknown_message", "type", fmt.Sprintf("%T", msg))
	}
	return nil
}

func (r *run) handleHuman(m *event.HumanMessage) {
	if strings.TrimSpace(m.Content) == "" {
		return
	}
	r.state.FlushText(true)
	r.state.StopSpinner()
	if !r.state.HasResponded() {
		r.console.Print(responsePrefix)
		r.state.MarkResponded()
	}
	r.console.Markdown(m.Content)
	r.console.Println("")
}

func (r *run) handleTool(ctx context.Context, m *event.ToolMessage) error {
	if r.state.SpinnerActive() {
		r.state.SetSpinnerLabel(ui.LabelThinking)
	}
	content := m.Content

	switch {
	case (m.Name == "shell" || m.Name == "Bash") && m.Failed():
		r.state.FlushText(true)
		if content != "" {
			r.printToolError(content)
		}
	case isErrorContent(content):
		if sandbox.IsSandboxError(content) && r.e.sandbox != nil {
			return r.recoverOrFail(ctx, "⟳ Sandbox disconnected", content, nil)
		}
		r.state.FlushText(true)
		r.printToolError(content)
	case content != "" && backgroundToolTitles[m.Name] != "":
		r.showBackgroundResult(m)
	}

	if r.empty.Record(m.Name, content) && r.e.sandbox != nil && !sandbox.CheckHealth(ctx, r.e.sandbox) {
		reason := fmt.Sprintf("%d consecutive empty results from %s", r.empty.Count(), m.Name)
		return r.recoverOrFail(ctx, "⟳ Sandbox disconnected (detected from empty results)", reason, nil)
	}
	return nil
}

func isErrorContent(content string) bool {
	s := strings.ToLower(strings.TrimLeft(content, " \t\r\n"))
	return strings.HasPrefix(s, "error")
}

func (r *run) printToolError(content string) {
	r.state.StopSpinner()
	r.console.Println("")
	r.console.Fail(ui.TruncateError(content))
	r.console.Println("")
}

func (r *run) showBackgroundResult(m *event.ToolMessage) {
	r.state.FlushText(true)
	r.state.StopSpinner()

	title := backgroundToolTitles[m.Name]
	if m.ToolCallID != "" && r.registry != nil {
		if info, ok := r.registry.GetByCallID(m.ToolCallID); ok && info.DisplayID != "" {
			title = fmt.Sprintf("%s (%s)", title, info.DisplayID)
		}
	}

	r.console.Println("")
	r.console.Panel(ui.GetToolIcon(m.Name)+" "+title, r.console.RenderMarkdown(m.Content), ui.ColorTool)
	r.console.Println("")
	r.state.SetSpinnerLabel(ui.LabelThinking)
	r.state.StartSpinner()
}

func (r *run) handleAI(m *event.AIMessage) {
	if m.Usage != nil {
		r.inputTokens = max(r.inputTokens, m.Usage.InputTokens)
		r.outputTokens = max(r.outputTokens, m.Usage.OutputTokens)
	}

	for _, block := range m.Blocks {
		switch b := block.(type) {
		case event.TextBlock:
			if b.Text != "" {
				r.state.AppendText(b.Text)
			}
		case event.ToolCallChunkBlock, event.ToolCallBlock:
			if call, ok := r.tools.Add(b); ok {
				r.showToolCall(*call)
			}
		}
	}

	if m.Last {
		for _, call := range r.tools.Flush() {
			r.showToolCall(call)
		}
		r.state.FlushText(true)
	}
}

func (r *run) showToolCall(call ToolCall) {
	r.state.FlushText(true)
	if call.ID != "" {
		if r.tools.WasDisplayed(call.ID) {
			return
		}
		r.tools.MarkDisplayed(call.ID)
	}

	r.state.StopSpinner()
	r.console.ToolCall(call.Name, call.Args, r.state.HasResponded())

	r.state.SetSpinnerLabel(fmt.Sprintf("Executing %s...", call.Name))
	r.state.StartSpinner()
}

// finish closes a turn that settled normally.
func (r *run) finish() {
	r.state.StopSpinner()
	if r.state.HasResponded() {
		r.console.Println("")
		if r.e.usage != nil && (r.inputTokens > 0 || r.outputTokens > 0) {
			r.e.usage.Add(r.inputTokens, r.outputTokens)
		}
	}
	logging.Info("cli_execute_task_done", "thread_id", r.turn.ThreadID,
		"input_tokens", r.inputTokens, "output_tokens", r.outputTokens)
	r.e.refreshFiles()
}
