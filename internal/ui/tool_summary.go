package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/muesli/reflow/truncate"

	"ptcagent/internal/event"
	"ptcagent/internal/highlight"
)

const (
	maxDisplayArg   = 60
	maxErrorLines   = 10
	maxErrorChars   = 500
	codePreviewRows = 6
)

// primaryArgKeys lists the argument that best describes each tool.
var primaryArgKeys = map[string][]string{
	"read_file":    {"file_path", "path"},
	"write_file":   {"file_path", "path"},
	"edit_file":    {"file_path", "path"},
	"Read":         {"file_path", "path"},
	"Write":        {"file_path", "path"},
	"Edit":         {"file_path", "path"},
	"ls":           {"path"},
	"glob":         {"pattern"},
	"Glob":         {"pattern"},
	"grep":         {"pattern"},
	"Grep":         {"pattern"},
	"shell":        {"command"},
	"Bash":         {"command"},
	"execute":      {"command"},
	"execute_code": {"description", "code"},
	"web_search":   {"query"},
	"http_request": {"url"},
	"task":         {"description", "prompt"},
	"wait":         {"task_id", "task_ids"},
	"task_output":  {"task_id"},
	"submit_plan":  {"description"},
}

// FormatToolDisplay renders a tool call as a compact name(arg) summary.
func FormatToolDisplay(name string, args map[string]any) string {
	switch name {
	case "ls":
		path, _ := args["path"].(string)
		if path == "" {
			path = "."
		}
		return fmt.Sprintf("%s(%s)", name, path)
	case "write_todos":
		todos, _ := args["todos"].([]any)
		return fmt.Sprintf("%s(%d items)", name, len(todos))
	case "grep", "Grep":
		pattern := argString(args["pattern"])
		if dir := argString(args["path"]); dir != "" {
			return fmt.Sprintf("%s(%q in %s)", name, pattern, dir)
		}
		return fmt.Sprintf("%s(%q)", name, pattern)
	case "edit_file", "Edit":
		path := firstArg(args, "file_path", "path")
		oldText, _ := args["old_string"].(string)
		newText, _ := args["new_string"].(string)
		if oldText == "" && newText == "" {
			return fmt.Sprintf("%s(%s)", name, path)
		}
		added, removed := EditStats(oldText, newText)
		return fmt.Sprintf("%s(%s) +%d -%d", name, path, added, removed)
	case "http_request":
		url := argString(args["url"])
		if method := argString(args["method"]); method != "" {
			return fmt.Sprintf("%s(%s %s)", name, strings.ToUpper(method), shorten(url))
		}
		return fmt.Sprintf("%s(%s)", name, shorten(url))
	}

	if keys, ok := primaryArgKeys[name]; ok {
		if v := firstArg(args, keys...); v != "" {
			return fmt.Sprintf("%s(%s)", name, shorten(firstLine(v)))
		}
	}
	if len(args) == 0 {
		return name
	}
	return fmt.Sprintf("%s(%s)", name, formatArgsPreview(args))
}

// formatArgsPreview renders up to five arguments, preferring the ones a
// user recognizes first.
func formatArgsPreview(args map[string]any) string {
	priority := []string{"file_path", "path", "command", "pattern", "content", "query", "url"}
	seen := make(map[string]bool, len(args))
	var parts []string

	add := func(key string) {
		if seen[key] || len(parts) >= 5 {
			return
		}
		v, ok := args[key]
		if !ok {
			return
		}
		seen[key] = true
		parts = append(parts, fmt.Sprintf("%s=%s", key, shorten(argString(v))))
	}

	for _, key := range priority {
		add(key)
	}
	rest := make([]string, 0, len(args))
	for key := range args {
		rest = append(rest, key)
	}
	sort.Strings(rest)
	for _, key := range rest {
		add(key)
	}

	if extra := len(args) - len(parts); extra > 0 {
		parts = append(parts, fmt.Sprintf("(+%d more)", extra))
	}
	return strings.Join(parts, ", ")
}

// TruncateError keeps the head of a tool error so one failure cannot flood
// the terminal.
func TruncateError(msg string) string {
	msg = strings.TrimSpace(msg)
	lines := strings.Split(msg, "\n")
	cut := false
	if len(lines) > maxErrorLines {
		lines = lines[:maxErrorLines]
		cut = true
	}
	out := strings.Join(lines, "\n")
	if len(out) > maxErrorChars {
		out = truncate.String(out, maxErrorChars)
		cut = true
	}
	if cut {
		out += "\n... (truncated)"
	}
	return out
}

// RenderTodoList renders a todo snapshot as a checklist.
func (c *Console) RenderTodoList(todos []event.Todo) string {
	st := c.styles
	var b strings.Builder
	b.WriteString(st.Primary.Bold(true).Render("📋 Todo List"))
	b.WriteString("\n")
	for _, t := range todos {
		switch t.Status {
		case "completed":
			b.WriteString("  " + st.Success.Render("[✓]") + " " + st.Dim.Strikethrough(true).Render(t.Content))
		case "in_progress":
			text := t.Content
			if t.ActiveForm != "" {
				text = t.ActiveForm
			}
			b.WriteString("  " + st.Accent.Render("[>]") + " " + st.Bold.Render(text))
		default:
			b.WriteString("  " + st.Muted.Render("[ ]") + " " + t.Content)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ToolCall prints the one-line summary of a tool call. Code sent to
// execute_code is previewed with syntax highlighting.
func (c *Console) ToolCall(name string, args map[string]any, leadingBlank bool) {
	var b strings.Builder
	if leadingBlank {
		b.WriteString("\n")
	}
	b.WriteString(c.styles.Tool.Render(fmt.Sprintf("  %s %s", GetToolIcon(name), FormatToolDisplay(name, args))))
	b.WriteString("\n")

	if name == "execute_code" && c.tty {
		if code, ok := args["code"].(string); ok && code != "" {
			h := highlight.New(c.codeStyle)
			b.WriteString(h.Preview(code, "python", codePreviewRows))
			b.WriteString("\n")
		}
	}
	c.Print(b.String())
}

func firstArg(args map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := argString(args[key]); s != "" {
			return s
		}
	}
	return ""
}

func argString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, argString(item))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(val)
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

func shorten(s string) string {
	return truncate.StringWithTail(s, maxDisplayArg, "...")
}
