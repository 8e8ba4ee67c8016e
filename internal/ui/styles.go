package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Colors for the terminal theme.
var (
	ColorPrimary   = lipgloss.Color("#A78BFA") // Soft Purple (Lavender 400)
	ColorSecondary = lipgloss.Color("#22D3EE") // Bright Cyan (Cyan 400)
	ColorSuccess   = lipgloss.Color("#059669") // Emerald 600
	ColorWarning   = lipgloss.Color("#D97706") // Amber 600
	ColorError     = lipgloss.Color("#DC2626") // Red 600
	ColorMuted     = lipgloss.Color("#9CA3AF") // Gray 400
	ColorDim       = lipgloss.Color("#6B7280") // Gray 500
	ColorTool      = lipgloss.Color("#818CF8") // Indigo 500
	ColorPlan      = lipgloss.Color("#2DD4BF") // Teal 400
	ColorThinking  = lipgloss.Color("#60A5FA") // Sky Blue (Blue 400)
)

// MessageIcons provides consistent icons for status lines.
var MessageIcons = map[string]string{
	"success": "✓",
	"error":   "✗",
	"warning": "⚠",
	"retry":   "⟳",
	"active":  "●",
}

// ToolIcons maps agent tool names to the icon shown on the tool line.
var ToolIcons = map[string]string{
	"read_file":    "📖",
	"write_file":   "✏️",
	"edit_file":    "✂️",
	"ls":           "📁",
	"glob":         "🔍",
	"grep":         "🔎",
	"shell":        "⚡",
	"execute":      "🔧",
	"execute_code": "🔧",
	"Bash":         "⚡",
	"Read":         "📖",
	"Write":        "✏️",
	"Edit":         "✂️",
	"Glob":         "🔍",
	"Grep":         "🔎",
	"web_search":   "🌐",
	"http_request": "🌍",
	"task":         "🤖",
	"wait":         "⏳",
	"task_output":  "📤",
	"write_todos":  "📋",
	"submit_plan":  "📋",
}

const defaultToolIcon = "🔧"

// GetToolIcon returns the icon for a given tool name.
func GetToolIcon(toolName string) string {
	if icon, ok := ToolIcons[toolName]; ok {
		return icon
	}
	return defaultToolIcon
}

// Styles groups the lipgloss styles bound to a single renderer.
type Styles struct {
	Primary  lipgloss.Style
	Accent   lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Muted    lipgloss.Style
	Dim      lipgloss.Style
	Tool     lipgloss.Style
	Thinking lipgloss.Style
	Bold     lipgloss.Style
}

// NewStyles builds the style set for r.
func NewStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		Primary:  r.NewStyle().Foreground(ColorPrimary),
		Accent:   r.NewStyle().Foreground(ColorSecondary),
		Success:  r.NewStyle().Foreground(ColorSuccess),
		Warning:  r.NewStyle().Foreground(ColorWarning),
		Error:    r.NewStyle().Foreground(ColorError),
		Muted:    r.NewStyle().Foreground(ColorMuted),
		Dim:      r.NewStyle().Foreground(ColorDim),
		Tool:     r.NewStyle().Foreground(ColorTool).Faint(true),
		Thinking: r.NewStyle().Foreground(ColorThinking),
		Bold:     r.NewStyle().Bold(true),
	}
}
