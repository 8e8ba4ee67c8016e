package highlight

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
)

// Highlighter provides terminal syntax highlighting for code previews.
type Highlighter struct {
	style     string
	formatter chroma.Formatter
}

// New creates a new Highlighter with the specified chroma style.
func New(style string) *Highlighter {
	if style == "" {
		style = "monokai"
	}

	return &Highlighter{
		style:     style,
		formatter: formatters.Get("terminal256"),
	}
}

// Highlight applies syntax highlighting to code based on language.
func (h *Highlighter) Highlight(code, lang string) string {
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get(h.style)
	if style == nil {
		style = styles.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf bytes.Buffer
	if err := h.formatter.Format(&buf, style, iterator); err != nil {
		return code
	}

	return buf.String()
}

// Preview highlights at most maxLines of code behind a gutter, noting how
// many lines were left out.
func (h *Highlighter) Preview(code, lang string, maxLines int) string {
	lines := strings.Split(strings.TrimRight(code, "\n"), "\n")
	hidden := 0
	if maxLines > 0 && len(lines) > maxLines {
		hidden = len(lines) - maxLines
		lines = lines[:maxLines]
	}

	gutter := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	highlighted := strings.Split(strings.TrimRight(h.Highlight(strings.Join(lines, "\n"), lang), "\n"), "\n")

	var result strings.Builder
	for i, line := range highlighted {
		result.WriteString(gutter.Render("    │ "))
		result.WriteString(line)
		if i < len(highlighted)-1 {
			result.WriteString("\n")
		}
	}
	if hidden > 0 {
		result.WriteString("\n")
		result.WriteString(gutter.Render("    │ ... " + plural(hidden, "more line", "more lines")))
	}
	return result.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return strconv.Itoa(n) + " " + one
	}
	return strconv.Itoa(n) + " " + many
}
