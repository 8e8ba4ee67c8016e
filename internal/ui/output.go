package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/term"
)

const defaultWidth = 100

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithMarkdownStyle selects the glamour style ("auto", "dark", "light", ...).
func WithMarkdownStyle(style string) ConsoleOption {
	return func(c *Console) { c.mdStyle = style }
}

// WithCodeStyle selects the chroma style for code previews.
func WithCodeStyle(style string) ConsoleOption {
	return func(c *Console) { c.codeStyle = style }
}

// WithTerminal overrides terminal detection.
func WithTerminal(tty bool) ConsoleOption {
	return func(c *Console) { c.tty = tty }
}

// WithWidth fixes the wrap width.
func WithWidth(width int) ConsoleOption {
	return func(c *Console) { c.width = width }
}

// Console is the shared line-oriented terminal writer. All writes are
// serialized so the spinner and live regions never interleave with output.
type Console struct {
	mu        sync.Mutex
	out       io.Writer
	tty       bool
	width     int
	mdStyle   string
	codeStyle string
	renderer  *lipgloss.Renderer
	styles    Styles
	md        *glamour.TermRenderer

	// transient is a partially drawn line (spinner frame) that must be
	// erased before regular output.
	transient bool
}

// NewConsole creates a console writing to out.
func NewConsole(out io.Writer, opts ...ConsoleOption) *Console {
	c := &Console{out: out, mdStyle: "auto"}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		c.tty = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			c.width = w
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.width <= 0 {
		c.width = defaultWidth
	}

	c.renderer = lipgloss.NewRenderer(out)
	c.styles = NewStyles(c.renderer)

	style := c.mdStyle
	if !c.tty {
		style = "notty"
	}
	var mdOpt glamour.TermRendererOption
	if style == "auto" {
		mdOpt = glamour.WithAutoStyle()
	} else {
		mdOpt = glamour.WithStandardStyle(style)
	}
	md, err := glamour.NewTermRenderer(mdOpt, glamour.WithWordWrap(c.width-4))
	if err == nil {
		c.md = md
	}
	return c
}

// IsTerminal reports whether the console writes to an interactive terminal.
func (c *Console) IsTerminal() bool { return c.tty }

// Width returns the wrap width.
func (c *Console) Width() int { return c.width }

// Styles returns the console's style set.
func (c *Console) Styles() Styles { return c.styles }

// Renderer returns the lipgloss renderer bound to the console output.
func (c *Console) Renderer() *lipgloss.Renderer { return c.renderer }

// Print writes s verbatim.
func (c *Console) Print(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearTransientLocked()
	_, _ = io.WriteString(c.out, s)
}

// Println writes s followed by a newline.
func (c *Console) Println(s string) {
	c.Print(s + "\n")
}

// Printf formats and writes a line.
func (c *Console) Printf(format string, args ...any) {
	c.Print(fmt.Sprintf(format, args...))
}

// Markdown renders text as markdown.
func (c *Console) Markdown(text string) {
	c.Print(c.RenderMarkdown(text))
}

// RenderMarkdown renders markdown without printing it.
func (c *Console) RenderMarkdown(text string) string {
	if c.md == nil {
		return ensureNewline(wordwrap.String(text, c.width))
	}
	out, err := c.md.Render(text)
	if err != nil {
		return ensureNewline(wordwrap.String(text, c.width))
	}
	return ensureNewline(strings.TrimLeft(out, "\n"))
}

// Panel prints body inside a rounded border titled title.
func (c *Console) Panel(title, body string, color lipgloss.Color) {
	c.Print(c.RenderPanel(title, body, color))
}

// RenderPanel returns the panel string for title and body.
func (c *Console) RenderPanel(title, body string, color lipgloss.Color) string {
	border := c.renderer.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Padding(0, 1).
		Width(c.width - 2)
	heading := c.renderer.NewStyle().Foreground(color).Bold(true).Render(title)
	content := strings.TrimRight(body, "\n")
	return border.Render(heading+"\n"+content) + "\n"
}

// Warn prints a warning line.
func (c *Console) Warn(msg string) { c.Println(c.styles.Warning.Render(msg)) }

// Success prints a success line.
func (c *Console) Success(msg string) { c.Println(c.styles.Success.Render(msg)) }

// Fail prints an error line.
func (c *Console) Fail(msg string) { c.Println(c.styles.Error.Render(msg)) }

// Dim prints a muted line.
func (c *Console) Dim(msg string) { c.Println(c.styles.Dim.Render(msg)) }

// Info prints an accent line.
func (c *Console) Info(msg string) { c.Println(c.styles.Accent.Render(msg)) }

// writeTransient draws s on the current line, replacing any previous
// transient content. Only meaningful on a terminal.
func (c *Console) writeTransient(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = io.WriteString(c.out, "\r"+eraseLine+s)
	c.transient = true
}

// clearTransient erases the transient line if one is drawn.
func (c *Console) clearTransient() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearTransientLocked()
}

func (c *Console) clearTransientLocked() {
	if !c.transient {
		return
	}
	_, _ = io.WriteString(c.out, "\r"+eraseLine)
	c.transient = false
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
