// Package mentions expands @path references in user input with the content
// of the referenced sandbox files.
package mentions

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"ptcagent/internal/logging"
	"ptcagent/internal/sandbox"
)

// DefaultMaxFileSize caps the bytes of one file included in the prompt.
const DefaultMaxFileSize = 50000

var mentionPattern = regexp.MustCompile(`(?:^|\s)@([^\s@]+)`)

// FileReader is the subset of a sandbox needed to inline files.
type FileReader interface {
	NormalizePath(path string) string
	ReadFile(ctx context.Context, path string) (string, error)
}

// Warner prints warnings for the user.
type Warner interface {
	Warn(msg string)
}

// Parse returns the input text and the distinct paths it mentions, in order
// of first appearance.
func Parse(input string) (string, []string) {
	var paths []string
	seen := make(map[string]bool)
	for _, m := range mentionPattern.FindAllStringSubmatch(input, -1) {
		p := strings.TrimRight(m[1], `.,;:!?)"'`)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		paths = append(paths, p)
	}
	return input, paths
}

// Expand appends a Referenced Files section holding every mentioned file.
// Without a sandbox the mentions are left as text and a warning is shown.
func Expand(ctx context.Context, input string, sb FileReader, out Warner, maxSize int) string {
	text, paths := Parse(input)
	if len(paths) == 0 {
		return text
	}
	if sb == nil {
		out.Warn("Warning: @file mentions require an active sandbox session")
		return text
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	parts := []string{text, "\n\n## Referenced Files\n"}
	for _, p := range paths {
		sandboxPath := sb.NormalizePath(p)
		content, err := sb.ReadFile(ctx, sandboxPath)
		switch {
		case errors.Is(err, sandbox.ErrNotFound):
			out.Warn("Warning: File not found in sandbox: " + p)
			parts = append(parts, fmt.Sprintf("\n### %s\n[File not found: %s]", p, p))
		case err != nil:
			logging.Warn("mention_read_failed", "path", sandboxPath, "error", err)
			parts = append(parts, fmt.Sprintf("\n### %s\n[Error reading file: %v]", p, err))
		default:
			if len(content) > maxSize {
				content = truncate(content, maxSize) + "\n... (file truncated)"
			}
			parts = append(parts, fmt.Sprintf("\n### %s\nPath: `%s`\n```\n%s\n```", p, sandboxPath, content))
		}
	}
	return strings.Join(parts, "\n")
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
