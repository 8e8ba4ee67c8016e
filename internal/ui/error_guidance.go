package ui

import (
	"regexp"
	"strings"
)

// ErrorGuidance provides actionable suggestions for common errors.
type ErrorGuidance struct {
	Pattern     *regexp.Regexp // Compiled regex to match error
	Title       string         // User-friendly title
	Suggestions []string       // What user can try
	Command     string         // Relevant command hint (optional)
}

// errorGuidancePatterns contains known error patterns with guidance.
var errorGuidancePatterns = []ErrorGuidance{
	{
		Pattern:     regexp.MustCompile(`(?i)(RateLimitError|rate limit|429|too many requests)`),
		Title:       "Rate Limit Reached",
		Suggestions: []string{"Wait a moment before trying again", "Reduce request frequency"},
	},
	{
		Pattern:     regexp.MustCompile(`(?i)(AuthenticationError|unauthorized|401|invalid.*api.?key)`),
		Title:       "Authentication Failed",
		Suggestions: []string{"Check the provider API key configured on the agent server", "Check PTC_API_KEY for the agent server itself"},
	},
	{
		Pattern:     regexp.MustCompile(`(?i)(PermissionDeniedError|forbidden|403)`),
		Title:       "Access Denied",
		Suggestions: []string{"Verify the API key has access to the configured model"},
	},
	{
		Pattern:     regexp.MustCompile(`(?i)(APITimeoutError|deadline exceeded|timed out|timeout)`),
		Title:       "Request Timed Out",
		Suggestions: []string{"Check your network connection", "The model provider may be overloaded - wait and retry"},
	},
	{
		Pattern:     regexp.MustCompile(`(?i)(APIConnectionError|connection refused|no such host|network unreachable|dial tcp)`),
		Title:       "Connection Failed",
		Suggestions: []string{"Check that the agent server is running", "Verify the server URL in your config"},
		Command:     "ptcagent --server <url>",
	},
	{
		Pattern:     regexp.MustCompile(`(?i)(InternalServerError|overloaded|50[0-9])`),
		Title:       "Provider Error",
		Suggestions: []string{"The model provider returned a server error - retry shortly"},
	},
	{
		Pattern:     regexp.MustCompile(`(?i)(quota|resource exhausted|insufficient.?credit)`),
		Title:       "Quota Exceeded",
		Suggestions: []string{"You've reached your usage limit", "Wait for quota reset or upgrade plan"},
	},
}

// GetErrorGuidance returns guidance for an error message, or nil if no match.
func GetErrorGuidance(errMsg string) *ErrorGuidance {
	for _, g := range errorGuidancePatterns {
		if g.Pattern.MatchString(errMsg) {
			return &g
		}
	}
	return nil
}

// FormatErrorWithGuidance formats an error with helpful guidance.
func (c *Console) FormatErrorWithGuidance(errMsg string) string {
	guidance := GetErrorGuidance(errMsg)

	st := c.styles
	errorStyle := st.Error.Bold(true)
	titleStyle := st.Warning.Bold(true)
	markerStyle := st.Dim

	var result strings.Builder
	result.WriteString(errorStyle.Render("✗ Error: ") + truncateError(errMsg, 200))

	if guidance != nil {
		result.WriteString("\n")
		result.WriteString(markerStyle.Render("  ⎿  ") + titleStyle.Render(guidance.Title))

		for _, suggestion := range guidance.Suggestions {
			result.WriteString("\n")
			result.WriteString(markerStyle.Render("     • ") + st.Muted.Render(suggestion))
		}

		if guidance.Command != "" {
			result.WriteString("\n")
			result.WriteString(markerStyle.Render("     ") + st.Accent.Render("Try: "+guidance.Command))
		}
	}

	return result.String()
}

// truncateError truncates an error message to a single line of at most
// maxLen bytes.
func truncateError(msg string, maxLen int) string {
	msg = strings.ReplaceAll(msg, "\n", " ")
	msg = strings.TrimSpace(msg)

	if len(msg) <= maxLen {
		return msg
	}
	return msg[:maxLen-3] + "..."
}
