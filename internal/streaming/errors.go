package streaming

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"google.golang.org/genai"

	"ptcagent/internal/runtime"
	"ptcagent/internal/sandbox"
)

// ErrInterrupted is the cancellation cause set when the user presses Esc
// during a turn.
var ErrInterrupted = errors.New("interrupted by user")

// EnvironmentError reports that the sandbox was lost and could not be
// recovered within the turn.
type EnvironmentError struct {
	// Reason is the tool output or error text that revealed the loss.
	Reason string
	Err    error
}

func (e *EnvironmentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sandbox unavailable: %s: %v", e.Reason, e.Err)
	}
	return "sandbox unavailable: " + e.Reason
}

func (e *EnvironmentError) Unwrap() error { return e.Err }

// Class is the handling category of a turn failure.
type Class int

const (
	// ClassUnknown errors are logged and returned to the caller.
	ClassUnknown Class = iota
	// ClassProvider errors come from the model provider or the agent server.
	ClassProvider
	// ClassEnvironment errors mean the sandbox went away.
	ClassEnvironment
	// ClassCancelled is a foreground cancellation by the user.
	ClassCancelled
)

func (c Class) String() string {
	switch c {
	case ClassProvider:
		return "provider"
	case ClassEnvironment:
		return "environment"
	case ClassCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Classify decides how a turn failure is handled.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassUnknown
	case errors.Is(err, ErrInterrupted):
		return ClassCancelled
	case IsAPIError(err):
		return ClassProvider
	}
	var envErr *EnvironmentError
	if errors.As(err, &envErr) || sandbox.IsSandboxError(err.Error()) {
		return ClassEnvironment
	}
	return ClassUnknown
}

// IsAPIError reports whether err is a provider or transport failure: an
// error reported by the agent server, an error from one of the model
// provider SDKs, or a network failure reaching the server.
func IsAPIError(err error) bool {
	var serverErr *runtime.APIError
	if errors.As(err, &serverErr) {
		return serverErr.IsProvider()
	}
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return true
	}
	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return true
	}
	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && !errors.Is(err, context.Canceled) {
		return true
	}
	return false
}

// APIErrorMessage returns a one-line description of a provider failure.
func APIErrorMessage(err error) string {
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return statusMessage("anthropic", anthropicErr.StatusCode)
	}
	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return statusMessage("openai", openaiErr.StatusCode)
	}
	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return fmt.Sprintf("%s: %s (%d %s)", statusKind(genaiErr.Code), genaiErr.Message, genaiErr.Code, genaiErr.Status)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "APITimeoutError: " + err.Error()
	}
	var serverErr *runtime.APIError
	if !errors.As(err, &serverErr) && errors.As(err, &netErr) {
		return "APIConnectionError: " + err.Error()
	}
	return err.Error()
}

func statusMessage(provider string, code int) string {
	return fmt.Sprintf("%s: %s returned %d %s", statusKind(code), provider, code, http.StatusText(code))
}

// statusKind names an HTTP failure the way the agent server names provider
// error classes.
func statusKind(code int) string {
	switch {
	case code == http.StatusUnauthorized:
		return "AuthenticationError"
	case code == http.StatusForbidden:
		return "PermissionDeniedError"
	case code == http.StatusTooManyRequests:
		return "RateLimitError"
	case code == http.StatusRequestTimeout:
		return "APITimeoutError"
	case code >= 500:
		return "InternalServerError"
	case code == http.StatusBadRequest:
		return "BadRequestError"
	default:
		return "APIStatusError"
	}
}
