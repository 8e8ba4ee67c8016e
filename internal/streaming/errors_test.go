package streaming

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"

	"ptcagent/internal/runtime"
)

func TestClassify(t *testing.T) {
	dialErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"server rate limit", &runtime.APIError{Kind: "RateLimitError", Message: "slow down"}, ClassProvider},
		{"server 503", fmt.Errorf("stream: %w", &runtime.APIError{StatusCode: 503}), ClassProvider},
		{"anthropic", &anthropic.Error{StatusCode: 529}, ClassProvider},
		{"openai", fmt.Errorf("wrapped: %w", &openai.Error{StatusCode: 401}), ClassProvider},
		{"genai", genai.APIError{Code: 429, Message: "quota", Status: "RESOURCE_EXHAUSTED"}, ClassProvider},
		{"dial failure", fmt.Errorf("request failed: %w", dialErr), ClassProvider},
		{"sandbox text", errors.New("Error: sandbox not found"), ClassEnvironment},
		{"environment", &EnvironmentError{Reason: "gone"}, ClassEnvironment},
		{"interrupted", fmt.Errorf("read: %w", ErrInterrupted), ClassCancelled},
		{"server value error", &runtime.APIError{Kind: "ValueError", Message: "bad input"}, ClassUnknown},
		{"plain", errors.New("boom"), ClassUnknown},
		{"nil", nil, ClassUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestIsAPIErrorIgnoresCancellation(t *testing.T) {
	assert.False(t, IsAPIError(context.Canceled))
	assert.False(t, IsAPIError(fmt.Errorf("read run stream: %w", context.Canceled)))
}

func TestAPIErrorMessage(t *testing.T) {
	assert.Equal(t, "RateLimitError: anthropic returned 429 Too Many Requests",
		APIErrorMessage(&anthropic.Error{StatusCode: 429}))
	assert.Equal(t, "AuthenticationError: openai returned 401 Unauthorized",
		APIErrorMessage(&openai.Error{StatusCode: 401}))
	assert.Equal(t, "RateLimitError: quota (429 RESOURCE_EXHAUSTED)",
		APIErrorMessage(genai.APIError{Code: 429, Message: "quota", Status: "RESOURCE_EXHAUSTED"}))
	assert.Equal(t, "RateLimitError: slow down",
		APIErrorMessage(&runtime.APIError{Kind: "RateLimitError", Message: "slow down"}))

	dialErr := fmt.Errorf("request failed: %w", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")})
	assert.Equal(t, "APIConnectionError: request failed: dial tcp: connection refused", APIErrorMessage(dialErr))
}

func TestEnvironmentErrorUnwraps(t *testing.T) {
	cause := errors.New("ssh: disconnect")
	err := &EnvironmentError{Reason: "tool failed", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "sandbox unavailable: tool failed: ssh: disconnect", err.Error())
	assert.Equal(t, "sandbox unavailable: gone", (&EnvironmentError{Reason: "gone"}).Error())
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "provider", ClassProvider.String())
	assert.Equal(t, "environment", ClassEnvironment.String())
	assert.Equal(t, "cancelled", ClassCancelled.String())
	assert.Equal(t, "unknown", ClassUnknown.String())
}
