package runtime

import (
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// providerKinds are the error class names the agent server reports for
// failures of the upstream model provider.
var providerKinds = map[string]bool{
	"AuthenticationError":   true,
	"PermissionDeniedError": true,
	"RateLimitError":        true,
	"APIConnectionError":    true,
	"APITimeoutError":       true,
	"InternalServerError":   true,
	"APIStatusError":        true,
	"BadRequestError":       true,
	"OverloadedError":       true,
}

// APIError is an error reported by the agent server, either as an HTTP
// status or as an error event in a run stream.
type APIError struct {
	// StatusCode is zero for errors delivered inside a stream.
	StatusCode int
	// Kind is the server's error class name, e.g. "RateLimitError".
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	switch {
	case e.Kind != "" && e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Kind != "":
		return e.Kind
	case e.StatusCode != 0:
		return fmt.Sprintf("agent server error %d: %s", e.StatusCode, e.Message)
	default:
		return e.Message
	}
}

// IsProvider reports whether the error is a model provider failure: an
// authentication, permission, rate limit, connectivity or server fault.
func (e *APIError) IsProvider() bool {
	if providerKinds[e.Kind] {
		return true
	}
	switch {
	case e.StatusCode == http.StatusUnauthorized,
		e.StatusCode == http.StatusForbidden,
		e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode >= 500:
		return true
	}
	return false
}

// parseErrorBody builds an APIError from an error event payload or an HTTP
// error body. Both use {"error": kind, "message": text}; servers that
// answer with {"detail": text} are accepted too.
func parseErrorBody(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status}
	if !gjson.ValidBytes(body) {
		e.Message = string(body)
		return e
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		e.Message = root.String()
		return e
	}

	e.Kind = root.Get("error").String()
	e.Message = root.Get("message").String()
	if e.Message == "" {
		e.Message = root.Get("detail").String()
	}
	return e
}
