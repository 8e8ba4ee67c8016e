// Package runtime talks to a LangGraph-compatible agent server: it starts
// and resumes streamed runs and tracks the background runs they spawn.
package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ptcagent/internal/config"
	"ptcagent/internal/event"
	"ptcagent/internal/logging"
	"ptcagent/internal/tasks"
)

var streamModes = []string{"messages-tuple", "updates"}

// onDisconnect makes the server cancel a run whose stream is dropped.
// Background runs share the thread, so the multitask strategy is left at the
// server default and a closed run is cancelled explicitly instead.
const onDisconnect = "cancel"

// Client is an agent server client.
type Client struct {
	baseURL      string
	apiKey       string
	assistantID  string
	httpClient   *http.Client
	timeout      time.Duration
	pollInterval time.Duration

	registry *tasks.Registry

	// bg bounds the lifetime of background run pollers.
	bg     context.Context
	cancel context.CancelFunc
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for all requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the server described by cfg.
func New(cfg config.ServerConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimSuffix(cfg.URL, "/"),
		apiKey:       cfg.APIKey,
		assistantID:  cfg.AssistantID,
		httpClient:   &http.Client{},
		timeout:      cfg.RequestTimeout,
		pollInterval: cfg.RunPollInterval,
		registry:     tasks.NewRegistry(),
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	if c.pollInterval <= 0 {
		c.pollInterval = time.Second
	}
	for _, opt := range opts {
		opt(c)
	}
	c.bg, c.cancel = context.WithCancel(context.Background())
	return c
}

// Close stops all background run pollers.
func (c *Client) Close() error {
	c.cancel()
	return nil
}

// Registry returns the registry of background runs spawned by this client's
// runs.
func (c *Client) Registry() *tasks.Registry {
	return c.registry
}

// TakeNotification returns a summary of background runs that finished since
// the last call, or "" when there is nothing new.
func (c *Client) TakeNotification() string {
	return c.registry.TakeNotification()
}

type runRequest struct {
	AssistantID     string            `json:"assistant_id"`
	Input           any               `json:"input,omitempty"`
	Command         *runCommand       `json:"command,omitempty"`
	StreamMode      []string          `json:"stream_mode"`
	StreamSubgraphs bool              `json:"stream_subgraphs"`
	Config          runConfig         `json:"config"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	IfNotExists     string            `json:"if_not_exists"`
	OnDisconnect    string            `json:"on_disconnect"`
}

type runCommand struct {
	Resume event.ResumePayload `json:"resume"`
}

type runConfig struct {
	Configurable map[string]string `json:"configurable"`
}

type messagesInput struct {
	Messages []event.InputMessage `json:"messages"`
}

func (c *Client) buildRunRequest(input event.Input, rc event.RunConfig) (runRequest, error) {
	assistant := rc.AssistantID
	if assistant == "" {
		assistant = c.assistantID
	}
	req := runRequest{
		AssistantID:     assistant,
		StreamMode:      streamModes,
		StreamSubgraphs: true,
		Config:          runConfig{Configurable: map[string]string{"thread_id": rc.ThreadID}},
		Metadata:        map[string]string{"assistant_id": assistant},
		IfNotExists:     "create",
		OnDisconnect:    onDisconnect,
	}

	switch in := input.(type) {
	case event.MessagesInput:
		req.Input = messagesInput{Messages: in.Messages}
	case event.ResumeInput:
		req.Command = &runCommand{Resume: in.Resume}
	default:
		return runRequest{}, fmt.Errorf("unsupported run input %T", input)
	}
	return req, nil
}

// Stream starts a run on rc's thread and returns its event stream. The
// stream ends when ctx is cancelled.
func (c *Client) Stream(ctx context.Context, input event.Input, rc event.RunConfig) (event.Stream, error) {
	if rc.ThreadID == "" {
		return nil, fmt.Errorf("run config has no thread id")
	}
	body, err := c.buildRunRequest(input, rc)
	if err != nil {
		return nil, err
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run request: %w", err)
	}

	url := fmt.Sprintf("%s/threads/%s/runs/stream", c.baseURL, rc.ThreadID)
	logging.Info("agent run request", "url", url, "assistant_id", body.AssistantID, "resume", body.Command != nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}

	return newRunStream(resp,
		func() { c.discoverBackground(ctx, rc.ThreadID) },
		func(runID string) { c.cancelRun(rc.ThreadID, runID) },
	), nil
}

// cancelRun asks the server to stop a run and waits until it has. It runs
// after the turn context may already be cancelled, so it is bounded by the
// client lifetime instead.
func (c *Client) cancelRun(threadID, runID string) {
	ctx, cancel := context.WithTimeout(c.bg, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/threads/%s/runs/%s/cancel?wait=true&action=interrupt", c.baseURL, threadID, runID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		logging.Warn("run_cancel_failed", "run_id", runID, "error", err)
		return
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.Warn("run_cancel_failed", "run_id", runID, "error", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode < 300:
		logging.Info("run_cancelled", "thread_id", threadID, "run_id", runID)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusConflict:
		// Already finished or already cancelled by the disconnect.
		logging.Debug("run_cancel_skipped", "run_id", runID, "status", resp.StatusCode)
	default:
		logging.Warn("run_cancel_failed", "run_id", runID, "status", resp.StatusCode)
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
}

// getJSON performs a bounded GET and returns the response body.
func (c *Client) getJSON(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}
	return io.ReadAll(resp.Body)
}

func readAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		logging.Error("failed to read error response", "error", err)
		body = []byte("(failed to read response body)")
	}
	logging.Warn("agent server error", "status", resp.StatusCode, "body", string(body))
	return parseErrorBody(resp.StatusCode, bytes.TrimSpace(body))
}
