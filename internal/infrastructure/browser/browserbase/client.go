package browserbase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"computer-use-agent/internal/application/port/output"
	"computer-use-agent/internal/application/service"
)

const (
	DefaultBaseURL = "https://api.browserbase.com"
	apiKeyHeader   = "X-BB-API-Key"
)

// ErrUnauthorized is returned when the API rejects the key or project.
var ErrUnauthorized = errors.New("browserbase: unauthorized")

// APIError is a non-2xx reply from the sessions API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("browserbase: status %d: %s", e.Status, e.Body)
}

// retryable reports whether the status is worth another attempt.
func (e *APIError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type BrowserSettings struct {
	Viewport Viewport `json:"viewport"`
}

type CreateSessionRequest struct {
	ProjectID       string          `json:"projectId"`
	BrowserSettings BrowserSettings `json:"browserSettings"`
	Region          string          `json:"region,omitempty"`
	KeepAlive       bool            `json:"keepAlive,omitempty"`
	Timeout         int             `json:"timeout,omitempty"`
}

type Session struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"projectId"`
	Status     string    `json:"status"`
	Region     string    `json:"region"`
	ConnectURL string    `json:"connectUrl"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type updateSessionRequest struct {
	ProjectID string `json:"projectId"`
	Status    string `json:"status"`
}

type debugURLs struct {
	DebuggerFullscreenURL string `json:"debuggerFullscreenUrl"`
	DebuggerURL           string `json:"debuggerUrl"`
}

type ClientConfig struct {
	BaseURL   string
	APIKey    string
	ProjectID string
	Retry     service.RetryPolicy
	Timeout   time.Duration
}

// Client talks to the managed-browser sessions REST API.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	logger output.LoggerPort
}

func NewClient(cfg ClientConfig, logger output.LoggerPort) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("browserbase api key is required")
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("browserbase project id is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = service.DefaultRetryPolicy()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

func (c *Client) ProjectID() string { return c.cfg.ProjectID }

// CreateSession provisions a browser. Transient failures are retried with backoff.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	if req.ProjectID == "" {
		req.ProjectID = c.cfg.ProjectID
	}
	var session Session
	if err := c.do(ctx, http.MethodPost, "/v1/sessions", req, &session); err != nil {
		return nil, err
	}
	if session.ID == "" || session.ConnectURL == "" {
		return nil, fmt.Errorf("browserbase: session reply without id or connect url")
	}
	return &session, nil
}

// ReleaseSession asks the service to end the session.
func (c *Client) ReleaseSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/v1/sessions/"+id, updateSessionRequest{
		ProjectID: c.cfg.ProjectID,
		Status:    "REQUEST_RELEASE",
	}, nil)
}

// DebugURL returns the live view URL of a session.
func (c *Client) DebugURL(ctx context.Context, id string) (string, error) {
	var urls debugURLs
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+id+"/debug", nil, &urls); err != nil {
		return "", err
	}
	if urls.DebuggerFullscreenURL != "" {
		return urls.DebuggerFullscreenURL, nil
	}
	return urls.DebuggerURL, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	op := func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
		if err != nil {
			return service.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set(apiKeyHeader, c.cfg.APIKey)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return service.Permanent(ctx.Err())
			}
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return service.Permanent(fmt.Errorf("%w: %s", ErrUnauthorized, bytes.TrimSpace(data)))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
			if apiErr.retryable() {
				return apiErr
			}
			return service.Permanent(apiErr)
		}

		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return service.Permanent(fmt.Errorf("decode response: %w", err))
			}
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Browserbase request failed, retrying", "method", method, "path", path, "error", err, "wait", wait)
	}
	return service.Retry(ctx, c.cfg.Retry, op, notify)
}
