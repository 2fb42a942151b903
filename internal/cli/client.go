package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/GriffinCanCode/AgentOS/terminal/internal/domain/session"
)

const apiPrefix = "/api/terminal"

// ClientConfig configures the API client
type ClientConfig struct {
	Server     string
	User       string
	Token      string
	UserHeader string
	Timeout    time.Duration
	MaxRetries int
}

// APIError is a non-2xx response from the service
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Details string `json:"details"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s (%d): %s", msg, e.Status, e.Details)
	}
	return fmt.Sprintf("%s (%d)", msg, e.Status)
}

// CreatedSession is the create response
type CreatedSession struct {
	SessionID  string `json:"sessionId"`
	BaseDir    string `json:"baseDir"`
	CurrentDir string `json:"currentDir"`
	Mode       string `json:"mode"`
}

// Health is the terminal health response
type Health struct {
	Status    string `json:"status"`
	WSSupport bool   `json:"wsSupport"`
	Sessions  int    `json:"sessions"`
}

// Client talks to the terminal REST API
type Client struct {
	cfg  ClientConfig
	rest *resty.Client
}

// NewClient creates a client whose transport retries connection failures
// and 5xx responses on idempotent requests
func NewClient(cfg ClientConfig) (*Client, error) {
	base, err := url.Parse(cfg.Server)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", cfg.Server)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserHeader == "" {
		cfg.UserHeader = "X-User-ID"
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil
	retryClient.CheckRetry = idempotentRetryPolicy
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	rest := resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(strings.TrimRight(cfg.Server, "/")+apiPrefix).
		SetTimeout(cfg.Timeout).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetHeader("User-Agent", "termctl/1.0").
		SetHeader("Accept", "application/json")
	if cfg.User != "" {
		rest.SetHeader(cfg.UserHeader, cfg.User)
	}
	if cfg.Token != "" {
		rest.SetAuthToken(cfg.Token)
	}

	return &Client{cfg: cfg, rest: rest}, nil
}

// idempotentRetryPolicy never retries a POST that reached the server
func idempotentRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil && resp.Request != nil && resp.Request.Method == http.MethodPost {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

func (c *Client) do(ctx context.Context, method, path string, result any) error {
	apiErr := &APIError{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(result).
		SetError(apiErr).
		Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr.Status = resp.StatusCode()
		return apiErr
	}
	return nil
}

// Create creates a session for the configured user
func (c *Client) Create(ctx context.Context) (*CreatedSession, error) {
	var out CreatedSession
	if err := c.do(ctx, http.MethodPost, "/create", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns the user's session ids
func (c *Client) List(ctx context.Context) ([]string, error) {
	var out struct {
		Sessions []string `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/sessions", &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// Info returns a session snapshot
func (c *Client) Info(ctx context.Context, sessionID string) (*session.Info, error) {
	var out session.Info
	if err := c.do(ctx, http.MethodGet, "/session/"+url.PathEscape(sessionID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History returns a session's history, oldest first
func (c *Client) History(ctx context.Context, sessionID string) ([]session.HistoryEntry, error) {
	var out struct {
		History []session.HistoryEntry `json:"history"`
	}
	if err := c.do(ctx, http.MethodGet, "/history/"+url.PathEscape(sessionID), &out); err != nil {
		return nil, err
	}
	return out.History, nil
}

// Destroy destroys a session
func (c *Client) Destroy(ctx context.Context, sessionID string) error {
	var out struct {
		Message string `json:"message"`
	}
	return c.do(ctx, http.MethodDelete, "/session/"+url.PathEscape(sessionID), &out)
}

// Health checks the terminal API
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StreamURL returns the websocket URL for a session
func (c *Client) StreamURL(sessionID string) string {
	u, _ := url.Parse(strings.TrimRight(c.cfg.Server, "/") + apiPrefix + "/ws")
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.RawQuery = url.Values{"sessionId": {sessionID}}.Encode()
	return u.String()
}

// StreamHeaders returns the identity headers for the websocket handshake
func (c *Client) StreamHeaders() http.Header {
	h := http.Header{}
	if c.cfg.User != "" {
		h.Set(c.cfg.UserHeader, c.cfg.User)
	}
	if c.cfg.Token != "" {
		h.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	return h
}

// IsNotFound reports whether err is a 404 from the service
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
