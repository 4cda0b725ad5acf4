package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	api "github.com/GriffinCanCode/shellhost/internal/api/http"
	"github.com/GriffinCanCode/shellhost/internal/domain/window"
	"github.com/GriffinCanCode/shellhost/internal/shared/id"
)

var (
	// ErrNotFound matches API errors with status 404.
	ErrNotFound = errors.New("not found")
	// ErrBadRequest matches API errors with status 400.
	ErrBadRequest = errors.New("bad request")
	// ErrConflict matches API errors with status 409.
	ErrConflict = errors.New("conflict")
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
}

// Is maps the status onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrBadRequest:
		return e.Status == http.StatusBadRequest
	case ErrConflict:
		return e.Status == http.StatusConflict
	}
	return false
}

// Options configures a Client.
type Options struct {
	BaseURL      string
	Timeout      time.Duration
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
	Logger       *zap.Logger
}

// Client talks to a shellhost server.
type Client struct {
	resty  *resty.Client
	base   string
	logger *zap.Logger
}

// Health is the body of GET /health.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	Windows int    `json:"windows"`
	Shells  int    `json:"shells"`
}

// New creates a client for the server at opts.BaseURL.
func New(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryWait == 0 {
		opts.RetryWait = 200 * time.Millisecond
	}
	if opts.RetryMaxWait == 0 {
		opts.RetryMaxWait = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	base := strings.TrimRight(opts.BaseURL, "/")

	r := resty.New().
		SetBaseURL(base).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(opts.RetryMaxWait).
		SetHeader("User-Agent", "shellhost-client/"+api.Version).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		AddRetryCondition(shouldRetry)

	return &Client{resty: r, base: base, logger: opts.Logger.Named("client")}
}

// shouldRetry defers to the retryablehttp policy: connection errors, 429
// and 5xx other than 501 are retried.
func shouldRetry(resp *resty.Response, err error) bool {
	ctx := context.Background()
	var raw *http.Response
	if resp != nil {
		raw = resp.RawResponse
		if resp.Request != nil {
			ctx = resp.Request.Context()
		}
	}
	if raw == nil && err == nil {
		return false
	}
	retry, _ := retryablehttp.DefaultRetryPolicy(ctx, raw, err)
	return retry
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string { return c.base }

// Health fetches the server's health summary.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

// CreateWindow opens a window.
func (c *Client) CreateWindow(ctx context.Context, req api.CreateWindowRequest) (api.CreateWindowResponse, error) {
	var out api.CreateWindowResponse
	err := c.do(ctx, http.MethodPost, "/windows", req, &out)
	return out, err
}

// ListWindows lists open windows in creation order.
func (c *Client) ListWindows(ctx context.Context) ([]window.WindowInfo, error) {
	var out api.ListWindowsResponse
	if err := c.do(ctx, http.MethodGet, "/windows", nil, &out); err != nil {
		return nil, err
	}
	return out.Windows, nil
}

// GetWindow describes one window.
func (c *Client) GetWindow(ctx context.Context, channel string) (window.WindowInfo, error) {
	var out window.WindowInfo
	err := c.do(ctx, http.MethodGet, "/windows/"+channel, nil, &out)
	return out, err
}

// CloseWindow closes a window and kills its shells.
func (c *Client) CloseWindow(ctx context.Context, channel string) error {
	return c.do(ctx, http.MethodDelete, "/windows/"+channel, nil, nil)
}

// MoveShell hands the shell bound to ref in window from over to window to.
func (c *Client) MoveShell(ctx context.Context, from string, ref id.RemoteRef, to string) (api.MoveShellResponse, error) {
	var out api.MoveShellResponse
	path := fmt.Sprintf("/windows/%s/shells/%s/move", from, ref)
	err := c.do(ctx, http.MethodPost, path, api.MoveShellRequest{To: to}, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req := c.resty.R().SetContext(ctx).SetError(&api.ErrorResponse{})
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr := &APIError{Status: resp.StatusCode()}
		if e, ok := resp.Error().(*api.ErrorResponse); ok && e != nil {
			apiErr.Message = e.Error
		}
		c.logger.Debug("Request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", apiErr.Status),
		)
		return apiErr
	}
	return nil
}
