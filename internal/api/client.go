package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// ErrDaemonUnavailable reports that no daemon answered at the API address.
var ErrDaemonUnavailable = errors.New("reelscout daemon unavailable")

// Error is a non-2xx API reply.
type Error struct {
	Status  int
	Message string
	Hint    string
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("api %d: %s (%s)", e.Status, e.Message, e.Hint)
	}
	return fmt.Sprintf("api %d: %s", e.Status, e.Message)
}

// Client talks to a running daemon over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a client for the daemon bound at bind (host:port).
func NewClient(bind, token string) *Client {
	base := strings.TrimSpace(bind)
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Health returns the daemon health payload.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.do(ctx, http.MethodGet, "/api/health", &out)
	return out, err
}

// TriggerSync asks the daemon to start a manual sync.
func (c *Client) TriggerSync(ctx context.Context, platform string) (TriggerResponse, error) {
	var out TriggerResponse
	err := c.do(ctx, http.MethodPost, "/api/platforms/"+url.PathEscape(platform)+"/sync", &out)
	return out, err
}

// CancelRun asks the daemon to cancel an active run.
func (c *Client) CancelRun(ctx context.Context, runID string) (SyncRun, error) {
	var out SyncRun
	err := c.do(ctx, http.MethodPost, "/api/runs/"+url.PathEscape(runID)+"/cancel", &out)
	return out, err
}

// Run fetches a run by id.
func (c *Client) Run(ctx context.Context, runID string) (SyncRun, error) {
	var out SyncRun
	err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(runID), &out)
	return out, err
}

// WaitRun polls a run until it is terminal or ctx ends. onPoll, when set,
// sees every intermediate state.
func (c *Client) WaitRun(ctx context.Context, runID string, interval time.Duration, onPoll func(SyncRun)) (SyncRun, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		run, err := c.Run(ctx, runID)
		if err != nil {
			return SyncRun{}, err
		}
		if onPoll != nil {
			onPoll(run)
		}
		if run.Terminal() {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w at %s: %w", ErrDaemonUnavailable, c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read api response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var payload ErrorResponse
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Hint = payload.Hint
		}
		return apiErr
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode api response: %w", err)
	}
	return nil
}

// IsStatus reports whether err is an API reply with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}
