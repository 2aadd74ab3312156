package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrDrainInProgress is returned by Client.Drain when the daemon is already draining.
var ErrDrainInProgress = errors.New("an upload drain is already running")

// ErrDaemonUnavailable is returned when nothing answers on the API address.
var ErrDaemonUnavailable = errors.New("daemon is not reachable")

// Client talks to a running daemon over its HTTP API.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// NewClient targets the daemon bound to bind. Wildcard hosts are dialled on loopback.
func NewClient(bind, token string) *Client {
	host, port, err := net.SplitHostPort(strings.TrimSpace(bind))
	if err != nil {
		host, port = "127.0.0.1", "8866"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return &Client{
		base:  "http://" + net.JoinHostPort(host, port),
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var resp DaemonStatus
	if _, err := c.do(ctx, http.MethodGet, "/api/status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Queue lists the upload queue.
func (c *Client) Queue(ctx context.Context) ([]QueueItem, error) {
	var resp QueueListResponse
	if _, err := c.do(ctx, http.MethodGet, "/api/queue", &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Stuck lists entries with at least minAttempts failed attempts. A
// non-positive minAttempts uses the daemon's configured threshold.
func (c *Client) Stuck(ctx context.Context, minAttempts int) ([]QueueItem, error) {
	path := "/api/queue/stuck"
	if minAttempts > 0 {
		path += "?" + url.Values{"min_attempts": {strconv.Itoa(minAttempts)}}.Encode()
	}
	var resp QueueListResponse
	if _, err := c.do(ctx, http.MethodGet, path, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Drain asks the daemon to drain the upload queue now.
func (c *Client) Drain(ctx context.Context) error {
	var resp DrainResponse
	status, err := c.do(ctx, http.MethodPost, "/api/upload/drain", &resp)
	if status == http.StatusConflict {
		return ErrDrainInProgress
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return 0, fmt.Errorf("%w at %s", ErrDaemonUnavailable, c.base)
		}
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return resp.StatusCode, fmt.Errorf("%s %s: %s (%d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return resp.StatusCode, fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out == nil || len(body) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}
