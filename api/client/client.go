// Package client talks to the escrow daemon HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/vocdoni/zk-escrow/api"
	"github.com/vocdoni/zk-escrow/log"
)

const (
	// DefaultRetries is the number of attempts made when the daemon cannot
	// be reached.
	DefaultRetries = 3
	// DefaultTimeout bounds a whole request. Transitions wait for a proof
	// and a mined transaction, so it is generous.
	DefaultTimeout = 5 * time.Minute

	retryDelay = 500 * time.Millisecond
)

// Error is a non 200 response of the daemon. Code is the API error code,
// zero when the body was not an API error report.
type Error struct {
	Status   int
	Code     int
	Messages []string
}

func (e *Error) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("escrow API: status %d", e.Status)
	}
	return fmt.Sprintf("escrow API %d: %s", e.Code, strings.Join(e.Messages, "; "))
}

// Client is the escrow API client. Only connection failures are retried:
// a transition that reached the daemon is never sent twice.
type Client struct {
	http    *http.Client
	host    *url.URL
	retries int
}

// New returns a client of the daemon at host and checks that it answers.
func New(ctx context.Context, host string) (*Client, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid host %q: %w", host, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid host %q: missing scheme or address", host)
	}
	c := &Client{
		http:    &http.Client{Timeout: DefaultTimeout},
		host:    u,
		retries: DefaultRetries,
	}
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}
	log.Debugw("escrow API client ready", "host", u.String())
	return c, nil
}

// SetRetries sets the number of connection attempts, at least one.
func (c *Client) SetRetries(n int) {
	c.retries = max(n, 1)
}

// SetTimeout sets the timeout of each request.
func (c *Client) SetTimeout(d time.Duration) {
	c.http.Timeout = d
}

// Ping checks that the daemon is up.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, nil, nil, api.PingEndpoint)
}

// do sends body as JSON to the endpoint and decodes a 200 response into out.
func (c *Client) do(ctx context.Context, method string, body, out any, endpoint ...string) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	u := *c.host
	u.Path = path.Join(u.Path, path.Join(endpoint...))
	log.Debugw("escrow API request", "method", method, "url", u.String())

	var resp *http.Response
	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(payload))
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		resp, err = c.http.Do(req)
		if err == nil {
			break
		}
		if !unreachable(err) || attempt >= c.retries {
			return fmt.Errorf("%s %s: %w", method, u.Path, err)
		}
		log.Warnw("escrow API unreachable", "error", err.Error(), "attempt", attempt, "retries", c.retries)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &Error{Status: resp.StatusCode}
		report := struct {
			Errors []string `json:"errors"`
			Code   int      `json:"code"`
		}{}
		if json.Unmarshal(data, &report) == nil && len(report.Errors) > 0 {
			apiErr.Code, apiErr.Messages = report.Code, report.Errors
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// unreachable reports whether err means the request never reached the
// daemon.
func unreachable(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
