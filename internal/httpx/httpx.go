// Package httpx holds the outbound HTTP plumbing shared by the origin clients:
// a per-request timeout, typed status errors and retries for transient failures.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
)

// DefaultTimeout bounds every outbound call to an origin service.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of a failed response body is kept on StatusError.
const maxErrorBody = 512

// ErrRateLimited matches any StatusError carrying HTTP 429.
var ErrRateLimited = errors.New("rate limited by upstream")

// ErrNotFound matches any StatusError carrying HTTP 404.
var ErrNotFound = errors.New("upstream resource not found")

// StatusError is returned for non-2xx origin responses.
type StatusError struct {
	Service    string
	StatusCode int
	Status     string
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s request failed: %s", e.Service, e.Status)
	}
	return fmt.Sprintf("%s request failed: %s - %s", e.Service, e.Status, e.Body)
}

// Is lets callers match with errors.Is(err, httpx.ErrRateLimited).
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// IsRateLimited reports whether the origin asked the caller to back off.
func (e *StatusError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Temporary reports whether retrying the same request could succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500
}

// StatusCode extracts the HTTP status from err, or 0 when err is not a StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// Client performs requests with a fixed timeout and optional retries.
type Client struct {
	Service  string
	HTTP     *http.Client
	Timeout  time.Duration
	Attempts uint
	Delay    time.Duration
	log      *slog.Logger
}

// New returns a Client for the named service.
func New(service string, timeout time.Duration, attempts uint) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if attempts == 0 {
		attempts = 1
	}
	return &Client{
		Service:  service,
		HTTP:     &http.Client{},
		Timeout:  timeout,
		Attempts: attempts,
		Delay:    250 * time.Millisecond,
		log:      slog.Default().With("component", "httpx", "service", service),
	}
}

// Do sends the request built by build and returns the body of a 2xx response.
// build is invoked once per attempt so request bodies can be recreated.
// Only network errors and 5xx responses are retried; 4xx (including 429) are
// returned immediately so callers can apply their own backoff.
func (c *Client) Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, http.Header, error) {
	var body []byte
	var header http.Header

	err := retry.Do(
		func() error {
			reqCtx, cancel := context.WithTimeout(ctx, c.Timeout)
			defer cancel()

			req, err := build(reqCtx)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}

			resp, err := c.HTTP.Do(req)
			if err != nil {
				return fmt.Errorf("%s api request: %w", c.Service, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
				se := &StatusError{
					Service:    c.Service,
					StatusCode: resp.StatusCode,
					Status:     resp.Status,
					Body:       string(snippet),
					RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
				}
				if !se.Temporary() {
					return retry.Unrecoverable(se)
				}
				return se
			}

			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read %s response: %w", c.Service, err)
			}
			body = data
			header = resp.Header
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.Attempts),
		retry.Delay(c.Delay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.log.Debug("retrying request", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, nil, err
	}
	return body, header, nil
}

// Get is a convenience wrapper for a GET with headers.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, http.Header, error) {
	return c.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	})
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
