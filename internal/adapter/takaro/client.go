// Package takaro is the HTTP client for the Takaro API: function code,
// execution tokens, event recording, game server messaging and the module
// catalog.
package takaro

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

const domainHeader = "x-takaro-domain"

// StatusError is a non-2xx API response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("takaro api %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Temporary reports whether retrying the same request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// TransportError is a request that never got a response.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("takaro api %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Temporary() bool { return true }

// IsNotFound reports a 404 from the API.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// IsTemporary reports transport failures and retryable statuses.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var t interface{ Temporary() bool }
	return errors.As(err, &t) && t.Temporary()
}

type Client struct {
	base   string
	token  string
	http   *http.Client
	logger *slog.Logger
	tokens *tokenCache
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL, token string, timeout time.Duration, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimRight(baseURL, "/"),
		token:  token,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
		tokens: newTokenCache(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the API's response wrapper.
type envelope[T any] struct {
	Data T `json:"data"`
}

func call[T any](ctx context.Context, c *Client, method, path, domainID string, body any) (T, error) {
	var zero T

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return zero, fmt.Errorf("takaro api %s %s: encode: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return zero, fmt.Errorf("takaro api %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if domainID != "" {
		req.Header.Set(domainHeader, domainID)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return zero, &TransportError{Method: method, Path: path, Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return zero, fmt.Errorf("takaro api %s %s: read: %w", method, path, err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		c.logger.Debug("TAKARO_API_ERROR", "method", method, "path", path, "status", res.StatusCode)
		return zero, &StatusError{Method: method, Path: path, Code: res.StatusCode, Body: truncate(string(raw), 256)}
	}

	if len(raw) == 0 {
		return zero, nil
	}

	var env envelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return zero, fmt.Errorf("takaro api %s %s: decode: %w", method, path, err)
	}
	return env.Data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
