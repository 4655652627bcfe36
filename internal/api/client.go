// Package api is the HTTP client for the RunOn events backend.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appLog "runon/internal/log"
	"runon/internal/model"
)

const (
	DefaultBaseURL = "http://127.0.0.1:8000"
	defaultTimeout = 15 * time.Second

	// Responses larger than this are treated as undecodable.
	maxBodyBytes = 8 << 20
)

// Client implements the event source against the backend REST API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

type Option func(*Client)

// WithToken sends "Authorization: Bearer <token>" on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient replaces the default client (15s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchEvents runs a free-text or "near:<lat>,<lon>" query.
func (c *Client) SearchEvents(ctx context.Context, query string) ([]model.Event, error) {
	q := url.Values{}
	q.Set("query", query)

	body, err := c.do(ctx, http.MethodPost, "/events/search?"+q.Encode())
	if err != nil {
		return nil, err
	}
	return decodeEvents(body)
}

// FetchUserEvents returns the events the signed-in user registered for.
func (c *Client) FetchUserEvents(ctx context.Context) ([]model.Event, error) {
	body, err := c.do(ctx, http.MethodPost, "/events/user")
	if err != nil {
		return nil, err
	}
	return decodeEvents(body)
}

func (c *Client) RegisterForEvent(ctx context.Context, eventID string) error {
	_, err := c.do(ctx, http.MethodPost, "/events/"+url.PathEscape(eventID)+"/register")
	return err
}

func (c *Client) UnregisterFromEvent(ctx context.Context, eventID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/events/"+url.PathEscape(eventID)+"/unregister")
	return err
}

// do performs one request and classifies failures: 401 is
// ErrUnauthorized, other non-2xx statuses are ServerError, transport
// failures are NetworkError.
func (c *Client) do(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		appLog.Error("api request failed", err, "method", method, "path", redactPath(path))
		return nil, &model.NetworkError{Err: unwrapURLError(err)}
	}
	defer resp.Body.Close()

	appLog.Debug("api response",
		"method", method,
		"path", redactPath(path),
		"status", resp.StatusCode,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, model.ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &model.ServerError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, &model.NetworkError{Err: err}
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", model.ErrDecode, maxBodyBytes)
	}
	return body, nil
}

// unwrapURLError strips the "Post \"http://...\": " prefix so user-facing
// messages carry only the cause.
func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err
	}
	return err
}

// redactPath drops the query string, which may hold the user's location.
func redactPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		return p[:i] + "?...(redacted)"
	}
	return p
}
