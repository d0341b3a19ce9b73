// Package api is the HTTP client for the personal-finance API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"finboard/internal/log"
)

const defaultTimeout = 30 * time.Second

// Client talks to the finance API. Requests carry the bearer token held by
// the shared Credential at the time they are sent.
type Client struct {
	baseURL    string
	httpClient *http.Client
	credential *Credential
	logger     *log.Logger
	structured *log.StructuredLogger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the overall timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.logger = l.WithComponent(log.ComponentAPI)
	}
}

// NewClient creates a client for the API rooted at baseURL. A nil credential
// means requests are sent unauthenticated.
func NewClient(baseURL string, credential *Credential, opts ...Option) *Client {
	if credential == nil {
		credential = NewCredential()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		credential: credential,
		logger:     log.Discard().WithComponent(log.ComponentAPI),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.structured = log.NewStructuredLogger(c.logger)
	return c
}

// Credential returns the credential the client authenticates with.
func (c *Client) Credential() *Credential {
	return c.credential
}

// doRequest performs an HTTP request with authentication and decodes a 2xx
// body into target when target is non-nil.
func (c *Client) doRequest(ctx context.Context, method, path string, body, target any) error {
	raw, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	if target == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		c.structured.LogError(ctx, "Failed to decode API response", err, log.OpFetch,
			log.NewFields().
				WithHTTPRequest(method, c.baseURL+path).
				WithErrorType(log.ErrorTypeDecode))
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// send performs the request and returns the raw 2xx body.
func (c *Client) send(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.credential.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.structured.LogError(ctx, "API request failed", err, log.OpFetch,
			log.NewFields().
				WithHTTPRequest(method, url).
				WithRequestID(requestID).
				WithErrorType(log.ErrorTypeNetwork))
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	c.structured.LogHTTPEnd(ctx, method, url, requestID, resp.StatusCode, time.Since(start).Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("read %s %s response: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError(resp.StatusCode, raw)
	}
	return raw, nil
}
