// Package gateway holds the HTTP plumbing shared by the gateway adapters.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/palmera/payments/internal/core"
)

// DefaultTimeout bounds a single gateway call when none is configured.
const DefaultTimeout = 20 * time.Second

const maxBodyBytes = 1 << 20

// Client sends bearer-authenticated JSON requests to one gateway.
// It is safe for concurrent use.
type Client struct {
	provider  core.Provider
	baseURL   string
	secretKey string
	http      *http.Client
}

// NewClient creates a client for baseURL. A nil httpClient gets a default
// client with DefaultTimeout.
func NewClient(provider core.Provider, baseURL, secretKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		provider:  provider,
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		http:      httpClient,
	}
}

// Response is a decoded gateway reply below 5xx.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Do sends payload (if non-nil) as JSON and decodes the reply into out.
//
// Network failures, 5xx replies and bodies that are not valid JSON are
// returned as *core.TransportError. 4xx replies are decoded and returned
// normally so the adapter can report them as declines.
func (c *Client) Do(ctx context.Context, op, method, path string, query url.Values, payload, out any) (*Response, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s %s: marshal request: %w", c.provider, op, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: build request: %w", c.provider, op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(op, 0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.transportError(op, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, c.transportError(op, resp.StatusCode, errors.New(http.StatusText(resp.StatusCode)))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, c.transportError(op, resp.StatusCode, fmt.Errorf("malformed response: %w", err))
		}
	}

	return &Response{StatusCode: resp.StatusCode, Body: raw}, nil
}

func (c *Client) transportError(op string, status int, err error) error {
	return &core.TransportError{Provider: c.provider, Op: op, StatusCode: status, Err: err}
}

// MissingSettings returns the names whose values are empty, in order.
// Pairs are name, value.
func MissingSettings(pairs ...string) []string {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, pairs[i])
		}
	}
	return missing
}
