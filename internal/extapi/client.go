// Package extapi is the shared HTTP plumbing for the payment, POS and delivery
// provider adapters: JSON or form requests, typed errors, traced transport.
package extapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultTimeout bounds every provider call.
const DefaultTimeout = 20 * time.Second

const maxResponseBytes = 4 << 20

// Client issues requests against a single provider base URL.
type Client struct {
	service    string
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a Client. A nil transport uses http.DefaultTransport; either
// way the transport is wrapped with otelhttp so provider calls appear in traces.
func NewClient(service, baseURL string, timeout time.Duration, transport http.RoundTripper) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: otelhttp.NewTransport(transport,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return service + " " + r.Method + " " + r.URL.Path
				}),
			),
		},
	}
}

// Service returns the provider name used in errors.
func (c *Client) Service() string {
	return c.service
}

// RequestOption decorates an outgoing request.
type RequestOption func(*requestConfig)

type requestConfig struct {
	header http.Header
	form   url.Values
	query  url.Values
	user   string
	pass   string
	basic  bool
}

// WithBearer sets a bearer Authorization header.
func WithBearer(token string) RequestOption {
	return func(rc *requestConfig) {
		rc.header.Set("Authorization", "Bearer "+token)
	}
}

// WithBasicAuth sets HTTP basic credentials.
func WithBasicAuth(user, pass string) RequestOption {
	return func(rc *requestConfig) {
		rc.user, rc.pass, rc.basic = user, pass, true
	}
}

// WithHeader sets an arbitrary request header.
func WithHeader(key, value string) RequestOption {
	return func(rc *requestConfig) {
		rc.header.Set(key, value)
	}
}

// WithForm sends the body as application/x-www-form-urlencoded instead of JSON.
func WithForm(form url.Values) RequestOption {
	return func(rc *requestConfig) {
		rc.form = form
	}
}

// WithQuery appends query parameters.
func WithQuery(query url.Values) RequestOption {
	return func(rc *requestConfig) {
		rc.query = query
	}
}

// Do sends body (JSON-encoded unless WithForm is used) and decodes a 2xx
// response into out. Non-2xx responses come back as *APIError.
func (c *Client) Do(ctx context.Context, method, path string, body any, out any, opts ...RequestOption) error {
	rc := &requestConfig{header: http.Header{}}
	for _, opt := range opts {
		opt(rc)
	}

	target := c.baseURL + path
	if len(rc.query) > 0 {
		target += "?" + rc.query.Encode()
	}

	var reader io.Reader
	contentType := ""
	switch {
	case rc.form != nil:
		reader = strings.NewReader(rc.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case body != nil:
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encoding request body: %w", c.service, err)
		}
		reader = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", c.service, err)
	}
	for key, values := range rc.header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if rc.basic {
		req.SetBasicAuth(rc.user, rc.pass)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %s %s: %w", c.service, method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s: reading response body: %w", c.service, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(c.service, resp.StatusCode, payload)
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", c.service, err)
	}
	return nil
}
