package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/opensesh/sesh/providers/observability"
)

// maxResponseBodySize is the maximum response body size (10 MB). Enforced via
// io.LimitReader to prevent unbounded memory allocation from rogue responses.
const maxResponseBodySize int64 = 10 * 1024 * 1024

// HeaderOption is a single request header applied after the defaults, so it
// can override Content-Type or Accept when a vendor needs to.
type HeaderOption struct {
	Key   string
	Value string
}

// HTTPStatusError is returned when the server answered with a non-2xx status.
// The body has already been read (bounded by maxResponseBodySize) and closed.
type HTTPStatusError struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("non-2xx status %d: %s", e.StatusCode, TruncateString(string(e.Body), DefaultMaxStringLength))
}

// CloseWithLog closes c and logs a warning when the close fails. It is meant
// for deferred body closes where the close error must not override the
// primary error of the caller.
func CloseWithLog(c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		slog.Warn("failed to close response body", "error", err.Error())
	}
}

// DoPostSync performs a synchronous HTTP POST with an already-encoded JSON
// payload and returns the raw response body.
//
// Error Handling Strategy:
//   - Transport errors (connection, TLS, timeout, cancellation) are wrapped and returned
//   - Non-2xx statuses return an *HTTPStatusError carrying the body and headers
//   - Response body close errors are logged but never override the primary error
func DoPostSync(ctx context.Context, client *http.Client, url string, payload []byte, headers ...HeaderOption) (*http.Response, []byte, error) {
	span := observability.SpanFromContext(ctx)

	httpClient := client
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if span != nil {
		span.AddEvent("http.request.prepared",
			observability.String(observability.AttrHTTPMethod, http.MethodPost),
			observability.String(observability.AttrHTTPURL, url),
			observability.Int(observability.AttrHTTPRequestBodySize, len(payload)),
		)
	}

	req, err := newJSONRequest(ctx, url, payload, "application/json", headers)
	if err != nil {
		return nil, nil, err
	}

	requestStart := time.Now()
	res, err := httpClient.Do(req)
	requestDuration := time.Since(requestStart)

	if err != nil {
		if span != nil {
			span.AddEvent("http.request.error",
				observability.Error(err),
				observability.Duration(observability.AttrHTTPRequestDuration, requestDuration),
			)
		}
		return res, nil, fmt.Errorf("error sending request: %w", err)
	}
	defer CloseWithLog(res.Body)

	respBody, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBodySize))
	if err != nil {
		return res, nil, fmt.Errorf("error reading response body: %w", err)
	}

	if span != nil {
		span.AddEvent("http.response.received",
			observability.Int(observability.AttrHTTPStatusCode, res.StatusCode),
			observability.Int(observability.AttrHTTPResponseBodySize, len(respBody)),
			observability.Duration(observability.AttrHTTPRequestDuration, requestDuration),
		)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return res, respBody, &HTTPStatusError{StatusCode: res.StatusCode, Header: res.Header, Body: respBody}
	}

	return res, respBody, nil
}

func newJSONRequest(ctx context.Context, url string, payload []byte, accept string, headers []HeaderOption) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	for _, header := range headers {
		req.Header.Set(header.Key, header.Value)
	}
	return req, nil
}
