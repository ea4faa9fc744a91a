package utils

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opensesh/sesh/providers/observability"
)

// DoPostStream performs an HTTP POST request and returns the raw response with body
// left open for SSE reading. The caller is responsible for closing the response body
// when done reading. On non-2xx responses the body is read and closed, and an
// *HTTPStatusError is returned.
func DoPostStream(ctx context.Context, client *http.Client, url string, payload []byte, headers ...HeaderOption) (*http.Response, error) {
	span := observability.SpanFromContext(ctx)

	httpClient := client
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if span != nil {
		span.AddEvent("http.stream_request.prepared",
			observability.String(observability.AttrHTTPMethod, http.MethodPost),
			observability.String(observability.AttrHTTPURL, url),
			observability.Int(observability.AttrHTTPRequestBodySize, len(payload)),
		)
	}

	req, err := newJSONRequest(ctx, url, payload, "text/event-stream", headers)
	if err != nil {
		return nil, err
	}

	requestStart := time.Now()
	response, err := httpClient.Do(req)
	requestDuration := time.Since(requestStart)

	if err != nil {
		if span != nil {
			span.AddEvent("http.stream_request.error",
				observability.Error(err),
				observability.Duration(observability.AttrHTTPRequestDuration, requestDuration),
			)
		}
		return response, fmt.Errorf("error sending stream request: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		defer CloseWithLog(response.Body)
		errorBody, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseBodySize))
		if readErr != nil {
			return response, fmt.Errorf("non-2xx status %d (failed to read body: %w)", response.StatusCode, readErr)
		}
		return response, &HTTPStatusError{StatusCode: response.StatusCode, Header: response.Header, Body: errorBody}
	}

	if span != nil {
		span.AddEvent("http.stream_response.started",
			observability.Int(observability.AttrHTTPStatusCode, response.StatusCode),
			observability.Duration(observability.AttrHTTPRequestDuration, requestDuration),
		)
	}

	return response, nil
}

// maxSSELineSize is the maximum size of a single SSE line (1 MB).
// The default bufio.Scanner limit is 64 KiB, which is too small for
// large SSE events such as tool-call arguments or long completions.
// If a line exceeds this limit Next() returns a wrapped bufio.ErrTooLong.
const maxSSELineSize = 1 * 1024 * 1024

// ErrStreamDone is returned by SSEScanner.Next when the literal [DONE]
// sentinel is read. It is distinct from io.EOF so callers can tell a clean
// end of stream from the connection simply closing.
var ErrStreamDone = errors.New("sse: [DONE] sentinel")

// SSEFrame is one dispatched Server-Sent Event. Event is empty when the
// server sent no "event:" field.
type SSEFrame struct {
	Event string
	Data  string
}

// SSEScanner reads Server-Sent Events from an io.Reader.
// It handles multi-line data fields, skips comments and empty lines,
// and detects the [DONE] sentinel used by OpenAI-compatible APIs.
type SSEScanner struct {
	scanner *bufio.Scanner
}

// NewSSEScanner creates an SSEScanner that reads SSE events from the given reader.
func NewSSEScanner(reader io.Reader) *SSEScanner {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)
	return &SSEScanner{
		scanner: scanner,
	}
}

// Next returns the next SSE frame.
// Returns ErrStreamDone when the [DONE] sentinel is encountered and io.EOF
// when the reader is exhausted. Any other error comes from the underlying
// reader (dropped connection, cancelled context, oversized line).
//
// Multi-line data fields (multiple consecutive "data:" lines) are joined
// with newlines into a single payload string.
func (sseScanner *SSEScanner) Next() (SSEFrame, error) {
	var dataLines []string
	var event string

	for sseScanner.scanner.Scan() {
		line := sseScanner.scanner.Text()

		// Empty line dispatches the accumulated event
		if line == "" {
			if len(dataLines) > 0 {
				return SSEFrame{Event: event, Data: strings.Join(dataLines, "\n")}, nil
			}
			event = ""
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		if data, ok := strings.CutPrefix(line, "data:"); ok {
			data = strings.TrimSpace(data)
			if data == "[DONE]" {
				return SSEFrame{}, ErrStreamDone
			}
			dataLines = append(dataLines, data)
			continue
		}

		if name, ok := strings.CutPrefix(line, "event:"); ok {
			event = strings.TrimSpace(name)
			continue
		}

		// id: and retry: are not used by any vendor
	}

	if err := sseScanner.scanner.Err(); err != nil {
		return SSEFrame{}, fmt.Errorf("SSE scanner error: %w", err)
	}

	// Trailing event without a final blank line
	if len(dataLines) > 0 {
		return SSEFrame{Event: event, Data: strings.Join(dataLines, "\n")}, nil
	}

	return SSEFrame{}, io.EOF
}
