package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/greentic-ai-org/greentic-gui/pkg/transport"

// maxErrorBodyBytes limits how much of a failed response body is kept in the error message.
const maxErrorBodyBytes = 500

// Error is the uniform transport failure: a network-level error, a
// non-success HTTP status, or an undecodable response body. Status is zero
// when the failure happened before any response arrived.
type Error struct {
	URL    string
	Method string
	Status int
	Err    error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("transport: %s %s: status %d: %v", e.Method, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("transport: %s %s: %v", e.Method, e.URL, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As
func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is or wraps a transport failure and
// returns it.
func IsTransportError(err error) (*Error, bool) {
	var te *Error
	ok := errors.As(err, &te)
	return te, ok
}

// Client issues JSON requests against the configured backend endpoints.
// The session cookie set by the backend is carried by the client's cookie
// jar; the transport itself never inspects or manages cookies. It performs
// no retries and enforces no timeout of its own: the caller's context is
// the only deadline mechanism.
type Client struct {
	httpClient *http.Client
	tracer     trace.Tracer
	netLog     *LogTransport
}

// Options configures a transport client.
type Options struct {
	// HTTPClient overrides the default client. When nil a client with a
	// fresh cookie jar is constructed.
	HTTPClient *http.Client
	// NetworkLogPath enables the jsonl request log when non-empty.
	NetworkLogPath string
}

// New creates a transport client.
func New(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		httpClient = &http.Client{Jar: jar}
	}

	c := &Client{
		httpClient: httpClient,
		tracer:     otel.Tracer(tracerName),
	}

	if opts.NetworkLogPath != "" {
		netLog, err := NewLogTransport(httpClient.Transport, opts.NetworkLogPath)
		if err != nil {
			return nil, fmt.Errorf("opening network log: %w", err)
		}
		c.netLog = netLog
		httpClient.Transport = netLog
	}

	return c, nil
}

// Close releases the network log, if one was enabled.
func (c *Client) Close() error {
	if c.netLog != nil {
		return c.netLog.Close()
	}
	return nil
}

// GetJSON issues a GET request and decodes the JSON response body.
func (c *Client) GetJSON(ctx context.Context, url string) (any, error) {
	return c.do(ctx, http.MethodGet, url, nil)
}

// PostJSON issues a POST request with a JSON-encoded body and decodes the
// JSON response body.
func (c *Client) PostJSON(ctx context.Context, url string, body any) (any, error) {
	return c.do(ctx, http.MethodPost, url, body)
}

func (c *Client) do(ctx context.Context, method, url string, body any) (any, error) {
	ctx, span := c.tracer.Start(ctx, "gui.transport.request",
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", url),
		))
	defer span.End()

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, c.fail(span, &Error{URL: url, Method: method, Err: fmt.Errorf("encoding request body: %w", err)})
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, c.fail(span, &Error{URL: url, Method: method, Err: err})
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(span, &Error{URL: url, Method: method, Err: err})
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, c.fail(span, &Error{
			URL:    url,
			Method: method,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s (%s)", resp.Status, bytes.TrimSpace(snippet)),
		})
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(span, &Error{URL: url, Method: method, Status: resp.StatusCode, Err: fmt.Errorf("reading response body: %w", err)})
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, c.fail(span, &Error{URL: url, Method: method, Status: resp.StatusCode, Err: fmt.Errorf("decoding response body: %w", err)})
	}

	return decoded, nil
}

func (c *Client) fail(span trace.Span, terr *Error) error {
	span.RecordError(terr)
	span.SetStatus(otelcodes.Error, terr.Err.Error())
	return terr
}
