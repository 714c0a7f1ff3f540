package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"frame-relay/models"
)

// maxResponseBody caps how much of a server reply is kept for logging.
const maxResponseBody = 1024

// Response is what the relay keeps of a server reply.
type Response struct {
	StatusCode int
	Body       string
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport submits one request and waits for the reply. An error means
// the exchange itself failed (dial, write, read); any received status,
// including 4xx/5xx, is a Response.
type Transport interface {
	Post(ctx context.Context, uri string, headers []models.Header, body []byte) (*Response, error)
}

// HTTPTransport is the net/http Transport.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport returns a transport whose requests time out after
// timeout (0 means no client-side limit).
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{client: &http.Client{Timeout: timeout}}
}

// Post sends body to uri with the given headers.
func (t *HTTPTransport) Post(ctx context.Context, uri string, headers []models.Header, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for _, h := range headers {
		req.Header.Set(h.Name, h.Value)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", uri, err)
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", uri, err)
	}
	// Drain the rest so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	return &Response{StatusCode: resp.StatusCode, Body: string(buf)}, nil
}
