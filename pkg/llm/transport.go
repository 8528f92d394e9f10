package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// Request is a fully assembled provider request, ready to send. Adapters
// produce it; a Transport sends it. The body is an opaque byte payload so the
// transport never inspects provider wire formats.
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// Transport opens a streaming connection for a provider request. The returned
// body delivers raw stream bytes and must remain readable until closed.
// Cancelling ctx must abort an in-flight read without waiting for the next
// chunk to arrive.
type Transport interface {
	OpenStream(ctx context.Context, req *Request) (io.ReadCloser, error)
}

// HTTPTransport is the standard Transport over net/http.
type HTTPTransport struct {
	Client *http.Client
}

// NewHTTPTransport creates a transport with a default client. Streaming
// responses are long-lived, so no client-level timeout is set; the caller's
// context bounds the stream instead.
func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{Client: &http.Client{}}
}

// OpenStream sends the request and returns the response body on 200. Any
// other status drains the error body into the returned error.
func (t *HTTPTransport) OpenStream(ctx context.Context, req *Request) (io.ReadCloser, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("API request failed with status %d (failed to read error body: %w)", resp.StatusCode, readErr)
		}
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return resp.Body, nil
}
