package streamapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/MikeSquared-Agency/herald/internal/request"
	"github.com/MikeSquared-Agency/herald/internal/sse"
)

const DefaultURL = "http://localhost:8000/stream/chat"

// StatusError is a non-success answer when opening the stream.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("stream http error %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("stream http error %d", e.StatusCode)
}

// Client opens response streams against the remote chat service.
type Client struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewClient returns a client for url. The HTTP client has no overall
// timeout because streams stay open for as long as the service writes;
// callers bound a stream through its context.
func NewClient(url string, logger *slog.Logger) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		url:    url,
		client: &http.Client{},
		logger: logger,
	}
}

// Open posts req and returns the event stream. The stream must be closed by the caller;
// cancelling ctx also tears the connection down.
func (c *Client) Open(ctx context.Context, req *request.SessionRequest) (*sse.Stream, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}

	c.logger.Debug("stream opened", "url", c.url, "content_type", resp.Header.Get("Content-Type"))
	return sse.NewStream(resp.Body, sse.NewDecoder(c.logger)), nil
}
