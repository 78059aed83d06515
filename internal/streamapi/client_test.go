package streamapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/herald/internal/request"
	"github.com/MikeSquared-Agency/herald/internal/sse"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sessionRequest(t *testing.T) *request.SessionRequest {
	t.Helper()
	req, err := request.Build("promote our sale", request.Toggles{}, time.Now())
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return req
}

func TestOpen_StreamsEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("expected Accept text/event-stream, got %q", r.Header.Get("Accept"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected Content-Type application/json, got %q", r.Header.Get("Content-Type"))
		}

		var req request.SessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Message != "promote our sale" {
			t.Errorf("unexpected message %q", req.Message)
		}
		if len(req.Channel) != 1 || req.Channel[0] != "web" {
			t.Errorf("unexpected channels %v", req.Channel)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range []string{
			"data: {\"type\":\"start\",\"message\":\"go\"}\r\n\r\n",
			"data: {\"type\":\"chunk\",\"content\":\"Hel",
			"lo\",\"progress\":40.0}\r\n\r\n",
			"data: {\"type\":\"complete\"}\r\n\r\n",
		} {
			io.WriteString(w, line)
			flusher.Flush()
		}
	}))
	defer server.Close()

	c := NewClient(server.URL, discardLogger())
	stream, err := c.Open(context.Background(), sessionRequest(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer stream.Close()

	var types []sse.Type
	var content string
	for {
		evt, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		types = append(types, evt.Type)
		if evt.Type == sse.TypeChunk {
			content = evt.Content
		}
	}

	if len(types) != 3 || types[0] != sse.TypeStart || types[2] != sse.TypeComplete {
		t.Errorf("unexpected event sequence %v", types)
	}
	if content != "Hello" {
		t.Errorf("expected chunk content Hello, got %q", content)
	}
}

func TestOpen_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, "overloaded")
	}))
	defer server.Close()

	c := NewClient(server.URL, discardLogger())
	_, err := c.Open(context.Background(), sessionRequest(t))

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", statusErr.StatusCode)
	}
	if statusErr.Body != "overloaded" {
		t.Errorf("expected body snippet, got %q", statusErr.Body)
	}
}

func TestOpen_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := NewClient(url, discardLogger())
	if _, err := c.Open(context.Background(), sessionRequest(t)); err == nil {
		t.Fatal("expected error for closed server")
	}
}

func TestOpen_CancelReleasesStream(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"type\":\"start\"}\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(server.URL, discardLogger())
	stream, err := c.Open(ctx, sessionRequest(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer stream.Close()

	if _, err := stream.Next(); err != nil {
		t.Fatalf("expected start event, got %v", err)
	}

	cancel()
	if _, err := stream.Next(); err == nil || err == io.EOF {
		t.Fatalf("expected cancellation error, got %v", err)
	}
}
