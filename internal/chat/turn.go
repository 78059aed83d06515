package chat

import (
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/herald/internal/sse"
)

const (
	StartingPlaceholder = "⏳ Starting response..."
	EmptyReply          = "Response completed."
)

// FallbackReply is the body written when the stream fails before completing.
func FallbackReply(userText string) string {
	return fmt.Sprintf("Sorry, I encountered an error connecting to the server. Here's a fallback response to your message: \"%s\"", userText)
}

// Turn applies stream events to one assistant message.
// It is driven from a single goroutine, in event arrival order.
type Turn struct {
	id      string
	history *History

	acc      strings.Builder
	started  bool
	done     bool
	progress int
}

func NewTurn(h *History, messageID string) *Turn {
	return &Turn{id: messageID, history: h}
}

func (t *Turn) MessageID() string { return t.id }

// Done reports whether the turn reached a terminal state.
func (t *Turn) Done() bool { return t.done }

// Apply interprets evt. It returns false when the event changed nothing:
// the turn is terminal, the start is a repeat, or the type is unknown.
func (t *Turn) Apply(evt sse.Event) bool {
	if t.done {
		return false
	}

	switch evt.Type {
	case sse.TypeStart:
		if t.started {
			return false
		}
		t.started = true
		p := Patch{ActionableData: evt.ActionableData}
		if t.acc.Len() == 0 {
			body := StartingPlaceholder
			p.Body = &body
		}
		t.history.Update(t.id, p)
		return true

	case sse.TypeChunk:
		t.acc.WriteString(evt.Content)
		t.acc.WriteString(" ")
		body := strings.TrimSpace(t.acc.String())
		t.progress = max(t.progress, min(max(evt.Progress, 0), 100))
		progress := t.progress
		streaming := true
		t.history.Update(t.id, Patch{Body: &body, Progress: &progress, Streaming: &streaming})
		return true

	case sse.TypeComplete:
		t.done = true
		body := strings.TrimSpace(t.acc.String())
		if body == "" {
			body = EmptyReply
		}
		t.progress = 100
		progress := 100
		streaming := false
		t.history.Update(t.id, Patch{Body: &body, Progress: &progress, Streaming: &streaming})
		return true
	}
	return false
}

// Fail finalises the turn with the fallback reply for userText and marks it
// errored, so any proposal received before the failure is not offered.
// It is a no-op once the turn is terminal.
func (t *Turn) Fail(userText string) bool {
	if t.done {
		return false
	}
	t.done = true
	body := FallbackReply(userText)
	streaming := false
	errored := true
	t.history.Update(t.id, Patch{Body: &body, Streaming: &streaming, Errored: &errored})
	return true
}
