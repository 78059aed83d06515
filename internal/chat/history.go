package chat

import (
	"errors"
	"sync"
)

var ErrDuplicateID = errors.New("message id already in history")

// Observer is told about every appended or updated message.
// It receives a copy and runs outside the history lock.
type Observer func(Message)

// History is an insertion-ordered log of messages keyed by ID.
// Every mutation goes through its lock, so concurrent writers never race on a record.
type History struct {
	mu       sync.Mutex
	order    []string
	byID     map[string]*Message
	observer Observer
}

func NewHistory() *History {
	return &History{byID: make(map[string]*Message)}
}

// SetObserver installs o; pass nil to remove it.
func (h *History) SetObserver(o Observer) {
	h.mu.Lock()
	h.observer = o
	h.mu.Unlock()
}

func (h *History) Append(m Message) error {
	h.mu.Lock()
	if _, ok := h.byID[m.ID]; ok {
		h.mu.Unlock()
		return ErrDuplicateID
	}
	stored := m.clone()
	h.byID[m.ID] = &stored
	h.order = append(h.order, m.ID)
	obs := h.observer
	h.mu.Unlock()

	if obs != nil {
		obs(stored.clone())
	}
	return nil
}

// Update applies p to the message with id. Unknown ids are ignored and report false.
func (h *History) Update(id string, p Patch) bool {
	h.mu.Lock()
	m, ok := h.byID[id]
	if !ok {
		h.mu.Unlock()
		return false
	}
	p.apply(m)
	updated := m.clone()
	obs := h.observer
	h.mu.Unlock()

	if obs != nil {
		obs(updated)
	}
	return true
}

func (h *History) Get(id string) (Message, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.byID[id]
	if !ok {
		return Message{}, false
	}
	return m.clone(), true
}

// Snapshot returns copies of all messages in insertion order.
func (h *History) Snapshot() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.byID[id].clone())
	}
	return out
}

// Open returns the ID of the assistant message still streaming, if any.
func (h *History) Open() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.order) - 1; i >= 0; i-- {
		m := h.byID[h.order[i]]
		if m.Role == RoleAssistant && m.Streaming {
			return m.ID, true
		}
	}
	return "", false
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.order)
}

// Reset drops every message.
func (h *History) Reset() {
	h.mu.Lock()
	h.order = nil
	h.byID = make(map[string]*Message)
	h.mu.Unlock()
}
