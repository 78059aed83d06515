package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/herald/internal/chat"
	"github.com/MikeSquared-Agency/herald/internal/hermes"
	"github.com/MikeSquared-Agency/herald/internal/launch"
)

var ErrNotFound = errors.New("session not found")

// Publisher mirrors session activity onto the event bus.
type Publisher interface {
	Publish(subject string, data any) error
}

// Recorder persists settled launches.
type Recorder interface {
	RecordLaunch(ctx context.Context, o launch.Outcome) (uuid.UUID, error)
}

// Registry holds the live sessions of the process.
type Registry struct {
	opener     Opener
	dispatcher launch.Dispatcher
	publisher  Publisher
	recorder   Recorder
	logger     *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Controller
}

// NewRegistry creates a registry. publisher and recorder may be nil.
func NewRegistry(opener Opener, dispatcher launch.Dispatcher, publisher Publisher, recorder Recorder, logger *slog.Logger) *Registry {
	return &Registry{
		opener:     opener,
		dispatcher: dispatcher,
		publisher:  publisher,
		recorder:   recorder,
		logger:     logger,
		sessions:   make(map[string]*Controller),
	}
}

// Create opens a session and submits the handoff query, if any.
func (r *Registry) Create(h Handoff) (*Controller, *Exchange, error) {
	id := uuid.NewString()
	c := NewController(id, r.opener, r.dispatcher, r.logger)
	r.wire(c)

	r.mu.Lock()
	r.sessions[id] = c
	r.mu.Unlock()
	r.logger.Info("session opened", "session_id", id)

	ex, resumed, err := c.Resume(h)
	if err != nil {
		return c, nil, err
	}
	if !resumed {
		return c, nil, nil
	}
	return c, &ex, nil
}

func (r *Registry) wire(c *Controller) {
	id := c.ID()
	logger := r.logger.With("session_id", id)

	if r.publisher != nil {
		c.History().SetObserver(func(m chat.Message) {
			if err := r.publisher.Publish(hermes.SubjectMessageUpdated, hermes.NewMessageEvent(id, m)); err != nil {
				logger.Warn("failed to publish message update", "message_id", m.ID, "error", err)
			}
		})
	}

	c.Launcher().OnSettle(func(ctx context.Context, o launch.Outcome) {
		if r.recorder != nil {
			if _, err := r.recorder.RecordLaunch(ctx, o); err != nil {
				logger.Error("failed to record launch", "message_id", o.MessageID, "error", err)
			}
		}
		if r.publisher != nil {
			if err := r.publisher.Publish(hermes.OutcomeSubject(o), o); err != nil {
				logger.Warn("failed to publish launch outcome", "message_id", o.MessageID, "error", err)
			}
		}
	})
}

func (r *Registry) Get(id string) (*Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.sessions[id]
	return c, ok
}

// IDs returns the open session IDs, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Close removes the session and releases its stream.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	c, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	c.Close()
	return nil
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := make([]*Controller, 0, len(r.sessions))
	for _, c := range r.sessions {
		all = append(all, c)
	}
	r.sessions = make(map[string]*Controller)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range all {
		wg.Add(1)
		go func(c *Controller) {
			defer wg.Done()
			c.Close()
		}(c)
	}
	wg.Wait()
}

// HandleLaunchRequest is the event bus handler for remote launch approvals.
func (r *Registry) HandleLaunchRequest(subject string, data []byte) {
	var req hermes.LaunchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		r.logger.Warn("invalid launch request", "subject", subject, "error", err)
		return
	}

	c, ok := r.Get(req.SessionID)
	if !ok {
		r.logger.Warn("launch request for unknown session", "session_id", req.SessionID, "message_id", req.MessageID)
		return
	}
	if _, err := c.StartLaunch(req.MessageID); err != nil {
		r.logger.Warn("launch request rejected", "session_id", req.SessionID, "message_id", req.MessageID, "error", err)
		return
	}
	r.logger.Info("launch requested", "subject", subject, "session_id", req.SessionID, "message_id", req.MessageID)
}
