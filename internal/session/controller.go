package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/herald/internal/chat"
	"github.com/MikeSquared-Agency/herald/internal/launch"
	"github.com/MikeSquared-Agency/herald/internal/request"
	"github.com/MikeSquared-Agency/herald/internal/sse"
)

var (
	ErrStreamInProgress = errors.New("a response is still streaming")
	ErrClosed           = errors.New("session closed")
	ErrIncompleteStream = errors.New("stream ended before completion")
)

// Opener opens the response stream for one submission.
type Opener interface {
	Open(ctx context.Context, req *request.SessionRequest) (*sse.Stream, error)
}

// Exchange identifies the two messages a submission created.
// Done yields the stream's terminal error (nil on a completed reply) and is then closed.
type Exchange struct {
	UserMessageID      string
	AssistantMessageID string
	Done               <-chan error
}

// Controller owns one chat session: its history, the open stream and the launch coordinator.
type Controller struct {
	id       string
	history  *chat.History
	launcher *launch.Coordinator
	opener   Opener
	logger   *slog.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	openID       string
	cancelStream context.CancelFunc
	closed       bool
	handoffUsed  bool
}

func NewController(id string, opener Opener, dispatcher launch.Dispatcher, logger *slog.Logger) *Controller {
	logger = logger.With("session_id", id)
	h := chat.NewHistory()
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		id:       id,
		history:  h,
		launcher: launch.NewCoordinator(id, h, dispatcher, logger),
		opener:   opener,
		logger:   logger,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *Controller) ID() string { return c.id }

func (c *Controller) History() *chat.History { return c.history }

func (c *Controller) Launcher() *launch.Coordinator { return c.launcher }

// Messages returns the current history in order.
func (c *Controller) Messages() []chat.Message { return c.history.Snapshot() }

// Streaming reports whether an assistant message is open.
func (c *Controller) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openID != ""
}

// Submit validates the query, appends the user turn and an open assistant turn,
// and streams the reply in the background. It is rejected with
// ErrStreamInProgress while another reply is open. Validation errors leave
// the history untouched.
func (c *Controller) Submit(query string, toggles request.Toggles) (Exchange, error) {
	req, err := request.Build(query, toggles, c.now())
	if err != nil {
		return Exchange{}, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Exchange{}, ErrClosed
	}
	if c.openID != "" {
		c.mu.Unlock()
		return Exchange{}, ErrStreamInProgress
	}

	user := chat.NewUserMessage(req.Message, c.now())
	assistant := chat.NewAssistantMessage(c.now())
	if err := c.history.Append(user); err != nil {
		c.mu.Unlock()
		return Exchange{}, fmt.Errorf("append user message: %w", err)
	}
	if err := c.history.Append(assistant); err != nil {
		c.mu.Unlock()
		return Exchange{}, fmt.Errorf("append assistant message: %w", err)
	}

	streamCtx, cancel := context.WithCancel(c.ctx)
	c.openID = assistant.ID
	c.cancelStream = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		defer c.wg.Done()
		defer close(done)
		done <- c.stream(streamCtx, cancel, req, chat.NewTurn(c.history, assistant.ID))
	}()

	c.logger.Info("query submitted", "message_id", assistant.ID, "channels", req.Channel, "sources", len(req.DataSource))
	return Exchange{UserMessageID: user.ID, AssistantMessageID: assistant.ID, Done: done}, nil
}

// Send submits and waits for the reply to finish. Cancelling ctx abandons the stream.
func (c *Controller) Send(ctx context.Context, query string, toggles request.Toggles) (Exchange, error) {
	ex, err := c.Submit(query, toggles)
	if err != nil {
		return ex, err
	}
	select {
	case err = <-ex.Done:
	case <-ctx.Done():
		c.abort(ex.AssistantMessageID)
		err = <-ex.Done
	}
	return ex, err
}

// Resume submits the handoff passed from a prior screen. Only the first call
// with a non-empty query does anything.
func (c *Controller) Resume(h Handoff) (Exchange, bool, error) {
	c.mu.Lock()
	if c.handoffUsed || h.Query == "" {
		c.mu.Unlock()
		return Exchange{}, false, nil
	}
	c.handoffUsed = true
	c.mu.Unlock()

	ex, err := c.Submit(h.Query, h.Toggles)
	return ex, err == nil, err
}

// Launch dispatches the campaign of an assistant message and waits for it.
func (c *Controller) Launch(ctx context.Context, messageID string) error {
	return c.launcher.Launch(ctx, messageID)
}

// StartLaunch dispatches in the background, detached from any request context.
func (c *Controller) StartLaunch(messageID string) (<-chan error, error) {
	return c.launcher.Start(context.Background(), messageID)
}

// Close abandons any open stream and waits for it to release the transport.
// The abandoned message is finalized with the fallback reply, so the history
// never keeps a streaming message after Close returns.
// Launches already in flight are left to settle on their own.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.logger.Info("session closed")
}

func (c *Controller) abort(messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openID == messageID && c.cancelStream != nil {
		c.cancelStream()
	}
}

func (c *Controller) stream(ctx context.Context, cancel context.CancelFunc, req *request.SessionRequest, turn *chat.Turn) error {
	defer cancel()
	defer c.release(turn.MessageID())

	start := time.Now()
	stream, err := c.opener.Open(ctx, req)
	if err != nil {
		if c.ctx.Err() != nil {
			turn.Fail(req.Message)
			return ErrClosed
		}
		c.logger.Error("failed to open stream", "message_id", turn.MessageID(), "error", err)
		turn.Fail(req.Message)
		return err
	}
	defer stream.Close()

	events := 0
	for !turn.Done() {
		evt, err := stream.Next()
		if err != nil && c.ctx.Err() != nil {
			c.logger.Info("stream abandoned", "message_id", turn.MessageID(), "events", events)
			turn.Fail(req.Message)
			return ErrClosed
		}
		if err == io.EOF {
			c.logger.Warn("stream ended before completion", "message_id", turn.MessageID(), "events", events)
			turn.Fail(req.Message)
			return ErrIncompleteStream
		}
		if err != nil {
			c.logger.Error("stream read failed", "message_id", turn.MessageID(), "events", events, "error", err)
			turn.Fail(req.Message)
			return fmt.Errorf("read stream: %w", err)
		}

		events++
		if !turn.Apply(evt) {
			c.logger.Debug("ignored stream event", "message_id", turn.MessageID(), "type", evt.Type)
		}
	}

	c.logger.Info("stream completed", "message_id", turn.MessageID(), "events", events, "duration", time.Since(start))
	return nil
}

func (c *Controller) release(messageID string) {
	c.mu.Lock()
	if c.openID == messageID {
		c.openID = ""
		c.cancelStream = nil
	}
	c.mu.Unlock()
}
