package launch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/herald/internal/campaign"
	"github.com/MikeSquared-Agency/herald/internal/chat"
)

var (
	ErrMessageNotFound  = errors.New("message not found")
	ErrNoActionableData = errors.New("message has no campaign to launch")
	ErrNotTerminal      = errors.New("message is still streaming")
	ErrReplyFailed      = errors.New("reply failed before completing")
	ErrInFlight         = errors.New("campaign launch already in flight")
	ErrAlreadyLaunched  = errors.New("campaign already launched")
)

// Dispatcher delivers an approved campaign to its channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, data campaign.ActionableData) (*campaign.Receipt, error)
}

// Outcome describes a settled launch.
type Outcome struct {
	SessionID  string            `json:"session_id"`
	MessageID  string            `json:"message_id"`
	Channel    string            `json:"channel"`
	Recipients int               `json:"recipients"`
	Status     chat.LaunchStatus `json:"status"`
	Detail     string            `json:"detail,omitempty"`
	CampaignID string            `json:"campaign_id,omitempty"`
	SettledAt  time.Time         `json:"settled_at"`
}

// SettleHook runs after a launch settles and the history has been updated.
type SettleHook func(ctx context.Context, o Outcome)

// Coordinator drives campaign launches for the messages of one history.
// The in-flight set is the single source of truth for "is this launch running".
type Coordinator struct {
	sessionID  string
	history    *chat.History
	dispatcher Dispatcher
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
	hooks    []SettleHook
}

func NewCoordinator(sessionID string, h *chat.History, d Dispatcher, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		sessionID:  sessionID,
		history:    h,
		dispatcher: d,
		logger:     logger,
		now:        time.Now,
		inFlight:   make(map[string]struct{}),
	}
}

// OnSettle registers a hook called after every settled launch.
func (c *Coordinator) OnSettle(hook SettleHook) {
	c.mu.Lock()
	c.hooks = append(c.hooks, hook)
	c.mu.Unlock()
}

// Launch dispatches the campaign of messageID and waits for it to settle.
func (c *Coordinator) Launch(ctx context.Context, messageID string) error {
	done, err := c.Start(ctx, messageID)
	if err != nil {
		return err
	}
	return <-done
}

// Start claims messageID and dispatches in the background. Precondition
// failures (including ErrInFlight) are returned synchronously; the dispatch
// result arrives on the returned channel once the history is updated.
func (c *Coordinator) Start(ctx context.Context, messageID string) (<-chan error, error) {
	c.mu.Lock()
	if _, busy := c.inFlight[messageID]; busy {
		c.mu.Unlock()
		return nil, ErrInFlight
	}
	c.inFlight[messageID] = struct{}{}
	c.mu.Unlock()

	// Read after claiming: a launch that settled just before the claim is visible here.
	msg, err := c.check(messageID)
	if err != nil {
		c.release(messageID)
		return nil, err
	}

	c.history.Update(messageID, chat.Patch{Launch: &chat.LaunchState{Status: chat.LaunchLaunching}})
	c.logger.Info("launching campaign", "session_id", c.sessionID, "message_id", messageID, "channel", msg.ActionableData.Channel)

	done := make(chan error, 1)
	go func() {
		done <- c.run(ctx, messageID, *msg.ActionableData)
	}()
	return done, nil
}

func (c *Coordinator) check(messageID string) (chat.Message, error) {
	msg, ok := c.history.Get(messageID)
	switch {
	case !ok:
		return msg, ErrMessageNotFound
	case msg.ActionableData == nil:
		return msg, ErrNoActionableData
	case msg.Errored:
		return msg, ErrReplyFailed
	case msg.Streaming:
		return msg, ErrNotTerminal
	case msg.Launch.Status == chat.LaunchSucceeded:
		return msg, ErrAlreadyLaunched
	}
	return msg, nil
}

func (c *Coordinator) run(ctx context.Context, messageID string, data campaign.ActionableData) error {
	defer c.release(messageID)

	receipt, err := c.dispatcher.Dispatch(ctx, data)
	settled := c.now()

	outcome := Outcome{
		SessionID:  c.sessionID,
		MessageID:  messageID,
		Channel:    data.Channel,
		Recipients: len(data.Audience),
		SettledAt:  settled,
	}

	if err != nil {
		outcome.Status = chat.LaunchFailed
		outcome.Detail = Detail(err)
		c.history.Update(messageID, chat.Patch{Launch: &chat.LaunchState{
			Status:    chat.LaunchFailed,
			SettledAt: settled,
			Detail:    outcome.Detail,
		}})
		c.logger.Warn("campaign launch failed", "session_id", c.sessionID, "message_id", messageID, "error", err)
		c.settle(ctx, outcome)
		return fmt.Errorf("launch %s campaign: %w", data.Channel, err)
	}

	outcome.Status = chat.LaunchSucceeded
	if receipt != nil {
		outcome.CampaignID = receipt.CampaignID
		if receipt.Channel != "" {
			outcome.Channel = string(receipt.Channel)
		}
	}
	c.history.Update(messageID, chat.Patch{Launch: &chat.LaunchState{
		Status:     chat.LaunchSucceeded,
		Recipients: outcome.Recipients,
		SettledAt:  settled,
	}})
	c.logger.Info("campaign launched", "session_id", c.sessionID, "message_id", messageID, "recipients", outcome.Recipients)
	c.settle(ctx, outcome)
	return nil
}

func (c *Coordinator) release(messageID string) {
	c.mu.Lock()
	delete(c.inFlight, messageID)
	c.mu.Unlock()
}

func (c *Coordinator) settle(ctx context.Context, o Outcome) {
	c.mu.Lock()
	hooks := append([]SettleHook(nil), c.hooks...)
	c.mu.Unlock()

	for _, hook := range hooks {
		hook(context.WithoutCancel(ctx), o)
	}
}

// IsLaunching reports whether messageID has a launch in flight.
func (c *Coordinator) IsLaunching(messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[messageID]
	return ok
}

// Launching returns the message IDs with a launch in flight, sorted.
func (c *Coordinator) Launching() []string {
	c.mu.Lock()
	ids := make([]string, 0, len(c.inFlight))
	for id := range c.inFlight {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Detail extracts the human-readable part of a launch error.
func Detail(err error) string {
	var dErr *campaign.DispatchError
	if errors.As(err, &dErr) {
		return dErr.Detail
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
