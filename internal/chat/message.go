package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/herald/internal/campaign"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// LaunchStatus tracks the campaign launch of an assistant message.
type LaunchStatus string

const (
	LaunchNone      LaunchStatus = "none"
	LaunchLaunching LaunchStatus = "launching"
	LaunchSucceeded LaunchStatus = "succeeded"
	LaunchFailed    LaunchStatus = "failed"
)

type LaunchState struct {
	Status     LaunchStatus `json:"status"`
	Recipients int          `json:"recipients,omitempty"`
	SettledAt  time.Time    `json:"settled_at,omitempty"`
	Detail     string       `json:"detail,omitempty"`
}

// Message is one conversation turn. Body holds the text as streamed;
// Content derives the displayed text from Body and the launch state.
type Message struct {
	ID                    string                   `json:"id"`
	Role                  Role                     `json:"role"`
	Body                  string                   `json:"body"`
	Timestamp             time.Time                `json:"timestamp"`
	Streaming             bool                     `json:"streaming"`
	Progress              int                      `json:"progress"`
	ActionableData        *campaign.ActionableData `json:"actionable_data,omitempty"`
	HasActionableCampaign bool                     `json:"has_actionable_campaign"`
	Errored               bool                     `json:"errored"`
	Launch                LaunchState              `json:"launch"`
}

// NewUserMessage creates a finished user turn.
func NewUserMessage(text string, now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Body:      strings.TrimSpace(text),
		Timestamp: now,
		Launch:    LaunchState{Status: LaunchNone},
	}
}

// NewAssistantMessage creates an empty, open assistant turn.
func NewAssistantMessage(now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Timestamp: now,
		Streaming: true,
		Launch:    LaunchState{Status: LaunchNone},
	}
}

// Content is the text shown for the message: the body followed by the
// campaign trailer once a proposal-carrying message has completed.
// A reply that failed keeps only its fallback body.
func (m Message) Content() string {
	if m.Streaming || m.Errored || m.ActionableData == nil {
		return m.Body
	}
	return m.Body + "\n\n" + m.trailer()
}

func (m Message) trailer() string {
	channel := m.ActionableData.Channel
	switch m.Launch.Status {
	case LaunchSucceeded:
		return fmt.Sprintf("✅ **%s campaign launched successfully!**\n📧 Sent to %s\n📅 %s",
			channel, campaign.RecipientLabel(m.Launch.Recipients), m.Launch.SettledAt.Format("Jan 2, 2006 3:04:05 PM"))
	case LaunchFailed:
		return fmt.Sprintf("❌ **Failed to launch %s campaign**\nPlease try again later.", channel)
	default:
		return fmt.Sprintf("🚀 **Launch %s campaign?**", channel)
	}
}

// Terminal reports whether the streaming pathway is done with the message.
func (m Message) Terminal() bool {
	return m.Role == RoleAssistant && !m.Streaming
}

func (m Message) clone() Message {
	m.ActionableData = m.ActionableData.Clone()
	return m
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	Body           *string
	Streaming      *bool
	Progress       *int
	ActionableData *campaign.ActionableData
	Errored        *bool
	Launch         *LaunchState
}

func (p Patch) apply(m *Message) {
	if p.Body != nil {
		m.Body = *p.Body
	}
	if p.Streaming != nil {
		m.Streaming = *p.Streaming
	}
	if p.Progress != nil {
		m.Progress = *p.Progress
	}
	// Actionable data is write-once and only ever attached to assistant turns.
	if p.ActionableData != nil && m.ActionableData == nil && m.Role == RoleAssistant {
		m.ActionableData = p.ActionableData.Clone()
		m.HasActionableCampaign = true
	}
	if p.Errored != nil {
		m.Errored = *p.Errored
	}
	if m.Errored {
		m.HasActionableCampaign = false
	}
	if p.Launch != nil {
		m.Launch = *p.Launch
	}
}
