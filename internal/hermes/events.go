package hermes

import (
	"time"

	"github.com/MikeSquared-Agency/herald/internal/chat"
	"github.com/MikeSquared-Agency/herald/internal/launch"
)

const (
	// SubjectMessageUpdated carries every append or update of a session's history.
	SubjectMessageUpdated = "herald.message.updated"
	// SubjectCampaignLaunched and SubjectCampaignFailed carry settled launches.
	SubjectCampaignLaunched = "herald.campaign.launched"
	SubjectCampaignFailed   = "herald.campaign.failed"
	// SubjectLaunchRequested lets other services approve a campaign.
	SubjectLaunchRequested = "herald.campaign.launch.requested"
	SubjectRegistered      = "herald.agent.registered"
)

// MessageEvent mirrors one message mutation, with the derived display content.
type MessageEvent struct {
	SessionID string       `json:"session_id"`
	Message   chat.Message `json:"message"`
	Content   string       `json:"content"`
	Timestamp time.Time    `json:"timestamp"`
}

func NewMessageEvent(sessionID string, m chat.Message) MessageEvent {
	return MessageEvent{
		SessionID: sessionID,
		Message:   m,
		Content:   m.Content(),
		Timestamp: time.Now().UTC(),
	}
}

// LaunchRequest asks herald to launch the campaign of a message.
type LaunchRequest struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
}

// OutcomeSubject picks the subject a settled launch is published on.
func OutcomeSubject(o launch.Outcome) string {
	if o.Status == chat.LaunchSucceeded {
		return SubjectCampaignLaunched
	}
	return SubjectCampaignFailed
}
