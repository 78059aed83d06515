package campaign

import (
	"fmt"
	"strings"
)

// Channel is a delivery channel a campaign proposal can be dispatched to.
type Channel string

const (
	ChannelEmail    Channel = "Email"
	ChannelSMS      Channel = "SMS"
	ChannelWhatsApp Channel = "WhatsApp"
)

// ParseChannel matches s against the known channels, ignoring case.
func ParseChannel(s string) (Channel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "email":
		return ChannelEmail, true
	case "sms":
		return ChannelSMS, true
	case "whatsapp":
		return ChannelWhatsApp, true
	}
	return "", false
}

// Audience is one recipient of a campaign.
type Audience struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ActionableData is a campaign proposal embedded in an assistant reply.
type ActionableData struct {
	Time     string     `json:"time"`
	Message  string     `json:"message"`
	Channel  string     `json:"channel"`
	Audience []Audience `json:"audience"`
}

// Clone returns a deep copy so callers never share the audience slice.
func (a *ActionableData) Clone() *ActionableData {
	if a == nil {
		return nil
	}
	c := *a
	c.Audience = append([]Audience(nil), a.Audience...)
	return &c
}

// RecipientLabel renders "N recipient" or "N recipients".
func RecipientLabel(n int) string {
	if n == 1 {
		return "1 recipient"
	}
	return fmt.Sprintf("%d recipients", n)
}
