package campaign

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrUnknownChannel is returned by a strict Router for channels outside Email, SMS and WhatsApp.
var ErrUnknownChannel = errors.New("unknown campaign channel")

// Router maps a proposal's channel to the destination URL that dispatches it.
//
// Unrecognised channels fall back to the Email destination unless Strict is set,
// in which case they are rejected with ErrUnknownChannel.
type Router struct {
	Destinations map[Channel]string
	Strict       bool
	logger       *slog.Logger
}

func NewRouter(email, sms, whatsapp string, strict bool, logger *slog.Logger) Router {
	return Router{
		Destinations: map[Channel]string{
			ChannelEmail:    email,
			ChannelSMS:      sms,
			ChannelWhatsApp: whatsapp,
		},
		Strict: strict,
		logger: logger,
	}
}

// Resolve returns the canonical channel and its destination URL.
func (r Router) Resolve(channel string) (Channel, string, error) {
	ch, ok := ParseChannel(channel)
	if !ok {
		if r.Strict {
			return "", "", fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
		}
		if r.logger != nil {
			r.logger.Warn("unrecognised campaign channel, routing to email", "channel", channel)
		}
		ch = ChannelEmail
	}

	dest := r.Destinations[ch]
	if dest == "" {
		return "", "", fmt.Errorf("no destination configured for %s", ch)
	}
	return ch, dest, nil
}
