package request

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Data source names understood by the remote service.
const (
	SourceChatInterface = "chat_interface"
	SourceWebsite       = "website"
	SourceFacebookPage  = "facebook_page"
	SourceCRMs          = "crms"
)

// DefaultChannel is used when no delivery channel is enabled.
const DefaultChannel = "web"

var ErrEmptyQuery = errors.New("query is empty")

// ValidationError reports a toggle whose input is unusable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// SourceToggle is a URL-bearing data source switch.
type SourceToggle struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
}

// Channels are the delivery channel switches.
type Channels struct {
	Email    bool `json:"email"`
	SMS      bool `json:"sms"`
	WhatsApp bool `json:"whatsapp"`
	Push     bool `json:"push"`
}

// Toggles is the plain configuration produced by the search form.
type Toggles struct {
	Website      SourceToggle `json:"website"`
	FacebookPage SourceToggle `json:"facebook_page"`
	CRM          bool         `json:"crms"`
	Channels     Channels     `json:"channels"`
}

// SourceData carries the per-source payload; fields not relevant to a source stay empty.
type SourceData struct {
	Timestamp string `json:"timestamp"`
	UserInput string `json:"user_input,omitempty"`
	URL       string `json:"url,omitempty"`
	Enabled   bool   `json:"enabled,omitempty"`
}

type DataSource struct {
	Name string     `json:"name"`
	Data SourceData `json:"data"`
}

// SessionRequest is the document that opens one streamed exchange.
type SessionRequest struct {
	Message    string       `json:"message"`
	DataSource []DataSource `json:"data_source"`
	Channel    []string     `json:"channel"`
}

// Build validates the toggles and assembles the request for query.
// An enabled toggle with an unusable URL blocks the request with a *ValidationError.
func Build(query string, toggles Toggles, now time.Time) (*SessionRequest, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	ts := now.UTC().Format(time.RFC3339Nano)
	sources := []DataSource{{
		Name: SourceChatInterface,
		Data: SourceData{Timestamp: ts, UserInput: query},
	}}

	if toggles.Website.Enabled {
		u, err := validateURL(SourceWebsite, toggles.Website.URL)
		if err != nil {
			return nil, err
		}
		sources = append(sources, DataSource{Name: SourceWebsite, Data: SourceData{Timestamp: ts, URL: u}})
	}

	if toggles.FacebookPage.Enabled {
		u, err := validateURL(SourceFacebookPage, toggles.FacebookPage.URL)
		if err != nil {
			return nil, err
		}
		if !isFacebookURL(u) {
			return nil, &ValidationError{Field: SourceFacebookPage, Reason: "host must be facebook.com or fb.com"}
		}
		sources = append(sources, DataSource{Name: SourceFacebookPage, Data: SourceData{Timestamp: ts, URL: u}})
	}

	if toggles.CRM {
		sources = append(sources, DataSource{Name: SourceCRMs, Data: SourceData{Timestamp: ts, Enabled: true}})
	}

	return &SessionRequest{
		Message:    query,
		DataSource: sources,
		Channel:    toggles.Channels.list(),
	}, nil
}

func (c Channels) list() []string {
	var out []string
	if c.Email {
		out = append(out, "email")
	}
	if c.SMS {
		out = append(out, "sms")
	}
	if c.WhatsApp {
		out = append(out, "whatsapp")
	}
	if c.Push {
		out = append(out, "push")
	}
	if len(out) == 0 {
		out = append(out, DefaultChannel)
	}
	return out
}

func validateURL(field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &ValidationError{Field: field, Reason: "url is required"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", &ValidationError{Field: field, Reason: "not a valid url"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &ValidationError{Field: field, Reason: "url must use http or https"}
	}
	if u.Host == "" {
		return "", &ValidationError{Field: field, Reason: "url has no host"}
	}
	return raw, nil
}

func isFacebookURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return strings.Contains(host, "facebook.com") || strings.Contains(host, "fb.com")
}
