package campaign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DispatchError is a non-success answer from a channel destination.
type DispatchError struct {
	Status int
	Detail string
}

func (e *DispatchError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("dispatch failed %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("dispatch failed %d", e.Status)
}

// Receipt is what a destination returns for an accepted campaign.
type Receipt struct {
	Channel    Channel `json:"-"`
	CampaignID string  `json:"campaign_id,omitempty"`
	Status     string  `json:"status,omitempty"`
	Recipients int     `json:"-"`
}

type dispatchRequest struct {
	Time     string     `json:"time"`
	Message  string     `json:"message"`
	Channel  string     `json:"channel"`
	Audience []Audience `json:"audience"`
}

// Dispatcher sends approved campaigns to their channel destination.
type Dispatcher struct {
	router Router
	client *http.Client
	logger *slog.Logger
}

func NewDispatcher(router Router, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		router: router,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Dispatch posts the proposal to the destination for its channel.
func (d *Dispatcher) Dispatch(ctx context.Context, data ActionableData) (*Receipt, error) {
	ch, dest, err := d.router.Resolve(data.Channel)
	if err != nil {
		return nil, err
	}

	audience := data.Audience
	if audience == nil {
		audience = []Audience{}
	}
	body, err := json.Marshal(dispatchRequest{
		Time:     data.Time,
		Message:  data.Message,
		Channel:  strings.ToLower(string(ch)),
		Audience: audience,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal dispatch payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dispatch %s: %w", ch, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &DispatchError{Status: resp.StatusCode, Detail: parseDetail(respBody)}
	}

	receipt := Receipt{Channel: ch, Recipients: len(data.Audience)}
	if len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, &receipt); err != nil {
			d.logger.Debug("dispatch response is not a receipt", "channel", ch, "error", err)
		}
	}

	d.logger.Info("campaign dispatched", "channel", ch, "recipients", receipt.Recipients, "campaign_id", receipt.CampaignID)
	return &receipt, nil
}

// parseDetail pulls the human-readable detail out of an error body.
// FastAPI style bodies carry either a string or a list of validation errors.
func parseDetail(body []byte) string {
	var errResp struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(body, &errResp) != nil || len(errResp.Detail) == 0 {
		return ""
	}

	var s string
	if json.Unmarshal(errResp.Detail, &s) == nil {
		return s
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(errResp.Detail, &items) == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return string(errResp.Detail)
}
