package sse

import (
	"encoding/json"
	"fmt"

	"github.com/MikeSquared-Agency/herald/internal/campaign"
)

// Type tags a stream event.
type Type string

const (
	TypeStart    Type = "start"
	TypeChunk    Type = "chunk"
	TypeComplete Type = "complete"
)

// Event is one decoded record of the response stream.
// Only the fields relevant to Type are populated.
type Event struct {
	Type           Type
	Message        string
	Content        string
	Progress       int
	ActionableData *campaign.ActionableData

	// Informational fields; they carry no state.
	Timestamp   string
	ChunkNumber int
	TotalWords  int
}

// wireEvent is the payload after the "data: " marker.
// Progress arrives as a float rounded to one decimal, e.g. 33.3.
type wireEvent struct {
	Type           Type                     `json:"type"`
	Message        string                   `json:"message"`
	Content        string                   `json:"content"`
	Progress       *float64                 `json:"progress"`
	ActionableData *campaign.ActionableData `json:"actionable_data"`
	Timestamp      string                   `json:"timestamp"`
	ChunkNumber    int                      `json:"chunk_number"`
	TotalWords     int                      `json:"total_words"`
}

func parseEvent(payload []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if w.Type == "" {
		return Event{}, fmt.Errorf("event without type")
	}

	evt := Event{
		Type:           w.Type,
		Message:        w.Message,
		Content:        w.Content,
		ActionableData: w.ActionableData,
		Timestamp:      w.Timestamp,
		ChunkNumber:    w.ChunkNumber,
		TotalWords:     w.TotalWords,
	}
	if w.Progress != nil {
		evt.Progress = int(*w.Progress)
	}
	return evt, nil
}
