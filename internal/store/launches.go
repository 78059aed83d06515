package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/herald/internal/launch"
)

const defaultListLimit = 50

// LaunchRecord is one settled campaign launch.
type LaunchRecord struct {
	ID         uuid.UUID `json:"id"`
	SessionID  string    `json:"session_id"`
	MessageID  string    `json:"message_id"`
	Channel    string    `json:"channel"`
	Recipients int       `json:"recipients"`
	Status     string    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	CampaignID string    `json:"campaign_id,omitempty"`
	SettledAt  time.Time `json:"settled_at"`
}

// RecordLaunch writes a settled launch to the audit table.
func (s *Store) RecordLaunch(ctx context.Context, o launch.Outcome) (uuid.UUID, error) {
	id := uuid.New()
	settled := o.SettledAt
	if settled.IsZero() {
		settled = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO campaign_launches (id, session_id, message_id, channel, recipients, status, detail, campaign_id, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, o.SessionID, o.MessageID, o.Channel, o.Recipients, string(o.Status), o.Detail, o.CampaignID, settled,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert campaign launch: %w", err)
	}
	return id, nil
}

// ListLaunches returns the most recent settled launches, newest first.
func (s *Store) ListLaunches(ctx context.Context, limit int) ([]LaunchRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, message_id, channel, recipients, status, detail, campaign_id, settled_at
		FROM campaign_launches
		ORDER BY settled_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query campaign launches: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (LaunchRecord, error) {
		var r LaunchRecord
		err := row.Scan(&r.ID, &r.SessionID, &r.MessageID, &r.Channel, &r.Recipients, &r.Status, &r.Detail, &r.CampaignID, &r.SettledAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan campaign launches: %w", err)
	}
	return records, nil
}

// LaunchesForSession returns the settled launches of one session in settlement order.
func (s *Store) LaunchesForSession(ctx context.Context, sessionID string) ([]LaunchRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, message_id, channel, recipients, status, detail, campaign_id, settled_at
		FROM campaign_launches
		WHERE session_id = $1
		ORDER BY settled_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query session launches: %w", err)
	}

	records, err := pgx.CollectRows(rows, pgx.RowToStructByPos[LaunchRecord])
	if err != nil {
		return nil, fmt.Errorf("scan session launches: %w", err)
	}
	return records, nil
}
