package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "heimdall/pkg/domain"
	"heimdall/pkg/platform/sentinel"
)

// PostgresSink persists events to an append-only table. There are no UPDATE
// or DELETE paths; retention is an operator concern outside the controller.
type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// EnsureSchema creates the access_events table if it does not exist.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS access_events (
			id        UUID PRIMARY KEY,
			ts        TIMESTAMPTZ NOT NULL,
			tag_id    TEXT NOT NULL,
			member_id UUID,
			decision  TEXT NOT NULL,
			reason    TEXT NOT NULL,
			stale     BOOLEAN NOT NULL DEFAULT FALSE
		);
		CREATE INDEX IF NOT EXISTS access_events_ts_idx ON access_events (ts);
		CREATE INDEX IF NOT EXISTS access_events_member_id_idx ON access_events (member_id) WHERE member_id IS NOT NULL;
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: ensure audit schema: %v", sentinel.ErrStorage, err)
	}
	return nil
}

func (s *PostgresSink) Append(ctx context.Context, event AccessEvent) error {
	var memberID *uuid.UUID
	if event.MemberID != nil {
		u := uuid.UUID(*event.MemberID)
		memberID = &u
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access_events (id, ts, tag_id, member_id, decision, reason, stale)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.ID, event.Timestamp, string(event.TagID), memberID, event.Decision, event.Reason, event.Stale)
	if err != nil {
		return fmt.Errorf("%w: append access event %s: %v", sentinel.ErrStorage, event.ID, err)
	}
	return nil
}

// ListByMember returns the member's events, oldest first.
func (s *PostgresSink) ListByMember(ctx context.Context, memberID id.MemberID) ([]AccessEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, tag_id, member_id, decision, reason, stale
		FROM access_events WHERE member_id = $1 ORDER BY ts
	`, uuid.UUID(memberID))
	if err != nil {
		return nil, fmt.Errorf("%w: list access events for %s: %v", sentinel.ErrStorage, memberID, err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// ListRecent returns the newest limit events, oldest first.
func (s *PostgresSink) ListRecent(ctx context.Context, limit int) ([]AccessEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, tag_id, member_id, decision, reason, stale
		FROM (
			SELECT id, ts, tag_id, member_id, decision, reason, stale
			FROM access_events ORDER BY ts DESC LIMIT $1
		) recent ORDER BY ts
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list recent access events: %v", sentinel.ErrStorage, err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]AccessEvent, error) {
	var events []AccessEvent
	for rows.Next() {
		var (
			event    AccessEvent
			tagID    string
			memberID uuid.NullUUID
		)
		if err := rows.Scan(&event.ID, &event.Timestamp, &tagID, &memberID,
			&event.Decision, &event.Reason, &event.Stale); err != nil {
			return nil, fmt.Errorf("%w: scan access event: %v", sentinel.ErrStorage, err)
		}
		event.TagID = id.TagID(tagID)
		if memberID.Valid {
			m := id.MemberID(memberID.UUID)
			event.MemberID = &m
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list access events: %v", sentinel.ErrStorage, err)
	}
	return events, nil
}
