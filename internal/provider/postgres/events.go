package postgres

import (
	"context"

	"github.com/dwsmith1983/tripwire/pkg/types"
)

// AppendEvent archives an event.
func (s *Store) AppendEvent(ctx context.Context, ev types.Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO events (id, kind, source_account, content, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.ID, string(ev.Kind), ev.SourceAccount, ev.Content, ev.OccurredAt)
	return err
}

// ListEvents returns the most recently archived events, newest first.
func (s *Store) ListEvents(ctx context.Context, limit int) ([]types.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, COALESCE(source_account, ''), content, occurred_at
		FROM events
		ORDER BY seq DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Event
	for rows.Next() {
		var ev types.Event
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.SourceAccount, &ev.Content, &ev.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
