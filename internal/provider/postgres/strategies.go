package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dwsmith1983/tripwire/internal/provider"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

// PutStrategy upserts a strategy.
func (s *Store) PutStrategy(ctx context.Context, st types.Strategy) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal strategy: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO strategies (id, owner_id, name, active, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			owner_id   = EXCLUDED.owner_id,
			name       = EXCLUDED.name,
			active     = EXCLUDED.active,
			data       = EXCLUDED.data,
			created_at = EXCLUDED.created_at,
			updated_at = NOW()
	`, st.ID, st.OwnerID, st.Name, st.Active, data, st.CreatedAt)
	return err
}

// GetStrategy reads a strategy by ID.
func (s *Store) GetStrategy(ctx context.Context, id string) (*types.Strategy, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM strategies WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("strategy %q: %w", id, provider.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var st types.Strategy
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal strategy: %w", err)
	}
	return &st, nil
}

// ListStrategies returns strategies ordered by creation time, then ID.
func (s *Store) ListStrategies(ctx context.Context, activeOnly bool) ([]types.Strategy, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT data FROM strategies
		WHERE ($1 = FALSE OR active)
		ORDER BY created_at, id
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Strategy
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var st types.Strategy
		if err := json.Unmarshal(data, &st); err != nil {
			return nil, fmt.Errorf("unmarshal strategy: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// SetStrategyActive flips a strategy's active flag in both the column and
// the stored document.
func (s *Store) SetStrategyActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE strategies
		SET active = $2,
			data = jsonb_set(data, '{active}', to_jsonb($2::boolean)),
			updated_at = NOW()
		WHERE id = $1
	`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("strategy %q: %w", id, provider.ErrNotFound)
	}
	return nil
}
