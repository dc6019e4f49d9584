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

// CreateExecution inserts a PENDING execution. IDs are never reused.
func (s *Store) CreateExecution(ctx context.Context, e types.Execution) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal execution: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO executions (id, strategy_id, owner_id, event_id, status, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.StrategyID, e.OwnerID, e.EventID, string(e.Status), data, e.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("execution %q: %w", e.ID, provider.ErrExists)
	}
	return nil
}

// FinalizeExecution writes the terminal state of a PENDING execution.
func (s *Store) FinalizeExecution(ctx context.Context, e types.Execution) error {
	if err := provider.CheckFinal(e); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal execution: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE executions SET
			status       = $2,
			error_kind   = NULLIF($3, ''),
			burn_tx_hash = NULLIF($4, ''),
			mint_tx_hash = NULLIF($5, ''),
			data         = $6,
			completed_at = $7
		WHERE id = $1 AND status = 'PENDING'
	`, e.ID, string(e.Status), string(e.ErrorKind), e.BurnTxHash, e.MintTxHash, data, e.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.GetExecution(ctx, e.ID); err != nil {
		return err
	}
	return fmt.Errorf("execution %q: %w", e.ID, provider.ErrAlreadyFinalized)
}

// GetExecution reads an execution by ID.
func (s *Store) GetExecution(ctx context.Context, id string) (*types.Execution, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM executions WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("execution %q: %w", id, provider.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var e types.Execution
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal execution: %w", err)
	}
	return &e, nil
}

// ListExecutions returns a strategy's executions, newest first.
func (s *Store) ListExecutions(ctx context.Context, strategyID string, limit int) ([]types.Execution, error) {
	query := `
		SELECT data FROM executions
		WHERE strategy_id = $1
		ORDER BY created_at DESC, id DESC`
	args := []any{strategyID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Execution
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var e types.Execution
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal execution: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
