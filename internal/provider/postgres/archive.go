package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dwsmith1983/tripwire/pkg/types"
)

// UpsertExecution writes e regardless of its current state. It backs the
// archive mirror, where the primary store has already enforced the lifecycle.
func (s *Store) UpsertExecution(ctx context.Context, e types.Execution) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal execution: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO executions (id, strategy_id, owner_id, event_id, status, error_kind, burn_tx_hash, mint_tx_hash, data, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status       = EXCLUDED.status,
			error_kind   = EXCLUDED.error_kind,
			burn_tx_hash = EXCLUDED.burn_tx_hash,
			mint_tx_hash = EXCLUDED.mint_tx_hash,
			data         = EXCLUDED.data,
			completed_at = EXCLUDED.completed_at
	`, e.ID, e.StrategyID, e.OwnerID, e.EventID, string(e.Status), string(e.ErrorKind),
		e.BurnTxHash, e.MintTxHash, data, e.CreatedAt, e.CompletedAt)
	return err
}
