package providertest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/tripwire/internal/provider"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

func pendingExecution(id, strategyID string, created time.Time) types.Execution {
	return types.Execution{
		ID:         id,
		StrategyID: strategyID,
		OwnerID:    "owner",
		EventID:    "ev-1",
		Action:     types.Action{Type: types.ActionBridgeGasless, Asset: "USDC", Amount: "5", SourceChain: "arb-sepolia", DestinationChain: "base-sepolia"},
		Status:     types.ExecutionPending,
		CreatedAt:  created.UTC().Truncate(time.Millisecond),
	}
}

// TestExecutionFinalizeOnce verifies that an execution is finalized exactly once.
func TestExecutionFinalizeOnce(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	e := pendingExecution("ct-exec-final", "ct-exec-strat", time.Now())
	require.NoError(t, prov.CreateExecution(ctx, e))

	got, err := prov.GetExecution(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionPending, got.Status)

	done := time.Now().UTC().Truncate(time.Millisecond)
	e.Status = types.ExecutionError
	e.ErrorKind = types.ErrMintFailed
	e.ErrorDetail = "mint reverted"
	e.BurnTxHash = "0xburn"
	e.CompletedAt = &done
	e.Phases = []types.TransferPhase{types.PhaseInitialized, types.PhaseFailed}
	require.NoError(t, prov.FinalizeExecution(ctx, e))

	got, err = prov.GetExecution(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionError, got.Status)
	assert.Equal(t, types.ErrMintFailed, got.ErrorKind)
	assert.Equal(t, "0xburn", got.BurnTxHash)
	assert.Empty(t, got.MintTxHash)
	assert.Equal(t, e.Phases, got.Phases)

	e.Status = types.ExecutionCompleted
	err = prov.FinalizeExecution(ctx, e)
	assert.ErrorIs(t, err, provider.ErrAlreadyFinalized)

	got, err = prov.GetExecution(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionError, got.Status, "finalized record must not change")

	e.ID = "ct-exec-pending-final"
	e.Status = types.ExecutionPending
	assert.Error(t, prov.FinalizeExecution(ctx, e))
}

// TestExecutionDuplicateCreate verifies IDs are never reused.
func TestExecutionDuplicateCreate(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	e := pendingExecution("ct-exec-dup", "ct-exec-strat-dup", time.Now())
	require.NoError(t, prov.CreateExecution(ctx, e))
	assert.ErrorIs(t, prov.CreateExecution(ctx, e), provider.ErrExists)
}

// TestExecutionListNewestFirst verifies per-strategy listing order and limit.
func TestExecutionListNewestFirst(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)
	for i := 0; i < 4; i++ {
		e := pendingExecution(fmt.Sprintf("ct-exec-list-%d", i), "ct-exec-strat-list", base.Add(time.Duration(i)*time.Second))
		require.NoError(t, prov.CreateExecution(ctx, e))
	}
	require.NoError(t, prov.CreateExecution(ctx, pendingExecution("ct-exec-other", "ct-exec-strat-other", base)))

	list, err := prov.ListExecutions(ctx, "ct-exec-strat-list", 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "ct-exec-list-3", list[0].ID)
	assert.Equal(t, "ct-exec-list-1", list[2].ID)
}
