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

func sampleStrategy(id string, created time.Time) types.Strategy {
	return types.Strategy{
		ID:      id,
		OwnerID: "owner-" + id,
		Name:    "strategy " + id,
		Triggers: []types.Trigger{
			{Kind: types.EventSocial, SourceAccount: "@acct", Keywords: []string{"bridge"}},
		},
		Actions: []types.Action{{
			Type: types.ActionBridgeGasless, Asset: "USDC", Amount: "5",
			SourceChain: "arb-sepolia", DestinationChain: "base-sepolia",
		}},
		EncryptedKey: "00ff",
		Active:       true,
		CreatedAt:    created.UTC().Truncate(time.Millisecond),
	}
}

// TestStrategyCRUD verifies put, get, overwrite and activation toggling.
func TestStrategyCRUD(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	s := sampleStrategy("ct-strat-crud", time.Now())
	require.NoError(t, prov.PutStrategy(ctx, s))

	got, err := prov.GetStrategy(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Name, got.Name)
	assert.Equal(t, s.Triggers, got.Triggers)
	assert.Equal(t, s.Actions, got.Actions)
	assert.Equal(t, "00ff", got.EncryptedKey)
	assert.True(t, got.Active)
	assert.True(t, s.CreatedAt.Equal(got.CreatedAt))

	s.Name = "renamed"
	require.NoError(t, prov.PutStrategy(ctx, s))
	got, err = prov.GetStrategy(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)

	require.NoError(t, prov.SetStrategyActive(ctx, s.ID, false))
	got, err = prov.GetStrategy(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
}

// TestStrategyListOrder verifies creation-order listing and the active filter.
func TestStrategyListOrder(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i := 2; i >= 0; i-- {
		s := sampleStrategy(fmt.Sprintf("ct-strat-order-%d", i), base.Add(time.Duration(i)*time.Second))
		s.Active = i != 1
		require.NoError(t, prov.PutStrategy(ctx, s))
	}

	all, err := prov.ListStrategies(ctx, false)
	require.NoError(t, err)
	ids := filterIDs(all, "ct-strat-order-")
	assert.Equal(t, []string{"ct-strat-order-0", "ct-strat-order-1", "ct-strat-order-2"}, ids)

	active, err := prov.ListStrategies(ctx, true)
	require.NoError(t, err)
	ids = filterIDs(active, "ct-strat-order-")
	assert.Equal(t, []string{"ct-strat-order-0", "ct-strat-order-2"}, ids)
}

func filterIDs(s []types.Strategy, prefix string) []string {
	var out []string
	for _, st := range s {
		if len(st.ID) >= len(prefix) && st.ID[:len(prefix)] == prefix {
			out = append(out, st.ID)
		}
	}
	return out
}

// TestNotFound verifies ErrNotFound on missing keys.
func TestNotFound(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	_, err := prov.GetStrategy(ctx, "ct-missing")
	assert.ErrorIs(t, err, provider.ErrNotFound)
	_, err = prov.GetExecution(ctx, "ct-missing")
	assert.ErrorIs(t, err, provider.ErrNotFound)
	assert.ErrorIs(t, prov.SetStrategyActive(ctx, "ct-missing", true), provider.ErrNotFound)
}
