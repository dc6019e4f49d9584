package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/tripwire/internal/provider/providertest"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

func TestConformance(t *testing.T) {
	providertest.RunAll(t, New())
}

func TestStrategyIsCopied(t *testing.T) {
	s := New()
	st := types.Strategy{ID: "s1", Triggers: []types.Trigger{{Kind: types.EventSocial, Keywords: []string{"a"}}}}
	require.NoError(t, s.PutStrategy(context.Background(), st))
	st.Triggers[0].Keywords[0] = "mutated"

	got, err := s.GetStrategy(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Triggers[0].Keywords[0])
}
