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

// TestEventAppendAndList verifies appending events and listing newest first.
func TestEventAppendAndList(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 5; i++ {
		ev := types.Event{
			ID:            fmt.Sprintf("ct-event-%d", i),
			Kind:          types.EventSocial,
			SourceAccount: "@acct",
			Content:       fmt.Sprintf("post %d", i),
			OccurredAt:    now.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, prov.AppendEvent(ctx, ev))
		// Small delay to ensure unique event ordering
		time.Sleep(5 * time.Millisecond)
	}

	events, err := prov.ListEvents(ctx, 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "ct-event-4", events[0].ID)
	assert.Equal(t, "ct-event-2", events[2].ID)
	assert.Equal(t, "post 4", events[0].Content)
}
