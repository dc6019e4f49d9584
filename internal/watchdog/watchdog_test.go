package watchdog

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dwsmith1983/tripwire/internal/provider"
	"github.com/dwsmith1983/tripwire/internal/testutil"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type alertLog struct {
	mu     sync.Mutex
	alerts []types.Alert
}

func (a *alertLog) Dispatch(_ context.Context, al types.Alert) {
	a.mu.Lock()
	a.alerts = append(a.alerts, al)
	a.mu.Unlock()
}

func (a *alertLog) all() []types.Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]types.Alert(nil), a.alerts...)
}

func seed(t *testing.T, prov provider.Provider, execs ...types.Execution) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, prov.PutStrategy(ctx, types.Strategy{ID: "s1", Name: "s1", CreatedAt: now.Add(-time.Hour)}))
	for _, e := range execs {
		require.NoError(t, prov.CreateExecution(ctx, e))
	}
}

func pending(id string, age time.Duration) types.Execution {
	return types.Execution{
		ID:         id,
		StrategyID: "s1",
		Action:     types.Action{Type: types.ActionBridgeGasless},
		Status:     types.ExecutionPending,
		BurnTxHash: "0xburn-" + id,
		CreatedAt:  now.Add(-age),
	}
}

func TestCheckStaleExecutions_ClosesAbandoned(t *testing.T) {
	prov := testutil.NewMockProvider()
	seed(t, prov, pending("old", 45*time.Minute), pending("fresh", 5*time.Minute))
	alerts := &alertLog{}

	stale := CheckStaleExecutions(context.Background(), CheckOptions{
		Provider: prov, Alerts: alerts, Now: now, StaleAfter: 30 * time.Minute,
	})

	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].ExecutionID)
	assert.Equal(t, 45*time.Minute, stale[0].Age)

	got, err := prov.GetExecution(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionError, got.Status)
	assert.Equal(t, types.ErrUnknown, got.ErrorKind)
	assert.Contains(t, got.ErrorDetail, "abandoned")
	assert.Equal(t, "0xburn-old", got.BurnTxHash)
	require.NotNil(t, got.CompletedAt)

	fresh, err := prov.GetExecution(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionPending, fresh.Status)

	require.Len(t, alerts.all(), 1)
	assert.Equal(t, "s1", alerts.all()[0].StrategyID)
	assert.Equal(t, "0xburn-old", alerts.all()[0].Details["burnTxHash"])
}

func TestCheckStaleExecutions_IgnoresTerminal(t *testing.T) {
	prov := testutil.NewMockProvider()
	done := pending("done", 2*time.Hour)
	seed(t, prov, done)
	done.Status = types.ExecutionCompleted
	require.NoError(t, prov.FinalizeExecution(context.Background(), done))

	stale := CheckStaleExecutions(context.Background(), CheckOptions{Provider: prov, Now: now})
	assert.Empty(t, stale)
	assert.Len(t, prov.Finalized(), 1)
}

func TestCheckStaleExecutions_RaceWithDispatcher(t *testing.T) {
	prov := testutil.NewMockProvider()
	seed(t, prov, pending("old", time.Hour))
	prov.FinalizeErr = provider.ErrAlreadyFinalized
	alerts := &alertLog{}

	stale := CheckStaleExecutions(context.Background(), CheckOptions{Provider: prov, Alerts: alerts, Now: now})
	assert.Empty(t, stale)
	assert.Empty(t, alerts.all())
}

func TestCheckStaleExecutions_ListError(t *testing.T) {
	prov := testutil.NewMockProvider()
	prov.ListErr = errors.New("table unavailable")

	assert.Nil(t, CheckStaleExecutions(context.Background(), CheckOptions{Provider: prov, Now: now}))
}

func TestCheckStaleExecutions_DefaultThreshold(t *testing.T) {
	prov := testutil.NewMockProvider()
	seed(t, prov, pending("a", 29*time.Minute), pending("b", 31*time.Minute))

	stale := CheckStaleExecutions(context.Background(), CheckOptions{Provider: prov, Now: now})
	require.Len(t, stale, 1)
	assert.Equal(t, "b", stale[0].ExecutionID)
}

func TestWatchdog_StartStop(t *testing.T) {
	prov := testutil.NewMockProvider()
	seed(t, prov, pending("old", 24*time.Hour))

	w := New(prov, nil, slog.Default(), time.Hour, time.Minute)
	w.Start(context.Background())
	testutil.WaitFor(t, 2*time.Second, func() bool { return len(prov.Finalized()) == 1 }, "initial scan")
	w.Stop(context.Background())

	assert.Equal(t, types.ExecutionError, prov.Finalized()[0].Status)
}
