// Package testutil provides shared test utilities for Tripwire.
package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dwsmith1983/tripwire/internal/provider"
	"github.com/dwsmith1983/tripwire/internal/provider/memory"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

// Compile-time interface satisfaction check.
var _ provider.Provider = (*MockProvider)(nil)

// MockProvider is an in-memory Provider with error injection and call
// counters for tests.
type MockProvider struct {
	*memory.Store

	mu          sync.Mutex
	AppendErr   error
	ListErr     error
	CreateErr   error
	FinalizeErr error
	// FinalizeHook, when set, is consulted before FinalizeErr.
	FinalizeHook func(types.Execution) error
	// HonorContext makes execution writes fail on a done context, as the
	// network-backed providers do.
	HonorContext bool
	finalizeLog  []types.Execution
	listCalls    atomic.Int64
}

// NewMockProvider creates a new in-memory mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{Store: memory.New()}
}

func (m *MockProvider) AppendEvent(ctx context.Context, ev types.Event) error {
	if m.AppendErr != nil {
		return m.AppendErr
	}
	return m.Store.AppendEvent(ctx, ev)
}

func (m *MockProvider) ListStrategies(ctx context.Context, activeOnly bool) ([]types.Strategy, error) {
	m.listCalls.Add(1)
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return m.Store.ListStrategies(ctx, activeOnly)
}

func (m *MockProvider) CreateExecution(ctx context.Context, e types.Execution) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	if m.HonorContext && ctx.Err() != nil {
		return ctx.Err()
	}
	return m.Store.CreateExecution(ctx, e)
}

func (m *MockProvider) FinalizeExecution(ctx context.Context, e types.Execution) error {
	if m.FinalizeHook != nil {
		if err := m.FinalizeHook(e); err != nil {
			return err
		}
	}
	if m.FinalizeErr != nil {
		return m.FinalizeErr
	}
	if m.HonorContext && ctx.Err() != nil {
		return ctx.Err()
	}
	if err := m.Store.FinalizeExecution(ctx, e); err != nil {
		return err
	}
	m.mu.Lock()
	m.finalizeLog = append(m.finalizeLog, e)
	m.mu.Unlock()
	return nil
}

// Finalized returns every successfully finalized execution in call order.
func (m *MockProvider) Finalized() []types.Execution {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Execution(nil), m.finalizeLog...)
}

// ListCalls returns how many times ListStrategies was called.
func (m *MockProvider) ListCalls() int64 { return m.listCalls.Load() }
