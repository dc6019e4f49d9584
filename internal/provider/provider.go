// Package provider defines the storage backend interface for Tripwire.
package provider

import (
	"context"
	"errors"
	"sort"

	"github.com/dwsmith1983/tripwire/pkg/types"
)

var (
	// ErrNotFound is returned when a keyed record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when creating a record whose ID is taken.
	ErrExists = errors.New("already exists")
	// ErrAlreadyFinalized is returned when finalizing an execution that is
	// no longer PENDING.
	ErrAlreadyFinalized = errors.New("execution already finalized")
)

// Provider is the storage backend interface.
type Provider interface {
	// Strategies are registered externally and read by the dispatcher.
	PutStrategy(ctx context.Context, s types.Strategy) error
	GetStrategy(ctx context.Context, id string) (*types.Strategy, error)
	// ListStrategies returns strategies ordered by creation time, then ID.
	ListStrategies(ctx context.Context, activeOnly bool) ([]types.Strategy, error)
	SetStrategyActive(ctx context.Context, id string, active bool) error

	// Event archive, append-only.
	AppendEvent(ctx context.Context, ev types.Event) error
	// ListEvents returns the most recent events, newest first.
	ListEvents(ctx context.Context, limit int) ([]types.Event, error)

	// Executions are created PENDING and finalized exactly once.
	CreateExecution(ctx context.Context, e types.Execution) error
	FinalizeExecution(ctx context.Context, e types.Execution) error
	GetExecution(ctx context.Context, id string) (*types.Execution, error)
	// ListExecutions returns a strategy's executions, newest first.
	ListExecutions(ctx context.Context, strategyID string, limit int) ([]types.Execution, error)

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ping(ctx context.Context) error
}

// SortStrategies orders strategies the way ListStrategies must return them.
func SortStrategies(s []types.Strategy) {
	sort.SliceStable(s, func(i, j int) bool {
		if !s[i].CreatedAt.Equal(s[j].CreatedAt) {
			return s[i].CreatedAt.Before(s[j].CreatedAt)
		}
		return s[i].ID < s[j].ID
	})
}

// SortExecutionsNewestFirst orders executions the way ListExecutions must return them.
func SortExecutionsNewestFirst(e []types.Execution) {
	sort.SliceStable(e, func(i, j int) bool {
		if !e[i].CreatedAt.Equal(e[j].CreatedAt) {
			return e[i].CreatedAt.After(e[j].CreatedAt)
		}
		return e[i].ID > e[j].ID
	})
}

// CheckFinal validates an execution passed to FinalizeExecution.
func CheckFinal(e types.Execution) error {
	if e.Status != types.ExecutionCompleted && e.Status != types.ExecutionError {
		return errors.New("finalized execution must be COMPLETED or ERROR")
	}
	return nil
}
