// Package memory implements an in-process Provider for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/dwsmith1983/tripwire/internal/provider"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

var _ provider.Provider = (*Store)(nil)

// Store keeps every record in memory. Nothing survives a restart.
type Store struct {
	mu         sync.Mutex
	strategies map[string]types.Strategy
	events     []types.Event
	executions map[string]types.Execution
}

// New creates an empty store.
func New() *Store {
	return &Store{
		strategies: make(map[string]types.Strategy),
		executions: make(map[string]types.Execution),
	}
}

func (s *Store) PutStrategy(_ context.Context, st types.Strategy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategies[st.ID] = cloneStrategy(st)
	return nil
}

func (s *Store) GetStrategy(_ context.Context, id string) (*types.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.strategies[id]
	if !ok {
		return nil, fmt.Errorf("strategy %q: %w", id, provider.ErrNotFound)
	}
	st = cloneStrategy(st)
	return &st, nil
}

func (s *Store) ListStrategies(_ context.Context, activeOnly bool) ([]types.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Strategy
	for _, st := range s.strategies {
		if activeOnly && !st.Active {
			continue
		}
		out = append(out, cloneStrategy(st))
	}
	provider.SortStrategies(out)
	return out, nil
}

func (s *Store) SetStrategyActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.strategies[id]
	if !ok {
		return fmt.Errorf("strategy %q: %w", id, provider.ErrNotFound)
	}
	st.Active = active
	s.strategies[id] = st
	return nil
}

func (s *Store) AppendEvent(_ context.Context, ev types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *Store) ListEvents(_ context.Context, limit int) ([]types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, s.events[i])
	}
	return out, nil
}

func (s *Store) CreateExecution(_ context.Context, e types.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[e.ID]; ok {
		return fmt.Errorf("execution %q: %w", e.ID, provider.ErrExists)
	}
	s.executions[e.ID] = e
	return nil
}

func (s *Store) FinalizeExecution(_ context.Context, e types.Execution) error {
	if err := provider.CheckFinal(e); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.executions[e.ID]
	if !ok {
		return fmt.Errorf("execution %q: %w", e.ID, provider.ErrNotFound)
	}
	if cur.Status != types.ExecutionPending {
		return fmt.Errorf("execution %q: %w", e.ID, provider.ErrAlreadyFinalized)
	}
	s.executions[e.ID] = e
	return nil
}

func (s *Store) GetExecution(_ context.Context, id string) (*types.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.executions[id]
	if !ok {
		return nil, fmt.Errorf("execution %q: %w", id, provider.ErrNotFound)
	}
	return &e, nil
}

func (s *Store) ListExecutions(_ context.Context, strategyID string, limit int) ([]types.Execution, error) {
	s.mu.Lock()
	var out []types.Execution
	for _, e := range s.executions {
		if e.StrategyID == strategyID {
			out = append(out, e)
		}
	}
	s.mu.Unlock()
	provider.SortExecutionsNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Start(context.Context) error { return nil }
func (s *Store) Stop(context.Context) error  { return nil }
func (s *Store) Ping(context.Context) error  { return nil }

func cloneStrategy(s types.Strategy) types.Strategy {
	s.Triggers = append([]types.Trigger(nil), s.Triggers...)
	for i := range s.Triggers {
		s.Triggers[i].Keywords = append([]string(nil), s.Triggers[i].Keywords...)
	}
	s.Actions = append([]types.Action(nil), s.Actions...)
	return s
}
