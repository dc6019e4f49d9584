// Package dispatch turns matched strategies into transfer jobs and owns the
// lifecycle of the execution records they produce.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dwsmith1983/tripwire/internal/credential"
	"github.com/dwsmith1983/tripwire/internal/lifecycle"
	"github.com/dwsmith1983/tripwire/internal/matcher"
	"github.com/dwsmith1983/tripwire/internal/metrics"
	"github.com/dwsmith1983/tripwire/internal/provider"
	"github.com/dwsmith1983/tripwire/internal/transfer"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

// recordTimeout bounds the writes that record an outcome once work has begun.
const recordTimeout = 15 * time.Second

// ErrNotRecorded marks a failure to persist an execution after matching. Work
// may already have moved funds, so the event must not be dispatched again.
var ErrNotRecorded = errors.New("execution not recorded")

// Transferer runs one bridge job to a terminal phase.
type Transferer interface {
	Run(ctx context.Context, job types.TransferJob) transfer.Result
}

// Resolver opens a strategy's signing credential.
type Resolver interface {
	Resolve(ctx context.Context, s types.Strategy) (types.Credential, error)
}

// Alerter receives an alert for every failed execution.
type Alerter interface {
	Dispatch(ctx context.Context, alert types.Alert)
}

var (
	_ Transferer = (*transfer.Orchestrator)(nil)
	_ Resolver   = (*credential.Store)(nil)
)

// Coordinator runs a strategy's actions and records one execution per action.
type Coordinator struct {
	store       provider.Provider
	transfers   Transferer
	creds       Resolver
	alerts      Alerter
	logger      *slog.Logger
	concurrency int
	now         func() time.Time
	newID       func() string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithAlerter sets the alert destination for failed executions.
func WithAlerter(a Alerter) Option { return func(c *Coordinator) { c.alerts = a } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Coordinator) { c.logger = l } }

// WithConcurrency sets how many matched strategies DispatchEvent runs at once.
func WithConcurrency(n int) Option { return func(c *Coordinator) { c.concurrency = n } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

// New creates a coordinator.
func New(store provider.Provider, transfers Transferer, creds Resolver, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		transfers:   transfers,
		creds:       creds,
		logger:      slog.Default(),
		concurrency: 1,
		now:         time.Now,
		newID:       func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.concurrency < 1 {
		c.concurrency = 1
	}
	return c
}

// Dispatch runs the strategy's actions in declaration order and stops at the
// first one that ends in ERROR. It returns the finalized executions. A non-nil
// error means an execution could not be recorded; the executions returned so
// far are still valid.
func (c *Coordinator) Dispatch(ctx context.Context, s types.Strategy, ev types.Event) ([]types.Execution, error) {
	var out []types.Execution
	for i, action := range s.Actions {
		exec := types.Execution{
			ID:         c.newID(),
			StrategyID: s.ID,
			OwnerID:    s.OwnerID,
			EventID:    ev.ID,
			Action:     action,
			Status:     types.ExecutionPending,
			CreatedAt:  c.now().UTC(),
		}
		if err := c.store.CreateExecution(ctx, exec); err != nil {
			return out, fmt.Errorf("creating execution for strategy %s action %d: %w", s.ID, i, err)
		}

		c.runAction(ctx, s, ev, &exec)

		if err := lifecycle.Transition(types.ExecutionPending, exec.Status); err != nil {
			return out, fmt.Errorf("execution %s: %w", exec.ID, err)
		}
		done := c.now().UTC()
		exec.CompletedAt = &done
		if err := c.finalize(ctx, exec); err != nil {
			c.logger.Error("execution outcome not recorded", "strategy", s.ID, "execution", exec.ID,
				"status", exec.Status, "burnTxHash", exec.BurnTxHash, "mintTxHash", exec.MintTxHash, "error", err)
			c.alertUnrecorded(ctx, exec, err)
			return out, fmt.Errorf("finalizing execution %s: %w", exec.ID, err)
		}
		out = append(out, exec)

		metrics.ExecutionsTotal.Add(1)
		if exec.Status == types.ExecutionError {
			metrics.ExecutionsFailed.Add(1)
			c.alert(ctx, exec)
			if i < len(s.Actions)-1 {
				c.logger.Info("skipping remaining actions", "strategy", s.ID, "skipped", len(s.Actions)-1-i)
			}
			break
		}
	}
	return out, nil
}

// finalize writes the terminal outcome on a context detached from the caller,
// so a cancelled request or an expiring deadline cannot strand a record that
// already carries transaction hashes.
func (c *Coordinator) finalize(ctx context.Context, exec types.Execution) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	return c.store.FinalizeExecution(ctx, exec)
}

// runAction fills in the terminal fields of exec. It never panics.
func (c *Coordinator) runAction(ctx context.Context, s types.Strategy, ev types.Event, exec *types.Execution) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("action panicked", "strategy", s.ID, "execution", exec.ID,
				"action", exec.Action.Type, "panic", r, "stack", string(debug.Stack()))
			exec.Status = types.ExecutionError
			exec.ErrorKind = types.ErrUnknown
			exec.ErrorDetail = fmt.Sprintf("action panicked: %v", r)
		}
	}()

	switch exec.Action.Type {
	case types.ActionBridgeGasless:
		c.bridge(ctx, s, ev, exec)
	default:
		exec.Status = types.ExecutionError
		exec.ErrorKind = types.ErrNotImplemented
		exec.ErrorDetail = fmt.Sprintf("action %s is not implemented", exec.Action.Type)
	}
}

func (c *Coordinator) bridge(ctx context.Context, s types.Strategy, ev types.Event, exec *types.Execution) {
	cred, err := c.creds.Resolve(ctx, s)
	if err != nil || cred.Empty() {
		exec.Status = types.ExecutionError
		exec.ErrorKind = types.ErrCredentialMissing
		exec.ErrorDetail = "no signing credential is available for this strategy"
		if err != nil {
			exec.ErrorDetail = err.Error()
		}
		return
	}
	defer cred.Zero()

	a := exec.Action
	res := c.transfers.Run(ctx, types.TransferJob{
		StrategyID:       s.ID,
		OwnerID:          s.OwnerID,
		Credential:       cred,
		Asset:            a.Asset,
		Amount:           a.Amount,
		SourceChain:      a.SourceChain,
		DestinationChain: a.DestinationChain,
		Event:            ev,
	})

	exec.BurnTxHash = res.BurnTxHash
	exec.MintTxHash = res.MintTxHash
	exec.Verdict = res.Verdict
	exec.Phases = res.Phases
	if res.OK() {
		exec.Status = types.ExecutionCompleted
		return
	}
	exec.Status = types.ExecutionError
	if res.Failure != nil {
		exec.ErrorKind = res.Failure.Kind
		exec.ErrorDetail = res.Failure.Detail
	} else {
		exec.ErrorKind = types.ErrUnknown
		exec.ErrorDetail = fmt.Sprintf("transfer stopped in phase %s", res.Phase)
	}
}

func (c *Coordinator) alert(ctx context.Context, exec types.Execution) {
	if c.alerts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	c.alerts.Dispatch(ctx, types.Alert{
		Level:      types.AlertLevelError,
		StrategyID: exec.StrategyID,
		Message:    fmt.Sprintf("%s action failed: %s", exec.Action.Type, exec.ErrorKind),
		Details: map[string]interface{}{
			"executionId": exec.ID,
			"errorKind":   string(exec.ErrorKind),
			"errorDetail": exec.ErrorDetail,
			"burnTxHash":  exec.BurnTxHash,
		},
		Timestamp: c.now().UTC(),
	})
}

func (c *Coordinator) alertUnrecorded(ctx context.Context, exec types.Execution, err error) {
	if c.alerts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	c.alerts.Dispatch(ctx, types.Alert{
		Level:      types.AlertLevelError,
		StrategyID: exec.StrategyID,
		Message:    fmt.Sprintf("execution %s finished %s but could not be recorded", exec.ID, exec.Status),
		Details: map[string]interface{}{
			"executionId": exec.ID,
			"eventId":     exec.EventID,
			"status":      string(exec.Status),
			"errorKind":   string(exec.ErrorKind),
			"burnTxHash":  exec.BurnTxHash,
			"mintTxHash":  exec.MintTxHash,
			"error":       err.Error(),
		},
		Timestamp: c.now().UTC(),
	})
}

// DispatchEvent archives ev, matches it against the active strategies and
// dispatches every match. Executions are returned in match order. A storage
// failure for one strategy does not stop the others; all such failures are
// joined into the returned error, which then wraps ErrNotRecorded. Only
// archive and listing failures leave the event safe to redeliver.
func (c *Coordinator) DispatchEvent(ctx context.Context, ev types.Event) ([]types.Execution, error) {
	if ev.ID == "" {
		ev.ID = c.newID()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = c.now().UTC()
	}
	if err := c.store.AppendEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("archiving event %s: %w", ev.ID, err)
	}
	metrics.EventsReceived.Add(1)

	strategies, err := c.store.ListStrategies(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("listing strategies: %w", err)
	}
	matches := matcher.Matches(ev, strategies)
	metrics.StrategiesMatched.Add(int64(len(matches)))
	c.logger.Info("event matched", "event", ev.ID, "kind", ev.Kind, "strategies", len(matches))

	results := make([][]types.Execution, len(matches))
	errs := make([]error, len(matches))
	if c.concurrency == 1 || len(matches) < 2 {
		for i, m := range matches {
			results[i], errs[i] = c.Dispatch(ctx, m.Strategy, ev)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(c.concurrency)
		for i, m := range matches {
			g.Go(func() error {
				results[i], errs[i] = c.Dispatch(ctx, m.Strategy, ev)
				return nil
			})
		}
		_ = g.Wait()
	}

	var out []types.Execution
	for _, r := range results {
		out = append(out, r...)
	}
	if err := errors.Join(errs...); err != nil {
		return out, fmt.Errorf("%w: %w", ErrNotRecorded, err)
	}
	return out, nil
}
