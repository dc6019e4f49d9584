// Package watchdog finalizes executions that were left PENDING, for example
// by a process that crashed mid-transfer. Without it such records would stay
// open forever and never raise an alert.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dwsmith1983/tripwire/internal/lifecycle"
	"github.com/dwsmith1983/tripwire/internal/metrics"
	"github.com/dwsmith1983/tripwire/internal/provider"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

const (
	DefaultInterval   = 5 * time.Minute
	DefaultStaleAfter = 30 * time.Minute
	DefaultScanLimit  = 100
)

// Alerter receives one alert per abandoned execution.
type Alerter interface {
	Dispatch(ctx context.Context, alert types.Alert)
}

// StaleExecution records one execution the watchdog closed.
type StaleExecution struct {
	ExecutionID string
	StrategyID  string
	Age         time.Duration
}

// CheckOptions configures a single watchdog scan pass.
type CheckOptions struct {
	Provider   provider.Provider
	Alerts     Alerter
	Logger     *slog.Logger
	Now        time.Time     // injectable for testing
	StaleAfter time.Duration // defaults to 30m if zero
	ScanLimit  int           // executions inspected per strategy, defaults to 100
}

// CheckStaleExecutions scans every strategy's recent executions and
// finalizes those still PENDING after StaleAfter as ERROR/UNKNOWN. An
// execution finalized concurrently by its dispatcher is skipped.
func CheckStaleExecutions(ctx context.Context, opts CheckOptions) []StaleExecution {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.ScanLimit <= 0 {
		opts.ScanLimit = DefaultScanLimit
	}

	strategies, err := opts.Provider.ListStrategies(ctx, false)
	if err != nil {
		opts.Logger.Error("watchdog: failed to list strategies", "error", err)
		return nil
	}

	var stale []StaleExecution
	for _, s := range strategies {
		if ctx.Err() != nil {
			return stale
		}
		execs, err := opts.Provider.ListExecutions(ctx, s.ID, opts.ScanLimit)
		if err != nil {
			opts.Logger.Error("watchdog: failed to list executions", "strategy", s.ID, "error", err)
			continue
		}
		for _, e := range execs {
			if lifecycle.IsTerminal(e.Status) {
				continue
			}
			age := opts.Now.Sub(e.CreatedAt)
			if age < opts.StaleAfter {
				continue
			}
			if closeStale(ctx, opts, e, age) {
				stale = append(stale, StaleExecution{ExecutionID: e.ID, StrategyID: e.StrategyID, Age: age})
			}
		}
	}
	return stale
}

func closeStale(ctx context.Context, opts CheckOptions, e types.Execution, age time.Duration) bool {
	if err := lifecycle.Transition(e.Status, types.ExecutionError); err != nil {
		opts.Logger.Error("watchdog: unexpected execution status", "execution", e.ID, "status", e.Status)
		return false
	}
	done := opts.Now.UTC()
	e.Status = types.ExecutionError
	e.ErrorKind = types.ErrUnknown
	e.ErrorDetail = fmt.Sprintf("abandoned: still PENDING after %s", age.Truncate(time.Second))
	e.CompletedAt = &done

	err := opts.Provider.FinalizeExecution(ctx, e)
	switch {
	case errors.Is(err, provider.ErrAlreadyFinalized):
		return false
	case err != nil:
		opts.Logger.Error("watchdog: failed to finalize execution", "execution", e.ID, "error", err)
		return false
	}

	metrics.ExecutionsAbandoned.Add(1)
	opts.Logger.Warn("watchdog: abandoned execution closed",
		"execution", e.ID, "strategy", e.StrategyID, "age", age.String())

	if opts.Alerts != nil {
		opts.Alerts.Dispatch(ctx, types.Alert{
			Level:      types.AlertLevelError,
			StrategyID: e.StrategyID,
			Message:    fmt.Sprintf("%s execution %s abandoned after %s", e.Action.Type, e.ID, age.Truncate(time.Second)),
			Details: map[string]interface{}{
				"executionId": e.ID,
				"errorKind":   string(types.ErrUnknown),
				"burnTxHash":  e.BurnTxHash,
			},
			Timestamp: done,
		})
	}
	return true
}

// Watchdog runs CheckStaleExecutions on a regular interval.
type Watchdog struct {
	provider   provider.Provider
	alerts     Alerter
	logger     *slog.Logger
	interval   time.Duration
	staleAfter time.Duration
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a new Watchdog.
func New(prov provider.Provider, alerts Alerter, logger *slog.Logger, interval, staleAfter time.Duration) *Watchdog {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchdog{
		provider:   prov,
		alerts:     alerts,
		logger:     logger,
		interval:   interval,
		staleAfter: staleAfter,
	}
}

// Start begins the watchdog polling loop.
func (w *Watchdog) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.loop(ctx)
	w.logger.Info("watchdog started", "interval", w.interval)
}

// Stop signals the watchdog to stop and waits for it to finish.
func (w *Watchdog) Stop(_ context.Context) {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info("watchdog stopped")
}

func (w *Watchdog) loop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately on start.
	w.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

func (w *Watchdog) scan(ctx context.Context) {
	CheckStaleExecutions(ctx, CheckOptions{
		Provider:   w.provider,
		Alerts:     w.alerts,
		Logger:     w.logger,
		StaleAfter: w.staleAfter,
	})
}
