// Package archiver mirrors strategies and finalized executions from the
// primary store into Postgres for long-term querying.
package archiver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dwsmith1983/tripwire/internal/lifecycle"
	"github.com/dwsmith1983/tripwire/internal/provider"
	pgstore "github.com/dwsmith1983/tripwire/internal/provider/postgres"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

const defaultInterval = 5 * time.Minute

// Destination defines the write interface for the archival backend.
type Destination interface {
	PutStrategy(ctx context.Context, s types.Strategy) error
	UpsertExecution(ctx context.Context, e types.Execution) error
}

var _ Destination = (*pgstore.Store)(nil)

// Archiver periodically copies the primary store into the destination.
type Archiver struct {
	source   provider.Provider
	dest     Destination
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a new Archiver.
func New(source provider.Provider, dest Destination, interval time.Duration, logger *slog.Logger) *Archiver {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		source:   source,
		dest:     dest,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the archiver background loop.
func (a *Archiver) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	go a.loop(ctx)
	a.logger.Info("archiver started", "interval", a.interval)
}

// Stop signals the archiver to stop and waits for it to finish.
func (a *Archiver) Stop(_ context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.logger.Info("archiver stopped")
}

func (a *Archiver) loop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	// Run once immediately on start
	a.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Tick(ctx)
		}
	}
}

// Tick runs one archive pass and returns the number of executions copied.
func (a *Archiver) Tick(ctx context.Context) int {
	strategies, err := a.source.ListStrategies(ctx, false)
	if err != nil {
		a.logger.Error("archiver: failed to list strategies", "error", err)
		return 0
	}

	copied := 0
	for _, s := range strategies {
		if ctx.Err() != nil {
			return copied
		}
		a.archiveStrategy(ctx, s)
		copied += a.archiveExecutions(ctx, s.ID)
	}
	return copied
}

// The sealed signing key stays in the primary store only.
func (a *Archiver) archiveStrategy(ctx context.Context, s types.Strategy) {
	s.EncryptedKey = ""
	if err := a.dest.PutStrategy(ctx, s); err != nil {
		a.logger.Error("archiver: upsert strategy failed", "strategy", s.ID, "error", err)
	}
}

func (a *Archiver) archiveExecutions(ctx context.Context, strategyID string) int {
	execs, err := a.source.ListExecutions(ctx, strategyID, 0)
	if err != nil {
		a.logger.Error("archiver: list executions failed", "strategy", strategyID, "error", err)
		return 0
	}

	copied := 0
	for _, e := range execs {
		if !lifecycle.IsTerminal(e.Status) {
			continue
		}
		if err := a.dest.UpsertExecution(ctx, e); err != nil {
			a.logger.Error("archiver: upsert execution failed", "strategy", strategyID, "execution", e.ID, "error", err)
			continue
		}
		copied++
	}
	return copied
}
