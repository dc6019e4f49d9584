package attestation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dwsmith1983/tripwire/internal/metrics"
)

// Polling defaults.
const (
	DefaultMaxAttempts = 20
	DefaultInterval    = 5 * time.Second
)

// ErrExhausted is returned when the retry ceiling is reached without a
// completed attestation.
var ErrExhausted = errors.New("attestation retries exhausted")

// Poller repeatedly asks a Fetcher for an attestation at a fixed interval.
type Poller struct {
	fetcher     Fetcher
	maxAttempts int
	interval    time.Duration
	logger      *slog.Logger
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithMaxAttempts sets the retry ceiling.
func WithMaxAttempts(n int) PollerOption {
	return func(p *Poller) { p.maxAttempts = n }
}

// WithInterval sets the fixed delay between attempts.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) { p.interval = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) { p.logger = l }
}

// NewPoller creates a poller over f.
func NewPoller(f Fetcher, opts ...PollerOption) *Poller {
	p := &Poller{
		fetcher:     f,
		maxAttempts: DefaultMaxAttempts,
		interval:    DefaultInterval,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.maxAttempts < 1 {
		p.maxAttempts = 1
	}
	return p
}

// Result is a completed attestation plus the attempts it took.
type Result struct {
	Attestation
	Attempts int
}

// Poll returns once an attestation is complete, the attempt ceiling is hit
// (ErrExhausted), the service rejects the request (ErrRejected), or ctx ends.
func (p *Poller) Poll(ctx context.Context, sourceDomain uint32, txHash string) (Result, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		metrics.AttestationAttempts.Add(1)
		a, err := p.fetcher.Fetch(ctx, sourceDomain, txHash)
		switch {
		case err == nil:
			p.logger.Info("attestation received", "txHash", txHash, "attempt", attempt)
			return Result{Attestation: a, Attempts: attempt}, nil
		case errors.Is(err, ErrRejected):
			return Result{Attempts: attempt}, err
		case ctx.Err() != nil:
			return Result{Attempts: attempt}, fmt.Errorf("polling attestation: %w", ctx.Err())
		case errors.Is(err, ErrNotReady):
			p.logger.Debug("attestation pending", "txHash", txHash, "attempt", attempt, "maxAttempts", p.maxAttempts)
		default:
			lastErr = err
			p.logger.Warn("attestation fetch failed", "txHash", txHash, "attempt", attempt, "error", err)
		}

		if attempt == p.maxAttempts {
			break
		}
		t := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return Result{Attempts: attempt}, fmt.Errorf("polling attestation: %w", ctx.Err())
		case <-t.C:
		}
	}
	if lastErr != nil {
		return Result{Attempts: p.maxAttempts}, fmt.Errorf("%w after %d attempts (last error: %v)", ErrExhausted, p.maxAttempts, lastErr)
	}
	return Result{Attempts: p.maxAttempts}, fmt.Errorf("%w after %d attempts", ErrExhausted, p.maxAttempts)
}
