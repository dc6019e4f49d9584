// watchdog Lambda closes executions abandoned in PENDING.
// Invoked by EventBridge on a regular interval (e.g. every 5 minutes).
package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	awslambda "github.com/aws/aws-lambda-go/lambda"

	"github.com/dwsmith1983/tripwire/internal/config"
	intlambda "github.com/dwsmith1983/tripwire/internal/lambda"
	"github.com/dwsmith1983/tripwire/internal/watchdog"
)

var (
	deps     *intlambda.Deps
	depsOnce sync.Once
	depsErr  error
)

func getDeps() (*intlambda.Deps, error) {
	depsOnce.Do(func() {
		deps, depsErr = intlambda.Init(context.Background())
	})
	return deps, depsErr
}

func scan(ctx context.Context, opts watchdog.CheckOptions) int {
	stale := watchdog.CheckStaleExecutions(ctx, opts)
	opts.Logger.Info("watchdog scan complete", "abandoned", len(stale))
	return len(stale)
}

func handler(ctx context.Context) error {
	d, err := getDeps()
	if err != nil {
		return err
	}
	staleAfter, err := config.Duration(os.Getenv("STALE_AFTER"), config.DefaultWatchdogStaleAfter)
	if err != nil {
		return err
	}
	scan(ctx, watchdog.CheckOptions{
		Provider:   d.App.Provider,
		Alerts:     d.App.Alerts,
		Logger:     d.Logger,
		StaleAfter: staleAfter,
	})
	return nil
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	awslambda.Start(handler)
}
