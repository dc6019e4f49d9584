package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/tripwire/internal/app"
	"github.com/dwsmith1983/tripwire/internal/archiver"
	"github.com/dwsmith1983/tripwire/internal/config"
	"github.com/dwsmith1983/tripwire/internal/ingest"
	pgstore "github.com/dwsmith1983/tripwire/internal/provider/postgres"
	"github.com/dwsmith1983/tripwire/internal/server"
	"github.com/dwsmith1983/tripwire/internal/telemetry"
	"github.com/dwsmith1983/tripwire/internal/watchdog"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var createTable bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Tripwire HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(createTable)
		},
	}
	cmd.Flags().BoolVar(&createTable, "create-table", false, "Create the DynamoDB table if it does not exist")
	return cmd
}

func runServe(createTable bool) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	ctx := context.Background()
	logger := slog.Default()

	// Tracing
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}

	// Provider, credentials, orchestrator, coordinator
	opts := []app.Option{app.WithLogger(logger)}
	if createTable {
		opts = append(opts, app.WithCreateTable())
	}
	a, err := app.Build(ctx, cfg, opts...)
	if err != nil {
		return err
	}

	// Queue consumer
	var consumer *ingest.Consumer
	if cfg.Ingest != nil {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("loading AWS config: %w", err)
		}
		wait := config.MustDuration(cfg.Ingest.WaitTime, config.DefaultIngestWait)
		consumer = ingest.New(sqs.NewFromConfig(awsCfg), cfg.Ingest.QueueURL, wait, a.Coordinator, logger)
		consumer.Start(ctx)
	}

	// Watchdog
	var wd *watchdog.Watchdog
	if cfg.Watchdog != nil && cfg.Watchdog.Enabled {
		wd = watchdog.New(a.Provider, a.Alerts, logger,
			config.MustDuration(cfg.Watchdog.Interval, config.DefaultWatchdogInterval),
			config.MustDuration(cfg.Watchdog.StaleAfter, config.DefaultWatchdogStaleAfter),
		)
		wd.Start(ctx)
	}

	// Archiver
	var arc *archiver.Archiver
	if cfg.Archive != nil && cfg.Archive.Enabled {
		pg, err := pgstore.New(ctx, cfg.Archive.DSN)
		if err != nil {
			return fmt.Errorf("connecting to archive Postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Stop(ctx)
			return fmt.Errorf("migrating archive Postgres: %w", err)
		}
		defer func() { _ = pg.Stop(context.Background()) }()
		arc = archiver.New(a.Provider, pg, config.MustDuration(cfg.Archive.Interval, config.DefaultArchiveInterval), logger)
		arc.Start(ctx)
	}

	// Server
	srv := server.New(*cfg.Server, a.Coordinator, a.Provider,
		server.WithKeyGenerator(a.Credentials),
		server.WithStrategyChecker(a.Chains),
		server.WithLogger(logger),
	)

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if consumer != nil {
			consumer.Stop(ctx)
		}
		if wd != nil {
			wd.Stop(ctx)
		}
		if arc != nil {
			arc.Stop(ctx)
		}
		_ = a.Close(ctx)
		_ = shutdownTracing(ctx)
		return err
	case sig := <-sigCh:
		color.Yellow("\nReceived %s, shutting down...", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if consumer != nil {
			consumer.Stop(shutdownCtx)
		}
		if wd != nil {
			wd.Stop(shutdownCtx)
		}
		if arc != nil {
			arc.Stop(shutdownCtx)
		}
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		_ = a.Close(shutdownCtx)
		_ = shutdownTracing(shutdownCtx)
		color.Green("Server stopped gracefully")
		return nil
	}
}
