// Package app assembles the runtime object graph shared by the CLI and the
// Lambda handlers.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dwsmith1983/tripwire/internal/alert"
	"github.com/dwsmith1983/tripwire/internal/attestation"
	"github.com/dwsmith1983/tripwire/internal/chain"
	"github.com/dwsmith1983/tripwire/internal/config"
	"github.com/dwsmith1983/tripwire/internal/credential"
	"github.com/dwsmith1983/tripwire/internal/dispatch"
	"github.com/dwsmith1983/tripwire/internal/gateway"
	"github.com/dwsmith1983/tripwire/internal/preflight"
	"github.com/dwsmith1983/tripwire/internal/provider"
	ddbprov "github.com/dwsmith1983/tripwire/internal/provider/dynamodb"
	"github.com/dwsmith1983/tripwire/internal/provider/memory"
	pgstore "github.com/dwsmith1983/tripwire/internal/provider/postgres"
	"github.com/dwsmith1983/tripwire/internal/transfer"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

// App holds the wired components.
type App struct {
	Config      *types.ProjectConfig
	Provider    provider.Provider
	Chains      *chain.Registry
	Credentials *credential.Store
	Alerts      *alert.Dispatcher
	Checker     *preflight.Checker
	Transfers   *transfer.Orchestrator
	Coordinator *dispatch.Coordinator
	Logger      *slog.Logger
}

// Option configures Build.
type Option func(*buildOpts)

type buildOpts struct {
	provider  provider.Provider
	gateways  gateway.Factory
	attester  transfer.Attester
	sources   []credential.SourceOption
	logger    *slog.Logger
	createTbl bool
}

// WithProvider uses p instead of the configured storage backend.
func WithProvider(p provider.Provider) Option { return func(o *buildOpts) { o.provider = p } }

// WithGateways replaces the EVM gateway factory.
func WithGateways(f gateway.Factory) Option { return func(o *buildOpts) { o.gateways = f } }

// WithAttester replaces the attestation poller.
func WithAttester(a transfer.Attester) Option { return func(o *buildOpts) { o.attester = a } }

// WithCredentialSource passes options to the key-encryption key loader.
func WithCredentialSource(opts ...credential.SourceOption) Option {
	return func(o *buildOpts) { o.sources = append(o.sources, opts...) }
}

// WithLogger sets the logger handed to every component.
func WithLogger(l *slog.Logger) Option { return func(o *buildOpts) { o.logger = l } }

// WithCreateTable creates the DynamoDB table on start when missing.
func WithCreateTable() Option { return func(o *buildOpts) { o.createTbl = true } }

// Build wires every component described by cfg and starts the provider.
func Build(ctx context.Context, cfg *types.ProjectConfig, opts ...Option) (*App, error) {
	o := buildOpts{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger

	chains, err := chain.NewRegistry(cfg.Chains)
	if err != nil {
		return nil, fmt.Errorf("building chain registry: %w", err)
	}

	kek, err := credential.LoadKEK(ctx, cfg.Credential, o.sources...)
	if err != nil {
		return nil, fmt.Errorf("loading key-encryption key: %w", err)
	}
	creds, err := credential.NewStore(kek)
	clear(kek)
	if err != nil {
		return nil, fmt.Errorf("creating credential store: %w", err)
	}

	alerts, err := alert.NewDispatcher(cfg.Alerts, logger)
	if err != nil {
		return nil, fmt.Errorf("creating alert dispatcher: %w", err)
	}

	prov := o.provider
	if prov == nil {
		prov, err = newProvider(ctx, cfg, logger, o.createTbl)
		if err != nil {
			return nil, err
		}
	}
	if err := prov.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting %s provider: %w", cfg.Provider, err)
	}

	checker := preflight.NewChecker(cfg.Transfer.MarginBaseUnits, chain.USDCDecimals)

	attester := o.attester
	if attester == nil {
		attester = attestation.NewPoller(
			attestation.NewClient(cfg.Attestation.BaseURL),
			attestation.WithMaxAttempts(cfg.Attestation.MaxAttempts),
			attestation.WithInterval(config.MustDuration(cfg.Attestation.Interval, config.DefaultAttestationPoll)),
			attestation.WithLogger(logger),
		)
	}
	gateways := o.gateways
	if gateways == nil {
		gateways = gateway.NewFactory(gateway.WithLogger(logger))
	}

	transfers := transfer.New(chains, gateways, attester,
		transfer.WithChecker(checker),
		transfer.WithFinality(cfg.Transfer.Finality),
		transfer.WithAttestationBudget(config.MustDuration(cfg.Attestation.Budget, config.DefaultAttestationBudget)),
		transfer.WithReceiptTimeout(config.MustDuration(cfg.Transfer.ReceiptTimeout, config.DefaultReceiptTimeout)),
		transfer.WithLogger(logger),
	)

	coord := dispatch.New(prov, transfers, creds,
		dispatch.WithAlerter(alerts),
		dispatch.WithLogger(logger),
		dispatch.WithConcurrency(cfg.Dispatch.Concurrency),
	)

	logger.Info("tripwire wired",
		"provider", cfg.Provider,
		"chains", len(chains.Names()),
		"alertSinks", alerts.Sinks(),
		"concurrency", cfg.Dispatch.Concurrency,
	)

	return &App{
		Config:      cfg,
		Provider:    prov,
		Chains:      chains,
		Credentials: creds,
		Alerts:      alerts,
		Checker:     checker,
		Transfers:   transfers,
		Coordinator: coord,
		Logger:      logger,
	}, nil
}

// Close stops the provider.
func (a *App) Close(ctx context.Context) error {
	return a.Provider.Stop(ctx)
}

func newProvider(ctx context.Context, cfg *types.ProjectConfig, logger *slog.Logger, createTable bool) (provider.Provider, error) {
	switch cfg.Provider {
	case "memory":
		return memory.New(), nil
	case "dynamodb":
		if cfg.DynamoDB == nil {
			return nil, fmt.Errorf("dynamodb config is required when provider is dynamodb")
		}
		opts := []ddbprov.Option{ddbprov.WithLogger(logger)}
		if createTable {
			opts = append(opts, ddbprov.WithCreateTable())
		}
		p, err := ddbprov.New(cfg.DynamoDB, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating DynamoDB provider: %w", err)
		}
		return p, nil
	case "postgres":
		if cfg.Postgres == nil {
			return nil, fmt.Errorf("postgres config is required when provider is postgres")
		}
		p, err := pgstore.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("connecting to Postgres: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
