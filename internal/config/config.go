// Package config handles loading and validation of tripwire.yaml project configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dwsmith1983/tripwire/pkg/types"
	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file looked up by Load.
const FileName = "tripwire.yaml"

// Defaults applied by Load when a section or field is omitted.
const (
	DefaultAttestationBaseURL = "https://iris-api-sandbox.circle.com"
	DefaultAttestationPoll    = 5 * time.Second
	DefaultAttestationTries   = 20
	DefaultAttestationBudget  = 3 * time.Minute
	DefaultReceiptTimeout     = 2 * time.Minute
	DefaultMarginBaseUnits    = 100_000
	DefaultIngestWait         = 20 * time.Second
	DefaultServerAddr         = ":3000"
	DefaultWatchdogInterval   = 5 * time.Minute
	DefaultWatchdogStaleAfter = 30 * time.Minute
	DefaultArchiveInterval    = 5 * time.Minute
)

// Load reads and parses tripwire.yaml from the given directory.
func Load(dir string) (*types.ProjectConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a configuration document.
func Parse(data []byte) (*types.ProjectConfig, error) {
	var cfg types.ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize applies defaults to a configuration assembled in code, such as
// from environment variables, and validates the result.
func Normalize(cfg *types.ProjectConfig) error {
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

func applyDefaults(cfg *types.ProjectConfig) {
	if cfg.Provider == "" {
		cfg.Provider = "memory"
	}
	if cfg.Server == nil {
		cfg.Server = &types.ServerConfig{}
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultServerAddr
	}
	if cfg.Attestation == nil {
		cfg.Attestation = &types.AttestationConfig{}
	}
	if cfg.Attestation.BaseURL == "" {
		cfg.Attestation.BaseURL = DefaultAttestationBaseURL
	}
	if cfg.Attestation.MaxAttempts == 0 {
		cfg.Attestation.MaxAttempts = DefaultAttestationTries
	}
	if cfg.Transfer == nil {
		cfg.Transfer = &types.TransferConfig{}
	}
	if cfg.Transfer.MarginBaseUnits == 0 {
		cfg.Transfer.MarginBaseUnits = DefaultMarginBaseUnits
	}
	if cfg.Transfer.Finality == "" {
		cfg.Transfer.Finality = types.FinalityFast
	}
	if cfg.Dispatch == nil {
		cfg.Dispatch = &types.DispatchConfig{Concurrency: 1}
	}
	if cfg.Credential == nil {
		cfg.Credential = &types.CredentialConfig{Source: "env"}
	}
	if cfg.Credential.Source == "env" && cfg.Credential.EnvVar == "" {
		cfg.Credential.EnvVar = "TRIPWIRE_KEY_ENCRYPTION_KEY"
	}
}

func validate(cfg *types.ProjectConfig) error {
	switch cfg.Provider {
	case "memory":
	case "dynamodb":
		if cfg.DynamoDB == nil {
			return fmt.Errorf("dynamodb config is required when provider is dynamodb")
		}
		if cfg.DynamoDB.TableName == "" {
			return fmt.Errorf("dynamodb.tableName is required")
		}
	case "postgres":
		if cfg.Postgres == nil || cfg.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required when provider is postgres")
		}
	default:
		return fmt.Errorf("unknown provider %q", cfg.Provider)
	}

	if _, err := Duration(cfg.Attestation.Interval, DefaultAttestationPoll); err != nil {
		return fmt.Errorf("attestation.interval: %w", err)
	}
	if _, err := Duration(cfg.Attestation.Budget, DefaultAttestationBudget); err != nil {
		return fmt.Errorf("attestation.budget: %w", err)
	}
	if cfg.Attestation.MaxAttempts < 0 {
		return fmt.Errorf("attestation.maxAttempts must be positive")
	}
	if _, err := Duration(cfg.Transfer.ReceiptTimeout, DefaultReceiptTimeout); err != nil {
		return fmt.Errorf("transfer.receiptTimeout: %w", err)
	}
	if cfg.Transfer.MarginBaseUnits < 0 {
		return fmt.Errorf("transfer.marginBaseUnits must not be negative")
	}
	switch cfg.Transfer.Finality {
	case types.FinalityFast, types.FinalityStandard:
	default:
		return fmt.Errorf("transfer.finality must be %q or %q", types.FinalityFast, types.FinalityStandard)
	}
	if cfg.Dispatch.Concurrency < 1 {
		return fmt.Errorf("dispatch.concurrency must be at least 1")
	}

	switch cfg.Credential.Source {
	case "env":
	case "secretsmanager":
		if cfg.Credential.SecretID == "" {
			return fmt.Errorf("credential.secretId is required when source is secretsmanager")
		}
	default:
		return fmt.Errorf("unknown credential source %q", cfg.Credential.Source)
	}

	for i, c := range cfg.Chains {
		if c.Name == "" {
			return fmt.Errorf("chains[%d].name is required", i)
		}
	}
	if cfg.Ingest != nil {
		if cfg.Ingest.QueueURL == "" {
			return fmt.Errorf("ingest.queueUrl is required")
		}
		if _, err := Duration(cfg.Ingest.WaitTime, DefaultIngestWait); err != nil {
			return fmt.Errorf("ingest.waitTime: %w", err)
		}
	}
	if cfg.Watchdog != nil {
		if _, err := Duration(cfg.Watchdog.Interval, DefaultWatchdogInterval); err != nil {
			return fmt.Errorf("watchdog.interval: %w", err)
		}
		if _, err := Duration(cfg.Watchdog.StaleAfter, DefaultWatchdogStaleAfter); err != nil {
			return fmt.Errorf("watchdog.staleAfter: %w", err)
		}
	}
	if cfg.Archive != nil && cfg.Archive.Enabled {
		if cfg.Archive.DSN == "" {
			return fmt.Errorf("archive.dsn is required when archive is enabled")
		}
		if cfg.Provider == "postgres" {
			return fmt.Errorf("archive cannot be enabled when the provider is already postgres")
		}
		if _, err := Duration(cfg.Archive.Interval, DefaultArchiveInterval); err != nil {
			return fmt.Errorf("archive.interval: %w", err)
		}
	}
	return nil
}

// Duration parses s, returning def when s is empty.
func Duration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}

// MustDuration is Duration for values already checked by validate.
func MustDuration(s string, def time.Duration) time.Duration {
	d, err := Duration(s, def)
	if err != nil {
		return def
	}
	return d
}
