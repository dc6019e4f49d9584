// Package lambda provides shared initialization for Lambda handlers.
package lambda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/dwsmith1983/tripwire/internal/app"
	"github.com/dwsmith1983/tripwire/internal/config"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

// Deps holds shared dependencies for Lambda handlers.
type Deps struct {
	App    *app.App
	Logger *slog.Logger
}

// Init creates shared dependencies from environment variables.
// Reads: TABLE_NAME, AWS_REGION, TTL_DAYS, KEK_SECRET_ID, KEK_ENV_VAR,
// SNS_TOPIC_ARN, EVENT_BUS_NAME, ATTESTATION_BASE_URL, ATTESTATION_BUDGET,
// TRANSFER_FINALITY, DISPATCH_CONCURRENCY, CHAINS_JSON.
func Init(ctx context.Context, opts ...app.Option) (*Deps, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}

	a, err := app.Build(ctx, cfg, append([]app.Option{app.WithLogger(logger)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Deps{App: a, Logger: logger}, nil
}

// ConfigFromEnv assembles a DynamoDB-backed project configuration from the
// function environment.
func ConfigFromEnv() (*types.ProjectConfig, error) {
	tableName := os.Getenv("TABLE_NAME")
	region := os.Getenv("AWS_REGION")
	if tableName == "" {
		return nil, fmt.Errorf("TABLE_NAME environment variable required")
	}
	if region == "" {
		return nil, fmt.Errorf("AWS_REGION environment variable required")
	}

	ttlDays, err := strconv.Atoi(envOrDefault("TTL_DAYS", "30"))
	if err != nil {
		return nil, fmt.Errorf("TTL_DAYS: %w", err)
	}
	concurrency, err := strconv.Atoi(envOrDefault("DISPATCH_CONCURRENCY", "1"))
	if err != nil {
		return nil, fmt.Errorf("DISPATCH_CONCURRENCY: %w", err)
	}

	cfg := &types.ProjectConfig{
		Provider: "dynamodb",
		DynamoDB: &types.DynamoDBConfig{TableName: tableName, Region: region, TTLDays: ttlDays},
		Attestation: &types.AttestationConfig{
			BaseURL: os.Getenv("ATTESTATION_BASE_URL"),
			Budget:  os.Getenv("ATTESTATION_BUDGET"),
		},
		Transfer: &types.TransferConfig{Finality: types.Finality(os.Getenv("TRANSFER_FINALITY"))},
		Dispatch: &types.DispatchConfig{Concurrency: concurrency},
	}

	if secretID := os.Getenv("KEK_SECRET_ID"); secretID != "" {
		cfg.Credential = &types.CredentialConfig{Source: "secretsmanager", SecretID: secretID}
	} else {
		cfg.Credential = &types.CredentialConfig{Source: "env", EnvVar: os.Getenv("KEK_ENV_VAR")}
	}

	if topicARN := os.Getenv("SNS_TOPIC_ARN"); topicARN != "" {
		cfg.Alerts = append(cfg.Alerts, types.AlertConfig{Type: types.AlertSNS, TopicARN: topicARN})
	}
	if bus := os.Getenv("EVENT_BUS_NAME"); bus != "" {
		cfg.Alerts = append(cfg.Alerts, types.AlertConfig{Type: types.AlertEventBridge, EventBusName: bus})
	}

	if raw := os.Getenv("CHAINS_JSON"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.Chains); err != nil {
			return nil, fmt.Errorf("CHAINS_JSON: %w", err)
		}
	}

	if err := config.Normalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
