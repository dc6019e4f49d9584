package credential

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/dwsmith1983/tripwire/pkg/types"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, input *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SourceOption configures key-encryption key loading.
type SourceOption func(*sourceOpts)

type sourceOpts struct {
	sm     SecretsManagerAPI
	getenv func(string) string
}

// WithSecretsManagerClient sets a custom Secrets Manager client (useful for testing).
func WithSecretsManagerClient(c SecretsManagerAPI) SourceOption {
	return func(o *sourceOpts) { o.sm = c }
}

// WithGetenv replaces os.Getenv.
func WithGetenv(f func(string) string) SourceOption {
	return func(o *sourceOpts) { o.getenv = f }
}

// LoadKEK fetches the hex-encoded key-encryption key from the configured source.
func LoadKEK(ctx context.Context, cfg *types.CredentialConfig, opts ...SourceOption) ([]byte, error) {
	o := sourceOpts{getenv: os.Getenv}
	for _, opt := range opts {
		opt(&o)
	}
	var encoded string
	switch cfg.Source {
	case "env":
		encoded = o.getenv(cfg.EnvVar)
		if encoded == "" {
			return nil, fmt.Errorf("environment variable %s is not set", cfg.EnvVar)
		}
	case "secretsmanager":
		if o.sm == nil {
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, fmt.Errorf("loading AWS config: %w", err)
			}
			o.sm = secretsmanager.NewFromConfig(awsCfg)
		}
		out, err := o.sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(cfg.SecretID)})
		if err != nil {
			return nil, fmt.Errorf("reading secret %s: %w", cfg.SecretID, err)
		}
		encoded = aws.ToString(out.SecretString)
	default:
		return nil, fmt.Errorf("unknown credential source %q", cfg.Source)
	}
	kek, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(encoded), "0x"))
	if err != nil {
		return nil, fmt.Errorf("decoding key-encryption key: %w", err)
	}
	return kek, nil
}
