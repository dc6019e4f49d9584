package types

// ProjectConfig represents the top-level tripwire.yaml configuration.
type ProjectConfig struct {
	Provider    string             `yaml:"provider"`
	DynamoDB    *DynamoDBConfig    `yaml:"dynamodb,omitempty"`
	Postgres    *PostgresConfig    `yaml:"postgres,omitempty"`
	Server      *ServerConfig      `yaml:"server,omitempty"`
	Chains      []ChainConfig      `yaml:"chains,omitempty"`
	Attestation *AttestationConfig `yaml:"attestation,omitempty"`
	Transfer    *TransferConfig    `yaml:"transfer,omitempty"`
	Dispatch    *DispatchConfig    `yaml:"dispatch,omitempty"`
	Credential  *CredentialConfig  `yaml:"credential,omitempty"`
	Alerts      []AlertConfig      `yaml:"alerts,omitempty"`
	Ingest      *IngestConfig      `yaml:"ingest,omitempty"`
	Watchdog    *WatchdogConfig    `yaml:"watchdog,omitempty"`
	Archive     *ArchiveConfig     `yaml:"archive,omitempty"`
	Telemetry   *TelemetryConfig   `yaml:"telemetry,omitempty"`
}

// DynamoDBConfig holds DynamoDB connection and table settings.
type DynamoDBConfig struct {
	TableName string `yaml:"tableName" json:"tableName"`
	Region    string `yaml:"region" json:"region"`
	Endpoint  string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	TTLDays   int    `yaml:"ttlDays,omitempty" json:"ttlDays,omitempty"`
}

// PostgresConfig holds the connection string for the relational store.
type PostgresConfig struct {
	DSN string `yaml:"dsn" json:"dsn"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	APIKey       string `yaml:"apiKey,omitempty"`
	MaxBodyBytes int64  `yaml:"maxBodyBytes,omitempty"`
}

// ChainConfig overrides or extends an entry of the built-in chain registry.
// Zero-valued fields keep the built-in value.
type ChainConfig struct {
	Name               string  `yaml:"name" json:"name"`
	ChainID            uint64  `yaml:"chainId,omitempty" json:"chainId,omitempty"`
	Domain             *uint32 `yaml:"domain,omitempty" json:"domain,omitempty"`
	RPCURL             string  `yaml:"rpcUrl,omitempty" json:"rpcUrl,omitempty"`
	BundlerURL         string  `yaml:"bundlerUrl,omitempty" json:"bundlerUrl,omitempty"`
	USDC               string  `yaml:"usdc,omitempty" json:"usdc,omitempty"`
	TokenMessenger     string  `yaml:"tokenMessenger,omitempty" json:"tokenMessenger,omitempty"`
	MessageTransmitter string  `yaml:"messageTransmitter,omitempty" json:"messageTransmitter,omitempty"`
	Paymaster          string  `yaml:"paymaster,omitempty" json:"paymaster,omitempty"`
	Gasless            *bool   `yaml:"gasless,omitempty" json:"gasless,omitempty"`
}

// AttestationConfig controls polling of the attestation service.
type AttestationConfig struct {
	BaseURL     string `yaml:"baseUrl,omitempty"`
	Interval    string `yaml:"interval,omitempty"`    // default "5s"
	MaxAttempts int    `yaml:"maxAttempts,omitempty"` // default 20
	Budget      string `yaml:"budget,omitempty"`      // overall wall-clock budget, default "3m"
}

// TransferConfig holds orchestrator settings.
type TransferConfig struct {
	MarginBaseUnits int64    `yaml:"marginBaseUnits,omitempty"` // default 100000 (0.1 USDC)
	Finality        Finality `yaml:"finality,omitempty"`        // default fast
	ReceiptTimeout  string   `yaml:"receiptTimeout,omitempty"`  // default "2m"
}

// DispatchConfig holds dispatch coordinator settings.
type DispatchConfig struct {
	Concurrency int `yaml:"concurrency,omitempty"` // strategies dispatched in parallel per event, default 1
}

// CredentialConfig selects where the key-encryption key is loaded from.
type CredentialConfig struct {
	Source   string `yaml:"source"` // "env" or "secretsmanager"
	EnvVar   string `yaml:"envVar,omitempty"`
	SecretID string `yaml:"secretId,omitempty"`
}

// AlertConfig defines an alert sink configuration.
type AlertConfig struct {
	Type         AlertType `yaml:"type" json:"type"`
	URL          string    `yaml:"url,omitempty" json:"url,omitempty"`
	TopicARN     string    `yaml:"topicArn,omitempty" json:"topicArn,omitempty"`
	EventBusName string    `yaml:"eventBusName,omitempty" json:"eventBusName,omitempty"`
}

// IngestConfig configures the SQS event consumer.
type IngestConfig struct {
	QueueURL string `yaml:"queueUrl"`
	WaitTime string `yaml:"waitTime,omitempty"` // long-poll wait, default "20s"
}

// WatchdogConfig controls the sweep that closes abandoned executions.
type WatchdogConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Interval   string `yaml:"interval,omitempty"`   // default "5m"
	StaleAfter string `yaml:"staleAfter,omitempty"` // default "30m"
}

// ArchiveConfig mirrors the primary store into Postgres.
type ArchiveConfig struct {
	Enabled  bool   `yaml:"enabled"`
	DSN      string `yaml:"dsn"`
	Interval string `yaml:"interval,omitempty"` // default "5m"
}

// TelemetryConfig configures trace export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint,omitempty"`
	ServiceName  string `yaml:"serviceName,omitempty"`
}
