// Package metrics exposes runtime counters via expvar.
package metrics

import "expvar"

var (
	EventsReceived      = expvar.NewInt("events_received")
	StrategiesMatched   = expvar.NewInt("strategies_matched")
	ExecutionsTotal     = expvar.NewInt("executions_total")
	ExecutionsFailed    = expvar.NewInt("executions_failed")
	ExecutionsAbandoned = expvar.NewInt("executions_abandoned")
	TransfersStarted    = expvar.NewInt("transfers_started")
	TransfersCompleted  = expvar.NewInt("transfers_completed")
	TransferFailures    = expvar.NewMap("transfer_failures")
	AttestationAttempts = expvar.NewInt("attestation_attempts")
	AlertsDispatched    = expvar.NewInt("alerts_dispatched")
	AlertsFailed        = expvar.NewInt("alerts_failed")
	IngestMessages      = expvar.NewInt("ingest_messages")
	IngestErrors        = expvar.NewInt("ingest_errors")
)
