// dispatcher Lambda receives events from SQS and dispatches every matching
// strategy.
package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	awslambda "github.com/aws/aws-lambda-go/lambda"

	"github.com/dwsmith1983/tripwire/internal/ingest"
	intlambda "github.com/dwsmith1983/tripwire/internal/lambda"
	"github.com/dwsmith1983/tripwire/internal/metrics"
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

// handleSQSEvent dispatches each record in order. Malformed records are
// dropped. Records that failed before any strategy ran are reported back so
// SQS redelivers only those; failures to record an outcome are acknowledged.
func handleSQSEvent(ctx context.Context, d ingest.EventDispatcher, logger *slog.Logger, event events.SQSEvent) events.SQSEventResponse {
	var resp events.SQSEventResponse
	for _, record := range event.Records {
		metrics.IngestMessages.Add(1)
		err := ingest.Handle(ctx, d, record.Body)
		switch {
		case err == nil:
		case errors.Is(err, ingest.ErrMalformed):
			metrics.IngestErrors.Add(1)
			logger.Warn("dropping malformed message", "messageId", record.MessageId, "error", err)
		case !ingest.Redeliver(err):
			metrics.IngestErrors.Add(1)
			logger.Error("acknowledging partly recorded message", "messageId", record.MessageId, "error", err)
		default:
			metrics.IngestErrors.Add(1)
			logger.Error("dispatch failed", "messageId", record.MessageId, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
		}
	}
	return resp
}

func main() {
	awslambda.Start(func(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
		d, err := getDeps()
		if err != nil {
			return events.SQSEventResponse{}, err
		}
		return handleSQSEvent(ctx, d.App.Coordinator, d.Logger, event), nil
	})
}
