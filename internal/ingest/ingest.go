// Package ingest consumes events from an SQS queue and hands them to the
// dispatcher.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/dwsmith1983/tripwire/internal/dispatch"
	"github.com/dwsmith1983/tripwire/internal/metrics"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

const (
	maxMessages  = 10
	errorBackoff = time.Second
)

// ErrMalformed marks a message body that can never be processed.
var ErrMalformed = errors.New("malformed event message")

// Redeliver reports whether a message whose handling returned err should stay
// on the queue. Malformed bodies never will succeed, and once strategies have
// run a second delivery would repeat transfers that already moved funds.
func Redeliver(err error) bool {
	return err != nil && !errors.Is(err, ErrMalformed) && !errors.Is(err, dispatch.ErrNotRecorded)
}

// SQSAPI is the subset of the SQS client used by the consumer.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, input *sqs.ReceiveMessageInput, opts ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, input *sqs.DeleteMessageInput, opts ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// EventDispatcher receives decoded events.
type EventDispatcher interface {
	DispatchEvent(ctx context.Context, ev types.Event) ([]types.Execution, error)
}

// Consumer long-polls a queue and dispatches each message as an event.
type Consumer struct {
	client     SQSAPI
	queueURL   string
	waitTime   time.Duration
	dispatcher EventDispatcher
	logger     *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a consumer. waitTime is the long-poll duration, capped at 20s by SQS.
func New(client SQSAPI, queueURL string, waitTime time.Duration, d EventDispatcher, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if waitTime <= 0 || waitTime > 20*time.Second {
		waitTime = 20 * time.Second
	}
	return &Consumer{
		client:     client,
		queueURL:   queueURL,
		waitTime:   waitTime,
		dispatcher: d,
		logger:     logger,
	}
}

// Start begins the receive loop.
func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.logger.Info("ingest consumer started", "queue", c.queueURL)
		for ctx.Err() == nil {
			if err := c.poll(ctx); err != nil && ctx.Err() == nil {
				c.logger.Error("receiving messages", "error", err)
				select {
				case <-ctx.Done():
				case <-time.After(errorBackoff):
				}
			}
		}
		c.logger.Info("ingest consumer stopping")
	}()
}

// Stop cancels the receive loop and waits for in-flight messages.
func (c *Consumer) Stop(ctx context.Context) {
	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("ingest consumer stopped")
	case <-ctx.Done():
		c.logger.Warn("ingest consumer stop timed out")
	}
}

func (c *Consumer) poll(ctx context.Context) error {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: maxMessages,
		WaitTimeSeconds:     int32(c.waitTime / time.Second),
	})
	if err != nil {
		return err
	}
	for _, msg := range out.Messages {
		metrics.IngestMessages.Add(1)
		err := Handle(ctx, c.dispatcher, aws.ToString(msg.Body))
		switch {
		case errors.Is(err, ErrMalformed):
			metrics.IngestErrors.Add(1)
			c.logger.Warn("dropping malformed message", "messageId", aws.ToString(msg.MessageId), "error", err)
		case Redeliver(err):
			// Left on the queue; it becomes visible again after the timeout.
			metrics.IngestErrors.Add(1)
			c.logger.Error("dispatching message", "messageId", aws.ToString(msg.MessageId), "error", err)
			continue
		case err != nil:
			metrics.IngestErrors.Add(1)
			c.logger.Error("acknowledging partly recorded message", "messageId", aws.ToString(msg.MessageId), "error", err)
		}
		if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(c.queueURL),
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			c.logger.Error("deleting message", "messageId", aws.ToString(msg.MessageId), "error", err)
		}
	}
	return nil
}

// Handle decodes one message body and dispatches it. Bodies that are not a
// valid event return an error wrapping ErrMalformed.
func Handle(ctx context.Context, d EventDispatcher, body string) error {
	var ev types.Event
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if ev.Kind == "" {
		return fmt.Errorf("%w: kind is required", ErrMalformed)
	}
	_, err := d.DispatchEvent(ctx, ev)
	return err
}
