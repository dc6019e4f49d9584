package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dwsmith1983/tripwire/internal/dispatch"
	"github.com/dwsmith1983/tripwire/internal/testutil"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockSQS serves queued batches once, then blocks like a long poll.
type mockSQS struct {
	mu         sync.Mutex
	batches    [][]sqstypes.Message
	receiveErr error
	deleted    []string
}

func (m *mockSQS) ReceiveMessage(ctx context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	m.mu.Lock()
	if m.receiveErr != nil {
		err := m.receiveErr
		m.receiveErr = nil
		m.mu.Unlock()
		return nil, err
	}
	if len(m.batches) > 0 {
		b := m.batches[0]
		m.batches = m.batches[1:]
		m.mu.Unlock()
		return &sqs.ReceiveMessageOutput{Messages: b}, nil
	}
	m.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (m *mockSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	m.mu.Lock()
	m.deleted = append(m.deleted, aws.ToString(in.ReceiptHandle))
	m.mu.Unlock()
	return &sqs.DeleteMessageOutput{}, nil
}

func (m *mockSQS) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

type recordDispatcher struct {
	mu     sync.Mutex
	events []types.Event
	err    error
}

func (r *recordDispatcher) DispatchEvent(_ context.Context, ev types.Event) ([]types.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil, r.err
}

func (r *recordDispatcher) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func message(id, body string) sqstypes.Message {
	return sqstypes.Message{MessageId: aws.String(id), ReceiptHandle: aws.String("rh-" + id), Body: aws.String(body)}
}

func runConsumer(t *testing.T, client *mockSQS, d EventDispatcher) *Consumer {
	t.Helper()
	c := New(client, "https://sqs.local/events", time.Second, d, nil)
	c.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		c.Stop(ctx)
	})
	return c
}

func TestConsumer_DispatchesAndDeletes(t *testing.T) {
	client := &mockSQS{batches: [][]sqstypes.Message{{
		message("1", `{"id":"ev-1","kind":"social","sourceAccount":"elonmusk","content":"doge"}`),
		message("2", `{"id":"ev-2","kind":"connection","content":"linked"}`),
	}}}
	d := &recordDispatcher{}
	runConsumer(t, client, d)

	testutil.WaitFor(t, 2*time.Second, func() bool { return len(client.Deleted()) == 2 }, "consumer progress")
	assert.Equal(t, 2, d.Count())
	assert.Equal(t, []string{"rh-1", "rh-2"}, client.Deleted())
}

func TestConsumer_MalformedDropped(t *testing.T) {
	client := &mockSQS{batches: [][]sqstypes.Message{{
		message("bad", `not json`),
		message("nokind", `{"content":"x"}`),
	}}}
	d := &recordDispatcher{}
	runConsumer(t, client, d)

	testutil.WaitFor(t, 2*time.Second, func() bool { return len(client.Deleted()) == 2 }, "consumer progress")
	assert.Zero(t, d.Count())
}

func TestConsumer_DispatchFailureLeavesMessage(t *testing.T) {
	client := &mockSQS{batches: [][]sqstypes.Message{
		{message("1", `{"kind":"social","content":"x"}`)},
		{message("2", `{"kind":"social","content":"y"}`)},
	}}
	d := &recordDispatcher{err: errors.New("store down")}
	runConsumer(t, client, d)

	testutil.WaitFor(t, 2*time.Second, func() bool { return d.Count() == 2 }, "consumer progress")
	assert.Empty(t, client.Deleted())
}

func TestConsumer_UnrecordedOutcomeAcknowledged(t *testing.T) {
	client := &mockSQS{batches: [][]sqstypes.Message{{message("1", `{"kind":"social","content":"x"}`)}}}
	d := &recordDispatcher{err: fmt.Errorf("%w: finalizing execution e1: throttled", dispatch.ErrNotRecorded)}
	runConsumer(t, client, d)

	testutil.WaitFor(t, 2*time.Second, func() bool { return len(client.Deleted()) == 1 }, "consumer progress")
	assert.Equal(t, 1, d.Count())
}

func TestRedeliver(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"success", nil, false},
		{"malformed", fmt.Errorf("%w: bad json", ErrMalformed), false},
		{"archive failure", errors.New("archiving event ev-1: disk full"), true},
		{"unrecorded outcome", fmt.Errorf("%w: throttled", dispatch.ErrNotRecorded), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Redeliver(tt.err))
		})
	}
}

func TestConsumer_ReceiveErrorBacksOff(t *testing.T) {
	client := &mockSQS{
		receiveErr: errors.New("throttled"),
		batches:    [][]sqstypes.Message{{message("1", `{"kind":"social","content":"x"}`)}},
	}
	d := &recordDispatcher{}
	runConsumer(t, client, d)

	testutil.WaitFor(t, 3*time.Second, func() bool { return d.Count() == 1 }, "consumer progress")
}

func TestHandle(t *testing.T) {
	d := &recordDispatcher{}
	require.NoError(t, Handle(context.Background(), d, `{"kind":"social","content":"x"}`))
	assert.ErrorIs(t, Handle(context.Background(), d, `{`), ErrMalformed)

	d.err = fmt.Errorf("boom")
	err := Handle(context.Background(), d, `{"kind":"social"}`)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformed)
}

func TestNew_ClampsWaitTime(t *testing.T) {
	c := New(&mockSQS{}, "q", time.Minute, &recordDispatcher{}, nil)
	assert.Equal(t, 20*time.Second, c.waitTime)
}
