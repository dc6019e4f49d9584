package main

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/tripwire/internal/chain"
	"github.com/dwsmith1983/tripwire/internal/dispatch"
	"github.com/dwsmith1983/tripwire/internal/testutil"
	"github.com/dwsmith1983/tripwire/internal/transfer"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

type stubDispatcher struct {
	fail   map[string]error
	events []types.Event
}

func (s *stubDispatcher) DispatchEvent(_ context.Context, ev types.Event) ([]types.Execution, error) {
	s.events = append(s.events, ev)
	if err := s.fail[ev.Content]; err != nil {
		return nil, err
	}
	return nil, nil
}

func record(id, body string) events.SQSMessage {
	return events.SQSMessage{MessageId: id, Body: body}
}

func TestHandleSQSEvent_AllSucceed(t *testing.T) {
	d := &stubDispatcher{}
	resp := handleSQSEvent(context.Background(), d, slog.Default(), events.SQSEvent{Records: []events.SQSMessage{
		record("m1", `{"kind":"social","sourceAccount":"elonmusk","content":"doge"}`),
		record("m2", `{"kind":"connection","content":"new follower"}`),
	}})

	assert.Empty(t, resp.BatchItemFailures)
	require.Len(t, d.events, 2)
	assert.Equal(t, types.EventSocial, d.events[0].Kind)
	assert.Equal(t, "elonmusk", d.events[0].SourceAccount)
	assert.Equal(t, types.EventConnection, d.events[1].Kind)
}

func TestHandleSQSEvent_MalformedDropped(t *testing.T) {
	d := &stubDispatcher{}
	resp := handleSQSEvent(context.Background(), d, slog.Default(), events.SQSEvent{Records: []events.SQSMessage{
		record("m1", `not json`),
		record("m2", `{"content":"no kind"}`),
		record("m3", `{"kind":"social","content":"ok"}`),
	}})

	assert.Empty(t, resp.BatchItemFailures)
	require.Len(t, d.events, 1)
	assert.Equal(t, "ok", d.events[0].Content)
}

func TestHandleSQSEvent_DispatchFailureReported(t *testing.T) {
	d := &stubDispatcher{fail: map[string]error{"boom": errors.New("storage unavailable")}}
	resp := handleSQSEvent(context.Background(), d, slog.Default(), events.SQSEvent{Records: []events.SQSMessage{
		record("m1", `{"kind":"social","content":"boom"}`),
		record("m2", `{"kind":"social","content":"fine"}`),
	}})

	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "m1", resp.BatchItemFailures[0].ItemIdentifier)
	assert.Len(t, d.events, 2)
}

type staticKey struct{}

func (staticKey) Resolve(context.Context, types.Strategy) (types.Credential, error) {
	return types.NewCredential([]byte{0x01, 0x02, 0x03, 0x04}), nil
}

func TestHandleSQSEvent_UnrecordedOutcomeNotRedelivered(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMockProvider()
	gw := testutil.NewFakeGateways()
	gw.Scripts["arb-sepolia"] = testutil.ChainScript{Balance: big.NewInt(100_000_000), TxHash: "0xburn"}
	gw.Scripts["base-sepolia"] = testutil.ChainScript{TxHash: "0xmint"}
	orch := transfer.New(chain.MustRegistry(), gw.Factory(), &testutil.FakeAttester{Result: testutil.CompleteAttestation()})
	coord := dispatch.New(store, orch, staticKey{})

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b"} {
		require.NoError(t, store.PutStrategy(ctx, types.Strategy{
			ID:        id,
			Name:      id,
			Triggers:  []types.Trigger{{Kind: types.EventSocial, Keywords: []string{"bridge"}}},
			Actions:   []types.Action{{Type: types.ActionBridgeGasless, Asset: "USDC", Amount: "1", SourceChain: "arb-sepolia", DestinationChain: "base-sepolia"}},
			Active:    true,
			CreatedAt: created.Add(time.Duration(i) * time.Second),
		}))
	}
	store.FinalizeHook = func(e types.Execution) error {
		if e.StrategyID == "b" {
			return errors.New("throttled")
		}
		return nil
	}

	batch := events.SQSEvent{Records: []events.SQSMessage{record("m1", `{"id":"ev-1","kind":"social","content":"bridge now"}`)}}
	resp := handleSQSEvent(ctx, coord, slog.Default(), batch)

	assert.Empty(t, resp.BatchItemFailures, "transfers already ran; the message must not come back")
	assert.Len(t, gw.Submitted("arb-sepolia"), 2, "one burn per matched strategy")
	execs, err := store.ListExecutions(ctx, "a", 10)
	require.NoError(t, err)
	assert.Len(t, execs, 1)
}

func TestHandleSQSEvent_PreMatchFailureRedelivered(t *testing.T) {
	store := testutil.NewMockProvider()
	store.AppendErr = errors.New("table unavailable")
	coord := dispatch.New(store, transfer.New(chain.MustRegistry(), testutil.NewFakeGateways().Factory(), &testutil.FakeAttester{}), staticKey{})

	resp := handleSQSEvent(context.Background(), coord, slog.Default(), events.SQSEvent{Records: []events.SQSMessage{
		record("m1", `{"kind":"social","content":"bridge now"}`),
	}})

	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "m1", resp.BatchItemFailures[0].ItemIdentifier)
}
