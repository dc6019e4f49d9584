package transfer

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/dwsmith1983/tripwire/internal/attestation"
	"github.com/dwsmith1983/tripwire/internal/chain"
	"github.com/dwsmith1983/tripwire/internal/gateway"
	"github.com/dwsmith1983/tripwire/internal/testutil"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

func usdc(units int64) *big.Int { return big.NewInt(units) }

func testJob() types.TransferJob {
	return types.TransferJob{
		StrategyID:       "strat-1",
		OwnerID:          "user-1",
		Credential:       types.NewCredential([]byte{0x01}),
		Asset:            "USDC",
		Amount:           "5",
		SourceChain:      "arb-sepolia",
		DestinationChain: "base-sepolia",
	}
}

func funded() *testutil.FakeGateways {
	gw := testutil.NewFakeGateways()
	gw.Scripts["arb-sepolia"] = testutil.ChainScript{Balance: usdc(10_000_000), TxHash: "0xburn"}
	gw.Scripts["base-sepolia"] = testutil.ChainScript{TxHash: "0xmint"}
	return gw
}

func newOrchestrator(gw *testutil.FakeGateways, att Attester, opts ...Option) *Orchestrator {
	return New(chain.MustRegistry(), gw.Factory(), att, opts...)
}

func TestRun_Success(t *testing.T) {
	gw := funded()
	att := &testutil.FakeAttester{Result: testutil.CompleteAttestation()}

	res := newOrchestrator(gw, att).Run(context.Background(), testJob())

	require.Nil(t, res.Failure)
	assert.True(t, res.OK())
	assert.Equal(t, types.PhaseMinted, res.Phase)
	assert.Equal(t, []types.TransferPhase{
		types.PhaseInitialized, types.PhaseSourceReady, types.PhaseBalanceVerified,
		types.PhaseBurned, types.PhaseAttested, types.PhaseMinted,
	}, res.Phases)
	assert.Equal(t, "0xburn", res.BurnTxHash)
	assert.Equal(t, "0xmint", res.MintTxHash)
	assert.Equal(t, "5", res.Amount)
	assert.Equal(t, "USDC", res.Asset)
	assert.Equal(t, "base-sepolia", res.DestinationChain)
	require.NotNil(t, res.Verdict)
	assert.True(t, res.Verdict.Sufficient)

	assert.Equal(t, []string{"arb-sepolia", "base-sepolia"}, gw.Created())
	require.Len(t, gw.Submitted("arb-sepolia"), 1)
	assert.Len(t, gw.Submitted("arb-sepolia")[0], 2, "approve and burn travel together")
	require.Len(t, gw.Submitted("base-sepolia"), 1)
	assert.Equal(t, []string{"0xburn"}, att.Requests())
	assert.Equal(t, 2, gw.Closed())
}

func TestRun_InsufficientBalanceStopsBeforeBurn(t *testing.T) {
	gw := funded()
	gw.Scripts["arb-sepolia"] = testutil.ChainScript{Balance: usdc(4_500_000)}
	att := &testutil.FakeAttester{Result: testutil.CompleteAttestation()}

	res := newOrchestrator(gw, att).Run(context.Background(), testJob())

	require.NotNil(t, res.Failure)
	assert.Equal(t, types.ErrInsufficientBalance, res.Failure.Kind)
	assert.Equal(t, types.PhaseFailed, res.Phase)
	require.NotNil(t, res.Verdict)
	assert.False(t, res.Verdict.Sufficient)
	assert.Equal(t, "4.500000", res.Verdict.CurrentBalance)
	assert.Equal(t, "5.100000", res.Verdict.RecommendedAmount)
	assert.Equal(t, "0.600000", res.Verdict.Shortfall)
	assert.Contains(t, res.Failure.Detail, "shortfall 0.600000")
	assert.Contains(t, res.Failure.Detail, testutil.FakeAccount.Hex())

	assert.Empty(t, gw.Submitted("arb-sepolia"), "no burn may be submitted")
	assert.Empty(t, att.Requests())
	assert.Equal(t, 1, gw.Closed())
}

func TestRun_BalanceCoversAmountButNotMargin(t *testing.T) {
	gw := funded()
	gw.Scripts["arb-sepolia"] = testutil.ChainScript{Balance: usdc(5_000_000)}
	res := newOrchestrator(gw, &testutil.FakeAttester{}).Run(context.Background(), testJob())
	require.NotNil(t, res.Failure)
	assert.Equal(t, types.ErrInsufficientBalance, res.Failure.Kind)
	assert.Equal(t, "0.100000", res.Verdict.Shortfall)
}

func TestRun_AttestationExhausted(t *testing.T) {
	gw := funded()
	att := &testutil.FakeAttester{
		Result: attestation.Result{Attempts: 20},
		Err:    attestation.ErrExhausted,
	}

	res := newOrchestrator(gw, att).Run(context.Background(), testJob())

	require.NotNil(t, res.Failure)
	assert.Equal(t, types.ErrAttestationTimeout, res.Failure.Kind)
	assert.Equal(t, 20, res.AttestationAttempts)
	assert.Equal(t, "0xburn", res.BurnTxHash)
	assert.Empty(t, res.MintTxHash)
	assert.Equal(t, []string{"arb-sepolia"}, gw.Created(), "destination gateway never built")
	assert.Empty(t, gw.Submitted("base-sepolia"), "mint never attempted")
	assert.NotContains(t, res.Phases, types.PhaseAttested)
}

func TestRun_AttestationBudget(t *testing.T) {
	gw := funded()
	att := &testutil.FakeAttester{Block: true}

	start := time.Now()
	res := newOrchestrator(gw, att, WithAttestationBudget(20*time.Millisecond)).Run(context.Background(), testJob())

	require.NotNil(t, res.Failure)
	assert.Equal(t, types.ErrAttestationTimeout, res.Failure.Kind)
	assert.ErrorIs(t, res.Failure, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Empty(t, gw.Submitted("base-sepolia"))
}

func TestRun_AttestationRejected(t *testing.T) {
	att := &testutil.FakeAttester{Err: attestation.ErrRejected}
	res := newOrchestrator(funded(), att).Run(context.Background(), testJob())
	require.NotNil(t, res.Failure)
	assert.Equal(t, types.ErrNetwork, res.Failure.Kind)
}

func TestRun_EmptyAttestationNeverMints(t *testing.T) {
	gw := funded()
	att := &testutil.FakeAttester{Result: attestation.Result{Attempts: 1}}
	res := newOrchestrator(gw, att).Run(context.Background(), testJob())
	require.NotNil(t, res.Failure)
	assert.Equal(t, types.ErrAttestationTimeout, res.Failure.Kind)
	assert.Empty(t, gw.Submitted("base-sepolia"))
}

func TestRun_MintSubmissionFails(t *testing.T) {
	gw := funded()
	gw.Scripts["base-sepolia"] = testutil.ChainScript{SubmitErr: errors.New("bundler unavailable")}
	att := &testutil.FakeAttester{Result: testutil.CompleteAttestation()}

	res := newOrchestrator(gw, att).Run(context.Background(), testJob())

	require.NotNil(t, res.Failure)
	assert.Equal(t, types.ErrMintFailed, res.Failure.Kind)
	assert.Equal(t, "0xburn", res.BurnTxHash)
	assert.Empty(t, res.MintTxHash)
	assert.Contains(t, res.Failure.Detail, "0xburn")
	assert.True(t, res.Failure.Kind.Recoverable())
}

func TestRun_MintGatewayFails(t *testing.T) {
	gw := funded()
	gw.NewErr["base-sepolia"] = errors.New("dial tcp: refused")
	res := newOrchestrator(gw, &testutil.FakeAttester{Result: testutil.CompleteAttestation()}).Run(context.Background(), testJob())
	require.NotNil(t, res.Failure)
	assert.Equal(t, types.ErrMintFailed, res.Failure.Kind)
	assert.Equal(t, "0xburn", res.BurnTxHash)
}

func TestRun_MintReverted(t *testing.T) {
	gw := funded()
	gw.Scripts["base-sepolia"] = testutil.ChainScript{Reverted: true, TxHash: "0xbadmint"}
	res := newOrchestrator(gw, &testutil.FakeAttester{Result: testutil.CompleteAttestation()}).Run(context.Background(), testJob())
	require.NotNil(t, res.Failure)
	assert.Equal(t, types.ErrMintFailed, res.Failure.Kind)
	assert.ErrorIs(t, res.Failure, gateway.ErrOperationReverted)
	assert.Contains(t, res.Failure.Detail, "0xbadmint")
	assert.Empty(t, res.MintTxHash)
}

func TestRun_BurnFailures(t *testing.T) {
	tests := []struct {
		name   string
		script testutil.ChainScript
	}{
		{"submit", testutil.ChainScript{Balance: usdc(10_000_000), SubmitErr: errors.New("AA23 reverted")}},
		{"receipt", testutil.ChainScript{Balance: usdc(10_000_000), ReceiptErr: context.DeadlineExceeded}},
		{"reverted", testutil.ChainScript{Balance: usdc(10_000_000), Reverted: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := funded()
			gw.Scripts["arb-sepolia"] = tt.script
			att := &testutil.FakeAttester{Result: testutil.CompleteAttestation()}

			res := newOrchestrator(gw, att).Run(context.Background(), testJob())
			require.NotNil(t, res.Failure)
			assert.Equal(t, types.ErrBurnFailed, res.Failure.Kind)
			assert.Empty(t, res.BurnTxHash)
			assert.Empty(t, att.Requests(), "attestation never requested")
			assert.Equal(t, []string{"arb-sepolia"}, gw.Created())
		})
	}
}

func TestRun_StaticFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.TransferJob)
		kind   types.ErrorKind
	}{
		{"unknown source", func(j *types.TransferJob) { j.SourceChain = "mars" }, types.ErrUnsupportedChain},
		{"unknown destination", func(j *types.TransferJob) { j.DestinationChain = "mars" }, types.ErrUnsupportedChain},
		{"source without sponsorship", func(j *types.TransferJob) { j.SourceChain = "eth-sepolia" }, types.ErrGaslessNotSupported},
		{"destination without sponsorship", func(j *types.TransferJob) { j.DestinationChain = "polygon-amoy" }, types.ErrGaslessNotSupported},
		{"same chain", func(j *types.TransferJob) { j.DestinationChain = "arb-sepolia" }, types.ErrUnsupportedChain},
		{"other asset", func(j *types.TransferJob) { j.Asset = "EURC" }, types.ErrNotImplemented},
		{"no credential", func(j *types.TransferJob) { j.Credential = types.Credential{} }, types.ErrCredentialMissing},
		{"bad amount", func(j *types.TransferJob) { j.Amount = "lots" }, types.ErrUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := funded()
			job := testJob()
			tt.mutate(&job)
			res := newOrchestrator(gw, &testutil.FakeAttester{}).Run(context.Background(), job)
			require.NotNil(t, res.Failure)
			assert.Equal(t, tt.kind, res.Failure.Kind)
			assert.Empty(t, gw.Created(), "no network access before static checks pass")
			assert.Equal(t, []types.TransferPhase{types.PhaseInitialized, types.PhaseFailed}, res.Phases)
		})
	}
}

func TestRun_SourceGatewayFailures(t *testing.T) {
	gw := funded()
	gw.NewErr["arb-sepolia"] = gateway.ErrInvalidCredential
	res := newOrchestrator(gw, &testutil.FakeAttester{}).Run(context.Background(), testJob())
	require.NotNil(t, res.Failure)
	assert.Equal(t, types.ErrCredentialMissing, res.Failure.Kind)

	gw = funded()
	gw.NewErr["arb-sepolia"] = errors.New("no route to host")
	res = newOrchestrator(gw, &testutil.FakeAttester{}).Run(context.Background(), testJob())
	require.NotNil(t, res.Failure)
	assert.Equal(t, types.ErrNetwork, res.Failure.Kind)
}

func TestRun_BalanceReadFails(t *testing.T) {
	gw := funded()
	gw.Scripts["arb-sepolia"] = testutil.ChainScript{BalanceErr: errors.New("429 too many requests")}
	res := newOrchestrator(gw, &testutil.FakeAttester{}).Run(context.Background(), testJob())
	require.NotNil(t, res.Failure)
	assert.Equal(t, types.ErrNetwork, res.Failure.Kind)
	assert.Nil(t, res.Verdict)
	assert.Empty(t, gw.Submitted("arb-sepolia"))
}

type panicAttester struct{}

func (panicAttester) Poll(context.Context, uint32, string) (attestation.Result, error) {
	panic("boom")
}

func TestRun_RecoversPanics(t *testing.T) {
	gw := funded()
	res := newOrchestrator(gw, panicAttester{}).Run(context.Background(), testJob())
	require.NotNil(t, res.Failure)
	assert.Equal(t, types.ErrUnknown, res.Failure.Kind)
	assert.Equal(t, types.PhaseFailed, res.Phase)
	assert.Equal(t, "0xburn", res.BurnTxHash)
	assert.Equal(t, 1, gw.Closed(), "source gateway still closed")
}

func TestRun_Spans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	o := newOrchestrator(funded(), &testutil.FakeAttester{Result: testutil.CompleteAttestation()}, WithTracer(tp.Tracer("test")))

	res := o.Run(context.Background(), testJob())
	require.True(t, res.OK())

	var names []string
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{
		"transfer.source_ready", "transfer.balance", "transfer.burn",
		"transfer.attestation", "transfer.mint", "transfer.run",
	}, names)
}

func TestRun_CredentialNeverInDetail(t *testing.T) {
	gw := funded()
	gw.Scripts["arb-sepolia"] = testutil.ChainScript{Balance: usdc(1)}
	job := testJob()
	job.Credential = types.NewCredential([]byte("super-secret-key-material"))
	res := newOrchestrator(gw, &testutil.FakeAttester{}).Run(context.Background(), job)
	require.NotNil(t, res.Failure)
	assert.NotContains(t, res.Failure.Error(), "super-secret")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want types.ErrorKind
	}{
		{nil, ""},
		{&Failure{Kind: types.ErrMintFailed}, types.ErrMintFailed},
		{chain.ErrUnsupportedChain, types.ErrUnsupportedChain},
		{chain.ErrGaslessNotSupported, types.ErrGaslessNotSupported},
		{gateway.ErrInvalidCredential, types.ErrCredentialMissing},
		{attestation.ErrExhausted, types.ErrAttestationTimeout},
		{context.DeadlineExceeded, types.ErrAttestationTimeout},
		{attestation.ErrRejected, types.ErrNetwork},
		{errors.New("what"), types.ErrUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err))
	}
}
