// Package transfer runs the six-phase fee-sponsored cross-chain transfer:
// gateway setup, balance preflight, burn, attestation, mint.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dwsmith1983/tripwire/internal/attestation"
	"github.com/dwsmith1983/tripwire/internal/chain"
	"github.com/dwsmith1983/tripwire/internal/gateway"
	"github.com/dwsmith1983/tripwire/internal/lifecycle"
	"github.com/dwsmith1983/tripwire/internal/metrics"
	"github.com/dwsmith1983/tripwire/internal/preflight"
	"github.com/dwsmith1983/tripwire/internal/telemetry"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

// Orchestrator defaults.
const (
	DefaultAttestationBudget = 3 * time.Minute
	DefaultReceiptTimeout    = 2 * time.Minute
)

// Attester obtains the attestation for a burn.
type Attester interface {
	Poll(ctx context.Context, sourceDomain uint32, txHash string) (attestation.Result, error)
}

// Result is the terminal outcome of one transfer. Failure is nil on success.
type Result struct {
	Phase               types.TransferPhase
	Phases              []types.TransferPhase
	BurnTxHash          string
	MintTxHash          string
	Amount              string
	Asset               string
	DestinationChain    string
	Verdict             *types.BalanceVerdict
	AttestationAttempts int
	Failure             *Failure
}

// OK reports whether the transfer reached PhaseMinted.
func (r Result) OK() bool { return r.Failure == nil && r.Phase == types.PhaseMinted }

// Orchestrator composes gateways, the preflight checker and the attester.
// It returns outcomes and never writes to storage.
type Orchestrator struct {
	chains            *chain.Registry
	gateways          gateway.Factory
	attester          Attester
	checker           *preflight.Checker
	finality          types.Finality
	attestationBudget time.Duration
	receiptTimeout    time.Duration
	logger            *slog.Logger
	tracer            trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithChecker replaces the default balance checker.
func WithChecker(c *preflight.Checker) Option { return func(o *Orchestrator) { o.checker = c } }

// WithFinality selects fast or standard burn finality.
func WithFinality(f types.Finality) Option { return func(o *Orchestrator) { o.finality = f } }

// WithAttestationBudget bounds the wall-clock time spent waiting for an attestation.
func WithAttestationBudget(d time.Duration) Option {
	return func(o *Orchestrator) { o.attestationBudget = d }
}

// WithReceiptTimeout bounds each wait for a sponsored operation receipt.
func WithReceiptTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.receiptTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option { return func(o *Orchestrator) { o.tracer = t } }

// New creates an orchestrator.
func New(chains *chain.Registry, gateways gateway.Factory, attester Attester, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		chains:            chains,
		gateways:          gateways,
		attester:          attester,
		checker:           preflight.NewChecker(preflight.DefaultMargin, chain.USDCDecimals),
		finality:          types.FinalityFast,
		attestationBudget: DefaultAttestationBudget,
		receiptTimeout:    DefaultReceiptTimeout,
		logger:            slog.Default(),
		tracer:            telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run carries per-transfer state between phases.
type run struct {
	job    types.TransferJob
	src    chain.Chain
	dst    chain.Chain
	amount preflight.Result
	trace  *lifecycle.Trace
	res    *Result
}

// Run executes job to a terminal phase. Every failure, including a panic in
// a collaborator, is returned as Result.Failure.
func (o *Orchestrator) Run(ctx context.Context, job types.TransferJob) (res Result) {
	ctx, span := o.tracer.Start(ctx, "transfer.run", trace.WithAttributes(
		attribute.String("strategy.id", job.StrategyID),
		attribute.String("chain.source", job.SourceChain),
		attribute.String("chain.destination", job.DestinationChain),
	))
	defer span.End()

	metrics.TransfersStarted.Add(1)
	r := &run{job: job, trace: lifecycle.NewTrace(), res: &res}
	res.Amount = job.Amount
	res.Asset = job.Asset
	res.DestinationChain = job.DestinationChain

	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("transfer panicked", "strategyID", job.StrategyID, "phase", r.trace.Current(), "panic", p)
			o.finish(r, fail(types.ErrUnknown, fmt.Errorf("panic: %v", p), "unexpected failure during %s", r.trace.Current()))
		}
		res.Phases = r.trace.Phases()
		if res.Failure != nil {
			span.SetStatus(codes.Error, string(res.Failure.Kind))
			metrics.TransferFailures.Add(string(res.Failure.Kind), 1)
		} else {
			metrics.TransfersCompleted.Add(1)
		}
	}()

	if f := o.resolve(r); f != nil {
		o.finish(r, f)
		return res
	}

	src, f := o.sourceReady(ctx, r)
	if f != nil {
		o.finish(r, f)
		return res
	}
	defer src.Close()

	if f := o.verifyBalance(ctx, r, src); f != nil {
		o.finish(r, f)
		return res
	}
	if f := o.burn(ctx, r, src); f != nil {
		o.finish(r, f)
		return res
	}
	att, f := o.attest(ctx, r)
	if f != nil {
		o.finish(r, f)
		return res
	}
	if f := o.mint(ctx, r, att); f != nil {
		o.finish(r, f)
		return res
	}
	res.Phase = types.PhaseMinted
	o.logger.Info("transfer complete",
		"strategyID", job.StrategyID,
		"amount", job.Amount,
		"source", r.src.Name,
		"destination", r.dst.Name,
		"burnTx", res.BurnTxHash,
		"mintTx", res.MintTxHash,
	)
	return res
}

func (o *Orchestrator) finish(r *run, f *Failure) {
	if err := r.trace.Advance(types.PhaseFailed); err != nil {
		o.logger.Error("cannot fail terminal transfer", "phase", r.trace.Current(), "error", err)
	}
	r.res.Phase = types.PhaseFailed
	r.res.Failure = f
	attrs := []interface{}{
		"strategyID", r.job.StrategyID,
		"kind", f.Kind,
		"detail", f.Detail,
		"burnTx", r.res.BurnTxHash,
	}
	if f.Err != nil {
		attrs = append(attrs, "error", f.Err)
	}
	o.logger.Error("transfer failed", attrs...)
}

func (o *Orchestrator) advance(r *run, p types.TransferPhase) *Failure {
	if err := r.trace.Advance(p); err != nil {
		return fail(types.ErrUnknown, err, "phase ordering violated")
	}
	return nil
}

// resolve performs the static checks that need no network access.
func (o *Orchestrator) resolve(r *run) *Failure {
	src, err := o.chains.RequireGasless(r.job.SourceChain)
	if err != nil {
		return fail(Classify(err), err, "source chain %q", r.job.SourceChain)
	}
	dst, err := o.chains.RequireGasless(r.job.DestinationChain)
	if err != nil {
		return fail(Classify(err), err, "destination chain %q", r.job.DestinationChain)
	}
	if src.ChainID == dst.ChainID {
		return fail(types.ErrUnsupportedChain, nil, "source and destination are both %s", src.Name)
	}
	if !strings.EqualFold(r.job.Asset, "USDC") {
		return fail(types.ErrNotImplemented, nil, "bridging %q is not implemented; only USDC is supported", r.job.Asset)
	}
	if r.job.Credential.Empty() {
		return fail(types.ErrCredentialMissing, nil, "no signing credential for strategy %s", r.job.StrategyID)
	}
	amount, err := preflight.ParseAmount(r.job.Amount, chain.USDCDecimals)
	if err != nil {
		return fail(types.ErrUnknown, err, "invalid transfer amount")
	}
	r.src, r.dst = src, dst
	r.amount = preflight.Result{Required: amount}
	return nil
}

func (o *Orchestrator) phaseSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, "transfer."+name)
}

func endSpan(span trace.Span, f *Failure) {
	if f != nil {
		span.SetStatus(codes.Error, f.Detail)
		if f.Err != nil {
			span.RecordError(f.Err)
		}
	}
	span.End()
}

// Phase 1: INITIALIZED -> SOURCE_READY.
func (o *Orchestrator) sourceReady(ctx context.Context, r *run) (g gateway.Gateway, f *Failure) {
	ctx, span := o.phaseSpan(ctx, "source_ready")
	defer func() { endSpan(span, f) }()

	g, err := o.gateways(ctx, r.job.Credential, r.src)
	if err != nil {
		kind := types.ErrNetwork
		if errors.Is(err, gateway.ErrInvalidCredential) {
			kind = types.ErrCredentialMissing
		}
		return nil, fail(kind, err, "preparing account on %s", r.src.Name)
	}
	if f := o.advance(r, types.PhaseSourceReady); f != nil {
		g.Close()
		return nil, f
	}
	return g, nil
}

// Phase 2: SOURCE_READY -> BALANCE_VERIFIED. Nothing irreversible may run
// before this returns nil.
func (o *Orchestrator) verifyBalance(ctx context.Context, r *run, g gateway.Gateway) (f *Failure) {
	ctx, span := o.phaseSpan(ctx, "balance")
	defer func() { endSpan(span, f) }()

	pr, err := o.checker.Check(ctx, g, r.amount.Required, true)
	if err != nil {
		return fail(types.ErrNetwork, err, "reading balance of %s on %s", g.Address().Hex(), r.src.Name)
	}
	r.amount = pr
	v := pr.Verdict
	r.res.Verdict = &v
	if !v.Sufficient {
		return fail(types.ErrInsufficientBalance, nil,
			"balance %s USDC on %s is below the recommended %s (amount %s plus sponsorship margin); shortfall %s, fund %s",
			v.CurrentBalance, r.src.Name, v.RecommendedAmount, v.RequiredAmount, v.Shortfall, g.Address().Hex())
	}
	return o.advance(r, types.PhaseBalanceVerified)
}

func (o *Orchestrator) submitAndWait(ctx context.Context, g gateway.Gateway, calls []gateway.Call) (gateway.Receipt, error) {
	opHash, err := g.SubmitSponsoredOperation(ctx, calls)
	if err != nil {
		return gateway.Receipt{}, fmt.Errorf("submitting operation: %w", err)
	}
	wctx, cancel := context.WithTimeout(ctx, o.receiptTimeout)
	defer cancel()
	rcpt, err := g.WaitForReceipt(wctx, opHash)
	if err != nil {
		return gateway.Receipt{OperationHash: opHash}, err
	}
	if !rcpt.Success {
		return rcpt, fmt.Errorf("%w: tx %s", gateway.ErrOperationReverted, rcpt.TransactionHash)
	}
	return rcpt, nil
}

func lastSeen(r gateway.Receipt) string {
	if r.TransactionHash != "" {
		return r.TransactionHash
	}
	if r.OperationHash != "" {
		return "operation " + r.OperationHash
	}
	return "none"
}

// Phase 3: BALANCE_VERIFIED -> BURNED. The mint recipient is the same smart
// account address, which is identical on every chain for a given owner.
func (o *Orchestrator) burn(ctx context.Context, r *run, g gateway.Gateway) (f *Failure) {
	ctx, span := o.phaseSpan(ctx, "burn")
	defer func() { endSpan(span, f) }()

	if !r.trace.Visited(types.PhaseBalanceVerified) {
		return fail(types.ErrUnknown, nil, "burn attempted before balance verification")
	}
	calls, err := gateway.BurnCalls(gateway.BurnRequest{
		Source:      r.src,
		Destination: r.dst,
		Recipient:   g.Address(),
		Amount:      r.amount.Required,
		Finality:    o.finality,
	})
	if err != nil {
		return fail(types.ErrBurnFailed, err, "encoding burn")
	}
	rcpt, err := o.submitAndWait(ctx, g, calls)
	if err != nil {
		return fail(types.ErrBurnFailed, err, "burn on %s did not complete (last seen: %s)", r.src.Name, lastSeen(rcpt))
	}
	r.res.BurnTxHash = rcpt.TransactionHash
	span.SetAttributes(attribute.String("tx.burn", rcpt.TransactionHash))
	return o.advance(r, types.PhaseBurned)
}

// Phase 4: BURNED -> ATTESTED, bounded by the attestation budget.
func (o *Orchestrator) attest(ctx context.Context, r *run) (a attestation.Attestation, f *Failure) {
	ctx, span := o.phaseSpan(ctx, "attestation")
	defer func() { endSpan(span, f) }()

	actx, cancel := context.WithTimeout(ctx, o.attestationBudget)
	defer cancel()

	res, err := o.attester.Poll(actx, r.src.Domain, r.res.BurnTxHash)
	r.res.AttestationAttempts = res.Attempts
	if err != nil {
		kind := types.ErrAttestationTimeout
		if errors.Is(err, attestation.ErrRejected) {
			kind = types.ErrNetwork
		}
		return a, fail(kind, err, "no attestation for burn %s after %d attempts; funds are burned and claimable once attested", r.res.BurnTxHash, res.Attempts)
	}
	if len(res.Attestation.Attestation) == 0 {
		return a, fail(types.ErrAttestationTimeout, nil, "empty attestation for burn %s", r.res.BurnTxHash)
	}
	return res.Attestation, o.advance(r, types.PhaseAttested)
}

// Phase 5: ATTESTED -> MINTED, on a fresh gateway bound to the destination.
func (o *Orchestrator) mint(ctx context.Context, r *run, a attestation.Attestation) (f *Failure) {
	ctx, span := o.phaseSpan(ctx, "mint")
	defer func() { endSpan(span, f) }()

	if !r.trace.Visited(types.PhaseAttested) || len(a.Attestation) == 0 {
		return fail(types.ErrUnknown, nil, "mint attempted without an attestation")
	}
	g, err := o.gateways(ctx, r.job.Credential, r.dst)
	if err != nil {
		return fail(types.ErrMintFailed, err, "preparing account on %s; burn %s can be minted later", r.dst.Name, r.res.BurnTxHash)
	}
	defer g.Close()

	calls, err := gateway.MintCalls(r.dst, a.Message, a.Attestation)
	if err != nil {
		return fail(types.ErrMintFailed, err, "encoding mint")
	}
	rcpt, err := o.submitAndWait(ctx, g, calls)
	if err != nil {
		return fail(types.ErrMintFailed, err, "mint on %s did not complete for burn %s (last seen: %s)", r.dst.Name, r.res.BurnTxHash, lastSeen(rcpt))
	}
	r.res.MintTxHash = rcpt.TransactionHash
	span.SetAttributes(attribute.String("tx.mint", rcpt.TransactionHash))
	return o.advance(r, types.PhaseMinted)
}
