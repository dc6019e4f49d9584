package testutil

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dwsmith1983/tripwire/internal/attestation"
	"github.com/dwsmith1983/tripwire/internal/chain"
	"github.com/dwsmith1983/tripwire/internal/gateway"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

// FakeAccount is the address every FakeGateway reports.
var FakeAccount = common.HexToAddress("0x000000000000000000000000000000000000ac01")

// ChainScript configures how fake gateways behave on one chain.
type ChainScript struct {
	Balance    *big.Int
	BalanceErr error
	SubmitErr  error
	ReceiptErr error
	Reverted   bool
	TxHash     string
}

// FakeGateways is a gateway.Factory double that records every call made
// through the gateways it creates.
type FakeGateways struct {
	mu        sync.Mutex
	Scripts   map[string]ChainScript
	NewErr    map[string]error
	created   []string
	submitted map[string][][]gateway.Call
	closed    int
}

// NewFakeGateways creates an empty fake factory.
func NewFakeGateways() *FakeGateways {
	return &FakeGateways{
		Scripts:   make(map[string]ChainScript),
		NewErr:    make(map[string]error),
		submitted: make(map[string][][]gateway.Call),
	}
}

// Factory returns the gateway.Factory backed by f.
func (f *FakeGateways) Factory() gateway.Factory {
	return func(_ context.Context, cred types.Credential, c chain.Chain) (gateway.Gateway, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.created = append(f.created, c.Name)
		if err := f.NewErr[c.Name]; err != nil {
			return nil, err
		}
		if cred.Empty() {
			return nil, gateway.ErrInvalidCredential
		}
		return &fakeGateway{parent: f, chain: c.Name, script: f.Scripts[c.Name]}, nil
	}
}

// Created lists chain names for which gateways were constructed, in order.
func (f *FakeGateways) Created() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

// Submitted returns the call batches submitted on a chain.
func (f *FakeGateways) Submitted(chainName string) [][]gateway.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]gateway.Call(nil), f.submitted[chainName]...)
}

// Closed returns how many gateways were closed.
func (f *FakeGateways) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeGateway struct {
	parent *FakeGateways
	chain  string
	script ChainScript
}

func (g *fakeGateway) Address() common.Address { return FakeAccount }

func (g *fakeGateway) BalanceOf(context.Context, common.Address) (*big.Int, error) {
	if g.script.BalanceErr != nil {
		return nil, g.script.BalanceErr
	}
	if g.script.Balance == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(g.script.Balance), nil
}

func (g *fakeGateway) SubmitSponsoredOperation(_ context.Context, calls []gateway.Call) (string, error) {
	g.parent.mu.Lock()
	g.parent.submitted[g.chain] = append(g.parent.submitted[g.chain], calls)
	g.parent.mu.Unlock()
	if g.script.SubmitErr != nil {
		return "", g.script.SubmitErr
	}
	return "0xop-" + g.chain, nil
}

func (g *fakeGateway) WaitForReceipt(_ context.Context, opHash string) (gateway.Receipt, error) {
	if g.script.ReceiptErr != nil {
		return gateway.Receipt{}, g.script.ReceiptErr
	}
	tx := g.script.TxHash
	if tx == "" {
		tx = "0xtx-" + g.chain
	}
	return gateway.Receipt{OperationHash: opHash, TransactionHash: tx, Success: !g.script.Reverted}, nil
}

func (g *fakeGateway) Close() {
	g.parent.mu.Lock()
	g.parent.closed++
	g.parent.mu.Unlock()
}

// FakeAttester returns a canned attestation or error and records requests.
type FakeAttester struct {
	mu       sync.Mutex
	Result   attestation.Result
	Err      error
	Block    bool
	requests []string
}

// ErrNoAttestation is a convenience error for FakeAttester.
var ErrNoAttestation = errors.New("no attestation configured")

// Poll implements transfer.Attester.
func (a *FakeAttester) Poll(ctx context.Context, _ uint32, txHash string) (attestation.Result, error) {
	a.mu.Lock()
	a.requests = append(a.requests, txHash)
	a.mu.Unlock()
	if a.Block {
		<-ctx.Done()
		return attestation.Result{Attempts: 1}, ctx.Err()
	}
	return a.Result, a.Err
}

// Requests returns the burn hashes passed to Poll.
func (a *FakeAttester) Requests() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.requests...)
}

// CompleteAttestation is a ready-to-mint attestation result.
func CompleteAttestation() attestation.Result {
	return attestation.Result{
		Attestation: attestation.Attestation{Message: []byte{0x01}, Attestation: []byte{0x02}},
		Attempts:    1,
	}
}
