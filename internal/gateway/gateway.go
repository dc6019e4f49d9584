// Package gateway wraps one (signing key, chain) pair behind the three
// capabilities a transfer leg needs: read a balance, submit a sponsored
// operation, wait for its receipt.
package gateway

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dwsmith1983/tripwire/internal/chain"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

var (
	// ErrOperationReverted is returned by callers when a receipt reports failure.
	ErrOperationReverted = errors.New("sponsored operation reverted")
	// ErrInvalidCredential is returned when the signing key is absent or malformed.
	ErrInvalidCredential = errors.New("invalid signing credential")
)

// Receipt is the mined result of a sponsored operation.
type Receipt struct {
	OperationHash   string `json:"userOpHash"`
	TransactionHash string `json:"transactionHash"`
	Success         bool   `json:"success"`
}

// Gateway is bound to a single key on a single chain. Instances are never
// shared between transfers; Close releases the key and the transports.
type Gateway interface {
	// Address is the account that holds funds and sends operations.
	Address() common.Address
	// BalanceOf returns the USDC balance of owner in base units.
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	SubmitSponsoredOperation(ctx context.Context, calls []Call) (string, error)
	WaitForReceipt(ctx context.Context, opHash string) (Receipt, error)
	Close()
}

// Factory builds a gateway for a (credential, chain) pair.
type Factory func(ctx context.Context, cred types.Credential, c chain.Chain) (Gateway, error)

// NewFactory returns a Factory producing EVM gateways with opts applied.
func NewFactory(opts ...Option) Factory {
	return func(ctx context.Context, cred types.Credential, c chain.Chain) (Gateway, error) {
		return NewEVM(ctx, cred, c, opts...)
	}
}
