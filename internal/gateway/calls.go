package gateway

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dwsmith1983/tripwire/internal/chain"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

// Call is one contract invocation inside a sponsored operation.
type Call struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// BurnRequest describes the source-chain half of a cross-chain transfer.
type BurnRequest struct {
	Source      chain.Chain
	Destination chain.Chain
	Recipient   common.Address
	Amount      *big.Int
	Finality    types.Finality
}

// MintRecipient left-pads an address into the fixed-width recipient field.
func MintRecipient(addr common.Address) [32]byte {
	var out [32]byte
	copy(out[:], common.LeftPadBytes(addr.Bytes(), 32))
	return out
}

// MaxFee is the fee ceiling for a burn: one base unit less than the amount,
// so the fee can never consume the whole principal.
func MaxFee(amount *big.Int) *big.Int {
	if amount.Sign() <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Sub(amount, big.NewInt(1))
}

// BurnCalls returns the approve + depositForBurn pair submitted as one
// sponsored operation on the source chain.
func BurnCalls(req BurnRequest) ([]Call, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, errors.New("burn amount must be positive")
	}
	approve, err := erc20.Pack("approve", req.Source.TokenMessenger, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("encoding approve: %w", err)
	}
	burn, err := tokenMessenger.Pack("depositForBurn",
		req.Amount,
		req.Destination.Domain,
		MintRecipient(req.Recipient),
		req.Source.USDC,
		[32]byte{},
		MaxFee(req.Amount),
		req.Finality.Threshold(),
	)
	if err != nil {
		return nil, fmt.Errorf("encoding depositForBurn: %w", err)
	}
	return []Call{
		{To: req.Source.USDC, Value: new(big.Int), Data: approve},
		{To: req.Source.TokenMessenger, Value: new(big.Int), Data: burn},
	}, nil
}

// MintCalls returns the receiveMessage call submitted on the destination chain.
func MintCalls(dest chain.Chain, message, attestation []byte) ([]Call, error) {
	if len(attestation) == 0 {
		return nil, errors.New("attestation is empty")
	}
	data, err := msgTransmitter.Pack("receiveMessage", message, attestation)
	if err != nil {
		return nil, fmt.Errorf("encoding receiveMessage: %w", err)
	}
	return []Call{{To: dest.MessageTransmitter, Value: new(big.Int), Data: data}}, nil
}
