// Package preflight decides, before anything irreversible happens, whether
// an account can pay for a transfer plus the sponsored mint that completes it.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/dwsmith1983/tripwire/pkg/types"
)

// DefaultMargin is the sponsorship margin in USDC base units (0.1 USDC).
const DefaultMargin = 100_000

// BalanceReader is the slice of a gateway the checker needs.
type BalanceReader interface {
	Address() common.Address
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
}

// Checker compares balances against a requested amount plus margin.
type Checker struct {
	margin   *big.Int
	decimals int32
}

// NewChecker returns a checker with the given margin and token decimals.
func NewChecker(margin int64, decimals int32) *Checker {
	return &Checker{margin: big.NewInt(margin), decimals: decimals}
}

// Result pairs the display verdict with the base-unit values behind it.
type Result struct {
	Verdict     types.BalanceVerdict
	Balance     *big.Int
	Required    *big.Int
	Recommended *big.Int
}

// Check reads the balance of g's account and evaluates it against amount.
// When includeMargin is set the recommended amount is amount + margin, and
// sufficiency is judged against the recommended amount only.
func (c *Checker) Check(ctx context.Context, g BalanceReader, amount *big.Int, includeMargin bool) (Result, error) {
	if amount == nil || amount.Sign() <= 0 {
		return Result{}, errors.New("requested amount must be positive")
	}
	bal, err := g.BalanceOf(ctx, g.Address())
	if err != nil {
		return Result{}, fmt.Errorf("reading balance: %w", err)
	}
	return c.Evaluate(bal, amount, includeMargin), nil
}

// Evaluate is the arithmetic half of Check.
func (c *Checker) Evaluate(balance, amount *big.Int, includeMargin bool) Result {
	recommended := new(big.Int).Set(amount)
	if includeMargin {
		recommended.Add(recommended, c.margin)
	}
	r := Result{
		Balance:     new(big.Int).Set(balance),
		Required:    new(big.Int).Set(amount),
		Recommended: recommended,
		Verdict: types.BalanceVerdict{
			Sufficient:        balance.Cmp(recommended) >= 0,
			CurrentBalance:    c.Format(balance),
			RequiredAmount:    c.Format(amount),
			RecommendedAmount: c.Format(recommended),
		},
	}
	if !r.Verdict.Sufficient {
		r.Verdict.Shortfall = c.Format(new(big.Int).Sub(recommended, balance))
	}
	return r
}

// Format renders base units as a fixed-point decimal string.
func (c *Checker) Format(v *big.Int) string {
	return decimal.NewFromBigInt(v, -c.decimals).StringFixed(c.decimals)
}

// ParseAmount converts a whole-unit decimal string such as "2.5" into base
// units. More fractional digits than the token supports is an error.
func ParseAmount(s string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.Sign() <= 0 {
		return nil, fmt.Errorf("amount %q must be positive", s)
	}
	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", s, decimals)
	}
	return scaled.BigInt(), nil
}
