package commands

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/tripwire/internal/chain"
	"github.com/dwsmith1983/tripwire/internal/config"
	"github.com/dwsmith1983/tripwire/internal/gateway"
	"github.com/dwsmith1983/tripwire/internal/preflight"
)

// NewBalanceCmd creates the balance command.
func NewBalanceCmd() *cobra.Command {
	var (
		chainName string
		address   string
		amount    string
		noMargin  bool
	)

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Check whether an account holds enough USDC for a transfer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(address) {
				return fmt.Errorf("invalid address %q", address)
			}
			want, err := preflight.ParseAmount(amount, chain.USDCDecimals)
			if err != nil {
				return err
			}
			cfg, err := config.Load(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			chains, err := chain.NewRegistry(cfg.Chains)
			if err != nil {
				return err
			}
			c, err := chains.Lookup(chainName)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			node, closeNode, err := gateway.DialNode(ctx, c)
			if err != nil {
				return err
			}
			defer closeNode()

			reader := &nodeBalance{node: node, chain: c, account: common.HexToAddress(address)}
			checker := preflight.NewChecker(cfg.Transfer.MarginBaseUnits, chain.USDCDecimals)
			return checkBalance(ctx, cmd.OutOrStdout(), checker, reader, want, !noMargin)
		},
	}
	cmd.Flags().StringVar(&chainName, "chain", "", "Chain name (required)")
	cmd.Flags().StringVar(&address, "address", "", "Account address (required)")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in whole USDC (required)")
	cmd.Flags().BoolVar(&noMargin, "no-margin", false, "Judge against the bare amount, without the sponsorship margin")
	_ = cmd.MarkFlagRequired("chain")
	_ = cmd.MarkFlagRequired("address")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

// nodeBalance reads balances without a signing key.
type nodeBalance struct {
	node    gateway.NodeAPI
	chain   chain.Chain
	account common.Address
}

func (n *nodeBalance) Address() common.Address { return n.account }

func (n *nodeBalance) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return gateway.ReadBalance(ctx, n.node, n.chain, owner)
}

func checkBalance(ctx context.Context, out io.Writer, checker *preflight.Checker, r preflight.BalanceReader, amount *big.Int, includeMargin bool) error {
	res, err := checker.Check(ctx, r, amount, includeMargin)
	if err != nil {
		return err
	}
	v := res.Verdict
	fmt.Fprintf(out, "Account:     %s\n", r.Address().Hex())
	fmt.Fprintf(out, "Balance:     %s USDC\n", v.CurrentBalance)
	fmt.Fprintf(out, "Required:    %s USDC\n", v.RequiredAmount)
	fmt.Fprintf(out, "Recommended: %s USDC\n", v.RecommendedAmount)
	if v.Sufficient {
		color.New(color.FgGreen).Fprintln(out, "✓ Sufficient")
		return nil
	}
	color.New(color.FgRed).Fprintf(out, "✗ Insufficient, top up %s USDC\n", v.Shortfall)
	return nil
}
