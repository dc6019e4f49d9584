package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"

	"github.com/dwsmith1983/tripwire/internal/chain"
	"github.com/dwsmith1983/tripwire/internal/gateway"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

const fundingLookupTimeout = 10 * time.Second

// fundingLookup resolves the smart account that holds a signer's funds on c.
type fundingLookup func(ctx context.Context, c chain.Chain, owner common.Address) (common.Address, error)

// lookupFunding is replaced in tests.
var lookupFunding fundingLookup = dialFundingAccount

func dialFundingAccount(ctx context.Context, c chain.Chain, owner common.Address) (common.Address, error) {
	node, closeNode, err := gateway.DialNode(ctx, c)
	if err != nil {
		return common.Address{}, err
	}
	defer closeNode()
	return gateway.SmartAccountAddress(ctx, node, owner)
}

// printFunding shows the signer next to the account that must be funded on
// every source chain the strategy burns from. A failed lookup is reported
// inline rather than failing the command.
func printFunding(ctx context.Context, out io.Writer, chains *chain.Registry, s types.Strategy) {
	if s.OwnerAddress == "" {
		return
	}
	fmt.Fprintf(out, "  signer:  %s (signs operations; not the funding address)\n", s.OwnerAddress)
	owner := common.HexToAddress(s.OwnerAddress)

	seen := map[string]bool{}
	for _, a := range s.Actions {
		if a.Type != types.ActionBridgeGasless || seen[a.SourceChain] {
			continue
		}
		seen[a.SourceChain] = true

		c, err := chains.Lookup(a.SourceChain)
		if err != nil {
			continue
		}
		lctx, cancel := context.WithTimeout(ctx, fundingLookupTimeout)
		addr, err := lookupFunding(lctx, c, owner)
		cancel()
		if err != nil {
			color.New(color.FgYellow).Fprintf(out, "  fund:    unavailable on %s (%v)\n", c.Name, err)
			continue
		}
		fmt.Fprintf(out, "  fund:    %s with USDC on %s\n", addr.Hex(), c.Name)
	}
}
