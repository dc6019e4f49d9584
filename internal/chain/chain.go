// Package chain is the registry of EVM networks a transfer can touch.
package chain

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/dwsmith1983/tripwire/pkg/types"
)

// USDCDecimals is the number of decimals of USDC on every supported chain.
const USDCDecimals = 6

// Contract addresses shared by every supported testnet.
var (
	TokenMessengerV2     = common.HexToAddress("0x8FE6B999Dc680CcFDD5Bf7EB0974218be2542DAA")
	MessageTransmitterV2 = common.HexToAddress("0xE737e5cEBEEBa77EFE34D4aa090756590b1CE275")
	DefaultPaymaster     = common.HexToAddress("0x31BE08D380A21fc740883c0BC434FcFc88740b58")
)

var (
	// ErrUnsupportedChain is returned for a chain name or ID the registry does not know.
	ErrUnsupportedChain = errors.New("unsupported chain")
	// ErrGaslessNotSupported is returned when a chain has no fee sponsorship.
	ErrGaslessNotSupported = errors.New("gasless transfers not supported on chain")
)

// Chain describes one network and the contracts a transfer uses on it.
type Chain struct {
	Name               string
	ChainID            uint64
	Domain             uint32
	RPCURL             string
	BundlerURL         string
	USDC               common.Address
	TokenMessenger     common.Address
	MessageTransmitter common.Address
	Paymaster          common.Address
	Gasless            bool
}

func bundlerURL(chainID uint64) string {
	return fmt.Sprintf("https://public.pimlico.io/v2/%d/rpc", chainID)
}

func builtin() []Chain {
	mk := func(name string, id uint64, domain uint32, rpc, usdc string, gasless bool) Chain {
		return Chain{
			Name:               name,
			ChainID:            id,
			Domain:             domain,
			RPCURL:             rpc,
			BundlerURL:         bundlerURL(id),
			USDC:               common.HexToAddress(usdc),
			TokenMessenger:     TokenMessengerV2,
			MessageTransmitter: MessageTransmitterV2,
			Paymaster:          DefaultPaymaster,
			Gasless:            gasless,
		}
	}
	return []Chain{
		mk("eth-sepolia", 11155111, 0, "https://ethereum-sepolia-rpc.publicnode.com", "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238", false),
		mk("avax-fuji", 43113, 1, "https://api.avax-test.network/ext/bc/C/rpc", "0x5425890298aed601595a70AB815c96711a31Bc65", false),
		mk("op-sepolia", 11155420, 2, "https://sepolia.optimism.io", "0x5fd84259d66Cd46123540766Be93DFE6D43130D7", false),
		mk("arb-sepolia", 421614, 3, "https://sepolia-rollup.arbitrum.io/rpc", "0x75faf114eafb1BDbe2F0316DF893fd58CE46AA4d", true),
		mk("base-sepolia", 84532, 6, "https://sepolia.base.org", "0x036CbD53842c5426634e7929541eC2318f3dCF7e", true),
		mk("polygon-amoy", 80002, 7, "https://rpc-amoy.polygon.technology", "0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582", false),
	}
}

// Registry resolves chains by name or chain ID. It is immutable after construction.
type Registry struct {
	byName map[string]Chain
	byID   map[uint64]string
}

// NewRegistry builds a registry from the built-in table with overrides applied.
// An override naming an unknown chain adds it, and must then carry a chain ID.
func NewRegistry(overrides []types.ChainConfig) (*Registry, error) {
	r := &Registry{byName: make(map[string]Chain), byID: make(map[uint64]string)}
	for _, c := range builtin() {
		r.byName[c.Name] = c
	}
	for _, o := range overrides {
		o.Name = strings.ToLower(o.Name)
		c, ok := r.byName[o.Name]
		if !ok {
			if o.ChainID == 0 {
				return nil, fmt.Errorf("chain %q: chainId required for a chain not in the built-in registry", o.Name)
			}
			c = Chain{
				Name:               o.Name,
				TokenMessenger:     TokenMessengerV2,
				MessageTransmitter: MessageTransmitterV2,
				Paymaster:          DefaultPaymaster,
			}
		}
		if err := apply(&c, o); err != nil {
			return nil, fmt.Errorf("chain %q: %w", o.Name, err)
		}
		r.byName[c.Name] = c
	}
	for name, c := range r.byName {
		if other, dup := r.byID[c.ChainID]; dup {
			return nil, fmt.Errorf("chain id %d used by both %q and %q", c.ChainID, other, name)
		}
		r.byID[c.ChainID] = name
	}
	return r, nil
}

// MustRegistry returns the built-in registry.
func MustRegistry() *Registry {
	r, err := NewRegistry(nil)
	if err != nil {
		panic(err)
	}
	return r
}

func apply(c *Chain, o types.ChainConfig) error {
	if o.ChainID != 0 {
		c.ChainID = o.ChainID
	}
	if o.Domain != nil {
		c.Domain = *o.Domain
	}
	if o.RPCURL != "" {
		c.RPCURL = o.RPCURL
	}
	if o.BundlerURL != "" {
		c.BundlerURL = o.BundlerURL
	} else if c.BundlerURL == "" {
		c.BundlerURL = bundlerURL(c.ChainID)
	}
	for _, f := range []struct {
		in  string
		out *common.Address
	}{
		{o.USDC, &c.USDC},
		{o.TokenMessenger, &c.TokenMessenger},
		{o.MessageTransmitter, &c.MessageTransmitter},
		{o.Paymaster, &c.Paymaster},
	} {
		if f.in == "" {
			continue
		}
		if !common.IsHexAddress(f.in) {
			return fmt.Errorf("invalid address %q", f.in)
		}
		*f.out = common.HexToAddress(f.in)
	}
	if o.Gasless != nil {
		c.Gasless = *o.Gasless
	}
	return nil
}

// Lookup returns the chain registered under name. Names are case-insensitive.
func (r *Registry) Lookup(name string) (Chain, error) {
	c, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return Chain{}, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedChain, name, strings.Join(r.Names(), ", "))
	}
	return c, nil
}

// ByID returns the chain with the given EVM chain ID.
func (r *Registry) ByID(id uint64) (Chain, error) {
	name, ok := r.byID[id]
	if !ok {
		return Chain{}, fmt.Errorf("%w: chain id %d", ErrUnsupportedChain, id)
	}
	return r.byName[name], nil
}

// RequireGasless looks up name and fails unless the chain supports sponsorship.
func (r *Registry) RequireGasless(name string) (Chain, error) {
	c, err := r.Lookup(name)
	if err != nil {
		return Chain{}, err
	}
	if !c.Gasless {
		return Chain{}, fmt.Errorf("%w: %q (gasless chains: %s)", ErrGaslessNotSupported, c.Name, strings.Join(r.GaslessNames(), ", "))
	}
	return c, nil
}

// ValidateStrategy checks every bridge action of s against the registry: both
// chains must be registered and sponsored, and the amount must fit the
// token's precision.
func (r *Registry) ValidateStrategy(s types.Strategy) error {
	var errs []error
	for i, a := range s.Actions {
		if a.Type != types.ActionBridgeGasless {
			continue
		}
		if _, err := r.RequireGasless(a.SourceChain); err != nil {
			errs = append(errs, fmt.Errorf("action %d: source chain: %w", i, err))
		}
		if _, err := r.RequireGasless(a.DestinationChain); err != nil {
			errs = append(errs, fmt.Errorf("action %d: destination chain: %w", i, err))
		}
		if d, err := decimal.NewFromString(a.Amount); err == nil && !d.Shift(USDCDecimals).IsInteger() {
			errs = append(errs, fmt.Errorf("action %d: amount %q has more than %d decimal places", i, a.Amount, USDCDecimals))
		}
	}
	return errors.Join(errs...)
}

// Names returns all registered chain names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// GaslessNames returns the sorted names of chains with fee sponsorship.
func (r *Registry) GaslessNames() []string {
	var names []string
	for _, n := range r.Names() {
		if r.byName[n].Gasless {
			names = append(names, n)
		}
	}
	return names
}
