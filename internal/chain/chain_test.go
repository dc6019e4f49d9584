package chain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/tripwire/pkg/types"
)

func TestBuiltinDomains(t *testing.T) {
	r := MustRegistry()
	tests := []struct {
		name    string
		chainID uint64
		domain  uint32
		gasless bool
	}{
		{"eth-sepolia", 11155111, 0, false},
		{"avax-fuji", 43113, 1, false},
		{"op-sepolia", 11155420, 2, false},
		{"arb-sepolia", 421614, 3, true},
		{"base-sepolia", 84532, 6, true},
		{"polygon-amoy", 80002, 7, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := r.Lookup(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.chainID, c.ChainID)
			assert.Equal(t, tt.domain, c.Domain)
			assert.Equal(t, tt.gasless, c.Gasless)
			assert.Equal(t, TokenMessengerV2, c.TokenMessenger)

			byID, err := r.ByID(tt.chainID)
			require.NoError(t, err)
			assert.Equal(t, tt.name, byID.Name)
		})
	}
}

func TestLookupUnsupported(t *testing.T) {
	r := MustRegistry()
	_, err := r.Lookup("solana-devnet")
	assert.ErrorIs(t, err, ErrUnsupportedChain)
	assert.Contains(t, err.Error(), "base-sepolia")

	_, err = r.ByID(1)
	assert.ErrorIs(t, err, ErrUnsupportedChain)
}

func TestLookupCaseInsensitive(t *testing.T) {
	c, err := MustRegistry().Lookup("Base-Sepolia")
	require.NoError(t, err)
	assert.Equal(t, uint64(84532), c.ChainID)
}

func TestRequireGasless(t *testing.T) {
	r := MustRegistry()
	c, err := r.RequireGasless("arb-sepolia")
	require.NoError(t, err)
	assert.True(t, c.Gasless)

	_, err = r.RequireGasless("eth-sepolia")
	assert.ErrorIs(t, err, ErrGaslessNotSupported)

	_, err = r.RequireGasless("nowhere")
	assert.ErrorIs(t, err, ErrUnsupportedChain)

	assert.Equal(t, []string{"arb-sepolia", "base-sepolia"}, r.GaslessNames())
}

func TestOverrides(t *testing.T) {
	gasless := true
	domain := uint32(42)
	r, err := NewRegistry([]types.ChainConfig{
		{Name: "base-sepolia", RPCURL: "http://localhost:8545", BundlerURL: "http://localhost:4337"},
		{Name: "eth-sepolia", Gasless: &gasless},
		{Name: "devnet", ChainID: 31337, Domain: &domain, USDC: "0x0000000000000000000000000000000000000001"},
	})
	require.NoError(t, err)

	base, _ := r.Lookup("base-sepolia")
	assert.Equal(t, "http://localhost:8545", base.RPCURL)
	assert.Equal(t, "http://localhost:4337", base.BundlerURL)
	assert.Equal(t, uint32(6), base.Domain)

	eth, _ := r.Lookup("eth-sepolia")
	assert.True(t, eth.Gasless)

	dev, err := r.ByID(31337)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), dev.Domain)
	assert.Equal(t, common.HexToAddress("0x01"), dev.USDC)
	assert.Equal(t, "https://public.pimlico.io/v2/31337/rpc", dev.BundlerURL)
}

func TestOverrideErrors(t *testing.T) {
	_, err := NewRegistry([]types.ChainConfig{{Name: "devnet"}})
	assert.ErrorContains(t, err, "chainId required")

	_, err = NewRegistry([]types.ChainConfig{{Name: "base-sepolia", USDC: "not-an-address"}})
	assert.ErrorContains(t, err, "invalid address")

	_, err = NewRegistry([]types.ChainConfig{{Name: "devnet", ChainID: 84532}})
	assert.ErrorContains(t, err, "used by both")
}

func TestValidateStrategy(t *testing.T) {
	r := MustRegistry()
	bridge := func(src, dst, amount string) types.Strategy {
		return types.Strategy{Actions: []types.Action{
			{Type: types.ActionConvertAll},
			{Type: types.ActionBridgeGasless, Asset: "USDC", Amount: amount, SourceChain: src, DestinationChain: dst},
		}}
	}

	tests := []struct {
		name    string
		s       types.Strategy
		wantErr error
		want    string
	}{
		{"sponsored pair", bridge("arb-sepolia", "base-sepolia", "5"), nil, ""},
		{"six decimals", bridge("arb-sepolia", "base-sepolia", "0.000001"), nil, ""},
		{"unknown chains", bridge("mars", "venus", "5"), ErrUnsupportedChain, "action 1: source chain"},
		{"unsponsored source", bridge("eth-sepolia", "base-sepolia", "5"), ErrGaslessNotSupported, "action 1: source chain"},
		{"too precise", bridge("arb-sepolia", "base-sepolia", "0.0000001"), nil, "more than 6 decimal places"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.ValidateStrategy(tt.s)
			if tt.want == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
