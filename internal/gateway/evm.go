package gateway

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/dwsmith1983/tripwire/internal/chain"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

// ERC-4337 v0.6 deployments used for the sponsored smart account.
var (
	EntryPointV06    = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	SimpleAccountFac = common.HexToAddress("0x9406Cc6185a346906296840746125a0E44976454")
)

const defaultReceiptPoll = 2 * time.Second

// NodeAPI is the subset of the chain node client used by EVM.
type NodeAPI interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

// BundlerAPI is the JSON-RPC surface of an ERC-4337 bundler and paymaster.
type BundlerAPI interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// EVM is a Gateway backed by a counterfactual smart account whose operations
// are sponsored by a paymaster and relayed by a bundler.
type EVM struct {
	chain       chain.Chain
	key         *ecdsa.PrivateKey
	owner       common.Address
	sender      common.Address
	node        NodeAPI
	bundler     BundlerAPI
	entryPoint  common.Address
	factory     common.Address
	receiptPoll time.Duration
	logger      *slog.Logger
	closers     []func()
}

var _ Gateway = (*EVM)(nil)

// Option configures an EVM gateway.
type Option func(*EVM)

// WithNodeClient sets a custom node client (useful for testing).
func WithNodeClient(c NodeAPI) Option {
	return func(g *EVM) { g.node = c }
}

// WithBundlerClient sets a custom bundler client (useful for testing).
func WithBundlerClient(c BundlerAPI) Option {
	return func(g *EVM) { g.bundler = c }
}

// WithReceiptPoll sets the interval between receipt lookups.
func WithReceiptPoll(d time.Duration) Option {
	return func(g *EVM) { g.receiptPoll = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *EVM) { g.logger = l }
}

// NewEVM binds cred to chain c. Each gateway dials its own connections so
// two legs of one transfer never share transport state.
func NewEVM(ctx context.Context, cred types.Credential, c chain.Chain, opts ...Option) (*EVM, error) {
	if cred.Empty() {
		return nil, fmt.Errorf("%w: empty", ErrInvalidCredential)
	}
	key, err := crypto.ToECDSA(cred.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: parsing signing key: %v", ErrInvalidCredential, err)
	}
	g := &EVM{
		chain:       c,
		key:         key,
		owner:       crypto.PubkeyToAddress(key.PublicKey),
		entryPoint:  EntryPointV06,
		factory:     SimpleAccountFac,
		receiptPoll: defaultReceiptPoll,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	if g.node == nil {
		rc, err := rpc.DialContext(ctx, c.RPCURL)
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("dialing %s node: %w", c.Name, err)
		}
		ec := ethclient.NewClient(rc)
		g.node = ec
		g.closers = append(g.closers, ec.Close)
	}
	if g.bundler == nil {
		bc, err := rpc.DialContext(ctx, c.BundlerURL)
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("dialing %s bundler: %w", c.Name, err)
		}
		g.bundler = bc
		g.closers = append(g.closers, bc.Close)
	}

	sender, err := g.accountAddress(ctx)
	if err != nil {
		g.Close()
		return nil, fmt.Errorf("resolving smart account on %s: %w", c.Name, err)
	}
	g.sender = sender
	return g, nil
}

// Address returns the smart account address.
func (g *EVM) Address() common.Address { return g.sender }

// Owner returns the EOA that signs for the smart account.
func (g *EVM) Owner() common.Address { return g.owner }

// Close drops the signing key and closes transports the gateway opened.
func (g *EVM) Close() {
	if g.key != nil {
		g.key.D.SetInt64(0)
		g.key = nil
	}
	for _, c := range g.closers {
		c()
	}
	g.closers = nil
}

func (g *EVM) accountAddress(ctx context.Context) (common.Address, error) {
	return smartAccountAddress(ctx, g.node, g.factory, g.owner)
}

// SmartAccountAddress resolves the counterfactual smart account of owner.
// This is the address that must hold the funds a transfer burns; owner only
// signs. No signing key is needed.
func SmartAccountAddress(ctx context.Context, node NodeAPI, owner common.Address) (common.Address, error) {
	return smartAccountAddress(ctx, node, SimpleAccountFac, owner)
}

func smartAccountAddress(ctx context.Context, node NodeAPI, factory, owner common.Address) (common.Address, error) {
	data, err := accountFactory.Pack("getAddress", owner, new(big.Int))
	if err != nil {
		return common.Address{}, err
	}
	out, err := node.CallContract(ctx, ethereum.CallMsg{To: &factory, Data: data}, nil)
	if err != nil {
		return common.Address{}, err
	}
	res, err := accountFactory.Unpack("getAddress", out)
	if err != nil {
		return common.Address{}, fmt.Errorf("decoding getAddress: %w", err)
	}
	return res[0].(common.Address), nil
}

// BalanceOf reads the chain's USDC balance of owner.
func (g *EVM) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return ReadBalance(ctx, g.node, g.chain, owner)
}

// ReadBalance reads the USDC balance of owner on c without a signing key.
func ReadBalance(ctx context.Context, node NodeAPI, c chain.Chain, owner common.Address) (*big.Int, error) {
	data, err := erc20.Pack("balanceOf", owner)
	if err != nil {
		return nil, err
	}
	usdc := c.USDC
	out, err := node.CallContract(ctx, ethereum.CallMsg{To: &usdc, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("reading balance on %s: %w", c.Name, err)
	}
	res, err := erc20.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("decoding balance: %w", err)
	}
	return res[0].(*big.Int), nil
}

// DialNode connects to the node of c. The returned func closes the connection.
func DialNode(ctx context.Context, c chain.Chain) (NodeAPI, func(), error) {
	ec, err := ethclient.DialContext(ctx, c.RPCURL)
	if err != nil {
		return nil, func() {}, fmt.Errorf("dialing %s node: %w", c.Name, err)
	}
	return ec, ec.Close, nil
}

func encodeCalls(calls []Call) ([]byte, error) {
	switch len(calls) {
	case 0:
		return nil, errors.New("no calls to submit")
	case 1:
		v := calls[0].Value
		if v == nil {
			v = new(big.Int)
		}
		return simpleAccount.Pack("execute", calls[0].To, v, calls[0].Data)
	}
	dest := make([]common.Address, len(calls))
	funcs := make([][]byte, len(calls))
	for i, c := range calls {
		if c.Value != nil && c.Value.Sign() != 0 {
			return nil, errors.New("batched calls cannot carry value")
		}
		dest[i] = c.To
		funcs[i] = c.Data
	}
	return simpleAccount.Pack("executeBatch", dest, funcs)
}

func (g *EVM) buildOperation(ctx context.Context, calls []Call) (*UserOperation, error) {
	callData, err := encodeCalls(calls)
	if err != nil {
		return nil, fmt.Errorf("encoding calls: %w", err)
	}

	nonceData, err := entryPointMethods.Pack("getNonce", g.sender, new(big.Int))
	if err != nil {
		return nil, err
	}
	out, err := g.node.CallContract(ctx, ethereum.CallMsg{To: &g.entryPoint, Data: nonceData}, nil)
	if err != nil {
		return nil, fmt.Errorf("reading nonce: %w", err)
	}
	res, err := entryPointMethods.Unpack("getNonce", out)
	if err != nil {
		return nil, fmt.Errorf("decoding nonce: %w", err)
	}
	nonce := res[0].(*big.Int)

	var initCode []byte
	code, err := g.node.CodeAt(ctx, g.sender, nil)
	if err != nil {
		return nil, fmt.Errorf("reading account code: %w", err)
	}
	if len(code) == 0 {
		create, err := accountFactory.Pack("createAccount", g.owner, new(big.Int))
		if err != nil {
			return nil, err
		}
		initCode = append(g.factory.Bytes(), create...)
	}

	maxFee, err := g.node.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggesting gas price: %w", err)
	}
	tip, err := g.node.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggesting gas tip: %w", err)
	}
	if tip.Cmp(maxFee) > 0 {
		tip = new(big.Int).Set(maxFee)
	}

	return &UserOperation{
		Sender:               g.sender,
		Nonce:                (*hexutil.Big)(nonce),
		InitCode:             initCode,
		CallData:             callData,
		MaxFeePerGas:         (*hexutil.Big)(maxFee),
		MaxPriorityFeePerGas: (*hexutil.Big)(tip),
		CallGasLimit:         new(hexutil.Big),
		VerificationGasLimit: new(hexutil.Big),
		PreVerificationGas:   new(hexutil.Big),
		PaymasterAndData:     []byte{},
		Signature:            dummySignature,
	}, nil
}

func (g *EVM) sponsor(ctx context.Context, op *UserOperation) error {
	var res sponsorResult
	if err := g.bundler.CallContext(ctx, &res, "pm_sponsorUserOperation", op, g.entryPoint); err != nil {
		return fmt.Errorf("requesting sponsorship: %w", err)
	}
	if len(res.PaymasterAndData) < common.AddressLength {
		return errors.New("sponsorship declined: empty paymasterAndData")
	}
	if pm := common.BytesToAddress(res.PaymasterAndData[:common.AddressLength]); g.chain.Paymaster != (common.Address{}) && pm != g.chain.Paymaster {
		g.logger.Warn("sponsoring paymaster differs from configured", "chain", g.chain.Name, "paymaster", pm.Hex())
	}
	op.PaymasterAndData = res.PaymasterAndData
	op.PreVerificationGas = res.PreVerificationGas
	op.VerificationGasLimit = res.VerificationGasLimit
	op.CallGasLimit = res.CallGasLimit
	return nil
}

func (g *EVM) sign(op *UserOperation) error {
	if g.key == nil {
		return errors.New("gateway closed")
	}
	h, err := op.Hash(g.entryPoint, new(big.Int).SetUint64(g.chain.ChainID))
	if err != nil {
		return fmt.Errorf("hashing user operation: %w", err)
	}
	sig, err := crypto.Sign(accounts.TextHash(h.Bytes()), g.key)
	if err != nil {
		return fmt.Errorf("signing user operation: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	op.Signature = sig
	return nil
}

// SubmitSponsoredOperation batches calls into one paymaster-sponsored user
// operation and returns the operation hash assigned by the bundler.
func (g *EVM) SubmitSponsoredOperation(ctx context.Context, calls []Call) (string, error) {
	op, err := g.buildOperation(ctx, calls)
	if err != nil {
		return "", err
	}
	if err := g.sponsor(ctx, op); err != nil {
		return "", err
	}
	if err := g.sign(op); err != nil {
		return "", err
	}
	var hash string
	if err := g.bundler.CallContext(ctx, &hash, "eth_sendUserOperation", op, g.entryPoint); err != nil {
		return "", fmt.Errorf("sending user operation: %w", err)
	}
	g.logger.Info("user operation submitted", "chain", g.chain.Name, "sender", g.sender.Hex(), "opHash", hash)
	return hash, nil
}

type userOpReceipt struct {
	UserOpHash string `json:"userOpHash"`
	Success    bool   `json:"success"`
	Receipt    struct {
		TransactionHash common.Hash `json:"transactionHash"`
	} `json:"receipt"`
}

// WaitForReceipt polls the bundler until the operation is mined or ctx ends.
func (g *EVM) WaitForReceipt(ctx context.Context, opHash string) (Receipt, error) {
	ticker := time.NewTicker(g.receiptPoll)
	defer ticker.Stop()
	for {
		var raw json.RawMessage
		if err := g.bundler.CallContext(ctx, &raw, "eth_getUserOperationReceipt", opHash); err != nil {
			return Receipt{}, fmt.Errorf("fetching receipt for %s: %w", opHash, err)
		}
		if len(raw) > 0 && string(raw) != "null" {
			var r userOpReceipt
			if err := json.Unmarshal(raw, &r); err != nil {
				return Receipt{}, fmt.Errorf("decoding receipt: %w", err)
			}
			return Receipt{
				OperationHash:   opHash,
				TransactionHash: r.Receipt.TransactionHash.Hex(),
				Success:         r.Success,
			}, nil
		}
		select {
		case <-ctx.Done():
			return Receipt{}, fmt.Errorf("waiting for receipt of %s: %w", opHash, ctx.Err())
		case <-ticker.C:
		}
	}
}
