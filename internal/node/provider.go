package node

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrReverted is returned when a mined transaction has a failed status.
var ErrReverted = errors.New("node: transaction reverted")

const defaultPollInterval = 25 * time.Millisecond

// Client is the subset of the JSON-RPC surface the provider needs. Both
// *ethclient.Client and the simulated backend client satisfy it.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Provider is the handle strategies, arbitrageurs and the engine use to talk
// to the node. It signs with a single funded account and fills nonce, gas and
// chain id on every transaction. A Provider is safe for concurrent use; sends
// are serialised so nonces never collide.
type Provider struct {
	client  Client
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	signer  types.Signer

	mine func()
	poll time.Duration

	mu sync.Mutex
}

// ProviderOption customises a Provider.
type ProviderOption func(*Provider)

// WithMiner registers a hook run after every send. The simulated backend uses
// it to commit a block so each transaction is mined immediately.
func WithMiner(mine func()) ProviderOption {
	return func(p *Provider) { p.mine = mine }
}

// WithPollInterval sets how often receipts are polled.
func WithPollInterval(d time.Duration) ProviderOption {
	return func(p *Provider) {
		if d > 0 {
			p.poll = d
		}
	}
}

// NewProvider connects a signer to client. The chain id is read once from
// the node.
func NewProvider(ctx context.Context, client Client, key *ecdsa.PrivateKey, opts ...ProviderOption) (*Provider, error) {
	if key == nil {
		return nil, errors.New("node: provider: private key is required")
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("node: provider: chain id: %w", err)
	}
	p := &Provider{
		client:  client,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		signer:  types.LatestSignerForChainID(chainID),
		poll:    defaultPollInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Address returns the account the provider signs with.
func (p *Provider) Address() common.Address { return p.from }

// ChainID returns the node's chain id.
func (p *Provider) ChainID() *big.Int { return new(big.Int).Set(p.chainID) }

// Client exposes the raw RPC client for read calls not covered here.
func (p *Provider) Client() Client { return p.client }

// BlockNumber returns the latest block number.
func (p *Provider) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := p.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("node: block number: %w", err)
	}
	return n, nil
}

// Balance returns the wei balance of account at the latest block.
func (p *Provider) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	bal, err := p.client.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("node: balance %s: %w", account.Hex(), err)
	}
	return bal, nil
}

// Call executes a read-only call against to at the latest block.
func (p *Provider) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := p.client.CallContract(ctx, ethereum.CallMsg{
		From: p.from,
		To:   &to,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("node: call %s: %w", to.Hex(), err)
	}
	return out, nil
}

// Transact sends a transaction to to and waits until it is mined.
func (p *Provider) Transact(ctx context.Context, to common.Address, data []byte, value *big.Int) (*types.Receipt, error) {
	return p.send(ctx, &to, data, value)
}

// Deploy sends a contract-creation transaction with the given init code
// (constructor arguments already appended) and returns the new address.
func (p *Provider) Deploy(ctx context.Context, code []byte) (common.Address, *types.Receipt, error) {
	receipt, err := p.send(ctx, nil, code, nil)
	if err != nil {
		return common.Address{}, receipt, err
	}
	return receipt.ContractAddress, receipt, nil
}

func (p *Provider) send(ctx context.Context, to *common.Address, data []byte, value *big.Int) (*types.Receipt, error) {
	if value == nil {
		value = new(big.Int)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	nonce, err := p.client.PendingNonceAt(ctx, p.from)
	if err != nil {
		return nil, fmt.Errorf("node: nonce: %w", err)
	}
	tip, err := p.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("node: gas tip: %w", err)
	}
	head, err := p.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("node: latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	gas, err := p.client.EstimateGas(ctx, ethereum.CallMsg{
		From:      p.from,
		To:        to,
		GasFeeCap: feeCap,
		GasTipCap: tip,
		Value:     value,
		Data:      data,
	})
	if err != nil {
		return nil, fmt.Errorf("node: estimate gas: %w", err)
	}

	tx, err := types.SignNewTx(p.key, p.signer, &types.DynamicFeeTx{
		ChainID:   p.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        to,
		Value:     value,
		Data:      data,
	})
	if err != nil {
		return nil, fmt.Errorf("node: sign: %w", err)
	}
	if err := p.client.SendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("node: send %s: %w", tx.Hash().Hex(), err)
	}
	if p.mine != nil {
		p.mine()
	}

	receipt, err := p.waitMined(ctx, tx.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s", ErrReverted, tx.Hash().Hex())
	}
	return receipt, nil
}

func (p *Provider) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()
	for {
		receipt, err := p.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("node: receipt %s: %w", hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("node: waiting for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
