package node

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
)

// defaultFunding is the genesis balance of the signing account: one million ether.
var defaultFunding = new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1e18))

// SimulatedLauncher starts an in-process go-ethereum backend. It needs no
// external binary, and each transaction is mined as soon as it is sent.
type SimulatedLauncher struct {
	// Funding is the genesis balance of the signing account. Zero means
	// defaultFunding.
	Funding *big.Int

	// PollInterval overrides the receipt polling interval.
	PollInterval time.Duration
}

// Launch implements Launcher.
func (l SimulatedLauncher) Launch(ctx context.Context) (*Node, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("node: simulated: generate key: %w", err)
	}
	funding := l.Funding
	if funding == nil || funding.Sign() == 0 {
		funding = defaultFunding
	}

	backend := simulated.NewBackend(types.GenesisAlloc{
		crypto.PubkeyToAddress(key.PublicKey): {Balance: funding},
	})

	p, err := NewProvider(ctx, backend.Client(), key,
		WithMiner(func() { backend.Commit() }),
		WithPollInterval(l.PollInterval),
	)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("node: simulated: %w", err)
	}
	return New(p, backend.Close), nil
}
