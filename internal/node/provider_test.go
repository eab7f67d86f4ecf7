package node

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constantInitCode deploys a runtime that returns the uint256 1_000_000 for
// any call.
var constantInitCode = hexutil.MustDecode("0x600c600c600039600c6000f3620f424060005260206000f3")

func launchSimulated(t *testing.T) *Node {
	t.Helper()
	n, err := SimulatedLauncher{}.Launch(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func TestSimulatedDeployAndCall(t *testing.T) {
	ctx := context.Background()
	p := launchSimulated(t).Provider()

	addr, receipt, err := p.Deploy(ctx, constantInitCode)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.NotEqual(t, common.Address{}, addr)

	out, err := p.Call(ctx, addr, []byte{0xde, 0xad, 0xbe, 0xef})
	require.NoError(t, err)
	require.Len(t, out, 32)
	assert.Equal(t, int64(1_000_000), new(big.Int).SetBytes(out).Int64())
}

func TestSimulatedTransactValue(t *testing.T) {
	ctx := context.Background()
	p := launchSimulated(t).Provider()

	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	before, err := p.BlockNumber(ctx)
	require.NoError(t, err)

	_, err = p.Transact(ctx, to, nil, big.NewInt(12345))
	require.NoError(t, err)

	bal, err := p.Balance(ctx, to)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), bal.Int64())

	after, err := p.BlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, after, "every send mines one block")
}

func TestSimulatedDeployRevert(t *testing.T) {
	// PUSH1 0 PUSH1 0 REVERT
	_, _, err := launchSimulated(t).Provider().Deploy(context.Background(), hexutil.MustDecode("0x60006000fd"))
	require.Error(t, err)
}

func TestSimulatedLaunchesAreIndependent(t *testing.T) {
	a := launchSimulated(t).Provider()
	b := launchSimulated(t).Provider()
	assert.NotEqual(t, a.Address(), b.Address())
}

func TestNodeCloseOnce(t *testing.T) {
	calls := 0
	n := New(nil, func() error {
		calls++
		return errors.New("boom")
	})
	require.EqualError(t, n.Close(), "boom")
	require.EqualError(t, n.Close(), "boom")
	assert.Equal(t, 1, calls)
}

func TestAnvilMissingBinary(t *testing.T) {
	_, err := AnvilLauncher{Binary: "/nonexistent/anvil"}.Launch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node: anvil")
}

func TestNewProviderRequiresKey(t *testing.T) {
	_, err := NewProvider(context.Background(), nil, nil)
	require.Error(t, err)
}
