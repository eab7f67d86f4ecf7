package domain

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// PoolKey identifies one AMM pool: its token pair, fee tier, tick spacing and
// hook contract. Currency0 always sorts below Currency1.
type PoolKey struct {
	Currency0   common.Address
	Currency1   common.Address
	Fee         uint32
	TickSpacing int32
	Hooks       common.Address
}

// NewPoolKey orders the two currencies by address and returns the key.
func NewPoolKey(a, b common.Address, fee uint32, tickSpacing int32, hooks common.Address) PoolKey {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return PoolKey{
		Currency0:   a,
		Currency1:   b,
		Fee:         fee,
		TickSpacing: tickSpacing,
		Hooks:       hooks,
	}
}

// String renders the key for logs.
func (k PoolKey) String() string {
	return fmt.Sprintf("%s/%s fee=%d spacing=%d hooks=%s",
		k.Currency0.Hex(), k.Currency1.Hex(), k.Fee, k.TickSpacing, k.Hooks.Hex())
}
