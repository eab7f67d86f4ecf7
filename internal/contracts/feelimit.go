package contracts

import (
	"context"
	_ "embed"
	"fmt"
	"math/big"

	"github.com/anthias-labs/arena/internal/node"
)

// MaxLPFee is the largest pool fee the pool manager accepts, in hundredths of
// a basis point (100%). The deployed fee-limit contract reports the same value.
const MaxLPFee uint32 = 1_000_000

// FeeLimitName names the fee-limit contract in errors and logs.
const FeeLimitName = "FeeLimit"

//go:embed artifacts/FeeLimit.json
var feeLimitJSON []byte

// FeeLimitArtifact returns the embedded fee-limit contract. Its runtime
// answers MAX_LP_FEE() with MaxLPFee.
func FeeLimitArtifact() (*Artifact, error) {
	return ParseArtifact(FeeLimitName, feeLimitJSON)
}

// DeployFeeLimit deploys the fee-limit contract.
func DeployFeeLimit(ctx context.Context, p *node.Provider) (*Bound, error) {
	a, err := FeeLimitArtifact()
	if err != nil {
		return nil, err
	}
	return Deploy(ctx, p, a)
}

// MaxFee queries MAX_LP_FEE() on a deployed fee-limit contract.
func MaxFee(ctx context.Context, b *Bound) (uint32, error) {
	out, err := b.Call(ctx, "MAX_LP_FEE")
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("contracts: MAX_LP_FEE: expected 1 output, got %d", len(out))
	}
	v, ok := out[0].(*big.Int)
	if !ok || !v.IsUint64() || v.Uint64() > uint64(^uint32(0)) {
		return 0, fmt.Errorf("contracts: MAX_LP_FEE: unexpected value %v", out[0])
	}
	return uint32(v.Uint64()), nil
}
