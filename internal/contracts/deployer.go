package contracts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"math/big"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"

	"github.com/anthias-labs/arena/internal/domain"
	"github.com/anthias-labs/arena/internal/node"
)

// Artifact file names looked up in ArtifactDeployer.Dir.
const (
	PoolManagerArtifact    = "PoolManager.json"
	ArenaTokenArtifact     = "ArenaToken.json"
	LiquidExchangeArtifact = "LiquidExchange.json"
)

// DefaultArtifactsDir is where compiled artifacts are looked up when no
// directory is configured.
const DefaultArtifactsDir = "artifacts"

// PoolParams are the pool parameters chosen on the builder.
type PoolParams struct {
	Fee          uint32
	TickSpacing  int32
	InitialPrice float64
}

// Deployment is what a successful pool deployment produced.
type Deployment struct {
	Manager  common.Address
	Pool     domain.PoolKey
	Tokens   [2]common.Address
	Exchange common.Address // zero when no LiquidExchange artifact is present
}

// ArtifactDeployer deploys the pool manager, two tokens and the optional
// liquid exchange from compiled artifacts, then initializes the pool.
type ArtifactDeployer struct {
	Dir string

	// ManagerArgs are the pool manager constructor arguments. Nil fills
	// every input via Artifact.ConstructorDefaults.
	ManagerArgs []any

	// TokenDecimals for both tokens; zero means 18.
	TokenDecimals uint8

	Logger *slog.Logger
}

// Deploy implements the engine's Deployer.
func (d ArtifactDeployer) Deploy(ctx context.Context, p *node.Provider, params PoolParams) (Deployment, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "deployer"))

	dir := d.Dir
	if dir == "" {
		dir = DefaultArtifactsDir
	}
	decimals := d.TokenDecimals
	if decimals == 0 {
		decimals = 18
	}

	managerArt, err := LoadArtifact(filepath.Join(dir, PoolManagerArtifact))
	if err != nil {
		return Deployment{}, &domain.DeploymentError{Contract: "PoolManager", Err: err}
	}
	tokenArt, err := LoadArtifact(filepath.Join(dir, ArenaTokenArtifact))
	if err != nil {
		return Deployment{}, &domain.DeploymentError{Contract: "ArenaToken", Err: err}
	}

	managerArgs := d.ManagerArgs
	if managerArgs == nil {
		managerArgs = managerArt.ConstructorDefaults(p.Address())
	}
	manager, err := Deploy(ctx, p, managerArt, managerArgs...)
	if err != nil {
		return Deployment{}, &domain.DeploymentError{Contract: "PoolManager", Err: err}
	}
	logger.Debug("pool manager deployed", slog.String("address", manager.Address.Hex()))

	var tokens [2]common.Address
	for i, sym := range []string{"ARENA0", "ARENA1"} {
		tok, err := Deploy(ctx, p, tokenArt, "Arena Token "+sym[len(sym)-1:], sym, decimals)
		if err != nil {
			return Deployment{}, &domain.DeploymentError{Contract: "ArenaToken", Err: err}
		}
		tokens[i] = tok.Address
	}

	key := domain.NewPoolKey(tokens[0], tokens[1], params.Fee, params.TickSpacing, common.Address{})
	out := Deployment{
		Manager: manager.Address,
		Pool:    key,
		Tokens:  [2]common.Address{key.Currency0, key.Currency1},
	}

	exchangeArt, err := LoadArtifact(filepath.Join(dir, LiquidExchangeArtifact))
	switch {
	case err == nil:
		ex, err := Deploy(ctx, p, exchangeArt, key.Currency0, key.Currency1, PriceWad(params.InitialPrice))
		if err != nil {
			return Deployment{}, &domain.DeploymentError{Contract: "LiquidExchange", Err: err}
		}
		out.Exchange = ex.Address
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("no liquid exchange artifact, skipping", slog.String("dir", dir))
	default:
		return Deployment{}, &domain.DeploymentError{Contract: "LiquidExchange", Err: err}
	}

	sqrtPrice, err := SqrtPriceX96(params.InitialPrice)
	if err != nil {
		return Deployment{}, &domain.DeploymentError{Contract: "PoolManager", Err: err}
	}
	if err := initializePool(ctx, manager, key, sqrtPrice); err != nil {
		return Deployment{}, &domain.DeploymentError{Contract: "PoolManager", Err: err}
	}

	logger.Info("pool deployed",
		slog.String("manager", out.Manager.Hex()),
		slog.String("pool", key.String()),
	)
	return out, nil
}

// poolKeyTuple mirrors the PoolKey struct for ABI packing.
type poolKeyTuple struct {
	Currency0   common.Address
	Currency1   common.Address
	Fee         *big.Int
	TickSpacing *big.Int
	Hooks       common.Address
}

func initializePool(ctx context.Context, manager *Bound, key domain.PoolKey, sqrtPriceX96 *big.Int) error {
	method, ok := manager.Artifact.ABI.Methods["initialize"]
	if !ok {
		return errors.New("pool manager has no initialize method")
	}
	args := []any{
		poolKeyTuple{
			Currency0:   key.Currency0,
			Currency1:   key.Currency1,
			Fee:         new(big.Int).SetUint64(uint64(key.Fee)),
			TickSpacing: big.NewInt(int64(key.TickSpacing)),
			Hooks:       key.Hooks,
		},
		sqrtPriceX96,
	}
	// Older pool managers take trailing hook data.
	if len(method.Inputs) == 3 {
		args = append(args, []byte{})
	}
	return manager.Transact(ctx, "initialize", args...)
}

// SqrtPriceX96 encodes price as the Q64.96 square root used by v4 pools.
func SqrtPriceX96(price float64) (*big.Int, error) {
	if price <= 0 || math.IsInf(price, 0) || math.IsNaN(price) {
		return nil, fmt.Errorf("initial price must be positive, got %v", price)
	}
	root := new(big.Float).SetPrec(256).Sqrt(new(big.Float).SetPrec(256).SetFloat64(price))
	q96 := new(big.Float).SetPrec(256).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))
	out, _ := root.Mul(root, q96).Int(nil)
	return out, nil
}

// PriceWad scales price to 18 decimals.
func PriceWad(price float64) *big.Int {
	wad := new(big.Float).SetPrec(256).SetFloat64(price)
	wad.Mul(wad, new(big.Float).SetPrec(256).SetInt(big.NewInt(1e18)))
	out, _ := wad.Int(nil)
	return out
}

// ArtifactsPresent reports whether dir holds the artifacts Deploy requires.
func ArtifactsPresent(dir string) bool {
	for _, name := range []string{PoolManagerArtifact, ArenaTokenArtifact} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}
