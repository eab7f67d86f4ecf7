package app

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/anthias-labs/arena/internal/arbitrage"
	"github.com/anthias-labs/arena/internal/arena"
	"github.com/anthias-labs/arena/internal/config"
	"github.com/anthias-labs/arena/internal/contracts"
	"github.com/anthias-labs/arena/internal/domain"
	"github.com/anthias-labs/arena/internal/feed"
	"github.com/anthias-labs/arena/internal/inspector"
	"github.com/anthias-labs/arena/internal/node"
	"github.com/anthias-labs/arena/internal/server/ws"
	"github.com/anthias-labs/arena/internal/strategy"
)

// buildArena assembles the configured collaborators into a ready arena.
func (a *App) buildArena(runID uuid.UUID, rec *inspector.Recorder) (*arena.Arena[float64], error) {
	cfg := a.cfg

	price, err := feed.New(cfg.Feed.Params())
	if err != nil {
		return nil, fmt.Errorf("feed: %w", err)
	}

	strat, err := strategy.DefaultRegistry().New(strategy.Config{
		Name:   cfg.Strategy.Name,
		Params: cfg.Strategy.Params,
	}, a.logger)
	if err != nil {
		return nil, err
	}

	sel, err := domain.ParseSaveData(cfg.Run.SaveData)
	if err != nil {
		return nil, err
	}

	dir := cfg.Contracts.ArtifactsDir
	if !contracts.ArtifactsPresent(dir) {
		a.logger.Warn("pool artifacts not found, deployment will fail",
			slog.String("dir", dir),
			slog.String("want", contracts.PoolManagerArtifact+", "+contracts.ArenaTokenArtifact),
		)
	}

	// The spread arbitrageur resolves the exchange lazily, once the arena
	// has deployed it.
	var built *arena.Arena[float64]
	arb, err := newArbitrageur(cfg, dir, func() (common.Address, bool) {
		if built == nil {
			return common.Address{}, false
		}
		dep, ok := built.Deployment()
		if !ok || dep.Exchange == (common.Address{}) {
			return common.Address{}, false
		}
		return dep.Exchange, true
	}, a.logger)
	if err != nil {
		return nil, err
	}

	launcher, err := newLauncher(cfg.Node, a.logger)
	if err != nil {
		return nil, err
	}

	built, err = arena.NewBuilder[float64]().
		WithStrategy(strat).
		WithFeed(price).
		WithInspector(rec).
		WithArbitrageur(arb).
		WithFee(cfg.Pool.Fee).
		WithTickSpacing(cfg.Pool.TickSpacing).
		WithInitialPrice(cfg.Pool.InitialPrice).
		WithLauncher(launcher).
		WithDeployer(contracts.ArtifactDeployer{Dir: dir, Logger: a.logger}).
		WithStepPolicy(stepPolicy(cfg.Run.Policy)).
		WithSaveData(sel).
		WithRunID(runID).
		WithLogger(a.logger).
		Build()
	if err != nil {
		return nil, err
	}
	return built, nil
}

func stepPolicy(name string) arena.StepPolicy {
	if strings.EqualFold(name, config.PolicyContinueOnError) {
		return arena.ContinueOnError
	}
	return arena.FailFast
}

func newLauncher(cfg config.NodeConfig, logger *slog.Logger) (node.Launcher, error) {
	switch strings.ToLower(cfg.Kind) {
	case "", config.NodeSimulated:
		return node.SimulatedLauncher{}, nil
	case config.NodeAnvil:
		return node.AnvilLauncher{
			Binary:       cfg.Anvil.Binary,
			Port:         cfg.Anvil.Port,
			Args:         cfg.Anvil.Args,
			StartTimeout: cfg.Anvil.StartTimeout.Duration,
			Logger:       logger,
		}, nil
	default:
		return nil, fmt.Errorf("node: unknown kind %q", cfg.Kind)
	}
}

// newArbitrageur builds the configured arbitrageur. The spread arbitrageur
// moves the liquid exchange price when its artifact is available.
func newArbitrageur(cfg *config.Config, dir string, exchange arbitrage.ExchangeResolver, logger *slog.Logger) (arbitrage.Arbitrageur, error) {
	if cfg.Arbitrage.Name != arbitrage.SpreadName {
		return arbitrage.DefaultRegistry().New(arbitrage.Config{
			Name:         cfg.Arbitrage.Name,
			MinSpreadBps: cfg.Arbitrage.MinSpreadBps,
			EstFeeBps:    cfg.Arbitrage.EstFeeBps,
			InitialPrice: cfg.Pool.InitialPrice,
		}, logger)
	}

	sc := arbitrage.SpreadConfig{
		MinSpreadBps: cfg.Arbitrage.MinSpreadBps,
		EstFeeBps:    cfg.Arbitrage.EstFeeBps,
		InitialPrice: cfg.Pool.InitialPrice,
	}
	art, err := contracts.LoadArtifact(filepath.Join(dir, contracts.LiquidExchangeArtifact))
	switch {
	case err == nil:
		sc.Exchange = exchange
		sc.Artifact = art
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("no liquid exchange artifact, spread arbitrageur runs off-chain")
	default:
		return nil, fmt.Errorf("arbitrage: %w", err)
	}
	return arbitrage.NewSpread(sc, logger)
}

// newRecorder returns the recording inspector with the remote sinks and
// publishers of every enabled backend attached.
func newRecorder(runID string, deps *Dependencies, hub *ws.Hub, publish bool, logger *slog.Logger) *inspector.Recorder {
	opts := []inspector.Option{
		inspector.WithRunID(runID),
		inspector.WithLogger(logger),
	}
	if deps.RunStore != nil {
		opts = append(opts, inspector.WithSink(domain.SavePostgres, inspector.StoreSink{Store: deps.RunStore}))
	}
	if deps.BlobWriter != nil {
		opts = append(opts, inspector.WithSink(domain.SaveS3, inspector.BlobSink{Writer: deps.BlobWriter}))
	}
	if publish {
		if deps.StepStream != nil {
			opts = append(opts, inspector.WithPublisher(deps.StepStream))
		}
		if hub != nil {
			opts = append(opts, inspector.WithPublisher(hub))
		}
	}
	return inspector.NewRecorder(opts...)
}

// runStatus exposes the arena and its recorder to the run handler.
type runStatus struct {
	run *arena.Arena[float64]
	rec *inspector.Recorder
}

func (s runStatus) RunID() string { return s.run.RunID().String() }
func (s runStatus) State() string { return s.run.State().String() }
func (s runStatus) Records() []domain.StepRecord { return s.rec.Records() }
