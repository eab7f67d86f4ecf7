package arena

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/anthias-labs/arena/internal/contracts"
	"github.com/anthias-labs/arena/internal/domain"
	"github.com/anthias-labs/arena/internal/node"
)

// MaxTickSpacing is the largest tick spacing a pool accepts.
const MaxTickSpacing int32 = 32767

// Builder stages the collaborators and pool parameters of an Arena. Setters
// may be called in any order; the last write wins.
type Builder[V any] struct {
	strategy    Strategy[V]
	feed        Feed[V]
	inspector   Inspector[V]
	arbitrageur Arbitrageur[V]
	fee         *uint32
	tickSpacing *int32

	launcher     node.Launcher
	deployer     Deployer
	logger       *slog.Logger
	policy       StepPolicy
	saveData     *domain.SaveData
	initialPrice float64
	runID        uuid.UUID

	built bool
}

// NewBuilder returns an empty builder.
func NewBuilder[V any]() *Builder[V] {
	return &Builder[V]{initialPrice: 1.0}
}

func (b *Builder[V]) WithStrategy(s Strategy[V]) *Builder[V] {
	b.strategy = s
	return b
}

func (b *Builder[V]) WithFeed(f Feed[V]) *Builder[V] {
	b.feed = f
	return b
}

func (b *Builder[V]) WithInspector(i Inspector[V]) *Builder[V] {
	b.inspector = i
	return b
}

func (b *Builder[V]) WithArbitrageur(a Arbitrageur[V]) *Builder[V] {
	b.arbitrageur = a
	return b
}

// WithFee sets the pool's LP fee in hundredths of a basis point.
func (b *Builder[V]) WithFee(fee uint32) *Builder[V] {
	b.fee = &fee
	return b
}

func (b *Builder[V]) WithTickSpacing(spacing int32) *Builder[V] {
	b.tickSpacing = &spacing
	return b
}

// WithLauncher overrides the node launcher. The default runs an in-process
// simulated chain.
func (b *Builder[V]) WithLauncher(l node.Launcher) *Builder[V] {
	b.launcher = l
	return b
}

// WithDeployer overrides how the pool is deployed. The default reads compiled
// artifacts from contracts.DefaultArtifactsDir.
func (b *Builder[V]) WithDeployer(d Deployer) *Builder[V] {
	b.deployer = d
	return b
}

func (b *Builder[V]) WithLogger(l *slog.Logger) *Builder[V] {
	b.logger = l
	return b
}

func (b *Builder[V]) WithStepPolicy(p StepPolicy) *Builder[V] {
	b.policy = p
	return b
}

// WithSaveData sets the selector passed to Inspector.Save.
func (b *Builder[V]) WithSaveData(sel *domain.SaveData) *Builder[V] {
	b.saveData = sel
	return b
}

// WithInitialPrice sets the price the pool is initialized at.
func (b *Builder[V]) WithInitialPrice(price float64) *Builder[V] {
	b.initialPrice = price
	return b
}

// WithRunID fixes the id of the run, so collaborators can share it. The
// default is a fresh UUID at Run.
func (b *Builder[V]) WithRunID(id uuid.UUID) *Builder[V] {
	b.runID = id
	return b
}

// Build validates the staged configuration and returns a ready Arena. It has
// no side effects: no node is launched and nothing is deployed. A builder can
// be built only once.
func (b *Builder[V]) Build() (*Arena[V], error) {
	if b.built {
		return nil, &domain.ConfigError{Field: "builder", Reason: "already built"}
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	b.built = true

	a := &Arena[V]{
		strategy:     b.strategy,
		feed:         b.feed,
		inspector:    b.inspector,
		arbitrageur:  b.arbitrageur,
		fee:          *b.fee,
		tickSpacing:  *b.tickSpacing,
		initialPrice: b.initialPrice,
		launcher:     b.launcher,
		deployer:     b.deployer,
		logger:       b.logger,
		policy:       b.policy,
		saveData:     b.saveData,
		runID:        b.runID,
	}
	if a.launcher == nil {
		a.launcher = node.SimulatedLauncher{}
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.deployer == nil {
		a.deployer = contracts.ArtifactDeployer{Dir: contracts.DefaultArtifactsDir, Logger: a.logger}
	}
	a.logger = a.logger.With(slog.String("component", "arena"))
	return a, nil
}

func (b *Builder[V]) validate() error {
	switch {
	case b.strategy == nil:
		return missing("strategy")
	case b.feed == nil:
		return missing("feed")
	case b.inspector == nil:
		return missing("inspector")
	case b.arbitrageur == nil:
		return missing("arbitrageur")
	case b.fee == nil:
		return missing("fee")
	case b.tickSpacing == nil:
		return missing("tick_spacing")
	}
	if *b.fee > contracts.MaxLPFee {
		return &domain.ConfigError{
			Field:  "fee",
			Reason: fmt.Sprintf("%d exceeds maximum %d", *b.fee, contracts.MaxLPFee),
		}
	}
	if *b.tickSpacing <= 0 {
		return &domain.ConfigError{Field: "tick_spacing", Reason: "must be positive"}
	}
	if *b.tickSpacing > MaxTickSpacing {
		return &domain.ConfigError{
			Field:  "tick_spacing",
			Reason: fmt.Sprintf("%d exceeds maximum %d", *b.tickSpacing, MaxTickSpacing),
		}
	}
	return nil
}

func missing(field string) error {
	return &domain.ConfigError{Field: field, Reason: "required"}
}
