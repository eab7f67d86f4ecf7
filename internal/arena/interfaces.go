package arena

import (
	"context"

	"github.com/anthias-labs/arena/internal/contracts"
	"github.com/anthias-labs/arena/internal/domain"
	"github.com/anthias-labs/arena/internal/node"
)

// Strategy is the strategy under test.
type Strategy[V any] interface {
	// Init runs once, after the pool is deployed and before the first tick.
	Init(ctx context.Context, p *node.Provider, s domain.Signal[V]) error

	// Process runs once per tick.
	Process(ctx context.Context, p *node.Provider, s domain.Signal[V]) error
}

// Feed is an infinite, stateful source of fair values. Each Next advances it
// irreversibly; Current returns the value before the next pull.
type Feed[V any] interface {
	Current() V
	Next() V
}

// Arbitrageur trades against the pool to bring its price toward the
// signal's value.
type Arbitrageur[V any] interface {
	Arbitrage(ctx context.Context, s domain.Signal[V], p *node.Provider) error
}

// Inspector records the values observed during a run and persists them.
type Inspector[V any] interface {
	// Inspect returns the value logged at step, if any.
	Inspect(step int) (V, bool)

	Log(ctx context.Context, v V) error

	// Save persists what was logged. A nil selector means no specific target.
	Save(ctx context.Context, sel *domain.SaveData) error
}

// StepLogger is implemented by inspectors that key logged values by tick.
// When the inspector implements it the arena calls LogStep instead of Log, so
// a tick skipped under ContinueOnError leaves a gap rather than shifting every
// later value down by one.
type StepLogger[V any] interface {
	LogStep(ctx context.Context, step int, v V) error
}

// Deployer stands up the pool under test on a fresh node.
type Deployer interface {
	Deploy(ctx context.Context, p *node.Provider, params contracts.PoolParams) (contracts.Deployment, error)
}

// DeployerFunc adapts a function to the Deployer interface.
type DeployerFunc func(ctx context.Context, p *node.Provider, params contracts.PoolParams) (contracts.Deployment, error)

// Deploy calls f.
func (f DeployerFunc) Deploy(ctx context.Context, p *node.Provider, params contracts.PoolParams) (contracts.Deployment, error) {
	return f(ctx, p, params)
}
