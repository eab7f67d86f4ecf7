// Package arena is the backtest engine. A Builder assembles the strategy under
// test with its feed, arbitrageur and inspector; Arena.Run starts an ephemeral
// node, deploys the pool and drives the collaborators through a fixed number
// of ticks.
package arena

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/anthias-labs/arena/internal/contracts"
	"github.com/anthias-labs/arena/internal/domain"
	"github.com/anthias-labs/arena/internal/metrics"
	"github.com/anthias-labs/arena/internal/node"
)

// State is the lifecycle stage of an Arena.
type State int32

const (
	StateBuilt State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// StepPolicy decides what a failing tick does to the rest of the run.
type StepPolicy int

const (
	// FailFast aborts the run at the first failing tick.
	FailFast StepPolicy = iota

	// ContinueOnError skips the remainder of a failing tick and carries on.
	// Run reports every failure once all ticks and Save have executed.
	ContinueOnError
)

func (p StepPolicy) String() string {
	switch p {
	case FailFast:
		return "fail_fast"
	case ContinueOnError:
		return "continue_on_error"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Arena owns the collaborators of one backtest. It is single-use: Run may be
// called once.
type Arena[V any] struct {
	strategy    Strategy[V]
	feed        Feed[V]
	inspector   Inspector[V]
	arbitrageur Arbitrageur[V]

	fee          uint32
	tickSpacing  int32
	initialPrice float64

	launcher node.Launcher
	deployer Deployer
	logger   *slog.Logger
	policy   StepPolicy
	saveData *domain.SaveData

	state atomic.Int32
	runID uuid.UUID

	mu         sync.Mutex
	deployment *contracts.Deployment
}

// State reports where the arena is in its lifecycle.
func (a *Arena[V]) State() State {
	return State(a.state.Load())
}

// RunID identifies the run. Unless fixed with Builder.WithRunID it is the
// zero UUID until Run starts.
func (a *Arena[V]) RunID() uuid.UUID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runID
}

// Deployment returns what the run deployed, once the pool is up.
func (a *Arena[V]) Deployment() (contracts.Deployment, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.deployment == nil {
		return contracts.Deployment{}, false
	}
	return *a.deployment, true
}

// Run executes the backtest: it launches a node, deploys the pool, calls
// Strategy.Init once, then for every tick pulls the feed and calls Process,
// Arbitrage and Log in that order, and finally calls Inspector.Save once. The
// node is torn down on every exit path before Run returns.
func (a *Arena[V]) Run(ctx context.Context, cfg Config) (err error) {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !a.state.CompareAndSwap(int32(StateBuilt), int32(StateRunning)) {
		return domain.ErrAlreadyRun
	}

	a.mu.Lock()
	if a.runID == uuid.Nil {
		a.runID = uuid.New()
	}
	id := a.runID
	a.mu.Unlock()

	logger := a.logger.With(slog.String("run_id", id.String()))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			a.state.Store(int32(StateFailed))
			metrics.RunsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
			panic(r)
		}
		if err != nil {
			a.state.Store(int32(StateFailed))
			metrics.RunsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
			logger.Error("arena run failed",
				slog.String("error", err.Error()),
				slog.Duration("elapsed", time.Since(start)),
			)
			return
		}
		a.state.Store(int32(StateCompleted))
		metrics.RunsTotal.WithLabelValues(metrics.OutcomeCompleted).Inc()
		logger.Info("arena run completed", slog.Duration("elapsed", time.Since(start)))
	}()

	logger.Info("arena run started",
		slog.Int("steps", cfg.Steps),
		slog.Any("fee", a.fee),
		slog.Any("tick_spacing", a.tickSpacing),
		slog.String("policy", a.policy.String()),
	)

	launchStart := time.Now()
	n, err := a.launcher.Launch(ctx)
	if err != nil {
		return &domain.NodeStartupError{Err: err}
	}
	metrics.NodeStartup.Observe(time.Since(launchStart).Seconds())
	defer func() {
		if cerr := n.Close(); cerr != nil {
			logger.Warn("node teardown failed", slog.String("error", cerr.Error()))
			return
		}
		logger.Debug("node torn down")
	}()

	p := n.Provider()
	logger.Debug("node started", slog.String("account", p.Address().Hex()))

	dep, err := a.deploy(ctx, p)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.deployment = &dep
	a.mu.Unlock()
	logger.Info("pool deployed",
		slog.String("manager", dep.Manager.Hex()),
		slog.String("pool", dep.Pool.String()),
	)

	return a.loop(ctx, p, dep, cfg, logger)
}

func (a *Arena[V]) deploy(ctx context.Context, p *node.Provider) (contracts.Deployment, error) {
	limit, err := contracts.DeployFeeLimit(ctx, p)
	if err != nil {
		return contracts.Deployment{}, &domain.DeploymentError{Contract: contracts.FeeLimitName, Err: err}
	}
	maxFee, err := contracts.MaxFee(ctx, limit)
	if err != nil {
		return contracts.Deployment{}, &domain.DeploymentError{Contract: contracts.FeeLimitName, Err: err}
	}
	if a.fee > maxFee {
		return contracts.Deployment{}, &domain.ConfigError{
			Field:  "fee",
			Reason: fmt.Sprintf("%d exceeds on-chain maximum %d", a.fee, maxFee),
		}
	}

	dep, err := a.deployer.Deploy(ctx, p, contracts.PoolParams{
		Fee:          a.fee,
		TickSpacing:  a.tickSpacing,
		InitialPrice: a.initialPrice,
	})
	if err != nil {
		var de *domain.DeploymentError
		if !errors.As(err, &de) {
			err = &domain.DeploymentError{Err: err}
		}
		return contracts.Deployment{}, err
	}
	return dep, nil
}

func (a *Arena[V]) loop(ctx context.Context, p *node.Provider, dep contracts.Deployment, cfg Config, logger *slog.Logger) error {
	first := signalAt(dep, a.feed.Current(), nil)
	if err := a.phase(ctx, domain.PhaseInit, nil, func() error {
		return a.strategy.Init(ctx, p, first)
	}); err != nil {
		return err
	}

	var failed []error
	for step := 0; step < cfg.Steps; step++ {
		err := a.tick(ctx, p, dep, step)
		if err == nil {
			metrics.StepsTotal.Inc()
			logger.Debug("step completed", slog.Int("step", step))
			continue
		}
		if a.policy == FailFast || ctx.Err() != nil {
			return err
		}
		logger.Warn("step failed", slog.Int("step", step), slog.String("error", err.Error()))
		failed = append(failed, err)
	}

	if err := a.phase(ctx, domain.PhaseSave, nil, func() error {
		return a.inspector.Save(ctx, a.saveData)
	}); err != nil {
		failed = append(failed, err)
	}
	return errors.Join(failed...)
}

func (a *Arena[V]) tick(ctx context.Context, p *node.Provider, dep contracts.Deployment, step int) error {
	var value V
	if err := a.phase(ctx, domain.PhaseFeed, &step, func() error {
		value = a.feed.Next()
		return nil
	}); err != nil {
		return err
	}
	s := signalAt(dep, value, &step)

	if err := a.phase(ctx, domain.PhaseProcess, &step, func() error {
		return a.strategy.Process(ctx, p, s)
	}); err != nil {
		return err
	}
	if err := a.phase(ctx, domain.PhaseArbitrage, &step, func() error {
		return a.arbitrageur.Arbitrage(ctx, s, p)
	}); err != nil {
		return err
	}
	return a.phase(ctx, domain.PhaseLog, &step, func() error {
		if sl, ok := a.inspector.(StepLogger[V]); ok {
			return sl.LogStep(ctx, step, value)
		}
		return a.inspector.Log(ctx, value)
	})
}

// phase runs fn unless ctx is already done, timing it and wrapping any
// failure with the step and phase it happened in.
func (a *Arena[V]) phase(ctx context.Context, name string, step *int, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return &domain.StepExecutionError{Step: copyStep(step), Phase: name, Err: err}
	}
	start := time.Now()
	err := fn()
	metrics.PhaseDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StepErrors.WithLabelValues(name).Inc()
		return &domain.StepExecutionError{Step: copyStep(step), Phase: name, Err: err}
	}
	return nil
}

// signalAt builds the signal for tick step, or the initialization signal when
// step is nil.
func signalAt[V any](dep contracts.Deployment, value V, step *int) domain.Signal[V] {
	return domain.NewSignal(dep.Manager, dep.Pool, value, step)
}

func copyStep(step *int) *int {
	if step == nil {
		return nil
	}
	n := *step
	return &n
}
