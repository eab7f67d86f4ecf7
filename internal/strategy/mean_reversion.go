package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/anthias-labs/arena/internal/domain"
	"github.com/anthias-labs/arena/internal/node"
)

const (
	MeanReversionName = "mean_reversion"

	defaultStdDevThreshold = 2.0
	defaultLookback        = 20
)

// Side is the direction of a decision.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Decision is a trade the strategy wants to make at a tick.
type Decision struct {
	Step      int
	Block     uint64
	Side      Side
	Value     float64
	Mean      float64
	Deviation float64
}

// MeanReversion buys when the fair value is significantly below its trailing
// mean and sells when it is significantly above. "Significantly" is measured
// in multiples of the trailing standard deviation (std_dev_threshold).
type MeanReversion struct {
	tracker   *PriceTracker
	threshold float64
	logger    *slog.Logger

	mu        sync.Mutex
	decisions []Decision
}

// NewMeanReversion creates a MeanReversion strategy. The following keys are
// read from cfg.Params:
//
//   - "lookback" (integer): number of ticks in the trailing window.
//     Defaults to 20.
//   - "std_dev_threshold" (number): deviations from the mean before a
//     decision is made. Defaults to 2.0.
func NewMeanReversion(cfg Config, logger *slog.Logger) (*MeanReversion, error) {
	lookback, err := intParam(cfg.Params, "lookback", defaultLookback)
	if err != nil {
		return nil, err
	}
	if lookback < 2 {
		return nil, fmt.Errorf("param %q: must be at least 2", "lookback")
	}
	threshold, err := floatParam(cfg.Params, "std_dev_threshold", defaultStdDevThreshold)
	if err != nil {
		return nil, err
	}
	if threshold <= 0 {
		return nil, fmt.Errorf("param %q: must be positive", "std_dev_threshold")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MeanReversion{
		tracker:   NewPriceTracker(lookback),
		threshold: threshold,
		logger:    logger.With(slog.String("strategy", MeanReversionName)),
	}, nil
}

// Init seeds the tracker with the initial fair value.
func (mr *MeanReversion) Init(_ context.Context, _ *node.Provider, s domain.Signal[float64]) error {
	mr.tracker.Track(s.CurrentValue, -1)
	return nil
}

// Process compares the tick's value with the trailing window before adding
// it, and records a decision when the deviation crosses the threshold.
func (mr *MeanReversion) Process(ctx context.Context, p *node.Provider, s domain.Signal[float64]) error {
	step, _ := s.Index()
	avg := mr.tracker.Average()
	vol := mr.tracker.Volatility()
	mr.tracker.Track(s.CurrentValue, step)
	if vol == 0 {
		return nil
	}

	deviation := (s.CurrentValue - avg) / vol
	var side Side
	switch {
	case deviation <= -mr.threshold:
		side = SideBuy
	case deviation >= mr.threshold:
		side = SideSell
	default:
		return nil
	}

	block, err := p.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("mean reversion: block number: %w", err)
	}
	d := Decision{
		Step:      step,
		Block:     block,
		Side:      side,
		Value:     s.CurrentValue,
		Mean:      avg,
		Deviation: deviation,
	}
	mr.mu.Lock()
	mr.decisions = append(mr.decisions, d)
	mr.mu.Unlock()

	mr.logger.Info("mean reversion decision",
		slog.Int("step", step),
		slog.String("side", string(side)),
		slog.Float64("value", s.CurrentValue),
		slog.Float64("avg", avg),
		slog.Float64("deviation", deviation),
	)
	return nil
}

// Decisions returns a copy of every decision made so far.
func (mr *MeanReversion) Decisions() []Decision {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	return append([]Decision(nil), mr.decisions...)
}
