package arbitrage

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/anthias-labs/arena/internal/contracts"
	"github.com/anthias-labs/arena/internal/domain"
	"github.com/anthias-labs/arena/internal/node"
)

const SpreadName = "spread"

// ExchangeResolver returns the liquid exchange to move, if one was deployed.
type ExchangeResolver func() (common.Address, bool)

// SpreadConfig configures the spread arbitrageur.
type SpreadConfig struct {
	MinSpreadBps float64 // minimum gap between pool and fair value, in bps
	EstFeeBps    float64 // subtracted from the gross edge

	// InitialPrice is the pool price before the first correction. Zero
	// means 1.0.
	InitialPrice float64

	// Exchange and Artifact, when both set, make every correction call
	// setPrice on the liquid exchange.
	Exchange ExchangeResolver
	Artifact *contracts.Artifact
}

// Opportunity is a correction the arbitrageur found at a tick.
type Opportunity struct {
	ID           string
	Step         int
	Direction    string // "up" or "down"
	PoolPrice    float64
	FairValue    float64
	GrossEdgeBps float64
	NetEdgeBps   float64
	Executed     bool
}

// Spread moves the pool price to the fair value whenever the gap, net of
// estimated fees, is at least MinSpreadBps.
type Spread struct {
	cfg    SpreadConfig
	logger *slog.Logger

	mu    sync.Mutex
	price float64
	opps  []Opportunity
}

// NewSpread creates a spread arbitrageur.
func NewSpread(cfg SpreadConfig, logger *slog.Logger) (*Spread, error) {
	if cfg.MinSpreadBps < 0 || cfg.EstFeeBps < 0 {
		return nil, fmt.Errorf("spread: thresholds must not be negative")
	}
	if cfg.InitialPrice == 0 {
		cfg.InitialPrice = 1.0
	}
	if cfg.InitialPrice < 0 {
		return nil, fmt.Errorf("spread: initial price must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Spread{
		cfg:    cfg,
		logger: logger.With(slog.String("arbitrageur", SpreadName)),
		price:  cfg.InitialPrice,
	}, nil
}

// Arbitrage compares the signal's value with the tracked pool price and
// corrects the pool when the net edge clears the threshold.
func (s *Spread) Arbitrage(ctx context.Context, sig domain.Signal[float64], p *node.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fair := sig.CurrentValue
	if fair <= 0 {
		return fmt.Errorf("spread: fair value %v is not positive", fair)
	}
	gross := math.Abs(fair-s.price) / s.price * 10000
	net := gross - s.cfg.EstFeeBps
	if gross == 0 || net < s.cfg.MinSpreadBps {
		return nil
	}

	step, _ := sig.Index()
	opp := Opportunity{
		ID:           uuid.Must(uuid.NewRandom()).String(),
		Step:         step,
		Direction:    "up",
		PoolPrice:    s.price,
		FairValue:    fair,
		GrossEdgeBps: gross,
		NetEdgeBps:   net,
	}
	if fair < s.price {
		opp.Direction = "down"
	}

	if addr, ok := s.exchange(); ok {
		ex := contracts.Bind(addr, s.cfg.Artifact, p)
		if err := ex.Transact(ctx, "setPrice", contracts.PriceWad(fair)); err != nil {
			return fmt.Errorf("spread: move exchange price: %w", err)
		}
		opp.Executed = true
	}
	s.price = fair
	s.opps = append(s.opps, opp)

	s.logger.DebugContext(ctx, "spread corrected",
		slog.Int("step", step),
		slog.String("direction", opp.Direction),
		slog.Float64("gross_edge_bps", gross),
		slog.Float64("net_edge_bps", net),
		slog.Bool("executed", opp.Executed),
	)
	return nil
}

func (s *Spread) exchange() (common.Address, bool) {
	if s.cfg.Exchange == nil || s.cfg.Artifact == nil {
		return common.Address{}, false
	}
	addr, ok := s.cfg.Exchange()
	if !ok || addr == (common.Address{}) {
		return common.Address{}, false
	}
	return addr, true
}

// Price is the pool price as last corrected.
func (s *Spread) Price() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.price
}

// Opportunities returns a copy of every correction made so far.
func (s *Spread) Opportunities() []Opportunity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Opportunity(nil), s.opps...)
}
