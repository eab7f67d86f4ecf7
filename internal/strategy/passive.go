package strategy

import (
	"context"
	"sync/atomic"

	"github.com/anthias-labs/arena/internal/domain"
	"github.com/anthias-labs/arena/internal/node"
)

const PassiveName = "passive"

// Passive never trades. It is the baseline every other strategy is compared
// against.
type Passive struct {
	inits     atomic.Int64
	processed atomic.Int64
}

func NewPassive() *Passive { return &Passive{} }

func (p *Passive) Init(context.Context, *node.Provider, domain.Signal[float64]) error {
	p.inits.Add(1)
	return nil
}

func (p *Passive) Process(context.Context, *node.Provider, domain.Signal[float64]) error {
	p.processed.Add(1)
	return nil
}

// Processed reports how many ticks the strategy has seen.
func (p *Passive) Processed() int64 { return p.processed.Load() }
