package arbitrage

import (
	"context"

	"github.com/anthias-labs/arena/internal/domain"
	"github.com/anthias-labs/arena/internal/node"
)

const NoopName = "noop"

// Noop leaves the pool alone.
type Noop struct{}

func (Noop) Arbitrage(context.Context, domain.Signal[float64], *node.Provider) error { return nil }
