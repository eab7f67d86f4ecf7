// Package arbitrage provides reference arbitrageurs that pull the pool's price
// toward the feed's fair value after each strategy step, and a registry for
// selecting one by config.
package arbitrage

import (
	"log/slog"

	"github.com/anthias-labs/arena/internal/arena"
)

// Arbitrageur corrects mispricing between the pool and float64 fair values.
type Arbitrageur = arena.Arbitrageur[float64]

// Config selects and parameterises an arbitrageur.
type Config struct {
	Name         string
	MinSpreadBps float64
	EstFeeBps    float64
	InitialPrice float64
}

// Factory builds an arbitrageur from its configuration.
type Factory func(cfg Config, logger *slog.Logger) (Arbitrageur, error)
