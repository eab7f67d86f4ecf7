// Package strategy holds reference strategies for the arena engine and a
// registry for selecting one by name from configuration.
package strategy

import (
	"fmt"
	"log/slog"

	"github.com/anthias-labs/arena/internal/arena"
)

// Strategy is a strategy over float64 fair values.
type Strategy = arena.Strategy[float64]

// Config holds strategy configuration.
type Config struct {
	Name   string
	Params map[string]any
}

// Factory builds a strategy from its configuration.
type Factory func(cfg Config, logger *slog.Logger) (Strategy, error)

// floatParam reads a numeric parameter. Decoded config files yield float64 or
// int64 depending on how the number was written.
func floatParam(params map[string]any, key string, def float64) (float64, error) {
	v, ok := params[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("param %q: expected number, got %T", key, v)
	}
}

func intParam(params map[string]any, key string, def int) (int, error) {
	f, err := floatParam(params, key, float64(def))
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("param %q: expected integer, got %v", key, f)
	}
	return int(f), nil
}
