package arbitrage

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry holds named arbitrageur factories for selection by config.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry returns an empty registry. Call Register to add factories.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry holding the reference arbitrageurs. The
// spread arbitrageur built here has no exchange resolver; callers that want
// it to move an on-chain price register their own factory.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NoopName, func(Config, *slog.Logger) (Arbitrageur, error) {
		return Noop{}, nil
	})
	r.Register(SpreadName, func(cfg Config, logger *slog.Logger) (Arbitrageur, error) {
		return NewSpread(SpreadConfig{
			MinSpreadBps: cfg.MinSpreadBps,
			EstFeeBps:    cfg.EstFeeBps,
			InitialPrice: cfg.InitialPrice,
		}, logger)
	})
	return r
}

// Register adds a factory under the given name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// New builds the arbitrageur named by cfg.Name.
func (r *Registry) New(cfg Config, logger *slog.Logger) (Arbitrageur, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("arbitrageur %q not found", cfg.Name)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return f(cfg, logger)
}

// List returns all registered names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
