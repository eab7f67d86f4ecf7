package strategy

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry manages a named collection of strategy factories that can be
// looked up at runtime. It is safe for concurrent use.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// DefaultRegistry returns a registry holding every reference strategy.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(PassiveName, func(Config, *slog.Logger) (Strategy, error) {
		return NewPassive(), nil
	})
	r.Register(MeanReversionName, func(cfg Config, logger *slog.Logger) (Strategy, error) {
		return NewMeanReversion(cfg, logger)
	})
	return r
}

// Register adds a factory under the given name. If one with the same name
// already exists it will be replaced.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// New builds the strategy named by cfg.Name.
func (r *Registry) New(cfg Config, logger *slog.Logger) (Strategy, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("strategy %q: not registered", cfg.Name)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s, err := f(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("strategy %q: %w", cfg.Name, err)
	}
	return s, nil
}

// List returns the names of all registered strategies in sorted order.
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
