package domain

import "github.com/ethereum/go-ethereum/common"

// Signal is the per-tick snapshot handed to strategies and arbitrageurs. It
// pairs the identity of the pool under test with the feed's theoretical value
// for the tick.
type Signal[V any] struct {
	// Manager is the address of the deployed pool manager.
	Manager common.Address

	// Pool identifies the pool under test.
	Pool PoolKey

	// CurrentValue is the feed's value for this tick.
	CurrentValue V

	// Step is the tick index. It is nil only for the initialization signal.
	Step *int
}

// NewSignal builds a Signal. A nil step marks the pre-loop initialization
// signal; the pointed-to value is copied so later writes by the caller cannot
// reach the Signal.
func NewSignal[V any](manager common.Address, pool PoolKey, value V, step *int) Signal[V] {
	var s *int
	if step != nil {
		n := *step
		s = &n
	}
	return Signal[V]{
		Manager:      manager,
		Pool:         pool,
		CurrentValue: value,
		Step:         s,
	}
}

// Index returns the tick index and whether the signal belongs to a tick.
func (s Signal[V]) Index() (int, bool) {
	if s.Step == nil {
		return 0, false
	}
	return *s.Step, true
}
