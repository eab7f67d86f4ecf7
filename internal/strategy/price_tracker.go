package strategy

import (
	"math"
	"sync"
)

// PricePoint records a single fair value observed at a tick.
type PricePoint struct {
	Price float64
	Step  int
}

// PriceTracker keeps a sliding window of the most recent fair values and
// exposes the statistics strategies rely on.
type PriceTracker struct {
	history []PricePoint
	window  int
	mu      sync.RWMutex
}

// NewPriceTracker creates a tracker holding at most window points.
func NewPriceTracker(window int) *PriceTracker {
	if window < 1 {
		window = 1
	}
	return &PriceTracker{window: window}
}

// Track records a new observation and drops the oldest point once the window
// is full.
func (pt *PriceTracker) Track(price float64, step int) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.history = append(pt.history, PricePoint{Price: price, Step: step})
	if over := len(pt.history) - pt.window; over > 0 {
		pt.history = append(pt.history[:0:0], pt.history[over:]...)
	}
}

// History returns a copy of the points in the window.
func (pt *PriceTracker) History() []PricePoint {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	if len(pt.history) == 0 {
		return nil
	}
	out := make([]PricePoint, len(pt.history))
	copy(out, pt.history)
	return out
}

// Len is the number of points in the window.
func (pt *PriceTracker) Len() int {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return len(pt.history)
}

// Average returns the arithmetic mean of the window, or 0 when it is empty.
func (pt *PriceTracker) Average() float64 {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return mean(pt.history)
}

// Volatility returns the population standard deviation of the window. It is
// 0 with fewer than two points.
func (pt *PriceTracker) Volatility() float64 {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	if len(pt.history) < 2 {
		return 0
	}
	m := mean(pt.history)
	var variance float64
	for _, p := range pt.history {
		d := p.Price - m
		variance += d * d
	}
	variance /= float64(len(pt.history))
	return math.Sqrt(variance)
}

func mean(pts []PricePoint) float64 {
	if len(pts) == 0 {
		return 0
	}
	var sum float64
	for _, p := range pts {
		sum += p.Price
	}
	return sum / float64(len(pts))
}
