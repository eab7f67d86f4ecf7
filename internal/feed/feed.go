// Package feed provides fair-value sources for a backtest. Every feed is
// infinite and stateful: each Next advances it, and Current reports the last
// value handed out (or the initial value before the first pull).
package feed

import (
	"math"
	"math/rand/v2"
)

// OrnsteinUhlenbeck is a mean-reverting process
//
//	dX = speed * (mean - X) dt + volatility dW
//
// discretised with an Euler step of size dt.
type OrnsteinUhlenbeck struct {
	current    float64
	speed      float64
	mean       float64
	volatility float64
	dt         float64
	rng        *rand.Rand
}

// NewOrnsteinUhlenbeck returns a process starting at initial. The same seed
// always yields the same path.
func NewOrnsteinUhlenbeck(initial, speed, mean, volatility, dt float64, seed uint64) *OrnsteinUhlenbeck {
	return &OrnsteinUhlenbeck{
		current:    initial,
		speed:      speed,
		mean:       mean,
		volatility: volatility,
		dt:         dt,
		rng:        newRand(seed),
	}
}

func (f *OrnsteinUhlenbeck) Current() float64 { return f.current }

func (f *OrnsteinUhlenbeck) Next() float64 {
	f.current += f.speed*(f.mean-f.current)*f.dt + f.volatility*math.Sqrt(f.dt)*f.rng.NormFloat64()
	return f.current
}

// GBM is geometric Brownian motion with constant drift and volatility. It
// stays positive for a positive initial value.
type GBM struct {
	current    float64
	drift      float64
	volatility float64
	dt         float64
	rng        *rand.Rand
}

func NewGBM(initial, drift, volatility, dt float64, seed uint64) *GBM {
	return &GBM{
		current:    initial,
		drift:      drift,
		volatility: volatility,
		dt:         dt,
		rng:        newRand(seed),
	}
}

func (f *GBM) Current() float64 { return f.current }

func (f *GBM) Next() float64 {
	exp := (f.drift-0.5*f.volatility*f.volatility)*f.dt + f.volatility*math.Sqrt(f.dt)*f.rng.NormFloat64()
	f.current *= math.Exp(exp)
	return f.current
}

// Constant always yields the same value.
type Constant float64

func (c Constant) Current() float64 { return float64(c) }
func (c Constant) Next() float64    { return float64(c) }

// Series replays recorded values in order and then holds the last one.
type Series struct {
	initial float64
	values  []float64
	pos     int
}

// NewSeries returns a feed over values. Current is initial until the first
// pull.
func NewSeries(initial float64, values []float64) *Series {
	return &Series{initial: initial, values: append([]float64(nil), values...)}
}

func (s *Series) Current() float64 {
	if s.pos == 0 || len(s.values) == 0 {
		return s.initial
	}
	return s.values[s.pos-1]
}

func (s *Series) Next() float64 {
	if len(s.values) == 0 {
		return s.initial
	}
	if s.pos < len(s.values) {
		s.pos++
	}
	return s.values[s.pos-1]
}

// Remaining reports how many recorded values have not been pulled yet.
func (s *Series) Remaining() int {
	return len(s.values) - s.pos
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
