package feed

import (
	"fmt"
	"sort"

	"github.com/anthias-labs/arena/internal/arena"
)

// Kinds of feed New understands.
const (
	KindOrnsteinUhlenbeck = "ou"
	KindGBM               = "gbm"
	KindConstant          = "constant"
	KindSeries            = "series"
)

// Params configures a feed. Fields that do not apply to Kind are ignored.
type Params struct {
	Kind       string
	Initial    float64
	Speed      float64
	Mean       float64
	Volatility float64
	Drift      float64
	Dt         float64
	Seed       uint64

	// Path and Column select the CSV column replayed by a series feed.
	Path   string
	Column string
}

type constructor func(Params) (arena.Feed[float64], error)

var constructors = map[string]constructor{
	KindOrnsteinUhlenbeck: func(p Params) (arena.Feed[float64], error) {
		if p.Dt <= 0 {
			return nil, fmt.Errorf("feed: ou: dt must be positive")
		}
		return NewOrnsteinUhlenbeck(p.Initial, p.Speed, p.Mean, p.Volatility, p.Dt, p.Seed), nil
	},
	KindGBM: func(p Params) (arena.Feed[float64], error) {
		if p.Dt <= 0 {
			return nil, fmt.Errorf("feed: gbm: dt must be positive")
		}
		if p.Initial <= 0 {
			return nil, fmt.Errorf("feed: gbm: initial value must be positive")
		}
		return NewGBM(p.Initial, p.Drift, p.Volatility, p.Dt, p.Seed), nil
	},
	KindConstant: func(p Params) (arena.Feed[float64], error) {
		return Constant(p.Initial), nil
	},
	KindSeries: func(p Params) (arena.Feed[float64], error) {
		if p.Path == "" {
			return nil, fmt.Errorf("feed: series: path is required")
		}
		column := p.Column
		if column == "" {
			column = "price"
		}
		return LoadSeriesCSV(p.Path, column)
	},
}

// New builds the feed named by p.Kind.
func New(p Params) (arena.Feed[float64], error) {
	c, ok := constructors[p.Kind]
	if !ok {
		return nil, fmt.Errorf("feed %q: not registered", p.Kind)
	}
	return c(p)
}

// Kinds returns the registered feed kinds in sorted order.
func Kinds() []string {
	out := make([]string, 0, len(constructors))
	for k := range constructors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
