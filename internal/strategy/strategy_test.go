package strategy

import (
	"context"
	"log/slog"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthias-labs/arena/internal/domain"
	"github.com/anthias-labs/arena/internal/node"
)

func simulatedProvider(t *testing.T) *node.Provider {
	t.Helper()
	n, err := node.SimulatedLauncher{}.Launch(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return n.Provider()
}

func signal(v float64, step int) domain.Signal[float64] {
	return domain.NewSignal(common.Address{}, domain.PoolKey{}, v, &step)
}

func TestPriceTrackerWindow(t *testing.T) {
	pt := NewPriceTracker(3)
	assert.Zero(t, pt.Average())
	assert.Zero(t, pt.Volatility())

	for i, v := range []float64{1, 2, 3, 4} {
		pt.Track(v, i)
	}
	assert.Equal(t, 3, pt.Len())
	h := pt.History()
	assert.Equal(t, 1, h[0].Step)
	assert.InDelta(t, 3.0, pt.Average(), 1e-12)
	assert.InDelta(t, 0.816496580927726, pt.Volatility(), 1e-12)

	h[0].Price = 100
	assert.InDelta(t, 3.0, pt.Average(), 1e-12)
}

func TestMeanReversionDecisions(t *testing.T) {
	p := simulatedProvider(t)
	mr, err := NewMeanReversion(Config{Params: map[string]any{
		"lookback":          int64(5),
		"std_dev_threshold": 3.5,
	}}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mr.Init(ctx, p, domain.NewSignal(common.Address{}, domain.PoolKey{}, 1.0, nil)))
	for i, v := range []float64{1.01, 0.99, 1.01, 0.99} {
		require.NoError(t, mr.Process(ctx, p, signal(v, i)))
	}
	assert.Empty(t, mr.Decisions())

	require.NoError(t, mr.Process(ctx, p, signal(1.5, 4)))
	require.NoError(t, mr.Process(ctx, p, signal(0.2, 5)))

	d := mr.Decisions()
	require.Len(t, d, 2)
	assert.Equal(t, SideSell, d[0].Side)
	assert.Equal(t, 4, d[0].Step)
	assert.InDelta(t, 1.0, d[0].Mean, 1e-12)
	assert.Equal(t, SideBuy, d[1].Side)
	assert.Equal(t, 5, d[1].Step)
	assert.InDelta(t, -0.9/math.Sqrt(0.04008), d[1].Deviation, 1e-9)
}

func TestMeanReversionParams(t *testing.T) {
	_, err := NewMeanReversion(Config{Params: map[string]any{"lookback": 1}}, nil)
	assert.ErrorContains(t, err, "lookback")
	_, err = NewMeanReversion(Config{Params: map[string]any{"lookback": 2.5}}, nil)
	assert.ErrorContains(t, err, "integer")
	_, err = NewMeanReversion(Config{Params: map[string]any{"std_dev_threshold": "high"}}, nil)
	assert.ErrorContains(t, err, "expected number")
	_, err = NewMeanReversion(Config{Params: map[string]any{"std_dev_threshold": 0.0}}, nil)
	assert.ErrorContains(t, err, "positive")

	mr, err := NewMeanReversion(Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultStdDevThreshold, mr.threshold)
}

func TestPassiveCounts(t *testing.T) {
	p := NewPassive()
	ctx := context.Background()
	require.NoError(t, p.Init(ctx, nil, domain.Signal[float64]{}))
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Process(ctx, nil, signal(1, i)))
	}
	assert.Equal(t, int64(3), p.Processed())
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{MeanReversionName, PassiveName}, r.List())

	s, err := r.New(Config{Name: PassiveName}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Passive{}, s)

	_, err = r.New(Config{Name: MeanReversionName, Params: map[string]any{"lookback": 0}}, nil)
	assert.ErrorContains(t, err, `strategy "mean_reversion"`)

	_, err = r.New(Config{Name: "momentum"}, nil)
	assert.ErrorContains(t, err, "not registered")

	r.Register("momentum", func(Config, *slog.Logger) (Strategy, error) { return NewPassive(), nil })
	_, err = r.New(Config{Name: "momentum"}, nil)
	assert.NoError(t, err)
}
