package arena

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthias-labs/arena/internal/contracts"
	"github.com/anthias-labs/arena/internal/domain"
	"github.com/anthias-labs/arena/internal/inspector"
	"github.com/anthias-labs/arena/internal/node"
)

// trace records every collaborator call in order.
type trace struct {
	mu    sync.Mutex
	calls []string
}

func (t *trace) add(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, fmt.Sprintf(format, args...))
}

func (t *trace) list() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

func stepLabel(s domain.Signal[float64]) string {
	if n, ok := s.Index(); ok {
		return strconv.Itoa(n)
	}
	return "none"
}

type fakeStrategy struct {
	tr         *trace
	initErr    error
	processErr map[int]error
	onProcess  func(step int)
	signals    []domain.Signal[float64]
}

func (s *fakeStrategy) Init(_ context.Context, _ *node.Provider, sig domain.Signal[float64]) error {
	s.tr.add("strategy.init(step=%s, value=%g)", stepLabel(sig), sig.CurrentValue)
	s.signals = append(s.signals, sig)
	return s.initErr
}

func (s *fakeStrategy) Process(_ context.Context, _ *node.Provider, sig domain.Signal[float64]) error {
	s.tr.add("strategy.process(step=%s, value=%g)", stepLabel(sig), sig.CurrentValue)
	s.signals = append(s.signals, sig)
	n, _ := sig.Index()
	if s.onProcess != nil {
		s.onProcess(n)
	}
	return s.processErr[n]
}

type fakeArbitrageur struct {
	tr  *trace
	err map[int]error
}

func (a *fakeArbitrageur) Arbitrage(_ context.Context, sig domain.Signal[float64], _ *node.Provider) error {
	a.tr.add("arbitrageur.arbitrage(step=%s, value=%g)", stepLabel(sig), sig.CurrentValue)
	n, _ := sig.Index()
	return a.err[n]
}

type fakeInspector struct {
	tr      *trace
	values  []float64
	saveErr error
	saves   int
}

func (i *fakeInspector) Inspect(step int) (float64, bool) {
	if step < 0 || step >= len(i.values) {
		return 0, false
	}
	return i.values[step], true
}

func (i *fakeInspector) Log(_ context.Context, v float64) error {
	i.tr.add("inspector.log(%g)", v)
	i.values = append(i.values, v)
	return nil
}

func (i *fakeInspector) Save(_ context.Context, sel *domain.SaveData) error {
	i.tr.add("inspector.save(%s)", sel.String())
	i.saves++
	return i.saveErr
}

// seqFeed yields values in order, then repeats the last one.
type seqFeed struct {
	current float64
	values  []float64
	pulls   int
}

func (f *seqFeed) Current() float64 { return f.current }

func (f *seqFeed) Next() float64 {
	v := f.values[min(f.pulls, len(f.values)-1)]
	f.pulls++
	f.current = v
	return v
}

// countingLauncher starts simulated nodes and counts launches and teardowns.
type countingLauncher struct {
	mu        sync.Mutex
	launches  int
	closes    int
	launchErr error
	closeErr  error
}

func (l *countingLauncher) Launch(ctx context.Context) (*node.Node, error) {
	l.mu.Lock()
	l.launches++
	l.mu.Unlock()
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	n, err := node.SimulatedLauncher{}.Launch(ctx)
	if err != nil {
		return nil, err
	}
	return node.New(n.Provider(), func() error {
		l.mu.Lock()
		l.closes++
		l.mu.Unlock()
		_ = n.Close()
		return l.closeErr
	}), nil
}

func (l *countingLauncher) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches, l.closes
}

var testPool = domain.NewPoolKey(
	common.HexToAddress("0x0000000000000000000000000000000000000b0b"),
	common.HexToAddress("0x0000000000000000000000000000000000000a0a"),
	4000, 2, common.Address{},
)

var testManager = common.HexToAddress("0x000000000000000000000000000000000000abcd")

func stubDeployer(calls *int) Deployer {
	return DeployerFunc(func(_ context.Context, _ *node.Provider, params contracts.PoolParams) (contracts.Deployment, error) {
		*calls++
		pool := testPool
		pool.Fee = params.Fee
		pool.TickSpacing = params.TickSpacing
		return contracts.Deployment{Manager: testManager, Pool: pool}, nil
	})
}

type harness struct {
	tr          *trace
	strategy    *fakeStrategy
	feed        *seqFeed
	inspector   *fakeInspector
	arbitrageur *fakeArbitrageur
	launcher    *countingLauncher
	deploys     int
}

func newHarness(values ...float64) *harness {
	tr := &trace{}
	if len(values) == 0 {
		values = []float64{1.05}
	}
	return &harness{
		tr:          tr,
		strategy:    &fakeStrategy{tr: tr, processErr: map[int]error{}},
		feed:        &seqFeed{current: 1.0, values: values},
		inspector:   &fakeInspector{tr: tr},
		arbitrageur: &fakeArbitrageur{tr: tr, err: map[int]error{}},
		launcher:    &countingLauncher{},
	}
}

func (h *harness) builder() *Builder[float64] {
	return NewBuilder[float64]().
		WithStrategy(h.strategy).
		WithFeed(h.feed).
		WithInspector(h.inspector).
		WithArbitrageur(h.arbitrageur).
		WithFee(4000).
		WithTickSpacing(2).
		WithLauncher(h.launcher).
		WithDeployer(stubDeployer(&h.deploys))
}

func (h *harness) build(t *testing.T) *Arena[float64] {
	t.Helper()
	a, err := h.builder().Build()
	require.NoError(t, err)
	return a
}

func TestBuildRequiresEveryField(t *testing.T) {
	h := newHarness()
	full := func() *Builder[float64] { return h.builder() }

	tests := []struct {
		name  string
		b     *Builder[float64]
		field string
	}{
		{"strategy", full().WithStrategy(nil), "strategy"},
		{"feed", full().WithFeed(nil), "feed"},
		{"inspector", full().WithInspector(nil), "inspector"},
		{"arbitrageur", full().WithArbitrageur(nil), "arbitrageur"},
		{"fee", func() *Builder[float64] { b := full(); b.fee = nil; return b }(), "fee"},
		{"tick spacing", func() *Builder[float64] { b := full(); b.tickSpacing = nil; return b }(), "tick_spacing"},
		{"zero tick spacing", full().WithTickSpacing(0), "tick_spacing"},
		{"negative tick spacing", full().WithTickSpacing(-4), "tick_spacing"},
		{"tick spacing above max", full().WithTickSpacing(MaxTickSpacing + 1), "tick_spacing"},
		{"fee above max", full().WithFee(contracts.MaxLPFee + 1), "fee"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := tt.b.Build()
			assert.Nil(t, a)
			require.ErrorIs(t, err, domain.ErrConfig)
			var ce *domain.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}

	launches, _ := h.launcher.counts()
	assert.Zero(t, launches)
	assert.Zero(t, h.deploys)
}

func TestBuildEmptyBuilderNamesFirstMissingField(t *testing.T) {
	_, err := NewBuilder[float64]().Build()
	var ce *domain.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "strategy", ce.Field)
}

func TestBuildAcceptsBounds(t *testing.T) {
	h := newHarness()
	a, err := h.builder().WithFee(contracts.MaxLPFee).WithTickSpacing(MaxTickSpacing).Build()
	require.NoError(t, err)
	assert.Equal(t, contracts.MaxLPFee, a.fee)
	assert.Equal(t, MaxTickSpacing, a.tickSpacing)
	assert.Equal(t, StateBuilt, a.State())

	a, err = h.builder().WithFee(0).WithTickSpacing(1).Build()
	require.NoError(t, err)
	assert.Zero(t, a.fee)
}

func TestBuilderLastWriteWins(t *testing.T) {
	h := newHarness()
	a, err := h.builder().WithFee(100).WithFee(3000).WithTickSpacing(10).WithTickSpacing(60).Build()
	require.NoError(t, err)
	assert.Equal(t, uint32(3000), a.fee)
	assert.Equal(t, int32(60), a.tickSpacing)
}

func TestBuilderConsumedOnce(t *testing.T) {
	b := newHarness().builder()
	_, err := b.Build()
	require.NoError(t, err)
	_, err = b.Build()
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestBuildDefaults(t *testing.T) {
	h := newHarness()
	a, err := NewBuilder[float64]().
		WithStrategy(h.strategy).
		WithFeed(h.feed).
		WithInspector(h.inspector).
		WithArbitrageur(h.arbitrageur).
		WithFee(500).
		WithTickSpacing(10).
		Build()
	require.NoError(t, err)
	assert.IsType(t, node.SimulatedLauncher{}, a.launcher)
	assert.IsType(t, contracts.ArtifactDeployer{}, a.deployer)
	assert.Equal(t, FailFast, a.policy)
	assert.Nil(t, a.saveData)
	assert.Equal(t, 1.0, a.initialPrice)
}

func TestRunSingleStepTrace(t *testing.T) {
	h := newHarness(1.05)
	a := h.build(t)

	require.NoError(t, a.Run(context.Background(), NewConfig(1)))

	assert.Equal(t, []string{
		"strategy.init(step=none, value=1)",
		"strategy.process(step=0, value=1.05)",
		"arbitrageur.arbitrage(step=0, value=1.05)",
		"inspector.log(1.05)",
		"inspector.save(none)",
	}, h.tr.list())

	launches, closes := h.launcher.counts()
	assert.Equal(t, 1, launches)
	assert.Equal(t, 1, closes)
	assert.Equal(t, 1, h.deploys)
	assert.Equal(t, StateCompleted, a.State())
	assert.NotZero(t, a.RunID())

	v, ok := h.inspector.Inspect(0)
	require.True(t, ok)
	assert.Equal(t, 1.05, v)

	for _, sig := range h.strategy.signals {
		assert.Equal(t, testManager, sig.Manager)
		assert.Equal(t, uint32(4000), sig.Pool.Fee)
		assert.Equal(t, int32(2), sig.Pool.TickSpacing)
	}
}

func TestRunZeroSteps(t *testing.T) {
	h := newHarness()
	a := h.build(t)

	require.NoError(t, a.Run(context.Background(), NewConfig(0)))
	assert.Equal(t, []string{
		"strategy.init(step=none, value=1)",
		"inspector.save(none)",
	}, h.tr.list())
	assert.Zero(t, h.feed.pulls)
	_, closes := h.launcher.counts()
	assert.Equal(t, 1, closes)
}

func TestRunManyStepsOrdering(t *testing.T) {
	h := newHarness(1.1, 1.2, 1.3, 1.4, 1.5)
	sel := &domain.SaveData{Format: domain.SaveCSV, Target: "out.csv"}
	a, err := h.builder().WithSaveData(sel).Build()
	require.NoError(t, err)

	require.NoError(t, a.Run(context.Background(), NewConfig(5)))

	calls := h.tr.list()
	require.Len(t, calls, 1+5*3+1)
	assert.Equal(t, "strategy.init(step=none, value=1)", calls[0])
	for i := 0; i < 5; i++ {
		v := h.feed.values[i]
		assert.Equal(t, fmt.Sprintf("strategy.process(step=%d, value=%g)", i, v), calls[1+i*3])
		assert.Equal(t, fmt.Sprintf("arbitrageur.arbitrage(step=%d, value=%g)", i, v), calls[2+i*3])
		assert.Equal(t, fmt.Sprintf("inspector.log(%g)", v), calls[3+i*3])
	}
	assert.Equal(t, "inspector.save(csv:out.csv)", calls[len(calls)-1])
	assert.Equal(t, 5, h.feed.pulls)
	assert.Equal(t, 1, h.inspector.saves)

	prev := -1
	for _, sig := range h.strategy.signals[1:] {
		n, ok := sig.Index()
		require.True(t, ok)
		assert.Greater(t, n, prev)
		assert.Less(t, n, 5)
		prev = n
	}
}

func TestRunWithArtifactDeployer(t *testing.T) {
	h := newHarness(1.05)
	a, err := h.builder().
		WithDeployer(contracts.ArtifactDeployer{Dir: filepath.Join("..", "contracts", "testdata")}).
		Build()
	require.NoError(t, err)

	require.NoError(t, a.Run(context.Background(), NewConfig(1)))

	dep, ok := a.Deployment()
	require.True(t, ok)
	assert.NotEqual(t, common.Address{}, dep.Manager)
	assert.Equal(t, uint32(4000), dep.Pool.Fee)
	assert.Equal(t, int32(2), dep.Pool.TickSpacing)
	assert.Negative(t, dep.Pool.Currency0.Cmp(dep.Pool.Currency1))
	assert.Equal(t, dep.Manager, h.strategy.signals[0].Manager)
	assert.Len(t, h.tr.list(), 5)
}

func TestRunNodeStartupFailure(t *testing.T) {
	h := newHarness()
	h.launcher.launchErr = errors.New("no anvil")
	a := h.build(t)

	err := a.Run(context.Background(), NewConfig(3))
	require.ErrorIs(t, err, domain.ErrNodeStartup)
	assert.ErrorContains(t, err, "no anvil")
	assert.Empty(t, h.tr.list())
	assert.Zero(t, h.deploys)
	assert.Equal(t, StateFailed, a.State())
}

func TestRunDeploymentFailureTearsDown(t *testing.T) {
	h := newHarness()
	cause := errors.New("revert")
	a, err := h.builder().WithDeployer(DeployerFunc(
		func(context.Context, *node.Provider, contracts.PoolParams) (contracts.Deployment, error) {
			return contracts.Deployment{}, cause
		})).Build()
	require.NoError(t, err)

	err = a.Run(context.Background(), NewConfig(3))
	require.ErrorIs(t, err, domain.ErrDeployment)
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, h.tr.list())
	_, closes := h.launcher.counts()
	assert.Equal(t, 1, closes)
	assert.Equal(t, StateFailed, a.State())
	_, ok := a.Deployment()
	assert.False(t, ok)
}

func TestRunPoolInitializeRevertTearsDown(t *testing.T) {
	h := newHarness()
	a, err := h.builder().
		WithDeployer(contracts.ArtifactDeployer{Dir: filepath.Join("..", "contracts", "testdata", "reverting")}).
		Build()
	require.NoError(t, err)

	err = a.Run(context.Background(), NewConfig(3))
	require.ErrorIs(t, err, domain.ErrDeployment)
	var de *domain.DeploymentError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "PoolManager", de.Contract)

	assert.Empty(t, h.tr.list(), "no collaborator runs after a failed deployment")
	launches, closes := h.launcher.counts()
	assert.Equal(t, 1, launches)
	assert.Equal(t, 1, closes)
	assert.Equal(t, StateFailed, a.State())
	_, ok := a.Deployment()
	assert.False(t, ok)
}

func TestRunDeploymentErrorPassedThrough(t *testing.T) {
	h := newHarness()
	a, err := h.builder().WithDeployer(DeployerFunc(
		func(context.Context, *node.Provider, contracts.PoolParams) (contracts.Deployment, error) {
			return contracts.Deployment{}, &domain.DeploymentError{Contract: "ArenaToken", Err: node.ErrReverted}
		})).Build()
	require.NoError(t, err)

	err = a.Run(context.Background(), NewConfig(1))
	var de *domain.DeploymentError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "ArenaToken", de.Contract)
	assert.ErrorIs(t, err, node.ErrReverted)
}

func TestRunFeeAboveOnChainLimit(t *testing.T) {
	h := newHarness()
	a := h.build(t)
	a.fee = contracts.MaxLPFee + 1

	err := a.Run(context.Background(), NewConfig(1))
	var ce *domain.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "fee", ce.Field)
	assert.Zero(t, h.deploys)
	assert.Empty(t, h.tr.list())
	_, closes := h.launcher.counts()
	assert.Equal(t, 1, closes)
}

func TestRunInitFailureAborts(t *testing.T) {
	h := newHarness()
	h.strategy.initErr = errors.New("no liquidity")
	a, err := h.builder().WithStepPolicy(ContinueOnError).Build()
	require.NoError(t, err)

	err = a.Run(context.Background(), NewConfig(3))
	var se *domain.StepExecutionError
	require.ErrorAs(t, err, &se)
	assert.Nil(t, se.Step)
	assert.Equal(t, domain.PhaseInit, se.Phase)
	assert.Equal(t, []string{"strategy.init(step=none, value=1)"}, h.tr.list())
	assert.Zero(t, h.feed.pulls)
	_, closes := h.launcher.counts()
	assert.Equal(t, 1, closes)
}

func TestRunStepFailureFailFast(t *testing.T) {
	h := newHarness(1.1, 1.2, 1.3)
	cause := errors.New("swap reverted")
	h.strategy.processErr[1] = cause
	a := h.build(t)

	err := a.Run(context.Background(), NewConfig(3))
	require.ErrorIs(t, err, domain.ErrStepExecution)
	require.ErrorIs(t, err, cause)
	var se *domain.StepExecutionError
	require.ErrorAs(t, err, &se)
	require.NotNil(t, se.Step)
	assert.Equal(t, 1, *se.Step)
	assert.Equal(t, domain.PhaseProcess, se.Phase)

	assert.Equal(t, []string{
		"strategy.init(step=none, value=1)",
		"strategy.process(step=0, value=1.1)",
		"arbitrageur.arbitrage(step=0, value=1.1)",
		"inspector.log(1.1)",
		"strategy.process(step=1, value=1.2)",
	}, h.tr.list())
	assert.Zero(t, h.inspector.saves)

	v, ok := h.inspector.Inspect(0)
	require.True(t, ok)
	assert.Equal(t, 1.1, v)
	_, ok = h.inspector.Inspect(1)
	assert.False(t, ok)

	_, closes := h.launcher.counts()
	assert.Equal(t, 1, closes)
	assert.Equal(t, StateFailed, a.State())
}

func TestRunContinueOnError(t *testing.T) {
	h := newHarness(1.1, 1.2, 1.3)
	cause := errors.New("no route")
	h.arbitrageur.err[1] = cause
	a, err := h.builder().WithStepPolicy(ContinueOnError).Build()
	require.NoError(t, err)

	err = a.Run(context.Background(), NewConfig(3))
	require.ErrorIs(t, err, cause)
	var se *domain.StepExecutionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, *se.Step)
	assert.Equal(t, domain.PhaseArbitrage, se.Phase)

	assert.Equal(t, []float64{1.1, 1.3}, h.inspector.values)
	assert.Equal(t, 1, h.inspector.saves)
	assert.Equal(t, 3, h.feed.pulls)
	assert.Equal(t, StateFailed, a.State())
}

func TestRunContinueOnErrorKeepsStepNumbers(t *testing.T) {
	h := newHarness(10, 11, 12, 13)
	h.strategy.processErr[1] = errors.New("rejected")
	rec := inspector.NewRecorder()
	a, err := h.builder().
		WithInspector(rec).
		WithStepPolicy(ContinueOnError).
		Build()
	require.NoError(t, err)

	require.Error(t, a.Run(context.Background(), NewConfig(4)))

	_, ok := rec.Inspect(1)
	assert.False(t, ok, "failed tick logs nothing")
	for step, want := range map[int]float64{0: 10, 2: 12, 3: 13} {
		got, ok := rec.Inspect(step)
		require.True(t, ok, "step %d", step)
		assert.Equal(t, want, got, "step %d", step)
	}

	var steps []int
	for _, r := range rec.Records() {
		steps = append(steps, r.Step)
	}
	assert.Equal(t, []int{0, 2, 3}, steps)
}

func TestRunSaveFailure(t *testing.T) {
	h := newHarness()
	h.inspector.saveErr = errors.New("disk full")
	a := h.build(t)

	err := a.Run(context.Background(), NewConfig(1))
	var se *domain.StepExecutionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, domain.PhaseSave, se.Phase)
	assert.Nil(t, se.Step)
	_, closes := h.launcher.counts()
	assert.Equal(t, 1, closes)
}

func TestRunCancelledMidRun(t *testing.T) {
	h := newHarness(1.1, 1.2, 1.3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.strategy.onProcess = func(step int) {
		if step == 1 {
			cancel()
		}
	}
	a, err := h.builder().WithStepPolicy(ContinueOnError).Build()
	require.NoError(t, err)

	err = a.Run(ctx, NewConfig(3))
	require.ErrorIs(t, err, context.Canceled)
	var se *domain.StepExecutionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, *se.Step)
	assert.Equal(t, domain.PhaseArbitrage, se.Phase)
	assert.Zero(t, h.inspector.saves)
	assert.Equal(t, 2, h.feed.pulls)
	_, closes := h.launcher.counts()
	assert.Equal(t, 1, closes)
}

func TestRunTwice(t *testing.T) {
	h := newHarness()
	a := h.build(t)
	require.NoError(t, a.Run(context.Background(), NewConfig(1)))

	err := a.Run(context.Background(), NewConfig(1))
	assert.ErrorIs(t, err, domain.ErrAlreadyRun)
	launches, _ := h.launcher.counts()
	assert.Equal(t, 1, launches)
}

func TestRunNegativeSteps(t *testing.T) {
	h := newHarness()
	a := h.build(t)
	err := a.Run(context.Background(), NewConfig(-1))
	assert.ErrorIs(t, err, domain.ErrConfig)
	assert.Equal(t, StateBuilt, a.State())
	launches, _ := h.launcher.counts()
	assert.Zero(t, launches)
}

func TestRunTeardownFailureIgnored(t *testing.T) {
	h := newHarness()
	h.launcher.closeErr = errors.New("kill failed")
	a := h.build(t)

	require.NoError(t, a.Run(context.Background(), NewConfig(2)))
	assert.Equal(t, StateCompleted, a.State())
}

func TestRunPanicStillTearsDown(t *testing.T) {
	h := newHarness()
	h.strategy.onProcess = func(int) { panic("boom") }
	a := h.build(t)

	assert.PanicsWithValue(t, "boom", func() {
		_ = a.Run(context.Background(), NewConfig(1))
	})
	_, closes := h.launcher.counts()
	assert.Equal(t, 1, closes)
	assert.Equal(t, StateFailed, a.State())
}

func TestArenasUseIndependentNodes(t *testing.T) {
	h1, h2 := newHarness(), newHarness()
	a1, a2 := h1.build(t), h2.build(t)
	require.NoError(t, a1.Run(context.Background(), NewConfig(1)))
	require.NoError(t, a2.Run(context.Background(), NewConfig(1)))
	assert.NotEqual(t, a1.RunID(), a2.RunID())
	l1, _ := h1.launcher.counts()
	l2, _ := h2.launcher.counts()
	assert.Equal(t, 1, l1)
	assert.Equal(t, 1, l2)
}

func TestRunUsesFixedRunID(t *testing.T) {
	h := newHarness()
	id := uuid.New()
	a, err := h.builder().WithRunID(id).Build()
	require.NoError(t, err)
	assert.Equal(t, id, a.RunID())
	require.NoError(t, a.Run(context.Background(), NewConfig(1)))
	assert.Equal(t, id, a.RunID())
}
