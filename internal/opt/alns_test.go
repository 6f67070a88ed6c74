package opt

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evrptw/internal/apperr"
)

func TestConstructToyRoutesThroughStation(t *testing.T) {
	in := toyInstance(t)
	s, err := Construct(in, FreeRecharge{})
	require.NoError(t, err)

	require.Len(t, s.Routes(), 1)
	r := s.Routes()[0]
	assert.Equal(t, 5, r.Len())
	assert.ElementsMatch(t, []int{toyA, toyB}, r.Customers())
	assert.Equal(t, []int{2}, r.StationPositions())
	assert.True(t, s.IsFeasible())
	assert.True(t, s.IsBatteryFeasible())
	assert.InDelta(t, toyOptimum, s.TotalDistance(), 1e-9)
	assert.InDelta(t, edgeSum(in, r), s.TotalDistance(), 1e-9)
	require.NoError(t, s.Verify())
}

func TestConstructUnderDegradationKeepsReserve(t *testing.T) {
	in := toyInstance(t)
	p := Degradation{Lower: 0.25, Upper: 0.85, LowWeight: 0.5, HighWeight: 1}
	s, err := Construct(in, p)
	require.NoError(t, err)
	require.NoError(t, s.Verify())
	for _, r := range s.Routes() {
		last := r.Visit(r.Len() - 1)
		assert.GreaterOrEqual(t, last.BatteryOnArrival, 0.25*in.BatteryCapacity-batteryEpsilon)
	}
	assert.Greater(t, s.TotalCost(), s.TotalDistance())
}

func TestVerifyReportsUnservedCustomer(t *testing.T) {
	in := toyInstance(t)
	s, err := Construct(in, FreeRecharge{})
	require.NoError(t, err)
	s.removeCustomer(toyA)

	err = s.Verify()
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeInvariant))
	assert.Contains(t, err.Error(), "customer 2 unserved")
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.CoolingRate = 1.5
	assert.True(t, apperr.Is(cfg.Validate(), apperr.CodeInvalidConfig))

	cfg = DefaultConfig()
	cfg.Policy.Kind = "nope"
	assert.True(t, apperr.Is(cfg.Validate(), apperr.CodeInvalidConfig))

	cfg = DefaultConfig()
	cfg.Iterations = 0
	assert.Error(t, cfg.Validate())
	cfg.PartialRun = true
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 2500, cfg.MaxIterations())
}

func TestRunToyKeepsOptimum(t *testing.T) {
	in := toyInstance(t)
	res, err := Run(context.Background(), in, smallConfig(), 42)
	require.NoError(t, err)

	require.NoError(t, res.Best.Verify())
	assert.Equal(t, StopIterations, res.StopReason)
	assert.Len(t, res.Best.Routes(), 1)
	assert.InDelta(t, toyOptimum, res.Metrics.BestCost, 1e-9)
	assert.InDelta(t, toyOptimum, res.Metrics.InitialCost, 1e-9)
}

func TestRunMetrics(t *testing.T) {
	in := gridInstance(t, 20, 3)
	cfg := smallConfig()
	res, err := Run(context.Background(), in, cfg, 7)
	require.NoError(t, err)
	require.NoError(t, res.Best.Verify())
	requireConsistent(t, res.Best)

	m := res.Metrics
	assert.Equal(t, cfg.Iterations, m.Iterations)
	assert.Equal(t, m.Iterations, m.Improvements+m.Accepted+m.AcceptedWorse+m.Rejected+m.Infeasible)
	assert.LessOrEqual(t, m.BestCost, m.InitialCost)
	assert.InDelta(t, res.Best.TotalCost(), m.BestCost, 1e-9)
	assert.Equal(t, len(res.Best.Routes()), m.BestRoutes)
	assert.Len(t, m.Snapshots, cfg.Iterations/cfg.SnapshotEvery)
	assert.Len(t, m.Removal, int(numRemovalOps))
	assert.Len(t, m.StationInsertion, int(numStationInsertionOps))
	assert.Zero(t, m.Selects[WorstDegradationStationRemoval.String()], "degradation removal is reserved for the degradation policy")

	t0 := cfg.TemperatureControl * m.InitialCost / math.Ln2 / 100
	assert.InDelta(t, t0*math.Pow(cfg.CoolingRate, float64(cfg.Iterations)), m.Temperature, 1e-9*t0)

	rep := BuildReport(res)
	assert.Equal(t, "grid", rep.Instance)
	assert.True(t, rep.Feasible)
	assert.True(t, rep.BatteryFeasible)
	assert.Len(t, rep.Routes, len(res.Best.Routes()))
	visited := 0
	for _, r := range rep.Routes {
		assert.Equal(t, 0, r.Visits[0].Loc)
		assert.Equal(t, 0, r.Visits[len(r.Visits)-1].Loc)
		for _, v := range r.Visits {
			if in.IsCustomer(v.Loc) {
				visited++
			}
		}
	}
	assert.Equal(t, 20, visited)
}

func TestRunIsDeterministicForSeed(t *testing.T) {
	in := gridInstance(t, 18, 12)
	cfg := smallConfig()
	cfg.Policy = PolicyConfig{Kind: PolicyDegradation, Lower: 0.1, Upper: 0.9, LowWeight: 0.5, HighWeight: 1}

	trace := func() ([]Progress, *Result) {
		var got []Progress
		res, err := Run(context.Background(), in, cfg, 99, WithObserver(func(p Progress) {
			got = append(got, p)
		}))
		require.NoError(t, err)
		return got, res
	}
	a, ra := trace()
	b, rb := trace()

	require.Len(t, a, cfg.Iterations)
	assert.Equal(t, a, b)
	repA, repB := BuildReport(ra), BuildReport(rb)
	repA.ElapsedMs, repB.ElapsedMs = 0, 0
	assert.Equal(t, repA, repB)
	assert.Equal(t, ra.Metrics.Selects, rb.Metrics.Selects)
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	in := gridInstance(t, 10, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, in, smallConfig(), 1)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, StopCanceled, res.StopReason)
	assert.Zero(t, res.Metrics.Iterations)
	require.NoError(t, res.Best.Verify())
}

func TestRunStopsOnDeadline(t *testing.T) {
	in := gridInstance(t, 10, 1)
	cfg := smallConfig()
	cfg.TimeLimitSeconds = 1e-9

	res, err := Run(context.Background(), in, cfg, 1)
	require.NoError(t, err)
	assert.Equal(t, StopDeadline, res.StopReason)
	assert.Less(t, res.Metrics.Iterations, cfg.Iterations)
}

func TestRunRejectsMissingInstance(t *testing.T) {
	_, err := Run(context.Background(), nil, DefaultConfig(), 1)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInstance))
}
