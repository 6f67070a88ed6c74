package opt

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evrptw/internal/instance"
)

func TestRegretValueUsesKthBest(t *testing.T) {
	costs := []float64{5, 8, 20}
	assert.Equal(t, 3.0, regretValue(costs, 2))
	assert.Equal(t, 15.0, regretValue(costs, 3))
	assert.Zero(t, regretValue(costs[:1], 2))
}

func TestRemoveOnlyCustomerLeavesNoRoutes(t *testing.T) {
	in, err := instance.New("single", []instance.Location{
		{Kind: instance.Depot, DueTime: 100},
		{Kind: instance.Customer, X: 3, Y: 4, Demand: 1, DueTime: 100},
	}, instance.Vehicle{BatteryCapacity: 100, LoadCapacity: 5, ConsumptionRate: 1, RechargeRate: 1, Velocity: 1})
	require.NoError(t, err)
	s, err := Construct(in, FreeRecharge{})
	require.NoError(t, err)
	require.Len(t, s.Routes(), 1)

	removed := removeCustomers(s, RandomRemoval, 1, rand.New(rand.NewSource(1)))

	assert.Equal(t, []int{1}, removed)
	require.Len(t, s.Routes(), 1)
	assert.Zero(t, s.Routes()[0].CustomerCount())
	s.RemoveEmptyRoutes()
	assert.Empty(t, s.Routes())
}

func TestRemovalCounts(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for range 200 {
		n := customerCount(100, rng)
		assert.GreaterOrEqual(t, n, 10)
		assert.LessOrEqual(t, n, 40)

		m := stationCount(20, rng)
		assert.GreaterOrEqual(t, m, 2)
		assert.LessOrEqual(t, m, 8)

		k := routeCount(10, rng)
		assert.GreaterOrEqual(t, k, 1)
		assert.LessOrEqual(t, k, 3)
	}
	assert.Equal(t, 1, routeCount(1, rng))
}

func TestBiasedIndexPrefersHead(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	head := 0
	for range 1000 {
		i := biasedIndex(20, shawDeterminism, rng)
		require.GreaterOrEqual(t, i, 0)
		require.Less(t, i, 20)
		if i == 0 {
			head++
		}
	}
	assert.Greater(t, head, 700)
}

func TestEveryOperatorKeepsSolutionConsistent(t *testing.T) {
	in := gridInstance(t, 25, 5)
	s, err := Construct(in, FreeRecharge{})
	require.NoError(t, err)
	require.NoError(t, s.Verify())
	requireConsistent(t, s)
	rng := rand.New(rand.NewSource(9))

	for op := range numRemovalOps {
		for ins := range numInsertionOps {
			c := s.Clone()
			pool := removeCustomers(c, op, customerCount(c.CustomerCount(), rng), rng)
			requireConsistent(t, c)
			assert.Equal(t, in.Len()-5, c.CustomerCount()+len(pool), "%s", op)

			insertStations(c, GreedyStationInsertion)
			require.NoError(t, insertCustomers(c, ins, pool, rng), "%s/%s", op, ins)
			c.RemoveEmptyRoutes()
			requireConsistent(t, c)
			require.NoError(t, c.Verify(), "%s/%s", op, ins)
		}
	}
	// The source solution is untouched by work on its clones.
	require.NoError(t, s.Verify())
	requireConsistent(t, s)
}

func TestStationOperatorsKeepSolutionConsistent(t *testing.T) {
	in := gridInstance(t, 30, 8)
	s, err := Construct(in, FreeRecharge{})
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(4))

	for op := range numStationRemovalOps {
		for ins := range numStationInsertionOps {
			c := s.Clone()
			before := c.StationVisitCount()
			n := removeStations(c, op, before, rng)
			assert.LessOrEqual(t, n, before)
			assert.Equal(t, before-n, c.StationVisitCount(), "%s", op)
			requireConsistent(t, c)

			insertStations(c, ins)
			requireConsistent(t, c)
			assert.Equal(t, in.Len()-5, c.CustomerCount())
		}
	}
}

func TestStationRepairNeverRaisesRequiredCharge(t *testing.T) {
	in := toyInstance(t)
	for _, op := range []StationInsertionOp{GreedyStationInsertion, ComparisonStationInsertion, BestStationInsertion} {
		t.Run(op.String(), func(t *testing.T) {
			r := NewRoute(in, FreeRecharge{})
			r.InsertAt(toyA, 1)
			r.InsertAt(toyB, 2)
			require.False(t, r.IsBatteryFeasible())

			prev := r.RequiredCharge()
			for steps := 0; !r.IsBatteryFeasible(); steps++ {
				require.Less(t, steps, 10)
				next, ok := stationSteps[op](r)
				require.True(t, ok)
				assert.LessOrEqual(t, next.RequiredCharge(), prev+chargeTolerance)
				prev, r = next.RequiredCharge(), next
			}
			assert.InDelta(t, toyOptimum, r.Distance(), 1e-9)
			assert.InDelta(t, toyOptimum, edgeSum(in, r), 1e-9)
		})
	}
}

func TestZonesCoverEveryServedCustomer(t *testing.T) {
	in := gridInstance(t, 40, 2)
	s, err := Construct(in, FreeRecharge{})
	require.NoError(t, err)

	zones := customerZones(s)
	var all []int
	for z, members := range zones {
		assert.GreaterOrEqual(t, z, 0)
		assert.Less(t, z, zoneGrid*zoneGrid)
		for _, m := range members {
			all = append(all, m.loc)
		}
	}
	slices.Sort(all)
	assert.Equal(t, in.Customers(), all)

	removed := zoneRemoval(s, rand.New(rand.NewSource(1)))
	assert.NotEmpty(t, removed)
	assert.Equal(t, len(in.Customers())-len(removed), s.CustomerCount())
}

// zoneInstance puts a full route's customer alone in the top-left cell and a
// route with spare load in the bottom-right cell, next to an unrouted customer.
func zoneInstance(t *testing.T) (*Solution, int) {
	t.Helper()
	in, err := instance.New("zones", []instance.Location{
		{Kind: instance.Depot, DueTime: 10000},
		{Kind: instance.Station, X: 50, Y: 50, DueTime: 10000},
		{Kind: instance.Customer, X: 0, Y: 100, Demand: 2, DueTime: 10000},
		{Kind: instance.Customer, X: 100, Y: 0, Demand: 1, DueTime: 10000},
		{Kind: instance.Customer, X: 90, Y: 0, Demand: 1, DueTime: 10000},
	}, instance.Vehicle{BatteryCapacity: 1000, LoadCapacity: 2, ConsumptionRate: 1, RechargeRate: 1, Velocity: 1})
	require.NoError(t, err)

	s := NewSolution(in, FreeRecharge{})
	for _, c := range []int{2, 3} {
		r := s.NewRoute()
		r.InsertAt(c, 1)
		s.AddRoute(r)
	}
	return s, 4
}

func TestZoneInsertionOnlyUsesRoutesInDrawnCell(t *testing.T) {
	const fullRouteCell = 4 * zoneGrid
	var sawFull, sawSpare bool
	for seed := int64(0); seed < 32; seed++ {
		s, pending := zoneInstance(t)
		z := pickZone(customerZones(s), rand.New(rand.NewSource(seed)))

		for _, c := range zoneCandidates(s, []int{pending}, rand.New(rand.NewSource(seed))) {
			assert.True(t, slices.ContainsFunc(customerZones(s)[z], func(m zoneMember) bool { return m.route == c.route }),
				"seed %d: candidate route %d outside cell %d", seed, c.route, z)
		}

		require.NoError(t, insertCustomers(s, ZoneInsertion, []int{pending}, rand.New(rand.NewSource(seed))))
		requireConsistent(t, s)
		if z == fullRouteCell {
			sawFull = true
			// the full route rejects it and the spare route is out of zone
			require.Len(t, s.Routes(), 3, "seed %d", seed)
			assert.Equal(t, []int{3}, s.Routes()[1].Customers())
			assert.Equal(t, []int{pending}, s.Routes()[2].Customers())
		} else {
			sawSpare = true
			require.Len(t, s.Routes(), 2, "seed %d", seed)
			assert.ElementsMatch(t, []int{3, pending}, s.Routes()[1].Customers())
		}
	}
	assert.True(t, sawFull)
	assert.True(t, sawSpare)
}
