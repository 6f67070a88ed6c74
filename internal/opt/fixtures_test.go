package opt

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"evrptw/internal/instance"
)

// Location ids of the toy instance.
const (
	toyStation = 1
	toyA       = 2
	toyB       = 3
)

// toyInstance has A at distance 10 and B at distance 11 from the depot. With a
// battery of 25 either customer alone is a round trip, but both need the station.
func toyInstance(t *testing.T) *instance.Instance {
	t.Helper()
	in, err := instance.New("toy", []instance.Location{
		{Kind: instance.Depot, DueTime: 1000},
		{Kind: instance.Station, X: 10, Y: 10, DueTime: 1000},
		{Kind: instance.Customer, X: 0, Y: 10, Demand: 1, DueTime: 1000},
		{Kind: instance.Customer, X: 11, Y: 0, Demand: 1, DueTime: 1000},
	}, instance.Vehicle{BatteryCapacity: 25, LoadCapacity: 10, ConsumptionRate: 1, RechargeRate: 1, Velocity: 1})
	require.NoError(t, err)
	return in
}

// gridInstance scatters customers with a fixed seed around a central depot and
// puts four stations on the corners of the service area.
func gridInstance(t *testing.T, customers int, seed int64) *instance.Instance {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	locs := []instance.Location{
		{Kind: instance.Depot, X: 50, Y: 50, DueTime: 2000},
		{Kind: instance.Station, X: 20, Y: 20, DueTime: 2000},
		{Kind: instance.Station, X: 80, Y: 20, DueTime: 2000},
		{Kind: instance.Station, X: 20, Y: 80, DueTime: 2000},
		{Kind: instance.Station, X: 80, Y: 80, DueTime: 2000},
	}
	for range customers {
		ready := float64(rng.Intn(200))
		locs = append(locs, instance.Location{
			Kind:        instance.Customer,
			X:           20 + 60*rng.Float64(),
			Y:           20 + 60*rng.Float64(),
			Demand:      float64(1 + rng.Intn(3)),
			ReadyTime:   ready,
			DueTime:     ready + 1500,
			ServiceTime: 5,
		})
	}
	in, err := instance.New("grid", locs, instance.Vehicle{
		BatteryCapacity: 150,
		LoadCapacity:    12,
		ConsumptionRate: 1,
		RechargeRate:    0.5,
		Velocity:        1,
	})
	require.NoError(t, err)
	return in
}

// requireConsistent replays every route from the depot and compares the
// recomputed state and distance with what the route maintained incrementally.
func requireConsistent(t *testing.T, s *Solution) {
	t.Helper()
	in := s.inst
	total := 0.0
	for ri, r := range s.routes {
		dist := 0.0
		for i := 1; i < len(r.visits); i++ {
			prev, v := r.visits[i-1], r.visits[i]
			d := in.Distance(prev.Loc, v.Loc)
			dist += d
			require.InDelta(t, prev.Departure(in)+d/in.Velocity, v.Arrival, 1e-6, "route %d pos %d arrival", ri, i)
			require.InDelta(t, prev.BatteryOnDeparture()-in.ConsumptionRate*d, v.BatteryOnArrival, 1e-6, "route %d pos %d battery", ri, i)
			require.InDelta(t, prev.LoadOnDeparture-in.Locations[v.Loc].Demand, v.LoadOnDeparture, 1e-6, "route %d pos %d load", ri, i)
			require.LessOrEqual(t, v.Charge, in.BatteryCapacity-v.BatteryOnArrival+1e-6)
		}
		require.InDelta(t, dist, r.distance, 1e-6, "route %d distance", ri)
		total += dist
	}
	require.InDelta(t, total, s.TotalDistance(), 1e-6)
}

func edgeSum(in *instance.Instance, r *Route) float64 {
	d := 0.0
	for i := 1; i < r.Len(); i++ {
		d += in.Distance(r.visits[i-1].Loc, r.visits[i].Loc)
	}
	return d
}

var toyOptimum = 31 + math.Sqrt(101)

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Iterations = 240
	cfg.StationCadence = 7
	cfg.RouteCadence = 50
	cfg.RouteBurst = 3
	cfg.CustomerWeightPeriod = 20
	cfg.StationWeightPeriod = 60
	cfg.SnapshotEvery = 40
	return cfg
}
