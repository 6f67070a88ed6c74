package opt

import (
	"math"
	"math/rand"
	"slices"
	"sort"
)

// RemovalOp enumerates the customer destroy operators.
type RemovalOp int

const (
	RandomRemoval RemovalOp = iota
	WorstDistanceRemoval
	WorstTimeRemoval
	ShawRemoval
	ProximityRemoval
	TimeBasedRemoval
	DemandBasedRemoval
	ZoneRemoval
	RandomRouteRemoval
	GreedyRouteRemoval
	numRemovalOps
)

var removalNames = []string{
	RandomRemoval:        "random_removal",
	WorstDistanceRemoval: "worst_distance_removal",
	WorstTimeRemoval:     "worst_time_removal",
	ShawRemoval:          "shaw_removal",
	ProximityRemoval:     "proximity_based_removal",
	TimeBasedRemoval:     "time_based_removal",
	DemandBasedRemoval:   "demand_based_removal",
	ZoneRemoval:          "zone_removal",
	RandomRouteRemoval:   "random_route_removal",
	GreedyRouteRemoval:   "greedy_route_removal",
}

func (op RemovalOp) String() string { return removalNames[op] }

// routeRemovalOps is the sub-catalog drawn from during route removal bursts.
var routeRemovalOps = []int{int(RandomRouteRemoval), int(GreedyRouteRemoval)}

const (
	worstDeterminism = 4
	shawDeterminism  = 12
)

// relatedness weights: distance, ready time, same route, demand.
type relatedness [4]float64

var (
	shawWeights      = relatedness{0.5, 13, 0.15, 0.25}
	proximityWeights = relatedness{1, 0, 0, 0}
	timeWeights      = relatedness{0, 1, 0, 0}
	demandWeights    = relatedness{0, 0, 0, 1}
)

// biasedIndex draws floor(n * r^p); large p concentrates on the head of a list sorted worst first.
func biasedIndex(n int, p float64, rng *rand.Rand) int {
	return int(float64(n) * math.Pow(rng.Float64(), p))
}

// customerCount draws n_c = ceil(U(min(0.1n,30), min(0.4n,60))) for n customers.
func customerCount(n int, rng *rand.Rand) int {
	lo := math.Min(0.1*float64(n), 30)
	hi := math.Min(0.4*float64(n), 60)
	return int(math.Ceil(lo + rng.Float64()*(hi-lo)))
}

// routeCount draws k in [max(1,ceil(0.1R)), max(1,ceil(0.3R))] for R routes.
func routeCount(routes int, rng *rand.Rand) int {
	lo := max(1, int(math.Ceil(0.1*float64(routes))))
	hi := max(1, int(math.Ceil(0.3*float64(routes))))
	return min(routes, lo+rng.Intn(hi-lo+1))
}

type customerVisit struct {
	route int
	loc   int
	cost  float64
}

func customerVisits(s *Solution, cost func(r *Route, pos int) float64) []customerVisit {
	var out []customerVisit
	for ri, r := range s.routes {
		for pos, v := range r.visits {
			if s.inst.IsCustomer(v.Loc) {
				out = append(out, customerVisit{route: ri, loc: v.Loc, cost: cost(r, pos)})
			}
		}
	}
	return out
}

// removeCustomers destroys part of s with op and returns the removed customer ids.
// n is ignored by the zone and route operators.
func removeCustomers(s *Solution, op RemovalOp, n int, rng *rand.Rand) []int {
	in := s.inst
	switch op {
	case RandomRemoval:
		return randomRemoval(s, n, rng)
	case WorstDistanceRemoval:
		return costRemoval(s, n, worstDeterminism, rng, customerVisits(s, func(r *Route, pos int) float64 {
			loc := r.visits[pos].Loc
			return in.Distance(loc, r.visits[pos-1].Loc) + in.Distance(loc, r.visits[pos+1].Loc)
		}))
	case WorstTimeRemoval:
		return costRemoval(s, n, worstDeterminism, rng, customerVisits(s, func(r *Route, pos int) float64 {
			v := r.visits[pos]
			return math.Abs(v.Arrival - in.Locations[v.Loc].ReadyTime)
		}))
	case ShawRemoval:
		return costRemoval(s, n, shawDeterminism, rng, relatedVisits(s, shawWeights, rng))
	case ProximityRemoval:
		return costRemoval(s, n, shawDeterminism, rng, relatedVisits(s, proximityWeights, rng))
	case TimeBasedRemoval:
		return costRemoval(s, n, shawDeterminism, rng, relatedVisits(s, timeWeights, rng))
	case DemandBasedRemoval:
		return costRemoval(s, n, shawDeterminism, rng, relatedVisits(s, demandWeights, rng))
	case ZoneRemoval:
		return zoneRemoval(s, rng)
	case RandomRouteRemoval:
		return removeRoutes(s, rng.Perm(len(s.routes))[:routeCount(len(s.routes), rng)])
	case GreedyRouteRemoval:
		idx := make([]int, len(s.routes))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			return s.routes[idx[a]].CustomerCount() < s.routes[idx[b]].CustomerCount()
		})
		return removeRoutes(s, idx[:routeCount(len(s.routes), rng)])
	}
	return nil
}

func randomRemoval(s *Solution, n int, rng *rand.Rand) []int {
	all := customerVisits(s, func(*Route, int) float64 { return 0 })
	var removed []int
	for len(removed) < n && len(all) > 0 {
		i := rng.Intn(len(all))
		s.removeCustomer(all[i].loc)
		removed = append(removed, all[i].loc)
		all = append(all[:i], all[i+1:]...)
	}
	return removed
}

// costRemoval sorts the visits worst first and removes n of them by biased pick.
func costRemoval(s *Solution, n int, p float64, rng *rand.Rand, visits []customerVisit) []int {
	sort.SliceStable(visits, func(i, j int) bool { return visits[i].cost > visits[j].cost })
	var removed []int
	for len(removed) < n && len(visits) > 0 {
		i := biasedIndex(len(visits), p, rng)
		s.removeCustomer(visits[i].loc)
		removed = append(removed, visits[i].loc)
		visits = append(visits[:i], visits[i+1:]...)
	}
	return removed
}

// relatedVisits scores every customer against one random reference customer.
// The reference itself is not a candidate.
func relatedVisits(s *Solution, w relatedness, rng *rand.Rand) []customerVisit {
	all := customerVisits(s, func(*Route, int) float64 { return 0 })
	if len(all) == 0 {
		return nil
	}
	ref := all[rng.Intn(len(all))]
	in := s.inst
	rl := in.Locations[ref.loc]
	out := make([]customerVisit, 0, len(all)-1)
	for _, c := range all {
		if c.loc == ref.loc {
			continue
		}
		l := in.Locations[c.loc]
		sameRoute := 1.0
		if c.route == ref.route {
			sameRoute = -1
		}
		c.cost = w[0]*in.Distance(ref.loc, c.loc) +
			w[1]*math.Abs(rl.ReadyTime-l.ReadyTime) +
			w[2]*sameRoute +
			w[3]*math.Abs(rl.Demand-l.Demand)
		out = append(out, c)
	}
	return out
}

func zoneRemoval(s *Solution, rng *rand.Rand) []int {
	zones := customerZones(s)
	z := pickZone(zones, rng)
	if z < 0 {
		return nil
	}
	var removed []int
	for _, m := range zones[z] {
		s.removeCustomer(m.loc)
		removed = append(removed, m.loc)
	}
	return removed
}

// removeRoutes deletes whole routes and returns their customers.
func removeRoutes(s *Solution, idx []int) []int {
	idx = slices.Clone(idx)
	slices.Sort(idx)
	var removed []int
	for i := len(idx) - 1; i >= 0; i-- {
		removed = append(removed, s.routes[idx[i]].Customers()...)
		s.routes = slices.Delete(s.routes, idx[i], idx[i]+1)
	}
	return removed
}
