package opt

import (
	"math"
	"math/rand"
	"slices"
	"sort"

	"evrptw/internal/apperr"
)

// InsertionOp enumerates the customer repair operators.
type InsertionOp int

const (
	GreedyInsertion InsertionOp = iota
	TimeBasedInsertion
	ZoneInsertion
	Regret2Insertion
	Regret3Insertion
	numInsertionOps
)

var insertionNames = []string{
	GreedyInsertion:    "greedy_insertion",
	TimeBasedInsertion: "time_based_insertion",
	ZoneInsertion:      "zone_insertion",
	Regret2Insertion:   "regret_2_insertion",
	Regret3Insertion:   "regret_3_insertion",
}

func (op InsertionOp) String() string { return insertionNames[op] }

type insertion struct {
	route  int
	pos    int
	loc    int
	cost   float64
	regret float64
}

type insertionCost func(r *Route, pos, loc int) float64

// distanceCost is the distance added by placing loc between pos-1 and pos.
func distanceCost(r *Route, pos, loc int) float64 {
	in := r.inst
	pred, succ := r.visits[pos-1].Loc, r.visits[pos].Loc
	return in.Distance(pred, loc) + in.Distance(loc, succ) - in.Distance(pred, succ)
}

// timeCost is the delay in the start of service at the successor.
func timeCost(r *Route, pos, loc int) float64 {
	in := r.inst
	pred, succ := r.visits[pos-1], r.visits[pos]
	ready := in.Locations[succ.Loc].ReadyTime
	current := math.Max(succ.Arrival, ready)

	l := in.Locations[loc]
	start := math.Max(pred.Departure(in)+in.TravelTime(pred.Loc, loc), l.ReadyTime)
	arrival := start + l.ServiceTime + in.TravelTime(loc, succ.Loc)
	return math.Max(arrival, ready) - current
}

// candidates lists every (route, position, customer) triple over the given
// routes, or all routes when routes is nil, cheapest first.
func candidates(s *Solution, pending []int, routes []int, cost insertionCost) []insertion {
	if routes == nil {
		routes = make([]int, len(s.routes))
		for i := range routes {
			routes[i] = i
		}
	}
	var out []insertion
	for _, loc := range pending {
		for _, ri := range routes {
			r := s.routes[ri]
			for pos := 1; pos < r.Len(); pos++ {
				out = append(out, insertion{route: ri, pos: pos, loc: loc, cost: cost(r, pos, loc)})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].cost < out[j].cost })
	return out
}

// regretValue is the gap between the k-th best and the best of costs sorted
// ascending, or 0 when fewer than k options exist.
func regretValue(costs []float64, k int) float64 {
	if len(costs) < k {
		return 0
	}
	return costs[k-1] - costs[0]
}

// regretCandidates ranks triples by their customer's regret, highest first,
// then by distance cost.
func regretCandidates(s *Solution, pending []int, k int) []insertion {
	var out []insertion
	for _, loc := range pending {
		own := candidates(s, []int{loc}, nil, distanceCost)
		costs := make([]float64, len(own))
		for i, c := range own {
			costs[i] = c.cost
		}
		regret := regretValue(costs, k)
		for _, c := range own {
			c.regret = regret
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].regret != out[j].regret {
			return out[i].regret > out[j].regret
		}
		return out[i].cost < out[j].cost
	})
	return out
}

// zoneCandidates restricts time based candidates to the routes serving one
// random grid cell. Only an empty solution falls back to every route.
func zoneCandidates(s *Solution, pending []int, rng *rand.Rand) []insertion {
	zones := customerZones(s)
	z := pickZone(zones, rng)
	if z < 0 {
		return candidates(s, pending, nil, timeCost)
	}
	var inZone []int
	for ri := range s.routes {
		if slices.ContainsFunc(zones[z], func(m zoneMember) bool { return m.route == ri }) {
			inZone = append(inZone, ri)
		}
	}
	return candidates(s, pending, inZone, timeCost)
}

// tryInsert commits the first candidate whose clone stays on time and, after
// station repair if needed, battery feasible. It returns the placed customer or -1.
func tryInsert(s *Solution, cands []insertion) int {
	for _, c := range cands {
		t := s.routes[c.route].Clone()
		t.InsertAt(c.loc, c.pos)
		if !t.IsFeasible() {
			continue
		}
		if !t.IsBatteryFeasible() {
			var ok bool
			if t, ok = repairRoute(t, greedyStationStep); !ok {
				continue
			}
		}
		s.routes[c.route] = t
		return c.loc
	}
	return -1
}

// insertCustomers places every customer of pool into s with op, opening a new
// route for any customer no existing route accepts.
func insertCustomers(s *Solution, op InsertionOp, pool []int, rng *rand.Rand) error {
	pending := slices.Clone(pool)
	for len(pending) > 0 {
		var cands []insertion
		switch op {
		case GreedyInsertion:
			cands = candidates(s, pending, nil, distanceCost)
		case TimeBasedInsertion:
			cands = candidates(s, pending, nil, timeCost)
		case ZoneInsertion:
			cands = zoneCandidates(s, pending, rng)
		case Regret2Insertion:
			cands = regretCandidates(s, pending, 2)
		case Regret3Insertion:
			cands = regretCandidates(s, pending, 3)
		}
		placed := tryInsert(s, cands)
		if placed < 0 {
			placed = pending[0]
			r, ok := openRoute(s, placed)
			if !ok {
				return apperr.ExhaustedRepair(placed).WithDetails(r.Dump())
			}
			s.AddRoute(r)
		}
		pending = slices.DeleteFunc(pending, func(c int) bool { return c == placed })
	}
	return nil
}

// openRoute builds depot -> customer -> depot and repairs its battery plan.
func openRoute(s *Solution, customer int) (*Route, bool) {
	r := s.NewRoute()
	r.InsertAt(customer, 1)
	if !r.IsFeasible() {
		return r, false
	}
	return repairRoute(r, greedyStationStep)
}
