package opt

import (
	"math"
	"math/rand"
	"sort"
)

// StationInsertionOp enumerates the station repair operators.
type StationInsertionOp int

const (
	GreedyStationInsertion StationInsertionOp = iota
	ComparisonStationInsertion
	BestStationInsertion
	numStationInsertionOps
)

var stationInsertionNames = []string{
	GreedyStationInsertion:     "greedy_station_insertion",
	ComparisonStationInsertion: "greedy_station_insertion_with_comparison",
	BestStationInsertion:       "best_station_insertion",
}

func (op StationInsertionOp) String() string { return stationInsertionNames[op] }

// StationRemovalOp enumerates the station destroy operators.
type StationRemovalOp int

const (
	RandomStationRemoval StationRemovalOp = iota
	WorstDistanceStationRemoval
	WorstChargeUsageStationRemoval
	FullChargeStationRemoval
	WorstDegradationStationRemoval
	numStationRemovalOps
)

var stationRemovalNames = []string{
	RandomStationRemoval:           "random_station_removal",
	WorstDistanceStationRemoval:    "worst_distance_station_removal",
	WorstChargeUsageStationRemoval: "worst_charge_usage_station_removal",
	FullChargeStationRemoval:       "full_charge_station_removal",
	WorstDegradationStationRemoval: "worst_battery_degradation_station_removal",
}

func (op StationRemovalOp) String() string { return stationRemovalNames[op] }

// stationStep performs one improving station insertion on r and returns the new route.
type stationStep func(r *Route) (*Route, bool)

var stationSteps = []stationStep{
	GreedyStationInsertion:     greedyStationStep,
	ComparisonStationInsertion: comparisonStationStep,
	BestStationInsertion:       bestStationStep,
}

type stationCandidate struct {
	loc  int
	pos  int
	cost float64
}

// stationCandidates ranks every (station, position) pair by the distance it adds.
func stationCandidates(r *Route, positions ...int) []stationCandidate {
	in := r.inst
	var out []stationCandidate
	for _, pos := range positions {
		pred, succ := r.visits[pos-1].Loc, r.visits[pos].Loc
		base := in.Distance(pred, succ)
		for _, s := range in.Stations() {
			out = append(out, stationCandidate{
				loc:  s,
				pos:  pos,
				cost: in.Distance(pred, s) + in.Distance(s, succ) - base,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].cost < out[j].cost })
	return out
}

const chargeTolerance = 1e-9

// tryStation inserts c into a clone of r and keeps it when the clone stays on
// time, the station is reachable and the battery plan improved: the required
// charge dropped, or the first violation moved later, or it disappeared.
func tryStation(r *Route, c stationCandidate, required float64, violation int) (*Route, bool) {
	t := r.Clone()
	t.InsertAt(c.loc, c.pos)
	if !t.IsFeasible() || !t.visits[c.pos].BatteryFeasible() {
		return nil, false
	}
	req := t.RequiredCharge()
	if req > required+chargeTolerance {
		return nil, false
	}
	v := t.FirstBatteryViolation()
	if v < 0 || req < required-chargeTolerance || v > violation+t.Len()-r.Len() {
		return t, true
	}
	return nil, false
}

func tryCandidates(r *Route, cands []stationCandidate, required float64, violation int) (*Route, bool) {
	for _, c := range cands {
		if t, ok := tryStation(r, c, required, violation); ok {
			return t, true
		}
	}
	return nil, false
}

// scanBackward tries positions from, from-1, ... 1, ranking stations at each.
func scanBackward(r *Route, from int, required float64, violation int) (*Route, bool) {
	for pos := from; pos > 0; pos-- {
		if t, ok := tryCandidates(r, stationCandidates(r, pos), required, violation); ok {
			return t, true
		}
	}
	return nil, false
}

func greedyStationStep(r *Route) (*Route, bool) {
	v := r.FirstBatteryViolation()
	if v < 0 {
		return nil, false
	}
	return scanBackward(r, v, r.RequiredCharge(), v)
}

// comparisonStationStep ranks the slot before the violation together with the
// slot one earlier before falling back to the backward scan.
func comparisonStationStep(r *Route) (*Route, bool) {
	v := r.FirstBatteryViolation()
	if v < 0 {
		return nil, false
	}
	req := r.RequiredCharge()
	if v < 2 {
		return scanBackward(r, v, req, v)
	}
	if t, ok := tryCandidates(r, stationCandidates(r, v, v-1), req, v); ok {
		return t, true
	}
	return scanBackward(r, v-2, req, v)
}

// bestStationStep ranks all pairs between the previous station visit and the
// violation at once; positions before that window are scanned only if the window fails.
func bestStationStep(r *Route) (*Route, bool) {
	v := r.FirstBatteryViolation()
	if v < 0 {
		return nil, false
	}
	req := r.RequiredCharge()
	lo := r.lastStationBefore(v) + 1
	window := make([]int, 0, v-lo+1)
	for pos := lo; pos <= v; pos++ {
		window = append(window, pos)
	}
	if t, ok := tryCandidates(r, stationCandidates(r, window...), req, v); ok {
		return t, true
	}
	return scanBackward(r, lo-1, req, v)
}

// repairRoute applies step until r is battery feasible. It returns the last
// route reached and whether that route is battery feasible.
func repairRoute(r *Route, step stationStep) (*Route, bool) {
	guard := (r.Len() + 1) * (len(r.inst.Stations()) + 1)
	for i := 0; !r.IsBatteryFeasible(); i++ {
		if i >= guard {
			return r, false
		}
		next, ok := step(r)
		if !ok {
			return r, false
		}
		r = next
	}
	return r, true
}

// insertStations repairs every battery infeasible route of s with op.
// Routes that cannot be fully repaired keep their partial repair.
func insertStations(s *Solution, op StationInsertionOp) {
	for i, r := range s.routes {
		if r.IsBatteryFeasible() {
			continue
		}
		s.routes[i], _ = repairRoute(r, stationSteps[op])
	}
}

// stationCount draws n_s = floor(U(min(0.1m,30), min(0.4m,60))) for m station visits.
func stationCount(m int, rng *rand.Rand) int {
	lo := math.Min(0.1*float64(m), 30)
	hi := math.Min(0.4*float64(m), 60)
	return int(lo + rng.Float64()*(hi-lo))
}

type stationVisit struct {
	route int
	pos   int
	cost  float64
}

func stationVisits(s *Solution, cost func(r *Route, pos int) float64) []stationVisit {
	var out []stationVisit
	for ri, r := range s.routes {
		for _, pos := range r.StationPositions() {
			out = append(out, stationVisit{route: ri, pos: pos, cost: cost(r, pos)})
		}
	}
	return out
}

func sortByCostDesc(vs []stationVisit) {
	sort.SliceStable(vs, func(i, j int) bool { return vs[i].cost > vs[j].cost })
}

// removeStations destroys n station visits chosen by op and returns how many were removed.
func removeStations(s *Solution, op StationRemovalOp, n int, rng *rand.Rand) int {
	in := s.inst
	var chosen []stationVisit
	switch op {
	case RandomStationRemoval:
		all := stationVisits(s, func(*Route, int) float64 { return 0 })
		for len(chosen) < n && len(all) > 0 {
			i := rng.Intn(len(all))
			chosen = append(chosen, all[i])
			all = append(all[:i], all[i+1:]...)
		}
	case WorstDistanceStationRemoval:
		all := stationVisits(s, func(r *Route, pos int) float64 {
			return in.Distance(r.visits[pos-1].Loc, r.visits[pos].Loc) + in.Distance(r.visits[pos].Loc, r.visits[pos+1].Loc)
		})
		sortByCostDesc(all)
		for len(chosen) < n && len(all) > 0 {
			i := biasedIndex(len(all), worstDeterminism, rng)
			chosen = append(chosen, all[i])
			all = append(all[:i], all[i+1:]...)
		}
	default:
		var cost func(r *Route, pos int) float64
		switch op {
		case WorstChargeUsageStationRemoval:
			cost = func(r *Route, pos int) float64 { return r.visits[pos].BatteryOnArrival }
		case FullChargeStationRemoval:
			cost = func(r *Route, pos int) float64 { return r.visits[pos].BatteryOnDeparture() }
		default:
			cost = func(r *Route, pos int) float64 { return s.policy.VisitCost(r, pos) }
		}
		all := stationVisits(s, cost)
		sortByCostDesc(all)
		chosen = all[:min(n, len(all))]
	}

	// Station removals never cascade, so removing back to front keeps positions valid.
	sort.Slice(chosen, func(i, j int) bool {
		if chosen[i].route != chosen[j].route {
			return chosen[i].route < chosen[j].route
		}
		return chosen[i].pos > chosen[j].pos
	})
	for _, c := range chosen {
		s.routes[c.route].Remove(c.pos)
	}
	return len(chosen)
}
