package opt

import (
	"math"
	"slices"

	"evrptw/internal/apperr"
	"evrptw/internal/instance"
)

// Construct builds the initial solution route by route. Each route is seeded
// with the pending customer closest to the depot and grown by the cheapest
// time feasible insertion until none is left; a battery violation is repaired
// with greedy station insertion, and a failed repair closes the route.
func Construct(in *instance.Instance, p Policy) (*Solution, error) {
	s := NewSolution(in, p)
	pending := slices.Clone(in.Customers())
	seed := -1

	for len(pending) > 0 {
		if seed < 0 {
			seed = in.Closest(0, pending)
		}
		r, ok := openRoute(s, seed)
		if !ok {
			return nil, apperr.ExhaustedRepair(seed).WithDetails(r.Dump())
		}
		pending = deleteLoc(pending, seed)
		seed = -1

		for len(pending) > 0 {
			next, loc := cheapestExtension(r, pending)
			if next == nil {
				break
			}
			if !next.IsBatteryFeasible() {
				if next, ok = repairRoute(next, greedyStationStep); !ok {
					seed = loc
					break
				}
			}
			r = next
			pending = deleteLoc(pending, loc)
		}
		s.AddRoute(r)
	}
	return s, nil
}

// cheapestExtension tries every pending customer at every gap of r and returns
// the time feasible clone with the shortest distance, or nil.
func cheapestExtension(r *Route, pending []int) (*Route, int) {
	var best *Route
	bestLoc, bestDist := -1, math.Inf(1)
	for _, loc := range pending {
		for pos := 1; pos < r.Len(); pos++ {
			t := r.Clone()
			t.InsertAt(loc, pos)
			if !t.IsFeasible() {
				continue
			}
			if t.distance < bestDist {
				best, bestLoc, bestDist = t, loc, t.distance
			}
		}
	}
	return best, bestLoc
}

func deleteLoc(locs []int, loc int) []int {
	return slices.DeleteFunc(locs, func(l int) bool { return l == loc })
}
