package opt

import (
	"fmt"
	"slices"
	"strings"

	"evrptw/internal/apperr"
	"evrptw/internal/instance"
)

// Solution owns its routes. All routes share the solution's instance and policy.
type Solution struct {
	inst   *instance.Instance
	policy Policy
	routes []*Route
}

func NewSolution(in *instance.Instance, p Policy) *Solution {
	return &Solution{inst: in, policy: p}
}

func (s *Solution) Instance() *instance.Instance { return s.inst }

func (s *Solution) Policy() Policy { return s.policy }

// Routes returns the live routes; callers must not keep them across a Clone.
func (s *Solution) Routes() []*Route { return s.routes }

func (s *Solution) NewRoute() *Route { return NewRoute(s.inst, s.policy) }

func (s *Solution) AddRoute(r *Route) { s.routes = append(s.routes, r) }

func (s *Solution) Clone() *Solution {
	c := &Solution{inst: s.inst, policy: s.policy, routes: make([]*Route, len(s.routes))}
	for i, r := range s.routes {
		c.routes[i] = r.Clone()
	}
	return c
}

func (s *Solution) IsFeasible() bool {
	for _, r := range s.routes {
		if !r.IsFeasible() {
			return false
		}
	}
	return true
}

func (s *Solution) IsBatteryFeasible() bool {
	for _, r := range s.routes {
		if !r.IsBatteryFeasible() {
			return false
		}
	}
	return true
}

func (s *Solution) TotalDistance() float64 {
	d := 0.0
	for _, r := range s.routes {
		d += r.distance
	}
	return d
}

func (s *Solution) TotalCost() float64 {
	c := 0.0
	for _, r := range s.routes {
		c += r.Cost()
	}
	return c
}

// RemoveEmptyRoutes drops routes that serve no customer.
func (s *Solution) RemoveEmptyRoutes() {
	s.routes = slices.DeleteFunc(s.routes, func(r *Route) bool { return r.CustomerCount() == 0 })
}

func (s *Solution) CustomerCount() int {
	n := 0
	for _, r := range s.routes {
		n += r.CustomerCount()
	}
	return n
}

func (s *Solution) StationVisitCount() int {
	n := 0
	for _, r := range s.routes {
		n += len(r.StationPositions())
	}
	return n
}

// locate finds the route and position serving a customer, or (-1, -1).
func (s *Solution) locate(customer int) (int, int) {
	for ri, r := range s.routes {
		if pos := r.positionOf(customer); pos > 0 {
			return ri, pos
		}
	}
	return -1, -1
}

// removeCustomer takes a customer out of whichever route serves it.
func (s *Solution) removeCustomer(customer int) bool {
	ri, pos := s.locate(customer)
	if ri < 0 {
		return false
	}
	s.routes[ri].Remove(pos)
	return true
}

// Verify audits a solution the search is about to accept: every customer is
// served exactly once and no visit breaks a time, load or battery rule.
func (s *Solution) Verify() error {
	seen := make(map[int]int, len(s.inst.Customers()))
	var problems []string
	for ri, r := range s.routes {
		if n := len(r.visits); n < 2 || r.visits[0].Loc != 0 || r.visits[n-1].Loc != 0 {
			problems = append(problems, fmt.Sprintf("route %d does not start and end at the depot", ri))
		}
		for i, v := range r.visits {
			if s.inst.IsCustomer(v.Loc) {
				seen[v.Loc]++
			}
			if !v.TimeFeasible(s.inst) {
				problems = append(problems, fmt.Sprintf("route %d position %d: time or load violated", ri, i))
			}
		}
		if !r.IsBatteryFeasible() {
			problems = append(problems, fmt.Sprintf("route %d: battery violated at position %d", ri, r.FirstBatteryViolation()))
		}
	}
	for _, c := range s.inst.Customers() {
		switch seen[c] {
		case 1:
		case 0:
			problems = append(problems, fmt.Sprintf("customer %d unserved", c))
		default:
			problems = append(problems, fmt.Sprintf("customer %d served %d times", c, seen[c]))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return apperr.Invariant(strings.Join(problems, "; ")).WithDetails(s.Dump())
}

// Dump renders every route for diagnostics.
func (s *Solution) Dump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "routes=%d distance=%.4f cost=%.4f\n", len(s.routes), s.TotalDistance(), s.TotalCost())
	for i, r := range s.routes {
		fmt.Fprintf(&b, "route %d: %s", i, r.Dump())
	}
	return b.String()
}
