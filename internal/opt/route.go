package opt

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"evrptw/internal/instance"
)

// Route is an ordered sequence of visits that starts and ends at the depot.
// Every mutation propagates arrival, battery and load through the suffix before
// it returns, so the visits are always consistent with their predecessors.
type Route struct {
	inst     *instance.Instance
	policy   Policy
	visits   []Visit
	distance float64
}

// NewRoute returns the empty route depot -> depot with a full battery and a full load.
func NewRoute(in *instance.Instance, p Policy) *Route {
	depot := Visit{
		Loc:              0,
		BatteryOnArrival: in.BatteryCapacity,
		LoadOnDeparture:  in.LoadCapacity - in.Locations[0].Demand,
	}
	r := &Route{inst: in, policy: p, visits: []Visit{depot, depot}}
	r.propagate(1, 0)
	return r
}

// Clone copies the visit slice; the instance and the policy are shared.
func (r *Route) Clone() *Route {
	c := *r
	c.visits = slices.Clone(r.visits)
	return &c
}

func (r *Route) Len() int { return len(r.visits) }

func (r *Route) Visit(pos int) Visit { return r.visits[pos] }

// Visits returns a copy of the visit sequence.
func (r *Route) Visits() []Visit { return slices.Clone(r.visits) }

func (r *Route) Distance() float64 { return r.distance }

func (r *Route) Cost() float64 { return r.policy.Cost(r) }

func (r *Route) Departure(pos int) float64 { return r.visits[pos].Departure(r.inst) }

// Customers lists the customer location ids in visiting order.
func (r *Route) Customers() []int {
	var out []int
	for _, v := range r.visits {
		if r.inst.IsCustomer(v.Loc) {
			out = append(out, v.Loc)
		}
	}
	return out
}

func (r *Route) CustomerCount() int {
	n := 0
	for _, v := range r.visits {
		if r.inst.IsCustomer(v.Loc) {
			n++
		}
	}
	return n
}

// StationPositions returns the positions of all station visits in ascending order.
func (r *Route) StationPositions() []int {
	var out []int
	for i, v := range r.visits {
		if r.inst.IsStation(v.Loc) {
			out = append(out, i)
		}
	}
	return out
}

func (r *Route) positionOf(loc int) int {
	for i, v := range r.visits {
		if v.Loc == loc {
			return i
		}
	}
	return -1
}

func (r *Route) TotalCharge() float64 {
	q := 0.0
	for _, v := range r.visits {
		q += v.Charge
	}
	return q
}

// IsFeasible reports whether every visit meets its due time and the load never goes negative.
func (r *Route) IsFeasible() bool {
	for _, v := range r.visits {
		if !v.TimeFeasible(r.inst) {
			return false
		}
	}
	return true
}

func (r *Route) IsBatteryFeasible() bool { return r.policy.BatteryFeasible(r) }

// FirstBatteryViolation returns the first position failing the battery rule, or -1.
func (r *Route) FirstBatteryViolation() int { return r.policy.FirstBatteryViolation(r) }

// RequiredCharge is the energy the route still has to schedule to get home.
func (r *Route) RequiredCharge() float64 { return r.policy.RequiredCharge(r) }

// InsertAt inserts loc between the visits at pos-1 and pos, 0 < pos < Len().
// A station equal to one of its neighbours is merged into that visit.
func (r *Route) InsertAt(loc, pos int) {
	in := r.inst
	pred, succ := r.visits[pos-1], r.visits[pos]

	toLoc := in.Distance(pred.Loc, loc)
	r.distance += toLoc + in.Distance(loc, succ.Loc) - in.Distance(pred.Loc, succ.Loc)
	loadDelta := -in.Locations[loc].Demand

	v := Visit{
		Loc:              loc,
		Arrival:          pred.Departure(in) + toLoc/in.Velocity,
		BatteryOnArrival: pred.BatteryOnDeparture() - in.ConsumptionRate*toLoc,
		LoadOnDeparture:  pred.LoadOnDeparture + loadDelta,
	}
	charge := 0.0
	if in.IsStation(loc) {
		charge = r.policy.ChargeTarget(r, v.BatteryOnArrival)
	}

	// at is the position of the inserted or merged visit
	at, from := pos, pos+1
	switch {
	case loc == pred.Loc:
		at, from = pos-1, pos
		r.visits[at].setCharge(r.visits[at].Charge+charge, in.BatteryCapacity)
	case loc == succ.Loc:
		from = pos
		r.visits[at].setCharge(r.visits[at].Charge+charge, in.BatteryCapacity)
	default:
		v.setCharge(charge, in.BatteryCapacity)
		r.visits = slices.Insert(r.visits, pos, v)
	}
	r.propagate(from, loadDelta)
	r.policy.AfterInsert(r, at)
}

// Remove deletes the visit at pos, 0 < pos < Len()-1. Removing a customer also
// drops an adjacent station visit when the route stays battery feasible without it,
// the succeeding station first.
func (r *Route) Remove(pos int) {
	in := r.inst
	pred, v, succ := r.visits[pos-1], r.visits[pos], r.visits[pos+1]

	r.distance += in.Distance(pred.Loc, succ.Loc) - in.Distance(pred.Loc, v.Loc) - in.Distance(v.Loc, succ.Loc)
	r.visits = slices.Delete(r.visits, pos, pos+1)
	r.propagate(pos, in.Locations[v.Loc].Demand)

	if in.IsCustomer(v.Loc) {
		r.pruneStation(pos)
		r.pruneStation(pos - 1)
	}
}

func (r *Route) pruneStation(pos int) {
	if pos <= 0 || pos >= len(r.visits)-1 || !r.inst.IsStation(r.visits[pos].Loc) {
		return
	}
	trial := r.Clone()
	trial.Remove(pos)
	if trial.IsBatteryFeasible() {
		*r = *trial
	}
}

// propagate refreshes every visit from pos onward from its predecessor.
func (r *Route) propagate(pos int, loadDelta float64) {
	in := r.inst
	for i := pos; i < len(r.visits); i++ {
		prev := &r.visits[i-1]
		d := in.Distance(prev.Loc, r.visits[i].Loc)
		r.visits[i].update(
			prev.Departure(in)+d/in.Velocity,
			loadDelta,
			prev.BatteryOnDeparture()-in.ConsumptionRate*d,
			in.BatteryCapacity,
		)
	}
}

// addCharge schedules q more energy at the visit at pos and re-propagates the suffix.
func (r *Route) addCharge(pos int, q float64) {
	r.setChargeAt(pos, r.visits[pos].Charge+q)
}

func (r *Route) setChargeAt(pos int, q float64) {
	r.visits[pos].setCharge(q, r.inst.BatteryCapacity)
	r.propagate(pos+1, 0)
}

// lastStationBefore returns the position of the nearest station visit before pos, or 0.
func (r *Route) lastStationBefore(pos int) int {
	for i := min(pos, len(r.visits)) - 1; i > 0; i-- {
		if r.inst.IsStation(r.visits[i].Loc) {
			return i
		}
	}
	return 0
}

// chargeWindow is the largest extra charge at pos that keeps every later visit
// (pos included) within its due time: the tightest slack converted to energy.
func (r *Route) chargeWindow(pos int) float64 {
	slack := math.Inf(1)
	for _, v := range r.visits[pos:] {
		slack = math.Min(slack, math.Max(0, r.inst.Locations[v.Loc].DueTime-v.Arrival))
	}
	if r.inst.RechargeRate == 0 {
		return math.Inf(1)
	}
	return slack / r.inst.RechargeRate
}

// Dump renders the route for diagnostics.
func (r *Route) Dump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "distance=%.4f cost=%.4f feasible=%t battery_feasible=%t charged=%.4f\n",
		r.distance, r.Cost(), r.IsFeasible(), r.IsBatteryFeasible(), r.TotalCharge())
	for i, v := range r.visits {
		l := r.inst.Locations[v.Loc]
		fmt.Fprintf(&b, "  %2d loc=%d kind=%s tw=[%.2f,%.2f] arrive=%.4f depart=%.4f load=%.4f battery=%.4f+%.4f\n",
			i, v.Loc, l.Kind, l.ReadyTime, l.DueTime, v.Arrival, v.Departure(r.inst), v.LoadOnDeparture, v.BatteryOnArrival, v.Charge)
	}
	return b.String()
}
