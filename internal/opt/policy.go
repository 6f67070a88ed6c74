package opt

import (
	"fmt"
	"math"

	"evrptw/internal/apperr"
)

// PolicyKind names a battery feasibility policy.
type PolicyKind string

const (
	PolicyFree         PolicyKind = "free"
	PolicyFixedPartial PolicyKind = "fixed"
	PolicyDegradation  PolicyKind = "degradation"
)

// Policy decides how much a route charges at its stations, when its battery
// plan is acceptable and what it costs. One policy is chosen per solution.
type Policy interface {
	Kind() PolicyKind
	// ChargeTarget is the charge scheduled at a station inserted into r that is
	// reached with the given battery level. The route clamps it to the headroom.
	ChargeTarget(r *Route, battery float64) float64
	// AfterInsert runs after an insertion at pos has been propagated.
	AfterInsert(r *Route, pos int)
	RequiredCharge(r *Route) float64
	BatteryFeasible(r *Route) bool
	FirstBatteryViolation(r *Route) int
	// VisitCost is the policy's cost share of the visit at pos, excluding distance.
	VisitCost(r *Route, pos int) float64
	Cost(r *Route) float64
}

// batteryRule is shared by the policies that only ask for a non-negative battery.
type batteryRule struct{}

func (batteryRule) RequiredCharge(r *Route) float64 {
	in := r.inst
	return math.Max(0, r.distance*in.ConsumptionRate-in.BatteryCapacity-r.TotalCharge())
}

func (batteryRule) BatteryFeasible(r *Route) bool {
	for _, v := range r.visits {
		if !v.BatteryFeasible() {
			return false
		}
	}
	return true
}

func (batteryRule) FirstBatteryViolation(r *Route) int {
	for i, v := range r.visits {
		if !v.BatteryFeasible() {
			return i
		}
	}
	return -1
}

func (batteryRule) VisitCost(*Route, int) float64 { return 0 }

func (batteryRule) Cost(r *Route) float64 { return r.distance }

// FreeRecharge charges exactly what the route needs to reach the depot.
type FreeRecharge struct{ batteryRule }

func (FreeRecharge) Kind() PolicyKind { return PolicyFree }

func (p FreeRecharge) ChargeTarget(r *Route, _ float64) float64 {
	return p.RequiredCharge(r)
}

// AfterInsert tops up the nearest station before a newly inserted customer,
// or the first station of the route when none precedes it.
func (p FreeRecharge) AfterInsert(r *Route, pos int) {
	if !r.inst.IsCustomer(r.visits[pos].Loc) || p.BatteryFeasible(r) {
		return
	}
	stations := r.StationPositions()
	if len(stations) == 0 {
		return
	}
	at := stations[0]
	for _, s := range stations {
		if s >= pos {
			break
		}
		at = s
	}
	r.addCharge(at, p.RequiredCharge(r))
}

// FixedPartialRecharge charges a fixed fraction of the capacity at every station.
type FixedPartialRecharge struct {
	batteryRule
	Fraction float64
}

func (FixedPartialRecharge) Kind() PolicyKind { return PolicyFixedPartial }

func (p FixedPartialRecharge) ChargeTarget(r *Route, _ float64) float64 {
	return p.Fraction * r.inst.BatteryCapacity
}

// AfterInsert fills the battery completely at the last station before the first
// violation, provided the extra charging time keeps every later visit on time.
func (p FixedPartialRecharge) AfterInsert(r *Route, _ int) {
	v := p.FirstBatteryViolation(r)
	if v < 0 {
		return
	}
	at := r.lastStationBefore(v)
	if at == 0 {
		return
	}
	headroom := r.inst.BatteryCapacity - r.visits[at].BatteryOnArrival
	if headroom <= r.chargeWindow(at) {
		r.setChargeAt(at, headroom)
	}
}

// Degradation keeps the battery non-negative, requires the vehicle to come home
// with at least Lower of its capacity and prices state of charge outside
// [Lower, Upper] at every charging stop.
type Degradation struct {
	Lower      float64 // fraction of capacity
	Upper      float64 // fraction of capacity
	LowWeight  float64
	HighWeight float64
}

func (Degradation) Kind() PolicyKind { return PolicyDegradation }

func (p Degradation) lower(r *Route) float64 { return p.Lower * r.inst.BatteryCapacity }

func (p Degradation) upper(r *Route) float64 { return p.Upper * r.inst.BatteryCapacity }

func (p Degradation) ChargeTarget(r *Route, _ float64) float64 {
	return p.RequiredCharge(r)
}

func (p Degradation) RequiredCharge(r *Route) float64 {
	in := r.inst
	return math.Max(0, r.distance*in.ConsumptionRate-in.BatteryCapacity-r.TotalCharge()+p.lower(r))
}

// AfterInsert raises the charge at the last station before a new customer by as
// much as the time windows allow, capped at the required charge.
func (p Degradation) AfterInsert(r *Route, pos int) {
	if !r.inst.IsCustomer(r.visits[pos].Loc) || p.BatteryFeasible(r) {
		return
	}
	at := r.lastStationBefore(pos)
	if at == 0 {
		return
	}
	if q := math.Min(r.chargeWindow(at), p.RequiredCharge(r)); q > 0 {
		r.addCharge(at, q)
	}
}

func (p Degradation) BatteryFeasible(r *Route) bool {
	return p.FirstBatteryViolation(r) < 0
}

func (p Degradation) FirstBatteryViolation(r *Route) int {
	for i, v := range r.visits {
		if !v.BatteryFeasible() {
			return i
		}
	}
	last := len(r.visits) - 1
	if r.visits[last].BatteryOnArrival < p.lower(r)-batteryEpsilon {
		return last
	}
	return -1
}

func (p Degradation) VisitCost(r *Route, pos int) float64 {
	v := r.visits[pos]
	lo, hi := p.lower(r), p.upper(r)
	switch {
	case pos == 0:
		return p.HighWeight * math.Max(0, v.BatteryOnDeparture()-hi)
	case pos == len(r.visits)-1:
		return p.LowWeight * math.Max(0, lo-v.BatteryOnArrival)
	case v.Charge > 0:
		return p.LowWeight*math.Max(0, lo-v.BatteryOnArrival) + p.HighWeight*math.Max(0, v.BatteryOnDeparture()-hi)
	}
	return 0
}

func (p Degradation) Cost(r *Route) float64 {
	c := r.distance
	for i := range r.visits {
		c += p.VisitCost(r, i)
	}
	return c
}

// PolicyConfig selects and parameterizes a policy.
type PolicyConfig struct {
	Kind       PolicyKind `yaml:"kind" json:"kind"`
	Fraction   float64    `yaml:"fraction" json:"fraction,omitempty"`
	Lower      float64    `yaml:"lower" json:"lower,omitempty"`
	Upper      float64    `yaml:"upper" json:"upper,omitempty"`
	LowWeight  float64    `yaml:"low_weight" json:"lowWeight,omitempty"`
	HighWeight float64    `yaml:"high_weight" json:"highWeight,omitempty"`
}

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		Kind:       PolicyFree,
		Fraction:   0.4,
		Lower:      0.25,
		Upper:      0.85,
		LowWeight:  0.5,
		HighWeight: 1,
	}
}

// Build validates the parameters of the selected kind and returns the policy.
func (c PolicyConfig) Build() (Policy, error) {
	switch c.Kind {
	case PolicyFree, "":
		return FreeRecharge{}, nil
	case PolicyFixedPartial:
		if !(c.Fraction > 0 && c.Fraction <= 1) {
			return nil, apperr.InvalidConfig("policy.fraction", fmt.Sprintf("must be in (0,1], got %v", c.Fraction))
		}
		return FixedPartialRecharge{Fraction: c.Fraction}, nil
	case PolicyDegradation:
		if !(c.Lower >= 0 && c.Lower < c.Upper && c.Upper <= 1) {
			return nil, apperr.InvalidConfig("policy.lower", fmt.Sprintf("need 0 <= lower < upper <= 1, got [%v,%v]", c.Lower, c.Upper))
		}
		if c.LowWeight < 0 || c.HighWeight < 0 {
			return nil, apperr.InvalidConfig("policy.low_weight", "degradation weights must not be negative")
		}
		return Degradation{Lower: c.Lower, Upper: c.Upper, LowWeight: c.LowWeight, HighWeight: c.HighWeight}, nil
	}
	return nil, apperr.InvalidConfig("policy.kind", fmt.Sprintf("unknown policy %q", c.Kind))
}

var (
	_ Policy = FreeRecharge{}
	_ Policy = FixedPartialRecharge{}
	_ Policy = Degradation{}
)
