package opt

import (
	"math"

	"evrptw/internal/instance"
)

// batteryEpsilon absorbs rounding when a vehicle arrives with an exactly empty battery.
const batteryEpsilon = 1e-9

// Visit is one stop of a route. Only these five fields are stored; everything
// else is derived from them and the instance.
type Visit struct {
	Loc              int
	Arrival          float64
	BatteryOnArrival float64
	LoadOnDeparture  float64
	Charge           float64
}

// update overwrites the arrival state from a new predecessor and re-clamps the
// charge to the headroom left at the new arrival battery level.
func (v *Visit) update(arrival, loadDelta, battery, capacity float64) {
	v.Arrival = arrival
	v.LoadOnDeparture += loadDelta
	v.BatteryOnArrival = battery
	v.setCharge(v.Charge, capacity)
}

func (v *Visit) setCharge(q, capacity float64) {
	v.Charge = math.Max(0, math.Min(q, capacity-v.BatteryOnArrival))
}

func (v Visit) Departure(in *instance.Instance) float64 {
	l := in.Locations[v.Loc]
	return math.Max(v.Arrival, l.ReadyTime) + l.ServiceTime + in.RechargeRate*v.Charge
}

func (v Visit) BatteryOnDeparture() float64 {
	return v.BatteryOnArrival + v.Charge
}

// TimeFeasible covers the due time and the load; the battery is checked separately.
func (v Visit) TimeFeasible(in *instance.Instance) bool {
	return v.Arrival <= in.Locations[v.Loc].DueTime && v.LoadOnDeparture >= 0
}

func (v Visit) BatteryFeasible() bool {
	return v.BatteryOnArrival >= -batteryEpsilon
}
