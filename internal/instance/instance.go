// Package instance holds the read-only problem data of an EVRPTW instance:
// locations with time windows, the vehicle and the pairwise distance matrix.
package instance

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"evrptw/internal/apperr"
)

// Kind is the role of a location.
type Kind int

const (
	Depot Kind = iota
	Station
	Customer
)

var kindNames = [...]string{Depot: "d", Station: "f", Customer: "c"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind accepts the one letter codes used by the benchmark sheets
// (d, f, c) as well as the spelled out names.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "d", "depot":
		return Depot, nil
	case "f", "s", "station":
		return Station, nil
	case "c", "customer":
		return Customer, nil
	}
	return 0, fmt.Errorf("unknown location type %q", s)
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

type Location struct {
	Kind        Kind    `json:"kind" yaml:"kind"`
	X           float64 `json:"x" yaml:"x"`
	Y           float64 `json:"y" yaml:"y"`
	Demand      float64 `json:"demand" yaml:"demand"`
	ReadyTime   float64 `json:"readyTime" yaml:"ready_time"`
	DueTime     float64 `json:"dueTime" yaml:"due_time"`
	ServiceTime float64 `json:"serviceTime" yaml:"service_time"`
}

// Vehicle describes the homogeneous fleet.
type Vehicle struct {
	BatteryCapacity float64 `json:"batteryCapacity" yaml:"battery_capacity"`
	LoadCapacity    float64 `json:"loadCapacity" yaml:"load_capacity"`
	ConsumptionRate float64 `json:"consumptionRate" yaml:"consumption_rate"` // energy per distance unit
	RechargeRate    float64 `json:"rechargeRate" yaml:"recharge_rate"`       // time per energy unit
	Velocity        float64 `json:"velocity" yaml:"velocity"`
}

// Instance is immutable after New and safe to share between goroutines.
type Instance struct {
	Name      string
	Locations []Location
	Vehicle

	dist      *mat.SymDense
	customers []int
	stations  []int
}

// New validates the locations and the vehicle and precomputes Euclidean distances.
// Location 0 must be the depot.
func New(name string, locs []Location, v Vehicle) (*Instance, error) {
	var ve apperr.ValidationErrors
	ve.Code = apperr.CodeInvalidInstance

	if len(locs) == 0 {
		ve.Add("locations", "instance has no locations")
		return nil, ve.ToAppError()
	}
	if locs[0].Kind != Depot {
		ve.Add("locations[0].kind", "first location must be the depot")
	}
	for _, f := range []struct {
		name string
		val  float64
	}{
		{"vehicle.battery_capacity", v.BatteryCapacity},
		{"vehicle.load_capacity", v.LoadCapacity},
		{"vehicle.velocity", v.Velocity},
	} {
		if !(f.val > 0) {
			ve.Addf(f.name, "must be positive, got %v", f.val)
		}
	}
	if v.ConsumptionRate < 0 || math.IsNaN(v.ConsumptionRate) {
		ve.Addf("vehicle.consumption_rate", "must not be negative, got %v", v.ConsumptionRate)
	}
	if v.RechargeRate < 0 || math.IsNaN(v.RechargeRate) {
		ve.Addf("vehicle.recharge_rate", "must not be negative, got %v", v.RechargeRate)
	}

	in := &Instance{Name: name, Locations: append([]Location(nil), locs...), Vehicle: v}
	for i, l := range locs {
		field := fmt.Sprintf("locations[%d]", i)
		switch l.Kind {
		case Depot:
			if i != 0 {
				ve.Add(field+".kind", "only location 0 may be a depot")
			}
		case Station:
			in.stations = append(in.stations, i)
			if l.Demand != 0 {
				ve.Add(field+".demand", "stations carry no demand")
			}
		case Customer:
			in.customers = append(in.customers, i)
			if l.Demand < 0 {
				ve.Addf(field+".demand", "must not be negative, got %v", l.Demand)
			}
			if l.Demand > v.LoadCapacity {
				ve.Addf(field+".demand", "%v exceeds the load capacity %v", l.Demand, v.LoadCapacity)
			}
		default:
			ve.Addf(field+".kind", "unknown kind %d", int(l.Kind))
		}
		if l.DueTime < l.ReadyTime {
			ve.Addf(field+".due_time", "due time %v precedes ready time %v", l.DueTime, l.ReadyTime)
		}
		if l.ServiceTime < 0 {
			ve.Addf(field+".service_time", "must not be negative, got %v", l.ServiceTime)
		}
	}
	if len(in.customers) == 0 {
		ve.Add("locations", "instance has no customers")
	}
	if ve.HasErrors() {
		return nil, ve.ToAppError()
	}

	n := len(locs)
	in.dist = mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			in.dist.SetSym(i, j, math.Hypot(locs[i].X-locs[j].X, locs[i].Y-locs[j].Y))
		}
	}
	return in, nil
}

// Len is the number of locations including the depot.
func (in *Instance) Len() int { return len(in.Locations) }

func (in *Instance) Kind(loc int) Kind { return in.Locations[loc].Kind }

func (in *Instance) IsStation(loc int) bool { return in.Locations[loc].Kind == Station }

func (in *Instance) IsCustomer(loc int) bool { return in.Locations[loc].Kind == Customer }

// Customers returns the customer location ids in ascending order. The slice must not be modified.
func (in *Instance) Customers() []int { return in.customers }

// Stations returns the station location ids in ascending order. The slice must not be modified.
func (in *Instance) Stations() []int { return in.stations }

func (in *Instance) Distance(from, to int) float64 { return in.dist.At(from, to) }

func (in *Instance) TravelTime(from, to int) float64 {
	return in.dist.At(from, to) / in.Velocity
}

// Energy is the battery consumed on the edge from -> to.
func (in *Instance) Energy(from, to int) float64 {
	return in.dist.At(from, to) * in.ConsumptionRate
}

// Closest returns the candidate nearest to from, the lowest id on ties, or -1 when candidates is empty.
func (in *Instance) Closest(from int, candidates []int) int {
	best, bestDist := -1, math.Inf(1)
	for _, c := range candidates {
		d := in.dist.At(from, c)
		if d < bestDist || (d == bestDist && c < best) {
			best, bestDist = c, d
		}
	}
	return best
}

// Bounds is the bounding box over all location coordinates.
func (in *Instance) Bounds() (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, l := range in.Locations {
		minX, maxX = math.Min(minX, l.X), math.Max(maxX, l.X)
		minY, maxY = math.Min(minY, l.Y), math.Max(maxY, l.Y)
	}
	return minX, minY, maxX, maxY
}
