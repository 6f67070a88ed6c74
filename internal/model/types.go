package model

import (
	"time"

	"evrptw/internal/instance"
)

// InstanceSpec is the wire and file form of a problem instance.
type InstanceSpec struct {
	Name      string              `json:"name" yaml:"name"`
	Vehicle   instance.Vehicle    `json:"vehicle" yaml:"vehicle"`
	Locations []instance.Location `json:"locations" yaml:"locations"`
}

// Build validates the locations and vehicle and precomputes the distance matrix.
func (s InstanceSpec) Build() (*instance.Instance, error) {
	return instance.New(s.Name, s.Locations, s.Vehicle)
}

type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCanceled  RunStatus = "canceled"
)

// Done reports whether the status is terminal.
func (s RunStatus) Done() bool {
	return s == RunSucceeded || s == RunFailed || s == RunCanceled
}

// Run is one search job as tracked by the service.
type Run struct {
	ID         string     `json:"id"`
	Instance   string     `json:"instance"`
	Seed       int64      `json:"seed"`
	Status     RunStatus  `json:"status"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Report     *RunReport `json:"report,omitempty"`
}

// RunReport is the exported result of a finished search.
type RunReport struct {
	Instance        string        `json:"instance" yaml:"instance"`
	Policy          string        `json:"policy" yaml:"policy"`
	Seed            int64         `json:"seed" yaml:"seed"`
	TotalDistance   float64       `json:"totalDistance" yaml:"total_distance"`
	TotalCost       float64       `json:"totalCost" yaml:"total_cost"`
	Feasible        bool          `json:"feasible" yaml:"feasible"`
	BatteryFeasible bool          `json:"batteryFeasible" yaml:"battery_feasible"`
	Iterations      int           `json:"iterations" yaml:"iterations"`
	StopReason      string        `json:"stopReason" yaml:"stop_reason"`
	ElapsedMs       int64         `json:"elapsedMs" yaml:"elapsed_ms"`
	Routes          []RouteReport `json:"routes" yaml:"routes"`
}

type RouteReport struct {
	Distance float64       `json:"distance" yaml:"distance"`
	Cost     float64       `json:"cost" yaml:"cost"`
	Charged  float64       `json:"charged" yaml:"charged"`
	Visits   []VisitReport `json:"visits" yaml:"visits"`
}

type VisitReport struct {
	Loc              int           `json:"loc" yaml:"loc"`
	Kind             instance.Kind `json:"kind" yaml:"kind"`
	Arrival          float64       `json:"arrival" yaml:"arrival"`
	Departure        float64       `json:"departure" yaml:"departure"`
	BatteryOnArrival float64       `json:"batteryOnArrival" yaml:"battery_on_arrival"`
	Charge           float64       `json:"charge" yaml:"charge"`
	Load             float64       `json:"load" yaml:"load"`
}

// WeightSnapshot is a persisted sample of the operator weights.
type WeightSnapshot struct {
	RunID     string               `json:"runId"`
	Iteration int                  `json:"iteration"`
	Weights   map[string][]float64 `json:"weights"`
}

// RunEvent is pushed to streaming clients and webhook subscribers.
type RunEvent struct {
	Type  string    `json:"type"`
	RunID string    `json:"runId"`
	TS    time.Time `json:"ts"`
	Data  any       `json:"data,omitempty"`
}

const (
	EventRunStarted   = "run.started"
	EventRunProgress  = "run.progress"
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
)

type SubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

type Subscription struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}
