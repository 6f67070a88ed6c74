package opt

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"evrptw/internal/apperr"
	"evrptw/internal/instance"
)

// Config holds the search constants. Zero values are not defaults; start from
// DefaultConfig and override.
type Config struct {
	Iterations       int     `yaml:"iterations" json:"iterations"`
	PartialRun       bool    `yaml:"partial_run" json:"partialRun"`
	TimeLimitSeconds float64 `yaml:"time_limit_seconds" json:"timeLimitSeconds"`

	Sigma1             float64 `yaml:"sigma1" json:"sigma1"`
	Sigma2             float64 `yaml:"sigma2" json:"sigma2"`
	Sigma3             float64 `yaml:"sigma3" json:"sigma3"`
	CoolingRate        float64 `yaml:"cooling_rate" json:"coolingRate"`
	TemperatureControl float64 `yaml:"temperature_control" json:"temperatureControl"`
	Reaction           float64 `yaml:"reaction" json:"reaction"`

	StationCadence       int `yaml:"station_cadence" json:"stationCadence"`
	RouteCadence         int `yaml:"route_cadence" json:"routeCadence"`
	RouteBurst           int `yaml:"route_burst" json:"routeBurst"`
	CustomerWeightPeriod int `yaml:"customer_weight_period" json:"customerWeightPeriod"`
	StationWeightPeriod  int `yaml:"station_weight_period" json:"stationWeightPeriod"`
	SnapshotEvery        int `yaml:"snapshot_every" json:"snapshotEvery"`

	Policy PolicyConfig `yaml:"policy" json:"policy"`
}

const partialRunIterations = 2500

func DefaultConfig() Config {
	return Config{
		Iterations:           25000,
		Sigma1:               25,
		Sigma2:               20,
		Sigma3:               21,
		CoolingRate:          0.9994,
		TemperatureControl:   0.4,
		Reaction:             0.25,
		StationCadence:       60,
		RouteCadence:         2000,
		RouteBurst:           1250,
		CustomerWeightPeriod: 200,
		StationWeightPeriod:  5500,
		SnapshotEvery:        50,
		Policy:               DefaultPolicyConfig(),
	}
}

// MaxIterations is the iteration budget after the partial run switch.
func (c Config) MaxIterations() int {
	if c.PartialRun {
		return partialRunIterations
	}
	return c.Iterations
}

func (c Config) Validate() error {
	switch {
	case c.Iterations <= 0 && !c.PartialRun:
		return apperr.InvalidConfig("iterations", "must be positive")
	case c.TimeLimitSeconds < 0:
		return apperr.InvalidConfig("time_limit_seconds", "must not be negative")
	case c.CoolingRate <= 0 || c.CoolingRate > 1:
		return apperr.InvalidConfig("cooling_rate", "must be in (0, 1]")
	case c.TemperatureControl <= 0:
		return apperr.InvalidConfig("temperature_control", "must be positive")
	case c.Reaction < 0 || c.Reaction > 1:
		return apperr.InvalidConfig("reaction", "must be in [0, 1]")
	case c.Sigma1 < 0 || c.Sigma2 < 0 || c.Sigma3 < 0:
		return apperr.InvalidConfig("sigma", "scores must not be negative")
	case c.StationCadence <= 0 || c.RouteCadence <= 0 || c.RouteBurst <= 0:
		return apperr.InvalidConfig("cadence", "station and route cadences must be positive")
	case c.CustomerWeightPeriod <= 0 || c.StationWeightPeriod <= 0:
		return apperr.InvalidConfig("weight_period", "must be positive")
	case c.SnapshotEvery < 0:
		return apperr.InvalidConfig("snapshot_every", "must not be negative")
	}
	_, err := c.Policy.Build()
	return err
}

// Outcome classifies one search iteration.
type Outcome string

const (
	OutcomeBest       Outcome = "best"
	OutcomeBetter     Outcome = "better"
	OutcomeAccepted   Outcome = "accepted"
	OutcomeRejected   Outcome = "rejected"
	OutcomeInfeasible Outcome = "infeasible"
)

// Progress is reported to the observer after every iteration.
type Progress struct {
	Iteration   int      `json:"iteration"`
	Operators   []string `json:"operators"`
	Outcome     Outcome  `json:"outcome"`
	Cost        float64  `json:"cost"`
	CurrentCost float64  `json:"currentCost"`
	BestCost    float64  `json:"bestCost"`
	Routes      int      `json:"routes"`
	Temperature float64  `json:"temperature"`
}

type Option func(*options)

type options struct {
	log      zerolog.Logger
	observer func(Progress)
}

// WithLogger routes search logs to l. Runs are silent by default.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithObserver registers fn to be called synchronously after each iteration.
func WithObserver(fn func(Progress)) Option {
	return func(o *options) { o.observer = fn }
}

// StopReason tells why a run ended.
type StopReason string

const (
	StopIterations StopReason = "iterations"
	StopDeadline   StopReason = "deadline"
	StopCanceled   StopReason = "canceled"
)

type Result struct {
	Best       *Solution
	Metrics    Metrics
	Seed       int64
	Elapsed    time.Duration
	StopReason StopReason
}

// Run builds the initial solution for in and improves it with the adaptive
// search. It stops on the iteration budget, the time limit or ctx; on
// cancellation the best solution found so far is returned together with ctx.Err().
func Run(ctx context.Context, in *instance.Instance, cfg Config, seed int64, opts ...Option) (*Result, error) {
	if in == nil {
		return nil, apperr.InvalidInstance("instance", "is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	policy, err := cfg.Policy.Build()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	initial, err := Construct(in, policy)
	if err != nil {
		return nil, err
	}
	if err := initial.Verify(); err != nil {
		return nil, err
	}

	e := newEngine(cfg, seed, initial, o)
	o.log.Info().
		Str("instance", in.Name).
		Int64("seed", seed).
		Str("policy", string(policy.Kind())).
		Int("routes", len(initial.routes)).
		Float64("initial_cost", e.bestCost).
		Float64("temperature", e.temperature).
		Msg("search started")

	var deadline time.Time
	if cfg.TimeLimitSeconds > 0 {
		deadline = start.Add(time.Duration(cfg.TimeLimitSeconds * float64(time.Second)))
	}

	res := &Result{Seed: seed, StopReason: StopIterations}
	var runErr error
	for j := 1; j <= cfg.MaxIterations(); j++ {
		if err := ctx.Err(); err != nil {
			res.StopReason, runErr = StopCanceled, err
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			res.StopReason = StopDeadline
			break
		}
		if err := e.iterate(j); err != nil {
			o.log.Error().Err(err).Int("iteration", j).Msg("search aborted")
			return nil, err
		}
	}

	res.Best = e.best
	res.Metrics = e.finish()
	res.Elapsed = time.Since(start)
	o.log.Info().
		Int("iterations", res.Metrics.Iterations).
		Int("improvements", res.Metrics.Improvements).
		Float64("best_cost", res.Metrics.BestCost).
		Int("routes", len(e.best.routes)).
		Dur("elapsed", res.Elapsed).
		Str("stop", string(res.StopReason)).
		Msg("search finished")
	return res, runErr
}
