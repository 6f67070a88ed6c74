package opt

import (
	"math"
	"math/rand"

	"github.com/rs/zerolog"
)

// Metrics summarizes a run: outcome counters, costs, operator usage and the
// weight trajectory sampled every SnapshotEvery iterations.
type Metrics struct {
	Iterations    int     `json:"iterations"`
	Improvements  int     `json:"improvements"`
	Accepted      int     `json:"accepted"`
	AcceptedWorse int     `json:"acceptedWorse"`
	Rejected      int     `json:"rejected"`
	Infeasible    int     `json:"infeasible"`
	InitialCost   float64 `json:"initialCost"`
	BestCost      float64 `json:"bestCost"`
	FinalCost     float64 `json:"finalCost"`
	BestRoutes    int     `json:"bestRoutes"`
	Temperature   float64 `json:"temperature"`

	Selects map[string]int `json:"selects"`

	Removal          []Operator `json:"removal"`
	Insertion        []Operator `json:"insertion"`
	StationRemoval   []Operator `json:"stationRemoval"`
	StationInsertion []Operator `json:"stationInsertion"`

	Snapshots []WeightSnapshot `json:"snapshots,omitempty"`
}

type WeightSnapshot struct {
	Iteration        int       `json:"iteration"`
	Removal          []float64 `json:"removal"`
	Insertion        []float64 `json:"insertion"`
	StationRemoval   []float64 `json:"stationRemoval"`
	StationInsertion []float64 `json:"stationInsertion"`
}

type usage struct {
	catalog *Catalog
	op      int
}

type engine struct {
	cfg      Config
	rng      *rand.Rand
	log      zerolog.Logger
	observer func(Progress)

	removal          *Catalog
	insertion        *Catalog
	stationRemoval   *Catalog
	stationInsertion *Catalog
	// stationRemovalAllowed excludes the degradation operator unless the
	// degradation policy is active.
	stationRemovalAllowed []int

	current, best         *Solution
	currentCost, bestCost float64
	temperature           float64

	metrics Metrics
}

func newEngine(cfg Config, seed int64, initial *Solution, o options) *engine {
	cost := initial.TotalCost()
	e := &engine{
		cfg:              cfg,
		rng:              rand.New(rand.NewSource(seed)),
		log:              o.log,
		observer:         o.observer,
		removal:          newCatalog(removalNames),
		insertion:        newCatalog(insertionNames),
		stationRemoval:   newCatalog(stationRemovalNames),
		stationInsertion: newCatalog(stationInsertionNames),
		current:          initial,
		best:             initial,
		currentCost:      cost,
		bestCost:         cost,
		temperature:      cfg.TemperatureControl * cost / math.Ln2 / 100,
		metrics: Metrics{
			InitialCost: cost,
			Selects:     make(map[string]int),
		},
	}
	if initial.policy.Kind() != PolicyDegradation {
		for op := range WorstDegradationStationRemoval {
			e.stationRemovalAllowed = append(e.stationRemovalAllowed, int(op))
		}
	}
	return e
}

func (e *engine) choose(c *Catalog, allowed []int) int {
	op := c.choose(e.rng, allowed)
	e.metrics.Selects[c.Name(op)]++
	return op
}

// destroyRepair mutates cand with one destroy and repair pair, or with a burst
// of route removals on the route cadence.
func (e *engine) destroyRepair(j int, cand *Solution) ([]usage, error) {
	cfg := e.cfg
	switch {
	case j%cfg.StationCadence == 0:
		n := stationCount(cand.StationVisitCount(), e.rng)
		sr := e.choose(e.stationRemoval, e.stationRemovalAllowed)
		removeStations(cand, StationRemovalOp(sr), n, e.rng)
		si := e.choose(e.stationInsertion, nil)
		insertStations(cand, StationInsertionOp(si))
		return []usage{{e.stationRemoval, sr}, {e.stationInsertion, si}}, nil

	case j%cfg.RouteCadence == 0:
		used := make([]usage, 0, 2*cfg.RouteBurst)
		for range cfg.RouteBurst {
			rr := e.choose(e.removal, routeRemovalOps)
			pool := removeCustomers(cand, RemovalOp(rr), 0, e.rng)
			insertStations(cand, GreedyStationInsertion)
			ci := e.choose(e.insertion, nil)
			if err := insertCustomers(cand, InsertionOp(ci), pool, e.rng); err != nil {
				return nil, err
			}
			used = append(used, usage{e.removal, rr}, usage{e.insertion, ci})
		}
		return used, nil
	}

	cr := e.choose(e.removal, nil)
	pool := removeCustomers(cand, RemovalOp(cr), customerCount(cand.CustomerCount(), e.rng), e.rng)
	insertStations(cand, GreedyStationInsertion)
	ci := e.choose(e.insertion, nil)
	if err := insertCustomers(cand, InsertionOp(ci), pool, e.rng); err != nil {
		return nil, err
	}
	return []usage{{e.removal, cr}, {e.insertion, ci}}, nil
}

// anneal accepts a candidate that uses fewer routes than the best outright,
// otherwise with probability exp((current - cost) / T).
func (e *engine) anneal(cand *Solution, cost float64) bool {
	if len(cand.routes) < len(e.best.routes) {
		return true
	}
	return e.rng.Float64() < math.Exp((e.currentCost-cost)/e.temperature)
}

func (e *engine) iterate(j int) error {
	cand := e.current.Clone()
	used, err := e.destroyRepair(j, cand)
	if err != nil {
		return err
	}
	cand.RemoveEmptyRoutes()

	outcome, score, cost := OutcomeInfeasible, 0.0, math.Inf(1)
	if cand.IsFeasible() && cand.IsBatteryFeasible() {
		cost = cand.TotalCost()
		switch {
		case cost < e.bestCost:
			outcome, score = OutcomeBest, e.cfg.Sigma1
		case cost < e.currentCost:
			outcome, score = OutcomeBetter, e.cfg.Sigma2
		case e.anneal(cand, cost):
			outcome, score = OutcomeAccepted, e.cfg.Sigma3
		default:
			outcome = OutcomeRejected
		}
	}

	switch outcome {
	case OutcomeBest, OutcomeBetter, OutcomeAccepted:
		if err := cand.Verify(); err != nil {
			return err
		}
		e.current, e.currentCost = cand, cost
		if outcome == OutcomeBest {
			e.best, e.bestCost = cand, cost
			e.metrics.Improvements++
			e.log.Debug().Int("iteration", j).Float64("cost", cost).Int("routes", len(cand.routes)).Msg("new best")
		} else if outcome == OutcomeBetter {
			e.metrics.Accepted++
		} else {
			e.metrics.AcceptedWorse++
		}
	case OutcomeRejected:
		e.metrics.Rejected++
	case OutcomeInfeasible:
		e.metrics.Infeasible++
	}

	for _, u := range used {
		u.catalog.reward(u.op, score)
	}
	e.temperature *= e.cfg.CoolingRate
	e.metrics.Iterations = j

	if j%e.cfg.CustomerWeightPeriod == 0 {
		e.removal.UpdateWeights(e.cfg.Reaction)
		e.insertion.UpdateWeights(e.cfg.Reaction)
	}
	if j%e.cfg.StationWeightPeriod == 0 {
		e.stationRemoval.UpdateWeights(e.cfg.Reaction)
		e.stationInsertion.UpdateWeights(e.cfg.Reaction)
	}
	if e.cfg.SnapshotEvery > 0 && j%e.cfg.SnapshotEvery == 0 {
		e.metrics.Snapshots = append(e.metrics.Snapshots, e.snapshot(j))
	}

	if e.observer != nil {
		reported := cost
		if outcome == OutcomeInfeasible {
			reported = 0
		}
		names := make([]string, 0, min(len(used), 2))
		for _, u := range used[:min(len(used), 2)] {
			names = append(names, u.catalog.Name(u.op))
		}
		e.observer(Progress{
			Iteration:   j,
			Operators:   names,
			Outcome:     outcome,
			Cost:        reported,
			CurrentCost: e.currentCost,
			BestCost:    e.bestCost,
			Routes:      len(e.current.routes),
			Temperature: e.temperature,
		})
	}
	return nil
}

func (e *engine) snapshot(j int) WeightSnapshot {
	return WeightSnapshot{
		Iteration:        j,
		Removal:          e.removal.Weights(),
		Insertion:        e.insertion.Weights(),
		StationRemoval:   e.stationRemoval.Weights(),
		StationInsertion: e.stationInsertion.Weights(),
	}
}

func (e *engine) finish() Metrics {
	m := e.metrics
	m.BestCost = e.bestCost
	m.FinalCost = e.currentCost
	m.BestRoutes = len(e.best.routes)
	m.Temperature = e.temperature
	m.Removal = e.removal.Operators()
	m.Insertion = e.insertion.Operators()
	m.StationRemoval = e.stationRemoval.Operators()
	m.StationInsertion = e.stationInsertion.Operators()
	return m
}
