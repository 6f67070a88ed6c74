package opt

import "evrptw/internal/model"

// BuildReport flattens a finished run into its exported form.
func BuildReport(res *Result) model.RunReport {
	s := res.Best
	rep := model.RunReport{
		Instance:        s.inst.Name,
		Policy:          string(s.policy.Kind()),
		Seed:            res.Seed,
		TotalDistance:   s.TotalDistance(),
		TotalCost:       s.TotalCost(),
		Feasible:        s.IsFeasible(),
		BatteryFeasible: s.IsBatteryFeasible(),
		Iterations:      res.Metrics.Iterations,
		StopReason:      string(res.StopReason),
		ElapsedMs:       res.Elapsed.Milliseconds(),
		Routes:          make([]model.RouteReport, 0, len(s.routes)),
	}
	for _, r := range s.routes {
		rr := model.RouteReport{
			Distance: r.distance,
			Cost:     r.Cost(),
			Charged:  r.TotalCharge(),
			Visits:   make([]model.VisitReport, len(r.visits)),
		}
		for i, v := range r.visits {
			rr.Visits[i] = model.VisitReport{
				Loc:              v.Loc,
				Kind:             s.inst.Kind(v.Loc),
				Arrival:          v.Arrival,
				Departure:        v.Departure(s.inst),
				BatteryOnArrival: v.BatteryOnArrival,
				Charge:           v.Charge,
				Load:             v.LoadOnDeparture,
			}
		}
		rep.Routes = append(rep.Routes, rr)
	}
	return rep
}

// SnapshotWeights keys a weight snapshot by catalog for persistence.
func SnapshotWeights(runID string, w WeightSnapshot) model.WeightSnapshot {
	return model.WeightSnapshot{
		RunID:     runID,
		Iteration: w.Iteration,
		Weights: map[string][]float64{
			"removal":           w.Removal,
			"insertion":         w.Insertion,
			"station_removal":   w.StationRemoval,
			"station_insertion": w.StationInsertion,
		},
	}
}
