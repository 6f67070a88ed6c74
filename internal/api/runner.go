package api

import (
	"context"
	"errors"
	"time"

	"evrptw/internal/instance"
	"evrptw/internal/logger"
	"evrptw/internal/metrics"
	"evrptw/internal/model"
	"evrptw/internal/opt"
)

// progressEvery throttles run.progress events; new bests are always published.
const progressEvery = 100

// startRun launches the search for run in the background. The run record must
// already be stored as queued.
func (s *Server) startRun(run model.Run, in *instance.Instance, cfg opt.Config) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.Cfg.API.RunTimeout > 0 {
		ctx, cancel = context.WithTimeout(s.baseCtx, s.Cfg.API.RunTimeout)
	} else {
		ctx, cancel = context.WithCancel(s.baseCtx)
	}
	s.mu.Lock()
	s.cancels[run.ID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.cancels, run.ID)
			s.mu.Unlock()
			cancel()
		}()
		s.execute(logger.WithRunID(ctx, run.ID), run, in, cfg)
	}()
}

// cancelRun stops a run in flight. It reports false when the run is not running here.
func (s *Server) cancelRun(id string) bool {
	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (s *Server) execute(ctx context.Context, run model.Run, in *instance.Instance, cfg opt.Config) {
	// state writes outlive the run context
	bg := context.WithoutCancel(ctx)
	log := s.search.Logger(run.ID)

	now := time.Now().UTC()
	run.Status = model.RunRunning
	run.StartedAt = &now
	if err := s.Store.UpdateRun(bg, run); err != nil {
		log.Error().Err(err).Msg("mark run running")
	}
	metrics.RunsInFlight.Inc()
	defer metrics.RunsInFlight.Dec()

	s.search.StartRun(run.ID, in.Name, len(in.Customers()), len(in.Stations()), run.Seed)
	s.Broker.Publish(run.ID, model.RunEvent{Type: model.EventRunStarted, RunID: run.ID, TS: now})

	outcomes := map[string]int{}
	observer := func(p opt.Progress) {
		outcomes[string(p.Outcome)]++
		opt.RecordProgress(run.ID, p)
		if p.Outcome == opt.OutcomeBest {
			s.search.NewBest(run.ID, p.Iteration, p.BestCost, p.Routes)
		}
		if p.Outcome == opt.OutcomeBest || p.Iteration%progressEvery == 0 {
			s.Broker.Publish(run.ID, model.RunEvent{Type: model.EventRunProgress, RunID: run.ID, TS: time.Now().UTC(), Data: p})
		}
	}

	res, err := opt.Run(ctx, in, cfg, run.Seed, opt.WithLogger(log), opt.WithObserver(observer))
	defer opt.ForgetProgress(run.ID)

	finished := time.Now().UTC()
	run.FinishedAt = &finished
	switch {
	case res != nil && (err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		// a canceled run still reports its best solution
		rep := opt.BuildReport(res)
		run.Report = &rep
		run.Status = model.RunSucceeded
		if err != nil {
			run.Status = model.RunCanceled
			run.Error = err.Error()
		}
		snaps := make([]model.WeightSnapshot, len(res.Metrics.Snapshots))
		for i, w := range res.Metrics.Snapshots {
			snaps[i] = opt.SnapshotWeights(run.ID, w)
		}
		if err := s.Store.SaveSnapshots(bg, run.ID, snaps); err != nil {
			log.Error().Err(err).Msg("save weight snapshots")
		}
		s.search.RunComplete(run.ID, res.Elapsed, res.Metrics.BestCost, res.Metrics.BestRoutes)
		metrics.ObserveRun(in.Name, string(cfg.Policy.Kind), string(run.Status), res.Elapsed.Seconds(), res.Metrics.BestCost, outcomes, res.Metrics.Selects)
	default:
		run.Status = model.RunFailed
		run.Error = err.Error()
		s.search.RunFailed(run.ID, err)
		metrics.ObserveRun(in.Name, string(cfg.Policy.Kind), string(run.Status), finished.Sub(now).Seconds(), 0, outcomes, nil)
	}
	if err := s.Store.UpdateRun(bg, run); err != nil {
		log.Error().Err(err).Msg("record run result")
	}

	ev := model.RunEvent{Type: model.EventRunCompleted, RunID: run.ID, TS: finished, Data: run}
	if run.Status == model.RunFailed {
		ev.Type = model.EventRunFailed
	}
	s.Broker.Publish(run.ID, ev)
	if s.Cfg.Webhook.Enabled {
		s.Pub.Emit(bg, ev)
	}
}
