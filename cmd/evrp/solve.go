package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"evrptw/internal/apperr"
	"evrptw/internal/config"
	"evrptw/internal/instance"
	"evrptw/internal/integrations"
	"evrptw/internal/integrations/csvfile"
	"evrptw/internal/integrations/specfile"
	"evrptw/internal/logger"
	"evrptw/internal/model"
	"evrptw/internal/opt"
	"evrptw/internal/store"
)

// sourceFor picks the instance reader by file extension.
func sourceFor(ref string) integrations.InstanceSource {
	if specfile.Supports(ref) {
		return specfile.Adapter{}
	}
	return csvfile.Adapter{}
}

// runSummary is one line of the multi-run table.
type runSummary struct {
	Seed       int64   `json:"seed" yaml:"seed"`
	Cost       float64 `json:"cost" yaml:"cost"`
	Routes     int     `json:"routes" yaml:"routes"`
	Iterations int     `json:"iterations" yaml:"iterations"`
	StopReason string  `json:"stopReason" yaml:"stop_reason"`
	ElapsedMs  int64   `json:"elapsedMs" yaml:"elapsed_ms"`
}

type solveOutput struct {
	Best model.RunReport `json:"best" yaml:"best"`
	Runs []runSummary    `json:"runs,omitempty" yaml:"runs,omitempty"`
}

func runSolve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("solve", flag.ExitOnError)
	cfgPath := fs.String("config", os.Getenv("EVRP_CONFIG"), "YAML config file")
	ref := fs.String("instance", "", "instance file: .yaml/.json spec, or the CSV sheet base path")
	seed := fs.Int64("seed", -1, "random seed (default from config)")
	runs := fs.Int("runs", 1, "independent runs with consecutive seeds; the best is reported")
	parallel := fs.Int("parallel", runtime.NumCPU(), "runs executed at once")
	iterations := fs.Int("iterations", 0, "iteration budget (overrides search.iterations)")
	partial := fs.Bool("partial", false, "partial run budget")
	timeLimit := fs.Float64("time-limit", 0, "wall clock limit per run in seconds")
	policy := fs.String("policy", "", "recharge policy: free, fixed, degradation")
	out := fs.String("out", "-", "report destination, - for stdout")
	format := fs.String("format", "", "json or yaml (default from -out extension, else json)")
	verbose := fs.Bool("v", false, "log search progress")
	_ = fs.Parse(args)

	if *ref == "" {
		return apperr.InvalidConfig("instance", "-instance is required")
	}
	if *runs < 1 {
		return apperr.InvalidConfig("runs", "must be >= 1")
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if *iterations > 0 {
		cfg.Search.Iterations = *iterations
	}
	if *partial {
		cfg.Search.PartialRun = true
	}
	if *timeLimit > 0 {
		cfg.Search.TimeLimitSeconds = *timeLimit
	}
	if *policy != "" {
		cfg.Search.Policy.Kind = opt.PolicyKind(*policy)
	}
	if *seed >= 0 {
		cfg.Search.Seed = *seed
	}
	if err := cfg.Search.Validate(); err != nil {
		return err
	}
	logger.Init(cfg.Log)
	log := *logger.Get()

	spec, err := sourceFor(*ref).Load(ctx, *ref)
	if err != nil {
		return err
	}
	in, err := spec.Build()
	if err != nil {
		return err
	}
	log.Info().
		Str("instance", in.Name).
		Int("customers", len(in.Customers())).
		Int("stations", len(in.Stations())).
		Int("runs", *runs).
		Str("policy", string(cfg.Search.Policy.Kind)).
		Msg("instance loaded")

	results, err := solveAll(ctx, in, cfg.Search.Config, cfg.Search.Seed, *runs, *parallel, log, *verbose)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	best := bestResult(results)
	if best == nil {
		return err
	}

	output := solveOutput{Best: opt.BuildReport(best)}
	if *runs > 1 {
		for _, r := range results {
			if r == nil {
				continue
			}
			output.Runs = append(output.Runs, runSummary{
				Seed:       r.Seed,
				Cost:       r.Metrics.BestCost,
				Routes:     r.Metrics.BestRoutes,
				Iterations: r.Metrics.Iterations,
				StopReason: string(r.StopReason),
				ElapsedMs:  r.Elapsed.Milliseconds(),
			})
		}
	}
	if err := persist(ctx, cfg, best, output.Best, log); err != nil {
		log.Warn().Err(err).Msg("run not persisted")
	}
	return writeOutput(*out, *format, output)
}

// solveAll runs n independent searches with seeds seed, seed+1, ... and keeps
// every result; a canceled context still yields the best solutions found.
func solveAll(ctx context.Context, in *instance.Instance, cfg opt.Config, seed int64, n, parallel int, log zerolog.Logger, verbose bool) ([]*opt.Result, error) {
	results := make([]*opt.Result, n)
	g, gctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i := range n {
		g.Go(func() error {
			runLog := zerolog.Nop()
			if verbose {
				runLog = log.With().Int("run", i).Logger()
			}
			res, err := opt.Run(gctx, in, cfg, seed+int64(i), opt.WithLogger(runLog))
			results[i] = res
			return err
		})
	}
	return results, g.Wait()
}

func bestResult(results []*opt.Result) *opt.Result {
	var best *opt.Result
	for _, r := range results {
		if r == nil {
			continue
		}
		if best == nil || r.Metrics.BestCost < best.Metrics.BestCost {
			best = r
		}
	}
	return best
}

// persist records the best run in the configured store so it shows up next to
// API runs. The memory store keeps nothing across processes and is skipped.
func persist(ctx context.Context, cfg *config.Config, res *opt.Result, rep model.RunReport, log zerolog.Logger) error {
	if cfg.Store.Driver == "memory" {
		return nil
	}
	st, err := store.Open(context.WithoutCancel(ctx), cfg.Store.Driver, cfg.Store.DatabaseURL, cfg.Store.SQLitePath)
	if err != nil {
		return err
	}
	defer st.Close()

	finished := time.Now().UTC()
	started := finished.Add(-res.Elapsed)
	run := model.Run{
		ID:         uuid.NewString(),
		Instance:   rep.Instance,
		Seed:       res.Seed,
		Status:     model.RunSucceeded,
		CreatedAt:  started,
		StartedAt:  &started,
		FinishedAt: &finished,
		Report:     &rep,
	}
	if res.StopReason == opt.StopCanceled {
		run.Status = model.RunCanceled
	}
	if err := st.CreateRun(ctx, run); err != nil {
		return err
	}
	snaps := make([]model.WeightSnapshot, len(res.Metrics.Snapshots))
	for i, w := range res.Metrics.Snapshots {
		snaps[i] = opt.SnapshotWeights(run.ID, w)
	}
	if err := st.SaveSnapshots(ctx, run.ID, snaps); err != nil {
		return err
	}
	log.Info().Str("run_id", run.ID).Str("store", cfg.Store.Driver).Msg("run persisted")
	return nil
}

func writeOutput(path, format string, v solveOutput) error {
	if format == "" {
		format = "json"
		if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
			format = "yaml"
		}
	}
	var w io.Writer = os.Stdout
	if path != "-" && path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return apperr.InvalidConfig("format", "want json or yaml, got "+format)
	}
}
