package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"evrptw/internal/instance"
	"evrptw/internal/integrations/csvfile"
	"evrptw/internal/integrations/specfile"
	"evrptw/internal/opt"
)

func toyInstance(t *testing.T) *instance.Instance {
	t.Helper()
	in, err := instance.New("toy", []instance.Location{
		{Kind: instance.Depot, DueTime: 1000},
		{Kind: instance.Station, X: 10, Y: 10, DueTime: 1000},
		{Kind: instance.Customer, X: 0, Y: 10, Demand: 1, DueTime: 1000},
		{Kind: instance.Customer, X: 11, Y: 0, Demand: 1, DueTime: 1000},
	}, instance.Vehicle{BatteryCapacity: 25, LoadCapacity: 10, ConsumptionRate: 1, RechargeRate: 1, Velocity: 1})
	require.NoError(t, err)
	return in
}

func smallConfig() opt.Config {
	cfg := opt.DefaultConfig()
	cfg.Iterations = 60
	cfg.StationCadence = 7
	cfg.RouteCadence = 50
	cfg.RouteBurst = 3
	cfg.CustomerWeightPeriod = 20
	cfg.StationWeightPeriod = 60
	cfg.SnapshotEvery = 30
	return cfg
}

func TestSourceFor(t *testing.T) {
	assert.IsType(t, specfile.Adapter{}, sourceFor("inst.yaml"))
	assert.IsType(t, specfile.Adapter{}, sourceFor("inst.json"))
	assert.IsType(t, csvfile.Adapter{}, sourceFor("c101C5_locations.csv"))
	assert.IsType(t, csvfile.Adapter{}, sourceFor("data/c101C5"))
}

func TestSolveAllSeeds(t *testing.T) {
	in := toyInstance(t)
	results, err := solveAll(context.Background(), in, smallConfig(), 7, 3, 2, zerolog.Nop(), false)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, int64(7+i), r.Seed)
		assert.True(t, r.Best.IsFeasible())
	}

	best := bestResult(results)
	for _, r := range results {
		assert.LessOrEqual(t, best.Metrics.BestCost, r.Metrics.BestCost)
	}
}

func TestBestResultSkipsMissing(t *testing.T) {
	assert.Nil(t, bestResult(nil))
	a := &opt.Result{Seed: 1, Metrics: opt.Metrics{BestCost: 10}}
	b := &opt.Result{Seed: 2, Metrics: opt.Metrics{BestCost: 8}}
	assert.Same(t, b, bestResult([]*opt.Result{nil, a, b, nil}))
}

func TestWriteOutputFormats(t *testing.T) {
	in := toyInstance(t)
	res, err := opt.Run(context.Background(), in, smallConfig(), 3)
	require.NoError(t, err)
	out := solveOutput{Best: opt.BuildReport(res), Runs: []runSummary{{Seed: 3, Cost: res.Metrics.BestCost}}}
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "report.json")
	require.NoError(t, writeOutput(jsonPath, "", out))
	b, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Contains(t, decoded, "best")
	assert.Contains(t, decoded, "runs")

	yamlPath := filepath.Join(dir, "report.yml")
	require.NoError(t, writeOutput(yamlPath, "", out))
	b, err = os.ReadFile(yamlPath)
	require.NoError(t, err)
	var y map[string]any
	require.NoError(t, yaml.Unmarshal(b, &y))
	assert.Contains(t, y, "best")

	err = writeOutput(filepath.Join(dir, "report.txt"), "xml", out)
	require.Error(t, err)
}
