package specfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evrptw/internal/apperr"
	"evrptw/internal/instance"
)

const toyYAML = `
vehicle:
  battery_capacity: 25
  load_capacity: 10
  consumption_rate: 1
  recharge_rate: 1
  velocity: 1
locations:
  - {kind: depot, due_time: 1000}
  - {kind: f, x: 10, y: 10, due_time: 1000}
  - {kind: c, y: 10, demand: 1, due_time: 1000}
`

const toyJSON = `{"name":"toy","vehicle":{"batteryCapacity":25,"loadCapacity":10,"consumptionRate":1,"rechargeRate":1,"velocity":1},
"locations":[{"kind":"d","dueTime":1000},{"kind":"c","x":3,"y":4,"demand":1,"dueTime":1000}]}`

func TestLoadYAMLNamesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(toyYAML), 0o600))

	spec, err := Adapter{}.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "toy", spec.Name)
	assert.Equal(t, 25.0, spec.Vehicle.BatteryCapacity)
	require.Len(t, spec.Locations, 3)
	assert.Equal(t, instance.Station, spec.Locations[1].Kind)
	assert.Equal(t, instance.Customer, spec.Locations[2].Kind)
	assert.Equal(t, 10.0, spec.Locations[2].Y)

	_, err = spec.Build()
	require.NoError(t, err)
}

func TestDecodeJSON(t *testing.T) {
	spec, err := Decode([]byte(toyJSON), ".JSON")
	require.NoError(t, err)
	assert.Equal(t, "toy", spec.Name)
	require.Len(t, spec.Locations, 2)
	assert.Equal(t, 4.0, spec.Locations[1].Y)

	_, err = Decode([]byte(`{"locations":[{"kind":"zz"}]}`), ".json")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInstance))
}

func TestSupports(t *testing.T) {
	assert.True(t, Supports("a/b.yml"))
	assert.True(t, Supports("b.JSON"))
	assert.False(t, Supports("c101C5_locations.csv"))
}
