package csvfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evrptw/internal/apperr"
	"evrptw/internal/instance"
)

const locationsCSV = `StringID,Type,x,y,demand,ReadyTime,DueDate,ServiceTime
D0,d,40,50,0,0,1236,0
S0,f,40,50,0,0,1236,0
S15,f,39,26,0,0,1236,0
C20,c,30,50,10,10,74,90
C24,c,25,50,10,0,1136,90

`

const otherCSV = `Q,C,r,g,v
77.75,200,1,3.47,1
`

func TestParseReadsBothSheets(t *testing.T) {
	spec, err := Parse("c101C5", strings.NewReader(locationsCSV), strings.NewReader(otherCSV))
	require.NoError(t, err)

	assert.Equal(t, "c101C5", spec.Name)
	require.Len(t, spec.Locations, 5)
	assert.Equal(t, instance.Depot, spec.Locations[0].Kind)
	assert.Equal(t, instance.Station, spec.Locations[2].Kind)
	assert.Equal(t, instance.Location{Kind: instance.Customer, X: 30, Y: 50, Demand: 10, ReadyTime: 10, DueTime: 74, ServiceTime: 90}, spec.Locations[3])
	assert.Equal(t, instance.Vehicle{BatteryCapacity: 77.75, LoadCapacity: 200, ConsumptionRate: 1, RechargeRate: 3.47, Velocity: 1}, spec.Vehicle)

	in, err := spec.Build()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, in.Customers())
}

func TestParseRejectsBadSheets(t *testing.T) {
	_, err := Parse("x", strings.NewReader("Type,x,y\nd,0,0\n"), strings.NewReader(otherCSV))
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInstance))
	assert.Contains(t, err.Error(), "missing column")

	bad := strings.Replace(locationsCSV, "C24,c,25", "C24,q,25", 1)
	_, err = Parse("x", strings.NewReader(bad), strings.NewReader(otherCSV))
	assert.Contains(t, err.Error(), "row 6")

	_, err = Parse("x", strings.NewReader(locationsCSV), strings.NewReader("Q,C,r,g,v\n"))
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInstance))
}

func TestLoadAcceptsEitherSheetPath(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "c101C5")
	require.NoError(t, os.WriteFile(base+"_locations.csv", []byte(locationsCSV), 0o600))
	require.NoError(t, os.WriteFile(base+"_other.csv", []byte(otherCSV), 0o600))

	for _, ref := range []string{base, base + "_locations.csv", base + "_other.csv"} {
		spec, err := Adapter{}.Load(context.Background(), ref)
		require.NoError(t, err, ref)
		assert.Equal(t, "c101C5", spec.Name)
		assert.Len(t, spec.Locations, 5)
	}

	_, err := Adapter{}.Load(context.Background(), filepath.Join(dir, "missing"))
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInstance))
}
