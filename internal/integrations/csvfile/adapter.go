// Package csvfile reads instances exported from the benchmark workbooks: a
// <name>_locations.csv sheet and a <name>_other.csv sheet with the vehicle.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"evrptw/internal/apperr"
	"evrptw/internal/instance"
	"evrptw/internal/integrations"
	"evrptw/internal/model"
)

var _ integrations.InstanceSource = Adapter{}

type Adapter struct{}

func (Adapter) Name() string { return "csv-file" }

// Load accepts the base path (dir/c101C5), or the path of either sheet.
func (a Adapter) Load(ctx context.Context, ref string) (model.InstanceSpec, error) {
	base := strings.TrimSuffix(strings.TrimSuffix(strings.TrimSuffix(ref, ".csv"), "_locations"), "_other")
	locs, err := os.Open(base + "_locations.csv")
	if err != nil {
		return model.InstanceSpec{}, apperr.Wrap(err, apperr.CodeInvalidInstance, "open locations sheet")
	}
	defer locs.Close()
	other, err := os.Open(base + "_other.csv")
	if err != nil {
		return model.InstanceSpec{}, apperr.Wrap(err, apperr.CodeInvalidInstance, "open vehicle sheet")
	}
	defer other.Close()
	return Parse(filepath.Base(base), locs, other)
}

// Parse reads both sheets. Columns are matched by header name, so extra
// columns such as StringID are ignored.
func Parse(name string, locations, other io.Reader) (model.InstanceSpec, error) {
	spec := model.InstanceSpec{Name: name}

	rows, err := readSheet(locations, "Type", "x", "y", "demand", "ReadyTime", "DueDate", "ServiceTime")
	if err != nil {
		return spec, apperr.Wrap(err, apperr.CodeInvalidInstance, "locations sheet")
	}
	for i, row := range rows {
		kind, err := instance.ParseKind(row.str("Type"))
		if err != nil {
			return spec, apperr.Wrap(err, apperr.CodeInvalidInstance, fmt.Sprintf("locations row %d", i+2))
		}
		loc := instance.Location{Kind: kind}
		for _, f := range []struct {
			col string
			dst *float64
		}{
			{"x", &loc.X}, {"y", &loc.Y}, {"demand", &loc.Demand},
			{"ReadyTime", &loc.ReadyTime}, {"DueDate", &loc.DueTime}, {"ServiceTime", &loc.ServiceTime},
		} {
			if *f.dst, err = row.float(f.col); err != nil {
				return spec, apperr.Wrap(err, apperr.CodeInvalidInstance, fmt.Sprintf("locations row %d", i+2))
			}
		}
		spec.Locations = append(spec.Locations, loc)
	}

	vrows, err := readSheet(other, "Q", "C", "r", "g", "v")
	if err != nil {
		return spec, apperr.Wrap(err, apperr.CodeInvalidInstance, "vehicle sheet")
	}
	if len(vrows) == 0 {
		return spec, apperr.InvalidInstance("vehicle", "sheet has no data row")
	}
	v := vrows[0]
	for _, f := range []struct {
		col string
		dst *float64
	}{
		{"Q", &spec.Vehicle.BatteryCapacity}, {"C", &spec.Vehicle.LoadCapacity}, {"r", &spec.Vehicle.ConsumptionRate},
		{"g", &spec.Vehicle.RechargeRate}, {"v", &spec.Vehicle.Velocity},
	} {
		if *f.dst, err = v.float(f.col); err != nil {
			return spec, apperr.Wrap(err, apperr.CodeInvalidInstance, "vehicle sheet")
		}
	}
	return spec, nil
}

type record struct {
	cols   map[string]int
	fields []string
}

func (r record) str(col string) string { return strings.TrimSpace(r.fields[r.cols[col]]) }

func (r record) float(col string) (float64, error) {
	s := r.str(col)
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", col, err)
	}
	return f, nil
}

func readSheet(rd io.Reader, required ...string) ([]record, error) {
	cr := csv.NewReader(rd)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range required {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}
	var out []record
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 || strings.TrimSpace(strings.Join(fields, "")) == "" {
			continue
		}
		out = append(out, record{cols: cols, fields: fields})
	}
}
