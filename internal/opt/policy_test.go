package opt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evrptw/internal/apperr"
)

func TestPolicyConfigBuild(t *testing.T) {
	tests := []struct {
		name    string
		cfg     PolicyConfig
		want    PolicyKind
		wantErr bool
	}{
		{name: "default is free", cfg: DefaultPolicyConfig(), want: PolicyFree},
		{name: "empty kind is free", cfg: PolicyConfig{}, want: PolicyFree},
		{name: "fixed", cfg: PolicyConfig{Kind: PolicyFixedPartial, Fraction: 0.4}, want: PolicyFixedPartial},
		{name: "fixed fraction out of range", cfg: PolicyConfig{Kind: PolicyFixedPartial, Fraction: 1.5}, wantErr: true},
		{name: "degradation", cfg: PolicyConfig{Kind: PolicyDegradation, Lower: 0.25, Upper: 0.85, LowWeight: 0.5, HighWeight: 1}, want: PolicyDegradation},
		{name: "degradation inverted band", cfg: PolicyConfig{Kind: PolicyDegradation, Lower: 0.9, Upper: 0.1}, wantErr: true},
		{name: "degradation negative weight", cfg: PolicyConfig{Kind: PolicyDegradation, Lower: 0.1, Upper: 0.9, LowWeight: -1}, wantErr: true},
		{name: "unknown", cfg: PolicyConfig{Kind: "full"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.cfg.Build()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.Is(err, apperr.CodeInvalidConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Kind())
		})
	}
}

func TestFixedPartialChargesFraction(t *testing.T) {
	in := toyInstance(t)
	r := NewRoute(in, FixedPartialRecharge{Fraction: 0.4})
	r.InsertAt(toyStation, 1)

	assert.InDelta(t, 10.0, r.Visit(1).Charge, 1e-9)
	assert.True(t, r.IsBatteryFeasible())
	assert.Zero(t, r.policy.VisitCost(r, 1))
	assert.InDelta(t, r.Distance(), r.Cost(), 1e-12)
}

func TestFixedPartialTopsUpLastStationBeforeViolation(t *testing.T) {
	in := toyInstance(t)
	r := NewRoute(in, FixedPartialRecharge{Fraction: 0.2})
	r.InsertAt(toyStation, 1)
	require.InDelta(t, 5.0, r.Visit(1).Charge, 1e-9)
	require.True(t, r.IsBatteryFeasible())

	// The route through S and A needs 9.14 at S; the fixed 5 falls short, so
	// the station is filled up completely.
	r.InsertAt(toyA, 2)

	assert.InDelta(t, in.BatteryCapacity, r.Visit(1).BatteryOnDeparture(), 1e-9)
	assert.True(t, r.IsBatteryFeasible())
}

func TestDegradationRequiresReserveAtDepot(t *testing.T) {
	in := toyInstance(t)
	p := Degradation{Lower: 0.2, Upper: 0.8, LowWeight: 2, HighWeight: 1}

	a := NewRoute(in, p)
	a.InsertAt(toyA, 1)
	// 25 - 20 leaves exactly the 5 unit reserve.
	assert.True(t, a.IsBatteryFeasible())
	assert.Equal(t, -1, a.FirstBatteryViolation())

	b := NewRoute(in, p)
	b.InsertAt(toyB, 1)
	assert.False(t, b.IsBatteryFeasible())
	assert.Equal(t, 2, b.FirstBatteryViolation())
	assert.InDelta(t, 2.0, b.RequiredCharge(), 1e-9)
}

func TestDegradationCost(t *testing.T) {
	in := toyInstance(t)
	p := Degradation{Lower: 0.2, Upper: 0.8, LowWeight: 2, HighWeight: 1}

	r := NewRoute(in, p)
	r.InsertAt(toyA, 1)

	// Leaving the depot full costs (25 - 20) above the band, arriving with
	// exactly the lower bound costs nothing.
	assert.InDelta(t, 5.0, p.VisitCost(r, 0), 1e-9)
	assert.Zero(t, p.VisitCost(r, 1))
	assert.InDelta(t, 0.0, p.VisitCost(r, 2), 1e-9)
	assert.InDelta(t, 25.0, r.Cost(), 1e-9)

	b := NewRoute(in, p)
	b.InsertAt(toyB, 1)
	// Coming home with 3 is 2 below the band.
	assert.InDelta(t, 22+5+2*2, b.Cost(), 1e-9)
}
