package trigger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skywatch/transient-gateway/internal/model"
)

func candidate() *model.Event {
	obs := time.Date(2024, 3, 1, 21, 46, 5, 0, time.UTC)
	ev := &model.Event{
		ID:                "MS999999",
		AlertType:         model.AlertInitial,
		TimeObserved:      &obs,
		Actionable:        true,
		TerrestrialChance: model.Float(0.001),
		FalseAlarmRate:    model.Float(1e-9),
		HasNeutronStar:    model.Float(0.9),
		HasRemnant:        model.Float(0.6),
	}
	ev.SetPosition(120.5, -30.25)
	return ev
}

func TestCriteriaSatisfied(t *testing.T) {
	crit := Criteria{
		MinHasNeutronStar:    0.8,
		MinHasRemnant:        0.5,
		MaxTerrestrialChance: 0.01,
		MaxFalseAlarmRate:    1e-8,
	}

	tests := []struct {
		name   string
		mutate func(*model.Event)
		want   bool
	}{
		{"passes all thresholds", func(ev *model.Event) {}, true},
		{"not actionable", func(ev *model.Event) { ev.Actionable = false }, false},
		{"retraction", func(ev *model.Event) { ev.AlertType = model.AlertRetraction }, false},
		{"no position", func(ev *model.Event) { ev.ClearPosition() }, false},
		{"neutron star unlikely", func(ev *model.Event) { ev.HasNeutronStar = model.Float(0.2) }, false},
		{"neutron star unknown", func(ev *model.Event) { ev.HasNeutronStar = nil }, false},
		{"remnant unlikely", func(ev *model.Event) { ev.HasRemnant = model.Float(0.1) }, false},
		{"likely terrestrial", func(ev *model.Event) { ev.TerrestrialChance = model.Float(0.5) }, false},
		{"noisy detection", func(ev *model.Event) { ev.FalseAlarmRate = model.Float(1e-3) }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := candidate()
			tt.mutate(ev)
			require.Equal(t, tt.want, crit.Satisfied(ev))
		})
	}
}

func TestCriteriaZeroThresholdsDisableChecks(t *testing.T) {
	ev := candidate()
	ev.HasNeutronStar = nil
	ev.HasRemnant = nil
	ev.TerrestrialChance = nil
	ev.FalseAlarmRate = nil
	require.True(t, Criteria{}.Satisfied(ev))
}

type stubFinder struct {
	cal Calibrator
	err error

	gotRA, gotDec float64
	gotTime       time.Time
}

func (f *stubFinder) Nearest(ctx context.Context, ra, dec float64, t time.Time) (Calibrator, error) {
	f.gotRA, f.gotDec, f.gotTime = ra, dec, t
	return f.cal, f.err
}

func TestBuilderBuild(t *testing.T) {
	b := &Builder{ExposureSec: 7200}
	ev := candidate()

	trg, err := b.Build(context.Background(), ev)
	require.NoError(t, err)
	require.NotEmpty(t, trg.ID)
	require.Equal(t, ev.ID, trg.EventID)
	require.InDelta(t, 120.5, trg.RA, 1e-9)
	require.InDelta(t, -30.25, trg.Dec, 1e-9)
	require.InDelta(t, 7200.0, trg.ExposureSec, 1e-12)
	require.Empty(t, trg.CalibratorID)
}

func TestBuilderBuildWithCalibrator(t *testing.T) {
	finder := &stubFinder{cal: Calibrator{ID: "3C286", RA: 202.78, Dec: 30.51, Unit: model.UnitDegree}}
	b := &Builder{
		Finder:                finder,
		ExposureSec:           7200,
		CalibratorExposureSec: 600,
	}
	ev := candidate()

	trg, err := b.Build(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, "3C286", trg.CalibratorID)
	require.InDelta(t, 202.78, trg.CalibratorRA, 1e-9)
	require.InDelta(t, 600.0, trg.CalibratorExposureSec, 1e-12)
	require.Equal(t, *ev.TimeObserved, finder.gotTime)
}

func TestBuilderBuildFinderError(t *testing.T) {
	b := &Builder{Finder: &stubFinder{err: errors.New("catalog offline")}}
	_, err := b.Build(context.Background(), candidate())
	require.Error(t, err)
}

func TestBuilderBuildNoPosition(t *testing.T) {
	ev := candidate()
	ev.ClearPosition()
	_, err := (&Builder{}).Build(context.Background(), ev)
	require.Error(t, err)
}
