// Package trigger decides whether a stored event warrants a follow-up
// observation and assembles the trigger record. Submitting the request to a
// telescope scheduler is someone else's job; the calibrator catalog is
// reached through the CalibratorFinder boundary.
package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/skywatch/transient-gateway/internal/model"
	"github.com/skywatch/transient-gateway/internal/util"
)

// Criteria holds the follow-up thresholds. A zero max threshold disables
// that check; a zero min threshold disables that check.
type Criteria struct {
	MinHasNeutronStar    float64
	MinHasRemnant        float64
	MaxTerrestrialChance float64
	MaxFalseAlarmRate    float64
}

// Satisfied reports whether the event warrants a follow-up observation.
// Retracted, filtered-out and unlocalized events never do.
func (c Criteria) Satisfied(ev *model.Event) bool {
	if !ev.Actionable || ev.AlertType == model.AlertRetraction || !ev.HasPosition() {
		return false
	}
	if c.MinHasNeutronStar > 0 {
		if ev.HasNeutronStar == nil || *ev.HasNeutronStar < c.MinHasNeutronStar {
			return false
		}
	}
	if c.MinHasRemnant > 0 {
		if ev.HasRemnant == nil || *ev.HasRemnant < c.MinHasRemnant {
			return false
		}
	}
	if c.MaxTerrestrialChance > 0 {
		if ev.TerrestrialChance == nil || *ev.TerrestrialChance > c.MaxTerrestrialChance {
			return false
		}
	}
	if c.MaxFalseAlarmRate > 0 {
		if ev.FalseAlarmRate == nil || *ev.FalseAlarmRate > c.MaxFalseAlarmRate {
			return false
		}
	}
	return true
}

// Calibrator is a reference source chosen for a follow-up observation.
type Calibrator struct {
	ID   string
	RA   float64
	Dec  float64
	Unit string
}

// CalibratorFinder picks the calibrator for a target position at an
// observation time. Implementations live outside the gateway core.
type CalibratorFinder interface {
	Nearest(ctx context.Context, ra, dec float64, t time.Time) (Calibrator, error)
}

// Builder assembles Trigger records for events passing the criteria.
type Builder struct {
	Criteria              Criteria
	Finder                CalibratorFinder // optional
	ExposureSec           float64
	CalibratorExposureSec float64
}

// Build creates a trigger for the event. The event must carry a position.
func (b *Builder) Build(ctx context.Context, ev *model.Event) (*model.Trigger, error) {
	if !ev.HasPosition() {
		return nil, fmt.Errorf("trigger: event %s has no position", ev.ID)
	}
	trg := &model.Trigger{
		ID:          util.NewULID(),
		EventID:     ev.ID,
		RA:          *ev.RA,
		Dec:         *ev.Dec,
		Unit:        ev.Unit,
		ExposureSec: b.ExposureSec,
	}
	if b.Finder != nil {
		when := time.Now().UTC()
		if ev.TimeObserved != nil {
			when = *ev.TimeObserved
		}
		cal, err := b.Finder.Nearest(ctx, *ev.RA, *ev.Dec, when)
		if err != nil {
			return nil, fmt.Errorf("trigger: calibrator for %s: %w", ev.ID, err)
		}
		trg.CalibratorID = cal.ID
		trg.CalibratorRA = cal.RA
		trg.CalibratorDec = cal.Dec
		trg.CalibratorUnit = cal.Unit
		trg.CalibratorExposureSec = b.CalibratorExposureSec
	}
	return trg, nil
}
