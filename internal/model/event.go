package model

import "time"

// Alert lifecycle stages as reported by sources. The set is open; only
// RETRACTION carries special handling.
const (
	AlertPreliminary = "PRELIMINARY"
	AlertInitial     = "INITIAL"
	AlertUpdate      = "UPDATE"
	AlertRetraction  = "RETRACTION"
)

// UnitDegree is the angular unit used everywhere internally.
const UnitDegree = "deg"

// Event is the normalized representation of one notice, persisted in the
// events table. Optional fields are pointers; nil means the source did not
// supply the value.
type Event struct {
	ID           string     `db:"id" json:"id"`
	Topic        string     `db:"topic" json:"topic"`
	AlertType    string     `db:"alert_type" json:"alert_type"`
	TimeObserved *time.Time `db:"time_observed" json:"time_observed,omitempty"`
	TimeCreated  time.Time  `db:"time_created" json:"time_created"`
	TimeModified time.Time  `db:"time_modified" json:"time_modified"`

	RA     *float64 `db:"ra" json:"ra,omitempty"`
	Dec    *float64 `db:"dec" json:"dec,omitempty"`
	Unit   string   `db:"unit" json:"unit"`
	RAErr  *float64 `db:"ra_err" json:"ra_err,omitempty"`
	DecErr *float64 `db:"dec_err" json:"dec_err,omitempty"`

	DistMean *float64 `db:"dist_mean" json:"dist_mean,omitempty"`
	DistStd  *float64 `db:"dist_std" json:"dist_std,omitempty"`

	// SpatialIndex is derived from RA/Dec by the store; nil while the
	// position is unknown.
	SpatialIndex *int64 `db:"spatial_index" json:"spatial_index,omitempty"`

	TerrestrialChance *float64 `db:"terrestrial_chance" json:"terrestrial_chance,omitempty"`
	FalseAlarmRate    *float64 `db:"false_alarm_rate" json:"false_alarm_rate,omitempty"`
	HasNeutronStar    *float64 `db:"has_neutron_star" json:"has_neutron_star,omitempty"`
	HasRemnant        *float64 `db:"has_remnant" json:"has_remnant,omitempty"`

	// Actionable is false for events filtered out by the accept predicate
	// (wrong detection group, unwanted id prefix) and for retractions; such
	// events are still stored for bookkeeping.
	Actionable bool `db:"actionable" json:"actionable"`

	Skymap []byte `db:"skymap" json:"-"`
}

func (e *Event) HasPosition() bool {
	return e.RA != nil && e.Dec != nil
}

// SetPosition fills RA/Dec in degrees.
func (e *Event) SetPosition(ra, dec float64) {
	e.RA = &ra
	e.Dec = &dec
	e.Unit = UnitDegree
}

// ClearPosition drops the position and everything derived from it.
func (e *Event) ClearPosition() {
	e.RA = nil
	e.Dec = nil
	e.RAErr = nil
	e.DecErr = nil
	e.SpatialIndex = nil
}

func Float(v float64) *float64 { return &v }
