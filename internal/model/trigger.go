package model

import "time"

// Trigger records a follow-up observation request issued for an Event.
// Append-mostly: rows are rarely touched after insert.
type Trigger struct {
	ID      string `db:"id" json:"id"` // ULID
	EventID string `db:"event_id" json:"event_id"`

	RA          float64 `db:"ra" json:"ra"`
	Dec         float64 `db:"dec" json:"dec"`
	Unit        string  `db:"unit" json:"unit"`
	ExposureSec float64 `db:"exposure_sec" json:"exposure_sec"`

	CalibratorID          string  `db:"calibrator_id" json:"calibrator_id,omitempty"`
	CalibratorRA          float64 `db:"calibrator_ra" json:"calibrator_ra,omitempty"`
	CalibratorDec         float64 `db:"calibrator_dec" json:"calibrator_dec,omitempty"`
	CalibratorUnit        string  `db:"calibrator_unit" json:"calibrator_unit,omitempty"`
	CalibratorExposureSec float64 `db:"calibrator_exposure_sec" json:"calibrator_exposure_sec,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
