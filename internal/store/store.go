// Package store persists events and triggers in a single-file sqlite
// database and answers the duplicate/proximity queries the ingestion loop
// needs. One writer process is assumed; every call is one transaction.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/skywatch/transient-gateway/internal/healpix"
	"github.com/skywatch/transient-gateway/internal/model"
)

var ErrNotFound = errors.New("not found")

const (
	DefaultNside      = 128 // about half a degree per pixel
	DefaultTimeWindow = 10 * time.Minute
	DefaultRetention  = 60 * time.Minute
)

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id                 TEXT PRIMARY KEY,
	topic              TEXT NOT NULL DEFAULT '',
	alert_type         TEXT NOT NULL DEFAULT '',
	time_observed      TIMESTAMP,
	time_created       TIMESTAMP NOT NULL,
	time_modified      TIMESTAMP NOT NULL,
	ra                 REAL,
	dec                REAL,
	unit               TEXT NOT NULL DEFAULT 'deg',
	ra_err             REAL,
	dec_err            REAL,
	dist_mean          REAL,
	dist_std           REAL,
	spatial_index      INTEGER,
	terrestrial_chance REAL,
	false_alarm_rate   REAL,
	has_neutron_star   REAL,
	has_remnant        REAL,
	actionable         INTEGER NOT NULL DEFAULT 0,
	skymap             BLOB
);
CREATE INDEX IF NOT EXISTS idx_events_spatial ON events(spatial_index);
CREATE INDEX IF NOT EXISTS idx_events_time ON events(time_observed);

CREATE TABLE IF NOT EXISTS triggers (
	id                      TEXT PRIMARY KEY,
	event_id                TEXT NOT NULL REFERENCES events(id),
	ra                      REAL NOT NULL,
	dec                     REAL NOT NULL,
	unit                    TEXT NOT NULL DEFAULT 'deg',
	exposure_sec            REAL NOT NULL,
	calibrator_id           TEXT NOT NULL DEFAULT '',
	calibrator_ra           REAL NOT NULL DEFAULT 0,
	calibrator_dec          REAL NOT NULL DEFAULT 0,
	calibrator_unit         TEXT NOT NULL DEFAULT 'deg',
	calibrator_exposure_sec REAL NOT NULL DEFAULT 0,
	created_at              TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_triggers_event ON triggers(event_id);
`

type Options struct {
	// Path of the sqlite file; empty uses a throwaway temp file.
	Path       string
	Nside      int
	TimeWindow time.Duration
	Retention  time.Duration
	Log        *zap.Logger
}

type Store struct {
	db         *sqlx.DB
	grid       *healpix.Grid
	timeWindow time.Duration
	retention  time.Duration
	log        *zap.Logger

	now func() time.Time
}

// Open connects to the sqlite file and creates the schema if absent.
func Open(opts Options) (*Store, error) {
	if opts.Nside <= 0 {
		opts.Nside = DefaultNside
	}
	if opts.TimeWindow <= 0 {
		opts.TimeWindow = DefaultTimeWindow
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Path == "" {
		f, err := os.CreateTemp("", "transient-gateway-*.db")
		if err != nil {
			return nil, fmt.Errorf("store: temp db: %w", err)
		}
		opts.Path = f.Name()
		_ = f.Close()
	}

	grid, err := healpix.New(opts.Nside)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	db, err := sqlx.Open("sqlite3", opts.Path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", opts.Path, err)
	}
	// single writer by design
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	s := &Store{
		db:         db,
		grid:       grid,
		timeWindow: opts.TimeWindow,
		retention:  opts.Retention,
		log:        opts.Log,
		now:        func() time.Time { return time.Now().UTC() },
	}
	if err := s.initSettings(opts.Nside); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// initSettings records the spatial resolution and process start time, and
// refuses to reuse a database indexed at a different resolution.
func (s *Store) initSettings(nside int) error {
	const q = `INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO NOTHING`
	if _, err := s.db.Exec(q, "healpix_nside", strconv.Itoa(nside)); err != nil {
		return fmt.Errorf("store: init settings: %w", err)
	}
	const upd = `INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := s.db.Exec(upd, "started_at", s.now().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("store: init settings: %w", err)
	}

	var stored string
	if err := s.db.Get(&stored, `SELECT value FROM settings WHERE key = ?`, "healpix_nside"); err != nil {
		return fmt.Errorf("store: read settings: %w", err)
	}
	if stored != strconv.Itoa(nside) {
		return fmt.Errorf("store: database indexed at nside=%s, configured nside=%d", stored, nside)
	}
	return nil
}

// Setting returns one settings value.
func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.GetContext(ctx, &v, `SELECT value FROM settings WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return v, err
}

// bucketFor computes the spatial index for the event's position. An
// out-of-range position clears the position-dependent fields; the rest of
// the event is still stored.
func (s *Store) bucketFor(ev *model.Event) {
	ev.SpatialIndex = nil
	if !ev.HasPosition() {
		// a half-set pair must not update one coordinate under a stale index
		if ev.RA != nil || ev.Dec != nil {
			s.log.Warn("incomplete position, dropping position fields", zap.String("id", ev.ID))
			ev.ClearPosition()
		}
		return
	}
	pix, err := s.grid.Bucket(*ev.RA, *ev.Dec)
	if err != nil {
		var ice *healpix.InvalidCoordinateError
		if errors.As(err, &ice) {
			s.log.Warn("invalid coordinate, dropping position fields",
				zap.String("id", ev.ID), zap.Float64("ra", ice.RA), zap.Float64("dec", ice.Dec))
			ev.ClearPosition()
			return
		}
		// nside is validated at open, Bucket cannot fail otherwise
		ev.ClearPosition()
		return
	}
	ev.SpatialIndex = &pix
}

// Upsert inserts the event, or updates the existing row with the same id.
// Fields the incoming event leaves empty keep their stored values (a
// retraction must not erase a previously delivered localization);
// alert_type, topic and actionable always follow the latest message.
// time_created is set once, time_modified advances on every call.
func (s *Store) Upsert(ctx context.Context, ev *model.Event) error {
	s.bucketFor(ev)
	now := s.now()
	ev.TimeModified = now
	if ev.TimeObserved != nil {
		t := ev.TimeObserved.UTC()
		ev.TimeObserved = &t
	}

	const q = `
	INSERT INTO events (
		id, topic, alert_type, time_observed, time_created, time_modified,
		ra, dec, unit, ra_err, dec_err, dist_mean, dist_std, spatial_index,
		terrestrial_chance, false_alarm_rate, has_neutron_star, has_remnant,
		actionable, skymap
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		topic              = excluded.topic,
		alert_type         = excluded.alert_type,
		time_observed      = COALESCE(excluded.time_observed, events.time_observed),
		time_modified      = excluded.time_modified,
		ra                 = COALESCE(excluded.ra, events.ra),
		dec                = COALESCE(excluded.dec, events.dec),
		unit               = CASE WHEN excluded.ra IS NULL THEN events.unit ELSE excluded.unit END,
		ra_err             = COALESCE(excluded.ra_err, events.ra_err),
		dec_err            = COALESCE(excluded.dec_err, events.dec_err),
		dist_mean          = COALESCE(excluded.dist_mean, events.dist_mean),
		dist_std           = COALESCE(excluded.dist_std, events.dist_std),
		spatial_index      = COALESCE(excluded.spatial_index, events.spatial_index),
		terrestrial_chance = COALESCE(excluded.terrestrial_chance, events.terrestrial_chance),
		false_alarm_rate   = COALESCE(excluded.false_alarm_rate, events.false_alarm_rate),
		has_neutron_star   = COALESCE(excluded.has_neutron_star, events.has_neutron_star),
		has_remnant        = COALESCE(excluded.has_remnant, events.has_remnant),
		actionable         = excluded.actionable,
		skymap             = COALESCE(excluded.skymap, events.skymap)
	`
	unit := ev.Unit
	if unit == "" {
		unit = model.UnitDegree
	}
	_, err := s.db.ExecContext(ctx, q,
		ev.ID, ev.Topic, ev.AlertType, ev.TimeObserved, now, now,
		ev.RA, ev.Dec, unit, ev.RAErr, ev.DecErr, ev.DistMean, ev.DistStd, ev.SpatialIndex,
		ev.TerrestrialChance, ev.FalseAlarmRate, ev.HasNeutronStar, ev.HasRemnant,
		ev.Actionable, ev.Skymap,
	)
	if err != nil {
		return fmt.Errorf("store: upsert %s: %w", ev.ID, err)
	}

	// sync bookkeeping back onto the caller's event
	if err := s.db.GetContext(ctx, &ev.TimeCreated,
		`SELECT time_created FROM events WHERE id = ?`, ev.ID); err != nil {
		return fmt.Errorf("store: upsert %s: read back: %w", ev.ID, err)
	}
	return nil
}

// Get returns the stored event or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*model.Event, error) {
	var ev model.Event
	err := s.db.GetContext(ctx, &ev, `SELECT * FROM events WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", id, err)
	}
	return &ev, nil
}

// IsDuplicate reports whether an event with the same id is already stored.
func (s *Store) IsDuplicate(ctx context.Context, ev *model.Event) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(1) FROM events WHERE id = ?`, ev.ID)
	if err != nil {
		return false, fmt.Errorf("store: duplicate check %s: %w", ev.ID, err)
	}
	return n > 0, nil
}

// FindNearInPosition returns stored events whose spatial index falls in the
// neighborhood (the bucket itself plus its adjacent buckets) of the given
// event's position. Events without position match nothing.
func (s *Store) FindNearInPosition(ctx context.Context, ev *model.Event) ([]model.Event, error) {
	if !ev.HasPosition() {
		return nil, nil
	}
	pix, err := s.grid.Bucket(*ev.RA, *ev.Dec)
	if err != nil {
		return nil, nil
	}
	neighborhood := s.grid.Neighbors(pix)

	query, args, err := sqlx.In(
		`SELECT * FROM events WHERE spatial_index IN (?)`, neighborhood)
	if err != nil {
		return nil, fmt.Errorf("store: near-in-position: %w", err)
	}
	var out []model.Event
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("store: near-in-position: %w", err)
	}
	return out, nil
}

// FindNearInTime returns stored events observed within the window around the
// event's observed time. window <= 0 uses the configured default.
func (s *Store) FindNearInTime(ctx context.Context, ev *model.Event, window time.Duration) ([]model.Event, error) {
	if ev.TimeObserved == nil {
		return nil, nil
	}
	if window <= 0 {
		window = s.timeWindow
	}
	t := ev.TimeObserved.UTC()
	var out []model.Event
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM events WHERE time_observed BETWEEN ? AND ?`,
		t.Add(-window), t.Add(window))
	if err != nil {
		return nil, fmt.Errorf("store: near-in-time: %w", err)
	}
	return out, nil
}

// Cleanup deletes events observed before now-retention and returns the
// number of rows removed. retention <= 0 uses the configured default.
func (s *Store) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = s.retention
	}
	cutoff := s.now().Add(-retention)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM events WHERE time_observed < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: cleanup: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.log.Info("retention sweep", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// InsertTrigger stores a follow-up request. The referenced event must exist;
// the check and the insert run in one transaction.
func (s *Store) InsertTrigger(ctx context.Context, trg *model.Trigger) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: insert trigger: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.GetContext(ctx, &n,
		`SELECT COUNT(1) FROM events WHERE id = ?`, trg.EventID); err != nil {
		return fmt.Errorf("store: insert trigger: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: insert trigger %s: event %s: %w", trg.ID, trg.EventID, ErrNotFound)
	}

	if trg.CreatedAt.IsZero() {
		trg.CreatedAt = s.now()
	}
	const q = `
	INSERT INTO triggers (
		id, event_id, ra, dec, unit, exposure_sec,
		calibrator_id, calibrator_ra, calibrator_dec, calibrator_unit,
		calibrator_exposure_sec, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, q,
		trg.ID, trg.EventID, trg.RA, trg.Dec, trg.Unit, trg.ExposureSec,
		trg.CalibratorID, trg.CalibratorRA, trg.CalibratorDec, trg.CalibratorUnit,
		trg.CalibratorExposureSec, trg.CreatedAt,
	); err != nil {
		return fmt.Errorf("store: insert trigger %s: %w", trg.ID, err)
	}
	return tx.Commit()
}

// GetTrigger returns a trigger by id or ErrNotFound.
func (s *Store) GetTrigger(ctx context.Context, id string) (*model.Trigger, error) {
	var trg model.Trigger
	err := s.db.GetContext(ctx, &trg, `SELECT * FROM triggers WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get trigger %s: %w", id, err)
	}
	return &trg, nil
}

// TriggersForEvent lists triggers issued for one event.
func (s *Store) TriggersForEvent(ctx context.Context, eventID string) ([]model.Trigger, error) {
	var out []model.Trigger
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM triggers WHERE event_id = ? ORDER BY created_at`, eventID)
	if err != nil {
		return nil, fmt.Errorf("store: triggers for %s: %w", eventID, err)
	}
	return out, nil
}

// HasTriggerForEvent reports whether any trigger was already issued for the
// event (at most one follow-up per superevent).
func (s *Store) HasTriggerForEvent(ctx context.Context, eventID string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(1) FROM triggers WHERE event_id = ?`, eventID)
	if err != nil {
		return false, fmt.Errorf("store: trigger check %s: %w", eventID, err)
	}
	return n > 0, nil
}

// RecentEvents returns the most recently modified events, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []model.Event
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM events ORDER BY time_modified DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent events: %w", err)
	}
	return out, nil
}
