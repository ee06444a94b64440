package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skywatch/transient-gateway/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{Path: filepath.Join(t.TempDir(), "events.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func fullEvent(id string, ra, dec float64, observed time.Time) *model.Event {
	ev := &model.Event{
		ID:                id,
		Topic:             "igwn.gwalert",
		AlertType:         model.AlertPreliminary,
		TimeObserved:      &observed,
		TerrestrialChance: model.Float(0.001),
		FalseAlarmRate:    model.Float(1e-9),
		HasNeutronStar:    model.Float(0.9),
		HasRemnant:        model.Float(0.5),
		DistMean:          model.Float(100),
		DistStd:           model.Float(10),
		Actionable:        true,
		Skymap:            []byte{0x01, 0x02},
	}
	ev.SetPosition(ra, dec)
	return ev
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	s1, err := Open(Options{Path: path})
	require.NoError(t, err)
	require.NoError(t, s1.Close())
	s2, err := Open(Options{Path: path})
	require.NoError(t, err)
	defer s2.Close()

	v, err := s2.Setting(context.Background(), "healpix_nside")
	require.NoError(t, err)
	require.Equal(t, "128", v)
	_, err = s2.Setting(context.Background(), "started_at")
	require.NoError(t, err)
}

func TestOpenRejectsNsideMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	s, err := Open(Options{Path: path, Nside: 128})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(Options{Path: path, Nside: 64})
	require.Error(t, err)
}

func TestUpsertInsertThenUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	obs1 := time.Date(2024, 3, 1, 21, 46, 5, 0, time.UTC)

	e1 := fullEvent("MS999999", 120.0, 15.0, obs1)
	require.NoError(t, s.Upsert(ctx, e1))
	created := e1.TimeCreated
	require.False(t, created.IsZero())

	obs2 := obs1.Add(time.Second)
	e2 := fullEvent("MS999999", 121.0, 16.0, obs2)
	e2.AlertType = model.AlertUpdate
	e2.DistMean = model.Float(110)
	e2.DistStd = model.Float(12)
	require.NoError(t, s.Upsert(ctx, e2))

	got, err := s.Get(ctx, "MS999999")
	require.NoError(t, err)
	require.Equal(t, model.AlertUpdate, got.AlertType)
	require.InDelta(t, 121.0, *got.RA, 1e-9)
	require.InDelta(t, 16.0, *got.Dec, 1e-9)
	require.InDelta(t, 110.0, *got.DistMean, 1e-9)
	require.WithinDuration(t, obs2, *got.TimeObserved, time.Millisecond)
	require.WithinDuration(t, created, got.TimeCreated, time.Millisecond)
	require.True(t, !got.TimeModified.Before(got.TimeCreated))

	// exactly one row
	dup, err := s.IsDuplicate(ctx, e2)
	require.NoError(t, err)
	require.True(t, dup)
	recent, err := s.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
}

func TestUpsertSpatialIndexTracksPosition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	obs := time.Now().UTC()

	ev := fullEvent("EV1", 120.0, 15.0, obs)
	require.NoError(t, s.Upsert(ctx, ev))
	got, err := s.Get(ctx, "EV1")
	require.NoError(t, err)
	require.NotNil(t, got.SpatialIndex)
	want, err := s.grid.Bucket(120.0, 15.0)
	require.NoError(t, err)
	require.Equal(t, want, *got.SpatialIndex)

	// moving the position far away moves the bucket
	moved := fullEvent("EV1", 240.0, -40.0, obs)
	require.NoError(t, s.Upsert(ctx, moved))
	got, err = s.Get(ctx, "EV1")
	require.NoError(t, err)
	want, err = s.grid.Bucket(240.0, -40.0)
	require.NoError(t, err)
	require.Equal(t, want, *got.SpatialIndex)
}

func TestRetractionPreservesLocalization(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	obs := time.Now().UTC()

	full := fullEvent("MS999999", 120.0, 15.0, obs)
	require.NoError(t, s.Upsert(ctx, full))

	retraction := &model.Event{
		ID:        "MS999999",
		Topic:     "igwn.gwalert",
		AlertType: model.AlertRetraction,
	}
	require.NoError(t, s.Upsert(ctx, retraction))

	got, err := s.Get(ctx, "MS999999")
	require.NoError(t, err)
	require.Equal(t, model.AlertRetraction, got.AlertType)
	require.False(t, got.Actionable)
	require.True(t, got.HasPosition())
	require.InDelta(t, 120.0, *got.RA, 1e-9)
	require.InDelta(t, 15.0, *got.Dec, 1e-9)
	require.NotNil(t, got.DistMean)
	require.InDelta(t, 100.0, *got.DistMean, 1e-9)
	require.NotNil(t, got.SpatialIndex)
	require.NotNil(t, got.TimeObserved)
}

func TestInvalidCoordinateKeepsRestOfEvent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	obs := time.Now().UTC()

	ev := fullEvent("EV-BAD", 10.0, 95.0, obs) // dec out of range
	require.NoError(t, s.Upsert(ctx, ev))

	got, err := s.Get(ctx, "EV-BAD")
	require.NoError(t, err)
	require.False(t, got.HasPosition())
	require.Nil(t, got.SpatialIndex)
	require.Equal(t, model.AlertPreliminary, got.AlertType)
	require.NotNil(t, got.TimeObserved)
}

func TestUpsertHalfSetPositionLeavesRowConsistent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	obs := time.Now().UTC()

	e1 := fullEvent("EV-HALF", 120.0, 15.0, obs)
	require.NoError(t, s.Upsert(ctx, e1))
	wantIdx := *e1.SpatialIndex

	// a lone RA must not overwrite one coordinate under the old index
	e2 := &model.Event{
		ID:         "EV-HALF",
		Topic:      "igwn.gwalert",
		AlertType:  model.AlertUpdate,
		RA:         model.Float(240.0),
		Actionable: true,
	}
	require.NoError(t, s.Upsert(ctx, e2))

	got, err := s.Get(ctx, "EV-HALF")
	require.NoError(t, err)
	require.True(t, got.HasPosition())
	require.InDelta(t, 120.0, *got.RA, 1e-9)
	require.InDelta(t, 15.0, *got.Dec, 1e-9)
	require.NotNil(t, got.SpatialIndex)
	require.Equal(t, wantIdx, *got.SpatialIndex)
}

func TestFindNearInPosition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	obs := time.Now().UTC()

	require.NoError(t, s.Upsert(ctx, fullEvent("NEAR", 120.0, 15.0, obs)))
	require.NoError(t, s.Upsert(ctx, fullEvent("FAR", 300.0, -60.0, obs)))

	// query a position within half a bucket of NEAR
	probe := fullEvent("PROBE", 120.1, 15.05, obs)
	got, err := s.FindNearInPosition(ctx, probe)
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, e := range got {
		ids = append(ids, e.ID)
	}
	require.Contains(t, ids, "NEAR")
	require.NotContains(t, ids, "FAR")

	// no position, no matches
	blank := &model.Event{ID: "BLANK"}
	got, err = s.FindNearInPosition(ctx, blank)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestFindNearInTime(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	window := 10 * time.Minute

	require.NoError(t, s.Upsert(ctx, fullEvent("AT-BASE", 10, 10, base)))
	require.NoError(t, s.Upsert(ctx, fullEvent("IN-WINDOW", 50, 10, base.Add(9*time.Minute))))
	require.NoError(t, s.Upsert(ctx, fullEvent("PAST-WINDOW", 90, 10, base.Add(window+time.Second))))

	probe := fullEvent("PROBE", 200, 0, base)
	got, err := s.FindNearInTime(ctx, probe, window)
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, e := range got {
		ids = append(ids, e.ID)
	}
	require.Contains(t, ids, "AT-BASE")
	require.Contains(t, ids, "IN-WINDOW")
	require.NotContains(t, ids, "PAST-WINDOW")

	// events without observed time match nothing
	blank := &model.Event{ID: "BLANK"}
	got, err = s.FindNearInTime(ctx, blank, window)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestCleanup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	retention := time.Hour
	now := time.Now().UTC()

	require.NoError(t, s.Upsert(ctx, fullEvent("OLD", 10, 10, now.Add(-2*retention))))
	require.NoError(t, s.Upsert(ctx, fullEvent("FRESH", 20, 20, now.Add(-retention/2))))

	deleted, err := s.Cleanup(ctx, retention)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	_, err = s.Get(ctx, "OLD")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "FRESH")
	require.NoError(t, err)
}

func TestCleanupSkipsEventsWithoutObservedTime(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, &model.Event{ID: "NO-TIME", Topic: "t"}))
	deleted, err := s.Cleanup(ctx, time.Minute)
	require.NoError(t, err)
	require.Zero(t, deleted)
	_, err = s.Get(ctx, "NO-TIME")
	require.NoError(t, err)
}

func TestTriggers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	obs := time.Now().UTC()

	trg := &model.Trigger{
		ID: "01J0TRIGGER", EventID: "MISSING",
		RA: 1, Dec: 2, Unit: model.UnitDegree, ExposureSec: 3600,
	}
	require.ErrorIs(t, s.InsertTrigger(ctx, trg), ErrNotFound)

	require.NoError(t, s.Upsert(ctx, fullEvent("MS999999", 120, 15, obs)))
	trg.EventID = "MS999999"
	trg.CalibratorID = "3C196"
	trg.CalibratorRA = 123.4
	trg.CalibratorDec = 48.2
	trg.CalibratorUnit = model.UnitDegree
	trg.CalibratorExposureSec = 600
	require.NoError(t, s.InsertTrigger(ctx, trg))

	got, err := s.GetTrigger(ctx, "01J0TRIGGER")
	require.NoError(t, err)
	require.Equal(t, "MS999999", got.EventID)
	require.Equal(t, "3C196", got.CalibratorID)
	require.False(t, got.CreatedAt.IsZero())

	has, err := s.HasTriggerForEvent(ctx, "MS999999")
	require.NoError(t, err)
	require.True(t, has)

	list, err := s.TriggersForEvent(ctx, "MS999999")
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = s.GetTrigger(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
}
