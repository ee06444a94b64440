package decode

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/skywatch/transient-gateway/internal/model"
	"github.com/skywatch/transient-gateway/internal/skymap"
)

// gwTimeLayout is the event-time format used in gravitational-wave notices:
// ISO-8601 with fractional seconds, e.g. "2018-11-01T22:22:46.654Z".
const gwTimeLayout = time.RFC3339

// GravitationalWave decodes LVK-style JSON alerts: superevent id, alert
// lifecycle stage, detection group and an embedded base64 FITS skymap.
type GravitationalWave struct {
	topic            string
	acceptGroups     []string
	acceptIDPrefixes []string
	log              *zap.Logger
}

func NewGravitationalWave(topic string, opts Options) *GravitationalWave {
	return &GravitationalWave{
		topic:            topic,
		acceptGroups:     opts.AcceptGroups,
		acceptIDPrefixes: opts.AcceptIDPrefixes,
		log:              opts.logger(),
	}
}

type gwRecord struct {
	AlertType    string       `json:"alert_type"`
	SupereventID string       `json:"superevent_id"`
	TimeCreated  string       `json:"time_created"`
	Event        *gwEventData `json:"event"`

	// filled lazily by Position()
	parsedMap *skymap.Skymap
}

type gwEventData struct {
	Time           string             `json:"time"`
	Group          string             `json:"group"`
	Pipeline       string             `json:"pipeline"`
	FAR            *float64           `json:"far"`
	Skymap         string             `json:"skymap"`
	Classification map[string]float64 `json:"classification"`
	Properties     map[string]float64 `json:"properties"`
}

func (r *gwRecord) Position() (ra, dec *float64) {
	if r.parsedMap == nil {
		return nil, nil
	}
	lon, lat, err := r.parsedMap.MaxProbPosition()
	if err != nil {
		return nil, nil
	}
	return &lon, &lat
}

func (r *gwRecord) Time() (*time.Time, error) {
	if r.Event == nil || r.Event.Time == "" {
		return nil, nil
	}
	t, err := time.Parse(gwTimeLayout, r.Event.Time)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

func (d *GravitationalWave) Decode(raw []byte) (Record, error) {
	var rec gwRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &rec, nil
}

func (d *GravitationalWave) accepts(rec *gwRecord) bool {
	if len(d.acceptIDPrefixes) > 0 {
		ok := false
		for _, p := range d.acceptIDPrefixes {
			if len(rec.SupereventID) >= len(p) && rec.SupereventID[:len(p)] == p {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(d.acceptGroups) > 0 {
		if rec.Event == nil {
			return false
		}
		for _, g := range d.acceptGroups {
			if rec.Event.Group == g {
				return true
			}
		}
		return false
	}
	return true
}

func (d *GravitationalWave) Parse(rec Record) (*model.Event, error) {
	r, ok := rec.(*gwRecord)
	if !ok {
		return nil, fmt.Errorf("gravitational-wave decoder: unexpected record type %T", rec)
	}
	if r.SupereventID == "" {
		return nil, fmt.Errorf("%w: superevent_id", ErrMissingRequiredField)
	}

	ev := &model.Event{
		ID:        r.SupereventID,
		Topic:     d.topic,
		AlertType: r.AlertType,
	}

	// Retractions are not guaranteed to carry a skymap or classification;
	// record the lifecycle change and stop.
	if r.AlertType == model.AlertRetraction {
		d.log.Info("superevent retracted", zap.String("id", r.SupereventID))
		return ev, nil
	}

	if !d.accepts(r) {
		// stored for bookkeeping, flagged not actionable
		d.log.Debug("event filtered by accept predicate",
			zap.String("id", r.SupereventID))
		return ev, nil
	}
	ev.Actionable = true

	t, err := r.Time()
	if err != nil {
		return nil, fmt.Errorf("%w: event time %q: %v", ErrMalformedPayload, r.Event.Time, err)
	}
	ev.TimeObserved = t

	if r.Event != nil && r.Event.Skymap != "" {
		mapBytes, err := base64.StdEncoding.DecodeString(r.Event.Skymap)
		if err != nil {
			d.log.Warn("skymap base64 decode failed",
				zap.String("id", r.SupereventID), zap.Error(err))
		} else if m, err := skymap.Parse(mapBytes); err != nil {
			d.log.Warn("skymap parse failed",
				zap.String("id", r.SupereventID), zap.Error(err))
		} else {
			r.parsedMap = m
			ev.Skymap = m.Raw
			if ra, dec := r.Position(); ra != nil && dec != nil {
				ev.SetPosition(*ra, *dec)
			} else {
				d.log.Warn("skymap has no usable position",
					zap.String("id", r.SupereventID))
			}
			if mean, std, ok := m.Distance(); ok {
				ev.DistMean = &mean
				ev.DistStd = &std
			} else {
				d.log.Debug("skymap carries no 3-D localization",
					zap.String("id", r.SupereventID))
			}
		}
	}

	if r.Event != nil {
		if v, ok := r.Event.Classification["Terrestrial"]; ok {
			ev.TerrestrialChance = &v
		}
		if r.Event.FAR != nil {
			ev.FalseAlarmRate = r.Event.FAR
		}
		if v, ok := r.Event.Properties["HasNS"]; ok {
			ev.HasNeutronStar = &v
		}
		if v, ok := r.Event.Properties["HasRemnant"]; ok {
			ev.HasRemnant = &v
		}
	}

	return ev, nil
}
