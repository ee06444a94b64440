package decode

import (
	"encoding/xml"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/skywatch/transient-gateway/internal/model"
)

// GenericVOEvent decodes XML VOEvent notices. Position and time live at the
// fixed path WhereWhen/ObsDataLocation/ObservationLocation/AstroCoords; the
// coordinate names are checked against "RA"/"Dec" before the values are
// trusted.
type GenericVOEvent struct {
	topic string
	log   *zap.Logger
}

func NewGenericVOEvent(topic string, log *zap.Logger) *GenericVOEvent {
	if log == nil {
		log = zap.NewNop()
	}
	return &GenericVOEvent{topic: topic, log: log}
}

type voPosition2D struct {
	Name1  string `xml:"Name1"`
	Name2  string `xml:"Name2"`
	Value2 struct {
		C1 float64 `xml:"C1"`
		C2 float64 `xml:"C2"`
	} `xml:"Value2"`
	Error2Radius *float64 `xml:"Error2Radius"`
}

type voeventRecord struct {
	XMLName xml.Name `xml:"VOEvent"`
	IVORN   string   `xml:"ivorn,attr"`
	Role    string   `xml:"role,attr"`

	WhereWhen struct {
		ObsDataLocation struct {
			ObservationLocation struct {
				AstroCoords struct {
					Time struct {
						TimeInstant struct {
							ISOTime string `xml:"ISOTime"`
						} `xml:"TimeInstant"`
					} `xml:"Time"`
					Position2D *voPosition2D `xml:"Position2D"`
				} `xml:"AstroCoords"`
			} `xml:"ObservationLocation"`
		} `xml:"ObsDataLocation"`
	} `xml:"WhereWhen"`
}

func (r *voeventRecord) position2D() *voPosition2D {
	return r.WhereWhen.ObsDataLocation.ObservationLocation.AstroCoords.Position2D
}

func (r *voeventRecord) Position() (ra, dec *float64) {
	p := r.position2D()
	if p == nil || p.Name1 != "RA" || p.Name2 != "Dec" {
		return nil, nil
	}
	return &p.Value2.C1, &p.Value2.C2
}

func (r *voeventRecord) Time() (*time.Time, error) {
	iso := r.WhereWhen.ObsDataLocation.ObservationLocation.AstroCoords.Time.TimeInstant.ISOTime
	if iso == "" {
		return nil, nil
	}
	// classic notices omit the zone designator; times are UTC
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		t, err = time.ParseInLocation("2006-01-02T15:04:05.999999999", iso, time.UTC)
		if err != nil {
			return nil, err
		}
	}
	t = t.UTC()
	return &t, nil
}

func (d *GenericVOEvent) Decode(raw []byte) (Record, error) {
	var rec voeventRecord
	if err := xml.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &rec, nil
}

func (d *GenericVOEvent) Parse(rec Record) (*model.Event, error) {
	r, ok := rec.(*voeventRecord)
	if !ok {
		return nil, fmt.Errorf("voevent decoder: unexpected record type %T", rec)
	}
	if r.IVORN == "" {
		return nil, fmt.Errorf("%w: ivorn", ErrMissingRequiredField)
	}

	ev := &model.Event{
		ID:         r.IVORN,
		Topic:      d.topic,
		Actionable: true,
	}

	ra, dec := r.Position()
	if ra != nil && dec != nil {
		ev.SetPosition(*ra, *dec)
		if p := r.position2D(); p.Error2Radius != nil {
			ev.RAErr = p.Error2Radius
			ev.DecErr = p.Error2Radius
		}
	} else {
		d.log.Debug("voevent carries no trusted position",
			zap.String("topic", d.topic), zap.String("id", r.IVORN))
	}

	t, err := r.Time()
	if err != nil {
		d.log.Warn("unparseable ISOTime",
			zap.String("topic", d.topic), zap.String("id", r.IVORN), zap.Error(err))
	} else if t != nil {
		ev.TimeObserved = t
	}

	return ev, nil
}
