package decode

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/skywatch/transient-gateway/internal/model"
)

// JSONFieldMap locates Event fields inside a JSON notice by nested key path.
// Empty paths mean the format does not carry that field.
type JSONFieldMap struct {
	ID        []string
	AlertType []string
	Time      []string
	RA        []string
	Dec       []string
	RAErr     []string
	DecErr    []string

	// TimeLayout defaults to RFC 3339.
	TimeLayout string
}

// GenericJSON covers the structurally simple JSON alert families (neutrino,
// X-ray, generic transients): fixed schema paths, no embedded skymap.
type GenericJSON struct {
	topic  string
	fields JSONFieldMap
	log    *zap.Logger
}

func NewGenericJSON(topic string, fields JSONFieldMap, log *zap.Logger) *GenericJSON {
	if log == nil {
		log = zap.NewNop()
	}
	return &GenericJSON{topic: topic, fields: fields, log: log}
}

type jsonRecord struct {
	doc    map[string]any
	fields JSONFieldMap
}

// nestedValue walks a nested key path through decoded JSON objects.
func nestedValue(doc map[string]any, path []string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	var cur any = doc
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func (r *jsonRecord) float(path []string) *float64 {
	v, ok := nestedValue(r.doc, path)
	if !ok {
		return nil
	}
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	return &f
}

// str returns a string field; a one-element string array counts too (some
// sources wrap identifiers in a list).
func (r *jsonRecord) str(path []string) string {
	v, ok := nestedValue(r.doc, path)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case []any:
		if len(s) > 0 {
			if first, ok := s[0].(string); ok {
				return first
			}
		}
	case float64:
		return fmt.Sprintf("%.0f", s)
	}
	return ""
}

func (r *jsonRecord) Position() (ra, dec *float64) {
	return r.float(r.fields.RA), r.float(r.fields.Dec)
}

func (r *jsonRecord) Time() (*time.Time, error) {
	s := r.str(r.fields.Time)
	if s == "" {
		return nil, nil
	}
	layout := r.fields.TimeLayout
	if layout == "" {
		layout = time.RFC3339
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

func (d *GenericJSON) Decode(raw []byte) (Record, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &jsonRecord{doc: doc, fields: d.fields}, nil
}

func (d *GenericJSON) Parse(rec Record) (*model.Event, error) {
	r, ok := rec.(*jsonRecord)
	if !ok {
		return nil, fmt.Errorf("json decoder: unexpected record type %T", rec)
	}
	id := r.str(d.fields.ID)
	if id == "" {
		return nil, fmt.Errorf("%w: %v", ErrMissingRequiredField, d.fields.ID)
	}

	ev := &model.Event{
		ID:         id,
		Topic:      d.topic,
		AlertType:  r.str(d.fields.AlertType),
		Actionable: true,
	}

	ra, dec := r.Position()
	if ra != nil && dec != nil {
		ev.SetPosition(*ra, *dec)
		ev.RAErr = r.float(d.fields.RAErr)
		ev.DecErr = r.float(d.fields.DecErr)
	} else {
		d.log.Debug("notice carries no position",
			zap.String("topic", d.topic), zap.String("id", id))
	}

	t, err := r.Time()
	if err != nil {
		// present but unparseable: keep the rest of the event
		d.log.Warn("unparseable event time",
			zap.String("topic", d.topic), zap.String("id", id), zap.Error(err))
	} else if t == nil {
		d.log.Debug("notice carries no event time",
			zap.String("topic", d.topic), zap.String("id", id))
	} else {
		ev.TimeObserved = t
	}

	return ev, nil
}
