package decode

import (
	"go.uber.org/zap"
)

// Registry maps format keys (topic names) to decoder factories. It is
// populated once at startup and read-only afterwards; the ingestion loop is
// single-threaded, so no locking is needed.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register associates every format key with the factory. Re-registering a
// key overwrites silently: last registration wins, which lets tests swap a
// default decoder.
func (r *Registry) Register(formats []string, f Factory) {
	for _, key := range formats {
		r.factories[key] = f
	}
}

// Resolve returns the factory for a format key.
func (r *Registry) Resolve(format string) (Factory, error) {
	f, ok := r.factories[format]
	if !ok {
		return nil, &UnknownFormatError{Format: format}
	}
	return f, nil
}

// Formats returns the registered format keys (subscription candidates).
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	return out
}

// Options configures the default decoder set.
type Options struct {
	// AcceptGroups lists gravitational-wave detection groups (e.g. "CBC",
	// "Burst") that produce actionable events. Empty accepts all.
	AcceptGroups []string
	// AcceptIDPrefixes limits actionable superevent ids by prefix (e.g.
	// "MS" for mock events, "S" for real ones). Empty accepts all.
	AcceptIDPrefixes []string

	Log *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Log == nil {
		return zap.NewNop()
	}
	return o.Log
}

// Build returns a registry with every known alert family registered. Called
// explicitly at process start; nothing registers itself at import time.
func Build(opts Options) *Registry {
	log := opts.logger()
	r := NewRegistry()

	r.Register([]string{"igwn.gwalert"}, func(topic string) Decoder {
		return NewGravitationalWave(topic, opts)
	})

	jsonFamilies := []struct {
		formats []string
		fields  JSONFieldMap
	}{
		{
			formats: []string{"gcn.notices.einstein_probe.wxt.alert"},
			fields: JSONFieldMap{
				ID:     []string{"id"},
				Time:   []string{"trigger_time"},
				RA:     []string{"ra"},
				Dec:    []string{"dec"},
				RAErr:  []string{"ra_dec_error"},
				DecErr: []string{"ra_dec_error"},
			},
		},
		{
			formats: []string{"gcn.notices.icecube.lvk_nu_track_search"},
			fields: JSONFieldMap{
				ID:   []string{"ref_id"},
				Time: []string{"trigger_time"},
				RA:   []string{"most_probable_direction", "ra"},
				Dec:  []string{"most_probable_direction", "dec"},
			},
		},
		{
			formats: []string{"gcn.notices.svom"},
			fields: JSONFieldMap{
				ID:     []string{"burst_id"},
				Time:   []string{"trigger_time"},
				RA:     []string{"ra"},
				Dec:    []string{"dec"},
				RAErr:  []string{"error_radius"},
				DecErr: []string{"error_radius"},
			},
		},
		{
			formats: []string{"gcn.notices.swift.bat.guano"},
			fields: JSONFieldMap{
				ID:        []string{"id"},
				AlertType: []string{"alert_type"},
				Time:      []string{"trigger_time"},
				RA:        []string{"ra"},
				Dec:       []string{"dec"},
			},
		},
	}
	for _, fam := range jsonFamilies {
		fields := fam.fields
		r.Register(fam.formats, func(topic string) Decoder {
			return NewGenericJSON(topic, fields, log)
		})
	}

	r.Register([]string{
		"gcn.classic.voevent.swift_bat_grb_pos_ack",
		"gcn.classic.voevent.fermi_gbm_flt_pos",
		"gcn.classic.voevent.integral_wakeup",
	}, func(topic string) Decoder {
		return NewGenericVOEvent(topic, log)
	})

	return r
}
