package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	NoticesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_notices_total",
			Help: "Notices routed to a decoder, by topic",
		},
		[]string{"topic"},
	)

	DecodeFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_decode_failures_total",
			Help: "Decode/parse failures by topic and error kind",
		},
		[]string{"topic", "kind"}, // unknown_format|malformed_payload|missing_required_field
	)

	EventsStoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_events_stored_total",
			Help: "Events upserted into the store, by topic",
		},
		[]string{"topic"},
	)

	NoticesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_notices_dropped_total",
			Help: "Notices read but not processed, by topic and reason",
		},
		[]string{"topic", "reason"}, // limit|transport_error|storage_error
	)

	TriggersIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_triggers_issued_total",
			Help: "Follow-up triggers inserted into the store",
		},
	)

	RetentionDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_retention_deleted_total",
			Help: "Events removed by retention sweeps",
		},
	)
)

var registerOnce sync.Once

func MustRegister(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			NoticesTotal,
			DecodeFailuresTotal,
			EventsStoredTotal,
			NoticesDroppedTotal,
			TriggersIssuedTotal,
			RetentionDeletedTotal,
		)
	})
}
