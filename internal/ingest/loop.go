// Package ingest runs the single-threaded poll/decode/store loop. One loop
// per process; messages are processed strictly in delivery order and no
// error kind terminates the loop.
package ingest

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/skywatch/transient-gateway/internal/audit"
	"github.com/skywatch/transient-gateway/internal/decode"
	"github.com/skywatch/transient-gateway/internal/kafka"
	"github.com/skywatch/transient-gateway/internal/metrics"
	"github.com/skywatch/transient-gateway/internal/model"
	"github.com/skywatch/transient-gateway/internal/store"
	"github.com/skywatch/transient-gateway/internal/trigger"
)

// Consumer is the transport boundary the loop polls.
type Consumer interface {
	Poll(ctx context.Context, wait time.Duration) ([]kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

type Loop struct {
	Consumer Consumer
	Registry *decode.Registry
	Store    *store.Store
	Audit    *audit.Writer
	Trigger  *trigger.Builder // optional, nil disables follow-up issuance

	// Limits caps processed messages per topic; missing or negative means
	// unlimited. Over-limit messages are still drained from the poll but
	// neither decoded nor persisted.
	Limits map[string]int

	// Formats maps a topic to its registry format key when the two differ.
	// Topics not listed resolve under their own name.
	Formats map[string]string

	PollTimeout time.Duration // default 1s
	RunTimeout  time.Duration // <= 0 runs indefinitely

	Log *zap.Logger

	counts   map[string]int
	decoders map[string]decode.Decoder

	now func() time.Time
}

func (l *Loop) init() {
	if l.counts == nil {
		l.counts = make(map[string]int)
	}
	if l.decoders == nil {
		l.decoders = make(map[string]decode.Decoder)
	}
	if l.Log == nil {
		l.Log = zap.NewNop()
	}
	if l.PollTimeout <= 0 {
		l.PollTimeout = time.Second
	}
	if l.now == nil {
		l.now = func() time.Time { return time.Now().UTC() }
	}
}

// Count returns how many messages were processed for a topic.
func (l *Loop) Count(topic string) int { return l.counts[topic] }

// Run polls until the run timeout elapses or the context is cancelled.
// Cancellation is cooperative: it is checked once per poll cycle, never
// mid-message.
func (l *Loop) Run(ctx context.Context) error {
	l.init()
	if l.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.RunTimeout)
		defer cancel()
		l.Log.Info("listening", zap.Duration("run_timeout", l.RunTimeout))
	} else {
		l.Log.Info("listening indefinitely")
	}

	for {
		if ctx.Err() != nil {
			l.Log.Info("ingestion loop stopped")
			return nil
		}
		msgs, err := l.Consumer.Poll(ctx, l.PollTimeout)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			l.Log.Error("poll failed", zap.Error(err))
		}
		for _, m := range msgs {
			l.Process(context.WithoutCancel(ctx), m)
			if err := l.Consumer.Commit(context.WithoutCancel(ctx), m); err != nil {
				l.Log.Error("commit failed",
					zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
			}
		}
	}
}

// Process routes one message through decode and store. Also the entry point
// for the one-shot inject mode; failures never propagate, the loop carries
// on with the next message.
func (l *Loop) Process(ctx context.Context, m kafka.Message) {
	l.init()
	if m.Err != nil {
		l.Log.Error("transport error", zap.Error(m.Err))
		metrics.NoticesDroppedTotal.WithLabelValues(m.Topic, "transport_error").Inc()
		return
	}
	received := l.now()
	l.Log.Info("notice received",
		zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Time("received", received))

	format := m.Topic
	if mapped, ok := l.Formats[m.Topic]; ok && mapped != "" {
		format = mapped
	}
	factory, err := l.Registry.Resolve(format)
	if err != nil {
		// unknown format: dropped, topic counter untouched
		l.Log.Error("no decoder for topic", zap.String("topic", m.Topic), zap.Error(err))
		metrics.DecodeFailuresTotal.WithLabelValues(m.Topic, "unknown_format").Inc()
		return
	}

	if limit, ok := l.Limits[m.Topic]; ok && limit >= 0 && l.counts[m.Topic] >= limit {
		l.Log.Debug("topic limit reached, draining",
			zap.String("topic", m.Topic), zap.Int("limit", limit))
		metrics.NoticesDroppedTotal.WithLabelValues(m.Topic, "limit").Inc()
		return
	}
	l.counts[m.Topic]++
	metrics.NoticesTotal.WithLabelValues(m.Topic).Inc()

	dec, ok := l.decoders[m.Topic]
	if !ok {
		dec = factory(m.Topic)
		l.decoders[m.Topic] = dec
	}

	var ev *model.Event
	rec, err := dec.Decode(m.Value)
	if err == nil {
		ev, err = dec.Parse(rec)
	}
	if err != nil {
		kind := "malformed_payload"
		if errors.Is(err, decode.ErrMissingRequiredField) {
			kind = "missing_required_field"
		}
		l.Log.Error("decode failed",
			zap.String("topic", m.Topic), zap.String("kind", kind), zap.Error(err))
		metrics.DecodeFailuresTotal.WithLabelValues(m.Topic, kind).Inc()
		l.writeAudit(m, received, nil)
		return
	}

	l.writeAudit(m, received, ev)

	if err := l.Store.Upsert(ctx, ev); err != nil {
		// storage errors are fatal for this message only
		l.Log.Error("store upsert failed",
			zap.String("topic", m.Topic), zap.String("id", ev.ID), zap.Error(err))
		metrics.NoticesDroppedTotal.WithLabelValues(m.Topic, "storage_error").Inc()
		return
	}
	l.Log.Info("event stored",
		zap.String("topic", m.Topic), zap.String("id", ev.ID), zap.String("alert_type", ev.AlertType))
	metrics.EventsStoredTotal.WithLabelValues(m.Topic).Inc()

	l.correlate(ctx, ev)
	l.maybeTrigger(ctx, ev)
}

func (l *Loop) writeAudit(m kafka.Message, received time.Time, ev *model.Event) {
	if l.Audit == nil {
		return
	}
	ts := received
	if ev != nil && ev.TimeObserved != nil {
		ts = *ev.TimeObserved
	}
	if _, err := l.Audit.Write(m.Topic, ts, m.Value); err != nil {
		l.Log.Error("audit write failed", zap.String("topic", m.Topic), zap.Error(err))
	}
}

// correlate logs stored events that sit close to the new one on the sky or
// in time: candidate duplicates and multi-messenger counterparts.
func (l *Loop) correlate(ctx context.Context, ev *model.Event) {
	near, err := l.Store.FindNearInPosition(ctx, ev)
	if err != nil {
		l.Log.Error("position query failed", zap.String("id", ev.ID), zap.Error(err))
		return
	}
	for _, other := range near {
		if other.ID == ev.ID {
			continue
		}
		l.Log.Info("counterpart candidate (position)",
			zap.String("id", ev.ID), zap.String("other_id", other.ID),
			zap.String("other_topic", other.Topic))
	}

	coincident, err := l.Store.FindNearInTime(ctx, ev, 0)
	if err != nil {
		l.Log.Error("time query failed", zap.String("id", ev.ID), zap.Error(err))
		return
	}
	for _, other := range coincident {
		if other.ID == ev.ID {
			continue
		}
		l.Log.Info("counterpart candidate (time)",
			zap.String("id", ev.ID), zap.String("other_id", other.ID),
			zap.String("other_topic", other.Topic))
	}
}

func (l *Loop) maybeTrigger(ctx context.Context, ev *model.Event) {
	if l.Trigger == nil || !l.Trigger.Criteria.Satisfied(ev) {
		return
	}
	has, err := l.Store.HasTriggerForEvent(ctx, ev.ID)
	if err != nil {
		l.Log.Error("trigger lookup failed", zap.String("id", ev.ID), zap.Error(err))
		return
	}
	if has {
		return
	}
	trg, err := l.Trigger.Build(ctx, ev)
	if err != nil {
		l.Log.Error("trigger build failed", zap.String("id", ev.ID), zap.Error(err))
		return
	}
	if err := l.Store.InsertTrigger(ctx, trg); err != nil {
		l.Log.Error("trigger insert failed", zap.String("id", ev.ID), zap.Error(err))
		return
	}
	l.Log.Info("trigger issued",
		zap.String("id", ev.ID), zap.String("trigger_id", trg.ID),
		zap.Float64("ra", trg.RA), zap.Float64("dec", trg.Dec))
	metrics.TriggersIssuedTotal.Inc()
}
