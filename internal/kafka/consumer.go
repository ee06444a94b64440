package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

type Config struct {
	Brokers []string
	GroupID string
	Topics  []string

	// broker credentials (SASL/PLAIN over TLS when set)
	ClientID     string
	ClientSecret string

	MinBytes       int           // default 1KB
	MaxBytes       int           // default 10MB
	CommitInterval time.Duration // default 1s
}

// Message is one fetched notice. Err is set for transport-level per-message
// errors; the ingestion loop treats those as non-fatal.
type Message struct {
	Topic  string
	Value  []byte
	Offset int64
	Err    error

	raw kafka.Message
}

// Consumer is a thin wrapper around segmentio/kafka-go Reader subscribed to
// a topic group.
type Consumer struct {
	r *kafka.Reader
}

func NewConsumerFromConfig(c Config) *Consumer {
	min := c.MinBytes
	if min <= 0 {
		min = 1 << 10 // 1KB
	}
	max := c.MaxBytes
	if max <= 0 {
		max = 10 << 20 // 10MB
	}
	ci := c.CommitInterval
	if ci <= 0 {
		ci = time.Second
	}

	var dialer *kafka.Dialer
	if c.ClientID != "" {
		dialer = &kafka.Dialer{
			Timeout:   10 * time.Second,
			DualStack: true,
			TLS:       &tls.Config{},
			SASLMechanism: plain.Mechanism{
				Username: c.ClientID,
				Password: c.ClientSecret,
			},
		}
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        c.Brokers,
		GroupID:        c.GroupID,
		GroupTopics:    c.Topics,
		MinBytes:       min,
		MaxBytes:       max,
		CommitInterval: ci,
		MaxWait:        time.Second,
		Dialer:         dialer,
	})

	return &Consumer{r: r}
}

// Poll fetches messages until wait elapses and returns the batch in delivery
// order. A transport error surfaces as one Message with Err set.
func (c *Consumer) Poll(ctx context.Context, wait time.Duration) ([]Message, error) {
	pollCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	var out []Message
	for {
		m, err := c.r.FetchMessage(pollCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return out, ctx.Err()
			}
			out = append(out, Message{Err: err})
			return out, nil
		}
		out = append(out, Message{
			Topic:  m.Topic,
			Value:  m.Value,
			Offset: m.Offset,
			raw:    m,
		})
	}
}

// Commit marks the message as processed.
func (c *Consumer) Commit(ctx context.Context, m Message) error {
	if m.Err != nil {
		return nil
	}
	return c.r.CommitMessages(ctx, m.raw)
}

func (c *Consumer) Close() error { return c.r.Close() }
