package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/wonny/swingdag/internal/swing"
	"github.com/wonny/swingdag/pkg/config"
)

// messageWriter is the subset of *kafka.Writer used by KafkaSink.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events as JSON envelopes keyed by session id.
// Hash balancing keeps one session on one partition, so order is preserved.
type KafkaSink struct {
	writer messageWriter
	topic  string
	log    zerolog.Logger
}

// NewKafkaSink creates a synchronous writer with all-replica acks.
func NewKafkaSink(cfg config.KafkaConfig, log zerolog.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		BatchTimeout: cfg.BatchTimeout,
	}
	return newKafkaSink(w, cfg.Topic, log), nil
}

func newKafkaSink(w messageWriter, topic string, log zerolog.Logger) *KafkaSink {
	return &KafkaSink{
		writer: w,
		topic:  topic,
		log:    log.With().Str("component", "eventbus.kafka").Str("topic", topic).Logger(),
	}
}

// Publish implements Sink. The whole bar batch is written in one call.
func (k *KafkaSink) Publish(ctx context.Context, sessionID string, events []swing.Event) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		v, err := json.Marshal(Envelope{Session: sessionID, Event: e})
		if err != nil {
			return fmt.Errorf("marshal event %d: %w", e.Seq, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(sessionID),
			Value: v,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(e.Type)},
			},
		})
	}

	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka publish %d events: %w", len(msgs), err)
	}
	k.log.Debug().Str("session", sessionID).Int("events", len(msgs)).Msg("events published")
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
