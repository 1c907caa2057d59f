// Package sink fans recorded audit events out to Kafka for downstream SIEM
// and warehouse consumers. Delivery is best-effort: the trail's in-memory and
// durable copies are the records of truth, the stream is a convenience.
package sink

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"custodia/internal/domain"
)

// Kafka publishes events to a single topic, keyed by subject ID so
// per-subject ordering survives partitioning.
type Kafka struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafka connects a producer. Returns nil when no brokers are configured.
func NewKafka(brokers []string, topic string, logger *slog.Logger) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, err
	}
	return &Kafka{client: client, topic: topic, logger: logger}, nil
}

// Offer produces the event asynchronously. Failures are logged, never
// surfaced: the recording path must not block on the stream.
func (k *Kafka) Offer(ctx context.Context, event domain.AuditEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		k.logger.ErrorContext(ctx, "marshal audit event for stream",
			"event_id", event.ID,
			"error", err,
		)
		return
	}

	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(event.SubjectID),
		Value: payload,
	}
	k.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			k.logger.WarnContext(ctx, "audit stream publish failed",
				"event_id", event.ID,
				"error", err,
			)
		}
	})
}

// Close flushes pending records and releases the producer.
func (k *Kafka) Close() error {
	k.client.Close()
	return nil
}
