package jobqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	kafka "github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/reconcile/internal/tracing"
)

// ProducerConfig holds the Kafka writer settings for lifecycle/progress
// change events.
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
}

// Producer publishes job lifecycle and progress events to Kafka in a
// Debezium-shaped envelope, for downstream CDC-style consumers. It
// implements core.BroadcastSink.
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
}

// NewProducer builds a Producer bound to cfg's broker/topic.
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	acks := kafka.RequiredAcks(cfg.RequiredAcks)
	if acks == 0 {
		acks = kafka.RequireOne
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           acks,
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: writer, logger: logger}
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// changeEnvelope mirrors the teacher's DebeziumEnvelope shape, minus
// the schema block this domain has no use for.
type changeEnvelope struct {
	Payload changePayload `json:"payload"`
}

type changePayload struct {
	After  json.RawMessage `json:"after"`
	Source changeSource    `json:"source"`
	Op     string          `json:"op"`
	TsMs   int64           `json:"ts_ms"`
}

type changeSource struct {
	Connector string `json:"connector"`
	Table     string `json:"table"`
}

// Publish implements core.BroadcastSink: channel becomes the Kafka
// message key (e.g. "jobs.progress.<job-id>"), event is marshalled
// into the envelope's after-state.
func (p *Producer) Publish(ctx context.Context, channel string, event any) error {
	ctx, span := tracing.StartSpan(ctx, "jobqueue.Producer.Publish")
	defer span.End()

	after, err := json.Marshal(event)
	if err != nil {
		return err
	}

	envelope := changeEnvelope{
		Payload: changePayload{
			After: after,
			Source: changeSource{
				Connector: "reconcile",
				Table:     channel,
			},
			Op:   "u",
			TsMs: time.Now().UnixMilli(),
		},
	}

	value, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(channel),
		Value: value,
		Headers: []kafka.Header{
			{Key: "channel", Value: []byte(channel)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"channel": channel,
		}).Error("jobqueue: publish failed")
		return err
	}
	return nil
}
