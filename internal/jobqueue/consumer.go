// Package jobqueue is the optional Kafka-backed job intake path: an
// external caller enqueues a ReconciliationJob as a message on
// KafkaJobsTopic instead of calling the Job Processor's Submit
// directly. The consumer decodes each message into a job and hands it
// to a Submitter — the same admission path a direct API caller would
// use, so a job enqueued via Kafka is indistinguishable from one
// submitted in-process.
package jobqueue

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	kafka "github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/reconcile/internal/tracing"
	"github.com/Ramsey-B/reconcile/pkg/core"
)

// Submitter is the subset of the Job Processor the consumer depends
// on, kept narrow so tests can fake it without a real processor.
type Submitter interface {
	Submit(ctx context.Context, job core.ReconciliationJob) error
}

// ConsumerConfig holds the Kafka reader settings for job intake.
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
}

// Consumer reads ReconciliationJob submissions off Kafka and forwards
// them to a Submitter.
type Consumer struct {
	reader *kafka.Reader
	logger ectologger.Logger
	submit Submitter
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewConsumer builds a Consumer bound to cfg's broker/topic/group.
func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, submit Submitter) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})
	return &Consumer{
		reader: reader,
		logger: logger,
		submit: submit,
	}
}

// jobEnvelope is the wire shape a caller publishes to KafkaJobsTopic.
type jobEnvelope struct {
	ID          string             `json:"id"`
	ProjectID   string             `json:"project_id"`
	OwnerUserID string             `json:"owner_user_id"`
	SourceAID   string             `json:"source_a_id"`
	SourceBID   string             `json:"source_b_id"`
	Spec        core.MatchingSpec  `json:"spec"`
	Threshold   float64            `json:"threshold"`
}

// Start launches the consume loop in the background.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic": c.reader.Config().Topic,
	}).Info("job intake consumer started")
	return nil
}

// Stop cancels the consume loop and closes the underlying reader.
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if err == context.Canceled || err == io.EOF {
					return
				}
				c.logger.WithContext(ctx).WithError(err).Error("job intake: fetch message failed")
				continue
			}
			c.processMessage(ctx, msg)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) {
	ctx, span := tracing.StartSpan(ctx, "jobqueue.Consumer.processMessage")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	var env jobEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		log.WithError(err).Error("job intake: malformed job envelope, committing to skip")
		if cerr := c.reader.CommitMessages(ctx, msg); cerr != nil {
			log.WithError(cerr).Error("job intake: commit after decode failure")
		}
		return
	}

	job := core.ReconciliationJob{
		ID:          env.ID,
		ProjectID:   env.ProjectID,
		OwnerUserID: env.OwnerUserID,
		SourceAID:   env.SourceAID,
		SourceBID:   env.SourceBID,
		Spec:        env.Spec,
		Threshold:   env.Threshold,
		Status:      core.JobStatusPending,
	}

	if err := c.submit.Submit(ctx, job); err != nil {
		// Do not commit on a submission failure. The reader still moves
		// on to the next message and this one is not retried here; it is
		// fetched again only if the group resumes from an offset before
		// it, which a later commit on this partition moves past.
		log.WithError(err).Error("job intake: submit failed, not committing")
		return
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.WithError(err).Error("job intake: commit failed")
	}
}

// Health reports whether the consumer holds a live reader.
func (c *Consumer) Health() bool {
	return c.reader != nil
}
