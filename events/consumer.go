/*
Package events consumes time-record change events from Kafka and runs the
accrual recalculation for each.

DELIVERY:
  At-least-once. An offset is committed only when the message was
  processed, or when it can never be processed:

  outcome                         commit   metric status
  ------------------------------  ------   -------------
  recalculated / nothing to do    yes      ok / skipped
  no agreement / no accruals      yes      skipped
  malformed or invalid message    yes      rejected
  engine rejects input (range,    yes      rejected
    unsupported action)
  anything else                   retried  failed (per attempt)

  A failed message is retried in place with capped backoff until it
  succeeds or the consumer stops, so a later offset on the same partition
  is never committed past it. Stopping leaves it uncommitted and it is
  redelivered after a rebalance or restart.
  Deletes are idempotent, so a redelivered DELETE is harmless. A
  redelivered CREATE overwrites its own contribution with the same value.

SEE ALSO:
  - message.go: Message schema and validation
  - worktime/recalculator.go: What each message triggers
*/
package events

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/warp/accrual-engine/generic"
	"github.com/warp/accrual-engine/metrics"
)

// Handler recalculates accruals for one change.
type Handler interface {
	Handle(ctx context.Context, record generic.TimeRecord, action generic.Action) ([]generic.AccrualRecord, error)
}

// Reader is the subset of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
}

// Consumer handles Kafka message consumption
type Consumer struct {
	reader  Reader
	handler Handler
	logger  logrus.FieldLogger
	wg      sync.WaitGroup
	cancel  context.CancelFunc

	// Backoff bounds for retrying a failed message or fetch.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// NewConsumer creates a consumer reading from a Kafka consumer group.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger logrus.FieldLogger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: 0, // synchronous commits
	})
	return NewConsumerWithReader(reader, handler, logger)
}

// NewConsumerWithReader creates a consumer over any Reader.
func NewConsumerWithReader(reader Reader, handler Handler, logger logrus.FieldLogger) *Consumer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Consumer{
		reader:     reader,
		handler:    handler,
		logger:     logger,
		MinBackoff: 100 * time.Millisecond,
		MaxBackoff: 10 * time.Second,
	}
}

// Start begins consuming messages in the background.
func (c *Consumer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.consumeLoop(ctx)
	c.logger.Info("Kafka consumer started")
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	backoff := c.MinBackoff
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.Info("Consumer loop stopping")
				return
			}
			c.logger.WithError(err).WithField("retry_in", backoff.String()).Error("Failed to fetch message")
			if !c.sleep(ctx, backoff) {
				c.logger.Info("Consumer loop stopping")
				return
			}
			backoff = c.nextBackoff(backoff)
			continue
		}
		backoff = c.MinBackoff

		if status := c.handle(ctx, msg); status == metrics.StatusFailed {
			// Only reached when ctx ended while retrying.
			c.logger.Info("Consumer loop stopping")
			return
		}
	}
}

// sleep waits for d or until ctx ends. It returns false if ctx ended.
func (c *Consumer) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > c.MaxBackoff {
		d = c.MaxBackoff
	}
	return d
}

// handle processes one message and commits it when the outcome allows.
// A failed message is retried until it succeeds or ctx ends. It returns the
// last metric status it recorded.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) string {
	log := c.logger.WithFields(logrus.Fields{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	status := c.process(ctx, log, msg)
	metrics.EventsConsumed.WithLabelValues(status).Inc()

	// Retry in place: committing a later offset would skip this one.
	backoff := c.MinBackoff
	for status == metrics.StatusFailed {
		log.WithField("retry_in", backoff.String()).Warn("Retrying change event")
		if !c.sleep(ctx, backoff) {
			// Left uncommitted: redelivered on rebalance or restart.
			return status
		}
		backoff = c.nextBackoff(backoff)

		status = c.process(ctx, log, msg)
		metrics.EventsConsumed.WithLabelValues(status).Inc()
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to commit message")
	}
	return status
}

func (c *Consumer) process(ctx context.Context, log logrus.FieldLogger, msg kafka.Message) string {
	evt, action, err := ParseChangeEvent(msg.Value)
	if err != nil {
		log.WithError(err).Warn("Skipping invalid change event")
		return metrics.StatusRejected
	}

	record := evt.TimeRecord.ToTimeRecord()
	log = log.WithFields(logrus.Fields{
		"tenant_id":      record.TenantID,
		"person_id":      record.PersonID,
		"time_record_id": record.ID,
		"action":         action,
	})

	changed, err := c.handler.Handle(ctx, record, action)
	switch {
	case err == nil && len(changed) == 0:
		return metrics.StatusSkipped
	case err == nil:
		return metrics.StatusOK
	case generic.IsBusinessCondition(err):
		log.WithError(err).Warn("Nothing to recalculate")
		return metrics.StatusSkipped
	case generic.IsClientError(err):
		log.WithError(err).Warn("Change event rejected by engine")
		return metrics.StatusRejected
	default:
		log.WithError(err).Error("Failed to process change event (not committing)")
		return metrics.StatusFailed
	}
}
