// Package kafkasource consumes touchpoint and conversion events from
// Kafka topics and feeds them into the ingestion service. The consumer
// is optional; it only runs when brokers are configured.
package kafkasource

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/convertlens/convertlens-go/internal/domain/attribution"
	"github.com/convertlens/convertlens-go/internal/infrastructure/messaging"
	"github.com/convertlens/convertlens-go/internal/infrastructure/observability/logging"
)

// Ingestor is the slice of the ingestion service the consumer needs.
type Ingestor interface {
	IngestTouchpoint(ctx context.Context, tp *attribution.Touchpoint) error
	IngestConversion(ctx context.Context, conv *attribution.ConversionEvent) error
}

// Consumer reads the two event topics and hands each message to the
// ingestor. Malformed or invalid messages are logged and skipped;
// throttled conversions are retried with backoff before giving up on
// the message.
type Consumer struct {
	touchpoints *kafka.Reader
	conversions *kafka.Reader
	ingestor    Ingestor
	logger      *logging.ChanneledLogger
	backoff     messaging.Backoff

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewConsumer(brokers []string, touchpointsTopic, conversionsTopic, groupID string, ingestor Ingestor, logger *logging.ChanneledLogger) *Consumer {
	return &Consumer{
		touchpoints: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   touchpointsTopic,
			GroupID: groupID,
		}),
		conversions: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   conversionsTopic,
			GroupID: groupID,
		}),
		ingestor: ingestor,
		logger:   logger,
		backoff:  messaging.NewBackoff(500*time.Millisecond, 4),
	}
}

// Start launches one goroutine per topic.
func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(2)
	go c.consumeTouchpoints(ctx)
	go c.consumeConversions(ctx)
	c.logger.Ingest().Info("Kafka consumer started",
		"touchpointsTopic", c.touchpoints.Config().Topic,
		"conversionsTopic", c.conversions.Config().Topic)
}

// Stop cancels the readers and waits for the goroutines to exit.
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	tpErr := c.touchpoints.Close()
	convErr := c.conversions.Close()
	if tpErr != nil {
		return tpErr
	}
	return convErr
}

func (c *Consumer) consumeTouchpoints(ctx context.Context) {
	defer c.wg.Done()
	for {
		msg, err := c.touchpoints.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.LogError(logging.ChannelIngest, "kafka_read_touchpoint", err, nil)
			continue
		}

		var tp attribution.Touchpoint
		if err := json.Unmarshal(msg.Value, &tp); err != nil {
			c.logger.Ingest().Warn("Skipping malformed touchpoint message",
				"offset", msg.Offset, "error", err.Error())
			continue
		}
		if err := c.ingestor.IngestTouchpoint(ctx, &tp); err != nil {
			c.logger.Ingest().Warn("Touchpoint message rejected",
				"offset", msg.Offset, "error", err.Error())
		}
	}
}

func (c *Consumer) consumeConversions(ctx context.Context) {
	defer c.wg.Done()
	for {
		msg, err := c.conversions.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.LogError(logging.ChannelIngest, "kafka_read_conversion", err, nil)
			continue
		}

		var conv attribution.ConversionEvent
		if err := json.Unmarshal(msg.Value, &conv); err != nil {
			c.logger.Ingest().Warn("Skipping malformed conversion message",
				"offset", msg.Offset, "error", err.Error())
			continue
		}

		// A full queue is backpressure, not a bad message. Retry a few
		// times before dropping so a short burst does not lose events.
		var lastErr error
		err = c.backoff.Do(ctx, func(int) error {
			lastErr = c.ingestor.IngestConversion(ctx, &conv)
			if lastErr != nil && !errors.Is(lastErr, attribution.ErrThrottled) {
				// Unretryable rejection, stop here.
				return nil
			}
			return lastErr
		})
		if err == nil {
			err = lastErr
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Ingest().Warn("Conversion message rejected",
				"offset", msg.Offset, "error", err.Error())
		}
	}
}
