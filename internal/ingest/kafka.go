// Package ingest bridges external reading sources into the server's ingest
// path. The Kafka consumer lets noisy or intermittent meters publish to a
// topic instead of holding an HTTP or WebSocket connection open.
package ingest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Shopify/sarama"
	"github.com/rs/zerolog"

	"github.com/housewatch/household-watch/internal/config"
	"github.com/housewatch/household-watch/internal/models"
)

// Processor receives batches of reading payloads pulled from the topic.
type Processor func([]models.ReadingPayload)

// KafkaConsumer consumes reading payloads from a Kafka topic, buffering them
// into batches before handing them to the processor.
type KafkaConsumer struct {
	cfg        config.KafkaConfig
	consumer   sarama.ConsumerGroup
	processor  Processor
	logger     zerolog.Logger
	msgBuffer  []models.ReadingPayload
	bufferLock sync.Mutex
}

// NewKafkaConsumer creates a consumer group for the configured topic.
func NewKafkaConsumer(cfg config.KafkaConfig, processor Processor, logger zerolog.Logger) (*KafkaConsumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	saramaConfig.Consumer.MaxWaitTime = 250 * time.Millisecond

	client, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	return &KafkaConsumer{
		cfg:       cfg,
		consumer:  client,
		processor: processor,
		logger:    logger,
		msgBuffer: make([]models.ReadingPayload, 0, cfg.BatchSize),
	}, nil
}

// Consume runs the consumer until the context is cancelled.
func (c *KafkaConsumer) Consume(ctx context.Context) error {
	errorChan := make(chan error, 1)
	go func() {
		for err := range c.consumer.Errors() {
			c.logger.Error().Err(err).Msg("Kafka consumer error")
			select {
			case errorChan <- err:
			default:
			}
		}
	}()

	handler := &consumerGroupHandler{
		consumer: c,
		ctx:      ctx,
	}

	flushTicker := time.NewTicker(c.cfg.BatchTimeout)
	defer flushTicker.Stop()

	go func() {
		for {
			select {
			case <-flushTicker.C:
				c.flushBuffer()
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.flushBuffer()
			return nil
		case err := <-errorChan:
			return err
		default:
			if err := c.consumer.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				if err != context.Canceled {
					return err
				}
				return nil
			}
		}
	}
}

// Close shuts down the consumer group.
func (c *KafkaConsumer) Close() error {
	return c.consumer.Close()
}

// addMessage adds a payload to the buffer and flushes if the batch is full.
func (c *KafkaConsumer) addMessage(payload models.ReadingPayload) {
	c.bufferLock.Lock()
	defer c.bufferLock.Unlock()

	c.msgBuffer = append(c.msgBuffer, payload)
	if len(c.msgBuffer) >= c.cfg.BatchSize {
		c.flushBufferLocked()
	}
}

// flushBuffer flushes the message buffer
func (c *KafkaConsumer) flushBuffer() {
	c.bufferLock.Lock()
	defer c.bufferLock.Unlock()
	c.flushBufferLocked()
}

// flushBufferLocked flushes the message buffer while holding the lock
func (c *KafkaConsumer) flushBufferLocked() {
	if len(c.msgBuffer) == 0 {
		return
	}

	batch := make([]models.ReadingPayload, len(c.msgBuffer))
	copy(batch, c.msgBuffer)
	c.msgBuffer = c.msgBuffer[:0]

	go c.processor(batch)
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *KafkaConsumer
	ctx      context.Context
}

func (h *consumerGroupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if h.ctx.Err() != nil {
			return h.ctx.Err()
		}

		// Fail-open like every other ingest path: unparseable messages
		// become all-defaults readings rather than being skipped.
		var payload models.ReadingPayload
		if err := json.Unmarshal(message.Value, &payload); err != nil {
			h.consumer.logger.Warn().Err(err).Msg("Malformed Kafka payload, substituting defaults")
			payload = models.ReadingPayload{}
		}

		h.consumer.addMessage(payload)
		session.MarkMessage(message, "")
	}
	return nil
}
