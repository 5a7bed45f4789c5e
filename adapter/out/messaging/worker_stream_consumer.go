package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mailkeeper/agent/core/port/out"
	"github.com/mailkeeper/agent/pkg/apperr"
)

// ConsumerConfig configures a Consumer (§4.M, §4.S).
type ConsumerConfig struct {
	Group    string
	Consumer string
	Streams  []string
	Logger   zerolog.Logger

	PendingCheckInterval time.Duration
	PendingIdleTime      time.Duration
	MaxRetries           int
}

// Consumer implements out.MessageConsumer over Redis Streams consumer
// groups, grounded on the teacher's worker_stream_consumer.go reclaim/DLQ
// idiom, adapted from a push-callback handler to a pull channel so the
// worker pool (§4.S) drives its own dispatch loop.
type Consumer struct {
	client   *redis.Client
	group    string
	consumer string
	streams  []string
	log      zerolog.Logger

	pendingCheckInterval time.Duration
	pendingIdleTime      time.Duration
	maxRetries           int

	cancel context.CancelFunc
	wg     sync.WaitGroup
	out    chan out.QueueMessage
}

func NewConsumer(client *redis.Client, cfg ConsumerConfig) *Consumer {
	pendingCheckInterval := cfg.PendingCheckInterval
	if pendingCheckInterval == 0 {
		pendingCheckInterval = 30 * time.Second
	}
	pendingIdleTime := cfg.PendingIdleTime
	if pendingIdleTime == 0 {
		pendingIdleTime = 2 * time.Minute
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	return &Consumer{
		client:               client,
		group:                cfg.Group,
		consumer:             cfg.Consumer,
		streams:              cfg.Streams,
		log:                  cfg.Logger,
		pendingCheckInterval: pendingCheckInterval,
		pendingIdleTime:      pendingIdleTime,
		maxRetries:           maxRetries,
	}
}

var _ out.MessageConsumer = (*Consumer)(nil)

// Consume starts the read loop and the pending-reclaim loop and returns the
// channel both push QueueMessages onto.
func (c *Consumer) Consume(ctx context.Context) (<-chan out.QueueMessage, error) {
	for _, stream := range c.streams {
		c.createConsumerGroup(ctx, stream)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.out = make(chan out.QueueMessage, 64)

	c.wg.Add(2)
	go c.readLoop(runCtx)
	go c.pendingLoop(runCtx)

	return c.out, nil
}

func (c *Consumer) Close(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	if c.out != nil {
		close(c.out)
	}
	return nil
}

func (c *Consumer) readLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := c.readMessages(ctx)
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			c.log.Error().Err(err).Msg("error reading from streams")
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range result {
			for _, msg := range stream.Messages {
				c.dispatch(ctx, stream.Stream, msg)
			}
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, stream string, msg redis.XMessage) {
	jobType, payload, err := decode(msg)
	if err != nil {
		c.log.Error().Err(err).Str("stream", stream).Str("id", msg.ID).Msg("dropping malformed message")
		c.client.XAck(ctx, stream, c.group, msg.ID)
		return
	}

	qm := out.QueueMessage{
		JobType: jobType,
		Payload: payload,
		Ack: func(ctx context.Context) error {
			return c.client.XAck(ctx, stream, c.group, msg.ID).Err()
		},
		// Nack leaves the message pending; the reclaim loop retries it up to
		// maxRetries before moving it to the DLQ stream.
		Nack: func(ctx context.Context) error { return nil },
	}

	select {
	case c.out <- qm:
	case <-ctx.Done():
	}
}

func (c *Consumer) pendingLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.pendingCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.claimAndProcessPending(ctx)
		}
	}
}

func (c *Consumer) claimAndProcessPending(ctx context.Context) {
	for _, stream := range c.streams {
		pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: stream, Group: c.group, Start: "-", End: "+", Count: 100,
		}).Result()
		if err != nil {
			if err != redis.Nil {
				c.log.Error().Err(err).Str("stream", stream).Msg("error getting pending messages")
			}
			continue
		}

		for _, p := range pending {
			if p.Idle < c.pendingIdleTime {
				continue
			}

			if int(p.RetryCount) >= c.maxRetries {
				c.log.Warn().Str("stream", stream).Str("id", p.ID).Int64("retries", p.RetryCount).
					Msg("message exceeded max retries, moving to DLQ")
				if err := c.moveToDeadLetterQueue(ctx, stream, p.ID); err != nil {
					c.log.Error().Err(err).Str("id", p.ID).Msg("error moving message to DLQ")
				}
				c.client.XAck(ctx, stream, c.group, p.ID)
				continue
			}

			claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
				Stream: stream, Group: c.group, Consumer: c.consumer,
				MinIdle: c.pendingIdleTime, Messages: []string{p.ID},
			}).Result()
			if err != nil {
				c.log.Error().Err(err).Str("id", p.ID).Msg("error claiming message")
				continue
			}
			for _, msg := range claimed {
				c.dispatch(ctx, stream, msg)
			}
		}
	}
}

func (c *Consumer) createConsumerGroup(ctx context.Context, stream string) {
	err := c.client.XGroupCreateMkStream(ctx, stream, c.group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		c.log.Warn().Err(err).Str("stream", stream).Msg("error creating consumer group")
	}
}

func (c *Consumer) readMessages(ctx context.Context) ([]redis.XStream, error) {
	if len(c.streams) == 0 {
		return nil, nil
	}

	args := make([]string, len(c.streams)*2)
	for i, stream := range c.streams {
		args[i] = stream
		args[len(c.streams)+i] = ">"
	}

	result, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  args,
		Count:    10,
		Block:    5 * time.Second,
	}).Result()
	if err != nil {
		return nil, err
	}
	return result, nil
}

func decode(msg redis.XMessage) (out.JobType, []byte, error) {
	jobType, _ := msg.Values["type"].(string)
	data, ok := msg.Values["data"].(string)
	if !ok {
		return "", nil, apperr.ParseFailure("stream message missing data field", nil)
	}
	return out.JobType(jobType), []byte(data), nil
}

// moveToDeadLetterQueue moves a failed message to a Dead Letter Queue
// stream, named dlq:{original_stream_name}.
func (c *Consumer) moveToDeadLetterQueue(ctx context.Context, stream, msgID string) error {
	messages, err := c.client.XRange(ctx, stream, msgID, msgID).Result()
	if err != nil {
		return apperr.DatabaseError("read message for DLQ", err)
	}
	if len(messages) == 0 {
		return apperr.NotFound("message " + msgID + " in stream " + stream)
	}

	msg := messages[0]
	dlqData := map[string]interface{}{
		"original_stream": stream,
		"original_id":     msgID,
		"failed_at":       time.Now().UTC().Format(time.RFC3339),
		"consumer":        c.consumer,
		"group":           c.group,
	}
	for k, v := range msg.Values {
		dlqData["original_"+k] = v
	}

	_, err = c.client.XAdd(ctx, &redis.XAddArgs{Stream: "dlq:" + stream, Values: dlqData}).Result()
	if err != nil {
		return apperr.DatabaseError("add message to DLQ", err)
	}
	c.log.Info().Str("dlq_stream", "dlq:"+stream).Str("original_stream", stream).Str("original_id", msgID).Msg("message moved to DLQ")
	return nil
}
