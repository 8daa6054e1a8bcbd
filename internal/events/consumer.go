package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrMissingData = errors.New("event has no data field")

// StreamReader is the part of the Redis client a consumer group needs.
type StreamReader interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Handler receives every decoded SCRAPE_COMPLETED event. A returned error
// leaves the message pending.
type Handler func(ctx context.Context, payload *ScrapeCompletedPayload) error

// Consumer reads run notifications from the stream as part of a consumer
// group.
type Consumer struct {
	redis  StreamReader
	stream string
	group  string
	name   string
	block  time.Duration
	logger *slog.Logger
}

func NewConsumer(client StreamReader, stream, group, name string, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		redis:  client,
		stream: stream,
		group:  group,
		name:   name,
		block:  5 * time.Second,
		logger: logger.With("component", "event_consumer"),
	}
}

// Run blocks until ctx is done, passing each new event to handle.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	err := c.redis.XGroupCreateMkStream(ctx, c.stream, c.group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("starting consumer", "stream", c.stream, "group", c.group, "consumer", c.name)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		streams, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{c.stream, ">"},
			Count:    10,
			Block:    c.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			c.logger.Error("failed to read from stream", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				if err := c.processMessage(ctx, message, handle); err != nil {
					c.logger.Error("failed to process message", "id", message.ID, "error", err)
					continue
				}

				if err := c.redis.XAck(ctx, c.stream, c.group, message.ID).Err(); err != nil {
					c.logger.Error("failed to acknowledge message", "id", message.ID, "error", err)
				}
			}
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg redis.XMessage, handle Handler) error {
	if eventType, _ := msg.Values["event_type"].(string); eventType != string(EventTypeScrapeCompleted) {
		return nil
	}

	payload, err := DecodeMessage(msg)
	if err != nil {
		return err
	}

	return handle(ctx, payload)
}

// DecodeMessage parses the payload written by Publisher.
func DecodeMessage(msg redis.XMessage) (*ScrapeCompletedPayload, error) {
	data, ok := msg.Values["data"].(string)
	if !ok || data == "" {
		return nil, ErrMissingData
	}

	var payload ScrapeCompletedPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse event: %w", err)
	}
	return &payload, nil
}
