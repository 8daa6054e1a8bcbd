package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/supercomparador/internal/models"
	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event
type EventType string

const (
	EventTypeScrapeCompleted EventType = "SCRAPE_COMPLETED"
)

// RedisClient is the part of the Redis client the publisher needs.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// ScrapeCompletedPayload summarizes a finished scrape run for stream
// consumers.
type ScrapeCompletedPayload struct {
	RunID      string                   `json:"run_id"`
	EventType  string                   `json:"event_type"`
	Timestamp  time.Time                `json:"timestamp"`
	Query      string                   `json:"query"`
	Retailer   string                   `json:"retailer,omitempty"`
	Products   int                      `json:"products"`
	Cheapest   *models.ProductRecord    `json:"cheapest,omitempty"`
	Retailers  []models.RetailerOutcome `json:"retailers"`
	DurationMS int64                    `json:"duration_ms"`
}

func NewScrapeCompletedPayload(rs *models.ResultSet) *ScrapeCompletedPayload {
	payload := &ScrapeCompletedPayload{
		RunID:      rs.ID,
		EventType:  string(EventTypeScrapeCompleted),
		Timestamp:  rs.FinishedAt,
		Query:      rs.Query,
		Retailer:   rs.Retailer,
		Products:   rs.Len(),
		Retailers:  rs.Retailers,
		DurationMS: rs.Duration().Milliseconds(),
	}

	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now()
	}

	if rs.Len() > 0 {
		cheapest := rs.Products[0]
		payload.Cheapest = &cheapest
	}

	return payload
}

// Publisher appends run notifications to a Redis stream.
type Publisher struct {
	redis  RedisClient
	stream string
	maxLen int64
	logger *slog.Logger
}

func NewPublisher(client RedisClient, stream string, maxLen int64, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		redis:  client,
		stream: stream,
		maxLen: maxLen,
		logger: logger.With("component", "event_publisher"),
	}
}

func (p *Publisher) PublishScrapeCompleted(ctx context.Context, payload *ScrapeCompletedPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"data":       string(data),
			"event_type": payload.EventType,
			"run_id":     payload.RunID,
			"query":      payload.Query,
			"timestamp":  fmt.Sprintf("%d", payload.Timestamp.UnixNano()),
		},
	}

	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.redis.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	p.logger.Info("event published",
		"type", payload.EventType,
		"run_id", payload.RunID,
		"stream", p.stream,
		"stream_id", id,
	)

	return nil
}

// Consume publishes a SCRAPE_COMPLETED event for rs.
func (p *Publisher) Consume(ctx context.Context, rs *models.ResultSet) error {
	return p.PublishScrapeCompleted(ctx, NewScrapeCompletedPayload(rs))
}
