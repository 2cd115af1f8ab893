package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"quiz-session-service/internal/domain"
)

// DefaultResultChannel is where finished session results are published.
const DefaultResultChannel = "quiz:session:results"

// ReportPublisher hands finished results to external reporting consumers
// (report renderers, chat-bot delivery) over Redis pub/sub.
type ReportPublisher struct {
	client  *redis.Client
	channel string
}

func NewReportPublisher(client *redis.Client, channel string) *ReportPublisher {
	if channel == "" {
		channel = DefaultResultChannel
	}
	return &ReportPublisher{client: client, channel: channel}
}

func (p *ReportPublisher) PublishResult(ctx context.Context, result domain.SessionResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish result: %w", err)
	}
	return nil
}
