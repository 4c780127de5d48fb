package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"queryforum/backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// FeedChannel is the Redis channel that carries feed events between
// server instances.
const FeedChannel = "feed:complaints"

// ErrNoEventBus is returned when Redis is not configured.
var ErrNoEventBus = errors.New("event bus not configured")

// PublishEvent broadcasts a feed event to every subscribed instance.
func (s *Service) PublishEvent(ctx context.Context, event models.FeedEvent) error {
	if s.Redis == nil {
		return ErrNoEventBus
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal feed event: %w", err)
	}
	if err := s.Redis.Publish(ctx, FeedChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish feed event: %w", err)
	}
	return nil
}

// SubscribeEvents subscribes to FeedChannel. The caller closes the returned
// subscription.
func (s *Service) SubscribeEvents(ctx context.Context) (*redis.PubSub, error) {
	if s.Redis == nil {
		return nil, ErrNoEventBus
	}
	sub := s.Redis.Subscribe(ctx, FeedChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", FeedChannel, err)
	}
	return sub, nil
}

// DecodeEvent parses a payload received on FeedChannel.
func DecodeEvent(payload string) (models.FeedEvent, error) {
	var event models.FeedEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return event, fmt.Errorf("decode feed event: %w", err)
	}
	return event, nil
}
