package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"golang.org/x/exp/slog"

	"github.com/rzpsarthak13/holdthis/internal/core"
	"github.com/rzpsarthak13/holdthis/internal/registry"
)

// Publisher is the subset of the Redis client used by RedisSink.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes every flush event as JSON on a Redis pub/sub channel.
type RedisSink struct {
	publisher Publisher
	channel   string
	logger    *slog.Logger

	// closer is set when the sink owns the client.
	closer func() error

	mu     sync.RWMutex
	closed bool
}

// NewRedisSink creates a sink publishing through publisher. The caller keeps
// ownership of publisher.
func NewRedisSink(publisher Publisher, channel string, logger *slog.Logger) *RedisSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisSink{
		publisher: publisher,
		channel:   channel,
		logger:    logger,
	}
}

// DialRedisSink connects to the configured Redis server and returns a sink
// that owns the client.
func DialRedisSink(ctx context.Context, config registry.InternalRedisConfig, logger *slog.Logger) (*RedisSink, error) {
	if config.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if config.Channel == "" {
		return nil, fmt.Errorf("redis channel is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	sink := NewRedisSink(client, config.Channel, logger)
	sink.closer = client.Close
	return sink, nil
}

func (s *RedisSink) OnFlush(ctx context.Context, event core.FlushEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to encode flush event", slog.String("flush_id", event.ID), slog.Any("error", err))
		return
	}

	if err := s.publisher.Publish(ctx, s.channel, payload).Err(); err != nil {
		s.logger.Warn("failed to publish flush event",
			slog.String("flush_id", event.ID),
			slog.String("channel", s.channel),
			slog.Any("error", err))
	}
}

// Close stops publishing and closes the client if the sink owns it.
func (s *RedisSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer != nil {
		return s.closer()
	}
	return nil
}
