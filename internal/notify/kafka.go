package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/segmentio/kafka-go"
	"golang.org/x/exp/slog"

	"github.com/rzpsarthak13/holdthis/internal/core"
	"github.com/rzpsarthak13/holdthis/internal/registry"
)

// MessageWriter is the subset of kafka.Writer used by KafkaSink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink produces every flush event to a Kafka topic, keyed by flush id.
type KafkaSink struct {
	writer MessageWriter
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewKafkaSink creates a sink producing through writer. Close closes writer.
func NewKafkaSink(writer MessageWriter, logger *slog.Logger) *KafkaSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaSink{writer: writer, logger: logger}
}

// NewKafkaWriter builds a synchronous producer for the configured topic.
func NewKafkaWriter(config registry.InternalKafkaConfig) (*kafka.Writer, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("Kafka topic is required")
	}

	return &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    config.BatchSize,
		BatchTimeout: config.BatchTimeout,
		WriteTimeout: config.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(config.RequiredAcks),
		MaxAttempts:  3,
		Async:        false,
	}, nil
}

func (s *KafkaSink) OnFlush(ctx context.Context, event core.FlushEvent) {
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

	status := "ok"
	if event.Err != nil {
		status = "failed"
	}
	message := kafka.Message{
		Key:   []byte(event.ID),
		Value: payload,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "trigger", Value: []byte(event.Trigger)},
			{Key: "topics", Value: []byte(strings.Join(event.Topics, ","))},
			{Key: "status", Value: []byte(status)},
		},
	}

	if err := s.writer.WriteMessages(ctx, message); err != nil {
		s.logger.Warn("failed to produce flush event",
			slog.String("flush_id", event.ID),
			slog.Any("error", err))
	}
}

// Close closes the underlying writer. Closing twice is a no-op.
func (s *KafkaSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}
	return nil
}
