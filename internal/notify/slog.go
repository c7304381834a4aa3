package notify

import (
	"context"

	"golang.org/x/exp/slog"

	"github.com/rzpsarthak13/holdthis/internal/core"
)

// SlogSink logs every flush event. Failed flushes are logged at error level.
type SlogSink struct {
	logger *slog.Logger
	level  slog.Level
}

// NewSlogSink creates a sink logging successful flushes at level.
func NewSlogSink(logger *slog.Logger, level slog.Level) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger, level: level}
}

func (s *SlogSink) OnFlush(ctx context.Context, event core.FlushEvent) {
	attrs := []slog.Attr{
		slog.String("flush_id", event.ID),
		slog.String("trigger", string(event.Trigger)),
		slog.Int("entries", event.Entries),
		slog.Any("topics", event.Topics),
		slog.Duration("duration", event.Duration),
	}

	level := s.level
	if event.Err != nil {
		level = slog.LevelError
		attrs = append(attrs, slog.Any("error", event.Err))
	}
	s.logger.LogAttrs(ctx, level, "flush completed", attrs...)
}

func (s *SlogSink) Close() error { return nil }
