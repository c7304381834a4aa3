package core

import (
	"context"
	"time"
)

// FlushTrigger identifies what caused the buffered writer to drain.
type FlushTrigger string

const (
	// TriggerThreshold is a flush caused by the buffer reaching its size threshold.
	TriggerThreshold FlushTrigger = "threshold"

	// TriggerTimeout is a flush caused by the debounce timer firing.
	TriggerTimeout FlushTrigger = "timeout"

	// TriggerManual is a flush requested explicitly by the caller.
	TriggerManual FlushTrigger = "manual"

	// TriggerClose is the final drain performed when the writer closes.
	TriggerClose FlushTrigger = "close"
)

// FlushResult is delivered to every buffered entry once its batch has been
// committed or rolled back.
type FlushResult struct {
	// ID identifies the flush. All entries of one batch share it.
	ID string

	// Trigger is what caused the flush.
	Trigger FlushTrigger

	// Entries is the number of statements in the batch.
	Entries int
}

// FlushEvent describes a completed flush. It is emitted for every
// non-empty flush, successful or not.
type FlushEvent struct {
	ID        string        `json:"id"`
	Trigger   FlushTrigger  `json:"trigger"`
	Entries   int           `json:"entries"`
	Topics    []string      `json:"topics"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`

	// Err is the commit error, if any. Error carries its text for encoders.
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// FlushObserver receives flush events. Implementations must not block for long;
// they are called synchronously after the batch transaction completes.
type FlushObserver interface {
	OnFlush(ctx context.Context, event FlushEvent)
}
