package write

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/rzpsarthak13/holdthis/internal/core"
	"github.com/rzpsarthak13/holdthis/internal/futures"
)

// ErrBufferClosed is returned when trying to write to a closed buffer.
var ErrBufferClosed = errors.New("write buffer is closed")

const (
	// DefaultThreshold is the pending entry count that forces a flush.
	DefaultThreshold = 1000

	// DefaultTimeout is the quiet period after the last append that triggers a flush.
	DefaultTimeout = 500 * time.Millisecond
)

// BatchExecutor runs a batch of statements atomically.
type BatchExecutor interface {
	ExecuteBatch(ctx context.Context, statements []core.Statement) error
}

// BatchExecutorFunc adapts a function to BatchExecutor.
type BatchExecutorFunc func(ctx context.Context, statements []core.Statement) error

// ExecuteBatch calls f.
func (f BatchExecutorFunc) ExecuteBatch(ctx context.Context, statements []core.Statement) error {
	return f(ctx, statements)
}

// BufferedWriterConfig contains configuration for the buffered writer.
type BufferedWriterConfig struct {
	// Threshold is the number of pending entries that triggers a synchronous flush.
	Threshold int

	// Timeout is the debounce interval. Every append re-arms the timer, so it
	// measures the quiet time since the last append.
	Timeout time.Duration

	// Observer receives an event for every non-empty flush. Optional.
	Observer core.FlushObserver

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

type pendingEntry struct {
	statement core.Statement
	future    futures.Future[core.FlushResult]
}

// BufferedWriter accumulates statements and executes them in one batch when
// the threshold is reached or the debounce timer fires, whichever comes first.
//
// mu guards the pending entries and the timer. flushMu serializes flushes,
// and a batch is taken from pending only while holding it, so batches commit
// in append order and no entry is drained twice.
type BufferedWriter struct {
	executor  BatchExecutor
	threshold int
	timeout   time.Duration
	observer  core.FlushObserver
	logger    *slog.Logger

	mu      sync.Mutex
	pending []pendingEntry
	timer   *time.Timer
	gen     uint64
	closed  bool

	flushMu sync.Mutex

	totalAppends  atomic.Int64
	totalFlushes  atomic.Int64
	failedFlushes atomic.Int64
	totalFlushed  atomic.Int64
}

// NewBufferedWriter creates a buffered writer that drains into executor.
func NewBufferedWriter(executor BatchExecutor, config BufferedWriterConfig) *BufferedWriter {
	if config.Threshold <= 0 {
		config.Threshold = DefaultThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &BufferedWriter{
		executor:  executor,
		threshold: config.Threshold,
		timeout:   config.Timeout,
		observer:  config.Observer,
		logger:    config.Logger,
		pending:   make([]pendingEntry, 0, config.Threshold),
	}
}

// Append queues a statement. The returned future resolves once the batch
// containing it has been committed or rolled back.
//
// When the append reaches the threshold the buffer is flushed before Append
// returns, and the flush error is returned directly. Otherwise the debounce
// timer is re-armed and the error is only available through the future and
// the flush event.
func (b *BufferedWriter) Append(ctx context.Context, statement core.Statement) (futures.Future[core.FlushResult], error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBufferClosed
	}

	future := futures.New[core.FlushResult]()
	b.pending = append(b.pending, pendingEntry{statement: statement, future: future})
	b.totalAppends.Add(1)

	if len(b.pending) < b.threshold {
		b.armTimerLocked()
		b.mu.Unlock()
		return future, nil
	}

	b.stopTimerLocked()
	b.mu.Unlock()

	b.flush(ctx, core.TriggerThreshold)
	if _, err := future.Wait(); err != nil {
		return future, err
	}
	return future, nil
}

// Flush drains the buffer immediately. Flushing an empty buffer is a no-op.
func (b *BufferedWriter) Flush(ctx context.Context) error {
	return b.flush(ctx, core.TriggerManual)
}

// Close drains the buffer and rejects further appends with ErrBufferClosed.
// Closing twice is a no-op.
func (b *BufferedWriter) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.stopTimerLocked()
	b.mu.Unlock()

	return b.flush(ctx, core.TriggerClose)
}

// Size returns the number of pending entries.
func (b *BufferedWriter) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Stats returns statistics about the buffered writer.
func (b *BufferedWriter) Stats() map[string]interface{} {
	b.mu.Lock()
	pending := len(b.pending)
	closed := b.closed
	b.mu.Unlock()

	return map[string]interface{}{
		"pending_entries": pending,
		"threshold":       b.threshold,
		"timeout":         b.timeout.String(),
		"total_appends":   b.totalAppends.Load(),
		"total_flushes":   b.totalFlushes.Load(),
		"failed_flushes":  b.failedFlushes.Load(),
		"total_flushed":   b.totalFlushed.Load(),
		"closed":          closed,
	}
}

// armTimerLocked cancels the pending timer and arms a new one. The
// generation counter turns a timer that fired concurrently with the re-arm
// into a no-op.
func (b *BufferedWriter) armTimerLocked() {
	b.stopTimerLocked()
	gen := b.gen
	b.timer = time.AfterFunc(b.timeout, func() { b.onTimer(gen) })
}

func (b *BufferedWriter) stopTimerLocked() {
	b.gen++
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// onTimer flushes the buffer if no append or flush has happened since the
// timer with generation gen was armed. The generation is checked in the same
// critical section that drains the buffer.
func (b *BufferedWriter) onTimer(gen uint64) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if gen != b.gen || b.closed {
		b.mu.Unlock()
		return
	}
	b.timer = nil
	batch := b.takeLocked()
	b.mu.Unlock()

	// No caller waits on a timer flush; failures reach the futures and the observer.
	_ = b.execute(context.Background(), core.TriggerTimeout, batch)
}

func (b *BufferedWriter) flush(ctx context.Context, trigger core.FlushTrigger) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	batch := b.takeLocked()
	b.mu.Unlock()

	return b.execute(ctx, trigger, batch)
}

// takeLocked removes and returns the pending entries.
func (b *BufferedWriter) takeLocked() []pendingEntry {
	batch := b.pending
	b.pending = make([]pendingEntry, 0, b.threshold)
	if len(batch) > 0 {
		b.stopTimerLocked()
	}
	return batch
}

// execute runs batch and settles its futures. Callers hold flushMu.
func (b *BufferedWriter) execute(ctx context.Context, trigger core.FlushTrigger, batch []pendingEntry) error {
	if len(batch) == 0 {
		return nil
	}

	statements := make([]core.Statement, len(batch))
	for i, entry := range batch {
		statements[i] = entry.statement
	}

	id := uuid.NewString()
	start := time.Now()
	err := b.executor.ExecuteBatch(ctx, statements)
	duration := time.Since(start)

	b.totalFlushes.Add(1)
	if err != nil {
		b.failedFlushes.Add(1)
		b.logger.Warn("buffered flush failed",
			slog.String("flush_id", id),
			slog.String("trigger", string(trigger)),
			slog.Int("entries", len(batch)),
			slog.Any("error", err))
	} else {
		b.totalFlushed.Add(int64(len(batch)))
		b.logger.Debug("flushed buffer",
			slog.String("flush_id", id),
			slog.String("trigger", string(trigger)),
			slog.Int("entries", len(batch)),
			slog.Duration("duration", duration))
	}

	if b.observer != nil {
		event := core.FlushEvent{
			ID:        id,
			Trigger:   trigger,
			Entries:   len(batch),
			Topics:    topicsOf(statements),
			Duration:  duration,
			Timestamp: start,
			Err:       err,
		}
		if err != nil {
			event.Error = err.Error()
		}
		b.observer.OnFlush(ctx, event)
	}

	result := core.FlushResult{ID: id, Trigger: trigger, Entries: len(batch)}
	for _, entry := range batch {
		entry.future.ResolveOrReject(result, err)
	}
	return err
}

func topicsOf(statements []core.Statement) []string {
	seen := make(map[string]struct{}, 1)
	topics := make([]string, 0, 1)
	for _, statement := range statements {
		if _, ok := seen[statement.Topic]; ok {
			continue
		}
		seen[statement.Topic] = struct{}{}
		topics = append(topics, statement.Topic)
	}
	sort.Strings(topics)
	return topics
}
