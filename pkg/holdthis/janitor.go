package holdthis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/slog"
	"golang.org/x/time/rate"
)

// Cleaner purges expired rows. It is implemented by Store.
type Cleaner interface {
	Clean(ctx context.Context, topics ...string) (int64, error)
}

// Janitor periodically removes expired rows in the background.
// Expired rows are already invisible to reads; the janitor only reclaims space.
type Janitor struct {
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	cleaner  Cleaner
	interval time.Duration
	logger   *slog.Logger
	warn     rate.Sometimes

	runs    atomic.Int64
	failed  atomic.Int64
	removed atomic.Int64
}

// NewJanitor creates a janitor that calls cleaner every interval.
func NewJanitor(cleaner Cleaner, interval time.Duration, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		cleaner:  cleaner,
		interval: interval,
		logger:   logger,
		warn:     rate.Sometimes{First: 1, Interval: time.Minute},
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the janitor goroutine.
// This is non-blocking. Call Stop() to shut it down.
func (j *Janitor) Start(ctx context.Context) error {
	if j.interval <= 0 {
		return errors.New("janitor interval must be positive")
	}

	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	// Reset channels for restart capability
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.run(ctx, j.stopCh, j.doneCh)
	j.logger.Debug("janitor started", slog.Duration("interval", j.interval))
	return nil
}

// Stop stops the janitor and waits for a running purge to finish.
func (j *Janitor) Stop() error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = false
	stopCh, doneCh := j.stopCh, j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh
	j.logger.Debug("janitor stopped",
		slog.Int64("runs", j.runs.Load()),
		slog.Int64("removed", j.removed.Load()))
	return nil
}

// IsRunning returns whether the janitor goroutine is running.
func (j *Janitor) IsRunning() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.running
}

// Stats returns statistics about the janitor.
func (j *Janitor) Stats() map[string]interface{} {
	return map[string]interface{}{
		"running":  j.IsRunning(),
		"interval": j.interval.String(),
		"runs":     j.runs.Load(),
		"failed":   j.failed.Load(),
		"removed":  j.removed.Load(),
	}
}

func (j *Janitor) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			j.markStopped()
			return
		case <-ticker.C:
			if !j.clean(ctx) {
				j.markStopped()
				return
			}
		}
	}
}

// clean runs one purge. It returns false once the store is closed.
func (j *Janitor) clean(ctx context.Context) bool {
	j.runs.Add(1)
	removed, err := j.cleaner.Clean(ctx)
	if err != nil {
		if errors.Is(err, ErrStoreClosed) {
			return false
		}
		j.failed.Add(1)
		j.warn.Do(func() {
			j.logger.Warn("janitor failed to purge expired rows",
				slog.Int64("failures", j.failed.Load()),
				slog.Any("error", err))
		})
		return true
	}

	j.removed.Add(removed)
	if removed > 0 {
		j.logger.Debug("janitor purged expired rows", slog.Int64("removed", removed))
	}
	return true
}

func (j *Janitor) markStopped() {
	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}
