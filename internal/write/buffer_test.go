package write

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/holdthis/internal/core"
	"github.com/rzpsarthak13/holdthis/internal/futures"
)

type recordingExecutor struct {
	mu      sync.Mutex
	batches [][]core.Statement
	err     error
}

func (e *recordingExecutor) ExecuteBatch(_ context.Context, statements []core.Statement) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.batches = append(e.batches, statements)
	return nil
}

func (e *recordingExecutor) Batches() [][]core.Statement {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]core.Statement, len(e.batches))
	copy(out, e.batches)
	return out
}

type recordingObserver struct {
	mu     sync.Mutex
	events []core.FlushEvent
}

func (o *recordingObserver) OnFlush(_ context.Context, event core.FlushEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

func (o *recordingObserver) Events() []core.FlushEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]core.FlushEvent, len(o.events))
	copy(out, o.events)
	return out
}

func stmt(topic string, i int) core.Statement {
	return core.Statement{Topic: topic, Query: "INSERT", Args: []interface{}{i}}
}

func TestThresholdFlushIsSynchronous(t *testing.T) {
	exec := &recordingExecutor{}
	obs := &recordingObserver{}
	w := NewBufferedWriter(exec, BufferedWriterConfig{Threshold: 3, Timeout: time.Hour, Observer: obs})
	defer w.Close(context.Background())

	ctx := context.Background()
	var futs []futures.Future[core.FlushResult]
	for i := 0; i < 3; i++ {
		fut, err := w.Append(ctx, stmt("t", i))
		require.NoError(t, err)
		futs = append(futs, fut)
	}

	batches := exec.Batches()
	require.Len(t, batches, 1)
	require.Equal(t, []core.Statement{stmt("t", 0), stmt("t", 1), stmt("t", 2)}, batches[0])
	require.Equal(t, 0, w.Size())

	results, err := futures.WaitAll(futs)
	require.NoError(t, err)
	for _, result := range results {
		require.Equal(t, core.TriggerThreshold, result.Trigger)
		require.Equal(t, 3, result.Entries)
		require.Equal(t, results[0].ID, result.ID)
	}

	events := obs.Events()
	require.Len(t, events, 1)
	require.Equal(t, results[0].ID, events[0].ID)
	require.Equal(t, core.TriggerThreshold, events[0].Trigger)
	require.Equal(t, 3, events[0].Entries)
	require.Equal(t, []string{"t"}, events[0].Topics)
	require.NoError(t, events[0].Err)
}

func TestDebounceFlush(t *testing.T) {
	exec := &recordingExecutor{}
	obs := &recordingObserver{}
	w := NewBufferedWriter(exec, BufferedWriterConfig{Threshold: 100, Timeout: 50 * time.Millisecond, Observer: obs})
	defer w.Close(context.Background())

	ctx := context.Background()
	fut, err := w.Append(ctx, stmt("a", 0))
	require.NoError(t, err)
	_, err = w.Append(ctx, stmt("b", 1))
	require.NoError(t, err)

	require.Empty(t, exec.Batches())
	require.Equal(t, 2, w.Size())

	result, err := fut.WaitContext(timeoutCtx(t, 5*time.Second))
	require.NoError(t, err)
	require.Equal(t, core.TriggerTimeout, result.Trigger)
	require.Equal(t, 2, result.Entries)

	require.Len(t, exec.Batches(), 1)
	require.Eventually(t, func() bool { return len(obs.Events()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"a", "b"}, obs.Events()[0].Topics)
}

func TestDebounceRearmsOnAppend(t *testing.T) {
	exec := &recordingExecutor{}
	timeout := 100 * time.Millisecond
	w := NewBufferedWriter(exec, BufferedWriterConfig{Threshold: 100, Timeout: timeout})
	defer w.Close(context.Background())

	ctx := context.Background()
	start := time.Now()
	var last futures.Future[core.FlushResult]
	for i := 0; i < 5; i++ {
		fut, err := w.Append(ctx, stmt("t", i))
		require.NoError(t, err)
		last = fut
		time.Sleep(timeout / 4)
	}

	_, err := last.WaitContext(timeoutCtx(t, 5*time.Second))
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), timeout+4*(timeout/4))

	batches := exec.Batches()
	require.Len(t, batches, 1, "re-armed timer must flush once")
	require.Len(t, batches[0], 5)
}

func TestStaleTimerLeavesLaterAppendsBuffered(t *testing.T) {
	exec := &recordingExecutor{}
	w := NewBufferedWriter(exec, BufferedWriterConfig{Threshold: 10, Timeout: time.Hour})
	defer w.Close(context.Background())
	ctx := context.Background()

	_, err := w.Append(ctx, stmt("t", 0))
	require.NoError(t, err)
	w.mu.Lock()
	fired := w.gen
	w.mu.Unlock()

	// The timer fires while another flush holds flushMu, and an append lands
	// before it gets to drain.
	w.flushMu.Lock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.onTimer(fired)
	}()
	_, err = w.Append(ctx, stmt("t", 1))
	require.NoError(t, err)
	w.flushMu.Unlock()
	<-done

	require.Empty(t, exec.Batches())
	require.Equal(t, 2, w.Size())

	w.mu.Lock()
	current := w.gen
	w.mu.Unlock()
	w.onTimer(current)

	batches := exec.Batches()
	require.Len(t, batches, 1)
	require.Equal(t, []core.Statement{stmt("t", 0), stmt("t", 1)}, batches[0])
	require.Zero(t, w.Size())
}

func TestManualFlush(t *testing.T) {
	exec := &recordingExecutor{}
	w := NewBufferedWriter(exec, BufferedWriterConfig{Threshold: 100, Timeout: time.Hour})
	defer w.Close(context.Background())

	ctx := context.Background()
	require.NoError(t, w.Flush(ctx), "flushing an empty buffer is a no-op")
	require.Empty(t, exec.Batches())

	fut, err := w.Append(ctx, stmt("t", 0))
	require.NoError(t, err)
	require.NoError(t, w.Flush(ctx))

	result, err := fut.Wait()
	require.NoError(t, err)
	require.Equal(t, core.TriggerManual, result.Trigger)
	require.Len(t, exec.Batches(), 1)
}

func TestFailedFlushRejectsEveryEntry(t *testing.T) {
	boom := errors.New("disk on fire")
	exec := &recordingExecutor{err: boom}
	obs := &recordingObserver{}
	w := NewBufferedWriter(exec, BufferedWriterConfig{Threshold: 2, Timeout: time.Hour, Observer: obs})
	defer w.Close(context.Background())

	ctx := context.Background()
	first, err := w.Append(ctx, stmt("t", 0))
	require.NoError(t, err)

	second, err := w.Append(ctx, stmt("t", 1))
	require.ErrorIs(t, err, boom, "threshold caller receives the flush error")

	_, err = first.Wait()
	require.ErrorIs(t, err, boom)
	_, err = second.Wait()
	require.ErrorIs(t, err, boom)

	events := obs.Events()
	require.Len(t, events, 1)
	require.ErrorIs(t, events[0].Err, boom)
	require.Equal(t, boom.Error(), events[0].Error)

	stats := w.Stats()
	require.Equal(t, int64(1), stats["failed_flushes"])
	require.Equal(t, int64(0), stats["total_flushed"])
}

func TestTimerFlushErrorReachesObserver(t *testing.T) {
	boom := errors.New("locked")
	exec := &recordingExecutor{err: boom}
	obs := &recordingObserver{}
	w := NewBufferedWriter(exec, BufferedWriterConfig{Threshold: 10, Timeout: 10 * time.Millisecond, Observer: obs})
	defer w.Close(context.Background())

	fut, err := w.Append(context.Background(), stmt("t", 0))
	require.NoError(t, err)

	_, err = fut.WaitContext(timeoutCtx(t, 5*time.Second))
	require.ErrorIs(t, err, boom)
	require.Eventually(t, func() bool {
		events := obs.Events()
		return len(events) == 1 && errors.Is(events[0].Err, boom)
	}, time.Second, 5*time.Millisecond)
}

func TestCloseDrainsAndRejects(t *testing.T) {
	exec := &recordingExecutor{}
	w := NewBufferedWriter(exec, BufferedWriterConfig{Threshold: 100, Timeout: time.Hour})

	ctx := context.Background()
	fut, err := w.Append(ctx, stmt("t", 0))
	require.NoError(t, err)

	require.NoError(t, w.Close(ctx))
	result, err := fut.Wait()
	require.NoError(t, err)
	require.Equal(t, core.TriggerClose, result.Trigger)

	_, err = w.Append(ctx, stmt("t", 1))
	require.ErrorIs(t, err, ErrBufferClosed)
	require.NoError(t, w.Close(ctx))
	require.Equal(t, true, w.Stats()["closed"])
}

func TestConcurrentAppendsNeverDrainTwice(t *testing.T) {
	exec := &recordingExecutor{}
	w := NewBufferedWriter(exec, BufferedWriterConfig{Threshold: 7, Timeout: time.Millisecond})

	ctx := context.Background()
	const writers, perWriter = 8, 50

	var wg sync.WaitGroup
	futs := make([][]futures.Future[core.FlushResult], writers)
	for g := 0; g < writers; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				fut, err := w.Append(ctx, stmt(fmt.Sprintf("t%d", g), i))
				if err != nil {
					t.Errorf("append failed: %v", err)
					return
				}
				futs[g] = append(futs[g], fut)
			}
		}(g)
	}
	wg.Wait()
	require.NoError(t, w.Close(ctx))

	total := 0
	for _, batch := range exec.Batches() {
		total += len(batch)
	}
	require.Equal(t, writers*perWriter, total)

	// Entries from one writer commit in append order.
	for g := 0; g < writers; g++ {
		topic := fmt.Sprintf("t%d", g)
		next := 0
		for _, batch := range exec.Batches() {
			for _, s := range batch {
				if s.Topic == topic {
					require.Equal(t, next, s.Args[0])
					next++
				}
			}
		}
		require.Equal(t, perWriter, next)

		_, err := futures.WaitAll(futs[g])
		require.NoError(t, err)
	}
}

func TestDefaults(t *testing.T) {
	w := NewBufferedWriter(BatchExecutorFunc(func(context.Context, []core.Statement) error { return nil }), BufferedWriterConfig{})
	defer w.Close(context.Background())

	stats := w.Stats()
	require.Equal(t, DefaultThreshold, stats["threshold"])
	require.Equal(t, DefaultTimeout.String(), stats["timeout"])
}

func timeoutCtx(t *testing.T, d time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}
