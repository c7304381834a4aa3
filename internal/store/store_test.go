package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/holdthis/internal/core"
	"github.com/rzpsarthak13/holdthis/internal/registry"
	"github.com/rzpsarthak13/holdthis/internal/ttl"
	"github.com/rzpsarthak13/holdthis/internal/write"
)

type yamlConfig string

func (c yamlConfig) GetYAML() ([]byte, error) { return []byte(c), nil }

type eventLog struct {
	mu     sync.Mutex
	events []core.FlushEvent
}

func (l *eventLog) OnFlush(_ context.Context, event core.FlushEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) Events() []core.FlushEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]core.FlushEvent(nil), l.events...)
}

func newStore(t *testing.T, yaml string, opts Options) *Store {
	t.Helper()
	s, err := New(context.Background(), yamlConfig(yaml), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func keysOf(records []core.Record) []string {
	keys := make([]string, len(records))
	for i, record := range records {
		keys[i] = record.Key
	}
	return keys
}

func ttlOf(d time.Duration) SetOptions {
	return SetOptions{TTL: &d}
}

func TestSetThenGet(t *testing.T) {
	s := newStore(t, "", Options{})
	ctx := context.Background()

	result, err := s.Set(ctx, "t", "a:b", "v", SetOptions{})
	require.NoError(t, err)
	require.Equal(t, int64(1), result.RowsAffected)

	records, err := s.Get(ctx, "t", "a:b")
	require.NoError(t, err)
	require.Equal(t, []core.Record{{Key: "a:b", Value: "v"}}, records)
	require.Equal(t, []string{"t"}, s.Topics())
}

func TestGetWithWildcard(t *testing.T) {
	s := newStore(t, "", Options{})
	ctx := context.Background()

	_, err := s.Set(ctx, "topic", "x:1", "one", SetOptions{})
	require.NoError(t, err)
	_, err = s.Set(ctx, "topic", "x:2", "two", SetOptions{})
	require.NoError(t, err)
	_, err = s.Set(ctx, "topic", "y:1", "three", SetOptions{})
	require.NoError(t, err)

	records, err := s.Get(ctx, "topic", "x:*")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"x:1", "x:2"}, keysOf(records))

	records, err = s.Get(ctx, "topic", "*")
	require.NoError(t, err)
	require.Len(t, records, 3)
}

func TestDefaultTopicAndKey(t *testing.T) {
	s := newStore(t, "", Options{})
	ctx := context.Background()

	_, err := s.Set(ctx, "", "", "v", SetOptions{})
	require.NoError(t, err)

	records, err := s.Get(ctx, "topic", "key")
	require.NoError(t, err)
	require.Equal(t, []string{"key"}, keysOf(records))
}

func TestUpsertKeepsLatestValue(t *testing.T) {
	s := newStore(t, "", Options{})
	ctx := context.Background()

	_, err := s.Set(ctx, "t", "k", "first", SetOptions{})
	require.NoError(t, err)
	_, err = s.Set(ctx, "t", "k", "second", SetOptions{})
	require.NoError(t, err)

	records, err := s.Get(ctx, "t", "k")
	require.NoError(t, err)
	require.Equal(t, []core.Record{{Key: "k", Value: "second"}}, records)
}

func TestTurboAppendsDuplicates(t *testing.T) {
	s := newStore(t, "turbo: true\n", Options{})
	ctx := context.Background()

	_, err := s.Set(ctx, "t", "k", "first", SetOptions{})
	require.NoError(t, err)
	_, err = s.Set(ctx, "t", "k", "second", SetOptions{})
	require.NoError(t, err)

	records, err := s.Get(ctx, "t", "k")
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestStructuredValuesRoundTrip(t *testing.T) {
	s := newStore(t, "", Options{})
	ctx := context.Background()

	value := map[string]interface{}{"n": int64(3), "ok": true}
	_, err := s.Set(ctx, "t", "k", value, SetOptions{})
	require.NoError(t, err)
	_, err = s.Set(ctx, "t", "j", map[string]interface{}{"a": "b"}, SetOptions{JSON: true})
	require.NoError(t, err)

	records, err := s.Get(ctx, "t", "k")
	require.NoError(t, err)
	require.Equal(t, value, records[0].Value)

	records, err = s.Get(ctx, "t", "j")
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{"a": "b"}, records[0].Value)
}

func TestUnencodableValue(t *testing.T) {
	s := newStore(t, "", Options{})
	_, err := s.Set(context.Background(), "t", "k", make(chan int), SetOptions{})
	require.ErrorIs(t, err, core.ErrSerialization)
}

func TestArityConflict(t *testing.T) {
	s := newStore(t, "", Options{})
	ctx := context.Background()

	_, err := s.Init(ctx, "t", "a:b")
	require.NoError(t, err)

	_, err = s.Set(ctx, "t", "a", "v", SetOptions{})
	require.ErrorIs(t, err, core.ErrSchemaConflict)

	_, err = s.Prepare(ctx, "t", "a:b:c", "v", SetOptions{})
	require.ErrorIs(t, err, core.ErrSchemaConflict)

	_, err = s.Get(ctx, "t", "a:b:c")
	require.ErrorIs(t, err, core.ErrSchemaConflict)
}

func TestGetWithKeyPrefix(t *testing.T) {
	s := newStore(t, "", Options{})
	ctx := context.Background()

	_, err := s.Set(ctx, "t", "x:1", "v1", SetOptions{})
	require.NoError(t, err)
	_, err = s.Set(ctx, "t", "x:2", "v2", SetOptions{})
	require.NoError(t, err)
	_, err = s.Set(ctx, "t", "y:1", "v3", SetOptions{})
	require.NoError(t, err)

	records, err := s.Get(ctx, "t", "x")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"x:1", "x:2"}, keysOf(records))
}

func TestUnknownAndInvalidTopics(t *testing.T) {
	s := newStore(t, "", Options{})
	ctx := context.Background()

	records, err := s.Get(ctx, "never_written", "k")
	require.NoError(t, err)
	require.Nil(t, records)

	_, err = s.Get(ctx, "drop table", "k")
	require.ErrorIs(t, err, core.ErrInvalidTopic)
	_, err = s.Set(ctx, "t;--", "k", "v", SetOptions{})
	require.ErrorIs(t, err, core.ErrInvalidTopic)
}

func TestTTLAndClean(t *testing.T) {
	clock := ttl.NewManualClock(time.UnixMilli(1_700_000_000_000))
	s := newStore(t, "", Options{Clock: clock})
	ctx := context.Background()

	_, err := s.Set(ctx, "a", "gone", "v", ttlOf(0))
	require.NoError(t, err)
	_, err = s.Set(ctx, "a", "soon", "v", ttlOf(time.Minute))
	require.NoError(t, err)
	_, err = s.Set(ctx, "a", "forever", "v", SetOptions{})
	require.NoError(t, err)
	_, err = s.Set(ctx, "b", "gone", "v", ttlOf(0))
	require.NoError(t, err)

	records, err := s.Get(ctx, "a", "*")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"soon", "forever"}, keysOf(records))

	removed, err := s.Clean(ctx, "a", "unknown")
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	clock.Advance(time.Hour)
	records, err = s.Get(ctx, "a", "*")
	require.NoError(t, err)
	require.Equal(t, []string{"forever"}, keysOf(records))

	removed, err = s.Clean(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), removed, "soon in a and gone in b")

	var buf bytes.Buffer
	s.WriteMetrics(&buf)
	require.Contains(t, buf.String(), "holdthis_purged_rows_total 3")
}

func TestNegativeTTLNeverExpires(t *testing.T) {
	clock := ttl.NewManualClock(time.UnixMilli(1_700_000_000_000))
	s := newStore(t, "", Options{Clock: clock})
	ctx := context.Background()

	_, err := s.Set(ctx, "t", "k", "v", ttlOf(-time.Minute))
	require.NoError(t, err)

	clock.Advance(24 * time.Hour)
	records, err := s.Get(ctx, "t", "k")
	require.NoError(t, err)
	require.Equal(t, []core.Record{{Key: "k", Value: "v"}}, records)

	removed, err := s.Clean(ctx, "t")
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestSetBulkIsAllOrNothing(t *testing.T) {
	s := newStore(t, "", Options{})
	ctx := context.Background()

	first, err := s.Prepare(ctx, "t", "a", "1", SetOptions{})
	require.NoError(t, err)
	second, err := s.Prepare(ctx, "t", "b", "2", SetOptions{})
	require.NoError(t, err)

	require.NoError(t, s.SetBulk(ctx, "t", "a", []core.Statement{first, second}))
	records, err := s.Get(ctx, "t", "*")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, keysOf(records))

	third, err := s.Prepare(ctx, "t", "c", "3", SetOptions{})
	require.NoError(t, err)
	broken := core.Statement{Topic: "t", Query: "INSERT INTO missing_table VALUES (1)"}

	err = s.SetBulk(ctx, "t", "a", []core.Statement{third, broken})
	require.ErrorIs(t, err, core.ErrEngine)

	records, err = s.Get(ctx, "t", "c")
	require.NoError(t, err)
	require.Empty(t, records, "failed batch must not commit any entry")
}

func TestSetBufferedThreshold(t *testing.T) {
	events := &eventLog{}
	s := newStore(t, "buffer:\n  threshold: 2\n  timeout: 1h\n", Options{Observers: []core.FlushObserver{events}})
	ctx := context.Background()

	first, err := s.SetBuffered(ctx, "t", "a", "1", SetOptions{})
	require.NoError(t, err)

	records, err := s.Get(ctx, "t", "a")
	require.NoError(t, err)
	require.Empty(t, records, "pending writes are not visible")

	_, err = s.SetBuffered(ctx, "t", "b", "2", SetOptions{})
	require.NoError(t, err)

	records, err = s.Get(ctx, "t", "*")
	require.NoError(t, err)
	require.Len(t, records, 2)

	result, err := first.Wait()
	require.NoError(t, err)
	require.Equal(t, core.TriggerThreshold, result.Trigger)
	require.Equal(t, 2, result.Entries)

	require.Len(t, events.Events(), 1)
	require.Equal(t, []string{"t"}, events.Events()[0].Topics)

	var buf bytes.Buffer
	s.WriteMetrics(&buf)
	require.Contains(t, buf.String(), "holdthis_buffered_total 2")
	require.Contains(t, buf.String(), "holdthis_flushes_total 1")
}

func TestSetBufferedDebounce(t *testing.T) {
	s := newStore(t, "buffer:\n  threshold: 100\n  timeout: 20ms\n", Options{})
	ctx := context.Background()

	fut, err := s.SetBuffered(ctx, "t", "a", "1", SetOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		records, err := s.Get(ctx, "t", "a")
		return err == nil && len(records) == 1
	}, 5*time.Second, 5*time.Millisecond)

	result, err := fut.Wait()
	require.NoError(t, err)
	require.Equal(t, core.TriggerTimeout, result.Trigger)
}

func TestFlushAndClose(t *testing.T) {
	s, err := New(context.Background(), yamlConfig("buffer:\n  timeout: 1h\n"), Options{})
	require.NoError(t, err)
	ctx := context.Background()

	a, err := s.SetBuffered(ctx, "t", "a", "1", SetOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))
	result, err := a.Wait()
	require.NoError(t, err)
	require.Equal(t, core.TriggerManual, result.Trigger)

	b, err := s.SetBuffered(ctx, "t", "b", "2", SetOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))
	result, err = b.Wait()
	require.NoError(t, err)
	require.Equal(t, core.TriggerClose, result.Trigger)

	require.NoError(t, s.Close(ctx))
	_, err = s.Set(ctx, "t", "c", "3", SetOptions{})
	require.ErrorIs(t, err, core.ErrStoreClosed)
	_, err = s.Get(ctx, "t", "a")
	require.ErrorIs(t, err, core.ErrStoreClosed)
	require.Equal(t, true, s.Stats()["closed"])
}

func TestConn(t *testing.T) {
	s := newStore(t, "", Options{})
	_, err := s.Conn()
	require.ErrorIs(t, err, core.ErrConnectionNotExposed)

	exposed := newStore(t, "expose_connection: true\n", Options{})
	db, err := exposed.Conn()
	require.NoError(t, err)
	require.NoError(t, db.Ping())
}

func TestOnTopicInit(t *testing.T) {
	s := newStore(t, "", Options{})
	ctx := context.Background()

	var seen []core.TopicSchema
	s.OnTopicInit(registry.LifecycleHookFunc(func(_ context.Context, topic core.TopicSchema) error {
		seen = append(seen, topic)
		return nil
	}))

	_, err := s.Set(ctx, "t", "a:b:c", "v", SetOptions{})
	require.NoError(t, err)
	_, err = s.Set(ctx, "t", "d:e:f", "v", SetOptions{})
	require.NoError(t, err)

	require.Equal(t, []core.TopicSchema{{Name: "t", Arity: 3}}, seen)

	s.OnTopicInit(registry.LifecycleHookFunc(func(context.Context, core.TopicSchema) error {
		return errors.New("refused")
	}))
	_, err = s.Set(ctx, "other", "k", "v", SetOptions{})
	require.Error(t, err)
	require.Equal(t, []string{"t"}, s.Topics())
}

func TestCloseWaitsForInFlightOperations(t *testing.T) {
	s, err := New(context.Background(), yamlConfig(""), Options{})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Set(ctx, "t", "warm", "v", SetOptions{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 400)
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if _, err := s.Set(ctx, "t", fmt.Sprintf("%d-%d", g, i), "v", SetOptions{}); err != nil {
					errs <- err
				}
			}
		}(g)
	}
	require.NoError(t, s.Close(ctx))
	wg.Wait()
	close(errs)

	for err := range errs {
		require.ErrorIs(t, err, core.ErrStoreClosed)
	}
	_, err = s.Get(ctx, "t", "warm")
	require.ErrorIs(t, err, core.ErrStoreClosed)
}

func TestStats(t *testing.T) {
	s := newStore(t, "", Options{})
	_, err := s.Set(context.Background(), "t", "k", "v", SetOptions{})
	require.NoError(t, err)

	stats := s.Stats()
	require.Equal(t, "sqlite", stats["engine"])
	require.Equal(t, 1, stats["topics"])
	require.Equal(t, write.DefaultThreshold, stats["buffer"].(map[string]interface{})["threshold"])
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(context.Background(), nil, Options{})
	require.Error(t, err)

	_, err = New(context.Background(), yamlConfig("engine:\n  type: oracle\n"), Options{})
	require.Error(t, err)
}

func TestAttachAfterRestart(t *testing.T) {
	ctx := context.Background()
	config := "engine:\n  location: " + t.TempDir() + "/data.db\n"

	first, err := New(ctx, yamlConfig(config), Options{})
	require.NoError(t, err)
	_, err = first.Set(ctx, "t", "a:b", "v", SetOptions{})
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))

	second := newStore(t, config, Options{})
	records, err := second.Get(ctx, "t", "*")
	require.NoError(t, err)
	require.Nil(t, records, "topics are not known until attached or written")

	topic, ok, err := second.Attach(ctx, "t")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, topic.Arity)

	records, err = second.Get(ctx, "t", "a:*")
	require.NoError(t, err)
	require.Equal(t, []string{"a:b"}, keysOf(records))

	_, ok, err = second.Attach(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}
