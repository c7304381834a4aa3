// Package holdthis is an embedded key-value store layered on a transactional
// relational engine.
//
// Keys are flat strings whose ':'-separated segments map to columns of a
// per-topic table, so reads can leave any segment unbound with "*". Values
// are strings stored verbatim or structured data encoded into a tagged
// envelope. Writes can be executed immediately, in one bulk transaction, or
// buffered and flushed in batches.
//
// Typical usage:
//
//	store, _ := holdthis.Open(holdthis.DefaultConfig())
//	defer store.Close()
//
//	store.Set(ctx, "sessions", "eu:42", "token", holdthis.WithTTL(time.Hour))
//	records, _ := store.Get(ctx, "sessions", "*:42")
package holdthis

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/rzpsarthak13/holdthis/internal/futures"
	"github.com/rzpsarthak13/holdthis/internal/notify"
	"github.com/rzpsarthak13/holdthis/internal/registry"
	"github.com/rzpsarthak13/holdthis/internal/store"
)

// Store is a key-value store over one relational engine.
// A Store is safe for concurrent use.
type Store struct {
	impl    *store.Store
	janitor *Janitor
}

// Open creates a store with the provided configuration. When the janitor is
// configured it is started and runs until Close.
func Open(config *Config) (*Store, error) {
	return OpenContext(context.Background(), config)
}

// OpenContext is Open with a context bounding the engine and sink connection
// attempts.
func OpenContext(ctx context.Context, config *Config) (*Store, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	opts := store.Options{
		Logger: config.Logger,
		Clock:  config.Clock,
	}
	if config.OnFlush != nil {
		opts.Observers = append(opts.Observers, notify.FuncSink(config.OnFlush))
	}

	impl, err := store.New(ctx, &configProvider{config: config}, opts)
	if err != nil {
		return nil, err
	}

	s := &Store{impl: impl}
	if interval := impl.Config().Janitor.Interval; interval > 0 {
		s.janitor = NewJanitor(impl, interval, config.Logger)
		if err := s.janitor.Start(context.Background()); err != nil {
			_ = impl.Close(ctx)
			return nil, fmt.Errorf("failed to start janitor: %w", err)
		}
	}
	return s, nil
}

// Init creates the table of topic with one key column per segment of
// sampleKey. Writes initialize topics on demand, so Init is only needed to
// fix the key shape up front.
func (s *Store) Init(ctx context.Context, topic, sampleKey string) (TopicSchema, error) {
	return s.impl.Init(ctx, topic, sampleKey)
}

// Attach makes a topic written by an earlier process readable, taking its key
// shape from the existing table. It reports false when the topic has no table.
func (s *Store) Attach(ctx context.Context, topic string) (TopicSchema, bool, error) {
	return s.impl.Attach(ctx, topic)
}

// Set writes value under key immediately and replaces an existing value with
// the same key, unless the store runs in turbo mode.
func (s *Store) Set(ctx context.Context, topic, key string, value interface{}, opts ...SetOption) (Result, error) {
	return s.impl.Set(ctx, topic, key, value, applySetOptions(opts))
}

// Get returns the visible records of topic matching key. A "*" segment
// matches any value and the bare "*" returns every record of the topic.
// A topic that was never written yields no records.
func (s *Store) Get(ctx context.Context, topic, key string) ([]Record, error) {
	return s.impl.Get(ctx, topic, key)
}

// Prepare builds a write without executing it, for use with SetBulk.
func (s *Store) Prepare(ctx context.Context, topic, key string, value interface{}, opts ...SetOption) (Statement, error) {
	return s.impl.Prepare(ctx, topic, key, value, applySetOptions(opts))
}

// SetBulk executes prepared writes in one transaction. key is a sample key of
// topic used to initialize it. Either every entry is applied or none is.
func (s *Store) SetBulk(ctx context.Context, topic, key string, entries []Statement) error {
	return s.impl.SetBulk(ctx, topic, key, entries)
}

// SetBuffered queues a write. It is flushed with other buffered writes when
// the buffer reaches its threshold, in which case SetBuffered returns the
// flush error, or after the buffer has been idle for the configured timeout.
func (s *Store) SetBuffered(ctx context.Context, topic, key string, value interface{}, opts ...SetOption) (Future, error) {
	return s.impl.SetBuffered(ctx, topic, key, value, applySetOptions(opts))
}

// WaitAll waits for the futures returned by SetBuffered and returns their
// results in order. It fails with the first rejected batch.
func WaitAll(futs ...Future) ([]FlushResult, error) {
	return futures.WaitAll(futs)
}

// Flush writes every buffered write now.
func (s *Store) Flush(ctx context.Context) error {
	return s.impl.Flush(ctx)
}

// Clean deletes expired rows from the named topics, or from every topic when
// none is named, and returns how many rows were removed.
func (s *Store) Clean(ctx context.Context, topics ...string) (int64, error) {
	return s.impl.Clean(ctx, topics...)
}

// Bind returns a handle that writes to and reads from a single topic.
func (s *Store) Bind(topic string) *Topic {
	return &Topic{store: s, name: topic}
}

// Topics returns the topics initialized by this store, sorted.
func (s *Store) Topics() []string {
	return s.impl.Topics()
}

// Stats returns statistics about the store.
func (s *Store) Stats() map[string]interface{} {
	stats := s.impl.Stats()
	if s.janitor != nil {
		stats["janitor"] = s.janitor.Stats()
	}
	return stats
}

// WriteMetrics writes the store's metrics in Prometheus text format.
func (s *Store) WriteMetrics(w io.Writer) {
	s.impl.WriteMetrics(w)
}

// Conn returns the engine connection. It fails with ErrConnectionNotExposed
// unless the store was opened with ExposeConnection.
func (s *Store) Conn() (*sql.DB, error) {
	return s.impl.Conn()
}

// OnTopicInit registers a hook run whenever this store creates a topic's
// table. A hook error fails the write that triggered the creation. Hooks must
// not call back into the store.
func (s *Store) OnTopicInit(hook func(ctx context.Context, topic TopicSchema) error) {
	s.impl.OnTopicInit(registry.LifecycleHookFunc(hook))
}

// Janitor returns the background purge, or nil when it is disabled.
func (s *Store) Janitor() *Janitor {
	return s.janitor
}

// Close stops the janitor, flushes buffered writes and closes the engine.
func (s *Store) Close() error {
	return s.CloseContext(context.Background())
}

// CloseContext is Close with a context bounding the final flush.
func (s *Store) CloseContext(ctx context.Context) error {
	if s.janitor != nil {
		_ = s.janitor.Stop()
	}
	return s.impl.Close(ctx)
}

var _ Cleaner = (*store.Store)(nil)
