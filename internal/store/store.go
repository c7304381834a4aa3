// Package store wires the engine, schema registry, statement builder, buffered
// writer and flush sinks into a single key-value store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/slog"

	"github.com/rzpsarthak13/holdthis/internal/codec"
	"github.com/rzpsarthak13/holdthis/internal/core"
	"github.com/rzpsarthak13/holdthis/internal/database"
	"github.com/rzpsarthak13/holdthis/internal/futures"
	"github.com/rzpsarthak13/holdthis/internal/notify"
	"github.com/rzpsarthak13/holdthis/internal/read"
	"github.com/rzpsarthak13/holdthis/internal/registry"
	"github.com/rzpsarthak13/holdthis/internal/schema"
	"github.com/rzpsarthak13/holdthis/internal/ttl"
	"github.com/rzpsarthak13/holdthis/internal/write"
)

// ConfigProvider provides configuration as YAML without importing the public package.
type ConfigProvider interface {
	GetYAML() ([]byte, error)
}

// Options carries the settings that cannot be expressed in YAML.
type Options struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Clock defaults to the system clock.
	Clock ttl.Clock

	// Observers receive every flush event after the configured sink.
	Observers []core.FlushObserver
}

// SetOptions controls how a single value is written.
type SetOptions struct {
	// TTL is the lifetime of the value. Nil or negative means it never
	// expires; zero is a valid TTL and makes the value invisible immediately.
	TTL *time.Duration

	// JSON stores the value as a plain JSON envelope.
	JSON bool
}

// Store is a key-value store over one relational engine.
type Store struct {
	config     *registry.InternalConfig
	db         core.Database
	translator *schema.Translator
	topics     *registry.TopicRegistry
	lifecycle  *registry.LifecycleManager
	reader     *read.Reader
	writer     *write.BufferedWriter
	sink       notify.Sink
	metrics    *Metrics
	clock      ttl.Clock
	logger     *slog.Logger

	// closeMu is held shared by every operation and exclusively by Close.
	closeMu sync.RWMutex
	closed  atomic.Bool
}

// New creates a store from the configuration returned by provider.
func New(ctx context.Context, provider ConfigProvider, opts Options) (*Store, error) {
	if provider == nil {
		return nil, fmt.Errorf("config provider cannot be nil")
	}

	configMgr := registry.NewConfigManager()
	yamlData, err := provider.GetYAML()
	if err != nil {
		return nil, fmt.Errorf("failed to get config YAML: %w", err)
	}
	if err := configMgr.LoadFromYAML(yamlData); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewWithConfig(ctx, configMgr.GetConfig(), opts)
}

// NewWithConfig creates a store from an already validated configuration.
func NewWithConfig(ctx context.Context, config *registry.InternalConfig, opts Options) (*Store, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = ttl.SystemClock{}
	}

	db, err := openEngine(ctx, config.Engine, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}

	dialect, err := schema.DialectFor(db.Dialect())
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	sink, err := notify.Create(ctx, config.Notify, opts.Logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create flush sink: %w", err)
	}

	translator := schema.NewTranslator(dialect, config.Turbo)
	lifecycle := registry.NewLifecycleManager()

	s := &Store{
		config:     config,
		db:         db,
		translator: translator,
		topics:     registry.NewTopicRegistry(db, translator, lifecycle, opts.Logger),
		lifecycle:  lifecycle,
		reader:     read.NewReader(db, translator, opts.Clock),
		metrics:    newMetrics(),
		clock:      opts.Clock,
		logger:     opts.Logger,
	}

	observers := append([]core.FlushObserver{s.metrics, sink}, opts.Observers...)
	s.sink = notify.NewMulti(observers...)
	s.writer = write.NewBufferedWriter(write.BatchExecutorFunc(s.executeBatch), write.BufferedWriterConfig{
		Threshold: config.Buffer.Threshold,
		Timeout:   config.Buffer.Timeout,
		Observer:  s.sink,
		Logger:    opts.Logger,
	})

	s.logger.Debug("opened store",
		slog.String("engine", db.Dialect()),
		slog.String("location", config.Engine.Location),
		slog.Bool("turbo", config.Turbo),
		slog.String("notify", config.Notify.Type))
	return s, nil
}

func openEngine(ctx context.Context, config registry.InternalEngineConfig, logger *slog.Logger) (*database.SQLDatabase, error) {
	switch config.Type {
	case registry.EngineSQLite, "":
		return database.OpenSQLite(ctx, database.SQLiteOptions{
			Location:  config.Location,
			EnableWAL: config.EnableWAL,
			Logger:    logger,
		})
	case registry.EngineMySQL:
		return database.OpenMySQL(ctx, database.MySQLOptions{
			Host:              config.MySQL.Host,
			Port:              config.MySQL.Port,
			Database:          config.MySQL.Database,
			Username:          config.MySQL.Username,
			Password:          config.MySQL.Password,
			MaxOpenConns:      config.MySQL.MaxOpenConns,
			MaxIdleConns:      config.MySQL.MaxIdleConns,
			ConnMaxLifetime:   config.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime:   config.MySQL.ConnMaxIdleTime,
			ConnectionTimeout: config.MySQL.ConnectionTimeout,
			Params:            config.MySQL.Params,
			Logger:            logger,
		})
	default:
		return nil, fmt.Errorf("unsupported engine type: %s", config.Type)
	}
}

// Init materializes topic with the arity of sampleKey. Initializing a known
// topic validates sampleKey against it and does nothing else.
func (s *Store) Init(ctx context.Context, topic, sampleKey string) (core.TopicSchema, error) {
	if err := s.acquire(); err != nil {
		return core.TopicSchema{}, err
	}
	defer s.closeMu.RUnlock()
	metadata, _, err := s.ensure(ctx, topic, sampleKey)
	if err != nil {
		return core.TopicSchema{}, err
	}
	return metadata.Schema, nil
}

// Attach registers a topic whose table already exists on the engine, such as
// one written by an earlier process. It reports false when there is no table.
func (s *Store) Attach(ctx context.Context, topic string) (core.TopicSchema, bool, error) {
	if err := s.acquire(); err != nil {
		return core.TopicSchema{}, false, err
	}
	defer s.closeMu.RUnlock()
	name, err := schema.NormalizeTopic(topic)
	if err != nil {
		return core.TopicSchema{}, false, err
	}
	metadata, ok, err := s.topics.Discover(ctx, name)
	if err != nil || !ok {
		return core.TopicSchema{}, false, err
	}
	return metadata.Schema, true, nil
}

// Set writes a value immediately.
func (s *Store) Set(ctx context.Context, topic, key string, value interface{}, opts SetOptions) (core.SetResult, error) {
	if err := s.acquire(); err != nil {
		return core.SetResult{}, err
	}
	defer s.closeMu.RUnlock()
	metadata, segments, err := s.ensure(ctx, topic, key)
	if err != nil {
		return core.SetResult{}, err
	}
	stmt, err := s.build(metadata.Schema.Name, segments, value, opts)
	if err != nil {
		return core.SetResult{}, err
	}

	result, err := s.db.Exec(ctx, stmt.Query, stmt.Args...)
	if err != nil {
		return core.SetResult{}, fmt.Errorf("failed to set %q in topic %q: %w", key, metadata.Schema.Name, err)
	}
	s.metrics.sets.Inc()

	var out core.SetResult
	if n, err := result.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	if id, err := result.LastInsertId(); err == nil {
		out.LastInsertID = id
	}
	return out, nil
}

// Prepare builds the write statement for a value without executing it. When
// the topic is already known the key is validated against its arity.
func (s *Store) Prepare(ctx context.Context, topic, key string, value interface{}, opts SetOptions) (core.Statement, error) {
	if err := s.acquire(); err != nil {
		return core.Statement{}, err
	}
	defer s.closeMu.RUnlock()
	name, err := schema.NormalizeTopic(topic)
	if err != nil {
		return core.Statement{}, err
	}
	segments := schema.SplitKey(key)
	if metadata, ok := s.topics.Lookup(name); ok {
		if err := schema.ValidateArity(metadata.Schema, segments); err != nil {
			return core.Statement{}, err
		}
	}
	return s.build(name, segments, value, opts)
}

// SetBulk ensures topic using the arity of key and runs entries in a single
// transaction. Either every entry is committed or none is.
func (s *Store) SetBulk(ctx context.Context, topic, key string, entries []core.Statement) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.closeMu.RUnlock()
	if _, _, err := s.ensure(ctx, topic, key); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	if err := s.executeBatch(ctx, entries); err != nil {
		return err
	}
	s.metrics.sets.Add(len(entries))
	return nil
}

// SetBuffered queues a value on the buffered writer. The future resolves once
// the batch holding the value has been committed or rolled back.
func (s *Store) SetBuffered(ctx context.Context, topic, key string, value interface{}, opts SetOptions) (futures.Future[core.FlushResult], error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.closeMu.RUnlock()
	metadata, segments, err := s.ensure(ctx, topic, key)
	if err != nil {
		return nil, err
	}
	stmt, err := s.build(metadata.Schema.Name, segments, value, opts)
	if err != nil {
		return nil, err
	}
	s.metrics.buffered.Inc()
	return s.writer.Append(ctx, stmt)
}

// Flush drains the buffered writer.
func (s *Store) Flush(ctx context.Context) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.closeMu.RUnlock()
	return s.writer.Flush(ctx)
}

// Get returns the visible records of topic matching key. Key segments equal to
// "*" match any value and the bare "*" matches every record. A topic this
// store has not initialized yields no records.
func (s *Store) Get(ctx context.Context, topic, key string) ([]core.Record, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.closeMu.RUnlock()
	name, err := schema.NormalizeTopic(topic)
	if err != nil {
		return nil, err
	}
	metadata, ok := s.topics.Lookup(name)
	if !ok {
		return nil, nil
	}
	if key == "" {
		key = schema.DefaultKey
	}

	records, err := s.reader.Read(ctx, metadata.Schema, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get %q from topic %q: %w", key, name, err)
	}
	s.metrics.gets.Inc()
	return records, nil
}

// Clean deletes expired rows from the named topics, or from every known
// topic when none is named, in one transaction. Names this store has not
// initialized are skipped. It returns the number of rows removed.
func (s *Store) Clean(ctx context.Context, topics ...string) (int64, error) {
	if err := s.acquire(); err != nil {
		return 0, err
	}
	defer s.closeMu.RUnlock()

	var names []string
	if len(topics) == 0 {
		names = s.topics.List()
	} else {
		for _, topic := range topics {
			name, err := schema.NormalizeTopic(topic)
			if err != nil {
				return 0, err
			}
			if _, ok := s.topics.Lookup(name); ok {
				names = append(names, name)
			}
		}
	}
	if len(names) == 0 {
		return 0, nil
	}

	now := ttl.Millis(s.clock.Now())
	var removed int64
	err := database.RunInTx(ctx, s.db, func(tx core.Transaction) error {
		for _, name := range names {
			stmt := s.translator.Purge(name, now)
			result, err := tx.Exec(ctx, stmt.Query, stmt.Args...)
			if err != nil {
				return fmt.Errorf("failed to purge topic %q: %w", name, err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to count purged rows of topic %q: %w", name, err)
			}
			removed += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.metrics.purgedRows.Add(int(removed))
	s.logger.Debug("cleaned expired rows",
		slog.Any("topics", names),
		slog.Int64("removed", removed))
	return removed, nil
}

// Topics returns the names of the topics this store has initialized, sorted.
func (s *Store) Topics() []string {
	return s.topics.List()
}

// Stats returns statistics about the store.
func (s *Store) Stats() map[string]interface{} {
	return map[string]interface{}{
		"engine":   s.db.Dialect(),
		"location": s.config.Engine.Location,
		"turbo":    s.config.Turbo,
		"topics":   s.topics.Count(),
		"buffer":   s.writer.Stats(),
		"closed":   s.closed.Load(),
	}
}

// WriteMetrics writes the store's metrics in Prometheus text format.
func (s *Store) WriteMetrics(w io.Writer) {
	s.metrics.WritePrometheus(w)
}

// Config returns the configuration the store was opened with.
func (s *Store) Config() registry.InternalConfig {
	return *s.config
}

// Conn returns the engine connection if the store was configured to expose it.
func (s *Store) Conn() (*sql.DB, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.closeMu.RUnlock()
	if !s.config.ExposeConnection {
		return nil, core.ErrConnectionNotExposed
	}
	return s.db.DB(), nil
}

// OnTopicInit registers a hook that runs after a topic's table is created and
// before the topic becomes usable. Hooks must not call back into the store.
func (s *Store) OnTopicInit(hook registry.LifecycleHook) {
	s.lifecycle.RegisterHook(hook)
}

// Close drains the buffered writer and releases the sinks and the engine.
// Every later operation returns core.ErrStoreClosed.
func (s *Store) Close(ctx context.Context) error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if s.closed.Load() {
		return nil
	}

	var errs []error
	if err := s.writer.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to drain buffered writes: %w", err))
	}
	s.closed.Store(true)

	if err := s.sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close flush sink: %w", err))
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close engine: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}

// acquire holds the read side of closeMu for the duration of an operation so
// Close waits for it. The caller releases it unless an error is returned.
func (s *Store) acquire() error {
	s.closeMu.RLock()
	if s.closed.Load() {
		s.closeMu.RUnlock()
		return core.ErrStoreClosed
	}
	return nil
}

func (s *Store) ensure(ctx context.Context, topic, key string) (*registry.TopicMetadata, []string, error) {
	name, err := schema.NormalizeTopic(topic)
	if err != nil {
		return nil, nil, err
	}
	segments := schema.SplitKey(key)
	metadata, err := s.topics.Ensure(ctx, name, segments)
	if err != nil {
		return nil, nil, err
	}
	return metadata, segments, nil
}

func (s *Store) build(topic string, segments []string, value interface{}, opts SetOptions) (core.Statement, error) {
	stored, serialized, err := codec.Encode(value, codec.EncodeOptions{IsJSON: opts.JSON})
	if err != nil {
		return core.Statement{}, fmt.Errorf("failed to encode value for topic %q: %w", topic, err)
	}

	// Negative TTLs are ignored; the record never expires.
	var expiry *int64
	if opts.TTL != nil && *opts.TTL >= 0 {
		at := ttl.StampExpiry(s.clock.Now(), *opts.TTL)
		expiry = &at
	}
	return s.translator.Upsert(topic, segments, stored, serialized, expiry), nil
}

func (s *Store) executeBatch(ctx context.Context, statements []core.Statement) error {
	return database.RunInTx(ctx, s.db, func(tx core.Transaction) error {
		for i, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt.Query, stmt.Args...); err != nil {
				return fmt.Errorf("statement %d of %d failed for topic %q: %w", i+1, len(statements), stmt.Topic, err)
			}
		}
		return nil
	})
}
