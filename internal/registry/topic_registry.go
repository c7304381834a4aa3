package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/exp/slog"

	"github.com/rzpsarthak13/holdthis/internal/core"
	"github.com/rzpsarthak13/holdthis/internal/database"
	"github.com/rzpsarthak13/holdthis/internal/schema"
)

// TopicMetadata contains metadata about a materialized topic.
type TopicMetadata struct {
	// Schema is the table layout of the topic.
	Schema core.TopicSchema

	// CreatedAt is when the topic was registered by this process.
	CreatedAt time.Time
}

// TopicRegistry tracks which topics have had their table materialized by
// this store. It is process-local: after a restart the first write to a
// topic re-issues the idempotent CREATE TABLE IF NOT EXISTS.
type TopicRegistry struct {
	db         core.Database
	translator *schema.Translator
	lifecycle  *LifecycleManager
	logger     *slog.Logger

	topics *xsync.MapOf[string, *TopicMetadata]

	// mu serializes materialization. Lookups do not take it.
	mu sync.Mutex
}

// NewTopicRegistry creates an empty registry that materializes topics on db.
func NewTopicRegistry(db core.Database, translator *schema.Translator, lifecycle *LifecycleManager, logger *slog.Logger) *TopicRegistry {
	if lifecycle == nil {
		lifecycle = NewLifecycleManager()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TopicRegistry{
		db:         db,
		translator: translator,
		lifecycle:  lifecycle,
		logger:     logger,
		topics:     xsync.NewMapOf[string, *TopicMetadata](),
	}
}

// Ensure returns the metadata of topic, materializing its table first if this
// registry has not seen it. The arity of a new topic is the number of
// segments; for a known topic the segments must match the established arity.
func (r *TopicRegistry) Ensure(ctx context.Context, topic string, segments []string) (*TopicMetadata, error) {
	if metadata, ok := r.topics.Load(topic); ok {
		if err := schema.ValidateArity(metadata.Schema, segments); err != nil {
			return nil, err
		}
		return metadata, nil
	}

	if err := schema.ValidateTopic(topic); err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: topic %q needs at least one key segment", core.ErrSchemaConflict, topic)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if metadata, ok := r.topics.Load(topic); ok {
		if err := schema.ValidateArity(metadata.Schema, segments); err != nil {
			return nil, err
		}
		return metadata, nil
	}

	topicSchema := core.TopicSchema{
		Name:  topic,
		Arity: len(segments),
		Turbo: r.translator.Turbo(),
	}
	if err := r.materialize(ctx, topicSchema); err != nil {
		return nil, err
	}

	if err := r.lifecycle.ExecuteInitHooks(ctx, topicSchema); err != nil {
		return nil, fmt.Errorf("init hook failed for topic %q: %w", topic, err)
	}

	metadata := &TopicMetadata{
		Schema:    topicSchema,
		CreatedAt: time.Now(),
	}
	r.topics.Store(topic, metadata)

	r.logger.Debug("initialized topic",
		slog.String("topic", topic),
		slog.Int("arity", topicSchema.Arity),
		slog.Bool("turbo", topicSchema.Turbo))
	return metadata, nil
}

// materialize creates the table and verifies that the table the engine holds
// has the expected arity. A table left behind by an earlier process with a
// different key shape is reported as a schema conflict.
func (r *TopicRegistry) materialize(ctx context.Context, topicSchema core.TopicSchema) error {
	return database.RunInTx(ctx, r.db, func(tx core.Transaction) error {
		for _, stmt := range r.translator.CreateTable(topicSchema.Name, topicSchema.Arity) {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to create table for topic %q: %w", topicSchema.Name, err)
			}
		}

		columns, err := r.columns(ctx, tx, topicSchema.Name)
		if err != nil {
			return err
		}
		arity, err := schema.ArityFromColumns(topicSchema.Name, columns)
		if err != nil {
			return err
		}
		if arity != topicSchema.Arity {
			return fmt.Errorf("%w: table %q exists with %d key segments, key has %d",
				core.ErrSchemaConflict, topicSchema.Name, arity, topicSchema.Arity)
		}
		return nil
	})
}

type querier interface {
	Query(ctx context.Context, query string, args ...interface{}) (core.Rows, error)
}

func (r *TopicRegistry) columns(ctx context.Context, q querier, topic string) ([]string, error) {
	stmt := r.translator.Columns(topic)
	rows, err := q.Query(ctx, stmt.Query, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect table %q: %w", topic, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column of table %q: %w", topic, err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns of table %q: %w", topic, err)
	}
	return columns, nil
}

// Discover registers a topic whose table already exists on the engine, for
// example one written by an earlier process, taking its arity from the table
// columns. It reports false without creating anything when there is no such
// table. Init hooks do not run for discovered topics.
func (r *TopicRegistry) Discover(ctx context.Context, topic string) (*TopicMetadata, bool, error) {
	if metadata, ok := r.topics.Load(topic); ok {
		return metadata, true, nil
	}
	if err := schema.ValidateTopic(topic); err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if metadata, ok := r.topics.Load(topic); ok {
		return metadata, true, nil
	}

	columns, err := r.columns(ctx, r.db, topic)
	if err != nil {
		return nil, false, err
	}
	if len(columns) == 0 {
		return nil, false, nil
	}
	arity, err := schema.ArityFromColumns(topic, columns)
	if err != nil {
		return nil, false, err
	}

	metadata := &TopicMetadata{
		Schema: core.TopicSchema{
			Name:  topic,
			Arity: arity,
			Turbo: r.translator.Turbo(),
		},
		CreatedAt: time.Now(),
	}
	r.topics.Store(topic, metadata)

	r.logger.Debug("discovered topic",
		slog.String("topic", topic),
		slog.Int("arity", arity))
	return metadata, true, nil
}

// Lookup returns the metadata of a registered topic.
func (r *TopicRegistry) Lookup(topic string) (*TopicMetadata, bool) {
	return r.topics.Load(topic)
}

// List returns the names of all registered topics in sorted order.
func (r *TopicRegistry) List() []string {
	names := make([]string, 0, r.topics.Size())
	r.topics.Range(func(name string, _ *TopicMetadata) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Count returns the number of registered topics.
func (r *TopicRegistry) Count() int {
	return r.topics.Size()
}

// Lifecycle returns the lifecycle manager of this registry.
func (r *TopicRegistry) Lifecycle() *LifecycleManager {
	return r.lifecycle
}
