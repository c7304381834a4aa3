package read

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rzpsarthak13/holdthis/internal/codec"
	"github.com/rzpsarthak13/holdthis/internal/core"
	"github.com/rzpsarthak13/holdthis/internal/schema"
	"github.com/rzpsarthak13/holdthis/internal/ttl"
)

// Querier executes read statements.
type Querier interface {
	Query(ctx context.Context, query string, args ...interface{}) (core.Rows, error)
}

// Reader runs select statements against topic tables and decodes the rows
// into records.
type Reader struct {
	db         Querier
	translator *schema.Translator
	clock      ttl.Clock
}

// NewReader creates a reader. A nil clock reads the wall clock.
func NewReader(db Querier, translator *schema.Translator, clock ttl.Clock) *Reader {
	if clock == nil {
		clock = ttl.SystemClock{}
	}
	return &Reader{
		db:         db,
		translator: translator,
		clock:      clock,
	}
}

// Read returns the visible records of a topic matching key. Wildcard
// segments match any value; the bare wildcard matches every record.
// Records are returned in engine order.
func (r *Reader) Read(ctx context.Context, topic core.TopicSchema, key string) ([]core.Record, error) {
	segments := schema.SplitKey(key)
	bare := schema.IsWildcard(key)
	if err := schema.ValidateReadKey(topic, key, segments); err != nil {
		return nil, err
	}

	now := r.clock.Now()
	stmt := r.translator.Select(topic, segments, bare, ttl.Millis(now))

	rows, err := r.db.Query(ctx, stmt.Query, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("database query failed: topic=%s, key=%s: %w", topic.Name, key, err)
	}
	defer rows.Close()

	records := make([]core.Record, 0)
	for rows.Next() {
		record, expiry, err := r.scanRow(rows, topic)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: topic=%s: %w", topic.Name, err)
		}
		// Same cutoff as the engine predicate.
		if !ttl.IsVisible(expiry, now) {
			continue
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: topic=%s: %w", topic.Name, err)
	}
	return records, nil
}

// scanRow scans one row in the column order of Translator.Select: the key
// columns, then value, serialized and ttl.
func (r *Reader) scanRow(rows core.Rows, topic core.TopicSchema) (core.Record, *int64, error) {
	segments := make([]string, topic.Arity)
	var (
		value      string
		serialized bool
		expiry     sql.NullInt64
	)

	dest := make([]interface{}, 0, topic.Arity+3)
	for i := range segments {
		dest = append(dest, &segments[i])
	}
	dest = append(dest, &value, &serialized, &expiry)

	if err := rows.Scan(dest...); err != nil {
		return core.Record{}, nil, err
	}

	var expiresAt *int64
	if expiry.Valid {
		expiresAt = &expiry.Int64
	}

	decoded, err := codec.Decode(value, serialized)
	if err != nil {
		return core.Record{}, nil, fmt.Errorf("key %s: %w", schema.JoinKey(segments), err)
	}

	return core.Record{
		Key:       schema.JoinKey(segments),
		Value:     decoded,
		ExpiresAt: ttl.ExpiryTime(expiresAt),
	}, expiresAt, nil
}
