package schema

import (
	"fmt"
	"strings"

	"github.com/rzpsarthak13/holdthis/internal/core"
)

// Translator builds the SQL statements for topic tables in a given dialect.
type Translator struct {
	dialect Dialect
	turbo   bool
}

// NewTranslator creates a statement builder. In turbo mode tables are created
// without a uniqueness constraint or expiry index and writes are plain inserts.
func NewTranslator(dialect Dialect, turbo bool) *Translator {
	if dialect == nil {
		dialect = SQLiteDialect{}
	}
	return &Translator{
		dialect: dialect,
		turbo:   turbo,
	}
}

// Dialect returns the dialect the translator emits.
func (t *Translator) Dialect() Dialect {
	return t.dialect
}

// Turbo reports whether the translator builds turbo-mode statements.
func (t *Translator) Turbo() bool {
	return t.turbo
}

// CreateTable returns the statements that materialize a topic.
func (t *Translator) CreateTable(topic string, arity int) []string {
	return t.dialect.CreateTable(core.TopicSchema{
		Name:  topic,
		Arity: arity,
		Turbo: t.turbo,
	})
}

// Upsert builds the write statement for one record. When expiry is nil the
// row never expires; on conflict the existing row's expiry is cleared.
//
// Non-turbo statements overwrite value, serialized and ttl of an existing row
// with the same key; turbo statements always insert.
func (t *Translator) Upsert(topic string, segments []string, value string, serialized bool, expiry *int64) core.Statement {
	columns := make([]string, 0, len(segments)+3)
	args := make([]interface{}, 0, len(segments)*2+6)

	for i, segment := range segments {
		columns = append(columns, t.dialect.QuoteIdent(core.KeyColumn(i)))
		args = append(args, segment)
	}

	var ttlArg interface{}
	if expiry != nil {
		ttlArg = *expiry
		columns = append(columns, t.dialect.QuoteIdent(core.ColumnTTL))
		args = append(args, ttlArg)
	}

	columns = append(columns,
		t.dialect.QuoteIdent(core.ColumnValue),
		t.dialect.QuoteIdent(core.ColumnSerialized))
	args = append(args, value, serialized)

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.dialect.QuoteIdent(topic),
		strings.Join(columns, ", "),
		placeholders(len(columns)))

	if !t.turbo {
		keyColumns := make([]string, len(segments))
		for i := range segments {
			keyColumns[i] = core.KeyColumn(i)
		}
		clause, bindsKeys := t.dialect.UpsertClause(keyColumns)
		query += " " + clause
		args = append(args, value, serialized, ttlArg)
		if bindsKeys {
			for _, segment := range segments {
				args = append(args, segment)
			}
		}
	}

	return core.Statement{
		Topic: topic,
		Query: query,
		Args:  args,
	}
}

// Select builds the read statement for a key. Expired rows are always
// excluded; each segment other than the wildcard adds an equality predicate.
// Bare wildcard keys add no key predicate. Result order is engine-defined.
func (t *Translator) Select(schema core.TopicSchema, segments []string, bareWildcard bool, now int64) core.Statement {
	columns := quoteAll(t.dialect, schema.KeyColumns())
	columns = append(columns,
		t.dialect.QuoteIdent(core.ColumnValue),
		t.dialect.QuoteIdent(core.ColumnSerialized),
		t.dialect.QuoteIdent(core.ColumnTTL))

	ttlColumn := t.dialect.QuoteIdent(core.ColumnTTL)
	conditions := []string{fmt.Sprintf("(%s IS NULL OR %s > ?)", ttlColumn, ttlColumn)}
	args := []interface{}{now}

	if !bareWildcard {
		for i, segment := range segments {
			if IsWildcardSegment(segment) {
				continue
			}
			conditions = append(conditions, fmt.Sprintf("(%s = ?)", t.dialect.QuoteIdent(core.KeyColumn(i))))
			args = append(args, segment)
		}
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(columns, ", "),
		t.dialect.QuoteIdent(schema.Name),
		strings.Join(conditions, " AND "))

	return core.Statement{
		Topic: schema.Name,
		Query: query,
		Args:  args,
	}
}

// Purge builds the statement removing every row of a topic whose expiry is at
// or before now. This is exactly the set of rows reads already hide.
func (t *Translator) Purge(topic string, now int64) core.Statement {
	return core.Statement{
		Topic: topic,
		Query: fmt.Sprintf("DELETE FROM %s WHERE %s <= ?",
			t.dialect.QuoteIdent(topic), t.dialect.QuoteIdent(core.ColumnTTL)),
		Args: []interface{}{now},
	}
}

// Columns builds the introspection query listing a table's columns.
func (t *Translator) Columns(topic string) core.Statement {
	query, args := t.dialect.ColumnsQuery(topic)
	return core.Statement{
		Topic: topic,
		Query: query,
		Args:  args,
	}
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
