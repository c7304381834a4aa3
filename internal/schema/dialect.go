package schema

import (
	"fmt"
	"strings"

	"github.com/rzpsarthak13/holdthis/internal/core"
)

// Dialect captures the statement differences between relational engines.
type Dialect interface {
	// Name returns the dialect identifier ("sqlite" or "mysql").
	Name() string

	// QuoteIdent quotes a table, column or index name.
	QuoteIdent(name string) string

	// CreateTable returns the statements that materialize a topic table.
	// They are idempotent and run inside one transaction.
	CreateTable(schema core.TopicSchema) []string

	// UpsertClause returns the conflict clause appended to an insert for a
	// non-turbo topic. The clause binds value, serialized and ttl, followed
	// by the key segments when bindsKeys is true.
	UpsertClause(keyColumns []string) (clause string, bindsKeys bool)

	// ColumnsQuery returns a query listing the column names of a table in
	// declaration order.
	ColumnsQuery(table string) (string, []interface{})
}

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	switch name {
	case "", SQLiteDialect{}.Name():
		return SQLiteDialect{}, nil
	case MySQLDialect{}.Name():
		return MySQLDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", name)
	}
}

// SQLiteDialect emits statements for SQLite.
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string { return "sqlite" }

func (SQLiteDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d SQLiteDialect) CreateTable(schema core.TopicSchema) []string {
	keyColumns := quoteAll(d, schema.KeyColumns())

	defs := make([]string, 0, len(keyColumns)+4)
	for _, column := range keyColumns {
		defs = append(defs, column+" TEXT NOT NULL")
	}
	defs = append(defs,
		d.QuoteIdent(core.ColumnSerialized)+" BOOLEAN NOT NULL DEFAULT FALSE",
		d.QuoteIdent(core.ColumnValue)+" TEXT NOT NULL",
		d.QuoteIdent(core.ColumnTTL)+" INTEGER DEFAULT NULL",
	)
	if !schema.Turbo {
		defs = append(defs, "UNIQUE ("+strings.Join(keyColumns, ", ")+")")
	}

	table := d.QuoteIdent(schema.Name)
	statements := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", table, strings.Join(defs, ",\n\t")),
	}
	if !schema.Turbo {
		statements = append(statements, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			d.QuoteIdent(ttlIndexName(schema.Name)), table, d.QuoteIdent(core.ColumnTTL)))
	}
	return statements
}

func (d SQLiteDialect) UpsertClause(keyColumns []string) (string, bool) {
	conditions := make([]string, len(keyColumns))
	for i, column := range keyColumns {
		conditions[i] = fmt.Sprintf("(%s = ?)", d.QuoteIdent(column))
	}
	clause := fmt.Sprintf("ON CONFLICT DO UPDATE SET %s = ?, %s = ?, %s = ? WHERE %s",
		d.QuoteIdent(core.ColumnValue),
		d.QuoteIdent(core.ColumnSerialized),
		d.QuoteIdent(core.ColumnTTL),
		strings.Join(conditions, " AND "))
	return clause, true
}

func (SQLiteDialect) ColumnsQuery(table string) (string, []interface{}) {
	return "SELECT name FROM pragma_table_info(?) ORDER BY cid", []interface{}{table}
}

// MySQLDialect emits statements for MySQL. Key columns are VARCHAR(191) so
// the composite unique key fits the utf8mb4 index length limit.
type MySQLDialect struct{}

func (MySQLDialect) Name() string { return "mysql" }

func (MySQLDialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d MySQLDialect) CreateTable(schema core.TopicSchema) []string {
	keyColumns := quoteAll(d, schema.KeyColumns())

	defs := make([]string, 0, len(keyColumns)+5)
	for _, column := range keyColumns {
		defs = append(defs, column+" VARCHAR(191) NOT NULL")
	}
	defs = append(defs,
		d.QuoteIdent(core.ColumnSerialized)+" BOOLEAN NOT NULL DEFAULT FALSE",
		d.QuoteIdent(core.ColumnValue)+" LONGTEXT NOT NULL",
		d.QuoteIdent(core.ColumnTTL)+" BIGINT DEFAULT NULL",
	)
	if !schema.Turbo {
		defs = append(defs,
			fmt.Sprintf("UNIQUE KEY %s (%s)", d.QuoteIdent("uniq_"+schema.Name), strings.Join(keyColumns, ", ")),
			fmt.Sprintf("KEY %s (%s)", d.QuoteIdent(ttlIndexName(schema.Name)), d.QuoteIdent(core.ColumnTTL)),
		)
	}

	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", d.QuoteIdent(schema.Name), strings.Join(defs, ",\n\t")),
	}
}

func (d MySQLDialect) UpsertClause(_ []string) (string, bool) {
	clause := fmt.Sprintf("ON DUPLICATE KEY UPDATE %s = ?, %s = ?, %s = ?",
		d.QuoteIdent(core.ColumnValue),
		d.QuoteIdent(core.ColumnSerialized),
		d.QuoteIdent(core.ColumnTTL))
	return clause, false
}

func (MySQLDialect) ColumnsQuery(table string) (string, []interface{}) {
	query := `SELECT COLUMN_NAME
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`
	return query, []interface{}{table}
}

func ttlIndexName(topic string) string {
	return "idx_" + topic + "_ttl"
}

func quoteAll(d Dialect, names []string) []string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = d.QuoteIdent(name)
	}
	return quoted
}
