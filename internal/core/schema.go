package core

import "fmt"

const (
	// KeyColumnPrefix prefixes the column that stores each key segment (col0, col1, ...).
	KeyColumnPrefix = "col"

	// ColumnSerialized flags whether the value column holds an encoded envelope.
	ColumnSerialized = "serialized"

	// ColumnValue holds the stored value text.
	ColumnValue = "value"

	// ColumnTTL holds the absolute expiry in Unix milliseconds, or NULL.
	ColumnTTL = "ttl"
)

// TopicSchema describes the table backing a topic.
type TopicSchema struct {
	// Name is the topic (and table) name.
	Name string

	// Arity is the number of key segments, fixed at first initialization.
	Arity int

	// Turbo disables the uniqueness constraint and the expiry index.
	Turbo bool
}

// KeyColumns returns the key column names of the topic in segment order.
func (s TopicSchema) KeyColumns() []string {
	columns := make([]string, s.Arity)
	for i := range columns {
		columns[i] = KeyColumn(i)
	}
	return columns
}

// KeyColumn returns the column name for the key segment at index i.
func KeyColumn(i int) string {
	return fmt.Sprintf("%s%d", KeyColumnPrefix, i)
}
