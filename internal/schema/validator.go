package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rzpsarthak13/holdthis/internal/core"
)

// ValidateArity checks that a key has exactly as many segments as the topic
// was initialized with. It returns an error wrapping core.ErrSchemaConflict on
// mismatch.
func ValidateArity(schema core.TopicSchema, segments []string) error {
	if len(segments) != schema.Arity {
		return fmt.Errorf("%w: topic %q has %d key segments, key has %d",
			core.ErrSchemaConflict, schema.Name, schema.Arity, len(segments))
	}
	return nil
}

// ValidateReadKey checks a read key against the topic schema. The bare
// wildcard is valid for any arity. A key with fewer segments than the topic
// binds only the leading key columns; one with more segments is a conflict.
func ValidateReadKey(schema core.TopicSchema, key string, segments []string) error {
	if IsWildcard(key) {
		return nil
	}
	if len(segments) > schema.Arity {
		return fmt.Errorf("%w: topic %q has %d key segments, key has %d",
			core.ErrSchemaConflict, schema.Name, schema.Arity, len(segments))
	}
	return nil
}

// ArityFromColumns derives the key arity of an existing table from its column
// names. It fails if the key columns are not exactly col0..colN-1 or if a
// record column is missing.
func ArityFromColumns(topic string, columns []string) (int, error) {
	seen := make(map[int]bool)
	required := map[string]bool{
		core.ColumnSerialized: false,
		core.ColumnValue:      false,
		core.ColumnTTL:        false,
	}

	for _, column := range columns {
		name := strings.ToLower(column)
		if _, ok := required[name]; ok {
			required[name] = true
			continue
		}
		if !strings.HasPrefix(name, core.KeyColumnPrefix) {
			return 0, fmt.Errorf("%w: table %q has unexpected column %q", core.ErrSchemaConflict, topic, column)
		}
		index, err := strconv.Atoi(strings.TrimPrefix(name, core.KeyColumnPrefix))
		if err != nil || index < 0 {
			return 0, fmt.Errorf("%w: table %q has unexpected column %q", core.ErrSchemaConflict, topic, column)
		}
		seen[index] = true
	}

	for name, present := range required {
		if !present {
			return 0, fmt.Errorf("%w: table %q is missing column %q", core.ErrSchemaConflict, topic, name)
		}
	}
	for i := 0; i < len(seen); i++ {
		if !seen[i] {
			return 0, fmt.Errorf("%w: table %q is missing key column %q", core.ErrSchemaConflict, topic, core.KeyColumn(i))
		}
	}
	if len(seen) == 0 {
		return 0, fmt.Errorf("%w: table %q has no key columns", core.ErrSchemaConflict, topic)
	}

	return len(seen), nil
}
