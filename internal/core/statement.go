package core

import "time"

// Statement is a parameterized SQL statement bound to a topic.
// It is produced by the statement builder and executed immediately,
// inside a bulk transaction, or later by the buffered writer.
type Statement struct {
	// Topic is the topic the statement targets.
	Topic string

	// Query is the SQL text with positional placeholders.
	Query string

	// Args are the values bound to the placeholders, in order.
	Args []interface{}
}

// Record is a single key/value pair returned by a read.
type Record struct {
	// Key is the composite key, with segments joined by ':'.
	Key string

	// Value is the decoded value. Plain strings are returned as stored.
	Value interface{}

	// ExpiresAt is the absolute expiry of the record. Zero means it never expires.
	ExpiresAt time.Time
}

// SetResult is the outcome of an immediate write.
type SetResult struct {
	RowsAffected int64
	LastInsertID int64
}
