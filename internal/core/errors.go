package core

import "errors"

var (
	// ErrSchemaConflict is returned when a key's segment count does not match
	// the arity the topic was initialized with.
	ErrSchemaConflict = errors.New("key arity does not match topic schema")

	// ErrConstraint is returned when the engine rejects a write because of a
	// uniqueness constraint.
	ErrConstraint = errors.New("constraint violation")

	// ErrSerialization is returned when a value cannot be encoded, or when a
	// stored envelope cannot be decoded.
	ErrSerialization = errors.New("serialization failed")

	// ErrEngine is returned for faults reported by the relational engine.
	ErrEngine = errors.New("engine error")

	// ErrInvalidTopic is returned when a topic name is not a safe identifier.
	ErrInvalidTopic = errors.New("invalid topic name")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrConnectionNotExposed is returned by Conn when the store was opened
	// without exposing its engine connection.
	ErrConnectionNotExposed = errors.New("engine connection is not exposed")
)
