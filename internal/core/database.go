package core

import (
	"context"
	"database/sql"
)

// Database defines the operations the store needs from the relational engine.
// Implementations wrap a database/sql handle for a specific driver.
type Database interface {
	// Exec executes a statement that does not return rows.
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)

	// Query executes a statement that returns rows.
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)

	// BeginTx starts a new transaction.
	BeginTx(ctx context.Context) (Transaction, error)

	// Dialect returns the SQL dialect name of the engine ("sqlite" or "mysql").
	Dialect() string

	// DB returns the underlying connection handle.
	DB() *sql.DB

	// Close closes the connection and releases resources.
	Close() error
}

// Transaction is a unit of work on the engine. Either every statement
// executed through it takes effect on Commit, or none does.
type Transaction interface {
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)
	Commit() error
	Rollback() error
}

// Rows is a cursor over a query result.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Columns() ([]string, error)
	Close() error
	Err() error
}

// Result summarizes an executed statement.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}
