package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/exp/slog"

	"github.com/rzpsarthak13/holdthis/internal/core"
)

var errDatabaseClosed = errors.New("database is closed")

// SQLDatabase implements core.Database on top of a database/sql handle.
// Driver-specific behavior is limited to opening the handle and recognizing
// constraint violations.
type SQLDatabase struct {
	mu           sync.RWMutex
	db           *sql.DB
	dialect      string
	isConstraint func(error) bool
	logger       *slog.Logger
	closed       bool
}

func newSQLDatabase(db *sql.DB, dialect string, isConstraint func(error) bool, logger *slog.Logger) *SQLDatabase {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLDatabase{
		db:           db,
		dialect:      dialect,
		isConstraint: isConstraint,
		logger:       logger.With(slog.String("engine", dialect)),
	}
}

// Exec executes a statement that does not return rows.
func (d *SQLDatabase) Exec(ctx context.Context, query string, args ...interface{}) (core.Result, error) {
	if d.isClosed() {
		return nil, d.wrap("exec", errDatabaseClosed)
	}
	result, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		d.logger.Debug("statement failed", slog.String("query", query), slog.Any("error", err))
		return nil, d.wrap("exec", err)
	}
	return &sqlResult{result: result}, nil
}

// Query executes a statement that returns rows.
func (d *SQLDatabase) Query(ctx context.Context, query string, args ...interface{}) (core.Rows, error) {
	if d.isClosed() {
		return nil, d.wrap("query", errDatabaseClosed)
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		d.logger.Debug("query failed", slog.String("query", query), slog.Any("error", err))
		return nil, d.wrap("query", err)
	}
	return &sqlRows{rows: rows, wrap: d.wrap}, nil
}

// BeginTx starts a new transaction.
func (d *SQLDatabase) BeginTx(ctx context.Context) (core.Transaction, error) {
	if d.isClosed() {
		return nil, d.wrap("begin", errDatabaseClosed)
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, d.wrap("begin", err)
	}
	return &sqlTransaction{tx: tx, wrap: d.wrap, logger: d.logger}, nil
}

// Dialect returns the SQL dialect name of the engine.
func (d *SQLDatabase) Dialect() string {
	return d.dialect
}

// DB returns the underlying connection handle.
func (d *SQLDatabase) DB() *sql.DB {
	return d.db
}

// Close closes the connection handle. Closing twice is a no-op.
func (d *SQLDatabase) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.db.Close(); err != nil {
		return d.wrap("close", err)
	}
	return nil
}

func (d *SQLDatabase) isClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

func (d *SQLDatabase) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{
		Op:         op,
		Err:        err,
		Constraint: d.isConstraint != nil && d.isConstraint(err),
	}
}

// sqlRows wraps sql.Rows to implement core.Rows.
type sqlRows struct {
	rows *sql.Rows
	wrap func(op string, err error) error
}

func (r *sqlRows) Next() bool {
	return r.rows.Next()
}

func (r *sqlRows) Scan(dest ...interface{}) error {
	return r.wrap("scan", r.rows.Scan(dest...))
}

func (r *sqlRows) Columns() ([]string, error) {
	columns, err := r.rows.Columns()
	return columns, r.wrap("columns", err)
}

func (r *sqlRows) Close() error {
	return r.wrap("close rows", r.rows.Close())
}

func (r *sqlRows) Err() error {
	return r.wrap("iterate rows", r.rows.Err())
}

// sqlResult wraps sql.Result to implement core.Result.
type sqlResult struct {
	result sql.Result
}

func (r *sqlResult) LastInsertId() (int64, error) {
	return r.result.LastInsertId()
}

func (r *sqlResult) RowsAffected() (int64, error) {
	return r.result.RowsAffected()
}

// sqlTransaction wraps sql.Tx to implement core.Transaction.
type sqlTransaction struct {
	tx     *sql.Tx
	wrap   func(op string, err error) error
	logger *slog.Logger
}

func (t *sqlTransaction) Exec(ctx context.Context, query string, args ...interface{}) (core.Result, error) {
	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		t.logger.Debug("statement failed in transaction", slog.String("query", query), slog.Any("error", err))
		return nil, t.wrap("exec", err)
	}
	return &sqlResult{result: result}, nil
}

func (t *sqlTransaction) Query(ctx context.Context, query string, args ...interface{}) (core.Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, t.wrap("query", err)
	}
	return &sqlRows{rows: rows, wrap: t.wrap}, nil
}

func (t *sqlTransaction) Commit() error {
	return t.wrap("commit", t.tx.Commit())
}

func (t *sqlTransaction) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return t.wrap("rollback", err)
}

// RunInTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back when it returns an error or panics.
func RunInTx(ctx context.Context, db core.Database, fn func(tx core.Transaction) error) (err error) {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
