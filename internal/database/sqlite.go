package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/exp/slog"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	// DialectSQLite is the dialect name reported by SQLite databases.
	DialectSQLite = "sqlite"

	// MemoryLocation opens a private in-memory database.
	MemoryLocation = ":memory:"
)

// SQLiteOptions configures OpenSQLite.
type SQLiteOptions struct {
	Location  string
	EnableWAL bool
	Logger    *slog.Logger
}

// OpenSQLite opens the SQLite database at the configured location. The pool
// is limited to one connection so an in-memory database is shared by every
// statement and writes are serialized.
func OpenSQLite(ctx context.Context, opts SQLiteOptions) (*SQLDatabase, error) {
	location := opts.Location
	if location == "" {
		location = MemoryLocation
	}

	db, err := sql.Open("sqlite", sqliteDSN(location, opts.EnableWAL))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %q: %w", location, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database %q: %w", location, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("opened sqlite database",
		slog.String("location", location),
		slog.Bool("wal", opts.EnableWAL && location != MemoryLocation))

	return newSQLDatabase(db, DialectSQLite, isSQLiteConstraint, logger), nil
}

// sqliteDSN appends the connection pragmas to location. Write-ahead logging
// is not applied to in-memory databases.
func sqliteDSN(location string, enableWAL bool) string {
	pragmas := []string{"busy_timeout(5000)"}
	if enableWAL && location != MemoryLocation {
		pragmas = append(pragmas, "page_size(65536)", "journal_mode(WAL)", "synchronous(OFF)")
	}

	query := url.Values{}
	for _, pragma := range pragmas {
		query.Add("_pragma", pragma)
	}

	sep := "?"
	if strings.Contains(location, "?") {
		sep = "&"
	}
	return location + sep + query.Encode()
}

func isSQLiteConstraint(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}
