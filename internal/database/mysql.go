package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"golang.org/x/exp/slog"
)

// DialectMySQL is the dialect name reported by MySQL databases.
const DialectMySQL = "mysql"

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// MySQLOptions configures OpenMySQL.
type MySQLOptions struct {
	Host              string
	Port              int
	Database          string
	Username          string
	Password          string
	MaxOpenConns      int
	MaxIdleConns      int
	ConnMaxLifetime   time.Duration
	ConnMaxIdleTime   time.Duration
	ConnectionTimeout time.Duration
	Params            map[string]string
	Logger            *slog.Logger
}

// FormatDSN builds the driver connection string for the options.
func (o MySQLOptions) FormatDSN() string {
	cfg := mysql.NewConfig()
	cfg.User = o.Username
	cfg.Passwd = o.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
	cfg.DBName = o.Database
	cfg.ParseTime = true
	cfg.Timeout = o.ConnectionTimeout
	if len(o.Params) > 0 {
		cfg.Params = make(map[string]string, len(o.Params))
		for k, v := range o.Params {
			cfg.Params[k] = v
		}
	}
	return cfg.FormatDSN()
}

// OpenMySQL connects to a MySQL server and verifies the connection.
func OpenMySQL(ctx context.Context, opts MySQLOptions) (*SQLDatabase, error) {
	db, err := sql.Open("mysql", opts.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)

	pingCtx := ctx
	if opts.ConnectionTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, opts.ConnectionTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping mysql database: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("opened mysql database",
		slog.String("host", opts.Host),
		slog.Int("port", opts.Port),
		slog.String("database", opts.Database))

	return newSQLDatabase(db, DialectMySQL, isMySQLConstraint, logger), nil
}

func isMySQLConstraint(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}
