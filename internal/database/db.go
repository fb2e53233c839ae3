// Package database provides database connection management.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/khmerdict/dictbot/internal/config"
)

// ErrUnavailable marks a failed store operation: connectivity, timeout or query error.
// The request that hit it is answered with a "try again" reply.
var ErrUnavailable = errors.New("store unavailable")

// Dialect selects the SQL variant for statements that differ between engines.
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
)

// driverNames maps a dialect to its database/sql driver name.
var driverNames = map[Dialect]string{
	Postgres: "pgx",
	MySQL:    "mysql",
	SQLite:   "sqlite",
}

func init() {
	// modernc registers "sqlite", which sqlx does not know about.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// DialectOf reports the dialect of a connection opened by Open or wrapped with sqlx.NewDb.
func DialectOf(db *sqlx.DB) Dialect {
	for d, name := range driverNames {
		if db.DriverName() == name {
			return d
		}
	}
	return Postgres
}

// Open opens a connection pool for the configured driver.
func Open(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	driverName, dsn, err := connectionString(cfg, false)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database connection: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	return db, nil
}

// connectionString returns the database/sql driver name and DSN for cfg.
// multiStatements lets a MySQL connection run a whole migration file in one Exec.
func connectionString(cfg config.DatabaseConfig, multiStatements bool) (string, string, error) {
	dialect := Dialect(cfg.Driver)
	driverName, ok := driverNames[dialect]
	if !ok {
		return "", "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if dialect != MySQL {
		return driverName, cfg.URL, nil
	}

	mysqlCfg, err := mysql.ParseDSN(strings.TrimPrefix(cfg.URL, "mysql://"))
	if err != nil {
		return "", "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	mysqlCfg.ParseTime = true
	mysqlCfg.Loc = time.UTC
	mysqlCfg.MultiStatements = multiStatements
	if mysqlCfg.Params == nil {
		mysqlCfg.Params = map[string]string{}
	}
	if _, ok := mysqlCfg.Params["charset"]; !ok {
		mysqlCfg.Params["charset"] = "utf8mb4"
	}
	return driverName, mysqlCfg.FormatDSN(), nil
}

// Ping verifies the pool can reach the server.
func Ping(ctx context.Context, db *sqlx.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w: %w", ErrUnavailable, err)
	}
	return nil
}

// RunInTx runs fn within a database transaction.
// If fn returns an error, the transaction is rolled back; otherwise, it is committed.
func RunInTx(ctx context.Context, db *sqlx.DB, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback transaction: %w (original error: %v)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// BuildMultiRowInsert returns "INSERT INTO table (c1, c2) VALUES (?, ?), (?, ?)" for rows rows.
// Callers rebind the placeholders for their driver.
func BuildMultiRowInsert(table string, columns []string, rows int) string {
	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(") VALUES ")
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
	}
	return b.String()
}
