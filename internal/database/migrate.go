package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/khmerdict/dictbot/internal/config"
	"github.com/khmerdict/dictbot/schemas"
)

// maxSchemaRetryDelay caps the backoff between pings in AwaitSchema.
const maxSchemaRetryDelay = 30 * time.Second

// MigrationResult reports the schema version before and after Migrate.
// Version 0 is a database no migration has touched.
type MigrationResult struct {
	From uint
	To   uint
}

// Changed reports whether any migration was applied.
func (r MigrationResult) Changed() bool {
	return r.From != r.To
}

// Migrate applies the embedded migrations of cfg's dialect that have not run yet.
// It opens a dedicated connection and closes it before returning.
func Migrate(ctx context.Context, cfg config.DatabaseConfig) (MigrationResult, error) {
	return migrateFS(ctx, cfg, schemas.Migrations, path.Join("migrations", cfg.Driver))
}

func migrateFS(ctx context.Context, cfg config.DatabaseConfig, fsys fs.FS, dir string) (MigrationResult, error) {
	driverName, dsn, err := connectionString(cfg, true)
	if err != nil {
		return MigrationResult{}, err
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("open migration connection: %w", err)
	}

	dbDriver, err := migrationDriver(Dialect(cfg.Driver), db)
	if err != nil {
		_ = db.Close()
		return MigrationResult{}, fmt.Errorf("migration driver: %w: %w", ErrUnavailable, err)
	}
	src, err := iofs.New(fsys, dir)
	if err != nil {
		_ = dbDriver.Close()
		_ = db.Close()
		return MigrationResult{}, fmt.Errorf("iofs.New(%s) > %w", dir, err)
	}
	m, err := migrate.NewWithInstance("iofs", src, cfg.Driver, dbDriver)
	if err != nil {
		_ = src.Close()
		_ = dbDriver.Close()
		_ = db.Close()
		return MigrationResult{}, fmt.Errorf("migrate.NewWithInstance > %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			slog.Default().Warn("failed to close migrator", "source_error", srcErr, "database_error", dbErr)
		}
		_ = db.Close()
	}()
	m.Log = migrateLogger{logger: slog.Default()}

	from, err := currentVersion(m)
	if err != nil {
		return MigrationResult{}, err
	}
	result := MigrationResult{From: from, To: from}

	// Up stops between migrations once ctx is done.
	stop := context.AfterFunc(ctx, func() { m.GracefulStop <- true })
	defer stop()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return result, fmt.Errorf("m.Up > %w", err)
	}
	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("migration interrupted: %w", err)
	}
	if result.To, err = currentVersion(m); err != nil {
		return result, err
	}
	return result, nil
}

func migrationDriver(dialect Dialect, db *sql.DB) (migratedb.Driver, error) {
	switch dialect {
	case Postgres:
		return migratepgx.WithInstance(db, &migratepgx.Config{})
	case MySQL:
		return migratemysql.WithInstance(db, &migratemysql.Config{})
	case SQLite:
		return migratesqlite.WithInstance(db, &migratesqlite.Config{})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dialect)
	}
}

func currentVersion(m *migrate.Migrate) (uint, error) {
	version, _, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("m.Version > %w", err)
	}
	return version, nil
}

// migrateLogger sends golang-migrate progress lines to slog at debug level.
type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "migrate")
}

func (l migrateLogger) Verbose() bool {
	return l.logger.Enabled(context.Background(), slog.LevelDebug)
}

// AwaitSchema pings db with backoff until it answers and then runs Migrate.
// It gives up after attempts pings or when ctx is done.
func AwaitSchema(ctx context.Context, db *sqlx.DB, cfg config.DatabaseConfig, attempts uint, delay time.Duration) (MigrationResult, error) {
	ping := func(ctx context.Context) error {
		if cfg.QueryTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.QueryTimeout)
			defer cancel()
		}
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping database: %w: %w", ErrUnavailable, err)
		}
		return nil
	}
	return awaitSchema(ctx, ping, func(ctx context.Context) (MigrationResult, error) {
		return Migrate(ctx, cfg)
	}, attempts, delay)
}

func awaitSchema(
	ctx context.Context,
	ping func(ctx context.Context) error,
	migrateFn func(ctx context.Context) (MigrationResult, error),
	attempts uint,
	delay time.Duration,
) (MigrationResult, error) {
	err := retry.Do(
		func() error { return ping(ctx) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.MaxDelay(maxSchemaRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Default().Debug("database still unreachable", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("wait for database > %w", err)
	}
	return migrateFn(ctx)
}
