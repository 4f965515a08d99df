// Package store persists manual overrides and the schedule version history.
// SQLite is used by default; Postgres is used when a DSN is configured.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver, registered as "pgx"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // SQLite driver, registered as "sqlite"
)

var (
	// ErrNotFound is returned when a looked up record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrVersionExists is returned when a schedule version is already
	// published for the same effective-from date.
	ErrVersionExists = errors.New("a schedule version already exists for this date")
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "pgx"

	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02T15:04:05.000000Z07:00"
)

func init() {
	sqlx.BindDriver(driverSQLite, sqlx.QUESTION)
}

// Options selects the database. DatabaseURL wins over Path when set.
type Options struct {
	DatabaseURL string
	Path        string
}

// Store is the SQL-backed persistence layer. It is safe for concurrent use.
type Store struct {
	db     *sqlx.DB
	logger zerolog.Logger
	now    func() time.Time
}

// Open connects to the configured database and applies the schema.
func Open(ctx context.Context, opts Options, logger zerolog.Logger) (*Store, error) {
	driver, dsn := driverSQLite, opts.Path
	if opts.DatabaseURL != "" {
		driver, dsn = driverPostgres, opts.DatabaseURL
	}
	if dsn == "" {
		return nil, errors.New("no database configured")
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if driver == driverSQLite {
		// SQLite serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}

	s := &Store{
		db:     db,
		logger: logger.With().Str("component", "store").Str("driver", driver).Logger(),
		now:    time.Now,
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info().Msg("database ready")
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS justifications (
		agent_id   TEXT NOT NULL,
		date       TEXT NOT NULL,
		type       TEXT NOT NULL,
		note       TEXT NOT NULL DEFAULT '',
		lead       TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL,
		PRIMARY KEY (agent_id, date)
	)`,
	`CREATE INDEX IF NOT EXISTS justifications_date_idx ON justifications (date)`,
	`CREATE TABLE IF NOT EXISTS schedule_versions (
		id             TEXT PRIMARY KEY,
		effective_from TEXT NOT NULL UNIQUE,
		created_at     TEXT NOT NULL,
		note           TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS schedule_entries (
		version_id     TEXT NOT NULL REFERENCES schedule_versions (id) ON DELETE CASCADE,
		seq            INTEGER NOT NULL,
		agent_id       TEXT NOT NULL,
		name           TEXT NOT NULL DEFAULT '',
		lead           TEXT NOT NULL DEFAULT '',
		shift          TEXT NOT NULL DEFAULT '',
		working_days   TEXT NOT NULL DEFAULT '',
		days_off       TEXT NOT NULL DEFAULT '',
		expected_start INTEGER,
		expected_end   INTEGER,
		PRIMARY KEY (version_id, seq)
	)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back when it fails.
func (s *Store) withTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(v string) time.Time {
	t, err := time.Parse(timestampLayout, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
