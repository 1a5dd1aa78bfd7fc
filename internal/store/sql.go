package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	// Database drivers: pure-Go sqlite (CGO-free) and postgres.
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/masmgr/revtrack/internal/errs"
)

// Supported SQL drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// SQLStore is a KV backed by a single SQL table.
type SQLStore struct {
	db     *sqlx.DB
	driver string
}

// OpenSQL opens a SQL-backed store and creates its schema.
func OpenSQL(driver, dsn string) (*SQLStore, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, errs.Errorf(errs.Config, "store open", "unsupported driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errs.E(errs.CacheStore, "store open", err)
	}

	if driver == DriverSQLite {
		// Enable WAL mode for better concurrency
		if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			db.Close()
			return nil, errs.E(errs.CacheStore, "store open", fmt.Errorf("enable wal: %w", err))
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errs.E(errs.CacheStore, "store open", fmt.Errorf("ping: %w", err))
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, errs.E(errs.CacheStore, "store open", fmt.Errorf("migrate: %w", err))
	}

	return &SQLStore{db: db, driver: driver}, nil
}

func migrate(db *sqlx.DB) error {
	schema := `
    CREATE TABLE IF NOT EXISTS kv (
        name       TEXT PRIMARY KEY,
        value      TEXT NOT NULL,
        updated_at TIMESTAMP NOT NULL
    );
    CREATE TABLE IF NOT EXISTS review_requests (
        id          TEXT PRIMARY KEY,
        submitter   TEXT NOT NULL,
        description TEXT NOT NULL,
        status      TEXT NOT NULL,
        created_at  TIMESTAMP NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_review_requests_created ON review_requests(created_at);
    `
	_, err := db.Exec(schema)
	return err
}

// DB exposes the underlying handle so other tables in the same database
// (the review log) can share the connection.
func (s *SQLStore) DB() *sqlx.DB {
	return s.db
}

// Driver returns the driver name the store was opened with.
func (s *SQLStore) Driver() string {
	return s.driver
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, s.db.Rebind(`SELECT value FROM kv WHERE name = ?`), key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, errs.E(errs.CacheStore, "store get", err)
	}
	return []byte(value), true, nil
}

func (s *SQLStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
        INSERT INTO kv (name, value, updated_at) VALUES (?, ?, ?)
        ON CONFLICT (name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
    `), key, string(value), time.Now().UTC())
	return errs.E(errs.CacheStore, "store put", err)
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM kv WHERE name = ?`), key)
	return errs.E(errs.CacheStore, "store delete", err)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
