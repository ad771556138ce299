// Package store is the State Store Access Layer: the single source of
// truth for account, position, order, trade and configuration state.
// It follows the teacher's raw database/sql idiom (store/strategy.go,
// store/tactics.go) — no ORM, explicit CREATE TABLE IF NOT EXISTS
// migrations run at startup, and one *sql.DB shared across per-entity
// store types.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"ApexCore/internal/errs"
	"ApexCore/internal/logger"
)

// DB wraps the shared connection pool. All per-entity stores (AccountStore,
// PositionStore, ...) are constructed around the same *DB so that
// transactional methods can span tables without opening extra connections.
type DB struct {
	*sql.DB
}

// Open connects to MySQL using the given DSN (see internal/config
// DatabaseConfig.DSN) and verifies connectivity with a bounded ping.
// Connection failure here is Fatal: spec.md §6 requires the process to
// exit non-zero when the database is unreachable at init.
func Open(dsn string) (*DB, error) {
	sqlDB, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errs.New(errs.Fatal, "store.Open", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, errs.New(errs.Fatal, "store.Open.ping", err)
	}
	return &DB{sqlDB}, nil
}

// OpenSQLite opens an in-memory sqlite database for tests, using the same
// modernc.org/sqlite driver the teacher ships as its embeddable backend.
func OpenSQLite(dsn string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	sqlDB.SetMaxOpenConns(1) // sqlite: one writer
	return &DB{sqlDB}, nil
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error or panic. Every write that touches money (spec.md
// §4.11) must go through this helper so a partial write is never
// observable.
func (d *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, txErr := d.DB.BeginTx(ctx, nil)
	if txErr != nil {
		return errs.New(errs.TransientInfra, "store.WithTx.begin", txErr)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Errorf("store: rollback after error failed: %v (original: %v)", rbErr, err)
			}
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}

// Migrate creates every table spec.md §6 names, idempotently, with the
// CREATE TABLE IF NOT EXISTS style of the teacher's store/tactics.go. It
// runs no ALTER TABLE steps, so columns added later are not applied to
// tables that already exist.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return errs.New(errs.Fatal, "store.Migrate", fmt.Errorf("%s: %w", firstLine(stmt), err))
		}
	}
	logger.Infof("store: schema migration complete (%d statements)", len(schemaStatements))
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
