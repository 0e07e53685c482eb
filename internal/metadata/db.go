// Package metadata is the Metadata Store (spec §4.4): the system of record
// for runs, documents, tasks, artifacts, evaluation rows and Elo ratings,
// backed by PostgreSQL through jmoiron/sqlx, migrated with
// golang-migrate/migrate and driven by lib/pq.
package metadata

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Open establishes a PostgreSQL connection pool via sqlx and verifies
// connectivity with a ping.
func Open(ctx context.Context, dsn string, maxOpen, maxIdle, connMaxLifeSecs int) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("metadata: open: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if connMaxLifeSecs > 0 {
		db.SetConnMaxLifetime(time.Duration(connMaxLifeSecs) * time.Second)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("metadata: ping: %w", err)
	}
	return db, nil
}

// Migrate applies every pending migration under migrations/.
func Migrate(dsn string) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("metadata: migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("metadata: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("metadata: migrate up: %w", err)
	}
	return nil
}

// Store wraps the sqlx handle shared by every repository in this package.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic — the pattern every multi-statement write (task
// status transitions, run creation with tags) in this package uses.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("metadata: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}

// Ping reports whether the underlying pool is healthy.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isNoRows(err error) bool {
	return err == sql.ErrNoRows
}

// postgres unique_violation, see https://www.postgresql.org/docs/current/errcodes-appendix.html
const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}
