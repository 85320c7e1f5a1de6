// Package db provides database persistence for foundry.
//
// A single database per project (default .truth/truth.db, SQLite) holds
// the append-only event log plus the derived projections the truth store
// maintains: gates, tasks, proof artifacts, agent spawns, specs, workers,
// deliverables, documents, and the cost ledger.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/foundrydev/foundry/internal/db/driver"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Store wraps a database connection with dialect abstraction.
type Store struct {
	driver driver.Driver
	path   string
}

// Open opens a SQLite database at the given path, creating the parent
// directory if needed, and applies pending migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return open(driver.DialectSQLite, path)
}

// OpenInMemory opens an in-memory SQLite database. Each call creates a
// new isolated database; ideal for tests.
func OpenInMemory() (*Store, error) {
	return open(driver.DialectSQLite, ":memory:")
}

// OpenPostgres opens a PostgreSQL database with the given DSN.
func OpenPostgres(dsn string) (*Store, error) {
	return open(driver.DialectPostgres, dsn)
}

func open(dialect driver.Dialect, dsn string) (*Store, error) {
	drv, err := driver.New(dialect)
	if err != nil {
		return nil, err
	}
	if err := drv.Open(dsn); err != nil {
		return nil, err
	}

	s := &Store{driver: drv, path: dsn}
	if err := drv.Migrate(context.Background(), schemaFS, "truth"); err != nil {
		_ = drv.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.driver.Close()
}

// Path returns the database DSN/path.
func (s *Store) Path() string {
	return s.path
}

// DB returns the underlying sql.DB for advanced operations.
func (s *Store) DB() *sql.DB {
	return s.driver.DB()
}

// rebind converts ? placeholders to the dialect's form.
func rebind(d driver.Driver, query string) string {
	if d.Dialect() != driver.DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Exec executes a query against the store.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.driver.Exec(ctx, rebind(s.driver, query), args...)
}

// Query executes a query that returns rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.driver.Query(ctx, rebind(s.driver, query), args...)
}

// QueryRow executes a query that returns at most one row.
func (s *Store) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.driver.QueryRow(ctx, rebind(s.driver, query), args...)
}

// Queryer is the common query surface shared by Store and TxOps, so
// entity helpers work both inside and outside transactions.
type Queryer interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) *sql.Row
}

// TxOps provides query operations bound to a transaction.
type TxOps struct {
	tx driver.Tx
	d  driver.Driver
}

// Exec executes a query within the transaction.
func (t *TxOps) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.Exec(ctx, rebind(t.d, query), args...)
}

// Query executes a query that returns rows within the transaction.
func (t *TxOps) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.Query(ctx, rebind(t.d, query), args...)
}

// QueryRow executes a query that returns at most one row within the
// transaction.
func (t *TxOps) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRow(ctx, rebind(t.d, query), args...)
}

// RunInTx runs fn within a transaction, committing on nil return and
// rolling back otherwise.
func (s *Store) RunInTx(ctx context.Context, fn func(*TxOps) error) error {
	tx, err := s.driver.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	ops := &TxOps{tx: tx, d: s.driver}
	if err := fn(ops); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
