// Package history keeps a local log of completed exports.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Entry is one completed export.
type Entry struct {
	ID        string
	From      string
	To        string
	Path      string
	Bytes     int64
	CreatedAt time.Time
}

// Store is the sqlite-backed export log.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func dsn(path string) string {
	return fmt.Sprintf("file:%s?_busy_timeout=5000", path)
}

// Open opens (creating if needed) the history database at path and applies
// pending migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	if err := migrateUp(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite
	db.SetConnMaxLifetime(0)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping history: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// migrateUp runs on its own connection; the migrate driver closes the
// database it was handed.
func migrateUp(path string) error {
	mdb, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	driver, err := sqlite3.WithInstance(mdb, &sqlite3.Config{})
	if err != nil {
		mdb.Close()
		return fmt.Errorf("create sqlite driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		driver.Close()
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		driver.Close()
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends a completed export.
func (s *Store) Record(ctx context.Context, from, to, path string, size int64) (Entry, error) {
	e := Entry{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Path:      path,
		Bytes:     size,
		CreatedAt: s.now().UTC().Truncate(time.Second),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exports (id, from_month, to_month, path, bytes, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.From, e.To, e.Path, e.Bytes, e.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("record export: %w", err)
	}
	return e, nil
}

// Recent returns up to limit exports, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, from_month, to_month, path, bytes, created_at
		   FROM exports
		  ORDER BY created_at DESC, rowid DESC
		  LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query exports: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.ID, &e.From, &e.To, &e.Path, &e.Bytes, &created); err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		e.CreatedAt, err = time.Parse(time.RFC3339, created)
		if err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", created, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
