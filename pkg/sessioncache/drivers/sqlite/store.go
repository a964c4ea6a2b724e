// Package sqlite stores session records in a single SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/rhsession/pkg/sessioncache"

	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	dsn string
	now func() time.Time
}

// NewStore opens the database at dsn. Call ApplyMigrations before first use.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, dsn: dsn, now: time.Now}, nil
}

// Open opens dsn and applies migrations.
func Open(dsn string) (*Store, error) {
	s, err := NewStore(dsn)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	if err := s.ApplyMigrations(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate session db: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	if err := sessioncache.ValidateKey(key); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		key, data, s.now().UTC(),
	)
	return err
}

func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	if err := sessioncache.ValidateKey(key); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE key = ?`, key).Scan(&data)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return data, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := sessioncache.ValidateKey(key); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE key = ?`, key)
	return err
}

var _ sessioncache.Timestamper = (*Store)(nil)

// UpdatedAt returns when the record under key was last saved.
func (s *Store) UpdatedAt(ctx context.Context, key string) (time.Time, error) {
	var at time.Time
	err := s.db.QueryRowContext(ctx, `SELECT updated_at FROM sessions WHERE key = ?`, key).Scan(&at)
	if err != nil {
		return time.Time{}, mapNotFound(err)
	}
	return at.UTC(), nil
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sessioncache.ErrNotFound
	}
	return err
}
