package tle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	createCacheTableSQL = `
CREATE TABLE IF NOT EXISTS tle_catalog_cache (
	id         SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	body       BYTEA NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL
)`

	upsertCacheSQL = `
INSERT INTO tle_catalog_cache (id, body, fetched_at)
VALUES (1, $1, $2)
ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, fetched_at = EXCLUDED.fetched_at`

	selectCacheSQL = `SELECT body, fetched_at FROM tle_catalog_cache WHERE id = 1`
)

// PostgresStore persists the latest catalog document as a single row.
// The upsert is one statement, so a failed write leaves the previous row intact.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to url and ensures the cache table exists.
func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolCfg.MaxConns = 4
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, createCacheTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating cache table: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Save replaces the stored document.
func (s *PostgresStore) Save(ctx context.Context, data []byte, ts time.Time) error {
	if _, err := s.pool.Exec(ctx, upsertCacheSQL, data, ts.UTC()); err != nil {
		return fmt.Errorf("saving catalog cache: %w", err)
	}
	return nil
}

// Load returns the stored document, or ErrNoCachedCatalog if there is none.
func (s *PostgresStore) Load(ctx context.Context) ([]byte, time.Time, error) {
	var (
		body      []byte
		fetchedAt time.Time
	)
	err := s.pool.QueryRow(ctx, selectCacheSQL).Scan(&body, &fetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, time.Time{}, ErrNoCachedCatalog
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("loading catalog cache: %w", err)
	}
	return body, fetchedAt.UTC(), nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
