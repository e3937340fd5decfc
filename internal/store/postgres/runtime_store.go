package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mirrorbot/mirrorbot/internal/domain"
)

// RuntimeStore implements domain.RuntimeStore on the watcher_state key/value
// table. It carries the watcher's durable pacing state and the loop
// heartbeats.
type RuntimeStore struct {
	pool *pgxpool.Pool
}

// NewRuntimeStore creates a new RuntimeStore backed by the given pool.
func NewRuntimeStore(pool *pgxpool.Pool) *RuntimeStore {
	return &RuntimeStore{pool: pool}
}

// Get returns the value stored under key, or domain.ErrNotFound.
func (s *RuntimeStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM watcher_state WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("postgres: get runtime key %s: %w", key, err)
	}
	return value, nil
}

// Set upserts the value under key.
func (s *RuntimeStore) Set(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO watcher_state (key, value, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, value)
	if err != nil {
		return fmt.Errorf("postgres: set runtime key %s: %w", key, err)
	}
	return nil
}

var _ domain.RuntimeStore = (*RuntimeStore)(nil)
