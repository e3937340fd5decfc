package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mirrorbot/mirrorbot/internal/domain"
)

// VaultStore implements domain.VaultStore using PostgreSQL. Rows hold only
// ciphertext; encryption happens in the vault package.
type VaultStore struct {
	pool *pgxpool.Pool
}

// NewVaultStore creates a new VaultStore backed by the given pool.
func NewVaultStore(pool *pgxpool.Pool) *VaultStore {
	return &VaultStore{pool: pool}
}

// Put upserts the ciphertext under name.
func (s *VaultStore) Put(ctx context.Context, name string, ciphertext []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO vault_keys (name, ciphertext)
		 VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET ciphertext = EXCLUDED.ciphertext`,
		name, ciphertext)
	if err != nil {
		return fmt.Errorf("postgres: put vault key %s: %w", name, err)
	}
	return nil
}

// Get retrieves one vault key by name.
func (s *VaultStore) Get(ctx context.Context, name string) (domain.VaultKey, error) {
	var k domain.VaultKey
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, ciphertext, created_at FROM vault_keys WHERE name = $1`,
		name).Scan(&k.ID, &k.Name, &k.Ciphertext, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.VaultKey{}, domain.ErrNotFound
		}
		return domain.VaultKey{}, fmt.Errorf("postgres: get vault key %s: %w", name, err)
	}
	return k, nil
}

// List returns all vault keys by name, without ciphertext.
func (s *VaultStore) List(ctx context.Context) ([]domain.VaultKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, created_at FROM vault_keys ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list vault keys: %w", err)
	}
	defer rows.Close()

	var keys []domain.VaultKey
	for rows.Next() {
		var k domain.VaultKey
		if err := rows.Scan(&k.ID, &k.Name, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan vault key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

var _ domain.VaultStore = (*VaultStore)(nil)
