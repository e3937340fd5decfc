package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mirrorbot/mirrorbot/internal/domain"
)

// PairStore implements domain.PairStore using PostgreSQL.
type PairStore struct {
	pool *pgxpool.Pool
}

// NewPairStore creates a new PairStore backed by the given pool.
func NewPairStore(pool *pgxpool.Pool) *PairStore {
	return &PairStore{pool: pool}
}

const pairSelectCols = `id, source_wallet_id, follower_wallet_id, mode, active, sizing,
	min_order_usdc, max_order_usdc, max_slippage_bps, max_consecutive_failures,
	created_at, updated_at`

func scanPairFromRow(scanner interface{ Scan(dest ...any) error }) (domain.Pair, error) {
	var p domain.Pair
	var mode, sizing string

	err := scanner.Scan(
		&p.ID, &p.SourceWalletID, &p.FollowerWalletID, &mode, &p.Active, &sizing,
		&p.MinOrderUSDC, &p.MaxOrderUSDC, &p.MaxSlippageBps, &p.MaxConsecutiveFailures,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Pair{}, err
	}

	p.Mode = domain.PairMode(mode)
	p.Sizing = domain.SizingMode(sizing)
	return p, nil
}

// Create inserts a pair. The partial unique index on (source, follower)
// rejects a second active pair for the same wallets.
func (s *PairStore) Create(ctx context.Context, p *domain.Pair) error {
	const query = `
		INSERT INTO pairs (source_wallet_id, follower_wallet_id, mode, active, sizing,
			min_order_usdc, max_order_usdc, max_slippage_bps, max_consecutive_failures)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	err := s.pool.QueryRow(ctx, query,
		p.SourceWalletID, p.FollowerWalletID, string(p.Mode), p.Active, string(p.Sizing),
		p.MinOrderUSDC, p.MaxOrderUSDC, p.MaxSlippageBps, p.MaxConsecutiveFailures,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: create pair (%d,%d): %w",
				p.SourceWalletID, p.FollowerWalletID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create pair (%d,%d): %w",
			p.SourceWalletID, p.FollowerWalletID, err)
	}
	return nil
}

// GetByID retrieves a single pair by id.
func (s *PairStore) GetByID(ctx context.Context, id int64) (domain.Pair, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pairSelectCols+` FROM pairs WHERE id = $1`, id)

	p, err := scanPairFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Pair{}, domain.ErrNotFound
		}
		return domain.Pair{}, fmt.Errorf("postgres: get pair %d: %w", id, err)
	}
	return p, nil
}

// ListActive returns all active pairs, oldest first.
func (s *PairStore) ListActive(ctx context.Context) ([]domain.Pair, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pairSelectCols+` FROM pairs WHERE active ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active pairs: %w", err)
	}
	defer rows.Close()

	var pairs []domain.Pair
	for rows.Next() {
		p, err := scanPairFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// SetActive toggles the pair's active flag.
func (s *PairStore) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pairs SET active = $1, updated_at = NOW() WHERE id = $2`,
		active, id)
	if err != nil {
		return fmt.Errorf("postgres: set pair active %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ domain.PairStore = (*PairStore)(nil)
