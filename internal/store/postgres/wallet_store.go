package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mirrorbot/mirrorbot/internal/domain"
)

// WalletStore implements domain.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *pgxpool.Pool
}

// NewWalletStore creates a new WalletStore backed by the given pool.
func NewWalletStore(pool *pgxpool.Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

const walletSelectCols = `id, role, address, alias, status, portfolio_usdc,
	budget_usdc, key_ref, funded_at, created_at, updated_at`

func scanWalletFromRow(scanner interface{ Scan(dest ...any) error }) (domain.Wallet, error) {
	var w domain.Wallet
	var role, status string

	err := scanner.Scan(
		&w.ID, &role, &w.Address, &w.Alias, &status, &w.PortfolioUSDC,
		&w.BudgetUSDC, &w.KeyRef, &w.FundedAt, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return domain.Wallet{}, err
	}

	w.Role = domain.WalletRole(role)
	w.Status = domain.WalletStatus(status)
	return w, nil
}

// Create inserts a wallet. Addresses are normalized to lowercase so the
// watcher's log classification can compare them directly.
func (s *WalletStore) Create(ctx context.Context, w *domain.Wallet) error {
	const query = `
		INSERT INTO wallets (role, address, alias, status, portfolio_usdc, budget_usdc, key_ref, funded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	err := s.pool.QueryRow(ctx, query,
		string(w.Role), strings.ToLower(w.Address), w.Alias, string(w.Status),
		w.PortfolioUSDC, w.BudgetUSDC, w.KeyRef, w.FundedAt,
	).Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: create wallet %s: %w", w.Address, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create wallet %s: %w", w.Address, err)
	}
	w.Address = strings.ToLower(w.Address)
	return nil
}

// GetByID retrieves a single wallet by id.
func (s *WalletStore) GetByID(ctx context.Context, id int64) (domain.Wallet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+walletSelectCols+` FROM wallets WHERE id = $1`, id)

	w, err := scanWalletFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Wallet{}, domain.ErrNotFound
		}
		return domain.Wallet{}, fmt.Errorf("postgres: get wallet %d: %w", id, err)
	}
	return w, nil
}

// GetByAddress retrieves a wallet by role and address.
func (s *WalletStore) GetByAddress(ctx context.Context, role domain.WalletRole, address string) (domain.Wallet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+walletSelectCols+` FROM wallets WHERE role = $1 AND address = $2`,
		string(role), strings.ToLower(address))

	w, err := scanWalletFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Wallet{}, domain.ErrNotFound
		}
		return domain.Wallet{}, fmt.Errorf("postgres: get wallet %s: %w", address, err)
	}
	return w, nil
}

// ListActive returns active wallets for the given role, oldest first.
func (s *WalletStore) ListActive(ctx context.Context, role domain.WalletRole) ([]domain.Wallet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+walletSelectCols+` FROM wallets
		 WHERE role = $1 AND status = 'active'
		 ORDER BY id ASC`, string(role))
	if err != nil {
		return nil, fmt.Errorf("postgres: list active wallets: %w", err)
	}
	defer rows.Close()

	var wallets []domain.Wallet
	for rows.Next() {
		w, err := scanWalletFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// SetStatus updates the wallet's lifecycle flag.
func (s *WalletStore) SetStatus(ctx context.Context, id int64, status domain.WalletStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE wallets SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("postgres: set wallet status %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetPortfolio records the source wallet's portfolio baseline used by
// proportional sizing.
func (s *WalletStore) SetPortfolio(ctx context.Context, id int64, portfolioUSDC float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE wallets SET portfolio_usdc = $1, updated_at = NOW() WHERE id = $2`,
		portfolioUSDC, id)
	if err != nil {
		return fmt.Errorf("postgres: set wallet portfolio %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ConsumeBudget decreases a follower's budget by amount, clamping at zero.
// A negative amount refunds.
func (s *WalletStore) ConsumeBudget(ctx context.Context, followerID int64, amount float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE wallets
		 SET budget_usdc = GREATEST(budget_usdc - $1, 0), updated_at = NOW()
		 WHERE id = $2 AND role = 'follower'`,
		amount, followerID)
	if err != nil {
		return fmt.Errorf("postgres: consume budget %d: %w", followerID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}

var _ domain.WalletStore = (*WalletStore)(nil)
