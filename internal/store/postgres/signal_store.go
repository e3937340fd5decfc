package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mirrorbot/mirrorbot/internal/domain"
)

// SignalStore implements domain.SignalStore using PostgreSQL.
type SignalStore struct {
	pool *pgxpool.Pool
}

// NewSignalStore creates a new SignalStore backed by the given pool.
func NewSignalStore(pool *pgxpool.Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

const signalSelectCols = `id, chain_id, tx_hash, log_index, block_number, source_wallet,
	side, token_id, outcome, market_slug, source_notional_usdc, source_price, observed_at`

func scanSignalFromRow(scanner interface{ Scan(dest ...any) error }) (domain.TradeSignal, error) {
	var t domain.TradeSignal
	var side string
	var blockNumber int64

	err := scanner.Scan(
		&t.ID, &t.ChainID, &t.TxHash, &t.LogIndex, &blockNumber, &t.SourceWallet,
		&side, &t.TokenID, &t.Outcome, &t.MarketSlug,
		&t.SourceNotionalUSDC, &t.SourcePrice, &t.ObservedAt,
	)
	if err != nil {
		return domain.TradeSignal{}, err
	}

	t.BlockNumber = uint64(blockNumber)
	t.Side = domain.Side(side)
	return t, nil
}

// Insert appends a signal, ignoring duplicates of the event key. Reports
// whether a new row was created; on true, s.ID is filled.
func (s *SignalStore) Insert(ctx context.Context, t *domain.TradeSignal) (bool, error) {
	if t.SourceNotionalUSDC <= 0 {
		return false, fmt.Errorf("postgres: insert signal %s: %w: notional must be positive",
			t.TxHash, domain.ErrInvalidInput)
	}

	const query = `
		INSERT INTO trade_signals (chain_id, tx_hash, log_index, block_number, source_wallet,
			side, token_id, outcome, market_slug, source_notional_usdc, source_price, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (chain_id, source_wallet, tx_hash, log_index) DO NOTHING
		RETURNING id`

	observedAt := t.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	err := s.pool.QueryRow(ctx, query,
		t.ChainID, t.TxHash, t.LogIndex, int64(t.BlockNumber), t.SourceWallet,
		string(t.Side), t.TokenID, t.Outcome, t.MarketSlug,
		t.SourceNotionalUSDC, t.SourcePrice, observedAt,
	).Scan(&t.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Duplicate event; the existing row wins.
			return false, nil
		}
		return false, fmt.Errorf("postgres: insert signal %s/%d: %w", t.TxHash, t.LogIndex, err)
	}
	t.ObservedAt = observedAt
	return true, nil
}

// GetByID retrieves a single signal by id.
func (s *SignalStore) GetByID(ctx context.Context, id int64) (domain.TradeSignal, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+signalSelectCols+` FROM trade_signals WHERE id = $1`, id)

	t, err := scanSignalFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TradeSignal{}, domain.ErrNotFound
		}
		return domain.TradeSignal{}, fmt.Errorf("postgres: get signal %d: %w", id, err)
	}
	return t, nil
}

// ListCandidates returns unmirrored (signal, pair) combinations: signals from
// each active pair's source wallet, observed at or after the pair was
// created, with no mirror order yet. Observe-mode pairs only watch and never
// mirror, so they are excluded. Ascending signal id keeps per-pair orders in
// signal order.
func (s *SignalStore) ListCandidates(ctx context.Context, limit int) ([]domain.Candidate, error) {
	query := `
		SELECT ` + prefixCols("t", signalSelectCols) + `,
		       ` + prefixCols("p", pairSelectCols) + `,
		       ` + prefixCols("f", walletSelectCols) + `,
		       sw.portfolio_usdc
		FROM trade_signals t
		JOIN wallets sw ON sw.role = 'source'
			AND sw.status = 'active'
			AND sw.address = t.source_wallet
		JOIN pairs p ON p.active AND p.mode <> 'observe' AND p.source_wallet_id = sw.id
		JOIN wallets f ON f.id = p.follower_wallet_id
			AND f.role = 'follower'
			AND f.status = 'active'
		LEFT JOIN mirror_orders m ON m.pair_id = p.id AND m.trade_signal_id = t.id
		WHERE m.id IS NULL AND t.observed_at >= p.created_at
		ORDER BY t.id ASC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list candidates: %w", err)
	}
	defer rows.Close()

	var out []domain.Candidate
	for rows.Next() {
		var (
			c           domain.Candidate
			side        string
			blockNumber int64
			mode        string
			sizing      string
			role        string
			status      string
		)
		err := rows.Scan(
			&c.Signal.ID, &c.Signal.ChainID, &c.Signal.TxHash, &c.Signal.LogIndex,
			&blockNumber, &c.Signal.SourceWallet, &side, &c.Signal.TokenID,
			&c.Signal.Outcome, &c.Signal.MarketSlug, &c.Signal.SourceNotionalUSDC,
			&c.Signal.SourcePrice, &c.Signal.ObservedAt,

			&c.Pair.ID, &c.Pair.SourceWalletID, &c.Pair.FollowerWalletID,
			&mode, &c.Pair.Active, &sizing, &c.Pair.MinOrderUSDC, &c.Pair.MaxOrderUSDC,
			&c.Pair.MaxSlippageBps, &c.Pair.MaxConsecutiveFailures,
			&c.Pair.CreatedAt, &c.Pair.UpdatedAt,

			&c.Follower.ID, &role, &c.Follower.Address, &c.Follower.Alias, &status,
			&c.Follower.PortfolioUSDC, &c.Follower.BudgetUSDC, &c.Follower.KeyRef,
			&c.Follower.FundedAt, &c.Follower.CreatedAt, &c.Follower.UpdatedAt,

			&c.SourcePortfolioUSDC,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan candidate: %w", err)
		}
		c.Signal.BlockNumber = uint64(blockNumber)
		c.Signal.Side = domain.Side(side)
		c.Pair.Mode = domain.PairMode(mode)
		c.Pair.Sizing = domain.SizingMode(sizing)
		c.Follower.Role = domain.WalletRole(role)
		c.Follower.Status = domain.WalletStatus(status)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListBefore returns signals observed strictly before cutoff, oldest first.
func (s *SignalStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.TradeSignal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+signalSelectCols+` FROM trade_signals
		 WHERE observed_at < $1 ORDER BY id ASC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list signals before %s: %w", cutoff, err)
	}
	defer rows.Close()

	var signals []domain.TradeSignal
	for rows.Next() {
		t, err := scanSignalFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan signal: %w", err)
		}
		signals = append(signals, t)
	}
	return signals, rows.Err()
}

// DeleteBefore removes archived signals older than cutoff that have no
// remaining mirror orders. Returns the number of rows deleted.
func (s *SignalStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM trade_signals t
		 WHERE t.observed_at < $1
		   AND NOT EXISTS (SELECT 1 FROM mirror_orders m WHERE m.trade_signal_id = t.id)`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete signals before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

// prefixCols qualifies every column in a comma-separated list with a table
// alias, so select-column constants can be reused in join queries.
func prefixCols(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

var _ domain.SignalStore = (*SignalStore)(nil)
