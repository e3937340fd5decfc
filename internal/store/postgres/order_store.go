package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mirrorbot/mirrorbot/internal/domain"
)

// OrderStore implements domain.MirrorOrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderSelectCols = `id, pair_id, trade_signal_id, requested_notional_usdc,
	adjusted_notional_usdc, status, blocked_reason, executor_ref, created_at, updated_at`

func scanOrderFromRow(scanner interface{ Scan(dest ...any) error }) (domain.MirrorOrder, error) {
	var o domain.MirrorOrder
	var status string

	err := scanner.Scan(
		&o.ID, &o.PairID, &o.TradeSignalID, &o.RequestedNotionalUSDC,
		&o.AdjustedNotionalUSDC, &status, &o.BlockedReason, &o.ExecutorRef,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.MirrorOrder{}, err
	}

	o.Status = domain.OrderStatus(status)
	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.MirrorOrder, error) {
	var orders []domain.MirrorOrder
	for rows.Next() {
		o, err := scanOrderFromRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Create inserts a mirror order, ignoring duplicates of
// (pair_id, trade_signal_id). Reports whether a row was created; on true,
// o.ID is filled.
func (s *OrderStore) Create(ctx context.Context, o *domain.MirrorOrder) (bool, error) {
	const query = `
		INSERT INTO mirror_orders (pair_id, trade_signal_id, requested_notional_usdc,
			adjusted_notional_usdc, status, blocked_reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (pair_id, trade_signal_id) DO NOTHING
		RETURNING id, created_at, updated_at`

	err := s.pool.QueryRow(ctx, query,
		o.PairID, o.TradeSignalID, o.RequestedNotionalUSDC,
		o.AdjustedNotionalUSDC, string(o.Status), o.BlockedReason,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// (pair, signal) already mirrored.
			return false, nil
		}
		return false, fmt.Errorf("postgres: create mirror order (%d,%d): %w",
			o.PairID, o.TradeSignalID, err)
	}
	return true, nil
}

// GetByID retrieves a single mirror order by id.
func (s *OrderStore) GetByID(ctx context.Context, id int64) (domain.MirrorOrder, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM mirror_orders WHERE id = $1`, id)

	o, err := scanOrderFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MirrorOrder{}, domain.ErrNotFound
		}
		return domain.MirrorOrder{}, fmt.Errorf("postgres: get mirror order %d: %w", id, err)
	}
	return o, nil
}

// ListByStatus returns orders with the given status, oldest first.
func (s *OrderStore) ListByStatus(ctx context.Context, status domain.OrderStatus, limit int) ([]domain.MirrorOrder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM mirror_orders
		 WHERE status = $1 ORDER BY id ASC LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list %s mirror orders: %w", status, err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan %s mirror orders: %w", status, err)
	}
	return orders, nil
}

// ListStaleSent returns sent orders whose last update is at or before
// cutoff. Orders sent with an empty ref (submit timeout) are included; the
// reconciler recovers those without a venue cancel.
func (s *OrderStore) ListStaleSent(ctx context.Context, cutoff time.Time, limit int) ([]domain.MirrorOrder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM mirror_orders
		 WHERE status = 'sent' AND updated_at <= $1
		 ORDER BY updated_at ASC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stale sent orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan stale sent orders: %w", err)
	}
	return orders, nil
}

// UpdateStatus moves the order along the state machine. The update only
// lands when the current status has a legal edge to the new one; otherwise
// ErrInvalidTransition is returned.
func (s *OrderStore) UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus, blockedReason string) error {
	cur, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !cur.Status.CanTransitionTo(status) {
		return fmt.Errorf("postgres: mirror order %d: %s -> %s: %w",
			id, cur.Status, status, domain.ErrInvalidTransition)
	}

	// Guard with the observed status so a concurrent transition loses.
	tag, err := s.pool.Exec(ctx,
		`UPDATE mirror_orders
		 SET status = $1, blocked_reason = $2, updated_at = NOW()
		 WHERE id = $3 AND status = $4`,
		string(status), blockedReason, id, string(cur.Status))
	if err != nil {
		return fmt.Errorf("postgres: update mirror order %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mirror order %d: concurrent update: %w",
			id, domain.ErrInvalidTransition)
	}
	return nil
}

// SetExecutorRef records the venue's order id. It refuses to overwrite a
// non-empty ref.
func (s *OrderStore) SetExecutorRef(ctx context.Context, id int64, ref string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE mirror_orders SET executor_ref = $1, updated_at = NOW()
		 WHERE id = $2 AND executor_ref = ''`, ref, id)
	if err != nil {
		return fmt.Errorf("postgres: set executor ref %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: set executor ref %d: %w", id, domain.ErrInvalidTransition)
	}
	return nil
}

// Requeue returns a sent order to queued with the given reason and clears
// the executor ref. This is the one-shot timeout reprice path.
func (s *OrderStore) Requeue(ctx context.Context, id int64, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE mirror_orders
		 SET status = 'queued', blocked_reason = $1, executor_ref = '', updated_at = NOW()
		 WHERE id = $2 AND status = 'sent'`, reason, id)
	if err != nil {
		return fmt.Errorf("postgres: requeue mirror order %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: requeue mirror order %d: %w", id, domain.ErrInvalidTransition)
	}
	return nil
}

// HasFilledBuy reports whether the pair holds inventory for the token: a
// filled mirror order whose signal was a buy of that token.
func (s *OrderStore) HasFilledBuy(ctx context.Context, pairID int64, tokenID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM mirror_orders m
			JOIN trade_signals t ON t.id = m.trade_signal_id
			WHERE m.pair_id = $1 AND m.status = 'filled'
			  AND t.side = 'buy' AND t.token_id = $2)`,
		pairID, tokenID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: has filled buy (%d,%s): %w", pairID, tokenID, err)
	}
	return exists, nil
}

var _ domain.MirrorOrderStore = (*OrderStore)(nil)
