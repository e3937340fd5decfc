package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mirrorbot/mirrorbot/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore backed by the given pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

const executionSelectCols = `id, mirror_order_id, executed_side, executed_price,
	executed_notional_usdc, chain_tx_hash, pnl_usdc, status, fail_reason, executed_at`

func scanExecutionFromRow(scanner interface{ Scan(dest ...any) error }) (domain.Execution, error) {
	var e domain.Execution
	var side, status string

	err := scanner.Scan(
		&e.ID, &e.MirrorOrderID, &side, &e.ExecutedPrice,
		&e.ExecutedNotionalUSDC, &e.ChainTxHash, &e.PnLUSDC, &status, &e.FailReason, &e.ExecutedAt,
	)
	if err != nil {
		return domain.Execution{}, err
	}

	e.ExecutedSide = domain.Side(side)
	e.Status = domain.ExecutionStatus(status)
	return e, nil
}

func scanExecutionRows(rows pgx.Rows) ([]domain.Execution, error) {
	var executions []domain.Execution
	for rows.Next() {
		e, err := scanExecutionFromRow(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, e)
	}
	return executions, rows.Err()
}

// Insert appends an execution record for one executor attempt.
func (s *ExecutionStore) Insert(ctx context.Context, e *domain.Execution) error {
	const query = `
		INSERT INTO executions (mirror_order_id, executed_side, executed_price,
			executed_notional_usdc, chain_tx_hash, pnl_usdc, status, fail_reason, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	executedAt := e.ExecutedAt
	if executedAt.IsZero() {
		executedAt = time.Now().UTC()
	}

	err := s.pool.QueryRow(ctx, query,
		e.MirrorOrderID, string(e.ExecutedSide), e.ExecutedPrice,
		e.ExecutedNotionalUSDC, e.ChainTxHash, e.PnLUSDC, string(e.Status), e.FailReason, executedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("postgres: insert execution for order %d: %w", e.MirrorOrderID, err)
	}
	e.ExecutedAt = executedAt
	return nil
}

// ListByOrder returns all execution attempts for a mirror order, oldest first.
func (s *ExecutionStore) ListByOrder(ctx context.Context, mirrorOrderID int64) ([]domain.Execution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+executionSelectCols+` FROM executions
		 WHERE mirror_order_id = $1 ORDER BY id ASC`, mirrorOrderID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions for order %d: %w", mirrorOrderID, err)
	}
	defer rows.Close()

	executions, err := scanExecutionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan executions for order %d: %w", mirrorOrderID, err)
	}
	return executions, nil
}

// HasRecentBalanceFailure reports whether the pair saw a balance/allowance
// class failure since the given time. It matches both the stub executor's
// reason code and the venue's rejection wording.
func (s *ExecutionStore) HasRecentBalanceFailure(ctx context.Context, pairID int64, since time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM executions e
			JOIN mirror_orders m ON m.id = e.mirror_order_id
			WHERE m.pair_id = $1
			  AND e.status = 'failed'
			  AND e.executed_at >= $2
			  AND (e.fail_reason ILIKE '%insufficient_balance%'
			       OR e.fail_reason ILIKE '%not enough balance%'
			       OR e.fail_reason ILIKE '%allowance%'))`,
		pairID, since,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: recent balance failure for pair %d: %w", pairID, err)
	}
	return exists, nil
}

// ListFillsSince returns filled executions since the given time, oldest
// first. The worker hydrates risk state from these at startup.
func (s *ExecutionStore) ListFillsSince(ctx context.Context, since time.Time) ([]domain.Execution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+executionSelectCols+` FROM executions
		 WHERE status = 'filled' AND executed_at >= $1 ORDER BY id ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills since %s: %w", since, err)
	}
	defer rows.Close()

	executions, err := scanExecutionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan fills: %w", err)
	}
	return executions, nil
}

// ListBefore returns executions recorded strictly before cutoff, oldest first.
func (s *ExecutionStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Execution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+executionSelectCols+` FROM executions
		 WHERE executed_at < $1 ORDER BY id ASC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions before %s: %w", cutoff, err)
	}
	defer rows.Close()

	executions, err := scanExecutionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan executions: %w", err)
	}
	return executions, nil
}

// DeleteBefore removes executions older than cutoff whose mirror order is
// terminal. Returns the number of rows deleted.
func (s *ExecutionStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM executions e
		 USING mirror_orders m
		 WHERE e.mirror_order_id = m.id
		   AND e.executed_at < $1
		   AND m.status IN ('filled', 'failed', 'canceled', 'blocked')`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete executions before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)
