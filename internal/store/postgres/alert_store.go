package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mirrorbot/mirrorbot/internal/domain"
)

// AlertStore implements domain.AlertStore using PostgreSQL.
type AlertStore struct {
	pool *pgxpool.Pool
}

// NewAlertStore creates a new AlertStore backed by the given pool.
func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

// Insert appends one alert ledger row.
func (s *AlertStore) Insert(ctx context.Context, a *domain.Alert) error {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO alerts (id, event_type, payload, status, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.EventType, a.Payload, string(a.Status), createdAt)
	if err != nil {
		return fmt.Errorf("postgres: insert alert %s: %w", a.ID, err)
	}
	a.CreatedAt = createdAt
	return nil
}

// ListRecent returns ledger rows, newest first.
func (s *AlertStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Alert, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, event_type, payload, status, created_at FROM alerts
		 ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		var a domain.Alert
		var status string
		if err := rows.Scan(&a.ID, &a.EventType, &a.Payload, &status, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan alert: %w", err)
		}
		a.Status = domain.AlertStatus(status)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

var _ domain.AlertStore = (*AlertStore)(nil)
