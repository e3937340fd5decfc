package domain

import (
	"context"
	"time"
)

// LockManager hands out single-instance locks. Exactly one watcher per chain
// and one worker per deployment may run; the loops acquire a lock before
// starting and hold it for their lifetime.
type LockManager interface {
	// Acquire obtains the lock for key with the given TTL and returns an
	// unlock function, or ErrLockHeld when another party owns it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// MarketCache is a short-TTL cache of venue market metadata, indexed both by
// market id and by token id. The policy filter reads through it to avoid
// hitting the metadata API once per candidate.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, id string) (Market, error)
	GetByToken(ctx context.Context, tokenID string) (Market, error)
	Invalidate(ctx context.Context, id string) error
}

// PriceCache holds the latest last-trade price per asset, fed by the market
// data feed. Prices are advisory and may be stale; ErrNotFound when an asset
// has never printed.
type PriceCache interface {
	SetPrice(ctx context.Context, assetID string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, assetID string) (float64, time.Time, error)
}
