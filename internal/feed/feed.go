// Package feed consumes last-trade prints from the CLOB market data
// WebSocket and records the latest price per asset. The feed is advisory:
// the pipeline never blocks on it, and under backpressure the oldest
// buffered ticks are dropped in favor of fresh ones.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mirrorbot/mirrorbot/internal/config"
	"github.com/mirrorbot/mirrorbot/internal/domain"
	"github.com/mirrorbot/mirrorbot/internal/platform/polymarket"
)

const defaultBuffer = 256

// TickSource is the subset of the market data client the feed drives.
type TickSource interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, assetIDs []string) error
	OnPriceTick(h polymarket.PriceTickHandler)
	Close() error
}

// PriceSink receives the latest print per asset.
type PriceSink interface {
	SetPrice(ctx context.Context, assetID string, price float64, ts time.Time) error
}

// Feed bridges the WebSocket read loop and the price sink through a bounded
// channel. The read loop must never block, so when the buffer fills the
// oldest tick is evicted to make room.
type Feed struct {
	cfg    config.FeedConfig
	source TickSource
	sink   PriceSink
	log    *slog.Logger

	ticks   chan domain.PriceTick
	dropped atomic.Int64
}

// New creates a Feed over the given source and sink.
func New(cfg config.FeedConfig, source TickSource, sink PriceSink, log *slog.Logger) *Feed {
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Feed{
		cfg:    cfg,
		source: source,
		sink:   sink,
		log:    log.With("component", "feed"),
		ticks:  make(chan domain.PriceTick, buffer),
	}
}

// Run connects, subscribes to the configured assets, and pumps ticks into
// the sink until ctx is canceled. With no assets configured it returns
// immediately; reconnection is the source's concern.
func (f *Feed) Run(ctx context.Context) error {
	if len(f.cfg.Assets) == 0 {
		f.log.Info("no feed assets configured, feed idle")
		return nil
	}

	f.source.OnPriceTick(f.offer)

	if err := f.source.Connect(ctx); err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}
	defer f.source.Close()

	if err := f.source.Subscribe(ctx, f.cfg.Assets); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	f.log.Info("feed subscribed", "assets", len(f.cfg.Assets), "buffer", cap(f.ticks))

	for {
		select {
		case <-ctx.Done():
			if n := f.dropped.Load(); n > 0 {
				f.log.Warn("feed stopping with dropped ticks", "dropped", n)
			}
			return ctx.Err()
		case t := <-f.ticks:
			if err := f.sink.SetPrice(ctx, t.AssetID, t.Price, t.At); err != nil {
				f.log.Warn("price sink write failed", "asset_id", t.AssetID, "error", err.Error())
			}
		}
	}
}

// Dropped reports how many ticks were evicted under backpressure.
func (f *Feed) Dropped() int64 {
	return f.dropped.Load()
}

// offer enqueues a tick without blocking, evicting the oldest buffered tick
// when the channel is full. Runs on the WebSocket read loop.
func (f *Feed) offer(t domain.PriceTick) {
	for {
		select {
		case f.ticks <- t:
			return
		default:
		}
		select {
		case <-f.ticks:
			f.dropped.Add(1)
		default:
		}
	}
}
