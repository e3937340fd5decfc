// Package policy decides, per unmirrored (pair, signal) candidate, whether a
// queued mirror order is created or a blocked record written instead.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/mirrorbot/mirrorbot/internal/config"
	"github.com/mirrorbot/mirrorbot/internal/domain"
)

// MarketLookup resolves venue metadata for a token, typically a cache backed
// by the metadata API.
type MarketLookup interface {
	MarketByToken(ctx context.Context, tokenID string) (domain.Market, error)
}

// InventoryChecker reports whether a pair holds inventory for a token.
type InventoryChecker interface {
	HasFilledBuy(ctx context.Context, pairID int64, tokenID string) (bool, error)
}

// BalanceFailureChecker reports recent balance/allowance-class failures.
type BalanceFailureChecker interface {
	HasRecentBalanceFailure(ctx context.Context, pairID int64, since time.Time) (bool, error)
}

// Decision is the outcome of evaluating one candidate.
type Decision struct {
	Status           domain.OrderStatus // queued or blocked
	Reason           string
	AdjustedNotional float64

	// Alert is set for blocked decisions worth an operator alert. Policy
	// filters block silently; only budget exhaustion alerts.
	Alert bool
}

// Engine applies the pre-execution filters in a fixed order; the first
// matching filter blocks the candidate.
type Engine struct {
	cfg       config.PolicyConfig
	markets   MarketLookup
	inventory InventoryChecker
	failures  BalanceFailureChecker
	filter    MarketFilter

	log *slog.Logger
	now func() time.Time
}

// NewEngine creates a policy engine with the default market filter.
func NewEngine(
	cfg config.PolicyConfig,
	markets MarketLookup,
	inventory InventoryChecker,
	failures BalanceFailureChecker,
	log *slog.Logger,
) *Engine {
	return &Engine{
		cfg:       cfg,
		markets:   markets,
		inventory: inventory,
		failures:  failures,
		filter:    DefaultMarketFilter,
		log:       log.With("component", "policy"),
		now:       time.Now,
	}
}

// SetMarketFilter swaps the restricted-category heuristic.
func (e *Engine) SetMarketFilter(f MarketFilter) {
	e.filter = f
}

// Evaluate runs the filter chain for one candidate. Store errors abort the
// evaluation so the candidate is retried next tick.
func (e *Engine) Evaluate(ctx context.Context, c domain.Candidate) (Decision, error) {
	blocked := func(reason string, alert bool) Decision {
		return Decision{Status: domain.OrderStatusBlocked, Reason: reason, Alert: alert}
	}

	// Venue metadata is advisory: when the lookup fails the keyword filter
	// is skipped and the configured venue minimum is used as-is.
	market, marketKnown := e.lookupMarket(ctx, c.Signal.TokenID)

	if e.cfg.MarketFilterEnabled && marketKnown {
		if tag := e.filter(market); tag != "" {
			return blocked(domain.BlockReasonPolicyPrefix+tag, false), nil
		}
	}

	if c.Signal.SourceNotionalUSDC < e.cfg.MinSourceNotionalUSDC {
		reason := fmt.Sprintf("%s%.2f", domain.BlockReasonMinNotionalPrefix, e.cfg.MinSourceNotionalUSDC)
		return blocked(reason, false), nil
	}

	since := e.now().Add(-e.cfg.BalanceFailCooldown.Duration)
	cooling, err := e.failures.HasRecentBalanceFailure(ctx, c.Pair.ID, since)
	if err != nil {
		return Decision{}, fmt.Errorf("policy: balance cooldown check: %w", err)
	}
	if cooling {
		return blocked(domain.BlockReasonBalanceCooldown, false), nil
	}

	if c.Signal.Side == domain.SideSell {
		held, err := e.inventory.HasFilledBuy(ctx, c.Pair.ID, c.Signal.TokenID)
		if err != nil {
			return Decision{}, fmt.Errorf("policy: inventory check: %w", err)
		}
		if !held {
			return blocked(domain.BlockReasonNoPriorBuy, false), nil
		}
	}

	marketMin := e.cfg.MarketMinBuyUSDC
	if marketKnown {
		marketMin = math.Max(marketMin, market.MinOrderSizeUSDC)
	}

	size, reason := Size(SizeInput{
		SourceNotional:  c.Signal.SourceNotionalUSDC,
		SourcePortfolio: c.SourcePortfolioUSDC,
		Sizing:          c.Pair.Sizing,
		MinOrderUSDC:    c.Pair.MinOrderUSDC,
		MaxOrderUSDC:    c.Pair.MaxOrderUSDC,
		BudgetUSDC:      c.Follower.BudgetUSDC,
		SourcePrice:     c.Signal.SourcePrice,
		MarketMinUSDC:   marketMin,
	})
	if size <= 0 {
		return blocked(reason, true), nil
	}

	return Decision{Status: domain.OrderStatusQueued, AdjustedNotional: size}, nil
}

func (e *Engine) lookupMarket(ctx context.Context, tokenID string) (domain.Market, bool) {
	if e.markets == nil {
		return domain.Market{}, false
	}
	market, err := e.markets.MarketByToken(ctx, tokenID)
	if err != nil {
		e.log.Debug("market lookup failed, skipping metadata filters",
			"token_id", tokenID,
			"error", err,
		)
		return domain.Market{}, false
	}
	return market, true
}
