package policy

import (
	"math"

	"github.com/mirrorbot/mirrorbot/internal/domain"
)

// SizeInput carries everything the sizer needs for one candidate.
type SizeInput struct {
	SourceNotional  float64
	SourcePortfolio *float64 // nil or zero disables proportional sizing
	Sizing          domain.SizingMode

	MinOrderUSDC   float64
	MaxOrderUSDC   *float64 // nil means uncapped
	BudgetUSDC     float64
	SourcePrice    *float64
	MarketMinUSDC  float64 // venue minimum order size, >= 1.00
}

// Size returns the follower notional for a candidate. A zero return means
// the budget cannot support any order; the accompanying reason says whether
// the venue minimum or the one-share fallback was unaffordable.
//
// The result always respects max(pair_min, venue_min) or is zero, and is
// never negative.
func Size(in SizeInput) (float64, string) {
	requested := in.SourceNotional
	if in.Sizing == domain.SizingProportional && in.SourcePortfolio != nil && *in.SourcePortfolio > 0 {
		requested = in.BudgetUSDC * (in.SourceNotional / *in.SourcePortfolio)
	}

	floor := math.Max(in.MinOrderUSDC, in.MarketMinUSDC)
	adjusted := math.Max(requested, floor)
	if in.MaxOrderUSDC != nil {
		adjusted = math.Min(adjusted, *in.MaxOrderUSDC)
	}

	if in.BudgetUSDC >= adjusted {
		return adjusted, ""
	}

	// Budget is short of the adjusted order; try to afford one share at the
	// source's own price.
	if in.SourcePrice != nil && *in.SourcePrice > 0 && in.BudgetUSDC >= *in.SourcePrice {
		return *in.SourcePrice, ""
	}

	if in.BudgetUSDC < in.MarketMinUSDC {
		return 0, domain.BlockReasonBudgetMarketMin
	}
	return 0, domain.BlockReasonBudgetOneShare
}
