package domain

import "time"

// OrderStatus is the state of a mirror order.
type OrderStatus string

const (
	OrderStatusQueued   OrderStatus = "queued"
	OrderStatusSent     OrderStatus = "sent"
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusFailed   OrderStatus = "failed"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusBlocked  OrderStatus = "blocked"
)

// Well-known blocked/failure reason codes. Reasons produced with a variable
// suffix (threshold value, venue message, policy tag) use the *Prefix consts.
const (
	BlockReasonNoPriorBuy        = "no_prior_buy_inventory_for_sell"
	BlockReasonBalanceCooldown   = "balance_failure_cooldown"
	BlockReasonBudgetOneShare    = "insufficient_budget_for_one_share"
	BlockReasonBudgetMarketMin   = "insufficient_budget_for_market_min_order"
	BlockReasonReprice           = "reprice_after_timeout"
	BlockReasonRiskDenied        = "risk_denied"
	BlockReasonMarketMinSize     = "market_min_order_size"
	BlockReasonPolicyPrefix      = "market_policy_filtered:"
	BlockReasonMinNotionalPrefix = "source_notional_below_threshold:"

	FailReasonRPCError        = "rpc_error"
	FailReasonInsufficientBal = "insufficient_balance"
	FailReasonSlippage        = "slippage_exceeded"
	FailReasonInvalidAmounts  = "invalid_amounts_after_retry"
	FailReasonCancel          = "cancel_failed_or_not_supported"
	FailReasonRejectedPrefix  = "exchange_rejected:"
)

// MirrorOrder is the follower-side order derived from one TradeSignal for one
// pair. (pair_id, trade_signal_id) is unique, so re-running the pairing step
// over the same signals is idempotent.
type MirrorOrder struct {
	ID            int64
	PairID        int64
	TradeSignalID int64

	RequestedNotionalUSDC float64
	AdjustedNotionalUSDC  float64

	Status        OrderStatus
	BlockedReason string
	ExecutorRef   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// orderTransitions encodes the legal state machine:
//
//	create -> queued | blocked
//	queued -> sent
//	sent   -> filled | failed | canceled | queued (reprice, buy only, once)
//	sent   -> blocked (venue minimum-size rejection discovered at placement)
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusQueued: {OrderStatusSent, OrderStatusFailed, OrderStatusBlocked},
	OrderStatusSent:   {OrderStatusFilled, OrderStatusFailed, OrderStatusCanceled, OrderStatusQueued, OrderStatusBlocked},
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
// Terminal states have no outgoing edges.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, t := range orderTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status has no outgoing transitions.
func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// WasRepriced reports whether the order already went through the one-shot
// timeout reprice cycle.
func (o MirrorOrder) WasRepriced() bool {
	return o.BlockedReason == BlockReasonReprice
}
