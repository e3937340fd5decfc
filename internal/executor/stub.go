package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/mirrorbot/mirrorbot/internal/domain"
)

// Stub is the deterministic paper-mode adapter. Outcomes depend only on the
// order ID and the request, so the same order always replays the same way.
// Failure checks run in a fixed order, so an order tripping several records
// the first:
//
//	100 + (orderID*37 % 401) bps over
//	the pair's slippage limit         -> failed slippage_exceeded
//	notional > follower budget        -> failed insufficient_balance
//	orderID % 11 == 0                 -> failed rpc_error
//	otherwise                         -> filled at source price +/- slippage
type Stub struct {
	log *slog.Logger
}

// NewStub creates the paper-mode executor.
func NewStub(log *slog.Logger) *Stub {
	return &Stub{log: log.With("component", "executor_stub")}
}

// Name identifies the adapter in logs and alerts.
func (s *Stub) Name() string { return "stub" }

// Place simulates one GTC placement.
func (s *Stub) Place(_ context.Context, req Request) (Result, error) {
	notional := req.Order.AdjustedNotionalUSDC

	slippageBps := 100 + (req.Order.ID*37)%401
	if req.Pair.MaxSlippageBps > 0 && slippageBps > int64(req.Pair.MaxSlippageBps) {
		return failed(domain.FailReasonSlippage), nil
	}
	if notional > req.Follower.BudgetUSDC {
		return failed(domain.FailReasonInsufficientBal), nil
	}
	if req.Order.ID%11 == 0 {
		return failed(domain.FailReasonRPCError), nil
	}

	res := Result{
		Status:               domain.OrderStatusFilled,
		ExecutorRef:          "stub-" + uuid.NewString(),
		ExecutedNotionalUSDC: &notional,
	}

	slip := float64(slippageBps) / 10_000
	if req.Signal.SourcePrice != nil {
		price := *req.Signal.SourcePrice
		if req.Signal.Side == domain.SideBuy {
			price *= 1 + slip
		} else {
			price *= 1 - slip
		}
		price = math.Round(price*10_000) / 10_000
		res.ExecutedPrice = &price
	}

	// Simulated pnl: a small edge estimate minus the slippage cost,
	// floored at zero so paper fills never feed the loss streak.
	pnl := math.Max(0, notional*0.002-notional*slip)
	res.PnLUSDC = &pnl

	s.log.Info("stub fill",
		"order_id", req.Order.ID,
		"notional_usdc", notional,
		"slippage_bps", slippageBps,
	)
	return res, nil
}

// Cancel succeeds for any order that was actually placed.
func (s *Stub) Cancel(_ context.Context, order domain.MirrorOrder) error {
	if order.ExecutorRef == "" {
		return fmt.Errorf("executor: stub cancel order %d: %w: no executor ref",
			order.ID, domain.ErrInvalidInput)
	}
	s.log.Info("stub cancel", "order_id", order.ID, "executor_ref", order.ExecutorRef)
	return nil
}

var _ VenueExecutor = (*Stub)(nil)
