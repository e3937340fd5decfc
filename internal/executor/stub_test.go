package executor

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mirrorbot/mirrorbot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fptr(v float64) *float64 { return &v }

func stubRequest(orderID int64) Request {
	return Request{
		Order: domain.MirrorOrder{
			ID:                   orderID,
			Status:               domain.OrderStatusQueued,
			AdjustedNotionalUSDC: 25,
		},
		Signal: domain.TradeSignal{
			Side:        domain.SideBuy,
			TokenID:     "777",
			SourcePrice: fptr(0.52),
		},
		Pair:     domain.Pair{ID: 1, MaxSlippageBps: 300},
		Follower: domain.Wallet{ID: 2, BudgetUSDC: 200},
	}
}

func TestStubFills(t *testing.T) {
	t.Parallel()

	s := NewStub(discardLogger())

	// id=1: slippage 100 + 37 = 137 bps, inside the 300 bps limit.
	res, err := s.Place(context.Background(), stubRequest(1))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if res.Status != domain.OrderStatusFilled {
		t.Fatalf("status = %s (%s)", res.Status, res.Reason)
	}
	if !strings.HasPrefix(res.ExecutorRef, "stub-") {
		t.Errorf("executor_ref = %q", res.ExecutorRef)
	}
	if res.ExecutedNotionalUSDC == nil || *res.ExecutedNotionalUSDC != 25 {
		t.Errorf("executed notional = %v", res.ExecutedNotionalUSDC)
	}
	// Buy slips upward: 0.52 * 1.0137 rounded to 4 decimals.
	if res.ExecutedPrice == nil || *res.ExecutedPrice != 0.5271 {
		t.Errorf("executed price = %v", res.ExecutedPrice)
	}
	if res.PnLUSDC == nil || *res.PnLUSDC < 0 {
		t.Errorf("pnl = %v, stub pnl is floored at zero", res.PnLUSDC)
	}
}

func TestStubDeterministicFailures(t *testing.T) {
	t.Parallel()

	s := NewStub(discardLogger())
	ctx := context.Background()

	// Multiples of 11 simulate RPC failures.
	res, err := s.Place(ctx, stubRequest(11))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if res.Status != domain.OrderStatusFailed || res.Reason != domain.FailReasonRPCError {
		t.Errorf("id=11: %s %q", res.Status, res.Reason)
	}

	// id=6: slippage 100 + (222 % 401) = 322 bps, over the 300 bps limit.
	res, err = s.Place(ctx, stubRequest(6))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if res.Status != domain.OrderStatusFailed || res.Reason != domain.FailReasonSlippage {
		t.Errorf("id=6: %s %q", res.Status, res.Reason)
	}
}

func TestStubInsufficientBalance(t *testing.T) {
	t.Parallel()

	s := NewStub(discardLogger())

	req := stubRequest(1)
	req.Follower.BudgetUSDC = 10

	res, err := s.Place(context.Background(), req)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if res.Status != domain.OrderStatusFailed || res.Reason != domain.FailReasonInsufficientBal {
		t.Errorf("decision = %s %q", res.Status, res.Reason)
	}
	if !domain.IsBalanceFailure(res.Reason) {
		t.Error("stub balance failure must arm the pair cooldown")
	}
}

func TestStubSlippageWinsOverBalance(t *testing.T) {
	t.Parallel()

	s := NewStub(discardLogger())

	// id=6 trips the slippage check (322 bps over 300) and the budget at
	// once; slippage is checked first, so the balance cooldown never arms.
	req := stubRequest(6)
	req.Follower.BudgetUSDC = 10

	res, err := s.Place(context.Background(), req)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if res.Status != domain.OrderStatusFailed || res.Reason != domain.FailReasonSlippage {
		t.Errorf("decision = %s %q, want slippage failure", res.Status, res.Reason)
	}
	if domain.IsBalanceFailure(res.Reason) {
		t.Error("slippage failure must not arm the pair cooldown")
	}
}

func TestStubReplaysIdentically(t *testing.T) {
	t.Parallel()

	s := NewStub(discardLogger())
	ctx := context.Background()

	first, err := s.Place(ctx, stubRequest(7))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	second, err := s.Place(ctx, stubRequest(7))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if first.Status != second.Status {
		t.Errorf("statuses diverge: %s vs %s", first.Status, second.Status)
	}
	if first.Status == domain.OrderStatusFilled &&
		*first.ExecutedPrice != *second.ExecutedPrice {
		t.Errorf("prices diverge: %f vs %f", *first.ExecutedPrice, *second.ExecutedPrice)
	}
}

func TestStubCancel(t *testing.T) {
	t.Parallel()

	s := NewStub(discardLogger())
	ctx := context.Background()

	if err := s.Cancel(ctx, domain.MirrorOrder{ID: 1}); err == nil {
		t.Error("cancel without executor ref must fail")
	}
	if err := s.Cancel(ctx, domain.MirrorOrder{ID: 1, ExecutorRef: "stub-x"}); err != nil {
		t.Errorf("cancel with ref: %v", err)
	}
}
