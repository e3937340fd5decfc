package risk

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mirrorbot/mirrorbot/internal/config"
	"github.com/mirrorbot/mirrorbot/internal/domain"
)

type fakeSink struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeSink) Send(_ context.Context, event, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeSink) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e == event {
			n++
		}
	}
	return n
}

// testRiskConfig starts from the defaults: max order 250, daily loss 5% of
// 1000 equity, 5 losses, 3 exec failures, 15 minute alert cooldown.
func testRiskConfig() config.RiskConfig {
	return config.Defaults().Risk
}

func newTestGuard(cfg config.RiskConfig, sink *fakeSink) *Guard {
	return New(cfg, sink, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func fptr(v float64) *float64 { return &v }

func TestCheckOrderApprovesByDefault(t *testing.T) {
	t.Parallel()

	g := newTestGuard(testRiskConfig(), nil)

	ok, reason := g.CheckOrder(25)
	if !ok || reason != "risk_ok" {
		t.Fatalf("CheckOrder = %t %q", ok, reason)
	}
}

func TestCheckOrderSizeLimits(t *testing.T) {
	t.Parallel()

	g := newTestGuard(testRiskConfig(), nil)

	if ok, reason := g.CheckOrder(0); ok || reason != DenyInvalidOrderSize {
		t.Errorf("zero order: %t %q", ok, reason)
	}
	if ok, reason := g.CheckOrder(-5); ok || reason != DenyInvalidOrderSize {
		t.Errorf("negative order: %t %q", ok, reason)
	}
	if ok, reason := g.CheckOrder(250.01); ok || reason != DenyOrderAboveMax {
		t.Errorf("oversized order: %t %q", ok, reason)
	}
	if ok, _ := g.CheckOrder(250); !ok {
		t.Error("order at the limit must pass")
	}
}

func TestConsecutiveLossesTripAndReset(t *testing.T) {
	t.Parallel()

	cfg := testRiskConfig()
	cfg.MaxConsecutiveLosses = 3
	g := newTestGuard(cfg, nil)

	g.RecordFill(-1)
	g.RecordFill(-1)
	if ok, _ := g.CheckOrder(10); !ok {
		t.Fatal("two losses must not trip a limit of three")
	}

	g.RecordFill(-1)
	if ok, reason := g.CheckOrder(10); ok || reason != DenyConsecutiveLosses {
		t.Fatalf("after third loss: %t %q", ok, reason)
	}

	// A winning fill breaks the streak but the accumulated pnl stays.
	g.RecordFill(0.5)
	if ok, reason := g.CheckOrder(10); !ok {
		t.Fatalf("after winning fill: %q", reason)
	}
}

func TestDailyLossLimit(t *testing.T) {
	t.Parallel()

	cfg := testRiskConfig()
	cfg.MaxConsecutiveLosses = 100
	g := newTestGuard(cfg, nil)

	g.RecordFill(-40)
	if ok, _ := g.CheckOrder(10); !ok {
		t.Fatal("4% drawdown must pass a 5% limit")
	}

	g.RecordFill(-20)
	if ok, reason := g.CheckOrder(10); ok || reason != DenyDailyLoss {
		t.Fatalf("6%% drawdown: %t %q", ok, reason)
	}
}

func TestDailyLossIgnoredWhileProfitable(t *testing.T) {
	t.Parallel()

	cfg := testRiskConfig()
	cfg.MaxConsecutiveLosses = 100
	g := newTestGuard(cfg, nil)

	// Net pnl stays positive, so the drawdown check never engages even
	// though individual fills lost money.
	g.RecordFill(100)
	g.RecordFill(-60)
	if ok, reason := g.CheckOrder(10); !ok {
		t.Fatalf("profitable day denied: %q", reason)
	}
}

func TestCheckOrderInvalidEquity(t *testing.T) {
	t.Parallel()

	cfg := testRiskConfig()
	cfg.DailyStartEquityUSDC = 0
	g := newTestGuard(cfg, nil)

	if ok, reason := g.CheckOrder(10); ok || reason != DenyInvalidEquity {
		t.Fatalf("zero equity: %t %q", ok, reason)
	}
}

func TestKillSwitchAfterConsecutiveExecFailures(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	g := newTestGuard(testRiskConfig(), sink)
	ctx := context.Background()

	g.RecordExecFailure(ctx)
	g.RecordExecFailure(ctx)
	if ok, _ := g.CheckOrder(10); !ok {
		t.Fatal("two failures must not trip a limit of three")
	}
	if n := sink.count(domain.EventKillSwitch); n != 0 {
		t.Fatalf("kill_switch alerts before the limit = %d", n)
	}

	g.RecordExecFailure(ctx)
	if ok, reason := g.CheckOrder(10); ok || reason != DenyKillSwitch {
		t.Fatalf("after third failure: %t %q", ok, reason)
	}

	// Further failures do not re-alert; the latch fires exactly once.
	g.RecordExecFailure(ctx)
	g.RecordExecFailure(ctx)
	if n := sink.count(domain.EventKillSwitch); n != 1 {
		t.Fatalf("kill_switch alerts = %d, want 1", n)
	}
}

func TestRecordFillClearsExecFailureStreak(t *testing.T) {
	t.Parallel()

	g := newTestGuard(testRiskConfig(), &fakeSink{})
	ctx := context.Background()

	g.RecordExecFailure(ctx)
	g.RecordExecFailure(ctx)
	g.RecordFill(0.1)
	g.RecordExecFailure(ctx)

	if ok, reason := g.CheckOrder(10); !ok {
		t.Fatalf("streak should have reset: %q", reason)
	}
}

func TestMaybeAlertBlockedCooldown(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	g := newTestGuard(testRiskConfig(), sink)

	clock := time.Unix(1_700_000_000, 0)
	g.now = func() time.Time { return clock }
	ctx := context.Background()

	g.MaybeAlertBlocked(ctx, "insufficient_budget_for_one_share", "budget exhausted")
	clock = clock.Add(5 * time.Minute)
	g.MaybeAlertBlocked(ctx, "insufficient_budget_for_one_share", "budget exhausted")
	if n := sink.count(domain.EventRiskAlert); n != 1 {
		t.Fatalf("repeat alert within cooldown sent %d times", n)
	}

	// A different reason alerts immediately and rearms the window.
	g.MaybeAlertBlocked(ctx, "risk_denied", "kill switch")
	if n := sink.count(domain.EventRiskAlert); n != 2 {
		t.Fatalf("different reason suppressed, alerts = %d", n)
	}

	// Past the window the original reason alerts again.
	clock = clock.Add(16 * time.Minute)
	g.MaybeAlertBlocked(ctx, "risk_denied", "kill switch")
	if n := sink.count(domain.EventRiskAlert); n != 3 {
		t.Fatalf("expired cooldown suppressed, alerts = %d", n)
	}
}

func TestPauseAndResume(t *testing.T) {
	t.Parallel()

	g := newTestGuard(testRiskConfig(), &fakeSink{})
	ctx := context.Background()

	g.Pause()
	if ok, reason := g.CheckOrder(10); ok || reason != DenyManualPause {
		t.Fatalf("while paused: %t %q", ok, reason)
	}

	// Resume clears every latch, including a tripped kill switch.
	g.RecordExecFailure(ctx)
	g.RecordExecFailure(ctx)
	g.RecordExecFailure(ctx)
	g.Resume()

	if ok, reason := g.CheckOrder(10); !ok {
		t.Fatalf("after resume: %q", reason)
	}
}

func TestHydrateRebuildsState(t *testing.T) {
	t.Parallel()

	cfg := testRiskConfig()
	cfg.MaxConsecutiveLosses = 2
	g := newTestGuard(cfg, nil)

	g.Hydrate([]domain.Execution{
		{Status: domain.ExecutionFilled, PnLUSDC: fptr(2)},
		{Status: domain.ExecutionFilled, PnLUSDC: fptr(-0.5)},
		{Status: domain.ExecutionFilled},
		{Status: domain.ExecutionFilled, PnLUSDC: fptr(-0.5)},
	})

	// The nil-pnl fill is skipped, so the two losses are consecutive.
	if ok, reason := g.CheckOrder(10); ok || reason != DenyConsecutiveLosses {
		t.Fatalf("after hydration: %t %q", ok, reason)
	}

	if s := g.Summary(); !strings.Contains(s, "losses=2") {
		t.Errorf("summary = %q", s)
	}
}

func TestSummaryFormat(t *testing.T) {
	t.Parallel()

	g := newTestGuard(testRiskConfig(), nil)
	g.RecordFill(-12.5)

	s := g.Summary()
	for _, want := range []string{"kill_switch=false", "pnl=-12.50", "daily_loss=1.25%"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary %q missing %q", s, want)
		}
	}
}
