// Package risk is the process-local circuit breaker consulted before every
// executor call. Its counters live in memory and are rebuilt from recent
// fills at startup.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mirrorbot/mirrorbot/internal/config"
	"github.com/mirrorbot/mirrorbot/internal/domain"
)

// AlertSink posts operator alerts. Implemented by the notifier; sends must
// not block.
type AlertSink interface {
	Send(ctx context.Context, event, message string)
}

// Pre-trade deny reasons.
const (
	DenyKillSwitch        = "kill_switch_on"
	DenyManualPause       = "manual_pause"
	DenyInvalidOrderSize  = "invalid_order_size"
	DenyOrderAboveMax     = "order_above_max"
	DenyConsecutiveLosses = "max_consecutive_losses_reached"
	DenyExecFailures      = "max_consecutive_exec_failures_reached"
	DenyInvalidEquity     = "invalid_daily_start_equity"
	DenyDailyLoss         = "max_daily_loss_reached"

	reasonOK = "risk_ok"
)

// Guard holds the mutable risk state for one worker process.
type Guard struct {
	cfg    config.RiskConfig
	alerts AlertSink
	log    *slog.Logger
	now    func() time.Time

	mu                      sync.Mutex
	killSwitch              bool
	manualPause             bool
	runningPnLUSDC          float64
	consecutiveLosses       int
	consecutiveExecFailures int

	lastBlockAlertReason string
	lastBlockAlertAt     time.Time
}

// New creates a Guard. alerts may be nil, in which case alerts are dropped.
func New(cfg config.RiskConfig, alerts AlertSink, log *slog.Logger) *Guard {
	return &Guard{
		cfg:    cfg,
		alerts: alerts,
		log:    log.With("component", "risk"),
		now:    time.Now,
	}
}

// Hydrate replays recent fills into the pnl and loss counters. Called once
// at startup before the worker loop begins.
func (g *Guard) Hydrate(fills []domain.Execution) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, f := range fills {
		if f.PnLUSDC == nil {
			continue
		}
		g.applyFill(*f.PnLUSDC)
	}

	g.log.Info("risk state hydrated",
		"fills", len(fills),
		"running_pnl_usdc", g.runningPnLUSDC,
		"consecutive_losses", g.consecutiveLosses,
	)
}

// CheckOrder runs the pre-trade checks for an order of the given notional.
// The first failing check wins; the reason is a stable code for alerts.
func (g *Guard) CheckOrder(orderUSDC float64) (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case g.killSwitch:
		return false, DenyKillSwitch
	case g.manualPause:
		return false, DenyManualPause
	case orderUSDC <= 0:
		return false, DenyInvalidOrderSize
	case orderUSDC > g.cfg.MaxOrderUSDC:
		return false, DenyOrderAboveMax
	case g.consecutiveLosses >= g.cfg.MaxConsecutiveLosses:
		return false, DenyConsecutiveLosses
	case g.consecutiveExecFailures >= g.cfg.MaxConsecutiveExecFailures:
		return false, DenyExecFailures
	case g.cfg.DailyStartEquityUSDC <= 0:
		return false, DenyInvalidEquity
	case g.dailyLossPct() >= g.cfg.MaxDailyLossPct:
		return false, DenyDailyLoss
	}
	return true, reasonOK
}

// RecordFill folds one fill's pnl into the running state. A negative pnl
// extends the loss streak; any fill clears the executor failure streak.
func (g *Guard) RecordFill(pnlUSDC float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.applyFill(pnlUSDC)
	g.consecutiveExecFailures = 0
}

// applyFill updates pnl and the loss streak. Caller must hold g.mu.
func (g *Guard) applyFill(pnlUSDC float64) {
	g.runningPnLUSDC += pnlUSDC
	if pnlUSDC < 0 {
		g.consecutiveLosses++
	} else {
		g.consecutiveLosses = 0
	}
}

// RecordExecFailure counts one executor failure. Reaching the configured
// limit latches the kill switch and emits a single kill_switch alert; the
// latch only clears via Resume.
func (g *Guard) RecordExecFailure(ctx context.Context) {
	g.mu.Lock()
	g.consecutiveExecFailures++
	trip := !g.killSwitch && g.consecutiveExecFailures >= g.cfg.MaxConsecutiveExecFailures
	if trip {
		g.killSwitch = true
	}
	failures := g.consecutiveExecFailures
	g.mu.Unlock()

	if trip {
		g.log.Error("kill switch latched", "consecutive_exec_failures", failures)
		g.send(ctx, domain.EventKillSwitch,
			fmt.Sprintf("kill_switch_on after %d consecutive executor failures", failures))
	}
}

// MaybeAlertBlocked sends a risk alert for a blocked order unless the same
// reason already alerted within the cooldown window. A different reason
// always alerts and rearms the window.
func (g *Guard) MaybeAlertBlocked(ctx context.Context, reason, message string) {
	g.mu.Lock()
	sameReason := reason == g.lastBlockAlertReason
	inCooldown := sameReason && g.now().Sub(g.lastBlockAlertAt) < g.cfg.BlockAlertCooldown.Duration
	if !inCooldown {
		g.lastBlockAlertReason = reason
		g.lastBlockAlertAt = g.now()
	}
	g.mu.Unlock()

	if inCooldown {
		g.log.Warn("blocked alert suppressed by cooldown", "reason", reason)
		return
	}
	g.send(ctx, domain.EventRiskAlert, message)
}

// Pause stops pre-trade approval until Resume.
func (g *Guard) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.manualPause = true
	g.log.Warn("trading manually paused")
}

// Resume clears the pause, the kill switch, the streak counters, and the
// blocked-alert cooldown.
func (g *Guard) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.manualPause = false
	g.killSwitch = false
	g.consecutiveLosses = 0
	g.consecutiveExecFailures = 0
	g.lastBlockAlertReason = ""
	g.lastBlockAlertAt = time.Time{}
	g.log.Info("trading resumed, risk counters cleared")
}

// Summary renders the current state for operators.
func (g *Guard) Summary() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fmt.Sprintf(
		"kill_switch=%t pause=%t pnl=%.2f daily_loss=%.2f%% losses=%d exec_failures=%d",
		g.killSwitch, g.manualPause, g.runningPnLUSDC, g.dailyLossPct(),
		g.consecutiveLosses, g.consecutiveExecFailures,
	)
}

// dailyLossPct returns the loss as a share of starting equity, zero while
// pnl is non-negative. Caller must hold g.mu.
func (g *Guard) dailyLossPct() float64 {
	if g.runningPnLUSDC >= 0 || g.cfg.DailyStartEquityUSDC <= 0 {
		return 0
	}
	return -g.runningPnLUSDC / g.cfg.DailyStartEquityUSDC * 100
}

func (g *Guard) send(ctx context.Context, event, message string) {
	if g.alerts == nil {
		return
	}
	g.alerts.Send(ctx, event, message)
}
