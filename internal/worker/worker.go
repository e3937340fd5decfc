// Package worker runs the mirroring loop: each tick hydrates new mirror
// orders from unmirrored signals, reconciles stale sent orders, and executes
// the queued ones.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mirrorbot/mirrorbot/internal/config"
	"github.com/mirrorbot/mirrorbot/internal/domain"
	"github.com/mirrorbot/mirrorbot/internal/executor"
	"github.com/mirrorbot/mirrorbot/internal/policy"
	"github.com/mirrorbot/mirrorbot/internal/risk"
)

// PolicyEvaluator decides what happens to one unmirrored candidate.
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, c domain.Candidate) (policy.Decision, error)
}

// AlertSink posts operator notifications; sends must never block the tick.
type AlertSink interface {
	Send(ctx context.Context, event, message string)
}

// Worker drives the pipeline from signal to execution. One worker per
// process; the app layer holds the distributed lock.
type Worker struct {
	cfg config.WorkerConfig

	signals domain.SignalStore
	orders  domain.MirrorOrderStore
	execs   domain.ExecutionStore
	wallets domain.WalletStore
	pairs   domain.PairStore
	runtime domain.RuntimeStore

	policy PolicyEvaluator
	guard  *risk.Guard
	alerts AlertSink

	// stub handles paper pairs; live is nil unless the deployment routes
	// real orders.
	stub executor.VenueExecutor
	live executor.VenueExecutor

	log *slog.Logger
	now func() time.Time
}

// Deps bundles the worker's collaborators.
type Deps struct {
	Signals domain.SignalStore
	Orders  domain.MirrorOrderStore
	Execs   domain.ExecutionStore
	Wallets domain.WalletStore
	Pairs   domain.PairStore
	Runtime domain.RuntimeStore

	Policy PolicyEvaluator
	Guard  *risk.Guard
	Alerts AlertSink

	Stub executor.VenueExecutor
	Live executor.VenueExecutor
}

// New creates a Worker.
func New(cfg config.WorkerConfig, d Deps, log *slog.Logger) *Worker {
	return &Worker{
		cfg:     cfg,
		signals: d.Signals,
		orders:  d.Orders,
		execs:   d.Execs,
		wallets: d.Wallets,
		pairs:   d.Pairs,
		runtime: d.Runtime,
		policy:  d.Policy,
		guard:   d.Guard,
		alerts:  d.Alerts,
		stub:    d.Stub,
		live:    d.Live,
		log:     log.With("component", "worker"),
		now:     time.Now,
	}
}

// Run hydrates risk state, then ticks until the context is canceled. The
// current tick always drains before exit.
func (w *Worker) Run(ctx context.Context) error {
	w.hydrateRisk(ctx)
	w.log.Info("worker started", "tick_interval", w.cfg.TickInterval.Duration.String())

	ticker := time.NewTicker(w.cfg.TickInterval.Duration)
	defer ticker.Stop()

	for {
		start := w.now()
		w.Tick(ctx)
		w.heartbeat(ctx, w.now().Sub(start))

		select {
		case <-ctx.Done():
			w.log.Info("worker stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one full cycle. Per-item errors are logged and turned into
// durable state; they never abort the tick.
func (w *Worker) Tick(ctx context.Context) {
	w.hydrate(ctx)
	w.reconcile(ctx)
	w.execute(ctx)
}

// hydrate turns unmirrored signals into mirror orders via the policy engine.
func (w *Worker) hydrate(ctx context.Context) {
	candidates, err := w.signals.ListCandidates(ctx, w.cfg.BatchSize)
	if err != nil {
		w.log.Error("list candidates failed", "error", err.Error())
		return
	}

	for _, c := range candidates {
		d, err := w.policy.Evaluate(ctx, c)
		if err != nil {
			w.log.Error("policy evaluation failed",
				"signal_id", c.Signal.ID, "pair_id", c.Pair.ID, "error", err.Error())
			continue
		}

		order := domain.MirrorOrder{
			PairID:                c.Pair.ID,
			TradeSignalID:         c.Signal.ID,
			RequestedNotionalUSDC: c.Signal.SourceNotionalUSDC,
			AdjustedNotionalUSDC:  d.AdjustedNotional,
			Status:                d.Status,
			BlockedReason:         d.Reason,
		}
		created, err := w.orders.Create(ctx, &order)
		if err != nil {
			w.log.Error("create mirror order failed",
				"signal_id", c.Signal.ID, "pair_id", c.Pair.ID, "error", err.Error())
			continue
		}
		if !created {
			continue
		}

		if d.Status == domain.OrderStatusBlocked {
			w.log.Info("mirror order blocked",
				"order_id", order.ID, "pair_id", c.Pair.ID, "reason", d.Reason)
			if d.Alert {
				w.guard.MaybeAlertBlocked(ctx, d.Reason, fmt.Sprintf(
					"order %d (pair %d) blocked: %s", order.ID, c.Pair.ID, d.Reason))
			}
			continue
		}
		w.log.Info("mirror order queued",
			"order_id", order.ID, "pair_id", c.Pair.ID,
			"adjusted_usdc", d.AdjustedNotional)
	}
}

// reconcile cancels sent orders that aged past the cancel window. A first
// BUY timeout re-queues the order for one repriced attempt; everything else
// ends in canceled or failed.
func (w *Worker) reconcile(ctx context.Context) {
	cutoff := w.now().Add(-w.cfg.CancelAfter.Duration)
	stale, err := w.orders.ListStaleSent(ctx, cutoff, w.cfg.BatchSize)
	if err != nil {
		w.log.Error("list stale sent orders failed", "error", err.Error())
		return
	}

	for _, o := range stale {
		sig, err := w.signals.GetByID(ctx, o.TradeSignalID)
		if err != nil {
			w.log.Error("load signal for stale order failed",
				"order_id", o.ID, "error", err.Error())
			continue
		}

		// A refless order timed out during submit; nothing rests at the
		// venue, so the cancel is a no-op.
		if o.ExecutorRef != "" {
			cancelCtx, cancel := context.WithTimeout(ctx, w.cfg.CancelTimeout.Duration)
			err = w.execFor(ctx, o.PairID).Cancel(cancelCtx, o)
			cancel()
			if err != nil {
				w.log.Warn("cancel failed", "order_id", o.ID, "error", err.Error())
				w.transition(ctx, o.ID, domain.OrderStatusFailed, domain.FailReasonCancel)
				w.alert(ctx, domain.EventOrderFailed, fmt.Sprintf(
					"order %d: stale cancel failed: %s", o.ID, err.Error()))
				continue
			}
		}

		if sig.Side == domain.SideBuy && !o.WasRepriced() {
			if err := w.orders.Requeue(ctx, o.ID, domain.BlockReasonReprice); err != nil {
				w.log.Error("requeue failed", "order_id", o.ID, "error", err.Error())
				continue
			}
			w.log.Info("stale buy requeued for reprice", "order_id", o.ID)
			continue
		}

		w.transition(ctx, o.ID, domain.OrderStatusCanceled, "")
		w.alert(ctx, domain.EventOrderCanceled, fmt.Sprintf(
			"order %d canceled after %s without a fill", o.ID, w.cfg.CancelAfter.Duration))
	}
}

// execute drives queued orders through the risk gate and the venue adapter.
// The queued -> sent write is the commit point; whatever happens after it is
// recorded durably or left for the reconciler.
func (w *Worker) execute(ctx context.Context) {
	queued, err := w.orders.ListByStatus(ctx, domain.OrderStatusQueued, w.cfg.BatchSize)
	if err != nil {
		w.log.Error("list queued orders failed", "error", err.Error())
		return
	}

	for _, o := range queued {
		req, err := w.buildRequest(ctx, o)
		if err != nil {
			w.log.Error("load order context failed", "order_id", o.ID, "error", err.Error())
			continue
		}

		if ok, reason := w.guard.CheckOrder(o.AdjustedNotionalUSDC); !ok {
			w.transition(ctx, o.ID, domain.OrderStatusBlocked, domain.BlockReasonRiskDenied)
			w.guard.MaybeAlertBlocked(ctx, reason, fmt.Sprintf(
				"order %d (pair %d) risk denied: %s", o.ID, o.PairID, reason))
			continue
		}

		// The reason rides along so a reprice marker survives the sent
		// cycle; the reconciler reads it to keep the reprice one-shot.
		if err := w.orders.UpdateStatus(ctx, o.ID, domain.OrderStatusSent, o.BlockedReason); err != nil {
			w.log.Error("mark sent failed", "order_id", o.ID, "error", err.Error())
			continue
		}

		execCtx, cancel := context.WithTimeout(ctx, w.cfg.ExecutorTimeout.Duration)
		res, err := w.execFor(ctx, o.PairID).Place(execCtx, req)
		cancel()
		if err != nil {
			// Submit may still have landed; the order stays sent and the
			// reconciler owns recovery.
			w.log.Warn("executor error, order left sent",
				"order_id", o.ID, "error", err.Error())
			continue
		}

		w.settle(ctx, req, res)
	}
}

// settle applies one placement result to the stores and risk state.
func (w *Worker) settle(ctx context.Context, req executor.Request, res executor.Result) {
	o := req.Order

	if res.ExecutorRef != "" {
		if err := w.orders.SetExecutorRef(ctx, o.ID, res.ExecutorRef); err != nil {
			w.log.Error("set executor ref failed", "order_id", o.ID, "error", err.Error())
		}
	}

	switch res.Status {
	case domain.OrderStatusFilled:
		w.transition(ctx, o.ID, domain.OrderStatusFilled, "")
		w.recordExecution(ctx, req, res, domain.ExecutionFilled, "")

		spent := o.AdjustedNotionalUSDC
		if res.ExecutedNotionalUSDC != nil {
			spent = *res.ExecutedNotionalUSDC
		}
		if err := w.wallets.ConsumeBudget(ctx, req.Follower.ID, spent); err != nil {
			w.log.Error("consume budget failed", "order_id", o.ID, "error", err.Error())
		}

		pnl := 0.0
		if res.PnLUSDC != nil {
			pnl = *res.PnLUSDC
		}
		w.guard.RecordFill(pnl)
		w.alert(ctx, domain.EventOrderFilled, fmt.Sprintf(
			"order %d (pair %d) filled for %.2f USDC", o.ID, o.PairID, spent))

	case domain.OrderStatusSent:
		// Resting open order; the reconciler will cancel or confirm it.
		w.alert(ctx, domain.EventOrderSent, fmt.Sprintf(
			"order %d (pair %d) resting at the venue", o.ID, o.PairID))

	case domain.OrderStatusBlocked:
		// Venue minimum discovered only at placement. No alert noise.
		w.transition(ctx, o.ID, domain.OrderStatusBlocked, res.Reason)
		w.log.Info("order blocked at venue", "order_id", o.ID, "reason", res.Reason)

	default:
		w.transition(ctx, o.ID, domain.OrderStatusFailed, res.Reason)
		w.recordExecution(ctx, req, res, domain.ExecutionFailed, res.Reason)
		w.guard.RecordExecFailure(ctx)
		w.alert(ctx, domain.EventOrderFailed, fmt.Sprintf(
			"order %d (pair %d) failed: %s", o.ID, o.PairID, res.Reason))
	}
}

// buildRequest loads the signal, pair, and follower rows for one queued
// order.
func (w *Worker) buildRequest(ctx context.Context, o domain.MirrorOrder) (executor.Request, error) {
	sig, err := w.signals.GetByID(ctx, o.TradeSignalID)
	if err != nil {
		return executor.Request{}, fmt.Errorf("worker: signal %d: %w", o.TradeSignalID, err)
	}
	pair, err := w.pairs.GetByID(ctx, o.PairID)
	if err != nil {
		return executor.Request{}, fmt.Errorf("worker: pair %d: %w", o.PairID, err)
	}
	follower, err := w.wallets.GetByID(ctx, pair.FollowerWalletID)
	if err != nil {
		return executor.Request{}, fmt.Errorf("worker: follower %d: %w", pair.FollowerWalletID, err)
	}
	return executor.Request{
		Order:    o,
		Signal:   sig,
		Pair:     pair,
		Follower: follower,
		Reprice:  o.WasRepriced(),
	}, nil
}

// execFor selects the adapter for one pair: live pairs route to the live
// executor when the deployment has one, everything else is paper.
func (w *Worker) execFor(ctx context.Context, pairID int64) executor.VenueExecutor {
	if w.live == nil {
		return w.stub
	}
	pair, err := w.pairs.GetByID(ctx, pairID)
	if err != nil {
		w.log.Warn("pair lookup for adapter selection failed, using stub",
			"pair_id", pairID, "error", err.Error())
		return w.stub
	}
	if pair.Mode == domain.PairModeLive {
		return w.live
	}
	return w.stub
}

// recordExecution appends one attempt row.
func (w *Worker) recordExecution(ctx context.Context, req executor.Request, res executor.Result, status domain.ExecutionStatus, failReason string) {
	e := domain.Execution{
		MirrorOrderID:        req.Order.ID,
		ExecutedSide:         req.Signal.Side,
		ExecutedPrice:        res.ExecutedPrice,
		ExecutedNotionalUSDC: res.ExecutedNotionalUSDC,
		ChainTxHash:          res.ChainTxHash,
		PnLUSDC:              res.PnLUSDC,
		Status:               status,
		FailReason:           failReason,
		ExecutedAt:           w.now().UTC(),
	}
	if err := w.execs.Insert(ctx, &e); err != nil {
		w.log.Error("insert execution failed", "order_id", req.Order.ID, "error", err.Error())
	}
}

// hydrateRisk replays the last day of fills into the in-memory risk state.
func (w *Worker) hydrateRisk(ctx context.Context) {
	fills, err := w.execs.ListFillsSince(ctx, w.now().Add(-24*time.Hour))
	if err != nil {
		w.log.Error("risk hydration failed", "error", err.Error())
		return
	}
	w.guard.Hydrate(fills)
}

// transition moves an order and logs instead of propagating; an illegal edge
// here means another replica raced us, and the row's state already tells the
// truth.
func (w *Worker) transition(ctx context.Context, orderID int64, status domain.OrderStatus, reason string) {
	if err := w.orders.UpdateStatus(ctx, orderID, status, reason); err != nil {
		w.log.Error("status transition failed",
			"order_id", orderID, "to", string(status), "error", err.Error())
	}
}

func (w *Worker) alert(ctx context.Context, event, message string) {
	if w.alerts == nil {
		return
	}
	w.alerts.Send(ctx, event, message)
}

// heartbeat records tick liveness in the runtime table.
func (w *Worker) heartbeat(ctx context.Context, tickDuration time.Duration) {
	hb := domain.Heartbeat{
		At:           w.now().UTC(),
		PollSeconds:  w.cfg.TickInterval.Duration.Seconds(),
		TickDuration: tickDuration.Seconds(),
	}
	raw, err := json.Marshal(hb)
	if err != nil {
		return
	}
	if err := w.runtime.Set(ctx, domain.RuntimeKeyWorkerHeartbeat, string(raw)); err != nil {
		w.log.Warn("heartbeat write failed", "error", err.Error())
	}
}
