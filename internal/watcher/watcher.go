// Package watcher tails the chain's fill events and turns trades by watched
// source wallets into durable trade signals.
package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mirrorbot/mirrorbot/internal/config"
	"github.com/mirrorbot/mirrorbot/internal/domain"
	"github.com/mirrorbot/mirrorbot/internal/platform/chain"
)

// ChainReader is the slice of the RPC client the watcher consumes.
type ChainReader interface {
	HeadBlock(ctx context.Context) (uint64, error)
	FilterEventLogs(ctx context.Context, from, to uint64, contracts []common.Address, topic common.Hash) ([]chain.EventLog, error)
}

// Watcher converts the chain's event log into trade signals, at most once
// per (chain, wallet, tx, log index), pacing its polling by health.
type Watcher struct {
	cfg       config.WatcherConfig
	chainID   int64
	exchanges []common.Address
	topic     common.Hash

	chain   ChainReader
	wallets domain.WalletStore
	signals domain.SignalStore
	runtime domain.RuntimeStore

	log *slog.Logger
	now func() time.Time

	state domain.WatcherState
}

// New creates a Watcher. The exchange allowlist and event topic come from
// the chain configuration.
func New(
	cfg config.WatcherConfig,
	chainCfg config.ChainConfig,
	reader ChainReader,
	wallets domain.WalletStore,
	signals domain.SignalStore,
	runtime domain.RuntimeStore,
	log *slog.Logger,
) *Watcher {
	exchanges := make([]common.Address, 0, len(chainCfg.ExchangeAddresses))
	for _, a := range chainCfg.ExchangeAddresses {
		exchanges = append(exchanges, common.HexToAddress(a))
	}

	return &Watcher{
		cfg:       cfg,
		chainID:   chainCfg.ChainID,
		exchanges: exchanges,
		topic:     common.HexToHash(chainCfg.OrderFilledTopic),
		chain:     reader,
		wallets:   wallets,
		signals:   signals,
		runtime:   runtime,
		log:       log.With("component", "watcher"),
		now:       time.Now,
	}
}

// Run executes the tick loop until the context is canceled. State is
// restored from the runtime store at startup and persisted after every tick.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.loadState(ctx); err != nil {
		return err
	}

	w.log.Info("watcher started",
		"last_processed_block", w.state.LastProcessedBlock,
		"poll_seconds", w.state.CurrentPollSeconds,
	)

	for {
		started := w.now()
		w.Tick(ctx)
		elapsed := w.now().Sub(started)

		if err := w.persistState(ctx, elapsed); err != nil {
			w.log.Error("persisting watcher state failed", "error", err)
		}

		poll := time.Duration(w.state.CurrentPollSeconds * float64(time.Second))
		select {
		case <-ctx.Done():
			w.log.Info("watcher stopping", "last_processed_block", w.state.LastProcessedBlock)
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

// Tick processes one bounded block range and updates the pacing state.
func (w *Watcher) Tick(ctx context.Context) {
	started := w.now()
	err := w.processRange(ctx)
	slow := w.now().Sub(started) > time.Duration(w.cfg.SlowTickMs)*time.Millisecond

	if err != nil {
		w.state.ErrorStreak++
		w.log.Error("watcher tick failed",
			"error", err,
			"error_streak", w.state.ErrorStreak,
		)
	} else {
		w.state.ErrorStreak = 0
	}

	w.applyPacing(err != nil, slow)
}

// processRange advances last_processed_block over [last+1, target] where
// target is the confirmed head. On error the block pointer is left so the
// next tick retries the same range.
func (w *Watcher) processRange(ctx context.Context) error {
	head, err := w.chain.HeadBlock(ctx)
	if err != nil {
		return fmt.Errorf("watcher: head block: %w", err)
	}
	if head < w.cfg.Confirmations {
		return nil
	}
	target := head - w.cfg.Confirmations

	if w.state.LastProcessedBlock == 0 {
		// First run: start one range behind the confirmed head instead of
		// replaying from genesis.
		if target > w.cfg.MaxBlockRange {
			w.state.LastProcessedBlock = target - w.cfg.MaxBlockRange
		}
		w.log.Info("bootstrapped block pointer", "last_processed_block", w.state.LastProcessedBlock)
	}

	last := w.state.LastProcessedBlock
	if target <= last {
		return nil
	}

	if target-last > w.cfg.MaxLagBlocks {
		w.log.Warn("lag jump, fast-forwarding past backlog",
			"last_processed_block", last,
			"target", target,
			"skipped_blocks", target-last,
		)
		w.state.LastProcessedBlock = target
		return nil
	}

	from := last + 1
	to := last + w.cfg.MaxBlockRange
	if to > target {
		to = target
	}

	watched, err := w.watchedAddresses(ctx)
	if err != nil {
		return err
	}
	if len(watched) == 0 {
		// Nothing to classify against; advance so signals resume from here
		// once wallets are added.
		w.state.LastProcessedBlock = to
		return nil
	}

	logs, err := w.chain.FilterEventLogs(ctx, from, to, w.exchanges, w.topic)
	if err != nil {
		if chain.IsRangeTooLarge(err) && target > w.cfg.MaxBlockRange {
			w.state.LastProcessedBlock = target - w.cfg.MaxBlockRange
			w.log.Warn("provider rejected block range, rewinding pointer",
				"last_processed_block", w.state.LastProcessedBlock,
			)
		}
		return fmt.Errorf("watcher: fetch logs: %w", err)
	}

	inserted := 0
	for _, l := range logs {
		ev, err := chain.ParseOrderFilled(l)
		if err != nil {
			w.log.Warn("skipping unparseable log", "error", err)
			continue
		}

		for _, sig := range signalsFromFill(ev, watched, w.chainID, w.now()) {
			sig := sig
			created, err := w.signals.Insert(ctx, &sig)
			if err != nil {
				return fmt.Errorf("watcher: insert signal: %w", err)
			}
			if created {
				inserted++
				w.log.Info("trade signal ingested",
					"signal_id", sig.ID,
					"source_wallet", sig.SourceWallet,
					"side", sig.Side,
					"token_id", sig.TokenID,
					"notional_usdc", sig.SourceNotionalUSDC,
					"block", sig.BlockNumber,
				)
			}
		}
	}

	w.state.LastProcessedBlock = to
	w.log.Debug("tick complete",
		"from", from,
		"to", to,
		"logs", len(logs),
		"signals", inserted,
	)
	return nil
}

// watchedAddresses loads the active source wallets, keyed by address.
func (w *Watcher) watchedAddresses(ctx context.Context) (map[common.Address]bool, error) {
	wallets, err := w.wallets.ListActive(ctx, domain.WalletRoleSource)
	if err != nil {
		return nil, fmt.Errorf("watcher: list source wallets: %w", err)
	}
	watched := make(map[common.Address]bool, len(wallets))
	for _, wl := range wallets {
		watched[common.HexToAddress(wl.Address)] = true
	}
	return watched, nil
}

// applyPacing moves the poll cadence between fast and slow. A slow tick or a
// sustained error streak drops to the slow cadence; a run of healthy fast
// ticks restores the fast one.
func (w *Watcher) applyPacing(errored, slow bool) {
	switch {
	case slow || w.state.ErrorStreak >= w.cfg.BackoffErrorStreak:
		w.state.HealthyStreak = 0
		if w.state.CurrentPollSeconds != w.cfg.PollMaxSeconds {
			w.log.Info("backing off to slow polling",
				"poll_seconds", w.cfg.PollMaxSeconds,
				"slow_tick", slow,
				"error_streak", w.state.ErrorStreak,
			)
		}
		w.state.CurrentPollSeconds = w.cfg.PollMaxSeconds
	case errored:
		w.state.HealthyStreak = 0
	default:
		w.state.HealthyStreak++
		if w.state.HealthyStreak >= w.cfg.RecoveryHealthyTicks &&
			w.state.CurrentPollSeconds != w.cfg.PollMinSeconds {
			w.log.Info("recovered, resuming fast polling", "poll_seconds", w.cfg.PollMinSeconds)
			w.state.CurrentPollSeconds = w.cfg.PollMinSeconds
		}
	}
}

// loadState restores the durable watcher state, defaulting to a fresh state
// at the fast cadence.
func (w *Watcher) loadState(ctx context.Context) error {
	raw, err := w.runtime.Get(ctx, domain.RuntimeKeyWatcherState)
	if errors.Is(err, domain.ErrNotFound) {
		w.state = domain.WatcherState{CurrentPollSeconds: w.cfg.PollMinSeconds}
		return nil
	}
	if err != nil {
		return fmt.Errorf("watcher: load state: %w", err)
	}

	if err := json.Unmarshal([]byte(raw), &w.state); err != nil {
		return fmt.Errorf("watcher: decode state: %w", err)
	}
	if w.state.CurrentPollSeconds <= 0 {
		w.state.CurrentPollSeconds = w.cfg.PollMinSeconds
	}
	return nil
}

// persistState writes the pacing state and a heartbeat.
func (w *Watcher) persistState(ctx context.Context, tickDuration time.Duration) error {
	stateJSON, err := json.Marshal(w.state)
	if err != nil {
		return err
	}
	if err := w.runtime.Set(ctx, domain.RuntimeKeyWatcherState, string(stateJSON)); err != nil {
		return err
	}

	hb, err := json.Marshal(domain.Heartbeat{
		At:           w.now(),
		PollSeconds:  w.state.CurrentPollSeconds,
		TickDuration: tickDuration.Seconds(),
	})
	if err != nil {
		return err
	}
	return w.runtime.Set(ctx, domain.RuntimeKeyWatcherHeartbeat, string(hb))
}

// State returns a copy of the current pacing state.
func (w *Watcher) State() domain.WatcherState {
	return w.state
}
