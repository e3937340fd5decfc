package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mirrorbot/mirrorbot/internal/crypto"
	"github.com/mirrorbot/mirrorbot/internal/domain"
	"github.com/mirrorbot/mirrorbot/internal/executor"
	"github.com/mirrorbot/mirrorbot/internal/feed"
	"github.com/mirrorbot/mirrorbot/internal/platform/chain"
	"github.com/mirrorbot/mirrorbot/internal/platform/polymarket"
	"github.com/mirrorbot/mirrorbot/internal/policy"
	"github.com/mirrorbot/mirrorbot/internal/watcher"
	"github.com/mirrorbot/mirrorbot/internal/worker"
)

// lockTTL bounds how long a crashed replica blocks failover. Held locks are
// refreshed well inside the TTL.
const lockTTL = 2 * time.Minute

// WatcherMode runs the chain watcher loop. Exactly one watcher per chain may
// run; a second replica gets ErrLockHeld and exits.
func (a *App) WatcherMode(ctx context.Context) error {
	deps, err := a.Wire(ctx)
	if err != nil {
		return err
	}

	lockName := fmt.Sprintf("watcher:%d", a.cfg.Chain.ChainID)
	unlock, err := deps.Locks.Acquire(ctx, lockName, lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return fmt.Errorf("app: another watcher holds %s: %w", lockName, err)
		}
		return fmt.Errorf("app: acquire %s: %w", lockName, err)
	}
	defer unlock()

	rpc, err := chain.Dial(ctx, a.cfg.Chain.RPCURL)
	if err != nil {
		return fmt.Errorf("app: dial chain rpc: %w", err)
	}
	a.closers = append(a.closers, rpc.Close)

	w := watcher.New(a.cfg.Watcher, a.cfg.Chain, rpc, deps.Wallets, deps.Signals, deps.Runtime, a.log)
	a.log.Info("watcher mode started", "chain_id", a.cfg.Chain.ChainID)
	return w.Run(ctx)
}

// WorkerMode runs the signal worker loop plus the optional market data feed
// and S3 archiver. One worker per deployment; a second replica exits.
func (a *App) WorkerMode(ctx context.Context) error {
	deps, err := a.Wire(ctx)
	if err != nil {
		return err
	}

	unlock, err := deps.Locks.Acquire(ctx, "worker", lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return fmt.Errorf("app: another worker is running: %w", err)
		}
		return fmt.Errorf("app: acquire worker lock: %w", err)
	}
	defer unlock()

	markets := &cachedMarkets{
		cache: deps.Markets,
		gamma: polymarket.NewGammaClient(a.cfg.Executor.GammaHost),
	}
	pol := policy.NewEngine(a.cfg.Policy, markets, deps.Orders, deps.Execs, a.log)

	stub := executor.NewStub(a.log)
	var live executor.VenueExecutor
	if strings.EqualFold(a.cfg.Executor.Mode, "live") {
		live, err = a.liveExecutor(ctx, deps)
		if err != nil {
			return err
		}
	}

	w := worker.New(a.cfg.Worker, worker.Deps{
		Signals: deps.Signals,
		Orders:  deps.Orders,
		Execs:   deps.Execs,
		Wallets: deps.Wallets,
		Pairs:   deps.Pairs,
		Runtime: deps.Runtime,
		Policy:  pol,
		Guard:   deps.Guard,
		Alerts:  deps.Notifier,
		Stub:    stub,
		Live:    live,
	}, a.log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(ctx) })

	if a.cfg.Feed.Enabled && a.cfg.Executor.WsHost != "" {
		f := feed.New(a.cfg.Feed, polymarket.NewWSClient(a.cfg.Executor.WsHost), deps.Prices, a.log)
		g.Go(func() error { return f.Run(ctx) })
	}

	if deps.Archiver != nil {
		g.Go(func() error { return deps.Archiver.RunLoop(ctx) })
	}

	a.log.Info("worker mode started", "executor_mode", a.cfg.Executor.Mode)
	return g.Wait()
}

// liveExecutor builds the CLOB executor. API credentials are derived from
// the first active follower's vault key; order payloads are still signed
// per-follower inside the executor. Follower USDC balances are swept once at
// startup so an underfunded wallet is visible before its orders bounce.
func (a *App) liveExecutor(ctx context.Context, deps *Dependencies) (executor.VenueExecutor, error) {
	followers, err := deps.Wallets.ListActive(ctx, domain.WalletRoleFollower)
	if err != nil {
		return nil, fmt.Errorf("app: live executor: list followers: %w", err)
	}

	if rpc, err := chain.Dial(ctx, a.cfg.Chain.RPCURL); err != nil {
		a.log.Warn("funding check skipped, rpc dial failed", "error", err.Error())
	} else {
		checkFollowerFunding(ctx, rpc, a.cfg.Chain.USDCAddress, followers, a.cfg.Risk.MaxOrderUSDC, a.log)
		rpc.Close()
	}

	var keyRef string
	for _, f := range followers {
		if f.KeyRef != "" {
			keyRef = f.KeyRef
			break
		}
	}
	if keyRef == "" {
		return nil, fmt.Errorf("app: live executor: no active follower with a key ref")
	}

	pk, err := deps.Vault.Signer(ctx, keyRef)
	if err != nil {
		return nil, fmt.Errorf("app: live executor: resolve %s: %w", keyRef, err)
	}
	signer, err := crypto.NewSigner(pk, a.cfg.Chain.ChainID)
	if err != nil {
		return nil, fmt.Errorf("app: live executor: %w", err)
	}

	clob := polymarket.NewClobClient(a.cfg.Executor.ClobHost, signer, nil)
	auth, err := clob.DeriveAPIKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: live executor: derive api key: %w", err)
	}
	clob.SetAuth(auth)

	return executor.NewLive(a.cfg.Executor, a.cfg.Chain.ChainID, clob, deps.Vault, a.log), nil
}
