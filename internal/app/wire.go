package app

import (
	"context"
	"fmt"

	s3blob "github.com/mirrorbot/mirrorbot/internal/blob/s3"
	"github.com/mirrorbot/mirrorbot/internal/cache/redis"
	"github.com/mirrorbot/mirrorbot/internal/domain"
	"github.com/mirrorbot/mirrorbot/internal/notify"
	"github.com/mirrorbot/mirrorbot/internal/platform/polymarket"
	"github.com/mirrorbot/mirrorbot/internal/risk"
	"github.com/mirrorbot/mirrorbot/internal/store/postgres"
	"github.com/mirrorbot/mirrorbot/internal/vault"
)

// Dependencies bundles the concrete implementations the operating modes run
// on. Wire constructs it; App.Close tears it down.
type Dependencies struct {
	Wallets   domain.WalletStore
	Pairs     domain.PairStore
	Signals   domain.SignalStore
	Orders    domain.MirrorOrderStore
	Execs     domain.ExecutionStore
	Runtime   domain.RuntimeStore
	AlertsLog domain.AlertStore
	VaultKeys domain.VaultStore

	Locks   domain.LockManager
	Markets domain.MarketCache
	Prices  domain.PriceCache

	Vault    *vault.Vault
	Notifier *notify.Notifier
	Guard    *risk.Guard

	// Archiver is nil unless archive.enabled is set.
	Archiver *s3blob.Archiver
}

// Wire constructs every dependency the modes share: Postgres stores, Redis
// locks and caches, the vault, the notifier, the risk guard, and the
// optional S3 archiver. Cleanup functions are registered on the App.
func (a *App) Wire(ctx context.Context) (*Dependencies, error) {
	cfg := a.cfg
	deps := &Dependencies{}

	pg, err := a.wirePostgres(ctx)
	if err != nil {
		return nil, err
	}

	pool := pg.Pool()
	deps.Wallets = postgres.NewWalletStore(pool)
	deps.Pairs = postgres.NewPairStore(pool)
	deps.Signals = postgres.NewSignalStore(pool)
	deps.Orders = postgres.NewOrderStore(pool)
	deps.Execs = postgres.NewExecutionStore(pool)
	deps.Runtime = postgres.NewRuntimeStore(pool)
	deps.AlertsLog = postgres.NewAlertStore(pool)
	deps.VaultKeys = postgres.NewVaultStore(pool)

	rc, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("app: wire redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = rc.Close() })

	deps.Locks = redis.NewLockManager(rc)
	deps.Markets = redis.NewMarketCache(rc)
	deps.Prices = redis.NewPriceCache(rc)

	deps.Vault = vault.New(deps.VaultKeys, cfg.Vault.Passphrase)

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.New(senders, cfg.Notify.Events, deps.AlertsLog, a.log)

	deps.Guard = risk.New(cfg.Risk, deps.Notifier, a.log)

	if cfg.Archive.Enabled {
		s3c, err := s3blob.New(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("app: wire s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(
			cfg.Archive,
			s3blob.NewWriter(s3c),
			s3blob.NewReader(s3c),
			deps.Signals,
			deps.Execs,
			a.log,
		)
	}

	return deps, nil
}

// WireVault connects only what the vault subcommands need: the Postgres
// vault_keys table behind the vault's encryptor. Redis is not touched.
func (a *App) WireVault(ctx context.Context) (*vault.Vault, error) {
	pg, err := a.wirePostgres(ctx)
	if err != nil {
		return nil, err
	}
	return vault.New(postgres.NewVaultStore(pg.Pool()), a.cfg.Vault.Passphrase), nil
}

// WireSignals connects only the signal store, for the mock-injection
// subcommand. Redis is not touched.
func (a *App) WireSignals(ctx context.Context) (domain.SignalStore, error) {
	pg, err := a.wirePostgres(ctx)
	if err != nil {
		return nil, err
	}
	return postgres.NewSignalStore(pg.Pool()), nil
}

// wirePostgres opens the shared Postgres pool and runs migrations when
// configured. The pool's closer is registered on the App.
func (a *App) wirePostgres(ctx context.Context) (*postgres.Client, error) {
	cfg := a.cfg

	pg, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("app: wire postgres: %w", err)
	}
	a.closers = append(a.closers, pg.Close)

	if cfg.Database.RunMigrations {
		if err := pg.RunMigrations(ctx); err != nil {
			return nil, fmt.Errorf("app: run migrations: %w", err)
		}
	}
	return pg, nil
}

// cachedMarkets is the policy engine's market lookup: the Redis cache in
// front of the Gamma metadata API.
type cachedMarkets struct {
	cache domain.MarketCache
	gamma *polymarket.GammaClient
}

func (m *cachedMarkets) MarketByToken(ctx context.Context, tokenID string) (domain.Market, error) {
	if mk, err := m.cache.GetByToken(ctx, tokenID); err == nil {
		return mk, nil
	}
	mk, err := m.gamma.MarketByToken(ctx, tokenID)
	if err != nil {
		return domain.Market{}, err
	}
	// Best effort; a cache write failure only costs the next lookup.
	_ = m.cache.Set(ctx, mk)
	return mk, nil
}
