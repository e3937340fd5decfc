// Package config defines the top-level configuration for mirrorbot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MIRRORBOT_* environment
// variables.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Chain    ChainConfig    `toml:"chain"`
	Watcher  WatcherConfig  `toml:"watcher"`
	Worker   WorkerConfig   `toml:"worker"`
	Policy   PolicyConfig   `toml:"policy"`
	Executor ExecutorConfig `toml:"executor"`
	Risk     RiskConfig     `toml:"risk"`
	Vault    VaultConfig    `toml:"vault"`
	Notify   NotifyConfig   `toml:"notify"`
	Feed     FeedConfig     `toml:"feed"`
	Archive  ArchiveConfig  `toml:"archive"`
	S3       S3Config       `toml:"s3"`
	LogLevel string         `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Redis backs the
// single-instance locks and the market metadata cache.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// ChainConfig identifies the chain and the contracts the watcher tails.
type ChainConfig struct {
	RPCURL string `toml:"rpc_url"`
	// ChainID is also the signing domain for live orders (137 = Polygon).
	ChainID int64 `toml:"chain_id"`
	// ExchangeAddresses is the allowlist of exchange contracts whose logs
	// are fetched.
	ExchangeAddresses []string `toml:"exchange_addresses"`
	// OrderFilledTopic is the topic0 of the exchange's fill event.
	OrderFilledTopic string `toml:"order_filled_topic"`
	// USDCAddress is the collateral token, used for balance checks.
	USDCAddress string `toml:"usdc_address"`
}

// WatcherConfig tunes the chain watcher's range and pacing behavior.
type WatcherConfig struct {
	Confirmations        uint64  `toml:"confirmations"`
	MaxBlockRange        uint64  `toml:"max_block_range"`
	MaxLagBlocks         uint64  `toml:"max_lag_blocks"`
	PollMinSeconds       float64 `toml:"poll_min_seconds"`
	PollMaxSeconds       float64 `toml:"poll_max_seconds"`
	SlowTickMs           int64   `toml:"slow_tick_ms"`
	BackoffErrorStreak   int     `toml:"backoff_error_streak"`
	RecoveryHealthyTicks int     `toml:"recovery_healthy_ticks"`
}

// WorkerConfig tunes the signal worker loop.
type WorkerConfig struct {
	TickInterval    duration `toml:"tick_interval"`
	BatchSize       int      `toml:"batch_size"`
	CancelAfter     duration `toml:"open_order_cancel_after"`
	ExecutorTimeout duration `toml:"executor_timeout"`
	CancelTimeout   duration `toml:"cancel_timeout"`
}

// PolicyConfig holds the pre-execution filter thresholds.
type PolicyConfig struct {
	MinSourceNotionalUSDC float64  `toml:"min_source_notional_usdc"`
	MarketMinBuyUSDC      float64  `toml:"market_min_buy_usdc"`
	BalanceFailCooldown   duration `toml:"balance_fail_cooldown"`
	MarketFilterEnabled   bool     `toml:"market_filter_enabled"`
}

// ExecutorConfig selects the venue adapter and its endpoints.
type ExecutorConfig struct {
	// Mode is "stub" or "live".
	Mode          string `toml:"mode"`
	ClobHost      string `toml:"clob_host"`
	GammaHost     string `toml:"gamma_host"`
	WsHost        string `toml:"ws_host"`
	SignatureType int    `toml:"signature_type"`
	FunderAddress string `toml:"funder_address"`
}

// RiskConfig holds the global circuit-breaker thresholds.
type RiskConfig struct {
	MaxOrderUSDC               float64  `toml:"max_order_usdc"`
	MaxDailyLossPct            float64  `toml:"max_daily_loss_pct"`
	MaxConsecutiveLosses       int      `toml:"max_consecutive_losses"`
	MaxConsecutiveExecFailures int      `toml:"max_consecutive_exec_failures"`
	DailyStartEquityUSDC       float64  `toml:"daily_start_equity_usdc"`
	BlockAlertCooldown         duration `toml:"block_alert_cooldown"`
}

// VaultConfig holds the passphrase unlocking encrypted signing material.
// Set it via MIRRORBOT_VAULT_PASSPHRASE rather than the TOML file.
type VaultConfig struct {
	Passphrase string `toml:"passphrase"`
}

// NotifyConfig holds outbound alert channels. Events filters which event
// types are delivered; empty means all.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// FeedConfig tunes the optional CLOB market data feed.
type FeedConfig struct {
	Enabled bool `toml:"enabled"`
	// Assets lists the ERC-1155 token IDs to track last-trade prices for.
	Assets []string `toml:"assets"`
	// Buffer is the tick channel capacity; oldest ticks are dropped when
	// the consumer lags.
	Buffer int `toml:"buffer"`
}

// ArchiveConfig tunes the S3 archiver for old signals and executions.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
	Prefix        string   `toml:"prefix"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// Defaults returns the built-in configuration, tuned for Polymarket on
// Polygon mainnet. Everything here can be overridden by TOML or env.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Port:          5432,
			SSLMode:       "require",
			PoolMaxConns:  8,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 8,
		},
		Chain: ChainConfig{
			ChainID: 137,
			ExchangeAddresses: []string{
				"0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E", // CTF exchange
				"0xC5d563A36AE78145C45a50134d48A1215220f80a", // neg-risk exchange
			},
			OrderFilledTopic: "0xd0a08e8c493f9c94f29311604c9de1b4e8c8d4c06bd0c789af57f2d65bfec0f6",
			USDCAddress:      "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174",
		},
		Watcher: WatcherConfig{
			Confirmations:        2,
			MaxBlockRange:        900,
			MaxLagBlocks:         3000,
			PollMinSeconds:       4,
			PollMaxSeconds:       30,
			SlowTickMs:           8000,
			BackoffErrorStreak:   3,
			RecoveryHealthyTicks: 5,
		},
		Worker: WorkerConfig{
			TickInterval:    duration{10 * time.Second},
			BatchSize:       50,
			CancelAfter:     duration{10 * time.Minute},
			ExecutorTimeout: duration{25 * time.Second},
			CancelTimeout:   duration{10 * time.Second},
		},
		Policy: PolicyConfig{
			MinSourceNotionalUSDC: 1.00,
			MarketMinBuyUSDC:      1.00,
			BalanceFailCooldown:   duration{30 * time.Minute},
			MarketFilterEnabled:   true,
		},
		Executor: ExecutorConfig{
			Mode:      "stub",
			ClobHost:  "https://clob.polymarket.com",
			GammaHost: "https://gamma-api.polymarket.com",
			WsHost:    "wss://ws-subscriptions-clob.polymarket.com/ws",
		},
		Risk: RiskConfig{
			MaxOrderUSDC:               250,
			MaxDailyLossPct:            5,
			MaxConsecutiveLosses:       5,
			MaxConsecutiveExecFailures: 3,
			DailyStartEquityUSDC:       1000,
			BlockAlertCooldown:         duration{15 * time.Minute},
		},
		Feed: FeedConfig{
			Buffer: 256,
		},
		Archive: ArchiveConfig{
			Interval:      duration{24 * time.Hour},
			RetentionDays: 30,
			Prefix:        "archive",
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration and returns a single error listing every
// problem found, or nil when the configuration is usable.
func (c *Config) Validate() error {
	var probs []string

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		probs = append(probs, fmt.Sprintf("log_level %q is not one of debug|info|warn|error", c.LogLevel))
	}

	if c.Database.DSN == "" && c.Database.Host == "" {
		probs = append(probs, "database.dsn or database.host is required")
	}

	if c.Chain.ChainID <= 0 {
		probs = append(probs, "chain.chain_id must be positive")
	}
	if len(c.Chain.ExchangeAddresses) == 0 {
		probs = append(probs, "chain.exchange_addresses must not be empty")
	}
	if c.Chain.OrderFilledTopic == "" {
		probs = append(probs, "chain.order_filled_topic is required")
	}

	if c.Watcher.MaxBlockRange == 0 {
		probs = append(probs, "watcher.max_block_range must be positive")
	}
	if c.Watcher.MaxLagBlocks < c.Watcher.MaxBlockRange {
		probs = append(probs, "watcher.max_lag_blocks must be >= watcher.max_block_range")
	}
	if c.Watcher.PollMinSeconds <= 0 || c.Watcher.PollMaxSeconds < c.Watcher.PollMinSeconds {
		probs = append(probs, "watcher poll bounds must satisfy 0 < poll_min_seconds <= poll_max_seconds")
	}
	if c.Watcher.RecoveryHealthyTicks <= 0 {
		probs = append(probs, "watcher.recovery_healthy_ticks must be positive")
	}

	if c.Worker.TickInterval.Duration <= 0 {
		probs = append(probs, "worker.tick_interval must be positive")
	}
	if c.Worker.BatchSize <= 0 {
		probs = append(probs, "worker.batch_size must be positive")
	}
	if c.Worker.CancelAfter.Duration <= 0 {
		probs = append(probs, "worker.open_order_cancel_after must be positive")
	}

	if c.Policy.MarketMinBuyUSDC < 1.00 {
		probs = append(probs, "policy.market_min_buy_usdc must be at least 1.00")
	}
	if c.Policy.MinSourceNotionalUSDC < 0 {
		probs = append(probs, "policy.min_source_notional_usdc must not be negative")
	}

	switch c.Executor.Mode {
	case "stub", "live":
	default:
		probs = append(probs, fmt.Sprintf("executor.mode %q is not one of stub|live", c.Executor.Mode))
	}
	if c.Executor.Mode == "live" {
		if c.Executor.ClobHost == "" {
			probs = append(probs, "executor.clob_host is required in live mode")
		}
		if c.Vault.Passphrase == "" {
			probs = append(probs, "vault.passphrase is required in live mode (set MIRRORBOT_VAULT_PASSPHRASE)")
		}
	}

	if c.Risk.MaxOrderUSDC <= 0 {
		probs = append(probs, "risk.max_order_usdc must be positive")
	}
	if c.Risk.MaxDailyLossPct <= 0 || c.Risk.MaxDailyLossPct > 100 {
		probs = append(probs, "risk.max_daily_loss_pct must be in (0, 100]")
	}
	if c.Risk.MaxConsecutiveLosses <= 0 {
		probs = append(probs, "risk.max_consecutive_losses must be positive")
	}
	if c.Risk.MaxConsecutiveExecFailures <= 0 {
		probs = append(probs, "risk.max_consecutive_exec_failures must be positive")
	}
	if c.Risk.DailyStartEquityUSDC <= 0 {
		probs = append(probs, "risk.daily_start_equity_usdc must be positive")
	}

	if c.Archive.Enabled {
		if c.S3.Bucket == "" {
			probs = append(probs, "s3.bucket is required when archive.enabled")
		}
		if c.S3.Region == "" {
			probs = append(probs, "s3.region is required when archive.enabled")
		}
		if c.Archive.RetentionDays <= 0 {
			probs = append(probs, "archive.retention_days must be positive")
		}
	}

	if len(probs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(probs, "; "))
	}
	return nil
}

// duration wraps time.Duration so TOML values can be written as "10s", "5m".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}
