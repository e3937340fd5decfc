package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MIRRORBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MIRRORBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "MIRRORBOT_DATABASE_DSN")
	setStr(&cfg.Database.Host, "MIRRORBOT_DATABASE_HOST")
	setInt(&cfg.Database.Port, "MIRRORBOT_DATABASE_PORT")
	setStr(&cfg.Database.Database, "MIRRORBOT_DATABASE_NAME")
	setStr(&cfg.Database.User, "MIRRORBOT_DATABASE_USER")
	setStr(&cfg.Database.Password, "MIRRORBOT_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "MIRRORBOT_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "MIRRORBOT_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "MIRRORBOT_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "MIRRORBOT_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "MIRRORBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MIRRORBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MIRRORBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MIRRORBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MIRRORBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MIRRORBOT_REDIS_TLS_ENABLED")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "MIRRORBOT_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "MIRRORBOT_CHAIN_ID")
	setStringSlice(&cfg.Chain.ExchangeAddresses, "MIRRORBOT_CHAIN_EXCHANGE_ADDRESSES")
	setStr(&cfg.Chain.OrderFilledTopic, "MIRRORBOT_CHAIN_ORDER_FILLED_TOPIC")
	setStr(&cfg.Chain.USDCAddress, "MIRRORBOT_CHAIN_USDC_ADDRESS")

	// ── Watcher ──
	setUint64(&cfg.Watcher.Confirmations, "MIRRORBOT_WATCHER_CONFIRMATIONS")
	setUint64(&cfg.Watcher.MaxBlockRange, "MIRRORBOT_WATCHER_MAX_BLOCK_RANGE")
	setUint64(&cfg.Watcher.MaxLagBlocks, "MIRRORBOT_WATCHER_MAX_LAG_BLOCKS")
	setFloat64(&cfg.Watcher.PollMinSeconds, "MIRRORBOT_WATCHER_POLL_MIN_SECONDS")
	setFloat64(&cfg.Watcher.PollMaxSeconds, "MIRRORBOT_WATCHER_POLL_MAX_SECONDS")
	setInt64(&cfg.Watcher.SlowTickMs, "MIRRORBOT_WATCHER_SLOW_TICK_MS")
	setInt(&cfg.Watcher.BackoffErrorStreak, "MIRRORBOT_WATCHER_BACKOFF_ERROR_STREAK")
	setInt(&cfg.Watcher.RecoveryHealthyTicks, "MIRRORBOT_WATCHER_RECOVERY_HEALTHY_TICKS")

	// ── Worker ──
	setDuration(&cfg.Worker.TickInterval, "MIRRORBOT_WORKER_TICK_INTERVAL")
	setInt(&cfg.Worker.BatchSize, "MIRRORBOT_WORKER_BATCH_SIZE")
	setDuration(&cfg.Worker.CancelAfter, "MIRRORBOT_WORKER_OPEN_ORDER_CANCEL_AFTER")
	setDuration(&cfg.Worker.ExecutorTimeout, "MIRRORBOT_WORKER_EXECUTOR_TIMEOUT")
	setDuration(&cfg.Worker.CancelTimeout, "MIRRORBOT_WORKER_CANCEL_TIMEOUT")

	// ── Policy ──
	setFloat64(&cfg.Policy.MinSourceNotionalUSDC, "MIRRORBOT_POLICY_MIN_SOURCE_NOTIONAL_USDC")
	setFloat64(&cfg.Policy.MarketMinBuyUSDC, "MIRRORBOT_POLICY_MARKET_MIN_BUY_USDC")
	setDuration(&cfg.Policy.BalanceFailCooldown, "MIRRORBOT_POLICY_BALANCE_FAIL_COOLDOWN")
	setBool(&cfg.Policy.MarketFilterEnabled, "MIRRORBOT_POLICY_MARKET_FILTER_ENABLED")

	// ── Executor ──
	setStr(&cfg.Executor.Mode, "MIRRORBOT_EXECUTOR_MODE")
	setStr(&cfg.Executor.ClobHost, "MIRRORBOT_EXECUTOR_CLOB_HOST")
	setStr(&cfg.Executor.GammaHost, "MIRRORBOT_EXECUTOR_GAMMA_HOST")
	setStr(&cfg.Executor.WsHost, "MIRRORBOT_EXECUTOR_WS_HOST")
	setInt(&cfg.Executor.SignatureType, "MIRRORBOT_EXECUTOR_SIGNATURE_TYPE")
	setStr(&cfg.Executor.FunderAddress, "MIRRORBOT_EXECUTOR_FUNDER_ADDRESS")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxOrderUSDC, "MIRRORBOT_RISK_MAX_ORDER_USDC")
	setFloat64(&cfg.Risk.MaxDailyLossPct, "MIRRORBOT_RISK_MAX_DAILY_LOSS_PCT")
	setInt(&cfg.Risk.MaxConsecutiveLosses, "MIRRORBOT_RISK_MAX_CONSECUTIVE_LOSSES")
	setInt(&cfg.Risk.MaxConsecutiveExecFailures, "MIRRORBOT_RISK_MAX_CONSECUTIVE_EXEC_FAILURES")
	setFloat64(&cfg.Risk.DailyStartEquityUSDC, "MIRRORBOT_RISK_DAILY_START_EQUITY_USDC")
	setDuration(&cfg.Risk.BlockAlertCooldown, "MIRRORBOT_RISK_BLOCK_ALERT_COOLDOWN")

	// ── Vault ──
	setStr(&cfg.Vault.Passphrase, "MIRRORBOT_VAULT_PASSPHRASE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MIRRORBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MIRRORBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MIRRORBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MIRRORBOT_NOTIFY_EVENTS")

	// ── Feed ──
	setBool(&cfg.Feed.Enabled, "MIRRORBOT_FEED_ENABLED")
	setStringSlice(&cfg.Feed.Assets, "MIRRORBOT_FEED_ASSETS")
	setInt(&cfg.Feed.Buffer, "MIRRORBOT_FEED_BUFFER")

	// ── Archive / S3 ──
	setBool(&cfg.Archive.Enabled, "MIRRORBOT_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "MIRRORBOT_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "MIRRORBOT_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Prefix, "MIRRORBOT_ARCHIVE_PREFIX")
	setStr(&cfg.S3.Endpoint, "MIRRORBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MIRRORBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "MIRRORBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MIRRORBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MIRRORBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MIRRORBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MIRRORBOT_S3_FORCE_PATH_STYLE")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "MIRRORBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
