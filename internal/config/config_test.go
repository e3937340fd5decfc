package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Database.Host = "localhost"
	cfg.Database.Database = "mirrorbot"
	cfg.Database.User = "mirrorbot"
	return cfg
}

func TestValidateDefaultsNeedDatabase(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error without database settings")
	}
	if !strings.Contains(err.Error(), "database.dsn or database.host") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "loud"
	cfg.Policy.MarketMinBuyUSDC = 0.5
	cfg.Executor.Mode = "dry-run"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"log_level", "market_min_buy_usdc", "executor.mode"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestValidateLiveModeNeedsPassphrase(t *testing.T) {
	cfg := validConfig()
	cfg.Executor.Mode = "live"
	cfg.Vault.Passphrase = ""

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "vault.passphrase") {
		t.Errorf("expected passphrase error, got %v", err)
	}

	cfg.Vault.Passphrase = "s3cret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MIRRORBOT_CHAIN_RPC_URL", "https://polygon-rpc.example")
	t.Setenv("MIRRORBOT_WATCHER_MAX_BLOCK_RANGE", "500")
	t.Setenv("MIRRORBOT_WORKER_TICK_INTERVAL", "3s")
	t.Setenv("MIRRORBOT_NOTIFY_EVENTS", "filled, failed,kill_switch")
	t.Setenv("MIRRORBOT_POLICY_MARKET_FILTER_ENABLED", "false")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Chain.RPCURL != "https://polygon-rpc.example" {
		t.Errorf("rpc url = %q", cfg.Chain.RPCURL)
	}
	if cfg.Watcher.MaxBlockRange != 500 {
		t.Errorf("max block range = %d", cfg.Watcher.MaxBlockRange)
	}
	if cfg.Worker.TickInterval.Duration != 3*time.Second {
		t.Errorf("tick interval = %v", cfg.Worker.TickInterval.Duration)
	}
	if len(cfg.Notify.Events) != 3 || cfg.Notify.Events[1] != "failed" {
		t.Errorf("events = %v", cfg.Notify.Events)
	}
	if cfg.Policy.MarketFilterEnabled {
		t.Error("market filter should be disabled")
	}
}
