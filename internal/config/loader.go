package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies environment variable overrides, and returns the
// final Config. A missing file is not an error; defaults plus environment
// cover the container deployment case. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, err
			}
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known environment variables and overwrites the
// corresponding Config fields when a variable is set. The unprefixed names
// (EXECUTION_MODE, RISK_MAX_DAILY_LOSS, ...) are the operational contract the
// services ship with; TITAN_* covers infrastructure wiring.
func applyEnvOverrides(cfg *Config) {
	// ── Operational contract ──
	setStr(&cfg.Execution.Mode, "EXECUTION_MODE")
	setFloat64(&cfg.Risk.MaxDailyLossPct, "RISK_MAX_DAILY_LOSS")
	setFloat64(&cfg.Risk.RiskPerTradePct, "RISK_PER_TRADE")
	setInt(&cfg.Risk.MaxConsecutiveLosses, "CIRCUIT_BREAKER_CONSECUTIVE_LOSSES")
	setFloat64(&cfg.Broker.CircuitBreakerDrawdownPct, "CIRCUIT_BREAKER_DRAWDOWN_PCT")
	setFloat64(&cfg.Risk.RollbackMinSharpe, "ROLLBACK_MIN_SHARPE")
	setFloat64(&cfg.Risk.RollbackMinAccuracy, "ROLLBACK_MIN_ACCURACY")
	setInt(&cfg.Risk.PerfCheckInterval, "RISK_PERF_CHECK_INTERVAL")
	setFloat64(&cfg.Execution.StartingCash, "PAPER_STARTING_CASH")
	setFloat64(&cfg.Execution.PublishSeconds, "PAPER_PORTFOLIO_PUBLISH_SECONDS")
	setInt(&cfg.Broker.AccountPollSeconds, "ACCOUNT_POLL_SECONDS")
	setStr(&cfg.Audit.LogPath, "AUDIT_LOG_PATH")
	setStringSlice(&cfg.Signal.Symbols, "TRADING_SYMBOLS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TITAN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TITAN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TITAN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TITAN_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TITAN_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TITAN_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TITAN_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TITAN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TITAN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TITAN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TITAN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TITAN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TITAN_POSTGRES_SSLMODE")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "TITAN_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TITAN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TITAN_S3_REGION")
	setStr(&cfg.S3.Bucket, "TITAN_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TITAN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TITAN_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TITAN_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TITAN_S3_FORCE_PATH_STYLE")

	// ── Gateway ──
	setStr(&cfg.Gateway.Provider, "TITAN_GATEWAY_PROVIDER")
	setStringSlice(&cfg.Gateway.Symbols, "TITAN_GATEWAY_SYMBOLS")
	setStr(&cfg.Gateway.WsURL, "TITAN_GATEWAY_WS_URL")
	setStr(&cfg.Gateway.ApiKey, "TITAN_GATEWAY_API_KEY")
	setStr(&cfg.Gateway.ApiSecret, "TITAN_GATEWAY_API_SECRET")
	setInt(&cfg.Gateway.TickIntervalMs, "TITAN_GATEWAY_TICK_INTERVAL_MS")
	setBool(&cfg.Gateway.PersistTicks, "TITAN_GATEWAY_PERSIST_TICKS")

	// ── Broker ──
	setStr(&cfg.Broker.BaseURL, "TITAN_BROKER_BASE_URL")
	setStr(&cfg.Broker.ApiKey, "ALPACA_API_KEY")
	setStr(&cfg.Broker.ApiSecret, "ALPACA_SECRET_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TITAN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TITAN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TITAN_NOTIFY_DISCORD_WEBHOOK_URL")

	// ── Top-level ──
	setStr(&cfg.Mode, "TITAN_MODE")
	setStr(&cfg.LogLevel, "TITAN_LOG_LEVEL")
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

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, strings.ToUpper(p))
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
