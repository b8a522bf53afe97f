// Package config defines the top-level configuration for the Titan trading
// arena and provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by environment variables. The risk and
// execution env names (EXECUTION_MODE, RISK_MAX_DAILY_LOSS, ...) are part of
// the operational contract and are honoured verbatim.
type Config struct {
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	S3        S3Config        `toml:"s3"`
	Gateway   GatewayConfig   `toml:"gateway"`
	Signal    SignalConfig    `toml:"signal"`
	Risk      RiskConfig      `toml:"risk"`
	Execution ExecutionConfig `toml:"execution"`
	Broker    BrokerConfig    `toml:"broker"`
	Audit     AuditConfig     `toml:"audit"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// RedisConfig holds Redis connection parameters for the message bus and
// price cache.
type RedisConfig struct {
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int    `toml:"stream_max_len"`
}

// PostgresConfig holds connection parameters for the optional fill/tick
// persistence layer. Persistence is disabled when DSN and Host are both empty.
type PostgresConfig struct {
	DSN          string `toml:"dsn"`
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Database     string `toml:"database"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	SSLMode      string `toml:"ssl_mode"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
}

// Enabled reports whether a Postgres connection should be attempted.
func (c PostgresConfig) Enabled() bool {
	return c.DSN != "" || c.Host != ""
}

// S3Config holds S3-compatible object storage parameters for the audit
// archiver.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// GatewayConfig holds market-data gateway parameters.
type GatewayConfig struct {
	// Provider selects the tick source: "synthetic" or "websocket".
	Provider string   `toml:"provider"`
	Symbols  []string `toml:"symbols"`
	// WsURL, ApiKey, ApiSecret configure the websocket provider.
	WsURL     string `toml:"ws_url"`
	ApiKey    string `toml:"api_key"`
	ApiSecret string `toml:"api_secret"`
	// TickIntervalMs throttles the synthetic generator (per watchlist sweep).
	TickIntervalMs int `toml:"tick_interval_ms"`
	// PersistTicks writes ticks to the Postgres tick store when enabled.
	PersistTicks bool `toml:"persist_ticks"`
}

// SignalConfig holds signal-engine parameters.
type SignalConfig struct {
	Symbols []string `toml:"symbols"`
	// Strategies lists the strategy families to instantiate per symbol.
	// Known names: sma_crossover, rsi_reversion, gradient_boost, lstm, tft.
	Strategies []string `toml:"strategies"`

	SMAFastPeriod int     `toml:"sma_fast_period"`
	SMASlowPeriod int     `toml:"sma_slow_period"`
	RSIPeriod     int     `toml:"rsi_period"`
	RSIOversold   float64 `toml:"rsi_oversold"`
	RSIOverbought float64 `toml:"rsi_overbought"`
	// ConfidenceThreshold gates the gradient-boosted classifier.
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	// Lookback is the engineered-feature window for the deep predictors.
	Lookback int `toml:"lookback"`
}

// RiskConfig holds the risk governor thresholds.
type RiskConfig struct {
	MaxDailyLossPct      float64 `toml:"max_daily_loss_pct"`
	RiskPerTradePct      float64 `toml:"risk_per_trade_pct"`
	MaxConsecutiveLosses int     `toml:"max_consecutive_losses"`
	RollbackMinSharpe    float64 `toml:"rollback_min_sharpe"`
	RollbackMinAccuracy  float64 `toml:"rollback_min_accuracy"`
	// PerfCheckInterval is the number of processed signals between
	// model-health evaluations.
	PerfCheckInterval int `toml:"perf_check_interval"`
}

// ExecutionConfig holds execution-engine parameters.
type ExecutionConfig struct {
	// Mode is "paper" or "live".
	Mode                string  `toml:"mode"`
	StartingCash        float64 `toml:"starting_cash"`
	PublishSeconds      float64 `toml:"publish_seconds"`
	MaxOrderValue       float64 `toml:"max_order_value"`
	MaxPositionValue    float64 `toml:"max_position_value"`
	LatencyMinMs        int     `toml:"latency_min_ms"`
	LatencyMaxMs        int     `toml:"latency_max_ms"`
	SlippageBaseBps     int     `toml:"slippage_base_bps"`
	MaxModels           int     `toml:"max_models"`
	PersistFills        bool    `toml:"persist_fills"`
}

// BrokerConfig holds live-brokerage connector parameters.
type BrokerConfig struct {
	BaseURL   string `toml:"base_url"`
	ApiKey    string `toml:"api_key"`
	ApiSecret string `toml:"api_secret"`
	// AccountPollSeconds is the cadence of the circuit-breaker account poll.
	AccountPollSeconds int `toml:"account_poll_seconds"`
	// CircuitBreakerDrawdownPct trips the kill switch when the polled daily
	// return falls at or below its negation.
	CircuitBreakerDrawdownPct float64 `toml:"circuit_breaker_drawdown_pct"`
}

// AuditConfig holds audit-trail parameters.
type AuditConfig struct {
	LogPath string `toml:"log_path"`
	// ArchivePrefix is the S3 key prefix for sealed audit segments.
	ArchivePrefix string `toml:"archive_prefix"`
}

// NotifyConfig holds operator alert channel credentials. A channel with no
// credentials is simply not registered.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
}

// Defaults returns a Config populated with the documented default values.
func Defaults() Config {
	return Config{
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			Port:         5432,
			Database:     "titan",
			User:         "titan",
			SSLMode:      "disable",
			PoolMaxConns: 10,
			PoolMinConns: 2,
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "titan-audit",
			UseSSL:         true,
			ForcePathStyle: false,
		},
		Gateway: GatewayConfig{
			Provider:       "synthetic",
			Symbols:        []string{"SPY", "QQQ", "AAPL", "MSFT", "TSLA", "NVDA", "AMD", "AMZN"},
			TickIntervalMs: 100,
		},
		Signal: SignalConfig{
			Symbols:             []string{"SPY"},
			Strategies:          []string{"sma_crossover", "rsi_reversion", "gradient_boost", "lstm", "tft"},
			SMAFastPeriod:       10,
			SMASlowPeriod:       30,
			RSIPeriod:           14,
			RSIOversold:         30,
			RSIOverbought:       70,
			ConfidenceThreshold: 0.6,
			Lookback:            60,
		},
		Risk: RiskConfig{
			MaxDailyLossPct:      0.03,
			RiskPerTradePct:      0.01,
			MaxConsecutiveLosses: 5,
			RollbackMinSharpe:    0.5,
			RollbackMinAccuracy:  0.50,
			PerfCheckInterval:    10,
		},
		Execution: ExecutionConfig{
			Mode:             "paper",
			StartingCash:     100_000,
			PublishSeconds:   2,
			MaxOrderValue:    50_000,
			MaxPositionValue: 25_000,
			LatencyMinMs:     50,
			LatencyMaxMs:     200,
			SlippageBaseBps:  5,
			MaxModels:        10,
		},
		Broker: BrokerConfig{
			BaseURL:                   "https://paper-api.alpaca.markets",
			AccountPollSeconds:        30,
			CircuitBreakerDrawdownPct: 0.03,
		},
		Audit: AuditConfig{
			LogPath:       "./logs/trade_audit.jsonl",
			ArchivePrefix: "audit",
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"gateway":   true,
	"signal":    true,
	"risk":      true,
	"execution": true,
	"full":      true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var problems []string

	if !validModes[strings.ToLower(c.Mode)] {
		problems = append(problems, fmt.Sprintf("mode %q is not one of gateway|signal|risk|execution|full", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		problems = append(problems, fmt.Sprintf("log_level %q is not one of debug|info|warn|error", c.LogLevel))
	}
	if c.Redis.Addr == "" {
		problems = append(problems, "redis.addr is required")
	}

	switch strings.ToLower(c.Execution.Mode) {
	case "paper":
	case "live":
		if c.Broker.ApiKey == "" || c.Broker.ApiSecret == "" {
			problems = append(problems, "broker.api_key and broker.api_secret are required in live mode")
		}
		if c.Broker.BaseURL == "" {
			problems = append(problems, "broker.base_url is required in live mode")
		}
	default:
		problems = append(problems, fmt.Sprintf("execution.mode %q is not one of paper|live", c.Execution.Mode))
	}

	if c.Execution.StartingCash <= 0 {
		problems = append(problems, "execution.starting_cash must be positive")
	}
	if c.Execution.LatencyMinMs < 0 || c.Execution.LatencyMaxMs < c.Execution.LatencyMinMs {
		problems = append(problems, "execution.latency window is invalid")
	}
	if c.Risk.MaxDailyLossPct <= 0 || c.Risk.MaxDailyLossPct >= 1 {
		problems = append(problems, "risk.max_daily_loss_pct must be in (0, 1)")
	}
	if c.Risk.RiskPerTradePct <= 0 || c.Risk.RiskPerTradePct >= 1 {
		problems = append(problems, "risk.risk_per_trade_pct must be in (0, 1)")
	}
	if c.Risk.MaxConsecutiveLosses <= 0 {
		problems = append(problems, "risk.max_consecutive_losses must be positive")
	}
	if c.Risk.PerfCheckInterval <= 0 {
		problems = append(problems, "risk.perf_check_interval must be positive")
	}
	if c.Signal.SMAFastPeriod >= c.Signal.SMASlowPeriod {
		problems = append(problems, "signal.sma_fast_period must be less than sma_slow_period")
	}
	if c.S3.Enabled && (c.S3.Bucket == "" || c.S3.Region == "") {
		problems = append(problems, "s3.bucket and s3.region are required when s3.enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
