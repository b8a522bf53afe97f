package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, "paper", cfg.Execution.Mode)
	assert.Equal(t, 100_000.0, cfg.Execution.StartingCash)
	assert.Equal(t, 0.03, cfg.Risk.MaxDailyLossPct)
	assert.Equal(t, 0.01, cfg.Risk.RiskPerTradePct)
	assert.Equal(t, 5, cfg.Risk.MaxConsecutiveLosses)
	assert.Equal(t, 0.5, cfg.Risk.RollbackMinSharpe)
	assert.Equal(t, 0.50, cfg.Risk.RollbackMinAccuracy)
	assert.Equal(t, 10, cfg.Risk.PerfCheckInterval)
	assert.Equal(t, 30, cfg.Broker.AccountPollSeconds)
	assert.NoError(t, cfg.Validate())
}

func TestLoadTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "risk"
log_level = "debug"

[risk]
max_daily_loss_pct = 0.05

[execution]
starting_cash = 250000.0
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "risk", cfg.Mode)
	assert.Equal(t, 0.05, cfg.Risk.MaxDailyLossPct)
	assert.Equal(t, 250_000.0, cfg.Execution.StartingCash)
	assert.NoError(t, cfg.Validate())
}

func TestEnvOverridesAreContract(t *testing.T) {
	t.Setenv("EXECUTION_MODE", "live")
	t.Setenv("RISK_MAX_DAILY_LOSS", "0.02")
	t.Setenv("RISK_PER_TRADE", "0.005")
	t.Setenv("CIRCUIT_BREAKER_CONSECUTIVE_LOSSES", "7")
	t.Setenv("CIRCUIT_BREAKER_DRAWDOWN_PCT", "0.04")
	t.Setenv("ROLLBACK_MIN_SHARPE", "0.8")
	t.Setenv("ROLLBACK_MIN_ACCURACY", "0.6")
	t.Setenv("RISK_PERF_CHECK_INTERVAL", "25")
	t.Setenv("PAPER_STARTING_CASH", "50000")
	t.Setenv("PAPER_PORTFOLIO_PUBLISH_SECONDS", "5")
	t.Setenv("ACCOUNT_POLL_SECONDS", "10")
	t.Setenv("AUDIT_LOG_PATH", "/tmp/audit.jsonl")
	t.Setenv("TRADING_SYMBOLS", "spy, qqq")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "live", cfg.Execution.Mode)
	assert.Equal(t, 0.02, cfg.Risk.MaxDailyLossPct)
	assert.Equal(t, 0.005, cfg.Risk.RiskPerTradePct)
	assert.Equal(t, 7, cfg.Risk.MaxConsecutiveLosses)
	assert.Equal(t, 0.04, cfg.Broker.CircuitBreakerDrawdownPct)
	assert.Equal(t, 0.8, cfg.Risk.RollbackMinSharpe)
	assert.Equal(t, 0.6, cfg.Risk.RollbackMinAccuracy)
	assert.Equal(t, 25, cfg.Risk.PerfCheckInterval)
	assert.Equal(t, 50_000.0, cfg.Execution.StartingCash)
	assert.Equal(t, 5.0, cfg.Execution.PublishSeconds)
	assert.Equal(t, 10, cfg.Broker.AccountPollSeconds)
	assert.Equal(t, "/tmp/audit.jsonl", cfg.Audit.LogPath)
	assert.Equal(t, []string{"SPY", "QQQ"}, cfg.Signal.Symbols)
}

func TestValidateRejectsLiveModeWithoutCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Execution.Mode = "live"
	assert.Error(t, cfg.Validate())

	cfg.Broker.ApiKey = "key"
	cfg.Broker.ApiSecret = "secret"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "orbit"
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Execution.Mode = "dry-run"
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Risk.MaxDailyLossPct = 1.5
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Signal.SMAFastPeriod = 50
	cfg.Signal.SMASlowPeriod = 10
	assert.Error(t, cfg.Validate())
}
