// Package risk implements the governance layer between trade signals and
// execution requests: kill switch, Fixed-Fractional position sizing, and the
// model-health rollback state machine.
package risk

import (
	"log/slog"
	"math"
)

const (
	// windowSize bounds the rolling prediction/return windows.
	windowSize = 20
	// minSamples is the floor below which rolling metrics are undefined.
	minSamples = 5
	// annualisation converts per-trade return statistics to an annualised
	// Sharpe assuming daily samples.
	annualisation = 252
)

// Config holds the engine thresholds.
type Config struct {
	MaxDailyLossPct      float64
	RiskPerTradePct      float64
	MaxConsecutiveLosses int
	RollbackMinSharpe    float64
	RollbackMinAccuracy  float64
}

// Engine is the risk state machine. It is mutated only by the governor's
// signal and fill handlers, so it needs no internal locking.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	startingEquity    float64
	currentEquity     float64
	dailyPnL          float64
	consecutiveLosses int

	recentPredictions []bool
	recentReturns     []float64

	killSwitchActive   bool
	manualApprovalMode bool
}

// NewEngine creates an Engine with the given thresholds.
func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if cfg.MaxDailyLossPct <= 0 {
		cfg.MaxDailyLossPct = 0.03
	}
	if cfg.RiskPerTradePct <= 0 {
		cfg.RiskPerTradePct = 0.01
	}
	if cfg.MaxConsecutiveLosses <= 0 {
		cfg.MaxConsecutiveLosses = 5
	}
	if cfg.RollbackMinSharpe == 0 {
		cfg.RollbackMinSharpe = 0.5
	}
	if cfg.RollbackMinAccuracy == 0 {
		cfg.RollbackMinAccuracy = 0.50
	}
	return &Engine{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "risk_engine")),
	}
}

// ---------------------------------------------------------------------------
// Account state
// ---------------------------------------------------------------------------

// UpdateAccountState refreshes equity and daily P&L from broker or portfolio
// data. The first call anchors startingEquity (approximating start-of-day
// equity when the engine restarts mid-session); it stays pinned until an
// explicit ResetKillSwitch.
func (e *Engine) UpdateAccountState(equity, dailyPnL float64) {
	e.currentEquity = equity
	e.dailyPnL = dailyPnL

	if e.startingEquity == 0 {
		e.startingEquity = equity - dailyPnL
	}
}

// CurrentEquity returns the last known equity.
func (e *Engine) CurrentEquity() float64 { return e.currentEquity }

// DailyPnL returns the last known daily P&L.
func (e *Engine) DailyPnL() float64 { return e.dailyPnL }

// StartingEquity returns the anchored start-of-session equity.
func (e *Engine) StartingEquity() float64 { return e.startingEquity }

// ---------------------------------------------------------------------------
// Kill switch (circuit breaker)
// ---------------------------------------------------------------------------

// CheckKillSwitch evaluates whether trading should be hard-halted and
// activates the switch when either the daily drawdown reaches the limit or
// the consecutive-loss count does. The transition is one-way; only
// ResetKillSwitch clears it.
func (e *Engine) CheckKillSwitch() bool {
	if e.startingEquity <= 0 {
		return false
	}

	drawdownPct := e.dailyPnL / e.startingEquity
	if drawdownPct <= -e.cfg.MaxDailyLossPct {
		e.logger.Error("kill switch: daily drawdown limit breached",
			slog.Float64("drawdown_pct", drawdownPct),
			slog.Float64("limit", -e.cfg.MaxDailyLossPct),
		)
		e.killSwitchActive = true
		return true
	}

	if e.consecutiveLosses >= e.cfg.MaxConsecutiveLosses {
		e.logger.Error("kill switch: consecutive loss limit breached",
			slog.Int("losses", e.consecutiveLosses),
			slog.Int("limit", e.cfg.MaxConsecutiveLosses),
		)
		e.killSwitchActive = true
		return true
	}

	return false
}

// KillSwitchActive reports whether the switch is set.
func (e *Engine) KillSwitchActive() bool { return e.killSwitchActive }

// RecordTradeResult records the outcome of a closed trade for the
// consecutive-loss counter: a loss increments, anything else resets.
func (e *Engine) RecordTradeResult(pnl float64) {
	if pnl < 0 {
		e.consecutiveLosses++
	} else {
		e.consecutiveLosses = 0
	}
}

// ConsecutiveLosses returns the current loss streak.
func (e *Engine) ConsecutiveLosses() int { return e.consecutiveLosses }

// ResetKillSwitch clears the switch after operator review. Starting equity is
// re-anchored to current equity and the daily counters reset.
func (e *Engine) ResetKillSwitch() {
	e.killSwitchActive = false
	e.consecutiveLosses = 0
	e.startingEquity = e.currentEquity
	e.dailyPnL = 0
	e.logger.Warn("kill switch reset, starting equity re-anchored",
		slog.Float64("starting_equity", e.startingEquity),
	)
}

// ---------------------------------------------------------------------------
// Position sizing
// ---------------------------------------------------------------------------

// CalculatePositionSize applies the Fixed-Fractional model:
//
//	qty = floor(equity × riskPerTradePct / |entry − stop|)
//
// It returns 0 when the kill switch is active or the stop distance is zero.
func (e *Engine) CalculatePositionSize(entryPrice, stopLoss float64) int64 {
	if e.killSwitchActive {
		return 0
	}

	riskAmount := e.currentEquity * e.cfg.RiskPerTradePct
	riskPerShare := math.Abs(entryPrice - stopLoss)
	if riskPerShare == 0 {
		e.logger.Error("invalid stop loss equals entry price, sizing 0")
		return 0
	}

	qty := int64(math.Floor(riskAmount / riskPerShare))
	if qty < 0 {
		return 0
	}
	return qty
}

// ---------------------------------------------------------------------------
// Signal validation
// ---------------------------------------------------------------------------

// ValidateSignal is the pre-execution gate: it rejects while the kill switch
// or manual-approval mode is active.
func (e *Engine) ValidateSignal() bool {
	if e.killSwitchActive {
		e.logger.Warn("signal rejected, kill switch active")
		return false
	}
	if e.manualApprovalMode {
		e.logger.Info("signal queued, manual approval mode active")
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Model performance monitoring → manual-approval rollback
// ---------------------------------------------------------------------------

// RecordPrediction logs one prediction outcome into the bounded rolling
// windows.
func (e *Engine) RecordPrediction(correct bool, tradeReturnPct float64) {
	e.recentPredictions = append(e.recentPredictions, correct)
	e.recentReturns = append(e.recentReturns, tradeReturnPct)

	if len(e.recentPredictions) > windowSize {
		e.recentPredictions = e.recentPredictions[1:]
	}
	if len(e.recentReturns) > windowSize {
		e.recentReturns = e.recentReturns[1:]
	}
}

// RollingAccuracy returns the directional accuracy over the window. ok is
// false below the minimum sample count.
func (e *Engine) RollingAccuracy() (float64, bool) {
	if len(e.recentPredictions) < minSamples {
		return 0, false
	}
	correct := 0
	for _, c := range e.recentPredictions {
		if c {
			correct++
		}
	}
	return float64(correct) / float64(len(e.recentPredictions)), true
}

// RollingSharpe returns the annualised Sharpe ratio over the window. ok is
// false below the minimum sample count or when volatility is zero.
func (e *Engine) RollingSharpe() (float64, bool) {
	n := len(e.recentReturns)
	if n < minSamples {
		return 0, false
	}

	var sum float64
	for _, r := range e.recentReturns {
		sum += r
	}
	mean := sum / float64(n)

	var variance float64
	for _, r := range e.recentReturns {
		d := r - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(n))
	if std == 0 {
		return 0, false
	}

	return (mean / std) * math.Sqrt(annualisation), true
}

// CheckModelPerformance evaluates the rolling metrics and enters
// manual-approval mode when Sharpe or accuracy falls below the configured
// floor. It returns true only on the transition; once in manual mode the
// check does not re-fire.
func (e *Engine) CheckModelPerformance() (bool, string) {
	if e.manualApprovalMode {
		return false, ""
	}

	sharpe, sharpeOK := e.RollingSharpe()
	accuracy, accOK := e.RollingAccuracy()

	triggered := false
	reason := ""

	if sharpeOK && sharpe < e.cfg.RollbackMinSharpe {
		reason = "rolling sharpe below threshold"
		triggered = true
	}
	if accOK && accuracy < e.cfg.RollbackMinAccuracy {
		if reason != "" {
			reason += "; "
		}
		reason += "rolling accuracy below threshold"
		triggered = true
	}

	if triggered {
		e.manualApprovalMode = true
		e.logger.Warn("model rollback, switching to manual approval mode",
			slog.String("reason", reason),
			slog.Float64("sharpe", sharpe),
			slog.Float64("accuracy", accuracy),
		)
	}

	return triggered, reason
}

// ManualApprovalActive reports whether auto-execution is suspended.
func (e *Engine) ManualApprovalActive() bool { return e.manualApprovalMode }

// ResetManualApprovalMode re-enables auto-execution after manual review.
func (e *Engine) ResetManualApprovalMode() {
	e.manualApprovalMode = false
	e.logger.Info("manual approval mode reset, auto-execution resumed")
}
