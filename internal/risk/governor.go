package risk

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jacattac314/Titan-Finance/internal/audit"
	"github.com/jacattac314/Titan-Finance/internal/domain"
)

const (
	heartbeatInterval = 30 * time.Second
	reconnectDelay    = 5 * time.Second
)

// Pinger verifies bus liveness on the heartbeat cadence.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GovernorConfig holds the service-level knobs around the engine.
type GovernorConfig struct {
	// StartingEquity seeds the account state in paper mode, where no broker
	// poll exists to anchor it.
	StartingEquity float64
	// PerfCheckInterval is the number of processed signals between
	// model-health evaluations.
	PerfCheckInterval int
}

// Governor mediates between trade_signals and execution_requests. It owns the
// risk Engine, closes the feedback loop from execution_filled, and publishes
// operational commands on risk_commands.
type Governor struct {
	cfg     GovernorConfig
	bus     domain.SignalBus
	engine  *Engine
	pinger  Pinger
	auditor *audit.Logger
	logger  *slog.Logger

	signalsProcessed int
}

// NewGovernor creates a Governor. pinger and auditor may be nil.
func NewGovernor(cfg GovernorConfig, bus domain.SignalBus, engine *Engine, pinger Pinger, auditor *audit.Logger, logger *slog.Logger) *Governor {
	if cfg.PerfCheckInterval <= 0 {
		cfg.PerfCheckInterval = 10
	}
	return &Governor{
		cfg:     cfg,
		bus:     bus,
		engine:  engine,
		pinger:  pinger,
		auditor: auditor,
		logger:  logger.With(slog.String("component", "risk_governor")),
	}
}

// Engine exposes the underlying state machine, primarily for operator
// endpoints and tests.
func (g *Governor) Engine() *Engine { return g.engine }

// Run subscribes to trade_signals and execution_filled and processes events
// until the context is cancelled, re-subscribing with a bounded back-off on
// bus failure.
func (g *Governor) Run(ctx context.Context) error {
	g.logger.Info("risk governor started",
		slog.Float64("starting_equity", g.cfg.StartingEquity),
		slog.Int("perf_check_interval", g.cfg.PerfCheckInterval),
	)
	defer g.logger.Info("risk governor stopped")

	// Anchor the account state. In live mode the broker poll loop refreshes
	// it; in paper mode this seed is the session anchor.
	if g.cfg.StartingEquity > 0 {
		g.engine.UpdateAccountState(g.cfg.StartingEquity, 0)
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		signals, err := g.bus.Subscribe(ctx, domain.TopicTradeSignals)
		if err != nil {
			if waitErr := backoff(ctx, g.logger, "trade_signals subscribe failed", err); waitErr != nil {
				return waitErr
			}
			continue
		}
		fills, err := g.bus.Subscribe(ctx, domain.TopicExecutionFilled)
		if err != nil {
			if waitErr := backoff(ctx, g.logger, "execution_filled subscribe failed", err); waitErr != nil {
				return waitErr
			}
			continue
		}

		if err := g.consume(ctx, signals, fills, heartbeat.C); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		g.logger.Warn("subscription lost, reconnecting", slog.Duration("backoff", reconnectDelay))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func backoff(ctx context.Context, logger *slog.Logger, msg string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	logger.Error(msg, slog.String("error", err.Error()), slog.Duration("backoff", reconnectDelay))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(reconnectDelay):
		return nil
	}
}

func (g *Governor) consume(ctx context.Context, signals, fills <-chan []byte, heartbeat <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-heartbeat:
			if g.pinger != nil {
				if err := g.pinger.Ping(ctx); err != nil {
					g.logger.Warn("heartbeat ping failed", slog.String("error", err.Error()))
				}
			}

		case payload, ok := <-signals:
			if !ok {
				return nil
			}
			g.HandleSignal(ctx, payload)

		case payload, ok := <-fills:
			if !ok {
				return nil
			}
			g.HandleFill(ctx, payload)
		}
	}
}

// HandleFill closes the feedback loop: a fill's slippage is converted into a
// proxy trade return that feeds the consecutive-loss counter and the rolling
// model-health windows. The proxy stands in for realised round-trip P&L,
// which is only known once positions close.
func (g *Governor) HandleFill(ctx context.Context, payload []byte) {
	var fill domain.Fill
	if err := json.Unmarshal(payload, &fill); err != nil {
		g.logger.Warn("fill decode failed, dropping", slog.String("error", err.Error()))
		return
	}
	if fill.Price <= 0 {
		return
	}

	// Negative slippage proxy: paying up on entry reads as a cost.
	rawReturn := -fill.Slippage / fill.Price
	correct := rawReturn >= 0
	if fill.Side == domain.FillSideSell {
		correct = rawReturn <= 0
	}

	g.engine.RecordTradeResult(rawReturn)
	g.engine.RecordPrediction(correct, rawReturn)

	pnl := -fill.Slippage * float64(fill.Qty)
	g.engine.UpdateAccountState(g.engine.CurrentEquity()+pnl, g.engine.DailyPnL()+pnl)
}

// HandleSignal runs one trade signal through the governance pipeline and, if
// approved, publishes the sized execution request.
func (g *Governor) HandleSignal(ctx context.Context, payload []byte) {
	var sig domain.TradeSignal
	if err := json.Unmarshal(payload, &sig); err != nil {
		g.logger.Warn("signal decode failed, dropping", slog.String("error", err.Error()))
		return
	}

	log := g.logger.With(
		slog.String("model_id", sig.ModelID),
		slog.String("symbol", sig.Symbol),
		slog.String("signal", string(sig.Signal)),
	)

	// 1. Gate on kill switch and manual-approval mode.
	if !g.engine.ValidateSignal() {
		if g.engine.KillSwitchActive() {
			g.publishCommand(ctx, domain.RiskCommand{
				Command: domain.CommandLiquidateAll,
				Reason:  "kill_switch_active",
			})
		}
		return
	}

	// 2. Re-evaluate the kill switch against current account state.
	if g.engine.CheckKillSwitch() {
		log.Warn("kill switch tripped, publishing liquidation command")
		g.publishCommand(ctx, domain.RiskCommand{
			Command: domain.CommandLiquidateAll,
			Reason:  "drawdown_or_consecutive_loss_limit_breached",
		})
		if g.auditor != nil {
			drawdown := 0.0
			if g.engine.StartingEquity() > 0 {
				drawdown = g.engine.DailyPnL() / g.engine.StartingEquity()
			}
			g.auditor.LogKillSwitch(ctx, "risk_governor", drawdown, g.engine.CurrentEquity())
		}
		return
	}

	// 3. Price gate.
	if sig.Price <= 0 {
		log.Error("signal missing valid price, dropping")
		return
	}

	// HOLD carries no order intent.
	if sig.Signal == domain.SignalHold {
		return
	}

	// 4. Fixed-Fractional sizing against the default 2% stop.
	stopLoss := sig.Price * 1.02
	side := domain.OrderSideSell
	if sig.Signal == domain.SignalBuy {
		stopLoss = sig.Price * 0.98
		side = domain.OrderSideBuy
	}
	qty := g.engine.CalculatePositionSize(sig.Price, stopLoss)
	if qty <= 0 {
		log.Info("position size is zero, skipping")
		return
	}

	// 5. Emit the execution request.
	req := domain.ExecutionRequest{
		ModelID:     sig.ModelID,
		Symbol:      sig.Symbol,
		Side:        side,
		Qty:         qty,
		Type:        "market",
		Price:       sig.Price,
		Confidence:  sig.Confidence,
		Explanation: sig.Explanation,
		Timestamp:   sig.Timestamp,
	}
	body, err := json.Marshal(req)
	if err != nil {
		log.Error("execution request marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := g.bus.Publish(ctx, domain.TopicExecutionRequests, body); err != nil {
		log.Error("execution request publish failed", slog.String("error", err.Error()))
		return
	}
	log.Info("signal approved",
		slog.String("side", string(side)),
		slog.Int64("qty", qty),
	)

	// 6. Periodic model-health evaluation.
	g.signalsProcessed++
	if g.signalsProcessed%g.cfg.PerfCheckInterval == 0 {
		g.checkModelHealth(ctx)
	}
}

func (g *Governor) checkModelHealth(ctx context.Context) {
	triggered, reason := g.engine.CheckModelPerformance()
	if !triggered {
		return
	}

	cmd := domain.RiskCommand{
		Command: domain.CommandActivateManualApproval,
		Reason:  "model_performance_below_threshold",
	}
	if sharpe, ok := g.engine.RollingSharpe(); ok {
		cmd.RollingSharpe = &sharpe
	}
	if accuracy, ok := g.engine.RollingAccuracy(); ok {
		cmd.RollingAccuracy = &accuracy
	}
	g.publishCommand(ctx, cmd)

	if g.auditor != nil {
		metric := 0.0
		if cmd.RollingAccuracy != nil {
			metric = *cmd.RollingAccuracy
		}
		g.auditor.LogManualApprovalMode(ctx, "model_rollback", reason, "rolling_accuracy", metric, 0)
	}
	g.logger.Warn("model rollback published", slog.String("reason", reason))
}

// ResetKillSwitch clears the engine's kill switch on operator request and
// broadcasts the reset so the execution engine resumes accepting orders.
func (g *Governor) ResetKillSwitch(ctx context.Context) {
	g.engine.ResetKillSwitch()
	g.publishCommand(ctx, domain.RiskCommand{
		Command: domain.CommandResetKillSwitch,
		Reason:  "operator_reset",
	})
}

func (g *Governor) publishCommand(ctx context.Context, cmd domain.RiskCommand) {
	body, err := json.Marshal(cmd)
	if err != nil {
		g.logger.Error("risk command marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := g.bus.Publish(ctx, domain.TopicRiskCommands, body); err != nil {
		g.logger.Error("risk command publish failed",
			slog.String("command", string(cmd.Command)),
			slog.String("error", err.Error()),
		)
	}
}
