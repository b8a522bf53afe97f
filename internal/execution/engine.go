package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jacattac314/Titan-Finance/internal/audit"
	"github.com/jacattac314/Titan-Finance/internal/domain"
)

const (
	heartbeatInterval = 30 * time.Second
	reconnectDelay    = 5 * time.Second
	// fillStream is the durable Redis stream mirroring every published fill.
	fillStream = "stream:fills"
)

// Pinger verifies bus liveness on the heartbeat cadence.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EngineConfig holds the execution service parameters.
type EngineConfig struct {
	Mode            domain.ExecutionMode
	PublishInterval time.Duration
}

// Engine consumes execution_requests and risk_commands, simulates fills in
// paper mode or routes live orders through the brokerage connector, keeps
// the per-strategy ledgers, and publishes fills plus periodic leaderboard
// snapshots.
type Engine struct {
	cfg       EngineConfig
	bus       domain.SignalBus
	pinger    Pinger
	auditor   *audit.Logger
	manager   *PortfolioManager
	validator *OrderValidator
	latency   *LatencySimulator
	slippage  *SlippageModel
	broker    *AlpacaConnector
	fillStore domain.FillStore
	prices    domain.PriceCache
	logger    *slog.Logger

	// lastPrices is the in-process symbol price cache; only the market_data
	// handler mutates it.
	lastPrices map[string]float64

	killSwitchActive   bool
	manualApprovalMode bool
}

// NewEngine creates an Engine. pinger, auditor, broker, fillStore, and
// prices may be nil; broker must be non-nil in live mode (enforced at
// wiring).
func NewEngine(
	cfg EngineConfig,
	bus domain.SignalBus,
	manager *PortfolioManager,
	validator *OrderValidator,
	latency *LatencySimulator,
	slippage *SlippageModel,
	broker *AlpacaConnector,
	fillStore domain.FillStore,
	prices domain.PriceCache,
	pinger Pinger,
	auditor *audit.Logger,
	logger *slog.Logger,
) *Engine {
	if cfg.Mode == "" {
		cfg.Mode = domain.ModePaper
	}
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = 2 * time.Second
	}
	return &Engine{
		cfg:        cfg,
		bus:        bus,
		pinger:     pinger,
		auditor:    auditor,
		manager:    manager,
		validator:  validator,
		latency:    latency,
		slippage:   slippage,
		broker:     broker,
		fillStore:  fillStore,
		prices:     prices,
		logger:     logger.With(slog.String("component", "execution_engine")),
		lastPrices: make(map[string]float64),
	}
}

// Manager exposes the portfolio manager for operator endpoints and tests.
func (e *Engine) Manager() *PortfolioManager { return e.manager }

// Run subscribes and processes events until the context is cancelled,
// re-subscribing with a bounded back-off on bus failure.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("execution engine started", slog.String("mode", string(e.cfg.Mode)))
	defer e.logger.Info("execution engine stopped")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	leaderboard := time.NewTicker(e.cfg.PublishInterval)
	defer leaderboard.Stop()

	for {
		requests, err := e.bus.Subscribe(ctx, domain.TopicExecutionRequests)
		if err != nil {
			if waitErr := e.backoff(ctx, "execution_requests subscribe failed", err); waitErr != nil {
				return waitErr
			}
			continue
		}
		commands, err := e.bus.Subscribe(ctx, domain.TopicRiskCommands)
		if err != nil {
			if waitErr := e.backoff(ctx, "risk_commands subscribe failed", err); waitErr != nil {
				return waitErr
			}
			continue
		}
		ticks, err := e.bus.Subscribe(ctx, domain.TopicMarketData)
		if err != nil {
			if waitErr := e.backoff(ctx, "market_data subscribe failed", err); waitErr != nil {
				return waitErr
			}
			continue
		}

		if err := e.consume(ctx, requests, commands, ticks, heartbeat.C, leaderboard.C); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		e.logger.Warn("subscription lost, reconnecting", slog.Duration("backoff", reconnectDelay))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (e *Engine) backoff(ctx context.Context, msg string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	e.logger.Error(msg, slog.String("error", err.Error()), slog.Duration("backoff", reconnectDelay))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(reconnectDelay):
		return nil
	}
}

func (e *Engine) consume(ctx context.Context, requests, commands, ticks <-chan []byte, heartbeat, leaderboard <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-heartbeat:
			if e.pinger != nil {
				if err := e.pinger.Ping(ctx); err != nil {
					e.logger.Warn("heartbeat ping failed", slog.String("error", err.Error()))
				}
			}

		case <-leaderboard:
			e.publishLeaderboard(ctx)

		case payload, ok := <-ticks:
			if !ok {
				return nil
			}
			e.handleMarketData(payload)

		case payload, ok := <-commands:
			if !ok {
				return nil
			}
			e.HandleRiskCommand(ctx, payload)

		case payload, ok := <-requests:
			if !ok {
				return nil
			}
			e.handleRequest(ctx, payload)
		}
	}
}

// handleMarketData refreshes the in-process price cache from trade ticks.
func (e *Engine) handleMarketData(payload []byte) {
	var tick domain.Tick
	if err := json.Unmarshal(payload, &tick); err != nil {
		return
	}
	if tick.Type == domain.TickTypeTrade && tick.Valid() {
		e.lastPrices[tick.Symbol] = tick.Price
	}
}

// HandleRiskCommand applies a risk_commands message to the engine's blocking
// flags (and the broker's, in live mode). Paper-mode liquidation blocks
// further orders; force-closing open positions is an operator decision and
// is not performed here.
func (e *Engine) HandleRiskCommand(ctx context.Context, payload []byte) {
	var cmd domain.RiskCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		e.logger.Warn("risk command decode failed, dropping", slog.String("error", err.Error()))
		return
	}

	switch cmd.Command {
	case domain.CommandLiquidateAll:
		e.killSwitchActive = true
		e.logger.Error("liquidation commanded, order flow halted", slog.String("reason", cmd.Reason))
		if e.broker != nil {
			e.broker.ActivateKillSwitch()
			if err := e.broker.LiquidateAll(ctx); err != nil {
				e.logger.Error("broker liquidation failed", slog.String("error", err.Error()))
			}
		}

	case domain.CommandActivateManualApproval:
		e.manualApprovalMode = true
		e.logger.Warn("manual approval commanded, order flow suspended", slog.String("reason", cmd.Reason))
		if e.broker != nil {
			e.broker.ActivateManualApprovalMode()
		}

	case domain.CommandResetKillSwitch:
		e.killSwitchActive = false
		e.manualApprovalMode = false
		e.logger.Warn("kill switch reset, order flow resumed", slog.String("reason", cmd.Reason))
		if e.broker != nil {
			e.broker.DeactivateKillSwitch()
			e.broker.DeactivateManualApprovalMode()
		}

	default:
		e.logger.Warn("unknown risk command, ignoring", slog.String("command", string(cmd.Command)))
	}
}

// Blocked reports whether order flow is currently halted.
func (e *Engine) Blocked() bool {
	return e.killSwitchActive || e.manualApprovalMode
}

// handleRequest processes one execution_requests payload end to end.
func (e *Engine) handleRequest(ctx context.Context, payload []byte) {
	var req domain.ExecutionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		e.logger.Warn("request decode failed, dropping", slog.String("error", err.Error()))
		return
	}

	var (
		fill *domain.Fill
		err  error
	)
	if e.cfg.Mode == domain.ModeLive {
		fill, err = e.executeLive(ctx, req)
	} else {
		fill, err = e.SimulateFill(ctx, req)
	}
	if err != nil {
		e.logger.Warn("request rejected",
			slog.String("model_id", req.ModelID),
			slog.String("symbol", req.Symbol),
			slog.String("error", err.Error()),
		)
		return
	}
	if fill == nil {
		return
	}

	e.publishFill(ctx, *fill)
}

// SimulateFill runs the paper execution pipeline: schema gate, block gate,
// price and quantity resolution, validation, simulated latency, slippage,
// and the ledger update. It returns the fill on success.
func (e *Engine) SimulateFill(ctx context.Context, req domain.ExecutionRequest) (*domain.Fill, error) {
	// Schema gate: a raw trade_signals payload has no side/qty and dies
	// here, which is what keeps the risk governor unbypassable. A SELL may
	// omit qty, which closes the whole position.
	if req.Side != domain.OrderSideBuy && req.Side != domain.OrderSideSell {
		return nil, fmt.Errorf("execution: %w: request missing side", domain.ErrInvalidOrder)
	}
	if req.Symbol == "" || (req.Side == domain.OrderSideBuy && req.Qty <= 0) {
		return nil, fmt.Errorf("execution: %w: request missing qty", domain.ErrInvalidOrder)
	}

	if e.Blocked() {
		return nil, fmt.Errorf("execution: %w", domain.ErrTradingHalted)
	}

	// Resolve the decision price: request price first, then the tick cache,
	// then the shared price cache.
	price := req.Price
	if price <= 0 {
		price = e.lastPrices[req.Symbol]
	}
	if price <= 0 && e.prices != nil {
		if cached, err := e.prices.LastPrice(ctx, req.Symbol); err == nil {
			price = cached
		}
	}
	if price <= 0 {
		return nil, fmt.Errorf("execution: %w: no price for %s", domain.ErrInvalidOrder, req.Symbol)
	}

	portfolio := e.manager.GetOrCreate(req.ModelID, req.ModelID)
	if portfolio == nil {
		return nil, fmt.Errorf("execution: %w: model cap reached", domain.ErrInvalidOrder)
	}

	side := domain.FillSideBuy
	qty := req.Qty
	if req.Side == domain.OrderSideSell {
		side = domain.FillSideSell
		pos, ok := portfolio.Positions[req.Symbol]
		if !ok || pos.Qty <= 0 {
			return nil, fmt.Errorf("execution: %w: %s", domain.ErrNoPosition, req.Symbol)
		}
		// The ledger is long-only: a sell covers at most the open position,
		// and an unsized sell closes it entirely.
		if qty <= 0 || qty > pos.Qty {
			qty = pos.Qty
		}
	}

	if err := e.validator.Validate(portfolio, req.Symbol, price, qty, side); err != nil {
		return nil, err
	}

	// Simulated exchange round-trip. The suspension is cooperative; other
	// engine activities interleave here.
	if err := e.latency.Delay(ctx); err != nil {
		return nil, err
	}

	executed := e.slippage.ExecutedPrice(price, side, qty)

	orderID := uuid.New().String()
	fill := &domain.Fill{
		ID:        uuid.New().String(),
		OrderID:   orderID,
		ModelID:   req.ModelID,
		Symbol:    req.Symbol,
		Side:      side,
		Qty:       qty,
		Price:     executed,
		Timestamp: time.Now().UTC(),
		Status:    domain.FillStatusFilled,
		Mode:      domain.ModePaper,
		Slippage:  executed - price,
		Explanation: req.Explanation,
	}

	e.manager.RegisterOrder(orderID, req.ModelID)
	if _, routed := e.manager.OnExecutionFill(*fill); !routed {
		return nil, fmt.Errorf("execution: fill for %s not routable", req.ModelID)
	}

	if e.auditor != nil {
		e.auditor.LogOrder(ctx, req, orderID, domain.FillStatusFilled, domain.ModePaper, "v1.0")
	}
	return fill, nil
}

// executeLive routes the request through the brokerage connector. Broker
// submission failures are logged by the caller and do not trip the kill
// switch.
func (e *Engine) executeLive(ctx context.Context, req domain.ExecutionRequest) (*domain.Fill, error) {
	if !req.Valid() {
		return nil, fmt.Errorf("execution: %w: request missing side or qty", domain.ErrInvalidOrder)
	}
	if e.broker == nil {
		return nil, errors.New("execution: live mode without broker")
	}
	if e.Blocked() {
		return nil, fmt.Errorf("execution: %w", domain.ErrTradingHalted)
	}

	// Resolve the reference price before submitting; a fill without a
	// positive price would violate the execution_filled schema.
	price := req.Price
	if price <= 0 {
		price = e.lastPrices[req.Symbol]
	}
	if price <= 0 && e.prices != nil {
		if cached, err := e.prices.LastPrice(ctx, req.Symbol); err == nil {
			price = cached
		}
	}
	if price <= 0 {
		return nil, fmt.Errorf("execution: %w: no price for %s", domain.ErrInvalidOrder, req.Symbol)
	}

	orderID, err := e.broker.SubmitMarketOrder(ctx, req.Symbol, req.Qty, req.Side)
	if err != nil {
		return nil, err
	}

	side := domain.FillSideBuy
	if req.Side == domain.OrderSideSell {
		side = domain.FillSideSell
	}

	fill := &domain.Fill{
		ID:          uuid.New().String(),
		OrderID:     orderID,
		ModelID:     req.ModelID,
		Symbol:      req.Symbol,
		Side:        side,
		Qty:         req.Qty,
		Price:       price,
		Timestamp:   time.Now().UTC(),
		Status:      domain.FillStatusFilled,
		Mode:        domain.ModeLive,
		Explanation: req.Explanation,
	}

	e.manager.RegisterOrder(orderID, req.ModelID)
	e.manager.GetOrCreate(req.ModelID, req.ModelID)
	e.manager.OnExecutionFill(*fill)

	if e.auditor != nil {
		e.auditor.LogOrder(ctx, req, orderID, domain.FillStatusFilled, domain.ModeLive, "v1.0")
	}
	return fill, nil
}

// publishFill broadcasts the fill, mirrors it to the durable stream, audits
// it, and persists it when a fill store is wired. Every failure past the
// publish is non-fatal.
func (e *Engine) publishFill(ctx context.Context, fill domain.Fill) {
	payload, err := json.Marshal(fill)
	if err != nil {
		e.logger.Error("fill marshal failed", slog.String("error", err.Error()))
		return
	}

	if err := e.bus.Publish(ctx, domain.TopicExecutionFilled, payload); err != nil {
		e.logger.Error("fill publish failed", slog.String("error", err.Error()))
	}
	if err := e.bus.StreamAppend(ctx, fillStream, payload); err != nil {
		e.logger.Warn("fill stream append failed", slog.String("error", err.Error()))
	}

	if e.auditor != nil {
		e.auditor.LogFill(ctx, fill, "v1.0")
	}
	if e.fillStore != nil {
		if err := e.fillStore.Insert(ctx, fill); err != nil {
			e.logger.Warn("fill persist failed", slog.String("error", err.Error()))
		}
	}

	e.logger.Info("fill executed",
		slog.String("model_id", fill.ModelID),
		slog.String("side", string(fill.Side)),
		slog.Int64("qty", fill.Qty),
		slog.String("symbol", fill.Symbol),
		slog.Float64("price", fill.Price),
	)
}

// publishLeaderboard samples every portfolio's equity and broadcasts the
// equity-sorted arena standings.
func (e *Engine) publishLeaderboard(ctx context.Context) {
	now := time.Now().UTC()
	e.manager.RecordEquityAll(e.lastPrices, now)

	models := e.manager.Leaderboard(e.lastPrices)
	update := domain.LeaderboardUpdate{
		Timestamp: now,
		Models:    models,
		Mode:      e.cfg.Mode,
	}
	if len(models) > 0 {
		update.BestModel = models[0].ModelID
	}

	payload, err := json.Marshal(update)
	if err != nil {
		e.logger.Error("leaderboard marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := e.bus.Publish(ctx, domain.TopicPortfolioUpdates, payload); err != nil {
		e.logger.Warn("leaderboard publish failed", slog.String("error", err.Error()))
	}
}
