package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jacattac314/Titan-Finance/internal/domain"
	"github.com/jacattac314/Titan-Finance/internal/execution"
	"github.com/jacattac314/Titan-Finance/internal/gateway"
	"github.com/jacattac314/Titan-Finance/internal/notify"
	"github.com/jacattac314/Titan-Finance/internal/risk"
	signalengine "github.com/jacattac314/Titan-Finance/internal/signal"
	"github.com/jacattac314/Titan-Finance/internal/signal/strategy"
)

// archiveInterval is the cadence of the optional audit S3 archive.
const archiveInterval = time.Hour

// GatewayMode runs the market-data gateway alone.
func (a *App) GatewayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting gateway mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startGateway(ctx, g, deps)
	a.startArchiver(ctx, g, deps)
	return g.Wait()
}

// SignalMode runs the signal engine alone.
func (a *App) SignalMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting signal mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startSignalEngine(ctx, g, deps)
	return g.Wait()
}

// RiskMode runs the risk governor alone.
func (a *App) RiskMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting risk mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startRiskGovernor(ctx, g, deps)
	a.startAlertListener(ctx, g, deps)
	return g.Wait()
}

// ExecutionMode runs the execution engine alone.
func (a *App) ExecutionMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting execution mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startExecutionEngine(ctx, g, deps); err != nil {
		return err
	}
	a.startArchiver(ctx, g, deps)
	a.startAlertListener(ctx, g, deps)
	return g.Wait()
}

// FullMode runs every pipeline stage in one process. Useful for development
// and the integration harness; production deploys one mode per process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startGateway(ctx, g, deps)
	a.startSignalEngine(ctx, g, deps)
	a.startRiskGovernor(ctx, g, deps)
	if err := a.startExecutionEngine(ctx, g, deps); err != nil {
		return err
	}
	a.startArchiver(ctx, g, deps)
	a.startAlertListener(ctx, g, deps)
	return g.Wait()
}

// ---------------------------------------------------------------------------
// Service builders
// ---------------------------------------------------------------------------

func (a *App) startGateway(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	var provider gateway.Provider
	switch strings.ToLower(a.cfg.Gateway.Provider) {
	case "websocket":
		provider = gateway.NewWSProvider(
			a.cfg.Gateway.WsURL,
			a.cfg.Gateway.ApiKey,
			a.cfg.Gateway.ApiSecret,
			a.logger,
		)
	default:
		provider = gateway.NewSyntheticProvider(
			time.Duration(a.cfg.Gateway.TickIntervalMs)*time.Millisecond,
			nil,
			a.logger,
		)
	}

	var tickStore = deps.TickStore
	if !a.cfg.Gateway.PersistTicks {
		tickStore = nil
	}

	gw := gateway.New(provider, deps.SignalBus, deps.PriceCache, tickStore, a.cfg.Gateway.Symbols, a.logger)
	g.Go(func() error {
		return gw.Run(ctx)
	})
}

func (a *App) startSignalEngine(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	strategies := a.buildStrategies()
	engine := signalengine.NewEngine(deps.SignalBus, strategies, deps.Redis, deps.Auditor, a.logger)
	g.Go(func() error {
		return engine.Run(ctx)
	})
}

// buildStrategies instantiates one contender per configured (family, symbol)
// pair, in deterministic registration order.
func (a *App) buildStrategies() []strategy.Strategy {
	var out []strategy.Strategy
	sc := a.cfg.Signal

	for _, symbol := range sc.Symbols {
		lower := strings.ToLower(symbol)
		for _, family := range sc.Strategies {
			switch strings.ToLower(family) {
			case "sma_crossover":
				out = append(out, strategy.NewSMACrossover(strategy.SMACrossoverConfig{
					Symbol:     symbol,
					ModelID:    fmt.Sprintf("sma_%s", lower),
					FastPeriod: sc.SMAFastPeriod,
					SlowPeriod: sc.SMASlowPeriod,
				}, a.logger))
			case "rsi_reversion":
				out = append(out, strategy.NewRSIReversion(strategy.RSIReversionConfig{
					Symbol:     symbol,
					ModelID:    fmt.Sprintf("rsi_%s", lower),
					Period:     sc.RSIPeriod,
					Oversold:   sc.RSIOversold,
					Overbought: sc.RSIOverbought,
				}, a.logger))
			case "gradient_boost":
				out = append(out, strategy.NewGradientBoost(strategy.GradientBoostConfig{
					Symbol:              symbol,
					ModelID:             fmt.Sprintf("lgb_%s_v1", lower),
					ConfidenceThreshold: sc.ConfidenceThreshold,
				}, nil, a.logger))
			case "lstm":
				out = append(out, strategy.NewDeepPredictor(strategy.DeepPredictorConfig{
					Symbol:   symbol,
					ModelID:  fmt.Sprintf("lstm_%s_v1", lower),
					Variant:  "lstm",
					Lookback: sc.Lookback,
				}, nil, a.logger))
			case "tft":
				out = append(out, strategy.NewDeepPredictor(strategy.DeepPredictorConfig{
					Symbol:   symbol,
					ModelID:  fmt.Sprintf("tft_%s_v1", lower),
					Variant:  "tft",
					Lookback: sc.Lookback,
				}, nil, a.logger))
			default:
				a.logger.Warn("unknown strategy family, skipping", slog.String("family", family))
			}
		}
	}
	return out
}

func (a *App) startRiskGovernor(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	engine := risk.NewEngine(risk.Config{
		MaxDailyLossPct:      a.cfg.Risk.MaxDailyLossPct,
		RiskPerTradePct:      a.cfg.Risk.RiskPerTradePct,
		MaxConsecutiveLosses: a.cfg.Risk.MaxConsecutiveLosses,
		RollbackMinSharpe:    a.cfg.Risk.RollbackMinSharpe,
		RollbackMinAccuracy:  a.cfg.Risk.RollbackMinAccuracy,
	}, a.logger)

	governor := risk.NewGovernor(risk.GovernorConfig{
		StartingEquity:    a.cfg.Execution.StartingCash,
		PerfCheckInterval: a.cfg.Risk.PerfCheckInterval,
	}, deps.SignalBus, engine, deps.Redis, deps.Auditor, a.logger)

	g.Go(func() error {
		return governor.Run(ctx)
	})
}

func (a *App) startExecutionEngine(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	mode := domain.ExecutionMode(strings.ToLower(a.cfg.Execution.Mode))

	var broker *execution.AlpacaConnector
	if mode == domain.ModeLive {
		var err error
		broker, err = execution.NewAlpacaConnector(
			a.cfg.Broker.BaseURL,
			a.cfg.Broker.ApiKey,
			a.cfg.Broker.ApiSecret,
			a.logger,
		)
		if err != nil {
			return fmt.Errorf("app: broker init: %w", err)
		}
	}

	manager := execution.NewPortfolioManager(a.cfg.Execution.StartingCash, a.cfg.Execution.MaxModels, a.logger)
	validator := execution.NewOrderValidator(a.cfg.Execution.MaxOrderValue, a.cfg.Execution.MaxPositionValue, a.logger)
	latency := execution.NewLatencySimulator(a.cfg.Execution.LatencyMinMs, a.cfg.Execution.LatencyMaxMs, nil)
	slippage := execution.NewSlippageModel(a.cfg.Execution.SlippageBaseBps, nil)

	var fillStore = deps.FillStore
	if !a.cfg.Execution.PersistFills {
		fillStore = nil
	}

	engine := execution.NewEngine(
		execution.EngineConfig{
			Mode:            mode,
			PublishInterval: time.Duration(a.cfg.Execution.PublishSeconds * float64(time.Second)),
		},
		deps.SignalBus,
		manager,
		validator,
		latency,
		slippage,
		broker,
		fillStore,
		deps.PriceCache,
		deps.Redis,
		deps.Auditor,
		a.logger,
	)

	g.Go(func() error {
		return engine.Run(ctx)
	})

	if broker != nil {
		poller := execution.NewAccountPoller(
			broker,
			deps.SignalBus,
			deps.Auditor,
			time.Duration(a.cfg.Broker.AccountPollSeconds)*time.Second,
			a.cfg.Broker.CircuitBreakerDrawdownPct,
			a.logger,
		)
		g.Go(func() error {
			return poller.Run(ctx)
		})
	}

	return nil
}

func (a *App) startAlertListener(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Notifier == nil {
		return
	}
	if a.cfg.Notify.TelegramToken == "" && a.cfg.Notify.DiscordWebhookURL == "" {
		return
	}
	listener := notify.NewAlertListener(deps.SignalBus, deps.Notifier, a.logger)
	g.Go(func() error {
		return listener.Run(ctx)
	})
}

func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	logPath := a.cfg.Audit.LogPath
	g.Go(func() error {
		return deps.Archiver.RunPeriodic(ctx, logPath, archiveInterval)
	})
}
