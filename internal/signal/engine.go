// Package signal implements the signal engine service: it hosts the
// competing strategies, routes every market tick to the contenders
// subscribed to its symbol, and publishes the signals they emit.
package signal

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jacattac314/Titan-Finance/internal/audit"
	"github.com/jacattac314/Titan-Finance/internal/domain"
	"github.com/jacattac314/Titan-Finance/internal/signal/strategy"
)

const (
	heartbeatInterval = 30 * time.Second
	reconnectDelay    = 5 * time.Second
)

// Pinger verifies bus liveness on the heartbeat cadence. The Redis client
// satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Engine subscribes to market_data, drives each strategy sequentially per
// tick in registration order, and publishes every emitted signal on
// trade_signals before handling the next tick.
type Engine struct {
	bus        domain.SignalBus
	pinger     Pinger
	auditor    *audit.Logger
	strategies []strategy.Strategy
	logger     *slog.Logger
}

// NewEngine creates an Engine. pinger and auditor may be nil.
func NewEngine(bus domain.SignalBus, strategies []strategy.Strategy, pinger Pinger, auditor *audit.Logger, logger *slog.Logger) *Engine {
	return &Engine{
		bus:        bus,
		pinger:     pinger,
		auditor:    auditor,
		strategies: strategies,
		logger:     logger.With(slog.String("component", "signal_engine")),
	}
}

// Run subscribes and processes ticks until the context is cancelled. Bus
// failures trigger a re-subscribe with a bounded back-off rather than an
// error return; the tick stream is expected to be long-lived.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("signal engine started", slog.Int("strategies", len(e.strategies)))
	defer e.logger.Info("signal engine stopped")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		msgs, err := e.bus.Subscribe(ctx, domain.TopicMarketData)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Error("market_data subscribe failed, retrying",
				slog.String("error", err.Error()),
				slog.Duration("backoff", reconnectDelay),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(reconnectDelay):
			}
			continue
		}

		if err := e.consume(ctx, msgs, heartbeat.C); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Subscription ended while the context is still live: reconnect.
		e.logger.Warn("market_data subscription lost, reconnecting",
			slog.Duration("backoff", reconnectDelay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

// consume drains one subscription until it closes or the context ends.
func (e *Engine) consume(ctx context.Context, msgs <-chan []byte, heartbeat <-chan time.Time) error {
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

		case payload, ok := <-msgs:
			if !ok {
				return nil
			}
			e.handleTick(ctx, payload)
		}
	}
}

// handleTick decodes one market_data payload and drives every subscribed
// strategy. Decode errors drop the message; a panicking strategy is isolated
// and must not affect the others or the stream.
func (e *Engine) handleTick(ctx context.Context, payload []byte) {
	var tick domain.Tick
	if err := json.Unmarshal(payload, &tick); err != nil {
		e.logger.Warn("tick decode failed, dropping", slog.String("error", err.Error()))
		return
	}
	if tick.Type != domain.TickTypeTrade || !tick.Valid() {
		return
	}

	for _, strat := range e.strategies {
		if strat.Symbol() != tick.Symbol {
			continue
		}
		sig := e.safeOnTick(strat, tick)
		if sig == nil {
			continue
		}
		e.publishSignal(ctx, strat, *sig)
	}
}

// safeOnTick isolates strategy panics.
func (e *Engine) safeOnTick(strat strategy.Strategy, tick domain.Tick) (sig *domain.TradeSignal) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("strategy panicked, tick dropped for it",
				slog.String("strategy", strat.Name()),
				slog.String("model_id", strat.ModelID()),
				slog.Any("panic", r),
			)
			sig = nil
		}
	}()
	return strat.OnTick(tick)
}

func (e *Engine) publishSignal(ctx context.Context, strat strategy.Strategy, sig domain.TradeSignal) {
	if !sig.Valid() {
		e.logger.Warn("strategy emitted invalid signal, dropping",
			slog.String("model_id", sig.ModelID),
			slog.String("symbol", sig.Symbol),
		)
		return
	}

	payload, err := json.Marshal(sig)
	if err != nil {
		e.logger.Error("signal marshal failed", slog.String("error", err.Error()))
		return
	}

	if err := e.bus.Publish(ctx, domain.TopicTradeSignals, payload); err != nil {
		e.logger.Error("signal publish failed",
			slog.String("model_id", sig.ModelID),
			slog.String("error", err.Error()),
		)
		return
	}

	e.logger.Info("signal published",
		slog.String("model_id", sig.ModelID),
		slog.String("symbol", sig.Symbol),
		slog.String("signal", string(sig.Signal)),
		slog.Float64("confidence", sig.Confidence),
	)

	if e.auditor != nil {
		e.auditor.LogSignal(ctx, sig, "v1.0")
	}
}
