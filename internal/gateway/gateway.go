package gateway

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jacattac314/Titan-Finance/internal/domain"
)

// persistBatchSize is how many ticks accumulate before a store flush.
const persistBatchSize = 100

// Gateway drives a Provider and fans its ticks into the bus, the shared
// price cache, and (optionally) the tick store.
type Gateway struct {
	provider Provider
	bus      domain.SignalBus
	prices   domain.PriceCache
	ticks    domain.TickStore
	symbols  []string
	logger   *slog.Logger

	pending []domain.Tick
}

// New creates a Gateway. prices and ticks may be nil.
func New(provider Provider, bus domain.SignalBus, prices domain.PriceCache, ticks domain.TickStore, symbols []string, logger *slog.Logger) *Gateway {
	return &Gateway{
		provider: provider,
		bus:      bus,
		prices:   prices,
		ticks:    ticks,
		symbols:  symbols,
		logger:   logger.With(slog.String("component", "gateway")),
	}
}

// Run streams ticks until the context is cancelled.
func (g *Gateway) Run(ctx context.Context) error {
	g.logger.Info("gateway started",
		slog.String("provider", g.provider.Name()),
		slog.Any("symbols", g.symbols),
	)
	defer g.logger.Info("gateway stopped")

	return g.provider.Run(ctx, g.symbols, g.handleTick)
}

// handleTick publishes one tick and updates the side channels. Publish
// failure is transient infrastructure trouble: logged, the stream continues.
func (g *Gateway) handleTick(ctx context.Context, tick domain.Tick) {
	if !tick.Valid() {
		return
	}

	payload, err := json.Marshal(tick)
	if err != nil {
		g.logger.Error("tick marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := g.bus.Publish(ctx, domain.TopicMarketData, payload); err != nil {
		g.logger.Warn("tick publish failed", slog.String("error", err.Error()))
	}

	if g.prices != nil {
		if err := g.prices.SetTrade(ctx, tick); err != nil {
			g.logger.Warn("price cache update failed", slog.String("error", err.Error()))
		}
	}

	if g.ticks != nil {
		g.pending = append(g.pending, tick)
		if len(g.pending) >= persistBatchSize {
			if err := g.ticks.InsertBatch(ctx, g.pending); err != nil {
				g.logger.Warn("tick persist failed", slog.String("error", err.Error()))
			}
			g.pending = g.pending[:0]
		}
	}
}
