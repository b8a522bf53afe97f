package gateway

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/jacattac314/Titan-Finance/internal/domain"
)

// perTickVolatility is the GBM shock scale per generated tick.
const perTickVolatility = 0.0002

// basePrices seeds the synthetic walk for the default watchlist. Unknown
// symbols start at 100.
var basePrices = map[string]float64{
	"SPY":  450.0,
	"QQQ":  380.0,
	"AAPL": 175.0,
	"MSFT": 350.0,
	"TSLA": 240.0,
	"NVDA": 480.0,
	"AMD":  110.0,
	"AMZN": 145.0,
}

// SyntheticProvider generates trades with a geometric-Brownian-motion walk.
// It exists so the whole pipeline can run without external API dependencies.
type SyntheticProvider struct {
	interval time.Duration
	rng      *rand.Rand
	logger   *slog.Logger

	prices map[string]float64
}

// NewSyntheticProvider creates a provider sweeping the watchlist every
// interval (default 100ms). rng may be nil for a time-seeded source.
func NewSyntheticProvider(interval time.Duration, rng *rand.Rand, logger *slog.Logger) *SyntheticProvider {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	prices := make(map[string]float64, len(basePrices))
	for sym, p := range basePrices {
		prices[sym] = p
	}
	return &SyntheticProvider{
		interval: interval,
		rng:      rng,
		logger:   logger.With(slog.String("component", "synthetic_provider")),
		prices:   prices,
	}
}

// Name identifies the provider in tick records.
func (p *SyntheticProvider) Name() string { return "synthetic" }

// Run generates ticks until the context is cancelled.
func (p *SyntheticProvider) Run(ctx context.Context, symbols []string, handler TickHandler) error {
	p.logger.Info("synthetic stream started", slog.Any("symbols", symbols))
	defer p.logger.Info("synthetic stream stopped")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, symbol := range symbols {
				handler(ctx, p.nextTick(symbol))
			}
		}
	}
}

// nextTick advances the symbol's GBM walk one step and emits the trade.
func (p *SyntheticProvider) nextTick(symbol string) domain.Tick {
	price, ok := p.prices[symbol]
	if !ok || price <= 0 {
		price = 100.0
	}

	shock := p.rng.NormFloat64() * perTickVolatility
	price *= math.Exp(shock)
	p.prices[symbol] = price

	return domain.Tick{
		Type:      domain.TickTypeTrade,
		Symbol:    symbol,
		Price:     math.Round(price*100) / 100,
		Size:      int64(1 + p.rng.Intn(100)),
		Timestamp: time.Now().UTC().UnixNano(),
		Provider:  p.Name(),
	}
}
