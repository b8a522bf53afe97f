// Package gateway implements the market-data gateway service: it runs a tick
// provider, publishes every tick on the market_data topic, keeps the shared
// price cache warm, and optionally persists ticks to the time-series store.
package gateway

import (
	"context"

	"github.com/jacattac314/Titan-Finance/internal/domain"
)

// TickHandler receives each normalised tick from a provider.
type TickHandler func(ctx context.Context, tick domain.Tick)

// Provider is a market-data source. Run blocks until the context is
// cancelled, invoking the handler for every tick it produces.
type Provider interface {
	Name() string
	Run(ctx context.Context, symbols []string, handler TickHandler) error
}
