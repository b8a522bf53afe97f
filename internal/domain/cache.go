package domain

import "context"

// PriceCache shares the last traded price per symbol between the gateway
// (writer) and the execution engine (fallback reader when a request carries
// no price and no tick has reached the engine yet). Quotes go stale: a
// symbol that has not traded recently reads as ErrNotFound rather than
// returning an old price.
type PriceCache interface {
	SetTrade(ctx context.Context, tick Tick) error
	LastPrice(ctx context.Context, symbol string) (float64, error)
}
