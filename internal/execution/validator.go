// Package execution implements the execution engine: order validation,
// latency and slippage simulation, the per-strategy virtual ledgers, the
// live brokerage connector, and the service loop binding them to the bus.
package execution

import (
	"fmt"
	"log/slog"

	"github.com/jacattac314/Titan-Finance/internal/domain"
)

// Default order caps.
const (
	DefaultMaxOrderValue    = 50_000.0
	DefaultMaxPositionValue = 25_000.0
)

// OrderValidator enforces pre-fill risk limits on outgoing orders. The
// position cap applies to the projected post-trade position value, which
// makes it the effective single-order BUY ceiling.
type OrderValidator struct {
	MaxOrderValue    float64
	MaxPositionValue float64
	logger           *slog.Logger
}

// NewOrderValidator creates an OrderValidator with the given caps; zero
// values fall back to the defaults.
func NewOrderValidator(maxOrderValue, maxPositionValue float64, logger *slog.Logger) *OrderValidator {
	if maxOrderValue <= 0 {
		maxOrderValue = DefaultMaxOrderValue
	}
	if maxPositionValue <= 0 {
		maxPositionValue = DefaultMaxPositionValue
	}
	return &OrderValidator{
		MaxOrderValue:    maxOrderValue,
		MaxPositionValue: maxPositionValue,
		logger:           logger.With(slog.String("component", "order_validator")),
	}
}

// Validate returns nil when the order is accepted. Checks, in order:
// positive qty/price, buying power on BUY, the notional cap, and the
// projected position-value cap on BUY.
func (v *OrderValidator) Validate(p *VirtualPortfolio, symbol string, price float64, qty int64, side domain.FillSide) error {
	if qty <= 0 || price <= 0 {
		v.logger.Warn("rejected: invalid qty/price",
			slog.Int64("qty", qty),
			slog.Float64("price", price),
		)
		return fmt.Errorf("execution: %w: qty=%d price=%.2f", domain.ErrInvalidOrder, qty, price)
	}

	estimatedCost := float64(qty) * price

	if side == domain.FillSideBuy && p.Cash < estimatedCost {
		v.logger.Warn("rejected: insufficient cash",
			slog.Float64("need", estimatedCost),
			slog.Float64("have", p.Cash),
		)
		return fmt.Errorf("execution: %w: need %.2f have %.2f", domain.ErrInsufficientCash, estimatedCost, p.Cash)
	}

	if estimatedCost > v.MaxOrderValue {
		v.logger.Warn("rejected: order value exceeds limit",
			slog.Float64("value", estimatedCost),
			slog.Float64("limit", v.MaxOrderValue),
		)
		return fmt.Errorf("execution: %w: order value %.2f exceeds %.2f", domain.ErrInvalidOrder, estimatedCost, v.MaxOrderValue)
	}

	if side == domain.FillSideBuy {
		existingQty := int64(0)
		if pos, ok := p.Positions[symbol]; ok {
			existingQty = pos.Qty
		}
		projected := float64(existingQty+qty) * price
		if projected > v.MaxPositionValue {
			v.logger.Warn("rejected: projected position exceeds limit",
				slog.Float64("projected", projected),
				slog.Float64("limit", v.MaxPositionValue),
			)
			return fmt.Errorf("execution: %w: position value %.2f exceeds %.2f", domain.ErrInvalidOrder, projected, v.MaxPositionValue)
		}
	}

	return nil
}
