package execution

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jacattac314/Titan-Finance/internal/domain"
)

func newTestValidator() *OrderValidator {
	return NewOrderValidator(0, 0, slog.Default())
}

func TestValidateRejectsNonPositiveInputs(t *testing.T) {
	v := newTestValidator()
	p := NewVirtualPortfolio("m", "Model", 100_000)

	assert.Error(t, v.Validate(p, "SPY", 100, 0, domain.FillSideBuy))
	assert.Error(t, v.Validate(p, "SPY", 100, -5, domain.FillSideBuy))
	assert.Error(t, v.Validate(p, "SPY", 0, 10, domain.FillSideBuy))
}

func TestValidateRejectsInsufficientCash(t *testing.T) {
	v := newTestValidator()
	p := NewVirtualPortfolio("m", "Model", 1_000)

	err := v.Validate(p, "SPY", 100, 20, domain.FillSideBuy)
	assert.ErrorIs(t, err, domain.ErrInsufficientCash)

	// Selling does not need cash.
	assert.NoError(t, v.Validate(p, "SPY", 100, 20, domain.FillSideSell))
}

func TestValidateRejectsOversizedOrder(t *testing.T) {
	v := newTestValidator()
	p := NewVirtualPortfolio("m", "Model", 1_000_000)

	err := v.Validate(p, "SPY", 200, 300, domain.FillSideBuy) // $60,000 notional
	assert.Error(t, err)
}

func TestValidatePositionCapIsEffectiveBuyCeiling(t *testing.T) {
	v := newTestValidator()
	p := NewVirtualPortfolio("m", "Model", 100_000)

	// $50,000 notional passes the order-value cap but the projected
	// position value breaches the $25,000 position cap.
	err := v.Validate(p, "SPY", 100, 500, domain.FillSideBuy)
	assert.Error(t, err)

	// The same notional on a SELL is not position-capped.
	p.Positions["SPY"] = domain.Position{Qty: 500, AvgCost: 100}
	assert.NoError(t, v.Validate(p, "SPY", 100, 500, domain.FillSideSell))
}

func TestValidateCountsExistingPosition(t *testing.T) {
	v := newTestValidator()
	p := NewVirtualPortfolio("m", "Model", 100_000)
	p.Positions["SPY"] = domain.Position{Qty: 200, AvgCost: 100}

	// 200 existing + 60 new at $100 = $26,000 projected > $25,000.
	assert.Error(t, v.Validate(p, "SPY", 100, 60, domain.FillSideBuy))
	// 200 existing + 40 new = $24,000 projected: fine.
	assert.NoError(t, v.Validate(p, "SPY", 100, 40, domain.FillSideBuy))
}
