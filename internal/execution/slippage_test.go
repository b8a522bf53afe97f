package execution

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jacattac314/Titan-Finance/internal/domain"
)

func TestSlippageDirectionInvariant(t *testing.T) {
	m := NewSlippageModel(5, rand.New(rand.NewSource(42)))

	for i := 0; i < 1_000; i++ {
		buy := m.ExecutedPrice(150, domain.FillSideBuy, 100)
		assert.GreaterOrEqual(t, buy, 150.0, "BUY must never improve on the decision price")

		sell := m.ExecutedPrice(150, domain.FillSideSell, 100)
		assert.LessOrEqual(t, sell, 150.0, "SELL must never improve on the decision price")
	}
}

func TestSlippageNonPositivePricePassthrough(t *testing.T) {
	m := NewSlippageModel(5, rand.New(rand.NewSource(1)))
	assert.Equal(t, 0.0, m.ExecutedPrice(0, domain.FillSideBuy, 10))
	assert.Equal(t, -5.0, m.ExecutedPrice(-5, domain.FillSideSell, 10))
}

func TestSlippageScalesWithSize(t *testing.T) {
	// With the noise source fixed, a much larger order pays at least as
	// much impact on average.
	small := NewSlippageModel(5, rand.New(rand.NewSource(7)))
	large := NewSlippageModel(5, rand.New(rand.NewSource(7)))

	var smallSum, largeSum float64
	for i := 0; i < 500; i++ {
		smallSum += small.ExecutedPrice(1000, domain.FillSideBuy, 10)
		largeSum += large.ExecutedPrice(1000, domain.FillSideBuy, 10_000_000)
	}
	assert.Greater(t, largeSum, smallSum)
}

func TestSlippageRoundsToCents(t *testing.T) {
	m := NewSlippageModel(5, rand.New(rand.NewSource(3)))
	price := m.ExecutedPrice(149.993, domain.FillSideBuy, 10)
	cents := price * 100
	assert.InDelta(t, cents, float64(int64(cents+0.5)), 1e-6)
}
