package execution

import (
	"math"
	"math/rand"

	"github.com/jacattac314/Titan-Finance/internal/domain"
)

// SlippageModel perturbs the decision price with market noise, a size-linear
// impact term, and a fixed base cost. The direction invariant always holds:
// BUY executes at or above the decision price, SELL at or below.
type SlippageModel struct {
	// BaseBps is the deterministic cost component in basis points.
	BaseBps int
	rng     *rand.Rand
}

// NewSlippageModel creates a SlippageModel. rng may be nil for a
// time-seeded source; tests inject a fixed seed.
func NewSlippageModel(baseBps int, rng *rand.Rand) *SlippageModel {
	if baseBps < 0 {
		baseBps = 0
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &SlippageModel{BaseBps: baseBps, rng: rng}
}

// ExecutedPrice returns the fill price for an order of the given size. A
// non-positive decision price is returned unchanged.
func (m *SlippageModel) ExecutedPrice(decisionPrice float64, side domain.FillSide, qty int64) float64 {
	if decisionPrice <= 0 {
		return decisionPrice
	}

	// Market noise: gaussian with 1 bps standard deviation.
	noise := m.rng.NormFloat64() * 0.0001
	// Impact: larger orders move the price against you, 5e-9 per share.
	impact := float64(qty) * 5e-9
	slippagePct := noise + impact + float64(m.BaseBps)/10_000

	var executed float64
	if side == domain.FillSideBuy {
		executed = decisionPrice * (1 + math.Abs(slippagePct))
	} else {
		executed = decisionPrice * (1 - math.Abs(slippagePct))
	}

	// Fills are priced in cents.
	return math.Round(executed*100) / 100
}
