package execution

import (
	"math"
	"time"

	"github.com/jacattac314/Titan-Finance/internal/domain"
)

// sortinoMinPoints is the minimum equity-curve length for the downside
// ratios.
const sortinoMinPoints = 5

// VirtualPortfolio is the isolated ledger for one strategy/model. It tracks
// cash, positions, trade history, and the equity curve independently of
// every other contender. All mutation happens on the engine's fill handler
// goroutine.
type VirtualPortfolio struct {
	ModelID      string
	ModelName    string
	StartingCash float64
	Cash         float64
	Positions    map[string]domain.Position
	History      []domain.Fill
	EquityCurve  []domain.EquityPoint

	Trades       int
	ClosedTrades int
	Wins         int
	RealizedPnL  float64
}

// NewVirtualPortfolio creates a portfolio funded with startingCash.
func NewVirtualPortfolio(modelID, modelName string, startingCash float64) *VirtualPortfolio {
	if modelName == "" {
		modelName = modelID
	}
	return &VirtualPortfolio{
		ModelID:      modelID,
		ModelName:    modelName,
		StartingCash: startingCash,
		Cash:         startingCash,
		Positions:    make(map[string]domain.Position),
	}
}

// ApplyFill updates the ledger from one fill and returns the realised P&L of
// the closed portion (zero for buys). Sells are clamped to the open
// position; a fill that would close past zero closes the position exactly.
// No two fills are ever partially applied: the method completes before the
// handler takes the next message.
func (p *VirtualPortfolio) ApplyFill(fill domain.Fill) float64 {
	qty := fill.Qty
	pos := p.Positions[fill.Symbol]

	var realized float64

	switch fill.Side {
	case domain.FillSideBuy:
		cost := float64(qty) * fill.Price
		newQty := pos.Qty + qty
		// Weighted average entry across the existing and new lots.
		pos.AvgCost = (pos.AvgCost*float64(pos.Qty) + cost) / float64(newQty)
		pos.Qty = newQty
		p.Positions[fill.Symbol] = pos
		p.Cash -= cost

	case domain.FillSideSell:
		if qty > pos.Qty {
			qty = pos.Qty
		}
		if qty <= 0 {
			return 0
		}
		realized = (fill.Price - pos.AvgCost) * float64(qty)
		pos.Qty -= qty
		p.Cash += float64(qty) * fill.Price
		p.RealizedPnL += realized
		p.ClosedTrades++
		if realized > 0 {
			p.Wins++
		}
		if pos.Qty == 0 {
			delete(p.Positions, fill.Symbol)
		} else {
			p.Positions[fill.Symbol] = pos
		}

	default:
		return 0
	}

	p.Trades++
	fill.Qty = qty
	p.History = append(p.History, fill)
	return realized
}

// MarkToMarket values the portfolio at the given prices, falling back to the
// position's average cost for symbols with no live quote.
func (p *VirtualPortfolio) MarkToMarket(prices map[string]float64) float64 {
	total := p.Cash
	for symbol, pos := range p.Positions {
		price, ok := prices[symbol]
		if !ok || price <= 0 {
			price = pos.AvgCost
		}
		total += float64(pos.Qty) * price
	}
	return total
}

// RecordEquity appends a point to the equity curve.
func (p *VirtualPortfolio) RecordEquity(prices map[string]float64, ts time.Time) {
	p.EquityCurve = append(p.EquityCurve, domain.EquityPoint{
		Timestamp: ts,
		Equity:    p.MarkToMarket(prices),
		Cash:      p.Cash,
	})
}

// Snapshot produces the leaderboard row for this portfolio.
func (p *VirtualPortfolio) Snapshot(prices map[string]float64) domain.PortfolioSnapshot {
	equity := p.MarkToMarket(prices)
	pnl := equity - p.StartingCash

	winRate := 0.0
	if p.ClosedTrades > 0 {
		winRate = float64(p.Wins) / float64(p.ClosedTrades)
	}

	pnlPct := 0.0
	if p.StartingCash > 0 {
		pnlPct = pnl / p.StartingCash * 100
	}

	snap := domain.PortfolioSnapshot{
		ModelID:       p.ModelID,
		ModelName:     p.ModelName,
		Cash:          p.Cash,
		Equity:        equity,
		PnL:           pnl,
		PnLPct:        pnlPct,
		RealizedPnL:   p.RealizedPnL,
		Trades:        p.Trades,
		Wins:          p.Wins,
		ClosedTrades:  p.ClosedTrades,
		WinRate:       winRate,
		OpenPositions: len(p.Positions),
		MaxDrawdown:   p.MaxDrawdown(),
	}
	if sortino, ok := p.SortinoRatio(); ok {
		snap.Sortino = &sortino
	}
	if calmar, ok := p.CalmarRatio(); ok {
		snap.Calmar = &calmar
	}
	return snap
}

// MaxDrawdown returns the worst peak-to-trough fraction of the equity curve,
// in [0, 1]. Fewer than two points reads as zero.
func (p *VirtualPortfolio) MaxDrawdown() float64 {
	if len(p.EquityCurve) < 2 {
		return 0
	}

	peak := p.EquityCurve[0].Equity
	worst := 0.0
	for _, pt := range p.EquityCurve[1:] {
		if pt.Equity > peak {
			peak = pt.Equity
			continue
		}
		if peak > 0 {
			dd := (peak - pt.Equity) / peak
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// SortinoRatio returns the annualised downside-deviation-adjusted return over
// the equity curve. ok is false with fewer than five points or when there is
// no downside at all (the ratio is undefined on a monotone rise).
func (p *VirtualPortfolio) SortinoRatio() (float64, bool) {
	if len(p.EquityCurve) < sortinoMinPoints {
		return 0, false
	}

	returns := p.curveReturns()
	var sum, downsideSq float64
	downside := 0
	for _, r := range returns {
		sum += r
		if r < 0 {
			downsideSq += r * r
			downside++
		}
	}
	if downside == 0 {
		return 0, false
	}

	mean := sum / float64(len(returns))
	downsideDev := math.Sqrt(downsideSq / float64(len(returns)))
	if downsideDev == 0 {
		return 0, false
	}

	return (mean / downsideDev) * math.Sqrt(252), true
}

// CalmarRatio returns total return divided by max drawdown. ok is false with
// fewer than two points or when the drawdown is zero.
func (p *VirtualPortfolio) CalmarRatio() (float64, bool) {
	if len(p.EquityCurve) < 2 {
		return 0, false
	}
	dd := p.MaxDrawdown()
	if dd == 0 {
		return 0, false
	}

	first := p.EquityCurve[0].Equity
	last := p.EquityCurve[len(p.EquityCurve)-1].Equity
	if first <= 0 {
		return 0, false
	}
	totalReturn := (last - first) / first
	return totalReturn / dd, true
}

func (p *VirtualPortfolio) curveReturns() []float64 {
	out := make([]float64, 0, len(p.EquityCurve)-1)
	for i := 1; i < len(p.EquityCurve); i++ {
		prev := p.EquityCurve[i-1].Equity
		if prev <= 0 {
			continue
		}
		out = append(out, p.EquityCurve[i].Equity/prev-1)
	}
	return out
}
