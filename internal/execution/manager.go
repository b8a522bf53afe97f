package execution

import (
	"log/slog"
	"sort"
	"time"

	"github.com/jacattac314/Titan-Finance/internal/domain"
)

// PortfolioManager owns the virtual portfolios so many models can share one
// live data stream. Fills are routed by order registration first, then by
// the strategy/model tag on the event; orphans are logged and discarded,
// never applied to an arbitrary portfolio.
type PortfolioManager struct {
	startingCash float64
	maxModels    int
	logger       *slog.Logger

	portfolios map[string]*VirtualPortfolio
	orderMap   map[string]string // order_id -> portfolio id
}

// NewPortfolioManager creates a manager funding each new portfolio with
// startingCash and capping the arena at maxModels contenders.
func NewPortfolioManager(startingCash float64, maxModels int, logger *slog.Logger) *PortfolioManager {
	if maxModels <= 0 {
		maxModels = 10
	}
	return &PortfolioManager{
		startingCash: startingCash,
		maxModels:    maxModels,
		logger:       logger.With(slog.String("component", "portfolio_manager")),
		portfolios:   make(map[string]*VirtualPortfolio),
		orderMap:     make(map[string]string),
	}
}

// Get returns the portfolio for id, or nil.
func (m *PortfolioManager) Get(id string) *VirtualPortfolio {
	return m.portfolios[id]
}

// GetOrCreate returns the portfolio for id, creating it when the arena has
// room. It returns nil when the model cap is reached.
func (m *PortfolioManager) GetOrCreate(id, name string) *VirtualPortfolio {
	if p, ok := m.portfolios[id]; ok {
		return p
	}
	if len(m.portfolios) >= m.maxModels {
		m.logger.Warn("model cap reached, refusing new portfolio",
			slog.String("model_id", id),
			slog.Int("max_models", m.maxModels),
		)
		return nil
	}

	p := NewVirtualPortfolio(id, name, m.startingCash)
	m.portfolios[id] = p
	m.logger.Info("portfolio created",
		slog.String("model_id", id),
		slog.Float64("starting_cash", m.startingCash),
	)
	return p
}

// RegisterOrder maps an outgoing order to a portfolio for fill routing.
func (m *PortfolioManager) RegisterOrder(orderID, portfolioID string) {
	m.orderMap[orderID] = portfolioID
}

// OnExecutionFill routes a fill to its portfolio. Route resolution order:
// the registered order map, then the fill's strategy tag, then its model id.
// It returns the realised P&L and whether a portfolio accepted the fill.
func (m *PortfolioManager) OnExecutionFill(fill domain.Fill) (float64, bool) {
	portfolioID := m.orderMap[fill.OrderID]
	if portfolioID == "" {
		portfolioID = fill.StrategyID
	}
	if portfolioID == "" {
		portfolioID = fill.ModelID
	}

	p, ok := m.portfolios[portfolioID]
	if !ok {
		m.logger.Warn("orphan fill discarded",
			slog.String("order_id", fill.OrderID),
			slog.String("model_id", fill.ModelID),
		)
		return 0, false
	}

	realized := p.ApplyFill(fill)
	m.logger.Info("portfolio updated",
		slog.String("model_id", portfolioID),
		slog.Float64("cash", p.Cash),
		slog.Float64("realized_pnl", realized),
	)
	return realized, true
}

// Leaderboard returns every portfolio's snapshot sorted by equity,
// best-funded first.
func (m *PortfolioManager) Leaderboard(prices map[string]float64) []domain.PortfolioSnapshot {
	out := make([]domain.PortfolioSnapshot, 0, len(m.portfolios))
	for _, p := range m.portfolios {
		out = append(out, p.Snapshot(prices))
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].Equity > out[b].Equity
	})
	return out
}

// RecordEquityAll appends an equity-curve point for every portfolio.
func (m *PortfolioManager) RecordEquityAll(prices map[string]float64, ts time.Time) {
	for _, p := range m.portfolios {
		p.RecordEquity(prices, ts)
	}
}

// Portfolios returns the live portfolio map. Callers must not mutate it off
// the fill-handler goroutine.
func (m *PortfolioManager) Portfolios() map[string]*VirtualPortfolio {
	return m.portfolios
}
