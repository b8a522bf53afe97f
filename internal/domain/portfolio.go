package domain

import "time"

// Position is a long-only holding inside a virtual portfolio. A symbol with
// qty 0 is removed from the portfolio rather than kept at zero.
type Position struct {
	Qty     int64   `json:"qty"`
	AvgCost float64 `json:"avg_cost"`
}

// EquityPoint is one sample of a portfolio's equity curve.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
	Cash      float64   `json:"cash"`
}

// PortfolioSnapshot is the rich leaderboard row published per portfolio on
// the paper_portfolio_updates topic.
type PortfolioSnapshot struct {
	ModelID       string   `json:"model_id"`
	ModelName     string   `json:"model_name"`
	Cash          float64  `json:"cash"`
	Equity        float64  `json:"equity"`
	PnL           float64  `json:"pnl"`
	PnLPct        float64  `json:"pnl_pct"`
	RealizedPnL   float64  `json:"realized_pnl"`
	Trades        int      `json:"trades"`
	Wins          int      `json:"wins"`
	ClosedTrades  int      `json:"closed_trades"`
	WinRate       float64  `json:"win_rate"`
	OpenPositions int      `json:"open_positions"`
	MaxDrawdown   float64  `json:"max_drawdown"`
	Sortino       *float64 `json:"sortino,omitempty"`
	Calmar        *float64 `json:"calmar,omitempty"`
}

// LeaderboardUpdate is the periodic equity-sorted summary of every live
// portfolio.
type LeaderboardUpdate struct {
	Timestamp time.Time           `json:"timestamp"`
	BestModel string              `json:"best_model,omitempty"`
	Models    []PortfolioSnapshot `json:"models"`
	Mode      ExecutionMode       `json:"mode"`
}
