package execution

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *PortfolioManager {
	return NewPortfolioManager(100_000, 10, slog.Default())
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	m := newTestManager()
	a := m.GetOrCreate("model_a", "Model A")
	b := m.GetOrCreate("model_a", "ignored")
	assert.Same(t, a, b)
}

func TestGetOrCreateEnforcesModelCap(t *testing.T) {
	m := NewPortfolioManager(100_000, 2, slog.Default())
	require.NotNil(t, m.GetOrCreate("a", "a"))
	require.NotNil(t, m.GetOrCreate("b", "b"))
	assert.Nil(t, m.GetOrCreate("c", "c"))
}

func TestFillRoutesByRegisteredOrder(t *testing.T) {
	m := newTestManager()
	m.GetOrCreate("model_a", "Model A")
	m.RegisterOrder("order-1", "model_a")

	// model_id on the event points elsewhere; the registered order wins.
	fill := buyFill("AAPL", 10, 150)
	fill.OrderID = "order-1"
	fill.ModelID = "model_b"

	_, routed := m.OnExecutionFill(fill)
	require.True(t, routed)
	assert.Equal(t, int64(10), m.Get("model_a").Positions["AAPL"].Qty)
}

func TestFillFallsBackToStrategyThenModel(t *testing.T) {
	m := newTestManager()
	m.GetOrCreate("strat_1", "Strategy One")
	m.GetOrCreate("model_b", "Model B")

	fill := buyFill("AAPL", 5, 100)
	fill.OrderID = "unknown"
	fill.StrategyID = "strat_1"
	fill.ModelID = "model_b"
	_, routed := m.OnExecutionFill(fill)
	require.True(t, routed)
	assert.Equal(t, int64(5), m.Get("strat_1").Positions["AAPL"].Qty)
	assert.Empty(t, m.Get("model_b").Positions)

	fill2 := buyFill("MSFT", 3, 200)
	fill2.OrderID = "unknown"
	fill2.ModelID = "model_b"
	_, routed = m.OnExecutionFill(fill2)
	require.True(t, routed)
	assert.Equal(t, int64(3), m.Get("model_b").Positions["MSFT"].Qty)
}

func TestOrphanFillIsDiscarded(t *testing.T) {
	m := newTestManager()
	m.GetOrCreate("model_a", "Model A")

	fill := buyFill("AAPL", 10, 150)
	fill.OrderID = "nope"
	fill.ModelID = "ghost_model"

	_, routed := m.OnExecutionFill(fill)
	assert.False(t, routed)
	// The fill must not land in an arbitrary portfolio.
	assert.Empty(t, m.Get("model_a").Positions)
	assert.Equal(t, 100_000.0, m.Get("model_a").Cash)
}

func TestMultiModelIsolation(t *testing.T) {
	m := newTestManager()
	m.GetOrCreate("model_a", "Model A")
	m.GetOrCreate("model_b", "Model B")

	fill := buyFill("AAPL", 10, 150)
	fill.ModelID = "model_a"
	_, routed := m.OnExecutionFill(fill)
	require.True(t, routed)

	b := m.Get("model_b")
	assert.Equal(t, 100_000.0, b.Cash)
	_, hasAAPL := b.Positions["AAPL"]
	assert.False(t, hasAAPL)

	a := m.Get("model_a")
	assert.Equal(t, 100_000.0-1_500, a.Cash)
}

func TestLeaderboardSortedByEquityDescending(t *testing.T) {
	m := newTestManager()
	m.GetOrCreate("rich", "Rich")
	m.GetOrCreate("poor", "Poor")

	// Burn cash in "poor" with a losing round trip.
	lossBuy := buyFill("AAPL", 10, 150)
	lossBuy.ModelID = "poor"
	m.OnExecutionFill(lossBuy)
	lossSell := sellFill("AAPL", 10, 100)
	lossSell.ModelID = "poor"
	m.OnExecutionFill(lossSell)

	board := m.Leaderboard(nil)
	require.Len(t, board, 2)
	assert.Equal(t, "rich", board[0].ModelID)
	assert.Equal(t, "poor", board[1].ModelID)
	assert.GreaterOrEqual(t, board[0].Equity, board[1].Equity)
}
