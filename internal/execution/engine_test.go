package execution

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacattac314/Titan-Finance/internal/bustest"
	"github.com/jacattac314/Titan-Finance/internal/domain"
)

func newTestEngine(t *testing.T) (*Engine, *bustest.Bus) {
	t.Helper()
	logger := slog.Default()
	bus := bustest.New()

	engine := NewEngine(
		EngineConfig{Mode: domain.ModePaper},
		bus,
		NewPortfolioManager(100_000, 10, logger),
		NewOrderValidator(0, 0, logger),
		NewLatencySimulator(1, 2, rand.New(rand.NewSource(9))),
		NewSlippageModel(5, rand.New(rand.NewSource(9))),
		nil, nil, nil, nil, nil,
		logger,
	)
	return engine, bus
}

func buyRequest(qty int64, price float64) domain.ExecutionRequest {
	return domain.ExecutionRequest{
		ModelID:    "sma_spy",
		Symbol:     "SPY",
		Side:       domain.OrderSideBuy,
		Qty:        qty,
		Type:       "market",
		Price:      price,
		Confidence: 0.82,
	}
}

func TestSimulateFillHappyBuy(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	fill, err := engine.SimulateFill(ctx, buyRequest(33, 150))
	require.NoError(t, err)
	require.NotNil(t, fill)

	assert.Equal(t, domain.FillSideBuy, fill.Side)
	assert.Equal(t, int64(33), fill.Qty)
	assert.GreaterOrEqual(t, fill.Price, 150.0, "BUY slippage raises the price")
	assert.Equal(t, domain.FillStatusFilled, fill.Status)
	assert.Equal(t, domain.ModePaper, fill.Mode)
	assert.True(t, fill.Valid())

	p := engine.Manager().Get("sma_spy")
	require.NotNil(t, p)
	assert.InDelta(t, 100_000-33*fill.Price, p.Cash, 1e-9)
	assert.Equal(t, int64(33), p.Positions["SPY"].Qty)
}

func TestSimulateFillRejectsRawSignalPayload(t *testing.T) {
	engine, bus := newTestEngine(t)
	ctx := context.Background()

	// A raw trade_signals payload: side lives in "signal", there is no
	// "side" or "qty" key. Decoding it as a request must never fill.
	raw := []byte(`{"symbol":"SPY","signal":"BUY","price":150,"confidence":0.8}`)
	var req domain.ExecutionRequest
	require.NoError(t, json.Unmarshal(raw, &req))

	fill, err := engine.SimulateFill(ctx, req)
	assert.Error(t, err)
	assert.Nil(t, fill)

	// The full request path drops it too.
	engine.handleRequest(ctx, raw)
	assert.Empty(t, bus.Published(domain.TopicExecutionFilled))
}

func TestSimulateFillSellWithoutPositionRejected(t *testing.T) {
	engine, _ := newTestEngine(t)

	req := buyRequest(10, 100)
	req.Side = domain.OrderSideSell
	fill, err := engine.SimulateFill(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrNoPosition)
	assert.Nil(t, fill)
}

func TestSimulateFillSellAllWhenQtyOmitted(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.SimulateFill(ctx, buyRequest(40, 100))
	require.NoError(t, err)

	sell := buyRequest(0, 110)
	sell.Side = domain.OrderSideSell
	fill, err := engine.SimulateFill(ctx, sell)
	require.NoError(t, err)
	assert.Equal(t, int64(40), fill.Qty, "an unsized SELL closes the whole position")
	assert.LessOrEqual(t, fill.Price, 110.0, "SELL slippage lowers the price")

	p := engine.Manager().Get("sma_spy")
	assert.Empty(t, p.Positions)
}

func TestSimulateFillUsesCachedPriceWhenRequestHasNone(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	tick, _ := json.Marshal(domain.Tick{
		Type: domain.TickTypeTrade, Symbol: "SPY", Price: 200, Size: 1, Timestamp: 1,
	})
	engine.handleMarketData(tick)

	req := buyRequest(10, 0)
	fill, err := engine.SimulateFill(ctx, req)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, fill.Price, 200.0)
}

func TestSimulateFillRejectsWithoutAnyPrice(t *testing.T) {
	engine, _ := newTestEngine(t)
	fill, err := engine.SimulateFill(context.Background(), buyRequest(10, 0))
	assert.Error(t, err)
	assert.Nil(t, fill)
}

func TestRiskCommandsBlockAndReset(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	cmd, _ := json.Marshal(domain.RiskCommand{Command: domain.CommandLiquidateAll, Reason: "test"})
	engine.HandleRiskCommand(ctx, cmd)
	assert.True(t, engine.Blocked())

	fill, err := engine.SimulateFill(ctx, buyRequest(10, 100))
	assert.ErrorIs(t, err, domain.ErrTradingHalted)
	assert.Nil(t, fill)

	reset, _ := json.Marshal(domain.RiskCommand{Command: domain.CommandResetKillSwitch, Reason: "operator"})
	engine.HandleRiskCommand(ctx, reset)
	assert.False(t, engine.Blocked())

	fill, err = engine.SimulateFill(ctx, buyRequest(10, 100))
	require.NoError(t, err)
	assert.NotNil(t, fill)
}

func TestManualApprovalCommandBlocks(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	cmd, _ := json.Marshal(domain.RiskCommand{Command: domain.CommandActivateManualApproval, Reason: "rollback"})
	engine.HandleRiskCommand(ctx, cmd)

	fill, err := engine.SimulateFill(ctx, buyRequest(10, 100))
	assert.ErrorIs(t, err, domain.ErrTradingHalted)
	assert.Nil(t, fill)
}

func TestHandleRequestPublishesFillAndStreamMirror(t *testing.T) {
	engine, bus := newTestEngine(t)
	ctx := context.Background()

	payload, _ := json.Marshal(buyRequest(10, 100))
	engine.handleRequest(ctx, payload)

	published := bus.Published(domain.TopicExecutionFilled)
	require.Len(t, published, 1)

	var fill domain.Fill
	require.NoError(t, json.Unmarshal(published[0], &fill))
	assert.True(t, fill.Valid())
	assert.Equal(t, domain.FillSideBuy, fill.Side)

	mirror, err := bus.StreamRead(ctx, fillStream, "0", 10)
	require.NoError(t, err)
	assert.Len(t, mirror, 1)
}

func TestValidatorRejectionProducesNoFill(t *testing.T) {
	engine, bus := newTestEngine(t)
	ctx := context.Background()

	// $50,000 notional breaches the $25,000 projected-position cap.
	payload, _ := json.Marshal(buyRequest(500, 100))
	engine.handleRequest(ctx, payload)
	assert.Empty(t, bus.Published(domain.TopicExecutionFilled))
}

func newLiveTestEngine(t *testing.T, broker *AlpacaConnector) (*Engine, *bustest.Bus) {
	t.Helper()
	logger := slog.Default()
	bus := bustest.New()

	engine := NewEngine(
		EngineConfig{Mode: domain.ModeLive},
		bus,
		NewPortfolioManager(100_000, 10, logger),
		NewOrderValidator(0, 0, logger),
		NewLatencySimulator(1, 2, rand.New(rand.NewSource(9))),
		NewSlippageModel(5, rand.New(rand.NewSource(9))),
		broker,
		nil, nil, nil, nil,
		logger,
	)
	return engine, bus
}

func TestExecuteLiveRejectsWithoutAnyPrice(t *testing.T) {
	srv := newBrokerServer(t, nil)
	defer srv.Close()
	engine, bus := newLiveTestEngine(t, newTestConnector(t, srv.URL))
	ctx := context.Background()

	// No request price, no cached tick: the fill would carry price 0 and
	// break the execution_filled schema, so the request is rejected before
	// any order reaches the broker.
	payload, _ := json.Marshal(buyRequest(10, 0))
	engine.handleRequest(ctx, payload)
	assert.Empty(t, bus.Published(domain.TopicExecutionFilled))
}

func TestExecuteLiveUsesCachedPrice(t *testing.T) {
	srv := newBrokerServer(t, nil)
	defer srv.Close()
	engine, bus := newLiveTestEngine(t, newTestConnector(t, srv.URL))
	ctx := context.Background()

	tick, _ := json.Marshal(domain.Tick{
		Type: domain.TickTypeTrade, Symbol: "SPY", Price: 200, Size: 1, Timestamp: 1,
	})
	engine.handleMarketData(tick)

	payload, _ := json.Marshal(buyRequest(10, 0))
	engine.handleRequest(ctx, payload)

	published := bus.Published(domain.TopicExecutionFilled)
	require.Len(t, published, 1)

	var fill domain.Fill
	require.NoError(t, json.Unmarshal(published[0], &fill))
	assert.True(t, fill.Valid())
	assert.Equal(t, 200.0, fill.Price)
	assert.Equal(t, domain.ModeLive, fill.Mode)
	assert.Equal(t, "order-123", fill.OrderID)
}

func TestLeaderboardSortedAndPublished(t *testing.T) {
	engine, bus := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.SimulateFill(ctx, buyRequest(10, 100))
	require.NoError(t, err)

	engine.publishLeaderboard(ctx)

	published := bus.Published(domain.TopicPortfolioUpdates)
	require.Len(t, published, 1)

	var update domain.LeaderboardUpdate
	require.NoError(t, json.Unmarshal(published[0], &update))
	require.Len(t, update.Models, 1)
	assert.Equal(t, "sma_spy", update.BestModel)
	assert.Equal(t, domain.ModePaper, update.Mode)
	assert.Equal(t, 1, update.Models[0].Trades)
}
