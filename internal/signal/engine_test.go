package signal

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacattac314/Titan-Finance/internal/bustest"
	"github.com/jacattac314/Titan-Finance/internal/domain"
	"github.com/jacattac314/Titan-Finance/internal/signal/strategy"
)

// stubStrategy emits a canned signal on every tick for its symbol.
type stubStrategy struct {
	symbol  string
	modelID string
	emit    bool
	panics  bool
	ticks   int
}

func (s *stubStrategy) Name() string      { return "stub" }
func (s *stubStrategy) ModelID() string   { return s.modelID }
func (s *stubStrategy) Symbol() string    { return s.symbol }
func (s *stubStrategy) WarmupPeriod() int { return 0 }

func (s *stubStrategy) OnTick(tick domain.Tick) *domain.TradeSignal {
	s.ticks++
	if s.panics {
		panic("strategy blew up")
	}
	if !s.emit {
		return nil
	}
	return &domain.TradeSignal{
		ModelID:    s.modelID,
		ModelName:  "stub",
		Symbol:     s.symbol,
		Signal:     domain.SignalBuy,
		Confidence: 0.9,
		Price:      tick.Price,
		Timestamp:  tick.Timestamp,
	}
}

func (s *stubStrategy) OnBar(bar domain.Bar) *domain.TradeSignal { return nil }

func tickPayload(t *testing.T, symbol string, price float64) []byte {
	t.Helper()
	payload, err := json.Marshal(domain.Tick{
		Type: domain.TickTypeTrade, Symbol: symbol, Price: price, Size: 1, Timestamp: 1,
	})
	require.NoError(t, err)
	return payload
}

func TestHandleTickRoutesBySymbol(t *testing.T) {
	bus := bustest.New()
	spy := &stubStrategy{symbol: "SPY", modelID: "spy_model", emit: true}
	aapl := &stubStrategy{symbol: "AAPL", modelID: "aapl_model", emit: true}
	engine := NewEngine(bus, []strategy.Strategy{spy, aapl}, nil, nil, slog.Default())

	engine.handleTick(context.Background(), tickPayload(t, "SPY", 450))

	assert.Equal(t, 1, spy.ticks)
	assert.Zero(t, aapl.ticks, "strategies only see their own symbol")

	published := bus.Published(domain.TopicTradeSignals)
	require.Len(t, published, 1)

	var sig domain.TradeSignal
	require.NoError(t, json.Unmarshal(published[0], &sig))
	assert.Equal(t, "spy_model", sig.ModelID)
	assert.Equal(t, domain.SignalBuy, sig.Signal)
}

func TestHandleTickIsolatesPanickingStrategy(t *testing.T) {
	bus := bustest.New()
	bad := &stubStrategy{symbol: "SPY", modelID: "bad", panics: true}
	good := &stubStrategy{symbol: "SPY", modelID: "good", emit: true}
	engine := NewEngine(bus, []strategy.Strategy{bad, good}, nil, nil, slog.Default())

	engine.handleTick(context.Background(), tickPayload(t, "SPY", 450))

	assert.Equal(t, 1, good.ticks, "a panicking peer must not stop the others")
	require.Len(t, bus.Published(domain.TopicTradeSignals), 1)
}

func TestHandleTickDropsBadPayloads(t *testing.T) {
	bus := bustest.New()
	s := &stubStrategy{symbol: "SPY", modelID: "m", emit: true}
	engine := NewEngine(bus, []strategy.Strategy{s}, nil, nil, slog.Default())

	ctx := context.Background()
	engine.handleTick(ctx, []byte("{broken"))
	assert.Zero(t, s.ticks)

	// Quote ticks do not drive strategies.
	quote, _ := json.Marshal(domain.Tick{Type: domain.TickTypeQuote, Symbol: "SPY", Price: 450, Size: 1})
	engine.handleTick(ctx, quote)
	assert.Zero(t, s.ticks)

	// A valid trade tick reaches the strategy.
	engine.handleTick(ctx, tickPayload(t, "SPY", 450))
	assert.Equal(t, 1, s.ticks)
}

func TestHandleTickPublishesEachSignalPerStrategyOrder(t *testing.T) {
	bus := bustest.New()
	first := &stubStrategy{symbol: "SPY", modelID: "first", emit: true}
	second := &stubStrategy{symbol: "SPY", modelID: "second", emit: true}
	engine := NewEngine(bus, []strategy.Strategy{first, second}, nil, nil, slog.Default())

	engine.handleTick(context.Background(), tickPayload(t, "SPY", 450))

	published := bus.Published(domain.TopicTradeSignals)
	require.Len(t, published, 2)

	var sig domain.TradeSignal
	require.NoError(t, json.Unmarshal(published[0], &sig))
	assert.Equal(t, "first", sig.ModelID, "registration order is the publish order")
	require.NoError(t, json.Unmarshal(published[1], &sig))
	assert.Equal(t, "second", sig.ModelID)
}

func TestPublishSignalDropsInvalid(t *testing.T) {
	bus := bustest.New()
	s := &stubStrategy{symbol: "SPY", modelID: "m", emit: true}
	engine := NewEngine(bus, []strategy.Strategy{s}, nil, nil, slog.Default())

	engine.publishSignal(context.Background(), s, domain.TradeSignal{
		ModelID: "m", Symbol: "SPY", Signal: "SIDEWAYS", Confidence: 0.5, Price: 100,
	})
	assert.Empty(t, bus.Published(domain.TopicTradeSignals))
}
