package strategy

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacattac314/Titan-Finance/internal/domain"
)

func tick(symbol string, price float64) domain.Tick {
	return domain.Tick{
		Type: domain.TickTypeTrade, Symbol: symbol, Price: price, Size: 1, Timestamp: 1,
	}
}

func newTestSMA() *SMACrossover {
	return NewSMACrossover(SMACrossoverConfig{
		Symbol: "SPY", ModelID: "sma_spy", FastPeriod: 2, SlowPeriod: 5,
	}, slog.Default())
}

func TestSMAWarmupGuard(t *testing.T) {
	s := newTestSMA()
	for i := 0; i < s.WarmupPeriod(); i++ {
		assert.Nil(t, s.OnTick(tick("SPY", 100+float64(i))), "tick %d is inside warmup", i)
	}
}

func TestSMAGoldenCrossEmitsBuy(t *testing.T) {
	s := newTestSMA()

	// Rising prices: the fast average leads the slow one once warm.
	var sig *domain.TradeSignal
	for _, p := range []float64{100, 101, 102, 103, 104, 105} {
		sig = s.OnTick(tick("SPY", p))
	}

	require.NotNil(t, sig)
	assert.Equal(t, domain.SignalBuy, sig.Signal)
	assert.Equal(t, "sma_spy", sig.ModelID)
	assert.Equal(t, "SPY", sig.Symbol)
	assert.GreaterOrEqual(t, sig.Confidence, 0.0)
	assert.LessOrEqual(t, sig.Confidence, 1.0)
	assert.True(t, sig.Valid())
}

func TestSMASuppressesDuplicateWhileLong(t *testing.T) {
	s := newTestSMA()

	signals := 0
	for p := 100.0; p < 120; p++ {
		if sig := s.OnTick(tick("SPY", p)); sig != nil {
			signals++
			assert.Equal(t, domain.SignalBuy, sig.Signal)
		}
	}
	assert.Equal(t, 1, signals, "a monotone rise must produce exactly one BUY")
}

func TestSMADeathCrossEmitsSell(t *testing.T) {
	s := newTestSMA()

	for p := 100.0; p < 110; p++ {
		s.OnTick(tick("SPY", p))
	}

	var sig *domain.TradeSignal
	for p := 109.0; p > 90; p-- {
		if got := s.OnTick(tick("SPY", p)); got != nil {
			sig = got
			break
		}
	}

	require.NotNil(t, sig)
	assert.Equal(t, domain.SignalSell, sig.Signal)
}

func TestSMAIgnoresNonPositivePrices(t *testing.T) {
	s := newTestSMA()
	assert.Nil(t, s.OnTick(tick("SPY", 0)))
	assert.Nil(t, s.OnTick(tick("SPY", -3)))
}

func TestSMAOnBarUsesClose(t *testing.T) {
	s := newTestSMA()

	var sig *domain.TradeSignal
	for _, c := range []float64{100, 101, 102, 103, 104, 105} {
		sig = s.OnBar(domain.Bar{
			Symbol: "SPY", Open: c - 1, High: c + 1, Low: c - 2, Close: c, Volume: 10, Timestamp: 1,
		})
	}
	require.NotNil(t, sig)
	assert.Equal(t, domain.SignalBuy, sig.Signal)
}
