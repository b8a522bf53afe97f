package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacattac314/Titan-Finance/internal/domain"
)

func makeBars(n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	price := 100.0
	for i := range bars {
		// Oscillating walk with spread so every indicator has signal.
		price += math.Sin(float64(i)/3) * 0.8
		bars[i] = domain.Bar{
			Symbol: "SPY",
			Open:   price - 0.2,
			High:   price + 0.5,
			Low:    price - 0.5,
			Close:  price,
			Volume: 1000 + float64(i%7)*50,
		}
	}
	return bars
}

func TestComputeDropsWarmupRows(t *testing.T) {
	bars := makeBars(120)
	rows := Compute(bars)

	require.NotEmpty(t, rows)
	assert.Less(t, len(rows), len(bars), "indicator warmup rows must be dropped")
}

func TestComputeValuesAreFinite(t *testing.T) {
	rows := Compute(makeBars(120))
	require.NotEmpty(t, rows)

	for i, row := range rows {
		for j, v := range row.Vector() {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0),
				"row %d feature %s is not finite", i, Names[j])
		}
	}
}

func TestComputeBollingerOrdering(t *testing.T) {
	rows := Compute(makeBars(120))
	require.NotEmpty(t, rows)

	for i, row := range rows {
		assert.GreaterOrEqual(t, row.BBU, row.BBM, "row %d", i)
		assert.GreaterOrEqual(t, row.BBM, row.BBL, "row %d", i)
	}
}

func TestComputeATRNonNegative(t *testing.T) {
	rows := Compute(makeBars(120))
	require.NotEmpty(t, rows)

	for i, row := range rows {
		assert.GreaterOrEqual(t, row.ATR, 0.0, "row %d", i)
	}
}

func TestComputeRSIRange(t *testing.T) {
	rows := Compute(makeBars(120))
	require.NotEmpty(t, rows)

	for i, row := range rows {
		assert.GreaterOrEqual(t, row.RSI, 0.0, "row %d", i)
		assert.LessOrEqual(t, row.RSI, 100.0, "row %d", i)
	}
}

func TestComputeLogReturns(t *testing.T) {
	logRet := logReturns([]float64{100, 110, 99})
	assert.True(t, math.IsNaN(logRet[0]))
	assert.InDelta(t, math.Log(1.1), logRet[1], 1e-9)
	assert.InDelta(t, math.Log(99.0/110.0), logRet[2], 1e-9)
}

func TestWilderRSIAllGainsReadsHundred(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	rsi := wilderRSI(closes, 14)
	assert.InDelta(t, 100.0, rsi[len(rsi)-1], 1e-9)
}

func TestComputeEmptyInput(t *testing.T) {
	assert.Nil(t, Compute(nil))
	assert.Empty(t, Compute(makeBars(10)), "too few bars leaves no fully-defined rows")
}

func TestZScoreWindowShapeAndScale(t *testing.T) {
	rows := Compute(makeBars(120))
	require.GreaterOrEqual(t, len(rows), 20)

	window := ZScoreWindow(rows[len(rows)-20:])
	require.Len(t, window, 20)
	require.Len(t, window[0], len(Names))

	// Each column is standardised: mean ~0.
	for j := 0; j < len(Names); j++ {
		var sum float64
		for i := range window {
			sum += window[i][j]
		}
		assert.InDelta(t, 0.0, sum/float64(len(window)), 1e-6, "column %s", Names[j])
	}
}
