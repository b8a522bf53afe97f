package strategy

import (
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacattac314/Titan-Finance/internal/domain"
)

// fixedClassifier always reports the same probability with a canned
// contribution vector.
type fixedClassifier struct {
	prob          float64
	contributions []float64
}

func (f *fixedClassifier) PredictWithAttribution(vec []float64) (float64, []float64) {
	contributions := f.contributions
	if contributions == nil {
		contributions = make([]float64, len(vec))
		for i := range contributions {
			contributions[i] = float64(i)
		}
	}
	return f.prob, contributions
}

// fixedScorer always reports the same probability.
type fixedScorer struct{ prob float64 }

func (f *fixedScorer) Predict(window [][]float64) float64 { return f.prob }

func feedBars(s Strategy, n int, start float64) *domain.TradeSignal {
	var sig *domain.TradeSignal
	price := start
	for i := 0; i < n; i++ {
		// Gentle oscillation keeps every indicator finite.
		price += math.Sin(float64(i)) * 0.5
		sig = s.OnTick(tick("SPY", price))
	}
	return sig
}

func TestGradientBoostWarmupGuard(t *testing.T) {
	s := NewGradientBoost(GradientBoostConfig{Symbol: "SPY", ModelID: "lgb_spy_v1"},
		&fixedClassifier{prob: 0.99}, slog.Default())

	for i := 0; i < s.WarmupPeriod()-1; i++ {
		assert.Nil(t, s.OnTick(tick("SPY", 100+float64(i%5))), "bar %d is inside warmup", i)
	}
}

func TestGradientBoostHighProbEmitsBuyWithTopFeatures(t *testing.T) {
	s := NewGradientBoost(GradientBoostConfig{
		Symbol: "SPY", ModelID: "lgb_spy_v1", ConfidenceThreshold: 0.6,
	}, &fixedClassifier{prob: 0.9}, slog.Default())

	sig := feedBars(s, 120, 100)
	require.NotNil(t, sig)
	assert.Equal(t, domain.SignalBuy, sig.Signal)
	assert.InDelta(t, 0.9, sig.Confidence, 1e-9)
	require.Len(t, sig.Explanation, 3, "top-3 features by absolute contribution")
	// Contributions 0..n-1: the largest three win, largest first.
	assert.Greater(t, math.Abs(sig.Explanation[0].Impact), math.Abs(sig.Explanation[2].Impact))
}

func TestGradientBoostLowProbEmitsSell(t *testing.T) {
	s := NewGradientBoost(GradientBoostConfig{
		Symbol: "SPY", ModelID: "lgb_spy_v1", ConfidenceThreshold: 0.6,
	}, &fixedClassifier{prob: 0.1}, slog.Default())

	sig := feedBars(s, 120, 100)
	require.NotNil(t, sig)
	assert.Equal(t, domain.SignalSell, sig.Signal)
	assert.InDelta(t, 0.9, sig.Confidence, 1e-9)
}

func TestGradientBoostMidProbHolds(t *testing.T) {
	s := NewGradientBoost(GradientBoostConfig{
		Symbol: "SPY", ModelID: "lgb_spy_v1", ConfidenceThreshold: 0.6,
	}, &fixedClassifier{prob: 0.5}, slog.Default())

	assert.Nil(t, feedBars(s, 120, 100), "probability inside the band emits nothing")
}

func TestDeepPredictorWarmupGuard(t *testing.T) {
	s := NewDeepPredictor(DeepPredictorConfig{
		Symbol: "SPY", ModelID: "lstm_spy_v1", Variant: "lstm", Lookback: 60,
	}, &fixedScorer{prob: 0.99}, slog.Default())

	for i := 0; i < s.WarmupPeriod()-1; i++ {
		assert.Nil(t, s.OnTick(tick("SPY", 100+float64(i%7))), "bar %d is inside warmup", i)
	}
}

func TestDeepPredictorThresholds(t *testing.T) {
	cases := []struct {
		prob float64
		want domain.SignalSide
	}{
		{0.9, domain.SignalBuy},
		{0.1, domain.SignalSell},
		{0.5, ""},
	}

	for _, tc := range cases {
		s := NewDeepPredictor(DeepPredictorConfig{
			Symbol: "SPY", ModelID: "lstm_spy_v1", Variant: "lstm", Lookback: 60,
		}, &fixedScorer{prob: tc.prob}, slog.Default())

		sig := feedBars(s, 260, 100)
		if tc.want == "" {
			assert.Nil(t, sig, "prob %.1f must emit nothing", tc.prob)
			continue
		}
		require.NotNil(t, sig, "prob %.1f must emit %s", tc.prob, tc.want)
		assert.Equal(t, tc.want, sig.Signal)
		require.Len(t, sig.Explanation, 1)
		assert.Equal(t, "model_prob", sig.Explanation[0].Feature)
	}
}

func TestDeepPredictorVariantNames(t *testing.T) {
	lstm := NewDeepPredictor(DeepPredictorConfig{Symbol: "SPY", ModelID: "a", Variant: "lstm"}, nil, slog.Default())
	tft := NewDeepPredictor(DeepPredictorConfig{Symbol: "SPY", ModelID: "b", Variant: "tft"}, nil, slog.Default())
	assert.Equal(t, "LSTM_Attention_v1", lstm.Name())
	assert.Equal(t, "TFT_Transformer_v1", tft.Name())
}

func TestRecurrentScorerOutputInUnitRange(t *testing.T) {
	scorer := &RecurrentScorer{Weights: []float64{1, -1, 0.5}, Decay: 0.9}
	window := [][]float64{{1, 2, 3}, {-1, 0, 1}, {2, -2, 0}}
	prob := scorer.Predict(window)
	assert.Greater(t, prob, 0.0)
	assert.Less(t, prob, 1.0)
}

func TestLinearClassifierAttributionIsAdditive(t *testing.T) {
	c := &LinearClassifier{Weights: []float64{2, -1}, Bias: 0.5}
	prob, contributions := c.PredictWithAttribution([]float64{3, 4})
	require.Len(t, contributions, 2)
	assert.InDelta(t, 6.0, contributions[0], 1e-9)
	assert.InDelta(t, -4.0, contributions[1], 1e-9)
	// sigmoid(0.5 + 6 - 4) = sigmoid(2.5)
	assert.InDelta(t, 1/(1+math.Exp(-2.5)), prob, 1e-9)
}
