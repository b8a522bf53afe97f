package strategy

import (
	"log/slog"
	"math"
	"sort"

	"github.com/jacattac314/Titan-Finance/internal/domain"
	"github.com/jacattac314/Titan-Finance/internal/signal/features"
)

const (
	// gbBarBuffer bounds the bar history retained for feature computation.
	gbBarBuffer = 200
	// gbMinBars is the minimum bar count before inference is attempted; the
	// slowest indicator (MACD signal) needs most of it.
	gbMinBars = 60
)

// GradientBoostConfig parameterises a GradientBoost instance.
type GradientBoostConfig struct {
	Symbol              string
	ModelID             string
	ConfidenceThreshold float64
}

// GradientBoost is the boosted-classifier contender: a binary up/down model
// over the engineered feature vector of the latest bar. It emits a signal
// when the winning class probability clears the configured threshold, and
// attaches the top three features by absolute contribution as explanation.
type GradientBoost struct {
	cfg    GradientBoostConfig
	model  AttributingPredictor
	logger *slog.Logger

	bars []domain.Bar
}

// NewGradientBoost creates a GradientBoost contender. model may be nil, in
// which case a deterministic reference classifier is installed.
func NewGradientBoost(cfg GradientBoostConfig, model AttributingPredictor, logger *slog.Logger) *GradientBoost {
	if cfg.ConfidenceThreshold <= 0 || cfg.ConfidenceThreshold >= 1 {
		cfg.ConfidenceThreshold = 0.6
	}
	if model == nil {
		model = defaultClassifier()
	}
	return &GradientBoost{
		cfg:    cfg,
		model:  model,
		logger: logger.With(slog.String("strategy", "gradient_boost"), slog.String("symbol", cfg.Symbol)),
	}
}

// defaultClassifier weights momentum features positively and stretch
// features negatively, which gives the shell plausible behaviour on the
// engineered vector without a trained checkpoint.
func defaultClassifier() *LinearClassifier {
	weights := make([]float64, len(features.Names))
	for i, name := range features.Names {
		switch name {
		case "log_ret":
			weights[i] = 8.0
		case "macd_hist":
			weights[i] = 0.6
		case "rsi":
			weights[i] = -0.004
		case "atr":
			weights[i] = -0.002
		}
	}
	return &LinearClassifier{Weights: weights, Bias: 0.2}
}

func (s *GradientBoost) Name() string      { return "LightGBM_v1" }
func (s *GradientBoost) ModelID() string   { return s.cfg.ModelID }
func (s *GradientBoost) Symbol() string    { return s.cfg.Symbol }
func (s *GradientBoost) WarmupPeriod() int { return gbMinBars }

// OnTick treats the trade as a one-tick flat bar.
func (s *GradientBoost) OnTick(tick domain.Tick) *domain.TradeSignal {
	if tick.Price <= 0 {
		return nil
	}
	return s.OnBar(domain.BarFromTick(tick))
}

// OnBar appends the bar and runs inference on the refreshed feature rows.
func (s *GradientBoost) OnBar(bar domain.Bar) *domain.TradeSignal {
	if bar.Close <= 0 {
		return nil
	}
	s.bars = append(s.bars, bar)
	if len(s.bars) > gbBarBuffer {
		s.bars = s.bars[1:]
	}
	if len(s.bars) < gbMinBars {
		return nil
	}

	rows := features.Compute(s.bars)
	if len(rows) == 0 {
		return nil
	}
	last := rows[len(rows)-1]

	prob, contributions := s.model.PredictWithAttribution(last.Vector())

	var side domain.SignalSide
	confidence := prob
	switch {
	case prob > s.cfg.ConfidenceThreshold:
		side = domain.SignalBuy
	case prob < 1-s.cfg.ConfidenceThreshold:
		side = domain.SignalSell
		confidence = 1 - prob
	default:
		return nil
	}

	return &domain.TradeSignal{
		ModelID:     s.cfg.ModelID,
		ModelName:   s.Name(),
		Symbol:      s.cfg.Symbol,
		Signal:      side,
		Confidence:  confidence,
		Price:       bar.Close,
		Timestamp:   bar.Timestamp,
		Explanation: topContributions(contributions, 3),
	}
}

// topContributions returns the n features with the largest absolute
// contribution, most influential first.
func topContributions(contributions []float64, n int) []domain.Attribution {
	idx := make([]int, len(contributions))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		return math.Abs(contributions[idx[a]]) > math.Abs(contributions[idx[b]])
	})

	if n > len(idx) {
		n = len(idx)
	}
	out := make([]domain.Attribution, 0, n)
	for _, i := range idx[:n] {
		name := "feature"
		if i < len(features.Names) {
			name = features.Names[i]
		}
		out = append(out, domain.Attribution{Feature: name, Impact: contributions[i]})
	}
	return out
}
