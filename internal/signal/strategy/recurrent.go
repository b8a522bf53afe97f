package strategy

import (
	"log/slog"

	"github.com/jacattac314/Titan-Finance/internal/domain"
	"github.com/jacattac314/Titan-Finance/internal/signal/features"
)

const (
	// deepWarmup is the bar history needed before the deep contenders infer:
	// indicator warmup plus the lookback window.
	deepWarmup = 200
	// buyThreshold / sellThreshold gate the scalar model output.
	buyThreshold  = 0.7
	sellThreshold = 0.3
)

// DeepPredictorConfig parameterises a DeepPredictor instance.
type DeepPredictorConfig struct {
	Symbol  string
	ModelID string
	// Variant labels the checkpoint family: "lstm" or "tft".
	Variant  string
	Lookback int
}

// DeepPredictor hosts the recurrent / transformer contenders. Both operate
// on a z-score-normalised lookback window of engineered feature rows; only
// the checkpoint behind the Predictor differs. It emits BUY when the model
// output crosses the upper threshold and SELL below the lower one.
type DeepPredictor struct {
	cfg    DeepPredictorConfig
	model  Predictor
	logger *slog.Logger

	bars []domain.Bar
}

// NewDeepPredictor creates a DeepPredictor. model may be nil, in which case a
// deterministic reference scorer is installed.
func NewDeepPredictor(cfg DeepPredictorConfig, model Predictor, logger *slog.Logger) *DeepPredictor {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 60
	}
	if cfg.Variant == "" {
		cfg.Variant = "lstm"
	}
	if model == nil {
		model = defaultRecurrent(cfg.Variant)
	}
	return &DeepPredictor{
		cfg:    cfg,
		model:  model,
		logger: logger.With(slog.String("strategy", cfg.Variant), slog.String("symbol", cfg.Symbol)),
	}
}

// defaultRecurrent builds the reference scorer for a checkpoint family. The
// transformer variant decays more slowly, weighing the whole window rather
// than the recent tail.
func defaultRecurrent(variant string) *RecurrentScorer {
	weights := make([]float64, len(features.Names))
	for i, name := range features.Names {
		switch name {
		case "log_ret":
			weights[i] = 1.2
		case "macd_hist":
			weights[i] = 0.4
		case "rsi":
			weights[i] = -0.15
		}
	}
	decay := 0.85
	if variant == "tft" {
		decay = 0.97
	}
	return &RecurrentScorer{Weights: weights, Decay: decay}
}

// Name reports the checkpoint family label.
func (s *DeepPredictor) Name() string {
	if s.cfg.Variant == "tft" {
		return "TFT_Transformer_v1"
	}
	return "LSTM_Attention_v1"
}

func (s *DeepPredictor) ModelID() string   { return s.cfg.ModelID }
func (s *DeepPredictor) Symbol() string    { return s.cfg.Symbol }
func (s *DeepPredictor) WarmupPeriod() int { return deepWarmup }

// OnTick treats the trade as a one-tick flat bar.
func (s *DeepPredictor) OnTick(tick domain.Tick) *domain.TradeSignal {
	if tick.Price <= 0 {
		return nil
	}
	return s.OnBar(domain.BarFromTick(tick))
}

// OnBar appends the bar, rebuilds the feature window, and runs inference.
func (s *DeepPredictor) OnBar(bar domain.Bar) *domain.TradeSignal {
	if bar.Close <= 0 {
		return nil
	}
	s.bars = append(s.bars, bar)
	if len(s.bars) > deepWarmup {
		s.bars = s.bars[1:]
	}
	if len(s.bars) < deepWarmup {
		return nil
	}

	rows := features.Compute(s.bars)
	if len(rows) < s.cfg.Lookback {
		return nil
	}

	window := features.ZScoreWindow(rows[len(rows)-s.cfg.Lookback:])
	prob := s.model.Predict(window)

	var side domain.SignalSide
	confidence := prob
	switch {
	case prob > buyThreshold:
		side = domain.SignalBuy
	case prob < sellThreshold:
		side = domain.SignalSell
		confidence = 1 - prob
	default:
		return nil
	}

	s.logger.Debug("model inference", slog.Float64("prob", prob))

	return &domain.TradeSignal{
		ModelID:    s.cfg.ModelID,
		ModelName:  s.Name(),
		Symbol:     s.cfg.Symbol,
		Signal:     side,
		Confidence: confidence,
		Price:      bar.Close,
		Timestamp:  bar.Timestamp,
		Explanation: []domain.Attribution{
			{Feature: "model_prob", Impact: prob},
		},
	}
}
