package strategy

import (
	"log/slog"

	"github.com/jacattac314/Titan-Finance/internal/domain"
)

// RSIReversionConfig parameterises an RSIReversion instance.
type RSIReversionConfig struct {
	Symbol     string
	ModelID    string
	Period     int
	Oversold   float64
	Overbought float64
}

// RSIReversion is a mean-reversion contender: BUY when RSI drops to the
// oversold band, SELL when it reaches the overbought band. Confidence is the
// normalised distance past the threshold, floored at 0.1, so extreme
// readings produce higher-confidence signals.
type RSIReversion struct {
	cfg    RSIReversionConfig
	logger *slog.Logger

	prices   []float64
	position positionState
}

// NewRSIReversion creates an RSIReversion. Period defaults to 14, bands to
// 30/70.
func NewRSIReversion(cfg RSIReversionConfig, logger *slog.Logger) *RSIReversion {
	if cfg.Period <= 0 {
		cfg.Period = 14
	}
	if cfg.Oversold <= 0 {
		cfg.Oversold = 30
	}
	if cfg.Overbought <= cfg.Oversold {
		cfg.Overbought = 70
	}
	return &RSIReversion{
		cfg:    cfg,
		logger: logger.With(slog.String("strategy", "rsi_reversion"), slog.String("symbol", cfg.Symbol)),
	}
}

func (s *RSIReversion) Name() string      { return "RSI_MeanReversion_v1" }
func (s *RSIReversion) ModelID() string   { return s.cfg.ModelID }
func (s *RSIReversion) Symbol() string    { return s.cfg.Symbol }
func (s *RSIReversion) WarmupPeriod() int { return s.cfg.Period }

// OnTick appends the trade price and evaluates the bands.
func (s *RSIReversion) OnTick(tick domain.Tick) *domain.TradeSignal {
	if tick.Price <= 0 {
		return nil
	}
	return s.observe(tick.Price, tick.Timestamp)
}

// OnBar evaluates the bands on the bar close.
func (s *RSIReversion) OnBar(bar domain.Bar) *domain.TradeSignal {
	if bar.Close <= 0 {
		return nil
	}
	return s.observe(bar.Close, bar.Timestamp)
}

func (s *RSIReversion) observe(price float64, ts int64) *domain.TradeSignal {
	s.prices = append(s.prices, price)
	if len(s.prices) > s.cfg.Period+1 {
		s.prices = s.prices[1:]
	}

	rsi, ok := s.rsi()
	if !ok {
		return nil
	}

	var side domain.SignalSide
	switch {
	case rsi <= s.cfg.Oversold && s.position != positionLong:
		side = domain.SignalBuy
		s.position = positionLong
		s.logger.Info("rsi oversold", slog.Float64("rsi", rsi))
	case rsi >= s.cfg.Overbought && s.position != positionShort:
		side = domain.SignalSell
		s.position = positionShort
		s.logger.Info("rsi overbought", slog.Float64("rsi", rsi))
	default:
		return nil
	}

	var raw float64
	if side == domain.SignalBuy {
		raw = (s.cfg.Oversold - rsi) / s.cfg.Oversold
	} else {
		raw = (rsi - s.cfg.Overbought) / (100 - s.cfg.Overbought)
	}
	confidence := clamp(raw, 0.1, 1.0)

	return &domain.TradeSignal{
		ModelID:    s.cfg.ModelID,
		ModelName:  s.Name(),
		Symbol:     s.cfg.Symbol,
		Signal:     side,
		Confidence: confidence,
		Price:      price,
		Timestamp:  ts,
		Explanation: []domain.Attribution{
			{Feature: "rsi", Impact: rsi},
		},
	}
}

// rsi computes the current value over the price window using simple average
// gains and losses, the seeding form of Wilder's RSI. A window with no losses
// reads 100.
func (s *RSIReversion) rsi() (float64, bool) {
	if len(s.prices) < s.cfg.Period+1 {
		return 0, false
	}

	var gains, losses float64
	for i := 1; i < len(s.prices); i++ {
		change := s.prices[i] - s.prices[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(s.cfg.Period)
	avgLoss := losses / float64(s.cfg.Period)
	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}
