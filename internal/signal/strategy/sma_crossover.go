package strategy

import (
	"log/slog"
	"math"

	"github.com/jacattac314/Titan-Finance/internal/domain"
)

// SMACrossoverConfig parameterises an SMACrossover instance.
type SMACrossoverConfig struct {
	Symbol     string
	ModelID    string
	FastPeriod int
	SlowPeriod int
}

// SMACrossover emits BUY on a golden cross (fast SMA above slow) and SELL on
// a death cross, gated by the inferred position so the same stance never
// emits twice in a row.
type SMACrossover struct {
	cfg    SMACrossoverConfig
	logger *slog.Logger

	prices   []float64
	position positionState
}

// NewSMACrossover creates an SMACrossover. Fast defaults to 10, slow to 30.
func NewSMACrossover(cfg SMACrossoverConfig, logger *slog.Logger) *SMACrossover {
	if cfg.FastPeriod <= 0 {
		cfg.FastPeriod = 10
	}
	if cfg.SlowPeriod <= cfg.FastPeriod {
		cfg.SlowPeriod = 30
	}
	return &SMACrossover{
		cfg:    cfg,
		logger: logger.With(slog.String("strategy", "sma_crossover"), slog.String("symbol", cfg.Symbol)),
	}
}

func (s *SMACrossover) Name() string      { return "SMA_Crossover_v1" }
func (s *SMACrossover) ModelID() string   { return s.cfg.ModelID }
func (s *SMACrossover) Symbol() string    { return s.cfg.Symbol }
func (s *SMACrossover) WarmupPeriod() int { return s.cfg.SlowPeriod }

// OnTick appends the trade price and evaluates the crossover.
func (s *SMACrossover) OnTick(tick domain.Tick) *domain.TradeSignal {
	if tick.Price <= 0 {
		return nil
	}
	return s.observe(tick.Price, tick.Timestamp)
}

// OnBar evaluates the crossover on the bar close.
func (s *SMACrossover) OnBar(bar domain.Bar) *domain.TradeSignal {
	if bar.Close <= 0 {
		return nil
	}
	return s.observe(bar.Close, bar.Timestamp)
}

func (s *SMACrossover) observe(price float64, ts int64) *domain.TradeSignal {
	s.prices = append(s.prices, price)
	if len(s.prices) > s.cfg.SlowPeriod+1 {
		s.prices = s.prices[1:]
	}
	if len(s.prices) <= s.cfg.SlowPeriod {
		return nil
	}

	fast := mean(s.prices[len(s.prices)-s.cfg.FastPeriod:])
	slow := mean(s.prices[len(s.prices)-s.cfg.SlowPeriod:])

	var side domain.SignalSide
	switch {
	case fast > slow && s.position != positionLong:
		side = domain.SignalBuy
		s.position = positionLong
		s.logger.Info("golden cross", slog.Float64("fast", fast), slog.Float64("slow", slow))
	case fast < slow && s.position != positionShort:
		side = domain.SignalSell
		s.position = positionShort
		s.logger.Info("death cross", slog.Float64("fast", fast), slog.Float64("slow", slow))
	default:
		return nil
	}

	// Confidence scales with the relative spread between the averages,
	// saturating at a 2% gap.
	spread := 0.0
	if slow != 0 {
		spread = math.Abs(fast-slow) / slow
	}
	confidence := clamp(spread/0.02, 0, 1)

	return &domain.TradeSignal{
		ModelID:    s.cfg.ModelID,
		ModelName:  s.Name(),
		Symbol:     s.cfg.Symbol,
		Signal:     side,
		Confidence: confidence,
		Price:      price,
		Timestamp:  ts,
		Explanation: []domain.Attribution{
			{Feature: "sma_fast", Impact: fast},
			{Feature: "sma_slow", Impact: slow},
		},
	}
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
