package domain

// TickType distinguishes trade prints from quote updates on the market_data
// topic.
type TickType string

const (
	TickTypeTrade TickType = "trade"
	TickTypeQuote TickType = "quote"
)

// Tick is a single market event for one symbol, published by the gateway on
// the market_data topic. Timestamp is Unix nanoseconds.
type Tick struct {
	Type      TickType `json:"type"`
	Symbol    string   `json:"symbol"`
	Price     float64  `json:"price"`
	Size      int64    `json:"size"`
	Timestamp int64    `json:"timestamp"`
	Provider  string   `json:"provider,omitempty"`
}

// Valid reports whether the tick satisfies the wire contract: positive price,
// non-negative size, known symbol.
func (t Tick) Valid() bool {
	return t.Symbol != "" && t.Price > 0 && t.Size >= 0
}

// Bar is an OHLCV aggregate over a time window. Strategies that operate on
// bars may treat a single tick as a flat one-tick bar via BarFromTick.
type Bar struct {
	Symbol    string  `json:"symbol"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Timestamp int64   `json:"timestamp"`
}

// Valid checks the OHLC ordering invariant: low ≤ min(open, close) and
// high ≥ max(open, close), with non-negative volume.
func (b Bar) Valid() bool {
	lo := b.Open
	if b.Close < lo {
		lo = b.Close
	}
	hi := b.Open
	if b.Close > hi {
		hi = b.Close
	}
	return b.Low <= lo && b.High >= hi && b.Volume >= 0
}

// BarFromTick converts a trade tick into a flat OHLC bar with the tick's
// size as volume.
func BarFromTick(t Tick) Bar {
	return Bar{
		Symbol:    t.Symbol,
		Open:      t.Price,
		High:      t.Price,
		Low:       t.Price,
		Close:     t.Price,
		Volume:    float64(t.Size),
		Timestamp: t.Timestamp,
	}
}
