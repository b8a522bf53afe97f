package domain

// SignalSide is a strategy's recommendation. Uppercase on the wire; the risk
// governor translates into the lowercase order side when it builds an
// ExecutionRequest.
type SignalSide string

const (
	SignalBuy  SignalSide = "BUY"
	SignalSell SignalSide = "SELL"
	SignalHold SignalSide = "HOLD"
)

// Attribution is one entry of a signal's explanation: a feature name and its
// (signed) impact on the model output.
type Attribution struct {
	Feature string  `json:"feature"`
	Impact  float64 `json:"impact"`
}

// TradeSignal is emitted by a strategy on the trade_signals topic. The field
// carrying the side is named "signal" on the wire; ExecutionRequest uses
// "side". That asymmetry is the contract that gates risk: a raw signal
// payload decodes to an ExecutionRequest with no side and no qty and is
// rejected before it can fill.
type TradeSignal struct {
	ModelID     string        `json:"model_id"`
	ModelName   string        `json:"model_name"`
	Symbol      string        `json:"symbol"`
	Signal      SignalSide    `json:"signal"`
	Confidence  float64       `json:"confidence"`
	Price       float64       `json:"price"`
	Timestamp   int64         `json:"timestamp"`
	Explanation []Attribution `json:"explanation,omitempty"`
}

// Valid reports whether the signal satisfies the schema contract.
func (s TradeSignal) Valid() bool {
	switch s.Signal {
	case SignalBuy, SignalSell, SignalHold:
	default:
		return false
	}
	return s.Symbol != "" && s.Price > 0 && s.Confidence >= 0 && s.Confidence <= 1
}
