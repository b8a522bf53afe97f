package domain

import "time"

// OrderSide is the lowercase side carried by execution requests.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// FillSide is the uppercase side carried by fills.
type FillSide string

const (
	FillSideBuy  FillSide = "BUY"
	FillSideSell FillSide = "SELL"
)

// FillStatusFilled is the only status a published fill may carry.
const FillStatusFilled = "FILLED"

// ExecutionMode selects simulated or live order routing.
type ExecutionMode string

const (
	ModePaper ExecutionMode = "paper"
	ModeLive  ExecutionMode = "live"
)

// ExecutionRequest is a risk-approved, pre-sized order intent published on
// the execution_requests topic. Only the risk governor creates these.
type ExecutionRequest struct {
	ModelID     string        `json:"model_id"`
	Symbol      string        `json:"symbol"`
	Side        OrderSide     `json:"side"`
	Qty         int64         `json:"qty"`
	Type        string        `json:"type"`
	Price       float64       `json:"price,omitempty"`
	Confidence  float64       `json:"confidence"`
	Explanation []Attribution `json:"explanation,omitempty"`
	Timestamp   int64         `json:"timestamp"`
}

// Valid enforces the execution_requests schema: lowercase side present and a
// positive integer quantity. A raw TradeSignal payload decoded into this
// struct has neither and fails here.
func (r ExecutionRequest) Valid() bool {
	if r.Side != OrderSideBuy && r.Side != OrderSideSell {
		return false
	}
	return r.Symbol != "" && r.Qty > 0
}

// Fill confirms an executed order, published on execution_filled.
type Fill struct {
	ID          string        `json:"id"`
	OrderID     string        `json:"order_id"`
	ModelID     string        `json:"model_id"`
	StrategyID  string        `json:"strategy_id,omitempty"`
	Symbol      string        `json:"symbol"`
	Side        FillSide      `json:"side"`
	Qty         int64         `json:"qty"`
	Price       float64       `json:"price"`
	Timestamp   time.Time     `json:"timestamp"`
	Status      string        `json:"status"`
	Mode        ExecutionMode `json:"mode"`
	Slippage    float64       `json:"slippage"`
	Explanation []Attribution `json:"explanation,omitempty"`
}

// Valid reports whether the fill satisfies the execution_filled schema.
func (f Fill) Valid() bool {
	if f.Side != FillSideBuy && f.Side != FillSideSell {
		return false
	}
	return f.Symbol != "" && f.Qty > 0 && f.Price > 0 && f.Status == FillStatusFilled
}
