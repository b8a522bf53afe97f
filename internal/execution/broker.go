package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jacattac314/Titan-Finance/internal/domain"
)

// Account is the flattened brokerage account state consumed by the
// circuit-breaker poll loop.
type Account struct {
	Equity         float64
	Cash           float64
	BuyingPower    float64
	PortfolioValue float64
	UnrealizedPL   float64
	Status         string
}

// Brokerage is the live order-routing contract. The connector holds its own
// kill-switch and manual-approval flags; either one short-circuits
// SubmitMarketOrder independently of the risk governor's state.
type Brokerage interface {
	GetAccount(ctx context.Context) (Account, error)
	SubmitMarketOrder(ctx context.Context, symbol string, qty int64, side domain.OrderSide) (orderID string, err error)
	LiquidateAll(ctx context.Context) error
	CloseAllPositions(ctx context.Context) error
}

// AlpacaConnector implements Brokerage against an Alpaca-shaped REST API.
type AlpacaConnector struct {
	baseURL   string
	apiKey    string
	apiSecret string
	client    *http.Client
	logger    *slog.Logger

	mu                 sync.Mutex
	killSwitchActive   bool
	manualApprovalMode bool
}

// NewAlpacaConnector creates a connector. An empty API key is a startup
// configuration error in live mode and is rejected here.
func NewAlpacaConnector(baseURL, apiKey, apiSecret string, logger *slog.Logger) (*AlpacaConnector, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("broker: api key and secret are required")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("broker: base url is required")
	}
	return &AlpacaConnector{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    logger.With(slog.String("component", "broker")),
	}, nil
}

// ActivateKillSwitch halts all order submission immediately.
func (c *AlpacaConnector) ActivateKillSwitch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.killSwitchActive = true
	c.logger.Error("kill switch activated, all order submission halted")
}

// DeactivateKillSwitch re-enables automated trading after manual review.
func (c *AlpacaConnector) DeactivateKillSwitch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.killSwitchActive = false
	c.logger.Warn("kill switch deactivated, automated trading resumed")
}

// ActivateManualApprovalMode suspends auto-submission; signals are logged
// but not routed until the mode is cleared.
func (c *AlpacaConnector) ActivateManualApprovalMode() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manualApprovalMode = true
	c.logger.Warn("manual approval mode active, auto-execution suspended")
}

// DeactivateManualApprovalMode resumes auto-execution.
func (c *AlpacaConnector) DeactivateManualApprovalMode() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manualApprovalMode = false
	c.logger.Info("manual approval mode deactivated")
}

// IsBlocked reports whether any internal flag forbids submission.
func (c *AlpacaConnector) IsBlocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.killSwitchActive || c.manualApprovalMode
}

// ExecuteSignal maps an integer model signal to an order side and submits a
// market order: 1 → BUY, -1 → SELL, 0 (HOLD) → refused. Any internal block
// flag also refuses submission.
func (c *AlpacaConnector) ExecuteSignal(ctx context.Context, symbol string, signal int, qty int64) (string, error) {
	if c.IsBlocked() {
		return "", fmt.Errorf("broker: %w", domain.ErrTradingHalted)
	}

	var side domain.OrderSide
	switch signal {
	case 1:
		side = domain.OrderSideBuy
	case -1:
		side = domain.OrderSideSell
	default:
		return "", fmt.Errorf("broker: %w: hold signals are not submittable", domain.ErrInvalidOrder)
	}

	return c.SubmitMarketOrder(ctx, symbol, qty, side)
}

// GetAccount fetches the current account state.
func (c *AlpacaConnector) GetAccount(ctx context.Context) (Account, error) {
	var raw struct {
		Equity         string `json:"equity"`
		Cash           string `json:"cash"`
		BuyingPower    string `json:"buying_power"`
		PortfolioValue string `json:"portfolio_value"`
		UnrealizedPL   string `json:"unrealized_pl"`
		Status         string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/v2/account", nil, &raw); err != nil {
		return Account{}, err
	}

	return Account{
		Equity:         parseFloat(raw.Equity),
		Cash:           parseFloat(raw.Cash),
		BuyingPower:    parseFloat(raw.BuyingPower),
		PortfolioValue: parseFloat(raw.PortfolioValue),
		UnrealizedPL:   parseFloat(raw.UnrealizedPL),
		Status:         raw.Status,
	}, nil
}

// SubmitMarketOrder posts a day market order. Internal block flags
// short-circuit before any network traffic.
func (c *AlpacaConnector) SubmitMarketOrder(ctx context.Context, symbol string, qty int64, side domain.OrderSide) (string, error) {
	if c.IsBlocked() {
		return "", fmt.Errorf("broker: %w", domain.ErrTradingHalted)
	}
	if qty <= 0 {
		return "", fmt.Errorf("broker: %w: qty %d", domain.ErrInvalidOrder, qty)
	}

	body := map[string]any{
		"symbol":        symbol,
		"qty":           strconv.FormatInt(qty, 10),
		"side":          string(side),
		"type":          "market",
		"time_in_force": "day",
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "/v2/orders", body, &resp); err != nil {
		return "", err
	}

	c.logger.Info("order submitted",
		slog.String("order_id", resp.ID),
		slog.String("symbol", symbol),
		slog.String("side", string(side)),
		slog.Int64("qty", qty),
		slog.String("status", resp.Status),
	)
	return resp.ID, nil
}

// LiquidateAll closes every open position and cancels outstanding orders.
func (c *AlpacaConnector) LiquidateAll(ctx context.Context) error {
	c.logger.Error("emergency liquidation: closing all positions, cancelling orders")
	return c.do(ctx, http.MethodDelete, "/v2/positions?cancel_orders=true", nil, nil)
}

// CloseAllPositions closes every open position without touching open orders.
func (c *AlpacaConnector) CloseAllPositions(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/v2/positions", nil, nil)
}

func (c *AlpacaConnector) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("broker: marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("broker: build request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", c.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.apiSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("broker: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("broker: %s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("broker: decode response: %w", err)
	}
	return nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

var _ Brokerage = (*AlpacaConnector)(nil)

// AccountPoller runs the live-mode circuit breaker: it polls the brokerage
// account on a fixed cadence, computes the daily return from unrealised P&L,
// and trips the kill switch (with liquidation) when the drawdown limit is
// breached.
type AccountPoller struct {
	broker       *AlpacaConnector
	bus          domain.SignalBus
	auditLog     AuditSink
	interval     time.Duration
	drawdownPct  float64
	logger       *slog.Logger

	startingEquity float64
}

// AuditSink is the subset of the audit logger the poller needs.
type AuditSink interface {
	LogKillSwitch(ctx context.Context, trigger string, drawdownPct, equity float64)
}

// NewAccountPoller creates an AccountPoller.
func NewAccountPoller(broker *AlpacaConnector, bus domain.SignalBus, auditLog AuditSink, interval time.Duration, drawdownPct float64, logger *slog.Logger) *AccountPoller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if drawdownPct <= 0 {
		drawdownPct = 0.03
	}
	return &AccountPoller{
		broker:      broker,
		bus:         bus,
		auditLog:    auditLog,
		interval:    interval,
		drawdownPct: drawdownPct,
		logger:      logger.With(slog.String("component", "account_poller")),
	}
}

// Run polls until the context is cancelled. Poll failures are transient:
// logged and retried on the next tick.
func (p *AccountPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *AccountPoller) poll(ctx context.Context) {
	acct, err := p.broker.GetAccount(ctx)
	if err != nil {
		p.logger.Warn("account poll failed", slog.String("error", err.Error()))
		return
	}

	if p.startingEquity == 0 && acct.Equity > 0 {
		p.startingEquity = acct.Equity
	}
	if p.startingEquity <= 0 {
		return
	}

	dailyReturn := acct.UnrealizedPL / p.startingEquity
	if dailyReturn > -p.drawdownPct || p.broker.IsBlocked() {
		return
	}

	p.logger.Error("circuit breaker tripped",
		slog.Float64("daily_return", dailyReturn),
		slog.Float64("limit", -p.drawdownPct),
	)

	p.broker.ActivateKillSwitch()
	if err := p.broker.LiquidateAll(ctx); err != nil {
		p.logger.Error("liquidation failed", slog.String("error", err.Error()))
	}
	if p.auditLog != nil {
		p.auditLog.LogKillSwitch(ctx, "account_poll_drawdown", dailyReturn, acct.Equity)
	}

	cmd, err := json.Marshal(domain.RiskCommand{
		Command: domain.CommandLiquidateAll,
		Reason:  "broker_drawdown_circuit_breaker",
	})
	if err == nil {
		if err := p.bus.Publish(ctx, domain.TopicRiskCommands, cmd); err != nil {
			p.logger.Warn("risk command publish failed", slog.String("error", err.Error()))
		}
	}
}
