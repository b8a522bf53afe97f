package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jacattac314/Titan-Finance/internal/domain"
)

const wsReconnectDelay = 5 * time.Second

// WSProvider streams live trades from a brokerage websocket endpoint
// (Alpaca-shaped protocol: authenticate, subscribe to trades, then a stream
// of JSON message arrays). It reconnects with a bounded back-off.
type WSProvider struct {
	url       string
	apiKey    string
	apiSecret string
	logger    *slog.Logger
}

// NewWSProvider creates a websocket provider.
func NewWSProvider(url, apiKey, apiSecret string, logger *slog.Logger) *WSProvider {
	return &WSProvider{
		url:       url,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		logger:    logger.With(slog.String("component", "ws_provider")),
	}
}

// Name identifies the provider in tick records.
func (p *WSProvider) Name() string { return "websocket" }

// Run connects and streams until the context is cancelled.
func (p *WSProvider) Run(ctx context.Context, symbols []string, handler TickHandler) error {
	if p.url == "" {
		return fmt.Errorf("gateway: websocket url is required")
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := p.stream(ctx, symbols, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Warn("stream disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("backoff", wsReconnectDelay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wsReconnectDelay):
		}
	}
}

// stream runs one websocket session: dial, authenticate, subscribe, read.
func (p *WSProvider) stream(ctx context.Context, symbols []string, handler TickHandler) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, p.url, nil)
	if err != nil {
		return fmt.Errorf("gateway: dial %s: %w", p.url, err)
	}
	defer conn.Close()

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	auth := map[string]string{
		"action": "auth",
		"key":    p.apiKey,
		"secret": p.apiSecret,
	}
	if err := conn.WriteJSON(auth); err != nil {
		return fmt.Errorf("gateway: auth write: %w", err)
	}

	sub := map[string]any{
		"action": "subscribe",
		"trades": symbols,
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("gateway: subscribe write: %w", err)
	}
	p.logger.Info("trade stream subscribed", slog.Any("symbols", symbols))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("gateway: %w: %v", domain.ErrWSDisconnect, err)
		}

		// The stream frames messages as JSON arrays.
		var messages []wsTradeMessage
		if err := json.Unmarshal(data, &messages); err != nil {
			p.logger.Warn("stream message decode failed, dropping", slog.String("error", err.Error()))
			continue
		}

		for _, msg := range messages {
			if msg.Type != "t" || msg.Symbol == "" || msg.Price <= 0 {
				continue
			}
			ts := msg.Timestamp
			if ts.IsZero() {
				ts = time.Now().UTC()
			}
			handler(ctx, domain.Tick{
				Type:      domain.TickTypeTrade,
				Symbol:    msg.Symbol,
				Price:     msg.Price,
				Size:      msg.Size,
				Timestamp: ts.UnixNano(),
				Provider:  p.Name(),
			})
		}
	}
}

// wsTradeMessage is the wire shape of one stream element.
type wsTradeMessage struct {
	Type      string    `json:"T"`
	Symbol    string    `json:"S"`
	Price     float64   `json:"p"`
	Size      int64     `json:"s"`
	Timestamp time.Time `json:"t"`
}
