package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jacattac314/Titan-Finance/internal/domain"
)

const reconnectDelay = 5 * time.Second

// AlertListener watches the risk_commands topic and pushes an operator alert
// for every command: a kill switch or model rollback is exactly the moment a
// human needs to look at the arena.
type AlertListener struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewAlertListener creates an AlertListener.
func NewAlertListener(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *AlertListener {
	return &AlertListener{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "alert_listener")),
	}
}

// Run consumes risk commands until the context is cancelled, re-subscribing
// with a bounded back-off on bus failure.
func (l *AlertListener) Run(ctx context.Context) error {
	for {
		msgs, err := l.bus.Subscribe(ctx, domain.TopicRiskCommands)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Error("risk_commands subscribe failed, retrying",
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(reconnectDelay):
			}
			continue
		}

		if err := l.consume(ctx, msgs); err != nil {
			return err
		}

		// Subscription lost: back off, resubscribe.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

// consume drains one subscription until it closes or the context ends.
func (l *AlertListener) consume(ctx context.Context, msgs <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-msgs:
			if !ok {
				return nil
			}
			l.handle(ctx, payload)
		}
	}
}

func (l *AlertListener) handle(ctx context.Context, payload []byte) {
	var cmd domain.RiskCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return
	}

	var title, message string
	switch cmd.Command {
	case domain.CommandLiquidateAll:
		title = "Kill switch tripped"
		message = fmt.Sprintf("Order flow halted: %s", cmd.Reason)
	case domain.CommandActivateManualApproval:
		title = "Model rollback"
		message = fmt.Sprintf("Manual approval mode active: %s", cmd.Reason)
		if cmd.RollingSharpe != nil {
			message += fmt.Sprintf(" (sharpe %.2f)", *cmd.RollingSharpe)
		}
		if cmd.RollingAccuracy != nil {
			message += fmt.Sprintf(" (accuracy %.0f%%)", *cmd.RollingAccuracy*100)
		}
	case domain.CommandResetKillSwitch:
		title = "Kill switch reset"
		message = fmt.Sprintf("Order flow resumed: %s", cmd.Reason)
	default:
		return
	}

	if err := l.notifier.Notify(ctx, title, message); err != nil {
		l.logger.Warn("alert delivery incomplete", slog.String("error", err.Error()))
	}
}
