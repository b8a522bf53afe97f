// Package audit implements the append-only MLOps audit trail. Every signal,
// order, fill, kill-switch and model-rollback event is written as one JSON
// line to a local file and simultaneously published on the audit_events
// topic so dashboards can stream it. Failures on either path are logged and
// never propagate; an audit problem must never block a fill.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jacattac314/Titan-Finance/internal/domain"
)

// Event type labels. These five values form the complete event taxonomy.
const (
	EventSignal             = "SIGNAL"
	EventOrder              = "ORDER"
	EventFill               = "FILL"
	EventKillSwitch         = "KILL_SWITCH"
	EventManualApprovalMode = "MANUAL_APPROVAL_MODE"
)

// Logger appends audit records to a JSONL file and mirrors them to the bus
// and, when a store is wired, to the Postgres audit mirror. Construct one
// per service and pass it by reference; there is no process singleton.
type Logger struct {
	path   string
	bus    domain.SignalBus
	store  domain.AuditStore
	logger *slog.Logger

	mu   sync.Mutex
	file *os.File
}

// New creates a Logger writing to path. The parent directory is created when
// missing. bus and store may be nil; each missing sink is simply skipped.
func New(path string, bus domain.SignalBus, store domain.AuditStore, logger *slog.Logger) (*Logger, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Logger{
		path:   path,
		bus:    bus,
		store:  store,
		logger: logger.With(slog.String("component", "audit")),
		file:   f,
	}, nil
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Path returns the JSONL destination.
func (l *Logger) Path() string { return l.path }

// emit builds the record with the shared base fields, appends it to the
// JSONL file, publishes it on audit_events, and mirrors it to the store.
// Every sink is best-effort; an audit failure must never block a fill.
func (l *Logger) emit(ctx context.Context, eventType string, fields map[string]any) {
	record := map[string]any{
		"event_type": eventType,
		"logged_at":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range fields {
		record[k] = v
	}

	payload, err := json.Marshal(record)
	if err != nil {
		l.logger.Error("audit record marshal failed", slog.String("error", err.Error()))
		return
	}

	l.mu.Lock()
	if l.file != nil {
		if _, err := l.file.Write(append(payload, '\n')); err != nil {
			l.logger.Error("audit disk write failed", slog.String("error", err.Error()))
		}
	}
	l.mu.Unlock()

	if l.bus != nil {
		if err := l.bus.Publish(ctx, domain.TopicAuditEvents, payload); err != nil {
			l.logger.Warn("audit publish failed", slog.String("error", err.Error()))
		}
	}

	if l.store != nil {
		modelID, _ := record["model_id"].(string)
		if err := l.store.Log(ctx, eventType, modelID, record); err != nil {
			l.logger.Warn("audit store mirror failed", slog.String("error", err.Error()))
		}
	}
}

// LogSignal records an inbound strategy signal before any execution gate is
// applied.
func (l *Logger) LogSignal(ctx context.Context, sig domain.TradeSignal, modelVersion string) {
	l.emit(ctx, EventSignal, map[string]any{
		"model_id":      sig.ModelID,
		"model_version": modelVersion,
		"symbol":        sig.Symbol,
		"signal":        sig.Signal,
		"confidence":    sig.Confidence,
		"price":         sig.Price,
		"explanation":   sig.Explanation,
	})
}

// LogOrder records a risk-approved order submission.
func (l *Logger) LogOrder(ctx context.Context, req domain.ExecutionRequest, orderID, status string, mode domain.ExecutionMode, modelVersion string) {
	l.emit(ctx, EventOrder, map[string]any{
		"model_id":      req.ModelID,
		"model_version": modelVersion,
		"symbol":        req.Symbol,
		"side":          req.Side,
		"qty":           req.Qty,
		"price":         req.Price,
		"confidence":    req.Confidence,
		"order_id":      orderID,
		"status":        status,
		"mode":          mode,
	})
}

// LogFill records an executed trade (paper or live).
func (l *Logger) LogFill(ctx context.Context, fill domain.Fill, modelVersion string) {
	l.emit(ctx, EventFill, map[string]any{
		"model_id":      fill.ModelID,
		"model_version": modelVersion,
		"id":            fill.ID,
		"order_id":      fill.OrderID,
		"symbol":        fill.Symbol,
		"side":          fill.Side,
		"qty":           fill.Qty,
		"price":         fill.Price,
		"status":        fill.Status,
		"mode":          fill.Mode,
		"slippage":      fill.Slippage,
	})
}

// LogKillSwitch records a kill-switch activation.
func (l *Logger) LogKillSwitch(ctx context.Context, trigger string, drawdownPct, equity float64) {
	l.emit(ctx, EventKillSwitch, map[string]any{
		"model_id":      "system",
		"model_version": "v1.0",
		"trigger":       trigger,
		"drawdown_pct":  drawdownPct,
		"equity":        equity,
	})
}

// LogManualApprovalMode records a rollback to manual-approval mode.
func (l *Logger) LogManualApprovalMode(ctx context.Context, trigger, reason, metricName string, metricValue, threshold float64) {
	l.emit(ctx, EventManualApprovalMode, map[string]any{
		"model_id":      "system",
		"model_version": "v1.0",
		"trigger":       trigger,
		"reason":        reason,
		"metric_name":   metricName,
		"metric_value":  metricValue,
		"threshold":     threshold,
	})
}
