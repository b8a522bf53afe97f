package domain

import (
	"context"
	"io"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TickStore persists raw market ticks for time-series analysis.
type TickStore interface {
	InsertBatch(ctx context.Context, ticks []Tick) error
	ListBySymbol(ctx context.Context, symbol string, opts ListOpts) ([]Tick, error)
}

// FillStore persists executed fills. This is an append-only mirror for
// analysis and dashboards; ledger state is not recovered from it.
type FillStore interface {
	Insert(ctx context.Context, fill Fill) error
	ListByModel(ctx context.Context, modelID string, opts ListOpts) ([]Fill, error)
}

// AuditStore persists the audit taxonomy (SIGNAL, ORDER, FILL, KILL_SWITCH,
// MANUAL_APPROVAL_MODE) so the trail survives log rotation and can be
// queried per model. The audit logger treats it as a best-effort sink.
type AuditStore interface {
	Log(ctx context.Context, eventType, modelID string, detail map[string]any) error
	ListByModel(ctx context.Context, modelID string, opts ListOpts) ([]AuditEntry, error)
	ListByEvent(ctx context.Context, eventType string, opts ListOpts) ([]AuditEntry, error)
}

// AuditEntry is a persisted audit record.
type AuditEntry struct {
	ID        int64
	EventType string
	ModelID   string
	Detail    map[string]any
	CreatedAt time.Time
}

// BlobWriter uploads objects to blob storage. Used by the audit archiver to
// ship sealed JSONL segments to S3-compatible storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}
