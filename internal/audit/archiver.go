package audit

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jacattac314/Titan-Finance/internal/domain"
)

// multipartThreshold is the segment size above which the archiver switches to
// multipart upload.
const multipartThreshold = 8 * 1024 * 1024

// Archiver uploads a copy of the current JSONL audit log, as it stands, to
// blob storage. It does not rotate, truncate or seal the log, and it does not
// delete the local file; the operator removes it after the archive has been
// verified.
type Archiver struct {
	writer domain.BlobWriter
	prefix string
	logger *slog.Logger
}

// NewArchiver creates an Archiver uploading under the given key prefix.
func NewArchiver(writer domain.BlobWriter, prefix string, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		prefix: prefix,
		logger: logger.With(slog.String("component", "audit_archiver")),
	}
}

// Archive reads the audit log at path and uploads it as a dated JSONL object.
// The object key is <prefix>/<yyyy>/<mm>/trade_audit_<unix>.jsonl.
func (a *Archiver) Archive(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("audit: read segment %s: %w", path, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("audit: segment %s is empty", path)
	}

	now := time.Now().UTC()
	key := fmt.Sprintf("%s/%04d/%02d/trade_audit_%d.jsonl",
		a.prefix, now.Year(), now.Month(), now.Unix())

	if int64(len(data)) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, key, bytes.NewReader(data), multipartThreshold)
	} else {
		err = a.writer.Put(ctx, key, bytes.NewReader(data), "application/x-ndjson")
	}
	if err != nil {
		return "", fmt.Errorf("audit: upload segment: %w", err)
	}

	a.logger.Info("audit segment archived",
		slog.String("key", key),
		slog.Int("bytes", len(data)),
	)
	return key, nil
}

// RunPeriodic archives the audit log on the given interval until the context
// is cancelled. Upload failures are logged and retried on the next tick.
func (a *Archiver) RunPeriodic(ctx context.Context, path string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.Archive(ctx, path); err != nil {
				a.logger.Warn("periodic archive failed", slog.String("error", err.Error()))
			}
		}
	}
}
