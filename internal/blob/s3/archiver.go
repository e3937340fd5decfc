package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mirrorbot/mirrorbot/internal/config"
	"github.com/mirrorbot/mirrorbot/internal/domain"
)

// archiveBatch caps the rows exported per table per run. A full page means
// more rows remain; the next run picks them up.
const archiveBatch = 5000

// SignalArchiveStore is the slice of the signal store the archiver needs.
type SignalArchiveStore interface {
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.TradeSignal, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ExecutionArchiveStore is the slice of the execution store the archiver needs.
type ExecutionArchiveStore interface {
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Execution, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ObjectChecker verifies an uploaded object before rows are pruned.
type ObjectChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver exports trade signals and executions older than the retention
// window to object storage as JSONL, then deletes the exported rows. Rows
// are never deleted until the uploaded object is verified readable.
type Archiver struct {
	cfg     config.ArchiveConfig
	writer  domain.BlobWriter
	check   ObjectChecker
	signals SignalArchiveStore
	execs   ExecutionArchiveStore
	log     *slog.Logger
	now     func() time.Time
}

// NewArchiver creates an Archiver.
func NewArchiver(cfg config.ArchiveConfig, writer domain.BlobWriter, check ObjectChecker, signals SignalArchiveStore, execs ExecutionArchiveStore, log *slog.Logger) *Archiver {
	return &Archiver{
		cfg:     cfg,
		writer:  writer,
		check:   check,
		signals: signals,
		execs:   execs,
		log:     log.With("component", "archiver"),
		now:     time.Now,
	}
}

// Run executes one archive pass over both tables.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := a.now().UTC().AddDate(0, 0, -a.cfg.RetentionDays)

	nSignals, err := a.archiveSignals(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("s3blob: archive signals before %v: %w", cutoff, err)
	}

	nExecs, err := a.archiveExecutions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("s3blob: archive executions before %v: %w", cutoff, err)
	}

	a.log.Info("archive run complete",
		"cutoff", cutoff,
		"signals_archived", nSignals,
		"executions_archived", nExecs,
	)
	return nil
}

// RunLoop runs archive passes on the configured interval until ctx is
// canceled. A failed pass is logged and retried on the next tick.
func (a *Archiver) RunLoop(ctx context.Context) error {
	interval := a.cfg.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	a.log.Info("archiver started", "interval", interval, "retention_days", a.cfg.RetentionDays)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := a.Run(ctx); err != nil {
			a.log.Error("archive run failed", "error", err.Error())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *Archiver) archiveSignals(ctx context.Context, cutoff time.Time) (int64, error) {
	rows, err := a.signals.ListBefore(ctx, cutoff, archiveBatch)
	if err != nil {
		return 0, fmt.Errorf("query: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	// A full page means rows beyond it were not uploaded. Prune only up to
	// the newest exported row; rows at that exact timestamp may be exported
	// again next run, which duplicates archive lines but never loses data.
	pruneBefore := cutoff
	if len(rows) == archiveBatch {
		pruneBefore = rows[len(rows)-1].ObservedAt
	}

	if err := upload(ctx, a, "trade_signals", rows); err != nil {
		return 0, err
	}

	deleted, err := a.signals.DeleteBefore(ctx, pruneBefore)
	if err != nil {
		return int64(len(rows)), fmt.Errorf("prune: %w", err)
	}
	a.log.Info("signals archived", "exported", len(rows), "pruned", deleted)
	return int64(len(rows)), nil
}

func (a *Archiver) archiveExecutions(ctx context.Context, cutoff time.Time) (int64, error) {
	rows, err := a.execs.ListBefore(ctx, cutoff, archiveBatch)
	if err != nil {
		return 0, fmt.Errorf("query: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	pruneBefore := cutoff
	if len(rows) == archiveBatch {
		pruneBefore = rows[len(rows)-1].ExecutedAt
	}

	if err := upload(ctx, a, "executions", rows); err != nil {
		return 0, err
	}

	deleted, err := a.execs.DeleteBefore(ctx, pruneBefore)
	if err != nil {
		return int64(len(rows)), fmt.Errorf("prune: %w", err)
	}
	a.log.Info("executions archived", "exported", len(rows), "pruned", deleted)
	return int64(len(rows)), nil
}

// upload serializes records to JSONL, writes the object, and verifies it is
// readable before reporting success.
func upload[T any](ctx context.Context, a *Archiver, kind string, records []T) error {
	buf, err := marshalJSONL(records)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	path := a.objectPath(kind)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	ok, err := a.check.Exists(ctx, path)
	if err != nil {
		return fmt.Errorf("verify %s: %w", path, err)
	}
	if !ok {
		return fmt.Errorf("verify %s: object missing after upload", path)
	}
	return nil
}

// objectPath builds the object key, unique per run:
//
//	archive/trade_signals/20260115T030000Z.jsonl
func (a *Archiver) objectPath(kind string) string {
	return fmt.Sprintf("%s/%s/%s.jsonl", a.cfg.Prefix, kind, a.now().UTC().Format("20060102T150405Z"))
}

// marshalJSONL serializes a slice as newline-delimited JSON, one compact
// line per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, r := range records {
		if err := enc.Encode(r); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
