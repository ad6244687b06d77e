package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/innowave/analytiqa/internal/importer"
	"github.com/innowave/analytiqa/internal/worksheet"
)

// Inbox is the part of Client the syncer needs.
type Inbox interface {
	ListPending(ctx context.Context) ([]Upload, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key, contentType string, data []byte) error
	Move(ctx context.Context, src, dst string) error
}

// Importer runs one worksheet import.
type Importer interface {
	Import(ctx context.Context, sheet *worksheet.Sheet, user string) importer.Result
}

// Syncer polls the worksheet inbox and imports every upload it finds.
type Syncer struct {
	inbox    Inbox
	importer Importer
	logger   *slog.Logger
	now      func() time.Time
}

// NewSyncer creates a Syncer that imports uploads from inbox.
func NewSyncer(inbox Inbox, imp Importer, logger *slog.Logger) *Syncer {
	return &Syncer{inbox: inbox, importer: imp, logger: logger, now: time.Now}
}

// Run performs an immediate sync and then repeats every interval until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	s.SyncOnce(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping")
			return
		case <-ticker.C:
			s.SyncOnce(ctx)
		}
	}
}

// SyncOnce imports each pending upload and archives it under done/ or
// failed/ with the import result stored next to it.
func (s *Syncer) SyncOnce(ctx context.Context) {
	uploads, err := s.inbox.ListPending(ctx)
	if err != nil {
		s.logger.Error("list inbox", "error", err)
		return
	}
	for _, u := range uploads {
		if ctx.Err() != nil {
			return
		}
		s.process(ctx, u)
	}
}

func (s *Syncer) process(ctx context.Context, u Upload) {
	res := s.importUpload(ctx, u)

	dst := ArchiveKey(u, res.Status, s.now())
	if err := s.inbox.Move(ctx, u.Key, dst); err != nil {
		s.logger.Error("archive upload", "key", u.Key, "error", err)
		return
	}
	if body, err := json.MarshalIndent(res, "", "  "); err == nil {
		if err := s.inbox.Put(ctx, dst+".result.json", "application/json", body); err != nil {
			s.logger.Warn("store import result", "key", dst, "error", err)
		}
	}
	s.logger.Info("upload processed", "key", u.Key, "user", u.User, "archived", dst,
		"created", res.Created, "skipped", res.Skipped, "ok", res.Status)
}

func (s *Syncer) importUpload(ctx context.Context, u Upload) importer.Result {
	data, err := s.inbox.Get(ctx, u.Key)
	if err != nil {
		return failed(err)
	}
	sheet, err := worksheet.Open(bytes.NewReader(data))
	if err != nil {
		return failed(err)
	}
	return s.importer.Import(ctx, sheet, u.User)
}

func failed(err error) importer.Result {
	return importer.Result{StatusCode: 400, Message: err.Error()}
}
