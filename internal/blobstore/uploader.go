package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"auditx/internal"
	"auditx/internal/metrics"
)

var ErrNotConfigured = errors.New("blob store not configured")

const generalPrefix = "general"

type ObjectWriter interface {
	Write(ctx context.Context, name, contentType string, r io.Reader, size int64, progress func(written int64)) (string, error)
}

// Uploader sends evidence files to the blob store with bounded concurrency.
// Each file moves through pending, uploading and then success or error; a
// failed file never stops the others.
type Uploader struct {
	writer      ObjectWriter
	concurrency int
	logger      *zap.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewUploader(writer ObjectWriter, concurrency int, logger *zap.Logger, m *metrics.Metrics) *Uploader {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{writer: writer, concurrency: concurrency, logger: logger, metrics: m, now: time.Now}
}

// BlobName places a file under its audit, or under "general" when the audit
// is unknown, prefixed with the upload time in Unix milliseconds.
func BlobName(auditID, fileName string, at time.Time) string {
	prefix := strings.TrimSpace(auditID)
	if prefix == "" {
		prefix = generalPrefix
	}
	return prefix + "/" + strconv.FormatInt(at.UnixMilli(), 10) + "-" + sanitizeName(fileName)
}

// Upload returns one record per file in input order. onProgress, when set,
// sees every state change; calls are serialized.
func (u *Uploader) Upload(ctx context.Context, auditID string, files []internal.EvidenceFile, onProgress func(internal.UploadRecord)) ([]internal.UploadRecord, error) {
	if u == nil || u.writer == nil {
		return nil, ErrNotConfigured
	}

	var mu sync.Mutex
	emit := func(rec internal.UploadRecord) {
		if onProgress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		onProgress(rec)
	}

	createdAt := u.now().UTC()
	records := make([]internal.UploadRecord, len(files))
	taken := make(map[string]int, len(files))
	for i, f := range files {
		records[i] = internal.UploadRecord{
			ID:          uuid.NewString(),
			AuditID:     auditID,
			FileName:    f.Name,
			BlobName:    uniqueBlobName(BlobName(auditID, f.Name, createdAt), taken),
			ContentType: contentTypeOf(f),
			Size:        int64(len(f.Content)),
			Status:      internal.UploadPending,
			CreatedAt:   createdAt.Format(time.RFC3339),
		}
		emit(records[i])
	}

	var g errgroup.Group
	g.SetLimit(u.concurrency)
	for i := range files {
		g.Go(func() error {
			records[i] = u.uploadOne(ctx, files[i], records[i], emit)
			return nil
		})
	}
	_ = g.Wait()

	return records, ctx.Err()
}

func (u *Uploader) uploadOne(ctx context.Context, f internal.EvidenceFile, rec internal.UploadRecord, emit func(internal.UploadRecord)) internal.UploadRecord {
	rec.Status = internal.UploadUploading
	emit(rec)

	lastPercent := 0
	url, err := u.writer.Write(ctx, rec.BlobName, rec.ContentType, bytes.NewReader(f.Content), rec.Size, func(written int64) {
		percent := 100
		if rec.Size > 0 {
			percent = int(written * 100 / rec.Size)
		}
		if percent > 99 {
			percent = 99
		}
		if percent <= lastPercent {
			return
		}
		lastPercent = percent
		progress := rec
		progress.Progress = percent
		emit(progress)
	})

	if err != nil {
		rec.Status = internal.UploadError
		rec.Error = err.Error()
		u.logger.Warn("evidence upload failed", zap.String("blob", rec.BlobName), zap.Error(err))
	} else {
		rec.Status = internal.UploadSuccess
		rec.Progress = 100
		rec.URL = url
		u.logger.Debug("evidence uploaded", zap.String("blob", rec.BlobName), zap.Int64("size", rec.Size))
	}
	u.metrics.ObserveUpload(string(rec.Status), rec.Size)
	emit(rec)
	return rec
}

// uniqueBlobName suffixes repeated names within one batch as name-2.ext,
// name-3.ext and so on.
func uniqueBlobName(name string, taken map[string]int) string {
	taken[name]++
	n := taken[name]
	if n == 1 {
		return name
	}
	ext := path.Ext(name)
	candidate := strings.TrimSuffix(name, ext) + "-" + strconv.Itoa(n) + ext
	if _, used := taken[candidate]; used {
		return uniqueBlobName(name, taken)
	}
	taken[candidate] = 1
	return candidate
}

func contentTypeOf(f internal.EvidenceFile) string {
	if f.ContentType != "" {
		return f.ContentType
	}
	return "application/octet-stream"
}

func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return '_'
		}
		return r
	}, name)
}
