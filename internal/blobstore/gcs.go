package blobstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storagev1 "google.golang.org/api/storage/v1"

	"auditx/internal/config"
)

// GCSWriter stores evidence objects in a Cloud Storage bucket through the
// JSON API.
type GCSWriter struct {
	service *storagev1.Service
	bucket  string
}

func NewGCSWriter(ctx context.Context, cfg config.Config) (*GCSWriter, error) {
	if err := cfg.Require("BLOB_BUCKET", cfg.BlobBucket); err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.BlobCredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.BlobCredentialsFile))
	} else {
		ts, err := google.DefaultTokenSource(ctx, storagev1.DevstorageReadWriteScope)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotConfigured, err)
		}
		opts = append(opts, option.WithTokenSource(ts))
	}

	svc, err := storagev1.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &GCSWriter{service: svc, bucket: cfg.BlobBucket}, nil
}

func (w *GCSWriter) Write(ctx context.Context, name, contentType string, r io.Reader, size int64, progress func(written int64)) (string, error) {
	obj := &storagev1.Object{Name: name, ContentType: contentType, Size: uint64(size)}
	call := w.service.Objects.Insert(w.bucket, obj).
		Media(r, googleapi.ContentType(contentType)).
		Context(ctx)
	if progress != nil {
		call = call.ProgressUpdater(func(current, _ int64) { progress(current) })
	}

	stored, err := call.Do()
	if err != nil {
		return "", err
	}
	if stored.MediaLink != "" {
		return stored.MediaLink, nil
	}
	return "https://storage.googleapis.com/" + w.bucket + "/" + url.PathEscape(name), nil
}
