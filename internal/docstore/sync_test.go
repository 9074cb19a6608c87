package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"auditx/internal"
	"auditx/internal/metrics"
	"auditx/internal/pipeline"
	"auditx/internal/storage"
)

type fakeLister struct {
	docs []json.RawMessage
	err  error
}

func (f *fakeLister) ListDocuments(context.Context) ([]json.RawMessage, error) {
	return f.docs, f.err
}

var syncNow = time.Date(2026, 2, 14, 8, 0, 0, 0, time.UTC)

func newSyncService(t *testing.T, lister DocumentLister) (*SyncService, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "auditx.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	svc := NewSyncServiceWithLister(db, lister, zap.NewNop(), metrics.New(prometheus.NewRegistry()))
	clock := func() time.Time { return syncNow }
	svc.now = clock
	svc.normalizer = pipeline.NewNormalizer(pipeline.WithClock(clock))
	return svc, db
}

func rawDocs(docs ...string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(docs))
	for _, d := range docs {
		out = append(out, json.RawMessage(d))
	}
	return out
}

func TestSyncNormalizesAndSkips(t *testing.T) {
	lister := &fakeLister{docs: rawDocs(
		`{"id":"doc-1","auditId":"AUD-2026-0042","generatedAt":"2026-02-13T19:20:09Z","overallPercentage":91}`,
		`{"id":"doc-2","auditId":"AUD-2026-0043","generatedAt":"2026-02-10T00:00:00Z","overallPercentage":"65"}`,
		`{"overallPercentage":80}`,
		`["not","an","object"]`,
	)}
	svc, db := newSyncService(t, lister)

	res, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncOK, res.State)
	assert.Equal(t, 4, res.Fetched)
	assert.Equal(t, 2, res.Normalized)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, "2026-02-14T08:00:00Z", res.FinishedAt)

	audits, err := db.ListAudits("")
	require.NoError(t, err)
	require.Len(t, audits, 2)
	assert.Equal(t, internal.StatusApproved, audits[0].Status)
	assert.Equal(t, internal.StatusRejected, audits[1].Status)

	last, err := svc.LastSync()
	require.NoError(t, err)
	assert.Equal(t, "2026-02-14T08:00:00Z", last)

	runs, err := db.ListRuns("sync", 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].Counts["skipped"])
}

func TestSyncReappliesOverrides(t *testing.T) {
	lister := &fakeLister{docs: rawDocs(`{"id":"doc-1","auditId":"AUD-1","overallPercentage":75}`)}
	svc, db := newSyncService(t, lister)

	_, err := svc.Sync(context.Background())
	require.NoError(t, err)

	updated, err := svc.OverrideStatus("AUD-1", internal.StatusApproved, "lead", "manual check")
	require.NoError(t, err)
	assert.Equal(t, internal.StatusApproved, updated.Status)
	assert.Equal(t, internal.StatusPendingReview, updated.StatusOverride.Previous)

	res, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Overridden)

	got, err := db.GetAudit("doc-1")
	require.NoError(t, err)
	assert.Equal(t, internal.StatusApproved, got.Status)
	require.NotNil(t, got.StatusOverride)
	assert.Equal(t, "lead", got.StatusOverride.Reviewer)
	assert.Equal(t, "2026-02-14T08:00:00Z", got.StatusOverride.AppliedAt)
}

func TestOverrideStatusRejectsUnknown(t *testing.T) {
	svc, _ := newSyncService(t, &fakeLister{})
	_, err := svc.OverrideStatus("missing", internal.StatusApproved, "", "")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = svc.OverrideStatus("missing", internal.AuditStatus("done"), "", "")
	assert.Error(t, err)
}

func TestSyncStates(t *testing.T) {
	svc, _ := newSyncService(t, &fakeLister{err: ErrNotConfigured})
	res, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncNoData, res.State)
	assert.NotEmpty(t, res.Warning)

	svc, _ = newSyncService(t, &fakeLister{docs: rawDocs()})
	res, err = svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncNoData, res.State)

	boom := errors.New("connection reset")
	svc, _ = newSyncService(t, &fakeLister{err: boom})
	res, err = svc.Sync(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, SyncError, res.State)
	assert.Equal(t, "connection reset", res.Error)
}
