package listener

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"auditx/internal"
	"auditx/internal/config"
	"auditx/internal/connectors"
	"auditx/internal/docstore"
	"auditx/internal/pipeline"
	"auditx/internal/storage"
)

type stubSyncer struct {
	result docstore.SyncResult
	err    error
	calls  int
}

func (s *stubSyncer) Sync(context.Context) (docstore.SyncResult, error) {
	s.calls++
	return s.result, s.err
}

type stubFetcher struct {
	result    connectors.FetchResult
	err       error
	label     string
	max       int
	callCount int
}

func (f *stubFetcher) FetchAndStore(_ context.Context, label string, max int) (connectors.FetchResult, error) {
	f.label, f.max = label, max
	f.callCount++
	return f.result, f.err
}

type stubProcessor struct {
	results  []pipeline.IntakeResult
	provider string
	limit    int
}

func (p *stubProcessor) ProcessPending(_ context.Context, limit int, provider string) ([]pipeline.IntakeResult, error) {
	p.limit, p.provider = limit, provider
	return p.results, nil
}

func testConfig(t *testing.T) config.Config {
	return config.Config{
		OutputDir:          t.TempDir(),
		IntakeProvider:     " Gmail ",
		IntakeLabel:        "Evidence",
		IntakeFetchMax:     10,
		IntakeProcessBatch: 5,
		IntakeAutoSync:     true,
		IntakeIntervalSec:  1,
	}
}

func openDB(t *testing.T) *storage.DB {
	db, err := storage.Open(filepath.Join(t.TempDir(), "auditx.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunCycleRunsEveryStage(t *testing.T) {
	cfg := testConfig(t)
	syncer := &stubSyncer{result: docstore.SyncResult{State: docstore.SyncOK}}
	fetcher := &stubFetcher{result: connectors.FetchResult{Fetched: 3, Stored: 3, New: 2}}
	processor := &stubProcessor{results: []pipeline.IntakeResult{
		{Status: internal.IntakeProcessed},
		{Status: internal.IntakeUnmatched},
		{Status: internal.IntakeSkipped},
	}}

	svc := NewService(openDB(t), cfg, syncer, fetcher, processor, zap.NewNop())
	var hooked CycleResult
	svc.OnCycle(func(r CycleResult) { hooked = r })

	res, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, syncer.calls)
	assert.Equal(t, "Evidence", fetcher.label)
	assert.Equal(t, 10, fetcher.max)
	assert.Equal(t, "gmail", processor.provider)
	assert.Equal(t, 5, processor.limit)

	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 2, res.New)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Unmatched)
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, res.Exported)
	assert.Equal(t, res, hooked)
}

func TestRunCycleContinuesPastFailures(t *testing.T) {
	cfg := testConfig(t)
	cfg.IntakeAutoSync = true
	syncer := &stubSyncer{result: docstore.SyncResult{State: docstore.SyncError}, err: errors.New("status 503")}
	fetcher := &stubFetcher{err: errors.New("token expired")}
	processor := &stubProcessor{}

	res, err := NewService(openDB(t), cfg, syncer, fetcher, processor, nil).RunCycle(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "sync: status 503")
	assert.ErrorContains(t, err, "fetch: token expired")
	assert.Equal(t, docstore.SyncError, res.Sync.State)
	assert.Equal(t, "gmail", processor.provider)
}

func TestRunCycleSkipsSyncWhenDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.IntakeAutoSync = false
	syncer := &stubSyncer{}

	res, err := NewService(openDB(t), cfg, syncer, nil, nil, nil).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, syncer.calls)
	assert.Nil(t, res.Sync)
}

func TestRunCycleExportsAfterChanges(t *testing.T) {
	cfg := testConfig(t)
	cfg.IntakeAutoExport = true
	db := openDB(t)

	audit := internal.NormalizedAudit{ID: "doc-1", AuditID: "AUD-1", Status: internal.StatusApproved, OverallScore: 95, GeneratedAt: "2026-02-13T19:20:09Z"}
	require.NoError(t, db.SaveSyncedAudits([]internal.StoredDocument{{ID: "doc-1", Raw: []byte(`{}`), Normalized: &audit, FetchedAt: "2026-02-14T08:00:00Z"}}))

	svc := NewService(db, cfg, &stubSyncer{result: docstore.SyncResult{State: docstore.SyncOK}}, nil, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 2, 14, 8, 0, 0, 0, time.UTC) }

	res, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "listener", "audits_20260214T080000Z.xlsx"), res.Exported)
	_, err = os.Stat(res.Exported)
	assert.NoError(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &stubFetcher{}
	svc := NewService(openDB(t), testConfig(t), nil, fetcher, nil, nil)
	svc.OnCycle(func(CycleResult) { cancel() })

	require.NoError(t, svc.Run(ctx))
	assert.Equal(t, 1, fetcher.callCount)
}
