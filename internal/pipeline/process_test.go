package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"auditx/internal"
	"auditx/internal/storage"
)

type fakeUploader struct {
	auditIDs []string
	files    []string
}

func (f *fakeUploader) Upload(_ context.Context, auditID string, files []internal.EvidenceFile, onProgress func(internal.UploadRecord)) ([]internal.UploadRecord, error) {
	f.auditIDs = append(f.auditIDs, auditID)
	out := make([]internal.UploadRecord, 0, len(files))
	for i, file := range files {
		f.files = append(f.files, file.Name)
		rec := internal.UploadRecord{
			ID:        file.Name,
			AuditID:   auditID,
			FileName:  file.Name,
			BlobName:  auditID + "/100" + string(rune('0'+i)) + "-" + file.Name,
			Size:      int64(len(file.Content)),
			Status:    internal.UploadSuccess,
			Progress:  100,
			CreatedAt: "2026-02-14T08:00:00Z",
		}
		onProgress(rec)
		out = append(out, rec)
	}
	return out, nil
}

type fakeIndexer struct {
	docs []internal.EvidenceDocument
}

func (f *fakeIndexer) IndexDocuments(_ context.Context, docs []internal.EvidenceDocument) error {
	f.docs = append(f.docs, docs...)
	return nil
}

func seedIntake(t *testing.T, db *storage.DB, fixture, messageID string) internal.IntakeEmailRow {
	t.Helper()
	blob, err := os.ReadFile(filepath.Join("testdata", fixture))
	require.NoError(t, err)
	rawPath := filepath.Join(t.TempDir(), fixture)
	require.NoError(t, os.WriteFile(rawPath, blob, 0o644))

	row, err := db.UpsertIntakeEmail("imap", messageID, "", "ops@contoso.example", "2026-02-13T19:20:09Z", "hash-"+messageID, rawPath, internal.IntakeFetched)
	require.NoError(t, err)
	return row
}

func TestIntakeServiceProcessPending(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "auditx.db"))
	require.NoError(t, err)
	defer db.Close()

	a, err := fixedNormalizer().Normalize(internal.RawAuditRecord{ID: "doc-42", AuditID: "AUD-2026-0042"})
	require.NoError(t, err)
	require.NoError(t, db.SaveSyncedAudits([]internal.StoredDocument{{ID: "doc-42", Raw: json.RawMessage(`{}`), Normalized: &a, FetchedAt: "2026-02-14T08:00:00Z"}}))

	evidence := seedIntake(t, db, "evidence_submission.eml", "<evidence-0042@contoso.example>")
	news := seedIntake(t, db, "newsletter.eml", "<news-1@vendor.example>")

	uploader := &fakeUploader{}
	indexer := &fakeIndexer{}
	svc := NewIntakeService(db, matchConfig(), uploader, indexer, zap.NewNop(), nil)

	results, err := svc.ProcessPending(context.Background(), 10, "")
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := map[int]IntakeResult{}
	for _, r := range results {
		byID[r.EmailID] = r
	}

	got := byID[evidence.ID]
	assert.Equal(t, internal.IntakeProcessed, got.Status)
	assert.Equal(t, "AUD-2026-0042", got.AuditID)
	assert.Equal(t, 2, got.Uploaded)
	assert.Equal(t, 2, got.Indexed)
	assert.Equal(t, []string{"AUD-2026-0042"}, uploader.auditIDs)
	assert.Equal(t, []string{"skilling-plan.csv", "architecture.png"}, uploader.files)

	titles := []string{}
	for _, d := range indexer.docs {
		titles = append(titles, d.Title)
	}
	assert.ElementsMatch(t, []string{"skilling-plan.csv", "Evidence for AUD-2026-0042 (A-1.2, B-2.1)"}, titles)

	assert.Equal(t, internal.IntakeSkipped, byID[news.ID].Status)

	stored, err := db.GetIntakeEmailByID(evidence.ID)
	require.NoError(t, err)
	assert.Equal(t, internal.IntakeProcessed, stored.Status)
	require.NotNil(t, stored.AuditID)
	assert.Equal(t, "doc-42", *stored.AuditID)

	uploads, err := db.ListUploads("AUD-2026-0042")
	require.NoError(t, err)
	assert.Len(t, uploads, 2)

	pending, err := db.ListIntakeEmailsByStatus(internal.IntakeFetched, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestIntakeServiceUnmatchedWithoutAudits(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "auditx.db"))
	require.NoError(t, err)
	defer db.Close()

	row := seedIntake(t, db, "evidence_submission.eml", "<evidence-0042@contoso.example>")
	uploader := &fakeUploader{}
	svc := NewIntakeService(db, matchConfig(), uploader, nil, nil, nil)

	got, err := svc.ProcessByProviderMessageID(context.Background(), "imap", row.MessageID)
	require.NoError(t, err)
	assert.Equal(t, internal.IntakeUnmatched, got.Status)
	assert.Empty(t, uploader.files)
}
