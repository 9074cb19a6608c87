package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditx/internal"
	"auditx/internal/pipeline"
	"auditx/internal/storage"
)

const (
	sampleDoc    = `{"id":"doc-1","auditId":"AUD-2026-0042","generatedAt":"2026-02-13T19:20:09Z","overallPercentage":79.06,"moduleAPercentage":80,"moduleBPercentage":78,"gapReport":"[A-1.2] Gap: 0.3 | Score: 70% | Skilling plan incomplete"}`
	malformedDoc = `{"overallPercentage":80}`
)

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	c := &cli{}
	defer c.close()

	root := newRootCmd(c)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DB_PATH", filepath.Join(dir, "auditx.db"))
	t.Setenv("OUTPUT_DIR", filepath.Join(dir, "out"))
	t.Setenv("COSMOS_ENDPOINT", "")
	return dir
}

func seed(t *testing.T, docs ...string) {
	t.Helper()
	db, err := storage.Open(os.Getenv("DB_PATH"))
	require.NoError(t, err)
	defer db.Close()

	n := pipeline.NewNormalizer()
	stored := make([]internal.StoredDocument, 0, len(docs))
	for _, d := range docs {
		rec, err := pipeline.DecodeDocument([]byte(d))
		require.NoError(t, err)
		a, err := n.Normalize(rec)
		require.NoError(t, err)
		stored = append(stored, internal.StoredDocument{ID: a.ID, Raw: json.RawMessage(d), Normalized: &a, FetchedAt: a.NormalizedAt})
	}
	require.NoError(t, db.SaveSyncedAudits(stored))
}

func TestNormalizeArrayFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "docs.json")
	require.NoError(t, os.WriteFile(path, []byte("["+sampleDoc+","+malformedDoc+"]"), 0o644))

	out, errOut, err := run(t, "", "normalize", path)
	require.NoError(t, err)

	var audits []internal.NormalizedAudit
	require.NoError(t, json.Unmarshal([]byte(out), &audits))
	require.Len(t, audits, 1)
	assert.Equal(t, "AUD-2026-0042", audits[0].AuditID)
	assert.Equal(t, internal.StatusPendingReview, audits[0].Status)
	assert.Contains(t, errOut, "skip "+path+"[1]")
}

func TestNormalizeStdinObject(t *testing.T) {
	isolate(t)
	out, _, err := run(t, sampleDoc, "normalize", "-")
	require.NoError(t, err)

	var audits []internal.NormalizedAudit
	require.NoError(t, json.Unmarshal([]byte(out), &audits))
	require.Len(t, audits, 1)
	assert.Len(t, audits[0].Findings, 1)
}

func TestShowAndStatus(t *testing.T) {
	isolate(t)
	seed(t, sampleDoc)

	out, _, err := run(t, "", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "AUD-2026-0042")
	assert.Contains(t, out, "pending_review")

	out, _, err = run(t, "", "status", "AUD-2026-0042", "approved", "--reviewer", "kim")
	require.NoError(t, err)
	assert.Equal(t, "AUD-2026-0042: pending_review -> approved\n", out)

	out, _, err = run(t, "", "show", "doc-1")
	require.NoError(t, err)
	var a internal.NormalizedAudit
	require.NoError(t, json.Unmarshal([]byte(out), &a))
	assert.Equal(t, internal.StatusApproved, a.Status)
	require.NotNil(t, a.StatusOverride)
	assert.Equal(t, "kim", a.StatusOverride.Reviewer)

	_, _, err = run(t, "", "status", "AUD-2026-0042", "in_progress")
	assert.Error(t, err)
}

func TestExportWritesWorkbook(t *testing.T) {
	dir := isolate(t)
	seed(t, sampleDoc)

	target := filepath.Join(dir, "audits.xlsx")
	out, _, err := run(t, "", "export", "--out", target)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 1 audits")
	assert.FileExists(t, target)
}

func TestExportEmptyStore(t *testing.T) {
	isolate(t)
	_, _, err := run(t, "", "export")
	assert.Error(t, err)
}
