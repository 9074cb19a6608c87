package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"auditx/internal"
	"auditx/internal/config"
	"auditx/internal/metrics"
)

type fakeRetriever struct {
	docs    []internal.SearchDocument
	err     error
	auditID string
	topK    int
}

func (f *fakeRetriever) SearchAudit(_ context.Context, _ string, auditID string, topK int) ([]internal.SearchDocument, error) {
	f.auditID = auditID
	f.topK = topK
	return f.docs, f.err
}

type fakeGenerator struct {
	system string
	err    error
}

func (f *fakeGenerator) Generate(_ context.Context, system, _ string) (Generation, error) {
	f.system = system
	if f.err != nil {
		return Generation{}, f.err
	}
	return Generation{Content: "answer", Usage: &internal.RAGUsage{TotalTokens: 10}}, nil
}

type memoryLog struct{ records []internal.RAGQueryRecord }

func (m *memoryLog) InsertRAGQuery(q internal.RAGQueryRecord) error {
	m.records = append(m.records, q)
	return nil
}

func doc(title, content string, score float64) internal.SearchDocument {
	return internal.SearchDocument{Fields: map[string]any{"document_title": title, "content_text": content}, Score: score}
}

func newTestService(r Retriever, g Generator, log QueryLog) *Service {
	cfg := config.Config{SearchTopK: 3, RAGMaxDocChars: 20}
	s := NewService(cfg, r, g, log, zap.NewNop(), metrics.New(prometheus.NewRegistry()))
	tick := time.Date(2026, 2, 14, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		tick = tick.Add(25 * time.Millisecond)
		return tick
	}
	return s
}

func TestQueryAnswersWithSources(t *testing.T) {
	retriever := &fakeRetriever{docs: []internal.SearchDocument{
		doc("Skilling plan", strings.Repeat("x", 200), 3.1),
		doc("Architecture", "short", 2.0),
		doc("Runbook", "ops", 1.0),
		doc("Extra", "not in context", 0.5),
	}}
	gen := &fakeGenerator{}
	log := &memoryLog{}
	audit := &internal.NormalizedAudit{AuditID: "AUD-2026-0042", DisplayName: "Audit 0042", OverallScore: 79.1, Status: internal.StatusPendingReview}

	resp := newTestService(retriever, gen, log).Query(context.Background(), "Which certifications?", audit)

	assert.False(t, resp.Error)
	assert.Equal(t, "answer", resp.Content)
	assert.Equal(t, 4, resp.RetrievalCount)
	assert.Equal(t, int64(25), resp.ProcessingTimeMs)
	assert.Equal(t, "AUD-2026-0042", retriever.auditID)
	assert.Equal(t, 3, retriever.topK)

	require.Len(t, resp.Sources, 4)
	assert.Equal(t, 1, resp.Sources[0].SourceNumber)
	assert.Equal(t, strings.Repeat("x", 150)+"...", resp.Sources[0].ContentPreview)
	assert.Equal(t, "Extra", resp.Sources[3].DocumentName)

	assert.Contains(t, gen.system, "[Source 1: Skilling plan]\n"+strings.Repeat("x", 20)+"... [truncated]")
	assert.Contains(t, gen.system, "[Source 3: Runbook]")
	assert.NotContains(t, gen.system, "Extra")
	assert.Contains(t, gen.system, "- Audit ID: AUD-2026-0042")
	assert.Contains(t, gen.system, "- Overall Score: 79.1%")

	require.Len(t, log.records, 1)
	assert.Equal(t, "AUD-2026-0042", log.records[0].AuditID)
	assert.Equal(t, "answer", log.records[0].Response)
	assert.Empty(t, log.records[0].Error)
}

func TestQueryWithoutEvidence(t *testing.T) {
	gen := &fakeGenerator{}
	resp := newTestService(&fakeRetriever{err: ErrNotConfigured}, gen, nil).Query(context.Background(), "anything?", nil)

	assert.False(t, resp.Error)
	assert.Equal(t, 0, resp.RetrievalCount)
	assert.Empty(t, resp.Sources)
	assert.Contains(t, gen.system, noDocuments)
	assert.NotContains(t, gen.system, "Current Audit Context")
}

func TestQueryFailuresBecomeErrorResponses(t *testing.T) {
	log := &memoryLog{}

	resp := newTestService(nil, nil, log).Query(context.Background(), "q", nil)
	assert.True(t, resp.Error)
	assert.Equal(t, ErrNotConfigured.Error(), resp.ErrorMessage)

	resp = newTestService(&fakeRetriever{err: errors.New("timeout")}, &fakeGenerator{}, log).Query(context.Background(), "q", nil)
	assert.True(t, resp.Error)
	assert.Equal(t, "Error processing query: retrieve evidence: timeout", resp.Content)
	assert.NotNil(t, resp.Sources)

	resp = newTestService(&fakeRetriever{docs: []internal.SearchDocument{doc("a", "b", 1)}}, &fakeGenerator{err: errors.New("rate limited")}, log).Query(context.Background(), "q", nil)
	assert.True(t, resp.Error)
	assert.Equal(t, 1, resp.RetrievalCount)

	resp = newTestService(nil, &fakeGenerator{}, log).Query(context.Background(), "   ", nil)
	assert.True(t, resp.Error)

	require.Len(t, log.records, 4)
	assert.Equal(t, "rate limited", log.records[2].Error)
}
