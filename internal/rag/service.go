package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"auditx/internal"
	"auditx/internal/config"
	"auditx/internal/metrics"
)

const (
	contextDocs    = 3
	previewChars   = 150
	truncateMarker = "... [truncated]"
	noDocuments    = "No relevant documents found in the search index."
)

type Retriever interface {
	SearchAudit(ctx context.Context, query, auditID string, topK int) ([]internal.SearchDocument, error)
}

type QueryLog interface {
	InsertRAGQuery(q internal.RAGQueryRecord) error
}

// Service answers auditor questions from indexed evidence.
type Service struct {
	retriever Retriever
	generator Generator
	queries   QueryLog
	topK      int
	maxChars  int
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewService accepts nil collaborators: no retriever means answering
// without evidence, no generator means every query fails with
// ErrNotConfigured, no log means queries are not recorded.
func NewService(cfg config.Config, retriever Retriever, generator Generator, queries QueryLog, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	topK := cfg.SearchTopK
	if topK <= 0 {
		topK = contextDocs
	}
	return &Service{
		retriever: retriever,
		generator: generator,
		queries:   queries,
		topK:      topK,
		maxChars:  cfg.RAGMaxDocChars,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// Query never fails: problems come back as a response with Error set.
func (s *Service) Query(ctx context.Context, prompt string, audit *internal.NormalizedAudit) internal.RAGResponse {
	start := s.now()
	auditID := ""
	if audit != nil {
		auditID = audit.AuditID
	}

	resp, err := s.answer(ctx, prompt, audit)
	resp.ProcessingTimeMs = s.now().Sub(start).Milliseconds()

	outcome := "ok"
	if err != nil {
		outcome = "error"
		resp = internal.RAGResponse{
			Content:          "Error processing query: " + err.Error(),
			Sources:          []internal.RAGSource{},
			Error:            true,
			ErrorMessage:     err.Error(),
			RetrievalCount:   resp.RetrievalCount,
			ProcessingTimeMs: resp.ProcessingTimeMs,
		}
		s.logger.Warn("rag query failed", zap.String("auditId", auditID), zap.Error(err))
	} else {
		s.logger.Info("rag query answered",
			zap.String("auditId", auditID),
			zap.Int("count", resp.RetrievalCount),
			zap.Int64("ms", resp.ProcessingTimeMs),
		)
	}
	s.metrics.ObserveRAG(outcome, time.Duration(resp.ProcessingTimeMs)*time.Millisecond)
	s.record(auditID, prompt, resp)
	return resp
}

func (s *Service) answer(ctx context.Context, prompt string, audit *internal.NormalizedAudit) (internal.RAGResponse, error) {
	if strings.TrimSpace(prompt) == "" {
		return internal.RAGResponse{}, errors.New("empty prompt")
	}
	if s.generator == nil {
		return internal.RAGResponse{}, ErrNotConfigured
	}

	docs, err := s.retrieve(ctx, prompt, audit)
	if err != nil {
		return internal.RAGResponse{}, err
	}

	gen, err := s.generator.Generate(ctx, SystemPrompt(audit, BuildContext(docs, s.maxChars)), prompt)
	if err != nil {
		return internal.RAGResponse{RetrievalCount: len(docs)}, err
	}

	return internal.RAGResponse{
		Content:        gen.Content,
		Sources:        Sources(docs),
		Usage:          gen.Usage,
		RetrievalCount: len(docs),
	}, nil
}

func (s *Service) retrieve(ctx context.Context, prompt string, audit *internal.NormalizedAudit) ([]internal.SearchDocument, error) {
	if s.retriever == nil {
		return nil, nil
	}
	auditID := ""
	if audit != nil {
		auditID = audit.AuditID
	}
	docs, err := s.retriever.SearchAudit(ctx, prompt, auditID, s.topK)
	if errors.Is(err, ErrNotConfigured) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve evidence: %w", err)
	}
	return docs, nil
}

func (s *Service) record(auditID, prompt string, resp internal.RAGResponse) {
	if s.queries == nil {
		return
	}
	err := s.queries.InsertRAGQuery(internal.RAGQueryRecord{
		ID:               uuid.NewString(),
		AuditID:          auditID,
		Prompt:           prompt,
		Response:         resp.Content,
		RetrievalCount:   resp.RetrievalCount,
		ProcessingTimeMs: resp.ProcessingTimeMs,
		Error:            resp.ErrorMessage,
		CreatedAt:        s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		s.logger.Warn("record rag query", zap.Error(err))
	}
}

// BuildContext renders the first documents as numbered sources for the
// system prompt.
func BuildContext(docs []internal.SearchDocument, maxChars int) string {
	if len(docs) == 0 {
		return noDocuments
	}
	parts := make([]string, 0, contextDocs)
	for i, d := range docs {
		if i == contextDocs {
			break
		}
		content := documentContent(d)
		if maxChars > 0 && len([]rune(content)) > maxChars {
			content = string([]rune(content)[:maxChars]) + truncateMarker
		}
		parts = append(parts, fmt.Sprintf("[Source %d: %s]\n%s", i+1, documentTitle(d, i), content))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// Sources lists every retrieved document, including those past the
// context cut-off, so citations stay stable.
func Sources(docs []internal.SearchDocument) []internal.RAGSource {
	out := make([]internal.RAGSource, 0, len(docs))
	for i, d := range docs {
		preview := []rune(documentContent(d))
		if len(preview) > previewChars {
			preview = preview[:previewChars]
		}
		out = append(out, internal.RAGSource{
			SourceNumber:   i + 1,
			DocumentName:   documentTitle(d, i),
			DocumentID:     documentID(d),
			RelevanceScore: d.Score,
			ContentPreview: string(preview) + "...",
		})
	}
	return out
}

func SystemPrompt(audit *internal.NormalizedAudit, evidence string) string {
	var b strings.Builder
	b.WriteString(`You are an audit verification assistant for Azure specialization audits.
Answer auditor questions from the evidence documents below.

Guidelines:
1. Only use information from the provided evidence documents
2. Cite sources as [Source N]
3. Say so when the evidence does not contain the answer
4. Be precise about compliance scores, dates and certifications
5. Point out discrepancies or gaps in the evidence
6. Keep answers concise
`)
	if audit != nil {
		fmt.Fprintf(&b, `
Current Audit Context:
- Audit ID: %s
- Partner: %s
- Overall Score: %.1f%%
- Specialization: %s
- Status: %s
`, orNA(audit.AuditID), orNA(audit.DisplayName), audit.OverallScore, orNA(audit.Name), orNA(string(audit.Status)))
	}
	b.WriteString("\nRetrieved Evidence Documents:\n")
	b.WriteString(evidence)
	return b.String()
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
