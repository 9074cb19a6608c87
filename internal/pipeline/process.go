package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"auditx/internal"
	"auditx/internal/config"
	"auditx/internal/metrics"
	"auditx/internal/storage"
	"auditx/internal/util"
)

type EvidenceUploader interface {
	Upload(ctx context.Context, auditID string, files []internal.EvidenceFile, onProgress func(internal.UploadRecord)) ([]internal.UploadRecord, error)
}

type EvidenceIndexer interface {
	IndexDocuments(ctx context.Context, docs []internal.EvidenceDocument) error
}

// IntakeService turns fetched intake messages into stored evidence: it
// detects submissions, resolves the target audit, uploads attachments and
// pushes their text to the search index. Uploader and indexer are optional.
type IntakeService struct {
	db       *storage.DB
	cfg      config.Config
	uploader EvidenceUploader
	indexer  EvidenceIndexer
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewIntakeService(db *storage.DB, cfg config.Config, uploader EvidenceUploader, indexer EvidenceIndexer, logger *zap.Logger, m *metrics.Metrics) *IntakeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntakeService{db: db, cfg: cfg, uploader: uploader, indexer: indexer, logger: logger, metrics: m}
}

type IntakeResult struct {
	EmailID  int
	Status   internal.IntakeStatus
	AuditID  string
	Match    *internal.MatchResult
	Uploaded int
	Indexed  int
}

func (s *IntakeService) ProcessByProviderMessageID(ctx context.Context, provider, messageID string) (IntakeResult, error) {
	row, err := s.db.GetIntakeEmail(provider, messageID)
	if err != nil {
		return IntakeResult{}, err
	}
	return s.ProcessEmail(ctx, row)
}

// ProcessPending handles up to limit fetched messages, optionally filtered
// by provider. It stops at the first storage error.
func (s *IntakeService) ProcessPending(ctx context.Context, limit int, provider string) ([]IntakeResult, error) {
	pending, err := s.db.ListIntakeEmailsByStatus(internal.IntakeFetched, limit)
	if err != nil {
		return nil, err
	}
	results := []IntakeResult{}
	for _, row := range pending {
		if provider != "" && row.Provider != provider {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := s.ProcessEmail(ctx, row)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *IntakeService) ProcessEmail(ctx context.Context, row internal.IntakeEmailRow) (IntakeResult, error) {
	start := time.Now()
	log := s.logger.With(zap.Int("emailId", row.ID), zap.String("provider", row.Provider))

	raw, err := os.ReadFile(row.RawRef)
	if err != nil {
		return IntakeResult{}, err
	}
	msg, err := ParseEvidenceEmail(raw)
	if err != nil {
		return IntakeResult{}, fmt.Errorf("parse intake email %d: %w", row.ID, err)
	}

	subject := util.FirstNonEmpty(msg.Subject, row.Subject)
	body := msg.BodyText()
	detect := DetectEvidenceSubmission(subject, body, "", msg.AttachmentNames())
	result := IntakeResult{EmailID: row.ID}

	if !detect.IsEvidence {
		result.Status = internal.IntakeSkipped
		if err := s.db.SaveIntakeOutcome(row.ID, result.Status, detect.Score, nil); err != nil {
			return IntakeResult{}, err
		}
		s.finish(row.ID, start, result)
		log.Info("intake message skipped", zap.Float64("score", detect.Score))
		return result, nil
	}

	audits, err := s.db.ListAudits("")
	if err != nil {
		return IntakeResult{}, err
	}
	match := NewMatcher(s.cfg, audits).Match(subject, body)
	result.Match = &match

	if match.Status != internal.MatchOK || match.AuditID == nil {
		result.Status = internal.IntakeUnmatched
		if err := s.db.SaveIntakeOutcome(row.ID, result.Status, detect.Score, &match); err != nil {
			return IntakeResult{}, err
		}
		s.finish(row.ID, start, result)
		log.Info("intake message unmatched", zap.String("status", string(match.Status)), zap.Int("candidates", len(match.Candidates)))
		return result, nil
	}

	audit, err := s.db.GetAudit(*match.AuditID)
	if err != nil {
		return IntakeResult{}, err
	}
	result.AuditID = audit.AuditID

	blobNames := map[string]string{}
	if s.uploader != nil && len(msg.Attachments) > 0 {
		emailID := row.ID
		records, err := s.uploader.Upload(ctx, audit.AuditID, msg.Attachments, func(rec internal.UploadRecord) {
			if err := s.db.UpsertUpload(rec, &emailID); err != nil {
				log.Warn("record upload progress", zap.String("blob", rec.BlobName), zap.Error(err))
			}
		})
		if err != nil {
			return IntakeResult{}, err
		}
		for _, rec := range records {
			if err := s.db.UpsertUpload(rec, &emailID); err != nil {
				return IntakeResult{}, err
			}
			if rec.Status == internal.UploadSuccess {
				result.Uploaded++
				blobNames[rec.FileName] = rec.BlobName
			}
		}
	}

	if s.indexer != nil {
		docs := EvidenceDocuments(audit.AuditID, msg.Attachments, blobNames)
		if body != "" {
			docs = append(docs, internal.EvidenceDocument{
				ID:      evidenceDocumentID(audit.AuditID, row.MessageID, ""),
				AuditID: audit.AuditID,
				Title:   subject,
				Content: body,
				Source:  KindEML,
			})
		}
		if len(docs) > 0 {
			if err := s.indexer.IndexDocuments(ctx, docs); err != nil {
				log.Warn("index intake evidence", zap.String("auditId", audit.AuditID), zap.Error(err))
			} else {
				result.Indexed = len(docs)
			}
		}
	}

	result.Status = internal.IntakeProcessed
	if err := s.db.SaveIntakeOutcome(row.ID, result.Status, detect.Score, &match); err != nil {
		return IntakeResult{}, err
	}
	s.finish(row.ID, start, result)
	log.Info("intake message processed",
		zap.String("auditId", audit.AuditID),
		zap.Int("uploaded", result.Uploaded),
		zap.Int("indexed", result.Indexed))
	return result, nil
}

func (s *IntakeService) finish(emailID int, start time.Time, result IntakeResult) {
	s.metrics.IncIntake(string(result.Status))
	counts := map[string]int{"uploaded": result.Uploaded, "indexed": result.Indexed}
	timings := map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())}
	if err := s.db.InsertRun(uuid.NewString(), "intake", &emailID, timings, counts); err != nil {
		s.logger.Warn("record intake run", zap.Int("emailId", emailID), zap.Error(err))
	}
}
