package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"auditx/internal"
	"auditx/internal/config"
	"auditx/internal/metrics"
	"auditx/internal/pipeline"
	"auditx/internal/storage"
)

const lastSyncKey = "docstore.last_sync"

type DocumentLister interface {
	ListDocuments(ctx context.Context) ([]json.RawMessage, error)
}

type SyncState string

const (
	SyncOK     SyncState = "ok"
	SyncNoData SyncState = "no_data"
	SyncError  SyncState = "error"
)

// SyncResult separates "nothing to show" from "the fetch failed" so callers
// never render an upstream error as an empty dashboard.
type SyncResult struct {
	State      SyncState `json:"state"`
	Fetched    int       `json:"fetched"`
	Normalized int       `json:"normalized"`
	Skipped    int       `json:"skipped"`
	Overridden int       `json:"overridden"`
	Warning    string    `json:"warning,omitempty"`
	Error      string    `json:"error,omitempty"`
	FinishedAt string    `json:"finishedAt"`
}

type SyncService struct {
	db         *storage.DB
	lister     DocumentLister
	normalizer *pipeline.Normalizer
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewSyncService(db *storage.DB, cfg config.Config, logger *zap.Logger, m *metrics.Metrics) *SyncService {
	return NewSyncServiceWithLister(db, NewClient(cfg, m), logger, m)
}

func NewSyncServiceWithLister(db *storage.DB, lister DocumentLister, logger *zap.Logger, m *metrics.Metrics) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{
		db:         db,
		lister:     lister,
		normalizer: pipeline.NewNormalizer(),
		logger:     logger,
		metrics:    m,
		now:        time.Now,
	}
}

// Sync pulls every audit document, normalizes it and replaces the local
// copy. Documents that cannot be normalized are counted as skipped and
// never abort the batch. Stored reviewer overrides are re-applied on top of
// the fresh computed status.
func (s *SyncService) Sync(ctx context.Context) (result SyncResult, err error) {
	start := time.Now()
	defer func() {
		result.FinishedAt = s.now().UTC().Format(time.RFC3339)
		s.metrics.ObserveSync(string(result.State), time.Since(start), result.Fetched)
	}()

	raws, err := s.lister.ListDocuments(ctx)
	if errors.Is(err, ErrNotConfigured) {
		result.State = SyncNoData
		result.Warning = "document store not configured"
		s.logger.Warn("document store not configured, skipping sync")
		return result, nil
	}
	if err != nil {
		result.State = SyncError
		result.Error = err.Error()
		s.logger.Error("document store fetch failed", zap.Error(err))
		return result, fmt.Errorf("list documents: %w", err)
	}
	result.Fetched = len(raws)

	overrides, err := s.db.LatestStatusOverrides()
	if err != nil {
		result.State = SyncError
		result.Error = err.Error()
		return result, err
	}

	fetchedAt := s.now().UTC().Format(time.RFC3339)
	docs := make([]internal.StoredDocument, 0, len(raws))
	for i, raw := range raws {
		rec, err := pipeline.DecodeDocument(raw)
		if err != nil {
			result.Skipped++
			s.metrics.IncNormalized("skipped", "")
			s.logger.Warn("skipping malformed document", zap.Int("index", i), zap.Error(err))
			continue
		}
		audit, err := s.normalizer.Normalize(rec)
		if err != nil {
			result.Skipped++
			s.metrics.IncNormalized("skipped", "")
			s.logger.Warn("skipping document", zap.Int("index", i), zap.String("variant", rec.Variant), zap.Error(err))
			continue
		}
		if row, ok := overrides[audit.ID]; ok {
			audit = pipeline.WithStatus(audit, row.Status, row.Override.Reviewer, row.Override.Note, s.appliedAt(row.Override.AppliedAt))
			result.Overridden++
		}
		s.metrics.IncNormalized("ok", string(audit.Status))
		docs = append(docs, internal.StoredDocument{ID: audit.ID, Raw: raw, Normalized: &audit, FetchedAt: fetchedAt})
	}
	result.Normalized = len(docs)

	if err := s.db.SaveSyncedAudits(docs); err != nil {
		result.State = SyncError
		result.Error = err.Error()
		return result, fmt.Errorf("save audits: %w", err)
	}

	result.State = SyncOK
	if result.Normalized == 0 {
		result.State = SyncNoData
	}

	_ = s.db.SetMetadata(lastSyncKey, fetchedAt)
	counts := map[string]int{"fetched": result.Fetched, "normalized": result.Normalized, "skipped": result.Skipped, "overridden": result.Overridden}
	if err := s.db.InsertRun(uuid.NewString(), "sync", nil, map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())}, counts); err != nil {
		s.logger.Warn("record sync run", zap.Error(err))
	}
	s.logger.Info("document store sync finished",
		zap.String("state", string(result.State)),
		zap.Int("fetched", result.Fetched),
		zap.Int("normalized", result.Normalized),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// OverrideStatus records a reviewer decision for one audit and stores the
// updated view model. The override survives later syncs.
func (s *SyncService) OverrideStatus(auditID string, status internal.AuditStatus, reviewer, note string) (internal.NormalizedAudit, error) {
	if !status.Valid() {
		return internal.NormalizedAudit{}, fmt.Errorf("invalid status %q", status)
	}
	current, err := s.db.GetAudit(auditID)
	if err != nil {
		return internal.NormalizedAudit{}, err
	}
	updated := pipeline.WithStatus(current, status, reviewer, note, s.now())
	if err := s.db.InsertStatusOverride(updated.ID, status, *updated.StatusOverride); err != nil {
		return internal.NormalizedAudit{}, err
	}
	if err := s.db.ReplaceAudit(updated); err != nil {
		return internal.NormalizedAudit{}, err
	}
	s.logger.Info("audit status overridden",
		zap.String("auditId", updated.AuditID),
		zap.String("status", string(status)),
		zap.String("previous", string(updated.StatusOverride.Previous)))
	return updated, nil
}

func (s *SyncService) LastSync() (string, error) {
	v, err := s.db.GetMetadata(lastSyncKey)
	if err != nil || v == nil {
		return "", err
	}
	return *v, nil
}

func (s *SyncService) appliedAt(v string) time.Time {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	return s.now()
}
