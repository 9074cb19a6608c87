package listener

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"auditx/internal"
	"auditx/internal/config"
	"auditx/internal/connectors"
	"auditx/internal/docstore"
	"auditx/internal/pipeline"
	"auditx/internal/storage"
)

type Syncer interface {
	Sync(ctx context.Context) (docstore.SyncResult, error)
}

type Fetcher interface {
	FetchAndStore(ctx context.Context, label string, max int) (connectors.FetchResult, error)
}

type Processor interface {
	ProcessPending(ctx context.Context, limit int, provider string) ([]pipeline.IntakeResult, error)
}

// CycleResult summarizes one pass. Sync is nil when syncing is disabled.
type CycleResult struct {
	Sync      *docstore.SyncResult
	Fetched   int
	New       int
	Processed int
	Skipped   int
	Unmatched int
	Exported  string
}

// Service polls the document store and the intake mailbox. Any of its
// collaborators may be nil; the matching stage is then skipped.
type Service struct {
	db         *storage.DB
	cfg        config.Config
	syncer     Syncer
	fetcher    Fetcher
	processor  Processor
	logger     *zap.Logger
	afterCycle func(CycleResult)
	now        func() time.Time
}

func NewService(db *storage.DB, cfg config.Config, syncer Syncer, fetcher Fetcher, processor Processor, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, cfg: cfg, syncer: syncer, fetcher: fetcher, processor: processor, logger: logger, now: time.Now}
}

// OnCycle registers a hook run after every cycle, successful or not.
func (s *Service) OnCycle(fn func(CycleResult)) {
	s.afterCycle = fn
}

func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.IntakeIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		if _, err := s.RunCycle(ctx); err != nil {
			s.logger.Error("listener cycle error", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// RunCycle runs every enabled stage. A failing stage does not stop the
// later ones; all errors are returned joined.
func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult
	var errs []error

	if s.syncer != nil && s.cfg.IntakeAutoSync {
		sr, err := s.syncer.Sync(ctx)
		res.Sync = &sr
		if err != nil {
			errs = append(errs, fmt.Errorf("sync: %w", err))
		}
	}

	if s.fetcher != nil {
		fr, err := s.fetcher.FetchAndStore(ctx, s.cfg.IntakeLabel, s.cfg.IntakeFetchMax)
		res.Fetched, res.New = fr.Fetched, fr.New
		if err != nil {
			errs = append(errs, fmt.Errorf("fetch: %w", err))
		}
	}

	if s.processor != nil && ctx.Err() == nil {
		provider := strings.ToLower(strings.TrimSpace(s.cfg.IntakeProvider))
		results, err := s.processor.ProcessPending(ctx, s.cfg.IntakeProcessBatch, provider)
		for _, r := range results {
			switch r.Status {
			case internal.IntakeProcessed:
				res.Processed++
			case internal.IntakeSkipped:
				res.Skipped++
			case internal.IntakeUnmatched:
				res.Unmatched++
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("process: %w", err))
		}
	}

	if s.cfg.IntakeAutoExport && s.changed(res) {
		path, err := s.export()
		res.Exported = path
		if err != nil {
			errs = append(errs, fmt.Errorf("export: %w", err))
		}
	}

	s.logger.Info("listener cycle done",
		zap.String("provider", s.cfg.IntakeProvider),
		zap.Int("fetched", res.Fetched),
		zap.Int("new", res.New),
		zap.Int("processed", res.Processed),
		zap.Int("unmatched", res.Unmatched),
	)
	if s.afterCycle != nil {
		s.afterCycle(res)
	}
	return res, errors.Join(errs...)
}

func (s *Service) changed(res CycleResult) bool {
	return res.Processed > 0 || (res.Sync != nil && res.Sync.State == docstore.SyncOK)
}

func (s *Service) export() (string, error) {
	audits, err := s.db.ListAudits("")
	if err != nil {
		return "", err
	}
	if len(audits) == 0 {
		return "", nil
	}
	filename := fmt.Sprintf("audits_%s.xlsx", s.now().UTC().Format("20060102T150405Z"))
	outputPath := filepath.Join(s.cfg.OutputDir, "listener", filename)
	if err := pipeline.ExportAuditsToXLSX(audits, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}
