// Package bootstrap builds the services shared by the auditx binaries from
// one configuration.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"auditx/internal/blobstore"
	"auditx/internal/config"
	"auditx/internal/connectors"
	"auditx/internal/dashboard"
	"auditx/internal/docstore"
	"auditx/internal/listener"
	"auditx/internal/logging"
	"auditx/internal/metrics"
	"auditx/internal/pipeline"
	"auditx/internal/rag"
	"auditx/internal/storage"
)

type Env struct {
	Config   config.Config
	Logger   *zap.Logger
	DB       *storage.DB
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
}

// Open loads nothing from the environment itself; callers pass the loaded
// config. debug forces development logging.
func Open(cfg config.Config, debug bool) (*Env, error) {
	logger, err := logging.New(debug || cfg.LogDebug)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("open store %s: %w", cfg.DBPath, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Env{Config: cfg, Logger: logger, DB: db, Registry: reg, Metrics: metrics.New(reg)}, nil
}

func (e *Env) Close() error {
	_ = e.Logger.Sync()
	return e.DB.Close()
}

func (e *Env) SyncService() *docstore.SyncService {
	return docstore.NewSyncService(e.DB, e.Config, e.Logger, e.Metrics)
}

func (e *Env) Uploader(ctx context.Context) (*blobstore.Uploader, error) {
	writer, err := blobstore.NewGCSWriter(ctx, e.Config)
	if err != nil {
		return nil, err
	}
	return blobstore.NewUploader(writer, e.Config.BlobUploadConcurrency, e.Logger, e.Metrics), nil
}

// SearchClient is nil when the search index is not configured.
func (e *Env) SearchClient() *rag.SearchClient {
	if !e.Config.SearchConfigured() {
		return nil
	}
	return rag.NewSearchClient(e.Config, e.Metrics)
}

// RAG always returns a service; missing halves surface as error responses
// or evidence-free answers.
func (e *Env) RAG(ctx context.Context) *rag.Service {
	var retriever rag.Retriever
	if sc := e.SearchClient(); sc != nil {
		retriever = sc
	}
	var generator rag.Generator
	if g, err := rag.NewGenerator(ctx, e.Config); err == nil {
		generator = g
	} else {
		e.Logger.Warn("llm generator unavailable", zap.Error(err))
	}
	return rag.NewService(e.Config, retriever, generator, e.DB, e.Logger, e.Metrics)
}

// Intake wires the processing service. Blob uploads and indexing are left
// out when their backends are not configured.
func (e *Env) Intake(ctx context.Context) *pipeline.IntakeService {
	var uploader pipeline.EvidenceUploader
	if u, err := e.Uploader(ctx); err == nil {
		uploader = u
	} else {
		e.Logger.Warn("blob uploads disabled for intake", zap.Error(err))
	}
	var indexer pipeline.EvidenceIndexer
	if sc := e.SearchClient(); sc != nil {
		indexer = sc
	}
	return pipeline.NewIntakeService(e.DB, e.Config, uploader, indexer, e.Logger, e.Metrics)
}

func (e *Env) FetchService(ctx context.Context) (*connectors.FetchService, error) {
	conn, err := connectors.NewMailConnector(ctx, e.Config)
	if err != nil {
		return nil, err
	}
	return connectors.NewFetchService(e.DB, e.Config.RawMailDir, conn, e.Logger, e.Metrics), nil
}

// Listener builds the polling service. A mailbox that cannot be reached
// leaves the listener syncing only.
func (e *Env) Listener(ctx context.Context) *listener.Service {
	var fetcher listener.Fetcher
	var processor listener.Processor
	if fs, err := e.FetchService(ctx); err == nil {
		fetcher = fs
		processor = e.Intake(ctx)
	} else {
		e.Logger.Warn("evidence intake disabled", zap.String("provider", e.Config.IntakeProvider), zap.Error(err))
	}
	return listener.NewService(e.DB, e.Config, e.SyncService(), fetcher, processor, e.Logger)
}

// Dashboard returns a store seeded with workflow templates and the audits
// already in the local store.
func (e *Env) Dashboard() (*dashboard.Store, error) {
	workflows, err := dashboard.LoadWorkflows(e.Config.WorkflowTemplatesFile)
	if err != nil {
		return nil, err
	}
	return dashboard.NewStore(dashboard.NewState(workflows)), nil
}
