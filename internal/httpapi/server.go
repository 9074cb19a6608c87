package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"auditx/internal"
	"auditx/internal/dashboard"
	"auditx/internal/docstore"
	"auditx/internal/metrics"
	"auditx/internal/rag"
	"auditx/internal/storage"
)

const maxUploadMemory = 32 << 20

type Syncer interface {
	Sync(ctx context.Context) (docstore.SyncResult, error)
	OverrideStatus(auditID string, status internal.AuditStatus, reviewer, note string) (internal.NormalizedAudit, error)
}

type Uploader interface {
	Upload(ctx context.Context, auditID string, files []internal.EvidenceFile, onProgress func(internal.UploadRecord)) ([]internal.UploadRecord, error)
}

type Asker interface {
	Query(ctx context.Context, prompt string, audit *internal.NormalizedAudit) internal.RAGResponse
}

// Deps wires the server. Uploader and Asker may be nil; their routes then
// answer 503.
type Deps struct {
	DB        *storage.DB
	Store     *dashboard.Store
	Syncer    Syncer
	Uploader  Uploader
	Asker     Asker
	RAGStatus rag.Status
	Gatherer  prometheus.Gatherer
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

type Server struct {
	Deps
	now func() time.Time
}

func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{Deps: d, now: time.Now}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/audits", s.handleListAudits)
		r.Get("/audits/{id}", s.handleGetAudit)
		r.Post("/audits/{id}/status", s.handleUpdateStatus)
		r.Get("/audits/{id}/evidence", s.handleListEvidence)
		r.Post("/audits/{id}/evidence", s.handleUploadEvidence)
		r.Post("/audits/{id}/ask", s.handleAsk)
		r.Post("/ask", s.handleAsk)

		r.Get("/stats", s.handleStats)
		r.Get("/rag/config", s.handleRAGConfig)
		r.Get("/workflows", s.handleListWorkflows)
		r.Post("/workflows", s.handleCreateWorkflow)
		r.Get("/specializations", s.handleSpecializations)
		r.Get("/submissions", s.handleListSubmissions)
		r.Post("/submissions", s.handleCreateSubmission)
		r.Post("/sync", s.handleSync)
	})
	return r
}

// LoadAudits replaces the dashboard audits with the stored view models.
func (s *Server) LoadAudits() error {
	audits, err := s.DB.ListAudits("")
	if err != nil {
		s.Store.Dispatch(dashboard.SetError{Err: err.Error()})
		return err
	}
	s.Store.Dispatch(dashboard.SetAudits{Audits: audits})
	return nil
}

// LoadSubmissions seeds the partner view from the store.
func (s *Server) LoadSubmissions() error {
	subs, err := s.DB.ListSubmissions()
	if err != nil {
		return err
	}
	// Oldest first so SubmitEvidence leaves the newest on top.
	actions := make([]dashboard.Action, 0, len(subs))
	for i := len(subs) - 1; i >= 0; i-- {
		actions = append(actions, dashboard.SubmitEvidence{Submission: subs[i]})
	}
	s.Store.Dispatch(actions...)
	return nil
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.Metrics.ObserveHTTP(r.Method+" "+route, strconv.Itoa(status), time.Since(start))
		s.Logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.String("requestId", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// audit resolves {id} against the dashboard, falling back to the store.
func (s *Server) audit(id string) (internal.NormalizedAudit, error) {
	if a, ok := dashboard.BuildIndex(s.Store.Snapshot().Audits)[id]; ok {
		return a, nil
	}
	return s.DB.GetAudit(id)
}

func (s *Server) writeAuditError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "audit not found")
		return
	}
	s.Logger.Error("audit lookup failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
