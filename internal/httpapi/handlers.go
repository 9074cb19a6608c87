package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"auditx/internal"
	"auditx/internal/dashboard"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListAudits(w http.ResponseWriter, r *http.Request) {
	snap := s.Store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"audits":  dashboard.Filter(snap.Audits, r.URL.Query().Get("status")),
		"loading": snap.Loading,
		"error":   snap.Err,
	})
}

func (s *Server) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	a, err := s.audit(chi.URLParam(r, "id"))
	if err != nil {
		s.writeAuditError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type statusRequest struct {
	Status   internal.AuditStatus `json:"status"`
	Reviewer string               `json:"reviewer"`
	Note     string               `json:"note"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", req.Status))
		return
	}
	if s.Syncer == nil {
		writeError(w, http.StatusServiceUnavailable, "document sync not available")
		return
	}

	updated, err := s.Syncer.OverrideStatus(chi.URLParam(r, "id"), req.Status, req.Reviewer, req.Note)
	if err != nil {
		s.writeAuditError(w, err)
		return
	}

	at := s.now()
	if t, err := time.Parse(time.RFC3339, updated.StatusOverride.AppliedAt); err == nil {
		at = t
	}
	s.Store.Dispatch(dashboard.UpdateAuditStatus{AuditID: updated.ID, Status: req.Status, Reviewer: req.Reviewer, Note: req.Note, At: at})
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleListEvidence(w http.ResponseWriter, r *http.Request) {
	uploads, err := s.DB.ListUploads(chi.URLParam(r, "id"))
	if err != nil {
		s.writeAuditError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, uploads)
}

// handleUploadEvidence takes multipart "files" parts. Per-file failures are
// reported in the records; the request fails only when nothing could be
// attempted.
func (s *Server) handleUploadEvidence(w http.ResponseWriter, r *http.Request) {
	if s.Uploader == nil {
		writeError(w, http.StatusServiceUnavailable, "blob store not configured")
		return
	}
	a, err := s.audit(chi.URLParam(r, "id"))
	if err != nil {
		s.writeAuditError(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "no files")
		return
	}

	files := make([]internal.EvidenceFile, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable file "+h.Filename)
			return
		}
		content, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable file "+h.Filename)
			return
		}
		files = append(files, internal.EvidenceFile{Name: h.Filename, ContentType: h.Header.Get("Content-Type"), Content: content})
	}

	records, err := s.Uploader.Upload(r.Context(), a.AuditID, files, nil)
	if err != nil && len(records) == 0 {
		s.Logger.Error("evidence upload failed", zap.String("auditId", a.AuditID), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	for _, rec := range records {
		if err := s.DB.UpsertUpload(rec, nil); err != nil {
			s.Logger.Warn("record upload", zap.String("blob", rec.BlobName), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, records)
}

type askRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.Asker == nil {
		writeError(w, http.StatusServiceUnavailable, "rag not configured")
		return
	}
	var req askRequest
	if err := decodeBody(r, &req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	var auditRef *internal.NormalizedAudit
	if id := chi.URLParam(r, "id"); id != "" {
		a, err := s.audit(id)
		if err != nil {
			s.writeAuditError(w, err)
			return
		}
		auditRef = &a
	}

	resp := s.Asker.Query(r.Context(), req.Prompt, auditRef)
	entry := dashboard.AgentResponse{Prompt: req.Prompt, Response: resp}
	if auditRef != nil {
		entry.AuditID = auditRef.AuditID
	}
	s.Store.Dispatch(dashboard.AddPrompt{Prompt: req.Prompt}, dashboard.AddAgentResponse{Response: entry})
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, dashboard.ComputeStats(s.Store.Snapshot().Audits))
}

func (s *Server) handleRAGConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.RAGStatus)
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Store.Snapshot().Workflows)
}

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var tpl dashboard.WorkflowTemplate
	if err := decodeBody(r, &tpl); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := tpl.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	state := s.Store.Dispatch(dashboard.CreateWorkflow{Template: tpl})
	writeJSON(w, http.StatusCreated, state.Workflows[len(state.Workflows)-1])
}

func (s *Server) handleSpecializations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, dashboard.Specializations())
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Store.Snapshot().Submissions)
}

type submissionRequest struct {
	Specialization string   `json:"specialization"`
	AuditID        string   `json:"auditId"`
	Files          []string `json:"files"`
}

func (s *Server) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	var req submissionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sub, err := dashboard.NewSubmission(req.Specialization, req.AuditID, req.Files, s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.DB.InsertSubmission(sub); err != nil {
		s.Logger.Error("store submission", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.Store.Dispatch(dashboard.SubmitEvidence{Submission: sub})
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.Syncer == nil {
		writeError(w, http.StatusServiceUnavailable, "document sync not available")
		return
	}
	s.Store.Dispatch(dashboard.SetLoading{Loading: true})

	result, err := s.Syncer.Sync(r.Context())
	if err != nil {
		s.Store.Dispatch(dashboard.SetError{Err: err.Error()})
		writeJSON(w, http.StatusBadGateway, result)
		return
	}
	if err := s.LoadAudits(); err != nil {
		writeError(w, http.StatusInternalServerError, "reload audits failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
