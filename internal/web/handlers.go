package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/auditoria/fiscal/internal/metrics"
	"github.com/auditoria/fiscal/internal/model"
	"github.com/auditoria/fiscal/internal/pipeline"
	"github.com/auditoria/fiscal/internal/store"
)

// handleCreateAudit accepts a multipart batch of fiscal documents, registers
// a job and runs the pipeline in the background. The response carries the job
// ID for progress polling.
func (s *Server) handleCreateAudit(w http.ResponseWriter, r *http.Request) {
	entries, ok := s.readUploadedFiles(w, r)
	if !ok {
		return
	}

	job, err := s.jobs.CreateJob(r.Context(), len(entries))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "JOB_CREATE", "falha ao registrar o trabalho de auditoria")
		return
	}

	go s.runAuditJob(job.ID, entries)

	writeJSON(w, http.StatusAccepted, job)
}

// runAuditJob waits for a worker slot, runs the pipeline and persists the
// outcome. It runs detached from the originating request.
func (s *Server) runAuditJob(jobID string, entries []model.RawFileEntry) {
	if err := s.limiter.Acquire(s.jobCtx); err != nil {
		s.failJob(jobID, "serviço encerrando antes do início do processamento")
		return
	}
	defer s.limiter.Release()

	metrics.JobsActive.Inc()
	defer metrics.JobsActive.Dec()

	ctx, cancel := context.WithTimeout(s.jobCtx, s.cfg.Upload.Timeout)
	defer cancel()

	if err := s.jobs.MarkRunning(ctx, jobID); err != nil {
		s.log.Error("job transition failed", "job", jobID, "error", err)
	}

	report, err := s.pipe.Run(ctx, entries, s.progressPersister(ctx, jobID))
	if err != nil {
		s.log.Error("audit job failed", "job", jobID, "error", err)
		s.failJob(jobID, fmt.Sprintf("processamento interrompido: %v", err))
		return
	}

	if err := s.jobs.Complete(ctx, jobID, report); err != nil {
		s.log.Error("job completion write failed", "job", jobID, "error", err)
		s.failJob(jobID, "falha ao gravar o relatório")
		return
	}
	s.log.Info("audit job completed", "job", jobID, "documents", len(report.Documents))
}

// progressPersister throttles progress writes: a snapshot is persisted when
// the percentage advances a full point or the step label changes.
func (s *Server) progressPersister(ctx context.Context, jobID string) pipeline.ProgressFunc {
	var lastPct float64
	var lastStep string
	return func(p pipeline.Progress) {
		if p.Percent-lastPct < 1 && p.Step == lastStep && p.Percent < 100 {
			return
		}
		lastPct = p.Percent
		lastStep = p.Step
		if err := s.jobs.UpdateProgress(ctx, jobID, p.Percent, p.Step); err != nil {
			s.log.Warn("progress write failed", "job", jobID, "error", err)
		}
	}
}

// failJob records a failure using a fresh context, since the job context may
// already be dead.
func (s *Server) failJob(jobID, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.jobs.Fail(ctx, jobID, message); err != nil {
		s.log.Error("job failure write failed", "job", jobID, "error", err)
	}
}

// handleListAudits returns jobs ordered newest first.
func (s *Server) handleListAudits(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 50)
	offset := parseIntParam(r, "offset", 0)

	jobs, err := s.jobs.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "JOB_LIST", "falha ao listar trabalhos")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// handleGetAudit returns one job with its progress.
func (s *Server) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	job, ok := s.getJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleGetReport returns the stored report of a finished job.
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	job, ok := s.getJob(w, r)
	if !ok {
		return
	}
	if job.Status != store.JobDone {
		writeError(w, r, http.StatusConflict, "JOB_NOT_DONE",
			fmt.Sprintf("trabalho ainda em estado %s", job.Status))
		return
	}

	report, err := s.jobs.GetReport(r.Context(), job.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "REPORT_READ", "falha ao carregar o relatório")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleReconcile matches a finished job's documents against uploaded bank
// statements and stores the enriched report.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	job, ok := s.getJob(w, r)
	if !ok {
		return
	}
	if job.Status != store.JobDone {
		writeError(w, r, http.StatusConflict, "JOB_NOT_DONE", "a auditoria ainda não foi concluída")
		return
	}

	bankFiles, ok := s.readUploadedFiles(w, r)
	if !ok {
		return
	}

	report, err := s.jobs.GetReport(r.Context(), job.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "REPORT_READ", "falha ao carregar o relatório")
		return
	}

	result, err := s.pipe.Reconcile(r.Context(), report.Documents, bankFiles, nil)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "RECONCILE", "falha na conciliação bancária")
		return
	}

	report.Reconciliation = result
	if err := s.jobs.UpdateReport(r.Context(), job.ID, report); err != nil {
		writeError(w, r, http.StatusInternalServerError, "REPORT_WRITE", "falha ao gravar o relatório conciliado")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// getJob loads the job named in the URL, writing the error response itself.
func (s *Server) getJob(w http.ResponseWriter, r *http.Request) (*store.Job, bool) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.jobs.Get(r.Context(), jobID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "JOB_NOT_FOUND", "trabalho de auditoria não encontrado")
		return nil, false
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "JOB_READ", "falha ao consultar o trabalho")
		return nil, false
	}
	return job, true
}

// readUploadedFiles extracts the multipart "files" field into raw entries,
// enforcing the configured count and size limits.
func (s *Server) readUploadedFiles(w http.ResponseWriter, r *http.Request) ([]model.RawFileEntry, bool) {
	maxTotal := s.cfg.Upload.MaxFileSize * int64(s.cfg.Upload.MaxFiles)
	r.Body = http.MaxBytesReader(w, r.Body, maxTotal)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, r, http.StatusBadRequest, "UPLOAD_FORM", "formulário inválido ou volume acima do limite")
		return nil, false
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, r, http.StatusBadRequest, "UPLOAD_EMPTY", "nenhum arquivo enviado no campo 'files'")
		return nil, false
	}
	if len(headers) > s.cfg.Upload.MaxFiles {
		writeError(w, r, http.StatusBadRequest, "UPLOAD_TOO_MANY",
			fmt.Sprintf("lote excede o máximo de %d arquivos", s.cfg.Upload.MaxFiles))
		return nil, false
	}

	entries := make([]model.RawFileEntry, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > s.cfg.Upload.MaxFileSize {
			writeError(w, r, http.StatusBadRequest, "UPLOAD_TOO_LARGE",
				fmt.Sprintf("arquivo %s excede o tamanho máximo permitido", fh.Filename))
			return nil, false
		}
		f, err := fh.Open()
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "UPLOAD_READ", "falha ao ler o arquivo enviado")
			return nil, false
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "UPLOAD_READ", "falha ao ler o arquivo enviado")
			return nil, false
		}
		entries = append(entries, model.RawFileEntry{
			Name:         fh.Filename,
			Size:         int64(len(data)),
			Data:         data,
			DeclaredMIME: fh.Header.Get("Content-Type"),
		})
	}
	return entries, true
}

// parseIntParam reads an integer query parameter with a default.
func parseIntParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
