package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditoria/fiscal/internal/config"
	"github.com/auditoria/fiscal/internal/model"
	"github.com/auditoria/fiscal/internal/pipeline"
	"github.com/auditoria/fiscal/internal/store"
)

// memStore is an in-memory JobStore for handler tests.
type memStore struct {
	mu      sync.Mutex
	jobs    map[string]*store.Job
	reports map[string]*model.Report
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]*store.Job), reports: make(map[string]*model.Report)}
}

func (m *memStore) CreateJob(_ context.Context, fileCount int) (*store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := &store.Job{
		ID:        uuid.NewString(),
		Status:    store.JobPending,
		FileCount: fileCount,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.jobs[job.ID] = job
	copy := *job
	return &copy, nil
}

func (m *memStore) MarkRunning(_ context.Context, id string) error {
	return m.update(id, func(j *store.Job) { j.Status = store.JobRunning })
}

func (m *memStore) UpdateProgress(_ context.Context, id string, percent float64, step string) error {
	return m.update(id, func(j *store.Job) { j.Progress = percent; j.Step = step })
}

func (m *memStore) Complete(_ context.Context, id string, report *model.Report) error {
	m.mu.Lock()
	m.reports[id] = report
	m.mu.Unlock()
	return m.update(id, func(j *store.Job) { j.Status = store.JobDone; j.Progress = 100 })
}

func (m *memStore) Fail(_ context.Context, id, message string) error {
	return m.update(id, func(j *store.Job) { j.Status = store.JobFailed; j.Error = message })
}

func (m *memStore) UpdateReport(_ context.Context, id string, report *model.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return store.ErrNotFound
	}
	m.reports[id] = report
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copy := *job
	return &copy, nil
}

func (m *memStore) GetReport(_ context.Context, id string) (*model.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	report, ok := m.reports[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return report, nil
}

func (m *memStore) List(_ context.Context, limit, offset int) ([]store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, *j)
	}
	return out, nil
}

func (m *memStore) update(id string, fn func(*store.Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	fn(job)
	job.UpdatedAt = time.Now()
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, RequestTimeout: 10 * time.Second},
		Upload: config.UploadConfig{
			MaxFileSize:   1 << 20,
			MaxFiles:      5,
			MaxConcurrent: 2,
			Timeout:       time.Minute,
		},
		Pipeline: config.PipelineConfig{Workers: 2},
		Logging:  config.LoggingConfig{Level: "info", Format: "text"},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *memStore) {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	pipe := pipeline.New(pipeline.Config{Workers: cfg.Pipeline.Workers}, nil, nil)
	st := newMemStore()
	return NewServer(cfg, nil, pipe, st), st
}

// multipartBody builds a multipart body with the given files under "files".
func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func waitForStatus(t *testing.T, st *memStore, jobID string, want store.JobStatus) *store.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := st.Get(context.Background(), jobID)
		require.NoError(t, err)
		if job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("trabalho %s não atingiu o estado %s", jobID, want)
	return nil
}

func TestCreateAuditEndToEnd(t *testing.T) {
	srv, st := newTestServer(t, nil)

	body, contentType := multipartBody(t, map[string]string{
		"nota.csv": "produto_nome,produto_cfop,emitente_uf,destinatario_uf\nParafuso,6101,SP,SP\n",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/audits", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var job store.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, 1, job.FileCount)

	done := waitForStatus(t, st, job.ID, store.JobDone)
	assert.InDelta(t, 100.0, done.Progress, 0.001)

	// Report endpoint serves the stored result.
	req = httptest.NewRequest(http.MethodGet, "/api/audits/"+job.ID+"/report", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var report model.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Len(t, report.Documents, 1)
	assert.Equal(t, model.StatusErro, report.Documents[0].Status)
}

func TestCreateAuditRejectsEmptyForm(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	body, contentType := multipartBody(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/audits", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "UPLOAD_EMPTY")
}

func TestCreateAuditRejectsTooManyFiles(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.MaxFiles = 2
	srv, _ := newTestServer(t, cfg)

	files := map[string]string{}
	for i := 0; i < 3; i++ {
		files[fmt.Sprintf("f%d.csv", i)] = "a,b\n1,2\n"
	}
	body, contentType := multipartBody(t, files)
	req := httptest.NewRequest(http.MethodPost, "/api/audits", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "UPLOAD_TOO_MANY")
}

func TestGetAuditNotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/audits/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "JOB_NOT_FOUND")
}

func TestGetReportBeforeCompletion(t *testing.T) {
	srv, st := newTestServer(t, nil)
	job, err := st.CreateJob(context.Background(), 1)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/audits/"+job.ID+"/report", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "JOB_NOT_DONE")
}

func TestReconcileEndpoint(t *testing.T) {
	srv, st := newTestServer(t, nil)

	// Run a full audit first.
	body, contentType := multipartBody(t, map[string]string{
		"nota.csv": "produto_nome,valor_total_nfe,data_emissao\nServiço,\"500,00\",2024-07-01\n",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/audits", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var job store.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	waitForStatus(t, st, job.ID, store.JobDone)

	body, contentType = multipartBody(t, map[string]string{
		"extrato.csv": "Data,Descrição,Valor\n2024-07-20,TED fornecedor,\"-500,01\"\n",
	})
	req = httptest.NewRequest(http.MethodPost, "/api/audits/"+job.ID+"/reconcile", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result model.ReconciliationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Len(t, result.MatchedPairs, 1)

	// The stored report now carries the reconciliation outcome.
	report, err := st.GetReport(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, report.Reconciliation)
	assert.Len(t, report.Reconciliation.MatchedPairs, 1)
}

func TestAPIKeyAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"chave-secreta"}
	srv, _ := newTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/audits", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/audits", nil)
	req.Header.Set("X-API-Key", "chave-secreta")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open without a key.
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
