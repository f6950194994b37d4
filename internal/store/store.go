// Package store persists audit jobs and their reports in PostgreSQL.
//
// A job tracks one uploaded batch from submission to finished report. The
// report itself is stored as a JSONB snapshot, so polling clients and the
// reconciliation endpoint read from the same source the pipeline wrote.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/auditoria/fiscal/internal/model"
)

// ErrNotFound is returned when a job ID does not exist.
var ErrNotFound = errors.New("audit job not found")

// JobStatus is the lifecycle state of an audit job.
type JobStatus string

const (
	JobPending JobStatus = "PENDING"
	JobRunning JobStatus = "RUNNING"
	JobDone    JobStatus = "DONE"
	JobFailed  JobStatus = "FAILED"
)

// Job is one persisted audit job.
type Job struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	FileCount   int        `json:"fileCount"`
	Progress    float64    `json:"progress"`
	Step        string     `json:"step,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Store provides audit-job persistence.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store backed by the given connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_jobs (
	id           UUID PRIMARY KEY,
	status       TEXT NOT NULL,
	file_count   INTEGER NOT NULL DEFAULT 0,
	progress     DOUBLE PRECISION NOT NULL DEFAULT 0,
	step         TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	report       JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_audit_jobs_created_at ON audit_jobs (created_at);
`

// EnsureSchema creates the audit_jobs table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// CreateJob inserts a new pending job and returns it.
func (s *Store) CreateJob(ctx context.Context, fileCount int) (*Job, error) {
	id := uuid.NewString()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO audit_jobs (id, status, file_count)
		VALUES ($1, $2, $3)
		RETURNING id, status, file_count, progress, step, error, created_at, updated_at, completed_at`,
		id, JobPending, fileCount)
	return scanJob(row)
}

// MarkRunning transitions a job to RUNNING.
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	return s.exec(ctx, `
		UPDATE audit_jobs SET status = $2, updated_at = now()
		WHERE id = $1`, id, JobRunning)
}

// UpdateProgress records the latest pipeline progress snapshot.
func (s *Store) UpdateProgress(ctx context.Context, id string, percent float64, step string) error {
	return s.exec(ctx, `
		UPDATE audit_jobs SET progress = $2, step = $3, updated_at = now()
		WHERE id = $1`, id, percent, step)
}

// Complete stores the finished report and transitions the job to DONE.
func (s *Store) Complete(ctx context.Context, id string, report *model.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return s.exec(ctx, `
		UPDATE audit_jobs
		SET status = $2, progress = 100, step = 'concluído', report = $3,
		    updated_at = now(), completed_at = now()
		WHERE id = $1`, id, JobDone, payload)
}

// Fail marks the job FAILED with the given message.
func (s *Store) Fail(ctx context.Context, id, message string) error {
	return s.exec(ctx, `
		UPDATE audit_jobs
		SET status = $2, error = $3, updated_at = now(), completed_at = now()
		WHERE id = $1`, id, JobFailed, message)
}

// UpdateReport rewrites the stored report, used after reconciliation enriches
// the original audit result.
func (s *Store) UpdateReport(ctx context.Context, id string, report *model.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return s.exec(ctx, `
		UPDATE audit_jobs SET report = $2, updated_at = now()
		WHERE id = $1`, id, payload)
}

// Get retrieves a single job by ID.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, status, file_count, progress, step, error, created_at, updated_at, completed_at
		FROM audit_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

// GetReport retrieves the stored report of a finished job.
func (s *Store) GetReport(ctx context.Context, id string) (*model.Report, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT report FROM audit_jobs WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, fmt.Errorf("job %s has no report yet", id)
	}
	var report model.Report
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &report, nil
}

// List returns jobs ordered newest first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, status, file_count, progress, step, error, created_at, updated_at, completed_at
		FROM audit_jobs ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// PurgeExpired deletes finished jobs older than the retention window.
func (s *Store) PurgeExpired(ctx context.Context, retentionDays int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM audit_jobs
		WHERE status IN ($1, $2)
		  AND created_at < now() - make_interval(days => $3)`,
		JobDone, JobFailed, retentionDays)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	err := row.Scan(&job.ID, &job.Status, &job.FileCount, &job.Progress,
		&job.Step, &job.Error, &job.CreatedAt, &job.UpdatedAt, &job.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &job, nil
}
