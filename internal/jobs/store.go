package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Job statuses. A job moves pending -> running -> completed|failed and never
// back.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var ErrJobNotFound = errors.New("job not found")

// Job is one submitted research task and its lifecycle record.
type Job struct {
	JobID       string `json:"job_id"`
	Question    string `json:"question"`
	Status      string `json:"status"`
	FinalAnswer string `json:"final_answer,omitempty"`
	Error       string `json:"error,omitempty"`
	ReportJSON  string `json:"report_json,omitempty"`

	CreatedAtUnixMs int64 `json:"created_at_unix_ms"`
	UpdatedAtUnixMs int64 `json:"updated_at_unix_ms"`
}

// Store is the SQLite-backed job registry.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" {
		return nil, errors.New("missing db path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("nil db")
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=3000;`); err != nil {
		return fmt.Errorf("pragma busy_timeout: %w", err)
	}
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS research_jobs (
  job_id TEXT PRIMARY KEY,
  question TEXT NOT NULL,
  status TEXT NOT NULL,
  final_answer TEXT NOT NULL DEFAULT '',
  error TEXT NOT NULL DEFAULT '',
  report_json TEXT NOT NULL DEFAULT '',
  created_at_unix_ms INTEGER NOT NULL,
  updated_at_unix_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_research_jobs_created
  ON research_jobs (created_at_unix_ms DESC);
`)
	return err
}

func nowUnixMs() int64 {
	return time.Now().UnixMilli()
}

// Create registers a new pending job and returns it.
func (s *Store) Create(ctx context.Context, question string) (*Job, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.New("missing question")
	}

	now := nowUnixMs()
	job := &Job{
		JobID:           uuid.NewString(),
		Question:        question,
		Status:          StatusPending,
		CreatedAtUnixMs: now,
		UpdatedAtUnixMs: now,
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO research_jobs (job_id, question, status, created_at_unix_ms, updated_at_unix_ms)
VALUES (?, ?, ?, ?, ?)
`, job.JobID, job.Question, job.Status, job.CreatedAtUnixMs, job.UpdatedAtUnixMs)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Store) Get(ctx context.Context, jobID string) (*Job, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, errors.New("missing job_id")
	}

	var j Job
	err := s.db.QueryRowContext(ctx, `
SELECT job_id, question, status, final_answer, error, report_json, created_at_unix_ms, updated_at_unix_ms
FROM research_jobs
WHERE job_id = ?
`, jobID).Scan(
		&j.JobID,
		&j.Question,
		&j.Status,
		&j.FinalAnswer,
		&j.Error,
		&j.ReportJSON,
		&j.CreatedAtUnixMs,
		&j.UpdatedAtUnixMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// List returns jobs newest-first.
func (s *Store) List(ctx context.Context, limit int) ([]Job, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT job_id, question, status, final_answer, error, report_json, created_at_unix_ms, updated_at_unix_ms
FROM research_jobs
ORDER BY created_at_unix_ms DESC, job_id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Job, 0, limit)
	for rows.Next() {
		var j Job
		if err := rows.Scan(
			&j.JobID,
			&j.Question,
			&j.Status,
			&j.FinalAnswer,
			&j.Error,
			&j.ReportJSON,
			&j.CreatedAtUnixMs,
			&j.UpdatedAtUnixMs,
		); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// MarkRunning transitions a pending job to running.
func (s *Store) MarkRunning(ctx context.Context, jobID string) error {
	return s.transition(ctx, jobID, StatusRunning, "", "", "")
}

// MarkCompleted records a successful run.
func (s *Store) MarkCompleted(ctx context.Context, jobID string, finalAnswer string, reportJSON string) error {
	return s.transition(ctx, jobID, StatusCompleted, finalAnswer, "", reportJSON)
}

// MarkFailed records a failed run.
func (s *Store) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	return s.transition(ctx, jobID, StatusFailed, "", strings.TrimSpace(errMsg), "")
}

func (s *Store) transition(ctx context.Context, jobID string, status string, finalAnswer string, errMsg string, reportJSON string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return errors.New("missing job_id")
	}

	res, err := s.db.ExecContext(ctx, `
UPDATE research_jobs
SET status = ?, final_answer = ?, error = ?, report_json = ?, updated_at_unix_ms = ?
WHERE job_id = ?
`, status, finalAnswer, errMsg, reportJSON, nowUnixMs(), jobID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}
