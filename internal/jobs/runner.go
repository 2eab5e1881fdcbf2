package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/floegence/research-agent/internal/research"
)

// TaskFunc runs one research task to a report.
type TaskFunc func(ctx context.Context, question string) (research.Report, error)

type RunnerOptions struct {
	Log *slog.Logger

	// MaxConcurrent bounds how many tasks execute at once; queued jobs stay
	// pending until a slot frees.
	MaxConcurrent int
}

// Runner executes submitted jobs in the background, at most MaxConcurrent at
// a time. Jobs run detached from the submitting request; submitting returns
// as soon as the job is registered.
type Runner struct {
	log   *slog.Logger
	store *Store
	task  TaskFunc
	sem   *semaphore.Weighted
	wg    sync.WaitGroup
}

func NewRunner(store *Store, task TaskFunc, opts RunnerOptions) (*Runner, error) {
	if store == nil {
		return nil, errors.New("missing store")
	}
	if task == nil {
		return nil, errors.New("missing task func")
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Runner{
		log:   log,
		store: store,
		task:  task,
		sem:   semaphore.NewWeighted(int64(maxConcurrent)),
	}, nil
}

// Submit registers a job and schedules it. The job executes on a background
// context; in-flight work is not tied to the caller's request lifetime.
func (r *Runner) Submit(ctx context.Context, question string) (*Job, error) {
	job, err := r.store.Create(ctx, question)
	if err != nil {
		return nil, err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.execute(context.Background(), job.JobID, job.Question)
	}()
	return job, nil
}

// Wait blocks until every submitted job has finished. Used by batch mode and
// tests; the HTTP server never calls it.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) execute(ctx context.Context, jobID string, question string) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.log.Warn("job slot acquisition failed", "job_id", jobID, "error", err)
		_ = r.store.MarkFailed(ctx, jobID, err.Error())
		return
	}
	defer r.sem.Release(1)

	if err := r.store.MarkRunning(ctx, jobID); err != nil {
		r.log.Warn("job transition failed", "job_id", jobID, "error", err)
		return
	}
	r.log.Info("job started", "job_id", jobID)

	report, err := r.task(ctx, question)
	if err != nil {
		r.log.Warn("job failed", "job_id", jobID, "error", err)
		_ = r.store.MarkFailed(ctx, jobID, err.Error())
		return
	}

	reportJSON := ""
	if b, err := json.Marshal(report); err == nil {
		reportJSON = string(b)
	}
	if err := r.store.MarkCompleted(ctx, jobID, report.FinalAnswer, reportJSON); err != nil {
		r.log.Warn("job completion not recorded", "job_id", jobID, "error", err)
		return
	}
	r.log.Info("job completed", "job_id", jobID, "answer_chars", len(report.FinalAnswer))
}
