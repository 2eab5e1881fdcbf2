package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/floegence/research-agent/internal/research"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreLifecycle(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	job, err := store.Create(ctx, "what is wal mode?")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if job.JobID == "" || job.Status != StatusPending {
		t.Fatalf("unexpected job %+v", job)
	}

	if err := store.MarkRunning(ctx, job.JobID); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	got, err := store.Get(ctx, job.JobID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusRunning {
		t.Fatalf("expected running, got %q", got.Status)
	}

	if err := store.MarkCompleted(ctx, job.JobID, "the answer", `{"question":"q"}`); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	got, err = store.Get(ctx, job.JobID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCompleted || got.FinalAnswer != "the answer" || got.ReportJSON == "" {
		t.Fatalf("unexpected completed job %+v", got)
	}
}

func TestStoreMarkFailed(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	job, err := store.Create(ctx, "q")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.MarkFailed(ctx, job.JobID, "generate queries: attempts exhausted"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, _ := store.Get(ctx, job.JobID)
	if got.Status != StatusFailed || !strings.Contains(got.Error, "attempts exhausted") {
		t.Fatalf("unexpected failed job %+v", got)
	}
}

func TestStoreGetUnknownJob(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if err := store.MarkRunning(context.Background(), "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestStoreListNewestFirst(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	for _, q := range []string{"first", "second", "third"} {
		if _, err := store.Create(ctx, q); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	jobs, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
}

func TestRunnerExecutesJob(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	runner, err := NewRunner(store, func(_ context.Context, question string) (research.Report, error) {
		return research.Report{Question: question, FinalAnswer: "answered: " + question}, nil
	}, RunnerOptions{Log: discardLogger(), MaxConcurrent: 1})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	job, err := runner.Submit(context.Background(), "q1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	runner.Wait()

	got, err := store.Get(context.Background(), job.JobID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCompleted || got.FinalAnswer != "answered: q1" {
		t.Fatalf("unexpected job %+v", got)
	}
	if !strings.Contains(got.ReportJSON, `"question":"q1"`) {
		t.Fatalf("report json not persisted: %q", got.ReportJSON)
	}
}

func TestRunnerRecordsFailure(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	runner, err := NewRunner(store, func(context.Context, string) (research.Report, error) {
		return research.Report{}, errors.New("generate queries: rejected")
	}, RunnerOptions{Log: discardLogger()})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	job, err := runner.Submit(context.Background(), "q1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	runner.Wait()

	got, _ := store.Get(context.Background(), job.JobID)
	if got.Status != StatusFailed || !strings.Contains(got.Error, "rejected") {
		t.Fatalf("unexpected job %+v", got)
	}
}

func TestRunnerBoundsConcurrency(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	var mu sync.Mutex
	running, peak := 0, 0
	block := make(chan struct{})

	runner, err := NewRunner(store, func(context.Context, string) (research.Report, error) {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()
		<-block
		mu.Lock()
		running--
		mu.Unlock()
		return research.Report{}, nil
	}, RunnerOptions{Log: discardLogger(), MaxConcurrent: 2})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := runner.Submit(context.Background(), "q"); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	close(block)
	runner.Wait()

	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Fatalf("concurrency bound violated: peak %d", peak)
	}
}
