package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/expense-tracker/internal/jobs"
)

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.ParseStatementJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", jobID, want)
	return nil
}

func TestQueue_ProcessesJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, 2, store)

	var gotFile atomic.Value
	if err := q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		gotFile.Store(string(job.(*jobs.ParseStatementJob).File))
		return nil
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer q.Stop(context.Background())

	job := &jobs.ParseStatementJob{UserID: "u", TaskID: "t", File: []byte("%PDF")}
	if err := q.PublishParseStatement(ctx, job); err != nil {
		t.Fatalf("PublishParseStatement() error = %v", err)
	}
	if job.JobID == "" {
		t.Fatal("publish must assign a job id")
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if done.StartedAt == nil || done.CompletedAt == nil {
		t.Errorf("timestamps not recorded: %+v", done)
	}
	if gotFile.Load() != "%PDF" {
		t.Errorf("handler saw file %v", gotFile.Load())
	}
}

func TestQueue_RetriesThenSucceeds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, 1, store)
	q.backoff = time.Millisecond

	var calls atomic.Int32
	_ = q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		if calls.Add(1) == 1 {
			return errors.New("model timeout")
		}
		return nil
	})
	defer q.Stop(context.Background())

	job := &jobs.ParseStatementJob{JobID: "retry-me", UserID: "u", TaskID: "t"}
	_ = q.PublishParseStatement(ctx, job)

	done := waitForStatus(t, store, "retry-me", jobs.JobStatusCompleted)
	if done.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", done.RetryCount)
	}
	if done.Error != "" {
		t.Errorf("Error = %q, want cleared after success", done.Error)
	}
}

func TestQueue_FailsAfterMaxRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, 1, store)
	q.backoff = time.Millisecond

	_ = q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		return errors.New("not a statement")
	})
	defer q.Stop(context.Background())

	_ = q.PublishParseStatement(ctx, &jobs.ParseStatementJob{JobID: "doomed", MaxRetries: 2})

	done := waitForStatus(t, store, "doomed", jobs.JobStatusFailed)
	if done.RetryCount != 2 || done.Error != "not a statement" {
		t.Errorf("job = %+v", done)
	}
}

func TestQueue_PermanentFailureIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, 1, store)
	q.backoff = time.Millisecond

	var calls atomic.Int32
	_ = q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		calls.Add(1)
		return jobs.Permanent(errors.New("job carries no statement file"))
	})
	defer q.Stop(context.Background())

	_ = q.PublishParseStatement(ctx, &jobs.ParseStatementJob{JobID: "empty", File: []byte("%PDF")})

	done := waitForStatus(t, store, "empty", jobs.JobStatusFailed)
	if done.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", done.RetryCount)
	}
	if done.Error != "job carries no statement file" {
		t.Errorf("Error = %q", done.Error)
	}
	time.Sleep(20 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("handler called %d times, want 1", n)
	}
}

func TestQueue_RetryDelay(t *testing.T) {
	q := NewQueue(1, 1, nil)
	q.backoff = time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, maxBackoff},
		{40, maxBackoff},
	}
	for _, tt := range tests {
		if got := q.retryDelay(tt.attempt); got != tt.want {
			t.Errorf("retryDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestQueue_StopDuringBackoffFailsJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, 1, store)
	q.backoff = time.Hour

	_ = q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		return errors.New("model timeout")
	})

	_ = q.PublishParseStatement(ctx, &jobs.ParseStatementJob{JobID: "waiting", File: []byte("%PDF")})
	waitForStatus(t, store, "waiting", jobs.JobStatusRetrying)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := q.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	job, err := store.GetJob(context.Background(), "waiting")
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != jobs.JobStatusFailed || job.Error != "queue stopped before retry" {
		t.Errorf("job = %+v, want failed after stop", job)
	}
}

func TestQueue_PublishAfterClose(t *testing.T) {
	q := NewQueue(1, 1, nil)
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := q.PublishParseStatement(context.Background(), &jobs.ParseStatementJob{}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("publish error = %v, want ErrQueueClosed", err)
	}
	if err := q.Start(context.Background(), nil); !errors.Is(err, ErrQueueClosed) {
		t.Error("expected error starting a closed queue")
	}
}
