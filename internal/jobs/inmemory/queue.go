package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/expense-tracker/internal/jobs"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/google/uuid"
)

// DefaultWorkers is the number of statements parsed concurrently.
const DefaultWorkers = 5

const (
	defaultBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// ErrQueueClosed is returned when publishing to or starting a stopped queue.
var ErrQueueClosed = errors.New("queue is closed")

// Queue runs statement parse jobs on a fixed pool of workers inside the
// process. Queued jobs are lost on restart; the staging TTL covers
// abandoned uploads.
type Queue struct {
	pending chan *jobs.ParseStatementJob
	stopped chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool

	store   jobs.JobStore
	workers int
	backoff time.Duration
}

// NewQueue creates a queue holding up to bufferSize jobs before
// PublishParseStatement blocks.
func NewQueue(bufferSize, workers int, store jobs.JobStore) *Queue {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Queue{
		pending: make(chan *jobs.ParseStatementJob, bufferSize),
		stopped: make(chan struct{}),
		store:   store,
		workers: workers,
		backoff: defaultBackoff,
	}
}

// PublishParseStatement implements jobs.Publisher.
func (q *Queue) PublishParseStatement(ctx context.Context, job *jobs.ParseStatementJob) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return ErrQueueClosed
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = jobs.DefaultMaxRetries
	}
	job.Status = jobs.JobStatusPending
	q.save(ctx, job)

	return q.enqueue(ctx, job)
}

func (q *Queue) enqueue(ctx context.Context, job *jobs.ParseStatementJob) error {
	select {
	case q.pending <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.stopped:
		return ErrQueueClosed
	}
}

// Start implements jobs.Consumer.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(ctx, handler)
	}
	return nil
}

func (q *Queue) work(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopped:
			return
		case job := <-q.pending:
			if job == nil {
				return
			}
			q.run(ctx, job, handler)
		}
	}
}

// run parses one statement and settles the job.
func (q *Queue) run(ctx context.Context, job *jobs.ParseStatementJob, handler jobs.JobHandler) {
	started := time.Now()
	job.Status = jobs.JobStatusRunning
	job.StartedAt = &started
	job.CompletedAt = nil
	q.save(ctx, job)

	err := handler(ctx, job)

	finished := time.Now()
	job.CompletedAt = &finished
	q.settle(ctx, job, err)
}

// settle records the outcome of an attempt. Successful and permanently failed
// jobs release the statement bytes; transient failures are scheduled again
// until MaxRetries is spent.
func (q *Queue) settle(ctx context.Context, job *jobs.ParseStatementJob, err error) {
	log := logger.FromContext(ctx).With().
		Str("job_id", job.JobID).
		Str("task_id", job.TaskID).
		Int("retry", job.RetryCount).
		Logger()

	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		job.File = nil
	case jobs.IsPermanent(err):
		log.Warn().Err(err).Msg("Statement parse failed permanently, not retrying")
		job.Status = jobs.JobStatusFailed
		job.Error = err.Error()
		job.File = nil
	case ctx.Err() != nil:
		job.Status = jobs.JobStatusFailed
		job.Error = "queue stopped before the statement was parsed"
		job.File = nil
	case job.RetryCount >= job.MaxRetries:
		log.Error().Err(err).Msg("Statement parse failed, retries exhausted")
		job.Status = jobs.JobStatusFailed
		job.Error = err.Error()
		job.File = nil
	default:
		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
		job.Error = err.Error()
		delay := q.retryDelay(job.RetryCount)
		log.Info().Err(err).Dur("delay", delay).Msg("Statement parse will be retried")
		q.save(ctx, job)
		q.retryLater(ctx, job, delay)
		return
	}
	q.save(ctx, job)
}

// retryDelay doubles the base backoff per attempt, capped at maxBackoff.
func (q *Queue) retryDelay(attempt int) time.Duration {
	delay := q.backoff
	for i := 1; i < attempt && delay < maxBackoff; i++ {
		delay *= 2
	}
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

// retryLater requeues job after delay. Stopping the queue while it waits
// fails the job instead.
func (q *Queue) retryLater(ctx context.Context, job *jobs.ParseStatementJob, delay time.Duration) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			q.abandon(job, "queue stopped before retry")
			return
		case <-q.stopped:
			q.abandon(job, "queue stopped before retry")
			return
		}
		select {
		case <-q.stopped:
			q.abandon(job, "queue stopped before retry")
			return
		default:
		}

		job.Status = jobs.JobStatusPending
		job.StartedAt = nil
		job.CompletedAt = nil
		q.save(ctx, job)
		if err := q.enqueue(ctx, job); err != nil {
			q.abandon(job, fmt.Sprintf("requeue failed: %v", err))
		}
	}()
}

func (q *Queue) abandon(job *jobs.ParseStatementJob, reason string) {
	job.File = nil
	if q.store != nil {
		_ = q.store.UpdateJobStatus(context.Background(), job.JobID, jobs.JobStatusFailed, reason)
	}
}

func (q *Queue) save(ctx context.Context, job *jobs.ParseStatementJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(context.WithoutCancel(ctx), job); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to record job state")
	}
}

// Stop implements jobs.Consumer. It waits for running parses and pending
// retries to finish.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.stopped)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements jobs.Publisher.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
