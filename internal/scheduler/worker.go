package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/maltedev/supercomparador/internal/models"
	"github.com/maltedev/supercomparador/internal/orchestrator"
	"github.com/maltedev/supercomparador/internal/queue"
	"github.com/maltedev/supercomparador/internal/ratelimit"
)

var errWorkerStopped = errors.New("worker stopped before the job ran")

type JobState string

const (
	JobQueued  JobState = "queued"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

// Job is the externally visible state of a queued scrape run. Its ID is also
// the ID of the result set the run produces.
type Job struct {
	ID           string     `json:"run_id"`
	Query        string     `json:"query"`
	Retailer     string     `json:"retailer,omitempty"`
	State        JobState   `json:"state"`
	ProductCount int        `json:"product_count"`
	Error        string     `json:"error,omitempty"`
	QueuedAt     time.Time  `json:"queued_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Runner executes a scrape run.
type Runner interface {
	Run(ctx context.Context, req orchestrator.Request) (*models.ResultSet, error)
}

// Feedback is implemented by limiters that adapt to run outcomes.
type Feedback interface {
	RecordSuccess()
	RecordError()
}

// Worker runs queued scrape jobs one at a time, spaced by a rate limiter.
type Worker struct {
	queue   queue.Queue
	runner  Runner
	spacing ratelimit.RateLimiter
	jobs    *expirable.LRU[string, Job]
	logger  *slog.Logger
}

func NewWorker(q queue.Queue, runner Runner, spacing ratelimit.RateLimiter, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:   q,
		runner:  runner,
		spacing: spacing,
		jobs:    expirable.NewLRU[string, Job](512, nil, 24*time.Hour),
		logger:  logger.With("component", "worker"),
	}
}

// Submit queues a run for query. It fails with queue.ErrDuplicate when the
// same search is already queued or running.
func (w *Worker) Submit(query, retailer string, priority int) (Job, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Job{}, orchestrator.ErrEmptyQuery
	}

	task := &queue.Task{
		ID:        uuid.New().String(),
		Query:     query,
		Retailer:  strings.TrimSpace(retailer),
		Priority:  priority,
		CreatedAt: time.Now(),
	}

	job := Job{
		ID:       task.ID,
		Query:    task.Query,
		Retailer: task.Retailer,
		State:    JobQueued,
		QueuedAt: task.CreatedAt,
	}
	w.jobs.Add(job.ID, job)

	if err := w.queue.Push(task); err != nil {
		w.jobs.Remove(job.ID)
		return Job{}, err
	}

	w.logger.Info("scrape queued", "run_id", job.ID, "query", query, "retailer", task.Retailer, "pending", w.queue.Size())
	return job, nil
}

// Job returns the state of a recently submitted run.
func (w *Worker) Job(id string) (Job, bool) {
	return w.jobs.Get(id)
}

// Run processes jobs until ctx is done or the queue is closed. Jobs still
// queued when it returns are marked failed.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started")
	defer w.drain()

	for {
		if err := ctx.Err(); err != nil {
			w.logger.Info("worker stopped")
			return err
		}

		task, err := w.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) {
				w.logger.Info("worker stopped, queue closed")
				return nil
			}
			w.logger.Info("worker stopped")
			return err
		}

		if w.spacing != nil {
			if err := w.spacing.Wait(ctx); err != nil {
				w.queue.Done(task)
				w.finish(task.ID, 0, err)
				return err
			}
		}

		w.process(ctx, task)
	}
}

func (w *Worker) process(ctx context.Context, task *queue.Task) {
	w.update(task.ID, func(j *Job) { j.State = JobRunning })

	rs, err := w.runner.Run(ctx, orchestrator.Request{
		ID:       task.ID,
		Query:    task.Query,
		Retailer: task.Retailer,
	})
	if err == nil && !anyOK(rs) {
		err = fmt.Errorf("no retailer returned products")
	}

	if fb, ok := w.spacing.(Feedback); ok {
		if err != nil {
			fb.RecordError()
		} else {
			fb.RecordSuccess()
		}
	}

	if err != nil {
		w.logger.Warn("scrape job failed", "run_id", task.ID, "query", task.Query, "error", err)
	}

	w.queue.Done(task)
	w.finish(task.ID, rs.Len(), err)
}

func (w *Worker) drain() {
	for {
		task, err := w.queue.TryPop()
		if err != nil {
			return
		}
		w.queue.Done(task)
		w.finish(task.ID, 0, errWorkerStopped)
	}
}

func (w *Worker) finish(id string, products int, err error) {
	now := time.Now()
	w.update(id, func(j *Job) {
		j.State = JobDone
		j.ProductCount = products
		j.FinishedAt = &now
		if err != nil {
			j.State = JobFailed
			j.Error = err.Error()
		}
	})
}

func (w *Worker) update(id string, fn func(*Job)) {
	job, ok := w.jobs.Get(id)
	if !ok {
		return
	}
	fn(&job)
	w.jobs.Add(id, job)
}

func anyOK(rs *models.ResultSet) bool {
	if rs == nil {
		return false
	}
	for _, o := range rs.Retailers {
		if o.Status == models.StatusOK {
			return true
		}
	}
	return false
}
