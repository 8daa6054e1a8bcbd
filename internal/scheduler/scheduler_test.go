package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/maltedev/supercomparador/internal/models"
	"github.com/maltedev/supercomparador/internal/orchestrator"
	"github.com/maltedev/supercomparador/internal/queue"
	"github.com/maltedev/supercomparador/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu       sync.Mutex
	requests []orchestrator.Request
	status   models.RetailerStatus
	err      error
	block    chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, req orchestrator.Request) (*models.ResultSet, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)

	if f.err != nil {
		return nil, f.err
	}

	rs := models.NewResultSet(req.Query, req.Retailer)
	rs.ID = req.ID
	status := f.status
	if status == "" {
		status = models.StatusOK
	}
	rs.Retailers = append(rs.Retailers, models.RetailerOutcome{Retailer: "Lidl", Status: status})
	if status == models.StatusOK {
		rs.Products = append(rs.Products, models.ProductRecord{Name: "Leche", Price: 0.8, Retailer: "Lidl"})
	}
	return rs, nil
}

func (f *fakeRunner) queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.requests))
	for _, r := range f.requests {
		out = append(out, r.Query)
	}
	return out
}

type countingLimiter struct {
	mu        sync.Mutex
	waits     int
	successes int
	errors    int
}

func (c *countingLimiter) Wait(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits++
	return nil
}

func (c *countingLimiter) SetDelay(time.Duration, time.Duration) {}

func (c *countingLimiter) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successes++
}

func (c *countingLimiter) RecordError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors++
}

func startWorker(t *testing.T, w *Worker) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestWorkerRunsSubmittedJobs(t *testing.T) {
	runner := &fakeRunner{}
	limiter := &countingLimiter{}
	w := NewWorker(queue.NewInMemoryQueue(), runner, limiter, slog.Default())

	job, err := w.Submit("  leche ", "Lidl", queue.PriorityManual)
	require.NoError(t, err)
	assert.Equal(t, JobQueued, job.State)
	assert.Equal(t, "leche", job.Query)

	startWorker(t, w)

	require.Eventually(t, func() bool {
		j, ok := w.Job(job.ID)
		return ok && j.State == JobDone
	}, time.Second, 10*time.Millisecond)

	j, _ := w.Job(job.ID)
	assert.Equal(t, 1, j.ProductCount)
	assert.NotNil(t, j.FinishedAt)

	runner.mu.Lock()
	assert.Equal(t, job.ID, runner.requests[0].ID, "job ID becomes the run ID")
	runner.mu.Unlock()

	limiter.mu.Lock()
	assert.Equal(t, 1, limiter.waits)
	assert.Equal(t, 1, limiter.successes)
	limiter.mu.Unlock()
}

func TestWorkerRejectsDuplicateWhileRunning(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	w := NewWorker(queue.NewInMemoryQueue(), runner, nil, slog.Default())

	first, err := w.Submit("pan", "all", queue.PriorityManual)
	require.NoError(t, err)
	startWorker(t, w)

	require.Eventually(t, func() bool {
		j, _ := w.Job(first.ID)
		return j.State == JobRunning
	}, time.Second, 10*time.Millisecond)

	_, err = w.Submit("PAN", "ALL", queue.PriorityManual)
	assert.ErrorIs(t, err, queue.ErrDuplicate)

	close(runner.block)
	require.Eventually(t, func() bool {
		j, _ := w.Job(first.ID)
		return j.State == JobDone
	}, time.Second, 10*time.Millisecond)

	_, err = w.Submit("pan", "all", queue.PriorityManual)
	assert.NoError(t, err)
}

func TestWorkerRecordsFailures(t *testing.T) {
	runner := &fakeRunner{status: models.StatusBlocked}
	limiter := &countingLimiter{}
	w := NewWorker(queue.NewInMemoryQueue(), runner, limiter, slog.Default())

	blocked, err := w.Submit("leche", "", queue.PriorityManual)
	require.NoError(t, err)
	startWorker(t, w)

	require.Eventually(t, func() bool {
		j, _ := w.Job(blocked.ID)
		return j.State == JobFailed
	}, time.Second, 10*time.Millisecond)

	runner.mu.Lock()
	runner.err = errors.New("unknown retailer")
	runner.mu.Unlock()

	failed, err := w.Submit("pan", "", queue.PriorityManual)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		j, _ := w.Job(failed.ID)
		return j.State == JobFailed
	}, time.Second, 10*time.Millisecond)

	j, _ := w.Job(failed.ID)
	assert.Equal(t, "unknown retailer", j.Error)

	limiter.mu.Lock()
	assert.Equal(t, 2, limiter.errors)
	limiter.mu.Unlock()
}

func TestWorkerSubmitValidation(t *testing.T) {
	w := NewWorker(queue.NewInMemoryQueue(), &fakeRunner{}, nil, slog.Default())

	_, err := w.Submit("  ", "all", queue.PriorityManual)
	assert.ErrorIs(t, err, orchestrator.ErrEmptyQuery)

	_, ok := w.Job("missing")
	assert.False(t, ok)
}

func TestWorkerFailsQueuedJobsOnStop(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	w := NewWorker(queue.NewInMemoryQueue(), runner, nil, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	running, err := w.Submit("leche", "", queue.PriorityManual)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		j, _ := w.Job(running.ID)
		return j.State == JobRunning
	}, time.Second, 10*time.Millisecond)

	waiting, err := w.Submit("pan", "", queue.PriorityManual)
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}

	j, _ := w.Job(running.ID)
	assert.Equal(t, JobFailed, j.State)

	j, _ = w.Job(waiting.ID)
	assert.Equal(t, JobFailed, j.State)
	assert.Equal(t, errWorkerStopped.Error(), j.Error)
	assert.Empty(t, runner.queries(), "the queued job never reached the runner")
}

func TestWorkerStopsWhenQueueClosed(t *testing.T) {
	q := queue.NewInMemoryQueue()
	w := NewWorker(q, &fakeRunner{}, nil, slog.Default())
	require.NoError(t, q.Close())

	assert.NoError(t, w.Run(context.Background()))
}

func TestSchedulerRunOnStart(t *testing.T) {
	runner := &fakeRunner{}
	w := NewWorker(queue.NewInMemoryQueue(), runner, ratelimit.NewSimpleRateLimiter(0, 0), slog.Default())

	s := New(w, Options{Terms: []string{"leche", "pan", "leche"}, RunOnStart: true}, slog.Default())
	require.NoError(t, s.Run(context.Background()), "zero interval returns after the initial run")

	startWorker(t, w)
	require.Eventually(t, func() bool {
		return len(runner.queries()) == 2
	}, time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"leche", "pan"}, runner.queries())
}

func TestSchedulerTicks(t *testing.T) {
	runner := &fakeRunner{}
	w := NewWorker(queue.NewInMemoryQueue(), runner, nil, slog.Default())
	startWorker(t, w)

	ctx, cancel := context.WithCancel(context.Background())
	s := New(w, Options{Terms: []string{"huevos"}, Interval: 20 * time.Millisecond}, slog.Default())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(runner.queries()) >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestSchedulerWithoutTerms(t *testing.T) {
	w := NewWorker(queue.NewInMemoryQueue(), &fakeRunner{}, nil, slog.Default())
	s := New(w, Options{Interval: time.Millisecond}, slog.Default())
	assert.NoError(t, s.Run(context.Background()))
}
