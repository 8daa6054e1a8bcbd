// Package queue holds pending scrape jobs. A query is tracked from the moment
// it is pushed until its worker calls Done, so the same search never runs
// twice at once.
package queue

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/maltedev/supercomparador/internal/adapter"
)

var (
	ErrQueueEmpty  = errors.New("queue is empty")
	ErrQueueClosed = errors.New("queue is closed")
	ErrDuplicate   = errors.New("a run for this query is already pending")
)

const (
	PriorityScheduled = 0
	PriorityManual    = 10
)

type Task struct {
	ID        string
	Query     string
	Retailer  string
	Priority  int
	CreatedAt time.Time
}

// Key identifies the search a task performs. An empty retailer is the same
// search as "all".
func (t *Task) Key() string {
	retailer := strings.ToLower(strings.TrimSpace(t.Retailer))
	if retailer == "" {
		retailer = adapter.FilterAll
	}
	return strings.ToLower(strings.TrimSpace(t.Query)) + "|" + retailer
}

type Queue interface {
	Push(task *Task) error
	Pop(ctx context.Context) (*Task, error)
	TryPop() (*Task, error)
	Done(task *Task)
	Size() int
	Close() error
}

type InMemoryQueue struct {
	tasks  []*Task
	active map[string]bool
	mu     sync.Mutex
	notify chan struct{}
	closed bool
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		tasks:  make([]*Task, 0),
		active: make(map[string]bool),
		notify: make(chan struct{}, 1),
	}
}

// Push enqueues task unless the same query is already queued or running.
func (q *InMemoryQueue) Push(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	key := task.Key()
	if q.active[key] {
		return ErrDuplicate
	}
	q.active[key] = true

	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	q.tasks = append(q.tasks, task)
	q.sortByPriority()
	q.signal()

	return nil
}

// Pop blocks until a task is available, the queue is closed or ctx is done.
func (q *InMemoryQueue) Pop(ctx context.Context) (*Task, error) {
	for {
		q.mu.Lock()
		if len(q.tasks) > 0 {
			task := q.tasks[0]
			q.tasks = q.tasks[1:]
			if len(q.tasks) > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return task, nil
		}
		if q.closed {
			q.signal()
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// TryPop returns ErrQueueEmpty instead of blocking.
func (q *InMemoryQueue) TryPop() (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		if q.closed {
			return nil, ErrQueueClosed
		}
		return nil, ErrQueueEmpty
	}

	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	return task, nil
}

// Done releases the task's query so it can be queued again.
func (q *InMemoryQueue) Done(task *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.active, task.Key())
}

func (q *InMemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.signal()

	return nil
}

// signal wakes one waiting Pop. Callers hold mu.
func (q *InMemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// sortByPriority orders higher priorities first, oldest first within a
// priority.
func (q *InMemoryQueue) sortByPriority() {
	slices.SortStableFunc(q.tasks, func(a, b *Task) int {
		return b.Priority - a.Priority
	})
}
