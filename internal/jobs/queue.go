// Package jobs runs long operations such as worksheet imports in the
// background and tracks their state by job ID.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// ErrFull is returned by Submit when the buffer is full.
var ErrFull = errors.New("job queue is full")

// Retention is how long a finished job stays readable through Get.
const Retention = time.Hour

// Func is the work of a job. Its result is reported by Get.
type Func func(ctx context.Context) (any, error)

// Job is a snapshot of a submitted job.
type Job struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	State      State      `json:"state"`
	Result     any        `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	Submitted  time.Time  `json:"submitted_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type task struct {
	id string
	fn Func
}

// Queue is a bounded job buffer drained by a fixed number of workers.
// Finished jobs are forgotten once they are older than Retention.
type Queue struct {
	tasks     chan task
	workers   int
	logger    *slog.Logger
	retention time.Duration
	now       func() time.Time

	mu   sync.RWMutex
	jobs map[string]*Job
}

func New(workers, buffer int, logger *slog.Logger) *Queue {
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		tasks:     make(chan task, buffer),
		workers:   workers,
		logger:    logger,
		retention: Retention,
		now:       func() time.Time { return time.Now().UTC() },
		jobs:      make(map[string]*Job),
	}
}

// Submit enqueues fn and returns its pending job without waiting.
func (q *Queue) Submit(kind string, fn Func) (Job, error) {
	j := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		State:     StatePending,
		Submitted: q.now(),
	}
	q.mu.Lock()
	q.sweep(j.Submitted)
	q.jobs[j.ID] = j
	q.mu.Unlock()

	select {
	case q.tasks <- task{id: j.ID, fn: fn}:
	default:
		q.mu.Lock()
		delete(q.jobs, j.ID)
		q.mu.Unlock()
		return Job{}, ErrFull
	}
	q.logger.Info("job submitted", "job", j.ID, "kind", kind)
	return *j, nil
}

// Get returns a snapshot of job id.
func (q *Queue) Get(id string) (Job, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	j, ok := q.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Run starts the workers and blocks until ctx is cancelled. Jobs still
// buffered at that point stay pending.
func (q *Queue) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case t := <-q.tasks:
					q.run(ctx, t)
				}
			}
		})
	}
	return g.Wait()
}

func (q *Queue) run(ctx context.Context, t task) {
	started := q.now()
	kind := q.update(t.id, func(j *Job) {
		j.State = StateRunning
		j.StartedAt = &started
	})

	result, err := q.call(ctx, t.fn)

	finished := q.now()
	q.update(t.id, func(j *Job) {
		j.FinishedAt = &finished
		j.Result = result
		if err != nil {
			j.State = StateFailed
			j.Error = err.Error()
			return
		}
		j.State = StateSucceeded
	})
	if err != nil {
		q.logger.Error("job failed", "job", t.id, "kind", kind, "error", err)
		return
	}
	q.logger.Info("job finished", "job", t.id, "kind", kind, "duration", finished.Sub(started))
}

func (q *Queue) call(ctx context.Context, fn Func) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// sweep drops jobs that finished more than retention before now. The
// caller holds q.mu.
func (q *Queue) sweep(now time.Time) {
	cutoff := now.Add(-q.retention)
	for id, j := range q.jobs {
		if j.FinishedAt != nil && j.FinishedAt.Before(cutoff) {
			delete(q.jobs, id)
		}
	}
}

func (q *Queue) update(id string, f func(*Job)) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return ""
	}
	f(j)
	return j.Kind
}
