package marketdata

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/ratelimit"
)

const (
	defaultQueueInterval = 250 * time.Millisecond
	defaultQueueCapacity = 256
)

// Queue runs outbound jobs one at a time in submission order, spacing them by
// a minimum interval so bursts never reach third-party rate limits.
type Queue struct {
	jobs    chan *queueJob
	limiter ratelimit.Limiter

	mu     sync.RWMutex
	closed bool

	pending atomic.Int64
	done    chan struct{}
}

type queueJob struct {
	ctx  context.Context
	fn   func(context.Context) error
	errc chan error
}

// NewQueue starts the queue worker. A non-positive interval uses the default
// spacing, a non-positive capacity the default buffer size.
func NewQueue(interval time.Duration, capacity int) *Queue {
	if interval <= 0 {
		interval = defaultQueueInterval
	}
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	q := &Queue{
		jobs:    make(chan *queueJob, capacity),
		limiter: ratelimit.New(1, ratelimit.Per(interval), ratelimit.WithoutSlack),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Do enqueues fn and waits until it ran or ctx is done. A job whose context is
// cancelled before the worker reaches it is skipped.
func (q *Queue) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	job := &queueJob{ctx: ctx, fn: fn, errc: make(chan error, 1)}

	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	q.pending.Add(1)
	select {
	case q.jobs <- job:
	case <-ctx.Done():
		q.pending.Add(-1)
		q.mu.RUnlock()
		return ctx.Err()
	}
	q.mu.RUnlock()

	select {
	case err := <-job.errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending reports the number of queued jobs not yet finished.
func (q *Queue) Pending() int {
	return int(q.pending.Load())
}

// Close stops accepting jobs, lets the worker drain what is queued and waits
// for it to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for job := range q.jobs {
		q.execute(job)
		q.pending.Add(-1)
	}
}

func (q *Queue) execute(job *queueJob) {
	if err := job.ctx.Err(); err != nil {
		job.errc <- err
		return
	}
	q.limiter.Take()
	if err := job.ctx.Err(); err != nil {
		job.errc <- err
		return
	}
	job.errc <- job.fn(job.ctx)
}
