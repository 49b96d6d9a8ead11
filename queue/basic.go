package queue

import (
	"container/list"
	"context"
	"sync"

	"github.com/go-foundations/jobengine"
)

// Basic is the mutex-protected deque plus condition variable. Capacity,
// if set, is enforced unless a wrapper (see Backpressure) intercepts
// first.
type Basic struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    *list.List
	capacity int // 0 means unbounded
	stopped  bool
}

// NewBasic constructs a Basic queue. capacity <= 0 means unbounded.
func NewBasic(capacity int) *Basic {
	q := &Basic{items: list.New(), capacity: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends job to the tail, failing with ErrQueueStopped or
// ErrQueueFull as appropriate.
func (q *Basic) Enqueue(job *jobengine.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enqueueLocked(job)
}

func (q *Basic) enqueueLocked(job *jobengine.Job) error {
	if q.stopped {
		return jobengine.ErrQueueStopped
	}
	if q.capacity > 0 && q.items.Len() >= q.capacity {
		return jobengine.ErrQueueFull
	}
	q.items.PushBack(job)
	q.cond.Broadcast()
	return nil
}

// EnqueueBatch enqueues every job in jobs atomically with respect to
// capacity: either all fit or none are enqueued.
func (q *Basic) EnqueueBatch(jobs []*jobengine.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return jobengine.ErrQueueStopped
	}
	if q.capacity > 0 && q.items.Len()+len(jobs) > q.capacity {
		return jobengine.ErrQueueFull
	}
	for _, job := range jobs {
		q.items.PushBack(job)
	}
	q.cond.Broadcast()
	return nil
}

// Dequeue blocks until a job is available, the queue stops, or ctx is done.
// A nil ctx blocks unconditionally.
func (q *Basic) Dequeue(ctx context.Context) (*jobengine.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Len() == 0 && !q.stopped {
		if ctx != nil && ctx.Done() != nil {
			woke := make(chan struct{})
			go func() {
				select {
				case <-ctx.Done():
					q.cond.Broadcast()
				case <-woke:
				}
			}()
			q.cond.Wait()
			close(woke)
			if err := ctx.Err(); err != nil && q.items.Len() == 0 && !q.stopped {
				return nil, err
			}
		} else {
			q.cond.Wait()
		}
	}
	return q.popLocked()
}

// TryDequeue returns immediately: ErrQueueEmpty if nothing is available and
// the queue is still running, ErrQueueStopped if nothing is available and
// the queue has stopped.
func (q *Basic) TryDequeue() (*jobengine.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		if q.stopped {
			return nil, jobengine.ErrQueueStopped
		}
		return nil, jobengine.ErrQueueEmpty
	}
	return q.popLocked()
}

// DequeueBatch pops up to max jobs without blocking.
func (q *Basic) DequeueBatch(max int) []*jobengine.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*jobengine.Job
	for len(out) < max {
		job, ok := q.popFrontLocked()
		if !ok {
			break
		}
		out = append(out, job)
	}
	return out
}

func (q *Basic) popLocked() (*jobengine.Job, error) {
	job, ok := q.popFrontLocked()
	if !ok {
		return nil, jobengine.ErrQueueStopped
	}
	return job, nil
}

func (q *Basic) popFrontLocked() (*jobengine.Job, bool) {
	front := q.items.Front()
	if front == nil {
		return nil, false
	}
	q.items.Remove(front)
	return front.Value.(*jobengine.Job), true
}

// Empty reports whether the queue currently holds no jobs.
func (q *Basic) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len() == 0
}

// Size returns the exact number of live items.
func (q *Basic) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Clear empties the queue, returning every job it held so the caller can
// account for them: enqueued jobs are executed or returned by clear
// exactly once, never both.
func (q *Basic) Clear() []*jobengine.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*jobengine.Job, 0, q.items.Len())
	for e := q.items.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*jobengine.Job))
	}
	q.items.Init()
	return out
}

// Stop marks the queue stopped, idempotently, and wakes every blocked
// dequeuer.
func (q *Basic) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	q.stopped = true
	q.cond.Broadcast()
}

// IsStopped reports whether Stop has been called.
func (q *Basic) IsStopped() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stopped
}
