package queue

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-foundations/jobengine"
	"github.com/go-foundations/jobengine/reclaim"
)

// msNode is one Michael-Scott queue node. The sentinel node
// (whichever node head currently points at) holds no meaningful value; the
// value logically "at" the head is always stored in head.next.
type msNode struct {
	value *jobengine.Job
	next  atomic.Pointer[msNode]
}

// msDomain is the process-wide hazard-pointer registry for lock-free queue
// nodes: it is created at package initialization and is never torn down
// before process exit.
var msDomain = reclaim.NewDomain[msNode]()

// maxSpinAttempts bounds how many failed CAS attempts a loop makes before
// yielding a short pause to avoid priority-inversion livelock.
const maxSpinAttempts = 32

// LockFree is the classic Michael-Scott lock-free FIFO, reclaiming removed
// nodes through the hazard-pointer domain above.
type LockFree struct {
	head    atomic.Pointer[msNode]
	tail    atomic.Pointer[msNode]
	size    atomic.Int64
	stopped atomic.Bool
}

// NewLockFree constructs an empty lock-free queue with a sentinel dummy
// node.
func NewLockFree() *LockFree {
	sentinel := &msNode{}
	q := &LockFree{}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)
	return q
}

// Enqueue links a new node onto the tail, helping a lagging enqueuer finish
// advancing tail if one is observed mid-flight.
func (q *LockFree) Enqueue(job *jobengine.Job) error {
	if q.stopped.Load() {
		return jobengine.ErrQueueStopped
	}

	node := &msNode{value: job}
	rec := msDomain.Acquire()
	defer rec.Release()

	for attempts := 0; ; attempts++ {
		tail := rec.Protect(0, &q.tail)
		next := tail.next.Load()
		if tail == q.tail.Load() {
			if next == nil {
				if tail.next.CompareAndSwap(nil, node) {
					q.tail.CompareAndSwap(tail, node)
					q.size.Add(1)
					return nil
				}
			} else {
				q.tail.CompareAndSwap(tail, next)
			}
		}
		if attempts%maxSpinAttempts == maxSpinAttempts-1 {
			runtime.Gosched()
		}
	}
}

// TryDequeue implements the classic three-way Michael-Scott dequeue
// decision: empty, tail-lagging (help advance), or a real removal.
func (q *LockFree) TryDequeue() (*jobengine.Job, error) {
	rec := msDomain.Acquire()
	defer rec.Release()

	for attempts := 0; ; attempts++ {
		head := rec.Protect(0, &q.head)
		tail := q.tail.Load()
		next := rec.Protect(1, &head.next)

		if head == q.head.Load() {
			if head == tail {
				if next == nil {
					if q.stopped.Load() {
						return nil, jobengine.ErrQueueStopped
					}
					return nil, jobengine.ErrQueueEmpty
				}
				q.tail.CompareAndSwap(tail, next)
			} else {
				value := next.value
				if q.head.CompareAndSwap(head, next) {
					q.size.Add(-1)
					msDomain.Retire(head, func(*msNode) {})
					return value, nil
				}
			}
		}
		if attempts%maxSpinAttempts == maxSpinAttempts-1 {
			runtime.Gosched()
		}
	}
}

// Dequeue polls TryDequeue until a job is available, the queue stops, or
// ctx is done. The lock-free queue has no waitable primitive to block on,
// so blocking here means bounded polling.
func (q *LockFree) Dequeue(ctx context.Context) (*jobengine.Job, error) {
	for {
		job, err := q.TryDequeue()
		if err == nil {
			return job, nil
		}
		if err == jobengine.ErrQueueStopped {
			return nil, err
		}
		if ctx != nil && ctx.Done() != nil {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Millisecond):
			}
		} else {
			time.Sleep(time.Millisecond)
		}
	}
}

// Empty reports whether head and tail coincide with no successor node.
func (q *LockFree) Empty() bool {
	head := q.head.Load()
	return head == q.tail.Load() && head.next.Load() == nil
}

// Size returns the approximate size counter maintained with relaxed
// atomics.
func (q *LockFree) Size() int {
	return int(q.size.Load())
}

// Clear drains every job currently reachable, concurrency-safely.
func (q *LockFree) Clear() []*jobengine.Job {
	var out []*jobengine.Job
	for {
		job, err := q.TryDequeue()
		if err != nil {
			break
		}
		out = append(out, job)
	}
	return out
}

// Stop gates further enqueues; idempotent by construction (repeated stores
// of true are harmless).
func (q *LockFree) Stop() {
	q.stopped.Store(true)
}

// IsStopped reports whether Stop has been called.
func (q *LockFree) IsStopped() bool {
	return q.stopped.Load()
}
