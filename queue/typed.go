package queue

import (
	"context"
	"time"

	"github.com/go-foundations/jobengine"
)

// Typed is the priority-partitioned queue: an ordered mapping from
// priority to a per-priority Basic sub-queue. Dequeue searches
// priorities in descending order, optionally restricted to a caller-
// supplied set of acceptable types; starvation avoidance across priorities
// is left to the worker, not implemented here.
type Typed struct {
	subQueues map[jobengine.Priority]*Basic
}

// NewTyped constructs a Typed queue with one unbounded Basic sub-queue per
// declared priority level.
func NewTyped() *Typed {
	t := &Typed{subQueues: make(map[jobengine.Priority]*Basic, len(jobengine.Priorities))}
	for _, p := range jobengine.Priorities {
		t.subQueues[p] = NewBasic(0)
	}
	return t
}

// Enqueue routes job to the sub-queue matching its declared priority.
func (t *Typed) Enqueue(job *jobengine.Job) error {
	return t.subQueues[job.Priority()].Enqueue(job)
}

// TryDequeue searches priorities in descending order (High, Normal, Low)
// and returns the first non-empty match. allowed, if non-nil, restricts
// the search to that set of priorities.
func (t *Typed) TryDequeue(allowed ...jobengine.Priority) (*jobengine.Job, error) {
	for _, p := range t.searchOrder(allowed) {
		job, err := t.subQueues[p].TryDequeue()
		if err == nil {
			return job, nil
		}
		if err != jobengine.ErrQueueEmpty {
			return nil, err
		}
	}
	if t.IsStopped() {
		return nil, jobengine.ErrQueueStopped
	}
	return nil, jobengine.ErrQueueEmpty
}

// Dequeue blocks on each sub-queue in descending priority order using a
// short non-blocking poll, since a single condition variable cannot span
// multiple independently-locked sub-queues.
func (t *Typed) Dequeue(ctx context.Context) (*jobengine.Job, error) {
	for {
		job, err := t.TryDequeue()
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

func (t *Typed) searchOrder(allowed []jobengine.Priority) []jobengine.Priority {
	if len(allowed) == 0 {
		return jobengine.Priorities
	}
	allow := make(map[jobengine.Priority]bool, len(allowed))
	for _, p := range allowed {
		allow[p] = true
	}
	out := make([]jobengine.Priority, 0, len(allowed))
	for _, p := range jobengine.Priorities {
		if allow[p] {
			out = append(out, p)
		}
	}
	return out
}

func (t *Typed) Empty() bool {
	for _, p := range jobengine.Priorities {
		if !t.subQueues[p].Empty() {
			return false
		}
	}
	return true
}

func (t *Typed) Size() int {
	total := 0
	for _, p := range jobengine.Priorities {
		total += t.subQueues[p].Size()
	}
	return total
}

func (t *Typed) Clear() []*jobengine.Job {
	var out []*jobengine.Job
	for _, p := range jobengine.Priorities {
		out = append(out, t.subQueues[p].Clear()...)
	}
	return out
}

func (t *Typed) Stop() {
	for _, p := range jobengine.Priorities {
		t.subQueues[p].Stop()
	}
}

func (t *Typed) IsStopped() bool {
	for _, p := range jobengine.Priorities {
		if !t.subQueues[p].IsStopped() {
			return false
		}
	}
	return true
}

// SizeByPriority reports the sub-queue depth for a single priority level,
// useful for fairness diagnostics.
func (t *Typed) SizeByPriority(p jobengine.Priority) int {
	return t.subQueues[p].Size()
}
