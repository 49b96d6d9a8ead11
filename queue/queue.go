// Package queue implements the job queue family: a basic mutex-protected
// FIFO, a lock-free Michael-Scott variant, an adaptive wrapper that
// migrates between them under load, a backpressure-aware variant with
// overflow policies and rate limiting, and a priority-typed queue.
package queue

import (
	"context"

	"github.com/go-foundations/jobengine"
)

// Queue is the capability set every queue family member implements: an
// enum-tagged/closed capability set rather than open-ended inheritance,
// since there are exactly the variants named here.
type Queue interface {
	Enqueue(job *jobengine.Job) error
	Dequeue(ctx context.Context) (*jobengine.Job, error)
	TryDequeue() (*jobengine.Job, error)
	Empty() bool
	Size() int
	Clear() []*jobengine.Job
	Stop()
	IsStopped() bool
}

// BatchEnqueuer is implemented by queues offering atomic batch enqueue:
// either all fit, or none are enqueued.
type BatchEnqueuer interface {
	EnqueueBatch(jobs []*jobengine.Job) error
}

// BatchDequeuer is implemented by queues offering batch dequeue.
type BatchDequeuer interface {
	DequeueBatch(max int) []*jobengine.Job
}
