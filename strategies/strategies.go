// Package strategies provides bulk-submission conveniences atop a running
// pool.Pool. Because the pool is long-lived and queue-based rather than
// run-to-completion, a strategy here is a partitioning policy for how a
// slice of jobs gets enqueued onto an already-running pool, not how it
// gets executed.
package strategies

import (
	"context"

	"github.com/go-foundations/jobengine"
	"github.com/go-foundations/jobengine/pool"
	"golang.org/x/sync/errgroup"
)

// DistributionStrategy names one of the bulk-submission policies below.
type DistributionStrategy int

const (
	RoundRobin DistributionStrategy = iota
	Chunked
	WorkStealing
	PriorityBased
)

func (d DistributionStrategy) String() string {
	switch d {
	case RoundRobin:
		return "round_robin"
	case Chunked:
		return "chunked"
	case WorkStealing:
		return "work_stealing"
	case PriorityBased:
		return "priority_based"
	default:
		return "unknown"
	}
}

// partition splits jobs into n buckets. roundRobin interleaves by index
// modulo n; otherwise jobs are split into contiguous chunks.
func partition(jobs []*jobengine.Job, n int, roundRobin bool) [][]*jobengine.Job {
	if n <= 0 {
		n = 1
	}
	if n > len(jobs) {
		n = len(jobs)
	}
	if n == 0 {
		return nil
	}

	buckets := make([][]*jobengine.Job, n)
	if roundRobin {
		for i, job := range jobs {
			idx := i % n
			buckets[idx] = append(buckets[idx], job)
		}
		return buckets
	}

	chunkSize := len(jobs) / n
	remainder := len(jobs) % n
	start := 0
	for i := 0; i < n; i++ {
		end := start + chunkSize
		if i < remainder {
			end++
		}
		buckets[i] = jobs[start:end]
		start = end
	}
	return buckets
}

func submitPartitions(ctx context.Context, p *pool.Pool, buckets [][]*jobengine.Job) error {
	group, gctx := errgroup.WithContext(ctx)
	for _, bucket := range buckets {
		bucket := bucket
		group.Go(func() error {
			for _, job := range bucket {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := p.Submit(job); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return group.Wait()
}

// SubmitRoundRobin partitions jobs into p.WorkerCount() interleaved buckets
// (job i goes to bucket i%n) and submits each bucket concurrently. The
// pool's own local-deque/global-queue/steal scheduling still decides which
// worker actually executes each job; the partitioning only affects
// submission order.
func SubmitRoundRobin(ctx context.Context, p *pool.Pool, jobs []*jobengine.Job) error {
	n := p.WorkerCount()
	return submitPartitions(ctx, p, partition(jobs, n, true))
}

// SubmitChunked partitions jobs into p.WorkerCount() contiguous chunks and
// submits each chunk concurrently.
func SubmitChunked(ctx context.Context, p *pool.Pool, jobs []*jobengine.Job) error {
	n := p.WorkerCount()
	return submitPartitions(ctx, p, partition(jobs, n, false))
}

// SubmitWorkStealing submits every job through a single path, leaning
// entirely on the pool's work-stealing scheduler to balance load rather
// than pre-partitioning submission order.
func SubmitWorkStealing(ctx context.Context, p *pool.Pool, jobs []*jobengine.Job) error {
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.Submit(job); err != nil {
			return err
		}
	}
	return nil
}

// SubmitPriorityBased submits jobs to a TypedPool, which routes each job by
// its declared jobengine.Priority. Ordering and starvation avoidance are
// the typed queue's and typed pool's responsibility (queue.Typed,
// TypedPool.dequeueGlobal) — this helper is just the submission-side
// convenience.
func SubmitPriorityBased(ctx context.Context, p *pool.TypedPool, jobs []*jobengine.Job) error {
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.Submit(job); err != nil {
			return err
		}
	}
	return nil
}
