package queue

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/go-foundations/jobengine"
	"golang.org/x/time/rate"
)

// PressureLevel is the coarse gauge derived from queue occupancy against
// its configured watermarks.
type PressureLevel int32

const (
	PressureNone PressureLevel = iota
	PressureLow
	PressureHigh
	PressureCritical
)

func (p PressureLevel) String() string {
	switch p {
	case PressureLow:
		return "low"
	case PressureHigh:
		return "high"
	case PressureCritical:
		return "critical"
	default:
		return "none"
	}
}

// OverflowPolicy selects what Enqueue does once the queue is at or beyond
// capacity.
type OverflowPolicy int

const (
	OverflowBlock OverflowPolicy = iota
	OverflowDropOldest
	OverflowDropNewest
	OverflowCallback
	OverflowAdaptive
)

// OverflowDecision is returned by a caller-supplied OverflowCallbackFunc
// under the callback policy.
type OverflowDecision int

const (
	DecisionAccept OverflowDecision = iota
	DecisionReject
	DecisionDropAndAccept
	DecisionDelay
)

type OverflowCallbackFunc func(job *jobengine.Job) OverflowDecision
type PressureCallbackFunc func(level PressureLevel)

// BackpressureStats accumulates the counters this policy is expected to
// track: accepted, rejected, dropped, pressure events, rate-limit waits,
// total block time.
type BackpressureStats struct {
	Accepted       uint64
	Rejected       uint64
	Dropped        uint64
	PressureEvents uint64
	RateLimitWaits uint64
	TotalBlockTime time.Duration
}

// BackpressureOptions configures a Backpressure queue.
type BackpressureOptions struct {
	Capacity         int
	LowWatermark     float64 // ratio of capacity, e.g. 0.5
	HighWatermark    float64 // ratio of capacity, e.g. 0.8
	Policy           OverflowPolicy
	OnOverflow       OverflowCallbackFunc // required for OverflowCallback
	OnPressureChange PressureCallbackFunc
	RateLimit        *rate.Limiter // optional; nil disables rate gating
	BlockTimeout     time.Duration // used by OverflowBlock and rate-limit waits
}

// Backpressure wraps a Basic queue with watermark-driven pressure tracking,
// token-bucket admission control, and a pluggable overflow policy.
type Backpressure struct {
	basic *Basic
	opts  BackpressureOptions

	level PressureLevel // accessed via atomic

	accepted       atomic.Uint64
	rejected       atomic.Uint64
	dropped        atomic.Uint64
	pressureEvents atomic.Uint64
	rateLimitWaits atomic.Uint64
	totalBlockNs   atomic.Int64
}

// NewBackpressure constructs a Backpressure queue. The underlying Basic is
// unbounded; Backpressure enforces opts.Capacity itself so it can apply
// drop/callback/adaptive behavior instead of a flat rejection.
func NewBackpressure(opts BackpressureOptions) *Backpressure {
	if opts.BlockTimeout <= 0 {
		opts.BlockTimeout = time.Second
	}
	return &Backpressure{basic: NewBasic(0), opts: opts}
}

func (b *Backpressure) levelFor(size int) PressureLevel {
	if b.opts.Capacity <= 0 {
		return PressureNone
	}
	ratio := float64(size) / float64(b.opts.Capacity)
	switch {
	case ratio >= 1:
		return PressureCritical
	case ratio >= b.opts.HighWatermark:
		return PressureHigh
	case ratio >= b.opts.LowWatermark:
		return PressureLow
	default:
		return PressureNone
	}
}

func (b *Backpressure) updatePressure(level PressureLevel) {
	prior := PressureLevel(atomic.SwapInt32((*int32)(&b.level), int32(level)))
	if prior != level {
		b.pressureEvents.Add(1)
		if b.opts.OnPressureChange != nil {
			b.opts.OnPressureChange(level)
		}
	}
}

// waitForToken gates admission on the rate limiter, if configured, blocking
// up to BlockTimeout.
func (b *Backpressure) waitForToken() error {
	if b.opts.RateLimit == nil {
		return nil
	}
	reservation := b.opts.RateLimit.ReserveN(time.Now(), 1)
	if !reservation.OK() {
		return jobengine.ErrTimeout
	}
	delay := reservation.Delay()
	if delay <= 0 {
		return nil
	}
	if delay > b.opts.BlockTimeout {
		reservation.Cancel()
		return jobengine.WrapError(jobengine.KindTimeout, "rate limit wait exceeds block timeout", nil)
	}
	b.rateLimitWaits.Add(1)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	<-timer.C
	b.totalBlockNs.Add(int64(delay))
	return nil
}

// Enqueue admits job according to the configured watermarks, rate limiter,
// and overflow policy.
func (b *Backpressure) Enqueue(job *jobengine.Job) error {
	if err := b.waitForToken(); err != nil {
		return err
	}

	size := b.basic.Size()
	b.updatePressure(b.levelFor(size))

	if b.opts.Policy == OverflowAdaptive {
		return b.adaptiveEnqueue(job, size)
	}
	if b.opts.Capacity <= 0 || size < b.opts.Capacity {
		if err := b.basic.Enqueue(job); err != nil {
			return err
		}
		b.accepted.Add(1)
		return nil
	}
	return b.handleOverflow(job)
}

func (b *Backpressure) adaptiveEnqueue(job *jobengine.Job, size int) error {
	high := int(float64(b.opts.Capacity) * b.opts.HighWatermark)
	switch {
	case size < high:
		if err := b.basic.Enqueue(job); err != nil {
			return err
		}
		b.accepted.Add(1)
		return nil
	case size < b.opts.Capacity:
		span := b.opts.Capacity - high
		if span <= 0 {
			span = 1
		}
		progress := float64(size-high) / float64(span)
		acceptProbability := 1 - progress
		if rand.Float64() < acceptProbability {
			if err := b.basic.Enqueue(job); err != nil {
				return err
			}
			b.accepted.Add(1)
			return nil
		}
		b.rejected.Add(1)
		return jobengine.ErrQueueFull
	default:
		time.Sleep(10 * time.Millisecond)
		b.rejected.Add(1)
		return jobengine.ErrQueueFull
	}
}

func (b *Backpressure) handleOverflow(job *jobengine.Job) error {
	switch b.opts.Policy {
	case OverflowDropOldest:
		if _, err := b.basic.TryDequeue(); err == nil {
			b.dropped.Add(1)
		}
		if err := b.basic.Enqueue(job); err != nil {
			return err
		}
		b.accepted.Add(1)
		return nil

	case OverflowCallback:
		if b.opts.OnOverflow == nil {
			b.rejected.Add(1)
			return jobengine.ErrQueueFull
		}
		switch b.opts.OnOverflow(job) {
		case DecisionAccept:
			if err := b.basic.Enqueue(job); err != nil {
				return err
			}
			b.accepted.Add(1)
			return nil
		case DecisionDropAndAccept:
			if _, err := b.basic.TryDequeue(); err == nil {
				b.dropped.Add(1)
			}
			if err := b.basic.Enqueue(job); err != nil {
				return err
			}
			b.accepted.Add(1)
			return nil
		case DecisionDelay:
			time.Sleep(10 * time.Millisecond)
			return b.Enqueue(job)
		default:
			b.rejected.Add(1)
			return jobengine.ErrQueueFull
		}

	case OverflowBlock:
		return b.blockUntilSpace(job)

	default: // OverflowDropNewest
		b.rejected.Add(1)
		return jobengine.ErrQueueFull
	}
}

func (b *Backpressure) blockUntilSpace(job *jobengine.Job) error {
	start := time.Now()
	deadline := start.Add(b.opts.BlockTimeout)
	for {
		if b.basic.Size() < b.opts.Capacity {
			if err := b.basic.Enqueue(job); err == nil {
				b.totalBlockNs.Add(int64(time.Since(start)))
				b.accepted.Add(1)
				return nil
			}
		}
		if time.Now().After(deadline) {
			b.totalBlockNs.Add(int64(time.Since(start)))
			b.rejected.Add(1)
			return jobengine.ErrTimeout
		}
		time.Sleep(time.Millisecond)
	}
}

// EnqueueBatch is atomic with respect to capacity: either the whole batch
// is admitted (after drop-oldest adjustments under that policy) or none of
// it is.
func (b *Backpressure) EnqueueBatch(jobs []*jobengine.Job) error {
	if b.opts.Capacity <= 0 {
		if err := b.basic.EnqueueBatch(jobs); err != nil {
			return err
		}
		b.accepted.Add(uint64(len(jobs)))
		return nil
	}

	size := b.basic.Size()
	needed := size + len(jobs)
	if needed > b.opts.Capacity {
		if b.opts.Policy != OverflowDropOldest {
			b.rejected.Add(uint64(len(jobs)))
			return jobengine.ErrQueueFull
		}
		overflow := needed - b.opts.Capacity
		for i := 0; i < overflow; i++ {
			if _, err := b.basic.TryDequeue(); err != nil {
				break
			}
			b.dropped.Add(1)
		}
	}

	if err := b.basic.EnqueueBatch(jobs); err != nil {
		return err
	}
	b.accepted.Add(uint64(len(jobs)))
	return nil
}

func (b *Backpressure) Dequeue(ctx context.Context) (*jobengine.Job, error) {
	return b.basic.Dequeue(ctx)
}

func (b *Backpressure) TryDequeue() (*jobengine.Job, error) {
	return b.basic.TryDequeue()
}

func (b *Backpressure) DequeueBatch(max int) []*jobengine.Job {
	return b.basic.DequeueBatch(max)
}

func (b *Backpressure) Empty() bool { return b.basic.Empty() }

func (b *Backpressure) Size() int { return b.basic.Size() }

func (b *Backpressure) Clear() []*jobengine.Job { return b.basic.Clear() }

func (b *Backpressure) Stop() { b.basic.Stop() }

func (b *Backpressure) IsStopped() bool { return b.basic.IsStopped() }

// PressureLevel reports the current gauge reading.
func (b *Backpressure) PressureLevel() PressureLevel {
	return PressureLevel(atomic.LoadInt32((*int32)(&b.level)))
}

// Stats returns a point-in-time snapshot of the accumulated counters.
func (b *Backpressure) Stats() BackpressureStats {
	return BackpressureStats{
		Accepted:       b.accepted.Load(),
		Rejected:       b.rejected.Load(),
		Dropped:        b.dropped.Load(),
		PressureEvents: b.pressureEvents.Load(),
		RateLimitWaits: b.rateLimitWaits.Load(),
		TotalBlockTime: time.Duration(b.totalBlockNs.Load()),
	}
}
