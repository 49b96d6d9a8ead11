package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-foundations/jobengine"
)

// AdaptiveMode controls which way Adaptive leans when it samples enough
// operations to re-evaluate.
type AdaptiveMode int

const (
	// ModeBalanced migrates toward whichever backing queue its latency
	// samples suggest is winning.
	ModeBalanced AdaptiveMode = iota
	// ModeAccuracyFirst always settles on Basic, trading throughput for
	// Basic's exact Size().
	ModeAccuracyFirst
	// ModePerformanceFirst always settles on LockFree.
	ModePerformanceFirst
)

func (m AdaptiveMode) String() string {
	switch m {
	case ModeAccuracyFirst:
		return "accuracy_first"
	case ModePerformanceFirst:
		return "performance_first"
	default:
		return "balanced"
	}
}

const (
	// adaptiveMinOpsBeforeSwitch is the sample floor: at least this many
	// operations must be observed before the adaptive queue considers
	// switching implementations.
	adaptiveMinOpsBeforeSwitch = 1000
	adaptiveHighLatency        = 5 * time.Microsecond
	adaptiveLowLatency         = time.Microsecond
)

// Adaptive wraps a Basic and a LockFree queue behind a single Queue handle
// and migrates the active implementation under load. Capacity enforcement
// only applies while Basic is active; LockFree is unbounded, so capacity is
// best effort across a migration.
type Adaptive struct {
	mode AdaptiveMode

	mu     sync.RWMutex
	active Queue

	basic    *Basic
	lockfree *LockFree

	opsSinceEval atomic.Uint64
	latencySum   atomic.Int64
}

// NewAdaptive constructs an Adaptive queue starting on Basic, the safer
// default for low contention.
func NewAdaptive(capacity int, mode AdaptiveMode) *Adaptive {
	basic := NewBasic(capacity)
	a := &Adaptive{mode: mode, basic: basic, lockfree: NewLockFree()}
	a.active = basic
	return a
}

func (a *Adaptive) currentQueue() Queue {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.active
}

// record folds one operation's latency into the running sample and
// triggers a re-evaluation once the sample floor is crossed.
func (a *Adaptive) record(start time.Time) {
	elapsed := time.Since(start)
	a.latencySum.Add(int64(elapsed))
	ops := a.opsSinceEval.Add(1)
	if ops >= adaptiveMinOpsBeforeSwitch {
		a.evaluate(ops)
	}
}

func (a *Adaptive) evaluate(ops uint64) {
	avg := time.Duration(a.latencySum.Load() / int64(ops))
	a.opsSinceEval.Store(0)
	a.latencySum.Store(0)

	switch a.mode {
	case ModeAccuracyFirst:
		a.switchTo(a.basic)
	case ModePerformanceFirst:
		a.switchTo(a.lockfree)
	default:
		if avg > adaptiveHighLatency {
			a.switchTo(a.lockfree)
		} else if avg < adaptiveLowLatency {
			a.switchTo(a.basic)
		}
	}
}

// switchTo migrates every pending job from the current active queue to
// target, then swaps the active pointer. A job is drained and re-enqueued
// exactly once; no job is ever dropped or duplicated across a migration.
func (a *Adaptive) switchTo(target Queue) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == target {
		return
	}
	pending := a.active.Clear()
	for _, job := range pending {
		_ = target.Enqueue(job)
	}
	a.active = target
}

func (a *Adaptive) Enqueue(job *jobengine.Job) error {
	start := time.Now()
	defer a.record(start)
	return a.currentQueue().Enqueue(job)
}

func (a *Adaptive) Dequeue(ctx context.Context) (*jobengine.Job, error) {
	start := time.Now()
	defer a.record(start)
	return a.currentQueue().Dequeue(ctx)
}

func (a *Adaptive) TryDequeue() (*jobengine.Job, error) {
	start := time.Now()
	defer a.record(start)
	return a.currentQueue().TryDequeue()
}

func (a *Adaptive) Empty() bool { return a.currentQueue().Empty() }

func (a *Adaptive) Size() int { return a.currentQueue().Size() }

func (a *Adaptive) Clear() []*jobengine.Job { return a.currentQueue().Clear() }

// Stop stops both backing queues so a migration racing with shutdown can
// never leave one of them silently accepting work.
func (a *Adaptive) Stop() {
	a.mu.RLock()
	defer a.mu.RUnlock()
	a.basic.Stop()
	a.lockfree.Stop()
}

func (a *Adaptive) IsStopped() bool {
	return a.currentQueue().IsStopped()
}

// ActiveImplementation reports which backing queue currently serves
// operations, for diagnostics that want to know whether an adaptive queue
// has settled.
func (a *Adaptive) ActiveImplementation() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.active == Queue(a.lockfree) {
		return "lockfree"
	}
	return "basic"
}
