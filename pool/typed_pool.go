package pool

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-foundations/jobengine"
	"github.com/go-foundations/jobengine/queue"
	"github.com/go-foundations/jobengine/token"
	"github.com/google/uuid"
)

// TypedWorkerSpec declares the priority subset one typed-pool worker
// accepts.
type TypedWorkerSpec struct {
	Accepted []jobengine.Priority
}

// TypedPool is the pool variant whose workers each advertise a subset of
// priority levels. It routes enqueue into a Typed queue and passes each
// worker's accepted set into dequeue, with starvation avoidance handled
// here at the worker level, not inside the queue.
type TypedPool struct {
	cfg   Config
	specs []TypedWorkerSpec

	instanceID uuid.UUID

	workersMu sync.Mutex
	workers   []*Worker

	q     *queue.Typed
	token token.Token

	condMu  sync.Mutex
	cond    *sync.Cond
	running atomic.Bool
	wg      sync.WaitGroup

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
}

// NewTyped constructs a TypedPool with one worker per spec.
func NewTyped(cfg Config, specs []TypedWorkerSpec) *TypedPool {
	cfg.applyDefaults()
	p := &TypedPool{cfg: cfg, specs: specs, instanceID: uuid.New()}
	p.cond = sync.NewCond(&p.condMu)
	return p
}

func (p *TypedPool) Start() error {
	if !p.running.CompareAndSwap(false, true) {
		return jobengine.ErrAlreadyRunning
	}
	p.q = queue.NewTyped()
	p.token = token.New()

	p.workersMu.Lock()
	p.workers = make([]*Worker, 0, len(p.specs))
	for i, spec := range p.specs {
		w := newWorker(i, p, p.token, p.cfg.LocalDequeCapacity, spec.Accepted)
		p.workers = append(p.workers, w)
		w.start()
	}
	p.workersMu.Unlock()
	return nil
}

func (p *TypedPool) Stop(immediate bool) error {
	if !p.running.CompareAndSwap(true, false) {
		return nil
	}
	p.token.Cancel()
	if immediate {
		p.q.Clear()
	}
	p.q.Stop()

	p.condMu.Lock()
	p.cond.Broadcast()
	p.condMu.Unlock()

	p.workersMu.Lock()
	for _, w := range p.workers {
		w.stop()
	}
	p.workersMu.Unlock()

	p.wg.Wait()
	return nil
}

func (p *TypedPool) shouldContinue() bool { return p.running.Load() }

func (p *TypedPool) waitForWork(stop <-chan struct{}) bool {
	done := make(chan struct{})
	go func() {
		select {
		case <-stop:
			p.condMu.Lock()
			p.cond.Broadcast()
			p.condMu.Unlock()
		case <-done:
		}
	}()

	p.condMu.Lock()
	p.cond.Wait()
	p.condMu.Unlock()
	close(done)

	select {
	case <-stop:
		return true
	default:
		return !p.running.Load()
	}
}

// dequeueGlobal enforces starvation avoidance: every cfg.StarvationThreshold
// dequeues, the worker is forced to check the lowest eligible non-empty
// priority regardless of what it would otherwise prefer.
func (p *TypedPool) dequeueGlobal(accepted []jobengine.Priority, dequeueCount uint64) (*jobengine.Job, error) {
	if dequeueCount%uint64(p.cfg.StarvationThreshold) == 0 {
		// jobengine.Priorities runs highest first, so walk it backwards.
		for i := len(jobengine.Priorities) - 1; i >= 0; i-- {
			prio := jobengine.Priorities[i]
			if len(accepted) > 0 && !slices.Contains(accepted, prio) {
				continue
			}
			if job, err := p.q.TryDequeue(prio); err == nil {
				return job, nil
			}
		}
	}
	return p.q.TryDequeue(accepted...)
}

func (p *TypedPool) steal(requesterID int) (*jobengine.Job, bool) {
	p.workersMu.Lock()
	workers := p.workers
	p.workersMu.Unlock()

	for _, w := range workers {
		if w.id == requesterID {
			continue
		}
		if job, ok := w.local.Steal(); ok {
			return job, true
		}
	}
	return nil, false
}

func (p *TypedPool) recordSuccess() { p.completed.Add(1) }
func (p *TypedPool) recordFailure() { p.failed.Add(1) }
func (p *TypedPool) beginWorker()   { p.wg.Add(1) }
func (p *TypedPool) endWorker()     { p.wg.Done() }

func (p *TypedPool) logf(level jobengine.LogLevel, format string, args ...any) {
	p.cfg.Context.Log(level, fmt.Sprintf(format, args...))
}

// Submit routes job into the typed queue by its declared priority.
func (p *TypedPool) Submit(job *jobengine.Job) error {
	if job == nil {
		return jobengine.ErrInvalidArgument
	}
	if !p.running.Load() {
		return jobengine.ErrNotRunning
	}
	if err := p.q.Enqueue(job); err != nil {
		p.rejected.Add(1)
		return err
	}
	p.submitted.Add(1)
	p.condMu.Lock()
	p.cond.Broadcast()
	p.condMu.Unlock()
	return nil
}

// WorkerSnapshots returns a diagnostic snapshot of every worker.
func (p *TypedPool) WorkerSnapshots() []WorkerSnapshot {
	p.workersMu.Lock()
	defer p.workersMu.Unlock()

	out := make([]WorkerSnapshot, 0, len(p.workers))
	for _, w := range p.workers {
		out = append(out, w.Snapshot())
	}
	return out
}

// Snapshot returns a metrics snapshot for the typed pool.
func (p *TypedPool) Snapshot() jobengine.MetricsSnapshot {
	p.workersMu.Lock()
	active := 0
	var busy, idle time.Duration
	for _, w := range p.workers {
		if !w.IsIdle() {
			active++
		}
		snap := w.Snapshot()
		busy += snap.TotalBusyTime
		idle += snap.TotalIdleTime
	}
	count := len(p.workers)
	p.workersMu.Unlock()

	return jobengine.MetricsSnapshot{
		PoolName:    p.cfg.Name,
		InstanceID:  p.instanceID,
		WorkerCount: count,
		ActiveCount: active,
		QueueDepth:  p.q.Size(),
		Submitted:   p.submitted.Load(),
		Completed:   p.completed.Load(),
		Failed:      p.failed.Load(),
		Rejected:    p.rejected.Load(),
		TotalBusy:   busy,
		TotalIdle:   idle,
	}
}

func (p *TypedPool) IsRunning() bool { return p.running.Load() }

// CheckWorkerHealth mirrors Pool.CheckWorkerHealth for the typed variant.
// Replacement workers inherit the dead worker's accepted priority set so
// the pool's declared priority coverage never silently shrinks.
func (p *TypedPool) CheckWorkerHealth(restartFailed bool) (removed, restarted int) {
	p.workersMu.Lock()
	alive := make([]*Worker, 0, len(p.workers))
	var deadAccepted [][]jobengine.Priority
	for _, w := range p.workers {
		if w.IsRunning() || !p.running.Load() {
			alive = append(alive, w)
			continue
		}
		removed++
		deadAccepted = append(deadAccepted, w.accepted)
	}
	p.workers = alive
	p.workersMu.Unlock()

	if restartFailed && p.running.Load() {
		p.workersMu.Lock()
		for _, accepted := range deadAccepted {
			w := newWorker(len(p.workers), p, p.token, p.cfg.LocalDequeCapacity, accepted)
			p.workers = append(p.workers, w)
			w.start()
			restarted++
		}
		p.workersMu.Unlock()
	}
	return removed, restarted
}
