// Package pool implements the worker pool and work-stealing scheduler:
// workers that dequeue from a local deque, a shared queue, or steal from a
// sibling, under a pool that owns their lifecycle.
package pool

import (
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-foundations/jobengine"
	"github.com/go-foundations/jobengine/breaker"
	"github.com/go-foundations/jobengine/queue"
	"github.com/go-foundations/jobengine/token"
	"github.com/google/uuid"
)

// StealStrategy selects which sibling a work-stealing worker targets when
// its local deque and the shared queue are both empty.
type StealStrategy int

const (
	StealRandom StealStrategy = iota
	StealRoundRobin
	StealAdaptive
)

// Config configures a Pool.
type Config struct {
	Name                string
	NumWorkers          int
	LocalDequeCapacity  int
	StealStrategy       StealStrategy
	MaxStealAttempts    int
	AdaptiveStealDepth  int // threshold queue depth preferred by StealAdaptive
	QueueFactory        func() queue.Queue
	Breaker             *breaker.CircuitBreaker
	Context             jobengine.ThreadContext
	StarvationThreshold int // dequeues between forced low-priority scans (typed pool), default 16
}

func (c *Config) applyDefaults() {
	if c.NumWorkers <= 0 {
		c.NumWorkers = 1
	}
	if c.LocalDequeCapacity <= 0 {
		c.LocalDequeCapacity = 64
	}
	if c.MaxStealAttempts <= 0 {
		c.MaxStealAttempts = 4
	}
	if c.AdaptiveStealDepth <= 0 {
		c.AdaptiveStealDepth = 8
	}
	if c.StarvationThreshold <= 0 {
		c.StarvationThreshold = 16
	}
	if c.QueueFactory == nil {
		c.QueueFactory = func() queue.Queue { return queue.NewBasic(0) }
	}
	if c.Context == nil {
		c.Context = jobengine.NoopContext{}
	}
}

// Pool holds its workers, shared queue, cancellation token, and optional
// circuit breaker.
type Pool struct {
	cfg        Config
	instanceID uuid.UUID

	workersMu sync.Mutex
	workers   []*Worker

	queueMu     sync.RWMutex
	q           queue.Queue
	replaceMu   sync.Mutex
	replaceCond *sync.Cond
	replacing   atomic.Bool
	inFlight    atomic.Int64

	condMu sync.Mutex
	cond   *sync.Cond

	running atomic.Bool
	token   token.Token
	wg      sync.WaitGroup

	lastVictim atomic.Int64

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64

	nextWorkerID atomic.Int64
}

// New constructs a Pool. The pool is not started until Start is called.
func New(cfg Config) *Pool {
	cfg.applyDefaults()
	p := &Pool{cfg: cfg, instanceID: uuid.New()}
	p.cond = sync.NewCond(&p.condMu)
	p.replaceCond = sync.NewCond(&p.replaceMu)
	return p
}

// Start is idempotent-safe via compare-and-swap on the running flag. On
// the first successful transition it builds a fresh queue and pool token
// (clearing any stale cancellation from a prior stop), then starts every
// worker.
func (p *Pool) Start() error {
	if !p.running.CompareAndSwap(false, true) {
		return jobengine.ErrAlreadyRunning
	}

	p.queueMu.Lock()
	p.q = p.cfg.QueueFactory()
	p.queueMu.Unlock()

	p.token = token.New()

	p.workersMu.Lock()
	p.workers = make([]*Worker, 0, p.cfg.NumWorkers)
	for i := 0; i < p.cfg.NumWorkers; i++ {
		w := newWorker(int(p.nextWorkerID.Add(1)-1), p, p.token, p.cfg.LocalDequeCapacity, nil)
		p.workers = append(p.workers, w)
		w.start()
	}
	p.workersMu.Unlock()

	return nil
}

// Stop atomically flips running to false, cancels the pool token, stops
// the queue (clearing it first if immediate), and joins every worker.
func (p *Pool) Stop(immediate bool) error {
	if !p.running.CompareAndSwap(true, false) {
		return nil
	}

	p.token.Cancel()

	p.queueMu.RLock()
	q := p.q
	p.queueMu.RUnlock()
	if immediate {
		q.Clear()
	}
	q.Stop()

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

func (p *Pool) shouldContinue() bool {
	return p.running.Load() && !p.replacing.Load()
}

// waitForWork blocks on the pool condition variable until woken by a
// submit or a stop, returning true if the pool has since stopped.
func (p *Pool) waitForWork(stop <-chan struct{}) bool {
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

func (p *Pool) currentQueue() queue.Queue {
	p.queueMu.RLock()
	defer p.queueMu.RUnlock()
	return p.q
}

func (p *Pool) beginDequeue() {
	for p.replacing.Load() {
		runtime.Gosched()
	}
	p.inFlight.Add(1)
}

func (p *Pool) endDequeue() {
	if p.inFlight.Add(-1) == 0 && p.replacing.Load() {
		p.replaceMu.Lock()
		p.replaceCond.Broadcast()
		p.replaceMu.Unlock()
	}
}

// dequeueGlobal reads one job from the shared queue. accepted and count
// are unused by the base Pool; TypedPool overrides dequeue routing.
func (p *Pool) dequeueGlobal(accepted []jobengine.Priority, _ uint64) (*jobengine.Job, error) {
	p.beginDequeue()
	defer p.endDequeue()
	return p.currentQueue().TryDequeue()
}

// ReplaceQueue swaps the active queue under the "queue being replaced"
// protocol: set the flag, wait for in-flight dequeues to drain, swap,
// clear the flag, and wake every worker.
func (p *Pool) ReplaceQueue(newQueue queue.Queue) {
	p.replaceMu.Lock()
	p.replacing.Store(true)
	for p.inFlight.Load() > 0 {
		p.replaceCond.Wait()
	}
	p.replaceMu.Unlock()

	p.queueMu.Lock()
	old := p.q
	p.q = newQueue
	p.queueMu.Unlock()

	p.replacing.Store(false)
	old.Stop()

	p.condMu.Lock()
	p.cond.Broadcast()
	p.condMu.Unlock()
}

// steal tries up to cfg.MaxStealAttempts sibling workers, chosen per
// cfg.StealStrategy, for one job from the top of their local deques.
func (p *Pool) steal(requesterID int) (*jobengine.Job, bool) {
	p.workersMu.Lock()
	workers := p.workers
	p.workersMu.Unlock()

	n := len(workers)
	if n < 2 {
		return nil, false
	}

	for attempt := 0; attempt < p.cfg.MaxStealAttempts; attempt++ {
		victim := p.pickVictim(workers, requesterID, attempt)
		if victim == nil {
			continue
		}
		if job, ok := victim.local.Steal(); ok {
			return job, true
		}
	}
	return nil, false
}

func (p *Pool) pickVictim(workers []*Worker, requesterID, attempt int) *Worker {
	n := len(workers)
	switch p.cfg.StealStrategy {
	case StealRoundRobin:
		start := int(p.lastVictim.Add(1))
		idx := (start + attempt) % n
		if workers[idx].id == requesterID {
			idx = (idx + 1) % n
		}
		return workers[idx]
	case StealAdaptive:
		var best *Worker
		bestDepth := p.cfg.AdaptiveStealDepth
		for _, w := range workers {
			if w.id == requesterID {
				continue
			}
			if depth := w.local.Size(); depth > bestDepth {
				bestDepth = depth
				best = w
			}
		}
		if best != nil {
			return best
		}
		fallthrough
	default: // StealRandom, and StealAdaptive with no candidate over threshold
		idx := rand.Intn(n)
		if workers[idx].id == requesterID {
			idx = (idx + 1) % n
		}
		return workers[idx]
	}
}

// Submit enqueues job onto the shared queue, gated by the circuit breaker
// if one is configured, and wakes an idle worker.
func (p *Pool) Submit(job *jobengine.Job) error {
	if job == nil {
		return jobengine.ErrInvalidArgument
	}
	if !p.running.Load() {
		return jobengine.ErrNotRunning
	}

	var err error
	if p.cfg.Breaker != nil {
		err = p.cfg.Breaker.EnqueueProtected(job, func() error {
			return p.currentQueue().Enqueue(job)
		})
	} else {
		err = p.currentQueue().Enqueue(job)
	}
	if err != nil {
		p.rejected.Add(1)
		return err
	}

	p.submitted.Add(1)
	p.condMu.Lock()
	p.cond.Broadcast()
	p.condMu.Unlock()
	return nil
}

func (p *Pool) recordSuccess() { p.completed.Add(1) }
func (p *Pool) recordFailure() { p.failed.Add(1) }

func (p *Pool) beginWorker() { p.wg.Add(1) }
func (p *Pool) endWorker()   { p.wg.Done() }

func (p *Pool) logf(level jobengine.LogLevel, format string, args ...any) {
	p.cfg.Context.Log(level, fmt.Sprintf(format, args...))
}

// AddWorker starts one more worker immediately, under the same lock used
// by Stop to avoid racing with shutdown.
func (p *Pool) AddWorker() *Worker {
	p.workersMu.Lock()
	defer p.workersMu.Unlock()

	w := newWorker(int(p.nextWorkerID.Add(1)-1), p, p.token, p.cfg.LocalDequeCapacity, nil)
	p.workers = append(p.workers, w)
	if p.running.Load() {
		w.start()
	}
	return w
}

// RemoveWorker stops and removes the worker with the given id, if found.
func (p *Pool) RemoveWorker(id int) bool {
	p.workersMu.Lock()
	defer p.workersMu.Unlock()

	for i, w := range p.workers {
		if w.id == id {
			w.stop()
			p.workers = append(p.workers[:i], p.workers[i+1:]...)
			p.condMu.Lock()
			p.cond.Broadcast()
			p.condMu.Unlock()
			return true
		}
	}
	return false
}

// WorkerCount returns the current number of workers under management.
func (p *Pool) WorkerCount() int {
	p.workersMu.Lock()
	defer p.workersMu.Unlock()
	return len(p.workers)
}

// CheckWorkerHealth scans workers under the lock, removing those whose
// goroutine has died and optionally spawning replacements. Safe to call
// repeatedly from an external watchdog.
func (p *Pool) CheckWorkerHealth(restartFailed bool) (removed, restarted int) {
	p.workersMu.Lock()
	alive := make([]*Worker, 0, len(p.workers))
	for _, w := range p.workers {
		if w.IsRunning() || !p.running.Load() {
			alive = append(alive, w)
			continue
		}
		removed++
	}
	p.workers = alive
	p.workersMu.Unlock()

	if restartFailed && p.running.Load() {
		for i := 0; i < removed; i++ {
			p.AddWorker()
			restarted++
		}
	}
	return removed, restarted
}

// Snapshot returns a metrics snapshot suitable for an external metrics
// sink.
func (p *Pool) Snapshot() jobengine.MetricsSnapshot {
	p.workersMu.Lock()
	active := 0
	for _, w := range p.workers {
		if !w.IsIdle() {
			active++
		}
	}
	count := len(p.workers)
	var busy, idle time.Duration
	for _, w := range p.workers {
		snap := w.Snapshot()
		busy += snap.TotalBusyTime
		idle += snap.TotalIdleTime
	}
	p.workersMu.Unlock()

	return jobengine.MetricsSnapshot{
		PoolName:     p.cfg.Name,
		InstanceID:   p.instanceID,
		WorkerCount:  count,
		ActiveCount:  active,
		QueueDepth:   p.currentQueue().Size(),
		Submitted:    p.submitted.Load(),
		Completed:    p.completed.Load(),
		Failed:       p.failed.Load(),
		Rejected:     p.rejected.Load(),
		TotalBusy:    busy,
		TotalIdle:    idle,
	}
}

// WorkerSnapshots returns a diagnostic snapshot of every worker.
func (p *Pool) WorkerSnapshots() []WorkerSnapshot {
	p.workersMu.Lock()
	defer p.workersMu.Unlock()

	out := make([]WorkerSnapshot, 0, len(p.workers))
	for _, w := range p.workers {
		out = append(out, w.Snapshot())
	}
	return out
}

// Token returns the pool's cancellation token, for composing external
// cancellation scopes.
func (p *Pool) Token() token.Token { return p.token }

// IsRunning reports whether the pool is currently started.
func (p *Pool) IsRunning() bool { return p.running.Load() }

