// Package breaker implements a three-state circuit breaker: Closed, Open,
// HalfOpen, gating job admission on a rolling window of recent outcomes.
// HalfOpen concurrency is bounded with a weighted semaphore rather than an
// atomic request counter.
package breaker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-foundations/jobengine"
	"golang.org/x/sync/semaphore"
)

// State is the breaker's current admission mode.
type State int32

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config configures a CircuitBreaker.
type Config struct {
	WindowSize         int           // rolling window of recent outcomes
	MinCalls           int           // calls required in the window before a trip is considered
	FailureThreshold   float64       // failure ratio in [0,1] that trips the breaker
	OpenDuration       time.Duration // Open → HalfOpen delay
	HalfOpenProbeCount int64         // concurrent probes admitted while HalfOpen
	SuccessThreshold   int           // consecutive HalfOpen successes needed to close
	OnStateChange      func(from, to State)
}

func (c *Config) applyDefaults() {
	if c.WindowSize <= 0 {
		c.WindowSize = 20
	}
	if c.MinCalls <= 0 {
		c.MinCalls = 10
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 0.5
	}
	if c.OpenDuration <= 0 {
		c.OpenDuration = 30 * time.Second
	}
	if c.HalfOpenProbeCount <= 0 {
		c.HalfOpenProbeCount = 1
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 3
	}
}

// Stats is a diagnostic snapshot of the breaker's current counters.
type Stats struct {
	State            State
	WindowFailures    int
	WindowCalls       int
	ConsecutiveProbes int
	StateChangedAt    time.Time
}

// CircuitBreaker implements the Closed/Open/HalfOpen state machine. Outcome
// recording and admission checks are safe for concurrent use; state
// transitions are single-threaded via mu, while admission checks are
// fast-path atomic reads with a recheck under lock on near-boundary cases.
type CircuitBreaker struct {
	cfg Config

	state          atomic.Int32
	stateChangedAt atomic.Int64 // UnixNano

	mu      sync.Mutex
	outcome []bool // ring buffer of recent outcomes, true = success
	pos     int
	filled  int

	consecutiveSuccesses atomic.Int32

	probes *semaphore.Weighted
}

// New constructs a CircuitBreaker in the Closed state.
func New(cfg Config) *CircuitBreaker {
	cfg.applyDefaults()
	cb := &CircuitBreaker{
		cfg:     cfg,
		outcome: make([]bool, cfg.WindowSize),
		probes:  semaphore.NewWeighted(cfg.HalfOpenProbeCount),
	}
	cb.stateChangedAt.Store(time.Now().UnixNano())
	return cb
}

// State returns the current admission state.
func (cb *CircuitBreaker) State() State { return State(cb.state.Load()) }

// Allow reports whether a call should be admitted right now, performing the
// Open → HalfOpen transition as a side effect once open_duration elapses.
// HalfOpen admission is additionally bounded by the probe semaphore; callers
// that are allowed here but fail to acquire a probe slot must treat the call
// as rejected (EnqueueProtected handles this).
func (cb *CircuitBreaker) Allow() bool {
	switch cb.State() {
	case Closed:
		return true
	case Open:
		changedAt := time.Unix(0, cb.stateChangedAt.Load())
		if time.Since(changedAt) < cb.cfg.OpenDuration {
			return false
		}
		cb.mu.Lock()
		defer cb.mu.Unlock()
		// Recheck under lock: another goroutine may have already flipped
		// the state while we were waiting for it.
		if cb.State() == Open && time.Since(time.Unix(0, cb.stateChangedAt.Load())) >= cb.cfg.OpenDuration {
			cb.transition(Open, HalfOpen)
		}
		return cb.State() == HalfOpen
	case HalfOpen:
		return true
	default:
		return false
	}
}

// EnqueueProtected wraps enqueue with circuit breaker admission: if the
// breaker denies the call, enqueue is never invoked and ErrCircuitOpen is
// returned; otherwise enqueue runs and its outcome (not the job's eventual
// execution result) is recorded.
func (cb *CircuitBreaker) EnqueueProtected(job *jobengine.Job, enqueue func() error) error {
	if !cb.Allow() {
		return jobengine.ErrCircuitOpen
	}

	if cb.State() == HalfOpen {
		if !cb.probes.TryAcquire(1) {
			return jobengine.ErrCircuitOpen
		}
		defer cb.probes.Release(1)
	}

	err := enqueue()
	cb.record(err == nil)
	return err
}

// Execute runs fn under breaker protection, recording its outcome the same
// way EnqueueProtected does. Useful for wrapping a job's own execution
// rather than just its admission to the queue.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.Allow() {
		return jobengine.ErrCircuitOpen
	}

	if cb.State() == HalfOpen {
		if err := cb.probes.Acquire(ctx, 1); err != nil {
			return jobengine.ErrCircuitOpen
		}
		defer cb.probes.Release(1)
	}

	err := fn(ctx)
	cb.record(err == nil)
	return err
}

func (cb *CircuitBreaker) record(success bool) {
	switch cb.State() {
	case HalfOpen:
		cb.recordHalfOpen(success)
	default:
		cb.recordClosed(success)
	}
}

func (cb *CircuitBreaker) recordClosed(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.outcome[cb.pos] = success
	cb.pos = (cb.pos + 1) % len(cb.outcome)
	if cb.filled < len(cb.outcome) {
		cb.filled++
	}

	if cb.filled < cb.cfg.MinCalls {
		return
	}
	failures := 0
	for i := 0; i < cb.filled; i++ {
		if !cb.outcome[i] {
			failures++
		}
	}
	if float64(failures)/float64(cb.filled) >= cb.cfg.FailureThreshold {
		cb.transition(Closed, Open)
	}
}

func (cb *CircuitBreaker) recordHalfOpen(success bool) {
	if !success {
		cb.consecutiveSuccesses.Store(0)
		cb.mu.Lock()
		cb.transition(HalfOpen, Open)
		cb.mu.Unlock()
		return
	}
	n := cb.consecutiveSuccesses.Add(1)
	if int(n) >= cb.cfg.SuccessThreshold {
		cb.mu.Lock()
		cb.resetWindow()
		cb.transition(HalfOpen, Closed)
		cb.mu.Unlock()
	}
}

// transition must be called with mu held (or during construction). It is a
// no-op if the breaker has already left `from`, which matters because
// Allow's recheck-under-lock can race a concurrent recordHalfOpen.
func (cb *CircuitBreaker) transition(from, to State) {
	if !cb.state.CompareAndSwap(int32(from), int32(to)) {
		return
	}
	cb.stateChangedAt.Store(time.Now().UnixNano())
	cb.consecutiveSuccesses.Store(0)
	if to == Open {
		cb.resetWindow()
	}
	if cb.cfg.OnStateChange != nil {
		go cb.cfg.OnStateChange(from, to)
	}
}

func (cb *CircuitBreaker) resetWindow() {
	cb.pos = 0
	cb.filled = 0
}

// Stats returns a diagnostic snapshot.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failures := 0
	for i := 0; i < cb.filled; i++ {
		if !cb.outcome[i] {
			failures++
		}
	}
	return Stats{
		State:             cb.State(),
		WindowFailures:    failures,
		WindowCalls:       cb.filled,
		ConsecutiveProbes: int(cb.consecutiveSuccesses.Load()),
		StateChangedAt:    time.Unix(0, cb.stateChangedAt.Load()),
	}
}

// Reset forces the breaker back to Closed with an empty window, for manual
// recovery or test setup.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.resetWindow()
	cb.state.Store(int32(Closed))
	cb.stateChangedAt.Store(time.Now().UnixNano())
	cb.consecutiveSuccesses.Store(0)
}
