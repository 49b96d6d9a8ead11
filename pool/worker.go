package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-foundations/jobengine"
	"github.com/go-foundations/jobengine/token"
	pkgerrors "github.com/pkg/errors"
)

// WorkerState is the worker's coarse lifecycle state, exposed to
// diagnostics and the autoscaler.
type WorkerState int32

const (
	WorkerIdle WorkerState = iota
	WorkerBusy
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerBusy:
		return "busy"
	case WorkerStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// WorkerSnapshot is a point-in-time view of a worker used by diagnostics
// and health checks.
type WorkerSnapshot struct {
	ID              int
	State           WorkerState
	StateSince      time.Time
	CurrentJobID    uint64
	CurrentJobName  string
	HasCurrentJob   bool
	JobsCompleted   uint64
	JobsFailed      uint64
	TotalBusyTime   time.Duration
	TotalIdleTime   time.Duration
	AcceptPriority  []jobengine.Priority
}

// poolHost is the subset of Pool that Worker depends on. TypedPool
// implements it too, so both can drive the same worker loop; the typed
// pool is a pool variant, not a separate worker model.
type poolHost interface {
	shouldContinue() bool
	waitForWork(stop <-chan struct{}) bool
	dequeueGlobal(accepted []jobengine.Priority, dequeueCount uint64) (*jobengine.Job, error)
	steal(requesterID int) (*jobengine.Job, bool)
	logf(level jobengine.LogLevel, format string, args ...any)
	recordSuccess()
	recordFailure()
	beginWorker()
	endWorker()
}

// Worker owns one goroutine that loops: local deque, then the pool's
// shared queue, then stealing from a sibling.
type Worker struct {
	id       int
	host     poolHost
	local    *WorkStealingDeque[*jobengine.Job]
	token    token.Token
	accepted []jobengine.Priority // nil means "accepts everything"

	state      atomic.Int32
	stateSince atomic.Int64 // unix nanoseconds

	currentJob atomic.Pointer[jobengine.Job]

	jobsCompleted atomic.Uint64
	jobsFailed    atomic.Uint64
	totalBusyNs   atomic.Int64
	totalIdleNs   atomic.Int64

	dequeueCount atomic.Uint64

	running atomic.Bool
	stopCh  chan struct{}
}

func newWorker(id int, host poolHost, parent token.Token, localCapacity int, accepted []jobengine.Priority) *Worker {
	w := &Worker{
		id:       id,
		host:     host,
		local:    NewWorkStealingDeque[*jobengine.Job](localCapacity),
		token:    token.NewLinked(parent),
		accepted: accepted,
		stopCh:   make(chan struct{}),
	}
	w.setState(WorkerIdle)
	return w
}

func (w *Worker) setState(s WorkerState) {
	w.state.Store(int32(s))
	w.stateSince.Store(time.Now().UnixNano())
}

func (w *Worker) start() {
	w.running.Store(true)
	w.host.beginWorker()
	go w.run()
}

func (w *Worker) run() {
	defer w.host.endWorker()
	defer w.running.Store(false)
	defer w.setState(WorkerStopped)

	idleStart := time.Now()
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}
		if !w.host.shouldContinue() {
			return
		}

		job, err := w.obtainJob()
		if err != nil {
			w.totalIdleNs.Add(int64(time.Since(idleStart)))
			if w.host.waitForWork(w.stopCh) {
				return
			}
			idleStart = time.Now()
			continue
		}

		w.totalIdleNs.Add(int64(time.Since(idleStart)))
		w.execute(job)
		idleStart = time.Now()
	}
}

// obtainJob implements the §4.5 dequeue order: local deque (LIFO), global
// queue, then steal.
func (w *Worker) obtainJob() (*jobengine.Job, error) {
	if job, ok := w.local.Pop(); ok {
		return job, nil
	}

	w.dequeueCount.Add(1)
	job, err := w.host.dequeueGlobal(w.accepted, w.dequeueCount.Load())
	if err == nil {
		return job, nil
	}
	if errors.Is(err, jobengine.ErrQueueStopped) {
		return nil, err
	}

	if stolen, ok := w.host.steal(w.id); ok {
		return stolen, nil
	}
	return nil, jobengine.ErrQueueEmpty
}

func (w *Worker) execute(job *jobengine.Job) {
	w.setState(WorkerBusy)
	w.currentJob.Store(job)
	start := time.Now()

	ctx := w.token.AsContext(context.Background())
	var cancel context.CancelFunc
	if timeout, ok := job.Timeout(); ok {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}

	result, err := w.safeExecute(ctx, job)
	if cancel != nil {
		cancel()
	}

	w.totalBusyNs.Add(int64(time.Since(start)))
	w.currentJob.Store(nil)

	if err != nil {
		w.jobsFailed.Add(1)
		if job.RunOnError(err) {
			w.host.logf(jobengine.LogWarn, "on_error hook panicked for job %d", job.ID())
		}
		w.host.recordFailure()
	} else if job.RunOnComplete(result) {
		w.host.logf(jobengine.LogWarn, "on_complete hook panicked for job %d", job.ID())
		w.jobsFailed.Add(1)
		w.host.recordFailure()
	} else {
		w.jobsCompleted.Add(1)
		w.host.recordSuccess()
	}
	w.setState(WorkerIdle)
}

// safeExecute applies the job's retry policy, if any, skipping retry for a
// cancellation error.
func (w *Worker) safeExecute(ctx context.Context, job *jobengine.Job) (result any, err error) {
	attempts := 1
	policy, hasRetry := job.Retry()
	if hasRetry && policy.MaxAttempts > 0 {
		attempts = policy.MaxAttempts
	}

	for attempt := 0; attempt < attempts; attempt++ {
		result, err = w.runOnce(ctx, job)
		if err == nil {
			return result, nil
		}

		var engErr *jobengine.Error
		if errors.As(err, &engErr) && engErr.Kind == jobengine.KindCancelled {
			return nil, err
		}
		if attempt < attempts-1 && hasRetry && policy.Backoff != nil {
			time.Sleep(policy.Backoff(attempt))
		}
	}
	return result, err
}

// runOnce catches a panic from user job code and converts it into a
// structured error: a panic in job code is caught at the worker boundary
// rather than crashing the pool.
func (w *Worker) runOnce(ctx context.Context, job *jobengine.Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			wrapped := pkgerrors.Wrapf(fmt.Errorf("%v", r), "job %q panicked", job.Name)
			err = jobengine.WrapError(jobengine.KindUnknown, "job panicked during execution", wrapped)
		}
	}()
	return job.Execute(ctx)
}

// stop cancels the worker's token, propagating to any job it is currently
// running, then signals run() to exit without waiting for more work.
func (w *Worker) stop() {
	w.token.Cancel()
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
}

// Snapshot returns a point-in-time view of this worker's state.
func (w *Worker) Snapshot() WorkerSnapshot {
	snap := WorkerSnapshot{
		ID:             w.id,
		State:          WorkerState(w.state.Load()),
		StateSince:     time.Unix(0, w.stateSince.Load()),
		JobsCompleted:  w.jobsCompleted.Load(),
		JobsFailed:     w.jobsFailed.Load(),
		TotalBusyTime:  time.Duration(w.totalBusyNs.Load()),
		TotalIdleTime:  time.Duration(w.totalIdleNs.Load()),
		AcceptPriority: w.accepted,
	}
	if job := w.currentJob.Load(); job != nil {
		snap.HasCurrentJob = true
		snap.CurrentJobID = job.ID()
		snap.CurrentJobName = job.Name
	}
	return snap
}

// IsIdle reports whether the worker is not currently executing a job.
func (w *Worker) IsIdle() bool {
	return WorkerState(w.state.Load()) != WorkerBusy
}

// IsRunning reports whether the worker's goroutine is alive.
func (w *Worker) IsRunning() bool {
	return w.running.Load()
}
