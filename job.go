package jobengine

import (
	"context"
	"time"

	"github.com/go-foundations/jobengine/token"
)

// ExecuteFunc is the single operation a Job exposes: execute, returning a
// result or a structured error. It receives the context the worker
// constructed for this execution (carrying the worker's cancellation token
// and any job-level timeout).
type ExecuteFunc func(ctx context.Context) (any, error)

// OnCompleteFunc runs after an execution that returned a nil error; when
// execution fails, only OnErrorFunc runs.
type OnCompleteFunc func(result any)

// OnErrorFunc runs only when execution returned a non-nil error.
type OnErrorFunc func(err error)

// RetryPolicy configures how many times, and with what backoff, a worker
// re-invokes a failing job's Execute.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// DefaultBackoff is a simple linear backoff: (attempt+1) * 100ms.
func DefaultBackoff(attempt int) time.Duration {
	return time.Duration(attempt+1) * 100 * time.Millisecond
}

// components holds a job's optional, lazily-allocated extras. Most jobs
// need none of these, so Job keeps only a pointer.
type components struct {
	onComplete OnCompleteFunc
	onError    OnErrorFunc
	priority   Priority
	token      *token.Token
	retry      *RetryPolicy
	timeout    time.Duration
}

// Job is the work unit: a unique id allocated at construction, an optional
// name and payload, a creation timestamp, and a lazily-allocated
// components block.
type Job struct {
	id        uint64
	Name      string
	Payload   []byte
	CreatedAt time.Time

	run  ExecuteFunc
	comp *components
}

// New constructs a Job with just a name. run may be nil, in which case
// Execute returns a not-implemented error, matching a job meant to be
// further composed before submission.
func New(name string, run ExecuteFunc) *Job {
	return &Job{
		id:        nextJobID(),
		Name:      name,
		CreatedAt: time.Now(),
		run:       run,
	}
}

// NewWithPayload constructs a Job carrying a binary payload alongside its
// name.
func NewWithPayload(name string, payload []byte, run ExecuteFunc) *Job {
	j := New(name, run)
	j.Payload = payload
	return j
}

// ID returns the job's process-unique, monotonically allocated id.
func (j *Job) ID() uint64 { return j.id }

func (j *Job) ensureComponents() *components {
	if j.comp == nil {
		j.comp = &components{priority: Normal}
	}
	return j.comp
}

// WithOnComplete attaches a completion hook and returns j for chaining.
func (j *Job) WithOnComplete(fn OnCompleteFunc) *Job {
	j.ensureComponents().onComplete = fn
	return j
}

// WithOnError attaches an error hook and returns j for chaining.
func (j *Job) WithOnError(fn OnErrorFunc) *Job {
	j.ensureComponents().onError = fn
	return j
}

// WithPriority attaches a priority level, consumed by typed pools/queues.
func (j *Job) WithPriority(p Priority) *Job {
	j.ensureComponents().priority = p
	return j
}

// WithRetry attaches a retry policy and returns j for chaining.
func (j *Job) WithRetry(policy RetryPolicy) *Job {
	j.ensureComponents().retry = &policy
	return j
}

// WithTimeout attaches a per-execution timeout and returns j for chaining.
func (j *Job) WithTimeout(d time.Duration) *Job {
	j.ensureComponents().timeout = d
	return j
}

// WithCancellation attaches an explicit cancellation token. Execute returns
// a KindCancelled error without running the job when this token is already
// cancelled; the context handed to the job still derives from the worker's
// token, so cancelling this token does not interrupt a running execution.
func (j *Job) WithCancellation(t token.Token) *Job {
	j.ensureComponents().token = &t
	return j
}

// Priority returns the job's declared priority, defaulting to Normal for a
// job with no components block.
func (j *Job) Priority() Priority {
	if j.comp == nil {
		return Normal
	}
	return j.comp.priority
}

// Token returns the job's explicit cancellation token and whether one was
// attached via WithCancellation.
func (j *Job) Token() (token.Token, bool) {
	if j.comp == nil || j.comp.token == nil {
		return token.Token{}, false
	}
	return *j.comp.token, true
}

// Retry returns the job's retry policy and whether one was attached.
func (j *Job) Retry() (RetryPolicy, bool) {
	if j.comp == nil || j.comp.retry == nil {
		return RetryPolicy{}, false
	}
	return *j.comp.retry, true
}

// Timeout returns the job's per-execution timeout and whether one was set.
func (j *Job) Timeout() (time.Duration, bool) {
	if j.comp == nil || j.comp.timeout == 0 {
		return 0, false
	}
	return j.comp.timeout, true
}

// RunOnComplete invokes the on-complete hook, if any, swallowing any panic
// raised by the hook itself: callback failures propagate to the worker as a
// counted failure, not a crash.
func (j *Job) RunOnComplete(result any) (panicked bool) {
	if j.comp == nil || j.comp.onComplete == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			panicked = true
		}
	}()
	j.comp.onComplete(result)
	return false
}

// RunOnError invokes the on-error hook, if any, with the same panic
// isolation as RunOnComplete.
func (j *Job) RunOnError(err error) (panicked bool) {
	if j.comp == nil || j.comp.onError == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			panicked = true
		}
	}()
	j.comp.onError(err)
	return false
}

// Execute runs the job's single operation. A job constructed without a run
// function returns ErrNotImplemented.
func (j *Job) Execute(ctx context.Context) (any, error) {
	if tok, ok := j.Token(); ok {
		if err := tok.ThrowIfCancelled(); err != nil {
			return nil, WrapError(KindCancelled, "job cancelled before execution", err)
		}
	}
	if j.run == nil {
		return nil, ErrNotImplemented
	}
	return j.run(ctx)
}
