package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-foundations/jobengine"
	"github.com/go-foundations/jobengine/token"
	"github.com/stretchr/testify/suite"
)

// fakeHost is a minimal poolHost stub so Worker can be exercised in
// isolation from Pool's scheduling.
type fakeHost struct {
	running   atomic.Bool
	successes atomic.Int64
	failures  atomic.Int64
	pending   chan *jobengine.Job
}

func newFakeHost() *fakeHost {
	h := &fakeHost{pending: make(chan *jobengine.Job, 8)}
	h.running.Store(true)
	return h
}

// dequeueOnce hands job to the next dequeueGlobal call.
func (h *fakeHost) dequeueOnce(job *jobengine.Job) {
	h.pending <- job
}

func (h *fakeHost) shouldContinue() bool { return h.running.Load() }
func (h *fakeHost) waitForWork(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	case <-time.After(time.Millisecond):
		return !h.running.Load()
	}
}
func (h *fakeHost) dequeueGlobal(accepted []jobengine.Priority, dequeueCount uint64) (*jobengine.Job, error) {
	select {
	case job := <-h.pending:
		return job, nil
	default:
		return nil, jobengine.ErrQueueEmpty
	}
}
func (h *fakeHost) steal(requesterID int) (*jobengine.Job, bool) { return nil, false }
func (h *fakeHost) logf(level jobengine.LogLevel, format string, args ...any) {}
func (h *fakeHost) recordSuccess()                                           { h.successes.Add(1) }
func (h *fakeHost) recordFailure()                                           { h.failures.Add(1) }
func (h *fakeHost) beginWorker()                                             {}
func (h *fakeHost) endWorker()                                               {}

type WorkerTestSuite struct {
	suite.Suite
}

func TestWorkerTestSuite(t *testing.T) {
	suite.Run(t, new(WorkerTestSuite))
}

func (ts *WorkerTestSuite) newWorker() (*Worker, *fakeHost) {
	h := newFakeHost()
	w := newWorker(1, h, token.New(), 32, nil)
	return w, h
}

func (ts *WorkerTestSuite) TestExecuteRecordsSuccessOnWorker() {
	w, h := ts.newWorker()
	job := jobengine.New("ok", func(ctx context.Context) (any, error) {
		return "done", nil
	})

	w.execute(job)

	ts.EqualValues(1, h.successes.Load())
	ts.EqualValues(0, h.failures.Load())
	snap := w.Snapshot()
	ts.EqualValues(1, snap.JobsCompleted)
	ts.EqualValues(0, snap.JobsFailed)
	ts.Equal(WorkerIdle, snap.State)
}

func (ts *WorkerTestSuite) TestExecuteConvertsPanicToError() {
	w, h := ts.newWorker()
	job := jobengine.New("boom", func(ctx context.Context) (any, error) {
		panic("job exploded")
	})

	w.execute(job)

	ts.EqualValues(0, h.successes.Load())
	ts.EqualValues(1, h.failures.Load())

	_, err := w.runOnce(context.Background(), job)
	var engErr *jobengine.Error
	ts.Require().ErrorAs(err, &engErr)
	ts.Equal(jobengine.KindUnknown, engErr.Kind)
}

func (ts *WorkerTestSuite) TestSafeExecuteRetriesUntilSuccess() {
	w, _ := ts.newWorker()
	var attempts int
	job := jobengine.New("flaky", func(ctx context.Context) (any, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("not yet")
		}
		return "ok", nil
	}).WithRetry(jobengine.RetryPolicy{MaxAttempts: 5, Backoff: func(int) time.Duration { return 0 }})

	result, err := w.safeExecute(context.Background(), job)

	ts.NoError(err)
	ts.Equal("ok", result)
	ts.Equal(3, attempts)
}

func (ts *WorkerTestSuite) TestSafeExecuteStopsAfterMaxAttempts() {
	w, _ := ts.newWorker()
	var attempts int
	job := jobengine.New("always_fails", func(ctx context.Context) (any, error) {
		attempts++
		return nil, errors.New("nope")
	}).WithRetry(jobengine.RetryPolicy{MaxAttempts: 3, Backoff: func(int) time.Duration { return 0 }})

	_, err := w.safeExecute(context.Background(), job)

	ts.Error(err)
	ts.Equal(3, attempts)
}

func (ts *WorkerTestSuite) TestSafeExecuteDoesNotRetryOnCancellation() {
	w, _ := ts.newWorker()
	tok := token.New()
	tok.Cancel()

	var attempts int
	job := jobengine.New("cancelled", func(ctx context.Context) (any, error) {
		attempts++
		return nil, nil
	}).WithCancellation(tok).WithRetry(jobengine.RetryPolicy{MaxAttempts: 5, Backoff: func(int) time.Duration { return 0 }})

	_, err := w.safeExecute(context.Background(), job)

	var engErr *jobengine.Error
	ts.Require().ErrorAs(err, &engErr)
	ts.Equal(jobengine.KindCancelled, engErr.Kind)
	ts.Equal(1, attempts)
}

func (ts *WorkerTestSuite) TestExecuteHonorsJobTimeout() {
	w, h := ts.newWorker()
	job := jobengine.New("slow", func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, jobengine.WrapError(jobengine.KindTimeout, "deadline exceeded", ctx.Err())
	}).WithTimeout(10 * time.Millisecond)

	start := time.Now()
	w.execute(job)
	elapsed := time.Since(start)

	ts.Less(elapsed, time.Second)
	ts.EqualValues(1, h.failures.Load())
}

func (ts *WorkerTestSuite) TestStopCancelsRunningJobToken() {
	w, _ := ts.newWorker()
	w.start()
	defer w.stop()

	started := make(chan struct{})
	done := make(chan error, 1)
	job := jobengine.New("blocks_until_cancelled", func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		done <- ctx.Err()
		return nil, ctx.Err()
	})

	h := w.host.(*fakeHost)
	h.dequeueOnce(job)

	select {
	case <-started:
	case <-time.After(time.Second):
		ts.FailNow("job never started")
	}

	w.stop()

	select {
	case err := <-done:
		ts.Error(err)
	case <-time.After(time.Second):
		ts.FailNow("job never observed cancellation")
	}
}

func (ts *WorkerTestSuite) TestIsIdleAndIsRunning() {
	w, _ := ts.newWorker()
	ts.True(w.IsIdle())
	ts.False(w.IsRunning())

	w.start()
	defer w.stop()
	ts.Eventually(func() bool { return w.IsRunning() }, time.Second, time.Millisecond)
}
