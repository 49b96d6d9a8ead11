package jobengine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-foundations/jobengine/token"
	"github.com/stretchr/testify/suite"
)

type JobTestSuite struct {
	suite.Suite
}

func TestJobTestSuite(t *testing.T) {
	suite.Run(t, new(JobTestSuite))
}

func (ts *JobTestSuite) TestNewAssignsMonotonicIDs() {
	j1 := New("a", nil)
	j2 := New("b", nil)
	ts.Greater(j2.ID(), j1.ID())
}

func (ts *JobTestSuite) TestExecuteWithoutRunReturnsNotImplemented() {
	j := New("base", nil)
	_, err := j.Execute(context.Background())
	ts.ErrorIs(err, ErrNotImplemented)
}

func (ts *JobTestSuite) TestExecuteRunsFunction() {
	j := New("work", func(ctx context.Context) (any, error) {
		return 42, nil
	})
	result, err := j.Execute(context.Background())
	ts.NoError(err)
	ts.Equal(42, result)
}

func (ts *JobTestSuite) TestDefaultPriorityIsNormal() {
	j := New("x", nil)
	ts.Equal(Normal, j.Priority())
}

func (ts *JobTestSuite) TestWithPriorityChains() {
	j := New("x", nil).WithPriority(High)
	ts.Equal(High, j.Priority())
}

func (ts *JobTestSuite) TestWithCancellationCausesExecuteToFail() {
	tok := token.New()
	tok.Cancel()

	j := New("x", func(ctx context.Context) (any, error) { return nil, nil }).
		WithCancellation(tok)

	_, err := j.Execute(context.Background())
	ts.Require().Error(err)

	var engErr *Error
	ts.Require().ErrorAs(err, &engErr)
	ts.Equal(KindCancelled, engErr.Kind)
}

func (ts *JobTestSuite) TestOnCompleteAndOnErrorHooksRun() {
	var completed, failed bool
	j := New("x", func(ctx context.Context) (any, error) {
		return nil, errors.New("boom")
	}).WithOnComplete(func(any) { completed = true }).
		WithOnError(func(error) { failed = true })

	_, err := j.Execute(context.Background())
	ts.Error(err)

	panicked := j.RunOnError(err)
	ts.False(panicked)
	j.RunOnComplete(nil)

	ts.True(completed)
	ts.True(failed)
}

func (ts *JobTestSuite) TestCallbackPanicIsIsolated() {
	j := New("x", nil).WithOnComplete(func(any) { panic("bad callback") })
	panicked := j.RunOnComplete(nil)
	ts.True(panicked)
}

func (ts *JobTestSuite) TestRetryAndTimeoutDefaultUnset() {
	j := New("x", nil)
	_, hasRetry := j.Retry()
	_, hasTimeout := j.Timeout()
	ts.False(hasRetry)
	ts.False(hasTimeout)
}

func (ts *JobTestSuite) TestWithTimeoutAndRetry() {
	j := New("x", nil).
		WithTimeout(50 * time.Millisecond).
		WithRetry(RetryPolicy{MaxAttempts: 3, Backoff: DefaultBackoff})

	d, ok := j.Timeout()
	ts.True(ok)
	ts.Equal(50*time.Millisecond, d)

	policy, ok := j.Retry()
	ts.True(ok)
	ts.Equal(3, policy.MaxAttempts)
}
