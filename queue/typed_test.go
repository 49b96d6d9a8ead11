package queue

import (
	"testing"

	"github.com/go-foundations/jobengine"
	"github.com/stretchr/testify/suite"
)

type TypedTestSuite struct {
	suite.Suite
}

func TestTypedTestSuite(t *testing.T) {
	suite.Run(t, new(TypedTestSuite))
}

func (ts *TypedTestSuite) TestDequeuesHighestPriorityFirst() {
	q := NewTyped()
	ts.Require().NoError(q.Enqueue(jobengine.New("low", nil).WithPriority(jobengine.Low)))
	ts.Require().NoError(q.Enqueue(jobengine.New("high", nil).WithPriority(jobengine.High)))
	ts.Require().NoError(q.Enqueue(jobengine.New("normal", nil).WithPriority(jobengine.Normal)))

	job, err := q.TryDequeue()
	ts.Require().NoError(err)
	ts.Equal("high", job.Name)

	job, err = q.TryDequeue()
	ts.Require().NoError(err)
	ts.Equal("normal", job.Name)

	job, err = q.TryDequeue()
	ts.Require().NoError(err)
	ts.Equal("low", job.Name)
}

func (ts *TypedTestSuite) TestTryDequeueRestrictedToAllowedPriorities() {
	q := NewTyped()
	ts.Require().NoError(q.Enqueue(jobengine.New("high", nil).WithPriority(jobengine.High)))
	ts.Require().NoError(q.Enqueue(jobengine.New("low", nil).WithPriority(jobengine.Low)))

	job, err := q.TryDequeue(jobengine.Low)
	ts.Require().NoError(err)
	ts.Equal("low", job.Name)
}

func (ts *TypedTestSuite) TestEmptyOnFreshQueue() {
	q := NewTyped()
	ts.True(q.Empty())
	ts.Equal(0, q.Size())
}

func (ts *TypedTestSuite) TestClearDrainsAllPriorityLevels() {
	q := NewTyped()
	ts.Require().NoError(q.Enqueue(jobengine.New("a", nil).WithPriority(jobengine.High)))
	ts.Require().NoError(q.Enqueue(jobengine.New("b", nil).WithPriority(jobengine.Low)))

	cleared := q.Clear()
	ts.Len(cleared, 2)
	ts.True(q.Empty())
}

func (ts *TypedTestSuite) TestStopStopsEveryPrioritySubQueue() {
	q := NewTyped()
	q.Stop()
	ts.True(q.IsStopped())
	_, err := q.TryDequeue()
	ts.ErrorIs(err, jobengine.ErrQueueStopped)
}

func (ts *TypedTestSuite) TestSizeByPriorityReportsSubQueueDepth() {
	q := NewTyped()
	ts.Require().NoError(q.Enqueue(jobengine.New("a", nil).WithPriority(jobengine.High)))
	ts.Require().NoError(q.Enqueue(jobengine.New("b", nil).WithPriority(jobengine.High)))
	ts.Equal(2, q.SizeByPriority(jobengine.High))
	ts.Equal(0, q.SizeByPriority(jobengine.Low))
}
