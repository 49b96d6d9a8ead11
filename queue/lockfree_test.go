package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-foundations/jobengine"
	"github.com/stretchr/testify/suite"
)

type LockFreeTestSuite struct {
	suite.Suite
}

func TestLockFreeTestSuite(t *testing.T) {
	suite.Run(t, new(LockFreeTestSuite))
}

func (ts *LockFreeTestSuite) TestFIFOOrder() {
	q := NewLockFree()
	want := []string{"a", "b", "c"}
	for _, name := range want {
		ts.Require().NoError(q.Enqueue(jobengine.New(name, nil)))
	}
	for _, name := range want {
		job, err := q.TryDequeue()
		ts.Require().NoError(err)
		ts.Equal(name, job.Name)
	}
	ts.True(q.Empty())
}

func (ts *LockFreeTestSuite) TestTryDequeueOnEmptyReturnsQueueEmpty() {
	q := NewLockFree()
	_, err := q.TryDequeue()
	ts.ErrorIs(err, jobengine.ErrQueueEmpty)
}

func (ts *LockFreeTestSuite) TestEnqueueAfterStopFails() {
	q := NewLockFree()
	q.Stop()
	err := q.Enqueue(jobengine.New("x", nil))
	ts.ErrorIs(err, jobengine.ErrQueueStopped)
}

func (ts *LockFreeTestSuite) TestTryDequeueOnEmptyStoppedReturnsQueueStopped() {
	q := NewLockFree()
	q.Stop()
	_, err := q.TryDequeue()
	ts.ErrorIs(err, jobengine.ErrQueueStopped)
}

func (ts *LockFreeTestSuite) TestConcurrentEnqueueDequeuePreservesCount() {
	q := NewLockFree()
	const producers = 8
	const perProducer = 200

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				ts.Require().NoError(q.Enqueue(jobengine.New("j", nil)))
			}
		}()
	}
	wg.Wait()

	count := 0
	for {
		_, err := q.TryDequeue()
		if err != nil {
			break
		}
		count++
	}
	ts.Equal(producers*perProducer, count)
	ts.True(q.Empty())
}

func (ts *LockFreeTestSuite) TestDequeueBlocksUntilEnqueue() {
	q := NewLockFree()
	done := make(chan *jobengine.Job, 1)
	go func() {
		job, err := q.Dequeue(context.Background())
		ts.NoError(err)
		done <- job
	}()

	time.Sleep(10 * time.Millisecond)
	ts.Require().NoError(q.Enqueue(jobengine.New("late", nil)))

	select {
	case job := <-done:
		ts.Equal("late", job.Name)
	case <-time.After(time.Second):
		ts.Fail("dequeue never observed the enqueue")
	}
}

func (ts *LockFreeTestSuite) TestDequeueHonorsContextCancellation() {
	q := NewLockFree()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	ts.ErrorIs(err, context.DeadlineExceeded)
}

func (ts *LockFreeTestSuite) TestClearDrainsAllReachableJobs() {
	q := NewLockFree()
	for i := 0; i < 4; i++ {
		ts.Require().NoError(q.Enqueue(jobengine.New("j", nil)))
	}
	cleared := q.Clear()
	ts.Len(cleared, 4)
	ts.True(q.Empty())
}
