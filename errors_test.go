package jobengine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ErrorsTestSuite struct {
	suite.Suite
}

func TestErrorsTestSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}

func (ts *ErrorsTestSuite) TestNewErrorMatchesSentinelByKind() {
	err := NewError(KindQueueFull, "capacity reached")
	ts.True(errors.Is(err, ErrQueueFull))
	ts.False(errors.Is(err, ErrQueueEmpty))
}

func (ts *ErrorsTestSuite) TestWrapErrorUnwraps() {
	cause := errors.New("root cause")
	err := WrapError(KindTimeout, "deadline exceeded", cause)
	ts.True(errors.Is(err, ErrTimeout))
	ts.True(errors.Is(err, cause))
}

func (ts *ErrorsTestSuite) TestErrorMessageFormatting() {
	err := NewError(KindCircuitOpen, "breaker tripped")
	ts.Equal("circuit_open: breaker tripped", err.Error())
}

func (ts *ErrorsTestSuite) TestKindStringCoversTaxonomy() {
	kinds := []Kind{
		KindInvalidArgument, KindQueueFull, KindQueueEmpty, KindQueueStopped,
		KindTimeout, KindCircuitOpen, KindCancelled, KindAlreadyRunning,
		KindNotRunning, KindNotImplemented,
	}
	for _, k := range kinds {
		ts.NotEqual("unknown", k.String())
	}
}
