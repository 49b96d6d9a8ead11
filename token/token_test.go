package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type TokenTestSuite struct {
	suite.Suite
}

func TestTokenTestSuite(t *testing.T) {
	suite.Run(t, new(TokenTestSuite))
}

func (ts *TokenTestSuite) TestFreshTokenNotCancelled() {
	tok := New()
	ts.False(tok.IsCancelled())
	ts.Nil(tok.ThrowIfCancelled())
}

func (ts *TokenTestSuite) TestCancelIsIdempotent() {
	tok := New()
	calls := 0
	tok.RegisterCallback(func(Reason) { calls++ })

	tok.Cancel()
	tok.Cancel()
	tok.Cancel()

	ts.True(tok.IsCancelled())
	ts.Equal(1, calls)
}

func (ts *TokenTestSuite) TestCancelNeverReverts() {
	tok := New()
	tok.CancelWithMessage("stop")
	reason, ok := tok.GetReason()
	ts.True(ok)
	ts.Equal(ReasonUserRequested, reason.Kind)
	ts.Equal("stop", reason.Message)
}

func (ts *TokenTestSuite) TestThrowIfCancelledCarriesReason() {
	tok := New()
	tok.CancelWithMessage("boom")

	err := tok.ThrowIfCancelled()
	ts.Require().Error(err)

	var cerr *CancelledError
	ts.Require().ErrorAs(err, &cerr)
	ts.Equal("boom", cerr.Reason.Message)
}

func (ts *TokenTestSuite) TestRegisterCallbackAlreadyCancelledFiresImmediately() {
	tok := New()
	tok.Cancel()

	fired := false
	h := tok.RegisterCallback(func(Reason) { fired = true })

	ts.True(fired)
	ts.Equal(CallbackHandle(0), h)
}

func (ts *TokenTestSuite) TestUnregisterCallbackIsIdempotent() {
	tok := New()
	h := tok.RegisterCallback(func(Reason) {})
	tok.UnregisterCallback(h)
	tok.UnregisterCallback(h) // no panic, no-op
	tok.UnregisterCallback(0) // no-op by definition

	fired := false
	tok.RegisterCallback(func(Reason) { fired = true })
	tok.Cancel()
	ts.True(fired) // the unregistered callback is gone, but this one still fires
}

func (ts *TokenTestSuite) TestTimeoutCancelsAtDeadline() {
	tok := NewWithTimeout(10 * time.Millisecond)
	ts.False(tok.IsCancelled())

	cancelled := tok.WaitFor(200 * time.Millisecond)
	ts.True(cancelled)

	reason, _ := tok.GetReason()
	ts.Equal(ReasonTimeout, reason.Kind)
}

func (ts *TokenTestSuite) TestWaitForReturnsFalseOnPlainTimeout() {
	tok := New()
	ts.False(tok.WaitFor(20 * time.Millisecond))
	ts.False(tok.IsCancelled())
}

func (ts *TokenTestSuite) TestLinkedTokenCancelsWithParent() {
	parent := New()
	child := NewLinked(parent)

	ts.False(child.IsCancelled())
	parent.Cancel()

	ts.True(child.WaitFor(100 * time.Millisecond))
	reason, _ := child.GetReason()
	ts.Equal(ReasonParentCancelled, reason.Kind)
}

func (ts *TokenTestSuite) TestLinkedTokenMultipleParents() {
	p1, p2 := New(), New()
	child := NewLinked(p1, p2)

	p2.Cancel()
	ts.True(child.WaitFor(100 * time.Millisecond))
}

func (ts *TokenTestSuite) TestDoneChannelClosesOnCancel() {
	tok := New()
	done := tok.Done()

	select {
	case <-done:
		ts.Fail("done fired before cancel")
	default:
	}

	tok.Cancel()
	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		ts.Fail("done channel did not close after cancel")
	}
}

func (ts *TokenTestSuite) TestCopySemanticsShareState() {
	tok := New()
	copyOfTok := tok

	copyOfTok.Cancel()
	ts.True(tok.IsCancelled())
}
