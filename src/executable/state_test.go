package executable

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeHealth time.Duration

func (f fakeHealth) RemainingBackoff() time.Duration {
	return time.Duration(f)
}

var epoch = time.Unix(1600000000, 0)

func testBudget(maxAttempts int) budget {
	return budget{
		maxAttempts: maxAttempts,
		minBackoff:  250 * time.Millisecond,
		maxBackoff:  8 * time.Second,
		deadline:    epoch.Add(2 * time.Minute),
	}
}

func TestBudgetDelay(t *testing.T) {
	b := testBudget(10)

	expected := []time.Duration{
		250 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		8 * time.Second,
		8 * time.Second,
	}
	for i, e := range expected {
		assert.Equal(t, e, b.delay(i+1), "attempt %d", i+1)
	}

	b.minBackoff = 3 * time.Second
	b.maxBackoff = 2 * time.Second
	assert.Equal(t, 2*time.Second, b.delay(1))
}

func TestBudgetCallTimeout(t *testing.T) {
	b := testBudget(10)
	b.grpcDeadline = 10 * time.Second

	d, ok := b.callTimeout(epoch)
	assert.True(t, ok)
	assert.Equal(t, 10*time.Second, d)

	d, ok = b.callTimeout(b.deadline.Add(-time.Second))
	assert.True(t, ok)
	assert.Equal(t, time.Second, d)

	_, ok = b.callTimeout(b.deadline)
	assert.False(t, ok)

	b.grpcDeadline = 0
	d, _ = b.callTimeout(epoch)
	assert.Equal(t, 2*time.Minute, d)
}

func TestClassifyTransportError(t *testing.T) {
	cases := []struct {
		err  error
		kind outcomeKind
	}{
		{status.Error(codes.Unavailable, "connection refused"), outcomeTransient},
		{status.Error(codes.ResourceExhausted, "too many requests"), outcomeTransient},
		{status.Error(codes.Internal, "stream terminated by RST_STREAM with error code: PROTOCOL_ERROR"), outcomeTransient},
		{status.Error(codes.Internal, "Received Rst Stream"), outcomeTransient},
		{status.Error(codes.Internal, "first stream of the day"), outcomeFatal},
		{status.Error(codes.DeadlineExceeded, "deadline"), outcomeTimeout},
		{status.Error(codes.PermissionDenied, "no"), outcomeFatal},
		{errors.New("not a status"), outcomeFatal},
	}

	for _, c := range cases {
		assert.Equal(t, c.kind, classifyTransportError(c.err), c.err.Error())
	}
}

func TestTransitionRequestErrorIsTerminal(t *testing.T) {
	b := testBudget(10)
	s := newExecState(3)

	require.Equal(t, stepContinue, s.begin(b, epoch).next)

	reqErr := errors.New("invalid account")
	d := s.next(b, outcome{kind: outcomeRequestError, err: reqErr}, epoch)

	assert.Equal(t, stepFail, d.next)
	assert.Equal(t, reqErr, d.err)
	assert.Zero(t, d.delay)
	assert.Equal(t, 1, s.attempt)
}

func TestTransitionSingleAttemptRetry(t *testing.T) {
	b := testBudget(1)
	s := newExecState(1)

	require.Equal(t, stepContinue, s.begin(b, epoch).next)

	busy := errors.New("busy")
	d := s.next(b, outcome{kind: outcomeRetry, err: busy}, epoch)
	assert.Equal(t, stepContinue, d.next)
	assert.Zero(t, d.delay)

	d = s.begin(b, epoch)
	require.Equal(t, stepFail, d.next)

	var me *MaxAttemptsExceededError
	require.True(t, errors.As(d.err, &me))
	assert.Equal(t, 1, me.Attempts)
	assert.Equal(t, busy, me.LastErr)
}

func TestTransitionSameNodeRetry(t *testing.T) {
	b := testBudget(3)
	s := newExecState(3)
	candidates := []fakeHealth{0, 0, 0}

	s.begin(b, epoch)
	_, d := pick(s, b, candidates, epoch)
	require.Zero(t, d.delay)
	require.Equal(t, 0, s.cursor)

	d = s.next(b, outcome{kind: outcomeTransient, err: errors.New("unavailable")}, epoch)
	assert.Equal(t, stepContinue, d.next)
	assert.Equal(t, 250*time.Millisecond, d.delay)

	// the same node even if it is no longer the best choice
	candidates[0] = fakeHealth(time.Hour)
	s.begin(b, epoch)
	chosen, d := pick(s, b, candidates, epoch)
	assert.Equal(t, fakeHealth(time.Hour), chosen)
	assert.Zero(t, d.delay)
	assert.Equal(t, 2, s.attempt)

	d = s.next(b, outcome{kind: outcomeRetry, err: errors.New("busy")}, epoch)
	assert.Equal(t, 500*time.Millisecond, d.delay)
}

func TestTransitionConnectFailures(t *testing.T) {
	b := testBudget(2)
	s := newExecState(3)

	s.begin(b, epoch)

	// the first two failures share the attempt already charged
	for i := 1; i <= 2; i++ {
		d := s.next(b, outcome{kind: outcomeChannelFailure, err: errors.New("connect")}, epoch)
		assert.Equal(t, stepContinue, d.next)
		assert.Zero(t, d.delay)
		s.begin(b, epoch)
		assert.Equal(t, 1, s.attempt)
		assert.Equal(t, i, s.cursor)
	}

	// once every candidate failed, the next selection is a new attempt
	s.next(b, outcome{kind: outcomeChannelFailure, err: errors.New("connect")}, epoch)
	s.begin(b, epoch)
	assert.Equal(t, 2, s.attempt)

	for i := 0; i < 3; i++ {
		s.next(b, outcome{kind: outcomeChannelFailure, err: errors.New("connect")}, epoch)
	}
	d := s.begin(b, epoch)
	assert.Equal(t, stepFail, d.next)
	assert.True(t, IsMaxAttempts(d.err))
}

func TestTransitionServerErrorCycle(t *testing.T) {
	b := testBudget(10)
	s := newExecState(2)

	s.begin(b, epoch)
	d := s.next(b, outcome{kind: outcomeServerError, err: errors.New("platform not active")}, epoch)
	assert.Zero(t, d.delay)
	assert.Equal(t, 1, s.cursor)

	s.begin(b, epoch)
	d = s.next(b, outcome{kind: outcomeServerError, err: errors.New("platform not active")}, epoch)
	assert.Equal(t, 500*time.Millisecond, d.delay)
	assert.Equal(t, 2, s.cursor)
}

func TestTransitionDelayCappedByDeadline(t *testing.T) {
	b := testBudget(10)
	s := newExecState(1)

	s.begin(b, epoch)
	now := b.deadline.Add(-100 * time.Millisecond)
	d := s.next(b, outcome{kind: outcomeRetry, err: errors.New("busy")}, now)
	assert.Equal(t, 100*time.Millisecond, d.delay)

	d = s.begin(b, b.deadline)
	assert.Equal(t, stepFail, d.next)
	assert.True(t, IsTimeout(d.err))
}

func TestTransitionTimeout(t *testing.T) {
	b := testBudget(10)
	s := newExecState(1)
	s.begin(b, epoch)

	d := s.next(b, outcome{kind: outcomeTimeout, err: errors.New("deadline")}, epoch)
	assert.Equal(t, stepFail, d.next)
	assert.True(t, IsTimeout(d.err))
}

func TestPickWaitsForLeastBrokenNode(t *testing.T) {
	b := testBudget(10)
	s := newExecState(3)
	candidates := []fakeHealth{
		fakeHealth(4000 * time.Millisecond),
		fakeHealth(3000 * time.Millisecond),
		fakeHealth(5000 * time.Millisecond),
	}

	s.begin(b, epoch)
	chosen, d := pick(s, b, candidates, epoch)
	assert.Equal(t, candidates[1], chosen)
	assert.Equal(t, 1, s.cursor)
	assert.Equal(t, stepContinue, d.next)
	assert.Equal(t, 3000*time.Millisecond, d.delay)

	// waiting past the deadline is a timeout
	_, d = pick(s, b, candidates, b.deadline.Add(-time.Second))
	assert.Equal(t, stepFail, d.next)
	assert.True(t, IsTimeout(d.err))
}
