package executable

import (
	"regexp"
	"time"

	"github.com/mosaicnetworks/ledgerclient/src/network"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// rstStream matches the description of an internal error caused by an HTTP/2
// stream reset, which is worth retrying.
var rstStream = regexp.MustCompile(`(?is).*\brst[^0-9a-zA-Z]stream\b.*`)

// budget is the resolved execution policy of one execution.
type budget struct {
	maxAttempts  int
	minBackoff   time.Duration
	maxBackoff   time.Duration
	grpcDeadline time.Duration
	deadline     time.Time
}

// delay is the pause after the given attempt:
// min(minBackoff * 2^(attempt-1), maxBackoff).
func (b budget) delay(attempt int) time.Duration {
	d := b.minBackoff
	for i := 1; i < attempt && d < b.maxBackoff; i++ {
		d *= 2
	}
	if d > b.maxBackoff {
		d = b.maxBackoff
	}
	return d
}

// callTimeout is the deadline of a call issued at now. It is false when the
// overall deadline has already passed.
func (b budget) callTimeout(now time.Time) (time.Duration, bool) {
	remaining := b.deadline.Sub(now)
	if remaining <= 0 {
		return 0, false
	}
	if b.grpcDeadline > 0 && b.grpcDeadline < remaining {
		return b.grpcDeadline, true
	}
	return remaining, true
}

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	// delivered response asking to try the same node again
	outcomeRetry
	// delivered response from a node that does not serve the target identity
	outcomeRetryNextNode
	outcomeServerError
	outcomeRequestError
	// transport error worth retrying on the same node
	outcomeTransient
	outcomeChannelFailure
	outcomeTimeout
	outcomeFatal
)

var outcomeKinds = []string{
	"Success",
	"Retry",
	"RetryNextNode",
	"ServerError",
	"RequestError",
	"Transient",
	"ChannelFailure",
	"Timeout",
	"Fatal",
}

func (k outcomeKind) String() string {
	return outcomeKinds[k]
}

// outcome is the result of one attempt.
type outcome struct {
	kind outcomeKind
	err  error
}

// classifyTransportError maps a transport error to an outcome kind by its
// status code.
func classifyTransportError(err error) outcomeKind {
	st, ok := status.FromError(err)
	if !ok {
		return outcomeFatal
	}

	switch st.Code() {
	case codes.Unavailable, codes.ResourceExhausted:
		return outcomeTransient
	case codes.Internal:
		if rstStream.MatchString(st.Message()) {
			return outcomeTransient
		}
	case codes.DeadlineExceeded:
		return outcomeTimeout
	}

	return outcomeFatal
}

// IsTransient reports whether a transport error is worth retrying on the
// same endpoint.
func IsTransient(err error) bool {
	return classifyTransportError(err) == outcomeTransient
}

type step int

const (
	stepContinue step = iota
	stepDone
	stepFail
)

// decision tells a driver what to do next: wait delay and continue, return
// the output, or fail with err.
type decision struct {
	next  step
	delay time.Duration
	err   error
}

// execState is the bookkeeping of one execution. It holds no node; drivers
// resolve the cursor against their candidate list.
type execState struct {
	candidates int
	attempt    int
	cursor     int
	lastErr    error

	// the next selection reuses the node at cursor
	pinned bool
	// the next selection starts a new attempt
	charge bool
	// connect failures since the current attempt was charged
	connectFails int
	// node advances, used to detect a full cycle of server errors
	advances int
}

func newExecState(candidates int) *execState {
	return &execState{
		candidates: candidates,
		charge:     true,
	}
}

// begin accounts for a new selection. When a new attempt is due it is
// charged, and the execution fails once the attempt budget is spent.
func (s *execState) begin(b budget, now time.Time) decision {
	if s.charge {
		if s.attempt >= b.maxAttempts {
			return decision{next: stepFail, err: &MaxAttemptsExceededError{Attempts: s.attempt, LastErr: s.lastErr}}
		}
		s.attempt++
		s.connectFails = 0
		s.charge = false
	}

	if !now.Before(b.deadline) {
		return decision{next: stepFail, err: &TimeoutError{LastErr: s.lastErr}}
	}

	return decision{next: stepContinue}
}

// pick selects the node for the current attempt and how long to wait before
// using it. A pinned node is reused as is. An unhealthy node is waited for,
// and the execution times out if that wait reaches the overall deadline.
func pick[T network.Health](s *execState, b budget, candidates []T, now time.Time) (T, decision) {
	if s.pinned {
		s.pinned = false
		return candidates[s.cursor%len(candidates)], decision{next: stepContinue}
	}

	chosen, idx := network.Select(candidates, s.cursor)
	s.cursor = idx

	remaining := chosen.RemainingBackoff()
	if remaining <= 0 {
		return chosen, decision{next: stepContinue}
	}
	if remaining >= b.deadline.Sub(now) {
		return chosen, decision{next: stepFail, err: &TimeoutError{LastErr: s.lastErr}}
	}
	return chosen, decision{next: stepContinue, delay: remaining}
}

// next is the transition applied to the outcome of an attempt.
func (s *execState) next(b budget, o outcome, now time.Time) decision {
	switch o.kind {
	case outcomeSuccess:
		return decision{next: stepDone}
	case outcomeRequestError, outcomeFatal:
		return decision{next: stepFail, err: o.err}
	case outcomeTimeout:
		return decision{next: stepFail, err: &TimeoutError{LastErr: o.err}}
	}

	s.lastErr = o.err
	s.pinned = false
	s.charge = true

	switch o.kind {
	case outcomeChannelFailure:
		// a connect failure shares the attempt that was already charged
		// until every candidate failed to connect
		s.advance()
		s.connectFails++
		if s.connectFails < s.candidates {
			s.charge = false
		}
		return decision{next: stepContinue}

	case outcomeServerError:
		s.advance()
		if s.advances%s.candidates != 0 {
			return decision{next: stepContinue}
		}

	case outcomeRetryNextNode:
		s.advance()

	case outcomeRetry, outcomeTransient:
		s.pinned = true
	}

	return s.wait(b, now)
}

func (s *execState) advance() {
	s.cursor++
	s.advances++
}

// wait computes the retry delay. The last attempt gets none since no attempt
// follows it.
func (s *execState) wait(b budget, now time.Time) decision {
	if s.attempt >= b.maxAttempts {
		return decision{next: stepContinue}
	}

	remaining := b.deadline.Sub(now)
	if remaining <= 0 {
		return decision{next: stepFail, err: &TimeoutError{LastErr: s.lastErr}}
	}

	d := b.delay(s.attempt)
	if d > remaining {
		d = remaining
	}
	return decision{next: stepContinue, delay: d}
}
