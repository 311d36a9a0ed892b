package executable

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/node"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Executable runs one Request through the engine.
type Executable[Req any, Resp any, Out any] struct {
	request Request[Req, Resp, Out]
	options *Options

	requestListener  func(*Req)
	responseListener func(*Resp)
}

// New returns an Executable for r. opts may be nil.
func New[Req any, Resp any, Out any](r Request[Req, Resp, Out], opts *Options) *Executable[Req, Resp, Out] {
	return &Executable[Req, Resp, Out]{
		request: r,
		options: opts,
	}
}

// SetRequestListener installs a function that sees, and may modify, every
// wire request right before it is sent.
func (e *Executable[Req, Resp, Out]) SetRequestListener(f func(*Req)) *Executable[Req, Resp, Out] {
	e.requestListener = f
	return e
}

// SetResponseListener installs a function that sees, and may modify, every
// delivered wire response before it is classified.
func (e *Executable[Req, Resp, Out]) SetResponseListener(f func(*Resp)) *Executable[Req, Resp, Out] {
	e.responseListener = f
	return e
}

// Execute runs the request with the client's request timeout.
func (e *Executable[Req, Resp, Out]) Execute(ctx context.Context, c Client) (Out, error) {
	return e.ExecuteWithTimeout(ctx, c, c.RequestTimeout())
}

// ExecuteWithTimeout runs the request, blocking until a terminal outcome. The
// overall deadline is the earlier of timeout and the deadline of ctx.
func (e *Executable[Req, Resp, Out]) ExecuteWithTimeout(ctx context.Context, c Client, timeout time.Duration) (Out, error) {
	var zero Out

	x, err := e.prepare(ctx, c, timeout)
	if err != nil {
		return zero, err
	}
	defer x.cancel()

	for {
		d := x.begin(time.Now())
		if d.next == stepFail {
			return zero, x.fail(d.err)
		}
		if err := sleep(x.ctx, d.delay); err != nil {
			return zero, x.fail(x.interrupted(err))
		}

		out, o := x.attempt()

		d = x.finish(o, time.Now())
		switch d.next {
		case stepDone:
			return out, nil
		case stepFail:
			return zero, x.fail(d.err)
		}

		if err := sleep(x.ctx, d.delay); err != nil {
			return zero, x.fail(x.interrupted(err))
		}
	}
}

// execution is the state of one Execute or ExecuteAsync call.
type execution[Req any, Resp any, Out any] struct {
	*Executable[Req, Resp, Out]

	ctx     context.Context
	cancel  context.CancelFunc
	client  Client
	metrics *Metrics
	logger  *logrus.Entry

	budget     budget
	state      *execState
	candidates []*node.Node
	current    *node.Node
}

func (e *Executable[Req, Resp, Out]) prepare(ctx context.Context, c Client, timeout time.Duration) (*execution[Req, Resp, Out], error) {
	if c.AutoValidateChecksums() {
		if err := e.request.ValidateChecksums(c); err != nil {
			return nil, errors.Wrap(err, "validating checksums")
		}
	}

	net := c.Network()

	ids := e.options.NodeAccountIDs()
	if len(ids) == 0 {
		ids = net.NodeAccountIDsForExecute()
	}
	if len(ids) == 0 {
		return nil, ErrNoNodes
	}

	candidates, err := net.Candidates(ids)
	if err != nil {
		return nil, errors.Wrap(ErrUnknownNode, err.Error())
	}

	start := time.Now()
	b := e.options.budget(c, start, timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(b.deadline) {
		b.deadline = d
	}

	xctx, cancel := context.WithDeadline(ctx, b.deadline)

	metrics := c.Metrics()
	if metrics == nil {
		metrics = &Metrics{}
	}

	x := &execution[Req, Resp, Out]{
		Executable: e,
		ctx:        xctx,
		cancel:     cancel,
		client:     c,
		metrics:    metrics,
		budget:     b,
		state:      newExecState(len(candidates)),
		candidates: candidates,
		logger: c.Logger().WithFields(logrus.Fields{
			"request":   e.request.Name(),
			"execution": uuid.New().String(),
		}),
	}

	x.metrics.add(executions)

	x.logger.WithFields(logrus.Fields{
		"nodes":        len(candidates),
		"max_attempts": b.maxAttempts,
		"timeout":      b.deadline.Sub(start),
	}).Debug("Execute")

	return x, nil
}

// begin charges the attempt if one is due and selects the node to use, with
// the delay to wait before using it.
func (x *execution[Req, Resp, Out]) begin(now time.Time) decision {
	prev := x.state.attempt

	d := x.state.begin(x.budget, now)
	if d.next == stepFail {
		return d
	}
	if x.state.attempt != prev {
		x.metrics.add(attempts)
	}

	nd, d := pick(x.state, x.budget, x.candidates, now)
	x.current = nd

	if d.delay > 0 {
		nd.Logger().WithFields(logrus.Fields{
			"attempt": x.state.attempt,
			"delay":   d.delay,
		}).Debug("Waiting for unhealthy node")
	}

	return d
}

// attempt runs CONNECT, BUILD_REQUEST and SEND against the current node and
// classifies the result. It blocks on the network only.
func (x *execution[Req, Resp, Out]) attempt() (Out, outcome) {
	var zero Out

	nd := x.current
	logger := nd.Logger().WithField("attempt", x.state.attempt)

	if nd.ChannelFailedToConnect(x.ctx) {
		if x.ctx.Err() != nil {
			return zero, x.contextOutcome()
		}
		logger.Debug("Failed to connect")
		return zero, outcome{
			kind: outcomeChannelFailure,
			err:  errors.Errorf("failed to connect to node %s at %s", nd.AccountID(), nd.Address()),
		}
	}

	req, err := x.request.BuildRequest(nd.AccountID())
	if err != nil {
		return zero, outcome{kind: outcomeFatal, err: errors.Wrap(err, "building request")}
	}
	if x.requestListener != nil {
		x.requestListener(req)
	}

	timeout, ok := x.budget.callTimeout(time.Now())
	if !ok {
		return zero, outcome{kind: outcomeTimeout, err: x.state.lastErr}
	}

	ch, err := nd.GetOrCreateChannel()
	if err != nil {
		return zero, outcome{kind: outcomeChannelFailure, err: err}
	}

	callCtx, cancel := context.WithTimeout(x.ctx, timeout)
	defer cancel()

	nd.InUse()

	resp := new(Resp)
	if err := ch.Invoke(callCtx, x.request.Method(), req, resp); err != nil {
		if x.ctx.Err() != nil {
			return zero, x.contextOutcome()
		}

		kind := classifyTransportError(err)
		logger.WithError(err).WithField("outcome", kind).Debug("Transport error")

		if kind == outcomeFatal {
			err = &TransportError{Node: nd.AccountID(), Err: err}
		}
		return zero, outcome{kind: kind, err: err}
	}

	if x.responseListener != nil {
		x.responseListener(resp)
	}

	st := x.request.MapResponseStatus(resp)
	es := x.request.ClassifyExecutionState(st, resp)

	logger.WithFields(logrus.Fields{
		"status": st,
		"state":  es,
	}).Debug("Response")

	precheck := &PrecheckStatusError{Status: st, TransactionID: x.request.TransactionID()}

	switch es {
	case Success:
		nd.RecordSuccess()
		out, err := x.request.MapResponse(resp, nd.AccountID(), req)
		if err != nil {
			return zero, outcome{kind: outcomeFatal, err: err}
		}
		return out, outcome{kind: outcomeSuccess}

	case Retry:
		if st == ledger.StatusInvalidNodeAccount {
			logger.Warn("Node does not serve its account, marking it unhealthy")
			x.client.Network().IncreaseBackoff(nd)
			return zero, outcome{kind: outcomeRetryNextNode, err: precheck}
		}
		nd.RecordSuccess()
		return zero, outcome{kind: outcomeRetry, err: precheck}

	case ServerError:
		nd.RecordFailure()
		return zero, outcome{kind: outcomeServerError, err: precheck}

	default:
		nd.RecordSuccess()
		return zero, outcome{kind: outcomeRequestError, err: precheck}
	}
}

// finish applies the transition to the outcome of an attempt.
func (x *execution[Req, Resp, Out]) finish(o outcome, now time.Time) decision {
	x.metrics.observe(o.kind)

	d := x.state.next(x.budget, o, now)

	if d.next == stepContinue && d.delay > 0 {
		x.logger.WithFields(logrus.Fields{
			"attempt": x.state.attempt,
			"outcome": o.kind,
			"delay":   d.delay,
		}).Debug("Retrying")
	}

	return d
}

// contextOutcome turns the end of the execution context into an outcome.
func (x *execution[Req, Resp, Out]) contextOutcome() outcome {
	if errors.Is(x.ctx.Err(), context.DeadlineExceeded) {
		return outcome{kind: outcomeTimeout, err: x.state.lastErr}
	}
	return outcome{kind: outcomeFatal, err: x.ctx.Err()}
}

// interrupted maps an error returned while waiting.
func (x *execution[Req, Resp, Out]) interrupted(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{LastErr: x.state.lastErr}
	}
	return err
}

func (x *execution[Req, Resp, Out]) fail(err error) error {
	x.metrics.add(failures)
	x.logger.WithError(err).WithField("attempt", x.state.attempt).Debug("Execution failed")
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
