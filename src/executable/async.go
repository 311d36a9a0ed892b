package executable

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ExecuteAsync runs the request without blocking the caller. Every step runs
// on the client's worker pool and delays are timers, not sleeping goroutines.
// The decisions are the same Execute would take for the same outcomes.
func (e *Executable[Req, Resp, Out]) ExecuteAsync(ctx context.Context, c Client) *Future[Out] {
	return e.ExecuteAsyncWithTimeout(ctx, c, c.RequestTimeout())
}

// ExecuteAsyncWithTimeout is ExecuteAsync with an explicit overall timeout.
func (e *Executable[Req, Resp, Out]) ExecuteAsyncWithTimeout(ctx context.Context, c Client, timeout time.Duration) *Future[Out] {
	var zero Out

	f := newFuture[Out](ctx)

	x, err := e.prepare(f.ctx, c, timeout)
	if err != nil {
		f.complete(zero, err)
		return f
	}

	d := &asyncDriver[Req, Resp, Out]{x: x, f: f}
	d.schedule(0, d.selectStep)

	return f
}

type asyncDriver[Req any, Resp any, Out any] struct {
	x *execution[Req, Resp, Out]
	f *Future[Out]
}

// schedule submits fn to the pool after delay. Nothing runs once the future
// has stopped.
func (d *asyncDriver[Req, Resp, Out]) schedule(delay time.Duration, fn func()) {
	submit := func() {
		if d.f.stopped() {
			return
		}
		if err := d.x.client.Pool().Go(func() {
			if d.f.stopped() {
				return
			}
			fn()
		}); err != nil {
			d.fail(errors.Wrap(err, "scheduling execution step"))
		}
	}

	if delay <= 0 {
		submit()
		return
	}
	d.f.after(delay, submit)
}

func (d *asyncDriver[Req, Resp, Out]) selectStep() {
	dec := d.x.begin(time.Now())
	if dec.next == stepFail {
		d.fail(dec.err)
		return
	}
	d.schedule(dec.delay, d.attemptStep)
}

func (d *asyncDriver[Req, Resp, Out]) attemptStep() {
	out, o := d.x.attempt()

	if d.f.stopped() {
		return
	}

	dec := d.x.finish(o, time.Now())
	switch dec.next {
	case stepDone:
		d.f.complete(out, nil)
		d.x.cancel()
	case stepFail:
		d.fail(dec.err)
	default:
		d.schedule(dec.delay, d.selectStep)
	}
}

func (d *asyncDriver[Req, Resp, Out]) fail(err error) {
	var zero Out
	if !IsTimeout(err) && errors.Is(err, context.DeadlineExceeded) {
		err = &TimeoutError{LastErr: d.x.state.lastErr}
	}
	if d.f.complete(zero, d.x.fail(err)) {
		d.x.cancel()
	}
}
