package executable

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Future is the pending result of an asynchronous execution.
type Future[T any] struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	completeOnce sync.Once
	cancelOnce   sync.Once

	mu    sync.Mutex
	timer *time.Timer
	value T
	err   error
}

func newFuture[T any](parent context.Context) *Future[T] {
	ctx, cancel := context.WithCancel(parent)
	return &Future[T]{
		id:     uuid.New().String(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID ...
func (f *Future[T]) ID() string {
	return f.id
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Get waits for the result, or for ctx to be done.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Cancel stops the execution. Scheduled continuations do not run after it
// and an in-flight call is aborted. If the result is not available yet, Get
// returns context.Canceled. Cancel may be called any number of times.
func (f *Future[T]) Cancel() {
	f.cancelOnce.Do(func() {
		f.stopTimer()
		var zero T
		f.complete(zero, context.Canceled)
	})
}

// complete sets the result. Only the first call has an effect.
func (f *Future[T]) complete(v T, err error) bool {
	completed := false
	f.completeOnce.Do(func() {
		f.mu.Lock()
		f.value, f.err = v, err
		f.mu.Unlock()

		f.cancel()
		close(f.done)
		completed = true
	})
	return completed
}

// stopped is true once the future is cancelled or completed.
func (f *Future[T]) stopped() bool {
	return f.ctx.Err() != nil
}

// after runs fn once d has elapsed, unless the future stops first.
func (f *Future[T]) after(d time.Duration, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped() {
		return
	}
	f.timer = time.AfterFunc(d, fn)
}

func (f *Future[T]) stopTimer() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}

// Completed returns a future that already holds its result.
func Completed[T any](v T, err error) *Future[T] {
	f := newFuture[T](context.Background())
	f.complete(v, err)
	return f
}

// Then chains two asynchronous steps: once f succeeds, next starts the
// second one, and the returned future completes with it. Cancelling the
// returned future cancels whichever step is running.
func Then[A any, B any](f *Future[A], next func(A) (*Future[B], error)) *Future[B] {
	out := newFuture[B](context.Background())

	go func() {
		var zero B

		select {
		case <-f.Done():
		case <-out.ctx.Done():
			f.Cancel()
			return
		}

		a, err := f.Get(context.Background())
		if err != nil {
			out.complete(zero, err)
			return
		}

		nf, err := next(a)
		if err != nil {
			out.complete(zero, err)
			return
		}

		select {
		case <-nf.Done():
			out.complete(nf.Get(context.Background()))
		case <-out.ctx.Done():
			nf.Cancel()
		}
	}()

	return out
}
