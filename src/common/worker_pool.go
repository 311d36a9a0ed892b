package common

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned by WorkerPool.Go after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// WorkerPool runs submitted functions with at most size of them executing at
// any time. Go never blocks the caller; excess work waits for a free slot.
type WorkerPool struct {
	slots  chan struct{}
	wg     sync.WaitGroup
	closed int32
	active int32
}

// NewWorkerPool creates a pool. A size below 1 is treated as 1.
func NewWorkerPool(size int) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		slots: make(chan struct{}, size),
	}
}

// Go schedules f.
func (p *WorkerPool) Go(f func()) error {
	if atomic.LoadInt32(&p.closed) == 1 {
		return ErrPoolClosed
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		p.slots <- struct{}{}
		atomic.AddInt32(&p.active, 1)
		defer func() {
			atomic.AddInt32(&p.active, -1)
			<-p.slots
		}()

		f()
	}()

	return nil
}

// Active returns the number of functions currently running.
func (p *WorkerPool) Active() int {
	return int(atomic.LoadInt32(&p.active))
}

// Close stops accepting work and waits for scheduled work to finish.
func (p *WorkerPool) Close() {
	atomic.StoreInt32(&p.closed, 1)
	p.wg.Wait()
}
