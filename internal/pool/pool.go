// Package pool runs submitted tasks on a fixed number of workers. Tasks
// beyond the worker count wait in an unbounded FIFO queue.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

var (
	ErrPoolShutdown    = errors.New("pool is shut down")
	ErrInvalidPoolSize = errors.New("invalid pool size")
	ErrTaskPanicked    = errors.New("task panicked")
)

type task struct {
	fn     func()
	future *Future
}

type Pool struct {
	size int
	g    *errgroup.Group

	mx       sync.Mutex
	cond     *sync.Cond
	queue    []task
	shutdown bool
}

// New starts size workers.
func New(size int) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPoolSize, size)
	}
	p := &Pool{
		size: size,
		g:    &errgroup.Group{},
	}
	p.cond = sync.NewCond(&p.mx)
	for range size {
		p.g.Go(p.work)
	}
	return p, nil
}

func (p *Pool) Size() int {
	return p.size
}

// Submit queues fn and returns its future. After Shutdown it returns
// ErrPoolShutdown.
func (p *Pool) Submit(fn func()) (*Future, error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.shutdown {
		return nil, ErrPoolShutdown
	}
	f := newFuture()
	p.queue = append(p.queue, task{fn: fn, future: f})
	p.cond.Signal()
	return f, nil
}

// Shutdown stops accepting tasks. Queued and running tasks still finish.
func (p *Pool) Shutdown() {
	p.mx.Lock()
	p.shutdown = true
	p.mx.Unlock()
	p.cond.Broadcast()
}

// Wait blocks until the pool is shut down and every worker has exited.
func (p *Pool) Wait() {
	_ = p.g.Wait()
}

// Pending is the number of queued tasks not yet picked by a worker.
func (p *Pool) Pending() int {
	p.mx.Lock()
	defer p.mx.Unlock()
	return len(p.queue)
}

func (p *Pool) work() error {
	for {
		t, ok := p.next()
		if !ok {
			return nil
		}
		t.future.run(t.fn)
	}
}

func (p *Pool) next() (task, bool) {
	p.mx.Lock()
	defer p.mx.Unlock()
	for len(p.queue) == 0 && !p.shutdown {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return task{}, false
	}
	t := p.queue[0]
	p.queue[0] = task{}
	p.queue = p.queue[1:]
	return t, true
}

// Future tracks one submitted task.
type Future struct {
	done chan struct{}
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) run(fn func()) {
	defer close(f.done)
	defer func() {
		if r := recover(); r != nil {
			f.err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	fn()
}

// Done is closed when the task returned.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

func (f *Future) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the task returns and reports a recovered panic, or
// until ctx ends.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
