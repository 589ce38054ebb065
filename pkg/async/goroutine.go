package async

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"
)

// ErrPoolClosed is returned by Submit once Shutdown has begun.
var ErrPoolClosed = errors.New("worker pool shut down")

// SafeGo executes a function in a supervised goroutine. The parent
// context is bounded by timeout; panics are recovered and a returned
// error is logged. Use this instead of a bare `go func()` for
// fire-and-forget work whose failure should be visible but not fatal.
//
// Example:
//
//	SafeGo(r.Context(), 5*time.Second, "snapshot save", func(ctx context.Context) error {
//	    return gateway.Flush(ctx, id, tracker.Report())
//	})
func SafeGo(parent context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		defer recoverTask(taskName)

		if err := fn(ctx); err != nil {
			// The task already ran to completion; the caller is gone.
			// Logging is all that is left to do with the error.
			log.Printf("[SafeGo] Error in %s: %v", taskName, err)
		}
	}()
}

// SafeGoNoError is SafeGo for functions with nothing to report.
//
// Example:
//
//	SafeGoNoError(ctx, 5*time.Second, "sampler cleanup", func(ctx context.Context) {
//	    sampler.Cleanup(30 * time.Minute)
//	})
func SafeGoNoError(parent context.Context, timeout time.Duration, taskName string, fn func(context.Context)) {
	SafeGo(parent, timeout, taskName, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

func recoverTask(taskName string) {
	if r := recover(); r != nil {
		log.Printf("[async] PANIC in %s: %v\nStack trace:\n%s", taskName, r, debug.Stack())
	}
}

// WorkerPool runs submitted tasks on a fixed set of workers, each task
// under its own timeout with panic recovery. Task errors are collected
// on a buffered channel for the owner to drain; when the buffer is full
// further errors are logged and dropped rather than blocking a worker.
type WorkerPool struct {
	taskName string
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders Submit against Shutdown: submitters hold it shared while
	// sending, Shutdown takes it exclusively before closing the channel,
	// so a send can never hit a closed channel.
	mu     sync.RWMutex
	closed bool

	tasks chan func(context.Context) error
	errs  chan error
	done  chan struct{}
}

// NewWorkerPool starts workers goroutines processing submitted tasks.
// Each task runs under timeout; ctx bounds the pool as a whole.
//
// Example:
//
//	pool := NewWorkerPool(ctx, 4, "session close", 30*time.Second)
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//	    return registry.Close(ctx, sessionID)
//	})
func NewWorkerPool(ctx context.Context, workers int, taskName string, timeout time.Duration) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)

	p := &WorkerPool{
		taskName: taskName,
		timeout:  timeout,
		ctx:      ctx,
		cancel:   cancel,
		tasks:    make(chan func(context.Context) error, workers*2),
		errs:     make(chan error, workers*10),
		done:     make(chan struct{}),
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			p.run()
		}()
	}
	go func() {
		wg.Wait()
		close(p.done)
	}()

	return p
}

// Submit hands a task to the pool, blocking while all workers are busy
// and the queue is full. It returns ErrPoolClosed after Shutdown.
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- fn:
		return nil
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

// Shutdown stops accepting tasks, lets the workers drain the queue, and
// waits up to timeout for them to finish. On timeout the pool context is
// canceled so running tasks see it, and an error is returned. Shutdown
// is idempotent.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		select {
		case <-p.done:
			return nil
		case <-time.After(timeout):
			return fmt.Errorf("worker pool shutdown timed out after %v", timeout)
		}
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	select {
	case <-p.done:
		p.cancel()
		return nil
	case <-time.After(timeout):
		p.cancel()
		return fmt.Errorf("worker pool shutdown timed out after %v", timeout)
	}
}

// Errors returns the channel task errors are reported on. The channel is
// never closed; drain it non-blockingly with a select.
func (p *WorkerPool) Errors() <-chan error {
	return p.errs
}

func (p *WorkerPool) run() {
	defer recoverTask(p.taskName)

	for {
		select {
		case <-p.ctx.Done():
			return
		case fn, ok := <-p.tasks:
			if !ok {
				return
			}
			p.runTask(fn)
		}
	}
}

// runTask executes one task under the per-task timeout, converting a
// panic into a reported error so one bad task cannot take the worker
// down.
func (p *WorkerPool) runTask(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			p.report(fmt.Errorf("panic in %s: %v", p.taskName, r))
		}
	}()

	if err := fn(ctx); err != nil {
		p.report(err)
	}
}

func (p *WorkerPool) report(err error) {
	select {
	case p.errs <- err:
	default:
		log.Printf("[WorkerPool] Error channel full, dropping error in %s: %v", p.taskName, err)
	}
}
