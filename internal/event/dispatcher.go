// Package event provides a bounded worker-pool event dispatcher.
package event

import (
	"sync"
)

// Dispatcher fans events out to a handler through a fixed worker pool,
// so emitters never block on slow handlers and handler goroutines cannot
// pile up unbounded. With a single worker, delivery order matches
// dispatch order.
type Dispatcher[T any] struct {
	handler func(T)
	queue   chan T
	workers int

	mu      sync.Mutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given worker count and
// buffer size. Non-positive values fall back to 1 worker / 64 events.
func NewDispatcher[T any](handler func(T), workers, queueSize int) *Dispatcher[T] {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Dispatcher[T]{
		handler: handler,
		queue:   make(chan T, queueSize),
		workers: workers,
	}
}

// Start launches the worker pool. Calling Start more than once is a no-op.
func (d *Dispatcher[T]) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for ev := range d.queue {
				if d.handler != nil {
					d.handler(ev)
				}
			}
		}()
	}
}

// Dispatch queues an event for delivery. Returns false when the buffer is
// full or the dispatcher is stopped; the event is dropped in both cases so
// the emitter never blocks.
func (d *Dispatcher[T]) Dispatch(ev T) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	select {
	case d.queue <- ev:
		return true
	default:
		return false
	}
}

// DispatchBlocking queues an event, waiting for buffer space instead of
// dropping. Use this when events must not be lost. The caller must
// serialize with Stop: a DispatchBlocking racing a Stop may send on the
// closed queue.
func (d *Dispatcher[T]) DispatchBlocking(ev T) bool {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return false
	}
	d.mu.Unlock()
	d.queue <- ev
	return true
}

// Stop shuts the dispatcher down and waits for queued events to drain.
// Dispatch calls after Stop return false.
func (d *Dispatcher[T]) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	started := d.started
	close(d.queue)
	d.mu.Unlock()

	if started {
		d.wg.Wait()
	}
}

// Pending returns the number of undelivered events.
func (d *Dispatcher[T]) Pending() int {
	return len(d.queue)
}
