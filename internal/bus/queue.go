package bus

import (
	"context"
	"fmt"
	"sync"
)

// DefaultQueueCapacity bounds each queue when no capacity is given.
const DefaultQueueCapacity = 64

// Queue is a bounded FIFO inbox owned by exactly one component. Any
// component holding the directory may Put; only the owner reads.
type Queue struct {
	name    string
	accepts map[Operation]struct{}

	ch   chan Event
	done chan struct{}

	mu     sync.RWMutex
	closed bool
	// inflight counts Puts that passed the closed check. Drain waits for
	// them so nothing lands in the buffer after the owner has drained.
	inflight sync.WaitGroup
}

// NewQueue creates a queue that admits only the listed operations. A
// capacity below 1 uses DefaultQueueCapacity.
func NewQueue(name string, capacity int, accepts ...Operation) *Queue {
	if capacity < 1 {
		capacity = DefaultQueueCapacity
	}
	q := &Queue{
		name:    name,
		accepts: make(map[Operation]struct{}, len(accepts)),
		ch:      make(chan Event, capacity),
		done:    make(chan struct{}),
	}
	for _, op := range accepts {
		q.accepts[op] = struct{}{}
	}
	return q
}

// Name returns the directory key of the queue.
func (q *Queue) Name() string { return q.name }

// Accepts reports whether op may be delivered to this queue.
func (q *Queue) Accepts(op Operation) bool {
	_, ok := q.accepts[op]
	return ok
}

// Put enqueues ev, blocking while the queue is full. It fails once the
// queue is closed or ctx is done.
func (q *Queue) Put(ctx context.Context, ev Event) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrQueueClosed, q.name)
	}
	q.inflight.Add(1)
	q.mu.RUnlock()
	defer q.inflight.Done()

	select {
	case q.ch <- ev:
		return nil
	case <-q.done:
		return fmt.Errorf("%w: %s", ErrQueueClosed, q.name)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events exposes the receive side for the owning component's loop.
func (q *Queue) Events() <-chan Event { return q.ch }

// Done is closed when the queue is closed.
func (q *Queue) Done() <-chan struct{} { return q.done }

// TryGet returns the next event without blocking.
func (q *Queue) TryGet() (Event, bool) {
	select {
	case ev := <-q.ch:
		return ev, true
	default:
		return Event{}, false
	}
}

// Len reports the number of buffered events.
func (q *Queue) Len() int { return len(q.ch) }

// Close stops accepting events. Buffered events stay readable through
// Drain. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Drain removes and returns every buffered event. On a closed queue it
// first waits for in-progress Puts, so an event accepted by Put is either
// handled by the owner or returned here.
func (q *Queue) Drain() []Event {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		q.inflight.Wait()
	}

	var out []Event
	for {
		ev, ok := q.TryGet()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}
