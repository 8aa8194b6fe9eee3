package bus

import (
	"context"
	"sync"
	"time"
)

// Recorder is an Observer that keeps every delivered and rejected event in
// order. It is intended for tests that need to assert on the traffic between
// components without reaching into their queues.
type Recorder struct {
	mu        sync.Mutex
	delivered []Entry
	rejected  []error
	notify    chan struct{}
}

// Entry is one delivered event with its position in the directory-wide
// delivery order, starting at 1.
type Entry struct {
	Seq   int
	Event Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

func (r *Recorder) Delivered(ev Event) {
	r.mu.Lock()
	r.delivered = append(r.delivered, Entry{Seq: len(r.delivered) + 1, Event: ev})
	r.mu.Unlock()
	r.signal()
}

func (r *Recorder) Rejected(_ Event, err error) {
	r.mu.Lock()
	r.rejected = append(r.rejected, err)
	r.mu.Unlock()
	r.signal()
}

func (r *Recorder) signal() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Events returns the delivered events, optionally filtered by destination.
func (r *Recorder) Events(destination string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0, len(r.delivered))
	for _, e := range r.delivered {
		if destination == "" || e.Event.Destination() == destination {
			out = append(out, e.Event)
		}
	}
	return out
}

// Entries is Events with sequence numbers, so ordering across destinations
// can be checked.
func (r *Recorder) Entries(destination string) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.delivered))
	for _, e := range r.delivered {
		if destination == "" || e.Event.Destination() == destination {
			out = append(out, e)
		}
	}
	return out
}

// Rejections returns the errors of rejected sends.
func (r *Recorder) Rejections() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.rejected...)
}

// WaitFor blocks until cond holds for the recorded traffic or the timeout
// expires. It reports whether cond was satisfied.
func (r *Recorder) WaitFor(timeout time.Duration, cond func(r *Recorder) bool) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	poll := time.NewTicker(5 * time.Millisecond)
	defer poll.Stop()
	for {
		if cond(r) {
			return true
		}
		select {
		case <-ctx.Done():
			return cond(r)
		case <-r.notify:
		case <-poll.C:
		}
	}
}
