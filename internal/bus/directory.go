package bus

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Observer is notified about traffic passing through a Directory. It must
// not block.
type Observer interface {
	Delivered(ev Event)
	Rejected(ev Event, err error)
}

// DirectoryOption configures a Directory.
type DirectoryOption func(*Directory)

// WithObserver attaches an observer to every Send.
func WithObserver(o Observer) DirectoryOption {
	return func(d *Directory) {
		if o != nil {
			d.observers = append(d.observers, o)
		}
	}
}

// Directory maps component names to their inbound queues. It is built once
// at startup and passed to every component.
type Directory struct {
	mu        sync.RWMutex
	queues    map[string]*Queue
	observers []Observer
}

// NewDirectory constructs an empty directory.
func NewDirectory(opts ...DirectoryOption) *Directory {
	d := &Directory{queues: make(map[string]*Queue)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds q under its name.
func (d *Directory) Register(q *Queue) error {
	if q == nil || q.Name() == "" {
		return fmt.Errorf("%w: queue must have a name", ErrConfiguration)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.queues[q.Name()]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateQueue, q.Name())
	}
	d.queues[q.Name()] = q
	return nil
}

// Queue looks up a queue by name.
func (d *Directory) Queue(name string) (*Queue, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	q, ok := d.queues[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownQueue, name)
	}
	return q, nil
}

// Names returns the registered queue names in sorted order.
func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.queues))
	for name := range d.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Send routes ev to its destination queue after checking the queue admits
// the operation.
func (d *Directory) Send(ctx context.Context, ev Event) error {
	q, err := d.Queue(ev.Destination())
	if err != nil {
		d.rejected(ev, err)
		return err
	}
	if !q.Accepts(ev.Operation()) {
		err := fmt.Errorf("%w: %s does not accept %s", ErrUnsupportedOperation, q.Name(), ev.Operation())
		d.rejected(ev, err)
		return err
	}
	if err := q.Put(ctx, ev); err != nil {
		d.rejected(ev, err)
		return err
	}
	for _, o := range d.observers {
		o.Delivered(ev)
	}
	return nil
}

// Emit builds and sends an event in one step.
func (d *Directory) Emit(ctx context.Context, source, destination string, p Payload) error {
	ev, err := NewEvent(source, destination, p)
	if err != nil {
		return err
	}
	return d.Send(ctx, ev)
}

// Close closes every registered queue.
func (d *Directory) Close() {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, q := range d.queues {
		q.Close()
	}
}

func (d *Directory) rejected(ev Event, err error) {
	for _, o := range d.observers {
		o.Rejected(ev, err)
	}
}
