package bus

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/cargo-rover-sim/model"
)

// Event is the immutable envelope exchanged between components. Fields are
// only reachable through accessors; payloads holding reference types are
// copied on the way in and on the way out.
type Event struct {
	id          string
	source      string
	destination string
	payload     Payload
	createdAt   time.Time
}

// NewEvent validates and builds an envelope.
func NewEvent(source, destination string, p Payload) (Event, error) {
	if source == "" {
		return Event{}, fmt.Errorf("%w: empty source", ErrMalformedEvent)
	}
	if destination == "" {
		return Event{}, fmt.Errorf("%w: empty destination", ErrMalformedEvent)
	}
	if p == nil {
		return Event{}, fmt.Errorf("%w: nil payload", ErrMalformedEvent)
	}
	normalized, err := p.normalize()
	if err != nil {
		return Event{}, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, p.Operation(), err)
	}
	return Event{
		id:          uuid.NewString(),
		source:      source,
		destination: destination,
		payload:     normalized,
		createdAt:   time.Now(),
	}, nil
}

func (e Event) ID() string           { return e.id }
func (e Event) Source() string       { return e.source }
func (e Event) Destination() string  { return e.destination }
func (e Event) CreatedAt() time.Time { return e.createdAt }

// Operation returns the operation implied by the payload, or "" for the zero
// Event.
func (e Event) Operation() Operation {
	if e.payload == nil {
		return ""
	}
	return e.payload.Operation()
}

// Payload returns the event body. Mission payloads are returned as copies.
func (e Event) Payload() Payload {
	if m, ok := e.payload.(SetMission); ok {
		return SetMission{Mission: m.Mission.Clone()}
	}
	return e.payload
}

// Mission is a shortcut for set_mission events.
func (e Event) Mission() (model.Mission, bool) {
	m, ok := e.payload.(SetMission)
	if !ok {
		return model.Mission{}, false
	}
	return m.Mission.Clone(), true
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s->%s (%s)", e.Operation(), e.source, e.destination, e.id)
}
