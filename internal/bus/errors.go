package bus

import (
	"errors"
	"fmt"
)

// Error classes. Concrete errors wrap exactly one of these so callers can
// decide with errors.Is whether to abort, reject or replace.
var (
	// ErrConfiguration is fatal at startup: wiring is wrong.
	ErrConfiguration = errors.New("configuration error")
	// ErrProtocol marks an event that must be rejected and logged.
	ErrProtocol = errors.New("protocol error")
	// ErrState marks a transition that conflicts with the current state.
	ErrState = errors.New("state error")
)

var (
	ErrDuplicateQueue       = fmt.Errorf("%w: duplicate queue", ErrConfiguration)
	ErrUnknownQueue         = fmt.Errorf("%w: unknown queue", ErrConfiguration)
	ErrMalformedEvent       = fmt.Errorf("%w: malformed event", ErrProtocol)
	ErrUnsupportedOperation = fmt.Errorf("%w: unsupported operation", ErrProtocol)
	ErrUnauthorizedSource   = fmt.Errorf("%w: unauthorized source", ErrProtocol)

	// ErrQueueClosed is returned by Put after the queue has been closed.
	ErrQueueClosed = errors.New("queue closed")
)
