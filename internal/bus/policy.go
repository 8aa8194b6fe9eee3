package bus

import "fmt"

// SourcePolicy lists, per operation, the component names a receiver trusts
// to send it. Operations missing from the policy are refused.
type SourcePolicy map[Operation][]string

// Authorize returns ErrUnauthorizedSource unless ev came from a trusted
// sender for its operation.
func (p SourcePolicy) Authorize(ev Event) error {
	for _, src := range p[ev.Operation()] {
		if src == ev.Source() {
			return nil
		}
	}
	return fmt.Errorf("%w: %s from %q", ErrUnauthorizedSource, ev.Operation(), ev.Source())
}
