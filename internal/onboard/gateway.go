package onboard

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/cargo-rover-sim/internal/bus"
)

// CommunicationGateway is the trust boundary between mission planning and
// the vehicle. Only well-formed missions from the planner pass through.
type CommunicationGateway struct {
	base
}

// NewCommunicationGateway registers the gateway queue.
func NewCommunicationGateway(dir *bus.Directory, opts ...Option) (*CommunicationGateway, error) {
	b, err := newBase(Gateway, dir, bus.SourcePolicy{
		bus.OpSetMission: {Planner},
	}, buildSettings(opts))
	if err != nil {
		return nil, err
	}
	return &CommunicationGateway{base: b}, nil
}

// Run relays missions until ctx is done.
func (g *CommunicationGateway) Run(ctx context.Context) { g.loop(ctx, g.handle) }

func (g *CommunicationGateway) handle(ctx context.Context, ev bus.Event) error {
	m, ok := ev.Mission()
	if !ok {
		return fmt.Errorf("%w: %s", bus.ErrUnsupportedOperation, ev.Operation())
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %w", bus.ErrProtocol, err)
	}
	g.log.Debug(ctx, "mission forwarded to control")
	return g.emit(ctx, Control, bus.SetMission{Mission: m})
}
