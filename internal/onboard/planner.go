package onboard

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/cargo-rover-sim/internal/bus"
	"github.com/signalsfoundry/cargo-rover-sim/internal/logging"
	"github.com/signalsfoundry/cargo-rover-sim/model"
)

// ErrUnknownMission is returned when a catalog lookup fails.
var ErrUnknownMission = fmt.Errorf("%w: unknown mission", bus.ErrConfiguration)

// MissionPlanner holds the mission chosen by dispatch and hands it to the
// communication gateway. A new mission replaces the held one outright.
type MissionPlanner struct {
	base
	catalog map[string]model.Mission

	mu      sync.RWMutex
	mission *model.Mission
}

// NewMissionPlanner registers the planner queue. catalog may be nil.
func NewMissionPlanner(dir *bus.Directory, catalog map[string]model.Mission, opts ...Option) (*MissionPlanner, error) {
	b, err := newBase(Planner, dir, bus.SourcePolicy{
		bus.OpSetMission: {Dispatch},
	}, buildSettings(opts))
	if err != nil {
		return nil, err
	}
	p := &MissionPlanner{base: b, catalog: make(map[string]model.Mission, len(catalog))}
	for name, m := range catalog {
		p.catalog[name] = m.Clone()
	}
	return p, nil
}

// Run consumes dispatch requests until ctx is done.
func (p *MissionPlanner) Run(ctx context.Context) { p.loop(ctx, p.handle) }

// SetNewMission queues m on behalf of dispatch. It blocks only while the
// planner queue is full.
func (p *MissionPlanner) SetNewMission(ctx context.Context, m model.Mission) error {
	return p.dir.Emit(ctx, Dispatch, Planner, bus.SetMission{Mission: m})
}

// SelectMission dispatches a catalog mission by name.
func (p *MissionPlanner) SelectMission(ctx context.Context, name string) error {
	m, ok := p.catalog[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMission, name)
	}
	return p.SetNewMission(ctx, m)
}

// Missions lists catalog names in sorted order.
func (p *MissionPlanner) Missions() []string {
	names := make([]string, 0, len(p.catalog))
	for name := range p.catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Current returns the held mission, if any.
func (p *MissionPlanner) Current() (model.Mission, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.mission == nil {
		return model.Mission{}, false
	}
	return p.mission.Clone(), true
}

func (p *MissionPlanner) handle(ctx context.Context, ev bus.Event) error {
	m, ok := ev.Mission()
	if !ok {
		return fmt.Errorf("%w: %s", bus.ErrUnsupportedOperation, ev.Operation())
	}
	p.mu.Lock()
	p.mission = &m
	p.mu.Unlock()

	p.log.Info(ctx, "mission accepted from dispatch",
		logging.Int("waypoints", len(m.Waypoints)),
		logging.Bool("armed", m.Armed),
	)
	return p.emit(ctx, Gateway, bus.SetMission{Mission: m})
}
