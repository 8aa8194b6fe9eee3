package bus

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/cargo-rover-sim/core"
	"github.com/signalsfoundry/cargo-rover-sim/model"
)

// Operation names the action an event requests.
type Operation string

const (
	OpSetMission     Operation = "set_mission"
	OpPositionUpdate Operation = "position_update"
	OpSetSpeed       Operation = "set_speed"
	OpSetDirection   Operation = "set_direction"
	OpLockCargo      Operation = "lock_cargo"
	OpReleaseCargo   Operation = "release_cargo"
)

// Payload is the typed body of an event. The set of implementations is
// closed: each one maps to exactly one Operation.
type Payload interface {
	Operation() Operation
	normalize() (Payload, error)
}

// SetMission installs or replaces the active mission.
type SetMission struct {
	Mission model.Mission
}

// PositionUpdate reports the vehicle's current position, heading in degrees
// clockwise from north and ground speed in km/h.
type PositionUpdate struct {
	Position   model.GeoPoint
	HeadingDeg float64
	SpeedKmh   float64
}

// SetSpeed commands a target ground speed in km/h.
type SetSpeed struct {
	SpeedKmh float64
}

// SetDirection commands a target heading in degrees clockwise from north.
type SetDirection struct {
	HeadingDeg float64
}

// LockCargo requests the cargo bay to lock.
type LockCargo struct{}

// ReleaseCargo requests the cargo bay to open.
type ReleaseCargo struct{}

func (SetMission) Operation() Operation     { return OpSetMission }
func (PositionUpdate) Operation() Operation { return OpPositionUpdate }
func (SetSpeed) Operation() Operation       { return OpSetSpeed }
func (SetDirection) Operation() Operation   { return OpSetDirection }
func (LockCargo) Operation() Operation      { return OpLockCargo }
func (ReleaseCargo) Operation() Operation   { return OpReleaseCargo }

// Mission content is checked by the gateway and the control system; the
// envelope only takes a private copy.
func (p SetMission) normalize() (Payload, error) {
	return SetMission{Mission: p.Mission.Clone()}, nil
}

func (p PositionUpdate) normalize() (Payload, error) {
	if err := p.Position.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(p.HeadingDeg) || math.IsInf(p.HeadingDeg, 0) {
		return nil, fmt.Errorf("heading %v must be finite", p.HeadingDeg)
	}
	if math.IsNaN(p.SpeedKmh) || math.IsInf(p.SpeedKmh, 0) || p.SpeedKmh < 0 {
		return nil, fmt.Errorf("speed %v must be finite and non-negative", p.SpeedKmh)
	}
	p.HeadingDeg = core.NormalizeDegrees(p.HeadingDeg)
	return p, nil
}

func (p SetSpeed) normalize() (Payload, error) {
	if math.IsNaN(p.SpeedKmh) || math.IsInf(p.SpeedKmh, 0) || p.SpeedKmh < 0 {
		return nil, fmt.Errorf("speed %v must be finite and non-negative", p.SpeedKmh)
	}
	return p, nil
}

func (p SetDirection) normalize() (Payload, error) {
	if math.IsNaN(p.HeadingDeg) || math.IsInf(p.HeadingDeg, 0) {
		return nil, fmt.Errorf("heading %v must be finite", p.HeadingDeg)
	}
	return SetDirection{HeadingDeg: core.NormalizeDegrees(p.HeadingDeg)}, nil
}

func (p LockCargo) normalize() (Payload, error)    { return p, nil }
func (p ReleaseCargo) normalize() (Payload, error) { return p, nil }
