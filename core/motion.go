package core

import (
	"math"
	"time"

	"github.com/signalsfoundry/cargo-rover-sim/model"
)

// MotionModel advances a vehicle's kinematic state by a simulated interval.
type MotionModel interface {
	Advance(dt time.Duration, s *model.VehicleState)
}

// MotionLimits bounds how quickly the vehicle may change speed and heading.
type MotionLimits struct {
	MaxAccelKmhPerSec    float64
	MaxDecelKmhPerSec    float64
	MaxTurnRateDegPerSec float64
}

// DefaultMotionLimits roughly matches a small delivery rover.
func DefaultMotionLimits() MotionLimits {
	return MotionLimits{
		MaxAccelKmhPerSec:    15,
		MaxDecelKmhPerSec:    30,
		MaxTurnRateDegPerSec: 90,
	}
}

// KinematicMotionModel moves the vehicle along the sphere with bounded
// acceleration and turn rate. Speed and heading are stepped toward their
// targets before the position is integrated.
type KinematicMotionModel struct {
	Limits MotionLimits
}

// NewKinematicMotionModel constructs a model with the given limits.
func NewKinematicMotionModel(limits MotionLimits) *KinematicMotionModel {
	return &KinematicMotionModel{Limits: limits}
}

// Advance implements MotionModel.
func (m *KinematicMotionModel) Advance(dt time.Duration, s *model.VehicleState) {
	if s == nil || dt <= 0 {
		return
	}
	secs := dt.Seconds()

	s.SpeedKmh = stepSpeed(s.SpeedKmh, s.TargetSpeedKmh, m.Limits, secs)
	s.HeadingDeg = stepHeading(s.HeadingDeg, s.TargetHeadingDeg, m.Limits.MaxTurnRateDegPerSec, secs)

	if s.SpeedKmh > 0 {
		metres := s.SpeedKmh / 3.6 * secs
		s.Position = Destination(s.Position, s.HeadingDeg, metres)
	}
}

func stepSpeed(current, target float64, limits MotionLimits, secs float64) float64 {
	if target < 0 {
		target = 0
	}
	switch {
	case target > current:
		if limits.MaxAccelKmhPerSec <= 0 {
			return target
		}
		return math.Min(target, current+limits.MaxAccelKmhPerSec*secs)
	case target < current:
		if limits.MaxDecelKmhPerSec <= 0 {
			return target
		}
		return math.Max(target, current-limits.MaxDecelKmhPerSec*secs)
	default:
		return current
	}
}

func stepHeading(current, target, rate, secs float64) float64 {
	delta := HeadingDelta(current, target)
	if rate <= 0 {
		return NormalizeDegrees(target)
	}
	maxTurn := rate * secs
	if math.Abs(delta) <= maxTurn {
		return NormalizeDegrees(target)
	}
	return NormalizeDegrees(current + math.Copysign(maxTurn, delta))
}
