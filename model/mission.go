package model

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidPoint indicates a coordinate outside the WGS84 range.
	ErrInvalidPoint = errors.New("invalid geo point")
	// ErrInvalidMission indicates a structurally unusable mission.
	ErrInvalidMission = errors.New("invalid mission")
	// ErrNoSpeedLimit is returned when no speed limit applies to a segment.
	ErrNoSpeedLimit = errors.New("no speed limit defined")
)

// SpeedLimit caps the speed on segment Segment, the leg from waypoint
// Segment to waypoint Segment+1.
type SpeedLimit struct {
	Segment  int
	LimitKmh float64
}

// Mission is a delivery route. Waypoints[0] is the origin (usually equal to
// Home); guidance targets start at index 1.
type Mission struct {
	Home        GeoPoint
	Waypoints   []GeoPoint
	SpeedLimits []SpeedLimit
	Armed       bool
}

// Clone returns a deep copy of the mission.
func (m Mission) Clone() Mission {
	out := Mission{Home: m.Home, Armed: m.Armed}
	if m.Waypoints != nil {
		out.Waypoints = append([]GeoPoint(nil), m.Waypoints...)
	}
	if m.SpeedLimits != nil {
		out.SpeedLimits = append([]SpeedLimit(nil), m.SpeedLimits...)
	}
	return out
}

// Segments returns the number of legs between consecutive waypoints.
func (m Mission) Segments() int {
	if len(m.Waypoints) < 2 {
		return 0
	}
	return len(m.Waypoints) - 1
}

// SpeedLimitFor returns the limit for segment i. When segment i has no entry
// the entry with the greatest index below i applies.
func (m Mission) SpeedLimitFor(i int) (float64, error) {
	best := -1
	limit := 0.0
	for _, sl := range m.SpeedLimits {
		if sl.Segment <= i && sl.Segment > best {
			best = sl.Segment
			limit = sl.LimitKmh
		}
	}
	if best < 0 {
		return 0, fmt.Errorf("%w: segment %d", ErrNoSpeedLimit, i)
	}
	return limit, nil
}

// Validate checks the mission is executable: valid coordinates, unique
// non-negative segment indices with positive limits, and a limit that
// resolves for segment 0 whenever there is a segment to drive.
func (m Mission) Validate() error {
	if err := m.Home.Validate(); err != nil {
		return fmt.Errorf("%w: home: %v", ErrInvalidMission, err)
	}
	if len(m.Waypoints) == 0 {
		return fmt.Errorf("%w: no waypoints", ErrInvalidMission)
	}
	for i, wp := range m.Waypoints {
		if err := wp.Validate(); err != nil {
			return fmt.Errorf("%w: waypoint %d: %v", ErrInvalidMission, i, err)
		}
	}

	seen := make(map[int]struct{}, len(m.SpeedLimits))
	for _, sl := range m.SpeedLimits {
		if sl.Segment < 0 {
			return fmt.Errorf("%w: negative speed limit segment %d", ErrInvalidMission, sl.Segment)
		}
		if _, dup := seen[sl.Segment]; dup {
			return fmt.Errorf("%w: duplicate speed limit for segment %d", ErrInvalidMission, sl.Segment)
		}
		seen[sl.Segment] = struct{}{}
		if math.IsNaN(sl.LimitKmh) || math.IsInf(sl.LimitKmh, 0) || sl.LimitKmh <= 0 {
			return fmt.Errorf("%w: speed limit %v for segment %d", ErrInvalidMission, sl.LimitKmh, sl.Segment)
		}
	}

	if m.Segments() > 0 {
		if _, err := m.SpeedLimitFor(0); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidMission, err)
		}
	}
	return nil
}
