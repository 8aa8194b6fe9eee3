package model

import (
	"fmt"
	"math"
)

// GeoPoint is a WGS84 position in decimal degrees.
type GeoPoint struct {
	Lat float64
	Lon float64
}

// Validate reports whether the point lies within the valid coordinate range.
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lon) || math.IsInf(p.Lon, 0) {
		return fmt.Errorf("%w: non-finite coordinate (%v, %v)", ErrInvalidPoint, p.Lat, p.Lon)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidPoint, p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidPoint, p.Lon)
	}
	return nil
}

func (p GeoPoint) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", p.Lat, p.Lon)
}
