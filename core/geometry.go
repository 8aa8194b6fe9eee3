package core

import (
	"math"

	"github.com/signalsfoundry/cargo-rover-sim/model"
)

// EarthRadiusKm is the mean Earth radius used for all spherical
// geometry calculations (kilometres).
const EarthRadiusKm = 6371.0

// EarthRadiusM is EarthRadiusKm in metres.
const EarthRadiusM = EarthRadiusKm * 1000.0

func toRad(deg float64) float64 { return deg * math.Pi / 180.0 }
func toDeg(rad float64) float64 { return rad * 180.0 / math.Pi }

// NormalizeDegrees maps an angle into [0, 360).
func NormalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}

// HeadingDelta returns the signed shortest rotation from one heading to
// another, in (-180, 180]. Positive is clockwise.
func HeadingDelta(from, to float64) float64 {
	d := NormalizeDegrees(to) - NormalizeDegrees(from)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}

// DistanceMeters returns the great-circle (haversine) distance between a
// and b.
func DistanceMeters(a, b model.GeoPoint) float64 {
	lat1, lat2 := toRad(a.Lat), toRad(b.Lat)
	dLat := lat2 - lat1
	dLon := toRad(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusM * math.Asin(math.Sqrt(h))
}

// BearingDegrees returns the initial great-circle bearing from a to b in
// [0, 360), measured clockwise from north. Coincident points yield 0.
func BearingDegrees(a, b model.GeoPoint) float64 {
	if a == b {
		return 0
	}
	lat1, lat2 := toRad(a.Lat), toRad(b.Lat)
	dLon := toRad(b.Lon - a.Lon)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return NormalizeDegrees(toDeg(math.Atan2(y, x)))
}

// Destination returns the point reached by travelling distanceM metres from
// p along the given initial bearing.
func Destination(p model.GeoPoint, bearingDeg, distanceM float64) model.GeoPoint {
	if distanceM == 0 {
		return p
	}
	delta := distanceM / EarthRadiusM
	theta := toRad(bearingDeg)
	lat1 := toRad(p.Lat)
	lon1 := toRad(p.Lon)

	sinLat2 := math.Sin(lat1)*math.Cos(delta) + math.Cos(lat1)*math.Sin(delta)*math.Cos(theta)
	lat2 := math.Asin(sinLat2)
	lon2 := lon1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*sinLat2,
	)

	lon := math.Mod(toDeg(lon2)+540, 360) - 180
	return model.GeoPoint{Lat: toDeg(lat2), Lon: lon}
}
