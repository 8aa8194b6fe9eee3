package core

import (
	"math"
	"testing"

	"github.com/signalsfoundry/cargo-rover-sim/model"
)

func TestDistanceMeters_KnownPair(t *testing.T) {
	// One degree of latitude along a meridian.
	a := model.GeoPoint{Lat: 0, Lon: 0}
	b := model.GeoPoint{Lat: 1, Lon: 0}
	want := EarthRadiusM * math.Pi / 180
	if got := DistanceMeters(a, b); math.Abs(got-want) > 1e-6 {
		t.Fatalf("DistanceMeters = %v, want %v", got, want)
	}
	if got := DistanceMeters(a, a); got != 0 {
		t.Fatalf("DistanceMeters(a, a) = %v, want 0", got)
	}
}

func TestBearingDegrees_CardinalDirections(t *testing.T) {
	origin := model.GeoPoint{Lat: 10, Lon: 10}
	cases := []struct {
		name string
		to   model.GeoPoint
		want float64
	}{
		{"north", model.GeoPoint{Lat: 11, Lon: 10}, 0},
		{"south", model.GeoPoint{Lat: 9, Lon: 10}, 180},
		{"east", model.GeoPoint{Lat: 10, Lon: 10.001}, 90},
		{"west", model.GeoPoint{Lat: 10, Lon: 9.999}, 270},
	}
	for _, tc := range cases {
		got := BearingDegrees(origin, tc.to)
		if math.Abs(HeadingDelta(got, tc.want)) > 0.01 {
			t.Fatalf("%s: bearing = %v, want %v", tc.name, got, tc.want)
		}
		if got < 0 || got >= 360 {
			t.Fatalf("%s: bearing %v outside [0, 360)", tc.name, got)
		}
	}
}

func TestDestinationInvertsDistanceAndBearing(t *testing.T) {
	start := model.GeoPoint{Lat: 59.939032, Lon: 30.315827}
	for _, bearing := range []float64{0, 45, 135, 200, 315} {
		end := Destination(start, bearing, 250)
		if d := DistanceMeters(start, end); math.Abs(d-250) > 0.01 {
			t.Fatalf("bearing %v: distance = %v, want 250", bearing, d)
		}
		if b := BearingDegrees(start, end); math.Abs(HeadingDelta(b, bearing)) > 0.01 {
			t.Fatalf("bearing %v: recovered bearing = %v", bearing, b)
		}
	}
}

func TestHeadingDelta_ShortestArc(t *testing.T) {
	cases := []struct{ from, to, want float64 }{
		{350, 10, 20},
		{10, 350, -20},
		{0, 180, 180},
		{90, 90, 0},
		{-90, 90, 180},
	}
	for _, tc := range cases {
		if got := HeadingDelta(tc.from, tc.to); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("HeadingDelta(%v, %v) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestNormalizeDegrees(t *testing.T) {
	for in, want := range map[float64]float64{-90: 270, 360: 0, 725: 5, 0: 0} {
		if got := NormalizeDegrees(in); math.Abs(got-want) > 1e-9 {
			t.Fatalf("NormalizeDegrees(%v) = %v, want %v", in, got, want)
		}
	}
}
