package model

// VehicleState is the kinematic state of the simulated vehicle. Only the
// physics integrator owns and mutates it.
type VehicleState struct {
	Position   GeoPoint
	HeadingDeg float64 // 0 = north, clockwise
	SpeedKmh   float64

	TargetSpeedKmh   float64
	TargetHeadingDeg float64
}
