package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/cargo-rover-sim/model"
)

// ErrInvalidRecord is returned when a telemetry document is missing fields
// or carries values outside their range.
var ErrInvalidRecord = errors.New("invalid telemetry record")

// Record is one sample of the vehicle's kinematic state as published to
// external consumers.
type Record struct {
	VehicleID    string
	Timestamp    time.Time
	Position     model.GeoPoint
	SpeedKmh     float64
	DirectionDeg float64
}

// wireRecord is the JSON document layout. The timestamp is Unix seconds
// with a fractional part.
type wireRecord struct {
	VehicleID    string   `json:"vehicle_id,omitempty"`
	Timestamp    *float64 `json:"timestamp"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	SpeedKmh     *float64 `json:"speed_kmh"`
	DirectionDeg *float64 `json:"direction_deg"`
}

// MarshalJSON implements json.Marshaler.
func (r Record) MarshalJSON() ([]byte, error) {
	ts := float64(r.Timestamp.UnixNano()) / 1e9
	lat, lon := r.Position.Lat, r.Position.Lon
	speed, dir := r.SpeedKmh, r.DirectionDeg
	return json.Marshal(wireRecord{
		VehicleID:    r.VehicleID,
		Timestamp:    &ts,
		Latitude:     &lat,
		Longitude:    &lon,
		SpeedKmh:     &speed,
		DirectionDeg: &dir,
	})
}

// UnmarshalJSON implements json.Unmarshaler. All five kinematic fields are
// required.
func (r *Record) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	for name, v := range map[string]*float64{
		"timestamp":     w.Timestamp,
		"latitude":      w.Latitude,
		"longitude":     w.Longitude,
		"speed_kmh":     w.SpeedKmh,
		"direction_deg": w.DirectionDeg,
	} {
		if v == nil {
			return fmt.Errorf("%w: missing %s", ErrInvalidRecord, name)
		}
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			return fmt.Errorf("%w: non-finite %s", ErrInvalidRecord, name)
		}
	}

	secs, frac := math.Modf(*w.Timestamp)
	out := Record{
		VehicleID:    w.VehicleID,
		Timestamp:    time.Unix(int64(secs), int64(math.Round(frac*1e9))).UTC(),
		Position:     model.GeoPoint{Lat: *w.Latitude, Lon: *w.Longitude},
		SpeedKmh:     *w.SpeedKmh,
		DirectionDeg: *w.DirectionDeg,
	}
	if err := out.Position.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if out.SpeedKmh < 0 {
		return fmt.Errorf("%w: negative speed", ErrInvalidRecord)
	}
	*r = out
	return nil
}

// Encode renders r as a JSON document.
func Encode(r Record) ([]byte, error) { return json.Marshal(r) }

// Decode parses a JSON document produced by Encode.
func Decode(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}
