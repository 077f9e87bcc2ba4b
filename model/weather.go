package model

// This module defines implementation neutral weather samples as they are
// handed to the display by the indoor sensor and the outdoor cache.  A value
// that is not available is carried as NaN and must never be shown as zero.

import (
	"encoding/json"
	"math"
	"time"
)

// Horizons lists, in ascending order, the forecast horizons in hours that the
// outdoor cache may hold
var Horizons = []int{1, 3, 6, 12, 24, 48, 72, 96}

// NaN is the marker for an unavailable reading
func NaN() float64 {
	return math.NaN()
}

// Valid is true when a reading is present
func Valid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// IndoorSample is the most recent reading of the local sensors
type IndoorSample struct {
	TemperatureC float64
	Humidity     float64
	PressurePa   float64
	DewPointC    float64
	AltitudeM    float64
	CollectedAt  time.Time
}

// EmptyIndoor returns a sample with every reading unavailable
func EmptyIndoor() IndoorSample {
	return IndoorSample{
		TemperatureC: NaN(),
		Humidity:     NaN(),
		PressurePa:   NaN(),
		DewPointC:    NaN(),
		AltitudeM:    NaN(),
	}
}

// OutdoorSnapshot is either the current outdoor conditions or the forecast for
// one of the Horizons
type OutdoorSnapshot struct {
	TemperatureC float64
	Humidity     float64
	PressureHpa  float64
	PressureMmHg float64
	AltitudeM    float64
	WindSpeed    float64
}

// EmptyOutdoor returns a snapshot with every reading unavailable
func EmptyOutdoor() OutdoorSnapshot {
	return OutdoorSnapshot{
		TemperatureC: NaN(),
		Humidity:     NaN(),
		PressureHpa:  NaN(),
		PressureMmHg: NaN(),
		AltitudeM:    NaN(),
		WindSpeed:    NaN(),
	}
}

// HasData is true when any of the primary readings is present
func (snap OutdoorSnapshot) HasData() bool {
	return Valid(snap.TemperatureC) || Valid(snap.Humidity) || Valid(snap.PressureHpa)
}

func reading(v float64) *float64 {
	if !Valid(v) {
		return nil
	}
	return &v
}

// MarshalJSON emits unavailable readings as null, encoding/json refuses NaN
func (snap OutdoorSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		TemperatureC *float64 `json:"temperatureC"`
		Humidity     *float64 `json:"humidity"`
		PressureHpa  *float64 `json:"pressureHpa"`
		PressureMmHg *float64 `json:"pressureMmHg"`
		AltitudeM    *float64 `json:"altitudeM"`
		WindSpeed    *float64 `json:"windSpeed"`
	}{
		TemperatureC: reading(snap.TemperatureC),
		Humidity:     reading(snap.Humidity),
		PressureHpa:  reading(snap.PressureHpa),
		PressureMmHg: reading(snap.PressureMmHg),
		AltitudeM:    reading(snap.AltitudeM),
		WindSpeed:    reading(snap.WindSpeed),
	})
}
