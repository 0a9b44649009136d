package models

import (
	"fmt"
	"time"
)

// DeviceStatus reports what the meter thinks the monitored load is doing.
type DeviceStatus string

const (
	StatusActive   DeviceStatus = "ACTIVE"
	StatusStandby  DeviceStatus = "STANDBY"
	StatusInactive DeviceStatus = "INACTIVE"
)

// DefaultDeviceID is the sentinel meter id used when a payload names no device.
const DefaultDeviceID = "ESP32_001"

// Defaults substituted for absent payload fields (fail-open ingestion).
const (
	DefaultFrequency   = 50.0
	DefaultPowerFactor = 0.95
)

// Reading is one time-stamped measurement from a household energy meter.
// Readings are immutable once written; the energy field is a cumulative kWh
// counter that only a meter reset can make go backwards.
type Reading struct {
	DeviceID     string       `json:"deviceId"`
	Timestamp    time.Time    `json:"timestamp"`
	Voltage      float64      `json:"voltage"`
	Current      float64      `json:"current"`
	Power        float64      `json:"power"`
	Energy       float64      `json:"energy"`
	Frequency    float64      `json:"frequency"`
	PowerFactor  float64      `json:"powerFactor"`
	DeviceStatus DeviceStatus `json:"deviceStatus"`
	SensorState  int          `json:"sensorState"`
	PulseCount   int          `json:"pulseCount"`
}

// NewReading creates a reading for the given meter with the current timestamp.
func NewReading(deviceID string, voltage, current, power, energy float64) *Reading {
	return &Reading{
		DeviceID:     deviceID,
		Timestamp:    time.Now(),
		Voltage:      voltage,
		Current:      current,
		Power:        power,
		Energy:       energy,
		Frequency:    DefaultFrequency,
		PowerFactor:  DefaultPowerFactor,
		DeviceStatus: StatusActive,
	}
}

// String returns the reading as a log-friendly string.
func (r *Reading) String() string {
	return fmt.Sprintf("DeviceID: %s, Timestamp: %s, Voltage: %.1fV, Current: %.2fA, Power: %.1fW, Energy: %.3fkWh",
		r.DeviceID,
		r.Timestamp.Format(time.RFC3339),
		r.Voltage,
		r.Current,
		r.Power,
		r.Energy)
}

// Copy returns a deep copy of the Reading.
func (r *Reading) Copy() *Reading {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
