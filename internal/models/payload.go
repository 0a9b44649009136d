package models

// ReadingPayload is the wire form of a pushed reading. Fields are pointers so
// an absent field can be told apart from an explicit zero: ingestion never
// rejects a payload, it substitutes defaults instead.
type ReadingPayload struct {
	DeviceID     *string  `json:"deviceId"`
	Voltage      *float64 `json:"voltage"`
	Current      *float64 `json:"current"`
	Power        *float64 `json:"power"`
	Energy       *float64 `json:"energy"`
	Frequency    *float64 `json:"frequency"`
	PowerFactor  *float64 `json:"powerFactor"`
	DeviceStatus *string  `json:"deviceStatus"`
	SensorState  *int     `json:"sensorState"`
	PulseCount   *int     `json:"pulseCount"`
}

// Reading materializes the payload, filling absent fields with their
// defaults. The timestamp is left zero: the server assigns it at ingest.
func (p *ReadingPayload) Reading() *Reading {
	r := &Reading{
		DeviceID:     DefaultDeviceID,
		Frequency:    DefaultFrequency,
		PowerFactor:  DefaultPowerFactor,
		DeviceStatus: StatusStandby,
	}
	if p.DeviceID != nil && *p.DeviceID != "" {
		r.DeviceID = *p.DeviceID
	}
	if p.Voltage != nil {
		r.Voltage = *p.Voltage
	}
	if p.Current != nil {
		r.Current = *p.Current
	}
	if p.Power != nil {
		r.Power = *p.Power
	}
	if p.Energy != nil {
		r.Energy = *p.Energy
	}
	if p.Frequency != nil {
		r.Frequency = *p.Frequency
	}
	if p.PowerFactor != nil {
		r.PowerFactor = *p.PowerFactor
	}
	if p.DeviceStatus != nil && *p.DeviceStatus != "" {
		r.DeviceStatus = DeviceStatus(*p.DeviceStatus)
	}
	if p.SensorState != nil {
		r.SensorState = *p.SensorState
	}
	if p.PulseCount != nil {
		r.PulseCount = *p.PulseCount
	}
	return r
}
