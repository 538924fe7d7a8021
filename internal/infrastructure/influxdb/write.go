package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the energy meter.
const (
	MeasurementEnergy = "energy"
	MeasurementState  = "device_state"
)

// EnergySample is one power reading for a device.
type EnergySample struct {
	DeviceID   string
	DeviceType string
	Room       string
	PowerWatts float64
	// EnergyKWh is the energy used since the previous sample; zero is
	// omitted from the point.
	EnergyKWh float64
	Time      time.Time
}

// WriteEnergy records a power reading. The write is batched.
//
//	client.WriteEnergy(influxdb.EnergySample{DeviceID: "dev_1", PowerWatts: 48})
func (c *Client) WriteEnergy(s EnergySample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(energyPoint(s))
}

func energyPoint(s EnergySample) *write.Point {
	fields := map[string]interface{}{
		"power_watts": s.PowerWatts,
	}
	if s.EnergyKWh > 0 {
		fields["energy_kwh"] = s.EnergyKWh
	}
	tags := map[string]string{"device_id": s.DeviceID}
	if s.DeviceType != "" {
		tags["device_type"] = s.DeviceType
	}
	if s.Room != "" {
		tags["room"] = s.Room
	}
	ts := s.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(MeasurementEnergy, tags, fields, ts)
}

// WriteDeviceState records an on/off transition with the numeric value
// when the device has one.
func (c *Client) WriteDeviceState(deviceID string, isOn bool, value *float64) {
	if !c.IsConnected() {
		return
	}
	fields := map[string]interface{}{"is_on": isOn}
	if value != nil {
		fields["value"] = *value
	}
	c.writeAPI.WritePoint(write.NewPoint(MeasurementState, map[string]string{"device_id": deviceID}, fields, time.Now()))
}

// WritePoint writes a custom point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
