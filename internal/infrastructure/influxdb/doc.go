// Package influxdb stores and queries household energy telemetry.
//
// It wraps influxdb-client-go v2. The energy meter writes one "energy"
// point per device state change (power_watts, energy_kwh tagged with
// device_id, device_type and room) and the dashboard chart reads them back
// with a Flux query that sums energy_kwh per window.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // chart uses the static series
//	}
//	defer client.Close()
//
// Writes are batched according to batch_size and flush_interval; failures
// are delivered asynchronously to the callback set with SetOnError.
package influxdb
