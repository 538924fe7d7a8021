// Package energy supplies the dashboard usage chart and records device
// power draw.
//
// A Source returns the chart series. StaticSource is the canned 24 hour
// curve; InfluxSource reads real consumption from InfluxDB and falls back
// to the static curve when the database is disabled, unreachable or has no
// data yet. Meter listens to device store changes and writes per-device
// power and energy samples for InfluxSource to read back.
package energy
