package influxdb

import (
	"context"
	"fmt"
	"time"
)

// UsageBucket is the energy summed over one window.
type UsageBucket struct {
	Start time.Time
	KWh   float64
}

// EnergyQuery returns the Flux query summing energy_kwh across all devices
// per window over the trailing span.
func EnergyQuery(bucket string, span, window time.Duration) string {
	return fmt.Sprintf(`from(bucket: %q)
  |> range(start: -%s)
  |> filter(fn: (r) => r._measurement == %q and r._field == "energy_kwh")
  |> group()
  |> aggregateWindow(every: %s, fn: sum, createEmpty: true, timeSrc: "_start")
  |> fill(value: 0.0)`, bucket, fluxDuration(span), MeasurementEnergy, fluxDuration(window))
}

// fluxDuration renders d in whole minutes, the smallest unit the chart uses.
func fluxDuration(d time.Duration) string {
	m := int64(d / time.Minute)
	if m < 1 {
		m = 1
	}
	return fmt.Sprintf("%dm", m)
}

// QueryEnergy runs EnergyQuery and returns one bucket per window in time
// order.
//
// Parameters:
//   - ctx: Bounds the Flux query
//   - span: How far back to read, e.g. 24h for the dashboard chart
//   - window: Aggregation window, e.g. 4h
//
// Returns:
//   - []UsageBucket: Summed kWh per window
//   - error: ErrNotConnected, or ErrQueryFailed wrapping the Flux error
func (c *Client) QueryEnergy(ctx context.Context, span, window time.Duration) ([]UsageBucket, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	result, err := c.queryAPI.Query(ctx, EnergyQuery(c.cfg.Bucket, span, window))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer result.Close() //nolint:errcheck // read-only result

	var buckets []UsageBucket
	for result.Next() {
		rec := result.Record()
		kwh, _ := toFloat(rec.Value())
		buckets = append(buckets, UsageBucket{Start: rec.Time(), KWh: kwh})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return buckets, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
