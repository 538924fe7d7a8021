package energy

import (
	"context"
	"errors"
	"time"

	"github.com/mblarson/omnihome/internal/infrastructure/influxdb"
)

// Point is one sample on the usage chart.
type Point struct {
	Time  string  `json:"time"`
	Usage float64 `json:"usage"`
}

// Source produces the usage chart series.
type Source interface {
	Usage(ctx context.Context) ([]Point, error)
}

// StaticSeries is the canned daily curve in kWh.
func StaticSeries() []Point {
	return []Point{
		{Time: "00:00", Usage: 0.4},
		{Time: "04:00", Usage: 0.3},
		{Time: "08:00", Usage: 1.2},
		{Time: "12:00", Usage: 0.9},
		{Time: "16:00", Usage: 1.5},
		{Time: "20:00", Usage: 2.1},
		{Time: "23:59", Usage: 0.8},
	}
}

// StaticSource always returns StaticSeries.
type StaticSource struct{}

// Usage implements Source.
func (StaticSource) Usage(context.Context) ([]Point, error) {
	return StaticSeries(), nil
}

// Querier reads windowed energy totals. *influxdb.Client implements it.
type Querier interface {
	QueryEnergy(ctx context.Context, span, window time.Duration) ([]influxdb.UsageBucket, error)
}

// Logger is the logging interface used by the energy package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Default chart shape: the last day in four hour windows.
const (
	DefaultSpan   = 24 * time.Hour
	DefaultWindow = 4 * time.Hour
)

// InfluxSource reads the chart from InfluxDB.
type InfluxSource struct {
	querier  Querier
	span     time.Duration
	window   time.Duration
	location *time.Location
	logger   Logger
}

// NewInfluxSource creates a source over q. A nil q always falls back to the
// static series. loc formats the window labels and defaults to time.Local.
func NewInfluxSource(q Querier, loc *time.Location, logger Logger) *InfluxSource {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &InfluxSource{
		querier:  q,
		span:     DefaultSpan,
		window:   DefaultWindow,
		location: loc,
		logger:   logger,
	}
}

// Usage returns the measured series, or StaticSeries when nothing has been
// measured. Query failures are logged and never returned.
func (s *InfluxSource) Usage(ctx context.Context) ([]Point, error) {
	if s.querier == nil {
		return StaticSeries(), nil
	}

	buckets, err := s.querier.QueryEnergy(ctx, s.span, s.window)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, influxdb.ErrNotConnected) {
			s.logger.Warn("energy query failed, using static series", "error", err)
		}
		return StaticSeries(), nil
	}

	points := make([]Point, 0, len(buckets))
	var total float64
	for _, b := range buckets {
		total += b.KWh
		points = append(points, Point{
			Time:  b.Start.In(s.location).Format("15:04"),
			Usage: round2(b.KWh),
		})
	}
	if total <= 0 {
		s.logger.Debug("no energy recorded yet, using static series")
		return StaticSeries(), nil
	}
	return points, nil
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}
