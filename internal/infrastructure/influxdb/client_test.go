package influxdb

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mblarson/omnihome/internal/infrastructure/config"
)

// testConfig matches the development InfluxDB in docker-compose.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "omnihome-dev-token",
		Org:           "omnihome",
		Bucket:        "energy",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// connectOrSkip skips the test unless a server is reachable.
func connectOrSkip(t *testing.T) *Client {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		t.Skip("set RUN_INTEGRATION to run against a local InfluxDB")
	}
	client, err := Connect(context.Background(), testConfig())
	if err != nil {
		t.Skipf("InfluxDB not available: %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // test cleanup
	return client
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := Connect(context.Background(), cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	_, err := Connect(context.Background(), cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	if c.IsConnected() {
		t.Error("nil client reports connected")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client = %v", err)
	}
	if _, err := c.QueryEnergy(context.Background(), time.Hour, time.Minute); !errors.Is(err, ErrNotConnected) {
		t.Errorf("QueryEnergy() error = %v, want ErrNotConnected", err)
	}
}

func TestClosedClientIgnoresWrites(t *testing.T) {
	c := &Client{}
	c.WriteEnergy(EnergySample{DeviceID: "dev_1", PowerWatts: 10})
	c.WriteDeviceState("dev_1", true, nil)
	c.WritePoint("custom", nil, map[string]interface{}{"v": 1})
	c.Flush()
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestEnergyPoint(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := energyPoint(EnergySample{
		DeviceID:   "dev_1",
		DeviceType: "LIGHT",
		Room:       "Living Room",
		PowerWatts: 48,
		EnergyKWh:  0.012,
		Time:       ts,
	})

	if p.Name() != MeasurementEnergy {
		t.Errorf("Name() = %q", p.Name())
	}
	if !p.Time().Equal(ts) {
		t.Errorf("Time() = %v, want %v", p.Time(), ts)
	}
	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["device_id"] != "dev_1" || tags["device_type"] != "LIGHT" || tags["room"] != "Living Room" {
		t.Errorf("tags = %v", tags)
	}
	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["power_watts"] != 48.0 || fields["energy_kwh"] != 0.012 {
		t.Errorf("fields = %v", fields)
	}
}

func TestEnergyPoint_OmitsZeroEnergy(t *testing.T) {
	p := energyPoint(EnergySample{DeviceID: "dev_2"})
	for _, f := range p.FieldList() {
		if f.Key == "energy_kwh" {
			t.Error("energy_kwh written for a zero sample")
		}
	}
	for _, tag := range p.TagList() {
		if tag.Key == "room" || tag.Key == "device_type" {
			t.Errorf("empty tag %q written", tag.Key)
		}
	}
	if p.Time().IsZero() {
		t.Error("zero sample time not defaulted")
	}
}

func TestEnergyQuery(t *testing.T) {
	q := EnergyQuery("energy", 24*time.Hour, 4*time.Hour)
	for _, want := range []string{
		`from(bucket: "energy")`,
		"range(start: -1440m)",
		`r._measurement == "energy" and r._field == "energy_kwh"`,
		"aggregateWindow(every: 240m, fn: sum, createEmpty: true",
	} {
		if !strings.Contains(q, want) {
			t.Errorf("query missing %q:\n%s", want, q)
		}
	}
}

func TestFluxDuration_Minimum(t *testing.T) {
	if got := fluxDuration(10 * time.Second); got != "1m" {
		t.Errorf("fluxDuration(10s) = %q, want 1m", got)
	}
}

func TestWriteAndQueryEnergy(t *testing.T) {
	client := connectOrSkip(t)

	client.WriteEnergy(EnergySample{DeviceID: "test_dev", DeviceType: "OUTLET", PowerWatts: 100, EnergyKWh: 0.5})
	client.Flush()

	buckets, err := client.QueryEnergy(context.Background(), time.Hour, 15*time.Minute)
	if err != nil {
		t.Fatalf("QueryEnergy() error = %v", err)
	}
	if len(buckets) == 0 {
		t.Fatal("QueryEnergy() returned no buckets")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
