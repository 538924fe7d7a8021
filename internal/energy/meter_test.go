package energy

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/mblarson/omnihome/internal/device"
	"github.com/mblarson/omnihome/internal/infrastructure/influxdb"
)

type recordingWriter struct {
	mu      sync.Mutex
	samples []influxdb.EnergySample
}

func (r *recordingWriter) WriteEnergy(s influxdb.EnergySample) {
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.mu.Unlock()
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMeter() (*Meter, *recordingWriter, *fakeClock) {
	w := &recordingWriter{}
	clock := &fakeClock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	m := NewMeter(w)
	m.now = clock.now
	return m, w, clock
}

func TestPower(t *testing.T) {
	tests := []struct {
		name string
		d    device.Device
		want float64
	}{
		{"light full", device.Device{Type: device.TypeLight, IsOn: true, Value: 100.0}, 60},
		{"light dimmed", device.Device{Type: device.TypeLight, IsOn: true, Value: 50.0}, 30},
		{"light no level", device.Device{Type: device.TypeLight, IsOn: true}, 60},
		{"light off", device.Device{Type: device.TypeLight, Value: 80.0}, 0},
		{"thermostat on", device.Device{Type: device.TypeThermostat, IsOn: true, Value: 22.0}, 1500},
		{"camera", device.Device{Type: device.TypeCamera, IsOn: true}, 6},
		{"speaker off", device.Device{Type: device.TypeSpeaker}, 0},
		{"outlet", device.Device{Type: device.TypeOutlet, IsOn: true}, 100},
		{"lock unlocked", device.Device{Type: device.TypeLock}, 0.5},
		{"curtain", device.Device{Type: device.TypeCurtain, IsOn: true, Value: 40.0}, 2},
		{"unknown type", device.Device{Type: "FRIDGE", IsOn: true}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Power(tt.d); got != tt.want {
				t.Errorf("Power() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMeter_IntegratesEnergy(t *testing.T) {
	m, w, clock := newTestMeter()
	lamp := device.Device{ID: "dev_1", Type: device.TypeLight, Room: "Living Room", IsOn: true, Value: 100.0}

	m.Observe(device.Change{Kind: device.ChangeUpdated, Device: &lamp})
	clock.advance(30 * time.Minute)
	lamp.IsOn = false
	m.Observe(device.Change{Kind: device.ChangeUpdated, Device: &lamp})

	if len(w.samples) != 2 {
		t.Fatalf("samples = %d, want 2", len(w.samples))
	}
	first, second := w.samples[0], w.samples[1]
	if first.PowerWatts != 60 || first.EnergyKWh != 0 {
		t.Errorf("first sample = %+v", first)
	}
	if first.DeviceType != "LIGHT" || first.Room != "Living Room" {
		t.Errorf("first sample tags = %+v", first)
	}
	if second.PowerWatts != 0 || math.Abs(second.EnergyKWh-0.03) > 1e-9 {
		t.Errorf("second sample = %+v, want 0 W and 0.03 kWh", second)
	}
}

func TestMeter_SkipsUnchangedDraw(t *testing.T) {
	m, w, clock := newTestMeter()
	cam := device.Device{ID: "dev_6", Type: device.TypeCamera, IsOn: true}

	m.Observe(device.Change{Kind: device.ChangeUpdated, Device: &cam})
	clock.advance(10 * time.Second)
	m.Observe(device.Change{Kind: device.ChangeUpdated, Device: &cam})
	if len(w.samples) != 1 {
		t.Fatalf("samples = %d, want 1", len(w.samples))
	}

	clock.advance(2 * time.Minute)
	m.Observe(device.Change{Kind: device.ChangeUpdated, Device: &cam})
	if len(w.samples) != 2 {
		t.Fatalf("samples = %d, want 2", len(w.samples))
	}
	// 6 W over the full 130 s since the first sample.
	want := 6 * (130 * time.Second).Hours() / 1000
	if got := w.samples[1].EnergyKWh; math.Abs(got-want) > 1e-12 {
		t.Errorf("EnergyKWh = %v, want %v", got, want)
	}
}

func TestMeter_ReplacedAndDeleted(t *testing.T) {
	m, w, clock := newTestMeter()
	list := device.InitialDevices()

	m.Observe(device.Change{Kind: device.ChangeReplaced, Devices: list})
	if len(w.samples) != len(list) {
		t.Fatalf("samples = %d, want %d", len(w.samples), len(list))
	}

	clock.advance(time.Hour)
	m.Observe(device.Change{Kind: device.ChangeDeleted, Device: &list[2]})
	last := w.samples[len(w.samples)-1]
	if last.DeviceID != "dev_3" || last.PowerWatts != 0 || last.EnergyKWh != 1.5 {
		t.Errorf("delete sample = %+v, want dev_3 with 1.5 kWh", last)
	}

	// Deleting again is a no-op.
	m.Observe(device.Change{Kind: device.ChangeDeleted, Device: &list[2]})
	if w.samples[len(w.samples)-1] != last {
		t.Error("second delete wrote a sample")
	}

	// A replace without dev_1 forgets it.
	m.Observe(device.Change{Kind: device.ChangeReplaced, Devices: list[1:2]})
	m.mu.Lock()
	_, tracked := m.last["dev_1"]
	m.mu.Unlock()
	if tracked {
		t.Error("dev_1 still tracked after replace")
	}
}
