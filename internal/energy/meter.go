package energy

import (
	"sync"
	"time"

	"github.com/mblarson/omnihome/internal/device"
	"github.com/mblarson/omnihome/internal/infrastructure/influxdb"
)

// Writer records power samples. *influxdb.Client implements it.
type Writer interface {
	WriteEnergy(s influxdb.EnergySample)
}

// Rated draw in watts for a device that is on at full level.
var ratedWatts = map[device.DeviceType]float64{
	device.TypeLight:      60,
	device.TypeThermostat: 1500,
	device.TypeCamera:     6,
	device.TypeSpeaker:    15,
	device.TypeOutlet:     100,
	device.TypeLock:       0.5,
	device.TypeCurtain:    2,
}

// Power estimates the current draw of d in watts. Lights scale with
// brightness; everything else draws its rated power while on. Locks draw
// standby power in either state.
func Power(d device.Device) float64 {
	rated := ratedWatts[d.Type]
	switch d.Type {
	case device.TypeLock:
		return rated
	case device.TypeLight:
		if !d.IsOn {
			return 0
		}
		if level, ok := d.NumericValue(); ok && level > 0 && level <= 100 {
			return rated * level / 100
		}
		return rated
	default:
		if !d.IsOn {
			return 0
		}
		return rated
	}
}

// minSampleGap suppresses repeat samples for an unchanged draw.
const minSampleGap = time.Minute

type reading struct {
	watts float64
	at    time.Time
}

// Meter integrates device power over time and writes a sample on every
// store change. Energy for a sample is the previous draw multiplied by the
// time since the previous sample.
type Meter struct {
	writer Writer
	now    func() time.Time

	mu   sync.Mutex
	last map[string]reading
}

// NewMeter creates a meter writing to w.
func NewMeter(w Writer) *Meter {
	return &Meter{
		writer: w,
		now:    time.Now,
		last:   make(map[string]reading),
	}
}

// Observe handles one store change. Pass it to device.Store.Subscribe.
func (m *Meter) Observe(c device.Change) {
	switch c.Kind {
	case device.ChangeReplaced:
		seen := make(map[string]bool, len(c.Devices))
		for _, d := range c.Devices {
			seen[d.ID] = true
			m.record(d)
		}
		m.mu.Lock()
		for id := range m.last {
			if !seen[id] {
				delete(m.last, id)
			}
		}
		m.mu.Unlock()
	case device.ChangeDeleted:
		if c.Device != nil {
			m.flush(*c.Device)
		}
	default:
		if c.Device != nil {
			m.record(*c.Device)
		}
	}
}

// record writes the sample for d's new state.
func (m *Meter) record(d device.Device) {
	now := m.now()
	watts := Power(d)

	m.mu.Lock()
	prev, seen := m.last[d.ID]
	if seen && prev.watts == watts && now.Sub(prev.at) < minSampleGap {
		m.mu.Unlock()
		return
	}
	m.last[d.ID] = reading{watts: watts, at: now}
	m.mu.Unlock()

	m.writer.WriteEnergy(influxdb.EnergySample{
		DeviceID:   d.ID,
		DeviceType: string(d.Type),
		Room:       d.Room,
		PowerWatts: watts,
		EnergyKWh:  energySince(prev, seen, now),
		Time:       now,
	})
}

// flush closes out a removed device with a zero-power sample.
func (m *Meter) flush(d device.Device) {
	now := m.now()

	m.mu.Lock()
	prev, seen := m.last[d.ID]
	delete(m.last, d.ID)
	m.mu.Unlock()

	if !seen {
		return
	}
	m.writer.WriteEnergy(influxdb.EnergySample{
		DeviceID:   d.ID,
		DeviceType: string(d.Type),
		Room:       d.Room,
		EnergyKWh:  energySince(prev, true, now),
		Time:       now,
	})
}

func energySince(prev reading, seen bool, now time.Time) float64 {
	if !seen || !now.After(prev.at) {
		return 0
	}
	return prev.watts * now.Sub(prev.at).Hours() / 1000
}
