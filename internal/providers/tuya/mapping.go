package tuya

import (
	"math"

	"github.com/mblarson/omnihome/internal/device"
)

// IDPrefix marks device ids imported from Tuya.
const IDPrefix = "tuya_"

var categoryTypes = map[string]device.DeviceType{
	"dj":    device.TypeLight,
	"dd":    device.TypeLight,
	"xdd":   device.TypeLight,
	"fwd":   device.TypeLight,
	"dc":    device.TypeLight,
	"tgq":   device.TypeLight,
	"kg":    device.TypeOutlet,
	"cz":    device.TypeOutlet,
	"pc":    device.TypeOutlet,
	"tdq":   device.TypeOutlet,
	"wk":    device.TypeThermostat,
	"wkf":   device.TypeThermostat,
	"ms":    device.TypeLock,
	"sp":    device.TypeCamera,
	"cl":    device.TypeCurtain,
	"clkg":  device.TypeCurtain,
	"wnykq": device.TypeSpeaker,
	"sgbj":  device.TypeSpeaker,
	"yyj":   device.TypeSpeaker,
}

// TypeForCategory maps a Tuya category code. Unknown categories are
// treated as switchable outlets.
func TypeForCategory(category string) device.DeviceType {
	if t, ok := categoryTypes[category]; ok {
		return t
	}
	return device.TypeOutlet
}

type statusSet map[string]any

func newStatusSet(status []Status) statusSet {
	s := make(statusSet, len(status))
	for _, st := range status {
		s[st.Code] = st.Value
	}
	return s
}

func (s statusSet) boolean(codes ...string) (bool, bool) {
	for _, c := range codes {
		if b, ok := s[c].(bool); ok {
			return b, true
		}
	}
	return false, false
}

func (s statusSet) number(codes ...string) (float64, string, bool) {
	for _, c := range codes {
		if f, ok := device.Number(s[c]); ok {
			return f, c, true
		}
	}
	return 0, "", false
}

// MapDevice converts a cloud device into a device record.
func MapDevice(td Device) device.Device {
	d := device.Device{
		ID:         IDPrefix + td.ID,
		Name:       td.Name,
		Type:       TypeForCategory(td.Category),
		Provider:   device.ProviderTuya,
		ExternalID: td.ID,
	}
	if d.Name == "" {
		d.Name = td.ProductName
	}
	if d.Name == "" {
		d.Name = td.ID
	}

	st := newStatusSet(td.Status)
	switch d.Type {
	case device.TypeLight:
		d.IsOn, _ = st.boolean("switch_led", "switch", "switch_1")
		d.Unit = "%"
		d.Value = 0.0
		if v, code, ok := st.number("bright_value_v2", "bright_value"); ok {
			d.Value = brightnessPercent(code, v)
		} else if d.IsOn {
			d.Value = 100.0
		}

	case device.TypeThermostat:
		d.IsOn, _ = st.boolean("switch", "switch_1")
		d.Unit = "°C"
		if v, _, ok := st.number("temp_set", "temp_current"); ok {
			if v > 100 {
				v /= 10
			}
			d.Value = v
		}

	case device.TypeLock:
		d.IsOn = true
		if open, ok := st.boolean("lock_motor_state"); ok {
			d.IsOn = !open
		}
		d.Value = d.StatusLabel()

	case device.TypeCamera:
		d.IsOn = td.Online
		if rec, ok := st.boolean("record_switch"); ok {
			d.IsOn = td.Online && rec
		}
		if d.IsOn {
			d.Value = "Recording"
		} else {
			d.Value = "Idle"
		}

	case device.TypeCurtain:
		d.Unit = "%"
		d.Value = 0.0
		if v, _, ok := st.number("percent_control", "percent_state"); ok {
			d.Value = v
			d.IsOn = v > 0
		}

	case device.TypeSpeaker:
		d.IsOn, _ = st.boolean("switch", "switch_1")
		if v, _, ok := st.number("volume_set"); ok {
			d.Value = v
			d.Unit = "%"
		}

	default:
		d.IsOn, _ = st.boolean("switch_1", "switch")
	}
	return d
}

// bright_value_v2 runs 10..1000, bright_value 25..255.
func brightnessPercent(code string, v float64) float64 {
	scale := 1000.0
	if code == "bright_value" {
		scale = 255.0
	}
	return math.Round(math.Max(0, math.Min(100, v/scale*100)))
}

// CommandsFor translates an update of a Tuya-sourced record into data
// point commands. It returns nil for types that accept no commands.
func CommandsFor(d device.Device, u device.Update) []Command {
	var cmds []Command
	value, hasValue := device.Number(u.Value)

	switch d.Type {
	case device.TypeLight:
		if u.IsOn != nil {
			cmds = append(cmds, Command{Code: "switch_led", Value: *u.IsOn})
		}
		if hasValue {
			pct := math.Max(1, math.Min(100, value))
			cmds = append(cmds, Command{Code: "bright_value_v2", Value: int(math.Round(pct * 10))})
		}

	case device.TypeOutlet:
		if u.IsOn != nil {
			cmds = append(cmds, Command{Code: "switch_1", Value: *u.IsOn})
		}

	case device.TypeThermostat:
		if u.IsOn != nil {
			cmds = append(cmds, Command{Code: "switch", Value: *u.IsOn})
		}
		if hasValue {
			cmds = append(cmds, Command{Code: "temp_set", Value: int(math.Round(value))})
		}

	case device.TypeCurtain:
		switch {
		case hasValue:
			cmds = append(cmds, Command{Code: "percent_control", Value: int(math.Round(value))})
		case u.IsOn != nil && *u.IsOn:
			cmds = append(cmds, Command{Code: "control", Value: "open"})
		case u.IsOn != nil:
			cmds = append(cmds, Command{Code: "control", Value: "close"})
		}

	case device.TypeSpeaker:
		if u.IsOn != nil {
			cmds = append(cmds, Command{Code: "switch", Value: *u.IsOn})
		}
		if hasValue {
			cmds = append(cmds, Command{Code: "volume_set", Value: int(math.Round(value))})
		}
	}
	return cmds
}

// FallbackDevices is the list imported when the cloud cannot be reached.
func FallbackDevices() []device.Device {
	return []device.Device{
		{ID: IDPrefix + "sim_1", Name: "Desk Lamp", Type: device.TypeLight, Room: "Office", IsOn: true, Value: 60.0, Unit: "%", Provider: device.ProviderTuya},
		{ID: IDPrefix + "sim_2", Name: "Smart Plug", Type: device.TypeOutlet, Room: "Office", IsOn: false, Provider: device.ProviderTuya},
		{ID: IDPrefix + "sim_3", Name: "Living Room Curtains", Type: device.TypeCurtain, Room: "Living Room", IsOn: true, Value: 40.0, Unit: "%", Provider: device.ProviderTuya},
		{ID: IDPrefix + "sim_4", Name: "Hallway Heater", Type: device.TypeThermostat, Room: "Hallway", IsOn: true, Value: 20.0, Unit: "°C", Provider: device.ProviderTuya},
		{ID: IDPrefix + "sim_5", Name: "Kitchen Speaker", Type: device.TypeSpeaker, Room: "Kitchen", IsOn: false, Value: 30.0, Unit: "%", Provider: device.ProviderTuya},
	}
}
