package device

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// DeviceType classifies a device record. Values match the identifiers
// stored in existing remote documents.
type DeviceType string

// Supported device types.
const (
	TypeLight      DeviceType = "LIGHT"
	TypeThermostat DeviceType = "THERMOSTAT"
	TypeLock       DeviceType = "LOCK"
	TypeCamera     DeviceType = "CAMERA"
	TypeSpeaker    DeviceType = "SPEAKER"
	TypeOutlet     DeviceType = "OUTLET"
	TypeCurtain    DeviceType = "CURTAIN"
)

// AllTypes lists every supported type in display order.
var AllTypes = []DeviceType{
	TypeLight, TypeThermostat, TypeLock, TypeCamera, TypeSpeaker, TypeOutlet, TypeCurtain,
}

// Provider names the origin of a device record.
const (
	ProviderLocal = "local"
	ProviderAlexa = "alexa"
	ProviderTuya  = "tuya"
)

// Device is a single controllable item on the dashboard.
//
// Value is either a float64 (brightness %, setpoint, volume) or a string
// ("Locked", "Recording"), or nil. For a LOCK, IsOn=true means locked.
type Device struct {
	ID         string     `json:"id" firestore:"id"`
	Name       string     `json:"name" firestore:"name"`
	Type       DeviceType `json:"type" firestore:"type"`
	Room       string     `json:"room" firestore:"room"`
	IsOn       bool       `json:"is_on" firestore:"isOn"`
	Value      any        `json:"value,omitempty" firestore:"value,omitempty"`
	Unit       string     `json:"unit,omitempty" firestore:"unit,omitempty"`
	Provider   string     `json:"provider,omitempty" firestore:"provider,omitempty"`
	ExternalID string     `json:"external_id,omitempty" firestore:"externalId,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at" firestore:"updatedAt,omitempty"`
}

// Update describes a partial state change. Nil fields are left unchanged.
type Update struct {
	ID    string `json:"id"`
	IsOn  *bool  `json:"is_on,omitempty"`
	Value any    `json:"value,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.IsOn == nil && u.Value == nil
}

// Bool returns a pointer to b, for building Updates.
func Bool(b bool) *bool {
	return &b
}

// Apply returns d with u merged in. IsOn and Value are replaced only when
// present in u.
func Apply(d Device, u Update) Device {
	if u.IsOn != nil {
		d.IsOn = *u.IsOn
	}
	if u.Value != nil {
		d.Value = NormalizeValue(u.Value)
	}
	return d
}

// NumericValue returns Value as a float64 when it holds a number or a
// numeric string.
func (d Device) NumericValue() (float64, bool) {
	return Number(d.Value)
}

// Number converts a device value to float64.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil && !math.IsNaN(f)
	default:
		return 0, false
	}
}

// NormalizeValue maps integer and json.Number values to float64 so stored
// and remote copies compare equal. Strings and nil pass through.
func NormalizeValue(v any) any {
	switch n := v.(type) {
	case nil, string, float64:
		return v
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	default:
		if f, ok := Number(v); ok {
			return f
		}
		return fmt.Sprint(v)
	}
}

// DisplayValue formats Value with its unit, e.g. "80%" or "Locked".
func (d Device) DisplayValue() string {
	switch v := d.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		f, ok := Number(v)
		if !ok {
			return fmt.Sprint(v)
		}
		return strconv.FormatFloat(f, 'f', -1, 64) + d.Unit
	}
}

// StatusLabel is the short state text shown on a device card.
func (d Device) StatusLabel() string {
	switch d.Type {
	case TypeThermostat:
		return d.DisplayValue()
	case TypeLight:
		if !d.IsOn {
			return "Off"
		}
		return fmt.Sprintf("%v%%", d.displayNumber())
	case TypeLock:
		if d.IsOn {
			return "Locked"
		}
		return "Unlocked"
	case TypeCurtain:
		return fmt.Sprintf("%v%% Open", d.displayNumber())
	default:
		if d.IsOn {
			return "On"
		}
		return "Off"
	}
}

func (d Device) displayNumber() string {
	if f, ok := d.NumericValue(); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	if d.Value == nil {
		return "0"
	}
	return fmt.Sprint(d.Value)
}

// Stats summarises the device list for the dashboard header.
type Stats struct {
	Total       int     `json:"total"`
	Active      int     `json:"active"`
	Temperature float64 `json:"temperature"`
}

// DefaultTemperature is reported when no thermostat exposes a non-zero
// reading.
const DefaultTemperature = 21

// ComputeStats counts active devices and takes the temperature from the
// first thermostat in list order. A reading of exactly zero counts as unset
// and reports DefaultTemperature.
func ComputeStats(devices []Device) Stats {
	s := Stats{Total: len(devices), Temperature: DefaultTemperature}
	found := false
	for _, d := range devices {
		if d.IsOn {
			s.Active++
		}
		if !found && d.Type == TypeThermostat {
			found = true
			if t, ok := d.NumericValue(); ok && t != 0 {
				s.Temperature = t
			}
		}
	}
	return s
}

// Room groups devices sharing a room name.
type Room struct {
	Name    string   `json:"name"`
	Devices []Device `json:"devices"`
	Active  int      `json:"active"`
}
