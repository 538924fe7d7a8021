package device

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
)

const (
	maxNameLength  = 100
	maxRoomLength  = 100
	maxUnitLength  = 16
	maxValueLength = 64
	maxDevices     = 500
)

// ValidateDevice checks a device record before it is stored.
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: device is nil", ErrInvalidDevice)
	}
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidDevice)
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if err := ValidateType(d.Type); err != nil {
		return err
	}
	if len(d.Room) > maxRoomLength {
		return fmt.Errorf("%w: room exceeds %d characters", ErrInvalidDevice, maxRoomLength)
	}
	if len(d.Unit) > maxUnitLength {
		return fmt.Errorf("%w: unit exceeds %d characters", ErrInvalidDevice, maxUnitLength)
	}
	return ValidateValue(d.Value)
}

// ValidateList checks every device and rejects duplicate ids.
func ValidateList(devices []Device) error {
	if len(devices) > maxDevices {
		return fmt.Errorf("%w: more than %d devices", ErrInvalidDevice, maxDevices)
	}
	seen := make(map[string]bool, len(devices))
	for i := range devices {
		if err := ValidateDevice(&devices[i]); err != nil {
			return fmt.Errorf("device %d: %w", i, err)
		}
		if seen[devices[i].ID] {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidDevice, devices[i].ID)
		}
		seen[devices[i].ID] = true
	}
	return nil
}

// ValidateName checks if a device name is valid.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateType checks that t is a known device type.
func ValidateType(t DeviceType) error {
	for _, known := range AllTypes {
		if t == known {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidDeviceType, t)
}

// ValidateValue accepts nil, finite numbers and short strings.
func ValidateValue(v any) error {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		if len(val) > maxValueLength {
			return fmt.Errorf("%w: text exceeds %d characters", ErrInvalidValue, maxValueLength)
		}
		return nil
	case bool, map[string]any, []any:
		return fmt.Errorf("%w: %T", ErrInvalidValue, v)
	default:
		f, ok := Number(v)
		if !ok {
			return fmt.Errorf("%w: %T", ErrInvalidValue, v)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: not a finite number", ErrInvalidValue)
		}
		return nil
	}
}

// GenerateID creates an id in the dev_<hex> form used by seeded records.
func GenerateID() string {
	return "dev_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// SortByName orders devices by name, then id, in place.
func SortByName(devices []Device) {
	sort.SliceStable(devices, func(i, j int) bool {
		if devices[i].Name != devices[j].Name {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].ID < devices[j].ID
	})
}

// FindByName returns the first device whose name or room contains query,
// ignoring case. Spoken commands name either ("kitchen", "porch light").
func FindByName(devices []Device, query string) (Device, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return Device{}, false
	}
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Name), q) || strings.Contains(strings.ToLower(d.Room), q) {
			return d, true
		}
	}
	return Device{}, false
}

// GroupByRoom groups devices by room, rooms sorted by name. Devices keep
// their list order within a room. Devices without a room go under "Other".
func GroupByRoom(devices []Device) []Room {
	index := make(map[string]int)
	var rooms []Room
	for _, d := range devices {
		name := d.Room
		if name == "" {
			name = "Other"
		}
		i, ok := index[name]
		if !ok {
			i = len(rooms)
			index[name] = i
			rooms = append(rooms, Room{Name: name})
		}
		rooms[i].Devices = append(rooms[i].Devices, d)
		if d.IsOn {
			rooms[i].Active++
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Name < rooms[j].Name })
	return rooms
}
