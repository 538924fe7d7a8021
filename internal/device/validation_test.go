package device

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestValidateDevice(t *testing.T) {
	valid := func() *Device {
		return &Device{ID: "dev_1", Name: "Lamp", Type: TypeLight, Value: 50.0, Unit: "%"}
	}

	tests := []struct {
		name    string
		mutate  func(*Device)
		wantErr error
	}{
		{"valid", func(*Device) {}, nil},
		{"empty id", func(d *Device) { d.ID = " " }, ErrInvalidDevice},
		{"empty name", func(d *Device) { d.Name = "" }, ErrInvalidName},
		{"long name", func(d *Device) { d.Name = strings.Repeat("x", maxNameLength+1) }, ErrInvalidName},
		{"unknown type", func(d *Device) { d.Type = "TOASTER" }, ErrInvalidDeviceType},
		{"lowercase type", func(d *Device) { d.Type = "light" }, ErrInvalidDeviceType},
		{"text value", func(d *Device) { d.Value = "Locked" }, nil},
		{"bool value", func(d *Device) { d.Value = true }, ErrInvalidValue},
		{"map value", func(d *Device) { d.Value = map[string]any{"a": 1} }, ErrInvalidValue},
		{"NaN value", func(d *Device) { d.Value = math.NaN() }, ErrInvalidValue},
		{"long unit", func(d *Device) { d.Unit = strings.Repeat("u", maxUnitLength+1) }, ErrInvalidDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid()
			tt.mutate(d)
			err := ValidateDevice(d)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateDevice() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDevice() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateList_Duplicates(t *testing.T) {
	list := InitialDevices()
	list = append(list, list[0])
	if err := ValidateList(list); !errors.Is(err, ErrInvalidDevice) {
		t.Errorf("ValidateList() error = %v, want ErrInvalidDevice", err)
	}
	if err := ValidateList(InitialDevices()); err != nil {
		t.Errorf("ValidateList(seed) error = %v", err)
	}
}

func TestApply(t *testing.T) {
	base := Device{ID: "dev_1", Name: "Lamp", Type: TypeLight, IsOn: false, Value: 50.0}

	tests := []struct {
		name string
		u    Update
		want Device
	}{
		{"nothing", Update{ID: "dev_1"}, base},
		{"on only", Update{ID: "dev_1", IsOn: Bool(true)}, Device{ID: "dev_1", Name: "Lamp", Type: TypeLight, IsOn: true, Value: 50.0}},
		{"value only", Update{ID: "dev_1", Value: 10}, Device{ID: "dev_1", Name: "Lamp", Type: TypeLight, Value: 10.0}},
		{"both", Update{ID: "dev_1", IsOn: Bool(true), Value: json.Number("75")}, Device{ID: "dev_1", Name: "Lamp", Type: TypeLight, IsOn: true, Value: 75.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Apply(base, tt.u)); diff != "" {
				t.Errorf("Apply() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFindByName(t *testing.T) {
	devices := InitialDevices()

	tests := []struct {
		query  string
		wantID string
		found  bool
	}{
		{"living room lights", "dev_1", true},
		{"KITCHEN", "dev_2", true},
		{"thermostat", "dev_3", true},
		{"entrance", "dev_4", true}, // matches on room
		{"cam", "dev_6", true},
		{"lights", "dev_1", true}, // first match in list order
		{"garden", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			d, ok := FindByName(devices, tt.query)
			if ok != tt.found || d.ID != tt.wantID {
				t.Errorf("FindByName(%q) = (%q, %v), want (%q, %v)", tt.query, d.ID, ok, tt.wantID, tt.found)
			}
		})
	}
}

func TestComputeStats(t *testing.T) {
	s := ComputeStats(InitialDevices())
	want := Stats{Total: 6, Active: 4, Temperature: 22}
	if s != want {
		t.Errorf("ComputeStats(seed) = %+v, want %+v", s, want)
	}

	noThermostat := ComputeStats([]Device{{ID: "a", Name: "A", Type: TypeLight}})
	if noThermostat.Temperature != DefaultTemperature {
		t.Errorf("Temperature without thermostat = %v, want %v", noThermostat.Temperature, DefaultTemperature)
	}

	zero := ComputeStats([]Device{{ID: "t", Name: "T", Type: TypeThermostat, Value: 0.0}})
	if zero.Temperature != DefaultTemperature {
		t.Errorf("Temperature for a zero reading = %v, want %v", zero.Temperature, DefaultTemperature)
	}

	empty := ComputeStats(nil)
	if empty.Total != 0 || empty.Active != 0 || empty.Temperature != DefaultTemperature {
		t.Errorf("ComputeStats(nil) = %+v", empty)
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		d    Device
		want string
	}{
		{Device{Type: TypeThermostat, Value: 22.0, Unit: "°C"}, "22°C"},
		{Device{Type: TypeLight, IsOn: true, Value: 80.0}, "80%"},
		{Device{Type: TypeLight, IsOn: false, Value: 80.0}, "Off"},
		{Device{Type: TypeLock, IsOn: true}, "Locked"},
		{Device{Type: TypeLock, IsOn: false}, "Unlocked"},
		{Device{Type: TypeCurtain, Value: 40.0}, "40% Open"},
		{Device{Type: TypeOutlet, IsOn: true}, "On"},
		{Device{Type: TypeCamera, IsOn: false}, "Off"},
	}
	for _, tt := range tests {
		if got := tt.d.StatusLabel(); got != tt.want {
			t.Errorf("%s StatusLabel() = %q, want %q", tt.d.Type, got, tt.want)
		}
	}
}

func TestGroupByRoom(t *testing.T) {
	rooms := GroupByRoom(InitialDevices())
	var names []string
	for _, r := range rooms {
		names = append(names, r.Name)
	}
	want := []string{"Bedroom", "Entrance", "Garage", "Hallway", "Kitchen", "Living Room"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("room order mismatch (-want +got):\n%s", diff)
	}
	if rooms[5].Active != 1 {
		t.Errorf("Living Room active = %d, want 1", rooms[5].Active)
	}
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	if !strings.HasPrefix(a, "dev_") || len(a) != 16 {
		t.Errorf("GenerateID() = %q, want dev_ plus 12 hex chars", a)
	}
	if a == b {
		t.Error("GenerateID() returned duplicates")
	}
}
