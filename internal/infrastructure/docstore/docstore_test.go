package docstore

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mblarson/omnihome/internal/device"
	"github.com/mblarson/omnihome/internal/infrastructure/config"
)

func TestDeviceCodecRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, d := range append(device.InitialDevices(), device.Device{
		ID: "tuya_1", Name: "Desk Plug", Type: device.TypeOutlet, Room: "Office",
		Provider: device.ProviderTuya, ExternalID: "bf12ab", UpdatedAt: ts,
	}) {
		t.Run(d.ID, func(t *testing.T) {
			got := decodeDevice("ignored", encodeDevice(d))
			if diff := cmp.Diff(d, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeDevice_OmitsEmptyOptionalFields(t *testing.T) {
	doc := encodeDevice(device.Device{ID: "dev_9", Name: "Cam", Type: device.TypeCamera})
	for _, key := range []string{fieldValue, fieldUnit, fieldProvider, fieldExternalID, fieldUpdatedAt} {
		if _, ok := doc[key]; ok {
			t.Errorf("document has %q for an empty field", key)
		}
	}
	if doc[fieldIsOn] != false {
		t.Errorf("isOn = %v, want explicit false", doc[fieldIsOn])
	}
}

func TestDecodeDevice_LegacyDocuments(t *testing.T) {
	// Documents written by the web dashboard: integer values, no id field.
	got := decodeDevice("dev_3", map[string]any{
		"name":  "Main Thermostat",
		"type":  "THERMOSTAT",
		"room":  "Hallway",
		"isOn":  true,
		"value": int64(22),
		"unit":  "°C",
		"extra": "ignored",
	})
	want := device.Device{ID: "dev_3", Name: "Main Thermostat", Type: device.TypeThermostat, Room: "Hallway", IsOn: true, Value: 22.0, Unit: "°C"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decodeDevice() mismatch (-want +got):\n%s", diff)
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"permission denied", status.Error(codes.PermissionDenied, "Missing or insufficient permissions."), ErrPermissionDenied},
		{"unauthenticated", status.Error(codes.Unauthenticated, "bad key"), ErrPermissionDenied},
		{"unavailable", status.Error(codes.Unavailable, "offline"), ErrUnavailable},
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), ErrUnavailable},
		{"not found", status.Error(codes.NotFound, "no doc"), ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapError(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("MapError() = %v, want %v", got, tt.want)
			}
		})
	}

	plain := errors.New("plain")
	if got := MapError(plain); got != plain {
		t.Errorf("MapError(plain) = %v, want unchanged", got)
	}
	if MapError(nil) != nil {
		t.Error("MapError(nil) != nil")
	}
}

func TestIntegrationDocID(t *testing.T) {
	if got := IntegrationDocID("Tuya"); got != "integration_tuya" {
		t.Errorf("IntegrationDocID(Tuya) = %q", got)
	}
}

func TestOpen_RejectsInvalidConfig(t *testing.T) {
	_, err := Open(t.Context(), config.RemoteConfig{ProjectID: "p", APIKey: config.PlaceholderAPIKey})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Open() error = %v, want ErrInvalidConfig", err)
	}
}
