package providers

import (
	"context"

	"github.com/mblarson/omnihome/internal/device"
	"github.com/mblarson/omnihome/internal/providers/tuya"
)

// Provider names.
const (
	Alexa = "Alexa"
	Tuya  = "Tuya"
)

// Step is the position of the connection flow.
type Step string

// Flow steps.
const (
	StepSelect    Step = "select"
	StepAuthAlexa Step = "auth_alexa"
	StepAuthTuya  Step = "auth_tuya"
	StepSync      Step = "sync"
	StepSuccess   Step = "success"
	StepFailed    Step = "failed"
)

// Connector imports devices from a linked provider.
type Connector interface {
	Name() string
	SyncDevices(ctx context.Context) ([]device.Device, error)
}

// AlexaAccount is the Alexa side of a link. alexa.Client implements it.
type AlexaAccount interface {
	Connector
	NewState() (string, error)
	AuthURL(state string) string
	PollForConnection(ctx context.Context) error
	Complete(ctx context.Context, code string) error
	Simulated() bool
	Disconnect()
}

// TuyaAccount is a connected Tuya project. tuya.Connector implements it.
type TuyaAccount interface {
	Connector
	device.Actuator
	Connect(ctx context.Context) error
	Simulated() bool
}

// TuyaDialer creates a TuyaAccount from user credentials.
type TuyaDialer func(creds tuya.Credentials) (TuyaAccount, error)

// Importer receives imported device lists. device.Store implements it.
// Replace runs with the Linker's lock held and must not call back into it.
type Importer interface {
	Replace(ctx context.Context, devices []device.Device, source string) error
}

// CredentialStore persists provider credentials. persistence.Adapter
// implements it.
type CredentialStore interface {
	SaveIntegrationConfig(ctx context.Context, provider string, creds map[string]any) error
	GetIntegrationConfig(ctx context.Context, provider string) (map[string]any, error)
}

// Status is the connection state shown by the dashboard.
type Status struct {
	ActiveProvider string `json:"active_provider,omitempty"`
	Step           Step   `json:"step"`
	Connecting     bool   `json:"connecting"`
	Error          string `json:"error,omitempty"`
	AuthURL        string `json:"auth_url,omitempty"`
	Simulated      bool   `json:"simulated"`
	Imported       int    `json:"imported,omitempty"`
	HubLabel       string `json:"hub_label"`
}

// HubLabel is the top bar text for the active provider.
func HubLabel(active string) string {
	if active == "" {
		return "Hub Disconnected"
	}
	return active + " Hub Active"
}
