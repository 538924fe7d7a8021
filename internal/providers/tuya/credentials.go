package tuya

import (
	"fmt"
	"strings"
)

// Credentials are the cloud project keys entered by the user.
// JSON names match the stored integration document.
type Credentials struct {
	AccessID     string `json:"accessId"`
	AccessSecret string `json:"accessSecret"`
	Region       string `json:"region"`
}

// minAccessIDLength is the shortest access id accepted by Connect.
const minAccessIDLength = 5

var endpoints = map[string]string{
	"us":   "https://openapi.tuyaus.com",
	"eu":   "https://openapi.tuyaeu.com",
	"cn":   "https://openapi.tuyacn.com",
	"in":   "https://openapi.tuyain.com",
	"weu":  "https://openapi-weaz.tuyaeu.com",
	"ueaz": "https://openapi-ueaz.tuyaus.com",
}

// ValidateCredentials checks that both keys are present.
func ValidateCredentials(c Credentials) error {
	if strings.TrimSpace(c.AccessID) == "" || strings.TrimSpace(c.AccessSecret) == "" {
		return ErrMissingCredentials
	}
	return nil
}

// Endpoint returns the OpenAPI base URL for region. An empty region is "us".
func Endpoint(region string) (string, error) {
	region = strings.ToLower(strings.TrimSpace(region))
	if region == "" {
		region = "us"
	}
	base, ok := endpoints[region]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRegion, region)
	}
	return base, nil
}

// Map returns the credentials as a generic document for storage.
func (c Credentials) Map() map[string]any {
	return map[string]any{
		"accessId":     c.AccessID,
		"accessSecret": c.AccessSecret,
		"region":       c.Region,
	}
}

// CredentialsFromMap is the inverse of Map.
func CredentialsFromMap(m map[string]any) Credentials {
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	return Credentials{AccessID: str("accessId"), AccessSecret: str("accessSecret"), Region: str("region")}
}
