package docstore

import (
	"time"

	"github.com/mblarson/omnihome/internal/device"
)

// Field names follow the documents the web dashboard already writes.
const (
	fieldID         = "id"
	fieldName       = "name"
	fieldType       = "type"
	fieldRoom       = "room"
	fieldIsOn       = "isOn"
	fieldValue      = "value"
	fieldUnit       = "unit"
	fieldProvider   = "provider"
	fieldExternalID = "externalId"
	fieldUpdatedAt  = "updatedAt"
)

// encodeDevice converts a device to its document form. Optional fields are
// omitted rather than written as empty values.
func encodeDevice(d device.Device) map[string]any {
	doc := map[string]any{
		fieldID:   d.ID,
		fieldName: d.Name,
		fieldType: string(d.Type),
		fieldRoom: d.Room,
		fieldIsOn: d.IsOn,
	}
	if v := device.NormalizeValue(d.Value); v != nil {
		doc[fieldValue] = v
	}
	if d.Unit != "" {
		doc[fieldUnit] = d.Unit
	}
	if d.Provider != "" {
		doc[fieldProvider] = d.Provider
	}
	if d.ExternalID != "" {
		doc[fieldExternalID] = d.ExternalID
	}
	if !d.UpdatedAt.IsZero() {
		doc[fieldUpdatedAt] = d.UpdatedAt.UTC()
	}
	return doc
}

// decodeDevice builds a device from document data. docID is used when the
// document carries no id field. Unknown fields are ignored.
func decodeDevice(docID string, data map[string]any) device.Device {
	d := device.Device{
		ID:         stringField(data, fieldID),
		Name:       stringField(data, fieldName),
		Type:       device.DeviceType(stringField(data, fieldType)),
		Room:       stringField(data, fieldRoom),
		Unit:       stringField(data, fieldUnit),
		Provider:   stringField(data, fieldProvider),
		ExternalID: stringField(data, fieldExternalID),
	}
	if d.ID == "" {
		d.ID = docID
	}
	if on, ok := data[fieldIsOn].(bool); ok {
		d.IsOn = on
	}
	if v, ok := data[fieldValue]; ok {
		d.Value = device.NormalizeValue(v)
	}
	if t, ok := data[fieldUpdatedAt].(time.Time); ok {
		d.UpdatedAt = t
	}
	return d
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string) //nolint:errcheck // type assertion, zero value on mismatch
	return s
}
