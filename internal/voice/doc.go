// Package voice relays a spoken conversation between the dashboard and a
// live audio model that can switch devices through a single tool,
// updateDeviceState.
//
// Audio is 16-bit little-endian mono PCM: 16 kHz from the microphone and
// 24 kHz from the model.
package voice
