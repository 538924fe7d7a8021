package mqtt

import "strings"

// DefaultTopicPrefix is used when mqtt.topic_prefix is empty.
const DefaultTopicPrefix = "omnihome"

// Topics builds OmniHome topic names under a prefix.
//
//	topics := mqtt.NewTopics("omnihome")
//	topics.DeviceState("dev_1") // "omnihome/state/dev_1"
type Topics struct {
	prefix string
}

// NewTopics returns a topic builder. An empty prefix uses DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root segment.
func (t Topics) Prefix() string {
	return t.prefix
}

// DeviceState is the retained state topic for one device.
func (t Topics) DeviceState(deviceID string) string {
	return t.prefix + "/state/" + deviceID
}

// DeviceCommand is the command topic for one device.
func (t Topics) DeviceCommand(deviceID string) string {
	return t.prefix + "/command/" + deviceID
}

// AllDeviceCommands matches every device command topic.
func (t Topics) AllDeviceCommands() string {
	return t.prefix + "/command/+"
}

// SystemStatus carries the online/offline status and the LWT.
func (t Topics) SystemStatus() string {
	return t.prefix + "/system/status"
}

// CommandDeviceID extracts the device ID from a command topic. It returns
// false for topics outside the command tree.
func (t Topics) CommandDeviceID(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, t.prefix+"/command/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
