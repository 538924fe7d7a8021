// Package mirror bridges the device store and an MQTT broker.
//
// Every store change is published as a retained JSON document so other
// systems on the LAN see current state without polling:
//
//	<prefix>/state/<device_id>     retained Device JSON, empty when deleted
//	<prefix>/command/<device_id>   {"is_on":true,"value":40} or {"toggle":true}
//
// Commands are applied through the store with source "mqtt", so they are
// mirrored to persistence and broadcast to dashboards like any other edit.
package mirror
