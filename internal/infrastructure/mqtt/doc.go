// Package mqtt provides the broker connection used to mirror device state.
//
// The client reconnects automatically, restores its subscriptions after
// each reconnect and maintains a retained status message:
//
//	<prefix>/system/status   {"status":"online"|"offline", ...}
//
// The broker publishes the offline status as a Last Will if the process
// dies without disconnecting.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	client.PublishRetained(topics.DeviceState("dev_1"), payload)
package mqtt
