package device

// InitialDevices returns the household shown on a fresh install and used as
// the canned discovery result by simulated hubs.
func InitialDevices() []Device {
	return []Device{
		{ID: "dev_1", Name: "Living Room Lights", Type: TypeLight, Room: "Living Room", IsOn: true, Value: 80.0, Unit: "%"},
		{ID: "dev_2", Name: "Kitchen Spots", Type: TypeLight, Room: "Kitchen", IsOn: false, Value: 0.0, Unit: "%"},
		{ID: "dev_3", Name: "Main Thermostat", Type: TypeThermostat, Room: "Hallway", IsOn: true, Value: 22.0, Unit: "°C"},
		{ID: "dev_4", Name: "Front Door", Type: TypeLock, Room: "Entrance", IsOn: true, Value: "Locked"},
		{ID: "dev_5", Name: "Bedroom Ambient", Type: TypeLight, Room: "Bedroom", IsOn: false, Value: 50.0, Unit: "%"},
		{ID: "dev_6", Name: "Security Cam 1", Type: TypeCamera, Room: "Garage", IsOn: true, Value: "Recording"},
	}
}
