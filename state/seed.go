package state

import "time"

// NewDemoStore creates a store seeded with the demo UI controls and device
// registry the app ships with. Server metadata is filled in by the gateways.
func NewDemoStore() *Store {
	s := NewStore(map[string]any{
		"ui": map[string]any{
			"screens": map[string]any{
				"current": "home",
				"stack":   []any{"home"},
			},
			"controls": map[string]any{
				"living_room_light": map[string]any{"state": "off"},
				"bedroom_light":     map[string]any{"state": "off"},
			},
		},
		"devices": map[string]any{},
		"server": map[string]any{
			"requests":    float64(0),
			"connections": float64(0),
		},
	})

	now := time.Now()
	for _, d := range demoDevices(now) {
		// Seeded devices are well-formed; an error here is a programming bug.
		if err := s.AddDevice(d); err != nil {
			panic(err)
		}
	}
	return s
}

func demoDevices(now time.Time) []Device {
	return []Device{
		{
			ID:           "living_room_light",
			Name:         "Living Room Light",
			Type:         DeviceTypeDimmer,
			State:        map[string]any{"power": "off", "brightness": float64(80)},
			Capabilities: []string{"power", "brightness"},
			Online:       true,
			LastUpdated:  now,
		},
		{
			ID:           "bedroom_light",
			Name:         "Bedroom Light",
			Type:         DeviceTypeSwitch,
			State:        map[string]any{"power": "off"},
			Capabilities: []string{"power"},
			Online:       true,
			LastUpdated:  now,
		},
		{
			ID:           "thermostat",
			Name:         "Hallway Thermostat",
			Type:         DeviceTypeTemperature,
			State:        map[string]any{"current": float64(21), "target": float64(20), "mode": "heat"},
			Capabilities: []string{"current", "target", "mode"},
			Online:       true,
			LastUpdated:  now,
		},
		{
			ID:           "front_door",
			Name:         "Front Door",
			Type:         DeviceTypeLock,
			State:        map[string]any{"locked": true},
			Capabilities: []string{"locked"},
			Online:       true,
			LastUpdated:  now,
		},
		{
			ID:           "motion_sensor",
			Name:         "Hallway Motion Sensor",
			Type:         DeviceTypeSensor,
			State:        map[string]any{"motion": false},
			Capabilities: []string{"motion"},
			Online:       true,
			LastUpdated:  now,
		},
	}
}
