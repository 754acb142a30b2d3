package state

import (
	"fmt"
	"time"
)

// DeviceType classifies a registry entry. The type is fixed at creation and
// never changes for the life of the device.
type DeviceType string

const (
	DeviceTypeSwitch      DeviceType = "switch"
	DeviceTypeDimmer      DeviceType = "dimmer"
	DeviceTypeTemperature DeviceType = "temperature"
	DeviceTypeLock        DeviceType = "lock"
	DeviceTypeSensor      DeviceType = "sensor"
)

// Device is a typed view of one entry in the devices subtree.
type Device struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Type         DeviceType     `json:"type"`
	State        map[string]any `json:"state"`
	Capabilities []string       `json:"capabilities"`
	Online       bool           `json:"online"`
	LastUpdated  time.Time      `json:"lastUpdated"`
}

// HasCapability reports whether the device declared the given capability.
func (d Device) HasCapability(name string) bool {
	for _, c := range d.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// PrimaryAttribute names the numeric attribute a "set" action targets for
// this device type.
func (d Device) PrimaryAttribute() (string, bool) {
	switch d.Type {
	case DeviceTypeDimmer:
		return "brightness", true
	case DeviceTypeTemperature:
		return "target", true
	default:
		return "", false
	}
}

// DevicePath returns the tree path of a device's registry entry.
func DevicePath(id string) string {
	return JoinPath("devices", id)
}

// DeviceStatePath returns the tree path of one field in a device's state.
func DeviceStatePath(id, field string) string {
	return JoinPath("devices", id, "state", field)
}

// Device decodes the registry entry for the given id into a typed Device.
func (s *Store) Device(id string) (Device, bool) {
	node, ok := s.Read(DevicePath(id))
	if !ok {
		return Device{}, false
	}
	return decodeDevice(id, node)
}

// DeviceIDs returns the ids of every device in the registry.
func (s *Store) DeviceIDs() []string {
	node, ok := s.Read("devices")
	if !ok {
		return nil
	}
	m, ok := node.(map[string]any)
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return ids
}

func decodeDevice(id string, node any) (Device, bool) {
	m, ok := node.(map[string]any)
	if !ok {
		return Device{}, false
	}

	dev := Device{ID: id, State: map[string]any{}}
	if name, ok := m["name"].(string); ok {
		dev.Name = name
	}
	if typ, ok := m["type"].(string); ok {
		dev.Type = DeviceType(typ)
	}
	if st, ok := m["state"].(map[string]any); ok {
		dev.State = st
	}
	if caps, ok := m["capabilities"].([]any); ok {
		for _, c := range caps {
			if cs, ok := c.(string); ok {
				dev.Capabilities = append(dev.Capabilities, cs)
			}
		}
	} else if caps, ok := m["capabilities"].([]string); ok {
		dev.Capabilities = append(dev.Capabilities, caps...)
	}
	if online, ok := m["online"].(bool); ok {
		dev.Online = online
	}
	if ts, ok := m["lastUpdated"].(time.Time); ok {
		dev.LastUpdated = ts
	}
	return dev, true
}

// tree returns the registry-entry representation of the device.
func (d Device) tree() map[string]any {
	caps := make([]any, len(d.Capabilities))
	for i, c := range d.Capabilities {
		caps[i] = c
	}
	state := make(map[string]any, len(d.State))
	for k, v := range d.State {
		state[k] = v
	}
	return map[string]any{
		"name":         d.Name,
		"type":         string(d.Type),
		"state":        state,
		"capabilities": caps,
		"online":       d.Online,
		"lastUpdated":  d.LastUpdated,
	}
}

// AddDevice inserts a device into the registry. The declared state fields
// must be a subset of the declared capabilities.
func (s *Store) AddDevice(d Device) error {
	for field := range d.State {
		if !d.HasCapability(field) {
			return fmt.Errorf("device %s: state field %q is not a declared capability", d.ID, field)
		}
	}
	if d.LastUpdated.IsZero() {
		d.LastUpdated = time.Now()
	}
	_, err := s.Write(DevicePath(d.ID), d.tree(), "seed")
	return err
}
