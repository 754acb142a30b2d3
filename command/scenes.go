package command

import "sort"

// sceneWrite is one device-state write inside a scene bundle.
type sceneWrite struct {
	deviceID string
	field    string
	value    any
}

// scenes maps scene ids to their predefined device-state bundles. A trigger
// action applies the whole bundle as one command.
var scenes = map[string][]sceneWrite{
	"movie-night-scene": {
		{"living_room_light", "power", "on"},
		{"living_room_light", "brightness", float64(20)},
		{"bedroom_light", "power", "off"},
	},
	"bright-scene": {
		{"living_room_light", "power", "on"},
		{"living_room_light", "brightness", float64(100)},
		{"bedroom_light", "power", "on"},
	},
	"night-scene": {
		{"living_room_light", "power", "off"},
		{"bedroom_light", "power", "off"},
		{"front_door", "locked", true},
	},
}

// SceneIDs returns the ids of the predefined scenes, sorted.
func SceneIDs() []string {
	ids := make([]string, 0, len(scenes))
	for id := range scenes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
