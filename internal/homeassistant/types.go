// Package homeassistant provides types for the Home Assistant API.
package homeassistant

import (
	"encoding/json"
	"strings"
	"time"
)

// FlexibleString is a type that can unmarshal from either a JSON string or an array of strings.
// Home Assistant sometimes returns version fields as arrays instead of strings.
type FlexibleString string

// UnmarshalJSON implements json.Unmarshaler for FlexibleString.
func (fs *FlexibleString) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*fs = FlexibleString(str)
		return nil
	}

	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*fs = FlexibleString(strings.Join(arr, ", "))
		return nil
	}

	*fs = ""
	return nil
}

// String returns the string value of FlexibleString.
func (fs FlexibleString) String() string {
	return string(fs)
}

// MarshalJSON implements json.Marshaler for FlexibleString.
func (fs FlexibleString) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(fs))
}

// Entity represents a Home Assistant entity state.
type Entity struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
	Context     Context        `json:"context"`
}

// Context represents the context of a state change.
type Context struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
}

// StateUpdate represents a request to update an entity's state.
type StateUpdate struct {
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// StateChangedEvent is the payload of a state_changed event.
// NewState is nil when the entity was removed; OldState is nil when it was added.
type StateChangedEvent struct {
	EntityID string  `json:"entity_id"`
	OldState *Entity `json:"old_state"`
	NewState *Entity `json:"new_state"`
}

// Config is the subset of the get_config response used by this service.
type Config struct {
	LocationName string         `json:"location_name"`
	Version      FlexibleString `json:"version"`
	UnitSystem   UnitSystem     `json:"unit_system"`
}

// UnitSystem is the unit system configured on the Home Assistant instance.
type UnitSystem struct {
	Length                   string `json:"length"`
	AccumulatedPrecipitation string `json:"accumulated_precipitation"`
	Mass                     string `json:"mass"`
	Pressure                 string `json:"pressure"`
	Temperature              string `json:"temperature"`
	Volume                   string `json:"volume"`
	WindSpeed                string `json:"wind_speed"`
}
