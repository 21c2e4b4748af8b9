package homeassistant

import "encoding/json"

// WSAuthMessage is sent to authenticate with Home Assistant.
type WSAuthMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token"`
}

// WSAuthReply is any message of the auth phase: auth_required, auth_ok or
// auth_invalid.
type WSAuthReply struct {
	Type      string `json:"type"`
	HAVersion string `json:"ha_version,omitempty"`
	Message   string `json:"message,omitempty"`
}

// WSResultMessage represents a command result from Home Assistant.
type WSResultMessage struct {
	ID      int64           `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *WSError        `json:"error,omitempty"`
}

// WSError represents an error in a WebSocket response.
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WSEventMessage represents an event message from Home Assistant.
// ID is the id of the subscribe_events command that produced it.
type WSEventMessage struct {
	ID    int64   `json:"id"`
	Type  string  `json:"type"`
	Event WSEvent `json:"event"`
}

// WSEvent contains event data. Data is decoded by the subscriber.
type WSEvent struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	Origin    string          `json:"origin"`
	TimeFired string          `json:"time_fired"`
	Context   Context         `json:"context"`
}

// WSCommandWithPayload represents a command with additional payload data.
type WSCommandWithPayload struct {
	ID      int64          `json:"id"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"-"`
}

// MarshalJSON implements custom JSON marshaling to flatten payload into the message.
func (c *WSCommandWithPayload) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"id":   c.ID,
		"type": c.Type,
	}
	for k, v := range c.Payload {
		m[k] = v
	}
	return json.Marshal(m)
}

// wsEnvelope is the part every post-auth message shares.
type wsEnvelope struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

func parseEnvelope(data []byte) (wsEnvelope, error) {
	var env wsEnvelope
	err := json.Unmarshal(data, &env)
	return env, err
}
