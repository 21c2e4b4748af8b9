// Package homeassistant provides the WebSocket-based Client implementation.
package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
)

// wsCommander is the subset of WSClient used by wsClientImpl.
type wsCommander interface {
	SendCommand(ctx context.Context, msgType string, payload map[string]any) (*WSResultMessage, error)
	SubscribeEvents(ctx context.Context, eventType string, handler func(WSEvent)) error
}

// wsClientImpl implements the Client interface using WebSocket commands.
// It wraps the WSClient for low-level WebSocket communication.
type wsClientImpl struct {
	ws wsCommander
}

// Ensure wsClientImpl implements Client interface at compile time.
var _ Client = (*wsClientImpl)(nil)

// GetStates retrieves all entity states via WebSocket.
func (c *wsClientImpl) GetStates(ctx context.Context) ([]Entity, error) {
	result, err := c.ws.SendCommand(ctx, "get_states", nil)
	if err != nil {
		return nil, fmt.Errorf("get_states command failed: %w", err)
	}

	var entities []Entity
	if err := json.Unmarshal(result.Result, &entities); err != nil {
		return nil, fmt.Errorf("failed to unmarshal states: %w", err)
	}

	return entities, nil
}

// SetState is not available over WebSocket; HybridClient routes it to REST.
func (c *wsClientImpl) SetState(_ context.Context, _ string, _ StateUpdate) (*Entity, error) {
	return nil, fmt.Errorf("SetState via WebSocket API: %w", ErrNotSupported)
}

// GetConfig retrieves the core configuration, including the unit system.
func (c *wsClientImpl) GetConfig(ctx context.Context) (*Config, error) {
	result, err := c.ws.SendCommand(ctx, "get_config", nil)
	if err != nil {
		return nil, fmt.Errorf("get_config command failed: %w", err)
	}

	var config Config
	if err := json.Unmarshal(result.Result, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// SubscribeStateChanged subscribes handler to state_changed events.
// Events with an undecodable payload are dropped.
func (c *wsClientImpl) SubscribeStateChanged(ctx context.Context, handler func(StateChangedEvent)) error {
	return c.ws.SubscribeEvents(ctx, EventStateChanged, func(ev WSEvent) {
		var data StateChangedEvent
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			return
		}
		handler(data)
	})
}
