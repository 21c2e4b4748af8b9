// Package homeassistant provides a hybrid client combining WebSocket and REST APIs.
package homeassistant

import (
	"context"
)

// HybridClient combines WebSocket and REST API clients for Home Assistant.
// It reads states and receives events over WebSocket and writes states over
// REST, which has the only state-write endpoint.
type HybridClient struct {
	ws   *wsClientImpl // WebSocket client for reads and events
	rest *RESTClient   // REST client for state writes
	conn *WSClient
}

// NewHybridClient creates a new hybrid client with the given WebSocket and REST clients.
func NewHybridClient(ws *WSClient, rest *RESTClient) *HybridClient {
	return &HybridClient{
		ws:   &wsClientImpl{ws: ws},
		rest: rest,
		conn: ws,
	}
}

// Ensure HybridClient implements Client and ConnectionMonitor at compile time.
var (
	_ Client            = (*HybridClient)(nil)
	_ ConnectionMonitor = (*HybridClient)(nil)
)

// GetStates retrieves all entity states.
func (c *HybridClient) GetStates(ctx context.Context) ([]Entity, error) {
	return c.ws.GetStates(ctx)
}

// SetState writes the state of an entity using the REST API.
func (c *HybridClient) SetState(ctx context.Context, entityID string, state StateUpdate) (*Entity, error) {
	return c.rest.SetState(ctx, entityID, state)
}

// GetConfig retrieves the core configuration.
func (c *HybridClient) GetConfig(ctx context.Context) (*Config, error) {
	return c.ws.GetConfig(ctx)
}

// SubscribeStateChanged subscribes handler to state_changed events.
func (c *HybridClient) SubscribeStateChanged(ctx context.Context, handler func(StateChangedEvent)) error {
	return c.ws.SubscribeStateChanged(ctx, handler)
}

// IsConnected reports whether the WebSocket connection is up.
func (c *HybridClient) IsConnected() bool {
	return c.conn.IsConnected()
}

// IsHealthy reports whether the WebSocket connection answered its last ping.
func (c *HybridClient) IsHealthy() bool {
	return c.conn.IsHealthy()
}

// SetOnReconnect sets the callback run after the WebSocket reconnected.
func (c *HybridClient) SetOnReconnect(fn OnReconnectFunc) {
	c.conn.SetOnReconnect(fn)
}

// SetOnDisconnect sets the callback run when the WebSocket drops.
func (c *HybridClient) SetOnDisconnect(fn OnDisconnectFunc) {
	c.conn.SetOnDisconnect(fn)
}

// Close closes the underlying WebSocket connection.
func (c *HybridClient) Close() error {
	return c.conn.Close()
}

var _ ClientCloser = (*HybridClient)(nil)
