// Package homeassistant provides a WebSocket client for the Home Assistant API.
package homeassistant

import (
	"context"
	"errors"
	"fmt"
)

// EventStateChanged is the Home Assistant event fired for every state write.
const EventStateChanged = "state_changed"

// ErrNotSupported is returned by operations a transport cannot perform.
var ErrNotSupported = errors.New("operation not supported")

// Client defines the interface for the Home Assistant operations this
// service depends on.
type Client interface {
	// State operations
	GetStates(ctx context.Context) ([]Entity, error)
	SetState(ctx context.Context, entityID string, state StateUpdate) (*Entity, error)

	// Configuration operations
	GetConfig(ctx context.Context) (*Config, error)

	// Event operations. The handler runs on the connection's read goroutine
	// and must not block.
	SubscribeStateChanged(ctx context.Context, handler func(StateChangedEvent)) error
}

// ConnectionMonitor is implemented by clients backed by a long-lived connection.
type ConnectionMonitor interface {
	IsConnected() bool
	IsHealthy() bool
	SetOnReconnect(fn OnReconnectFunc)
	SetOnDisconnect(fn OnDisconnectFunc)
}

// APIError represents an error response from the Home Assistant API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Home Assistant API error (status %d): %s", e.StatusCode, e.Message)
}
