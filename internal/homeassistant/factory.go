// Package homeassistant provides client factories for Home Assistant API.
package homeassistant

import (
	"context"
	"fmt"
)

// ClientOptions configures client creation.
type ClientOptions struct {
	// WSConfig provides WebSocket-specific configuration.
	WSConfig *WSClientConfig
	// RESTConfig provides REST-specific configuration.
	RESTConfig *RESTClientConfig
}

// DefaultClientOptions returns the default client options.
func DefaultClientOptions() ClientOptions {
	defaultWSConfig := DefaultWSClientConfig()
	defaultRESTConfig := DefaultRESTClientConfig()
	return ClientOptions{
		WSConfig:   &defaultWSConfig,
		RESTConfig: &defaultRESTConfig,
	}
}

// NewClientWithOptions creates and connects a Home Assistant client.
//
// The returned client reads states and receives events over WebSocket and
// writes states over REST. The connection is established before returning;
// use CloseClient() for cleanup.
func NewClientWithOptions(ctx context.Context, baseURL, token string, opts ClientOptions) (*HybridClient, error) {
	var wsClient *WSClient
	if opts.WSConfig != nil {
		wsClient = NewWSClientWithConfig(baseURL, token, *opts.WSConfig)
	} else {
		wsClient = NewWSClient(baseURL, token)
	}

	if err := wsClient.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connecting to Home Assistant WebSocket API: %w", err)
	}

	restConfig := DefaultRESTClientConfig()
	if opts.RESTConfig != nil {
		restConfig = *opts.RESTConfig
	}

	return NewHybridClient(wsClient, NewRESTClientWithConfig(baseURL, token, restConfig)), nil
}

// ClientCloser provides a way to close clients that support it.
type ClientCloser interface {
	Close() error
}

// CloseClient attempts to close a client if it supports the ClientCloser interface.
// Returns nil if the client doesn't support closing.
func CloseClient(c Client) error {
	if closer, ok := c.(ClientCloser); ok {
		return closer.Close()
	}
	return nil
}
