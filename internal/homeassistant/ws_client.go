// Package homeassistant provides a WebSocket client for Home Assistant API.
package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// ErrNotConnected is returned by commands issued while no connection is up.
var ErrNotConnected = errors.New("not connected")

// OnReconnectFunc is called after a reconnect, once subscriptions are restored.
type OnReconnectFunc func(attempts int)

// OnDisconnectFunc is called when the connection drops.
type OnDisconnectFunc func(err error)

// WSClientConfig holds configuration options for WSClient.
type WSClientConfig struct {
	// ReconnectConfig configures automatic reconnection behavior.
	ReconnectConfig ReconnectConfig
	// AutoReconnect enables automatic reconnection on disconnect.
	AutoReconnect bool
	// PingInterval is the interval between health check pings (0 = disabled).
	PingInterval time.Duration
	// PingTimeout is the timeout for ping responses.
	PingTimeout time.Duration
	// WriteTimeout bounds commands issued by the client itself.
	WriteTimeout time.Duration
}

// DefaultWSClientConfig returns the default WSClient configuration.
func DefaultWSClientConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectConfig: DefaultReconnectConfig(),
		AutoReconnect:   true,
		PingInterval:    30 * time.Second,
		PingTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
	}
}

// WSClient manages a WebSocket connection to Home Assistant.
//
// One read goroutine owns each connection. When the connection fails that
// goroutine redials with backoff and swaps in the new connection.
type WSClient struct {
	baseURL string
	token   string
	wsURL   string
	config  WSClientConfig
	backoff *Backoff

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	connMu    sync.RWMutex
	conn      *websocket.Conn
	connected atomic.Bool
	lastPong  atomic.Int64 // unix nanos

	msgID     atomic.Int64
	pendingMu sync.Mutex
	pending   map[int64]chan *WSResultMessage

	// Event subscriptions keyed by the id of their subscribe_events command
	subsMu sync.RWMutex
	subs   map[int64]*subscription

	callbackMu   sync.RWMutex
	onReconnect  OnReconnectFunc
	onDisconnect OnDisconnectFunc
}

// subscription is an event subscription that survives reconnects.
type subscription struct {
	eventType string
	handler   func(WSEvent)
}

func (s *subscription) payload() map[string]any {
	if s.eventType == "" {
		return nil
	}
	return map[string]any{"event_type": s.eventType}
}

// NewWSClient creates a new WebSocket client for Home Assistant.
func NewWSClient(baseURL, token string) *WSClient {
	return NewWSClientWithConfig(baseURL, token, DefaultWSClientConfig())
}

// NewWSClientWithConfig creates a new WebSocket client with custom configuration.
func NewWSClientWithConfig(baseURL, token string, config WSClientConfig) *WSClient {
	return &WSClient{
		baseURL: baseURL,
		token:   token,
		config:  config,
		backoff: NewBackoff(config.ReconnectConfig),
		pending: make(map[int64]chan *WSResultMessage),
		subs:    make(map[int64]*subscription),
	}
}

// Connect dials Home Assistant and authenticates. The connection, and any
// reconnects, live until ctx is done or Close is called.
func (c *WSClient) Connect(ctx context.Context) error {
	wsURL, err := websocketURL(c.baseURL)
	if err != nil {
		return fmt.Errorf("building WebSocket URL: %w", err)
	}
	c.wsURL = wsURL
	c.ctx, c.cancel = context.WithCancel(ctx)

	conn, err := dialAuthenticated(c.ctx, c.wsURL, c.token)
	if err != nil {
		c.cancel()
		return err
	}
	c.setConn(conn)

	go c.readLoop(conn)
	if c.config.PingInterval > 0 {
		go c.healthLoop()
	}
	return nil
}

func (c *WSClient) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.lastPong.Store(time.Now().UnixNano())
	c.connected.Store(true)
}

func (c *WSClient) currentConn() *websocket.Conn {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

// dropConn retires conn and fails every command still waiting on it.
func (c *WSClient) dropConn(conn *websocket.Conn) {
	c.connected.Store(false)
	c.connMu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.connMu.Unlock()
	_ = conn.CloseNow()

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

func (c *WSClient) stopping() bool {
	return c.closed.Load() || c.ctx.Err() != nil
}

func (c *WSClient) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(c.ctx)
		if err == nil {
			c.dispatch(data)
			continue
		}

		c.dropConn(conn)
		if c.stopping() {
			return
		}
		c.notifyDisconnect(err)
		if !c.config.AutoReconnect {
			return
		}

		next, err := c.redial()
		if err != nil {
			if !c.stopping() {
				c.notifyDisconnect(fmt.Errorf("giving up reconnecting: %w", err))
			}
			return
		}
		conn = next
		go c.afterReconnect(c.backoff.Attempts())
	}
}

// redial retries the handshake with backoff until it succeeds, MaxAttempts
// runs out, or the client stops.
func (c *WSClient) redial() (*websocket.Conn, error) {
	c.backoff.Reset()
	for {
		if err := c.backoff.Wait(c.ctx); err != nil {
			return nil, err
		}
		conn, err := dialAuthenticated(c.ctx, c.wsURL, c.token)
		if err != nil {
			continue
		}
		if c.closed.Load() {
			_ = conn.CloseNow()
			return nil, context.Canceled
		}
		c.setConn(conn)
		return conn, nil
	}
}

func (c *WSClient) dispatch(data []byte) {
	env, err := parseEnvelope(data)
	if err != nil {
		return
	}

	switch env.Type {
	case "result":
		var result WSResultMessage
		if err := json.Unmarshal(data, &result); err != nil {
			return
		}
		c.pendingMu.Lock()
		if ch, ok := c.pending[env.ID]; ok {
			select {
			case ch <- &result:
			default:
			}
		}
		c.pendingMu.Unlock()

	case "event":
		var msg WSEventMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		c.subsMu.RLock()
		sub, ok := c.subs[env.ID]
		c.subsMu.RUnlock()
		if ok {
			sub.handler(msg.Event)
		}
	}
}

// afterReconnect restores event subscriptions on the new connection and then
// notifies the reconnect callback.
func (c *WSClient) afterReconnect(attempts int) {
	if err := c.restoreSubscriptions(c.ctx); err != nil {
		c.notifyDisconnect(fmt.Errorf("restoring subscriptions: %w", err))
	}

	c.callbackMu.RLock()
	fn := c.onReconnect
	c.callbackMu.RUnlock()
	if fn != nil {
		fn(attempts)
	}
}

// restoreSubscriptions re-issues every subscription under a new command id.
// A subscription whose command fails stays registered and is retried on the
// next reconnect.
func (c *WSClient) restoreSubscriptions(ctx context.Context) error {
	c.subsMu.Lock()
	previous := c.subs
	c.subs = make(map[int64]*subscription, len(previous))
	c.subsMu.Unlock()

	var errs []error
	for _, sub := range previous {
		id := c.register(sub)

		cmdCtx, cancel := ctx, context.CancelFunc(func() {})
		if c.config.WriteTimeout > 0 {
			cmdCtx, cancel = context.WithTimeout(ctx, c.config.WriteTimeout)
		}
		_, err := c.send(cmdCtx, id, "subscribe_events", sub.payload())
		cancel()
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *WSClient) register(sub *subscription) int64 {
	id := c.msgID.Add(1)
	c.subsMu.Lock()
	c.subs[id] = sub
	c.subsMu.Unlock()
	return id
}

func (c *WSClient) notifyDisconnect(err error) {
	c.callbackMu.RLock()
	fn := c.onDisconnect
	c.callbackMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// SendCommand sends a command to Home Assistant and waits for a response.
func (c *WSClient) SendCommand(ctx context.Context, msgType string, payload map[string]any) (*WSResultMessage, error) {
	return c.send(ctx, c.msgID.Add(1), msgType, payload)
}

// SubscribeEvents subscribes handler to events of eventType, or to every event
// when eventType is empty. The subscription is restored after a reconnect.
// handler runs on the read goroutine and must not block.
func (c *WSClient) SubscribeEvents(ctx context.Context, eventType string, handler func(WSEvent)) error {
	// Registered before sending so events racing the result are not dropped.
	sub := &subscription{eventType: eventType, handler: handler}
	id := c.register(sub)

	if _, err := c.send(ctx, id, "subscribe_events", sub.payload()); err != nil {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
		return fmt.Errorf("subscribe_events failed: %w", err)
	}
	return nil
}

func (c *WSClient) send(ctx context.Context, id int64, msgType string, payload map[string]any) (*WSResultMessage, error) {
	conn := c.currentConn()
	if conn == nil {
		return nil, ErrNotConnected
	}

	reply := make(chan *WSResultMessage, 1)
	c.pendingMu.Lock()
	c.pending[id] = reply
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := wsjson.Write(ctx, conn, &WSCommandWithPayload{ID: id, Type: msgType, Payload: payload}); err != nil {
		return nil, fmt.Errorf("sending %s: %w", msgType, err)
	}

	select {
	case result, ok := <-reply:
		if !ok {
			return nil, errors.New("connection closed while waiting for response")
		}
		if !result.Success && result.Error != nil {
			return nil, fmt.Errorf("command failed: %s - %s", result.Error.Code, result.Error.Message)
		}
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the WebSocket connection and stops reconnection attempts.
func (c *WSClient) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	var err error
	if conn := c.currentConn(); conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "client closing")
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.connected.Store(false)
	return err
}

// SetOnReconnect sets the callback run after a successful reconnection and
// subscription restore.
func (c *WSClient) SetOnReconnect(fn OnReconnectFunc) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onReconnect = fn
}

// SetOnDisconnect sets the callback run when a disconnect is detected.
func (c *WSClient) SetOnDisconnect(fn OnDisconnectFunc) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onDisconnect = fn
}

// IsConnected returns true if the client is currently connected.
func (c *WSClient) IsConnected() bool {
	return c.connected.Load()
}
