package homeassistant

import (
	"context"
	"time"
)

// healthLoop pings the live connection every PingInterval. A failed ping
// closes the connection so the read loop takes over reconnecting.
func (c *WSClient) healthLoop() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	timeout := c.config.PingTimeout
	if timeout <= 0 {
		timeout = c.config.PingInterval
	}

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		}

		conn := c.currentConn()
		if conn == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(c.ctx, timeout)
		err := conn.Ping(ctx)
		cancel()

		if err == nil {
			c.lastPong.Store(time.Now().UnixNano())
			continue
		}
		if c.stopping() {
			return
		}
		_ = conn.CloseNow()
	}
}

// IsHealthy reports whether the client is connected and, with pings
// enabled, has seen a pong within PingInterval + PingTimeout.
func (c *WSClient) IsHealthy() bool {
	if !c.connected.Load() {
		return false
	}
	if c.config.PingInterval == 0 {
		return true
	}

	last := c.lastPong.Load()
	if last == 0 {
		return true
	}
	return time.Since(time.Unix(0, last)) <= c.config.PingInterval+c.config.PingTimeout
}
