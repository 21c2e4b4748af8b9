package homeassistant

import (
	"context"
	"errors"
	"time"
)

// ErrMaxReconnectAttempts is returned once MaxAttempts reconnects have failed.
var ErrMaxReconnectAttempts = errors.New("maximum reconnection attempts reached")

// ReconnectConfig holds configuration for reconnection behavior.
type ReconnectConfig struct {
	// InitialDelay is the wait before the first reconnect attempt.
	InitialDelay time.Duration
	// MaxDelay caps the wait between attempts.
	MaxDelay time.Duration
	// BackoffFactor multiplies the wait after each attempt.
	BackoffFactor float64
	// MaxAttempts limits attempts per outage (0 = unlimited).
	MaxAttempts int
}

// DefaultReconnectConfig returns the default reconnection configuration.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		InitialDelay:  1 * time.Second,
		MaxDelay:      60 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Backoff paces reconnect attempts with exponentially growing delays.
// It is owned by a single goroutine.
type Backoff struct {
	config   ReconnectConfig
	attempts int
	delay    time.Duration
}

// NewBackoff creates a Backoff at its initial delay.
func NewBackoff(config ReconnectConfig) *Backoff {
	return &Backoff{config: config, delay: config.InitialDelay}
}

// Reset starts a new outage.
func (b *Backoff) Reset() {
	b.attempts = 0
	b.delay = b.config.InitialDelay
}

// Attempts returns the attempts made since the last Reset.
func (b *Backoff) Attempts() int { return b.attempts }

// Delay returns the wait before the next attempt.
func (b *Backoff) Delay() time.Duration { return b.delay }

// Exhausted reports whether MaxAttempts has been reached.
func (b *Backoff) Exhausted() bool {
	return b.config.MaxAttempts > 0 && b.attempts >= b.config.MaxAttempts
}

// Wait sleeps for the current delay and counts an attempt.
func (b *Backoff) Wait(ctx context.Context) error {
	if b.Exhausted() {
		return ErrMaxReconnectAttempts
	}

	wait := b.delay
	b.attempts++
	b.delay = min(time.Duration(float64(b.delay)*b.config.BackoffFactor), b.config.MaxDelay)

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
