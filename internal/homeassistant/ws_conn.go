package homeassistant

import (
	"context"
	"fmt"
	"net/url"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// maxWSMessageSize bounds a single frame; get_states on a large install
// easily exceeds the library default of 32KB.
const maxWSMessageSize = 16 << 20

// websocketURL derives the /api/websocket endpoint from a Home Assistant base URL.
func websocketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported URL scheme: %q", u.Scheme)
	}

	u.Path = "/api/websocket"
	u.RawQuery = ""
	return u.String(), nil
}

// dialAuthenticated opens a WebSocket to wsURL and completes the auth phase.
// The returned connection is ready for commands.
func dialAuthenticated(ctx context.Context, wsURL, token string) (*websocket.Conn, error) {
	conn, resp, err := websocket.Dial(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dialing WebSocket: %w", err)
	}
	conn.SetReadLimit(maxWSMessageSize)

	if err := authenticate(ctx, conn, token); err != nil {
		_ = conn.CloseNow()
		return nil, err
	}
	return conn, nil
}

func authenticate(ctx context.Context, conn *websocket.Conn, token string) error {
	var hello WSAuthReply
	if err := wsjson.Read(ctx, conn, &hello); err != nil {
		return fmt.Errorf("reading auth_required: %w", err)
	}
	if hello.Type != "auth_required" {
		return fmt.Errorf("expected auth_required, got %q", hello.Type)
	}

	if err := wsjson.Write(ctx, conn, WSAuthMessage{Type: "auth", AccessToken: token}); err != nil {
		return fmt.Errorf("sending auth: %w", err)
	}

	var reply WSAuthReply
	if err := wsjson.Read(ctx, conn, &reply); err != nil {
		return fmt.Errorf("reading auth response: %w", err)
	}

	switch reply.Type {
	case "auth_ok":
		return nil
	case "auth_invalid":
		return fmt.Errorf("authentication failed: %s", reply.Message)
	default:
		return fmt.Errorf("unexpected auth response: %q", reply.Type)
	}
}
