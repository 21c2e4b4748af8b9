package homeassistant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const testToken = "test_token"

// fakeHA is an in-process Home Assistant serving the WebSocket API on
// /api/websocket and the state endpoint on /api/states/.
type fakeHA struct {
	server *httptest.Server

	// handle answers one WebSocket command; nil answers every command with
	// an empty successful result.
	handle func(ctx context.Context, conn *websocket.Conn, msg map[string]any)

	mu     sync.Mutex
	posted map[string]StateUpdate
}

func newFakeHA(t *testing.T, handle func(ctx context.Context, conn *websocket.Conn, msg map[string]any)) *fakeHA {
	t.Helper()

	f := &fakeHA{handle: handle, posted: map[string]StateUpdate{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/websocket", f.serveWS)
	mux.HandleFunc("/api/states/", f.serveStates)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeHA) URL() string { return f.server.URL }

func (f *fakeHA) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	if err := wsjson.Write(ctx, conn, map[string]any{"type": "auth_required", "ha_version": "2026.10.0"}); err != nil {
		return
	}

	var auth WSAuthMessage
	if err := wsjson.Read(ctx, conn, &auth); err != nil {
		return
	}
	if auth.AccessToken != testToken {
		_ = wsjson.Write(ctx, conn, map[string]any{"type": "auth_invalid", "message": "Invalid access token or password"})
		return
	}
	if err := wsjson.Write(ctx, conn, map[string]any{"type": "auth_ok", "ha_version": "2026.10.0"}); err != nil {
		return
	}

	for {
		var msg map[string]any
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return
		}
		if f.handle != nil {
			f.handle(ctx, conn, msg)
			continue
		}
		_ = writeResult(ctx, conn, msg, nil)
	}
}

func (f *fakeHA) serveStates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+testToken {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var update StateUpdate
	body, _ := io.ReadAll(r.Body)
	if err := json.Unmarshal(body, &update); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Invalid JSON specified."))
		return
	}

	entityID := strings.TrimPrefix(r.URL.Path, "/api/states/")

	f.mu.Lock()
	_, existed := f.posted[entityID]
	f.posted[entityID] = update
	f.mu.Unlock()

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Entity{EntityID: entityID, State: update.State, Attributes: update.Attributes})
}

func (f *fakeHA) postedState(entityID string) (StateUpdate, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.posted[entityID]
	return u, ok
}

// writeResult answers msg with a successful result.
func writeResult(ctx context.Context, conn *websocket.Conn, msg map[string]any, result any) error {
	return wsjson.Write(ctx, conn, map[string]any{
		"id":      msg["id"],
		"type":    "result",
		"success": true,
		"result":  result,
	})
}

// testWSConfig disables reconnects and pings so tests control the connection.
func testWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectConfig: DefaultReconnectConfig(),
		WriteTimeout:    2 * time.Second,
	}
}

// connectTestClient connects a WSClient to f and closes it on cleanup.
func connectTestClient(t *testing.T, f *fakeHA) *WSClient {
	t.Helper()

	client := NewWSClientWithConfig(f.URL(), testToken, testWSConfig())

	// The connection lives as long as the context passed to Connect.
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// mockCommander records commands and answers them with canned results.
type mockCommander struct {
	sendCommandFunc func(ctx context.Context, msgType string, payload map[string]any) (*WSResultMessage, error)

	subscribedType string
	handler        func(WSEvent)
	subscribeErr   error
}

func (m *mockCommander) SendCommand(ctx context.Context, msgType string, payload map[string]any) (*WSResultMessage, error) {
	return m.sendCommandFunc(ctx, msgType, payload)
}

func (m *mockCommander) SubscribeEvents(_ context.Context, eventType string, handler func(WSEvent)) error {
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.subscribedType = eventType
	m.handler = handler
	return nil
}

// makeWSResultMsg wraps data as a successful result message.
func makeWSResultMsg(data any) *WSResultMessage {
	jsonData, _ := json.Marshal(data)
	return &WSResultMessage{
		ID:      1,
		Type:    "result",
		Success: true,
		Result:  jsonData,
	}
}
