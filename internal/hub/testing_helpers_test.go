package hub

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zorak1103/ha-backup-source/internal/homeassistant"
)

const waitTimeout = 2 * time.Second

// fakeClient is an in-memory homeassistant.Client.
type fakeClient struct {
	mu        sync.Mutex
	states    []homeassistant.Entity
	config    *homeassistant.Config
	configErr error
	setErr    error
	handler   func(homeassistant.StateChangedEvent)

	published chan homeassistant.Entity
}

func newFakeClient(states ...homeassistant.Entity) *fakeClient {
	return &fakeClient{
		states:    states,
		config:    &homeassistant.Config{},
		published: make(chan homeassistant.Entity, 64),
	}
}

func (c *fakeClient) GetStates(_ context.Context) ([]homeassistant.Entity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]homeassistant.Entity(nil), c.states...), nil
}

func (c *fakeClient) SetState(_ context.Context, entityID string, update homeassistant.StateUpdate) (*homeassistant.Entity, error) {
	c.mu.Lock()
	err := c.setErr
	c.mu.Unlock()

	e := homeassistant.Entity{EntityID: entityID, State: update.State, Attributes: update.Attributes}
	c.published <- e
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *fakeClient) GetConfig(_ context.Context) (*homeassistant.Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.configErr != nil {
		return nil, c.configErr
	}
	return c.config, nil
}

func (c *fakeClient) SubscribeStateChanged(_ context.Context, handler func(homeassistant.StateChangedEvent)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
	return nil
}

func (c *fakeClient) setStates(states ...homeassistant.Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = states
}

// emit delivers a state_changed event the way the WebSocket reader would.
func (c *fakeClient) emit(entityID string, newState *homeassistant.Entity) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	handler(homeassistant.StateChangedEvent{EntityID: entityID, NewState: newState})
}

// monitoredClient adds connection callbacks to fakeClient.
type monitoredClient struct {
	*fakeClient

	mu          sync.Mutex
	connected   bool
	stale       bool // pongs overdue
	onReconnect homeassistant.OnReconnectFunc
}

func (c *monitoredClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *monitoredClient) IsHealthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && !c.stale
}

func (c *monitoredClient) setStale(stale bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stale = stale
}

func (c *monitoredClient) SetOnReconnect(fn homeassistant.OnReconnectFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnect = fn
}

func (c *monitoredClient) SetOnDisconnect(homeassistant.OnDisconnectFunc) {}

func (c *monitoredClient) reconnect() {
	c.mu.Lock()
	fn := c.onReconnect
	c.mu.Unlock()
	fn(1)
}

// removingClient reports a removal while its snapshot is in flight.
type removingClient struct {
	*fakeClient
	removedID string
}

func (c *removingClient) GetStates(ctx context.Context) ([]homeassistant.Entity, error) {
	states, err := c.fakeClient.GetStates(ctx)
	c.emit(c.removedID, nil)
	return states, err
}

func entity(id, state string, attrs map[string]any) homeassistant.Entity {
	return homeassistant.Entity{EntityID: id, State: state, Attributes: attrs}
}

func entityPtr(id, state string, attrs map[string]any) *homeassistant.Entity {
	e := entity(id, state, attrs)
	return &e
}

// waitPublished returns the next published state for entityID.
func waitPublished(t *testing.T, c *fakeClient, entityID string) homeassistant.Entity {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case e := <-c.published:
			if e.EntityID == entityID {
				return e
			}
		case <-deadline:
			t.Fatalf("no state published for %s", entityID)
			return homeassistant.Entity{}
		}
	}
}

// assertNoPublish fails if anything is published within a short window.
func assertNoPublish(t *testing.T, c *fakeClient) {
	t.Helper()
	select {
	case e := <-c.published:
		t.Fatalf("unexpected publish %s = %q", e.EntityID, e.State)
	case <-time.After(50 * time.Millisecond):
	}
}

func startHub(t *testing.T, h *Hub) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(h.Stop)
}

// flush waits until every event queued so far has been applied.
func flush(t *testing.T, h *Hub) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := h.do(ctx, func() {}); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

// scrape renders the hub metrics in the Prometheus text format.
func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	srv := httptest.NewServer(promhttp.HandlerFor(m.Gatherer(), promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	return string(body)
}

// eventually polls cond until it holds or the wait times out.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func hasLine(text, line string) bool {
	for _, l := range strings.Split(text, "\n") {
		if l == line {
			return true
		}
	}
	return false
}
