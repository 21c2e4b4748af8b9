package backup

import (
	"bytes"
	"strings"
	"testing"

	"github.com/zorak1103/ha-backup-source/internal/logging"
)

// fakeHost is an in-memory Host. Callbacks run synchronously on the test goroutine.
type fakeHost struct {
	states map[string]State
	units  UnitSystem

	startFns  []func()
	trackers  map[int]tracker
	nextID    int
	published []Rendered
	observed  []observation
}

type tracker struct {
	ids []string
	fn  func(string)
}

type observation struct {
	entityID string
	selected int
	changed  bool
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		states:   map[string]State{},
		trackers: map[int]tracker{},
		units:    MetricUnits,
	}
}

func (h *fakeHost) Get(entityID string) (State, bool) {
	st, ok := h.states[entityID]
	return st, ok
}

func (h *fakeHost) set(entityID string, value any, attrs map[string]any) {
	h.states[entityID] = NewState(entityID, value, attrs)
}

// change sets a state and fires matching trackers, like a state_changed event.
func (h *fakeHost) change(entityID string, value any, attrs map[string]any) {
	h.set(entityID, value, attrs)
	h.fire(entityID)
}

func (h *fakeHost) remove(entityID string) {
	delete(h.states, entityID)
	h.fire(entityID)
}

func (h *fakeHost) fire(entityID string) {
	for _, t := range h.trackers {
		for _, id := range t.ids {
			if id == entityID {
				t.fn(entityID)
				break
			}
		}
	}
}

func (h *fakeHost) TrackStateChange(entityIDs []string, fn func(string)) func() {
	id := h.nextID
	h.nextID++
	h.trackers[id] = tracker{ids: entityIDs, fn: fn}
	return func() { delete(h.trackers, id) }
}

func (h *fakeHost) ListenOnceStarted(fn func()) func() {
	idx := len(h.startFns)
	h.startFns = append(h.startFns, fn)
	return func() {
		if idx < len(h.startFns) {
			h.startFns[idx] = nil
		}
	}
}

func (h *fakeHost) start() {
	fns := h.startFns
	h.startFns = nil
	for _, fn := range fns {
		if fn != nil {
			fn()
		}
	}
}

func (h *fakeHost) RequestPublish(r Renderer) {
	h.published = append(h.published, r.Render())
}

func (h *fakeHost) UnitSystem() UnitSystem { return h.units }

func (h *fakeHost) ObserveRefresh(entityID string, selected int, changed bool) {
	h.observed = append(h.observed, observation{entityID: entityID, selected: selected, changed: changed})
}

// captureLogger returns a DEBUG logger and the buffer it writes to.
func captureLogger() (*logging.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return logging.NewWithWriter(logging.LevelDebug, &buf), &buf
}

func logLines(buf *bytes.Buffer) []string {
	out := strings.TrimRight(buf.String(), "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func mustEntity(t *testing.T, cfg Config, reader StateReader) *Entity {
	t.Helper()
	e, err := NewEntity(cfg, reader, nil)
	if err != nil {
		t.Fatalf("NewEntity() error = %v", err)
	}
	return e
}
