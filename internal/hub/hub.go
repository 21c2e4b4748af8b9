// Package hub hosts backup entities against a live Home Assistant instance.
// It mirrors the instance's state machine in memory, dispatches state changes
// to the entities on a single goroutine and writes their rendered state back.
package hub

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/zorak1103/ha-backup-source/internal/backup"
	"github.com/zorak1103/ha-backup-source/internal/config"
	"github.com/zorak1103/ha-backup-source/internal/homeassistant"
	"github.com/zorak1103/ha-backup-source/internal/logging"
)

const (
	eventQueueSize        = 1024
	defaultPublishTimeout = 10 * time.Second
)

// ErrStopped is returned when work is submitted to a stopped hub.
var ErrStopped = errors.New("hub stopped")

// Options configures a Hub.
type Options struct {
	Logger  *logging.Logger
	Metrics *Metrics

	// Units overrides the unit system reported by Home Assistant.
	Units backup.UnitSystem

	// PublishTimeout bounds a single state write. Zero means 10s.
	PublishTimeout time.Duration
}

// Hub implements backup.Host on top of a homeassistant.Client.
type Hub struct {
	client         homeassistant.Client
	logger         *logging.Logger
	metrics        *Metrics
	overrides      backup.UnitSystem
	publishTimeout time.Duration
	configs        []config.EntityConfig

	unitsMu sync.RWMutex
	units   backup.UnitSystem

	// Owned by the loop goroutine.
	states   map[string]backup.State
	updated  map[string]time.Time
	removed  map[string]struct{} // removals seen since the last seed
	trackers map[int]*tracker
	startFns map[int]func()
	nextID   int
	started  bool
	managed  []*managedEntity

	events chan func()

	pubMu     sync.Mutex
	pending   map[string]backup.Rendered
	pubOrder  []string
	pubSignal chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

type tracker struct {
	ids map[string]struct{}
	fn  func(entityID string)
}

type managedEntity struct {
	cfg     config.EntityConfig
	entity  *backup.Entity
	binding *backup.Binding
}

// Ensure Hub implements the host contracts at compile time.
var (
	_ backup.Host            = (*Hub)(nil)
	_ backup.RefreshObserver = (*Hub)(nil)
)

// New creates a hub for the given entity configurations. Entities are built
// during Start, once the state store is seeded.
func New(client homeassistant.Client, entities []config.EntityConfig, opts Options) (*Hub, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}

	seen := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		id := backup.EntityID(e.Platform, e.Name)
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate entity %s", id)
		}
		seen[id] = struct{}{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	timeout := opts.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		client:         client,
		logger:         logger,
		metrics:        metrics,
		overrides:      opts.Units,
		publishTimeout: timeout,
		configs:        slices.Clone(entities),
		units:          opts.Units.Merge(backup.MetricUnits),
		states:         make(map[string]backup.State),
		updated:        make(map[string]time.Time),
		removed:        make(map[string]struct{}),
		trackers:       make(map[int]*tracker),
		startFns:       make(map[int]func()),
		events:         make(chan func(), eventQueueSize),
		pending:        make(map[string]backup.Rendered),
		pubSignal:      make(chan struct{}, 1),
		ctx:            ctx,
		cancel:         cancel,
	}, nil
}

// Metrics returns the hub's collectors.
func (h *Hub) Metrics() *Metrics { return h.metrics }

// Start loads the unit system, subscribes to state changes, seeds the state
// store, builds every configured entity and fires the started signal.
func (h *Hub) Start(ctx context.Context) error {
	h.run()

	h.setUnits(h.loadUnits(ctx))

	if err := h.client.SubscribeStateChanged(ctx, h.handleStateChanged); err != nil {
		return fmt.Errorf("subscribing to state changes: %w", err)
	}

	entities, err := h.client.GetStates(ctx)
	if err != nil {
		return fmt.Errorf("loading states: %w", err)
	}

	var built int
	err = h.do(ctx, func() {
		h.seed(entities, false)
		built = h.buildEntities()
		h.fireStarted()
	})
	if err != nil {
		return err
	}

	if mon, ok := h.client.(homeassistant.ConnectionMonitor); ok {
		mon.SetOnReconnect(h.handleReconnect)
		mon.SetOnDisconnect(h.handleDisconnect)
	}

	h.logger.Info("Hub started", "entities", built, "states", len(entities))
	return nil
}

// Stop removes every binding and waits for the hub goroutines to exit.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		_ = h.do(context.Background(), func() {
			for _, m := range h.managed {
				m.binding.Remove()
			}
		})
		h.cancel()
		h.wg.Wait()
		h.logger.Debug("Hub stopped")
	})
}

// Connected reports whether the Home Assistant connection is up and answering
// pings. Clients without a long-lived connection are always considered
// connected.
func (h *Hub) Connected() bool {
	if mon, ok := h.client.(homeassistant.ConnectionMonitor); ok {
		return mon.IsConnected() && mon.IsHealthy()
	}
	return true
}

// run starts the loop and publisher goroutines once.
func (h *Hub) run() {
	h.startOnce.Do(func() {
		h.wg.Add(2)
		go h.loop()
		go h.publishLoop()
	})
}

func (h *Hub) loadUnits(ctx context.Context) backup.UnitSystem {
	cfg, err := h.client.GetConfig(ctx)
	if err != nil {
		h.logger.Warn("Failed to load Home Assistant unit system, using metric defaults", "error", err)
		return h.overrides.Merge(backup.MetricUnits)
	}
	ha := backup.UnitSystem{
		Temperature:              cfg.UnitSystem.Temperature,
		Pressure:                 cfg.UnitSystem.Pressure,
		WindSpeed:                cfg.UnitSystem.WindSpeed,
		Length:                   cfg.UnitSystem.Length,
		AccumulatedPrecipitation: cfg.UnitSystem.AccumulatedPrecipitation,
	}
	return h.overrides.Merge(ha).Merge(backup.MetricUnits)
}

func (h *Hub) setUnits(u backup.UnitSystem) {
	h.unitsMu.Lock()
	h.units = u
	h.unitsMu.Unlock()
}

// loop runs every submitted function in order. It is the only goroutine that
// touches the state store, the trackers and the bindings.
func (h *Hub) loop() {
	defer h.wg.Done()
	for {
		select {
		case <-h.ctx.Done():
			return
		case fn := <-h.events:
			fn()
		}
	}
}

// submit queues fn on the loop without waiting for it to run.
func (h *Hub) submit(fn func()) {
	select {
	case h.events <- fn:
	case <-h.ctx.Done():
	}
}

// do runs fn on the loop and waits for it to finish.
func (h *Hub) do(ctx context.Context, fn func()) error {
	if h.ctx.Err() != nil {
		return ErrStopped
	}
	h.run()

	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}

	select {
	case h.events <- wrapped:
	case <-h.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-h.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// seed loads a full state snapshot into the store. With replace set, entities
// missing from the snapshot are dropped. Entities removed while the snapshot
// was in flight stay removed.
func (h *Hub) seed(entities []homeassistant.Entity, replace bool) {
	seen := make(map[string]struct{}, len(entities))
	for i := range entities {
		e := &entities[i]
		id := normalizeID(e.EntityID)
		seen[id] = struct{}{}
		if _, gone := h.removed[id]; gone {
			continue
		}
		if last, ok := h.updated[id]; ok && !replace && last.After(e.LastUpdated) {
			continue
		}
		h.states[id] = backup.NewState(id, e.State, e.Attributes)
		h.updated[id] = e.LastUpdated
	}
	clear(h.removed)

	if !replace {
		return
	}
	for id := range h.states {
		if _, ok := seen[id]; !ok {
			delete(h.states, id)
			delete(h.updated, id)
		}
	}
}

func (h *Hub) buildEntities() int {
	for _, cfg := range h.configs {
		id := backup.EntityID(cfg.Platform, cfg.Name)
		sources := h.expandSources(cfg.Sources)

		entity, err := backup.NewEntity(backup.Config{
			Name:        cfg.Name,
			UniqueID:    cfg.UniqueID,
			Sources:     sources,
			SkipNoValue: cfg.SkipEmpty(),
		}, h, h.logger.With("entity", id))
		if err != nil {
			h.logger.Error("Failed to create backup entity", "entity", id, "error", err)
			continue
		}

		var adapter backup.Adapter
		switch cfg.Platform {
		case config.PlatformSensor:
			adapter = backup.NewSensor(entity)
		case config.PlatformBinarySensor:
			adapter = backup.NewBinarySensor(entity)
		case config.PlatformWeather:
			adapter = backup.NewWeather(entity, h.UnitSystem)
		default:
			h.logger.Error("Unsupported platform", "entity", id, "platform", cfg.Platform)
			continue
		}

		h.managed = append(h.managed, &managedEntity{
			cfg:     cfg,
			entity:  entity,
			binding: backup.Bind(h, adapter),
		})
		h.logger.Debug("Backup entity created", "entity", id, "sources", sources)
	}
	return len(h.managed)
}

// expandSources resolves group references against the store. When nothing
// resolves, the configured ids are used as-is so the entity stays trackable.
// This covers known groups without members too: the entity then follows the
// group's own state until members appear.
func (h *Hub) expandSources(configured []string) []string {
	sources := homeassistant.ExpandEntityIDs(configured, h.groupMembers)
	if len(sources) > 0 {
		return sources
	}
	fallback := make([]string, 0, len(configured))
	for _, id := range configured {
		if id = normalizeID(id); id != "" {
			fallback = append(fallback, id)
		}
	}
	return fallback
}

func (h *Hub) groupMembers(groupID string) ([]string, bool) {
	s, ok := h.states[groupID]
	if !ok {
		return nil, false
	}
	return homeassistant.GroupMembers(s.Attributes), true
}

func (h *Hub) fireStarted() {
	if h.started {
		return
	}
	h.started = true
	for _, id := range sortedKeys(h.startFns) {
		fn, ok := h.startFns[id]
		if !ok {
			continue
		}
		delete(h.startFns, id)
		fn()
	}
}

// handleStateChanged is called from the client's read goroutine.
func (h *Hub) handleStateChanged(ev homeassistant.StateChangedEvent) {
	h.metrics.observeEvent()
	h.submit(func() { h.applyStateChanged(ev) })
}

func (h *Hub) applyStateChanged(ev homeassistant.StateChangedEvent) {
	id := normalizeID(ev.EntityID)
	if id == "" {
		return
	}

	if ev.NewState == nil {
		delete(h.states, id)
		delete(h.updated, id)
		h.removed[id] = struct{}{}
		h.logger.Trace("State removed", "entity_id", id)
	} else {
		h.states[id] = backup.NewState(id, ev.NewState.State, ev.NewState.Attributes)
		h.updated[id] = ev.NewState.LastUpdated
		delete(h.removed, id)
		h.logger.Trace("State changed", "entity_id", id, "state", ev.NewState.State)
	}

	if strings.HasPrefix(id, "group.") {
		h.reexpand(false)
	}
	h.dispatch(id)
}

// dispatch calls every tracker registered for entityID, in registration order.
func (h *Hub) dispatch(entityID string) {
	for _, tid := range sortedKeys(h.trackers) {
		t, ok := h.trackers[tid]
		if !ok {
			continue
		}
		if _, match := t.ids[entityID]; match {
			t.fn(entityID)
		}
	}
}

// reexpand recomputes every entity's source list. Entities whose list
// changed are reconfigured; with resync set the others refresh as well.
func (h *Hub) reexpand(resync bool) {
	for _, m := range h.managed {
		sources := h.expandSources(m.cfg.Sources)
		if slices.Equal(sources, m.entity.Sources()) {
			if resync {
				m.binding.Resync()
			}
			continue
		}
		if err := m.binding.Reconfigure(sources); err != nil {
			h.logger.Warn("Failed to reconfigure backup entity", "entity", m.binding.Adapter().EntityID(), "error", err)
			continue
		}
		h.logger.Debug("Backup entity sources changed", "entity", m.binding.Adapter().EntityID(), "sources", sources)
	}
}

func (h *Hub) handleReconnect(attempts int) {
	h.logger.Info("Reconnected to Home Assistant, resyncing states", "attempts", attempts)

	ctx, cancel := context.WithTimeout(h.ctx, h.publishTimeout)
	defer cancel()

	// Only removals seen after the snapshot is requested may veto it.
	if err := h.do(ctx, func() { clear(h.removed) }); err != nil {
		return
	}
	entities, err := h.client.GetStates(ctx)
	if err != nil {
		h.logger.Warn("Failed to reload states after reconnect", "error", err)
		return
	}
	h.submit(func() {
		h.seed(entities, true)
		h.reexpand(true)
	})
}

func (h *Hub) handleDisconnect(err error) {
	h.logger.Warn("Connection to Home Assistant lost", "error", err)
}

// Get implements backup.StateReader.
func (h *Hub) Get(entityID string) (backup.State, bool) {
	s, ok := h.states[normalizeID(entityID)]
	return s, ok
}

// TrackStateChange implements backup.Host.
func (h *Hub) TrackStateChange(entityIDs []string, fn func(entityID string)) func() {
	ids := make(map[string]struct{}, len(entityIDs))
	for _, id := range entityIDs {
		ids[normalizeID(id)] = struct{}{}
	}
	tid := h.nextID
	h.nextID++
	h.trackers[tid] = &tracker{ids: ids, fn: fn}
	return func() { delete(h.trackers, tid) }
}

// ListenOnceStarted implements backup.Host. When the hub has already started
// fn runs immediately.
func (h *Hub) ListenOnceStarted(fn func()) func() {
	if h.started {
		fn()
		return func() {}
	}
	id := h.nextID
	h.nextID++
	h.startFns[id] = fn
	return func() { delete(h.startFns, id) }
}

// RequestPublish implements backup.Host. The state is rendered right away and
// handed to the publisher; a newer render of the same entity replaces a
// pending one.
func (h *Hub) RequestPublish(r backup.Renderer) {
	id := r.EntityID()
	rendered := r.Render()

	h.pubMu.Lock()
	if _, queued := h.pending[id]; !queued {
		h.pubOrder = append(h.pubOrder, id)
	}
	h.pending[id] = rendered
	h.pubMu.Unlock()

	select {
	case h.pubSignal <- struct{}{}:
	default:
	}
}

// UnitSystem implements backup.Host.
func (h *Hub) UnitSystem() backup.UnitSystem {
	h.unitsMu.RLock()
	defer h.unitsMu.RUnlock()
	return h.units
}

// ObserveRefresh implements backup.RefreshObserver.
func (h *Hub) ObserveRefresh(entityID string, selected int, changed bool) {
	h.metrics.observeRefresh(entityID, selected)
	if changed {
		h.logger.Trace("Backup entity refreshed", "entity", entityID, "selected", selected)
	}
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
