package backup

import (
	"errors"
	"maps"
	"slices"
	"strings"
	"unicode"

	"github.com/zorak1103/ha-backup-source/internal/logging"
)

// ErrNoSources is returned when an entity is built or reconfigured without sources.
var ErrNoSources = errors.New("backup entity needs at least one source")

// Config describes a backup entity. Sources must already be resolved
// (groups expanded) and are in priority order.
type Config struct {
	Name        string
	UniqueID    string
	Sources     []string
	SkipNoValue bool
}

// Entity selects the first source with a usable value and adopts its state.
// It is not safe for concurrent use; the host serializes all calls.
type Entity struct {
	name        string
	uniqueID    string
	sources     []string
	skipNoValue bool

	reader StateReader
	logger *logging.Logger

	state    State
	selected int
}

// NewEntity creates an Entity whose initial state is the first source's
// current state, or "unavailable" if the store does not know it yet.
func NewEntity(cfg Config, reader StateReader, logger *logging.Logger) (*Entity, error) {
	if len(cfg.Sources) == 0 {
		return nil, ErrNoSources
	}
	if logger == nil {
		logger = logging.Discard()
	}

	e := &Entity{
		name:        cfg.Name,
		uniqueID:    cfg.UniqueID,
		sources:     slices.Clone(cfg.Sources),
		skipNoValue: cfg.SkipNoValue,
		reader:      reader,
		logger:      logger,
	}
	e.state, e.selected = e.firstSourceState()
	return e, nil
}

// Name returns the display name.
func (e *Entity) Name() string { return e.name }

// UniqueID returns the optional stable identifier.
func (e *Entity) UniqueID() string { return e.uniqueID }

// SkipNoValue reports whether unusable states are skipped during a scan.
func (e *Entity) SkipNoValue() bool { return e.skipNoValue }

// Sources returns a copy of the priority-ordered source list.
func (e *Entity) Sources() []string { return slices.Clone(e.sources) }

// Reconfigure replaces the source list. The adopted state is kept until the
// next Refresh.
func (e *Entity) Reconfigure(sources []string) error {
	if len(sources) == 0 {
		return ErrNoSources
	}
	e.sources = slices.Clone(sources)
	return nil
}

// State returns the adopted state. Callers must treat Attributes as read-only.
func (e *Entity) State() State { return e.state }

// SelectedIndex returns the position of the adopted source in the list,
// or -1 if the last scan found nothing and fell back.
func (e *Entity) SelectedIndex() int { return e.selected }

// Refresh scans the sources in order and adopts the first acceptable state.
//
// A source is skipped when the store has no state for it, or when
// skipNoValue is set and its state has no usable value. If every source is
// skipped the entity falls back to the first source's state.
func (e *Entity) Refresh() {
	for i, id := range e.sources {
		st, ok := e.reader.Get(id)
		if !ok {
			e.logger.Debug("Source entity not found", "source", id)
			continue
		}
		if e.skipNoValue && !HasValue(st) {
			e.logger.Debug("Source state has no usable value", "source", id, "state", st.ValueString())
			continue
		}
		e.logger.Debug("Source selected", "source", id, "index", i)
		e.state, e.selected = st, i
		return
	}

	e.state, _ = e.firstSourceState()
	e.selected = -1
	e.logger.Debug("No source has a usable value, falling back to first source", "source", e.sources[0])
}

// Update refreshes and reports whether the adopted state changed.
func (e *Entity) Update() bool {
	previous := e.state
	e.Refresh()
	return !previous.Equal(e.state)
}

func (e *Entity) firstSourceState() (State, int) {
	if st, ok := e.reader.Get(e.sources[0]); ok {
		return st, 0
	}
	return unavailableState(e.sources[0]), -1
}

// Available is false exactly when the adopted value is "unavailable".
func (e *Entity) Available() bool {
	s, ok := e.state.Value.(string)
	return !ok || s != StateUnavailable
}

// Value returns the adopted value verbatim.
func (e *Entity) Value() any { return e.state.Value }

// Attributes returns a copy of the adopted attributes tagged with the
// source entity id.
func (e *Entity) Attributes() map[string]any {
	attrs := maps.Clone(e.state.Attributes)
	if attrs == nil {
		attrs = make(map[string]any, 1)
	}
	attrs[AttrSource] = e.state.EntityID
	return attrs
}

// UnitOfMeasurement returns the adopted unit, or nil.
func (e *Entity) UnitOfMeasurement() any { return e.state.Attr(AttrUnitOfMeasurement) }

// Icon returns the adopted icon, or nil.
func (e *Entity) Icon() any { return e.state.Attr(AttrIcon) }

// EntityPicture returns the adopted picture URL, or nil.
func (e *Entity) EntityPicture() any { return e.state.Attr(AttrEntityPicture) }

// DeviceClass returns the adopted device class, or nil.
func (e *Entity) DeviceClass() any { return e.state.Attr(AttrDeviceClass) }

// Attribution returns the adopted attribution, or nil.
func (e *Entity) Attribution() any { return e.state.Attr(AttrAttribution) }

// SupportedFeatures returns the adopted feature bitmask, or nil.
func (e *Entity) SupportedFeatures() any { return e.state.Attr(AttrSupportedFeatures) }

// AssumedState returns the adopted assumed_state flag, false when absent.
func (e *Entity) AssumedState() bool {
	b, _ := e.state.Attr(AttrAssumedState).(bool)
	return b
}

// EntityID builds "<platform>.<object_id>" from a display name the way the
// host slugifies names.
func EntityID(platform, name string) string {
	return platform + "." + Slugify(name)
}

// Slugify lowercases s and collapses every run of non alphanumerics to "_".
func Slugify(s string) string {
	var sb strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && sb.Len() > 0 {
				sb.WriteByte('_')
			}
			pendingSep = false
			sb.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	if sb.Len() == 0 {
		return "unnamed"
	}
	return sb.String()
}
