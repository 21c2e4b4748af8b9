package backup

import (
	"fmt"
	"maps"
	"reflect"
)

// State is a snapshot of one entity as held by the host state store.
// A nil Value means the source reported no value at all.
type State struct {
	EntityID   string
	Value      any
	Attributes map[string]any
}

// NewState builds a State, copying attrs so later changes by the caller
// do not leak into the snapshot.
func NewState(entityID string, value any, attrs map[string]any) State {
	return State{
		EntityID:   entityID,
		Value:      value,
		Attributes: maps.Clone(attrs),
	}
}

// unavailableState is the placeholder adopted for a source that never reported.
func unavailableState(entityID string) State {
	return State{
		EntityID:   entityID,
		Value:      StateUnavailable,
		Attributes: map[string]any{},
	}
}

// HasValue reports whether s carries a usable value. Non-string values are
// always usable; no type coercion happens here.
func HasValue(s State) bool {
	if s.Value == nil {
		return false
	}
	str, ok := s.Value.(string)
	if !ok {
		return true
	}
	switch str {
	case StateUnknown, StateUnavailable, stateNone, "":
		return false
	}
	return true
}

// Equal reports whether two snapshots have the same source, value and attributes.
func (s State) Equal(other State) bool {
	if s.EntityID != other.EntityID {
		return false
	}
	if !reflect.DeepEqual(s.Value, other.Value) {
		return false
	}
	if len(s.Attributes) == 0 && len(other.Attributes) == 0 {
		return true
	}
	return reflect.DeepEqual(s.Attributes, other.Attributes)
}

// ValueString renders the value the way the host platform stores states.
func (s State) ValueString() string {
	switch v := s.Value.(type) {
	case nil:
		return StateUnknown
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Attr returns the attribute stored under key, or nil.
func (s State) Attr(key string) any {
	return s.Attributes[key]
}
