package backup

// Adapter is a platform view over a backup Entity.
type Adapter interface {
	Renderer
	Platform() string
	Selector() *Entity
}

// baseAttributes is the attribute map shared by every platform.
func baseAttributes(e *Entity) map[string]any {
	attrs := e.Attributes()
	attrs[AttrFriendlyName] = e.Name()
	return attrs
}

// Sensor exposes the adopted state as a generic sensor.
type Sensor struct {
	entity *Entity
}

// NewSensor wraps e as a sensor.
func NewSensor(e *Entity) *Sensor {
	return &Sensor{entity: e}
}

var _ Adapter = (*Sensor)(nil)

// Platform returns "sensor".
func (s *Sensor) Platform() string { return PlatformSensor }

// Selector returns the wrapped entity.
func (s *Sensor) Selector() *Entity { return s.entity }

// EntityID returns the derived entity id.
func (s *Sensor) EntityID() string { return EntityID(PlatformSensor, s.entity.Name()) }

// NativeValue returns the adopted value verbatim.
func (s *Sensor) NativeValue() any { return s.entity.Value() }

// NativeUnitOfMeasurement returns the adopted unit, or nil.
func (s *Sensor) NativeUnitOfMeasurement() any { return s.entity.UnitOfMeasurement() }

// LastReset returns the adopted last_reset attribute, or nil.
func (s *Sensor) LastReset() any { return s.entity.State().Attr(AttrLastReset) }

// Render returns the state to publish.
func (s *Sensor) Render() Rendered {
	if !s.entity.Available() {
		return Rendered{State: StateUnavailable, Attributes: baseAttributes(s.entity)}
	}
	return Rendered{
		State:      s.entity.State().ValueString(),
		Attributes: baseAttributes(s.entity),
	}
}
