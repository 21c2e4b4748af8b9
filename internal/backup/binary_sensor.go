package backup

// BinarySensor exposes the adopted state as an on/off sensor.
type BinarySensor struct {
	entity *Entity
}

// NewBinarySensor wraps e as a binary sensor.
func NewBinarySensor(e *Entity) *BinarySensor {
	return &BinarySensor{entity: e}
}

var _ Adapter = (*BinarySensor)(nil)

// Platform returns "binary_sensor".
func (b *BinarySensor) Platform() string { return PlatformBinarySensor }

// Selector returns the wrapped entity.
func (b *BinarySensor) Selector() *Entity { return b.entity }

// EntityID returns the derived entity id.
func (b *BinarySensor) EntityID() string { return EntityID(PlatformBinarySensor, b.entity.Name()) }

// IsOn is true when the adopted value is "on".
func (b *BinarySensor) IsOn() bool {
	s, ok := b.entity.Value().(string)
	return ok && s == StateOn
}

// Render returns the state to publish.
func (b *BinarySensor) Render() Rendered {
	state := StateOff
	switch {
	case !b.entity.Available():
		state = StateUnavailable
	case b.IsOn():
		state = StateOn
	}
	return Rendered{State: state, Attributes: baseAttributes(b.entity)}
}
