package backup

// StateReader gives read access to the host state store.
// Get must not block; it is called once per source on every refresh.
type StateReader interface {
	Get(entityID string) (State, bool)
}

// Host is the runtime a backup entity is plugged into. All callbacks
// registered through it are invoked from a single dispatch goroutine.
type Host interface {
	StateReader

	// TrackStateChange calls fn whenever one of entityIDs changes state.
	// The returned function removes the registration.
	TrackStateChange(entityIDs []string, fn func(entityID string)) (cancel func())

	// ListenOnceStarted calls fn once when the host has finished starting.
	ListenOnceStarted(fn func()) (cancel func())

	// RequestPublish schedules a forced state write for r.
	RequestPublish(r Renderer)

	// UnitSystem returns the host's configured units.
	UnitSystem() UnitSystem
}

// RefreshObserver is optionally implemented by a Host that wants to see
// every refresh, e.g. for metrics.
type RefreshObserver interface {
	ObserveRefresh(entityID string, selected int, changed bool)
}

// Renderer is what the host needs to publish a derived entity.
type Renderer interface {
	EntityID() string
	Render() Rendered
}

// Rendered is the state and attribute map written to the host.
type Rendered struct {
	State      string
	Attributes map[string]any
}

// UnitSystem lists the host's configured units used as weather defaults.
type UnitSystem struct {
	Temperature              string
	Pressure                 string
	WindSpeed                string
	Length                   string
	AccumulatedPrecipitation string
}

// MetricUnits is the unit system used when the host reports none.
var MetricUnits = UnitSystem{
	Temperature:              "°C",
	Pressure:                 "hPa",
	WindSpeed:                "km/h",
	Length:                   "km",
	AccumulatedPrecipitation: "mm",
}

// Merge returns u with empty fields filled in from fallback.
func (u UnitSystem) Merge(fallback UnitSystem) UnitSystem {
	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}
	return UnitSystem{
		Temperature:              pick(u.Temperature, fallback.Temperature),
		Pressure:                 pick(u.Pressure, fallback.Pressure),
		WindSpeed:                pick(u.WindSpeed, fallback.WindSpeed),
		Length:                   pick(u.Length, fallback.Length),
		AccumulatedPrecipitation: pick(u.AccumulatedPrecipitation, fallback.AccumulatedPrecipitation),
	}
}
