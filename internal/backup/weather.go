package backup

// Weather exposes the adopted state as a weather entity.
//
// Unit fields prefer the unit attribute published by the adopted source and
// fall back to the host unit system only when the source has none.
type Weather struct {
	entity *Entity
	units  func() UnitSystem
}

// NewWeather wraps e as a weather entity. units is consulted on every read so
// that a unit system loaded after construction is honored.
func NewWeather(e *Entity, units func() UnitSystem) *Weather {
	if units == nil {
		units = func() UnitSystem { return MetricUnits }
	}
	return &Weather{entity: e, units: units}
}

var _ Adapter = (*Weather)(nil)

// Platform returns "weather".
func (w *Weather) Platform() string { return PlatformWeather }

// Selector returns the wrapped entity.
func (w *Weather) Selector() *Entity { return w.entity }

// EntityID returns the derived entity id.
func (w *Weather) EntityID() string { return EntityID(PlatformWeather, w.entity.Name()) }

func (w *Weather) attr(key string) any { return w.entity.State().Attr(key) }

// unit returns the source's unit attribute if it is a non-empty string,
// otherwise fallback.
func (w *Weather) unit(key, fallback string) string {
	if s, ok := w.attr(key).(string); ok && s != "" {
		return s
	}
	return fallback
}

// Condition returns the adopted value, which for weather sources is the condition.
func (w *Weather) Condition() any { return w.entity.Value() }

// Temperature returns the adopted temperature.
func (w *Weather) Temperature() any { return w.attr(AttrWeatherTemperature) }

// TemperatureUnit returns the temperature unit.
func (w *Weather) TemperatureUnit() string {
	return w.unit(AttrWeatherTemperatureUnit, w.units().Temperature)
}

// Pressure returns the adopted pressure.
func (w *Weather) Pressure() any { return w.attr(AttrWeatherPressure) }

// PressureUnit returns the pressure unit.
func (w *Weather) PressureUnit() string {
	return w.unit(AttrWeatherPressureUnit, w.units().Pressure)
}

// Humidity returns the adopted humidity.
func (w *Weather) Humidity() any { return w.attr(AttrWeatherHumidity) }

// WindSpeed returns the adopted wind speed.
func (w *Weather) WindSpeed() any { return w.attr(AttrWeatherWindSpeed) }

// WindSpeedUnit returns the wind speed unit.
func (w *Weather) WindSpeedUnit() string {
	return w.unit(AttrWeatherWindSpeedUnit, w.units().WindSpeed)
}

// WindBearing returns the adopted wind bearing.
func (w *Weather) WindBearing() any { return w.attr(AttrWeatherWindBearing) }

// Ozone returns the adopted ozone level.
func (w *Weather) Ozone() any { return w.attr(AttrWeatherOzone) }

// Visibility returns the adopted visibility.
func (w *Weather) Visibility() any { return w.attr(AttrWeatherVisibility) }

// VisibilityUnit returns the visibility unit.
func (w *Weather) VisibilityUnit() string {
	return w.unit(AttrWeatherVisibilityUnit, w.units().Length)
}

// PrecipitationUnit returns the accumulated precipitation unit.
func (w *Weather) PrecipitationUnit() string {
	return w.unit(AttrWeatherPrecipitationUnit, w.units().AccumulatedPrecipitation)
}

// Forecast returns the adopted forecast entries. Entries that are not
// objects are dropped; a source without a forecast yields nil.
func (w *Weather) Forecast() []map[string]any {
	raw, ok := w.attr(AttrWeatherForecast).([]any)
	if !ok {
		if typed, ok := w.attr(AttrWeatherForecast).([]map[string]any); ok {
			return typed
		}
		return nil
	}
	forecast := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		if m, ok := entry.(map[string]any); ok {
			forecast = append(forecast, m)
		}
	}
	return forecast
}

// Render returns the state to publish.
func (w *Weather) Render() Rendered {
	// Measurements are already present in the copied source attributes.
	attrs := baseAttributes(w.entity)

	attrs[AttrWeatherTemperatureUnit] = w.TemperatureUnit()
	attrs[AttrWeatherPressureUnit] = w.PressureUnit()
	attrs[AttrWeatherWindSpeedUnit] = w.WindSpeedUnit()
	attrs[AttrWeatherVisibilityUnit] = w.VisibilityUnit()
	attrs[AttrWeatherPrecipitationUnit] = w.PrecipitationUnit()

	if forecast := w.Forecast(); forecast != nil {
		attrs[AttrWeatherForecast] = forecast
	}

	state := StateUnavailable
	if w.entity.Available() {
		state = w.entity.State().ValueString()
	}
	return Rendered{State: state, Attributes: attrs}
}
