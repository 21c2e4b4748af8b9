// Package backup implements backup source entities: a derived entity that
// mirrors the first source entity in a priority list that reports a usable value.
package backup

import "fmt"

// Integration identity, logged once on startup.
const (
	Name     = "Backup Source"
	Domain   = "backup_source"
	Version  = "1.1.0"
	IssueURL = "https://github.com/zorak1103/ha-backup-source/issues"
)

// StartupMessage is the banner logged once when the service starts.
var StartupMessage = fmt.Sprintf(`
-------------------------------------------------------------------
%s
Version: %s
If you have ANY issues with this you need to open an issue here:
%s
-------------------------------------------------------------------`, Name, Version, IssueURL)

// Platforms a backup entity can be exposed as.
const (
	PlatformSensor       = "sensor"
	PlatformBinarySensor = "binary_sensor"
	PlatformWeather      = "weather"
)

// State sentinels used by the host platform.
const (
	StateUnknown     = "unknown"
	StateUnavailable = "unavailable"
	StateOn          = "on"
	StateOff         = "off"

	// stateNone is what a source renders when its value is a missing object.
	stateNone = "None"
)

// AttrSource records which source entity supplied the adopted state.
const AttrSource = "source"

// Common entity attribute keys.
const (
	AttrFriendlyName      = "friendly_name"
	AttrUnitOfMeasurement = "unit_of_measurement"
	AttrIcon              = "icon"
	AttrEntityPicture     = "entity_picture"
	AttrDeviceClass       = "device_class"
	AttrAssumedState      = "assumed_state"
	AttrAttribution       = "attribution"
	AttrSupportedFeatures = "supported_features"
	AttrLastReset         = "last_reset"
)

// Weather attribute keys.
const (
	AttrWeatherTemperature       = "temperature"
	AttrWeatherTemperatureUnit   = "temperature_unit"
	AttrWeatherPressure          = "pressure"
	AttrWeatherPressureUnit      = "pressure_unit"
	AttrWeatherHumidity          = "humidity"
	AttrWeatherWindSpeed         = "wind_speed"
	AttrWeatherWindSpeedUnit     = "wind_speed_unit"
	AttrWeatherWindBearing       = "wind_bearing"
	AttrWeatherOzone             = "ozone"
	AttrWeatherVisibility        = "visibility"
	AttrWeatherVisibilityUnit    = "visibility_unit"
	AttrWeatherPrecipitationUnit = "precipitation_unit"
	AttrWeatherForecast          = "forecast"
)
