// Package config provides configuration loading for the ha-backup-source service.
// Configuration is loaded in order: YAML file → .env file → ENV vars → CLI flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported platforms for backup entities.
const (
	PlatformSensor       = "sensor"
	PlatformBinarySensor = "binary_sensor"
	PlatformWeather      = "weather"
)

// ErrNoSources is returned when a backup entity has an empty source list.
var ErrNoSources = errors.New("at least one source is required")

var loadEnvOnce sync.Once

// loadDotEnv loads .env file if it exists (does not override existing env vars).
// It is called once before loading configuration.
func loadDotEnv() {
	loadEnvOnce.Do(func() {
		dotEnvSearchPaths := []string{".env", "configs/.env"}
		for _, f := range dotEnvSearchPaths {
			if _, err := os.Stat(f); err == nil {
				_ = godotenv.Load(f)
				return
			}
		}
	})
}

// mustBindEnv binds an environment variable to a config key, panicking on error.
// This is safe because viper.BindEnv only fails if the key is empty, which is a programming error.
func mustBindEnv(v *viper.Viper, key string, envVars ...string) {
	if err := v.BindEnv(append([]string{key}, envVars...)...); err != nil {
		panic(fmt.Sprintf("failed to bind env var for key %s: %v", key, err))
	}
}

// Config holds all configuration for the ha-backup-source service.
type Config struct {
	HomeAssistant HomeAssistantConfig `mapstructure:"homeassistant"`
	Server        ServerConfig        `mapstructure:"server"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Units         UnitsConfig         `mapstructure:"units"`
	Entities      []EntityConfig      `mapstructure:"entities"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// HomeAssistantConfig holds Home Assistant connection settings.
type HomeAssistantConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

// ServerConfig holds status server settings.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// UnitsConfig overrides the unit system reported by Home Assistant.
// Empty fields keep the value from Home Assistant.
type UnitsConfig struct {
	Temperature              string `mapstructure:"temperature"`
	Pressure                 string `mapstructure:"pressure"`
	WindSpeed                string `mapstructure:"wind_speed"`
	Length                   string `mapstructure:"length"`
	AccumulatedPrecipitation string `mapstructure:"accumulated_precipitation"`
}

// EntityConfig describes one backup entity.
type EntityConfig struct {
	Platform    string   `mapstructure:"platform"`
	Name        string   `mapstructure:"name"`
	UniqueID    string   `mapstructure:"unique_id"`
	Sources     []string `mapstructure:"sources"`
	SkipNoValue *bool    `mapstructure:"skip_no_value"`
}

// SkipEmpty reports whether unusable source states are skipped (default true).
func (e EntityConfig) SkipEmpty() bool {
	if e.SkipNoValue == nil {
		return true
	}
	return *e.SkipNoValue
}

// setupViper applies defaults, reads the optional config file and binds env vars.
func setupViper(v *viper.Viper, configFile string) error {
	loadDotEnv()

	v.SetDefault("homeassistant.url", "http://homeassistant.local:8123")
	v.SetDefault("homeassistant.token", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
	}

	// HA_URL, HA_TOKEN, HA_BACKUP_PORT, HA_BACKUP_LOG_LEVEL, HA_BACKUP_LOG_FORMAT
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	mustBindEnv(v, "homeassistant.url", "HA_URL")
	mustBindEnv(v, "homeassistant.token", "HA_TOKEN")
	mustBindEnv(v, "server.port", "HA_BACKUP_PORT")
	mustBindEnv(v, "logging.level", "HA_BACKUP_LOG_LEVEL")
	mustBindEnv(v, "logging.format", "HA_BACKUP_LOG_FORMAT")
	return nil
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

// Load loads configuration from YAML file, environment variables, and the
// global viper instance (where CLI flags are bound).
// Priority: CLI flags > ENV vars > .env file > YAML file > defaults.
func Load(configFile string) (*Config, error) {
	return LoadWithViper(viper.GetViper(), configFile)
}

// LoadWithViper loads configuration using a pre-configured viper instance.
// This allows CLI flags to be bound before loading.
func LoadWithViper(v *viper.Viper, configFile string) (*Config, error) {
	if err := setupViper(v, configFile); err != nil {
		return nil, err
	}
	cfg, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadForDisplay loads configuration without validation, for display purposes.
// This allows showing the effective configuration even if required fields are missing.
func LoadForDisplay(configFile string) (*Config, error) {
	return LoadForDisplayWithViper(viper.New(), configFile)
}

// LoadForDisplayWithViper is LoadForDisplay on a pre-configured viper instance.
func LoadForDisplayWithViper(v *viper.Viper, configFile string) (*Config, error) {
	if err := setupViper(v, configFile); err != nil {
		return nil, err
	}
	return unmarshal(v)
}

// WatchLogging calls fn with the logging section whenever the config file
// read by v changes. Values still resolve through env vars and flags, so an
// overridden key never changes here.
func WatchLogging(v *viper.Viper, fn func(LoggingConfig)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		fn(LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		})
	})
	v.WatchConfig()
}

// BindFlags binds explicit flag values to viper configuration.
func BindFlags(v *viper.Viper, haURL, haToken string, port int) {
	if haURL != "" {
		v.Set("homeassistant.url", haURL)
	}
	if haToken != "" {
		v.Set("homeassistant.token", haToken)
	}
	if port != 0 {
		v.Set("server.port", port)
	}
}

// normalize trims and lowercases entity references. Comma separated source
// strings are split by viper's default decode hook; the pieces keep their
// surrounding whitespace until here.
func (c *Config) normalize() {
	for i := range c.Entities {
		e := &c.Entities[i]
		e.Platform = strings.ToLower(strings.TrimSpace(e.Platform))
		sources := make([]string, 0, len(e.Sources))
		for _, s := range e.Sources {
			s = strings.ToLower(strings.TrimSpace(s))
			if s != "" {
				sources = append(sources, s)
			}
		}
		e.Sources = sources
	}
}

// MaskedConfig returns a copy of the config with sensitive data masked.
func (c *Config) MaskedConfig() Config {
	masked := *c
	if masked.HomeAssistant.Token != "" {
		masked.HomeAssistant.Token = maskToken(masked.HomeAssistant.Token)
	}
	return masked
}

// maskToken masks a token, showing only the first 4 and last 4 characters.
func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****" + token[len(token)-4:]
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.HomeAssistant.URL == "" {
		return errors.New("homeassistant.url is required")
	}
	if c.HomeAssistant.Token == "" {
		return errors.New("homeassistant.token is required (set via HA_TOKEN env var, --ha-token flag, or config file)")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	for i, e := range c.Entities {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("entities[%d]: %w", i, err)
		}
	}
	return nil
}

// Validate checks a single backup entity definition.
func (e EntityConfig) Validate() error {
	switch e.Platform {
	case PlatformSensor, PlatformBinarySensor, PlatformWeather:
	case "":
		return errors.New("platform is required")
	default:
		return fmt.Errorf("unsupported platform %q (want sensor, binary_sensor or weather)", e.Platform)
	}
	if strings.TrimSpace(e.Name) == "" {
		return errors.New("name is required")
	}
	if len(e.Sources) == 0 {
		return fmt.Errorf("%s: %w", e.Name, ErrNoSources)
	}
	for _, s := range e.Sources {
		if !strings.Contains(s, ".") {
			return fmt.Errorf("%s: invalid entity id %q", e.Name, s)
		}
	}
	return nil
}
