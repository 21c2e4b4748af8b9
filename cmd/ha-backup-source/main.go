// Package main provides the entry point for the ha-backup-source service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/zorak1103/ha-backup-source/configs"
	"github.com/zorak1103/ha-backup-source/internal/backup"
	"github.com/zorak1103/ha-backup-source/internal/config"
	"github.com/zorak1103/ha-backup-source/internal/homeassistant"
	"github.com/zorak1103/ha-backup-source/internal/hub"
	"github.com/zorak1103/ha-backup-source/internal/logging"
	"github.com/zorak1103/ha-backup-source/internal/server"
)

const (
	startTimeout    = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

// App holds the CLI application state and dependencies.
type App struct {
	cfgFile string
	haURL   string
	haToken string
	port    int
	rootCmd *cobra.Command
}

// NewApp creates a new CLI application instance with all dependencies.
func NewApp() *App {
	app := &App{}
	app.rootCmd = app.buildRootCmd()
	app.setupFlags()
	app.addCommands()
	return app
}

// buildRootCmd creates the root cobra command.
func (a *App) buildRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ha-backup-source",
		Short: "Backup source entities for Home Assistant",
		Long: `ha-backup-source maintains derived Home Assistant entities that mirror
the first entity in a priority list reporting a usable value.

Each configured backup entity (sensor, binary_sensor or weather) follows
its sources over the WebSocket API and publishes the adopted state back
to Home Assistant. Health, metrics and entity status are served over HTTP.`,
		RunE: a.run,
	}
}

// setupFlags configures CLI flags and binds them to viper.
func (a *App) setupFlags() {
	a.rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: ./config.yaml)")
	a.rootCmd.PersistentFlags().StringVar(&a.haURL, "ha-url", "", "Home Assistant URL")
	a.rootCmd.PersistentFlags().StringVar(&a.haToken, "ha-token", "", "Home Assistant long-lived access token")
	a.rootCmd.PersistentFlags().IntVar(&a.port, "port", 0, "status server port")

	bindPFlag("homeassistant.url", a.rootCmd.PersistentFlags().Lookup("ha-url"))
	bindPFlag("homeassistant.token", a.rootCmd.PersistentFlags().Lookup("ha-token"))
	bindPFlag("server.port", a.rootCmd.PersistentFlags().Lookup("port"))
}

// addCommands adds subcommands to the root command.
func (a *App) addCommands() {
	a.rootCmd.AddCommand(a.buildConfigCmd())
	a.rootCmd.AddCommand(a.buildInitCmd())
}

// buildConfigCmd creates the config subcommand that displays the effective configuration.
func (a *App) buildConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Display the effective configuration",
		Long: `Display the effective configuration with sensitive data masked.

This command shows the configuration that would be used if the service were started,
including values from the config file, environment variables, and CLI flags.
Sensitive data like tokens are masked for security.`,
		RunE: a.runConfig,
	}
}

// buildInitCmd creates the init subcommand that creates configuration files.
func (a *App) buildInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration files",
		Long: `Create configuration files in the current directory.

This command creates:
  - config.yaml: YAML configuration file with example backup entities
  - .env: Environment variables file

Existing files are never overwritten.`,
		RunE: a.runInit,
	}
}

// runInit creates configuration files from embedded templates.
func (a *App) runInit(_ *cobra.Command, _ []string) error {
	created := 0

	wasCreated, err := a.writeConfigFile("config.yaml", configs.ConfigYAML)
	if err != nil {
		return err
	}
	if wasCreated {
		created++
	}

	wasCreated, err = a.writeConfigFile(".env", configs.EnvExample)
	if err != nil {
		return err
	}
	if wasCreated {
		created++
	}

	if created == 0 {
		fmt.Println("All configuration files already exist. Nothing to do.")
		return nil
	}

	fmt.Printf("Created %d configuration file(s) in current directory.\n", created)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit .env with your Home Assistant URL and token")
	fmt.Println("  2. Define your backup entities in config.yaml")
	fmt.Println("  3. Run 'ha-backup-source config --config config.yaml' to verify")
	fmt.Println("  4. Run 'ha-backup-source --config config.yaml' to start the service")

	return nil
}

// writeConfigFile writes content to a file if it doesn't already exist.
// Returns true if the file was created, false if it was skipped.
func (a *App) writeConfigFile(filename string, content []byte) (bool, error) {
	if _, err := os.Stat(filename); err == nil {
		fmt.Printf("Skipping %s (already exists)\n", filename)
		return false, nil
	}

	if err := os.WriteFile(filename, content, 0600); err != nil {
		return false, fmt.Errorf("writing %s: %w", filename, err)
	}

	fmt.Printf("Created %s\n", filename)
	return true, nil
}

// runConfig loads and displays the effective configuration with masked sensitive data.
func (a *App) runConfig(_ *cobra.Command, _ []string) error {
	v := viper.New()
	config.BindFlags(v, a.haURL, a.haToken, a.port)

	// No validation: a missing token should still be displayable.
	cfg, err := config.LoadForDisplayWithViper(v, a.cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	fmt.Print(formatConfig(cfg.MaskedConfig()))
	return nil
}

// formatConfig renders a configuration for humans.
func formatConfig(cfg config.Config) string {
	var sb strings.Builder

	sb.WriteString("Effective Configuration\n")
	sb.WriteString("=======================\n\n")
	sb.WriteString("Home Assistant:\n")
	fmt.Fprintf(&sb, "  URL:   %s\n", cfg.HomeAssistant.URL)
	fmt.Fprintf(&sb, "  Token: %s\n\n", cfg.HomeAssistant.Token)
	sb.WriteString("Server:\n")
	fmt.Fprintf(&sb, "  Port:  %d\n\n", cfg.Server.Port)
	sb.WriteString("Logging:\n")
	fmt.Fprintf(&sb, "  Level:  %s\n", cfg.Logging.Level)
	fmt.Fprintf(&sb, "  Format: %s\n\n", cfg.Logging.Format)

	units := unitOverrides(cfg.Units)
	if units != (backup.UnitSystem{}) {
		sb.WriteString("Unit overrides:\n")
		writeUnit(&sb, "Temperature", units.Temperature)
		writeUnit(&sb, "Pressure", units.Pressure)
		writeUnit(&sb, "Wind speed", units.WindSpeed)
		writeUnit(&sb, "Length", units.Length)
		writeUnit(&sb, "Precipitation", units.AccumulatedPrecipitation)
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Entities (%d):\n", len(cfg.Entities))
	for _, e := range cfg.Entities {
		fmt.Fprintf(&sb, "  %s\n", backup.EntityID(e.Platform, e.Name))
		if e.UniqueID != "" {
			fmt.Fprintf(&sb, "    Unique ID:     %s\n", e.UniqueID)
		}
		fmt.Fprintf(&sb, "    Sources:       %s\n", strings.Join(e.Sources, ", "))
		fmt.Fprintf(&sb, "    Skip no value: %t\n", e.SkipEmpty())
	}
	return sb.String()
}

func writeUnit(sb *strings.Builder, label, value string) {
	if value != "" {
		fmt.Fprintf(sb, "  %-14s %s\n", label+":", value)
	}
}

// unitOverrides converts the configured unit overrides.
func unitOverrides(u config.UnitsConfig) backup.UnitSystem {
	return backup.UnitSystem{
		Temperature:              u.Temperature,
		Pressure:                 u.Pressure,
		WindSpeed:                u.WindSpeed,
		Length:                   u.Length,
		AccumulatedPrecipitation: u.AccumulatedPrecipitation,
	}
}

// reloadLogLevel applies a log level read from a changed config file.
func reloadLogLevel(logger *logging.Logger, name string) {
	level, err := logging.ParseLevel(name)
	if err != nil {
		logger.Warn("Ignoring invalid log level from config file", "level", name)
		return
	}
	if level != logger.Level() {
		logger.SetLevel(level)
		logger.Info("Log level reloaded", "level", logging.LevelString(level))
	}
}

// Execute runs the CLI application.
func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

// bindPFlag binds a flag to viper and logs an error if binding fails.
func bindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		log.Printf("warning: failed to bind flag %s: %v", key, err)
	}
}

func main() {
	app := NewApp()
	if err := app.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run executes the main service logic.
func (a *App) run(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logLevel, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Printf("Warning: invalid log level %q, using INFO", cfg.Logging.Level)
		logLevel = logging.LevelInfo
	}
	logFormat, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		log.Printf("Warning: invalid log format %q, using text", cfg.Logging.Format)
	}
	logger := logging.NewWithOptions(logging.Options{Level: logLevel, Format: logFormat})
	logging.SetDefault(logger)

	if a.cfgFile != "" {
		config.WatchLogging(viper.GetViper(), func(lc config.LoggingConfig) {
			reloadLogLevel(logger, lc.Level)
		})
	}

	logger.Info(backup.StartupMessage)
	logger.Info("Home Assistant URL", "url", cfg.HomeAssistant.URL)
	logger.Info("Log level", "level", logging.LevelString(logLevel))
	if len(cfg.Entities) == 0 {
		logger.Warn("No backup entities configured")
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Received signal, shutting down...", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("Connecting to Home Assistant...")
	haClient, err := homeassistant.NewClientWithOptions(ctx, cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, homeassistant.DefaultClientOptions())
	if err != nil {
		return fmt.Errorf("connecting to Home Assistant: %w", err)
	}
	logger.Info("Connected to Home Assistant")

	defer func() {
		logger.Info("Closing Home Assistant connection...")
		if closeErr := homeassistant.CloseClient(haClient); closeErr != nil {
			logger.Error("Error closing Home Assistant client", "error", closeErr)
		}
	}()

	h, err := hub.New(haClient, cfg.Entities, hub.Options{
		Logger: logger,
		Units:  unitOverrides(cfg.Units),
	})
	if err != nil {
		return fmt.Errorf("creating hub: %w", err)
	}
	defer h.Stop()

	startCtx, startCancel := context.WithTimeout(ctx, startTimeout)
	err = h.Start(startCtx)
	startCancel()
	if err != nil {
		return fmt.Errorf("starting hub: %w", err)
	}

	statusServer := server.NewServer(h, h.Metrics().Gatherer(), cfg.Server.Port, logger)
	go func() {
		if err := statusServer.Start(); err != nil {
			logger.Error("Status server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := statusServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down status server", "error", err)
	}

	logger.Info("Shutdown complete")
	return nil
}
