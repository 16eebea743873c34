package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete DsServer configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DSSERVER_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each blob store backend has its own type-specific map (store.filesystem,
// store.s3). Only the map matching store.type is decoded, by the factory.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server holds the DsServer construction parameters
	Server ServerConfig `mapstructure:"server"`

	// ProcMap configures the process-liveness registry
	ProcMap ProcMapConfig `mapstructure:"procmap"`

	// Store selects the blob store served by the data handler
	Store StoreConfig `mapstructure:"store"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig mirrors dsserver.Config in file form.
type ServerConfig struct {
	// Name is the executable name reported by IS_ALIVE and used as the
	// process registry key. Empty uses the binary name.
	Name string `mapstructure:"name"`

	// Instance distinguishes servers of the same name. Empty uses the port.
	Instance string `mapstructure:"instance"`

	// Host is the address to bind. Empty binds every interface.
	Host string `mapstructure:"host"`

	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// MaxClients is the admission ceiling; 0 means unbounded. The
	// DS_SERVER_MAX_CLIENTS environment variable overrides it.
	MaxClients int `mapstructure:"max_clients" validate:"gte=0"`

	// MaxQuiescent is the idle period after which the server exits; 0
	// disables idle exit.
	MaxQuiescent time.Duration `mapstructure:"max_quiescent" validate:"gte=0"`

	AcceptTimeout    time.Duration `mapstructure:"accept_timeout" validate:"gt=0"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	DenyWriteTimeout time.Duration `mapstructure:"deny_write_timeout" validate:"gt=0"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// MaxMessageSize caps an incoming request frame in bytes.
	MaxMessageSize uint32 `mapstructure:"max_message_size" validate:"gte=32"`

	MaxAcceptFailures int `mapstructure:"max_accept_failures" validate:"gt=0"`

	// AcceptRate limits admissions per second; 0 disables the limit.
	AcceptRate  float64 `mapstructure:"accept_rate" validate:"gte=0"`
	AcceptBurst int     `mapstructure:"accept_burst" validate:"gte=0"`

	// Mode is per_connection (a goroutine per client) or inline.
	Mode string `mapstructure:"mode" validate:"required,oneof=per_connection inline"`

	// Debug makes data handler failures terminate the server.
	Debug bool `mapstructure:"debug"`

	// Verbose logs every request. Implies debug.
	Verbose bool `mapstructure:"verbose"`
}

// ProcMapConfig configures the process-liveness registry.
type ProcMapConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Type specifies the registry backend
	// Valid values: memory, badger
	Type string `mapstructure:"type" validate:"required,oneof=memory badger"`

	// RegisterInterval throttles heartbeats from the idle and post-accept
	// hooks.
	RegisterInterval time.Duration `mapstructure:"register_interval" validate:"gt=0"`

	// TTL expires records of processes that stopped heartbeating.
	TTL time.Duration `mapstructure:"ttl" validate:"gte=0"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`
}

// StoreConfig specifies blob store configuration.
type StoreConfig struct {
	// Type specifies which blob store implementation to use
	// Valid values: memory, filesystem, s3
	Type string `mapstructure:"type" validate:"required,oneof=memory filesystem s3"`

	// Filesystem contains filesystem-specific configuration
	// Only used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3"`
}

// MetricsConfig controls the Prometheus HTTP endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Host to bind; empty binds every interface.
	Host string `mapstructure:"host"`

	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DSSERVER_*)
//  2. Configuration file
//  3. Default values
//
// A missing configuration file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: DSSERVER_SERVER_MAX_CLIENTS=8
	v.SetEnvPrefix("DSSERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// bindEnvKeys registers every scalar key so AutomaticEnv also applies to
// keys absent from the file; viper only consults the environment for keys
// it knows about.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"logging.level", "logging.format", "logging.output",
		"server.name", "server.instance", "server.host", "server.port",
		"server.max_clients", "server.max_quiescent",
		"server.accept_timeout", "server.read_timeout", "server.write_timeout",
		"server.deny_write_timeout", "server.shutdown_timeout",
		"server.max_message_size", "server.max_accept_failures",
		"server.accept_rate", "server.accept_burst",
		"server.mode", "server.debug", "server.verbose",
		"procmap.enabled", "procmap.type", "procmap.register_interval", "procmap.ttl",
		"store.type",
		"metrics.enabled", "metrics.host", "metrics.port",
	} {
		_ = v.BindEnv(key)
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns $XDG_CONFIG_HOME/dsserver, ~/.config/dsserver, or "."
// when no home directory can be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dsserver")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dsserver")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
