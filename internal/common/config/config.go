// Package config provides configuration management for taskpilot.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for taskpilot.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	NATS         NATSConfig         `mapstructure:"nats"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Fallback     FallbackConfig     `mapstructure:"fallback"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	AgentsFile   string             `mapstructure:"agentsFile"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// NATSConfig holds NATS messaging configuration.
// An empty URL selects the in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// OrchestratorConfig holds execution orchestration configuration.
type OrchestratorConfig struct {
	// DefaultTimeout bounds a single headless execution, in seconds.
	DefaultTimeout int `mapstructure:"defaultTimeout"`
	// KillGracePeriod is how long to wait after SIGTERM before SIGKILL, in seconds.
	KillGracePeriod int `mapstructure:"killGracePeriod"`
	// StderrTailBytes is how much trailing stderr to keep for diagnostics.
	StderrTailBytes int `mapstructure:"stderrTailBytes"`
}

// FallbackConfig holds keyboard-automation fallback configuration.
type FallbackConfig struct {
	// Script is the path to the OS automation script invoked when headless
	// execution is unavailable or fails. Empty disables the fallback.
	Script string `mapstructure:"script"`
	// Timeout bounds one fallback attempt, in seconds.
	Timeout int `mapstructure:"timeout"`
	// UseClipboard stages the prompt on the system clipboard before the
	// script runs, so the script only has to paste and submit.
	UseClipboard bool `mapstructure:"useClipboard"`
}

// TracingConfig holds OpenTelemetry export configuration.
// An empty endpoint leaves tracing as a no-op.
type TracingConfig struct {
	OTLPEndpoint string `mapstructure:"otlpEndpoint"`
	ServiceName  string `mapstructure:"serviceName"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// DefaultTimeoutDuration returns the execution timeout as a time.Duration.
func (o *OrchestratorConfig) DefaultTimeoutDuration() time.Duration {
	return time.Duration(o.DefaultTimeout) * time.Second
}

// KillGracePeriodDuration returns the kill grace period as a time.Duration.
func (o *OrchestratorConfig) KillGracePeriodDuration() time.Duration {
	return time.Duration(o.KillGracePeriod) * time.Second
}

// TimeoutDuration returns the fallback timeout as a time.Duration.
func (f *FallbackConfig) TimeoutDuration() time.Duration {
	return time.Duration(f.Timeout) * time.Second
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("TASKPILOT_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "taskpilot-orchestrator")
	v.SetDefault("nats.maxReconnects", 10)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	// Orchestrator defaults
	v.SetDefault("orchestrator.defaultTimeout", 300) // 5 minutes
	v.SetDefault("orchestrator.killGracePeriod", 2)
	v.SetDefault("orchestrator.stderrTailBytes", 200)

	// Fallback defaults
	v.SetDefault("fallback.script", "")
	v.SetDefault("fallback.timeout", 60)
	v.SetDefault("fallback.useClipboard", true)

	// Tracing defaults - disabled unless an endpoint is configured
	v.SetDefault("tracing.otlpEndpoint", "")
	v.SetDefault("tracing.serviceName", "taskpilot-orchestrator")

	// Agent catalog overrides file (yaml), optional
	v.SetDefault("agentsFile", "")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix TASKPILOT_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory or /etc/taskpilot/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("TASKPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not handle camelCase to SNAKE_CASE conversion,
	// so explicitly bind keys where env var naming differs from config key naming.
	_ = v.BindEnv("orchestrator.defaultTimeout", "TASKPILOT_ORCHESTRATOR_DEFAULT_TIMEOUT")
	_ = v.BindEnv("fallback.script", "TASKPILOT_FALLBACK_SCRIPT")
	_ = v.BindEnv("tracing.otlpEndpoint", "TASKPILOT_TRACING_OTLP_ENDPOINT")
	_ = v.BindEnv("agentsFile", "TASKPILOT_AGENTS_FILE")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/taskpilot/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if cfg.Orchestrator.DefaultTimeout <= 0 {
		errs = append(errs, "orchestrator.defaultTimeout must be positive")
	}
	if cfg.Orchestrator.KillGracePeriod < 0 {
		errs = append(errs, "orchestrator.killGracePeriod must not be negative")
	}
	if cfg.Fallback.Timeout <= 0 {
		errs = append(errs, "fallback.timeout must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
