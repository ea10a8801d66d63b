// Package config provides configuration management for agentbridge.
// It supports loading configuration from environment variables, a config
// file, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the bridge daemon.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	NATS     NATSConfig     `mapstructure:"nats"`
	IPC      IPCConfig      `mapstructure:"ipc"`
	Approval ApprovalConfig `mapstructure:"approval"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP/WebSocket server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// NATSConfig holds NATS messaging configuration. An empty URL selects the
// in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// IPCConfig holds request/response timing for the bridge channels.
type IPCConfig struct {
	// RequestTimeout bounds an ordinary cross-side request, in milliseconds.
	RequestTimeout int `mapstructure:"requestTimeout"`
	// CompletionTimeout bounds a wait for an entire agent turn, in
	// milliseconds. Much larger than RequestTimeout since a turn spans
	// many model calls.
	CompletionTimeout int `mapstructure:"completionTimeout"`
}

// ApprovalConfig holds the auto-approval policy for interactive asks.
type ApprovalConfig struct {
	// NonInteractive auto-resolves idle asks with a default "proceed"
	// answer instead of waiting for a front-end.
	NonInteractive bool `mapstructure:"nonInteractive"`
	// AutoApproveCommands approves command asks without prompting.
	AutoApproveCommands bool `mapstructure:"autoApproveCommands"`
	// AutoApproveTools approves tool asks without prompting.
	AutoApproveTools bool `mapstructure:"autoApproveTools"`
	// AutoApproveBrowser approves browser_action_launch asks without prompting.
	AutoApproveBrowser bool `mapstructure:"autoApproveBrowser"`
	// AutoApproveMCP approves use_mcp_server asks without prompting.
	AutoApproveMCP bool `mapstructure:"autoApproveMcp"`
}

// StorageConfig holds session persistence configuration.
type StorageConfig struct {
	// Path is the SQLite database file; empty disables persistence.
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// RequestTimeoutDuration returns the IPC request timeout as a time.Duration.
func (i *IPCConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(i.RequestTimeout) * time.Millisecond
}

// CompletionTimeoutDuration returns the turn-completion wait as a time.Duration.
func (i *IPCConfig) CompletionTimeoutDuration() time.Duration {
	return time.Duration(i.CompletionTimeout) * time.Millisecond
}

func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("AGENTBRIDGE_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 7433)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "agentbridge")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("ipc.requestTimeout", 30_000)
	v.SetDefault("ipc.completionTimeout", 110_000)

	v.SetDefault("approval.nonInteractive", false)
	v.SetDefault("approval.autoApproveCommands", false)
	v.SetDefault("approval.autoApproveTools", false)
	v.SetDefault("approval.autoApproveBrowser", false)
	v.SetDefault("approval.autoApproveMcp", false)

	v.SetDefault("storage.path", "./agentbridge.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and
// defaults. Environment variables use the AGENTBRIDGE_ prefix with
// underscore-separated keys.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("AGENTBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// Empty values are meaningful here: AGENTBRIDGE_STORAGE_PATH="" turns
	// persistence off, and viper skips empty env vars by default.
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/agentbridge/")

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

	if cfg.IPC.RequestTimeout <= 0 {
		errs = append(errs, "ipc.requestTimeout must be positive")
	}
	if cfg.IPC.CompletionTimeout < cfg.IPC.RequestTimeout {
		errs = append(errs, "ipc.completionTimeout must not be below ipc.requestTimeout")
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
