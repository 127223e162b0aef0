package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Runtime  RuntimeConfig  `mapstructure:"runtime"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Proxy    ProxyConfig    `mapstructure:"proxy"`
	Projects ProjectsConfig `mapstructure:"projects"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// APIToken guards /api/v1 with a bearer token. Empty leaves the API open.
	APIToken string `mapstructure:"api_token"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`

	// Secret, when set, encrypts deployment env vars at rest.
	Secret string `mapstructure:"secret"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RuntimeConfig describes the container runtime CLI.
type RuntimeConfig struct {
	Binary            string        `mapstructure:"binary"`
	ComposeCommand    []string      `mapstructure:"compose_command"`
	CommandTimeout    time.Duration `mapstructure:"command_timeout"`
	ComposeTimeout    time.Duration `mapstructure:"compose_timeout"`
	ProtectedPrefixes []string      `mapstructure:"protected_prefixes"`
}

// RemoteConfig switches command execution to a host reached over SSH.
type RemoteConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	KeyFile        string        `mapstructure:"key_file"`
	KnownHostsFile string        `mapstructure:"known_hosts_file"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// ProxyConfig holds the reverse proxy settings written into compose labels.
type ProxyConfig struct {
	Network          string `mapstructure:"network"`
	Entrypoint       string `mapstructure:"entrypoint"`
	EnableTLS        bool   `mapstructure:"enable_tls"`
	SecureEntrypoint string `mapstructure:"secure_entrypoint"`
	CertResolver     string `mapstructure:"cert_resolver"`
}

// ProjectsConfig controls where deployment files live and how they start.
type ProjectsConfig struct {
	BaseDir string `mapstructure:"base_dir"`

	// RuntimeDir is where BaseDir is mounted on the runtime host, when that
	// differs from the local path. Empty means the same path.
	RuntimeDir string `mapstructure:"runtime_dir"`

	AutoStart        bool `mapstructure:"auto_start"`
	StrictValidation bool `mapstructure:"strict_validation"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Data directory (DOCKLITE_DATA_DIR) derives the database and projects paths
	dataDir := os.Getenv("DOCKLITE_DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "10m")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.api_token", "")
	v.SetDefault("database.dsn", filepath.Join(dataDir, "docklite.db"))
	v.SetDefault("database.secret", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("runtime.binary", "docker")
	v.SetDefault("runtime.compose_command", []string{"docker", "compose"})
	v.SetDefault("runtime.command_timeout", "30s")
	v.SetDefault("runtime.compose_timeout", "5m")
	v.SetDefault("runtime.protected_prefixes", []string{"docklite-"})

	v.SetDefault("remote.enabled", false)
	v.SetDefault("remote.port", 22)
	v.SetDefault("remote.user", "root")
	v.SetDefault("remote.connect_timeout", "10s")

	v.SetDefault("proxy.network", "docklite-network")
	v.SetDefault("proxy.entrypoint", "web")
	v.SetDefault("proxy.enable_tls", false)
	v.SetDefault("proxy.secure_entrypoint", "websecure")
	v.SetDefault("proxy.cert_resolver", "letsencrypt")

	v.SetDefault("projects.base_dir", filepath.Join(dataDir, "projects"))
	v.SetDefault("projects.runtime_dir", "")
	v.SetDefault("projects.auto_start", false)
	v.SetDefault("projects.strict_validation", false)

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	v.SetEnvPrefix("DOCKLITE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Projects.BaseDir == "" {
		return fmt.Errorf("projects.base_dir is required")
	}
	if len(c.Runtime.ComposeCommand) == 0 {
		return fmt.Errorf("runtime.compose_command is required")
	}
	if c.Remote.Enabled {
		if c.Remote.Host == "" {
			return fmt.Errorf("remote.host is required when remote execution is enabled")
		}
		if c.Remote.KeyFile == "" {
			return fmt.Errorf("remote.key_file is required when remote execution is enabled")
		}
	}
	return nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
