// Package config loads tsxbridge settings through Viper from the
// .tsxbridge.yml file, TSXBRIDGE_ environment variables and command-line
// flags, applies defaults and validates the result.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/tsxbridge/internal/errors"
	"github.com/conneroisu/tsxbridge/internal/logging"
	"github.com/conneroisu/tsxbridge/internal/validation"
)

type Config struct {
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Components  ComponentsConfig  `yaml:"components" mapstructure:"components"`
	Bundler     BundlerConfig     `yaml:"bundler" mapstructure:"bundler"`
	Development DevelopmentConfig `yaml:"development" mapstructure:"development"`
	Logging     LoggingConfig     `yaml:"logging" mapstructure:"logging"`
}

type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	Host           string   `yaml:"host" mapstructure:"host"`
	Open           bool     `yaml:"open" mapstructure:"open"`
	APIPrefix      string   `yaml:"api_prefix" mapstructure:"api_prefix"`
	StaticPrefix   string   `yaml:"static_prefix" mapstructure:"static_prefix"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	Environment    string   `yaml:"environment" mapstructure:"environment"`
}

// SourceConfig is one component source directory.
type SourceConfig struct {
	Path   string `yaml:"path" mapstructure:"path"`
	Prefix string `yaml:"prefix" mapstructure:"prefix"`
}

type ComponentsConfig struct {
	Sources []SourceConfig `yaml:"sources" mapstructure:"sources"`
}

type BundlerConfig struct {
	// Command overrides bundler discovery, e.g. "bunx esbuild".
	Command      string        `yaml:"command" mapstructure:"command"`
	ProjectDir   string        `yaml:"project_dir" mapstructure:"project_dir"`
	Target       string        `yaml:"target" mapstructure:"target"`
	External     []string      `yaml:"external" mapstructure:"external"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	ProbeTimeout time.Duration `yaml:"probe_timeout" mapstructure:"probe_timeout"`
	SingleFlight bool          `yaml:"single_flight" mapstructure:"single_flight"`
}

type DevelopmentConfig struct {
	HotReload bool          `yaml:"hot_reload" mapstructure:"hot_reload"`
	Debounce  time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v, applies defaults and validates it.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.NewConfigError("cannot decode configuration", err)
	}

	// Server defaults
	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if !v.IsSet("server.port") {
		config.Server.Port = 8080
	}
	if !v.IsSet("server.api_prefix") {
		config.Server.APIPrefix = "/api"
	}
	if config.Server.StaticPrefix == "" {
		config.Server.StaticPrefix = "/static/tsxbridge"
	}
	if config.Server.Environment == "" {
		config.Server.Environment = "development"
	}
	// Handle allowed_origins set as a comma separated env var
	if len(config.Server.AllowedOrigins) == 1 && strings.Contains(config.Server.AllowedOrigins[0], ",") {
		config.Server.AllowedOrigins = splitList(config.Server.AllowedOrigins[0])
	}

	// Component sources
	if len(config.Components.Sources) == 0 {
		config.Components.Sources = []SourceConfig{{Path: "./components"}}
	}

	// Bundler defaults
	if config.Bundler.ProjectDir == "" {
		config.Bundler.ProjectDir = "."
	}
	if config.Bundler.Target == "" {
		config.Bundler.Target = "es2020"
	}
	if len(config.Bundler.External) == 0 {
		config.Bundler.External = []string{"react", "react-dom", "react/jsx-runtime", "@tsxbridge/react"}
	} else if len(config.Bundler.External) == 1 && strings.Contains(config.Bundler.External[0], ",") {
		config.Bundler.External = splitList(config.Bundler.External[0])
	}
	if !v.IsSet("bundler.timeout") {
		config.Bundler.Timeout = 60 * time.Second
	}
	if !v.IsSet("bundler.probe_timeout") {
		config.Bundler.ProbeTimeout = 30 * time.Second
	}
	if !v.IsSet("bundler.single_flight") {
		config.Bundler.SingleFlight = true
	}

	// Development defaults
	if !v.IsSet("development.hot_reload") {
		config.Development.HotReload = true
	}
	if !v.IsSet("development.debounce") {
		config.Development.Debounce = 300 * time.Millisecond
	}

	// Logging defaults
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "text"
	}

	if err := validateConfig(&config); err != nil {
		return nil, errors.NewConfigError("invalid configuration", err)
	}

	return &config, nil
}

// Addr returns the host:port the server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// LoggerConfig translates the logging section into a logger configuration.
func (c *Config) LoggerConfig() *logging.LoggerConfig {
	cfg := logging.DefaultConfig()
	// Validated in LoadFrom.
	cfg.Level, _ = logging.ParseLevel(c.Logging.Level)
	cfg.Format = c.Logging.Format
	return cfg
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateComponentsConfig(&config.Components); err != nil {
		return fmt.Errorf("components config: %w", err)
	}

	if err := validateBundlerConfig(&config.Bundler); err != nil {
		return fmt.Errorf("bundler config: %w", err)
	}

	if config.Development.Debounce < 0 {
		return fmt.Errorf("development config: debounce must not be negative")
	}

	if _, err := logging.ParseLevel(config.Logging.Level); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	if config.Logging.Format != "text" && config.Logging.Format != "json" {
		return fmt.Errorf("logging config: format must be text or json, got %q", config.Logging.Format)
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Validate port range (allow 0 for system-assigned ports in testing)
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if err := checkDangerousChars("host", config.Host); err != nil {
		return err
	}

	if config.APIPrefix != "" && (!strings.HasPrefix(config.APIPrefix, "/") || strings.HasSuffix(config.APIPrefix, "/")) {
		return fmt.Errorf("api_prefix %q must start with / and must not end with /", config.APIPrefix)
	}
	if !strings.HasPrefix(config.StaticPrefix, "/") {
		return fmt.Errorf("static_prefix %q must start with /", config.StaticPrefix)
	}

	switch config.Environment {
	case "development", "production", "test":
	default:
		return fmt.Errorf("environment %q must be development, production or test", config.Environment)
	}

	for _, origin := range config.AllowedOrigins {
		if origin == "*" {
			continue
		}
		if err := validation.ValidateURL(origin); err != nil {
			return fmt.Errorf("allowed origin %q: %w", origin, err)
		}
	}

	return nil
}

// validateComponentsConfig validates components configuration values
func validateComponentsConfig(config *ComponentsConfig) error {
	for _, source := range config.Sources {
		if source.Path == "" {
			return fmt.Errorf("source path cannot be empty")
		}
		if err := checkDangerousChars("source path", source.Path); err != nil {
			return err
		}
		if err := validation.ValidatePrefix(source.Prefix); err != nil {
			return fmt.Errorf("source %s: %w", source.Path, err)
		}
	}
	return nil
}

func validateBundlerConfig(config *BundlerConfig) error {
	if config.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", config.Timeout)
	}
	if config.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeout must be positive, got %s", config.ProbeTimeout)
	}
	if strings.ContainsAny(config.Target, " \t;&|") {
		return fmt.Errorf("target %q contains invalid characters", config.Target)
	}
	for _, dep := range config.External {
		if dep == "" || strings.ContainsAny(dep, " \t\n") {
			return fmt.Errorf("external dependency %q is invalid", dep)
		}
	}
	return nil
}

func checkDangerousChars(field, value string) error {
	// Basic validation - no shell metacharacters
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(value, char) {
			return fmt.Errorf("%s contains dangerous character: %s", field, char)
		}
	}
	return nil
}
