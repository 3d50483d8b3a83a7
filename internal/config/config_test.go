package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tsxbridge/internal/errors"
	"github.com/conneroisu/tsxbridge/internal/logging"
)

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "/api", config.Server.APIPrefix)
	assert.Equal(t, "/static/tsxbridge", config.Server.StaticPrefix)
	assert.Equal(t, "development", config.Server.Environment)
	assert.True(t, config.IsDevelopment())
	assert.Equal(t, "localhost:8080", config.Addr())

	assert.Equal(t, []SourceConfig{{Path: "./components"}}, config.Components.Sources)

	assert.Equal(t, ".", config.Bundler.ProjectDir)
	assert.Equal(t, "es2020", config.Bundler.Target)
	assert.Equal(t, []string{"react", "react-dom", "react/jsx-runtime", "@tsxbridge/react"}, config.Bundler.External)
	assert.Equal(t, 60*time.Second, config.Bundler.Timeout)
	assert.Equal(t, 30*time.Second, config.Bundler.ProbeTimeout)
	assert.True(t, config.Bundler.SingleFlight)

	assert.True(t, config.Development.HotReload)
	assert.Equal(t, 300*time.Millisecond, config.Development.Debounce)

	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "text", config.Logging.Format)
}

func TestLoadFrom_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".tsxbridge.yml")
	content := `
server:
  port: 9000
  host: 0.0.0.0
  api_prefix: /tsx
  environment: production
  allowed_origins:
    - https://app.example.com
components:
  sources:
    - path: ./components
    - path: ./shop/components
      prefix: shop
bundler:
  command: bunx esbuild
  timeout: 2m
  probe_timeout: 5s
  single_flight: false
  external: [preact]
development:
  hot_reload: false
  debounce: 150ms
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	config, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, "/tsx", config.Server.APIPrefix)
	assert.False(t, config.IsDevelopment())
	assert.Equal(t, []string{"https://app.example.com"}, config.Server.AllowedOrigins)
	assert.Equal(t, []SourceConfig{
		{Path: "./components"},
		{Path: "./shop/components", Prefix: "shop"},
	}, config.Components.Sources)
	assert.Equal(t, "bunx esbuild", config.Bundler.Command)
	assert.Equal(t, 2*time.Minute, config.Bundler.Timeout)
	assert.Equal(t, 5*time.Second, config.Bundler.ProbeTimeout)
	assert.False(t, config.Bundler.SingleFlight)
	assert.Equal(t, []string{"preact"}, config.Bundler.External)
	assert.False(t, config.Development.HotReload)
	assert.Equal(t, 150*time.Millisecond, config.Development.Debounce)

	loggerConfig := config.LoggerConfig()
	assert.Equal(t, logging.LevelDebug, loggerConfig.Level)
	assert.Equal(t, "json", loggerConfig.Format)
}

func TestLoadFrom_EmptyAPIPrefix(t *testing.T) {
	v := viper.New()
	v.Set("server.api_prefix", "")

	config, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "", config.Server.APIPrefix)
}

func TestLoadFrom_CommaSeparatedLists(t *testing.T) {
	v := viper.New()
	v.Set("server.allowed_origins", []string{"http://a.test, http://b.test"})
	v.Set("bundler.external", []string{"react,vue"})

	config, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, config.Server.AllowedOrigins)
	assert.Equal(t, []string{"react", "vue"}, config.Bundler.External)
}

func TestLoadFrom_Validation(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value interface{}
		want  string
	}{
		{"port too large", "server.port", 70000, "port 70000"},
		{"dangerous host", "server.host", "localhost;rm", "dangerous character"},
		{"prefix without slash", "server.api_prefix", "api", "api_prefix"},
		{"prefix with trailing slash", "server.api_prefix", "/api/", "api_prefix"},
		{"static prefix", "server.static_prefix", "static", "static_prefix"},
		{"environment", "server.environment", "staging", "environment"},
		{"origin", "server.allowed_origins", []string{"ftp://x"}, "allowed origin"},
		{"source prefix", "components.sources", []map[string]interface{}{{"path": "./c", "prefix": "a:b"}}, "source ./c"},
		{"source path", "components.sources", []map[string]interface{}{{"path": "./c;ls"}}, "dangerous character"},
		{"timeout", "bundler.timeout", "0s", "timeout must be positive"},
		{"probe timeout", "bundler.probe_timeout", "-1s", "probe_timeout must be positive"},
		{"target", "bundler.target", "es2020; rm", "target"},
		{"debounce", "development.debounce", "-5ms", "debounce"},
		{"log level", "logging.level", "loud", "unknown log level"},
		{"log format", "logging.format", "xml", "format must be text or json"},
		{"undecodable", "server.port", "not-a-port", "cannot decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.value)

			config, err := LoadFrom(v)
			assert.Nil(t, config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			var be *errors.BridgeError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, errors.CodeConfigInvalid, be.Code)
		})
	}
}
