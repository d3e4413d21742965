// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Layered configuration: defaults, then an optional YAML file, then HIOLOAD_* env vars.

package control

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix namespaces environment overrides, e.g. HIOLOAD_PORT.
	EnvPrefix = "HIOLOAD_"
	// ConfigPathEnvVar may point at a YAML config file.
	ConfigPathEnvVar = "HIOLOAD_CONFIG"
)

// Config is the full runtime configuration.
type Config struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	Script string `koanf:"script"`
	// ScriptTimeout interrupts a single script call; zero disables it.
	ScriptTimeout time.Duration `koanf:"script_timeout"`
	// ShutdownTimeout bounds how long shutdown waits for sessions to exit.
	ShutdownTimeout time.Duration   `koanf:"shutdown_timeout"`
	Log             LogConfig       `koanf:"log"`
	HTTP            HTTPConfig      `koanf:"http"`
	WebSocket       WebSocketConfig `koanf:"websocket"`
	Metrics         MetricsConfig   `koanf:"metrics"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// HTTPConfig sizes the per-connection request buffer.
type HTTPConfig struct {
	InitialBuffer  int `koanf:"initial_buffer"`
	MaxRequestSize int `koanf:"max_request_size"`
}

// WebSocketConfig bounds frame and reassembled message sizes.
type WebSocketConfig struct {
	MaxFramePayload int `koanf:"max_frame_payload"`
	MaxMessageSize  int `koanf:"max_message_size"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// DefaultConfig returns built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:            "",
		Port:            3000,
		ShutdownTimeout: 10 * time.Second,
		Log:             LogConfig{Level: "info", Format: "json"},
		HTTP: HTTPConfig{
			InitialBuffer:  8 << 10,
			MaxRequestSize: 10 << 20,
		},
		WebSocket: WebSocketConfig{
			MaxFramePayload: 1 << 20,
			MaxMessageSize:  16 << 20,
		},
	}
}

// Addr is the listen address host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate rejects unusable settings.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.ScriptTimeout < 0 || c.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if c.HTTP.InitialBuffer <= 0 {
		errs = append(errs, errors.New("http.initial_buffer must be positive"))
	}
	if c.HTTP.MaxRequestSize < c.HTTP.InitialBuffer {
		errs = append(errs, errors.New("http.max_request_size must be >= http.initial_buffer"))
	}
	if c.WebSocket.MaxFramePayload <= 0 {
		errs = append(errs, errors.New("websocket.max_frame_payload must be positive"))
	}
	if c.WebSocket.MaxMessageSize < c.WebSocket.MaxFramePayload {
		errs = append(errs, errors.New("websocket.max_message_size must be >= websocket.max_frame_payload"))
	}
	return errors.Join(errs...)
}

// Load builds a Config. path may be empty; then HIOLOAD_CONFIG is consulted,
// and if that is unset too only defaults and environment apply.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(ConfigPathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

var sections = []string{"log", "http", "websocket", "metrics"}

// envTransformFunc maps HIOLOAD_HTTP_MAX_REQUEST_SIZE to http.max_request_size.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key == "config" {
		return ""
	}
	for _, s := range sections {
		if strings.HasPrefix(key, s+"_") {
			return s + "." + strings.TrimPrefix(key, s+"_")
		}
	}
	return key
}
