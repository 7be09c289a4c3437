package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Auth     AuthConfig     `yaml:"auth"`
	Limits   LimitsConfig   `yaml:"limits"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Address         string `yaml:"address"`
	Port            int    `yaml:"port"`
	ReadTimeout     int    `yaml:"read_timeout"`     // seconds
	IdleTimeout     int    `yaml:"idle_timeout"`     // seconds
	ShutdownTimeout int    `yaml:"shutdown_timeout"` // seconds
}

// UpstreamConfig contains the ElevenLabs synthesis API configuration
type UpstreamConfig struct {
	BaseURL                  string `yaml:"base_url"`
	APIKey                   string `yaml:"-"` // environment only, never from file
	VoiceID                  string `yaml:"voice_id"`
	ModelID                  string `yaml:"model_id"`
	OptimizeStreamingLatency int    `yaml:"optimize_streaming_latency"`
	StartupTimeout           int    `yaml:"startup_timeout"`     // seconds, until first response headers
	MaxStreamDuration        int    `yaml:"max_stream_duration"` // seconds, total relay bound
	MaxIdleConns             int    `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost      int    `yaml:"max_idle_conns_per_host"`
}

// AuthConfig contains shared-token authentication configuration.
// When Token is empty and RequireToken is false, auth is disabled and all
// requests are accepted (fail-open, matching the original deployment).
// Set require_token to fail startup instead of running open.
type AuthConfig struct {
	Token        string `yaml:"-"` // environment only, never from file
	RequireToken bool   `yaml:"require_token"`
}

// LimitsConfig contains request validation bounds
type LimitsConfig struct {
	MaxTextLength int   `yaml:"max_text_length"` // characters
	MaxBodyBytes  int64 `yaml:"max_body_bytes"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the built-in configuration, before file and environment
// values are applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10,
			IdleTimeout:     60,
			ShutdownTimeout: 10,
		},
		Upstream: UpstreamConfig{
			BaseURL:                  "https://api.elevenlabs.io/v1",
			ModelID:                  "eleven_flash_v2_5",
			OptimizeStreamingLatency: 4,
			StartupTimeout:           10,
			MaxStreamDuration:        300,
			MaxIdleConns:             64,
			MaxIdleConnsPerHost:      64,
		},
		Limits: LimitsConfig{
			MaxTextLength: 5000,
			MaxBodyBytes:  64 * 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment overrides (applied last). A missing file at the given path is
// not an error: the gateway is commonly deployed with environment variables
// only. Secrets (API key, shared token) are read exclusively from the
// environment.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// applyEnv overlays recognized environment variables onto the configuration.
func (c *Config) applyEnv() {
	c.Upstream.APIKey = getEnv("ELEVEN_API_KEY", c.Upstream.APIKey)
	c.Upstream.VoiceID = getEnv("ELEVEN_VOICE_ID", c.Upstream.VoiceID)
	c.Upstream.BaseURL = getEnv("ELEVEN_BASE_URL", c.Upstream.BaseURL)
	c.Auth.Token = getEnv("TTS_SHARED_TOKEN", c.Auth.Token)

	if port := os.Getenv("PORT"); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil {
			c.Server.Port = p
		}
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Upstream.Validate(); err != nil {
		return fmt.Errorf("upstream config: %w", err)
	}

	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}

	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("limits config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if s.ReadTimeout < 1 {
		return fmt.Errorf("read_timeout must be at least 1 second, got %d", s.ReadTimeout)
	}

	if s.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout must be at least 1 second, got %d", s.ShutdownTimeout)
	}

	return nil
}

// Validate validates upstream configuration
func (u *UpstreamConfig) Validate() error {
	if u.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	parsed, err := url.Parse(u.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url is not a valid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("base_url must use http or https, got '%s'", u.BaseURL)
	}

	if u.APIKey == "" {
		return fmt.Errorf("API key cannot be empty (set ELEVEN_API_KEY)")
	}

	if u.VoiceID == "" {
		return fmt.Errorf("voice ID cannot be empty (set ELEVEN_VOICE_ID)")
	}

	if u.ModelID == "" {
		return fmt.Errorf("model_id cannot be empty")
	}

	if u.OptimizeStreamingLatency < 0 || u.OptimizeStreamingLatency > 4 {
		return fmt.Errorf("optimize_streaming_latency must be between 0 and 4, got %d", u.OptimizeStreamingLatency)
	}

	if u.StartupTimeout < 1 {
		return fmt.Errorf("startup_timeout must be at least 1 second, got %d", u.StartupTimeout)
	}

	if u.MaxStreamDuration <= u.StartupTimeout {
		return fmt.Errorf("max_stream_duration (%d) must be greater than startup_timeout (%d)",
			u.MaxStreamDuration, u.StartupTimeout)
	}

	return nil
}

// Validate validates auth configuration
func (a *AuthConfig) Validate() error {
	if a.RequireToken && a.Token == "" {
		return fmt.Errorf("require_token is set but no token configured (set TTS_SHARED_TOKEN)")
	}

	return nil
}

// Validate validates request limits
func (l *LimitsConfig) Validate() error {
	if l.MaxTextLength < 1 {
		return fmt.Errorf("max_text_length must be at least 1, got %d", l.MaxTextLength)
	}

	if l.MaxBodyBytes < 1024 {
		return fmt.Errorf("max_body_bytes must be at least 1024 bytes, got %d", l.MaxBodyBytes)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetReadTimeout returns the server read timeout as a time.Duration
func (s *ServerConfig) GetReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// GetIdleTimeout returns the server idle timeout as a time.Duration
func (s *ServerConfig) GetIdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeout) * time.Second
}

// GetShutdownTimeout returns the graceful shutdown bound as a time.Duration
func (s *ServerConfig) GetShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}

// GetStartupTimeout returns the upstream startup window as a time.Duration
func (u *UpstreamConfig) GetStartupTimeout() time.Duration {
	return time.Duration(u.StartupTimeout) * time.Second
}

// GetMaxStreamDuration returns the total relay bound as a time.Duration
func (u *UpstreamConfig) GetMaxStreamDuration() time.Duration {
	return time.Duration(u.MaxStreamDuration) * time.Second
}
