package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validConfig returns a fully valid configuration for mutation in tests
func validConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10,
			IdleTimeout:     60,
			ShutdownTimeout: 10,
		},
		Upstream: UpstreamConfig{
			BaseURL:                  "https://api.elevenlabs.io/v1",
			APIKey:                   "test-key",
			VoiceID:                  "test-voice",
			ModelID:                  "eleven_flash_v2_5",
			OptimizeStreamingLatency: 4,
			StartupTimeout:           10,
			MaxStreamDuration:        300,
			MaxIdleConns:             64,
			MaxIdleConnsPerHost:      64,
		},
		Auth: AuthConfig{
			Token:        "dev_token",
			RequireToken: false,
		},
		Limits: LimitsConfig{
			MaxTextLength: 5000,
			MaxBodyBytes:  65536,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid configuration",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "invalid server port",
			mutate:      func(c *Config) { c.Server.Port = 70000 },
			expectError: true,
			errorMsg:    "port must be between 1 and 65535",
		},
		{
			name:        "empty bind address",
			mutate:      func(c *Config) { c.Server.Address = "" },
			expectError: true,
			errorMsg:    "address cannot be empty",
		},
		{
			name:        "missing API key",
			mutate:      func(c *Config) { c.Upstream.APIKey = "" },
			expectError: true,
			errorMsg:    "API key cannot be empty",
		},
		{
			name:        "missing voice ID",
			mutate:      func(c *Config) { c.Upstream.VoiceID = "" },
			expectError: true,
			errorMsg:    "voice ID cannot be empty",
		},
		{
			name:        "empty base URL",
			mutate:      func(c *Config) { c.Upstream.BaseURL = "" },
			expectError: true,
			errorMsg:    "base_url cannot be empty",
		},
		{
			name:        "base URL without scheme",
			mutate:      func(c *Config) { c.Upstream.BaseURL = "api.elevenlabs.io/v1" },
			expectError: true,
			errorMsg:    "base_url must use http or https",
		},
		{
			name:        "latency hint out of range",
			mutate:      func(c *Config) { c.Upstream.OptimizeStreamingLatency = 9 },
			expectError: true,
			errorMsg:    "optimize_streaming_latency must be between 0 and 4",
		},
		{
			name:        "zero startup timeout",
			mutate:      func(c *Config) { c.Upstream.StartupTimeout = 0 },
			expectError: true,
			errorMsg:    "startup_timeout must be at least 1 second",
		},
		{
			name: "max stream duration below startup timeout",
			mutate: func(c *Config) {
				c.Upstream.StartupTimeout = 30
				c.Upstream.MaxStreamDuration = 20
			},
			expectError: true,
			errorMsg:    "max_stream_duration (20) must be greater than startup_timeout (30)",
		},
		{
			name: "require_token without a token",
			mutate: func(c *Config) {
				c.Auth.Token = ""
				c.Auth.RequireToken = true
			},
			expectError: true,
			errorMsg:    "require_token is set but no token configured",
		},
		{
			name: "no token without require_token is allowed",
			mutate: func(c *Config) {
				c.Auth.Token = ""
				c.Auth.RequireToken = false
			},
			expectError: false,
		},
		{
			name:        "zero max text length",
			mutate:      func(c *Config) { c.Limits.MaxTextLength = 0 },
			expectError: true,
			errorMsg:    "max_text_length must be at least 1",
		},
		{
			name:        "tiny max body bytes",
			mutate:      func(c *Config) { c.Limits.MaxBodyBytes = 10 },
			expectError: true,
			errorMsg:    "max_body_bytes must be at least 1024",
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "verbose" },
			expectError: true,
			errorMsg:    "level must be one of [debug, info, warn, error]",
		},
		{
			name:        "invalid log format",
			mutate:      func(c *Config) { c.Logging.Format = "xml" },
			expectError: true,
			errorMsg:    "format must be 'json' or 'text'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(&config)

			err := config.Validate()

			if tt.expectError {
				if err == nil {
					t.Fatal("expected validation error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("error %q does not contain %q", err.Error(), tt.errorMsg)
				}
			} else if err != nil {
				t.Errorf("expected no error, got: %v", err)
			}
		})
	}
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	t.Setenv("ELEVEN_API_KEY", "env-api-key")
	t.Setenv("ELEVEN_VOICE_ID", "env-voice")
	t.Setenv("TTS_SHARED_TOKEN", "env-token")
	t.Setenv("PORT", "9090")

	config, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if config.Upstream.APIKey != "env-api-key" {
		t.Errorf("APIKey = %q, want env-api-key", config.Upstream.APIKey)
	}
	if config.Upstream.VoiceID != "env-voice" {
		t.Errorf("VoiceID = %q, want env-voice", config.Upstream.VoiceID)
	}
	if config.Auth.Token != "env-token" {
		t.Errorf("Token = %q, want env-token", config.Auth.Token)
	}
	if config.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", config.Server.Port)
	}
}

func TestLoadFailsWithoutRequiredValues(t *testing.T) {
	t.Setenv("ELEVEN_API_KEY", "")
	t.Setenv("ELEVEN_VOICE_ID", "")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected Load to fail without ELEVEN_API_KEY")
	}
	if !strings.Contains(err.Error(), "API key cannot be empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	t.Setenv("ELEVEN_API_KEY", "test-key")
	t.Setenv("ELEVEN_VOICE_ID", "test-voice")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
server:
  address: "127.0.0.1"
  port: 3000
  read_timeout: 5
  idle_timeout: 30
  shutdown_timeout: 5
upstream:
  base_url: "https://tts.internal.example/v1"
  model_id: "eleven_turbo_v2"
  optimize_streaming_latency: 2
  startup_timeout: 3
  max_stream_duration: 120
limits:
  max_text_length: 1000
  max_body_bytes: 4096
logging:
  level: "debug"
  format: "text"
  output: "stderr"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	config, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if config.Server.Port != 3000 {
		t.Errorf("Port = %d, want 3000", config.Server.Port)
	}
	if config.Upstream.BaseURL != "https://tts.internal.example/v1" {
		t.Errorf("BaseURL = %q, want file value", config.Upstream.BaseURL)
	}
	if config.Upstream.ModelID != "eleven_turbo_v2" {
		t.Errorf("ModelID = %q, want eleven_turbo_v2", config.Upstream.ModelID)
	}
	if config.Limits.MaxTextLength != 1000 {
		t.Errorf("MaxTextLength = %d, want 1000", config.Limits.MaxTextLength)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", config.Logging.Level)
	}
}

func TestLoadToleratesMissingFile(t *testing.T) {
	t.Setenv("ELEVEN_API_KEY", "test-key")
	t.Setenv("ELEVEN_VOICE_ID", "test-voice")

	config, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load should fall back to defaults for a missing file, got: %v", err)
	}

	if config.Server.Port != 8080 {
		t.Errorf("Port = %d, want default 8080", config.Server.Port)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	t.Setenv("ELEVEN_API_KEY", "test-key")
	t.Setenv("ELEVEN_VOICE_ID", "test-voice")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a mapping"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected Load to fail on malformed YAML")
	}
	if !strings.Contains(err.Error(), "failed to parse config file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	config := validConfig()

	if got := config.Server.GetReadTimeout(); got != 10*time.Second {
		t.Errorf("GetReadTimeout = %v, want 10s", got)
	}
	if got := config.Upstream.GetStartupTimeout(); got != 10*time.Second {
		t.Errorf("GetStartupTimeout = %v, want 10s", got)
	}
	if got := config.Upstream.GetMaxStreamDuration(); got != 5*time.Minute {
		t.Errorf("GetMaxStreamDuration = %v, want 5m", got)
	}
}
