package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/AuroraBackcountry/aurora-tts-service/internal/auth"
	"github.com/AuroraBackcountry/aurora-tts-service/internal/config"
	"github.com/AuroraBackcountry/aurora-tts-service/internal/elevenlabs"
	"github.com/AuroraBackcountry/aurora-tts-service/internal/metrics"
	"github.com/AuroraBackcountry/aurora-tts-service/internal/server"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "aurora-tts-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load .env before config so its values are visible as environment
	// overrides; absence is fine in containerized deployments
	if err := godotenv.Load(); err == nil {
		fmt.Fprintln(os.Stderr, "Loaded environment from .env file")
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("listen_address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
		slog.String("upstream_base_url", cfg.Upstream.BaseURL),
		slog.String("default_voice_id", cfg.Upstream.VoiceID),
		slog.String("model_id", cfg.Upstream.ModelID),
		slog.Int("startup_timeout", cfg.Upstream.StartupTimeout),
		slog.Int("max_stream_duration", cfg.Upstream.MaxStreamDuration),
		slog.Int("max_text_length", cfg.Limits.MaxTextLength),
		slog.Bool("auth_enabled", cfg.Auth.Token != ""),
		slog.String("log_level", cfg.Logging.Level),
	)

	if cfg.Auth.Token == "" {
		logger.Warn("No shared token configured, authentication is DISABLED and all requests will be accepted " +
			"(set TTS_SHARED_TOKEN, or auth.require_token to make this a startup error)")
	}

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize upstream synthesis client
	ttsClient, err := elevenlabs.NewClient(elevenlabs.Config{
		BaseURL:                  cfg.Upstream.BaseURL,
		APIKey:                   cfg.Upstream.APIKey,
		DefaultVoiceID:           cfg.Upstream.VoiceID,
		ModelID:                  cfg.Upstream.ModelID,
		OptimizeStreamingLatency: cfg.Upstream.OptimizeStreamingLatency,
		StartupTimeout:           cfg.Upstream.GetStartupTimeout(),
		MaxIdleConns:             cfg.Upstream.MaxIdleConns,
		MaxIdleConnsPerHost:      cfg.Upstream.MaxIdleConnsPerHost,
	})
	if err != nil {
		logger.Error("Failed to create upstream client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Upstream synthesis client initialized")

	// Initialize auth gate
	gate := auth.NewGate(cfg.Auth.Token)

	// Initialize and start HTTP server
	httpServer := server.NewHTTPServer(cfg, logger, ttsClient, gate, appMetrics)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GetShutdownTimeout())
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
