package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AuroraBackcountry/aurora-tts-service/internal/auth"
	"github.com/AuroraBackcountry/aurora-tts-service/internal/config"
	"github.com/AuroraBackcountry/aurora-tts-service/internal/elevenlabs"
	"github.com/AuroraBackcountry/aurora-tts-service/internal/metrics"
)

// HTTPServer provides the gateway's HTTP surface: the synthesis relay
// endpoints plus health and monitoring.
type HTTPServer struct {
	server  *http.Server
	logger  *slog.Logger
	config  *config.Config
	tts     *elevenlabs.Client
	gate    *auth.Gate
	metrics *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new gateway HTTP server
func NewHTTPServer(cfg *config.Config, logger *slog.Logger,
	tts *elevenlabs.Client, gate *auth.Gate, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    cfg,
		tts:       tts,
		gate:      gate,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler:     mux,
		ReadTimeout: cfg.Server.GetReadTimeout(),
		IdleTimeout: cfg.Server.GetIdleTimeout(),
		// No WriteTimeout: audio relays legitimately outlive any fixed
		// write deadline. Total relay duration is bounded per request by
		// upstream.max_stream_duration instead.
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Liveness probe (no auth, no upstream dependency)
	mux.HandleFunc("/healthz", h.withMetrics("/healthz", h.handleHealth))

	// Core synthesis endpoint
	mux.HandleFunc("/speak", h.withMetrics("/speak", h.withAuth(h.handleSpeak)))

	// OpenAI-compatible endpoint
	mux.HandleFunc("/v1/audio/speech", h.withMetrics("/v1/audio/speech", h.withAuth(h.handleOpenAISpeech)))

	// Open WebUI backend-compatible endpoint; the double-slash alias covers
	// callers configured with a trailing slash in their base URL.
	// Unlike the original deployment, the compat endpoints also sit behind
	// the token gate when a token is configured; see README.
	mux.HandleFunc("/tts/speech", h.withMetrics("/tts/speech", h.withAuth(h.handleWebUISpeech)))
	mux.HandleFunc("/tts//speech", h.withMetrics("/tts/speech", h.withAuth(h.handleWebUISpeech)))

	// ElevenLabs-compatible passthrough endpoints
	mux.HandleFunc("/v1/text-to-speech/", h.withMetrics("/v1/text-to-speech/{voice_id}", h.withAuth(h.handleElevenCompat)))
	mux.HandleFunc("/text-to-speech/", h.withMetrics("/text-to-speech/{voice_id}", h.withAuth(h.handleElevenCompat)))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with request-ID assignment and metrics
// collection. Recording happens in a defer so aborted relays (panic with
// http.ErrAbortHandler) are still counted.
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		reqID := uuid.NewString()
		r = r.WithContext(withRequestID(r.Context(), reqID))
		w.Header().Set("X-Request-ID", reqID)

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		defer func() {
			duration := time.Since(startTime).Seconds()
			statusCode := fmt.Sprintf("%d", ww.statusCode)

			h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

			if ww.statusCode >= 400 {
				errorType := "client_error"
				if ww.statusCode >= 500 {
					errorType = "server_error"
				}
				h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
			}
		}()

		handler(ww, r)
	}
}

// withAuth wraps an HTTP handler with the shared-token gate. Rejected
// requests never reach validation or the upstream client.
func (h *HTTPServer) withAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.gate.Authorize(r.Header.Get(auth.HeaderName)) {
			h.logger.Warn("Rejected unauthorized request",
				slog.String("request_id", requestID(r.Context())),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
			)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		handler(w, r)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code while
// still exposing Flush to the relay.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// ctxKey is the private type for request-scoped context values.
type ctxKey int

const requestIDKey ctxKey = iota

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP server",
		slog.String("address", h.server.Addr),
		slog.Bool("auth_enabled", h.gate.Enabled()),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server...")

	return h.server.Shutdown(ctx)
}

// Handler returns the configured route handler. Exposed for tests.
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// handleHealth implements the /healthz endpoint. It reports process
// liveness only and must stay independent of upstream reachability and
// auth configuration.
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)

	stats := map[string]interface{}{
		"uptime":    uptime.String(),
		"timestamp": time.Now().UTC(),
		"service": map[string]interface{}{
			"name":    "aurora-tts-service",
			"version": "1.0.0",
		},
		"auth": map[string]interface{}{
			"enabled": h.gate.Enabled(),
		},
		"limits": map[string]interface{}{
			"max_text_length": h.config.Limits.MaxTextLength,
			"max_body_bytes":  h.config.Limits.MaxBodyBytes,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Aurora TTS Gateway",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /healthz":                       "Liveness probe",
			"POST /speak":                        "Synthesize speech from JSON {\"text\": ...}",
			"POST /v1/audio/speech":              "OpenAI-compatible synthesis endpoint",
			"POST /tts/speech":                   "Open WebUI backend-compatible endpoint",
			"POST /v1/text-to-speech/{voice_id}": "ElevenLabs-compatible synthesis endpoint",
			"GET /stats":                         "Service statistics",
			"GET /metrics":                       "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
