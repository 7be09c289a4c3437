package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AuroraBackcountry/aurora-tts-service/internal/elevenlabs"
	"github.com/AuroraBackcountry/aurora-tts-service/internal/relay"
)

// speakRequest is the body of the core POST /speak endpoint
type speakRequest struct {
	Text        string `json:"text"`
	VoiceID     string `json:"voice_id"`
	LatencyHint *int   `json:"latency_hint"`
}

// openAIRequest is the body of the OpenAI-compatible POST /v1/audio/speech
// endpoint. Model and speed are accepted for compatibility but synthesis
// always runs through the configured ElevenLabs model.
type openAIRequest struct {
	Model          string  `json:"model"`
	Voice          string  `json:"voice"`
	Input          string  `json:"input"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed"`
}

// webUIRequest is the body of the Open WebUI backend-compatible
// POST /tts/speech endpoint, which sends either "text" or "input".
type webUIRequest struct {
	Text    string `json:"text"`
	Input   string `json:"input"`
	Voice   string `json:"voice"`
	VoiceID string `json:"voice_id"`
	Format  string `json:"format"`
}

// elevenCompatRequest is the body of the ElevenLabs-compatible
// POST /v1/text-to-speech/{voice_id} endpoint.
type elevenCompatRequest struct {
	Text                     string                    `json:"text"`
	ModelID                  string                    `json:"model_id"`
	LanguageCode             string                    `json:"language_code"`
	VoiceSettings            *elevenlabs.VoiceSettings `json:"voice_settings"`
	OptimizeStreamingLatency *int                      `json:"optimize_streaming_latency"`
}

// handleSpeak implements the core POST /speak endpoint
func (h *HTTPServer) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req speakRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	text, ok := h.validateText(w, req.Text)
	if !ok {
		return
	}

	h.synthesize(w, r, elevenlabs.Request{
		Text:                     text,
		VoiceID:                  req.VoiceID,
		OptimizeStreamingLatency: req.LatencyHint,
	})
}

// handleOpenAISpeech implements the OpenAI-compatible POST /v1/audio/speech
// endpoint
func (h *HTTPServer) handleOpenAISpeech(w http.ResponseWriter, r *http.Request) {
	var req openAIRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	text, ok := h.validateText(w, req.Input)
	if !ok {
		return
	}

	h.synthesize(w, r, elevenlabs.Request{
		Text:    text,
		VoiceID: req.Voice,
		Accept:  elevenlabs.AcceptFor(req.ResponseFormat),
	})
}

// handleWebUISpeech implements the Open WebUI backend-compatible
// POST /tts/speech endpoint
func (h *HTTPServer) handleWebUISpeech(w http.ResponseWriter, r *http.Request) {
	var req webUIRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	raw := req.Text
	if raw == "" {
		raw = req.Input
	}

	text, ok := h.validateText(w, raw)
	if !ok {
		return
	}

	voice := req.Voice
	if voice == "" {
		voice = req.VoiceID
	}

	h.synthesize(w, r, elevenlabs.Request{
		Text:    text,
		VoiceID: voice,
		Accept:  elevenlabs.AcceptFor(req.Format),
	})
}

// handleElevenCompat implements the ElevenLabs-compatible
// POST /v1/text-to-speech/{voice_id} endpoint (and its non-versioned alias)
func (h *HTTPServer) handleElevenCompat(w http.ResponseWriter, r *http.Request) {
	voiceID := extractVoiceID(r.URL.Path)
	if voiceID == "" {
		writeError(w, http.StatusBadRequest, "missing_voice_id")
		return
	}

	var req elevenCompatRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	text, ok := h.validateText(w, req.Text)
	if !ok {
		return
	}

	h.synthesize(w, r, elevenlabs.Request{
		Text:                     text,
		VoiceID:                  voiceID,
		ModelID:                  req.ModelID,
		LanguageCode:             req.LanguageCode,
		VoiceSettings:            req.VoiceSettings,
		OptimizeStreamingLatency: req.OptimizeStreamingLatency,
	})
}

// extractVoiceID pulls the voice identifier out of an
// ElevenLabs-compatible path, tolerating a trailing /stream segment.
func extractVoiceID(path string) string {
	for _, prefix := range []string{"/v1/text-to-speech/", "/text-to-speech/"} {
		if rest, found := strings.CutPrefix(path, prefix); found {
			rest = strings.TrimSuffix(rest, "/stream")
			if strings.Contains(rest, "/") {
				return ""
			}
			return rest
		}
	}
	return ""
}

// decodeJSON decodes a POST body into dst, enforcing the method, the body
// size limit, and JSON well-formedness. It writes the error response itself
// and reports whether decoding succeeded.
func (h *HTTPServer) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.Limits.MaxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeErrorDetail(w, http.StatusBadRequest, "body_too_large",
				fmt.Sprintf("request body exceeds %d bytes", h.config.Limits.MaxBodyBytes))
			return false
		}
		writeErrorDetail(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}

	return true
}

// validateText trims and bounds-checks the synthesis text. It writes the
// 400 response itself; no upstream call happens on failure.
func (h *HTTPServer) validateText(w http.ResponseWriter, text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		writeErrorDetail(w, http.StatusBadRequest, "empty_text",
			"the 'text' field must be a non-empty string")
		return "", false
	}

	if n := utf8.RuneCountInString(text); n > h.config.Limits.MaxTextLength {
		writeErrorDetail(w, http.StatusBadRequest, "text_too_long",
			fmt.Sprintf("text is %d characters, limit is %d", n, h.config.Limits.MaxTextLength))
		return "", false
	}

	return text, true
}

// synthesize opens the upstream stream and relays it to the caller. The
// request context bounds the whole relay; a client disconnect cancels it,
// which aborts the pending upstream read and releases the provider
// connection.
func (h *HTTPServer) synthesize(w http.ResponseWriter, r *http.Request, req elevenlabs.Request) {
	logger := h.logger.With(slog.String("request_id", requestID(r.Context())))

	ctx, cancel := context.WithTimeout(r.Context(), h.config.Upstream.GetMaxStreamDuration())
	defer cancel()

	h.metrics.RecordSynthesisRequest()

	connectStart := time.Now()
	stream, err := h.tts.Synthesize(ctx, req)
	if err != nil {
		h.writeUpstreamError(w, logger, err)
		return
	}
	defer stream.Close()
	h.metrics.RecordUpstreamConnect(time.Since(connectStart).Seconds())

	w.Header().Set("Content-Type", stream.ContentType())
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	h.metrics.StreamStarted()
	defer h.metrics.StreamFinished()

	relayStart := time.Now()
	written, err := relay.Copy(w, stream)
	elapsed := time.Since(relayStart)

	var srcErr *relay.SourceError
	var sinkErr *relay.SinkError
	switch {
	case err == nil:
		h.metrics.RecordSynthesisSuccess(elapsed.Seconds(), written)
		logger.Info("Relay complete",
			slog.Int64("bytes", written),
			slog.Duration("duration", elapsed),
			slog.String("content_type", stream.ContentType()),
		)

	case errors.As(err, &sinkErr):
		// The client is gone; the deferred Close releases the upstream
		// connection and no error response is possible or needed.
		h.metrics.RecordClientDisconnect()
		h.metrics.RecordSynthesisFailure("client_disconnected")
		logger.Info("Client disconnected mid-stream",
			slog.Int64("bytes", written),
			slog.Duration("duration", elapsed),
		)

	case errors.As(err, &srcErr):
		// A vanished client usually surfaces here, not as a sink error:
		// the cancelled request context aborts the pending upstream read
		// before a write to the dead connection gets the chance to fail.
		if errors.Is(srcErr.Err, context.Canceled) || r.Context().Err() != nil {
			h.metrics.RecordClientDisconnect()
			h.metrics.RecordSynthesisFailure("client_disconnected")
			logger.Info("Client disconnected mid-stream",
				slog.Int64("bytes", written),
				slog.Duration("duration", elapsed),
			)
			return
		}

		// The status line is already committed, so the sent prefix cannot
		// be converted into an error response. Terminate the connection so
		// the caller sees a broken stream instead of a clean end.
		h.metrics.RecordMidStreamFailure()
		h.metrics.RecordSynthesisFailure("upstream_midstream")
		logger.Error("Upstream failed mid-stream, terminating response",
			slog.String("error", srcErr.Err.Error()),
			slog.Int64("bytes", written),
			slog.Duration("duration", elapsed),
		)
		panic(http.ErrAbortHandler)
	}
}

// writeUpstreamError maps a pre-stream upstream failure onto the HTTP error
// surface. Nothing here retries: a failed synthesis fails the request.
func (h *HTTPServer) writeUpstreamError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var rejected *elevenlabs.RejectedError

	switch {
	case errors.Is(err, context.Canceled):
		// Client disconnected before the upstream responded. Recovered
		// locally: release only, no response.
		h.metrics.RecordClientDisconnect()
		h.metrics.RecordSynthesisFailure("client_disconnected")
		logger.Debug("Client disconnected before upstream responded")

	case errors.Is(err, elevenlabs.ErrStartupTimeout):
		h.metrics.RecordSynthesisFailure("upstream_timeout")
		logger.Error("Upstream startup timeout", slog.String("error", err.Error()))
		writeError(w, http.StatusGatewayTimeout, "upstream_timeout")

	case errors.As(err, &rejected):
		h.metrics.RecordSynthesisFailure("upstream_rejected")
		logger.Error("Upstream rejected request",
			slog.Int("upstream_status", rejected.StatusCode),
			slog.String("upstream_body", rejected.Body),
		)
		// 429 passes through so callers can back off; everything else is a
		// generic bad gateway to avoid forwarding provider semantics.
		status := http.StatusBadGateway
		if rejected.StatusCode == http.StatusTooManyRequests {
			status = http.StatusTooManyRequests
		}
		writeError(w, status, "upstream_rejected")

	case errors.Is(err, elevenlabs.ErrUnavailable):
		h.metrics.RecordSynthesisFailure("upstream_unavailable")
		logger.Error("Upstream unavailable", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "upstream_unavailable")

	default:
		h.metrics.RecordSynthesisFailure("upstream_error")
		logger.Error("Upstream request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "upstream_error")
	}
}

// writeError writes a machine-readable JSON error response
func writeError(w http.ResponseWriter, status int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": reason})
}

// writeErrorDetail writes a JSON error response with a human-readable
// description of the violated rule
func writeErrorDetail(w http.ResponseWriter, status int, reason, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": reason, "detail": detail})
}
