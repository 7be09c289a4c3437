package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the ElevenLabs API base URL.
	DefaultBaseURL = "https://api.elevenlabs.io/v1"

	// maxErrorBody bounds how much of a provider error response is
	// captured for diagnostics.
	maxErrorBody = 4096
)

var (
	// ErrUnavailable indicates the connection to the provider could not be
	// established (network failure, DNS failure, connection refused).
	ErrUnavailable = errors.New("upstream unavailable")

	// ErrStartupTimeout indicates the provider produced no response within
	// the configured startup window.
	ErrStartupTimeout = errors.New("upstream startup timeout")
)

// RejectedError indicates the provider answered with a non-success status
// before any audio was streamed (invalid voice, quota exceeded, bad
// credentials). Body holds a bounded excerpt of the provider's error
// response.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("upstream rejected request (status %d): %s", e.StatusCode, e.Body)
}

// Config contains upstream client configuration
type Config struct {
	BaseURL                  string
	APIKey                   string
	DefaultVoiceID           string
	ModelID                  string
	OptimizeStreamingLatency int
	StartupTimeout           time.Duration
	MaxIdleConns             int
	MaxIdleConnsPerHost      int
}

// VoiceSettings contains optional voice tuning parameters passed through to
// the provider.
type VoiceSettings struct {
	Stability       *float64 `json:"stability,omitempty"`
	SimilarityBoost *float64 `json:"similarity_boost,omitempty"`
}

// Request describes a single synthesis request. Zero-value optional fields
// fall back to the configured defaults.
type Request struct {
	Text                     string
	VoiceID                  string
	ModelID                  string
	LanguageCode             string
	VoiceSettings            *VoiceSettings
	OptimizeStreamingLatency *int
	Accept                   string // desired audio MIME type
}

// synthesisPayload is the JSON body sent to the provider.
type synthesisPayload struct {
	Text                     string         `json:"text"`
	ModelID                  string         `json:"model_id,omitempty"`
	LanguageCode             string         `json:"language_code,omitempty"`
	VoiceSettings            *VoiceSettings `json:"voice_settings,omitempty"`
	OptimizeStreamingLatency int            `json:"optimize_streaming_latency"`
}

// Stream is a handle to an open, in-progress audio response from the
// provider. It is a lazy, finite, non-restartable byte sequence owned by
// the request that created it; the owner must Close it to release the
// underlying connection.
type Stream struct {
	body        io.ReadCloser
	contentType string
}

func (s *Stream) Read(p []byte) (int, error) {
	return s.body.Read(p)
}

// Close releases the underlying provider connection.
func (s *Stream) Close() error {
	return s.body.Close()
}

// ContentType returns the audio container MIME type reported by the provider.
func (s *Stream) ContentType() string {
	return s.contentType
}

// Client issues streaming synthesis requests to the ElevenLabs API.
// The pooled transport reuses provider connections across requests, which
// avoids a TLS handshake on every synthesis call.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new upstream synthesis client
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if config.DefaultVoiceID == "" {
		return nil, fmt.Errorf("default voice ID cannot be empty")
	}

	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}

	if config.ModelID == "" {
		config.ModelID = "eleven_flash_v2_5"
	}

	if config.StartupTimeout <= 0 {
		config.StartupTimeout = 10 * time.Second
	}

	if config.MaxIdleConns <= 0 {
		config.MaxIdleConns = 64
	}

	if config.MaxIdleConnsPerHost <= 0 {
		config.MaxIdleConnsPerHost = 64
	}

	httpClient := &http.Client{
		// No overall client timeout: it would cut off long audio streams.
		// The startup window is enforced by ResponseHeaderTimeout and the
		// total relay duration by the per-request context.
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: config.StartupTimeout,
			}).DialContext,
			ResponseHeaderTimeout: config.StartupTimeout,
			MaxIdleConns:          config.MaxIdleConns,
			MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
			IdleConnTimeout:       90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
	}, nil
}

// Synthesize opens a streaming synthesis request and returns the audio
// stream once the provider has committed a success status. Provider
// credentials are attached here and never derived from the caller's
// request. No retries: a failed or partially started stream fails the
// whole request.
func (c *Client) Synthesize(ctx context.Context, req Request) (*Stream, error) {
	if req.Text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	voiceID := c.resolveVoice(req.VoiceID)

	payload := synthesisPayload{
		Text:                     req.Text,
		ModelID:                  c.config.ModelID,
		LanguageCode:             req.LanguageCode,
		VoiceSettings:            req.VoiceSettings,
		OptimizeStreamingLatency: c.config.OptimizeStreamingLatency,
	}
	if req.ModelID != "" {
		payload.ModelID = req.ModelID
	}
	if req.OptimizeStreamingLatency != nil {
		payload.OptimizeStreamingLatency = *req.OptimizeStreamingLatency
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s/stream",
		strings.TrimRight(c.config.BaseURL, "/"), url.PathEscape(voiceID))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}

	accept := req.Accept
	if accept == "" {
		accept = "audio/mpeg"
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)
	httpReq.Header.Set("xi-api-key", c.config.APIKey)
	httpReq.Header.Set("User-Agent", "aurora-tts-gateway/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.classifyTransportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &RejectedError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(errBody)),
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = accept
	}

	return &Stream{
		body:        resp.Body,
		contentType: contentType,
	}, nil
}

// resolveVoice maps an empty or "default" voice selector to the configured
// default voice.
func (c *Client) resolveVoice(voiceID string) string {
	if voiceID == "" || strings.EqualFold(voiceID, "default") {
		return c.config.DefaultVoiceID
	}
	return voiceID
}

// classifyTransportError maps a transport-level failure onto the error
// taxonomy. Caller cancellation passes through untouched so the handler can
// recognize a vanished client.
func (c *Client) classifyTransportError(ctx context.Context, err error) error {
	if ctx.Err() == context.Canceled {
		return ctx.Err()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s", ErrStartupTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrStartupTimeout, err)
	}

	return fmt.Errorf("%w: %s", ErrUnavailable, err)
}

// AcceptFor maps a caller-requested format name or MIME type to the Accept
// header value sent to the provider. Unknown formats fall back to MP3.
func AcceptFor(format string) string {
	f := strings.ToLower(format)
	switch {
	case strings.Contains(f, "ogg"), strings.Contains(f, "opus"):
		return "audio/ogg"
	case strings.Contains(f, "wav"):
		return "audio/wav"
	case strings.Contains(f, "aac"):
		return "audio/aac"
	case strings.Contains(f, "flac"):
		return "audio/flac"
	default:
		return "audio/mpeg"
	}
}
