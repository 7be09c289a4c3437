// Package elevenlabs implements the HTTP client for the ElevenLabs
// streaming synthesis API. It opens the text-to-speech stream endpoint with
// provider credentials attached out-of-band and exposes the response as a
// lazy byte stream, classifying pre-stream failures into a small error
// taxonomy (unavailable, rejected, startup timeout).
package elevenlabs
