// Package auth implements the shared-secret authentication gate.
// It compares the X-TTS-Token request header against the process-wide token
// in constant time, and treats an unconfigured token as auth disabled.
package auth
