package auth

import (
	"crypto/subtle"
)

// HeaderName is the request header carrying the shared secret.
const HeaderName = "X-TTS-Token"

// Gate validates the per-request shared-secret header against the token
// configured at startup. The token is immutable for the process lifetime,
// so a Gate is safe for concurrent use without locking.
type Gate struct {
	token []byte
}

// NewGate creates an authentication gate for the given shared token.
// An empty token disables authentication: every request is authorized.
// This fail-open behavior is deliberate and must be opted into by leaving
// TTS_SHARED_TOKEN unset; deployments that want fail-closed set
// auth.require_token, which rejects the empty token at config validation.
func NewGate(token string) *Gate {
	return &Gate{token: []byte(token)}
}

// Enabled reports whether a token is configured.
func (g *Gate) Enabled() bool {
	return len(g.token) > 0
}

// Authorize checks the presented header value. With a token configured, a
// missing, empty, or mismatched value is rejected. The comparison is
// constant-time so the token cannot be recovered through timing.
func (g *Gate) Authorize(presented string) bool {
	if !g.Enabled() {
		return true
	}

	return subtle.ConstantTimeCompare(g.token, []byte(presented)) == 1
}
