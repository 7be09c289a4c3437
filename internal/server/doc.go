// Package server implements the gateway's HTTP surface: the streaming
// synthesis endpoints, the shared-token auth middleware, and the
// health/monitoring endpoints. Each request runs in its own handler
// goroutine and owns at most one upstream stream.
package server
