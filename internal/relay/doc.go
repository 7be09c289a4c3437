// Package relay copies an in-progress upstream audio stream to the outbound
// HTTP response one chunk at a time, flushing as bytes arrive and
// distinguishing upstream failures from client disconnects.
package relay
