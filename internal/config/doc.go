// Package config provides configuration loading and validation for the TTS gateway.
// It layers an optional YAML file under environment overrides; secrets such as
// the provider API key and the shared auth token come from the environment only.
package config
