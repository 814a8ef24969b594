// Package config provides configuration loading and validation for the
// whisper streaming service. It handles YAML-based configuration with
// per-section validation and duration helpers for every timing parameter.
package config
