package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineSampleRate is the only sample rate the whisper engine accepts.
const EngineSampleRate = 16000

// Config represents the complete service configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	HTTP          HTTPConfig          `yaml:"http"`
	Audio         AudioConfig         `yaml:"audio"`
	VAD           VADConfig           `yaml:"vad"`
	Segmenter     SegmenterConfig     `yaml:"segmenter"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig contains UDP ingest server configuration
type ServerConfig struct {
	UDPPort               int    `yaml:"udp_port"`
	BindAddress           string `yaml:"bind_address"`
	BufferSize            int    `yaml:"buffer_size"`
	MaxConcurrentSessions int    `yaml:"max_concurrent_sessions"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// AudioConfig contains audio transport parameters
type AudioConfig struct {
	SampleRate     int `yaml:"sample_rate"`     // must be 16000 (engine contract)
	MaxChunkGap    int `yaml:"max_chunk_gap"`   // chunks to wait for before declaring loss
	SessionTimeout int `yaml:"session_timeout"` // seconds of inactivity before cleanup
}

// VADConfig contains voice activity detection configuration
type VADConfig struct {
	EnergyRatio   float32 `yaml:"energy_ratio"`   // silence when trailing energy < reference/ratio
	FreqThreshold float32 `yaml:"freq_threshold"` // high-pass cutoff in Hz, 0 disables
}

// SegmenterConfig contains segmentation state machine configuration
type SegmenterConfig struct {
	StepMs              int `yaml:"step_ms"`                // expected chunk cadence
	LengthMs            int `yaml:"length_ms"`              // advertised analysis window
	KeepMs              int `yaml:"keep_ms"`                // context carried across segments
	MaxTalkingMin       int `yaml:"max_talking_min"`        // forced-flush cap in minutes
	DefaultMinSilenceMs int `yaml:"default_min_silence_ms"` // used when a chunk carries 0
	DefaultMaxSilenceMs int `yaml:"default_max_silence_ms"` // used when a chunk carries 0
}

// TranscriptionConfig contains transcription engine API configuration.
// The behavioral flags are passed through to the engine verbatim.
type TranscriptionConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	Language      string `yaml:"language"`
	Threads       int    `yaml:"threads"`
	Translate     bool   `yaml:"translate"`
	Timestamps    bool   `yaml:"timestamps"`
	PrintSpecial  bool   `yaml:"print_special"`
	SingleSegment bool   `yaml:"single_segment"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Segmenter.Validate(); err != nil {
		return fmt.Errorf("segmenter config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.UDPPort < 1 || s.UDPPort > 65535 {
		return fmt.Errorf("udp_port must be between 1 and 65535, got %d", s.UDPPort)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.BufferSize < 1024 {
		return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", s.BufferSize)
	}

	if s.MaxConcurrentSessions < 1 {
		return fmt.Errorf("max_concurrent_sessions must be at least 1, got %d", s.MaxConcurrentSessions)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != EngineSampleRate {
		return fmt.Errorf("sample_rate must be %d Hz for the whisper engine, got %d", EngineSampleRate, a.SampleRate)
	}

	if a.MaxChunkGap < 1 {
		return fmt.Errorf("max_chunk_gap must be at least 1, got %d", a.MaxChunkGap)
	}

	if a.SessionTimeout < 1 {
		return fmt.Errorf("session_timeout must be at least 1 second, got %d", a.SessionTimeout)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if v.EnergyRatio <= 0 {
		return fmt.Errorf("energy_ratio must be positive, got %f", v.EnergyRatio)
	}

	if v.FreqThreshold < 0 {
		return fmt.Errorf("freq_threshold cannot be negative, got %f", v.FreqThreshold)
	}

	if v.FreqThreshold >= EngineSampleRate/2 {
		return fmt.Errorf("freq_threshold must be below the Nyquist frequency %d, got %f",
			EngineSampleRate/2, v.FreqThreshold)
	}

	return nil
}

// Validate validates segmenter configuration
func (s *SegmenterConfig) Validate() error {
	if s.StepMs < 1 {
		return fmt.Errorf("step_ms must be positive, got %d", s.StepMs)
	}

	if s.LengthMs < s.StepMs {
		return fmt.Errorf("length_ms (%d) must be at least step_ms (%d)", s.LengthMs, s.StepMs)
	}

	if s.KeepMs < 0 {
		return fmt.Errorf("keep_ms cannot be negative, got %d", s.KeepMs)
	}

	if s.KeepMs > s.LengthMs {
		return fmt.Errorf("keep_ms (%d) cannot exceed length_ms (%d)", s.KeepMs, s.LengthMs)
	}

	if s.MaxTalkingMin < 1 {
		return fmt.Errorf("max_talking_min must be at least 1 minute, got %d", s.MaxTalkingMin)
	}

	if s.DefaultMinSilenceMs < 1 {
		return fmt.Errorf("default_min_silence_ms must be positive, got %d", s.DefaultMinSilenceMs)
	}

	if s.DefaultMaxSilenceMs < s.DefaultMinSilenceMs {
		return fmt.Errorf("default_max_silence_ms (%d) must be at least default_min_silence_ms (%d)",
			s.DefaultMaxSilenceMs, s.DefaultMinSilenceMs)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty")
	}

	if t.Threads < 1 {
		return fmt.Errorf("threads must be at least 1, got %d", t.Threads)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetSessionTimeoutDuration returns the session timeout as a time.Duration
func (a *AudioConfig) GetSessionTimeoutDuration() time.Duration {
	return time.Duration(a.SessionTimeout) * time.Second
}

// GetMaxTalkingDuration returns the forced-flush cap as a time.Duration
func (s *SegmenterConfig) GetMaxTalkingDuration() time.Duration {
	return time.Duration(s.MaxTalkingMin) * time.Minute
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}
