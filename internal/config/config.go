// Package config provides the configuration schema, loader, and provider
// registry for the conch server.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the conch server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to the equivalent [slog.Level]. Unknown levels map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Speech     SpeechConfig     `yaml:"speech"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on. Default: "0.0.0.0:8000".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`

	// CORSOrigins lists the allowed browser origins. Default: ["*"].
	CORSOrigins []string `yaml:"cors_origins"`

	// ProviderTimeout bounds every single provider call. Default: 10s.
	ProviderTimeout time.Duration `yaml:"provider_timeout"`

	// ShutdownTimeout bounds graceful shutdown. Default: 15s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ProvidersConfig declares which implementation backs each external
// capability. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	LLM    ProviderEntry `yaml:"llm"`
	TTS    ProviderEntry `yaml:"tts"`
	Places ProviderEntry `yaml:"places"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// SpeechConfig locates audio files and defines the voice table.
type SpeechConfig struct {
	// AudioDir is served at /audio. Default: "audio".
	AudioDir string `yaml:"audio_dir"`

	// GeneratedDir receives synthesized answers. Default: "<audio_dir>/generated".
	GeneratedDir string `yaml:"generated_dir"`

	// ClassicDir holds prerecorded classic answers. Default: "<audio_dir>/classic".
	ClassicDir string `yaml:"classic_dir"`

	// DefaultVoice is the table-wide fallback voice. Default: "fin".
	DefaultVoice string `yaml:"default_voice"`

	// ClassicVoice is tried before DefaultVoice for the classic endpoint.
	// Default: "deep_ah".
	ClassicVoice string `yaml:"classic_voice"`

	// Voices adds to or overrides the built-in voice table.
	Voices []VoiceEntry `yaml:"voices"`

	// Reverb tunes the cathedral effect of reverb voices.
	Reverb ReverbConfig `yaml:"reverb"`
}

// VoiceEntry is one configured voice.
type VoiceEntry struct {
	Name        string `yaml:"name"`
	VoiceID     string `yaml:"voice_id"`
	Description string `yaml:"description"`
	Reverb      bool   `yaml:"reverb"`
}

// ReverbConfig holds reverb parameters. Nil fields take the built-in preset.
type ReverbConfig struct {
	Decay    *float64 `yaml:"decay"`
	RoomSize *float64 `yaml:"room_size"`
}

// ResilienceConfig tunes the circuit breakers guarding each provider.
type ResilienceConfig struct {
	// MaxFailures is the number of consecutive failures that open a breaker.
	// Default: 5.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long an open breaker waits before probing. Default: 30s.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}
