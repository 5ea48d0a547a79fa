package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":    {"gemini", "openai", "openai-compatible", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp"},
	"tts":    {"elevenlabs", "coqui"},
	"places": {"serpapi"},
}

// Built-in defaults filled in by [ApplyDefaults].
const (
	DefaultListenAddr      = "0.0.0.0:8000"
	DefaultLLMModel        = "gemini-2.5-flash-preview-05-20"
	DefaultProviderTimeout = 10 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMaxFailures     = 5
	DefaultResetTimeout    = 30 * time.Second
)

// envKeys maps each provider kind to the environment variables that may
// supply its API key, in order of preference.
var envKeys = map[string][]string{
	"llm":    {"GEMINI_API_KEY", "OPENAI_API_KEY"},
	"tts":    {"ELEVENLABS_API_KEY"},
	"places": {"SERPAPI_API_KEY"},
}

// Default returns the configuration used when no file is given: Gemini for
// text, ElevenLabs for speech and SerpAPI for places, with keys expected from
// the environment.
func Default() *Config {
	cfg := &Config{
		Providers: ProvidersConfig{
			LLM:    ProviderEntry{Name: "gemini"},
			TTS:    ProviderEntry{Name: "elevenlabs"},
			Places: ProviderEntry{Name: "serpapi"},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field with its built-in default.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if len(s.CORSOrigins) == 0 {
		s.CORSOrigins = []string{"*"}
	}
	if s.ProviderTimeout == 0 {
		s.ProviderTimeout = DefaultProviderTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.Providers.LLM.Name == "gemini" && cfg.Providers.LLM.Model == "" {
		cfg.Providers.LLM.Model = DefaultLLMModel
	}

	sp := &cfg.Speech
	if sp.AudioDir == "" {
		sp.AudioDir = "audio"
	}
	if sp.GeneratedDir == "" {
		sp.GeneratedDir = filepath.Join(sp.AudioDir, "generated")
	}
	if sp.ClassicDir == "" {
		sp.ClassicDir = filepath.Join(sp.AudioDir, "classic")
	}
	if sp.DefaultVoice == "" {
		sp.DefaultVoice = "fin"
	}
	if sp.ClassicVoice == "" {
		sp.ClassicVoice = "deep_ah"
	}

	if cfg.Resilience.MaxFailures == 0 {
		cfg.Resilience.MaxFailures = DefaultMaxFailures
	}
	if cfg.Resilience.ResetTimeout == 0 {
		cfg.Resilience.ResetTimeout = DefaultResetTimeout
	}
}

// ApplyEnv fills empty API keys and the listen address from the environment
// using lookup (normally [os.LookupEnv]). Values already set in the file win.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	entries := map[string]*ProviderEntry{
		"llm":    &cfg.Providers.LLM,
		"tts":    &cfg.Providers.TTS,
		"places": &cfg.Providers.Places,
	}
	for kind, e := range entries {
		if e.APIKey != "" {
			continue
		}
		for _, key := range envKeysFor(kind, e.Name) {
			if v, ok := lookup(key); ok && v != "" {
				e.APIKey = v
				break
			}
		}
	}

	if v, ok := lookup("CONCH_LISTEN_ADDR"); ok && v != "" {
		cfg.Server.ListenAddr = v
	}
}

// envKeysFor narrows the LLM key variables to the one matching the provider
// so a stray OPENAI_API_KEY is never sent to Gemini.
func envKeysFor(kind, name string) []string {
	if kind != "llm" {
		return envKeys[kind]
	}
	switch name {
	case "gemini":
		return []string{"GEMINI_API_KEY"}
	case "openai", "openai-compatible":
		return []string{"OPENAI_API_KEY"}
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	for i, o := range cfg.Server.CORSOrigins {
		if o == "" {
			errs = append(errs, fmt.Errorf("server.cors_origins[%d] is empty", i))
		}
	}
	if cfg.Server.ProviderTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.provider_timeout %s must not be negative", cfg.Server.ProviderTimeout))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %s must not be negative", cfg.Server.ShutdownTimeout))
	}

	// Provider name validation: warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("places", cfg.Providers.Places.Name)

	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; every generated answer will report technical difficulties")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("no TTS provider configured; answers will point at placeholder audio")
	}
	if cfg.Providers.Places.Name == "" {
		slog.Warn("no places provider configured; food questions will never name a venue")
	}

	// Speech
	voicesSeen := make(map[string]int, len(cfg.Speech.Voices))
	for i, v := range cfg.Speech.Voices {
		prefix := fmt.Sprintf("speech.voices[%d]", i)
		if v.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := voicesSeen[v.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of speech.voices[%d]", prefix, v.Name, prev))
		}
		voicesSeen[v.Name] = i
	}
	if d := cfg.Speech.Reverb.Decay; d != nil && (*d < 0 || *d > 1) {
		errs = append(errs, fmt.Errorf("speech.reverb.decay %.2f is out of range [0, 1]", *d))
	}
	if r := cfg.Speech.Reverb.RoomSize; r != nil && (*r < 0 || *r > 1) {
		errs = append(errs, fmt.Errorf("speech.reverb.room_size %.2f is out of range [0, 1]", *r))
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must not be negative", cfg.Resilience.MaxFailures))
	}
	if cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("resilience.reset_timeout %s must not be negative", cfg.Resilience.ResetTimeout))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
