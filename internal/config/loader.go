package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/monitome/internal/observe"
	"github.com/MrWong99/monitome/pkg/audio"
	"github.com/MrWong99/monitome/pkg/provider/stt"
)

// DefaultPath is the config file consulted when none is named explicitly.
const DefaultPath = "monitome.yaml"

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "gemini", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"elevenlabs"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
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

// LoadOrDefault is [Load], except that a missing file yields the defaults
// unless the caller named the path explicitly.
func LoadOrDefault(path string, explicit bool) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		slog.Debug("no config file, using defaults", "path", path)
		return Default(), nil
	}
	return cfg, err
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Unknown keys are rejected. An empty document is valid.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := seeded()
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

// Validate checks that cfg contains a coherent set of values. It expects
// defaults to have been applied and returns a joined error listing every
// failure found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if !observe.LogFormat(cfg.Server.LogFormat).IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json, logfmt", cfg.Server.LogFormat))
	}

	// Providers
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("llm", fb.Name)
	}

	// Transcription
	t := cfg.Transcribe
	if !stt.CommitStrategy(t.CommitStrategy).IsValid() {
		errs = append(errs, fmt.Errorf("transcribe.commit_strategy %q is invalid; valid values: manual, vad", t.CommitStrategy))
	}
	if t.ManualCommitSecs < 0 {
		errs = append(errs, fmt.Errorf("transcribe.manual_commit_secs %.2f must not be negative", t.ManualCommitSecs))
	}
	if t.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("transcribe.sample_rate %d must be positive", t.SampleRate))
	}
	if t.ChunkMs <= 0 {
		errs = append(errs, fmt.Errorf("transcribe.chunk_ms %d must be positive", t.ChunkMs))
	} else if t.SampleRate > 0 && audio.FrameSamples(t.SampleRate, t.ChunkMs) < 1 {
		errs = append(errs, fmt.Errorf("transcribe.chunk_ms %d at %d Hz yields an empty frame", t.ChunkMs, t.SampleRate))
	}
	if t.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("transcribe.queue_size %d must be at least 1", t.QueueSize))
	}
	if t.Linger < 0 {
		errs = append(errs, fmt.Errorf("transcribe.linger %s must not be negative", t.Linger))
	}

	// Analysis
	a := cfg.Analysis
	if a.Temperature < 0 || a.Temperature > 2 {
		errs = append(errs, fmt.Errorf("analysis.temperature %.2f is out of range [0, 2]", a.Temperature))
	}
	if a.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("analysis.max_tokens %d must not be negative", a.MaxTokens))
	}
	if a.SummaryWindow < 0 {
		errs = append(errs, fmt.Errorf("analysis.summary_window %d must not be negative", a.SummaryWindow))
	}
	cb := a.CircuitBreaker
	if cb.MaxFailures < 0 || cb.HalfOpenMax < 0 || cb.ResetTimeout < 0 {
		errs = append(errs, errors.New("analysis.circuit_breaker values must not be negative"))
	}

	// Storage
	if cfg.Storage.MemoryCapacity < 0 {
		errs = append(errs, fmt.Errorf("storage.memory_capacity %d must not be negative", cfg.Storage.MemoryCapacity))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	if slices.Contains(ValidProviderNames[kind], name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", ValidProviderNames[kind],
	)
}
