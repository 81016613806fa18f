// Package config provides the configuration schema, loader, and provider
// registry for monitome.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
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

// SlogLevel maps l to the matching [slog.Level]. Unknown levels map to info.
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

// Defaults applied by [ApplyDefaults] and [Default].
const (
	DefaultListenAddr       = "127.0.0.1:8420"
	DefaultSTTProvider      = "elevenlabs"
	DefaultSTTModel         = "scribe_v2_realtime"
	DefaultCommitStrategy   = "vad"
	DefaultManualCommitSecs = 2.5
	DefaultSampleRate       = 16000
	DefaultChunkMs          = 100
	DefaultQueueSize        = 32
	DefaultLLMProvider      = "gemini"
	DefaultLLMModel         = "gemini-2.0-flash"
	DefaultTemperature      = 0.2
	DefaultMaxTokens        = 1024
	DefaultSummaryWindow    = 50
	DefaultMemoryCapacity   = 1000
)

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Storage    StorageConfig    `yaml:"storage"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the analysis service listens on.
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat is "text", "json" or "logfmt".
	LogFormat string `yaml:"log_format"`
}

// ProvidersConfig selects the provider implementations by name. Each entry is
// resolved through the [Registry].
type ProvidersConfig struct {
	// LLM is the primary model behind screenshot analysis.
	LLM ProviderEntry `yaml:"llm"`

	// LLMFallbacks are tried in order when the primary fails or its
	// circuit breaker is open.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`

	// STT is the realtime speech-to-text backend.
	STT ProviderEntry `yaml:"stt"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
type ProviderEntry struct {
	// Name selects the registered implementation (e.g., "openai", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider. When empty the provider's
	// conventional environment variable is consulted.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// TranscribeConfig holds the realtime transcription settings. Every field
// has a matching flag on the stt command.
type TranscribeConfig struct {
	// Language is an optional language code; empty lets the server detect it.
	Language string `yaml:"language"`

	// CommitStrategy is "manual" or "vad".
	CommitStrategy string `yaml:"commit_strategy"`

	// ManualCommitSecs is the commit interval under the manual strategy.
	// Zero commits on every chunk. Configs from [Default] and [Load] start
	// at DefaultManualCommitSecs, so only an explicit value changes it.
	ManualCommitSecs float64 `yaml:"manual_commit_secs"`

	SampleRate int `yaml:"sample_rate"`
	ChunkMs    int `yaml:"chunk_ms"`

	// Device selects the input device by index or name substring.
	Device string `yaml:"device"`

	// Timestamps requests word timings on committed transcripts.
	Timestamps bool `yaml:"timestamps"`

	// PreviousText is context sent with the first audio chunk only.
	PreviousText string `yaml:"previous_text"`

	// QueueSize bounds the frame queue between capture and sender.
	QueueSize int `yaml:"queue_size"`

	// Linger keeps the connection open for late transcripts after a finite
	// input ends. Zero waits for the server to close.
	Linger time.Duration `yaml:"linger"`
}

// ManualCommitInterval returns ManualCommitSecs as a duration.
func (t TranscribeConfig) ManualCommitInterval() time.Duration {
	return time.Duration(t.ManualCommitSecs * float64(time.Second))
}

// AnalysisConfig tunes the screenshot analyzer.
type AnalysisConfig struct {
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// SummaryWindow is how many stored activities a summary request without
	// activities covers.
	SummaryWindow int `yaml:"summary_window"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig tunes the per-provider breakers of the LLM fallback
// group. Zero values select the breaker defaults.
type CircuitBreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// StorageConfig selects where extracted activities are kept.
type StorageConfig struct {
	// SQLitePath is the activity database file. Empty keeps activities in
	// memory only.
	SQLitePath string `yaml:"sqlite_path"`

	// MemoryCapacity bounds the in-memory store.
	MemoryCapacity int `yaml:"memory_capacity"`
}

// ApplyDefaults fills every unset field with its default. ManualCommitSecs
// is left alone: zero is a valid interval.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.LogFormat == "" {
		s.LogFormat = "text"
	}

	p := &cfg.Providers
	if p.STT.Name == "" {
		p.STT.Name = DefaultSTTProvider
	}
	if p.STT.Model == "" {
		p.STT.Model = DefaultSTTModel
	}
	if p.LLM.Name == "" {
		p.LLM.Name = DefaultLLMProvider
		if p.LLM.Model == "" {
			p.LLM.Model = DefaultLLMModel
		}
	}

	t := &cfg.Transcribe
	if t.CommitStrategy == "" {
		t.CommitStrategy = DefaultCommitStrategy
	}
	if t.SampleRate == 0 {
		t.SampleRate = DefaultSampleRate
	}
	if t.ChunkMs == 0 {
		t.ChunkMs = DefaultChunkMs
	}
	if t.QueueSize == 0 {
		t.QueueSize = DefaultQueueSize
	}

	a := &cfg.Analysis
	if a.Temperature == 0 {
		a.Temperature = DefaultTemperature
	}
	if a.MaxTokens == 0 {
		a.MaxTokens = DefaultMaxTokens
	}
	if a.SummaryWindow == 0 {
		a.SummaryWindow = DefaultSummaryWindow
	}

	if cfg.Storage.MemoryCapacity == 0 {
		cfg.Storage.MemoryCapacity = DefaultMemoryCapacity
	}
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := seeded()
	ApplyDefaults(cfg)
	return cfg
}

// seeded returns the starting point for decoding: fields whose zero value is
// meaningful hold their defaults before the YAML is read.
func seeded() *Config {
	return &Config{Transcribe: TranscribeConfig{ManualCommitSecs: DefaultManualCommitSecs}}
}
