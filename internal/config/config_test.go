package config_test

import (
	"errors"
	"log/slog"
	"slices"
	"testing"

	"github.com/MrWong99/monitome/internal/config"
	"github.com/MrWong99/monitome/pkg/provider/llm"
	llmmock "github.com/MrWong99/monitome/pkg/provider/llm/mock"
	"github.com/MrWong99/monitome/pkg/provider/stt"
	sttmock "github.com/MrWong99/monitome/pkg/provider/stt/mock"
)

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error("trace should be invalid")
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Providers.LLM = config.ProviderEntry{Name: "openai"}
	cfg.Transcribe.SampleRate = 48000
	config.ApplyDefaults(cfg)

	if cfg.Providers.LLM.Model != "" {
		t.Errorf("LLM model = %q; the default model belongs to the default provider only", cfg.Providers.LLM.Model)
	}
	if cfg.Transcribe.SampleRate != 48000 {
		t.Errorf("sample rate overwritten: %d", cfg.Transcribe.SampleRate)
	}
	if cfg.Providers.STT.Name != config.DefaultSTTProvider {
		t.Errorf("STT name = %q", cfg.Providers.STT.Name)
	}
}

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM err = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	var gotEntry config.ProviderEntry
	want := &llmmock.Provider{}
	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		gotEntry = e
		return want, nil
	})
	reg.RegisterLLM("gemini", func(config.ProviderEntry) (llm.Provider, error) { return want, nil })
	reg.RegisterSTT("elevenlabs", func(config.ProviderEntry) (stt.Provider, error) { return &sttmock.Provider{}, nil })

	p, err := reg.CreateLLM(config.ProviderEntry{Name: "openai", Model: "gpt-4o"})
	if err != nil || p != want {
		t.Fatalf("CreateLLM = %v, %v", p, err)
	}
	if gotEntry.Model != "gpt-4o" {
		t.Errorf("factory saw model %q", gotEntry.Model)
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "elevenlabs"}); err != nil {
		t.Errorf("CreateSTT: %v", err)
	}
	if got := reg.LLMNames(); !slices.Equal(got, []string{"gemini", "openai"}) {
		t.Errorf("LLMNames = %v", got)
	}
	if got := reg.STTNames(); !slices.Equal(got, []string{"elevenlabs"}) {
		t.Errorf("STTNames = %v", got)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("bad key")
	reg.RegisterLLM("openai", func(config.ProviderEntry) (llm.Provider, error) { return nil, boom })
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "openai"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want factory error", err)
	}
}

func TestOptHelpers(t *testing.T) {
	t.Parallel()
	opts := map[string]any{"org": "acme", "vision": true, "n": 3}
	if got := config.OptString(opts, "org"); got != "acme" {
		t.Errorf("OptString = %q", got)
	}
	if got := config.OptString(opts, "n"); got != "" {
		t.Errorf("OptString(non-string) = %q", got)
	}
	if v, ok := config.OptBool(opts, "vision"); !v || !ok {
		t.Errorf("OptBool = %v, %v", v, ok)
	}
	if _, ok := config.OptBool(nil, "vision"); ok {
		t.Error("OptBool(nil) should report unset")
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	t.Parallel()
	tests := map[config.LogLevel]slog.Level{
		config.LogDebug: slog.LevelDebug,
		config.LogInfo:  slog.LevelInfo,
		config.LogWarn:  slog.LevelWarn,
		config.LogError: slog.LevelError,
		"":              slog.LevelInfo,
	}
	for l, want := range tests {
		if got := l.SlogLevel(); got != want {
			t.Errorf("%q.SlogLevel() = %v, want %v", l, got, want)
		}
	}
}
