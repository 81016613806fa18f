package main

import (
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/monitome/internal/config"
	"github.com/MrWong99/monitome/pkg/provider/llm"
	"github.com/MrWong99/monitome/pkg/provider/llm/anyllm"
	"github.com/MrWong99/monitome/pkg/provider/llm/openai"
	"github.com/MrWong99/monitome/pkg/provider/stt"
	"github.com/MrWong99/monitome/pkg/provider/stt/elevenlabs"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry whose APIKey has already been
// resolved and constructs the provider from the implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	// openai and gemini go through the OpenAI SDK, which carries image
	// content; gemini is reached via its OpenAI-compatible endpoint.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		return newOpenAI(entry)
	})
	reg.RegisterLLM("gemini", func(entry config.ProviderEntry) (llm.Provider, error) {
		if entry.BaseURL == "" {
			entry.BaseURL = openai.GeminiBaseURL
		}
		return newOpenAI(entry)
	})

	// The remaining backends share the any-llm-go pattern: optional APIKey +
	// optional BaseURL. They are text-only.
	for _, providerName := range anyllm.Backends {
		if providerName == "openai" || providerName == "gemini" {
			continue
		}
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			p, err := anyllm.New(providerName, entry.Model, opts...)
			if err != nil {
				return nil, err
			}
			return p, nil
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("elevenlabs", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		p, err := elevenlabs.New(entry.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	slog.Debug("registered providers", "llm", reg.LLMNames(), "stt", reg.STTNames())
}

// newOpenAI builds an OpenAI SDK provider. Recognised options:
// "organization" (string) and "vision" (bool, overrides model detection).
func newOpenAI(entry config.ProviderEntry) (llm.Provider, error) {
	var opts []openai.Option
	if entry.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(entry.BaseURL))
	}
	if org := config.OptString(entry.Options, "organization"); org != "" {
		opts = append(opts, openai.WithOrganization(org))
	}
	if vision, ok := config.OptBool(entry.Options, "vision"); ok {
		opts = append(opts, openai.WithVision(vision))
	}
	p, err := openai.New(entry.APIKey, entry.Model, opts...)
	if err != nil {
		return nil, err
	}
	return p, nil
}

