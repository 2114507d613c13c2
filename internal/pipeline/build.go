package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/apresai/storytime/internal/config"
	"github.com/apresai/storytime/internal/experts"
	"github.com/apresai/storytime/internal/llm"
	"github.com/apresai/storytime/internal/script"
	"github.com/apresai/storytime/internal/tts"
)

// FromConfig builds the language model side of a pipeline from cfg. Speech
// is attached separately with SpeechFromConfig.
func FromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Config, error) {
	primary, err := completerFor(ctx, cfg, cfg.LLM)
	if err != nil {
		return Config{}, fmt.Errorf("llm: %w", err)
	}
	simplify, err := completerFor(ctx, cfg, cfg.Simplify)
	if err != nil {
		return Config{}, fmt.Errorf("simplify llm: %w", err)
	}

	return Config{
		LLM:         primary,
		SimplifyLLM: simplify,
		Analysis: experts.Options{
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		},
		Script:   scriptOptions(cfg.LLM),
		Simplify: scriptOptions(cfg.Simplify),
		Logger:   logger,
	}, nil
}

// SpeechFromConfig creates the configured TTS provider and its voice map,
// with any narrator or character voice overrides applied. The caller
// closes the provider.
func SpeechFromConfig(ctx context.Context, cfg *config.Config) (tts.Provider, tts.VoiceMap, error) {
	provider, err := tts.NewProvider(ctx, cfg.TTS.Provider, tts.ProviderConfig{
		APIKey:  cfg.APIKeyFor(cfg.TTS.Provider),
		BaseURL: cfg.TTS.BaseURL,
		Model:   cfg.TTS.Model,
		Speed:   cfg.TTS.Speed,
	})
	if err != nil {
		return nil, tts.VoiceMap{}, fmt.Errorf("tts: %w", err)
	}
	voices := provider.DefaultVoices().WithOverrides(cfg.TTS.NarratorVoice, cfg.TTS.CharacterVoice)
	return provider, voices, nil
}

func completerFor(ctx context.Context, cfg *config.Config, lc config.LLMConfig) (llm.Completer, error) {
	return llm.New(ctx, llm.Options{
		Provider: lc.Provider,
		Model:    lc.Model,
		APIKey:   cfg.APIKeyFor(lc.Provider),
		BaseURL:  lc.BaseURL,
	})
}

func scriptOptions(lc config.LLMConfig) script.Options {
	return script.Options{
		Model:       lc.Model,
		Temperature: lc.Temperature,
		MaxTokens:   lc.MaxTokens,
		MaxAttempts: lc.MaxAttempts,
	}
}
