// Package tts synthesizes speech for script lines through pluggable
// providers.
package tts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnknownProvider is returned by NewProvider and AvailableVoices for an
// unrecognized provider name.
var ErrUnknownProvider = errors.New("unknown TTS provider")

// NarratorSpeaker is the speaker name that selects the narrator voice.
const NarratorSpeaker = "NARRATOR"

// AudioFormat represents the audio encoding returned by a provider.
type AudioFormat string

const (
	FormatMP3 AudioFormat = "mp3"
	FormatWAV AudioFormat = "wav"
)

// Ext returns the file extension for the format, without the dot.
func (f AudioFormat) Ext() string {
	if f == "" {
		return string(FormatMP3)
	}
	return string(f)
}

// Voice holds a provider-specific voice identifier.
type Voice struct {
	ID   string // Provider-specific voice identifier
	Name string // Human-readable label
}

// VoiceMap assigns voices to speakers: one voice for the narrator and one
// shared by every character.
type VoiceMap struct {
	Narrator  Voice
	Character Voice
}

// For returns the voice used for speaker.
func (m VoiceMap) For(speaker string) Voice {
	if speaker == NarratorSpeaker {
		return m.Narrator
	}
	return m.Character
}

// WithOverrides replaces voice IDs that are set.
func (m VoiceMap) WithOverrides(narrator, character string) VoiceMap {
	if narrator != "" {
		m.Narrator = Voice{ID: narrator, Name: narrator}
	}
	if character != "" {
		m.Character = Voice{ID: character, Name: character}
	}
	return m
}

// AudioResult is the output of a synthesis call.
type AudioResult struct {
	Data   []byte
	Format AudioFormat
}

// Provider synthesizes speech from text.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text string, voice Voice) (AudioResult, error)
	DefaultVoices() VoiceMap
	Close() error
}

// ProviderConfig holds provider construction settings.
type ProviderConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Speed      float64 // speaking rate multiplier, 0 = provider default
	Pitch      float64 // semitones, Google only
	HTTPClient *http.Client
}

// VoiceInfo describes an available voice for display in the registry.
type VoiceInfo struct {
	ID          string
	Name        string
	Gender      string // "male", "female" or "neutral"
	Description string
	DefaultFor  string // "Narrator", "Character", or ""
}

// ProviderNames lists the accepted provider names.
func ProviderNames() []string {
	return []string{"openai", "elevenlabs", "google", "polly"}
}

// AvailableVoices returns the voice catalog for the named provider.
func AvailableVoices(providerName string) ([]VoiceInfo, error) {
	switch providerName {
	case "openai":
		return openAIAvailableVoices(), nil
	case "elevenlabs":
		return elevenLabsAvailableVoices(), nil
	case "google":
		return googleAvailableVoices(), nil
	case "polly":
		return pollyAvailableVoices(), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownProvider, providerName)
	}
}

// NewProvider creates a TTS provider by name.
func NewProvider(ctx context.Context, name string, cfg ProviderConfig) (Provider, error) {
	switch name {
	case "openai":
		return NewOpenAIProvider(cfg), nil
	case "elevenlabs":
		return NewElevenLabsProvider(cfg), nil
	case "google":
		return NewGoogleProvider(ctx, cfg)
	case "polly":
		return NewPollyProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w %q: choose %s", ErrUnknownProvider, name, strings.Join(ProviderNames(), ", "))
	}
}

func truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
