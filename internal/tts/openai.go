package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	openAIDefaultNarrator  = "nova"
	openAIDefaultCharacter = "alloy"

	openAIBaseURL = "https://api.openai.com/v1"
	openAIModel   = "tts-1"
)

type openAISpeechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	Speed          float64 `json:"speed"`
	ResponseFormat string  `json:"response_format"`
}

// OpenAIProvider implements Provider using the OpenAI speech endpoint.
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	model      string
	speed      float64
	httpClient *http.Client
}

func NewOpenAIProvider(cfg ProviderConfig) *OpenAIProvider {
	p := &OpenAIProvider{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		model:      cfg.Model,
		speed:      cfg.Speed,
		httpClient: cfg.HTTPClient,
	}
	if p.baseURL == "" {
		p.baseURL = openAIBaseURL
	}
	if p.model == "" {
		p.model = openAIModel
	}
	if p.speed == 0 {
		p.speed = 1.0
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return p
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) DefaultVoices() VoiceMap {
	return VoiceMap{
		Narrator:  Voice{ID: openAIDefaultNarrator, Name: "Nova"},
		Character: Voice{ID: openAIDefaultCharacter, Name: "Alloy"},
	}
}

func (p *OpenAIProvider) Synthesize(ctx context.Context, text string, voice Voice) (AudioResult, error) {
	bodyBytes, err := json.Marshal(openAISpeechRequest{
		Model:          p.model,
		Input:          text,
		Voice:          voice.ID,
		Speed:          p.speed,
		ResponseFormat: string(FormatMP3),
	})
	if err != nil {
		return AudioResult{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/audio/speech", bytes.NewReader(bodyBytes))
	if err != nil {
		return AudioResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	res, err := p.httpClient.Do(req)
	if err != nil {
		return AudioResult{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(res.Body)
		return AudioResult{}, fmt.Errorf("OpenAI speech API error (status %d): %s", res.StatusCode, truncate(string(errBody), 500))
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return AudioResult{}, fmt.Errorf("read response: %w", err)
	}
	return AudioResult{Data: data, Format: FormatMP3}, nil
}

func (p *OpenAIProvider) Close() error { return nil }

func openAIAvailableVoices() []VoiceInfo {
	return []VoiceInfo{
		{ID: "nova", Name: "Nova", Gender: "female", Description: "Bright, friendly storyteller", DefaultFor: "Narrator"},
		{ID: "alloy", Name: "Alloy", Gender: "neutral", Description: "Balanced, clear voice", DefaultFor: "Character"},
		{ID: "echo", Name: "Echo", Gender: "male", Description: "Calm, even male voice"},
		{ID: "fable", Name: "Fable", Gender: "neutral", Description: "Expressive British voice"},
		{ID: "onyx", Name: "Onyx", Gender: "male", Description: "Deep, authoritative male voice"},
		{ID: "shimmer", Name: "Shimmer", Gender: "female", Description: "Soft, warm female voice"},
	}
}
