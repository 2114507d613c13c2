// Package llm wraps the chat-completion providers used to analyze and rewrite
// stories. Every provider is reduced to one blocking call: a system
// instruction plus one user message in, text out.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnknownProvider is returned by New for an unrecognized provider name.
var ErrUnknownProvider = errors.New("unknown LLM provider")

// ErrEmptyCompletion is returned when a provider response carries no message.
var ErrEmptyCompletion = errors.New("empty completion")

// Request is a single completion call.
type Request struct {
	System      string
	User        string
	Model       string // provider model alias or full ID; empty uses the completer default
	Temperature float64
	MaxTokens   int
}

// Completer issues completion requests against one provider.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a plain function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Options configures provider construction.
type Options struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// ProviderNames lists the accepted provider names.
func ProviderNames() []string {
	return []string{"anthropic", "bedrock", "gemini", "openai", "deepseek", "ollama"}
}

// New builds the Completer for opts.Provider.
func New(ctx context.Context, opts Options) (Completer, error) {
	switch strings.ToLower(opts.Provider) {
	case "anthropic", "claude":
		return NewAnthropicCompleter(opts), nil
	case "bedrock", "nova":
		return NewBedrockCompleter(ctx, opts)
	case "gemini":
		return NewGeminiCompleter(opts), nil
	case "openai", "deepseek", "ollama":
		return NewOpenAICompleter(opts), nil
	default:
		return nil, fmt.Errorf("%w %q: choose %s", ErrUnknownProvider, opts.Provider, strings.Join(ProviderNames(), ", "))
	}
}

// resolveModel maps an alias through models, falling back to the request
// model verbatim, then the completer default.
func resolveModel(models map[string]string, requested, fallback string) string {
	if requested == "" {
		requested = fallback
	}
	if id, ok := models[requested]; ok {
		return id
	}
	return requested
}

func truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
