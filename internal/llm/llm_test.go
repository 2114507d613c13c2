package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(context.Background(), Options{Provider: "mystery"})
	require.ErrorIs(t, err, ErrUnknownProvider)
	assert.Contains(t, err.Error(), "mystery")
}

func TestOpenAICompleter_Complete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"NARRATOR: Once upon a time."}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAICompleter(Options{Provider: "deepseek", APIKey: "sk-test", BaseURL: srv.URL})
	text, err := c.Complete(context.Background(), Request{
		System:      "be kind",
		User:        "a story",
		Temperature: 0.7,
		MaxTokens:   2000,
	})
	require.NoError(t, err)
	assert.Equal(t, "NARRATOR: Once upon a time.", text)

	assert.Equal(t, "deepseek-chat", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "be kind", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, 2000, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
}

func TestOpenAICompleter_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewOpenAICompleter(Options{Provider: "openai", BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), Request{User: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestOpenAICompleter_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewOpenAICompleter(Options{Provider: "ollama", BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), Request{User: "x"})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestOpenAICompleter_BlankContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":""}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAICompleter(Options{Provider: "ollama", BaseURL: srv.URL})
	text, err := c.Complete(context.Background(), Request{User: "x"})
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestGeminiCompleter_Complete(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-flash:generateContent"))
		assert.Equal(t, "g-key", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Hello "},{"text":"world"}]}}]}`))
	}))
	defer srv.Close()

	c := NewGeminiCompleter(Options{APIKey: "g-key", BaseURL: srv.URL})
	text, err := c.Complete(context.Background(), Request{System: "sys", User: "usr"})
	require.NoError(t, err)
	assert.Equal(t, "Hello world", text)
	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "sys", got.SystemInstruction.Parts[0].Text)
	assert.Equal(t, "usr", got.Contents[0].Parts[0].Text)
}

type fakeConverse struct {
	in  *bedrockruntime.ConverseInput
	out *bedrockruntime.ConverseOutput
}

func (f *fakeConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.in = in
	return f.out, nil
}

func TestBedrockCompleter_Complete(t *testing.T) {
	fake := &fakeConverse{out: &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: "analysis"}},
		}},
	}}

	c := NewBedrockCompleterWithClient(fake, "nova-pro")
	text, err := c.Complete(context.Background(), Request{System: "s", User: "u", MaxTokens: 100})
	require.NoError(t, err)
	assert.Equal(t, "analysis", text)
	assert.Equal(t, "us.amazon.nova-pro-v1:0", *fake.in.ModelId)
	assert.Equal(t, int32(100), *fake.in.InferenceConfig.MaxTokens)
}

func TestBedrockCompleter_EmptyOutput(t *testing.T) {
	c := NewBedrockCompleterWithClient(&fakeConverse{out: &bedrockruntime.ConverseOutput{}}, "")
	_, err := c.Complete(context.Background(), Request{User: "u"})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestResolveModel(t *testing.T) {
	assert.Equal(t, "claude-haiku-4-5-20251001", resolveModel(claudeModels, "", "haiku"))
	assert.Equal(t, "claude-sonnet-4-5-20250929", resolveModel(claudeModels, "sonnet", "haiku"))
	assert.Equal(t, "custom-model", resolveModel(claudeModels, "custom-model", "haiku"))
}
