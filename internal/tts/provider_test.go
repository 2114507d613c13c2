package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoiceMap_For(t *testing.T) {
	m := NewOpenAIProvider(ProviderConfig{}).DefaultVoices()

	assert.Equal(t, "nova", m.For("NARRATOR").ID)
	assert.Equal(t, "alloy", m.For("ALICE").ID)
	assert.Equal(t, "alloy", m.For("BOB").ID)
	assert.Equal(t, "alloy", m.For("narrator").ID, "only the exact upper-case name selects the narrator")
	assert.Equal(t, m.For("ALICE"), m.For("ALICE"))
}

func TestVoiceMap_WithOverrides(t *testing.T) {
	m := VoiceMap{Narrator: Voice{ID: "nova"}, Character: Voice{ID: "alloy"}}

	got := m.WithOverrides("", "echo")
	assert.Equal(t, "nova", got.Narrator.ID)
	assert.Equal(t, "echo", got.Character.ID)
	assert.Equal(t, "alloy", m.Character.ID)
}

func TestNewProvider_Unknown(t *testing.T) {
	_, err := NewProvider(context.Background(), "festival", ProviderConfig{})
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = AvailableVoices("festival")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestAvailableVoices_DefaultsListed(t *testing.T) {
	for _, name := range []string{"openai", "elevenlabs", "google", "polly"} {
		voices, err := AvailableVoices(name)
		require.NoError(t, err, name)

		roles := map[string]bool{}
		for _, v := range voices {
			if v.DefaultFor != "" {
				roles[v.DefaultFor] = true
			}
		}
		assert.True(t, roles["Narrator"], name)
		assert.True(t, roles["Character"], name)
	}
}

func TestAudioFormat_Ext(t *testing.T) {
	assert.Equal(t, "mp3", FormatMP3.Ext())
	assert.Equal(t, "mp3", AudioFormat("").Ext())
	assert.Equal(t, "wav", FormatWAV.Ext())
}

func TestOpenAIProvider_Synthesize(t *testing.T) {
	var got openAISpeechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-fake-mp3"))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(ProviderConfig{APIKey: "sk-test", BaseURL: srv.URL})
	res, err := p.Synthesize(context.Background(), "Once upon a time", Voice{ID: "nova"})
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3-fake-mp3"), res.Data)
	assert.Equal(t, FormatMP3, res.Format)

	assert.Equal(t, "tts-1", got.Model)
	assert.Equal(t, "nova", got.Voice)
	assert.Equal(t, "Once upon a time", got.Input)
	assert.InDelta(t, 1.0, got.Speed, 1e-9)
}

func TestOpenAIProvider_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad voice", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewOpenAIProvider(ProviderConfig{BaseURL: srv.URL}).Synthesize(context.Background(), "x", Voice{ID: "zzz"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestElevenLabsProvider_Synthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/voice-123", r.URL.Path)
		assert.Equal(t, "mp3_44100_128", r.URL.Query().Get("output_format"))
		assert.Equal(t, "el-key", r.Header.Get("xi-api-key"))
		var body elevenLabsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Hello", body.Text)
		_, _ = w.Write([]byte("mp3"))
	}))
	defer srv.Close()

	p := NewElevenLabsProvider(ProviderConfig{APIKey: "el-key", BaseURL: srv.URL})
	res, err := p.Synthesize(context.Background(), "Hello", Voice{ID: "voice-123"})
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3"), res.Data)
}

type fakePolly struct {
	in *polly.SynthesizeSpeechInput
}

func (f *fakePolly) SynthesizeSpeech(_ context.Context, in *polly.SynthesizeSpeechInput, _ ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error) {
	f.in = in
	return &polly.SynthesizeSpeechOutput{AudioStream: io.NopCloser(bytes.NewReader([]byte("polly-mp3")))}, nil
}

func TestPollyProvider_Synthesize(t *testing.T) {
	fake := &fakePolly{}
	p := NewPollyProviderWithClient(fake)

	res, err := p.Synthesize(context.Background(), "Hi", Voice{ID: "Amy"})
	require.NoError(t, err)
	assert.Equal(t, []byte("polly-mp3"), res.Data)
	assert.Equal(t, types.LanguageCodeEnGb, fake.in.LanguageCode)
	assert.Equal(t, types.VoiceId("Amy"), fake.in.VoiceId)
}

func TestGoogleLanguageCode(t *testing.T) {
	assert.Equal(t, "en-GB", googleLanguageCode("en-GB-Chirp3-HD-Leda"))
	assert.Equal(t, "en-US", googleLanguageCode("Leda"))
}
