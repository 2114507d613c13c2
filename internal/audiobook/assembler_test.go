package audiobook_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/apresai/storytime/internal/audiobook"
	"github.com/apresai/storytime/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	text  string
	voice string
}

type fakeProvider struct {
	calls  []call
	failOn int // 1-based call number that fails; 0 never fails
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Synthesize(_ context.Context, text string, voice tts.Voice) (tts.AudioResult, error) {
	f.calls = append(f.calls, call{text: text, voice: voice.ID})
	if len(f.calls) == f.failOn {
		return tts.AudioResult{}, errors.New("speech quota exceeded")
	}
	return tts.AudioResult{Data: []byte("audio:" + text), Format: tts.FormatMP3}, nil
}

func (f *fakeProvider) DefaultVoices() tts.VoiceMap {
	return tts.VoiceMap{Narrator: tts.Voice{ID: "nova"}, Character: tts.Voice{ID: "alloy"}}
}

func (f *fakeProvider) Close() error { return nil }

func TestAssemble_WritesOneClipPerLine(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	fake := &fakeProvider{}
	a := audiobook.NewAssembler(fake, audiobook.Options{OutputDir: dir})

	arts, err := a.Assemble(context.Background(), "The forest was dark.\n\nAlice: Hello there\nbob: Hi!")
	require.NoError(t, err)
	require.Len(t, arts, 3)

	want := []audiobook.Artifact{
		{Index: 0, Speaker: "NARRATOR", Path: filepath.Join(dir, "line_0_NARRATOR.mp3")},
		{Index: 1, Speaker: "ALICE", Path: filepath.Join(dir, "line_1_ALICE.mp3")},
		{Index: 2, Speaker: "BOB", Path: filepath.Join(dir, "line_2_BOB.mp3")},
	}
	assert.Equal(t, want, arts)

	assert.Equal(t, []call{
		{text: "The forest was dark.", voice: "nova"},
		{text: "Hello there", voice: "alloy"},
		{text: "Hi!", voice: "alloy"},
	}, fake.calls)

	data, err := os.ReadFile(arts[1].Path)
	require.NoError(t, err)
	assert.Equal(t, "audio:Hello there", string(data))

	assert.Equal(t, []string{want[0].Path, want[1].Path, want[2].Path}, audiobook.Paths(arts))
}

func TestAssemble_AbortsOnFailureAndKeepsEarlierClips(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeProvider{failOn: 2}
	a := audiobook.NewAssembler(fake, audiobook.Options{OutputDir: dir})

	arts, err := a.Assemble(context.Background(), "NARRATOR: One.\nALICE: Two.\nBOB: Three.")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "speech quota exceeded")
	assert.Nil(t, arts)
	assert.Len(t, fake.calls, 2)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "line_0_NARRATOR.mp3", entries[0].Name())
}

func TestAssemble_CustomVoices(t *testing.T) {
	fake := &fakeProvider{}
	a := audiobook.NewAssembler(fake, audiobook.Options{
		OutputDir: t.TempDir(),
		Voices:    tts.VoiceMap{Narrator: tts.Voice{ID: "fable"}, Character: tts.Voice{ID: "echo"}},
	})

	_, err := a.Assemble(context.Background(), "Owl: Hoot\nThe night fell.")
	require.NoError(t, err)
	assert.Equal(t, "echo", fake.calls[0].voice)
	assert.Equal(t, "fable", fake.calls[1].voice)
}

func TestAssemble_EmptyScript(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	arts, err := audiobook.NewAssembler(&fakeProvider{}, audiobook.Options{OutputDir: dir}).Assemble(context.Background(), "\n\n")
	require.NoError(t, err)
	assert.Empty(t, arts)
	assert.DirExists(t, dir)
}

func TestClipName_SanitizesSeparators(t *testing.T) {
	assert.Equal(t, "line_4_MR_MRS SMITH.mp3", audiobook.ClipName(4, "MR/MRS SMITH", tts.FormatMP3))
	assert.Equal(t, "line_0_A_B.wav", audiobook.ClipName(0, `A\B`, tts.FormatWAV))
}
