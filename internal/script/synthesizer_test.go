package script_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apresai/storytime/internal/experts"
	"github.com/apresai/storytime/internal/llm"
	"github.com/apresai/storytime/internal/script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAnalysis() experts.Analysis {
	return experts.Analysis{
		{RoleID: "subject_researcher", RoleName: "Subject Researcher", Text: "themes: friendship"},
		{RoleID: "subject_reviewer", RoleName: "Subject Reviewer", Text: "Error: timeout", Err: errors.New("timeout")},
	}
}

func TestSynthesisPrompt_EmbedsAnalysesAsJSON(t *testing.T) {
	p, err := script.SynthesisPrompt(sampleAnalysis(), "6-8")
	require.NoError(t, err)

	assert.Contains(t, p, "children aged 6-8")
	assert.Contains(t, p, "NARRATOR:")

	_, after, ok := strings.Cut(p, "Expert Analyses:\n")
	require.True(t, ok)
	var steps []experts.Step
	require.NoError(t, json.Unmarshal([]byte(after), &steps))
	assert.Equal(t, []experts.Step{
		{Role: "Subject Researcher", Analysis: "themes: friendship"},
	}, steps)
	assert.Contains(t, after, "\n  {")
	assert.NotContains(t, p, "Subject Reviewer")
	assert.NotContains(t, p, "Error: timeout")
}

func TestSynthesizer_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	c := llm.CompleterFunc(func(_ context.Context, req llm.Request) (string, error) {
		calls++
		assert.Equal(t, "the story", req.User)
		if calls < 3 {
			return "", errors.New("502 bad gateway")
		}
		return "NARRATOR: Hello.", nil
	})

	out, err := script.NewSynthesizer(c, script.Options{}).Synthesize(context.Background(), "the story", sampleAnalysis(), "")
	require.NoError(t, err)
	assert.Equal(t, "NARRATOR: Hello.", out)
	assert.Equal(t, 3, calls)
}

func TestSynthesizer_ReturnsLastError(t *testing.T) {
	calls := 0
	last := errors.New("attempt 3")
	c := llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
		calls++
		if calls == 3 {
			return "", last
		}
		return "", errors.New("earlier")
	})

	_, err := script.NewSynthesizer(c, script.Options{}).Synthesize(context.Background(), "x", nil, "")
	assert.Same(t, last, err)
	assert.Equal(t, 3, calls)
}

func TestSynthesizer_BlankOutputIsReturned(t *testing.T) {
	calls := 0
	c := llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
		calls++
		return "   \n", nil
	})

	out, err := script.NewSynthesizer(c, script.Options{}).Synthesize(context.Background(), "x", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "   \n", out)
	assert.Equal(t, 1, calls)

	calls = 0
	out, err = script.NewSimplifier(c, script.Options{}).Simplify(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "   \n", out)
	assert.Equal(t, 1, calls)
}

func TestSimplifier_Defaults(t *testing.T) {
	var got llm.Request
	c := llm.CompleterFunc(func(_ context.Context, req llm.Request) (string, error) {
		got = req
		return "NARRATOR: Short story.", nil
	})

	out, err := script.NewSimplifier(c, script.Options{Model: "deepseek-chat"}).Simplify(context.Background(), "long story")
	require.NoError(t, err)
	assert.Equal(t, "NARRATOR: Short story.", out)

	assert.Equal(t, "long story", got.User)
	assert.Equal(t, "deepseek-chat", got.Model)
	assert.Equal(t, 2000, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
	assert.True(t, strings.HasPrefix(got.System, "Simplify this story for children aged 5-10. Keep characters and main plot points."))
}

func TestDocument_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "story.json")
	doc := script.NewDocument("The Fox", "8-12", "fox.txt", "NARRATOR: A fox.\nFox: Hello!")
	require.Len(t, doc.Lines, 2)
	require.Len(t, doc.Characters, 1)

	require.NoError(t, script.SaveDocument(doc, path))
	got, err := script.LoadDocument(path)
	require.NoError(t, err)
	assert.Equal(t, doc.Title, got.Title)
	assert.Equal(t, doc.Lines, got.Lines)
	assert.Equal(t, doc.Characters, got.Characters)
}

func TestLoadDocument_DerivesLinesFromText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "story.json")
	require.NoError(t, script.SaveDocument(&script.Document{Text: "Owl: Hoot"}, path))

	got, err := script.LoadDocument(path)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "OWL", got.Lines[0].Speaker)
}

func TestLoadDocument_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "story.json")
	require.NoError(t, script.SaveDocument(&script.Document{}, path))

	_, err := script.LoadDocument(path)
	assert.Error(t, err)
}
