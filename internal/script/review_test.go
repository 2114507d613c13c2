package script_test

import (
	"testing"

	"github.com/apresai/storytime/internal/script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReview_CleanScript(t *testing.T) {
	lines := script.Parse("NARRATOR: A fox lived in the woods.\nFox: I am hungry.")
	assert.Empty(t, script.Review(lines))
}

func TestReview_Empty(t *testing.T) {
	issues := script.Review(nil)
	require.Len(t, issues, 1)
	assert.Equal(t, "length", issues[0].Category)
}

func TestReview_FlagsProblems(t *testing.T) {
	lines := script.Parse("```\nFox: Hi\nAnd then the fox said to the owl in a loud voice: hello\n**Owl**: Hoot")
	cats := map[string]bool{}
	for _, i := range script.Review(lines) {
		cats[i.Category] = true
	}
	assert.True(t, cats["speaker"])
	assert.True(t, cats["markup"])
	assert.False(t, cats["narrator"])
}

func TestReview_NoNarrator(t *testing.T) {
	issues := script.Review(script.Parse("Fox: Hi\nOwl: Hoot"))
	require.Len(t, issues, 1)
	assert.Equal(t, "narrator", issues[0].Category)
}
