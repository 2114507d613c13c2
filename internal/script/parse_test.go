package script_test

import (
	"testing"

	"github.com/apresai/storytime/internal/script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_DropsBlankLines(t *testing.T) {
	text := "NARRATOR: The sun rose.\n\n   \nALICE: Good morning!\nBob: Hi.\n"
	lines := script.Parse(text)
	require.Len(t, lines, 3)
	for i, l := range lines {
		assert.Equal(t, i, l.Index)
	}
}

func TestParse_SpeakerAndUtterance(t *testing.T) {
	lines := script.Parse("Alice: Hello there")
	require.Len(t, lines, 1)
	assert.Equal(t, script.Line{Index: 0, Speaker: "ALICE", Text: "Hello there"}, lines[0])
}

func TestParse_NoColonIsNarrator(t *testing.T) {
	lines := script.Parse("  The wind howled through the trees.  ")
	require.Len(t, lines, 1)
	assert.Equal(t, script.Narrator, lines[0].Speaker)
	assert.Equal(t, "The wind howled through the trees.", lines[0].Text)
}

func TestParse_FirstColonWins(t *testing.T) {
	lines := script.Parse("Note: the time was 10:30")
	require.Len(t, lines, 1)
	assert.Equal(t, "NOTE", lines[0].Speaker)
	assert.Equal(t, "the time was 10:30", lines[0].Text)
}

func TestParse_BlankSpeakerIsNarrator(t *testing.T) {
	lines := script.Parse(": and then silence")
	require.Len(t, lines, 1)
	assert.Equal(t, script.Narrator, lines[0].Speaker)
	assert.Equal(t, "and then silence", lines[0].Text)
}

func TestParse_Empty(t *testing.T) {
	assert.Empty(t, script.Parse(""))
	assert.Empty(t, script.Parse("\n \n\t\n"))
}

func TestFormat_RoundTrip(t *testing.T) {
	text := "The end was near.\nalice : Where are you?\nBOB: Here: by the door\n\nNARRATOR: They hugged."
	first := script.Parse(text)
	formatted := script.Format(first)
	second := script.Parse(formatted)

	assert.Equal(t, first, second)
	assert.Equal(t, formatted, script.Format(second))
	assert.Equal(t, "NARRATOR: The end was near.\nALICE: Where are you?\nBOB: Here: by the door\nNARRATOR: They hugged.", formatted)
}

func TestCharacters(t *testing.T) {
	text := `NARRATOR: Once upon a time.
Alice: Hi Bob!
Bob: Hi Alice.
ALICE: Shall we play?
A quiet moment passed.
Carol: Wait for me!
bob: Of course.`

	chars := script.Characters(script.Parse(text))
	require.Len(t, chars, 3)

	assert.Equal(t, script.Character{Name: "ALICE", DialogueCount: 2, SampleDialogue: "Hi Bob!", FirstAppearance: 1}, chars[0])
	assert.Equal(t, script.Character{Name: "BOB", DialogueCount: 2, SampleDialogue: "Hi Alice.", FirstAppearance: 2}, chars[1])
	assert.Equal(t, script.Character{Name: "CAROL", DialogueCount: 1, SampleDialogue: "Wait for me!", FirstAppearance: 3}, chars[2])
}

func TestCharacters_NarratorOnly(t *testing.T) {
	assert.Empty(t, script.Characters(script.Parse("It rained.\nNARRATOR: It stopped.")))
}
