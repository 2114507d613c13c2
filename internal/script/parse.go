package script

import "strings"

// Narrator is the speaker assigned to lines without an explicit speaker.
const Narrator = "NARRATOR"

// Line is one dialogue block of a parsed script.
type Line struct {
	Index   int    `json:"index"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Character summarizes one speaking role. FirstAppearance is 1-based and
// counts distinct characters, not lines.
type Character struct {
	Name            string `json:"name"`
	DialogueCount   int    `json:"dialogue_count"`
	SampleDialogue  string `json:"sample_dialogue"`
	FirstAppearance int    `json:"first_appearance"`
}

// Parse splits script text into dialogue lines. Blank lines are dropped and
// indices count only the kept lines. The first colon separates the speaker
// from the utterance, so a colon inside an unattributed sentence is taken
// as a speaker boundary.
func Parse(text string) []Line {
	var lines []Line
	for _, raw := range strings.Split(text, "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		speaker, utterance := Narrator, raw
		if before, after, ok := strings.Cut(raw, ":"); ok {
			utterance = strings.TrimSpace(after)
			if s := strings.ToUpper(strings.TrimSpace(before)); s != "" {
				speaker = s
			}
		}
		lines = append(lines, Line{Index: len(lines), Speaker: speaker, Text: utterance})
	}
	return lines
}

// Format renders lines back into script text. Parse(Format(lines)) yields
// lines equal to the input when every line came from Parse.
func Format(lines []Line) string {
	var sb strings.Builder
	for i, l := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(l.Speaker)
		sb.WriteString(": ")
		sb.WriteString(l.Text)
	}
	return sb.String()
}

// Characters lists every non-narrator speaker in order of first appearance.
func Characters(lines []Line) []Character {
	var out []Character
	pos := make(map[string]int)
	for _, l := range lines {
		if l.Speaker == Narrator {
			continue
		}
		if i, ok := pos[l.Speaker]; ok {
			out[i].DialogueCount++
			continue
		}
		pos[l.Speaker] = len(out)
		out = append(out, Character{
			Name:            l.Speaker,
			DialogueCount:   1,
			SampleDialogue:  l.Text,
			FirstAppearance: len(out) + 1,
		})
	}
	return out
}
