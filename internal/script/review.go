package script

import (
	"fmt"
	"strings"
)

// ReviewIssue describes a likely problem in a generated script. Issues are
// advisory: the script is narrated as written.
type ReviewIssue struct {
	Category string // "narrator", "speaker", "markup", "length"
	Message  string
}

const maxSpeakerLen = 32

// Review runs cheap heuristics over parsed lines and reports what looks off.
func Review(lines []Line) []ReviewIssue {
	if len(lines) == 0 {
		return []ReviewIssue{{Category: "length", Message: "script has no lines"}}
	}
	var issues []ReviewIssue
	issues = append(issues, checkNarrator(lines)...)
	issues = append(issues, checkSpeakerNames(lines)...)
	issues = append(issues, checkMarkup(lines)...)
	return issues
}

func checkNarrator(lines []Line) []ReviewIssue {
	for _, l := range lines {
		if l.Speaker == Narrator {
			return nil
		}
	}
	return []ReviewIssue{{
		Category: "narrator",
		Message:  "script has no NARRATOR lines",
	}}
}

// checkSpeakerNames flags speakers that look like a sentence split at a
// stray colon.
func checkSpeakerNames(lines []Line) []ReviewIssue {
	var issues []ReviewIssue
	seen := map[string]bool{}
	for _, l := range lines {
		if seen[l.Speaker] {
			continue
		}
		seen[l.Speaker] = true
		if len(l.Speaker) > maxSpeakerLen || strings.Count(l.Speaker, " ") > 3 {
			issues = append(issues, ReviewIssue{
				Category: "speaker",
				Message:  fmt.Sprintf("line %d: speaker %q looks like prose", l.Index, l.Speaker),
			})
		}
	}
	return issues
}

func checkMarkup(lines []Line) []ReviewIssue {
	count := 0
	for _, l := range lines {
		if strings.HasPrefix(l.Speaker, "```") || strings.HasPrefix(l.Text, "```") ||
			strings.HasPrefix(l.Speaker, "**") || strings.HasPrefix(l.Speaker, "#") {
			count++
		}
	}
	if count == 0 {
		return nil
	}
	return []ReviewIssue{{
		Category: "markup",
		Message:  fmt.Sprintf("found %d lines with markdown markup", count),
	}}
}
