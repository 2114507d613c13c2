// Package script turns analyzed stories into speaker-attributed scripts and
// parses those scripts back into dialogue lines.
//
// A script is plain text, one block per line, in the form
//
//	SPEAKER: utterance
//
// Lines without a colon belong to the narrator.
package script

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Document is a saved script together with what is needed to narrate it
// again later.
type Document struct {
	Title      string      `json:"title"`
	AgeGroup   string      `json:"age_group"`
	Source     string      `json:"source,omitempty"`
	Text       string      `json:"text"`
	Lines      []Line      `json:"lines"`
	Characters []Character `json:"characters"`
	CreatedAt  time.Time   `json:"created_at"`
}

// NewDocument parses text and fills in the derived fields.
func NewDocument(title, ageGroup, source, text string) *Document {
	lines := Parse(text)
	return &Document{
		Title:      title,
		AgeGroup:   ageGroup,
		Source:     source,
		Text:       text,
		Lines:      lines,
		Characters: Characters(lines),
		CreatedAt:  time.Now().UTC(),
	}
}

func SaveDocument(d *Document, path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal script: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write script to %s: %w", path, err)
	}
	return nil
}

// LoadDocument reads a saved script. When the stored lines are missing they
// are re-derived from the text.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script from %s: %w", path, err)
	}
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse script from %s: %w", path, err)
	}
	if len(d.Lines) == 0 && d.Text != "" {
		d.Lines = Parse(d.Text)
		d.Characters = Characters(d.Lines)
	}
	if len(d.Lines) == 0 {
		return nil, fmt.Errorf("script %s has no lines", path)
	}
	if d.Text == "" {
		d.Text = Format(d.Lines)
	}
	return &d, nil
}
